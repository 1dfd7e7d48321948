package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/portal/internal/audit/domain"
	authdomain "github.com/smallbiznis/portal/internal/auth/domain"
	"go.uber.org/zap"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Principal *authdomain.Principal `json:"principal"`
	ExpiresAt string                `json:"expires_at"`
}

func (s *Server) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	result, err := s.authsvc.Login(c.Request.Context(), authdomain.LoginRequest{
		Email:     email,
		Password:  req.Password,
		UserAgent: c.Request.UserAgent(),
		IPAddress: c.ClientIP(),
	})
	if err != nil {
		s.writeAudit(c, auditdomain.Entry{
			ActorType:  auditdomain.ActorTypeSystem,
			Action:     "account.login_failed",
			TargetType: "account",
			Metadata:   map[string]any{"email": email},
		})
		AbortWithError(c, err)
		return
	}

	s.startSession(c, result)

	accountID := result.Principal.AccountID.String()
	s.writeAudit(c, auditdomain.Entry{
		ActorType:  auditdomain.ActorTypeAccount,
		ActorID:    accountID,
		Action:     "account.login",
		TargetType: "account",
		TargetID:   accountID,
		Metadata:   map[string]any{"email": email},
	})

	c.JSON(http.StatusOK, newSessionResponse(result))
}

func (s *Server) Logout(c *gin.Context) {
	token, ok := s.sessions.Token(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	if err := s.authsvc.Logout(c.Request.Context(), token); err != nil {
		s.sessions.Clear(c)
		AbortWithError(c, err)
		return
	}

	s.sessions.Clear(c)
	c.Status(http.StatusNoContent)
}

func (s *Server) Me(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	c.JSON(http.StatusOK, gin.H{"principal": principal})
}

// startSession sets the session cookie for a freshly issued session.
func (s *Server) startSession(c *gin.Context, result *authdomain.LoginResult) {
	s.sessions.Write(c, result.RawToken, result.ExpiresAt, result.IssuedAt)
	if result.Principal != nil {
		s.setPrincipal(c, result.Principal)
	}
}

func newSessionResponse(result *authdomain.LoginResult) sessionResponse {
	return sessionResponse{
		Principal: result.Principal,
		ExpiresAt: result.ExpiresAt.UTC().Format(timeLayout),
	}
}

func (s *Server) writeAudit(c *gin.Context, entry auditdomain.Entry) {
	if s.auditSvc == nil {
		return
	}
	if err := s.auditSvc.AuditLog(c.Request.Context(), entry); err != nil {
		s.log.Warn("audit log failed", zap.String("action", entry.Action), zap.Error(err))
	}
}
