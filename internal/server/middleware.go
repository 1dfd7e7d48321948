package server

import (
	"errors"
	"math"
	"strconv"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/portal/internal/audit/domain"
	authdomain "github.com/smallbiznis/portal/internal/auth/domain"
	obscontext "github.com/smallbiznis/portal/internal/observability/context"
	"go.uber.org/zap"
)

const contextPrincipalKey = "principal"

// SessionRequired resolves the session cookie into a principal or aborts with 401.
func (s *Server) SessionRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := s.sessions.Token(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		principal, err := s.authsvc.Authenticate(c.Request.Context(), token)
		if err != nil {
			if isSessionError(err) {
				s.sessions.Clear(c)
			}
			AbortWithError(c, err)
			return
		}

		s.setPrincipal(c, principal)
		c.Next()
	}
}

// OptionalSession attaches the principal when a valid session cookie is present.
func (s *Server) OptionalSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := s.sessions.Token(c)
		if !ok {
			c.Next()
			return
		}

		principal, err := s.authsvc.Authenticate(c.Request.Context(), token)
		switch {
		case err == nil:
			s.setPrincipal(c, principal)
		case isSessionError(err):
			s.sessions.Clear(c)
		default:
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

// PublicTokenRateLimit throttles token routes per client ip. Redis errors fail open.
func (s *Server) PublicTokenRateLimit(endpoint string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter.Enabled() {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		result, err := s.limiter.AllowPublicToken(ctx, c.ClientIP())
		if err != nil {
			s.log.Warn("rate limit check failed", zap.String("endpoint", endpoint), zap.Error(err))
			c.Next()
			return
		}

		if result.Limit > 0 {
			c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
			c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		}
		if !result.Allowed {
			if result.RetryAfter > 0 {
				c.Header("Retry-After", strconv.Itoa(int(math.Ceil(result.RetryAfter.Seconds()))))
			}
			s.obsMetrics.RecordRateLimitDenied(ctx, endpoint)
			AbortWithError(c, ErrTooManyRequests)
			return
		}
		c.Next()
	}
}

func (s *Server) setPrincipal(c *gin.Context, principal *authdomain.Principal) {
	c.Set(contextPrincipalKey, principal)
	ctx := obscontext.WithActor(c.Request.Context(), string(auditdomain.ActorTypeAccount), principal.AccountID.String())
	c.Request = c.Request.WithContext(ctx)
}

func principalFromContext(c *gin.Context) (*authdomain.Principal, bool) {
	value, ok := c.Get(contextPrincipalKey)
	if !ok {
		return nil, false
	}
	principal, ok := value.(*authdomain.Principal)
	if !ok || principal == nil {
		return nil, false
	}
	return principal, true
}

func isSessionError(err error) bool {
	return errors.Is(err, authdomain.ErrInvalidSession) ||
		errors.Is(err, authdomain.ErrSessionNotFound) ||
		errors.Is(err, authdomain.ErrSessionExpired) ||
		errors.Is(err, authdomain.ErrSessionRevoked)
}
