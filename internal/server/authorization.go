package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/portal/internal/authorization"
)

func (s *Server) authorize(object string, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.authorizeAction(c, object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

func (s *Server) authorizeAction(c *gin.Context, object string, action string) error {
	principal, ok := principalFromContext(c)
	if !ok {
		return ErrUnauthorized
	}
	if s.authzSvc == nil {
		return ErrForbidden
	}

	actor := authorization.Actor{
		AccountID: principal.AccountID.String(),
		Role:      principal.Role,
	}
	return s.authzSvc.Authorize(c.Request.Context(), actor, strings.TrimSpace(object), strings.TrimSpace(action))
}
