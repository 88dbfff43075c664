package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/croplytics/croplytics/internal/audit/domain"
	"github.com/croplytics/croplytics/internal/auditcontext"
)

const (
	actorHeader  = "X-Actor"
	tenantHeader = "X-Tenant-ID"

	actorContextKey = "actor"
)

// ActorContext reads the authenticated actor from the request headers and
// stores it for downstream handlers. Authentication itself happens upstream;
// this service only trusts the forwarded identity.
func (s *Server) ActorContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := strings.TrimSpace(c.GetHeader(actorHeader))
		if actor != "" {
			c.Set(actorContextKey, actor)

			actorType := string(auditdomain.ActorTypeAdmin)
			actorID := actor
			if actor == "system" {
				actorType = string(auditdomain.ActorTypeSystem)
			} else if strings.HasPrefix(actor, "user:") {
				actorType = string(auditdomain.ActorTypeUser)
				actorID = strings.TrimPrefix(actor, "user:")
			}
			ctx := auditcontext.WithActor(c.Request.Context(), actorType, actorID)
			c.Request = c.Request.WithContext(ctx)
		}
		c.Next()
	}
}

func (s *Server) actorFromContext(c *gin.Context) (string, bool) {
	value, ok := c.Get(actorContextKey)
	if !ok {
		return "", false
	}
	actor, ok := value.(string)
	if !ok || strings.TrimSpace(actor) == "" {
		return "", false
	}
	return actor, true
}

// authorizeAction gates a route on the RBAC policy. The tenant scope comes
// from the X-Tenant-ID header; platform-wide calls run in the global scope.
func (s *Server) authorizeAction(object string, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := s.actorFromContext(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		tenantID := strings.TrimSpace(c.GetHeader(tenantHeader))
		if tenantID == "" {
			tenantID = "global"
		}

		if err := s.authzSvc.Authorize(c.Request.Context(), actor, tenantID, object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}
