package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/dongi/internal/observability/context"
)

// HeaderUserID carries the acting user. Authentication happens upstream.
const HeaderUserID = "X-User-Id"

const contextUserIDKey = "user_id"

// ActorFromHeader copies the acting user into the gin and request contexts.
// A missing header leaves the actor empty and the service rejects the call.
func ActorFromHeader() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.GetHeader(HeaderUserID))
		if userID != "" {
			c.Set(contextUserIDKey, userID)
			c.Request = c.Request.WithContext(obscontext.WithActorUserID(c.Request.Context(), userID))
		}
		c.Next()
	}
}

func actorID(c *gin.Context) string {
	return c.GetString(contextUserIDKey)
}
