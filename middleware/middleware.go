package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const actorKey = "user_id"

// TokenParser turns a session token into a user id.
type TokenParser interface {
	Parse(token string) (string, error)
}

// Auth accepts a token from "Authorization: Bearer ..." or the named cookie
// and stores the user id for ActorID.
func Auth(tokens TokenParser, cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := bearer(c.GetHeader("Authorization"))
		if tokenString == "" {
			tokenString, _ = c.Cookie(cookieName)
		}
		if tokenString == "" {
			abort(c, http.StatusUnauthorized, "unauthorized", "please login first")
			return
		}

		userID, err := tokens.Parse(tokenString)
		if err != nil {
			abort(c, http.StatusUnauthorized, "unauthorized", "invalid or expired token")
			return
		}

		c.Set(actorKey, userID)
		c.Next()
	}
}

// ActorID returns the authenticated user id, or "" outside Auth.
func ActorID(c *gin.Context) string {
	return c.GetString(actorKey)
}

func bearer(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}

func abort(c *gin.Context, status int, kind, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"kind":    kind,
		"message": message,
	})
}
