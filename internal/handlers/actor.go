package handler

import "github.com/gin-gonic/gin"

// Actor is the opaque identity supplied by the excluded authentication
// collaborator. The core records it; it never validates credentials.
type Actor struct {
	ID   string
	Role string
}

// actorFrom reads the authenticated identity the upstream layer attaches as
// headers. Unauthenticated internal calls fall back to "system".
func actorFrom(c *gin.Context) Actor {
	actor := Actor{
		ID:   c.GetHeader("X-Actor-Id"),
		Role: c.GetHeader("X-Actor-Role"),
	}
	if actor.ID == "" {
		actor.ID = "system"
	}
	return actor
}
