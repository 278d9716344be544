package httpkit

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Identity exposes the authenticated caller extracted by AuthRequired.
type Identity struct {
	UserID uuid.UUID
	Roles  []string
}

// MustGetIdentity returns the caller identity or aborts with 401.
// Returns nil if the request was aborted.
func MustGetIdentity(c *gin.Context) *Identity {
	rawUserID, ok := c.Get(ContextUserIDKey)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return nil
	}

	userID, ok := rawUserID.(uuid.UUID)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return nil
	}

	identity := &Identity{UserID: userID}
	if rawRoles, ok := c.Get(ContextRolesKey); ok {
		if roles, ok := rawRoles.([]string); ok {
			identity.Roles = roles
		}
	}

	return identity
}
