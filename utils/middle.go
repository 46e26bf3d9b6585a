package utils

import (
	"net/http"
	"strings"

	"TrainAI/model"

	"github.com/gin-gonic/gin"
)

const ownerKey = "owner"

// AuthMiddleware verifies the bearer JWT and stores the caller in the context.
func AuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		tokenParts := strings.Split(authHeader, " ")
		if len(tokenParts) != 2 || tokenParts[0] != "Bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		claims, err := VerifyToken(tokenParts[1], secret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Set(ownerKey, model.Owner{ID: claims.OwnerID(), Email: claims.Email})
		c.Next()
	}
}

// CurrentOwner returns the caller stored by AuthMiddleware.
func CurrentOwner(c *gin.Context) (model.Owner, bool) {
	v, ok := c.Get(ownerKey)
	if !ok {
		return model.Owner{}, false
	}
	owner, ok := v.(model.Owner)
	return owner, ok && owner.ID != ""
}
