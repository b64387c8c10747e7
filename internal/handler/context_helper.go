package handler

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/univ-lifecycle-api/internal/middleware"
	"github.com/noah-isme/univ-lifecycle-api/internal/models"
	appErrors "github.com/noah-isme/univ-lifecycle-api/pkg/errors"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

// entityRefFromPath reads :entityType and :entityId.
func entityRefFromPath(c *gin.Context) (models.EntityRef, error) {
	ref := models.EntityRef{
		Type: strings.ToLower(strings.TrimSpace(c.Param("entityType"))),
		ID:   strings.TrimSpace(c.Param("entityId")),
	}
	if ref.Type != models.EntityTypeStudent && ref.Type != models.EntityTypeApplication {
		return ref, appErrors.Clone(appErrors.ErrValidation, "entityType must be student or application")
	}
	if ref.ID == "" {
		return ref, appErrors.Clone(appErrors.ErrValidation, "entityId is required")
	}
	return ref, nil
}

func queryInt(c *gin.Context, key string, fallback int) int {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
