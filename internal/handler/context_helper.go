package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/smart-edu-api/internal/middleware"
	"github.com/noah-isme/smart-edu-api/internal/models"
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

func intQuery(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func paginationMeta(page, size, total int) *models.Pagination {
	if size <= 0 {
		size = 20
	}
	return &models.Pagination{
		Page:       page,
		PageSize:   size,
		TotalCount: total,
	}
}
