package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/workshop-scheduler/internal/middleware"
	"github.com/noah-isme/workshop-scheduler/internal/models"
	appErrors "github.com/noah-isme/workshop-scheduler/pkg/errors"
)

func claimsFromContext(c *gin.Context) (*models.JWTClaims, error) {
	claims := middleware.Claims(c)
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	return claims, nil
}

func queryInt(c *gin.Context, key string, fallback int) int {
	if v, err := strconv.Atoi(c.Query(key)); err == nil {
		return v
	}
	return fallback
}
