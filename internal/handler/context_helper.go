package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/clearance-api/internal/middleware"
	"github.com/noah-isme/clearance-api/internal/models"
	"github.com/noah-isme/clearance-api/internal/service"
	appErrors "github.com/noah-isme/clearance-api/pkg/errors"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	return middleware.Claims(c)
}

func requestMeta(c *gin.Context) service.RequestMeta {
	ip, ua := clientOrigin(c)
	return service.RequestMeta{IP: ip, UserAgent: ua}
}

func studentFromContext(c *gin.Context) (models.StudentActor, error) {
	if student, ok := middleware.CurrentActor(c).(models.StudentActor); ok {
		return student, nil
	}
	return models.StudentActor{}, actorError(c)
}

func officerFromContext(c *gin.Context) (models.OfficerActor, error) {
	if officer, ok := middleware.CurrentActor(c).(models.OfficerActor); ok {
		return officer, nil
	}
	return models.OfficerActor{}, actorError(c)
}

func actorError(c *gin.Context) error {
	if middleware.CurrentActor(c) == nil {
		return appErrors.ErrUnauthorized
	}
	return appErrors.ErrForbidden
}

func pageParams(c *gin.Context) (int, int) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	size, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || size < 1 {
		size = 20
	}
	return page, size
}
