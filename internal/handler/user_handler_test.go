package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/clearance-api/internal/dto"
	"github.com/noah-isme/clearance-api/internal/models"
	"github.com/noah-isme/clearance-api/internal/service"
	appErrors "github.com/noah-isme/clearance-api/pkg/errors"
)

type fakeUserSrv struct {
	filter  models.UserFilter
	actorID string
	req     dto.UpdateUserRequest
}

func (f *fakeUserSrv) List(_ context.Context, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	f.filter = filter
	return []models.User{}, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize}, nil
}

func (f *fakeUserSrv) Get(_ context.Context, id string) (*models.User, error) {
	if id != "o-1" {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
	}
	return &models.User{ID: id, Role: models.RoleOfficer}, nil
}

func (f *fakeUserSrv) Update(_ context.Context, actorID, id string, req dto.UpdateUserRequest, _ service.RequestMeta) (*models.User, error) {
	f.actorID = actorID
	f.req = req
	return &models.User{ID: id, Active: req.Active == nil || *req.Active}, nil
}

func TestUserHandlerListParsesFilter(t *testing.T) {
	srv := &fakeUserSrv{}
	handler := NewUserHandler(srv)

	c, rec := newActorContext(http.MethodGet, "/admin/users?role=officer&active=false&search=bello&limit=10", nil, adminActor)
	handler.List(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, srv.filter.Role)
	assert.Equal(t, models.RoleOfficer, *srv.filter.Role)
	require.NotNil(t, srv.filter.Active)
	assert.False(t, *srv.filter.Active)
	assert.Equal(t, "bello", srv.filter.Search)
	assert.Equal(t, 10, srv.filter.PageSize)
}

func TestUserHandlerGetNotFound(t *testing.T) {
	handler := NewUserHandler(&fakeUserSrv{})

	c, rec := newActorContext(http.MethodGet, "/admin/users/missing", nil, adminActor)
	c.Params = gin.Params{{Key: "id", Value: "missing"}}
	handler.Get(c)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUserHandlerUpdate(t *testing.T) {
	srv := &fakeUserSrv{}
	handler := NewUserHandler(srv)

	c, rec := newActorContext(http.MethodPatch, "/admin/users/o-1", []byte(`{"active":false}`), adminActor)
	c.Params = gin.Params{{Key: "id", Value: "o-1"}}
	handler.Update(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "admin-1", srv.actorID)
	require.NotNil(t, srv.req.Active)
	assert.False(t, *srv.req.Active)
}

func TestUserHandlerUpdateRejectsBadJSON(t *testing.T) {
	handler := NewUserHandler(&fakeUserSrv{})

	c, rec := newActorContext(http.MethodPatch, "/admin/users/o-1", []byte("{"), adminActor)
	c.Params = gin.Params{{Key: "id", Value: "o-1"}}
	handler.Update(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUserHandlerUpdateRequiresClaims(t *testing.T) {
	handler := NewUserHandler(&fakeUserSrv{})

	c, rec := newActorContext(http.MethodPatch, "/admin/users/o-1", []byte(`{}`), nil)
	handler.Update(c)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
