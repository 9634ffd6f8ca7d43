package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/clearance-api/internal/dto"
	"github.com/noah-isme/clearance-api/internal/middleware"
	"github.com/noah-isme/clearance-api/internal/models"
	"github.com/noah-isme/clearance-api/internal/service"
	appErrors "github.com/noah-isme/clearance-api/pkg/errors"
)

type fakeClearanceSrv struct {
	submitResp  *dto.TransitionResponse
	submitErr   error
	decideReq   dto.DecisionRequest
	decideID    string
	detailActor models.Actor
	meta        service.RequestMeta
}

func (f *fakeClearanceSrv) Submit(_ context.Context, _ models.StudentActor, meta service.RequestMeta) (*dto.TransitionResponse, error) {
	f.meta = meta
	return f.submitResp, f.submitErr
}

func (f *fakeClearanceSrv) Decide(_ context.Context, _ models.OfficerActor, id string, req dto.DecisionRequest, _ service.RequestMeta) (*dto.TransitionResponse, error) {
	f.decideID = id
	f.decideReq = req
	return &dto.TransitionResponse{ClearanceID: id, Outcome: "advanced", Status: models.ClearanceInProgress, Progress: 50}, nil
}

func (f *fakeClearanceSrv) Dashboard(context.Context, models.StudentActor) (*dto.ClearanceDashboard, error) {
	return &dto.ClearanceDashboard{Progress: 25, CanSubmit: true}, nil
}

func (f *fakeClearanceSrv) Detail(_ context.Context, actor models.Actor, id string) (*dto.ClearanceDetail, error) {
	f.detailActor = actor
	return &dto.ClearanceDetail{Clearance: models.Clearance{ID: id}}, nil
}

type fakeCertificateSrv struct{ err error }

func (f fakeCertificateSrv) Render(context.Context, models.StudentActor) ([]byte, string, error) {
	if f.err != nil {
		return nil, "", f.err
	}
	return []byte("%PDF-1.3"), "clearance_certificate_20H12345.pdf", nil
}

func newActorContext(method, target string, body []byte, actor models.Actor) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(method, target, bytes.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	if actor != nil {
		c.Set(middleware.ContextActorKey, actor)
		c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: actor.ActorID(), Role: actor.Role()})
	}
	return c, rec
}

func TestClearanceHandlerSubmit(t *testing.T) {
	srv := &fakeClearanceSrv{submitResp: &dto.TransitionResponse{ClearanceID: "c-1", Outcome: "submitted", Status: models.ClearanceInProgress}}
	handler := NewClearanceHandler(srv, nil)

	c, rec := newActorContext(http.MethodPost, "/me/clearance/submit", nil, models.StudentActor{UserID: "s-1"})
	c.Request.Header.Set("User-Agent", "portal")
	handler.Submit(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "portal", srv.meta.UserAgent)
	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "submitted", envelope.Data["outcome"])
}

func TestClearanceHandlerSubmitMapsStateConflicts(t *testing.T) {
	srv := &fakeClearanceSrv{submitErr: appErrors.Clone(appErrors.ErrNoDocuments, "upload at least one document")}
	handler := NewClearanceHandler(srv, nil)

	c, rec := newActorContext(http.MethodPost, "/me/clearance/submit", nil, models.StudentActor{UserID: "s-1"})
	handler.Submit(c)

	assert.Equal(t, http.StatusConflict, rec.Code)
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, appErrors.ErrNoDocuments.Code, envelope.Error.Code)
}

func TestClearanceHandlerStudentRoutesRejectOfficers(t *testing.T) {
	handler := NewClearanceHandler(&fakeClearanceSrv{}, nil)

	c, rec := newActorContext(http.MethodGet, "/me/clearance", nil, models.OfficerActor{UserID: "o-1", DepartmentID: "d-1"})
	handler.Dashboard(c)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	c, rec = newActorContext(http.MethodGet, "/me/clearance", nil, nil)
	handler.Dashboard(c)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestClearanceHandlerDecideNormalisesDecision(t *testing.T) {
	srv := &fakeClearanceSrv{}
	handler := NewClearanceHandler(srv, nil)

	body, _ := json.Marshal(map[string]string{"decision": " Approved ", "comment": "all good"})
	c, rec := newActorContext(http.MethodPost, "/officer/clearances/c-9/decision", body, models.OfficerActor{UserID: "o-1", DepartmentID: "d-1"})
	c.Params = gin.Params{{Key: "id", Value: "c-9"}}
	handler.Decide(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "c-9", srv.decideID)
	assert.Equal(t, models.DecisionApproved, srv.decideReq.Decision)
	assert.Equal(t, "all good", srv.decideReq.Comment)
}

func TestClearanceHandlerDecideRequiresOfficer(t *testing.T) {
	handler := NewClearanceHandler(&fakeClearanceSrv{}, nil)

	body, _ := json.Marshal(map[string]string{"decision": "approved"})
	c, rec := newActorContext(http.MethodPost, "/officer/clearances/c-9/decision", body, models.AdminActor{UserID: "a-1"})
	handler.Decide(c)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestClearanceHandlerDetailPassesActor(t *testing.T) {
	srv := &fakeClearanceSrv{}
	handler := NewClearanceHandler(srv, nil)

	c, rec := newActorContext(http.MethodGet, "/admin/clearances/c-3", nil, models.AdminActor{UserID: "a-1"})
	c.Params = gin.Params{{Key: "id", Value: "c-3"}}
	handler.Detail(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.AdminActor{UserID: "a-1"}, srv.detailActor)
}

func TestClearanceHandlerCertificate(t *testing.T) {
	handler := NewClearanceHandler(&fakeClearanceSrv{}, fakeCertificateSrv{})

	c, rec := newActorContext(http.MethodGet, "/me/clearance/certificate", nil, models.StudentActor{UserID: "s-1"})
	handler.Certificate(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "clearance_certificate_20H12345.pdf")

	handler = NewClearanceHandler(&fakeClearanceSrv{}, fakeCertificateSrv{err: appErrors.ErrStaleState})
	c, rec = newActorContext(http.MethodGet, "/me/clearance/certificate", nil, models.StudentActor{UserID: "s-1"})
	handler.Certificate(c)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

type responseEnvelope struct {
	Data map[string]interface{} `json:"data"`
	Meta map[string]interface{} `json:"meta"`
}
