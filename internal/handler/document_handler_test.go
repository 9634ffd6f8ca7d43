package handler

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
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

type fakeDocumentSrv struct {
	upload      service.DocumentUpload
	content     []byte
	deletedID   string
	downloadErr error
}

func (f *fakeDocumentSrv) Upload(_ context.Context, _ models.StudentActor, upload service.DocumentUpload, _ service.RequestMeta) (*dto.DocumentView, error) {
	f.upload = upload
	f.content, _ = io.ReadAll(upload.Content)
	return &dto.DocumentView{Document: models.Document{ID: "doc-1", Kind: upload.Kind}}, nil
}

func (f *fakeDocumentSrv) Delete(_ context.Context, _ models.StudentActor, id string, _ service.RequestMeta) error {
	f.deletedID = id
	return nil
}

func (f *fakeDocumentSrv) List(context.Context, models.StudentActor) ([]dto.DocumentView, error) {
	return []dto.DocumentView{}, nil
}

func (f *fakeDocumentSrv) Download(_ context.Context, id, token string) (*service.DocumentDownload, error) {
	if f.downloadErr != nil {
		return nil, f.downloadErr
	}
	return &service.DocumentDownload{
		Body:      io.NopCloser(bytes.NewReader([]byte("%PDF-1.4"))),
		Filename:  "receipt.pdf",
		MimeType:  "application/pdf",
		SizeBytes: 8,
	}, nil
}

func TestDocumentHandlerUploadMultipart(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := &fakeDocumentSrv{}
	handler := NewDocumentHandler(srv)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	require.NoError(t, writer.WriteField("kind", "fee_receipt"))
	part, err := writer.CreateFormFile("file", "receipt.pdf")
	require.NoError(t, err)
	_, _ = part.Write([]byte("%PDF-1.4 content"))
	require.NoError(t, writer.Close())

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/me/documents", &body)
	c.Request.Header.Set("Content-Type", writer.FormDataContentType())
	c.Set(middleware.ContextActorKey, models.StudentActor{UserID: "s-1"})

	handler.Upload(c)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, models.DocumentFeeReceipt, srv.upload.Kind)
	assert.Equal(t, "receipt.pdf", srv.upload.Filename)
	assert.Equal(t, int64(16), srv.upload.Size)
	assert.Equal(t, "%PDF-1.4 content", string(srv.content))
}

func TestDocumentHandlerUploadRequiresFile(t *testing.T) {
	handler := NewDocumentHandler(&fakeDocumentSrv{})

	c, rec := newActorContext(http.MethodPost, "/me/documents", nil, models.StudentActor{UserID: "s-1"})
	handler.Upload(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDocumentHandlerDelete(t *testing.T) {
	srv := &fakeDocumentSrv{}
	handler := NewDocumentHandler(srv)

	c, _ := newActorContext(http.MethodDelete, "/me/documents/doc-7", nil, models.StudentActor{UserID: "s-1"})
	c.Params = gin.Params{{Key: "id", Value: "doc-7"}}
	handler.Delete(c)

	assert.Equal(t, http.StatusNoContent, c.Writer.Status())
	assert.Equal(t, "doc-7", srv.deletedID)
}

func TestDocumentHandlerDownload(t *testing.T) {
	handler := NewDocumentHandler(&fakeDocumentSrv{})

	c, rec := newActorContext(http.MethodGet, "/documents/doc-1/download", nil, nil)
	c.Params = gin.Params{{Key: "id", Value: "doc-1"}}
	handler.Download(c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	c, rec = newActorContext(http.MethodGet, "/documents/doc-1/download?token=abc", nil, nil)
	c.Params = gin.Params{{Key: "id", Value: "doc-1"}}
	handler.Download(c)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "%PDF-1.4", rec.Body.String())
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "receipt.pdf")

	handler = NewDocumentHandler(&fakeDocumentSrv{downloadErr: appErrors.Clone(appErrors.ErrForbidden, "link expired")})
	c, rec = newActorContext(http.MethodGet, "/documents/doc-1/download?token=old", nil, nil)
	handler.Download(c)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
