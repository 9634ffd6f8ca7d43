package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/clearance-api/internal/dto"
	"github.com/noah-isme/clearance-api/internal/models"
	appErrors "github.com/noah-isme/clearance-api/pkg/errors"
	"github.com/noah-isme/clearance-api/pkg/storage"
)

type documentRepository interface {
	Create(ctx context.Context, exec sqlx.ExtContext, doc *models.Document) error
	FindByID(ctx context.Context, id string) (*models.Document, error)
	ListByClearance(ctx context.Context, clearanceID string) ([]models.Document, error)
	Delete(ctx context.Context, exec sqlx.ExtContext, id string) error
}

type documentClearanceLocker interface {
	GetForUpdate(ctx context.Context, tx sqlx.ExtContext, id string) (*models.Clearance, error)
	GetByStudentForUpdate(ctx context.Context, tx sqlx.ExtContext, studentID string) (*models.Clearance, error)
	FindByStudent(ctx context.Context, studentID string) (*models.Clearance, error)
}

type documentSigner interface {
	Generate(documentID, blobKey string) (string, time.Time, error)
	Parse(token string) (documentID, blobKey string, expiresAt time.Time, err error)
}

// DocumentServiceConfig holds validation parameters.
type DocumentServiceConfig struct {
	MaxFileSize  int64
	AllowedMIMEs []string
	APIPrefix    string
}

// DocumentUpload carries upload metadata and the content stream.
type DocumentUpload struct {
	Kind     models.DocumentKind
	Filename string
	Size     int64
	Content  io.ReadSeeker
}

// DocumentDownload bundles an open blob with its metadata for streaming.
type DocumentDownload struct {
	Body      io.ReadCloser
	Filename  string
	MimeType  string
	SizeBytes int64
}

// DocumentService attaches supporting documents to clearances.
type DocumentService struct {
	docs       documentRepository
	clearances documentClearanceLocker
	store      storage.BlobStore
	signer     documentSigner
	outbox     outboxWriter
	tx         txProvider
	metrics    *MetricsService
	cfg        DocumentServiceConfig
	allowed    map[string]struct{}
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewDocumentService constructs a DocumentService.
func NewDocumentService(docs documentRepository, clearances documentClearanceLocker, store storage.BlobStore, signer documentSigner, outbox outboxWriter, tx txProvider, metrics *MetricsService, cfg DocumentServiceConfig, validate *validator.Validate, logger *zap.Logger) *DocumentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = 5 * 1024 * 1024
	}
	if len(cfg.AllowedMIMEs) == 0 {
		cfg.AllowedMIMEs = []string{"application/pdf", "image/jpeg", "image/png"}
	}
	allowed := make(map[string]struct{}, len(cfg.AllowedMIMEs))
	for _, m := range cfg.AllowedMIMEs {
		allowed[strings.ToLower(strings.TrimSpace(m))] = struct{}{}
	}
	return &DocumentService{
		docs:       docs,
		clearances: clearances,
		store:      store,
		signer:     signer,
		outbox:     outbox,
		tx:         tx,
		metrics:    metrics,
		cfg:        cfg,
		allowed:    allowed,
		validator:  validate,
		logger:     logger,
	}
}

// Upload stores the blob and attaches it to the student's clearance. Documents
// can only change while the clearance is not_started or rejected.
func (s *DocumentService) Upload(ctx context.Context, actor models.StudentActor, upload DocumentUpload, meta RequestMeta) (*dto.DocumentView, error) {
	upload.Filename = sanitizeFilename(upload.Filename)
	if err := s.validator.Struct(dto.UploadDocumentRequest{Kind: upload.Kind, FileName: upload.Filename, Size: upload.Size}); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid document upload")
	}
	if !upload.Kind.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "kind must be fee_receipt, id_card or other")
	}
	if upload.Size > s.cfg.MaxFileSize {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file exceeds the %d byte limit", s.cfg.MaxFileSize))
	}
	mime, err := s.detectMime(upload)
	if err != nil {
		return nil, err
	}
	if _, ok := s.allowed[mime]; !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file type %s is not allowed", mime))
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	clearance, err := s.clearances.GetByStudentForUpdate(ctx, tx, actor.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "clearance not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock clearance")
	}
	if !clearance.DocumentsDeletable() {
		return nil, appErrors.Clone(appErrors.ErrStaleState, fmt.Sprintf("documents cannot be changed while the clearance is %s", clearance.Status))
	}

	doc := &models.Document{
		ID:          uuid.NewString(),
		ClearanceID: clearance.ID,
		Kind:        upload.Kind,
		FileName:    upload.Filename,
		MimeType:    mime,
		SizeBytes:   upload.Size,
		UploadedAt:  time.Now().UTC(),
	}
	doc.BlobKey = blobKey(clearance.ID, doc.ID, upload.Filename)

	if err := s.store.Put(ctx, doc.BlobKey, io.LimitReader(upload.Content, s.cfg.MaxFileSize+1), upload.Size, mime); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store document")
	}
	committed := false
	defer func() {
		if !committed {
			s.removeBlob(doc.BlobKey)
		}
	}()

	if err := s.docs.Create(ctx, tx, doc); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save document")
	}
	var batch outboxBatch
	batch.audit(auditIntent(actor.UserID, models.AuditActionDocumentUpload,
		fmt.Sprintf("uploaded %s (%s)", doc.FileName, doc.Kind), clearance.ID, meta))
	if err := batch.write(ctx, s.outbox, tx); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to queue document events")
	}
	if err := tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit document")
	}
	committed = true
	s.metrics.AddDocumentBytes(doc.SizeBytes)

	view, err := s.view(*doc)
	if err != nil {
		return nil, err
	}
	return &view, nil
}

// Delete removes a document from the student's own clearance.
func (s *DocumentService) Delete(ctx context.Context, actor models.StudentActor, documentID string, meta RequestMeta) error {
	doc, err := s.docs.FindByID(ctx, documentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "document not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load document")
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	clearance, err := s.clearances.GetForUpdate(ctx, tx, doc.ClearanceID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock clearance")
	}
	if clearance.StudentID != actor.UserID {
		return appErrors.Clone(appErrors.ErrNotFound, "document not found")
	}
	if !clearance.DocumentsDeletable() {
		return appErrors.Clone(appErrors.ErrStaleState, fmt.Sprintf("documents cannot be changed while the clearance is %s", clearance.Status))
	}
	if err := s.docs.Delete(ctx, tx, doc.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "document not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete document")
	}
	var batch outboxBatch
	batch.audit(auditIntent(actor.UserID, models.AuditActionDocumentDelete,
		fmt.Sprintf("deleted %s (%s)", doc.FileName, doc.Kind), clearance.ID, meta))
	if err := batch.write(ctx, s.outbox, tx); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to queue document events")
	}
	if err := tx.Commit(); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit document removal")
	}

	s.removeBlob(doc.BlobKey)
	return nil
}

// List returns the student's documents, newest first.
func (s *DocumentService) List(ctx context.Context, actor models.StudentActor) ([]dto.DocumentView, error) {
	clearance, err := s.clearances.FindByStudent(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "clearance not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load clearance")
	}
	return s.Views(ctx, clearance.ID)
}

// Views lists the documents of a clearance with signed download links.
func (s *DocumentService) Views(ctx context.Context, clearanceID string) ([]dto.DocumentView, error) {
	docs, err := s.docs.ListByClearance(ctx, clearanceID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list documents")
	}
	views := make([]dto.DocumentView, 0, len(docs))
	for _, doc := range docs {
		view, err := s.view(doc)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, nil
}

// Download validates a signed token and opens the blob.
func (s *DocumentService) Download(ctx context.Context, documentID, token string) (*DocumentDownload, error) {
	if s.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "download signer unavailable")
	}
	tokenDocID, tokenKey, _, err := s.signer.Parse(token)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired token")
	}
	if tokenDocID != documentID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "token does not match document")
	}
	doc, err := s.docs.FindByID(ctx, documentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "document not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load document")
	}
	if doc.BlobKey != tokenKey {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "token does not match document")
	}
	blob, err := s.store.Open(ctx, doc.BlobKey)
	if err != nil {
		if errors.Is(err, storage.ErrBlobNotFound) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "document content missing")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open document")
	}
	return &DocumentDownload{Body: blob.Body, Filename: doc.FileName, MimeType: doc.MimeType, SizeBytes: doc.SizeBytes}, nil
}

func (s *DocumentService) view(doc models.Document) (dto.DocumentView, error) {
	view := dto.DocumentView{Document: doc}
	if s.signer == nil {
		return view, nil
	}
	token, expiresAt, err := s.signer.Generate(doc.ID, doc.BlobKey)
	if err != nil {
		return view, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate download token")
	}
	base := strings.TrimRight(s.cfg.APIPrefix, "/")
	view.DownloadURL = fmt.Sprintf("%s/documents/%s/download?token=%s", base, doc.ID, token)
	view.ExpiresAt = expiresAt
	return view, nil
}

func (s *DocumentService) detectMime(upload DocumentUpload) (string, error) {
	if upload.Content == nil {
		return "", appErrors.Clone(appErrors.ErrValidation, "file reader missing")
	}
	header := make([]byte, 512)
	n, err := upload.Content.Read(header)
	if err != nil && err != io.EOF {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to inspect file")
	}
	if _, err := upload.Content.Seek(0, io.SeekStart); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reset upload stream")
	}
	if n == 0 {
		return "", appErrors.Clone(appErrors.ErrValidation, "empty file")
	}
	mime := http.DetectContentType(header[:n])
	if i := strings.Index(mime, ";"); i >= 0 {
		mime = mime[:i]
	}
	return strings.ToLower(strings.TrimSpace(mime)), nil
}

func (s *DocumentService) removeBlob(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.store.Delete(ctx, key); err != nil && !errors.Is(err, storage.ErrBlobNotFound) {
		s.logger.Warn("failed to remove document blob", zap.String("key", key), zap.Error(err))
	}
}

func blobKey(clearanceID, documentID, filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if len(ext) > 10 {
		ext = ""
	}
	return fmt.Sprintf("clearances/%s/%s%s", clearanceID, documentID, ext)
}

func sanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if name == "." || name == "/" {
		return ""
	}
	return name
}
