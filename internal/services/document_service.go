package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/diligence-portal/portal/internal/audit"
	"github.com/diligence-portal/portal/internal/auth"
	"github.com/diligence-portal/portal/internal/db/models"
	"github.com/diligence-portal/portal/internal/storage"
	"github.com/diligence-portal/portal/internal/telemetry"
	"github.com/diligence-portal/portal/internal/validation"
)

// UploadInput describes one file being attached to a request.
type UploadInput struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
	IsSample    bool
}

// Download is either a signed URL or an open object stream. Exactly one of
// URL and Body is set; the caller closes Body.
type Download struct {
	Document *models.RequestDocument
	URL      string
	Body     io.ReadCloser
}

// DocumentService stores request documents. Uploads and deletes span object
// storage and the database; partial failures leave an entry in the cleanup
// queue rather than an unreachable object or a dangling row.
type DocumentService struct {
	documents DocumentStore
	requests  RequestStore
	cleanup   CleanupQueue
	storage   storage.Storage
	audit     *audit.Logger
	maxSize   int64
	urlTTL    time.Duration
}

// NewDocumentService creates a new document service. maxSize is the upload
// limit in bytes; urlTTL is the lifetime of signed download URLs.
func NewDocumentService(
	documents DocumentStore,
	requests RequestStore,
	cleanup CleanupQueue,
	storageBackend storage.Storage,
	auditLogger *audit.Logger,
	maxSize int64,
	urlTTL time.Duration,
) *DocumentService {
	if urlTTL <= 0 {
		urlTTL = 15 * time.Minute
	}
	return &DocumentService{
		documents: documents,
		requests:  requests,
		cleanup:   cleanup,
		storage:   storageBackend,
		audit:     auditLogger,
		maxSize:   maxSize,
		urlTTL:    urlTTL,
	}
}

// loadRequest fetches a request the actor may see.
func (s *DocumentService) loadRequest(ctx context.Context, actor *auth.Session, requestID string) (*models.DiligenceRequest, error) {
	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to load request: %w", err)
	}
	if req == nil {
		return nil, ErrNotFound
	}
	if err := requireDeal(actor, req.DealID); err != nil {
		return nil, err
	}
	return req, nil
}

// List returns the documents attached to a request.
func (s *DocumentService) List(ctx context.Context, actor *auth.Session, requestID string) ([]*models.RequestDocument, error) {
	if _, err := s.loadRequest(ctx, actor, requestID); err != nil {
		return nil, err
	}
	return s.documents.ListByRequest(ctx, requestID)
}

// Upload stores the object first and then inserts the row. When the insert
// fails the object is removed again, and queued for cleanup if that fails
// too. A seller's upload moves a pending request to submitted.
func (s *DocumentService) Upload(ctx context.Context, actor *auth.Session, requestID string, in UploadInput) (*models.RequestDocument, error) {
	if err := requireCap(actor, auth.CapUploadDocuments); err != nil {
		return nil, err
	}
	if err := validation.ValidateFileName(in.Filename); err != nil {
		return nil, invalidf("%s", err.Error())
	}
	if in.Size <= 0 {
		return nil, invalidf("file is empty")
	}
	if s.maxSize > 0 && in.Size > s.maxSize {
		return nil, invalidf("file exceeds the %d MB upload limit", s.maxSize>>20)
	}

	req, err := s.loadRequest(ctx, actor, requestID)
	if err != nil {
		return nil, err
	}
	if !req.AllowFileUpload {
		return nil, invalidf("this request does not accept file uploads")
	}

	contentType := in.ContentType
	if contentType == "" || contentType == "application/octet-stream" {
		if guessed := mime.TypeByExtension(filepath.Ext(in.Filename)); guessed != "" {
			contentType = guessed
		}
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	docID := uuid.New().String()
	objectPath := storage.ObjectPath(req.DealID, req.ID, docID, in.Filename)

	stored, err := s.storage.Upload(ctx, objectPath, in.Body, in.Size, contentType)
	if err != nil {
		return nil, fmt.Errorf("failed to store document: %w", err)
	}

	doc := &models.RequestDocument{
		ID:          docID,
		RequestID:   req.ID,
		Filename:    in.Filename,
		StoragePath: stored.Path,
		FileType:    contentType,
		FileSize:    stored.Size,
		Checksum:    optional(stored.Checksum),
		IsSample:    in.IsSample,
		UploadedBy:  actorRef(actor),
	}
	if err := s.documents.Create(ctx, doc); err != nil {
		s.discardObject(ctx, stored.Path)
		return nil, fmt.Errorf("failed to record document: %w", err)
	}

	telemetry.DocumentsUploadedTotal.Inc()
	telemetry.DocumentBytesUploaded.Add(float64(stored.Size))

	submitted := markSubmitted(ctx, s.requests, actor, req.ID)
	s.audit.Log(ctx, audit.Event{
		Type:         audit.EventFileUpload,
		UserID:       actorID(actor),
		ResourceType: "document",
		ResourceID:   doc.ID,
		Details: map[string]any{
			"request_id":     req.ID,
			"deal_id":        req.DealID,
			"filename":       doc.Filename,
			"file_size":      doc.FileSize,
			"auto_submitted": submitted,
		},
	})
	return doc, nil
}

// discardObject removes an object whose row was never written.
func (s *DocumentService) discardObject(ctx context.Context, objectPath string) {
	err := s.storage.Delete(ctx, objectPath)
	if err == nil {
		return
	}
	slog.Error("failed to remove orphaned document object", "path", objectPath, "error", err)
	if qerr := s.cleanup.Enqueue(ctx, objectPath, models.CleanupOrphanedUpload, err.Error()); qerr != nil {
		slog.Error("failed to queue orphaned document object", "path", objectPath, "error", qerr)
	}
}

// Open returns a way to fetch a document: a signed URL when the backend
// supports one, otherwise the object stream.
func (s *DocumentService) Open(ctx context.Context, actor *auth.Session, documentID string) (*Download, error) {
	if err := requireCap(actor, auth.CapDownloadDocuments); err != nil {
		return nil, err
	}
	doc, err := s.documents.GetByID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load document: %w", err)
	}
	if doc == nil {
		return nil, ErrNotFound
	}
	if _, err := s.loadRequest(ctx, actor, doc.RequestID); err != nil {
		return nil, err
	}

	dl := &Download{Document: doc}
	url, err := s.storage.GetURL(ctx, doc.StoragePath, s.urlTTL)
	switch {
	case err == nil:
		dl.URL = url
	case errors.Is(err, storage.ErrSignedURLUnsupported):
		body, err := s.storage.Download(ctx, doc.StoragePath)
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("failed to open document: %w", err)
		}
		dl.Body = body
	case errors.Is(err, storage.ErrNotFound):
		return nil, ErrNotFound
	default:
		return nil, fmt.Errorf("failed to sign document url: %w", err)
	}

	s.audit.Log(ctx, audit.Event{
		Type:         audit.EventFileDownload,
		UserID:       actorID(actor),
		ResourceType: "document",
		ResourceID:   doc.ID,
		Details:      map[string]any{"request_id": doc.RequestID, "filename": doc.Filename},
	})
	return dl, nil
}

// Delete removes the object first and then the row. If the object cannot be
// removed nothing changes. If the row cannot be removed its path is queued
// so the reconciler can drop it later. Sellers may delete only until the
// request is approved.
func (s *DocumentService) Delete(ctx context.Context, actor *auth.Session, documentID string) error {
	if err := requireCap(actor, auth.CapDeleteDocuments); err != nil {
		return err
	}
	doc, err := s.documents.GetByID(ctx, documentID)
	if err != nil {
		return fmt.Errorf("failed to load document: %w", err)
	}
	if doc == nil {
		return ErrNotFound
	}
	req, err := s.loadRequest(ctx, actor, doc.RequestID)
	if err != nil {
		return err
	}
	if !auth.CanDeleteDocument(actor.EffectiveRole(), req.Status == models.StatusApproved) {
		return ErrForbidden
	}

	if err := s.storage.Delete(ctx, doc.StoragePath); err != nil {
		telemetry.DocumentsDeletedTotal.WithLabelValues("storage_failed").Inc()
		return fmt.Errorf("failed to delete document object: %w", err)
	}

	if _, err := s.documents.Delete(ctx, doc.ID); err != nil {
		telemetry.DocumentsDeletedTotal.WithLabelValues("row_failed").Inc()
		if qerr := s.cleanup.Enqueue(ctx, doc.StoragePath, models.CleanupRowDeleteFailed, err.Error()); qerr != nil {
			slog.Error("failed to queue document row for cleanup",
				"document_id", doc.ID, "error", qerr)
		}
		return fmt.Errorf("failed to delete document row: %w", err)
	}
	telemetry.DocumentsDeletedTotal.WithLabelValues("ok").Inc()

	s.audit.Log(ctx, audit.Event{
		Type:         audit.EventFileDelete,
		UserID:       actorID(actor),
		ResourceType: "document",
		ResourceID:   doc.ID,
		Details:      map[string]any{"request_id": doc.RequestID, "filename": doc.Filename},
	})
	return nil
}
