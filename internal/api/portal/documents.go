package portal

import (
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/diligence-portal/portal/internal/api/respond"
	"github.com/diligence-portal/portal/internal/middleware"
	"github.com/diligence-portal/portal/internal/services"
	"github.com/gin-gonic/gin"
)

// DocumentHandlers serves request documents.
type DocumentHandlers struct {
	documents *services.DocumentService
	// maxBody bounds the multipart body, including form overhead.
	maxBody int64
}

// NewDocumentHandlers creates the document handlers. maxUploadBytes is the
// largest file accepted.
func NewDocumentHandlers(documents *services.DocumentService, maxUploadBytes int64) *DocumentHandlers {
	return &DocumentHandlers{documents: documents, maxBody: maxUploadBytes + 1<<20}
}

// ListDocumentsHandler lists the documents attached to a request.
// GET /api/v1/requests/:id/documents
func (h *DocumentHandlers) ListDocumentsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		docs, err := h.documents.List(c.Request.Context(), middleware.SessionFrom(c), c.Param("id"))
		if err != nil {
			respond.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"documents": docs})
	}
}

// UploadDocumentHandler attaches a file to a request. The file is sent as
// the multipart field "file"; "is_sample=true" marks it as a sample.
// POST /api/v1/requests/:id/documents
func (h *DocumentHandlers) UploadDocumentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBody)

		header, err := c.FormFile("file")
		if err != nil {
			respond.BadRequest(c, "A file is required (multipart field \"file\")")
			return
		}
		file, err := header.Open()
		if err != nil {
			respond.BadRequest(c, "Failed to read uploaded file")
			return
		}
		defer file.Close()

		isSample, _ := strconv.ParseBool(c.PostForm("is_sample"))
		doc, err := h.documents.Upload(c.Request.Context(), middleware.SessionFrom(c), c.Param("id"), services.UploadInput{
			Filename:    header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Size:        header.Size,
			Body:        file,
			IsSample:    isSample,
		})
		if err != nil {
			respond.Error(c, err)
			return
		}
		c.JSON(http.StatusCreated, doc)
	}
}

// DownloadDocumentHandler redirects to a signed URL, or streams the object
// when the storage backend cannot sign one.
// GET /api/v1/documents/:id/download
func (h *DocumentHandlers) DownloadDocumentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		dl, err := h.documents.Open(c.Request.Context(), middleware.SessionFrom(c), c.Param("id"))
		if err != nil {
			respond.Error(c, err)
			return
		}

		if dl.URL != "" {
			c.Redirect(http.StatusFound, dl.URL)
			return
		}
		defer dl.Body.Close()

		doc := dl.Document
		c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": doc.Filename}))
		c.Header("Content-Type", doc.FileType)
		if doc.FileSize > 0 {
			c.Header("Content-Length", strconv.FormatInt(doc.FileSize, 10))
		}
		c.Status(http.StatusOK)
		if _, err := io.Copy(c.Writer, dl.Body); err != nil {
			slog.Warn("document download interrupted", "document_id", doc.ID, "error", err)
		}
	}
}

// DeleteDocumentHandler removes a document.
// DELETE /api/v1/documents/:id
func (h *DocumentHandlers) DeleteDocumentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := h.documents.Delete(c.Request.Context(), middleware.SessionFrom(c), c.Param("id")); err != nil {
			respond.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Document deleted"})
	}
}
