package admin

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/diligence-portal/portal/internal/api/respond"
	"github.com/diligence-portal/portal/internal/db/repositories"
	"github.com/gin-gonic/gin"
)

// AuditHandlers serves the audit trail. Routes require read_audit.
type AuditHandlers struct {
	auditRepo *repositories.AuditRepository
}

// NewAuditHandlers creates a new AuditHandlers instance
func NewAuditHandlers(db *sql.DB) *AuditHandlers {
	return &AuditHandlers{auditRepo: repositories.NewAuditRepository(db)}
}

func optionalQuery(c *gin.Context, key string) *string {
	if v := c.Query(key); v != "" {
		return &v
	}
	return nil
}

func timeQuery(c *gin.Context, key string) (*time.Time, bool) {
	v := c.Query(key)
	if v == "" {
		return nil, true
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, false
	}
	return &t, true
}

// ListAuditEventsHandler lists audit events, newest first.
// GET /api/v1/audit-events?user_id=&event_type=&resource_type=&resource_id=&start_date=&end_date=&limit=&offset=
func (h *AuditHandlers) ListAuditEventsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, offset := respond.Pagination(c, 50, 500)

		start, ok := timeQuery(c, "start_date")
		if !ok {
			respond.BadRequest(c, "start_date must be RFC 3339")
			return
		}
		end, ok := timeQuery(c, "end_date")
		if !ok {
			respond.BadRequest(c, "end_date must be RFC 3339")
			return
		}

		filters := repositories.AuditFilters{
			UserID:       optionalQuery(c, "user_id"),
			EventType:    optionalQuery(c, "event_type"),
			ResourceType: optionalQuery(c, "resource_type"),
			ResourceID:   optionalQuery(c, "resource_id"),
			StartDate:    start,
			EndDate:      end,
		}

		events, total, err := h.auditRepo.List(c.Request.Context(), filters, limit, offset)
		if err != nil {
			respond.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"events": events,
			"pagination": gin.H{
				"total":  total,
				"limit":  limit,
				"offset": offset,
			},
		})
	}
}

// GetAuditEventHandler returns one audit event.
// GET /api/v1/audit-events/:id
func (h *AuditHandlers) GetAuditEventHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ev, err := h.auditRepo.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			respond.Error(c, err)
			return
		}
		if ev == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Audit event not found"})
			return
		}
		c.JSON(http.StatusOK, ev)
	}
}
