package portal

import (
	"net/http"

	"github.com/diligence-portal/portal/internal/api/respond"
	"github.com/diligence-portal/portal/internal/db/models"
	"github.com/diligence-portal/portal/internal/db/repositories"
	"github.com/diligence-portal/portal/internal/middleware"
	"github.com/diligence-portal/portal/internal/services"
	"github.com/diligence-portal/portal/internal/validation"
	"github.com/gin-gonic/gin"
)

// maxBulkIDs bounds a single bulk request.
const maxBulkIDs = 500

// RequestHandlers serves diligence requests, their assignment and status,
// and text responses.
type RequestHandlers struct {
	requests  *services.RequestService
	responses *services.ResponseService
	profiles  *services.ProfileService
}

// NewRequestHandlers creates the request handlers
func NewRequestHandlers(requests *services.RequestService, responses *services.ResponseService, profiles *services.ProfileService) *RequestHandlers {
	return &RequestHandlers{requests: requests, responses: responses, profiles: profiles}
}

// ListRequestsHandler lists a deal's requests.
// GET /api/v1/deals/:id/requests?category=&status=&priority=&assigned_to=&search=&limit=&offset=
func (h *RequestHandlers) ListRequestsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, offset := respond.Pagination(c, 100, 500)
		filters := repositories.RequestFilters{
			DealID:     c.Param("id"),
			Category:   c.Query("category"),
			Status:     c.Query("status"),
			Priority:   c.Query("priority"),
			AssignedTo: c.Query("assigned_to"),
			Search:     validation.SanitizeText(c.Query("search")),
		}

		requests, total, err := h.requests.List(c.Request.Context(), middleware.SessionFrom(c), filters, limit, offset)
		if err != nil {
			respond.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"requests": requests,
			"pagination": gin.H{
				"total":  total,
				"limit":  limit,
				"offset": offset,
			},
		})
	}
}

// AssigneesHandler lists the profiles a deal's requests can be assigned to.
// GET /api/v1/deals/:id/assignees
func (h *RequestHandlers) AssigneesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		profiles, err := h.profiles.Assignable(c.Request.Context(), middleware.SessionFrom(c), c.Param("id"))
		if err != nil {
			respond.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"profiles": profiles})
	}
}

// CreateRequestHandler adds a request to a deal.
// POST /api/v1/deals/:id/requests
func (h *RequestHandlers) CreateRequestHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var in services.RequestInput
		if err := c.ShouldBindJSON(&in); err != nil {
			respond.BadRequest(c, "Invalid request body")
			return
		}
		req, err := h.requests.Create(c.Request.Context(), middleware.SessionFrom(c), c.Param("id"), in)
		if err != nil {
			respond.Error(c, err)
			return
		}
		c.JSON(http.StatusCreated, req)
	}
}

// GetRequestHandler returns a request with its documents and response.
// ?edit=true returns the editable view instead and requires manage_requests.
// GET /api/v1/requests/:id
func (h *RequestHandlers) GetRequestHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		s := middleware.SessionFrom(c)
		if c.Query("edit") == "true" {
			req, err := h.requests.GetForEdit(c.Request.Context(), s, c.Param("id"))
			if err != nil {
				respond.Error(c, err)
				return
			}
			c.JSON(http.StatusOK, req)
			return
		}

		detail, err := h.requests.Get(c.Request.Context(), s, c.Param("id"))
		if err != nil {
			respond.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, detail)
	}
}

// UpdateRequestHandler edits a request's content.
// PUT /api/v1/requests/:id
func (h *RequestHandlers) UpdateRequestHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var in services.RequestInput
		if err := c.ShouldBindJSON(&in); err != nil {
			respond.BadRequest(c, "Invalid request body")
			return
		}
		req, err := h.requests.Update(c.Request.Context(), middleware.SessionFrom(c), c.Param("id"), in)
		if err != nil {
			respond.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, req)
	}
}

// DeleteRequestHandler deletes a request with its documents.
// DELETE /api/v1/requests/:id
func (h *RequestHandlers) DeleteRequestHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := h.requests.Delete(c.Request.Context(), middleware.SessionFrom(c), c.Param("id")); err != nil {
			respond.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Request deleted"})
	}
}

type assignRequest struct {
	// UserID is the assignee; null or omitted clears the assignment.
	UserID *string `json:"user_id"`
}

// AssignRequestHandler sets or clears the assignee of one request.
// PUT /api/v1/requests/:id/assign
func (h *RequestHandlers) AssignRequestHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var body assignRequest
		if err := c.ShouldBindJSON(&body); err != nil {
			respond.BadRequest(c, "Invalid request body")
			return
		}
		result, err := h.requests.Assign(c.Request.Context(), middleware.SessionFrom(c), []string{c.Param("id")}, body.UserID)
		if err != nil {
			respond.Error(c, err)
			return
		}
		if !result.Success() {
			writeSingleFailure(c, result)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "result": result})
	}
}

func writeSingleFailure(c *gin.Context, result services.BatchResult) {
	if len(result.Failed) == 1 && result.Failed[0].Reason == "not found" {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update request"})
}

type bulkAssignRequest struct {
	RequestIDs []string `json:"request_ids" binding:"required"`
	UserID     *string  `json:"user_id"`
}

// BulkAssignHandler sets or clears the assignee of many requests. Rows are
// updated independently and reported one by one.
// POST /api/v1/requests/bulk/assign
func (h *RequestHandlers) BulkAssignHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var body bulkAssignRequest
		if err := c.ShouldBindJSON(&body); err != nil {
			respond.BadRequest(c, "request_ids is required")
			return
		}
		if len(body.RequestIDs) > maxBulkIDs {
			respond.BadRequest(c, "too many request ids")
			return
		}
		result, err := h.requests.Assign(c.Request.Context(), middleware.SessionFrom(c), body.RequestIDs, body.UserID)
		if err != nil {
			respond.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": result.Success(), "result": result})
	}
}

type bulkStatusRequest struct {
	RequestIDs []string             `json:"request_ids" binding:"required"`
	Status     models.RequestStatus `json:"status" binding:"required"`
}

// BulkStatusHandler moves many requests to one status.
// POST /api/v1/requests/bulk/status
func (h *RequestHandlers) BulkStatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var body bulkStatusRequest
		if err := c.ShouldBindJSON(&body); err != nil {
			respond.BadRequest(c, "request_ids and status are required")
			return
		}
		if len(body.RequestIDs) > maxBulkIDs {
			respond.BadRequest(c, "too many request ids")
			return
		}
		result, err := h.requests.BulkSetStatus(c.Request.Context(), middleware.SessionFrom(c), body.RequestIDs, body.Status)
		if err != nil {
			respond.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": result.Success(), "result": result})
	}
}

type responseRequest struct {
	Text string `json:"response_text"`
	// Kind is the questionnaire answer type: text, email, number or yes_no.
	Kind validation.InputKind `json:"kind"`
}

// SubmitResponseHandler stores the text answer to a request.
// PUT /api/v1/requests/:id/response
func (h *RequestHandlers) SubmitResponseHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var body responseRequest
		if err := c.ShouldBindJSON(&body); err != nil {
			respond.BadRequest(c, "Invalid request body")
			return
		}
		resp, err := h.responses.Submit(c.Request.Context(), middleware.SessionFrom(c), c.Param("id"), body.Text, body.Kind)
		if err != nil {
			respond.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}
