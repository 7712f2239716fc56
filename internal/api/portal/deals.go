package portal

import (
	"net/http"

	"github.com/diligence-portal/portal/internal/api/respond"
	"github.com/diligence-portal/portal/internal/middleware"
	"github.com/diligence-portal/portal/internal/services"
	"github.com/gin-gonic/gin"
)

// DealHandlers serves deals, their statistics and template seeding.
type DealHandlers struct {
	deals     *services.DealService
	stats     *services.StatsService
	templates *services.TemplateService
}

// NewDealHandlers creates the deal handlers
func NewDealHandlers(deals *services.DealService, stats *services.StatsService, templates *services.TemplateService) *DealHandlers {
	return &DealHandlers{deals: deals, stats: stats, templates: templates}
}

// ListDealsHandler lists the deals visible to the caller.
// GET /api/v1/deals
func (h *DealHandlers) ListDealsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		deals, err := h.deals.List(c.Request.Context(), middleware.SessionFrom(c))
		if err != nil {
			respond.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"deals": deals})
	}
}

// GetDealHandler returns one deal.
// GET /api/v1/deals/:id
func (h *DealHandlers) GetDealHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		deal, err := h.deals.Get(c.Request.Context(), middleware.SessionFrom(c), c.Param("id"))
		if err != nil {
			respond.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, deal)
	}
}

// CreateDealHandler creates a deal.
// POST /api/v1/deals
func (h *DealHandlers) CreateDealHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var in services.DealInput
		if err := c.ShouldBindJSON(&in); err != nil {
			respond.BadRequest(c, "Invalid request body")
			return
		}
		deal, err := h.deals.Create(c.Request.Context(), middleware.SessionFrom(c), in)
		if err != nil {
			respond.Error(c, err)
			return
		}
		c.JSON(http.StatusCreated, deal)
	}
}

// UpdateDealHandler renames a deal.
// PUT /api/v1/deals/:id
func (h *DealHandlers) UpdateDealHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var in services.DealInput
		if err := c.ShouldBindJSON(&in); err != nil {
			respond.BadRequest(c, "Invalid request body")
			return
		}
		deal, err := h.deals.Update(c.Request.Context(), middleware.SessionFrom(c), c.Param("id"), in)
		if err != nil {
			respond.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, deal)
	}
}

// DealStatsHandler returns completion statistics for one deal.
// GET /api/v1/deals/:id/stats
func (h *DealHandlers) DealStatsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		stats, err := h.stats.DealStats(c.Request.Context(), middleware.SessionFrom(c), c.Param("id"))
		if err != nil {
			respond.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, stats)
	}
}

// PortfolioStatsHandler returns completion statistics for every deal.
// GET /api/v1/stats
func (h *DealHandlers) PortfolioStatsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		stats, err := h.stats.PortfolioStats(c.Request.Context(), middleware.SessionFrom(c))
		if err != nil {
			respond.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"deals": stats})
	}
}

// ListTemplatesHandler returns the request template catalog.
// GET /api/v1/templates
func (h *DealHandlers) ListTemplatesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		items, err := h.templates.ListItems(c.Request.Context())
		if err != nil {
			respond.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"templates": items})
	}
}

type applyTemplateRequest struct {
	ForceRefresh bool   `json:"force_refresh"`
	Notes        string `json:"notes"`
}

// ApplyTemplateHandler seeds a deal with the template catalog. The route is
// guarded by the manage_requests capability.
// POST /api/v1/deals/:id/apply-template
func (h *DealHandlers) ApplyTemplateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req applyTemplateRequest
		if c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				respond.BadRequest(c, "Invalid request body")
				return
			}
		}

		s := middleware.SessionFrom(c)
		result, err := h.templates.ApplyTemplateToDeal(c.Request.Context(), c.Param("id"), s.UserID, services.ApplyOptions{
			ForceRefresh: req.ForceRefresh,
			Notes:        req.Notes,
		})
		if err != nil {
			respond.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// TemplateApplicationsHandler lists the times a deal was seeded.
// GET /api/v1/deals/:id/template-applications
func (h *DealHandlers) TemplateApplicationsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		apps, err := h.templates.ListApplications(c.Request.Context(), c.Param("id"))
		if err != nil {
			respond.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"applications": apps})
	}
}
