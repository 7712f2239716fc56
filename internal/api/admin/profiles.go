// profiles.go implements the admin endpoints for inviting and editing portal
// users. Every route requires the manage_profiles capability.
package admin

import (
	"net/http"

	"github.com/diligence-portal/portal/internal/api/respond"
	"github.com/diligence-portal/portal/internal/db/repositories"
	"github.com/diligence-portal/portal/internal/middleware"
	"github.com/diligence-portal/portal/internal/services"
	"github.com/gin-gonic/gin"
)

// ProfileHandlers handles profile administration
type ProfileHandlers struct {
	profiles *services.ProfileService
}

// NewProfileHandlers creates a new ProfileHandlers instance
func NewProfileHandlers(profiles *services.ProfileService) *ProfileHandlers {
	return &ProfileHandlers{profiles: profiles}
}

// ListProfilesHandler lists profiles with optional filters.
// GET /api/v1/profiles?deal_id=&role=&search=&limit=&offset=
func (h *ProfileHandlers) ListProfilesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, offset := respond.Pagination(c, 50, 200)
		filters := repositories.ProfileFilters{
			DealID: c.Query("deal_id"),
			Role:   c.Query("role"),
			Search: c.Query("search"),
		}

		profiles, total, err := h.profiles.List(c.Request.Context(), middleware.SessionFrom(c), filters, limit, offset)
		if err != nil {
			respond.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"profiles": profiles,
			"pagination": gin.H{
				"total":  total,
				"limit":  limit,
				"offset": offset,
			},
		})
	}
}

// CreateProfileHandler invites a user.
// POST /api/v1/profiles
func (h *ProfileHandlers) CreateProfileHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var in services.ProfileInput
		if err := c.ShouldBindJSON(&in); err != nil {
			respond.BadRequest(c, "Invalid request body")
			return
		}
		profile, err := h.profiles.Create(c.Request.Context(), middleware.SessionFrom(c), in)
		if err != nil {
			respond.Error(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"profile": profile})
	}
}

// UpdateProfileHandler changes a user's name, role, organization or deal.
// PUT /api/v1/profiles/:id
func (h *ProfileHandlers) UpdateProfileHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var in services.ProfileInput
		if err := c.ShouldBindJSON(&in); err != nil {
			respond.BadRequest(c, "Invalid request body")
			return
		}
		profile, err := h.profiles.Update(c.Request.Context(), middleware.SessionFrom(c), c.Param("id"), in)
		if err != nil {
			respond.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"profile": profile})
	}
}
