package maps

import (
	"net/http"

	"fractionax_search/platform/httpkit"

	"github.com/gin-gonic/gin"
)

// Handler exposes the maps lookup endpoints.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// LookupAddress handles GET /api/v1/maps/address-lookup?q=...
func (h *Handler) LookupAddress(c *gin.Context) {
	var req LookupRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "query 'q' is required (min 3 chars)", nil)
		return
	}

	results, err := h.svc.Autocomplete(c.Request.Context(), req.Query)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, results)
}

// PlaceDetails handles GET /api/v1/maps/places/:placeId
func (h *Handler) PlaceDetails(c *gin.Context) {
	details, err := h.svc.PlaceDetails(c.Request.Context(), c.Param("placeId"))
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, details)
}
