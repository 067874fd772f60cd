package maps

import (
	apphttp "fractionax_search/internal/http"
	"fractionax_search/platform/config"
	"fractionax_search/platform/logger"
)

// Module wires the maps address lookup HTTP routes.
type Module struct {
	service *Service
	handler *Handler
}

// NewModule builds the Nominatim-backed service. cache may be nil.
func NewModule(cfg config.MapsConfig, cache Cache, log *logger.Logger) *Module {
	svc := NewService(cfg, cache, log)
	h := NewHandler(svc)
	return &Module{service: svc, handler: h}
}

// Service exposes the lookup service to the search pipeline.
func (m *Module) Service() *Service {
	return m.service
}

func (m *Module) Name() string {
	return "maps"
}

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.V1.Group("/maps")
	group.GET("/address-lookup", m.handler.LookupAddress)
	group.GET("/places/:placeId", m.handler.PlaceDetails)
}

var _ apphttp.Module = (*Module)(nil)
