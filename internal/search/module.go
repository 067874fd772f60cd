package search

import (
	"context"

	apphttp "fractionax_search/internal/http"
	"fractionax_search/internal/pipeline"
	"fractionax_search/internal/search/handler"
	"fractionax_search/internal/search/repository"
	"fractionax_search/internal/search/service"
	"fractionax_search/platform/config"
	"fractionax_search/platform/logger"
	"fractionax_search/platform/validator"
)

// Module serves search box sessions over HTTP.
type Module struct {
	service *service.Service
	handler *handler.Handler
}

func NewModule(cfg config.PipelineConfig, deps pipeline.Deps, val *validator.Validator, log *logger.Logger) *Module {
	repo := repository.New()
	svc := service.New(repo, deps, pipeline.Options{
		Debounce:     cfg.GetSuggestDebounce(),
		MinChars:     cfg.GetSuggestMinChars(),
		HistoryLimit: cfg.GetChatHistoryLimit(),
	}, cfg.GetSessionIdleTTL(), log)
	h := handler.New(svc, val)

	return &Module{service: svc, handler: h}
}

// Run evicts idle sessions until ctx is done.
func (m *Module) Run(ctx context.Context) error {
	return m.service.RunJanitor(ctx)
}

func (m *Module) Name() string {
	return "search"
}

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.V1.Group("/sessions")
	m.handler.RegisterRoutes(group)
}

var (
	_ apphttp.Module = (*Module)(nil)
	_ apphttp.Runner = (*Module)(nil)
)
