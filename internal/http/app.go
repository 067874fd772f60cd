// Package http holds the contracts between the composition root, the router
// and the domain modules.
package http

import (
	"context"
	"sort"

	"fractionax_search/platform/config"
	"fractionax_search/platform/logger"

	"github.com/gin-gonic/gin"
)

// Module is a domain package that serves routes under /api/v1.
type Module interface {
	Name() string
	RegisterRoutes(ctx *RouterContext)
}

// Runner is implemented by modules with background work, such as evicting
// idle sessions. Run blocks until ctx is done.
type Runner interface {
	Run(ctx context.Context) error
}

// RouterContext is what a module may touch while registering routes.
type RouterContext struct {
	V1     *gin.RouterGroup
	Config config.HTTPConfig
	Logger *logger.Logger
}

// HealthChecker reports whether a dependency is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// App is assembled by main and handed to the router.
type App struct {
	Config  config.HTTPConfig
	Logger  *logger.Logger
	Checks  map[string]HealthChecker
	Modules []Module
}

// CheckNames returns the registered health check names in stable order.
func (a *App) CheckNames() []string {
	names := make([]string, 0, len(a.Checks))
	for name := range a.Checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Runners returns the modules that need a background goroutine.
func (a *App) Runners() []Runner {
	var out []Runner
	for _, m := range a.Modules {
		if r, ok := m.(Runner); ok {
			out = append(out, r)
		}
	}
	return out
}
