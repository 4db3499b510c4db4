package router

import (
	"github.com/labstack/echo/v4"

	"github.com/octobees/aleo-sync/internal/config"
	"github.com/octobees/aleo-sync/internal/handler"
	middlewarepkg "github.com/octobees/aleo-sync/internal/middleware"
)

// LookupPath is the route of the NIP lookup endpoint.
const LookupPath = "/api"

// Handlers aggregates HTTP handlers used by the router.
type Handlers struct {
	Health    *handler.HealthHandler
	Companies *handler.CompaniesHandler
	Lookup    *handler.LookupHandler
}

// Register wires all HTTP routes for the API. Every data route requires the
// X-API-Key header; only the lookup route is rate limited because each call
// drives a browser session.
func Register(e *echo.Echo, cfg config.ServerConfig, handlers Handlers) {
	e.GET("/healthz", handlers.Health.Check)

	secured := e.Group("", middlewarepkg.APIKey(cfg.APIKey))
	if handlers.Companies != nil {
		secured.GET("/companies", handlers.Companies.List)
	}
	if handlers.Lookup != nil {
		secured.GET(LookupPath, handlers.Lookup.Lookup, middlewarepkg.PathRateLimiter(LookupPath, cfg.RateLimitLookup))
	}
}
