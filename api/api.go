package api

import (
	"context"
	"fmt"

	"github.com/labstack/echo-contrib/prometheus"
	"github.com/labstack/echo/v4"
	"github.com/pictoria-cloud/pictoria/api/rest/bind"
	"github.com/pictoria-cloud/pictoria/pkg/env"
)

var server *echo.Echo

// New builds the pictoria API with the provided services.
func New(services bind.Services) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// health
	e.GET("/health", Health)

	// metrics
	prometheus.NewPrometheus("pictoria", nil).Use(e)

	// REST
	bind.All(e.Group("/v1"), services)

	return e
}

// Start launches pictoria's API.
func Start(services bind.Services) error {
	server = New(services)
	return server.Start(fmt.Sprintf(":%v", env.Variables().Port))
}

// Shutdown stops the API server gracefully.
func Shutdown() error {
	if server == nil {
		return nil
	}
	return server.Shutdown(context.Background())
}
