// Package api exposes the HTTP interface: forecasts, schedules, mode control,
// sensor ingest and the global kill switch.
package api

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/sysintegral/aerator-go/internal/aeration"
	"github.com/sysintegral/aerator-go/internal/conf"
	"github.com/sysintegral/aerator-go/internal/datastore"
	"github.com/sysintegral/aerator-go/internal/logging"
	"github.com/sysintegral/aerator-go/internal/notification"
	"github.com/sysintegral/aerator-go/internal/weather"
)

// Controller manages the API routes and handlers
type Controller struct {
	Echo          *echo.Echo
	Group         *echo.Group
	DS            datastore.Interface
	Settings      *conf.Settings
	Weather       *weather.Service
	Projector     *aeration.Projector
	Currents      *aeration.CurrentStore
	Notifications *notification.Store

	apiLogger      *slog.Logger
	apiLevelVar    *slog.LevelVar
	apiLoggerClose func() error
}

// New creates the API controller and registers its routes.
func New(settings *conf.Settings, ds datastore.Interface, weatherSvc *weather.Service,
	projector *aeration.Projector, currents *aeration.CurrentStore, notifications *notification.Store) *Controller {

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	c := &Controller{
		Echo:          e,
		DS:            ds,
		Settings:      settings,
		Weather:       weatherSvc,
		Projector:     projector,
		Currents:      currents,
		Notifications: notifications,
		apiLevelVar:   new(slog.LevelVar),
	}

	var err error
	c.apiLogger, c.apiLoggerClose, err = logging.NewFileLogger("logs/api.log", "api", c.apiLevelVar)
	if err != nil {
		logging.Error("Failed to initialize API file logger", "error", err)
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: c.apiLevelVar})
		c.apiLogger = slog.New(fbHandler).With("service", "api")
		c.apiLoggerClose = func() error { return nil }
	}

	c.Group = e.Group("/api/v1")
	c.initRoutes()
	return c
}

func (c *Controller) initRoutes() {
	g := c.Group
	g.GET("/establishments/:id/forecast", c.GetForecast)
	g.GET("/establishments/:id/schedule", c.GetSchedule)
	g.GET("/establishments/:id/modified", c.GetModified)
	g.POST("/silos/:id/mode", c.SetSiloMode)
	g.POST("/sensors/current", c.IngestCurrent)
	g.POST("/sensors/readings", c.IngestReading)
	g.GET("/aerators/global", c.GetGlobalControl)
	g.POST("/aerators/global", c.SetGlobalControl)
	g.GET("/notifications/intelligent-disabled", c.DrainNotifications)
}

// Start begins serving on the configured port. Blocks until shutdown.
func (c *Controller) Start() error {
	addr := fmt.Sprintf(":%s", c.Settings.WebServer.Port)
	c.apiLogger.Info("Starting API server", "addr", addr)
	if err := c.Echo.Start(addr); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully and closes the API log file.
func (c *Controller) Shutdown(ctx context.Context) error {
	err := c.Echo.Shutdown(ctx)
	if c.apiLoggerClose != nil {
		if closeErr := c.apiLoggerClose(); closeErr != nil {
			logging.Error("Failed to close API log file", "error", closeErr)
		}
	}
	return err
}
