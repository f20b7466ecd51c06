// Package serve implements the server subcommand: it wires the datastore,
// the forecast cache, the decision engine and the HTTP API together.
package serve

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/sysintegral/aerator-go/internal/aeration"
	"github.com/sysintegral/aerator-go/internal/api"
	"github.com/sysintegral/aerator-go/internal/conf"
	"github.com/sysintegral/aerator-go/internal/datastore"
	"github.com/sysintegral/aerator-go/internal/logging"
	"github.com/sysintegral/aerator-go/internal/notification"
	"github.com/sysintegral/aerator-go/internal/observability/metrics"
	"github.com/sysintegral/aerator-go/internal/suncalc"
	"github.com/sysintegral/aerator-go/internal/weather"
)

const shutdownTimeout = 10 * time.Second

// Command creates the serve command.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the aeration decision server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(settings)
		},
	}
}

func run(settings *conf.Settings) error {
	logging.Info("Starting aerator server", "version", settings.Version)

	ds := datastore.New(settings)
	if ds == nil {
		return fmt.Errorf("no database output enabled in configuration")
	}
	if err := ds.Open(); err != nil {
		return fmt.Errorf("failed to open datastore: %w", err)
	}
	defer func() {
		if err := ds.Close(); err != nil {
			logging.Error("Failed to close datastore", "error", err)
		}
	}()

	registry := prometheus.NewRegistry()
	weatherMetrics, err := metrics.NewWeatherMetrics(registry)
	if err != nil {
		return fmt.Errorf("failed to register weather metrics: %w", err)
	}
	aerationMetrics, err := metrics.NewAerationMetrics(registry)
	if err != nil {
		return fmt.Errorf("failed to register aeration metrics: %w", err)
	}

	weatherSvc := weather.NewService(settings, weatherMetrics)
	establishments, err := ds.GetEstablishments()
	if err != nil {
		return fmt.Errorf("failed to load establishments: %w", err)
	}
	if err := weatherSvc.Start(establishments); err != nil {
		return fmt.Errorf("failed to start weather service: %w", err)
	}
	defer weatherSvc.Stop()

	notifications := notification.NewStore()
	currents := aeration.NewCurrentStore()
	sunResolver := suncalc.NewResolver(settings)
	engine := aeration.NewEngine(settings, ds, sunResolver, aerationMetrics, notifications)
	projector := aeration.NewProjector(settings, engine, weatherSvc, ds, currents)

	controller := api.New(settings, ds, weatherSvc, projector, currents, notifications)
	controller.Echo.GET("/metrics", api.MetricsHandler(registry))

	errChan := make(chan error, 1)
	go func() {
		errChan <- controller.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case sig := <-quit:
		logging.Info("Shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := controller.Shutdown(ctx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}
