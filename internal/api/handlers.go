package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sysintegral/aerator-go/internal/datastore"
	"github.com/sysintegral/aerator-go/internal/errors"
)

func parseIDParam(ctx echo.Context, name string) (uint, error) {
	id, err := strconv.ParseUint(ctx.Param(name), 10, 32)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return uint(id), nil
}

func isNotFound(err error) bool {
	var enhanced *errors.EnhancedError
	return errors.As(err, &enhanced) && enhanced.Category == errors.CategoryNotFound
}

// GetForecast returns the cached hourly forecast for an establishment.
func (c *Controller) GetForecast(ctx echo.Context) error {
	id, err := parseIDParam(ctx, "id")
	if err != nil {
		return err
	}
	est, err := c.DS.GetEstablishment(id)
	if err != nil {
		if isNotFound(err) {
			return echo.NewHTTPError(http.StatusNotFound, "establishment not found")
		}
		return err
	}

	forecast := c.Weather.GetOrFetch(est)
	if forecast == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "no forecast available")
	}
	return ctx.JSON(http.StatusOK, echo.Map{
		"establishment_id": est.ID,
		"forecast":         forecast,
	})
}

// GetSchedule returns the 24-hour operating schedule for an establishment and
// clears the silos' dirty bits: a device that fetched the schedule is up to date.
func (c *Controller) GetSchedule(ctx echo.Context) error {
	id, err := parseIDParam(ctx, "id")
	if err != nil {
		return err
	}
	est, err := c.DS.GetEstablishment(id)
	if err != nil {
		if isNotFound(err) {
			return echo.NewHTTPError(http.StatusNotFound, "establishment not found")
		}
		return err
	}

	schedule, err := c.Projector.ProjectSchedule(est)
	if err != nil {
		return err
	}
	if err := c.DS.ClearModified(est.ID); err != nil {
		c.apiLogger.Error("Failed to clear modified flags after schedule fetch",
			"establishment_id", est.ID, "error", err)
	}
	return ctx.JSON(http.StatusOK, schedule)
}

// GetModified is the cheap poll for field devices: has anything changed since
// the last schedule fetch?
func (c *Controller) GetModified(ctx echo.Context) error {
	id, err := parseIDParam(ctx, "id")
	if err != nil {
		return err
	}
	modified, err := c.DS.AnyModified(id)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{"modified": modified})
}

type modeRequest struct {
	Mode string `json:"mode"`
}

// SetSiloMode changes a silo's manual mode. Entering intelligent mode lazily
// creates and activates its aeration config; leaving it deactivates the config.
func (c *Controller) SetSiloMode(ctx echo.Context) error {
	id, err := parseIDParam(ctx, "id")
	if err != nil {
		return err
	}

	var req modeRequest
	if err := ctx.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	switch req.Mode {
	case datastore.ModeAuto, datastore.ModeOn, datastore.ModeOff, datastore.ModeIntelligent:
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "unknown mode "+req.Mode)
	}

	silo, err := c.DS.GetSilo(id)
	if err != nil {
		if isNotFound(err) {
			return echo.NewHTTPError(http.StatusNotFound, "silo not found")
		}
		return err
	}

	if req.Mode == datastore.ModeIntelligent {
		config, err := c.DS.GetAerationConfig(silo.ID)
		if err != nil {
			return err
		}
		if config == nil {
			config = &datastore.AerationConfig{
				SiloID:          silo.ID,
				GrainType:       datastore.GrainCorn,
				TargetEMC:       14.0,
				DeltaEMCMin:     1.0,
				DeltaTempMin:    5.0,
				DeltaTempHyst:   2.0,
				MinOnTime:       30,
				MinOffTime:      30,
				RainProtect:     true,
				AchieveHumidity: true,
			}
		}
		config.Active = true
		if err := c.DS.SaveAerationConfig(config); err != nil {
			return err
		}
	} else if silo.ManualMode == datastore.ModeIntelligent {
		config, err := c.DS.GetAerationConfig(silo.ID)
		if err != nil {
			return err
		}
		if config != nil && config.Active {
			config.Active = false
			if err := c.DS.SaveAerationConfig(config); err != nil {
				return err
			}
		}
	}

	if err := c.DS.SetManualMode(silo.ID, req.Mode); err != nil {
		return err
	}

	c.apiLogger.Info("Silo mode changed",
		"silo_id", silo.ID, "from", silo.ManualMode, "to", req.Mode)
	return ctx.JSON(http.StatusOK, echo.Map{"silo_id": silo.ID, "mode": req.Mode})
}

type currentIngest struct {
	SensorID string  `json:"sensor_id"`
	Amps     float64 `json:"amps"`
}

// IngestCurrent records a live amperage reading from a current sensor.
func (c *Controller) IngestCurrent(ctx echo.Context) error {
	var req currentIngest
	if err := ctx.Bind(&req); err != nil || req.SensorID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "sensor_id is required")
	}
	c.Currents.Set(req.SensorID, req.Amps)
	return ctx.NoContent(http.StatusNoContent)
}

type readingIngest struct {
	SensorID    uint    `json:"sensor_id"`
	Temperature float64 `json:"temperature"`
	Timestamp   string  `json:"timestamp"` // RFC3339, defaults to now
}

// IngestReading stores a grain temperature sample.
func (c *Controller) IngestReading(ctx echo.Context) error {
	var req readingIngest
	if err := ctx.Bind(&req); err != nil || req.SensorID == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "sensor_id is required")
	}

	timestamp := time.Now()
	if req.Timestamp != "" {
		parsed, err := time.Parse(time.RFC3339, req.Timestamp)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "timestamp must be RFC3339")
		}
		timestamp = parsed
	}

	reading := &datastore.TemperatureReading{
		SensorID:    req.SensorID,
		Temperature: req.Temperature,
		Timestamp:   timestamp,
	}
	if err := c.DS.SaveTemperatureReading(reading); err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, echo.Map{"id": reading.ID})
}

// GetGlobalControl returns the administrator kill-switch state.
func (c *Controller) GetGlobalControl(ctx echo.Context) error {
	enabled, err := c.DS.GlobalAeratorEnabled()
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{"enabled": enabled})
}

type globalControlRequest struct {
	Enabled bool `json:"enabled"`
}

// SetGlobalControl flips the kill switch and marks every establishment's silos
// modified so field devices re-poll their schedules.
func (c *Controller) SetGlobalControl(ctx echo.Context) error {
	var req globalControlRequest
	if err := ctx.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if err := c.DS.SetGlobalAeratorEnabled(req.Enabled); err != nil {
		return err
	}

	establishments, err := c.DS.GetEstablishments()
	if err != nil {
		return err
	}
	for i := range establishments {
		if err := c.DS.MarkEstablishmentModified(establishments[i].ID); err != nil {
			c.apiLogger.Error("Failed to mark establishment modified",
				"establishment_id", establishments[i].ID, "error", err)
		}
	}

	c.apiLogger.Info("Global aerator control changed", "enabled", req.Enabled)
	return ctx.JSON(http.StatusOK, echo.Map{"enabled": req.Enabled})
}

// DrainNotifications returns and clears the buffered intelligent-mode disable
// events.
func (c *Controller) DrainNotifications(ctx echo.Context) error {
	events := c.Notifications.Drain()
	return ctx.JSON(http.StatusOK, echo.Map{"notifications": events})
}
