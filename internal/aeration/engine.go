package aeration

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sysintegral/aerator-go/internal/conf"
	"github.com/sysintegral/aerator-go/internal/datastore"
	"github.com/sysintegral/aerator-go/internal/logging"
	"github.com/sysintegral/aerator-go/internal/observability/metrics"
	"github.com/sysintegral/aerator-go/internal/suncalc"
	"github.com/sysintegral/aerator-go/internal/weather"
)

const (
	// Sensor readings older than this force intelligent mode off: acting on
	// dead sensors is worse than falling back to plain threshold logic.
	staleDataMaxAge = 7 * 24 * time.Hour

	// Margin below the equilibrium RH before outside air counts as drying,
	// to avoid short on/off cycles around the equilibrium point.
	humidityHysteresis = 2.0
)

var (
	aerationLogger   *slog.Logger
	aerationLevelVar = new(slog.LevelVar)
)

func init() {
	var err error
	aerationLevelVar.Set(slog.LevelDebug)

	aerationLogger, _, err = logging.NewFileLogger("logs/aeration.log", "aeration", aerationLevelVar)
	if err != nil {
		logging.Error("Failed to initialize aeration file logger", "error", err)
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: aerationLevelVar})
		aerationLogger = slog.New(fbHandler).With("service", "aeration")
	}
}

// DisableEvent records one automatic intelligent-mode shutdown, for display
// to the user who enabled the mode. The ID lets clients deduplicate events
// across drain polls.
type DisableEvent struct {
	ID        string    `json:"id"`
	SiloID    uint      `json:"silo_id"`
	SiloName  string    `json:"silo_name"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// EventSink receives disable events emitted by the engine.
type EventSink interface {
	Publish(event DisableEvent)
}

// HourDecision is the engine's answer for one forecast hour.
type HourDecision struct {
	Hour string `json:"hour"`
	Safe bool   `json:"safe_to_operate"`
}

// Engine decides, per silo and per forecast hour, whether it is safe to run
// the aerators. Mode-specific logic is layered on top of the universal safety
// gates (rain, fog, peak hours, aeration window).
type Engine struct {
	settings *conf.Settings
	ds       datastore.Interface
	sun      *suncalc.Resolver
	metrics  *metrics.AerationMetrics
	sink     EventSink
	now      func() time.Time
}

// NewEngine creates a decision engine. metrics and sink may be nil.
func NewEngine(settings *conf.Settings, ds datastore.Interface, sun *suncalc.Resolver, m *metrics.AerationMetrics, sink EventSink) *Engine {
	return &Engine{
		settings: settings,
		ds:       ds,
		sun:      sun,
		metrics:  m,
		sink:     sink,
		now:      time.Now,
	}
}

// ForecastSilo evaluates every hour of the forecast for one silo. The silo's
// mode can change mid-evaluation when stale sensor data forces intelligent
// mode off; subsequent hours then use the downgraded mode.
func (e *Engine) ForecastSilo(silo *datastore.Silo, est *datastore.Establishment, forecast weather.Forecast) []HourDecision {
	decisions := make([]HourDecision, 0, len(forecast))
	if silo == nil || len(forecast) == 0 {
		return decisions
	}

	rainIdx := rainExpandedIndices(forecast)

	var window suncalc.SunWindow
	if silo.UseSunSchedule && est != nil {
		window = e.sun.Resolve(est.Latitude, est.Longitude)
	}

	grainType := ""
	if silo.AerationConfig != nil && silo.AerationConfig.Active {
		grainType = silo.AerationConfig.GrainType
	}

	for idx := range forecast {
		safe := e.decideHour(silo, grainType, forecast, idx, rainIdx, window)
		if e.metrics != nil {
			e.metrics.RecordDecision(silo.ManualMode, safe)
		}
		decisions = append(decisions, HourDecision{Hour: forecast[idx].Hour, Safe: safe})
	}
	return decisions
}

// DecideHour is the single-hour form of ForecastSilo, for callers that only
// need "is it safe at forecast[idx]". Rain lookahead still consults the
// neighboring forecast entries, so pass the full forecast, not a slice of one.
func (e *Engine) DecideHour(silo *datastore.Silo, est *datastore.Establishment, forecast weather.Forecast, idx int) bool {
	if silo == nil || idx < 0 || idx >= len(forecast) {
		return false
	}

	var window suncalc.SunWindow
	if silo.UseSunSchedule && est != nil {
		window = e.sun.Resolve(est.Latitude, est.Longitude)
	}

	grainType := ""
	if silo.AerationConfig != nil && silo.AerationConfig.Active {
		grainType = silo.AerationConfig.GrainType
	}

	return e.decideHour(silo, grainType, forecast, idx, rainExpandedIndices(forecast), window)
}

func (e *Engine) decideHour(silo *datastore.Silo, grainType string, forecast weather.Forecast, idx int, rainIdx map[int]bool, window suncalc.SunWindow) bool {
	rec := &forecast[idx]

	t, err := e.settings.ParseLocalHour(rec.Hour)
	if err != nil {
		aerationLogger.Warn("Skipping forecast entry with bad hour label",
			"silo_id", silo.ID, "hour", rec.Hour)
		return false
	}
	hour := t.Hour()

	noRain := !rainIdx[idx]
	noFog := !hasFogOrMist(rec)

	switch silo.ManualMode {
	case datastore.ModeOff:
		return false
	case datastore.ModeOn:
		// Manual override is near-absolute: window and peak-hours
		// restrictions are bypassed, weather safety is not.
		return noRain && noFog
	}

	peakOK := !(silo.PeakHoursShutdown && peakHoursActive(hour))

	windowOK := true
	if silo.UseSunSchedule {
		windowOK = withinSunWindow(window, hour) && !isCloudy(rec)
	} else {
		windowOK = withinManualWindow(silo.AirStartHour, silo.AirEndHour, hour)
	}

	if !noRain || !noFog || !peakOK || !windowOK {
		return false
	}

	switch silo.ManualMode {
	case datastore.ModeIntelligent:
		return e.evaluateIntelligent(silo, grainType, rec)
	default:
		// ModeAuto, plus unrecognized legacy labels which have always
		// behaved like auto.
		tempOK := silo.MinTemperature <= rec.Temperature && rec.Temperature <= silo.MaxTemperature
		humOK := silo.MinHumidity <= rec.Humidity && rec.Humidity <= silo.MaxHumidity
		return tempOK && humOK
	}
}

// evaluateIntelligent runs the sensor-driven strategies. Temperature has
// absolute priority: when cooling is both needed and possible, humidity is
// not consulted.
func (e *Engine) evaluateIntelligent(silo *datastore.Silo, grainType string, rec *weather.HourRecord) bool {
	readings, err := e.ds.LatestReadingsForSilo(silo.ID)
	if err != nil {
		aerationLogger.Error("Failed to load sensor readings", "silo_id", silo.ID, "error", err)
		return false
	}
	if len(readings) == 0 {
		aerationLogger.Warn("No temperature readings for silo, cannot operate intelligently",
			"silo_id", silo.ID)
		return false
	}

	var oldest time.Time
	temps := make([]float64, 0, len(readings))
	for _, reading := range readings {
		temps = append(temps, reading.Temperature)
		if oldest.IsZero() || reading.Timestamp.Before(oldest) {
			oldest = reading.Timestamp
		}
	}

	if e.now().Sub(oldest) > staleDataMaxAge {
		e.disableIntelligent(silo, oldest)
		return false
	}

	config := silo.AerationConfig
	if config == nil {
		config, err = e.ds.GetAerationConfig(silo.ID)
		if err != nil || config == nil {
			aerationLogger.Warn("Silo in intelligent mode has no aeration config",
				"silo_id", silo.ID)
			return false
		}
	}

	if config.AchieveTemperature {
		tMax := temps[0]
		for _, t := range temps[1:] {
			if t > tMax {
				tMax = t
			}
		}
		needsCooling := config.TargetTemp != nil && tMax > *config.TargetTemp+config.DeltaTempHyst
		airUseful := rec.Temperature < tMax-config.DeltaTempMin
		if needsCooling && airUseful {
			aerationLogger.Debug("Temperature strategy decided to operate",
				"silo_id", silo.ID, "t_max", tMax, "t_ext", rec.Temperature)
			return true
		}
	}

	if config.AchieveHumidity && grainType != "" {
		tSum := 0.0
		for _, t := range temps {
			tSum += t
		}
		tAvg := tSum / float64(len(temps))

		erh, ok := EquilibriumHumidity(grainType, config.TargetEMC, tAvg)
		if !ok {
			aerationLogger.Warn("Equilibrium RH out of table range",
				"silo_id", silo.ID, "grain_type", grainType,
				"target_emc", config.TargetEMC, "t_avg", tAvg)
			return false
		}
		if rec.Humidity < erh-humidityHysteresis {
			aerationLogger.Debug("Humidity strategy decided to operate",
				"silo_id", silo.ID, "h_ext", rec.Humidity, "erh_target", erh)
			return true
		}
	}

	return false
}

// disableIntelligent turns intelligent mode off for a silo whose sensor data
// has gone stale: the config is deactivated, the silo drops back to auto, and
// an event is emitted for the user.
func (e *Engine) disableIntelligent(silo *datastore.Silo, oldest time.Time) {
	config := silo.AerationConfig
	if config == nil {
		var err error
		config, err = e.ds.GetAerationConfig(silo.ID)
		if err != nil || config == nil {
			return
		}
	}
	if !config.Active {
		return
	}

	if err := e.ds.DeactivateAerationConfig(silo.ID); err != nil {
		aerationLogger.Error("Failed to deactivate aeration config",
			"silo_id", silo.ID, "error", err)
		return
	}
	config.Active = false
	silo.ManualMode = datastore.ModeAuto

	if e.metrics != nil {
		e.metrics.RecordIntelligentDisable()
	}

	event := DisableEvent{
		ID:        uuid.New().String(),
		SiloID:    silo.ID,
		SiloName:  silo.Name,
		Reason:    fmt.Sprintf("sensor data stale, oldest reading %s", oldest.Format("2006-01-02 15:04")),
		Timestamp: e.now().In(e.settings.Location()),
	}
	if e.sink != nil {
		e.sink.Publish(event)
	}

	aerationLogger.Warn("Intelligent mode disabled automatically, falling back to auto",
		"silo_id", silo.ID, "silo_name", silo.Name, "oldest_reading", oldest)
}
