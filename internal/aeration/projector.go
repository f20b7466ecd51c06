package aeration

import (
	"time"

	"github.com/sysintegral/aerator-go/internal/conf"
	"github.com/sysintegral/aerator-go/internal/datastore"
	"github.com/sysintegral/aerator-go/internal/weather"
)

// forecastHorizonHours is the length of the schedule skeleton in hours.
const forecastHorizonHours = 24

// Override reasons attached to hours forced off after the per-silo evaluation.
const (
	ReasonMaxCurrentExceeded = "max_current_exceeded"
	ReasonGlobalDisabled     = "global_aerator_control_disabled"
)

// SiloState is the on/off decision for one silo in one hour.
type SiloState struct {
	SiloID          uint   `json:"silo_id"`
	Position        int    `json:"position"`
	IsOn            bool   `json:"is_on"`
	ForcedOffReason string `json:"forced_off_reason,omitempty"`
}

// HourStates groups the silo states for one local hour.
type HourStates struct {
	Hour   string      `json:"hour"`
	States []SiloState `json:"states"`
}

// Schedule is the 24-hour operating plan for one establishment, consumed by
// field devices.
type Schedule struct {
	CurrentTime string       `json:"current_time"`
	Hours       []HourStates `json:"states"`
}

// ForecastSource is the slice of the weather service the projector needs.
type ForecastSource interface {
	GetOrFetch(est *datastore.Establishment) weather.Forecast
}

// Projector assembles per-silo hourly decisions into an establishment-wide
// schedule and applies the two overriding protections: the overcurrent cutoff
// and the global kill switch. Overrides flip states off non-destructively,
// recording the reason, and never turn anything on.
type Projector struct {
	settings *conf.Settings
	engine   *Engine
	forecast ForecastSource
	ds       datastore.Interface
	currents *CurrentStore
	now      func() time.Time
}

func NewProjector(settings *conf.Settings, engine *Engine, forecast ForecastSource, ds datastore.Interface, currents *CurrentStore) *Projector {
	return &Projector{
		settings: settings,
		engine:   engine,
		forecast: forecast,
		ds:       ds,
		currents: currents,
		now:      time.Now,
	}
}

// ProjectSchedule builds the 24-hour schedule for an establishment. The
// skeleton always spans 24 hours from the current local hour; hours the
// forecast cannot cover stay off.
func (p *Projector) ProjectSchedule(est *datastore.Establishment) (*Schedule, error) {
	loc := p.settings.Location()
	nowLocal := p.now().In(loc)
	base := time.Date(nowLocal.Year(), nowLocal.Month(), nowLocal.Day(), nowLocal.Hour(), 0, 0, 0, loc)
	currentHour := p.settings.FormatLocalHour(base)

	schedule := &Schedule{
		CurrentTime: currentHour,
		Hours:       make([]HourStates, 0, forecastHorizonHours),
	}
	hourIndex := make(map[string]int, forecastHorizonHours)
	for i := 0; i < forecastHorizonHours; i++ {
		label := p.settings.FormatLocalHour(base.Add(time.Duration(i) * time.Hour))
		hourIndex[label] = i
		schedule.Hours = append(schedule.Hours, HourStates{Hour: label, States: []SiloState{}})
	}

	silos, err := p.ds.GetSilosForEstablishment(est.ID)
	if err != nil {
		return nil, err
	}
	if len(silos) == 0 {
		return schedule, nil
	}

	forecast := p.forecast.GetOrFetch(est)
	if forecast == nil {
		aerationLogger.Warn("No forecast available, reporting all silos off",
			"establishment_id", est.ID, "establishment", est.Name)
	}

	for i := range silos {
		silo := &silos[i]
		decisions := p.engine.ForecastSilo(silo, est, forecast)

		byHour := make(map[string]bool, len(decisions))
		for _, d := range decisions {
			byHour[d.Hour] = d.Safe
		}

		for label, idx := range hourIndex {
			schedule.Hours[idx].States = append(schedule.Hours[idx].States, SiloState{
				SiloID:   silo.ID,
				Position: silo.AeratorPosition,
				IsOn:     byHour[label],
			})
		}
	}

	p.applyOvercurrentOverride(est, schedule, currentHour)
	if err := p.applyGlobalOverride(schedule); err != nil {
		return nil, err
	}
	return schedule, nil
}

// applyOvercurrentOverride forces the current hour off when the live amperage
// reading for the establishment's current sensor exceeds its configured
// ceiling. Only the current hour is touched: the next schedule poll
// re-evaluates with a fresh reading.
func (p *Projector) applyOvercurrentOverride(est *datastore.Establishment, schedule *Schedule, currentHour string) {
	if est.MaxOperatingCurrent == nil || est.CurrentSensorID == "" || p.currents == nil {
		return
	}
	amps, ok := p.currents.Get(est.CurrentSensorID)
	if !ok || amps <= *est.MaxOperatingCurrent {
		return
	}

	aerationLogger.Warn("Overcurrent detected, forcing aerators off for current hour",
		"establishment_id", est.ID, "amps", amps, "max_amps", *est.MaxOperatingCurrent)

	for i := range schedule.Hours {
		if schedule.Hours[i].Hour != currentHour {
			continue
		}
		for j := range schedule.Hours[i].States {
			if schedule.Hours[i].States[j].IsOn {
				schedule.Hours[i].States[j].IsOn = false
				schedule.Hours[i].States[j].ForcedOffReason = ReasonMaxCurrentExceeded
			}
		}
	}
}

// applyGlobalOverride forces every hour off when the administrator kill
// switch is disabled.
func (p *Projector) applyGlobalOverride(schedule *Schedule) error {
	enabled, err := p.ds.GlobalAeratorEnabled()
	if err != nil {
		return err
	}
	if enabled {
		return nil
	}

	aerationLogger.Info("Global aerator control disabled, forcing all aerators off")
	for i := range schedule.Hours {
		for j := range schedule.Hours[i].States {
			if schedule.Hours[i].States[j].IsOn {
				schedule.Hours[i].States[j].IsOn = false
				schedule.Hours[i].States[j].ForcedOffReason = ReasonGlobalDisabled
			}
		}
	}
	return nil
}
