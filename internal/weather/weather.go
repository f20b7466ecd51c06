package weather

import (
	"io"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/sysintegral/aerator-go/internal/conf"
	"github.com/sysintegral/aerator-go/internal/datastore"
	"github.com/sysintegral/aerator-go/internal/errors"
	"github.com/sysintegral/aerator-go/internal/logging"
	"github.com/sysintegral/aerator-go/internal/observability/metrics"
)

// Package-level logger for weather service
var (
	weatherLogger   *slog.Logger
	weatherLevelVar = new(slog.LevelVar) // Dynamic level control
)

func init() {
	var err error
	weatherLevelVar.Set(slog.LevelDebug)

	weatherLogger, _, err = logging.NewFileLogger("logs/weather.log", "weather", weatherLevelVar)
	if err != nil {
		// Fallback to a disabled logger (writes to io.Discard) but respects the level var
		logging.Error("Failed to initialize weather file logger", "error", err)
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: weatherLevelVar})
		weatherLogger = slog.New(fbHandler).With("service", "weather")
	}
}

// HourRecord is one merged forecast hour for an establishment, labelled in
// local civil time.
type HourRecord struct {
	Hour                     string  `json:"hour"` // "YYYY-MM-DD HH:00" local
	Temperature              float64 `json:"temperature"`
	Humidity                 float64 `json:"humidity"`
	PrecipitationAmount      float64 `json:"precipitation_amount"`
	PrecipitationProbability float64 `json:"precipitation_probability"`
	SymbolCode               string  `json:"symbol_code"`
}

// Forecast is a chronological hourly sequence, at most 24 entries, starting
// at the current local hour.
type Forecast []HourRecord

// HourPoint is a raw hourly sample from the primary provider, keyed by UTC hour.
type HourPoint struct {
	Time                     time.Time // UTC
	Temperature              float64
	Humidity                 float64
	PrecipitationAmount      float64
	PrecipitationProbability float64
	SymbolCode               string
}

// CurrentConditions is a single live reading from the secondary provider.
type CurrentConditions struct {
	Temperature         float64
	Humidity            float64
	PrecipitationAmount float64
}

// Service maintains an approximately-fresh forecast per establishment.
// A single background task round-robins over the establishment list so one
// site's failures cannot starve the others.
type Service struct {
	settings  *conf.Settings
	primary   ForecastProvider
	secondary CurrentProvider
	metrics   *metrics.WeatherMetrics
	now       func() time.Time

	mu             sync.Mutex
	cache          map[uint]Forecast
	lastUpdate     map[uint]time.Time
	establishments []datastore.Establishment
	cursor         int

	stopChan chan struct{}
	doneChan chan struct{}
}

// NewService creates a weather forecast cache service. weatherMetrics may be nil.
func NewService(settings *conf.Settings, weatherMetrics *metrics.WeatherMetrics) *Service {
	var secondary CurrentProvider
	if settings.Realtime.Weather.OpenWeather.Enabled {
		secondary = NewOpenWeatherProvider(settings)
	}
	return &Service{
		settings:   settings,
		primary:    NewMetNoProvider(settings),
		secondary:  secondary,
		metrics:    weatherMetrics,
		now:        time.Now,
		cache:      make(map[uint]Forecast),
		lastUpdate: make(map[uint]time.Time),
	}
}

// Start begins the background refresh loop over the given establishments.
// It fails when the list exceeds the configured cache capacity: the
// round-robin single-worker design bounds staleness only for a bounded list.
func (s *Service) Start(establishments []datastore.Establishment) error {
	maxEstablishments := s.settings.Realtime.Weather.MaxEstablishments
	if len(establishments) > maxEstablishments {
		return errors.Newf("establishment count %d exceeds weather cache capacity %d",
			len(establishments), maxEstablishments).
			Component("weather").
			Category(errors.CategoryConfiguration).
			Context("count", len(establishments)).
			Context("capacity", maxEstablishments).
			Build()
	}

	s.mu.Lock()
	s.establishments = establishments
	s.cursor = 0
	s.mu.Unlock()

	s.stopChan = make(chan struct{})
	s.doneChan = make(chan struct{})

	weatherLogger.Info("Starting weather forecast cache",
		"establishments", len(establishments),
		"interval_minutes", s.settings.Realtime.Weather.PollInterval,
	)
	go s.updateLoop()
	return nil
}

// Stop signals the background loop to exit and waits for it.
func (s *Service) Stop() {
	if s.stopChan == nil {
		return
	}
	close(s.stopChan)
	<-s.doneChan
	s.stopChan = nil
	weatherLogger.Info("Weather forecast cache stopped")
}

// Get returns the last successfully cached forecast for an establishment,
// or nil if none has been cached yet. It never blocks on network I/O.
func (s *Service) Get(establishmentID uint) Forecast {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache[establishmentID]
}

// GetOrFetch returns the cached forecast if present, otherwise performs a
// synchronous fetch-and-cache. The synchronous path is acceptable degraded
// behavior at cold start only.
func (s *Service) GetOrFetch(est *datastore.Establishment) Forecast {
	if forecast := s.Get(est.ID); forecast != nil {
		return forecast
	}
	weatherLogger.Debug("Cache miss, fetching synchronously", "establishment_id", est.ID)
	return s.refresh(est)
}

// updateLoop advances a cursor over the establishment list, refreshing one
// entry per iteration and sleeping a fixed interval regardless of outcome.
func (s *Service) updateLoop() {
	defer close(s.doneChan)

	interval := time.Duration(s.settings.Realtime.Weather.PollInterval) * time.Minute
	for {
		select {
		case <-s.stopChan:
			return
		default:
		}

		s.refreshNext()

		select {
		case <-s.stopChan:
			return
		case <-time.After(interval):
		}
	}
}

// refreshNext refreshes the establishment at the cursor and advances it.
// An empty establishment list consumes no cursor step.
func (s *Service) refreshNext() {
	s.mu.Lock()
	if len(s.establishments) == 0 {
		s.mu.Unlock()
		return
	}
	est := s.establishments[s.cursor]
	s.cursor = (s.cursor + 1) % len(s.establishments)
	s.mu.Unlock()

	s.refresh(&est)
}

// refresh fetches, merges and caches the forecast for one establishment.
// A completely failed fetch leaves the previous cache entry untouched:
// stale-but-present beats empty.
func (s *Service) refresh(est *datastore.Establishment) Forecast {
	forecast := s.fetchForecast(est)
	if forecast == nil {
		weatherLogger.Warn("No forecast data compiled, keeping previous cache entry",
			"establishment_id", est.ID, "establishment", est.Name)
		if s.metrics != nil {
			s.metrics.RecordForecastRefresh("empty")
		}
		return s.Get(est.ID)
	}

	s.mu.Lock()
	s.cache[est.ID] = forecast
	s.lastUpdate[est.ID] = s.now()
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.RecordForecastRefresh("success")
		s.metrics.UpdateCachedEstablishments(len(s.cache))
	}
	weatherLogger.Debug("Forecast cached",
		"establishment_id", est.ID, "hours", len(forecast))
	return forecast
}

// fetchForecast queries both providers and merges them per the current local
// hour. Provider failures degrade to partial data, never to an error.
func (s *Service) fetchForecast(est *datastore.Establishment) Forecast {
	points, err := s.primary.FetchHourly(est.Latitude, est.Longitude)
	if err != nil {
		weatherLogger.Warn("Primary forecast provider failed",
			"establishment", est.Name, "error", err)
		if s.metrics != nil {
			s.metrics.RecordProviderFetch("metno", "error")
		}
		points = nil
	} else if s.metrics != nil {
		s.metrics.RecordProviderFetch("metno", "success")
	}

	var current *CurrentConditions
	if s.secondary != nil {
		current, err = s.secondary.FetchCurrent(est.Latitude, est.Longitude)
		if err != nil {
			weatherLogger.Warn("Secondary conditions provider failed",
				"establishment", est.Name, "error", err)
			if s.metrics != nil {
				s.metrics.RecordProviderFetch("openweather", "error")
			}
			current = nil
		} else if s.metrics != nil {
			s.metrics.RecordProviderFetch("openweather", "success")
		}
	}

	targetHourUTC := s.settings.CurrentTargetHourUTC(s.now())
	return mergeForecast(points, current, targetHourUTC, s.settings)
}

// mergeForecast combines the primary hourly series with a live current
// reading. The secondary source only sharpens the current hour, never
// extends the horizon.
func mergeForecast(points []HourPoint, current *CurrentConditions, targetHourUTC time.Time, settings *conf.Settings) Forecast {
	byHour := make(map[int64]HourPoint, len(points))
	for _, p := range points {
		byHour[p.Time.UTC().Unix()] = p
	}

	if current != nil {
		key := targetHourUTC.Unix()
		if p, ok := byHour[key]; ok {
			combinedPrecip := 0.0
			switch {
			case p.PrecipitationAmount > 0 || current.PrecipitationAmount > 0:
				combinedPrecip = math.Max(p.PrecipitationAmount, current.PrecipitationAmount)
			case p.PrecipitationProbability > 0:
				// Nonzero chance of rain but no current reading
				combinedPrecip = 0.01
			}
			p.Temperature = roundTo((p.Temperature+current.Temperature)/2, 2)
			p.Humidity = roundTo((p.Humidity+current.Humidity)/2, 1)
			p.PrecipitationAmount = roundTo(combinedPrecip, 2)
			byHour[key] = p
		} else {
			byHour[key] = HourPoint{
				Time:                targetHourUTC,
				Temperature:         current.Temperature,
				Humidity:            current.Humidity,
				PrecipitationAmount: current.PrecipitationAmount,
			}
		}
	}

	keys := make([]int64, 0, len(byHour))
	for k := range byHour {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	forecast := make(Forecast, 0, forecastHorizonHours)
	cutoff := targetHourUTC.Unix()
	for _, k := range keys {
		if k < cutoff {
			continue
		}
		if len(forecast) == forecastHorizonHours {
			break
		}
		p := byHour[k]
		forecast = append(forecast, HourRecord{
			Hour:                     settings.FormatLocalHour(time.Unix(k, 0).UTC()),
			Temperature:              p.Temperature,
			Humidity:                 p.Humidity,
			PrecipitationAmount:      p.PrecipitationAmount,
			PrecipitationProbability: p.PrecipitationProbability,
			SymbolCode:               p.SymbolCode,
		})
	}

	if len(forecast) == 0 {
		return nil
	}
	return forecast
}

// forecastHorizonHours caps the merged forecast length.
const forecastHorizonHours = 24

func roundTo(value float64, decimals int) float64 {
	factor := math.Pow(10, float64(decimals))
	return math.Round(value*factor) / factor
}
