// Package suncalc resolves the daylight-derived aeration window for a location.
package suncalc

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/sysintegral/aerator-go/internal/conf"
	"github.com/sysintegral/aerator-go/internal/logging"
)

const (
	// Resolved windows are cached per (lat,lon,date) to bound provider calls.
	cacheTTL       = 12 * time.Hour
	requestTimeout = 10 * time.Second

	// Solar-powered equipment needs warm-up and cool-down margin, so the
	// operating window starts an hour after sunrise and ends an hour before sunset.
	sunriseOffsetHours = 1
	sunsetOffsetHours  = -1

	// Conservative fallback window when the provider is unavailable.
	fallbackSunrise         = 9
	fallbackSunset          = 17
	fallbackOriginalSunrise = 8
	fallbackOriginalSunset  = 18
)

// SunWindow is the local operating window derived from sunrise/sunset, with
// the pre-offset originals retained for display.
type SunWindow struct {
	SunriseHour     int // local hour, offset applied
	SunsetHour      int // local hour, offset applied
	OriginalSunrise int
	OriginalSunset  int
}

// sunAPIResponse represents the sunrise-sunset.org JSON response (formatted=0)
type sunAPIResponse struct {
	Results struct {
		Sunrise time.Time `json:"sunrise"`
		Sunset  time.Time `json:"sunset"`
	} `json:"results"`
	Status string `json:"status"`
}

// Resolver computes and caches sun windows. Safe for concurrent use: the
// underlying cache carries its own locking and resolution is stateless.
type Resolver struct {
	settings *conf.Settings
	cache    *cache.Cache
	client   *http.Client
	now      func() time.Time
}

// NewResolver creates a new sun window resolver.
func NewResolver(settings *conf.Settings) *Resolver {
	return &Resolver{
		settings: settings,
		cache:    cache.New(cacheTTL, time.Hour),
		client:   &http.Client{Timeout: requestTimeout},
		now:      time.Now,
	}
}

// Resolve returns the sun window for today at the given coordinates.
// Provider failures degrade to the fixed fallback window, never to an error.
func (r *Resolver) Resolve(lat, lon float64) SunWindow {
	return r.ResolveForDate(lat, lon, r.now().In(r.settings.Location()))
}

// ResolveForDate returns the sun window for the given local date.
func (r *Resolver) ResolveForDate(lat, lon float64, date time.Time) SunWindow {
	key := fmt.Sprintf("%.4f,%.4f,%s", lat, lon, date.Format("2006-01-02"))
	if cached, found := r.cache.Get(key); found {
		return cached.(SunWindow)
	}

	window, err := r.fetch(lat, lon, date)
	if err != nil {
		logging.Warn("Sun times provider failed, using fallback window",
			"lat", lat, "lon", lon, "error", err)
		return SunWindow{
			SunriseHour:     fallbackSunrise,
			SunsetHour:      fallbackSunset,
			OriginalSunrise: fallbackOriginalSunrise,
			OriginalSunset:  fallbackOriginalSunset,
		}
	}

	r.cache.Set(key, window, cache.DefaultExpiration)
	logging.Info("Sun window resolved",
		"lat", lat, "lon", lon,
		"sunrise_hour", window.SunriseHour, "sunset_hour", window.SunsetHour)
	return window
}

func (r *Resolver) fetch(lat, lon float64, date time.Time) (SunWindow, error) {
	apiURL := fmt.Sprintf("%s?lat=%.6f&lng=%.6f&date=%s&formatted=0",
		r.settings.Realtime.Sun.Endpoint, lat, lon, date.Format("2006-01-02"))

	req, err := http.NewRequest("GET", apiURL, http.NoBody)
	if err != nil {
		return SunWindow{}, fmt.Errorf("creating sun times request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return SunWindow{}, fmt.Errorf("fetching sun times: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			logging.Debug("Failed to close sun times response body", "error", closeErr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return SunWindow{}, fmt.Errorf("sun times provider returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return SunWindow{}, fmt.Errorf("reading sun times response: %w", err)
	}

	var parsed sunAPIResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return SunWindow{}, fmt.Errorf("unmarshaling sun times response: %w", err)
	}
	if parsed.Status != "OK" {
		return SunWindow{}, fmt.Errorf("sun times provider returned status %q", parsed.Status)
	}

	loc := r.settings.Location()
	sunriseLocal := parsed.Results.Sunrise.In(loc)
	sunsetLocal := parsed.Results.Sunset.In(loc)

	return SunWindow{
		SunriseHour:     sunriseLocal.Add(sunriseOffsetHours * time.Hour).Hour(),
		SunsetHour:      sunsetLocal.Add(sunsetOffsetHours * time.Hour).Hour(),
		OriginalSunrise: sunriseLocal.Hour(),
		OriginalSunset:  sunsetLocal.Hour(),
	}, nil
}
