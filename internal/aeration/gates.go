package aeration

import (
	"strings"

	"github.com/sysintegral/aerator-go/internal/suncalc"
	"github.com/sysintegral/aerator-go/internal/weather"
)

const (
	// Hours in [peakHoursStart, peakHoursEnd] are blocked for silos that
	// opt into peak-hours shutdown.
	peakHoursStart = 17
	peakHoursEnd   = 23

	// Forecast probability above which an hour counts as cloudy even when
	// the symbol code does not say so.
	cloudyProbabilityThreshold = 30
)

// cloudyCodes are the MET Norway symbol fragments that indicate cloud cover
// heavy enough to starve solar-powered aerators.
var cloudyCodes = []string{
	"cloudy", "partlycloudy_day", "partlycloudy_night",
	"fog", "heavyrain", "lightrain", "rain",
	"heavysnow", "lightsnow", "snow",
	"sleet", "heavysleet", "lightsleet",
}

var fogCodes = []string{"fog", "mist"}

// rainExpandedIndices returns the forecast indices blocked by rain: every hour
// with measurable precipitation plus the hour before and after it.
func rainExpandedIndices(forecast weather.Forecast) map[int]bool {
	blocked := make(map[int]bool)
	for idx := range forecast {
		if forecast[idx].PrecipitationAmount > 0 {
			blocked[idx] = true
			if idx > 0 {
				blocked[idx-1] = true
			}
			if idx < len(forecast)-1 {
				blocked[idx+1] = true
			}
		}
	}
	return blocked
}

// isCloudy reports whether the hour counts as cloudy, either by symbol code
// or by precipitation probability.
func isCloudy(rec *weather.HourRecord) bool {
	symbol := strings.ToLower(rec.SymbolCode)
	for _, code := range cloudyCodes {
		if strings.Contains(symbol, code) {
			return true
		}
	}
	return rec.PrecipitationProbability > cloudyProbabilityThreshold
}

// hasFogOrMist reports fog conditions: an explicit symbol code, or the
// high-humidity low-temperature heuristic for hours the symbol misses.
func hasFogOrMist(rec *weather.HourRecord) bool {
	symbol := strings.ToLower(rec.SymbolCode)
	for _, code := range fogCodes {
		if strings.Contains(symbol, code) {
			return true
		}
	}
	return rec.Humidity > 95 && rec.Temperature < 15
}

func peakHoursActive(hour int) bool {
	return hour >= peakHoursStart && hour <= peakHoursEnd
}

// withinManualWindow checks the silo's configured aeration window. The full
// 0-23 range means unrestricted, and start > end crosses midnight (e.g. 22-6).
func withinManualWindow(startHour, endHour, hour int) bool {
	if startHour == 0 && endHour == 23 {
		return true
	}
	if startHour < endHour {
		return hour >= startHour && hour < endHour
	}
	return hour >= startHour || hour < endHour
}

// withinSunWindow checks the daylight window; a window crossing midnight only
// happens at extreme latitudes but is handled the same way as manual windows.
func withinSunWindow(window suncalc.SunWindow, hour int) bool {
	if window.SunriseHour <= window.SunsetHour {
		return hour >= window.SunriseHour && hour < window.SunsetHour
	}
	return hour >= window.SunriseHour || hour < window.SunsetHour
}
