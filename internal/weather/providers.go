package weather

import "github.com/sysintegral/aerator-go/internal/conf"

// ForecastProvider supplies an hourly point forecast keyed by UTC timestamp.
type ForecastProvider interface {
	FetchHourly(lat, lon float64) ([]HourPoint, error)
}

// CurrentProvider supplies a single live current-conditions reading with no
// forecast horizon.
type CurrentProvider interface {
	FetchCurrent(lat, lon float64) (*CurrentConditions, error)
}

// MetNoProvider implements ForecastProvider using the MET Norway
// locationforecast API.
type MetNoProvider struct {
	settings *conf.Settings
}

// OpenWeatherProvider implements CurrentProvider using the OpenWeather
// current weather API.
type OpenWeatherProvider struct {
	settings *conf.Settings
}

// NewMetNoProvider creates a new MET Norway forecast provider.
func NewMetNoProvider(settings *conf.Settings) *MetNoProvider {
	return &MetNoProvider{settings: settings}
}

// NewOpenWeatherProvider creates a new OpenWeather current-conditions provider.
func NewOpenWeatherProvider(settings *conf.Settings) *OpenWeatherProvider {
	return &OpenWeatherProvider{settings: settings}
}
