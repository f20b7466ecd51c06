// Package metrics provides Prometheus metrics for observability
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// WeatherMetrics contains Prometheus metrics for the forecast cache
type WeatherMetrics struct {
	registry *prometheus.Registry

	providerFetchesTotal      *prometheus.CounterVec
	forecastRefreshesTotal    *prometheus.CounterVec
	cachedEstablishmentsGauge prometheus.Gauge
}

// NewWeatherMetrics creates and registers new weather metrics
func NewWeatherMetrics(registry *prometheus.Registry) (*WeatherMetrics, error) {
	m := &WeatherMetrics{registry: registry}
	m.initMetrics()
	if err := m.register(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *WeatherMetrics) initMetrics() {
	m.providerFetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weather_provider_fetches_total",
			Help: "Total number of upstream weather provider fetch attempts",
		},
		[]string{"provider", "status"}, // status: success, error
	)

	m.forecastRefreshesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weather_forecast_refreshes_total",
			Help: "Total number of per-establishment forecast refresh cycles",
		},
		[]string{"status"}, // status: success, empty
	)

	m.cachedEstablishmentsGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "weather_cached_establishments",
			Help: "Number of establishments with a cached forecast",
		},
	)
}

func (m *WeatherMetrics) register() error {
	collectors := []prometheus.Collector{
		m.providerFetchesTotal,
		m.forecastRefreshesTotal,
		m.cachedEstablishmentsGauge,
	}
	for _, c := range collectors {
		if err := m.registry.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// RecordProviderFetch records one upstream fetch attempt
func (m *WeatherMetrics) RecordProviderFetch(provider, status string) {
	m.providerFetchesTotal.WithLabelValues(provider, status).Inc()
}

// RecordForecastRefresh records the outcome of one refresh cycle
func (m *WeatherMetrics) RecordForecastRefresh(status string) {
	m.forecastRefreshesTotal.WithLabelValues(status).Inc()
}

// UpdateCachedEstablishments sets the cached-establishments gauge
func (m *WeatherMetrics) UpdateCachedEstablishments(count int) {
	m.cachedEstablishmentsGauge.Set(float64(count))
}
