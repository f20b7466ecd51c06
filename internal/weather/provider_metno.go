package weather

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sysintegral/aerator-go/internal/errors"
)

const metNoProviderName = "metno"

// MetNoResponse represents the structure of the MET Norway locationforecast response
type MetNoResponse struct {
	Properties struct {
		Timeseries []struct {
			Time time.Time `json:"time"`
			Data struct {
				Instant struct {
					Details struct {
						AirTemperature float64 `json:"air_temperature"`
						RelHumidity    float64 `json:"relative_humidity"`
					} `json:"details"`
				} `json:"instant"`
				Next1Hours struct {
					Summary struct {
						SymbolCode string `json:"symbol_code"`
					} `json:"summary"`
					Details struct {
						PrecipitationAmount        float64 `json:"precipitation_amount"`
						ProbabilityOfPrecipitation float64 `json:"probability_of_precipitation"`
					} `json:"details"`
				} `json:"next_1_hours"`
			} `json:"data"`
		} `json:"timeseries"`
	} `json:"properties"`
}

// FetchHourly implements the ForecastProvider interface for MetNoProvider.
// It returns the full hourly timeseries; filtering to the forecast horizon
// happens at merge time.
func (p *MetNoProvider) FetchHourly(lat, lon float64) ([]HourPoint, error) {
	apiURL := fmt.Sprintf("%s?lat=%.6f&lon=%.6f",
		p.settings.Realtime.Weather.MetNo.Endpoint, lat, lon)

	logger := weatherLogger.With("provider", metNoProviderName)
	logger.Debug("Fetching hourly forecast", "url", apiURL)

	req, err := http.NewRequest("GET", apiURL, http.NoBody)
	if err != nil {
		return nil, newWeatherError(err, errors.CategoryNetwork, "create_http_request", metNoProviderName)
	}
	req.Header.Set("User-Agent", p.settings.Realtime.Weather.MetNo.UserAgent)

	body, err := executeWithRetry(req, logger, metNoProviderName)
	if err != nil {
		return nil, err
	}

	var response MetNoResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, newWeatherError(err, errors.CategoryValidation, "unmarshal_forecast", metNoProviderName)
	}

	if len(response.Properties.Timeseries) == 0 {
		return nil, newWeatherError(
			fmt.Errorf("no forecast data available in timeseries"),
			errors.CategoryValidation,
			"validate_forecast_response",
			metNoProviderName,
		)
	}

	points := make([]HourPoint, 0, len(response.Properties.Timeseries))
	for _, entry := range response.Properties.Timeseries {
		points = append(points, HourPoint{
			Time:                     entry.Time.UTC(),
			Temperature:              entry.Data.Instant.Details.AirTemperature,
			Humidity:                 entry.Data.Instant.Details.RelHumidity,
			PrecipitationAmount:      entry.Data.Next1Hours.Details.PrecipitationAmount,
			PrecipitationProbability: entry.Data.Next1Hours.Details.ProbabilityOfPrecipitation,
			SymbolCode:               entry.Data.Next1Hours.Summary.SymbolCode,
		})
	}

	logger.Debug("Parsed hourly forecast", "hours", len(points))
	return points, nil
}

// executeWithRetry executes the HTTP request with retry logic shared by both providers
func executeWithRetry(req *http.Request, logger *slog.Logger, provider string) ([]byte, error) {
	client := &http.Client{Timeout: RequestTimeout}

	for i := range MaxRetries {
		isLastAttempt := i == MaxRetries-1

		resp, err := client.Do(req)
		if err != nil {
			logger.Warn("HTTP request failed", "attempt", i+1, "error", err)
			if isLastAttempt {
				return nil, newWeatherErrorWithRetries(err, errors.CategoryNetwork, "weather_api_request", provider)
			}
			time.Sleep(RetryDelay)
			continue
		}

		if resp.StatusCode != http.StatusOK {
			if closeErr := resp.Body.Close(); closeErr != nil {
				logger.Debug("Failed to close response body", "error", closeErr)
			}
			logger.Warn("Received non-OK status code", "attempt", i+1, "status_code", resp.StatusCode)
			if isLastAttempt {
				return nil, newWeatherErrorWithRetries(
					fmt.Errorf("received non-OK response (%d) after %d retries", resp.StatusCode, MaxRetries),
					errors.CategoryNetwork, "weather_api_response", provider)
			}
			time.Sleep(RetryDelay)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		if closeErr := resp.Body.Close(); closeErr != nil {
			logger.Debug("Failed to close response body", "error", closeErr)
		}
		if err != nil {
			return nil, newWeatherError(err, errors.CategoryNetwork, "read_response_body", provider)
		}
		return body, nil
	}

	return nil, newWeatherErrorWithRetries(
		fmt.Errorf("max retries exceeded"),
		errors.CategoryNetwork,
		"weather_api_request",
		provider,
	)
}
