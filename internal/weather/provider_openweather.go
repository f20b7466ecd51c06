package weather

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/sysintegral/aerator-go/internal/errors"
)

const openWeatherProviderName = "openweather"

// OpenWeatherResponse represents the structure of the OpenWeather current weather response
type OpenWeatherResponse struct {
	Weather []struct {
		ID          int    `json:"id"`
		Main        string `json:"main"`
		Description string `json:"description"`
		Icon        string `json:"icon"`
	} `json:"weather"`
	Main struct {
		Temp     float64 `json:"temp"`
		Pressure int     `json:"pressure"`
		Humidity float64 `json:"humidity"`
	} `json:"main"`
	Rain struct {
		OneHour float64 `json:"1h"`
	} `json:"rain"`
	Snow struct {
		OneHour float64 `json:"1h"`
	} `json:"snow"`
	Dt   int64  `json:"dt"`
	Name string `json:"name"`
}

// FetchCurrent implements the CurrentProvider interface for OpenWeatherProvider.
// Rain and snow over the last hour are summed into a single precipitation amount.
func (p *OpenWeatherProvider) FetchCurrent(lat, lon float64) (*CurrentConditions, error) {
	cfg := p.settings.Realtime.Weather.OpenWeather
	if cfg.APIKey == "" {
		return nil, errors.Newf("OpenWeather API key not configured").
			Component("weather").
			Category(errors.CategoryConfiguration).
			Context("provider", openWeatherProviderName).
			Build()
	}

	apiURL := fmt.Sprintf("%s?lat=%.6f&lon=%.6f&appid=%s&units=%s",
		cfg.Endpoint, lat, lon, cfg.APIKey, cfg.Units)

	logger := weatherLogger.With("provider", openWeatherProviderName)

	req, err := http.NewRequest("GET", apiURL, http.NoBody)
	if err != nil {
		return nil, newWeatherError(err, errors.CategoryNetwork, "create_http_request", openWeatherProviderName)
	}
	req.Header.Set("User-Agent", p.settings.Realtime.Weather.MetNo.UserAgent)

	body, err := executeWithRetry(req, logger, openWeatherProviderName)
	if err != nil {
		return nil, err
	}

	var response OpenWeatherResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, newWeatherError(err, errors.CategoryValidation, "unmarshal_conditions", openWeatherProviderName)
	}

	conditions := &CurrentConditions{
		Temperature:         response.Main.Temp,
		Humidity:            response.Main.Humidity,
		PrecipitationAmount: response.Rain.OneHour + response.Snow.OneHour,
	}
	logger.Debug("Parsed current conditions",
		"temp_c", conditions.Temperature,
		"humidity_pct", conditions.Humidity,
		"precip_mm", conditions.PrecipitationAmount,
	)
	return conditions, nil
}
