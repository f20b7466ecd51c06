package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sysintegral/aerator-go/internal/aeration"
	"github.com/sysintegral/aerator-go/internal/conf"
	"github.com/sysintegral/aerator-go/internal/datastore"
	"github.com/sysintegral/aerator-go/internal/notification"
	"github.com/sysintegral/aerator-go/internal/suncalc"
	"github.com/sysintegral/aerator-go/internal/weather"
)

func newTestController(t *testing.T) (*Controller, *datastore.DataStore) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&datastore.Establishment{},
		&datastore.Silo{},
		&datastore.AerationConfig{},
		&datastore.SensorBar{},
		&datastore.SensorSlot{},
		&datastore.TemperatureSensor{},
		&datastore.TemperatureReading{},
		&datastore.GlobalAeratorControl{},
	))
	ds := &datastore.DataStore{DB: db}

	settings := &conf.Settings{}
	settings.Realtime.Weather.MetNo.Endpoint = "https://api.met.no/weatherapi/locationforecast/2.0/compact"
	settings.Realtime.Weather.MetNo.UserAgent = "aerator-go test"
	settings.Realtime.Weather.MaxEstablishments = 20
	settings.WebServer.Port = "0"

	weatherSvc := weather.NewService(settings, nil)
	notifications := notification.NewStore()
	currents := aeration.NewCurrentStore()
	engine := aeration.NewEngine(settings, ds, suncalc.NewResolver(settings), nil, notifications)
	projector := aeration.NewProjector(settings, engine, weatherSvc, ds, currents)

	return New(settings, ds, weatherSvc, projector, currents, notifications), ds
}

func doRequest(c *Controller, method, path, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	c.Echo.ServeHTTP(rec, req)
	return rec
}

func seedAPIEstablishment(t *testing.T, ds *datastore.DataStore) *datastore.Establishment {
	t.Helper()
	est := &datastore.Establishment{Name: "La Esperanza", Latitude: -34.6, Longitude: -58.4}
	require.NoError(t, ds.SaveEstablishment(est))
	return est
}

func seedAPISilo(t *testing.T, ds *datastore.DataStore, estID uint) *datastore.Silo {
	t.Helper()
	silo := &datastore.Silo{
		Name:            "Silo 1",
		EstablishmentID: estID,
		MinTemperature:  10,
		MaxTemperature:  25,
		MinHumidity:     40,
		MaxHumidity:     70,
		AirEndHour:      23,
		AeratorPosition: 1,
		ManualMode:      datastore.ModeAuto,
	}
	require.NoError(t, ds.SaveSilo(silo))
	return silo
}

// registerMetNoMock serves a clear-sky forecast starting at the current hour,
// so schedule and forecast endpoints get live-looking data.
func registerMetNoMock() {
	start := time.Now().UTC().Truncate(time.Hour)
	entries := make([]string, 0, 6)
	for i := 0; i < 6; i++ {
		entries = append(entries, fmt.Sprintf(
			`{"time":%q,"data":{"instant":{"details":{"air_temperature":20,"relative_humidity":50}},"next_1_hours":{"summary":{"symbol_code":"clearsky_day"},"details":{"precipitation_amount":0,"probability_of_precipitation":0}}}}`,
			start.Add(time.Duration(i)*time.Hour).Format(time.RFC3339)))
	}
	body := `{"properties":{"timeseries":[` + strings.Join(entries, ",") + `]}}`
	httpmock.RegisterResponder("GET", `=~^https://api\.met\.no/`,
		httpmock.NewStringResponder(http.StatusOK, body))
}

func TestGetForecast(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()
	registerMetNoMock()

	c, ds := newTestController(t)
	est := seedAPIEstablishment(t, ds)

	rec := doRequest(c, http.MethodGet, fmt.Sprintf("/api/v1/establishments/%d/forecast", est.ID), "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		EstablishmentID uint                 `json:"establishment_id"`
		Forecast        []weather.HourRecord `json:"forecast"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, est.ID, resp.EstablishmentID)
	assert.NotEmpty(t, resp.Forecast)
}

func TestGetForecastUnknownEstablishment(t *testing.T) {
	c, _ := newTestController(t)
	rec := doRequest(c, http.MethodGet, "/api/v1/establishments/999/forecast", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetScheduleClearsModified(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()
	registerMetNoMock()

	c, ds := newTestController(t)
	est := seedAPIEstablishment(t, ds)
	silo := seedAPISilo(t, ds, est.ID)
	require.NoError(t, ds.MarkModified(silo.ID))

	rec := doRequest(c, http.MethodGet, fmt.Sprintf("/api/v1/establishments/%d/schedule", est.ID), "")
	require.Equal(t, http.StatusOK, rec.Code)

	var schedule aeration.Schedule
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &schedule))
	assert.Len(t, schedule.Hours, 24)

	modified, err := ds.AnyModified(est.ID)
	require.NoError(t, err)
	assert.False(t, modified, "fetching the schedule must clear the dirty bits")
}

func TestSetSiloModeEnteringIntelligentActivatesConfig(t *testing.T) {
	c, ds := newTestController(t)
	est := seedAPIEstablishment(t, ds)
	silo := seedAPISilo(t, ds, est.ID)

	rec := doRequest(c, http.MethodPost, fmt.Sprintf("/api/v1/silos/%d/mode", silo.ID), `{"mode":"ia"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	config, err := ds.GetAerationConfig(silo.ID)
	require.NoError(t, err)
	require.NotNil(t, config, "config must be lazily created")
	assert.True(t, config.Active)
	assert.Equal(t, datastore.GrainCorn, config.GrainType)

	got, err := ds.GetSilo(silo.ID)
	require.NoError(t, err)
	assert.Equal(t, datastore.ModeIntelligent, got.ManualMode)
	assert.True(t, got.Modified)
}

func TestSetSiloModeLeavingIntelligentDeactivatesConfig(t *testing.T) {
	c, ds := newTestController(t)
	est := seedAPIEstablishment(t, ds)
	silo := seedAPISilo(t, ds, est.ID)

	rec := doRequest(c, http.MethodPost, fmt.Sprintf("/api/v1/silos/%d/mode", silo.ID), `{"mode":"ia"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = doRequest(c, http.MethodPost, fmt.Sprintf("/api/v1/silos/%d/mode", silo.ID), `{"mode":"auto"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	config, err := ds.GetAerationConfig(silo.ID)
	require.NoError(t, err)
	require.NotNil(t, config)
	assert.False(t, config.Active, "leaving intelligent mode must deactivate the config")
}

func TestSetSiloModeRejectsUnknownMode(t *testing.T) {
	c, ds := newTestController(t)
	est := seedAPIEstablishment(t, ds)
	silo := seedAPISilo(t, ds, est.ID)

	rec := doRequest(c, http.MethodPost, fmt.Sprintf("/api/v1/silos/%d/mode", silo.ID), `{"mode":"turbo"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetModified(t *testing.T) {
	c, ds := newTestController(t)
	est := seedAPIEstablishment(t, ds)
	silo := seedAPISilo(t, ds, est.ID)

	rec := doRequest(c, http.MethodGet, fmt.Sprintf("/api/v1/establishments/%d/modified", est.ID), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"modified":false}`, rec.Body.String())

	require.NoError(t, ds.MarkModified(silo.ID))
	rec = doRequest(c, http.MethodGet, fmt.Sprintf("/api/v1/establishments/%d/modified", est.ID), "")
	assert.JSONEq(t, `{"modified":true}`, rec.Body.String())
}

func TestGlobalControlRoundTrip(t *testing.T) {
	c, ds := newTestController(t)
	est := seedAPIEstablishment(t, ds)
	seedAPISilo(t, ds, est.ID)

	rec := doRequest(c, http.MethodGet, "/api/v1/aerators/global", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"enabled":true}`, rec.Body.String())

	rec = doRequest(c, http.MethodPost, "/api/v1/aerators/global", `{"enabled":false}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(c, http.MethodGet, "/api/v1/aerators/global", "")
	assert.JSONEq(t, `{"enabled":false}`, rec.Body.String())

	modified, err := ds.AnyModified(est.ID)
	require.NoError(t, err)
	assert.True(t, modified, "devices must be told to re-poll after a global toggle")
}

func TestIngestCurrent(t *testing.T) {
	c, _ := newTestController(t)

	rec := doRequest(c, http.MethodPost, "/api/v1/sensors/current", `{"sensor_id":"cs-1","amps":12.5}`)
	require.Equal(t, http.StatusNoContent, rec.Code)

	amps, ok := c.Currents.Get("cs-1")
	require.True(t, ok)
	assert.InDelta(t, 12.5, amps, 0.001)
}

func TestIngestCurrentRequiresSensorID(t *testing.T) {
	c, _ := newTestController(t)
	rec := doRequest(c, http.MethodPost, "/api/v1/sensors/current", `{"amps":12.5}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIngestReading(t *testing.T) {
	c, ds := newTestController(t)

	rec := doRequest(c, http.MethodPost, "/api/v1/sensors/readings",
		`{"sensor_id":42,"temperature":19.5,"timestamp":"2025-03-10T12:00:00Z"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var reading datastore.TemperatureReading
	require.NoError(t, ds.DB.First(&reading).Error)
	assert.Equal(t, uint(42), reading.SensorID)
	assert.InDelta(t, 19.5, reading.Temperature, 0.001)
}

func TestDrainNotifications(t *testing.T) {
	c, _ := newTestController(t)
	c.Notifications.Publish(aeration.DisableEvent{SiloID: 7, SiloName: "Silo 7", Reason: "stale"})

	rec := doRequest(c, http.MethodGet, "/api/v1/notifications/intelligent-disabled", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Notifications []aeration.DisableEvent `json:"notifications"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Notifications, 1)
	assert.Equal(t, uint(7), resp.Notifications[0].SiloID)

	rec = doRequest(c, http.MethodGet, "/api/v1/notifications/intelligent-disabled", "")
	var empty struct {
		Notifications []aeration.DisableEvent `json:"notifications"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &empty))
	assert.Empty(t, empty.Notifications)
}
