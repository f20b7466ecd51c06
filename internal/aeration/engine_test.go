package aeration

import (
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sysintegral/aerator-go/internal/conf"
	"github.com/sysintegral/aerator-go/internal/datastore"
	"github.com/sysintegral/aerator-go/internal/suncalc"
	"github.com/sysintegral/aerator-go/internal/weather"
)

// testNow is the fixed wall clock for engine tests: 08:00 UTC, so a 24-hour
// forecast starting here spans hours 8..23 and 0..7.
var testNow = time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

type captureSink struct {
	events []DisableEvent
}

func (s *captureSink) Publish(event DisableEvent) {
	s.events = append(s.events, event)
}

func newEngineTestStore(t *testing.T) *datastore.DataStore {
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
	return &datastore.DataStore{DB: db}
}

// newTestEngine uses the UTC calendar so forecast hour labels line up with
// plain clock arithmetic.
func newTestEngine(t *testing.T, ds datastore.Interface, sink EventSink) (*Engine, *conf.Settings) {
	t.Helper()
	settings := &conf.Settings{}
	e := NewEngine(settings, ds, suncalc.NewResolver(settings), nil, sink)
	e.now = func() time.Time { return testNow }
	return e, settings
}

func makeForecast(settings *conf.Settings, hours int) weather.Forecast {
	forecast := make(weather.Forecast, hours)
	for i := range forecast {
		forecast[i] = weather.HourRecord{
			Hour:        settings.FormatLocalHour(testNow.Add(time.Duration(i) * time.Hour)),
			Temperature: 20,
			Humidity:    50,
			SymbolCode:  "clearsky_day",
		}
	}
	return forecast
}

func seedTestEstablishment(t *testing.T, ds *datastore.DataStore) *datastore.Establishment {
	t.Helper()
	est := &datastore.Establishment{Name: "La Esperanza", Latitude: -34.6, Longitude: -58.4}
	require.NoError(t, ds.SaveEstablishment(est))
	return est
}

func seedTestSilo(t *testing.T, ds *datastore.DataStore, estID uint, mode string) *datastore.Silo {
	t.Helper()
	silo := &datastore.Silo{
		Name:            "Silo 1",
		EstablishmentID: estID,
		MinTemperature:  10,
		MaxTemperature:  25,
		MinHumidity:     40,
		MaxHumidity:     70,
		AirStartHour:    0,
		AirEndHour:      23,
		AeratorPosition: 1,
		ManualMode:      mode,
	}
	require.NoError(t, ds.SaveSilo(silo))
	return silo
}

func seedReadings(t *testing.T, ds *datastore.DataStore, siloID uint, timestamp time.Time, temps ...float64) {
	t.Helper()
	bar := &datastore.SensorBar{Name: "bar-" + time.Now().Format("150405.000000000"), SiloID: &siloID}
	for i := range temps {
		sensorID := uint(1000*siloID) + uint(i) + 1
		bar.Slots = append(bar.Slots, datastore.SensorSlot{Position: i + 1, SensorID: &sensorID})
	}
	require.NoError(t, ds.SaveSensorBar(bar))
	for i, temp := range temps {
		require.NoError(t, ds.SaveTemperatureReading(&datastore.TemperatureReading{
			SensorID:    *bar.Slots[i].SensorID,
			Temperature: temp,
			Timestamp:   timestamp,
		}))
	}
}

func TestModeOffAlwaysUnsafe(t *testing.T) {
	ds := newEngineTestStore(t)
	est := seedTestEstablishment(t, ds)
	silo := seedTestSilo(t, ds, est.ID, datastore.ModeOff)
	e, settings := newTestEngine(t, ds, nil)

	decisions := e.ForecastSilo(silo, est, makeForecast(settings, 24))
	require.Len(t, decisions, 24)
	for _, d := range decisions {
		assert.False(t, d.Safe, "hour %s", d.Hour)
	}
}

func TestModeOnBlockedOnlyByRainAndFog(t *testing.T) {
	ds := newEngineTestStore(t)
	est := seedTestEstablishment(t, ds)
	silo := seedTestSilo(t, ds, est.ID, datastore.ModeOn)
	// Restrictions that on-mode must bypass.
	silo.PeakHoursShutdown = true
	silo.AirStartHour = 2
	silo.AirEndHour = 3
	require.NoError(t, ds.SaveSilo(silo))

	e, settings := newTestEngine(t, ds, nil)
	forecast := makeForecast(settings, 8)
	forecast[2].PrecipitationAmount = 1.5 // blocks hours 1, 2, 3
	forecast[6].Humidity = 97             // fog heuristic with the low temperature below
	forecast[6].Temperature = 10

	decisions := e.ForecastSilo(silo, est, forecast)
	require.Len(t, decisions, 8)

	expected := []bool{true, false, false, false, true, true, false, true}
	for i, d := range decisions {
		assert.Equal(t, expected[i], d.Safe, "hour index %d (%s)", i, d.Hour)
	}
}

func TestModeAutoChecksBoundsAndGates(t *testing.T) {
	ds := newEngineTestStore(t)
	est := seedTestEstablishment(t, ds)
	silo := seedTestSilo(t, ds, est.ID, datastore.ModeAuto)
	e, settings := newTestEngine(t, ds, nil)

	forecast := makeForecast(settings, 4)
	forecast[1].Temperature = 30 // above max bound
	forecast[2].Humidity = 75    // above max bound

	decisions := e.ForecastSilo(silo, est, forecast)
	assert.True(t, decisions[0].Safe)
	assert.False(t, decisions[1].Safe)
	assert.False(t, decisions[2].Safe)
	assert.True(t, decisions[3].Safe)
}

func TestModeAutoPeakHoursShutdown(t *testing.T) {
	ds := newEngineTestStore(t)
	est := seedTestEstablishment(t, ds)
	silo := seedTestSilo(t, ds, est.ID, datastore.ModeAuto)
	silo.PeakHoursShutdown = true
	require.NoError(t, ds.SaveSilo(silo))
	e, settings := newTestEngine(t, ds, nil)

	// Forecast starts at hour 8; indices 9..15 cover local hours 17..23.
	decisions := e.ForecastSilo(silo, est, makeForecast(settings, 24))
	require.Len(t, decisions, 24)
	for i, d := range decisions {
		hour := (8 + i) % 24
		// Blocked hours are [17,23] inclusive.
		wantSafe := hour < 17
		assert.Equal(t, wantSafe, d.Safe, "local hour %d", hour)
	}
}

func TestUnknownModeFallsBackToAuto(t *testing.T) {
	ds := newEngineTestStore(t)
	est := seedTestEstablishment(t, ds)
	silo := seedTestSilo(t, ds, est.ID, "legacy-label")
	e, settings := newTestEngine(t, ds, nil)

	forecast := makeForecast(settings, 2)
	forecast[1].Temperature = 30

	decisions := e.ForecastSilo(silo, est, forecast)
	assert.True(t, decisions[0].Safe, "unknown mode must behave like auto, not off")
	assert.False(t, decisions[1].Safe)
}

func TestModeAutoSunScheduleCloudyVeto(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	// Sunrise 07:00, sunset 19:00 UTC; with offsets the window is hours 8-17.
	httpmock.RegisterResponder("GET", `=~^https://api\.sunrise-sunset\.org/json`,
		httpmock.NewStringResponder(http.StatusOK, `{
			"results": {
				"sunrise": "2025-03-10T07:00:00+00:00",
				"sunset": "2025-03-10T19:00:00+00:00"
			},
			"status": "OK"
		}`))

	ds := newEngineTestStore(t)
	est := seedTestEstablishment(t, ds)
	silo := seedTestSilo(t, ds, est.ID, datastore.ModeAuto)
	silo.UseSunSchedule = true
	require.NoError(t, ds.SaveSilo(silo))

	e, settings := newTestEngine(t, ds, nil)
	settings.Realtime.Sun.Endpoint = "https://api.sunrise-sunset.org/json"

	// The forecast spans local hours 8..19; hours 18 and 19 fall outside the
	// daylight window.
	forecast := makeForecast(settings, 12)
	forecast[1].SymbolCode = "cloudy"         // symbol veto at hour 9
	forecast[2].PrecipitationProbability = 45 // probability veto at hour 10

	decisions := e.ForecastSilo(silo, est, forecast)
	require.Len(t, decisions, 12)
	for i, d := range decisions {
		hour := 8 + i
		wantSafe := hour < 18 && i != 1 && i != 2
		assert.Equal(t, wantSafe, d.Safe, "local hour %d", hour)
	}
}

func TestDecideHourMatchesForecastSilo(t *testing.T) {
	ds := newEngineTestStore(t)
	est := seedTestEstablishment(t, ds)
	silo := seedTestSilo(t, ds, est.ID, datastore.ModeAuto)
	e, settings := newTestEngine(t, ds, nil)

	forecast := makeForecast(settings, 6)
	forecast[1].Temperature = 30        // out of bounds
	forecast[3].PrecipitationAmount = 2 // blocks hours 2, 3, 4

	decisions := e.ForecastSilo(silo, est, forecast)
	for idx := range forecast {
		assert.Equal(t, decisions[idx].Safe, e.DecideHour(silo, est, forecast, idx), "hour index %d", idx)
	}

	assert.False(t, e.DecideHour(silo, est, forecast, -1))
	assert.False(t, e.DecideHour(silo, est, forecast, len(forecast)))
	assert.False(t, e.DecideHour(nil, est, forecast, 0))
}

func TestIntelligentTemperaturePriority(t *testing.T) {
	ds := newEngineTestStore(t)
	est := seedTestEstablishment(t, ds)
	silo := seedTestSilo(t, ds, est.ID, datastore.ModeIntelligent)

	targetTemp := 20.0
	config := &datastore.AerationConfig{
		SiloID:             silo.ID,
		GrainType:          datastore.GrainCorn,
		TargetEMC:          13.2,
		TargetTemp:         &targetTemp,
		DeltaTempMin:       5,
		DeltaTempHyst:      2,
		AchieveTemperature: true,
		AchieveHumidity:    true,
		Active:             true,
	}
	require.NoError(t, ds.SaveAerationConfig(config))
	silo.AerationConfig = config

	// Hot grain (30°C max) and cool outside air: cooling is needed and useful.
	seedReadings(t, ds, silo.ID, testNow.Add(-1*time.Hour), 30, 30)

	e, settings := newTestEngine(t, ds, nil)
	forecast := makeForecast(settings, 1)
	forecast[0].Temperature = 20
	forecast[0].Humidity = 80 // humidity strategy alone would say no

	decisions := e.ForecastSilo(silo, est, forecast)
	require.Len(t, decisions, 1)
	assert.True(t, decisions[0].Safe, "temperature strategy must short-circuit humidity")
}

func TestIntelligentHumidityStrategy(t *testing.T) {
	ds := newEngineTestStore(t)
	est := seedTestEstablishment(t, ds)
	silo := seedTestSilo(t, ds, est.ID, datastore.ModeIntelligent)

	config := &datastore.AerationConfig{
		SiloID:          silo.ID,
		GrainType:       datastore.GrainCorn,
		TargetEMC:       13.2,
		AchieveHumidity: true,
		Active:          true,
	}
	require.NoError(t, ds.SaveAerationConfig(config))
	silo.AerationConfig = config

	// Grain at 20°C average: equilibrium RH for 13.2% corn is 62.5%, so the
	// drying threshold after hysteresis is 60.5%.
	seedReadings(t, ds, silo.ID, testNow.Add(-1*time.Hour), 20, 20)

	e, settings := newTestEngine(t, ds, nil)
	forecast := makeForecast(settings, 2)
	forecast[0].Humidity = 55 // dry enough
	forecast[1].Humidity = 62 // inside the hysteresis band

	decisions := e.ForecastSilo(silo, est, forecast)
	assert.True(t, decisions[0].Safe)
	assert.False(t, decisions[1].Safe)
}

func TestIntelligentStaleDataAutoDisable(t *testing.T) {
	ds := newEngineTestStore(t)
	est := seedTestEstablishment(t, ds)
	silo := seedTestSilo(t, ds, est.ID, datastore.ModeIntelligent)

	config := &datastore.AerationConfig{
		SiloID:          silo.ID,
		GrainType:       datastore.GrainCorn,
		TargetEMC:       13.2,
		AchieveHumidity: true,
		Active:          true,
	}
	require.NoError(t, ds.SaveAerationConfig(config))
	silo.AerationConfig = config

	seedReadings(t, ds, silo.ID, testNow.Add(-8*24*time.Hour), 20, 20)

	sink := &captureSink{}
	e, settings := newTestEngine(t, ds, sink)

	decisions := e.ForecastSilo(silo, est, makeForecast(settings, 2))
	assert.False(t, decisions[0].Safe, "the stale hour itself is unsafe")
	// The downgrade takes effect mid-evaluation: the next hour runs under
	// auto, and the benign test weather passes its bounds.
	assert.True(t, decisions[1].Safe)
	assert.Equal(t, datastore.ModeAuto, silo.ManualMode)

	gotConfig, err := ds.GetAerationConfig(silo.ID)
	require.NoError(t, err)
	assert.False(t, gotConfig.Active, "config must be deactivated")

	gotSilo, err := ds.GetSilo(silo.ID)
	require.NoError(t, err)
	assert.Equal(t, datastore.ModeAuto, gotSilo.ManualMode, "mode must fall back to auto")
	assert.True(t, gotSilo.Modified, "devices must be told to re-poll")

	require.Len(t, sink.events, 1, "disable must be reported exactly once")
	assert.Equal(t, silo.ID, sink.events[0].SiloID)
	assert.Equal(t, silo.Name, sink.events[0].SiloName)
	assert.NotEmpty(t, sink.events[0].Reason)
	assert.NotEmpty(t, sink.events[0].ID, "events need an ID so clients can deduplicate across polls")
}

func TestDisableEventIDsAreUnique(t *testing.T) {
	sink := &captureSink{}
	for i := 0; i < 2; i++ {
		ds := newEngineTestStore(t)
		est := seedTestEstablishment(t, ds)
		silo := seedTestSilo(t, ds, est.ID, datastore.ModeIntelligent)
		require.NoError(t, ds.SaveAerationConfig(&datastore.AerationConfig{
			SiloID: silo.ID, GrainType: datastore.GrainCorn, AchieveHumidity: true, Active: true,
		}))
		seedReadings(t, ds, silo.ID, testNow.Add(-8*24*time.Hour), 20)

		e, settings := newTestEngine(t, ds, sink)
		e.ForecastSilo(silo, est, makeForecast(settings, 1))
	}

	require.Len(t, sink.events, 2)
	assert.NotEqual(t, sink.events[0].ID, sink.events[1].ID)
}

func TestIntelligentWithoutReadingsIsUnsafe(t *testing.T) {
	ds := newEngineTestStore(t)
	est := seedTestEstablishment(t, ds)
	silo := seedTestSilo(t, ds, est.ID, datastore.ModeIntelligent)

	config := &datastore.AerationConfig{
		SiloID:          silo.ID,
		GrainType:       datastore.GrainCorn,
		AchieveHumidity: true,
		Active:          true,
	}
	require.NoError(t, ds.SaveAerationConfig(config))
	silo.AerationConfig = config

	sink := &captureSink{}
	e, settings := newTestEngine(t, ds, sink)

	decisions := e.ForecastSilo(silo, est, makeForecast(settings, 2))
	for _, d := range decisions {
		assert.False(t, d.Safe)
	}
	assert.Empty(t, sink.events, "missing readings are not a stale-data disable")
}
