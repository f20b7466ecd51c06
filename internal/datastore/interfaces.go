// interfaces.go: this code defines the interface for the database operations
package datastore

import (
	"fmt"
	"sort"
	"time"

	"github.com/sysintegral/aerator-go/internal/conf"
	"github.com/sysintegral/aerator-go/internal/errors"
	"gorm.io/gorm"
)

// Interface abstracts the underlying database implementation and defines the
// operations the aeration engine and the API layer need.
type Interface interface {
	Open() error
	Close() error

	GetEstablishments() ([]Establishment, error)
	GetEstablishment(id uint) (*Establishment, error)
	SaveEstablishment(est *Establishment) error

	GetSilosForEstablishment(establishmentID uint) ([]Silo, error)
	GetSilo(id uint) (*Silo, error)
	SaveSilo(silo *Silo) error
	SetManualMode(siloID uint, mode string) error
	MarkModified(siloID uint) error
	MarkEstablishmentModified(establishmentID uint) error
	ClearModified(establishmentID uint) error
	AnyModified(establishmentID uint) (bool, error)
	AvailableAeratorPositions(establishmentID uint, excludeSiloID uint) ([]int, error)

	GetAerationConfig(siloID uint) (*AerationConfig, error)
	SaveAerationConfig(config *AerationConfig) error
	DeactivateAerationConfig(siloID uint) error

	GetSensorBarForSilo(siloID uint) (*SensorBar, error)
	LatestReadingsForSilo(siloID uint) (map[uint]TemperatureReading, error)
	SaveTemperatureReading(reading *TemperatureReading) error
	SaveSensorBar(bar *SensorBar) error

	GlobalAeratorEnabled() (bool, error)
	SetGlobalAeratorEnabled(enabled bool) error
}

// DataStore implements Interface using a GORM database.
type DataStore struct {
	DB *gorm.DB
}

// New creates a new datastore based on the provided configuration.
func New(settings *conf.Settings) Interface {
	switch {
	case settings.Output.SQLite.Enabled:
		return &SQLiteStore{Settings: settings}
	case settings.Output.MySQL.Enabled:
		return &MySQLStore{Settings: settings}
	default:
		return nil
	}
}

func newDatabaseError(err error, operation string) error {
	return errors.New(err).
		Component("datastore").
		Category(errors.CategoryDatabase).
		Context("operation", operation).
		Build()
}

// Open on a bare DataStore only validates that a connection is already
// attached; the SQLite and MySQL stores override it with a real dial.
func (ds *DataStore) Open() error {
	if ds.DB == nil {
		return newDatabaseError(gorm.ErrInvalidDB, "open")
	}
	return nil
}

// Close closes the database connection
func (ds *DataStore) Close() error {
	if ds.DB == nil {
		return nil
	}
	sqlDB, err := ds.DB.DB()
	if err != nil {
		return newDatabaseError(err, "close")
	}
	return sqlDB.Close()
}

// GetEstablishments returns all establishments with their silos preloaded
func (ds *DataStore) GetEstablishments() ([]Establishment, error) {
	var establishments []Establishment
	if err := ds.DB.Preload("Silos").Find(&establishments).Error; err != nil {
		return nil, newDatabaseError(err, "get_establishments")
	}
	return establishments, nil
}

// GetEstablishment returns a single establishment with its silos preloaded
func (ds *DataStore) GetEstablishment(id uint) (*Establishment, error) {
	var est Establishment
	if err := ds.DB.Preload("Silos").First(&est, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Newf("establishment %d not found", id).
				Component("datastore").
				Category(errors.CategoryNotFound).
				Build()
		}
		return nil, newDatabaseError(err, "get_establishment")
	}
	return &est, nil
}

// SaveEstablishment creates or updates an establishment
func (ds *DataStore) SaveEstablishment(est *Establishment) error {
	if err := ds.DB.Save(est).Error; err != nil {
		return newDatabaseError(err, "save_establishment")
	}
	return nil
}

// GetSilosForEstablishment returns the silos belonging to an establishment,
// ordered by aerator position
func (ds *DataStore) GetSilosForEstablishment(establishmentID uint) ([]Silo, error) {
	var silos []Silo
	err := ds.DB.Where("establishment_id = ?", establishmentID).
		Order("aerator_position").
		Preload("AerationConfig").
		Find(&silos).Error
	if err != nil {
		return nil, newDatabaseError(err, "get_silos_for_establishment")
	}
	return silos, nil
}

// GetSilo returns a single silo with its aeration config preloaded
func (ds *DataStore) GetSilo(id uint) (*Silo, error) {
	var silo Silo
	if err := ds.DB.Preload("AerationConfig").First(&silo, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Newf("silo %d not found", id).
				Component("datastore").
				Category(errors.CategoryNotFound).
				Build()
		}
		return nil, newDatabaseError(err, "get_silo")
	}
	return &silo, nil
}

// SaveSilo creates or updates a silo
func (ds *DataStore) SaveSilo(silo *Silo) error {
	if silo.MinTemperature >= silo.MaxTemperature {
		return errors.Newf("silo temperature bounds invalid: min %.1f >= max %.1f",
			silo.MinTemperature, silo.MaxTemperature).
			Component("datastore").
			Category(errors.CategoryValidation).
			Build()
	}
	if silo.MinHumidity >= silo.MaxHumidity {
		return errors.Newf("silo humidity bounds invalid: min %.1f >= max %.1f",
			silo.MinHumidity, silo.MaxHumidity).
			Component("datastore").
			Category(errors.CategoryValidation).
			Build()
	}
	if err := ds.DB.Save(silo).Error; err != nil {
		return newDatabaseError(err, "save_silo")
	}
	return nil
}

// SetManualMode updates a silo's manual mode and marks it modified so field
// devices pick up the change
func (ds *DataStore) SetManualMode(siloID uint, mode string) error {
	err := ds.DB.Model(&Silo{}).Where("id = ?", siloID).
		Updates(map[string]any{"manual_mode": mode, "modified": true}).Error
	if err != nil {
		return newDatabaseError(err, "set_manual_mode")
	}
	return nil
}

// MarkModified sets the dirty bit on a silo
func (ds *DataStore) MarkModified(siloID uint) error {
	if err := ds.DB.Model(&Silo{}).Where("id = ?", siloID).Update("modified", true).Error; err != nil {
		return newDatabaseError(err, "mark_modified")
	}
	return nil
}

// MarkEstablishmentModified sets the dirty bit on every silo of an establishment
func (ds *DataStore) MarkEstablishmentModified(establishmentID uint) error {
	err := ds.DB.Model(&Silo{}).Where("establishment_id = ?", establishmentID).
		Update("modified", true).Error
	if err != nil {
		return newDatabaseError(err, "mark_establishment_modified")
	}
	return nil
}

// ClearModified clears the dirty bit on every silo of an establishment,
// called after a device has fetched its schedule
func (ds *DataStore) ClearModified(establishmentID uint) error {
	err := ds.DB.Model(&Silo{}).Where("establishment_id = ?", establishmentID).
		Update("modified", false).Error
	if err != nil {
		return newDatabaseError(err, "clear_modified")
	}
	return nil
}

// AnyModified reports whether any silo of an establishment has its dirty bit set
func (ds *DataStore) AnyModified(establishmentID uint) (bool, error) {
	var count int64
	err := ds.DB.Model(&Silo{}).
		Where("establishment_id = ? AND modified = ?", establishmentID, true).
		Count(&count).Error
	if err != nil {
		return false, newDatabaseError(err, "any_modified")
	}
	return count > 0, nil
}

// AvailableAeratorPositions returns the aerator positions (1-8) not yet taken
// within an establishment. excludeSiloID, when non-zero, releases that silo's
// own position so it can keep it while being edited.
func (ds *DataStore) AvailableAeratorPositions(establishmentID uint, excludeSiloID uint) ([]int, error) {
	query := ds.DB.Model(&Silo{}).Where("establishment_id = ?", establishmentID)
	if excludeSiloID != 0 {
		query = query.Where("id <> ?", excludeSiloID)
	}
	var occupied []int
	if err := query.Pluck("aerator_position", &occupied).Error; err != nil {
		return nil, newDatabaseError(err, "available_aerator_positions")
	}

	taken := make(map[int]bool, len(occupied))
	for _, p := range occupied {
		taken[p] = true
	}
	available := make([]int, 0, SensorBarSlots)
	for p := 1; p <= SensorBarSlots; p++ {
		if !taken[p] {
			available = append(available, p)
		}
	}
	return available, nil
}

// GetAerationConfig returns the intelligent-mode config for a silo, or nil if
// none has been created yet
func (ds *DataStore) GetAerationConfig(siloID uint) (*AerationConfig, error) {
	var config AerationConfig
	err := ds.DB.Where("silo_id = ?", siloID).First(&config).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, newDatabaseError(err, "get_aeration_config")
	}
	return &config, nil
}

// SaveAerationConfig creates or updates an intelligent-mode config
func (ds *DataStore) SaveAerationConfig(config *AerationConfig) error {
	if err := ds.DB.Save(config).Error; err != nil {
		return newDatabaseError(err, "save_aeration_config")
	}
	return nil
}

// DeactivateAerationConfig deactivates a silo's intelligent-mode config and
// forces the silo back to auto mode, as a single transaction
func (ds *DataStore) DeactivateAerationConfig(siloID uint) error {
	err := ds.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&AerationConfig{}).Where("silo_id = ?", siloID).
			Update("active", false).Error; err != nil {
			return err
		}
		return tx.Model(&Silo{}).Where("id = ?", siloID).
			Updates(map[string]any{"manual_mode": ModeAuto, "modified": true}).Error
	})
	if err != nil {
		return newDatabaseError(err, "deactivate_aeration_config")
	}
	return nil
}

// GetSensorBarForSilo returns the sensor bar assigned to a silo with its slots
// ordered by position, or nil if the silo has no bar
func (ds *DataStore) GetSensorBarForSilo(siloID uint) (*SensorBar, error) {
	var bar SensorBar
	err := ds.DB.Where("silo_id = ?", siloID).
		Preload("Slots", func(db *gorm.DB) *gorm.DB { return db.Order("position") }).
		First(&bar).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, newDatabaseError(err, "get_sensor_bar_for_silo")
	}
	return &bar, nil
}

// SaveSensorBar creates or updates a sensor bar and its slots
func (ds *DataStore) SaveSensorBar(bar *SensorBar) error {
	for _, slot := range bar.Slots {
		if slot.Position < 1 || slot.Position > SensorBarSlots {
			return errors.New(fmt.Errorf("slot position %d out of range 1-%d", slot.Position, SensorBarSlots)).
				Component("datastore").
				Category(errors.CategoryValidation).
				Build()
		}
	}
	if err := ds.DB.Save(bar).Error; err != nil {
		return newDatabaseError(err, "save_sensor_bar")
	}
	return nil
}

// LatestReadingsForSilo returns the most recent temperature reading per sensor
// on the silo's assigned bar, keyed by sensor id. Slots without an assigned
// sensor or without readings are simply absent from the result.
func (ds *DataStore) LatestReadingsForSilo(siloID uint) (map[uint]TemperatureReading, error) {
	bar, err := ds.GetSensorBarForSilo(siloID)
	if err != nil {
		return nil, err
	}
	if bar == nil {
		return nil, nil
	}

	sensorIDs := make([]uint, 0, len(bar.Slots))
	for _, slot := range bar.Slots {
		if slot.SensorID != nil {
			sensorIDs = append(sensorIDs, *slot.SensorID)
		}
	}
	if len(sensorIDs) == 0 {
		return nil, nil
	}
	sort.Slice(sensorIDs, func(i, j int) bool { return sensorIDs[i] < sensorIDs[j] })

	latest := make(map[uint]TemperatureReading, len(sensorIDs))
	for _, sensorID := range sensorIDs {
		var reading TemperatureReading
		err := ds.DB.Where("sensor_id = ?", sensorID).
			Order("timestamp DESC").
			First(&reading).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				continue
			}
			return nil, newDatabaseError(err, "latest_readings_for_silo")
		}
		latest[sensorID] = reading
	}
	return latest, nil
}

// SaveTemperatureReading stores a grain temperature sample
func (ds *DataStore) SaveTemperatureReading(reading *TemperatureReading) error {
	if err := ds.DB.Create(reading).Error; err != nil {
		return newDatabaseError(err, "save_temperature_reading")
	}
	return nil
}

// GlobalAeratorEnabled returns the persisted kill-switch state, lazily
// creating the enabled singleton row on first access
func (ds *DataStore) GlobalAeratorEnabled() (bool, error) {
	control, err := ds.getGlobalAeratorControl()
	if err != nil {
		return false, err
	}
	return control.Enabled, nil
}

// SetGlobalAeratorEnabled updates the persisted kill-switch state
func (ds *DataStore) SetGlobalAeratorEnabled(enabled bool) error {
	control, err := ds.getGlobalAeratorControl()
	if err != nil {
		return err
	}
	control.Enabled = enabled
	control.LastModified = time.Now()
	if err := ds.DB.Save(control).Error; err != nil {
		return newDatabaseError(err, "set_global_aerator_enabled")
	}
	return nil
}

func (ds *DataStore) getGlobalAeratorControl() (*GlobalAeratorControl, error) {
	var control GlobalAeratorControl
	err := ds.DB.First(&control).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			control = GlobalAeratorControl{Enabled: true, LastModified: time.Now()}
			if err := ds.DB.Create(&control).Error; err != nil {
				return nil, newDatabaseError(err, "create_global_aerator_control")
			}
			return &control, nil
		}
		return nil, newDatabaseError(err, "get_global_aerator_control")
	}
	return &control, nil
}
