// model.go this code defines the data model for the application
package datastore

import "time"

// Manual mode values stored on Silo.ManualMode. Values outside this set are
// treated as ModeAuto by the decision engine (legacy "intelligent" label).
const (
	ModeAuto        = "auto"
	ModeOn          = "on"
	ModeOff         = "off"
	ModeIntelligent = "ia"
)

// Grain types recognized by the equilibrium humidity tables.
const (
	GrainWheat = "wheat"
	GrainSoy   = "soy"
	GrainCorn  = "corn"
)

// SensorBarSlots is the fixed number of sensor positions on a bar.
const SensorBarSlots = 8

// Establishment represents a farm site that owns silos
type Establishment struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"type:varchar(100);not null"`
	Latitude  float64
	Longitude float64
	Owner     string `gorm:"type:varchar(100)"`

	// Safety cutoff: aerators are forced off for the current hour when the
	// live reading of CurrentSensorID exceeds MaxOperatingCurrent.
	MaxOperatingCurrent *float64
	CurrentSensorID     string `gorm:"type:varchar(80)"`
	Silos               []Silo `gorm:"foreignKey:EstablishmentID;constraint:OnDelete:CASCADE"`
}

// Silo represents a grain silo with its aeration policy
type Silo struct {
	ID                uint   `gorm:"primaryKey"`
	Name              string `gorm:"type:varchar(100);not null"`
	EstablishmentID   uint   `gorm:"not null;uniqueIndex:idx_silos_est_position"`
	MinTemperature    float64
	MaxTemperature    float64
	MinHumidity       float64
	MaxHumidity       float64
	PeakHoursShutdown bool
	AirStartHour      int    // aeration window start hour (0-23)
	AirEndHour        int    // aeration window end hour (0-23)
	UseSunSchedule    bool   // derive the window from sunrise/sunset instead
	AeratorPosition   int    `gorm:"not null;uniqueIndex:idx_silos_est_position"`
	Modified          bool   // dirty bit consumed by field devices
	ManualMode        string `gorm:"type:varchar(10);default:auto"`

	AerationConfig *AerationConfig `gorm:"foreignKey:SiloID;constraint:OnDelete:CASCADE"`
}

// AerationConfig holds the intelligent-mode tuning for a silo, created lazily
// when a user opts into intelligent mode.
type AerationConfig struct {
	ID                 uint    `gorm:"primaryKey"`
	SiloID             uint    `gorm:"uniqueIndex;not null"`
	GrainType          string  `gorm:"type:varchar(20);default:corn"`
	TargetEMC          float64 `gorm:"default:14.0"` // target equilibrium grain moisture (%)
	DeltaEMCMin        float64 `gorm:"default:1.0"`
	TargetTemp         *float64
	DeltaTempMin       float64 `gorm:"default:5.0"`
	DeltaTempHyst      float64 `gorm:"default:2.0"`
	MinOnTime          int     `gorm:"default:30"` // minutes
	MinOffTime         int     `gorm:"default:30"` // minutes
	RainProtect        bool    `gorm:"default:true"`
	AchieveHumidity    bool
	AchieveTemperature bool
	Active             bool
}

// SensorBar is a physical array of up to 8 temperature sensors assigned to one silo.
// Slots are ordered by position; ownership is unidirectional (bar -> sensors, bar -> silo).
type SensorBar struct {
	ID              uint   `gorm:"primaryKey"`
	Name            string `gorm:"type:varchar(100);uniqueIndex;not null"`
	EstablishmentID *uint
	SiloID          *uint        `gorm:"uniqueIndex"` // a bar serves at most one silo
	Slots           []SensorSlot `gorm:"foreignKey:BarID;constraint:OnDelete:CASCADE"`
}

// SensorSlot is one of the 8 fixed positions on a sensor bar.
type SensorSlot struct {
	ID       uint  `gorm:"primaryKey"`
	BarID    uint  `gorm:"not null;uniqueIndex:idx_slots_bar_position"`
	Position int   `gorm:"not null;uniqueIndex:idx_slots_bar_position"` // 1..SensorBarSlots
	SensorID *uint `gorm:"uniqueIndex"`                                 // a sensor sits in one slot
}

// TemperatureSensor identifies a physical probe
type TemperatureSensor struct {
	ID           uint   `gorm:"primaryKey"`
	SerialNumber string `gorm:"type:varchar(255);uniqueIndex;not null"`
	Description  string `gorm:"type:varchar(100)"`
}

// TemperatureReading is a single grain temperature sample.
// The engine consumes the latest reading per sensor.
type TemperatureReading struct {
	ID          uint      `gorm:"primaryKey"`
	SensorID    uint      `gorm:"index;not null"`
	BarID       *uint
	SiloID      *uint     `gorm:"index"`
	Temperature float64
	Timestamp   time.Time `gorm:"index;not null"`
	RawPayload  string    `gorm:"type:text"`
}

// GlobalAeratorControl is the persisted administrator kill switch.
// A single row, lazily created with Enabled=true.
type GlobalAeratorControl struct {
	ID           uint `gorm:"primaryKey"`
	Enabled      bool `gorm:"not null;default:true"`
	LastModified time.Time
}
