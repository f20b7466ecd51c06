// Package conf loads and provides access to application configuration.
package conf

import (
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"
)

// RotationType defines the type of log rotation
type RotationType string

const (
	RotationDaily  RotationType = "daily"
	RotationWeekly RotationType = "weekly"
	RotationSize   RotationType = "size"
)

// LogConfig defines the configuration for a log file
type LogConfig struct {
	Enabled  bool         // true to enable this log
	Path     string       // path to the log file
	Rotation RotationType // type of log rotation
	MaxSize  int64        // max size in bytes for RotationSize
}

// MetNoSettings holds configuration for the MET Norway forecast provider
type MetNoSettings struct {
	Endpoint  string // locationforecast endpoint
	UserAgent string // identification required by api.met.no terms of service
}

// OpenWeatherSettings holds configuration for the OpenWeather current-conditions provider
type OpenWeatherSettings struct {
	Enabled  bool   // true to merge OpenWeather current conditions into the forecast
	APIKey   string // OpenWeather API key
	Endpoint string // OpenWeather API endpoint
	Units    string // metric, imperial, standard
}

// WeatherSettings contains the forecast cache configuration
type WeatherSettings struct {
	PollInterval      int // background refresh step in minutes
	MaxEstablishments int // round-robin capacity of the forecast cache
	Debug             bool
	MetNo             MetNoSettings
	OpenWeather       OpenWeatherSettings
}

// SunSettings contains the sunrise/sunset provider configuration
type SunSettings struct {
	Endpoint string // sunrise-sunset.org style endpoint returning UTC times
}

// Settings contains all configuration options for the aerator server.
type Settings struct {
	Debug bool // true to enable debug mode

	// Runtime values, not stored in config file
	Version   string `yaml:"-"`
	BuildDate string `yaml:"-"`

	Main struct {
		Name     string    // name of this aerator node
		Timezone string    // IANA timezone of the establishments' civil calendar
		Log      LogConfig // logging configuration
	}

	Realtime struct {
		Weather WeatherSettings
		Sun     SunSettings
	}

	WebServer struct {
		Debug   bool
		Enabled bool
		Port    string
	}

	Output struct {
		SQLite struct {
			Enabled bool   // true to enable sqlite output
			Path    string // path to sqlite database
		}

		MySQL struct {
			Enabled  bool
			Username string
			Password string
			Database string
			Host     string
			Port     string
		}
	}
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment variables into Settings.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper initializes viper with default values and reads the configuration file.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	// Set default values for each configuration parameter,
	// function defined in defaults.go
	setDefaultConfig()

	err = viper.ReadInConfig()
	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if stderrors.As(err, &configFileNotFoundError) {
			// Config file not found, run with defaults
			return nil
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// GetDefaultConfigPaths returns the paths where a config file is searched for.
func GetDefaultConfigPaths() ([]string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("error getting user home directory: %w", err)
	}
	return []string{
		".",
		filepath.Join(homeDir, ".config", "aerator-go"),
		"/etc/aerator-go",
	}, nil
}

// Setting returns the current settings instance, loading it if necessary.
func Setting() *Settings {
	settingsMutex.RLock()
	instance := settingsInstance
	settingsMutex.RUnlock()
	if instance != nil {
		return instance
	}

	settings, err := Load()
	if err != nil {
		return &Settings{}
	}
	return settings
}

// SetTestSettings replaces the settings instance, for tests only.
func SetTestSettings(settings *Settings) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()
	settingsInstance = settings
}

// ValidateSettings performs basic sanity checks on loaded settings.
func ValidateSettings(settings *Settings) error {
	if settings.Realtime.Weather.PollInterval <= 0 {
		return fmt.Errorf("weather poll interval must be positive, got %d", settings.Realtime.Weather.PollInterval)
	}
	if settings.Realtime.Weather.MaxEstablishments <= 0 {
		return fmt.Errorf("weather cache capacity must be positive, got %d", settings.Realtime.Weather.MaxEstablishments)
	}
	if settings.Main.Timezone != "" {
		if _, err := loadLocation(settings.Main.Timezone); err != nil {
			return fmt.Errorf("invalid timezone %q: %w", settings.Main.Timezone, err)
		}
	}
	return nil
}
