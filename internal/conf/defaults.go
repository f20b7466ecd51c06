package conf

import (
	"github.com/spf13/viper"
)

// setDefaultConfig sets the default values for the configuration parameters.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	// Main configuration
	viper.SetDefault("main.name", "aerator-go")
	viper.SetDefault("main.timezone", "America/Argentina/Buenos_Aires")
	viper.SetDefault("main.log.enabled", true)
	viper.SetDefault("main.log.path", "logs/aerator.log")
	viper.SetDefault("main.log.rotation", RotationDaily)
	viper.SetDefault("main.log.maxsize", 10485760)

	// Weather forecast cache
	viper.SetDefault("realtime.weather.pollinterval", 2)
	viper.SetDefault("realtime.weather.maxestablishments", 20)
	viper.SetDefault("realtime.weather.debug", false)
	viper.SetDefault("realtime.weather.metno.endpoint", "https://api.met.no/weatherapi/locationforecast/2.0/complete")
	viper.SetDefault("realtime.weather.metno.useragent", "aerator-go https://github.com/sysintegral/aerator-go")
	viper.SetDefault("realtime.weather.openweather.enabled", true)
	viper.SetDefault("realtime.weather.openweather.apikey", "")
	viper.SetDefault("realtime.weather.openweather.endpoint", "https://api.openweathermap.org/data/2.5/weather")
	viper.SetDefault("realtime.weather.openweather.units", "metric")

	// Sunrise/sunset provider
	viper.SetDefault("realtime.sun.endpoint", "https://api.sunrise-sunset.org/json")

	// Web server
	viper.SetDefault("webserver.enabled", true)
	viper.SetDefault("webserver.port", "8080")
	viper.SetDefault("webserver.debug", false)

	// Database output
	viper.SetDefault("output.sqlite.enabled", true)
	viper.SetDefault("output.sqlite.path", "aerator.db")
	viper.SetDefault("output.mysql.enabled", false)
	viper.SetDefault("output.mysql.username", "aerator")
	viper.SetDefault("output.mysql.password", "")
	viper.SetDefault("output.mysql.database", "aerator")
	viper.SetDefault("output.mysql.host", "localhost")
	viper.SetDefault("output.mysql.port", "3306")
}
