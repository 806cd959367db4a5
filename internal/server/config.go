package server

import (
	"fmt"

	"github.com/spf13/viper"
)

// LoadConfig loads configuration with the following precedence:
// 1. Environment variables (HEARTH_ prefix)
// 2. Config file (path given explicitly, or hearth.yaml in search paths)
// 3. Defaults
func LoadConfig(configPath string) (*viper.Viper, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8123)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("database.path", "./data/hearth.db")

	// Hardware defaults
	v.SetDefault("hardware.tick_interval", "15s")
	v.SetDefault("hardware.radio433.device", "")
	v.SetDefault("hardware.radio868.device", "")
	v.SetDefault("hardware.upnp.enabled", true)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("hearth")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/hearth")
	}

	// Environment variable support: HEARTH_SERVER_PORT=9090
	v.SetEnvPrefix("HEARTH")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		// Config file not found is fine -- use defaults
	}

	return v, nil
}
