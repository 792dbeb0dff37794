// Package config loads the gateway's configuration, modeled on
// JoseRFJuniorLLMs-EV-IA/pkg/config: viper, env-prefixed, a typed nested
// struct, no mandatory config file.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config is the full configuration table: spec §6's six constants, plus the
// fields the supplemental history/telemetry/metrics components need.
type Config struct {
	AppEnv string `mapstructure:"app_env"`

	ExternalCSMSURL string `mapstructure:"external_csms_url"`

	LocalServerHost string `mapstructure:"local_server_host"`
	LocalServerPort int    `mapstructure:"local_server_port"`

	LocalMeterHost string `mapstructure:"local_meter_host"`
	LocalMeterPort int    `mapstructure:"local_meter_port"`

	MaxTotalPowerW      float64 `mapstructure:"max_total_power_w"`
	DefaultMaxPowerSeed float64 `mapstructure:"default_max_power_seed"`
	MinChargePowerW     float64 `mapstructure:"min_charge_power_w"`

	PersistencePath string `mapstructure:"persistence_path"`

	History   HistoryConfig   `mapstructure:"history"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// HistoryConfig configures the optional non-authoritative session-history
// store. Empty Driver disables it entirely.
type HistoryConfig struct {
	Driver string `mapstructure:"driver"` // "", "sqlite", or "postgres"
	DSN    string `mapstructure:"dsn"`
}

// TelemetryConfig configures the optional raw-frame relay. Empty WSURL
// disables it entirely.
type TelemetryConfig struct {
	WSURL string `mapstructure:"ws_url"`
}

// MetricsConfig configures the /metrics and /healthz listener.
type MetricsConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Load reads configuration from (optionally) a config file and from
// GATEWAY_-prefixed environment variables, falling back to the defaults in
// spec §6.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/ocpp-gateway")

	v.SetEnvPrefix("GATEWAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("app_env", "production")
	v.SetDefault("external_csms_url", "")
	v.SetDefault("local_server_host", "127.0.0.1")
	v.SetDefault("local_server_port", 9000)
	v.SetDefault("local_meter_host", "127.0.0.1")
	v.SetDefault("local_meter_port", 8000)
	v.SetDefault("max_total_power_w", 60000.0)
	v.SetDefault("default_max_power_seed", 3600.0)
	v.SetDefault("min_charge_power_w", 1380.0)
	v.SetDefault("persistence_path", "learned_powers.json")
	v.SetDefault("history.driver", "")
	v.SetDefault("history.dsn", "")
	v.SetDefault("telemetry.ws_url", "")
	v.SetDefault("metrics.host", "127.0.0.1")
	v.SetDefault("metrics.port", 9100)

	// Allow the bare names from spec §6's configuration table without the
	// GATEWAY_ prefix, for drop-in compatibility with existing deployment
	// scripts.
	_ = v.BindEnv("external_csms_url", "EXTERNAL_CSMS_URL", "GATEWAY_EXTERNAL_CSMS_URL")
	_ = v.BindEnv("local_server_host", "LOCAL_SERVER_HOST", "GATEWAY_LOCAL_SERVER_HOST")
	_ = v.BindEnv("local_server_port", "LOCAL_SERVER_PORT", "GATEWAY_LOCAL_SERVER_PORT")
	_ = v.BindEnv("local_meter_host", "LOCAL_METER_HOST", "GATEWAY_LOCAL_METER_HOST")
	_ = v.BindEnv("local_meter_port", "LOCAL_METER_PORT", "GATEWAY_LOCAL_METER_PORT")
	_ = v.BindEnv("max_total_power_w", "MAX_TOTAL_POWER_W", "GATEWAY_MAX_TOTAL_POWER_W")
	_ = v.BindEnv("default_max_power_seed", "DEFAULT_MAX_POWER_SEED", "GATEWAY_DEFAULT_MAX_POWER_SEED")
	_ = v.BindEnv("min_charge_power_w", "MIN_CHARGE_POWER_W", "GATEWAY_MIN_CHARGE_POWER_W")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.ExternalCSMSURL == "" {
		return nil, fmt.Errorf("EXTERNAL_CSMS_URL (or GATEWAY_EXTERNAL_CSMS_URL) must be set")
	}
	if cfg.History.Driver != "" && cfg.History.Driver != "sqlite" && cfg.History.Driver != "postgres" {
		return nil, fmt.Errorf("invalid history.driver %q: must be \"\", \"sqlite\" or \"postgres\"", cfg.History.Driver)
	}

	return &cfg, nil
}
