// Package config resolves the broker option set from defaults, an
// optional YAML config file, PWCTL_ environment variables, and CLI
// flags, in that order of increasing precedence.
package config

import (
	"fmt"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Browser kinds the engine can drive.
var browserKinds = []string{"chromium", "firefox", "webkit"}

// Navigation wait strategies the engine accepts.
var waitStrategies = []string{"load", "domcontentloaded", "networkidle"}

// Config is the resolved application configuration.
type Config struct {
	BrowserKind  string `mapstructure:"browser_kind"`
	Headless     bool   `mapstructure:"headless"`
	CDPEndpoint  string `mapstructure:"cdp_endpoint"`
	LaunchServer bool   `mapstructure:"launch_server"`
	AuthFile     string `mapstructure:"auth_file"`
	WaitUntil    string `mapstructure:"wait_until"`

	DriverPath string `mapstructure:"driver_path"`
	NodePath   string `mapstructure:"node_path"`

	Logger LoggerConfig `mapstructure:"logger"`
}

// LoggerConfig controls log output.
type LoggerConfig struct {
	Level   string `mapstructure:"level"`
	LogFile string `mapstructure:"log_file"`
	// MaxSize, MaxBackups, and MaxAge configure log file rotation
	// (megabytes, count, days).
	MaxSize    int  `mapstructure:"max_size"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAge     int  `mapstructure:"max_age"`
	Compress   bool `mapstructure:"compress"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("browser_kind", "chromium")
	v.SetDefault("headless", true)
	v.SetDefault("cdp_endpoint", "")
	v.SetDefault("launch_server", false)
	v.SetDefault("auth_file", "")
	v.SetDefault("wait_until", "load")
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.max_size", 10)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 28)
}

// Load builds the configuration. configFile may be empty, in which
// case only defaults and environment apply.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("PWCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	var cfg Config
	// Environment values arrive as strings; decode them weakly so
	// PWCTL_HEADLESS=false and friends land in typed fields.
	weak := func(dc *mapstructure.DecoderConfig) { dc.WeaklyTypedInput = true }
	if err := v.Unmarshal(&cfg, weak); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks enumerated fields.
func (c *Config) Validate() error {
	if !contains(browserKinds, c.BrowserKind) {
		return fmt.Errorf("browser_kind must be one of %s, got %q",
			strings.Join(browserKinds, "|"), c.BrowserKind)
	}
	if !contains(waitStrategies, c.WaitUntil) {
		return fmt.Errorf("wait_until must be one of %s, got %q",
			strings.Join(waitStrategies, "|"), c.WaitUntil)
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
