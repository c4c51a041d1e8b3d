// Package config loads application configuration and initializes the
// global logger.
package config

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/leadglass/internal/lens"
)

// Config holds the full application configuration.
type Config struct {
	Store  StoreConfig  `yaml:"store" mapstructure:"store"`
	Lens   LensConfig   `yaml:"lens" mapstructure:"lens"`
	Trial  TrialConfig  `yaml:"trial" mapstructure:"trial"`
	Server ServerConfig `yaml:"server" mapstructure:"server"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the persistence backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // sqlite or postgres
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

// LensConfig configures the perception lens.
type LensConfig struct {
	Default          string `yaml:"default" mapstructure:"default"`
	CalibrationsFile string `yaml:"calibrations_file" mapstructure:"calibrations_file"`
}

// TrialConfig configures trial defaults.
type TrialConfig struct {
	TrafficSplit  float64 `yaml:"traffic_split" mapstructure:"traffic_split"`
	MinSampleSize int     `yaml:"min_sample_size" mapstructure:"min_sample_size"`
}

// ServerConfig configures the lead intake server.
type ServerConfig struct {
	Port          int     `yaml:"port" mapstructure:"port"`
	RatePerSecond float64 `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	RateBurst     int     `yaml:"rate_burst" mapstructure:"rate_burst"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LEADGLASS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "leadglass.db")
	v.SetDefault("lens.default", "enterprise_saas")
	v.SetDefault("trial.traffic_split", 0.5)
	v.SetDefault("trial.min_sample_size", 50)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.rate_per_second", 10)
	v.SetDefault("server.rate_burst", 20)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}

// calibrationFile is the YAML shape of a calibration override file.
type calibrationFile struct {
	Calibrations []lens.Calibration `yaml:"calibrations"`
}

// LoadCalibrations builds a calibration registry from the built-ins
// plus any named calibrations in the given YAML file. An empty path
// returns the built-ins alone.
func LoadCalibrations(path string) (*lens.Registry, error) {
	if path == "" {
		return lens.NewRegistry(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "config: read calibrations %s", path)
	}

	var file calibrationFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, eris.Wrapf(err, "config: parse calibrations %s", path)
	}

	for _, c := range file.Calibrations {
		if err := lens.ValidateCalibration(c); err != nil {
			return nil, err
		}
	}

	return lens.NewRegistry(file.Calibrations...), nil
}
