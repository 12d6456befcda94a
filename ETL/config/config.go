package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/LilVoxy/social_metrics/ETL/store"
)

// ETLConfig is the configuration of the social metrics ETL process.
type ETLConfig struct {
	// Warehouse holding bronze, dimensions, facts and the run log
	Database DatabaseConfig `yaml:"database"`

	// Where extracted tables are picked up
	Source SourceConfig `yaml:"source"`

	// Number of files processed in parallel; 1 runs them sequentially
	Workers int `yaml:"workers"`

	// Interval between runs in scheduled mode
	RunInterval time.Duration `yaml:"run_interval"`

	Cleaning CleaningConfig `yaml:"cleaning"`
	Monitor  ServerConfig   `yaml:"monitor"`
	Serve    ServerConfig   `yaml:"serve"`
	Trend    TrendConfig    `yaml:"trend"`

	EnableDetailedLogging bool   `yaml:"enable_detailed_logging"`
	LogFile               string `yaml:"log_file"`
}

// DatabaseConfig holds the warehouse connection settings. DSN, when set,
// takes precedence over the individual fields.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	DSN      string `yaml:"dsn"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

type SourceConfig struct {
	Dir      string   `yaml:"dir"`
	Patterns []string `yaml:"patterns"`
}

// CleaningConfig extends the built-in alias tables. Keys and values are
// normalized before use, so "Insta " and "insta" are the same alias.
type CleaningConfig struct {
	PlatformAliases map[string]string `yaml:"platform_aliases"`
	MetricAliases   map[string]string `yaml:"metric_aliases"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type TrendConfig struct {
	// Minimum number of monthly points before a trend is stored
	MinPoints int `yaml:"min_points"`
}

// Default configuration values
var (
	DefaultDatabaseConfig = DatabaseConfig{
		Driver: "mysql",
		Host:   "localhost",
		Port:   3306,
		User:   "root",
		DBName: "social_metrics",
	}

	DefaultETLConfig = ETLConfig{
		Database: DefaultDatabaseConfig,
		Source: SourceConfig{
			Dir:      "./data/extracts",
			Patterns: []string{"*.csv", "*.json", "*.jsonl"},
		},
		Workers:     4,
		RunInterval: 1 * time.Hour,
		Monitor:     ServerConfig{Addr: ":9090"},
		Serve:       ServerConfig{Addr: ":8080"},
		Trend:       TrendConfig{MinPoints: 3},
	}
)

// GetConfig returns a copy of the default configuration.
func GetConfig() ETLConfig {
	cfg := DefaultETLConfig
	cfg.Source.Patterns = append([]string(nil), DefaultETLConfig.Source.Patterns...)
	return cfg
}

// LoadConfig reads a YAML file and merges it over the defaults.
// ${VAR} references in the file are expanded from the environment.
func LoadConfig(path string) (ETLConfig, error) {
	cfg := GetConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the pipeline cannot run with.
func (c *ETLConfig) Validate() error {
	var errs []error

	if _, err := store.DialectFor(c.Database.Driver); err != nil {
		errs = append(errs, err)
	}
	if c.Database.DSN == "" && !c.isSQLite() && c.Database.Host == "" {
		errs = append(errs, errors.New("database.host or database.dsn is required"))
	}
	if c.Database.DSN == "" && c.Database.DBName == "" {
		errs = append(errs, errors.New("database.dbname or database.dsn is required"))
	}
	if c.Workers < 1 {
		errs = append(errs, errors.New("workers must be at least 1"))
	}
	if c.RunInterval < time.Second {
		errs = append(errs, errors.New("run_interval must be at least 1s"))
	}
	if c.Source.Dir == "" {
		errs = append(errs, errors.New("source.dir is required"))
	}
	if c.Trend.MinPoints < 2 {
		errs = append(errs, errors.New("trend.min_points must be at least 2"))
	}

	return errors.Join(errs...)
}

func (c *ETLConfig) isSQLite() bool {
	d, err := store.DialectFor(c.Database.Driver)
	return err == nil && d.Name == store.SQLite.Name
}
