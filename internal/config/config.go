package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Record sources understood by the exporter.
const (
	SourceCosmos   = "cosmos"
	SourcePostgres = "postgres"
	SourceSQLite   = "sqlite"
)

var ErrUnknownSource = errors.New("unknown record source")

type Config struct {
	Env      string `mapstructure:"ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`
	Source   string `mapstructure:"SOURCE"`

	CosmosConnectionString string `mapstructure:"COSMOS_CONNECTION_STRING"`
	CosmosPartitionKey     string `mapstructure:"COSMOS_PARTITION_KEY"`
	DatabaseName           string `mapstructure:"DATABASE_NAME"`
	CollectionName         string `mapstructure:"COLLECTION_NAME"`

	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`
	DBSchema    string `mapstructure:"DB_SCHEMA"`

	SQLitePath string `mapstructure:"SQLITE_PATH"`

	PageSize           int    `mapstructure:"PAGE_SIZE"`
	OutputDir          string `mapstructure:"OUTPUT_DIR"`
	OutputPath         string `mapstructure:"OUTPUT_PATH"`
	OutputBOM          bool   `mapstructure:"OUTPUT_BOM"`
	OutputCRLF         bool   `mapstructure:"OUTPUT_CRLF"`
	AuditDuplicateKeys bool   `mapstructure:"AUDIT_DUPLICATE_KEYS"`
	MetricsTextfile    string `mapstructure:"METRICS_TEXTFILE"`
}

var keys = []string{
	"ENV",
	"LOG_LEVEL",
	"SOURCE",
	"COSMOS_CONNECTION_STRING",
	"COSMOS_PARTITION_KEY",
	"DATABASE_NAME",
	"COLLECTION_NAME",
	"DATABASE_URL",
	"DB_MAX_CONNS",
	"DB_MIN_CONNS",
	"DB_SCHEMA",
	"SQLITE_PATH",
	"PAGE_SIZE",
	"OUTPUT_DIR",
	"OUTPUT_PATH",
	"OUTPUT_BOM",
	"OUTPUT_CRLF",
	"AUDIT_DUPLICATE_KEYS",
	"METRICS_TEXTFILE",
}

// Load reads configuration from the environment and an optional .env file in
// the working directory. Environment variables win over the file.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("SOURCE", SourceCosmos)
	v.SetDefault("DATABASE_NAME", "ocrPoc")
	v.SetDefault("COLLECTION_NAME", "forms")
	v.SetDefault("DB_MAX_CONNS", 4)
	v.SetDefault("DB_MIN_CONNS", 1)
	v.SetDefault("DB_SCHEMA", "public")
	v.SetDefault("SQLITE_PATH", "forms.db")
	v.SetDefault("PAGE_SIZE", 100)
	v.SetDefault("OUTPUT_DIR", ".")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Source = strings.ToLower(strings.TrimSpace(cfg.Source))

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// LineEnding returns the report line terminator.
func (c *Config) LineEnding() string {
	if c.OutputCRLF {
		return "\r\n"
	}
	return "\n"
}

// Validate checks that the selected record source has what it needs to
// connect.
func (c *Config) Validate() error {
	if c.PageSize <= 0 {
		return fmt.Errorf("PAGE_SIZE must be positive, got %d", c.PageSize)
	}

	switch c.Source {
	case SourceCosmos:
		if c.CosmosConnectionString == "" {
			return fmt.Errorf("COSMOS_CONNECTION_STRING is required when SOURCE is %q", SourceCosmos)
		}
		if c.DatabaseName == "" || c.CollectionName == "" {
			return fmt.Errorf("DATABASE_NAME and COLLECTION_NAME are required when SOURCE is %q", SourceCosmos)
		}
	case SourcePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when SOURCE is %q", SourcePostgres)
		}
		if c.DBMaxConns < 1 {
			return fmt.Errorf("DB_MAX_CONNS must be at least 1, got %d", c.DBMaxConns)
		}
	case SourceSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required when SOURCE is %q", SourceSQLite)
		}
	default:
		return fmt.Errorf("%w: %q (want %q, %q or %q)", ErrUnknownSource, c.Source, SourceCosmos, SourcePostgres, SourceSQLite)
	}

	if c.OutputDir == "" && c.OutputPath == "" {
		return fmt.Errorf("one of OUTPUT_DIR or OUTPUT_PATH is required")
	}

	return nil
}
