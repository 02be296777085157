package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Redis       RedisConfig       `yaml:"redis"`
	Rollup      RollupConfig      `yaml:"rollup"`
	Spend       SpendConfig       `yaml:"spend"`
	Warehouse   WarehouseConfig   `yaml:"warehouse"`
	Storage     StorageConfig     `yaml:"storage"`
	Attribution AttributionConfig `yaml:"attribution"`
	Orgs        OrgsConfig        `yaml:"orgs"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// GetHost returns the server host, with ECS detection
func (c ServerConfig) GetHost() string {
	// On ECS/container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	// Allow override via environment
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// DatabaseConfig holds the Postgres connection settings for the
// transaction store and rollup functions.
type DatabaseConfig struct {
	URL             string `yaml:"url"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifeMins int    `yaml:"conn_max_life_mins"`
}

// ConnMaxLifetime returns the configured connection lifetime as a duration
func (c DatabaseConfig) ConnMaxLifetime() time.Duration {
	return time.Duration(c.ConnMaxLifeMins) * time.Minute
}

// RedisConfig holds the rollup cache settings
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Enabled  bool   `yaml:"enabled"`
}

// RollupConfig holds reconciliation tuning knobs
type RollupConfig struct {
	CacheTTLSeconds int `yaml:"cache_ttl_seconds"`
	MaxRawRows      int `yaml:"max_raw_rows"`
}

// CacheTTL returns the rollup cache TTL as a duration
func (c RollupConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// SpendConfig holds per-channel spend provider settings
type SpendConfig struct {
	Meta MetaAdsConfig `yaml:"meta"`
	SMS  SMSCostConfig `yaml:"sms"`
}

// MetaAdsConfig holds Meta Marketing API configuration
type MetaAdsConfig struct {
	AccessToken    string `yaml:"access_token"`
	AdAccountID    string `yaml:"ad_account_id"`
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	Enabled        bool   `yaml:"enabled"`
}

// Timeout returns the configured timeout as a duration
func (c MetaAdsConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// SMSCostConfig holds messaging platform usage API configuration
type SMSCostConfig struct {
	APIKey         string `yaml:"api_key"`
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	Enabled        bool   `yaml:"enabled"`
}

// Timeout returns the configured timeout as a duration
func (c SMSCostConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// WarehouseConfig holds Snowflake configuration for the transaction
// archive audit source
type WarehouseConfig struct {
	Account   string `yaml:"account"`
	User      string `yaml:"user"`
	Password  string `yaml:"password"`
	Database  string `yaml:"database"`
	Schema    string `yaml:"schema"`
	Warehouse string `yaml:"warehouse"`
	Enabled   bool   `yaml:"enabled"`
}

// StorageConfig holds snapshot archive configuration
type StorageConfig struct {
	S3Bucket      string `yaml:"s3_bucket"`
	DynamoDBTable string `yaml:"dynamodb_table"`
	AWSRegion     string `yaml:"aws_region"`
	AWSProfile    string `yaml:"aws_profile"` // Empty string uses default credential chain (IAM role on ECS)
	Enabled       bool   `yaml:"enabled"`
}

// GetAWSProfile returns the AWS profile, with environment variable override
func (c StorageConfig) GetAWSProfile() string {
	if envProfile := os.Getenv("AWS_PROFILE_OVERRIDE"); envProfile != "" {
		if envProfile == "none" || envProfile == "iam" {
			return "" // Use default credential chain (IAM role)
		}
		return envProfile
	}
	// On ECS/Lambda, don't use a profile - use IAM role
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "" // Running on ECS or Lambda, use IAM role
	}
	return c.AWSProfile
}

// AttributionConfig holds the operator-maintained channel mapping
// tables layered over the built-in prefix heuristics.
type AttributionConfig struct {
	Refcodes  map[string]string `yaml:"refcodes"`  // exact refcode -> channel
	Campaigns map[string]string `yaml:"campaigns"` // campaign/creative/ad id -> channel
	Forms     map[string]string `yaml:"forms"`     // form id -> channel
}

// OrgsConfig holds per-organization settings
type OrgsConfig struct {
	DefaultTimezone string            `yaml:"default_timezone"`
	Timezones       map[string]string `yaml:"timezones"` // org id -> IANA zone
}

// TimezoneFor returns the organization's reporting timezone
func (c OrgsConfig) TimezoneFor(orgID string) string {
	if tz, ok := c.Timezones[orgID]; ok {
		return tz
	}
	return c.DefaultTimezone
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Set defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 20
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifeMins == 0 {
		cfg.Database.ConnMaxLifeMins = 30
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Rollup.CacheTTLSeconds == 0 {
		cfg.Rollup.CacheTTLSeconds = 60
	}
	if cfg.Rollup.MaxRawRows == 0 {
		cfg.Rollup.MaxRawRows = 10000
	}
	if cfg.Spend.Meta.BaseURL == "" {
		cfg.Spend.Meta.BaseURL = "https://graph.facebook.com/v19.0"
	}
	if cfg.Spend.Meta.TimeoutSeconds == 0 {
		cfg.Spend.Meta.TimeoutSeconds = 30
	}
	if cfg.Spend.SMS.TimeoutSeconds == 0 {
		cfg.Spend.SMS.TimeoutSeconds = 30
	}
	if cfg.Warehouse.Database == "" {
		cfg.Warehouse.Database = "CIVICPULSE_DATA_LAKE"
	}
	if cfg.Warehouse.Schema == "" {
		cfg.Warehouse.Schema = "FINANCE"
	}
	if cfg.Orgs.DefaultTimezone == "" {
		cfg.Orgs.DefaultTimezone = "America/New_York"
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars on ECS.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	// Override with environment variables if present
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		cfg.Database.URL = dbURL
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
		cfg.Redis.Enabled = true
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.Redis.Password = password
	}
	if token := os.Getenv("META_ACCESS_TOKEN"); token != "" {
		cfg.Spend.Meta.AccessToken = token
	}
	if account := os.Getenv("META_AD_ACCOUNT_ID"); account != "" {
		cfg.Spend.Meta.AdAccountID = account
	}
	if apiKey := os.Getenv("SMS_COST_API_KEY"); apiKey != "" {
		cfg.Spend.SMS.APIKey = apiKey
	}
	if baseURL := os.Getenv("SMS_COST_BASE_URL"); baseURL != "" {
		cfg.Spend.SMS.BaseURL = baseURL
	}
	if user := os.Getenv("SNOWFLAKE_USER"); user != "" {
		cfg.Warehouse.User = user
	}
	if password := os.Getenv("SNOWFLAKE_PASSWORD"); password != "" {
		cfg.Warehouse.Password = password
	}
	if account := os.Getenv("SNOWFLAKE_ACCOUNT"); account != "" {
		cfg.Warehouse.Account = account
	}

	return cfg, nil
}

// Validate reports the first fatal configuration problem. Optional
// subsystems are only checked when enabled.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("database.url is required")
	}
	if c.Spend.Meta.Enabled && c.Spend.Meta.AccessToken == "" {
		return fmt.Errorf("spend.meta.access_token is required when meta spend is enabled")
	}
	if c.Spend.SMS.Enabled && c.Spend.SMS.BaseURL == "" {
		return fmt.Errorf("spend.sms.base_url is required when sms spend is enabled")
	}
	if c.Warehouse.Enabled && (c.Warehouse.Account == "" || c.Warehouse.User == "") {
		return fmt.Errorf("warehouse.account and warehouse.user are required when the warehouse is enabled")
	}
	if c.Storage.Enabled && (c.Storage.S3Bucket == "" || c.Storage.DynamoDBTable == "") {
		return fmt.Errorf("storage.s3_bucket and storage.dynamodb_table are required when the archive is enabled")
	}
	return nil
}
