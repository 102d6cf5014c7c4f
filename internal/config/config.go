// Package config loads and validates the lanehq configuration using Viper.
//
// Configuration is layered: built-in defaults < YAML config file < environment
// variables. Environment variables use the LANE_ prefix (e.g., LANE_DATABASE_HOST
// overrides database.host in the YAML).
//
// The ENCRYPTION_KEY variable has no LANE_ prefix because it may be injected by
// infrastructure tooling (e.g., Kubernetes secrets, Vault agent) that does not
// know the application-specific prefix.
//
// The loaded Config is built once in main and handed to every component that
// needs it; nothing reads configuration through package-level state.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full service configuration.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Auth          AuthConfig          `mapstructure:"auth"`
	Security      SecurityConfig      `mapstructure:"security"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Telemetry     TelemetryConfig     `mapstructure:"telemetry"`
	Audit         AuditConfig         `mapstructure:"audit"`
	Roadmap       RoadmapConfig       `mapstructure:"roadmap"`
	Changelog     ChangelogConfig     `mapstructure:"changelog"`
	Live          LiveConfig          `mapstructure:"live"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
}

// ServerConfig is the API listener.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	BaseURL      string        `mapstructure:"base_url"`
	PublicURL    string        `mapstructure:"public_url"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// GetPublicURL returns the URL used in links sent to users (release notices,
// attachment downloads). Falls back to server.base_url when public_url is unset.
func (s *ServerConfig) GetPublicURL() string {
	if s.PublicURL != "" {
		return s.PublicURL
	}
	return s.BaseURL
}

// DatabaseConfig is the PostgreSQL connection.
type DatabaseConfig struct {
	Host               string `mapstructure:"host"`
	Port               int    `mapstructure:"port"`
	Name               string `mapstructure:"name"`
	User               string `mapstructure:"user"`
	Password           string `mapstructure:"password"`
	SSLMode            string `mapstructure:"ssl_mode"`
	MaxConnections     int    `mapstructure:"max_connections"`
	MinIdleConnections int    `mapstructure:"min_idle_connections"`
}

// RedisConfig holds the optional Redis connection. When Addr is empty, change
// events are dispatched in-process and rate limiting stays in memory.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Enabled reports whether a Redis address was configured.
func (r *RedisConfig) Enabled() bool {
	return r.Addr != ""
}

// StorageConfig holds attachment storage backend configuration
type StorageConfig struct {
	DefaultBackend string             `mapstructure:"default_backend"`
	S3             S3StorageConfig    `mapstructure:"s3"`
	Local          LocalStorageConfig `mapstructure:"local"`
	// MaxUploadBytes caps a single attachment upload.
	MaxUploadBytes int64 `mapstructure:"max_upload_bytes"`
}

// S3StorageConfig is an S3-compatible attachment bucket.
type S3StorageConfig struct {
	// Endpoint overrides the AWS endpoint (MinIO and other S3-compatible stores).
	Endpoint string `mapstructure:"endpoint"`
	Region   string `mapstructure:"region"`
	Bucket   string `mapstructure:"bucket"`

	// AuthMethod is one of "default", "static" or "assume_role".
	AuthMethod string `mapstructure:"auth_method"`

	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`

	RoleARN         string `mapstructure:"role_arn"`
	RoleSessionName string `mapstructure:"role_session_name"`
	ExternalID      string `mapstructure:"external_id"`
}

// LocalStorageConfig stores attachments under BasePath.
type LocalStorageConfig struct {
	BasePath      string `mapstructure:"base_path"`
	ServeDirectly bool   `mapstructure:"serve_directly"`
}

// AuthConfig holds bearer token verification settings. Tokens are minted by an
// external identity provider; this service only verifies them.
type AuthConfig struct {
	JWT  JWTConfig  `mapstructure:"jwt"`
	OIDC OIDCConfig `mapstructure:"oidc"`
}

// JWTConfig configures HS256 verification with a shared secret.
type JWTConfig struct {
	Secret   string `mapstructure:"secret"`
	Issuer   string `mapstructure:"issuer"`
	Audience string `mapstructure:"audience"`
}

// OIDCConfig configures verification of ID tokens against an OIDC issuer.
type OIDCConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	IssuerURL string `mapstructure:"issuer_url"`
	ClientID  string `mapstructure:"client_id"`
	// ScopeClaim names the claim that carries granted lanehq scopes.
	ScopeClaim string `mapstructure:"scope_claim"`
}

type SecurityConfig struct {
	CORS         CORSConfig         `mapstructure:"cors"`
	RateLimiting RateLimitingConfig `mapstructure:"rate_limiting"`
	TLS          TLSConfig          `mapstructure:"tls"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
}

// RateLimitingConfig is the per-client budget. Writes get a quarter of it.
type RateLimitingConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
	Burst             int  `mapstructure:"burst"`
}

type TLSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
}

// LoggingConfig selects the slog handler and level.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type TelemetryConfig struct {
	Enabled     bool            `mapstructure:"enabled"`
	ServiceName string          `mapstructure:"service_name"`
	Metrics     MetricsConfig   `mapstructure:"metrics"`
	Profiling   ProfilingConfig `mapstructure:"profiling"`
	Sentry      SentryConfig    `mapstructure:"sentry"`
}

// MetricsConfig serves /metrics on its own port.
type MetricsConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	PrometheusPort int  `mapstructure:"prometheus_port"`
}

type ProfilingConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// SentryConfig enables panic and error reporting to Sentry when DSN is set.
type SentryConfig struct {
	DSN              string  `mapstructure:"dsn"`
	Environment      string  `mapstructure:"environment"`
	TracesSampleRate float64 `mapstructure:"traces_sample_rate"`
}

// AuditConfig controls which requests are recorded.
type AuditConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	LogReadOperations bool `mapstructure:"log_read_operations"`
	LogFailedRequests bool `mapstructure:"log_failed_requests"`
	// File, when set, also appends each entry as a JSON line to this path.
	File AuditFileConfig `mapstructure:"file"`
}

// AuditFileConfig configures the JSON-lines audit sink.
type AuditFileConfig struct {
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// LaneConfig is one roadmap column. Order in RoadmapConfig.Lanes is the
// left-to-right column order.
type LaneConfig struct {
	Status string `mapstructure:"status"`
	Label  string `mapstructure:"label"`
	Color  string `mapstructure:"color"`
	Done   bool   `mapstructure:"done"`
}

// RoadmapConfig holds lane layout and the lane compaction job settings.
type RoadmapConfig struct {
	Lanes []LaneConfig `mapstructure:"lanes"`
	// CompactInterval controls how often lanes with exhausted position gaps
	// are renumbered. Zero disables the job.
	CompactInterval time.Duration `mapstructure:"compact_interval"`
	// MinGap is the smallest distance between adjacent positions tolerated
	// before the compactor renumbers a lane.
	MinGap float64 `mapstructure:"min_gap"`
}

// ChangelogConfig holds changelog aggregation settings
type ChangelogConfig struct {
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// LiveConfig holds snapshot stream settings
type LiveConfig struct {
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	ChannelPrefix     string        `mapstructure:"channel_prefix"`
}

// NotificationsConfig holds release announcement settings.
type NotificationsConfig struct {
	// Enabled globally toggles release announcements.
	Enabled bool `mapstructure:"enabled"`
	// Timeout bounds a single delivery to a notification service.
	Timeout time.Duration `mapstructure:"timeout"`
}

// envKeys lists the dotted key of every leaf field of t, following mapstructure
// tags. Slices of structs (roadmap.lanes) can only come from the config file.
func envKeys(t reflect.Type, prefix string) []string {
	var keys []string
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := f.Tag.Get("mapstructure")
		if tag == "" || tag == "-" {
			continue
		}
		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}
		switch {
		case f.Type.Kind() == reflect.Struct:
			keys = append(keys, envKeys(f.Type, key)...)
		case f.Type.Kind() == reflect.Slice && f.Type.Elem().Kind() == reflect.Struct:
		default:
			keys = append(keys, key)
		}
	}
	return keys
}

// bindEnvVars binds every config key to its LANE_ variable. AutomaticEnv alone
// does not reach nested keys during Unmarshal.
func bindEnvVars(v *viper.Viper) error {
	for _, key := range envKeys(reflect.TypeOf(Config{}), "") {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("failed to bind env var %q: %w", key, err)
		}
	}
	return nil
}

// Load reads configPath (or config.yaml from the usual places), applies LANE_
// variables and validates the result.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/lanehq")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("LANE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := bindEnvVars(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Secrets may reference other variables as ${NAME}.
	cfg.Database.Password = os.ExpandEnv(cfg.Database.Password)
	cfg.Redis.Password = os.ExpandEnv(cfg.Redis.Password)
	cfg.Storage.S3.AccessKeyID = os.ExpandEnv(cfg.Storage.S3.AccessKeyID)
	cfg.Storage.S3.SecretAccessKey = os.ExpandEnv(cfg.Storage.S3.SecretAccessKey)
	cfg.Auth.JWT.Secret = os.ExpandEnv(cfg.Auth.JWT.Secret)
	cfg.Telemetry.Sentry.DSN = os.ExpandEnv(cfg.Telemetry.Sentry.DSN)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// DefaultLanes is the lane layout used when no roadmap.lanes are configured.
func DefaultLanes() []LaneConfig {
	return []LaneConfig{
		{Status: "backlog", Label: "Backlog", Color: "#94a3b8"},
		{Status: "planned", Label: "Planned", Color: "#3b82f6"},
		{Status: "in_progress", Label: "In Progress", Color: "#f59e0b"},
		{Status: "done", Label: "Done", Color: "#22c55e", Done: true},
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.base_url", "http://localhost:8080")
	v.SetDefault("server.public_url", "")
	v.SetDefault("server.read_timeout", "30s")
	// SSE streams are long-lived; write deadlines are handled per stream.
	v.SetDefault("server.write_timeout", "0s")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "lanehq")
	v.SetDefault("database.user", "lanehq")
	v.SetDefault("database.ssl_mode", "require")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_idle_connections", 5)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("storage.default_backend", "local")
	v.SetDefault("storage.max_upload_bytes", 10<<20)
	v.SetDefault("storage.local.base_path", "./storage")
	v.SetDefault("storage.local.serve_directly", true)
	v.SetDefault("storage.s3.auth_method", "default")

	v.SetDefault("auth.oidc.enabled", false)
	v.SetDefault("auth.oidc.scope_claim", "scope")

	v.SetDefault("security.cors.allowed_origins", []string{"*"})
	v.SetDefault("security.cors.allowed_methods", []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"})
	v.SetDefault("security.rate_limiting.enabled", true)
	v.SetDefault("security.rate_limiting.requests_per_minute", 120)
	v.SetDefault("security.rate_limiting.burst", 20)
	v.SetDefault("security.tls.enabled", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("telemetry.service_name", "lanehq")
	v.SetDefault("telemetry.metrics.enabled", true)
	v.SetDefault("telemetry.metrics.prometheus_port", 9090)
	v.SetDefault("telemetry.profiling.enabled", false)
	v.SetDefault("telemetry.profiling.port", 6060)
	v.SetDefault("telemetry.sentry.environment", "production")
	v.SetDefault("telemetry.sentry.traces_sample_rate", 0.0)

	v.SetDefault("audit.enabled", true)
	v.SetDefault("audit.log_read_operations", false)
	v.SetDefault("audit.log_failed_requests", true)
	v.SetDefault("audit.file.max_size_mb", 100)
	v.SetDefault("audit.file.max_backups", 5)

	lanes := make([]map[string]interface{}, 0, 4)
	for _, l := range DefaultLanes() {
		lanes = append(lanes, map[string]interface{}{
			"status": l.Status,
			"label":  l.Label,
			"color":  l.Color,
			"done":   l.Done,
		})
	}
	v.SetDefault("roadmap.lanes", lanes)
	v.SetDefault("roadmap.compact_interval", "10m")
	v.SetDefault("roadmap.min_gap", 1e-6)

	v.SetDefault("changelog.cache_ttl", "5m")

	v.SetDefault("live.heartbeat_interval", "30s")
	v.SetDefault("live.channel_prefix", "lanehq")

	v.SetDefault("notifications.enabled", false)
	v.SetDefault("notifications.timeout", "10s")
}


// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.BaseURL == "" {
		return fmt.Errorf("server.base_url is required")
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database.name is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("database.user is required")
	}

	switch c.Storage.DefaultBackend {
	case "local":
		if c.Storage.Local.BasePath == "" {
			return fmt.Errorf("storage.local.base_path is required when using local backend")
		}
	case "s3":
		if c.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required when using S3 backend")
		}
		if c.Storage.S3.Region == "" {
			return fmt.Errorf("storage.s3.region is required when using S3 backend")
		}
	default:
		return fmt.Errorf("invalid storage backend: %s (must be s3 or local)", c.Storage.DefaultBackend)
	}

	if c.Auth.OIDC.Enabled {
		if c.Auth.OIDC.IssuerURL == "" {
			return fmt.Errorf("auth.oidc.issuer_url is required when OIDC is enabled")
		}
		if c.Auth.OIDC.ClientID == "" {
			return fmt.Errorf("auth.oidc.client_id is required when OIDC is enabled")
		}
	}

	if c.Security.TLS.Enabled {
		if c.Security.TLS.CertFile == "" {
			return fmt.Errorf("security.tls.cert_file is required when TLS is enabled")
		}
		if c.Security.TLS.KeyFile == "" {
			return fmt.Errorf("security.tls.key_file is required when TLS is enabled")
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	if len(c.Roadmap.Lanes) == 0 {
		return fmt.Errorf("roadmap.lanes must declare at least one lane")
	}
	seen := make(map[string]bool, len(c.Roadmap.Lanes))
	for i, l := range c.Roadmap.Lanes {
		if l.Status == "" {
			return fmt.Errorf("roadmap.lanes[%d].status is required", i)
		}
		if seen[l.Status] {
			return fmt.Errorf("roadmap.lanes[%d]: duplicate status %q", i, l.Status)
		}
		seen[l.Status] = true
	}
	if c.Roadmap.MinGap < 0 {
		return fmt.Errorf("roadmap.min_gap must not be negative")
	}

	if c.Live.HeartbeatInterval <= 0 {
		return fmt.Errorf("live.heartbeat_interval must be positive")
	}

	return nil
}

// GetDSN returns a lib/pq key=value connection string.
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// GetAddress returns host:port for the listener.
func (c *ServerConfig) GetAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// EncryptionKey returns the ENCRYPTION_KEY used to seal notification URLs.
// Empty when unset.
func EncryptionKey() string {
	return os.Getenv("ENCRYPTION_KEY")
}
