// Package config provides application configuration loaded from an optional
// YAML file and environment variables, with defaults and validation. It
// centralizes server timeouts, logging, database selection, pagination
// limits, rate limiting, and observability settings.
//
// Sources, lowest precedence first:
//  1. built-in defaults
//  2. YAML file named by CONFIG_FILE (flat, lower-case keys such as "db_path")
//  3. environment variables (PORT, DB_PATH, ...)
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Supported values for DB_DRIVER.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	ShutdownTimeout   time.Duration // graceful shutdown budget
	MaxHeaderBytes    int           // bytes
	MaxBodyBytes      int64         // request body cap
	GinMode           string        // debug|release|test
	GzipEnabled       bool

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool
	APIBasePath    string

	// Database
	DBDriver string // sqlite|postgres
	DBPath   string // SQLite file path
	DBDSN    string // Postgres DSN

	// DBConnectRetry bounds how long startup keeps retrying the first
	// connection; 0 tries once.
	DBConnectRetry time.Duration

	// Pagination
	DefaultPerPage int
	MaxPerPage     int

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from CONFIG_FILE (if set) and the environment,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	k := koanf.New(".")
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, err
		}
	}
	// Env keys are lower-cased so PORT and a YAML "port" share one key.
	if err := k.Load(env.Provider("", ".", strings.ToLower), nil); err != nil {
		return Config{}, err
	}
	src := source{k: k}

	cfg := Config{
		// Server
		Port:              src.getStr("port", "8080"),
		ReadTimeout:       src.getDur("read_timeout", 15*time.Second),
		ReadHeaderTimeout: src.getDur("read_header_timeout", 10*time.Second),
		WriteTimeout:      src.getDur("write_timeout", 20*time.Second),
		IdleTimeout:       src.getDur("idle_timeout", 60*time.Second),
		ShutdownTimeout:   src.getDur("shutdown_timeout", 15*time.Second),
		MaxHeaderBytes:    src.getInt("max_header_bytes", 1<<20),
		MaxBodyBytes:      int64(src.getInt("max_body_bytes", 1<<20)),
		GinMode:           strings.ToLower(src.getStr("gin_mode", "release")),
		GzipEnabled:       src.getBool("gzip_enabled", true),

		// Logging / Docs
		LogLevel:       strings.ToLower(src.getStr("log_level", "info")),
		LogPretty:      src.getBool("log_pretty", false),
		SwaggerEnabled: src.getBool("swagger_enabled", false),
		APIBasePath:    normalizeBasePath(src.getStr("api_base_path", "/api")),

		// Database
		DBDriver: strings.ToLower(src.getStr("db_driver", DriverSQLite)),
		DBPath:   src.getStr("db_path", "app.db"),
		DBDSN:    src.getStr("db_dsn", ""),

		DBConnectRetry: src.getDur("db_connect_retry", 30*time.Second),

		// Pagination
		DefaultPerPage: src.getInt("default_per_page", 10),
		MaxPerPage:     src.getInt("max_per_page", 100),

		// Rate limiting
		RateRPS:   src.getFloat("rate_rps", 5.0),
		RateBurst: src.getInt("rate_burst", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: src.getList("cors_allowed_origins"),
		},
		Security: SecurityConfig{
			EnableHSTS: src.getBool("enable_hsts", false),
			HSTSMaxAge: src.getDur("hsts_max_age", 180*24*time.Hour),
		},

		IdempotencyTTL: src.getDur("idempotency_ttl", 24*time.Hour),

		OTEL: OTELConfig{
			Enabled:     src.getBool("otel_enabled", false),
			Endpoint:    src.getStr("otel_exporter_otlp_endpoint", "localhost:4317"),
			Insecure:    src.getBool("otel_exporter_otlp_insecure", true),
			ServiceName: src.getStr("otel_service_name", "go-course-api"),
			SampleRatio: src.getFloat("otel_traces_sampler_arg", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	if cfg.DBDriver == "sqlite3" {
		cfg.DBDriver = DriverSQLite
	}
	if cfg.DBDriver == "postgresql" || cfg.DBDriver == "pg" {
		cfg.DBDriver = DriverPostgres
	}

	return cfg, cfg.validate()
}

func (cfg Config) validate() error {
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return errors.New("timeouts must be positive durations")
	}
	if cfg.ShutdownTimeout <= 0 {
		return errors.New("SHUTDOWN_TIMEOUT must be > 0")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if cfg.MaxBodyBytes <= 0 {
		return errors.New("MAX_BODY_BYTES must be > 0")
	}
	switch cfg.DBDriver {
	case DriverSQLite:
		if strings.TrimSpace(cfg.DBPath) == "" {
			return errors.New("DB_PATH must not be empty")
		}
	case DriverPostgres:
		if strings.TrimSpace(cfg.DBDSN) == "" {
			return errors.New("DB_DSN is required when DB_DRIVER=postgres")
		}
	default:
		return errors.New("DB_DRIVER must be one of: sqlite, postgres")
	}
	if cfg.DBConnectRetry < 0 {
		return errors.New("DB_CONNECT_RETRY must be >= 0")
	}
	if cfg.DefaultPerPage < 1 {
		return errors.New("DEFAULT_PER_PAGE must be >= 1")
	}
	if cfg.MaxPerPage < cfg.DefaultPerPage {
		return errors.New("MAX_PER_PAGE must be >= DEFAULT_PER_PAGE")
	}
	if cfg.RateRPS < 0 {
		return errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.IdempotencyTTL <= 0 {
		return errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}
	return nil
}

// ---- lookups over the merged koanf tree ----

// source reads raw values by key; unparsable values fall back to defaults.
type source struct {
	k *koanf.Koanf
}

func (s source) raw(key string) (string, bool) {
	if !s.k.Exists(key) {
		return "", false
	}
	v := strings.TrimSpace(s.k.String(key))
	return v, v != ""
}

func (s source) getStr(key, def string) string {
	if v, ok := s.raw(key); ok {
		return v
	}
	return def
}

func (s source) getFloat(key string, def float64) float64 {
	if v, ok := s.raw(key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func (s source) getInt(key string, def int) int {
	if v, ok := s.raw(key); ok {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func (s source) getBool(key string, def bool) bool {
	if v, ok := s.raw(key); ok {
		switch strings.ToLower(v) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func (s source) getDur(key string, def time.Duration) time.Duration {
	if v, ok := s.raw(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// list accepts either a YAML sequence or a comma-separated string.
func (s source) getList(key string) []string {
	if !s.k.Exists(key) {
		return nil
	}
	if _, isSlice := s.k.Get(key).([]any); isSlice {
		return compact(s.k.Strings(key))
	}
	return splitCSV(s.k.String(key))
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	return compact(strings.Split(s, ","))
}

func compact(parts []string) []string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
