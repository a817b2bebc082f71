package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server      ServerConfig
	Fetcher     FetcherConfig
	Evasion     EvasionConfig
	Extractor   ExtractorConfig
	OCR         OCRConfig
	Storage     StorageConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Diagnostics DiagnosticsConfig
	Logging     LoggingConfig
}

type ServerConfig struct {
	Port            string
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

type FetcherConfig struct {
	SupportedHosts     []string
	MaxAttempts        int
	BackoffBase        time.Duration
	BackoffMultiplier  float64
	ConnectTimeout     time.Duration
	ReadTimeout        time.Duration
	WarmUp             bool
	RequestsPerSecond  float64
	MaxBodyBytes       int64
	AlternateDNS       string
	ReferenceEndpoints []string
	ProbeTimeout       time.Duration
	Primary            ProfileConfig
}

// ProfileConfig describes one client identity: user agent, headers and TLS fingerprint.
type ProfileConfig struct {
	ID        string            `yaml:"id"`
	UserAgent string            `yaml:"user_agent"`
	TLS       string            `yaml:"tls"`
	Headers   map[string]string `yaml:"headers"`
}

type EvasionConfig struct {
	Profiles         []ProfileConfig
	IndicatorPhrases []string
}

type ExtractorConfig struct {
	PriceMin        float64
	PriceMax        float64
	DefaultCurrency string
}

type OCRConfig struct {
	Enabled    bool
	ServiceURL string
	Timeout    time.Duration
}

type StorageConfig struct {
	// Backend is one of memory, file or postgres.
	Backend  string
	FilePath string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int32
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type DiagnosticsConfig struct {
	// Sink is one of none, file or redis.
	Sink     string
	FilePath string
	RedisKey string
	TTL      time.Duration
}

type LoggingConfig struct {
	Level  string
	Format string
}

// profilesFile is the YAML document read from EXTRACTOR_PROFILES_FILE.
type profilesFile struct {
	SupportedHosts   []string        `yaml:"supported_hosts"`
	Primary          *ProfileConfig  `yaml:"primary"`
	Profiles         []ProfileConfig `yaml:"profiles"`
	IndicatorPhrases []string        `yaml:"indicator_phrases"`
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvOrDefault("SERVER_PORT", "8080"),
			Host:            getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", 180*time.Second),
			RequestTimeout:  getDurationOrDefault("SERVER_REQUEST_TIMEOUT", 150*time.Second),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			AllowedOrigins:  getStringSliceOrDefault("SERVER_ALLOWED_ORIGINS", []string{"*"}),
		},
		Fetcher: FetcherConfig{
			SupportedHosts:     getStringSliceOrDefault("FETCHER_SUPPORTED_HOSTS", DefaultSupportedHosts()),
			MaxAttempts:        getIntOrDefault("FETCHER_MAX_ATTEMPTS", 3),
			BackoffBase:        getDurationOrDefault("FETCHER_BACKOFF_BASE", 2*time.Second),
			BackoffMultiplier:  getFloatOrDefault("FETCHER_BACKOFF_MULTIPLIER", 2),
			ConnectTimeout:     getDurationOrDefault("FETCHER_CONNECT_TIMEOUT", 10*time.Second),
			ReadTimeout:        getDurationOrDefault("FETCHER_READ_TIMEOUT", 30*time.Second),
			WarmUp:             getBoolOrDefault("FETCHER_WARM_UP", true),
			RequestsPerSecond:  getFloatOrDefault("FETCHER_REQUESTS_PER_SECOND", 1),
			MaxBodyBytes:       int64(getIntOrDefault("FETCHER_MAX_BODY_BYTES", 10<<20)),
			AlternateDNS:       getEnvOrDefault("FETCHER_ALTERNATE_DNS", "8.8.8.8:53"),
			ReferenceEndpoints: getStringSliceOrDefault("FETCHER_REFERENCE_ENDPOINTS", []string{"8.8.8.8:53", "1.1.1.1:53"}),
			ProbeTimeout:       getDurationOrDefault("FETCHER_PROBE_TIMEOUT", 3*time.Second),
			Primary:            DefaultPrimaryProfile(),
		},
		Evasion: EvasionConfig{
			Profiles:         DefaultEvasionProfiles(),
			IndicatorPhrases: getStringSliceOrDefault("EVASION_INDICATOR_PHRASES", DefaultIndicatorPhrases()),
		},
		Extractor: ExtractorConfig{
			PriceMin:        getFloatOrDefault("EXTRACTOR_PRICE_MIN", 100),
			PriceMax:        getFloatOrDefault("EXTRACTOR_PRICE_MAX", 1000000),
			DefaultCurrency: getEnvOrDefault("EXTRACTOR_DEFAULT_CURRENCY", "₹"),
		},
		OCR: OCRConfig{
			Enabled:    getBoolOrDefault("OCR_ENABLED", false),
			ServiceURL: getEnvOrDefault("OCR_SERVICE_URL", "http://localhost:8000"),
			Timeout:    getDurationOrDefault("OCR_TIMEOUT", 30*time.Second),
		},
		Storage: StorageConfig{
			Backend:  getEnvOrDefault("STORAGE_BACKEND", "memory"),
			FilePath: getEnvOrDefault("STORAGE_FILE", "products.json"),
		},
		Database: DatabaseConfig{
			Host:     getEnvOrDefault("DB_HOST", "localhost"),
			Port:     getIntOrDefault("DB_PORT", 5432),
			User:     getEnvOrDefault("DB_USER", "postgres"),
			Password: getEnvOrDefault("DB_PASSWORD", ""),
			DBName:   getEnvOrDefault("DB_NAME", "label_extractor"),
			SSLMode:  getEnvOrDefault("DB_SSL_MODE", "disable"),
			MaxConns: int32(getIntOrDefault("DB_MAX_CONNS", 10)),
		},
		Redis: RedisConfig{
			Addr:     getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
			Password: getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:       getIntOrDefault("REDIS_DB", 0),
		},
		Diagnostics: DiagnosticsConfig{
			Sink:     getEnvOrDefault("DIAGNOSTICS_SINK", "none"),
			FilePath: getEnvOrDefault("DIAGNOSTICS_FILE", "last_amazon_response.html"),
			RedisKey: getEnvOrDefault("DIAGNOSTICS_REDIS_KEY", "extractor:last_response"),
			TTL:      getDurationOrDefault("DIAGNOSTICS_TTL", 24*time.Hour),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
	}

	if path := os.Getenv("EXTRACTOR_PROFILES_FILE"); path != "" {
		if err := cfg.LoadProfilesFile(path); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// LoadProfilesFile overlays the profile lists, indicator phrases and supported hosts
// found in a YAML file. Sections missing from the file keep their current values.
func (c *Config) LoadProfilesFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read profiles file: %w", err)
	}

	var pf profilesFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return fmt.Errorf("failed to parse profiles file %s: %w", path, err)
	}

	if len(pf.SupportedHosts) > 0 {
		c.Fetcher.SupportedHosts = pf.SupportedHosts
	}
	if pf.Primary != nil {
		c.Fetcher.Primary = *pf.Primary
	}
	if len(pf.Profiles) > 0 {
		c.Evasion.Profiles = pf.Profiles
	}
	if len(pf.IndicatorPhrases) > 0 {
		c.Evasion.IndicatorPhrases = pf.IndicatorPhrases
	}

	return nil
}

func (c *Config) Validate() error {
	if c.Fetcher.MaxAttempts < 1 {
		return fmt.Errorf("FETCHER_MAX_ATTEMPTS must be at least 1")
	}

	if c.Fetcher.BackoffBase < 0 {
		return fmt.Errorf("FETCHER_BACKOFF_BASE cannot be negative")
	}

	if c.Fetcher.ConnectTimeout <= 0 || c.Fetcher.ReadTimeout <= 0 {
		return fmt.Errorf("FETCHER_CONNECT_TIMEOUT and FETCHER_READ_TIMEOUT must be positive")
	}

	if len(c.Fetcher.SupportedHosts) == 0 {
		return fmt.Errorf("at least one supported host is required")
	}

	if c.Extractor.PriceMin > c.Extractor.PriceMax {
		return fmt.Errorf("EXTRACTOR_PRICE_MIN cannot be greater than EXTRACTOR_PRICE_MAX")
	}

	seen := make(map[string]bool)
	for _, p := range c.Evasion.Profiles {
		if p.ID == "" {
			return fmt.Errorf("evasion profile without id")
		}
		if seen[p.ID] {
			return fmt.Errorf("duplicate evasion profile %q", p.ID)
		}
		seen[p.ID] = true
	}

	switch c.Storage.Backend {
	case "memory", "file", "postgres":
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.Storage.Backend)
	}

	switch c.Diagnostics.Sink {
	case "none", "file", "redis":
	default:
		return fmt.Errorf("unknown DIAGNOSTICS_SINK %q", c.Diagnostics.Sink)
	}

	return nil
}

// NewLogger builds a logger writing to w from the logging section.
func (l LoggingConfig) NewLogger(w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(l.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(l.Format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getStringSliceOrDefault(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var out []string
		for _, s := range strings.Split(value, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return defaultValue
}
