package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Practitioner resolution modes for single appointment submission.
const (
	ResolutionCreate = "create"
	ResolutionStrict = "strict"
)

// PDF converter backends.
const (
	ConverterNative = "native"
	ConverterPandoc = "pandoc"
)

type Config struct {
	Port           string        `mapstructure:"PORT"`
	Env            string        `mapstructure:"ENV"`
	LogLevel       string        `mapstructure:"LOG_LEVEL"`
	DatabaseURL    string        `mapstructure:"DATABASE_URL"`
	DBMaxConns     int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns     int32         `mapstructure:"DB_MIN_CONNS"`
	CORSOrigins    []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS   float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int           `mapstructure:"RATE_LIMIT_BURST"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	UploadMaxSize  string        `mapstructure:"UPLOAD_MAX_SIZE"`

	AuthJWTSecret string `mapstructure:"AUTH_JWT_SECRET"`
	AuthIssuer    string `mapstructure:"AUTH_ISSUER"`

	PractitionerResolution string `mapstructure:"PRACTITIONER_RESOLUTION"`

	OpenAIAPIKey        string        `mapstructure:"OPENAI_API_KEY"`
	OpenAIBaseURL       string        `mapstructure:"OPENAI_BASE_URL"`
	SummaryModel        string        `mapstructure:"SUMMARY_MODEL"`
	SummarySystemPrompt string        `mapstructure:"SUMMARY_SYSTEM_PROMPT"`
	SummaryMaxTokens    int           `mapstructure:"SUMMARY_MAX_TOKENS"`
	SummaryTimeout      time.Duration `mapstructure:"SUMMARY_TIMEOUT"`
	SummaryCacheTTL     time.Duration `mapstructure:"SUMMARY_CACHE_TTL"`
	RedisURL            string        `mapstructure:"REDIS_URL"`

	ReportTemplate  string `mapstructure:"REPORT_TEMPLATE"`
	PDFConverter    string `mapstructure:"PDF_CONVERTER"`
	PandocPath      string `mapstructure:"PANDOC_PATH"`
	PandocPDFEngine string `mapstructure:"PANDOC_PDF_ENGINE"`
	ReportTempDir   string `mapstructure:"REPORT_TEMP_DIR"`
	DefaultLocale   string `mapstructure:"DEFAULT_LOCALE"`

	MetricsEnabled bool `mapstructure:"METRICS_ENABLED"`
}

var keys = []string{
	"PORT", "ENV", "LOG_LEVEL", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "REQUEST_TIMEOUT", "UPLOAD_MAX_SIZE",
	"AUTH_JWT_SECRET", "AUTH_ISSUER", "PRACTITIONER_RESOLUTION",
	"OPENAI_API_KEY", "OPENAI_BASE_URL", "SUMMARY_MODEL", "SUMMARY_SYSTEM_PROMPT",
	"SUMMARY_MAX_TOKENS", "SUMMARY_TIMEOUT", "SUMMARY_CACHE_TTL", "REDIS_URL",
	"REPORT_TEMPLATE", "PDF_CONVERTER", "PANDOC_PATH", "PANDOC_PDF_ENGINE",
	"REPORT_TEMP_DIR", "DEFAULT_LOCALE", "METRICS_ENABLED",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("CORS_ORIGINS", "*")
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)
	v.SetDefault("REQUEST_TIMEOUT", "60s")
	v.SetDefault("UPLOAD_MAX_SIZE", "10M")
	v.SetDefault("PRACTITIONER_RESOLUTION", ResolutionCreate)
	v.SetDefault("SUMMARY_MODEL", "gpt-4")
	v.SetDefault("SUMMARY_SYSTEM_PROMPT", "You are an assistant for a dental clinic. Write a short, factual summary of the appointments for clinic staff.")
	v.SetDefault("SUMMARY_MAX_TOKENS", 300)
	v.SetDefault("SUMMARY_TIMEOUT", "20s")
	v.SetDefault("SUMMARY_CACHE_TTL", "1h")
	v.SetDefault("PDF_CONVERTER", ConverterNative)
	v.SetDefault("PANDOC_PATH", "pandoc")
	v.SetDefault("DEFAULT_LOCALE", "en")
	v.SetDefault("METRICS_ENABLED", true)

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

	// A single env var arrives as one string; split it ourselves.
	if len(cfg.CORSOrigins) <= 1 {
		if origins := v.GetString("CORS_ORIGINS"); origins != "" {
			cfg.CORSOrigins = splitList(origins)
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() && cfg.AuthJWTSecret == "" {
		log.Println("WARNING: AUTH_JWT_SECRET is not set; the API accepts unauthenticated requests.")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// AuthEnabled reports whether bearer-token authentication guards the API.
func (c *Config) AuthEnabled() bool {
	return c.AuthJWTSecret != ""
}

// SummaryEnabled reports whether a text-generation collaborator is configured.
func (c *Config) SummaryEnabled() bool {
	return c.OpenAIAPIKey != ""
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	switch c.PractitionerResolution {
	case ResolutionCreate, ResolutionStrict:
	default:
		return fmt.Errorf("PRACTITIONER_RESOLUTION must be %q or %q, got %q",
			ResolutionCreate, ResolutionStrict, c.PractitionerResolution)
	}
	switch c.PDFConverter {
	case ConverterNative, ConverterPandoc:
	default:
		return fmt.Errorf("PDF_CONVERTER must be %q or %q, got %q",
			ConverterNative, ConverterPandoc, c.PDFConverter)
	}
	if c.PDFConverter == ConverterPandoc && c.PandocPath == "" {
		return fmt.Errorf("PANDOC_PATH is required when PDF_CONVERTER is %q", ConverterPandoc)
	}
	if c.DBMaxConns <= 0 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("invalid pool sizing: DB_MIN_CONNS=%d DB_MAX_CONNS=%d", c.DBMinConns, c.DBMaxConns)
	}
	if c.SummaryMaxTokens <= 0 {
		return fmt.Errorf("SUMMARY_MAX_TOKENS must be positive, got %d", c.SummaryMaxTokens)
	}
	if c.SummaryTimeout <= 0 {
		return fmt.Errorf("SUMMARY_TIMEOUT must be positive, got %s", c.SummaryTimeout)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive, got %s", c.RequestTimeout)
	}
	if c.IsProduction() && !c.AuthEnabled() {
		return fmt.Errorf("AUTH_JWT_SECRET is required in production")
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
