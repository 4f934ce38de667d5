package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Port          string
	Env           string
	LogLevel      string
	LogFormat     string
	DefaultLocale string
	Timezone      string

	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string
	LLMTimeout    time.Duration

	AppID       string
	AppPassword string
	AppTenantID string

	GraphTenantID     string
	GraphClientID     string
	GraphClientSecret string

	AbsenceURL        string
	ChannelWebhookURL string
	HTTPTimeout       time.Duration

	MongoURI string
	MongoDB  string

	RateLimitPerSecond float64
	RateLimitBurst     int
}

var defaults = map[string]any{
	"PORT":                  "3978",
	"ENV":                   "development",
	"LOG_LEVEL":             "info",
	"LOG_FORMAT":            "console",
	"DEFAULT_LOCALE":        "en",
	"TIMEZONE":              "Asia/Ulaanbaatar",
	"OPENAI_MODEL":          "gpt-4o",
	"LLM_TIMEOUT":           "30s",
	"HTTP_TIMEOUT":          "15s",
	"MONGODB_DATABASE":      "leavebot",
	"RATE_LIMIT_PER_SECOND": 2.0,
	"RATE_LIMIT_BURST":      5,
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present; real environment variables win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	cfg := &Config{
		Port:               v.GetString("PORT"),
		Env:                v.GetString("ENV"),
		LogLevel:           strings.ToLower(v.GetString("LOG_LEVEL")),
		LogFormat:          strings.ToLower(v.GetString("LOG_FORMAT")),
		DefaultLocale:      v.GetString("DEFAULT_LOCALE"),
		Timezone:           v.GetString("TIMEZONE"),
		OpenAIAPIKey:       v.GetString("OPENAI_API_KEY"),
		OpenAIModel:        v.GetString("OPENAI_MODEL"),
		OpenAIBaseURL:      v.GetString("OPENAI_BASE_URL"),
		LLMTimeout:         v.GetDuration("LLM_TIMEOUT"),
		AppID:              v.GetString("MICROSOFT_APP_ID"),
		AppPassword:        v.GetString("MICROSOFT_APP_PASSWORD"),
		AppTenantID:        v.GetString("MICROSOFT_APP_TENANT_ID"),
		GraphTenantID:      v.GetString("GRAPH_TENANT_ID"),
		GraphClientID:      v.GetString("GRAPH_CLIENT_ID"),
		GraphClientSecret:  v.GetString("GRAPH_CLIENT_SECRET"),
		AbsenceURL:         v.GetString("ABSENCE_API_URL"),
		ChannelWebhookURL:  v.GetString("CHANNEL_WEBHOOK_URL"),
		HTTPTimeout:        v.GetDuration("HTTP_TIMEOUT"),
		MongoURI:           v.GetString("MONGODB_URI"),
		MongoDB:            v.GetString("MONGODB_DATABASE"),
		RateLimitPerSecond: v.GetFloat64("RATE_LIMIT_PER_SECOND"),
		RateLimitBurst:     v.GetInt("RATE_LIMIT_BURST"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate reports every missing or malformed required option at once.
func (c *Config) Validate() error {
	var errs []error
	if c.OpenAIAPIKey == "" {
		errs = append(errs, errors.New("OPENAI_API_KEY is required"))
	}
	if c.AppID == "" || c.AppPassword == "" {
		errs = append(errs, errors.New("MICROSOFT_APP_ID and MICROSOFT_APP_PASSWORD are required"))
	}
	if c.GraphTenantID == "" || c.GraphClientID == "" || c.GraphClientSecret == "" {
		errs = append(errs, errors.New("GRAPH_TENANT_ID, GRAPH_CLIENT_ID and GRAPH_CLIENT_SECRET are required"))
	}
	if c.LLMTimeout <= 0 {
		errs = append(errs, errors.New("LLM_TIMEOUT must be positive"))
	}
	if c.HTTPTimeout <= 0 {
		errs = append(errs, errors.New("HTTP_TIMEOUT must be positive"))
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("TIMEZONE %q: %w", c.Timezone, err))
	}
	return errors.Join(errs...)
}

// Location returns the zone used to compute "today". Validate guarantees it loads.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
