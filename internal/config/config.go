// Package config loads moodlist settings from defaults, an optional YAML
// file and the environment, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/ewilliams-labs/moodlist/internal/validation"
)

// PathEnvVar overrides the config file location when --config is not given.
const PathEnvVar = "MOODLIST_CONFIG"

const envPrefix = "MOODLIST_"

// Delivery drivers.
const (
	DriverBackend  = "backend"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	LLM       LLMConfig       `koanf:"llm"`
	Spotify   SpotifyConfig   `koanf:"spotify"`
	Recommend RecommendConfig `koanf:"recommend"`
	Delivery  DeliveryConfig  `koanf:"delivery"`
	Log       LogConfig       `koanf:"log"`
}

type ServerConfig struct {
	Addr           string        `koanf:"addr" validate:"required"`
	AllowedOrigins []string      `koanf:"allowed_origins"`
	ReadTimeout    time.Duration `koanf:"read_timeout" validate:"gt=0"`
	WriteTimeout   time.Duration `koanf:"write_timeout" validate:"gt=0"`
}

type LLMConfig struct {
	Provider    string        `koanf:"provider" validate:"oneof=gemini ollama"`
	APIKey      string        `koanf:"api_key"`
	Model       string        `koanf:"model"`
	BaseURL     string        `koanf:"base_url"`
	Temperature float32       `koanf:"temperature" validate:"gte=0,lte=2"`
	Timeout     time.Duration `koanf:"timeout" validate:"gt=0"`
}

type SpotifyConfig struct {
	ClientID        string        `koanf:"client_id"`
	ClientSecret    string        `koanf:"client_secret"`
	Market          string        `koanf:"market" validate:"len=2"`
	BaseURL         string        `koanf:"base_url" validate:"omitempty,url"`
	TokenURL        string        `koanf:"token_url" validate:"omitempty,url"`
	Timeout         time.Duration `koanf:"timeout" validate:"gt=0"`
	BreakerFailures uint32        `koanf:"breaker_failures" validate:"gte=1"`
	BreakerCooldown time.Duration `koanf:"breaker_cooldown" validate:"gt=0"`
}

type RecommendConfig struct {
	Limit              int           `koanf:"limit" validate:"min=1,max=50"`
	DefaultGenres      []string      `koanf:"default_genres"`
	AllowedGenres      []string      `koanf:"allowed_genres"`
	GenreFill          bool          `koanf:"genre_fill"`
	FeatureConcurrency int           `koanf:"feature_concurrency" validate:"min=1"`
	SearchTimeout      time.Duration `koanf:"search_timeout" validate:"gt=0"`
	FeatureTimeout     time.Duration `koanf:"feature_timeout" validate:"gt=0"`
}

type DeliveryConfig struct {
	Drivers     []string      `koanf:"drivers" validate:"dive,oneof=backend sqlite postgres"`
	BackendURL  string        `koanf:"backend_url" validate:"omitempty,url"`
	SQLitePath  string        `koanf:"sqlite_path"`
	PostgresURL string        `koanf:"postgres_url"`
	Timeout     time.Duration `koanf:"timeout" validate:"gt=0"`
}

type LogConfig struct {
	Level string `koanf:"level" validate:"oneof=debug info warn error"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         ":8080",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 90 * time.Second,
		},
		LLM: LLMConfig{
			Provider:    "gemini",
			BaseURL:     "http://localhost:11434",
			Temperature: 0.7,
			Timeout:     30 * time.Second,
		},
		Spotify: SpotifyConfig{
			Market:          "US",
			Timeout:         10 * time.Second,
			BreakerFailures: 5,
			BreakerCooldown: 30 * time.Second,
		},
		Recommend: RecommendConfig{
			Limit:              5,
			FeatureConcurrency: 4,
			SearchTimeout:      8 * time.Second,
			FeatureTimeout:     5 * time.Second,
		},
		Delivery: DeliveryConfig{
			SQLitePath: "moodlist.db",
			Timeout:    5 * time.Second,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load builds the configuration. path may be empty, in which case
// MOODLIST_CONFIG is consulted; without either only defaults and the
// environment apply.
func Load(path string) (*Config, error) {
	// a missing .env is normal outside local development
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("config: load defaults: %w", err)
	}

	if path == "" {
		path = os.Getenv(PathEnvVar)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: load file %s: %w", path, err)
		}
	}

	if err := k.Load(env.ProviderWithValue("", ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("config: load environment: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// legacyEnv maps the historical variable names onto config keys.
var legacyEnv = map[string]string{
	"GEMINI_API_KEY":              "llm.api_key",
	"GEMINI_MODEL":                "llm.model",
	"OLLAMA_HOST":                 "llm.base_url",
	"SPOTIFY_CLIENT_ID":           "spotify.client_id",
	"SPOTIFY_CLIENT_SECRET":       "spotify.client_secret",
	"SPOTIFY_MARKET":              "spotify.market",
	"SPOTIFY_DEFAULT_SEED_GENRES": "recommend.default_genres",
	"BACKEND_SERVER_URL":          "delivery.backend_url",
	"PORT":                        "server.addr",
}

// envTransform returns "" for variables that are not ours, which koanf skips.
func envTransform(key, value string) (string, any) {
	if mapped, ok := legacyEnv[key]; ok {
		if mapped == "server.addr" && !strings.Contains(value, ":") {
			value = ":" + value
		}
		return mapped, value
	}
	if !strings.HasPrefix(key, envPrefix) || key == PathEnvVar {
		return "", nil
	}
	rest := strings.ToLower(strings.TrimPrefix(key, envPrefix))
	section, name, ok := strings.Cut(rest, "_")
	if !ok || name == "" {
		return "", nil
	}
	return section + "." + name, value
}

var sliceConfigPaths = []string{
	"server.allowed_origins",
	"recommend.default_genres",
	"recommend.allowed_genres",
	"delivery.drivers",
}

// processSliceFields splits comma-separated strings coming from the environment.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok {
			continue
		}
		if err := k.Set(path, splitList(strVal)); err != nil {
			return fmt.Errorf("config: set %s: %w", path, err)
		}
	}
	return nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) normalize() {
	c.LLM.Provider = strings.ToLower(strings.TrimSpace(c.LLM.Provider))
	c.Spotify.Market = strings.ToUpper(strings.TrimSpace(c.Spotify.Market))
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	c.Recommend.DefaultGenres = lowerAll(c.Recommend.DefaultGenres)
	c.Recommend.AllowedGenres = lowerAll(c.Recommend.AllowedGenres)
	c.Delivery.Drivers = lowerAll(c.Delivery.Drivers)
}

func lowerAll(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Validate checks field constraints and the settings each delivery driver needs.
func (c *Config) Validate() error {
	if err := validation.Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.HasDriver(DriverBackend) && c.Delivery.BackendURL == "" {
		return errors.New("config: delivery.backend_url is required for the backend driver")
	}
	if c.HasDriver(DriverSQLite) && c.Delivery.SQLitePath == "" {
		return errors.New("config: delivery.sqlite_path is required for the sqlite driver")
	}
	if c.HasDriver(DriverPostgres) && c.Delivery.PostgresURL == "" {
		return errors.New("config: delivery.postgres_url is required for the postgres driver")
	}
	return nil
}

// ValidatePipeline checks the credentials needed to run conversations.
func (c *Config) ValidatePipeline() error {
	if c.LLM.Provider == "gemini" && c.LLM.APIKey == "" {
		return errors.New("config: llm.api_key (GEMINI_API_KEY) is required for the gemini provider")
	}
	if c.LLM.Provider == "ollama" && c.LLM.Model == "" {
		return errors.New("config: llm.model is required for the ollama provider")
	}
	if c.Spotify.ClientID == "" || c.Spotify.ClientSecret == "" {
		return errors.New("config: spotify.client_id and spotify.client_secret are required")
	}
	return nil
}

func (c *Config) HasDriver(name string) bool {
	return slices.Contains(c.Delivery.Drivers, name)
}
