package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "gemini", cfg.LLM.Provider)
	assert.Equal(t, "US", cfg.Spotify.Market)
	assert.Equal(t, 5, cfg.Recommend.Limit)
	assert.False(t, cfg.Recommend.GenreFill)
	assert.Equal(t, 5*time.Second, cfg.Delivery.Timeout)
	assert.Empty(t, cfg.Delivery.Drivers)
	require.NoError(t, cfg.Validate())
}

func TestLoad_DefaultsOnly(t *testing.T) {
	t.Setenv(PathEnvVar, "")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 4, cfg.Recommend.FeatureConcurrency)
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "moodlist.yaml")
	yaml := strings.Join([]string{
		"llm:",
		"  provider: ollama",
		"  model: llama3",
		"  timeout: 45s",
		"recommend:",
		"  limit: 8",
		"  default_genres: [Chill, pop]",
		"delivery:",
		"  drivers: [sqlite]",
		"  sqlite_path: /tmp/a.db",
	}, "\n")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	t.Setenv("MOODLIST_RECOMMEND_LIMIT", "12")
	t.Setenv("MOODLIST_DELIVERY_SQLITE_PATH", "/tmp/b.db")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "ollama", cfg.LLM.Provider)
	assert.Equal(t, "llama3", cfg.LLM.Model)
	assert.Equal(t, 45*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 12, cfg.Recommend.Limit)
	assert.Equal(t, []string{"chill", "pop"}, cfg.Recommend.DefaultGenres)
	assert.Equal(t, []string{"sqlite"}, cfg.Delivery.Drivers)
	assert.Equal(t, "/tmp/b.db", cfg.Delivery.SQLitePath)
}

func TestLoad_LegacyEnv(t *testing.T) {
	t.Setenv(PathEnvVar, "")
	t.Setenv("GEMINI_API_KEY", "key")
	t.Setenv("SPOTIFY_CLIENT_ID", "id")
	t.Setenv("SPOTIFY_CLIENT_SECRET", "secret")
	t.Setenv("SPOTIFY_MARKET", "kr")
	t.Setenv("SPOTIFY_DEFAULT_SEED_GENRES", "K-Pop, Indie ,")
	t.Setenv("BACKEND_SERVER_URL", "https://backend.test")
	t.Setenv("PORT", "9090")
	t.Setenv("MOODLIST_DELIVERY_DRIVERS", "backend, sqlite")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "key", cfg.LLM.APIKey)
	assert.Equal(t, "KR", cfg.Spotify.Market)
	assert.Equal(t, []string{"k-pop", "indie"}, cfg.Recommend.DefaultGenres)
	assert.Equal(t, "https://backend.test", cfg.Delivery.BackendURL)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.True(t, cfg.HasDriver(DriverBackend))
	assert.True(t, cfg.HasDriver(DriverSQLite))
	assert.False(t, cfg.HasDriver(DriverPostgres))
	require.NoError(t, cfg.ValidatePipeline())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(c *Config) {}},
		{name: "bad provider", mutate: func(c *Config) { c.LLM.Provider = "openai" }, wantErr: "Provider"},
		{name: "limit too high", mutate: func(c *Config) { c.Recommend.Limit = 51 }, wantErr: "Limit"},
		{name: "limit zero", mutate: func(c *Config) { c.Recommend.Limit = 0 }, wantErr: "Limit"},
		{name: "market length", mutate: func(c *Config) { c.Spotify.Market = "USA" }, wantErr: "Market"},
		{name: "zero timeout", mutate: func(c *Config) { c.Delivery.Timeout = 0 }, wantErr: "Timeout"},
		{name: "unknown driver", mutate: func(c *Config) { c.Delivery.Drivers = []string{"kafka"} }, wantErr: "Drivers"},
		{
			name:    "backend without url",
			mutate:  func(c *Config) { c.Delivery.Drivers = []string{DriverBackend} },
			wantErr: "backend_url",
		},
		{
			name:    "postgres without url",
			mutate:  func(c *Config) { c.Delivery.Drivers = []string{DriverPostgres} },
			wantErr: "postgres_url",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidatePipeline(t *testing.T) {
	cfg := defaultConfig()
	require.ErrorContains(t, cfg.ValidatePipeline(), "GEMINI_API_KEY")

	cfg.LLM.APIKey = "k"
	require.ErrorContains(t, cfg.ValidatePipeline(), "spotify")

	cfg.Spotify.ClientID, cfg.Spotify.ClientSecret = "id", "secret"
	require.NoError(t, cfg.ValidatePipeline())

	cfg.LLM.Provider = "ollama"
	require.ErrorContains(t, cfg.ValidatePipeline(), "llm.model")
}

func TestEnvTransform(t *testing.T) {
	tests := []struct {
		key, value string
		wantKey    string
		wantValue  any
	}{
		{"MOODLIST_LLM_API_KEY", "k", "llm.api_key", "k"},
		{"MOODLIST_SERVER_ADDR", ":1", "server.addr", ":1"},
		{"PORT", "8000", "server.addr", ":8000"},
		{"PORT", "127.0.0.1:8000", "server.addr", "127.0.0.1:8000"},
		{"MOODLIST_CONFIG", "x.yaml", "", nil},
		{"MOODLIST_", "x", "", nil},
		{"HOME", "/root", "", nil},
	}
	for _, tt := range tests {
		gotKey, gotValue := envTransform(tt.key, tt.value)
		assert.Equal(t, tt.wantKey, gotKey, tt.key)
		assert.Equal(t, tt.wantValue, gotValue, tt.key)
	}
}
