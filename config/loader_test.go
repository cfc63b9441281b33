// 配置加载器测试。
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Loader 测试 ---

func TestLoader_LoadDefaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, 4, cfg.Deliberation.MaxRounds)
	assert.NoError(t, cfg.Validate())
}

func TestLoader_LoadFromYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")

	yamlContent := `
server:
  http_port: 8888
  request_timeout: 30s
  api_keys: ["k1", "k2"]

deliberation:
  max_rounds: 6
  min_voting_personas: 3
  max_retries: 2

personas:
  structural:
    provider: gateway
    model: openai/gpt-4o-mini

gateway:
  base_url: "https://gateway.internal"
  project_id: "proj-1"

ledger:
  redis_totals: true
  redis_ttl: 1h

pricing:
  overrides:
    - model: acme/model-x
      input: 1.5
      output: 3

log:
  level: "debug"
  format: "console"
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0o644))

	cfg, err := NewLoader().WithConfigPath(configPath).Load()
	require.NoError(t, err)

	assert.Equal(t, 8888, cfg.Server.HTTPPort)
	assert.Equal(t, 30*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, []string{"k1", "k2"}, cfg.Server.APIKeys)

	assert.Equal(t, 6, cfg.Deliberation.MaxRounds)
	assert.Equal(t, 3, cfg.Deliberation.MinVotingPersonas)
	assert.Equal(t, 2, cfg.Deliberation.MaxRetries)

	assert.Equal(t, "openai/gpt-4o-mini", cfg.Personas.Structural.Model)
	// 未覆盖的绑定保留默认值
	assert.Equal(t, "google/gemini-2.5-flash", cfg.Personas.Pragmatic.Model)

	assert.Equal(t, "https://gateway.internal", cfg.Gateway.BaseURL)
	assert.Equal(t, "proj-1", cfg.Gateway.ProjectID)
	assert.True(t, cfg.Ledger.RedisTotals)
	assert.Equal(t, time.Hour, cfg.Ledger.RedisTTL)

	require.Len(t, cfg.Pricing.Overrides, 1)
	assert.Equal(t, PriceConfig{Model: "acme/model-x", Input: 1.5, Output: 3}, cfg.Pricing.Overrides[0])

	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoader_LoadFromEnv(t *testing.T) {
	t.Setenv("PARLIAMENT_SERVER_HTTP_PORT", "7777")
	t.Setenv("PARLIAMENT_SERVER_API_KEYS", "a, b,,c")
	t.Setenv("PARLIAMENT_DELIBERATION_MAX_ROUNDS", "2")
	t.Setenv("PARLIAMENT_PERSONAS_SYNTHESIS_MODEL", "openai/gpt-5")
	t.Setenv("PARLIAMENT_GATEWAY_API_KEY", "secret")
	t.Setenv("PARLIAMENT_GATEWAY_RATE_LIMIT_RPS", "2.5")
	t.Setenv("PARLIAMENT_CONSTITUTION_GITHUB_TOKEN", "ghp_x")
	t.Setenv("PARLIAMENT_CONSTITUTION_WATCH", "true")
	t.Setenv("PARLIAMENT_LEDGER_WRITE_TIMEOUT", "2s")
	t.Setenv("PARLIAMENT_REDIS_ADDR", "redis:6379")
	t.Setenv("PARLIAMENT_LOG_OUTPUT_PATHS", "stdout,/var/log/parliament.log")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 7777, cfg.Server.HTTPPort)
	assert.Equal(t, []string{"a", "b", "c"}, cfg.Server.APIKeys)
	assert.Equal(t, 2, cfg.Deliberation.MaxRounds)
	assert.Equal(t, "openai/gpt-5", cfg.Personas.Synthesis.Model)
	assert.Equal(t, "gateway", cfg.Personas.Synthesis.Provider)
	assert.Equal(t, "secret", cfg.Gateway.APIKey)
	assert.Equal(t, 2.5, cfg.Gateway.RateLimitRPS)
	assert.Equal(t, "ghp_x", cfg.Constitution.GitHubToken)
	assert.True(t, cfg.Constitution.Watch)
	assert.Equal(t, 2*time.Second, cfg.Ledger.WriteTimeout)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, []string{"stdout", "/var/log/parliament.log"}, cfg.Log.OutputPaths)
}

func TestLoader_EnvOverridesYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	yamlContent := `
server:
  http_port: 8888
deliberation:
  max_rounds: 5
  min_voting_personas: 3
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0o644))
	t.Setenv("PARLIAMENT_SERVER_HTTP_PORT", "9999")

	cfg, err := NewLoader().WithConfigPath(configPath).Load()
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.HTTPPort)
	assert.Equal(t, 5, cfg.Deliberation.MaxRounds)
	assert.Equal(t, 3, cfg.Deliberation.MinVotingPersonas)
}

func TestLoader_CustomEnvPrefix(t *testing.T) {
	t.Setenv("MYAPP_SERVER_HTTP_PORT", "6666")

	cfg, err := NewLoader().WithEnvPrefix("MYAPP").Load()
	require.NoError(t, err)
	assert.Equal(t, 6666, cfg.Server.HTTPPort)
}

func TestLoader_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath(filepath.Join(t.TempDir(), "nope.yaml")).Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoader_InvalidYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("server: [unclosed"), 0o644))

	_, err := NewLoader().WithConfigPath(configPath).Load()
	assert.ErrorContains(t, err, "failed to parse config file")
}

func TestLoader_InvalidEnvValue(t *testing.T) {
	t.Setenv("PARLIAMENT_DELIBERATION_MAX_ROUNDS", "many")

	_, err := NewLoader().Load()
	assert.ErrorContains(t, err, "PARLIAMENT_DELIBERATION_MAX_ROUNDS")
}

func TestLoader_WithValidator(t *testing.T) {
	t.Setenv("PARLIAMENT_DELIBERATION_MAX_ROUNDS", "0")

	_, err := NewLoader().WithValidator(func(c *Config) error { return c.Validate() }).Load()
	assert.ErrorContains(t, err, "max_rounds")
}

func TestMustLoad_Panics(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(":::"), 0o644))

	assert.Panics(t, func() { MustLoad(configPath) })
}

// --- Validate 测试 ---

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad port", func(c *Config) { c.Server.HTTPPort = 70000 }, "HTTP port"},
		{"bad metrics port", func(c *Config) { c.Server.MetricsPort = -1 }, "metrics port"},
		{"no request timeout", func(c *Config) { c.Server.RequestTimeout = 0 }, "request_timeout"},
		{"zero rounds", func(c *Config) { c.Deliberation.MaxRounds = 0 }, "max_rounds"},
		{"zero voters", func(c *Config) { c.Deliberation.MinVotingPersonas = 0 }, "min_voting_personas"},
		{"negative retries", func(c *Config) { c.Deliberation.MaxRetries = -1 }, "max_retries"},
		{"missing synthesis", func(c *Config) { c.Personas.Synthesis.Model = " " }, "personas.synthesis.model"},
		{"no personas", func(c *Config) {
			c.Personas.Structural.Model = ""
			c.Personas.Strategic.Model = ""
			c.Personas.Pragmatic.Model = ""
		}, "at least one persona"},
		{"sample rate", func(c *Config) { c.Telemetry.SampleRate = 1.5 }, "sample_rate"},
		{"ledger queue", func(c *Config) { c.Ledger.QueueSize = -1 }, "queue_size"},
		{"unbuffered ledger queue", func(c *Config) { c.Ledger.QueueSize = 0 }, "queue_size must be at least 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestConfig_Validate_DisabledPersona(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Personas.Pragmatic.Model = ""
	assert.NoError(t, cfg.Validate())
}

func TestDatabaseConfig_DSN(t *testing.T) {
	pg := DatabaseConfig{Driver: "postgres", Host: "db", Port: 5432, User: "u", Password: "p", Name: "n", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=n sslmode=disable", pg.DSN())

	my := DatabaseConfig{Driver: "mysql", Host: "db", Port: 3306, User: "u", Password: "p", Name: "n"}
	assert.Equal(t, "u:p@tcp(db:3306)/n?parseTime=true", my.DSN())

	lite := DatabaseConfig{Driver: "sqlite", Name: "/tmp/ledger.db"}
	assert.Equal(t, "/tmp/ledger.db", lite.DSN())

	assert.Empty(t, (&DatabaseConfig{Driver: "oracle"}).DSN())
}
