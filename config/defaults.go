// =============================================================================
// 📦 Parliament 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:       DefaultServerConfig(),
		Deliberation: DefaultDeliberationConfig(),
		Personas:     DefaultPersonaConfig(),
		Gateway:      DefaultGatewayConfig(),
		Constitution: DefaultConstitutionConfig(),
		Ledger:       DefaultLedgerConfig(),
		Redis:        DefaultRedisConfig(),
		Database:     DefaultDatabaseConfig(),
		Log:          DefaultLogConfig(),
		Telemetry:    DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    90 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		RequestTimeout:  60 * time.Second,
		RateLimitRPS:    5,
		RateLimitBurst:  10,
	}
}

// DefaultDeliberationConfig 返回默认审议配置
func DefaultDeliberationConfig() DeliberationConfig {
	return DeliberationConfig{
		MaxRounds:         4,
		MinVotingPersonas: 2,
		MaxRetries:        0,
		RetryInitialDelay: 500 * time.Millisecond,
		RetryMaxDelay:     5 * time.Second,
	}
}

// DefaultPersonaConfig 返回默认模型绑定
func DefaultPersonaConfig() PersonaConfig {
	return PersonaConfig{
		Structural: ModelConfig{Provider: "gateway", Model: "deepseek/deepseek-v3.2"},
		Strategic:  ModelConfig{Provider: "gateway", Model: "anthropic/claude-3.5-haiku"},
		Pragmatic:  ModelConfig{Provider: "gateway", Model: "google/gemini-2.5-flash"},
		Synthesis:  ModelConfig{Provider: "gateway", Model: "anthropic/claude-3.5-haiku"},
	}
}

// DefaultGatewayConfig 返回默认网关配置
func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		BaseURL: "https://ai-gateway.vercel.sh",
		Timeout: 45 * time.Second,
	}
}

// DefaultConstitutionConfig 返回默认宪章配置
func DefaultConstitutionConfig() ConstitutionConfig {
	return ConstitutionConfig{
		GitHubPath: "ogma_constitution.yaml",
		GitHubRef:  "main",
		File:       "ogma_constitution.yaml",
		CacheTTL:   10 * time.Minute,
	}
}

// DefaultLedgerConfig 返回默认账本配置
func DefaultLedgerConfig() LedgerConfig {
	return LedgerConfig{
		Enabled:      true,
		Workers:      4,
		QueueSize:    512,
		WriteTimeout: 5 * time.Second,
		MaxRetries:   2,
		RedisTTL:     7 * 24 * time.Hour,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "sqlite",
		Host:            "localhost",
		Port:            5432,
		User:            "parliament",
		Password:        "",
		Name:            "parliament.db",
		SSLMode:         "disable",
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "parliament",
		SampleRate:   0.1,
	}
}
