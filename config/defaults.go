// =============================================================================
// 📦 FusionFlow 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import (
	"time"

	"github.com/BaSui01/fusionflow/image"
)

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:     DefaultServerConfig(),
		Providers:  DefaultProvidersConfig(),
		Generation: DefaultGenerationConfig(),
		Log:        DefaultLogConfig(),
		Telemetry:  DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    3 * time.Minute,
		ShutdownTimeout: 15 * time.Second,
		MaxBodyBytes:    32 << 20,
		RateLimitRPS:    10,
		RateLimitBurst:  20,
	}
}

// DefaultProvidersConfig 返回默认服务商配置（不含凭证）
func DefaultProvidersConfig() ProvidersConfig {
	return ProvidersConfig{
		Gemini: image.DefaultGeminiConfig(),
		OpenAI: image.DefaultOpenAIConfig(),
		Flux:   image.DefaultFluxConfig(),
	}
}

// DefaultGenerationConfig 返回默认生成配置
func DefaultGenerationConfig() GenerationConfig {
	return GenerationConfig{
		DefaultEngine:  "flux",
		RequestTimeout: 2 * time.Minute,
		MaxConcurrency: 4,
		Poll:           image.DefaultPollConfig(),
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
		ServiceName:  "fusionflow",
		SampleRate:   0.1,
	}
}
