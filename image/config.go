package image

import "time"

// GeminiConfig配置了Google Gemini图像生成提供者.
type GeminiConfig struct {
	APIKey  string        `json:"api_key" yaml:"api_key" env:"API_KEY"`
	BaseURL string        `json:"base_url" yaml:"base_url" env:"BASE_URL"`
	Model   string        `json:"model,omitempty" yaml:"model,omitempty" env:"MODEL"` // gemini-2.5-flash-image
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty" env:"TIMEOUT"`
}

// OpenAIConfig配置了OpenAI图像供应商.
type OpenAIConfig struct {
	APIKey  string        `json:"api_key" yaml:"api_key" env:"API_KEY"`
	BaseURL string        `json:"base_url" yaml:"base_url" env:"BASE_URL"`
	Model   string        `json:"model,omitempty" yaml:"model,omitempty" env:"MODEL"` // gpt-image-1
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty" env:"TIMEOUT"`
}

// FluxConfig配置了黑森林实验室Flux供应商.
type FluxConfig struct {
	APIKey  string        `json:"api_key" yaml:"api_key" env:"API_KEY"`
	BaseURL string        `json:"base_url" yaml:"base_url" env:"BASE_URL"`
	Model   string        `json:"model,omitempty" yaml:"model,omitempty" env:"MODEL"` // flux-kontext-pro
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty" env:"TIMEOUT"`
}

// PollConfig 控制异步任务轮询.
type PollConfig struct {
	MaxAttempts int           `json:"max_attempts" yaml:"max_attempts" env:"MAX_ATTEMPTS"`
	Interval    time.Duration `json:"interval" yaml:"interval" env:"INTERVAL"`
}

// 默认GeminiConfig返回默认Gemini图像配置.
func DefaultGeminiConfig() GeminiConfig {
	return GeminiConfig{
		BaseURL: "https://generativelanguage.googleapis.com",
		Model:   "gemini-2.5-flash-image",
		Timeout: 120 * time.Second,
	}
}

// 默认 OpenAIConfig 返回默认 OpenAI 图像配置 。
func DefaultOpenAIConfig() OpenAIConfig {
	return OpenAIConfig{
		BaseURL: "https://api.openai.com",
		Model:   "gpt-image-1",
		Timeout: 120 * time.Second,
	}
}

// 默认FluxConfig 返回默认Flux配置 。
func DefaultFluxConfig() FluxConfig {
	return FluxConfig{
		BaseURL: "https://api.bfl.ai",
		Model:   "flux-kontext-pro",
		Timeout: 120 * time.Second,
	}
}

// DefaultPollConfig returns 10 attempts with a fixed 2.5s delay.
func DefaultPollConfig() PollConfig {
	return PollConfig{
		MaxAttempts: 10,
		Interval:    2500 * time.Millisecond,
	}
}
