// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger  LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	Browser BrowserConfig  `mapstructure:"browser" yaml:"browser"`
	Network NetworkConfig  `mapstructure:"network" yaml:"network"`
	Agent   AgentConfig    `mapstructure:"agent" yaml:"agent"`
	LLM     LLMModelConfig `mapstructure:"llm" yaml:"llm"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig holds settings for the controlled Chrome instance.
type BrowserConfig struct {
	// CDPURL connects to an already running browser instead of launching one.
	CDPURL          string         `mapstructure:"cdp_url" yaml:"cdp_url"`
	Headless        bool           `mapstructure:"headless" yaml:"headless"`
	ExecPath        string         `mapstructure:"exec_path" yaml:"exec_path"`
	UserDataDir     string         `mapstructure:"user_data_dir" yaml:"user_data_dir"`
	IgnoreTLSErrors bool           `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	Args            []string       `mapstructure:"args" yaml:"args"`
	Viewport        ViewportConfig `mapstructure:"viewport" yaml:"viewport"`
	AllowedDomains  []string       `mapstructure:"allowed_domains" yaml:"allowed_domains"`
	// DownloadDir receives files the page downloads; empty leaves Chrome's default.
	DownloadDir string            `mapstructure:"download_dir" yaml:"download_dir"`
	Interaction InteractionConfig `mapstructure:"interaction" yaml:"interaction"`
}

// ViewportConfig is the window size requested at launch.
type ViewportConfig struct {
	Width  int `mapstructure:"width" yaml:"width"`
	Height int `mapstructure:"height" yaml:"height"`
}

// InteractionConfig tunes how text and pointer input is delivered.
type InteractionConfig struct {
	// PerCharacterTyping dispatches one key event sequence per character
	// instead of a single insertText call.
	PerCharacterTyping bool          `mapstructure:"per_character_typing" yaml:"per_character_typing"`
	TypingDelay        time.Duration `mapstructure:"typing_delay" yaml:"typing_delay"`
}

// NetworkConfig tunes page loading and stability detection.
type NetworkConfig struct {
	NavigationTimeout time.Duration     `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	Headers           map[string]string `mapstructure:"headers" yaml:"headers"`
	// NetworkIdle is the quiet period with no in-flight requests that counts as idle.
	NetworkIdle time.Duration `mapstructure:"network_idle" yaml:"network_idle"`
	// DOMIdle is the quiet period with no DOM mutations that counts as stable.
	DOMIdle          time.Duration `mapstructure:"dom_idle" yaml:"dom_idle"`
	StabilityTimeout time.Duration `mapstructure:"stability_timeout" yaml:"stability_timeout"`
}

// AgentConfig holds settings for the step loop.
type AgentConfig struct {
	MaxSteps               int           `mapstructure:"max_steps" yaml:"max_steps"`
	MaxConsecutiveFailures int           `mapstructure:"max_consecutive_failures" yaml:"max_consecutive_failures"`
	StepTimeout            time.Duration `mapstructure:"step_timeout" yaml:"step_timeout"`
	StepDelay              time.Duration `mapstructure:"step_delay" yaml:"step_delay"`
	HistoryWindow          int           `mapstructure:"history_window" yaml:"history_window"`
	// ActionsPerSecond paces action execution; 0 disables pacing.
	ActionsPerSecond float64     `mapstructure:"actions_per_second" yaml:"actions_per_second"`
	SystemPrompt     string      `mapstructure:"system_prompt" yaml:"system_prompt"`
	Retry            RetryConfig `mapstructure:"retry" yaml:"retry"`
}

// RetryConfig configures the element action retry wrapper.
type RetryConfig struct {
	MaxRetries int           `mapstructure:"max_retries" yaml:"max_retries"`
	BaseDelay  time.Duration `mapstructure:"base_delay" yaml:"base_delay"`
}

// LLMProvider defines the supported LLM providers.
type LLMProvider string

const (
	ProviderGemini     LLMProvider = "gemini"
	ProviderOpenAI     LLMProvider = "openai"
	ProviderAnthropic  LLMProvider = "anthropic"
	ProviderOllama     LLMProvider = "ollama"
	ProviderOpenRouter LLMProvider = "openrouter"
	ProviderGroq       LLMProvider = "groq"
)

// SupportedProviders lists every provider the client factory can build.
var SupportedProviders = []LLMProvider{
	ProviderOpenAI, ProviderAnthropic, ProviderGemini, ProviderOpenRouter, ProviderGroq, ProviderOllama,
}

// LLMModelConfig defines the configuration for the LLM driving the agent.
type LLMModelConfig struct {
	Provider    LLMProvider   `mapstructure:"provider" yaml:"provider"`
	Model       string        `mapstructure:"model" yaml:"model"`
	APIKey      string        `mapstructure:"api_key" yaml:"-"`
	Endpoint    string        `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout  time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature float32       `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	MaxRetries  int           `mapstructure:"max_retries" yaml:"max_retries"`
}

// providerKeyEnv maps providers to the environment variables holding their API keys.
var providerKeyEnv = map[LLMProvider][]string{
	ProviderOpenAI:     {"OPENAI_API_KEY"},
	ProviderAnthropic:  {"ANTHROPIC_API_KEY"},
	ProviderGemini:     {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
	ProviderOpenRouter: {"OPENROUTER_API_KEY"},
	ProviderGroq:       {"GROQ_API_KEY"},
}

// DefaultModels is the model used for each provider when llm.model is unset.
var DefaultModels = map[LLMProvider]string{
	ProviderOpenAI:     "gpt-4o",
	ProviderAnthropic:  "claude-3-5-sonnet-20241022",
	ProviderGemini:     "gemini-2.0-flash",
	ProviderOpenRouter: "anthropic/claude-3.5-sonnet",
	ProviderGroq:       "llama-3.3-70b-versatile",
	ProviderOllama:     "llama3.1",
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	cfg.LLM.applyDefaults()
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "heimdall")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.viewport.width", 1280)
	v.SetDefault("browser.viewport.height", 800)
	v.SetDefault("browser.interaction.per_character_typing", false)
	v.SetDefault("browser.interaction.typing_delay", "0s")

	// -- Network --
	v.SetDefault("network.navigation_timeout", "30s")
	v.SetDefault("network.network_idle", "500ms")
	v.SetDefault("network.dom_idle", "300ms")
	v.SetDefault("network.stability_timeout", "5s")

	// -- Agent --
	v.SetDefault("agent.max_steps", 50)
	v.SetDefault("agent.max_consecutive_failures", 5)
	v.SetDefault("agent.step_timeout", "60s")
	v.SetDefault("agent.step_delay", "200ms")
	v.SetDefault("agent.history_window", 5)
	v.SetDefault("agent.actions_per_second", 0.0)
	v.SetDefault("agent.retry.max_retries", 2)
	v.SetDefault("agent.retry.base_delay", "500ms")

	// -- LLM --
	v.SetDefault("llm.provider", string(ProviderOpenAI))
	v.SetDefault("llm.api_timeout", "120s")
	v.SetDefault("llm.temperature", 0.0)
	v.SetDefault("llm.max_tokens", 4096)
	v.SetDefault("llm.max_retries", 3)
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data
	_ = v.BindEnv("llm.api_key", "HEIMDALL_LLM_API_KEY")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	cfg.LLM.applyDefaults()

	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// applyDefaults fills the model and API key from the provider when unset.
func (l *LLMModelConfig) applyDefaults() {
	if l.Model == "" {
		l.Model = DefaultModels[l.Provider]
	}
	if l.APIKey == "" {
		l.APIKey = APIKeyFromEnv(l.Provider)
	}
}

// APIKeyFromEnv returns the first non-empty API key variable for the provider.
func APIKeyFromEnv(p LLMProvider) string {
	for _, name := range providerKeyEnv[p] {
		if val := os.Getenv(name); val != "" {
			return val
		}
	}
	return ""
}

func (c *Config) expandPaths() error {
	var err error
	if c.Browser.UserDataDir, err = homedir.Expand(c.Browser.UserDataDir); err != nil {
		return fmt.Errorf("browser.user_data_dir: %w", err)
	}
	if c.Browser.DownloadDir, err = homedir.Expand(c.Browser.DownloadDir); err != nil {
		return fmt.Errorf("browser.download_dir: %w", err)
	}
	if c.Logger.LogFile, err = homedir.Expand(c.Logger.LogFile); err != nil {
		return fmt.Errorf("logger.log_file: %w", err)
	}
	return nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Browser.Viewport.Width <= 0 || c.Browser.Viewport.Height <= 0 {
		return fmt.Errorf("browser.viewport width and height must be positive integers")
	}
	if c.Network.NavigationTimeout <= 0 {
		return fmt.Errorf("network.navigation_timeout must be a positive duration")
	}
	if err := c.Agent.Validate(); err != nil {
		return fmt.Errorf("agent configuration invalid: %w", err)
	}
	if err := c.LLM.Validate(); err != nil {
		return fmt.Errorf("llm configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the AgentConfig settings.
func (a *AgentConfig) Validate() error {
	if a.MaxSteps <= 0 {
		return fmt.Errorf("max_steps must be a positive integer")
	}
	if a.MaxConsecutiveFailures <= 0 {
		return fmt.Errorf("max_consecutive_failures must be a positive integer")
	}
	if a.HistoryWindow < 0 {
		return fmt.Errorf("history_window must not be negative")
	}
	if a.ActionsPerSecond < 0 {
		return fmt.Errorf("actions_per_second must not be negative")
	}
	if a.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries must not be negative")
	}
	return nil
}

// Validate checks that the provider is known and a model is named.
func (l *LLMModelConfig) Validate() error {
	supported := false
	for _, p := range SupportedProviders {
		if l.Provider == p {
			supported = true
			break
		}
	}
	if !supported {
		return fmt.Errorf("unsupported provider '%s'", l.Provider)
	}
	if l.Model == "" {
		return fmt.Errorf("model is required")
	}
	return nil
}
