// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger      LoggerConfig      `mapstructure:"logger" yaml:"logger"`
	Browser     BrowserConfig     `mapstructure:"browser" yaml:"browser"`
	SelfHealing SelfHealingConfig `mapstructure:"self_healing" yaml:"self_healing"`
	Locators    LocatorsConfig    `mapstructure:"locators" yaml:"locators"`
	Autofix     AutofixConfig     `mapstructure:"autofix" yaml:"autofix"`
	LLM         LLMRouterConfig   `mapstructure:"llm" yaml:"llm"`
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

// BrowserDriver selects the automation backend.
type BrowserDriver string

const (
	DriverChromedp BrowserDriver = "chromedp"
	DriverRod      BrowserDriver = "rod"
)

// BrowserConfig holds settings for the browser session the engine probes against.
type BrowserConfig struct {
	Driver            BrowserDriver  `mapstructure:"driver" yaml:"driver"`
	Headless          bool           `mapstructure:"headless" yaml:"headless"`
	Args              []string       `mapstructure:"args" yaml:"args"`
	Viewport          map[string]int `mapstructure:"viewport" yaml:"viewport"`
	DebuggerURL       string         `mapstructure:"debugger_url" yaml:"debugger_url"`
	LookupTimeout     time.Duration  `mapstructure:"lookup_timeout" yaml:"lookup_timeout"`
	NavigationTimeout time.Duration  `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
}

// HealingMode controls whether validated selectors are written back to disk.
type HealingMode string

const (
	ModeAuto   HealingMode = "auto"
	ModeManual HealingMode = "manual"
)

// AnalyzerKind selects the suggestion source variant.
type AnalyzerKind string

const (
	AnalyzerHeuristic AnalyzerKind = "heuristic"
	AnalyzerWorkflow  AnalyzerKind = "workflow"
)

// SelfHealingConfig holds settings for the locator resolution engine.
type SelfHealingConfig struct {
	Enabled             bool          `mapstructure:"enabled" yaml:"enabled"`
	Mode                HealingMode   `mapstructure:"mode" yaml:"mode"`
	Analyzer            AnalyzerKind  `mapstructure:"analyzer" yaml:"analyzer"`
	ConfidenceThreshold float64       `mapstructure:"confidence_threshold" yaml:"confidence_threshold"`
	MaxAttempts         int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	MaxCandidates       int           `mapstructure:"max_candidates" yaml:"max_candidates"`
	SelectorPreferences []string      `mapstructure:"selector_preferences" yaml:"selector_preferences"`
	ReportDir           string        `mapstructure:"report_dir" yaml:"report_dir"`
	SuggestionTimeout   time.Duration `mapstructure:"suggestion_timeout" yaml:"suggestion_timeout"`
}

// LocatorsConfig lists the locator definition files or directories.
type LocatorsConfig struct {
	Paths []string `mapstructure:"paths" yaml:"paths"`
}

// AutofixConfig tunes the definition rewrite.
type AutofixConfig struct {
	Backup bool `mapstructure:"backup" yaml:"backup"`
}

// LLMProvider defines the supported LLM providers.
type LLMProvider string

const (
	ProviderGemini LLMProvider = "gemini"
)

// LLMRouterConfig configures the model routing logic.
type LLMRouterConfig struct {
	Enabled              bool                      `mapstructure:"enabled" yaml:"enabled"`
	DefaultFastModel     string                    `mapstructure:"default_fast_model" yaml:"default_fast_model"`
	DefaultPowerfulModel string                    `mapstructure:"default_powerful_model" yaml:"default_powerful_model"`
	RequestsPerMinute    float64                   `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
	Models               map[string]LLMModelConfig `mapstructure:"models" yaml:"models"`
}

// LLMModelConfig defines the configuration for a single LLM.
type LLMModelConfig struct {
	Provider    LLMProvider   `mapstructure:"provider" yaml:"provider"`
	Model       string        `mapstructure:"model" yaml:"model"`
	APIKey      string        `mapstructure:"api_key" yaml:"-"`
	Endpoint    string        `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout  time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature float32       `mapstructure:"temperature" yaml:"temperature"`
	TopP        float32       `mapstructure:"top_p" yaml:"top_p"`
	TopK        int           `mapstructure:"top_k" yaml:"top_k"`
	MaxTokens   int           `mapstructure:"max_tokens" yaml:"max_tokens"`
}

// DefaultSelectorPreferences is the attribute priority order used when none is configured.
var DefaultSelectorPreferences = []string{
	"data-test-id",
	"data-testid",
	"aria-label",
	"role",
	"name",
	"type",
	"id",
	"class",
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "selfheal")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")

	// -- Browser --
	v.SetDefault("browser.driver", string(DriverChromedp))
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.lookup_timeout", "10s")
	v.SetDefault("browser.navigation_timeout", "60s")

	// -- Self Healing --
	v.SetDefault("self_healing.enabled", true)
	v.SetDefault("self_healing.mode", string(ModeAuto))
	v.SetDefault("self_healing.analyzer", string(AnalyzerWorkflow))
	v.SetDefault("self_healing.confidence_threshold", 0.8)
	v.SetDefault("self_healing.max_attempts", 3)
	v.SetDefault("self_healing.max_candidates", 10)
	v.SetDefault("self_healing.selector_preferences", DefaultSelectorPreferences)
	v.SetDefault("self_healing.report_dir", "reports")
	v.SetDefault("self_healing.suggestion_timeout", "30s")

	// -- Locators --
	v.SetDefault("locators.paths", []string{"locators"})

	// -- Autofix --
	v.SetDefault("autofix.backup", false)

	// -- LLM --
	v.SetDefault("llm.enabled", false)
	v.SetDefault("llm.default_fast_model", "flash")
	v.SetDefault("llm.default_powerful_model", "pro")
	v.SetDefault("llm.requests_per_minute", 30)
	// Model keys are aliases; viper treats dots in keys as nesting.
	v.SetDefault("llm.models.flash.provider", string(ProviderGemini))
	v.SetDefault("llm.models.flash.model", "gemini-2.5-flash")
	v.SetDefault("llm.models.flash.api_timeout", "30s")
	v.SetDefault("llm.models.pro.provider", string(ProviderGemini))
	v.SetDefault("llm.models.pro.model", "gemini-2.5-pro")
	v.SetDefault("llm.models.pro.api_timeout", "90s")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// API keys never live in the config file.
	if cfg.LLM.Enabled {
		key := os.Getenv("SELFHEAL_LLM_API_KEY")
		if key == "" {
			key = os.Getenv("GEMINI_API_KEY")
		}
		for name, m := range cfg.LLM.Models {
			if m.APIKey == "" {
				m.APIKey = key
				cfg.LLM.Models[name] = m
			}
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	switch c.Browser.Driver {
	case DriverChromedp, DriverRod:
	default:
		return fmt.Errorf("browser.driver must be one of [%s %s], got %q", DriverChromedp, DriverRod, c.Browser.Driver)
	}
	if err := c.SelfHealing.Validate(); err != nil {
		return fmt.Errorf("self_healing configuration invalid: %w", err)
	}
	if err := c.LLM.Validate(); err != nil {
		return fmt.Errorf("llm configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the self-healing configuration.
func (s *SelfHealingConfig) Validate() error {
	switch s.Mode {
	case ModeAuto, ModeManual:
	default:
		return fmt.Errorf("mode must be %q or %q, got %q", ModeAuto, ModeManual, s.Mode)
	}
	switch s.Analyzer {
	case AnalyzerHeuristic, AnalyzerWorkflow:
	default:
		return fmt.Errorf("analyzer must be %q or %q, got %q", AnalyzerHeuristic, AnalyzerWorkflow, s.Analyzer)
	}
	if s.ConfidenceThreshold < 0.0 || s.ConfidenceThreshold > 1.0 {
		return fmt.Errorf("confidence_threshold must be between 0.0 and 1.0")
	}
	if s.MaxAttempts <= 0 {
		return fmt.Errorf("max_attempts must be a positive integer")
	}
	if s.MaxCandidates <= 0 {
		return fmt.Errorf("max_candidates must be a positive integer")
	}
	return nil
}

// Preferences returns the configured attribute priority order or the default one.
func (s *SelfHealingConfig) Preferences() []string {
	if len(s.SelectorPreferences) == 0 {
		return DefaultSelectorPreferences
	}
	return s.SelectorPreferences
}

// Validate checks the LLM router configuration. Disabled routing is always valid.
func (l *LLMRouterConfig) Validate() error {
	if !l.Enabled {
		return nil
	}
	for _, name := range []string{l.DefaultFastModel, l.DefaultPowerfulModel} {
		m, ok := l.Models[name]
		if !ok {
			return fmt.Errorf("model %q is referenced as a default but not defined under llm.models", name)
		}
		if m.APIKey == "" {
			return fmt.Errorf("API key for model %q is required but not found. Ensure SELFHEAL_LLM_API_KEY is set", name)
		}
	}
	return nil
}
