// File: internal/config/config_test.go
package config

import (
	"bytes"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -- Constructor and Defaults Tests --

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, DriverChromedp, cfg.Browser.Driver)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 10*time.Second, cfg.Browser.LookupTimeout)
	assert.True(t, cfg.SelfHealing.Enabled)
	assert.Equal(t, ModeAuto, cfg.SelfHealing.Mode)
	assert.Equal(t, AnalyzerWorkflow, cfg.SelfHealing.Analyzer)
	assert.Equal(t, 0.8, cfg.SelfHealing.ConfidenceThreshold)
	assert.Equal(t, 3, cfg.SelfHealing.MaxAttempts)
	assert.Equal(t, 30*time.Second, cfg.SelfHealing.SuggestionTimeout)
	assert.Equal(t, DefaultSelectorPreferences, cfg.SelfHealing.SelectorPreferences)
	assert.Equal(t, []string{"locators"}, cfg.Locators.Paths)
	assert.False(t, cfg.LLM.Enabled)
	assert.Equal(t, "gemini-2.5-pro", cfg.LLM.Models[cfg.LLM.DefaultPowerfulModel].Model)

	require.NoError(t, cfg.Validate(), "defaults must always validate")
}

// -- Validation Logic Tests --

func TestConfigValidation(t *testing.T) {
	t.Run("Core Validation", func(t *testing.T) {
		cfg := NewDefaultConfig()
		assert.NoError(t, cfg.Validate())

		badDriver := *cfg
		badDriver.Browser.Driver = "selenium"
		err := badDriver.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "browser.driver must be one of")
	})

	t.Run("Self Healing Validation", func(t *testing.T) {
		valid := NewDefaultConfig().SelfHealing
		assert.NoError(t, valid.Validate())

		badMode := valid
		badMode.Mode = "sometimes"
		err := badMode.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "mode must be")

		badAnalyzer := valid
		badAnalyzer.Analyzer = "oracle"
		err = badAnalyzer.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "analyzer must be")

		thresholdHigh := valid
		thresholdHigh.ConfidenceThreshold = 1.1
		err = thresholdHigh.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "confidence_threshold must be between 0.0 and 1.0")

		zeroAttempts := valid
		zeroAttempts.MaxAttempts = 0
		err = zeroAttempts.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "max_attempts must be a positive integer")

		zeroCandidates := valid
		zeroCandidates.MaxCandidates = -2
		err = zeroCandidates.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "max_candidates must be a positive integer")
	})

	t.Run("LLM Validation", func(t *testing.T) {
		llm := LLMRouterConfig{
			Enabled:              true,
			DefaultFastModel:     "flash",
			DefaultPowerfulModel: "pro",
			Models: map[string]LLMModelConfig{
				"flash": {Provider: ProviderGemini, Model: "gemini-2.5-flash", APIKey: "k"},
				"pro":   {Provider: ProviderGemini, Model: "gemini-2.5-pro", APIKey: "k"},
			},
		}
		assert.NoError(t, llm.Validate())

		disabled := LLMRouterConfig{Enabled: false}
		assert.NoError(t, disabled.Validate(), "disabled routing is always valid")

		missingModel := llm
		missingModel.DefaultFastModel = "nano"
		err := missingModel.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not defined under llm.models")

		noKey := llm
		noKey.Models = map[string]LLMModelConfig{
			"flash": {Provider: ProviderGemini, Model: "gemini-2.5-flash"},
			"pro":   {Provider: ProviderGemini, Model: "gemini-2.5-pro", APIKey: "k"},
		}
		err = noKey.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "API key for model \"flash\" is required")
	})
}

func TestPreferences(t *testing.T) {
	s := SelfHealingConfig{}
	assert.Equal(t, DefaultSelectorPreferences, s.Preferences())

	s.SelectorPreferences = []string{"data-testid", "id"}
	assert.Equal(t, []string{"data-testid", "id"}, s.Preferences())
}

// -- Factory Function Tests --

func TestNewConfigFromViper(t *testing.T) {
	t.Run("Successful Load from YAML", func(t *testing.T) {
		yamlBytes := []byte(`
browser:
  driver: rod
  lookup_timeout: 2s
self_healing:
  mode: manual
  analyzer: heuristic
  confidence_threshold: 0.9
  selector_preferences: [data-testid, id]
locators:
  paths: [features/locators, extra.xml]
`)
		v := viper.New()
		SetDefaults(v)
		v.SetConfigType("yaml")
		require.NoError(t, v.ReadConfig(bytes.NewBuffer(yamlBytes)))

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)

		assert.Equal(t, DriverRod, cfg.Browser.Driver)
		assert.Equal(t, 2*time.Second, cfg.Browser.LookupTimeout)
		assert.Equal(t, ModeManual, cfg.SelfHealing.Mode)
		assert.Equal(t, AnalyzerHeuristic, cfg.SelfHealing.Analyzer)
		assert.Equal(t, 0.9, cfg.SelfHealing.ConfidenceThreshold)
		assert.Equal(t, []string{"data-testid", "id"}, cfg.SelfHealing.SelectorPreferences)
		assert.Equal(t, []string{"features/locators", "extra.xml"}, cfg.Locators.Paths)
		// Untouched sections keep their defaults.
		assert.Equal(t, 3, cfg.SelfHealing.MaxAttempts)
		assert.Equal(t, "info", cfg.Logger.Level)
	})

	t.Run("Validation Failure", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("self_healing.max_attempts", 0)

		cfg, err := NewConfigFromViper(v)
		assert.Error(t, err)
		assert.Nil(t, cfg)
		assert.Contains(t, err.Error(), "invalid configuration")
		assert.Contains(t, err.Error(), "max_attempts must be a positive integer")
	})

	t.Run("LLM API Key From Environment", func(t *testing.T) {
		t.Setenv("SELFHEAL_LLM_API_KEY", "env-key-123")

		v := viper.New()
		SetDefaults(v)
		v.Set("llm.enabled", true)

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, "env-key-123", cfg.LLM.Models["flash"].APIKey)
		assert.Equal(t, "env-key-123", cfg.LLM.Models["pro"].APIKey)
	})

	t.Run("LLM Enabled Without Key", func(t *testing.T) {
		t.Setenv("SELFHEAL_LLM_API_KEY", "")
		t.Setenv("GEMINI_API_KEY", "")

		v := viper.New()
		SetDefaults(v)
		v.Set("llm.enabled", true)

		_, err := NewConfigFromViper(v)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "llm configuration invalid")
	})
}
