// Package config loads server settings from a YAML file and the
// environment. Settings precedence, lowest to highest: defaults,
// ~/.codeassist/settings.yaml, environment variables.
package config

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/codeassist/codeassist/internal/fault"
)

// AIConfig selects and parameterizes the model provider for a run.
type AIConfig struct {
	Provider    string  `json:"ai_provider" yaml:"ai_provider" validate:"required,oneof=anthropic openai deepseek glm"`
	Model       string  `json:"ai_model" yaml:"ai_model" validate:"required"`
	APIKey      string  `json:"ai_api_key,omitempty" yaml:"ai_api_key" validate:"required"`
	BaseURL     string  `json:"ai_base_url,omitempty" yaml:"ai_base_url" validate:"omitempty,url"`
	Temperature float64 `json:"temperature,omitempty" yaml:"temperature" validate:"gte=0,lte=2"`
	MaxTokens   int     `json:"max_tokens,omitempty" yaml:"max_tokens" validate:"gte=0"`
}

// Settings is the full server configuration.
type Settings struct {
	Addr          string   `yaml:"addr"`
	Workspace     string   `yaml:"workspace"`
	MaxIterations int      `yaml:"max_iterations"`
	ContextWindow int      `yaml:"context_window"`
	AI            AIConfig `yaml:"ai"`
}

var validate = validator.New()

// ValidateAI checks an AIConfig, classifying violations as
// InvalidParameters.
func ValidateAI(cfg AIConfig) error {
	if err := validate.Struct(cfg); err != nil {
		return fault.Wrap(fault.InvalidParameters, err, "invalid ai config")
	}
	return nil
}

// Defaults returns the baseline settings.
func Defaults() Settings {
	return Settings{
		Addr:          ":8420",
		Workspace:     ".",
		MaxIterations: 999,
		ContextWindow: 128000,
	}
}

// Load builds Settings from defaults, the optional settings file, and the
// environment. A .env file in the current directory is honored.
func Load() (Settings, error) {
	_ = godotenv.Load()

	s := Defaults()

	if home, err := os.UserHomeDir(); err == nil {
		path := filepath.Join(home, ".codeassist", "settings.yaml")
		if raw, err := os.ReadFile(path); err == nil {
			if err := yaml.Unmarshal(raw, &s); err != nil {
				return Settings{}, fault.Wrap(fault.Corrupt, err, "cannot parse %s", path)
			}
		}
	}

	applyEnv(&s)
	return s, nil
}

func applyEnv(s *Settings) {
	if v := os.Getenv("CODEASSIST_ADDR"); v != "" {
		s.Addr = v
	}
	if v := os.Getenv("CODEASSIST_WORKSPACE"); v != "" {
		s.Workspace = v
	}
	if v := os.Getenv("CODEASSIST_MAX_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			s.MaxIterations = n
		}
	}
	if v := os.Getenv("CODEASSIST_CONTEXT_WINDOW"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			s.ContextWindow = n
		}
	}
	if v := os.Getenv("AI_PROVIDER"); v != "" {
		s.AI.Provider = v
	}
	if v := os.Getenv("AI_MODEL"); v != "" {
		s.AI.Model = v
	}
	if v := os.Getenv("AI_API_KEY"); v != "" {
		s.AI.APIKey = v
	}
	if v := os.Getenv("AI_BASE_URL"); v != "" {
		s.AI.BaseURL = v
	}
}

// Merge overlays request-supplied AI settings onto the server defaults.
// Empty request fields keep the configured values.
func (s Settings) Merge(req AIConfig) AIConfig {
	out := s.AI
	if req.Provider != "" {
		out.Provider = req.Provider
	}
	if req.Model != "" {
		out.Model = req.Model
	}
	if req.APIKey != "" {
		out.APIKey = req.APIKey
	}
	if req.BaseURL != "" {
		out.BaseURL = req.BaseURL
	}
	if req.Temperature != 0 {
		out.Temperature = req.Temperature
	}
	if req.MaxTokens != 0 {
		out.MaxTokens = req.MaxTokens
	}
	return out
}
