package config

import (
	"testing"

	"github.com/codeassist/codeassist/internal/fault"
)

func validAI() AIConfig {
	return AIConfig{
		Provider: "anthropic",
		Model:    "claude-sonnet-4-20250514",
		APIKey:   "sk-test",
	}
}

func TestValidateAI(t *testing.T) {
	if err := ValidateAI(validAI()); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*AIConfig)
	}{
		{"missing provider", func(c *AIConfig) { c.Provider = "" }},
		{"unknown provider", func(c *AIConfig) { c.Provider = "llamafarm" }},
		{"missing model", func(c *AIConfig) { c.Model = "" }},
		{"missing key", func(c *AIConfig) { c.APIKey = "" }},
		{"temperature too high", func(c *AIConfig) { c.Temperature = 2.5 }},
		{"negative max tokens", func(c *AIConfig) { c.MaxTokens = -1 }},
		{"bad base url", func(c *AIConfig) { c.BaseURL = "not a url" }},
	}
	for _, c := range cases {
		cfg := validAI()
		c.mutate(&cfg)
		err := ValidateAI(cfg)
		if err == nil {
			t.Errorf("%s: accepted", c.name)
			continue
		}
		if fault.KindOf(err) != fault.InvalidParameters {
			t.Errorf("%s: kind = %q", c.name, fault.KindOf(err))
		}
	}
}

func TestMerge(t *testing.T) {
	s := Defaults()
	s.AI = validAI()

	merged := s.Merge(AIConfig{Model: "claude-opus-4-20250514", Temperature: 0.7})
	if merged.Model != "claude-opus-4-20250514" {
		t.Errorf("Model = %q", merged.Model)
	}
	if merged.Provider != "anthropic" || merged.APIKey != "sk-test" {
		t.Errorf("defaults lost: %+v", merged)
	}
	if merged.Temperature != 0.7 {
		t.Errorf("Temperature = %f", merged.Temperature)
	}

	unchanged := s.Merge(AIConfig{})
	if unchanged != s.AI {
		t.Errorf("empty merge changed config: %+v", unchanged)
	}
}
