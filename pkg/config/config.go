// Package config loads process configuration from the environment using
// caarlos0/env, mirroring the teacher's env-struct-tag convention.
package config

import (
	"strings"

	"github.com/caarlos0/env/v11"
)

// Config holds every environment-sourced setting named in the external
// interfaces contract.
type Config struct {
	RedisURL      string `env:"REDIS_URL" envDefault:"redis://127.0.0.1:6379/0"`
	RetrievalURL  string `env:"RETRIEVAL_URL"`
	OpenAIAPIKey  string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL string `env:"OPENAI_BASE_URL" envDefault:"https://api.openai.com/v1"`

	LLMModel      string `env:"LLM_MODEL" envDefault:"gpt-4o-mini"`
	ConditionModel string `env:"CONDITION_MODEL"`
	JudgeModel    string `env:"JUDGE_MODEL"`
	ReviseModel   string `env:"REVISE_MODEL"`
	SummaryModel  string `env:"SUMMARY_MODEL"`
	SGRModel      string `env:"SGR_MODEL"`

	AgentPipelineVersion string `env:"AGENT_PIPELINE_VERSION" envDefault:"0.1"`

	SGRTimeoutSeconds int    `env:"SGR_TIMEOUT_S" envDefault:"35"`
	SGRTraceDir       string `env:"SGR_TRACE_DIR" envDefault:"./sgr_traces"`
	SGRLogPrompts     bool   `env:"SGR_LOG_PROMPTS" envDefault:"false"`

	ScenarioStoragePath string `env:"SCENARIO_STORAGE_PATH" envDefault:"./scenarios"`
}

// Load parses configuration from the process environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// OpenAIAPIKeys splits the comma-separated key list into trimmed, non-empty
// entries, preserving order for rotation.
func (c *Config) OpenAIAPIKeys() []string {
	parts := strings.Split(c.OpenAIAPIKey, ",")
	keys := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			keys = append(keys, p)
		}
	}
	return keys
}

// ModelFor cascades an unset per-role model down to LLMModel.
func (c *Config) ModelFor(role string) string {
	switch role {
	case "condition":
		return firstNonEmpty(c.ConditionModel, c.LLMModel)
	case "judge":
		return firstNonEmpty(c.JudgeModel, c.LLMModel)
	case "revise":
		return firstNonEmpty(c.ReviseModel, c.LLMModel)
	case "summary":
		return firstNonEmpty(c.SummaryModel, c.LLMModel)
	case "sgr":
		return firstNonEmpty(c.SGRModel, c.LLMModel)
	default:
		return c.LLMModel
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
