package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

const (
	DefaultModelID          = "us.amazon.nova-lite-v1:0"
	DefaultInferenceAPIURL  = "https://b5e2-35-245-86-16.ngrok-free.app/generate"
	DefaultInferenceTimeout = 25 * time.Second
)

// envKeys maps the environment variables read by the function to koanf keys.
var envKeys = map[string]string{
	"MODEL_ID":                "model_id",
	"INFERENCE_API_URL":       "inference_api_url",
	"INFERENCE_API_URL_PARAM": "inference_api_url_param",
	"INFERENCE_TIMEOUT":       "inference_timeout",
	"LOG_LEVEL":               "log_level",
	"TRACING_ENABLED":         "tracing_enabled",
}

type Config struct {
	ModelID              string        `koanf:"model_id"`
	InferenceAPIURL      string        `koanf:"inference_api_url"`
	InferenceAPIURLParam string        `koanf:"inference_api_url_param"`
	InferenceTimeout     time.Duration `koanf:"inference_timeout"`
	LogLevel             string        `koanf:"log_level"`
	TracingEnabled       bool          `koanf:"tracing_enabled"`
}

// Load reads the configuration from the process environment. It is called
// once at cold start.
func Load() (*Config, error) {
	k := koanf.New(".")

	for key, v := range map[string]any{
		"model_id":          DefaultModelID,
		"inference_api_url": DefaultInferenceAPIURL,
		"inference_timeout": DefaultInferenceTimeout.String(),
		"log_level":         "info",
		"tracing_enabled":   false,
	} {
		if err := k.Set(key, v); err != nil {
			return nil, fmt.Errorf("config: set default %s: %w", key, err)
		}
	}

	// Unknown and empty variables are skipped so defaults survive.
	if err := k.Load(env.ProviderWithValue("", ".", func(key, value string) (string, any) {
		if strings.TrimSpace(value) == "" {
			return "", nil
		}
		return envKeys[key], value
	}), nil); err != nil {
		return nil, fmt.Errorf("config: load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	cfg.ModelID = strings.TrimSpace(cfg.ModelID)
	cfg.InferenceAPIURL = strings.TrimSpace(cfg.InferenceAPIURL)
	cfg.InferenceAPIURLParam = strings.TrimSpace(cfg.InferenceAPIURLParam)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.ModelID == "" {
		return errors.New("config: MODEL_ID must not be empty")
	}
	if err := ValidateURL(c.InferenceAPIURL); err != nil {
		return err
	}
	if c.InferenceTimeout <= 0 {
		return fmt.Errorf("config: INFERENCE_TIMEOUT must be positive, got %s", c.InferenceTimeout)
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return fmt.Errorf("config: LOG_LEVEL: %w", err)
	}
	return nil
}

// ValidateURL checks that raw is an absolute http(s) URL.
func ValidateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("config: INFERENCE_API_URL: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("config: INFERENCE_API_URL must be an absolute http(s) URL, got %q", raw)
	}
	return nil
}
