// Package config handles application configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"
)

const (
	appName        = "realtime-translator"
	configFileName = "config.json"
)

// Translation backends.
const (
	BackendDeepL = "deepl"
	BackendLLM   = "llm"
)

// Config represents the application configuration.
type Config struct {
	Recognition RecognitionConfig `json:"recognition"`
	Translation TranslationConfig `json:"translation"`

	// TargetLang is the translation target language code.
	TargetLang string `json:"target_lang"`
	// SourceLang fixes the source language; empty means auto-detect.
	SourceLang string `json:"source_lang,omitempty"`

	// CacheDir holds the translation cache; empty disables caching.
	CacheDir string `json:"cache_dir,omitempty"`
	// MetricsAddr serves Prometheus metrics when set, e.g. ":9090".
	MetricsAddr string `json:"metrics_addr,omitempty"`
}

// RecognitionConfig configures the streaming recognition transport.
type RecognitionConfig struct {
	// TokenEndpoint issues socket credentials per connect.
	TokenEndpoint string `json:"token_endpoint"`
	// SocketBase is the websocket URL the issued token is appended to,
	// for endpoints that return a bare token instead of a full URL.
	SocketBase string `json:"socket_base,omitempty"`

	ConnectTimeoutMS     int `json:"connect_timeout_ms,omitempty"`
	MaxReconnectAttempts int `json:"max_reconnect_attempts,omitempty"`
	ReconnectDelayMS     int `json:"reconnect_delay_ms,omitempty"`
}

// TranslationConfig configures the translation backend and queue.
type TranslationConfig struct {
	// Backend selects the translation service: "deepl" or "llm".
	Backend string `json:"backend"`

	// Endpoint is the DeepL-style translate URL.
	Endpoint string `json:"endpoint,omitempty"`
	// AuthKey authorizes DeepL requests. The DEEPL_AUTH_KEY environment
	// variable takes precedence so the key can stay out of the file.
	AuthKey string `json:"auth_key,omitempty"`

	// Model is the chat model used by the llm backend. The OPENAI_API_KEY
	// environment variable supplies its credential.
	Model string `json:"model,omitempty"`

	MaxBatchSize      int `json:"max_batch_size,omitempty"`
	RetryDelayMS      int `json:"retry_delay_ms,omitempty"`
	InterBatchDelayMS int `json:"inter_batch_delay_ms,omitempty"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Recognition: RecognitionConfig{
			TokenEndpoint: "http://localhost:8080/token",
		},
		Translation: TranslationConfig{
			Backend:  BackendDeepL,
			Endpoint: "https://api-free.deepl.com/v2/translate",
			Model:    "gpt-4o-mini",
		},
		TargetLang: "en",
	}
}

// Load reads the configuration from the default path, returning
// defaults if no file exists yet.
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		return nil, fmt.Errorf("get config path: %w", err)
	}
	return LoadFrom(path)
}

// LoadFrom reads the configuration from path.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := Default()
			cfg.applyEnv()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.applyEnv()
	return cfg, nil
}

// Save persists the configuration to the default path.
func (c *Config) Save() error {
	path, err := Path()
	if err != nil {
		return fmt.Errorf("get config path: %w", err)
	}
	return c.SaveTo(path)
}

// SaveTo persists the configuration to path, creating parent
// directories as needed.
func (c *Config) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Path returns the config file location under the user config dir.
func Path() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("get user config dir: %w", err)
	}
	return filepath.Join(dir, appName, configFileName), nil
}

// Validate checks the configuration for startup-fatal problems.
func (c *Config) Validate() error {
	if c.Recognition.TokenEndpoint == "" {
		return fmt.Errorf("recognition.token_endpoint is required")
	}
	if c.TargetLang == "" {
		return fmt.Errorf("target_lang is required")
	}
	if !slices.Contains([]string{BackendDeepL, BackendLLM}, c.Translation.Backend) {
		return fmt.Errorf("unknown translation backend %q", c.Translation.Backend)
	}
	if c.Translation.Backend == BackendDeepL && c.Translation.Endpoint == "" {
		return fmt.Errorf("translation.endpoint is required for the deepl backend")
	}
	return nil
}

// ConnectTimeout returns the recognition connect timeout, or zero to
// use the session default.
func (c *RecognitionConfig) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutMS) * time.Millisecond
}

// ReconnectDelay returns the reconnect backoff base, or zero to use the
// session default.
func (c *RecognitionConfig) ReconnectDelay() time.Duration {
	return time.Duration(c.ReconnectDelayMS) * time.Millisecond
}

// RetryDelay returns the translation retry backoff, or zero to use the
// queue default.
func (c *TranslationConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelayMS) * time.Millisecond
}

// InterBatchDelay returns the post-batch delay, or zero to use the
// queue default.
func (c *TranslationConfig) InterBatchDelay() time.Duration {
	return time.Duration(c.InterBatchDelayMS) * time.Millisecond
}

func (c *Config) applyEnv() {
	if key := os.Getenv("DEEPL_AUTH_KEY"); key != "" {
		c.Translation.AuthKey = key
	}
}
