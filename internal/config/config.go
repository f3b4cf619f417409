package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"time"
)

// Config holds all process-wide settings, loaded once at startup and passed
// by reference to component constructors.
type Config struct {
	Port string

	// Webhook verification and authenticity
	VerifyToken string
	AppSecret   string // optional; enables X-Hub-Signature-256 validation

	// Facebook Graph Send API
	PageAccessToken string
	GraphAPIURL     string

	// Vertex AI (Gemini)
	ProjectID          string
	Location           string
	Model              string
	VertexEndpoint     string // optional override, used in tests
	ServiceAccountJSON []byte // optional; ADC is used when empty

	// UsedConex quoting service
	UsedConexAPI string

	// Per-call timeouts
	VertexTimeout time.Duration
	LoginTimeout  time.Duration
	QuoteTimeout  time.Duration
	SendTimeout   time.Duration
}

// ConfigError reports the set of required settings missing from the
// environment. It is fatal: the process must not serve traffic without them.
type ConfigError struct {
	Missing []string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("missing required configuration: %s", strings.Join(e.Missing, ", "))
}

// Load reads the configuration from the environment and validates it.
func Load() (*Config, error) {
	cfg := &Config{
		Port:            getEnv("PORT", "3000"),
		VerifyToken:     os.Getenv("VERIFY_TOKEN"),
		AppSecret:       os.Getenv("APP_SECRET"),
		PageAccessToken: os.Getenv("PAGE_ACCESS_TOKEN"),
		GraphAPIURL:     getEnv("GRAPH_API_URL", "https://graph.facebook.com/v20.0"),
		ProjectID:       firstEnv("VERTEX_PROJECT", "GCP_PROJECT_ID"),
		Location:        firstEnvDefault("us-central1", "VERTEX_LOCATION", "GCP_LOCATION"),
		Model:           getEnv("VERTEX_MODEL", "gemini-1.5-pro"),
		VertexEndpoint:  os.Getenv("VERTEX_ENDPOINT"),
		UsedConexAPI:    strings.TrimRight(os.Getenv("USEDCONEX_API"), "/"),
		VertexTimeout:   20 * time.Second,
		LoginTimeout:    15 * time.Second,
		QuoteTimeout:    20 * time.Second,
		SendTimeout:     15 * time.Second,
	}

	if sa := os.Getenv("SA_JSON"); sa != "" {
		cfg.ServiceAccountJSON = decodeServiceAccount(sa)
	}

	var missing []string
	for _, req := range []struct {
		key, val string
	}{
		{"VERIFY_TOKEN", cfg.VerifyToken},
		{"PAGE_ACCESS_TOKEN", cfg.PageAccessToken},
		{"USEDCONEX_API", cfg.UsedConexAPI},
		{"GCP_PROJECT_ID", cfg.ProjectID},
	} {
		if req.val == "" {
			missing = append(missing, req.key)
		}
	}
	if len(missing) > 0 {
		return nil, &ConfigError{Missing: missing}
	}

	return cfg, nil
}

// decodeServiceAccount accepts the service-account blob either raw or
// base64-encoded, since both forms show up in secret managers.
func decodeServiceAccount(s string) []byte {
	trimmed := strings.TrimSpace(s)
	if strings.HasPrefix(trimmed, "{") {
		return []byte(trimmed)
	}
	if decoded, err := base64.StdEncoding.DecodeString(trimmed); err == nil {
		return decoded
	}
	return []byte(trimmed)
}

func getEnv(key, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultValue
}

func firstEnv(keys ...string) string {
	for _, key := range keys {
		if val := os.Getenv(key); val != "" {
			return val
		}
	}
	return ""
}

func firstEnvDefault(defaultValue string, keys ...string) string {
	if val := firstEnv(keys...); val != "" {
		return val
	}
	return defaultValue
}
