package infra

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents application configuration loaded from an optional YAML
// file and environment variables. Environment values win over the file.
type Config struct {
	AppEnv          string
	Port            string
	GeminiBaseURL   string
	GeminiModel     string
	GeminiTimeout   time.Duration
	CredentialStore string
	CredentialFile  string
	DatabaseURL     string
	AllowedOrigins  []string
	RateLimitPerMin int
	MaxUploadBytes  int64
	// TrustProxyHeaders lets X-Forwarded-For and X-Real-IP replace the peer
	// address. Leave off unless a reverse proxy sets them.
	TrustProxyHeaders bool
	SurfaceIdleTTL    time.Duration

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
}

// source resolves a key from the environment first, then the config file.
type source struct {
	file map[string]string
}

// LoadConfig loads configuration and applies defaults where needed.
func LoadConfig() (*Config, error) {
	file, err := loadConfigFile(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return nil, err
	}
	src := source{file: file}

	cfg := &Config{
		AppEnv:           src.getEnv("APP_ENV", "development"),
		Port:             src.getEnv("PORT", "8080"),
		GeminiBaseURL:    src.getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		GeminiModel:      src.getEnv("GEMINI_MODEL", "gemini-2.5-flash-image-preview"),
		GeminiTimeout:    time.Second * time.Duration(src.getEnvInt("GEMINI_TIMEOUT_SECONDS", 0)),
		CredentialStore:  strings.ToLower(src.getEnv("CREDENTIAL_STORE", "file")),
		CredentialFile:   src.getEnv("CREDENTIAL_FILE", defaultCredentialFile()),
		DatabaseURL:      src.getEnv("DATABASE_URL", ""),
		AllowedOrigins:   splitList(src.getEnv("ALLOWED_ORIGINS", "")),
		RateLimitPerMin:  src.getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		MaxUploadBytes:   int64(src.getEnvInt("MAX_UPLOAD_BYTES", 32<<20)),
		HTTPReadTimeout:  time.Second * time.Duration(src.getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 30)),
		HTTPWriteTimeout: time.Second * time.Duration(src.getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 180)),
		HTTPIdleTimeout:  time.Second * time.Duration(src.getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),

		TrustProxyHeaders: src.getEnvBool("TRUST_PROXY_HEADERS", false),
		SurfaceIdleTTL:    time.Minute * time.Duration(src.getEnvInt("SURFACE_IDLE_TTL_MINUTES", 60)),
	}

	if cfg.CredentialStore == "postgres" && cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required when CREDENTIAL_STORE=postgres")
	}
	if cfg.SurfaceIdleTTL <= 0 {
		return nil, fmt.Errorf("SURFACE_IDLE_TTL_MINUTES must be positive")
	}
	if cfg.GeminiTimeout < 0 {
		return nil, fmt.Errorf("GEMINI_TIMEOUT_SECONDS must not be negative")
	}

	return cfg, nil
}

// loadConfigFile reads a flat YAML mapping whose keys are the environment
// variable names in any case.
func loadConfigFile(path string) (map[string]string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		key := strings.ToUpper(strings.TrimSpace(k))
		switch val := v.(type) {
		case nil:
		case []any:
			parts := make([]string, 0, len(val))
			for _, item := range val {
				parts = append(parts, fmt.Sprint(item))
			}
			out[key] = strings.Join(parts, ",")
		default:
			out[key] = fmt.Sprint(val)
		}
	}
	return out, nil
}

func defaultCredentialFile() string {
	if dir, err := os.UserConfigDir(); err == nil && dir != "" {
		return filepath.Join(dir, "gemini-studio", "credentials.json")
	}
	return filepath.Join(".", ".gemini-studio", "credentials.json")
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func (s source) getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	if v, ok := s.file[key]; ok && v != "" {
		return v
	}
	return fallback
}

func (s source) getEnvInt(key string, fallback int) int {
	if v := s.getEnv(key, ""); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func (s source) getEnvBool(key string, fallback bool) bool {
	if v := s.getEnv(key, ""); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
