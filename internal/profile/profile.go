package profile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Profile is the configuration to start main server.
type Profile struct {
	// Mode can be "prod" or "dev" or "demo"
	Mode string
	// Addr is the binding address for server
	Addr string
	// Port is the binding port for server
	Port int
	// Data is the data directory
	Data string
	// DSN points to where chatrelay stores its own data
	DSN string
	// Driver is the database driver (sqlite or postgres)
	Driver string
	// Version is the current version of server
	Version string

	// Secret signs and verifies access tokens.
	Secret string

	// Model provider configuration
	LLMProvider     string        // CHATRELAY_LLM_PROVIDER (default: openai)
	LLMModel        string        // CHATRELAY_LLM_MODEL (default: gpt-4o-mini)
	LLMMaxTokens    int           // CHATRELAY_LLM_MAX_TOKENS (default: 1000)
	LLMTemperature  float32       // CHATRELAY_LLM_TEMPERATURE (default: 0.7)
	OpenAIAPIKey    string        // CHATRELAY_OPENAI_API_KEY
	OpenAIBaseURL   string        // CHATRELAY_OPENAI_BASE_URL (default: https://api.openai.com/v1)
	DeepSeekAPIKey  string        // CHATRELAY_DEEPSEEK_API_KEY
	DeepSeekBaseURL string        // CHATRELAY_DEEPSEEK_BASE_URL (default: https://api.deepseek.com)
	OllamaBaseURL   string        // CHATRELAY_OLLAMA_BASE_URL (default: http://localhost:11434/v1)
	AnthropicAPIKey string        // CHATRELAY_ANTHROPIC_API_KEY
	ModelTimeout    time.Duration // CHATRELAY_MODEL_TIMEOUT (default: 60s)

	// Conversation limits
	MaxMessageLength        int           // CHATRELAY_MAX_MESSAGE_LENGTH (default: 5000)
	HistoryLimit            int           // CHATRELAY_HISTORY_LIMIT (default: 20)
	MaxConcurrentModelCalls int           // CHATRELAY_MAX_CONCURRENT_MODEL_CALLS (default: 32)
	SessionIdleTimeout      time.Duration // CHATRELAY_SESSION_IDLE_TIMEOUT (default: 24h)
	CleanupInterval         time.Duration // CHATRELAY_CLEANUP_INTERVAL (default: 1h)

	// Abuse mitigation
	RateLimitPerHour int           // CHATRELAY_RATE_LIMIT_PER_HOUR (default: 100)
	RateWindow       time.Duration // CHATRELAY_RATE_WINDOW (default: 1h)
	// TrustedProxies lists the proxies (CIDR ranges or addresses, comma-separated)
	// whose X-Forwarded-For is honoured. Empty means the TCP peer is the origin.
	TrustedProxies string // CHATRELAY_TRUSTED_PROXIES

	// Optional infrastructure
	RedisAddr     string // CHATRELAY_REDIS_ADDR (empty disables the L2 context cache)
	RedisPassword string // CHATRELAY_REDIS_PASSWORD
	WeatherAPIKey string // CHATRELAY_WEATHER_API_KEY
	// Timezone is the IANA zone get_current_time reports in (empty: host zone).
	Timezone string // CHATRELAY_TIMEZONE
}

const (
	DefaultMaxMessageLength        = 5000
	DefaultHistoryLimit            = 20
	DefaultMaxConcurrentModelCalls = 32
	DefaultRateLimitPerHour        = 100
	DefaultRateWindow              = time.Hour
	DefaultSessionIdleTimeout      = 24 * time.Hour
	DefaultCleanupInterval         = time.Hour
	DefaultModelTimeout            = 60 * time.Second
	DefaultLLMMaxTokens            = 1000
	DefaultLLMTemperature          = 0.7
)

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// IsModelConfigured returns true if the selected provider has the credentials it needs.
func (p *Profile) IsModelConfigured() bool {
	switch p.LLMProvider {
	case "openai":
		return p.OpenAIAPIKey != ""
	case "deepseek":
		return p.DeepSeekAPIKey != ""
	case "anthropic":
		return p.AnthropicAPIKey != ""
	case "ollama":
		return p.OllamaBaseURL != ""
	default:
		return false
	}
}

// getEnvOrDefault returns the environment variable value or the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnvOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
		slog.Warn("ignoring invalid integer env value", slog.String("key", key), slog.String("value", value))
	}
	return defaultValue
}

func getDurationEnvOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		slog.Warn("ignoring invalid duration env value", slog.String("key", key), slog.String("value", value))
	}
	return defaultValue
}

// FromEnv loads configuration from CHATRELAY_* environment variables.
// Values already set on the profile (e.g. from flags) are kept.
func (p *Profile) FromEnv() {
	setString := func(dst *string, key, defaultValue string) {
		if *dst == "" {
			*dst = getEnvOrDefault(key, defaultValue)
		}
	}
	setInt := func(dst *int, key string, defaultValue int) {
		if *dst == 0 {
			*dst = getIntEnvOrDefault(key, defaultValue)
		}
	}
	setDuration := func(dst *time.Duration, key string, defaultValue time.Duration) {
		if *dst == 0 {
			*dst = getDurationEnvOrDefault(key, defaultValue)
		}
	}

	setString(&p.Secret, "CHATRELAY_JWT_SECRET", "")
	setString(&p.LLMProvider, "CHATRELAY_LLM_PROVIDER", "openai")
	setString(&p.LLMModel, "CHATRELAY_LLM_MODEL", "gpt-4o-mini")
	setInt(&p.LLMMaxTokens, "CHATRELAY_LLM_MAX_TOKENS", DefaultLLMMaxTokens)
	if p.LLMTemperature == 0 {
		p.LLMTemperature = DefaultLLMTemperature
		if value := os.Getenv("CHATRELAY_LLM_TEMPERATURE"); value != "" {
			if f, err := strconv.ParseFloat(value, 32); err == nil {
				p.LLMTemperature = float32(f)
			}
		}
	}
	setString(&p.OpenAIAPIKey, "CHATRELAY_OPENAI_API_KEY", "")
	setString(&p.OpenAIBaseURL, "CHATRELAY_OPENAI_BASE_URL", "https://api.openai.com/v1")
	setString(&p.DeepSeekAPIKey, "CHATRELAY_DEEPSEEK_API_KEY", "")
	setString(&p.DeepSeekBaseURL, "CHATRELAY_DEEPSEEK_BASE_URL", "https://api.deepseek.com")
	setString(&p.OllamaBaseURL, "CHATRELAY_OLLAMA_BASE_URL", "http://localhost:11434/v1")
	setString(&p.AnthropicAPIKey, "CHATRELAY_ANTHROPIC_API_KEY", "")
	setDuration(&p.ModelTimeout, "CHATRELAY_MODEL_TIMEOUT", DefaultModelTimeout)

	setInt(&p.MaxMessageLength, "CHATRELAY_MAX_MESSAGE_LENGTH", DefaultMaxMessageLength)
	setInt(&p.HistoryLimit, "CHATRELAY_HISTORY_LIMIT", DefaultHistoryLimit)
	setInt(&p.MaxConcurrentModelCalls, "CHATRELAY_MAX_CONCURRENT_MODEL_CALLS", DefaultMaxConcurrentModelCalls)
	setDuration(&p.SessionIdleTimeout, "CHATRELAY_SESSION_IDLE_TIMEOUT", DefaultSessionIdleTimeout)
	setDuration(&p.CleanupInterval, "CHATRELAY_CLEANUP_INTERVAL", DefaultCleanupInterval)

	setInt(&p.RateLimitPerHour, "CHATRELAY_RATE_LIMIT_PER_HOUR", DefaultRateLimitPerHour)
	setDuration(&p.RateWindow, "CHATRELAY_RATE_WINDOW", DefaultRateWindow)
	setString(&p.TrustedProxies, "CHATRELAY_TRUSTED_PROXIES", "")

	setString(&p.RedisAddr, "CHATRELAY_REDIS_ADDR", "")
	setString(&p.RedisPassword, "CHATRELAY_REDIS_PASSWORD", "")
	setString(&p.WeatherAPIKey, "CHATRELAY_WEATHER_API_KEY", "")
	setString(&p.Timezone, "CHATRELAY_TIMEZONE", "")
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		relativeDir := filepath.Join(filepath.Dir(os.Args[0]), dataDir)
		absDir, err := filepath.Abs(relativeDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}
	if p.Driver == "" {
		p.Driver = "sqlite"
	}
	if p.Driver != "sqlite" && p.Driver != "postgres" {
		return errors.Errorf("unsupported driver %q", p.Driver)
	}

	if p.Mode == "prod" && p.Data == "" {
		if runtime.GOOS == "windows" {
			p.Data = filepath.Join(os.Getenv("ProgramData"), "chatrelay")
			if _, err := os.Stat(p.Data); os.IsNotExist(err) {
				if err := os.MkdirAll(p.Data, 0770); err != nil {
					slog.Error("failed to create data directory", slog.String("data", p.Data), slog.String("error", err.Error()))
					return err
				}
			}
		} else {
			p.Data = "/var/opt/chatrelay"
		}
	}
	if p.Data == "" {
		p.Data = "."
	}

	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		slog.Error("failed to check dsn", slog.String("data", dataDir), slog.String("error", err.Error()))
		return err
	}

	p.Data = dataDir
	if p.Driver == "sqlite" && p.DSN == "" {
		dbFile := fmt.Sprintf("chatrelay_%s.db", p.Mode)
		p.DSN = filepath.Join(dataDir, dbFile)
	}
	if p.Driver == "postgres" && p.DSN == "" {
		return errors.New("dsn is required for the postgres driver")
	}

	if p.Mode == "prod" && p.Secret == "" {
		return errors.New("jwt secret is required in prod mode")
	}
	if p.MaxMessageLength <= 0 {
		p.MaxMessageLength = DefaultMaxMessageLength
	}
	if p.HistoryLimit <= 0 {
		p.HistoryLimit = DefaultHistoryLimit
	}
	if p.RateLimitPerHour <= 0 {
		p.RateLimitPerHour = DefaultRateLimitPerHour
	}
	if p.RateWindow <= 0 {
		p.RateWindow = DefaultRateWindow
	}
	if p.SessionIdleTimeout <= 0 {
		p.SessionIdleTimeout = DefaultSessionIdleTimeout
	}
	if p.ModelTimeout <= 0 {
		p.ModelTimeout = DefaultModelTimeout
	}

	return nil
}
