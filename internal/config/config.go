package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the grading service.
type Config struct {
	AppName  string
	AppEnv   string
	AppPort  string
	LogLevel string

	AIAPIKey        string
	AIBaseURL       string
	AIModel         string
	AIMaxTokens     int
	AITemperature   float32
	AITimeout       time.Duration
	AIMaxToolRounds int

	GitHubAPIURL  string
	GitHubTimeout time.Duration

	RedisURL         string
	EvidenceCacheTTL time.Duration

	NATSURL     string
	NATSSubject string

	JWTSecret string

	RateLimitMax    int
	RateLimitWindow time.Duration
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// MockMode reports whether no inference credential is configured.
func (c Config) MockMode() bool {
	return strings.TrimSpace(c.AIAPIKey) == ""
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("GEMA")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "GEMA Grading Assistant")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("ai.model", "gpt-4o-mini")
	v.SetDefault("ai.max_tokens", 4096)
	v.SetDefault("ai.temperature", 0.2)
	v.SetDefault("ai.timeout", "90s")
	v.SetDefault("ai.max_tool_rounds", 3)
	v.SetDefault("github.api_url", "https://api.github.com")
	v.SetDefault("github.timeout", "15s")
	v.SetDefault("evidence.cache_ttl", "10m")
	v.SetDefault("nats.subject", "gema.grading.analysis")
	v.SetDefault("rate_limit.max", 30)
	v.SetDefault("rate_limit.window", "1m")

	aiTimeout, err := parseDuration(v, "ai.timeout")
	if err != nil {
		return Config{}, err
	}

	githubTimeout, err := parseDuration(v, "github.timeout")
	if err != nil {
		return Config{}, err
	}

	cacheTTL, err := parseDuration(v, "evidence.cache_ttl")
	if err != nil {
		return Config{}, err
	}

	window, err := parseDuration(v, "rate_limit.window")
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppName:          v.GetString("app.name"),
		AppEnv:           v.GetString("app.env"),
		AppPort:          v.GetString("app.port"),
		LogLevel:         strings.ToLower(v.GetString("log.level")),
		AIAPIKey:         strings.TrimSpace(v.GetString("ai.api_key")),
		AIBaseURL:        v.GetString("ai.base_url"),
		AIModel:          v.GetString("ai.model"),
		AIMaxTokens:      v.GetInt("ai.max_tokens"),
		AITemperature:    float32(v.GetFloat64("ai.temperature")),
		AITimeout:        aiTimeout,
		AIMaxToolRounds:  v.GetInt("ai.max_tool_rounds"),
		GitHubAPIURL:     v.GetString("github.api_url"),
		GitHubTimeout:    githubTimeout,
		RedisURL:         v.GetString("redis.url"),
		EvidenceCacheTTL: cacheTTL,
		NATSURL:          v.GetString("nats.url"),
		NATSSubject:      v.GetString("nats.subject"),
		JWTSecret:        v.GetString("jwt.secret"),
		RateLimitMax:     v.GetInt("rate_limit.max"),
		RateLimitWindow:  window,
	}

	if cfg.AIMaxTokens <= 0 {
		cfg.AIMaxTokens = 4096
	}

	if cfg.AIMaxToolRounds <= 0 {
		cfg.AIMaxToolRounds = 3
	}

	if cfg.RateLimitMax <= 0 {
		cfg.RateLimitMax = 30
	}

	return cfg, nil
}

func parseDuration(v *viper.Viper, key string) (time.Duration, error) {
	raw := strings.TrimSpace(v.GetString(key))
	duration, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return duration, nil
}
