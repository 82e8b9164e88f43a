package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Temperature bounds accepted for the analysis prompt
const (
	MinTemperature = 0.2
	MaxTemperature = 0.4
)

type Server struct {
	Port           string        `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MaxBodyBytes   int64         `yaml:"max_body_bytes"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	TrustedProxies []string      `yaml:"trusted_proxies"`
	EnableHSTS     bool          `yaml:"enable_hsts"`
}

type GitHub struct {
	BaseURL        string        `yaml:"base_url"`
	Token          string        `yaml:"token"`
	Timeout        time.Duration `yaml:"timeout"`
	Enrich         bool          `yaml:"enrich"`
	ReadmeMaxChars int           `yaml:"readme_max_chars"`
	CommitLimit    int           `yaml:"commit_limit"`
	ContentsLimit  int           `yaml:"contents_limit"`
}

type LLM struct {
	APIKey      string        `yaml:"api_key"`
	BaseURL     string        `yaml:"base_url"`
	Model       string        `yaml:"model"`
	Temperature float64       `yaml:"temperature"`
	MaxTokens   int64         `yaml:"max_tokens"`
	Timeout     time.Duration `yaml:"timeout"`
	PromptPath  string        `yaml:"prompt_path"`
}

type Upstream struct {
	MaxAttempts      int           `yaml:"max_attempts"`
	InitialBackoff   time.Duration `yaml:"initial_backoff"`
	FailureThreshold int           `yaml:"failure_threshold"`
	RecoveryTimeout  time.Duration `yaml:"recovery_timeout"`
}

type RateLimit struct {
	PerMinute     int    `yaml:"per_minute"`
	Burst         int    `yaml:"burst"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
}

type Analysis struct {
	EngagementCap      bool    `yaml:"engagement_cap"`
	LowStarThreshold   int     `yaml:"low_star_threshold"`
	EngagementCapScore float64 `yaml:"engagement_cap_score"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is loaded once at startup and injected into every component
type Config struct {
	Server    Server    `yaml:"server"`
	GitHub    GitHub    `yaml:"github"`
	LLM       LLM       `yaml:"llm"`
	Upstream  Upstream  `yaml:"upstream"`
	RateLimit RateLimit `yaml:"rate_limit"`
	Analysis  Analysis  `yaml:"analysis"`
	Log       Log       `yaml:"log"`
}

// Default returns the configuration used when nothing overrides it
func Default() Config {
	return Config{
		Server: Server{
			Port:           "8080",
			RequestTimeout: 60 * time.Second,
			MaxBodyBytes:   16 * 1024,
			AllowedOrigins: []string{"http://localhost:3000", "http://localhost:5173", "http://localhost:8080"},
			TrustedProxies: []string{"127.0.0.1", "::1"},
		},
		GitHub: GitHub{
			BaseURL:        "https://api.github.com/",
			Timeout:        10 * time.Second,
			Enrich:         true,
			ReadmeMaxChars: 4000,
			CommitLimit:    10,
			ContentsLimit:  50,
		},
		LLM: LLM{
			BaseURL:     "https://api.groq.com/openai/v1/",
			Model:       "llama-3.1-8b-instant",
			Temperature: 0.3,
			MaxTokens:   1024,
			Timeout:     30 * time.Second,
		},
		Upstream: Upstream{
			MaxAttempts:      2,
			InitialBackoff:   250 * time.Millisecond,
			FailureThreshold: 5,
			RecoveryTimeout:  30 * time.Second,
		},
		RateLimit: RateLimit{
			PerMinute: 10,
			Burst:     5,
		},
		Analysis: Analysis{
			EngagementCap:      true,
			LowStarThreshold:   10,
			EngagementCapScore: 80,
		},
		Log: Log{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file and the environment
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

type lookupFunc func(key string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	str("PORT", &c.Server.Port)
	str("GITHUB_TOKEN", &c.GitHub.Token)
	str("GITHUB_API_URL", &c.GitHub.BaseURL)
	str("GROQ_API_KEY", &c.LLM.APIKey)
	str("GROQ_BASE_URL", &c.LLM.BaseURL)
	str("GROQ_MODEL", &c.LLM.Model)
	str("PROMPT_PATH", &c.LLM.PromptPath)
	str("REDIS_ADDR", &c.RateLimit.RedisAddr)
	str("REDIS_PASSWORD", &c.RateLimit.RedisPassword)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)

	if v, ok := lookup("ALLOWED_ORIGINS"); ok && v != "" {
		c.Server.AllowedOrigins = splitList(v)
	}

	if v, ok := lookup("GITHUB_ENRICH"); ok && v != "" {
		enrich, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("GITHUB_ENRICH: %w", err)
		}
		c.GitHub.Enrich = enrich
	}

	ints := map[string]*int{
		"REDIS_DB":           &c.RateLimit.RedisDB,
		"RATE_LIMIT_PER_MIN": &c.RateLimit.PerMinute,
	}
	for key, dst := range ints {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = n
		}
	}

	if v, ok := lookup("GROQ_TEMPERATURE"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("GROQ_TEMPERATURE: %w", err)
		}
		c.LLM.Temperature = f
	}

	return nil
}

// Validate rejects configurations the service cannot run with.
// A missing GROQ_API_KEY is not an error here: it is reported per request.
func (c Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server.port must be set")
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("llm.model must be set")
	}
	if c.LLM.Temperature < MinTemperature || c.LLM.Temperature > MaxTemperature {
		return fmt.Errorf("llm.temperature %.2f outside [%.1f, %.1f]", c.LLM.Temperature, MinTemperature, MaxTemperature)
	}
	if c.LLM.Timeout <= 0 || c.GitHub.Timeout <= 0 || c.Server.RequestTimeout <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	if c.Upstream.MaxAttempts < 1 {
		return fmt.Errorf("upstream.max_attempts must be at least 1")
	}
	if c.RateLimit.PerMinute <= 0 {
		return fmt.Errorf("rate_limit.per_minute must be positive")
	}
	for _, origin := range c.Server.AllowedOrigins {
		if origin != "*" && !strings.HasPrefix(origin, "http://") && !strings.HasPrefix(origin, "https://") {
			return fmt.Errorf("server.allowed_origins: %q must be * or start with http:// or https://", origin)
		}
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("log.format must be json or text, got %q", c.Log.Format)
	}
	return nil
}

// HasModelCredential reports whether the model provider API key is present
func (c Config) HasModelCredential() bool {
	return strings.TrimSpace(c.LLM.APIKey) != ""
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
