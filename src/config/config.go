package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	APIKeyEnvVar      = "OPENAI_API_KEY"
	APIKeyPathEnvVar  = "OPENAI_API_KEY_FILE"
	EnvFileEnvVar     = "LUXSELECT_ENV"
	ConfigFileEnvVar  = "LUXSELECT_CONFIG"
	DefaultBaseURL    = "https://api.openai.com/v1"
	DefaultModel      = "gpt-3.5-turbo"
	DefaultLogFile    = "luxselect.log"
	defaultAPIKeyPath = "/run/secrets/api_keys/openai"
)

// DefaultExcludedWindows is used when EXCLUDED_WINDOWS is empty.
var DefaultExcludedWindows = []string{
	"Password", "KeePass", "LastPass", "1Password",
	"GameBar", "Steam", "Battle.net", "Epic Games",
	"League of Legends", "Dota", "Counter-Strike",
}

type LoadOptions struct {
	EnvFileOverride    string
	APIKeyPathOverride string
	Debug              bool
}

type Config struct {
	APIKey          string        `validate:"required,min=10"`
	APIKeyPath      string        `validate:"-"`
	BaseURL         string        `validate:"required,http_url"`
	Model           string        `validate:"required"`
	Timeout         time.Duration `validate:"min=5s,max=120s"`
	ChunkTimeout    time.Duration `validate:"min=1s,max=120s"`
	MaxTokens       int           `validate:"min=100,max=2000"`
	Temperature     float64       `validate:"min=0,max=1"`
	MaxRetries      int           `validate:"min=0,max=5"`
	RetryBackoff    time.Duration `validate:"min=0,max=10s"`
	SystemPrompt    string
	MaxPromptChars  int `validate:"min=100"`
	EnableCache     bool
	CacheMaxSize    int           `validate:"min=10,max=500"`
	CacheTTL        time.Duration `validate:"min=1m"`
	EnableFollowUps bool

	MinSelectionLength int           `validate:"min=0,max=100"`
	MaxSelectionChars  int           `validate:"min=100"`
	SelectionDelay     time.Duration `validate:"min=10ms,max=1s"`
	DragThreshold      int           `validate:"min=2,max=50"`
	MaxDragDistance    int           `validate:"omitempty,gtfield=DragThreshold"`
	DebounceInterval   time.Duration `validate:"min=0,max=2s"`
	Hotkey             string
	ExcludedWindows    []string

	EnablePrivacyFilter bool
	PrivacyStrict       bool

	OverlayTimeout time.Duration `validate:"min=0"`

	EnableFileLogging bool
	LogFile           string
	LogMaxSizeMB      int `validate:"min=1,max=100"`
	LogBackupCount    int `validate:"min=1,max=20"`
	Debug             bool

	EnvFile    string `validate:"-"`
	ConfigFile string `validate:"-"`
}

func Load() (*Config, error) {
	return LoadWithOptions(LoadOptions{})
}

// LoadWithOptions resolves configuration in priority order: process environment,
// then the .env file, then the optional TOML file, then defaults.
func LoadWithOptions(opts LoadOptions) (*Config, error) {
	envPath := resolveEnvPath(opts)
	if envPath != "" {
		// godotenv never overrides variables that are already set.
		if err := godotenv.Load(envPath); err != nil {
			return nil, fmt.Errorf("read %s: %w", envPath, err)
		}
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	cfgFile := strings.TrimSpace(os.Getenv(ConfigFileEnvVar))
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", cfgFile, err)
		}
	}

	apiKeyPath := resolveAPIKeyPath(opts, v)

	cfg := &Config{
		APIKey:          resolveAPIKey(apiKeyPath, v),
		APIKeyPath:      apiKeyPath,
		BaseURL:         strings.TrimRight(strings.TrimSpace(v.GetString("openai_base_url")), "/"),
		Model:           strings.TrimSpace(v.GetString("ai_model")),
		Timeout:         time.Duration(v.GetInt("ai_timeout")) * time.Second,
		ChunkTimeout:    time.Duration(v.GetInt("ai_chunk_timeout")) * time.Second,
		MaxTokens:       v.GetInt("ai_max_tokens"),
		Temperature:     v.GetFloat64("ai_temperature"),
		MaxRetries:      v.GetInt("ai_max_retries"),
		RetryBackoff:    time.Duration(v.GetInt("ai_retry_backoff")) * time.Millisecond,
		SystemPrompt:    v.GetString("ai_system_prompt"),
		MaxPromptChars:  v.GetInt("ai_max_prompt_chars"),
		EnableCache:     v.GetBool("enable_cache"),
		CacheMaxSize:    v.GetInt("cache_max_size"),
		CacheTTL:        time.Duration(v.GetInt("cache_ttl")) * time.Minute,
		EnableFollowUps: v.GetBool("enable_follow_ups"),

		MinSelectionLength: v.GetInt("min_selection_length"),
		MaxSelectionChars:  v.GetInt("max_selection_chars"),
		SelectionDelay:     time.Duration(v.GetInt("selection_delay")) * time.Millisecond,
		DragThreshold:      v.GetInt("drag_threshold"),
		MaxDragDistance:    v.GetInt("max_drag_distance"),
		DebounceInterval:   time.Duration(v.GetInt("debounce_interval")) * time.Millisecond,
		Hotkey:             strings.TrimSpace(v.GetString("hotkey")),
		ExcludedWindows:    splitList(v.GetString("excluded_windows")),

		EnablePrivacyFilter: v.GetBool("enable_privacy_filter"),
		PrivacyStrict:       v.GetBool("privacy_strict"),

		OverlayTimeout: time.Duration(v.GetInt("overlay_timeout")) * time.Second,

		EnableFileLogging: v.GetBool("enable_file_logging"),
		LogFile:           v.GetString("log_file"),
		LogMaxSizeMB:      v.GetInt("log_max_size_mb"),
		LogBackupCount:    v.GetInt("log_backup_count"),
		Debug:             v.GetBool("debug") || opts.Debug,

		EnvFile:    envPath,
		ConfigFile: cfgFile,
	}
	if len(cfg.ExcludedWindows) == 0 {
		cfg.ExcludedWindows = append([]string(nil), DefaultExcludedWindows...)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("openai_base_url", DefaultBaseURL)
	v.SetDefault("ai_model", DefaultModel)
	v.SetDefault("ai_timeout", 30)
	v.SetDefault("ai_chunk_timeout", 15)
	v.SetDefault("ai_max_tokens", 500)
	v.SetDefault("ai_temperature", 0.7)
	v.SetDefault("ai_max_retries", 2)
	v.SetDefault("ai_retry_backoff", 500)
	v.SetDefault("ai_system_prompt", "")
	v.SetDefault("ai_max_prompt_chars", 5000)
	v.SetDefault("enable_cache", true)
	v.SetDefault("cache_max_size", 50)
	v.SetDefault("cache_ttl", 30)
	v.SetDefault("enable_follow_ups", false)
	v.SetDefault("min_selection_length", 2)
	v.SetDefault("max_selection_chars", 10000)
	v.SetDefault("selection_delay", 300)
	v.SetDefault("drag_threshold", 5)
	v.SetDefault("max_drag_distance", 1000)
	v.SetDefault("debounce_interval", 150)
	v.SetDefault("hotkey", "")
	v.SetDefault("excluded_windows", "")
	v.SetDefault("enable_privacy_filter", true)
	v.SetDefault("privacy_strict", true)
	v.SetDefault("overlay_timeout", 20)
	v.SetDefault("enable_file_logging", false)
	v.SetDefault("log_file", DefaultLogFile)
	v.SetDefault("log_max_size_mb", 10)
	v.SetDefault("log_backup_count", 5)
	v.SetDefault("debug", false)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks ranges and required fields. The returned error lists every
// offending option by its environment variable name.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q (%s)", envName(fe.Field()), fe.Tag(), fe.Param()))
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}

var envNames = map[string]string{
	"APIKey":             APIKeyEnvVar,
	"BaseURL":            "OPENAI_BASE_URL",
	"Model":              "AI_MODEL",
	"Timeout":            "AI_TIMEOUT",
	"ChunkTimeout":       "AI_CHUNK_TIMEOUT",
	"MaxTokens":          "AI_MAX_TOKENS",
	"Temperature":        "AI_TEMPERATURE",
	"MaxRetries":         "AI_MAX_RETRIES",
	"RetryBackoff":       "AI_RETRY_BACKOFF",
	"MaxPromptChars":     "AI_MAX_PROMPT_CHARS",
	"CacheMaxSize":       "CACHE_MAX_SIZE",
	"CacheTTL":           "CACHE_TTL",
	"MinSelectionLength": "MIN_SELECTION_LENGTH",
	"MaxSelectionChars":  "MAX_SELECTION_CHARS",
	"SelectionDelay":     "SELECTION_DELAY",
	"DragThreshold":      "DRAG_THRESHOLD",
	"MaxDragDistance":    "MAX_DRAG_DISTANCE",
	"DebounceInterval":   "DEBOUNCE_INTERVAL",
	"OverlayTimeout":     "OVERLAY_TIMEOUT",
	"LogMaxSizeMB":       "LOG_MAX_SIZE_MB",
	"LogBackupCount":     "LOG_BACKUP_COUNT",
}

func envName(field string) string {
	if n, ok := envNames[field]; ok {
		return n
	}
	return field
}

func resolveEnvPath(opts LoadOptions) string {
	if p := strings.TrimSpace(opts.EnvFileOverride); p != "" {
		return p
	}

	if execPath, err := os.Executable(); err == nil {
		exeEnv := filepath.Join(filepath.Dir(execPath), ".env")
		if _, err := os.Stat(exeEnv); err == nil {
			return exeEnv
		}
	}

	if alt := os.Getenv(EnvFileEnvVar); alt != "" {
		if _, err := os.Stat(alt); err == nil {
			return alt
		}
	}

	if _, err := os.Stat(".env"); err == nil {
		return ".env"
	}
	return ""
}

func resolveAPIKeyPath(opts LoadOptions, v *viper.Viper) string {
	keyPath := defaultAPIKeyPath
	if p := strings.TrimSpace(v.GetString(strings.ToLower(APIKeyPathEnvVar))); p != "" {
		keyPath = p
	}
	if p := strings.TrimSpace(opts.APIKeyPathOverride); p != "" {
		keyPath = p
	}
	return keyPath
}

func resolveAPIKey(keyPath string, v *viper.Viper) string {
	if data, err := os.ReadFile(keyPath); err == nil {
		if fileKey := strings.TrimSpace(string(data)); fileKey != "" {
			return fileKey
		}
	}
	return strings.TrimSpace(v.GetString(strings.ToLower(APIKeyEnvVar)))
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
