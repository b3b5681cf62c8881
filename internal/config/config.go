// ABOUTME: Centralized configuration for the companion engine
// ABOUTME: Defaults, then an optional YAML file, then environment variables, then validation
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"

	"github.com/harper/companion-engine/internal/models"
)

// Config holds all configuration for the engine
type Config struct {
	// Storage
	DBPath string `yaml:"db_path"`

	// LLM and speech providers
	LLMProvider       string        `yaml:"llm_provider"` // openai, anthropic, none
	OpenAIKey         string        `yaml:"-"`
	OpenAIBaseURL     string        `yaml:"openai_base_url"`
	AnthropicKey      string        `yaml:"-"`
	ChatModel         string        `yaml:"chat_model"`
	AnthropicModel    string        `yaml:"anthropic_model"`
	TTSModel          string        `yaml:"tts_model"`
	TTSVoice          string        `yaml:"tts_voice"`
	STTModel          string        `yaml:"stt_model"`
	ModerationEnabled bool          `yaml:"moderation_enabled"`
	MaxRetries        int           `yaml:"max_retries"`
	RetryDelay        time.Duration `yaml:"retry_delay"`

	// Capability timeouts
	LLMTimeout    time.Duration `yaml:"llm_timeout"`
	SpeechTimeout time.Duration `yaml:"speech_timeout"`
	SafetyTimeout time.Duration `yaml:"safety_timeout"`

	// Session policy
	RateLimitPerHour   int           `yaml:"rate_limit_per_hour"`
	MicLockDuration    time.Duration `yaml:"mic_lock_duration"`
	BreakThreshold     time.Duration `yaml:"break_threshold"`
	SessionIdleTimeout time.Duration `yaml:"session_idle_timeout"`

	// Dialogue
	BedtimeStart      string        `yaml:"bedtime_start"`
	BedtimeEnd        string        `yaml:"bedtime_end"`
	SilenceTimeout    time.Duration `yaml:"silence_timeout"`
	BoredomGameWeight float64       `yaml:"boredom_game_weight"`

	// Micro-games
	GameSilenceThreshold         time.Duration `yaml:"game_silence_threshold"`
	EngagementThreshold          float64       `yaml:"engagement_threshold"`
	MinInteractionsForEngagement int           `yaml:"min_interactions_for_engagement"`
	ConsecutiveNeutralLimit      int           `yaml:"consecutive_neutral_limit"`

	// Memory and telemetry retention
	MemoryLookbackDays     int `yaml:"memory_lookback_days"`
	SnapshotRetentionDays  int `yaml:"snapshot_retention_days"`
	TelemetryRetentionDays int `yaml:"telemetry_retention_days"`
	TranscriptCharLimit    int `yaml:"transcript_char_limit"`

	// Runtime
	Seed      uint64 `yaml:"seed"`
	Debug     bool   `yaml:"debug"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Experiments, only configurable from the YAML file
	ABTests []models.ABTest `yaml:"ab_tests"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DBPath:                       DefaultDBPath(),
		LLMProvider:                  "openai",
		ChatModel:                    "gpt-4o-mini",
		AnthropicModel:               "claude-3-5-haiku-latest",
		TTSModel:                     "tts-1",
		TTSVoice:                     "nova",
		STTModel:                     "whisper-1",
		ModerationEnabled:            true,
		MaxRetries:                   2,
		RetryDelay:                   500 * time.Millisecond,
		LLMTimeout:                   15 * time.Second,
		SpeechTimeout:                10 * time.Second,
		SafetyTimeout:                5 * time.Second,
		RateLimitPerHour:             120,
		MicLockDuration:              30 * time.Second,
		BreakThreshold:               20 * time.Minute,
		SessionIdleTimeout:           30 * time.Minute,
		BedtimeStart:                 "19:30",
		BedtimeEnd:                   "06:30",
		SilenceTimeout:               45 * time.Second,
		BoredomGameWeight:            0.6,
		GameSilenceThreshold:         45 * time.Second,
		EngagementThreshold:          0.3,
		MinInteractionsForEngagement: 5,
		ConsecutiveNeutralLimit:      3,
		MemoryLookbackDays:           7,
		SnapshotRetentionDays:        30,
		TelemetryRetentionDays:       90,
		TranscriptCharLimit:          5000,
		LogLevel:                     "info",
		LogFormat:                    "json",
	}
}

// DefaultDBPath returns the database path under the XDG data home.
func DefaultDBPath() string {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		dataHome = xdg.DataHome
	}
	return filepath.Join(dataHome, "companion", "companion.db")
}

// Load reads configuration from the optional YAML file named by
// COMPANION_CONFIG and then from environment variables
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("COMPANION_CONFIG"); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()
	return cfg, cfg.Validate()
}

// LoadFile overlays values from a YAML file.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.DBPath = getEnv("COMPANION_DB_PATH", c.DBPath)
	c.LLMProvider = strings.ToLower(getEnv("COMPANION_LLM_PROVIDER", c.LLMProvider))
	c.OpenAIKey = getEnv("OPENAI_API_KEY", c.OpenAIKey)
	c.OpenAIBaseURL = getEnv("OPENAI_BASE_URL", c.OpenAIBaseURL)
	c.AnthropicKey = getEnv("ANTHROPIC_API_KEY", c.AnthropicKey)
	c.ChatModel = getEnv("COMPANION_CHAT_MODEL", c.ChatModel)
	c.AnthropicModel = getEnv("COMPANION_ANTHROPIC_MODEL", c.AnthropicModel)
	c.TTSModel = getEnv("COMPANION_TTS_MODEL", c.TTSModel)
	c.TTSVoice = getEnv("COMPANION_TTS_VOICE", c.TTSVoice)
	c.STTModel = getEnv("COMPANION_STT_MODEL", c.STTModel)
	c.ModerationEnabled = getEnvBool("COMPANION_MODERATION", c.ModerationEnabled)
	c.MaxRetries = getEnvInt("COMPANION_MAX_RETRIES", c.MaxRetries)
	c.RetryDelay = getEnvDuration("COMPANION_RETRY_DELAY", c.RetryDelay)
	c.LLMTimeout = getEnvDuration("COMPANION_LLM_TIMEOUT", c.LLMTimeout)
	c.SpeechTimeout = getEnvDuration("COMPANION_SPEECH_TIMEOUT", c.SpeechTimeout)
	c.SafetyTimeout = getEnvDuration("COMPANION_SAFETY_TIMEOUT", c.SafetyTimeout)
	c.RateLimitPerHour = getEnvInt("COMPANION_RATE_LIMIT_PER_HOUR", c.RateLimitPerHour)
	c.MicLockDuration = getEnvDuration("COMPANION_MIC_LOCK", c.MicLockDuration)
	c.BreakThreshold = getEnvDuration("COMPANION_BREAK_THRESHOLD", c.BreakThreshold)
	c.SessionIdleTimeout = getEnvDuration("COMPANION_SESSION_IDLE_TIMEOUT", c.SessionIdleTimeout)
	c.BedtimeStart = getEnv("COMPANION_BEDTIME_START", c.BedtimeStart)
	c.BedtimeEnd = getEnv("COMPANION_BEDTIME_END", c.BedtimeEnd)
	c.SilenceTimeout = getEnvDuration("COMPANION_SILENCE_TIMEOUT", c.SilenceTimeout)
	c.BoredomGameWeight = getEnvFloat("COMPANION_BOREDOM_GAME_WEIGHT", c.BoredomGameWeight)
	c.GameSilenceThreshold = getEnvDuration("COMPANION_GAME_SILENCE_THRESHOLD", c.GameSilenceThreshold)
	c.EngagementThreshold = getEnvFloat("COMPANION_ENGAGEMENT_THRESHOLD", c.EngagementThreshold)
	c.MinInteractionsForEngagement = getEnvInt("COMPANION_MIN_INTERACTIONS_FOR_ENGAGEMENT", c.MinInteractionsForEngagement)
	c.ConsecutiveNeutralLimit = getEnvInt("COMPANION_NEUTRAL_LIMIT", c.ConsecutiveNeutralLimit)
	c.MemoryLookbackDays = getEnvInt("COMPANION_MEMORY_LOOKBACK_DAYS", c.MemoryLookbackDays)
	c.SnapshotRetentionDays = getEnvInt("COMPANION_SNAPSHOT_RETENTION_DAYS", c.SnapshotRetentionDays)
	c.TelemetryRetentionDays = getEnvInt("COMPANION_TELEMETRY_RETENTION_DAYS", c.TelemetryRetentionDays)
	c.TranscriptCharLimit = getEnvInt("COMPANION_TRANSCRIPT_CHAR_LIMIT", c.TranscriptCharLimit)
	c.Seed = getEnvUint("COMPANION_SEED", c.Seed)
	c.Debug = getEnvBool("COMPANION_DEBUG", c.Debug)
	c.LogLevel = getEnv("COMPANION_LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("COMPANION_LOG_FORMAT", c.LogFormat)
}

func (c *Config) Validate() error {
	switch c.LLMProvider {
	case "openai", "anthropic", "none":
	default:
		return fmt.Errorf("COMPANION_LLM_PROVIDER must be openai, anthropic or none, got %q", c.LLMProvider)
	}
	if c.MaxRetries < 0 || c.MaxRetries > 10 {
		return fmt.Errorf("COMPANION_MAX_RETRIES must be 0-10, got %d", c.MaxRetries)
	}
	if c.RateLimitPerHour <= 0 {
		return fmt.Errorf("COMPANION_RATE_LIMIT_PER_HOUR must be positive, got %d", c.RateLimitPerHour)
	}
	if c.BoredomGameWeight < 0 || c.BoredomGameWeight > 1 {
		return fmt.Errorf("COMPANION_BOREDOM_GAME_WEIGHT must be 0-1, got %f", c.BoredomGameWeight)
	}
	if c.EngagementThreshold < 0 || c.EngagementThreshold > 1 {
		return fmt.Errorf("COMPANION_ENGAGEMENT_THRESHOLD must be 0-1, got %f", c.EngagementThreshold)
	}
	if _, err := ParseClock(c.BedtimeStart); err != nil {
		return fmt.Errorf("COMPANION_BEDTIME_START: %w", err)
	}
	if _, err := ParseClock(c.BedtimeEnd); err != nil {
		return fmt.Errorf("COMPANION_BEDTIME_END: %w", err)
	}
	if c.MemoryLookbackDays <= 0 || c.SnapshotRetentionDays <= 0 || c.TelemetryRetentionDays <= 0 {
		return fmt.Errorf("lookback and retention days must be positive")
	}
	for _, test := range c.ABTests {
		total := 0
		for _, v := range test.Variants {
			if v.Traffic < 0 {
				return fmt.Errorf("ab test %q: variant %q has negative traffic", test.Name, v.Name)
			}
			total += v.Traffic
		}
		if total > 100 {
			return fmt.Errorf("ab test %q: traffic sums to %d, must be <= 100", test.Name, total)
		}
	}
	return nil
}

// ParseClock parses "HH:MM" into minutes after midnight.
func ParseClock(s string) (int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q (want HH:MM)", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// Helper functions
func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	return v == "true" || v == "1"
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvUint(key string, defaultVal uint64) uint64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseUint(v, 10, 64); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
