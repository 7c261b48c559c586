package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	filePath := os.Getenv(envKey + "_FILE")
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	os.Setenv(envKey, strings.TrimSpace(string(data)))
}

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
	Groq      GroqConfig
	TTS       TTSConfig
	Images    ImagesConfig
	Composer  ComposerConfig
	Storage   StorageConfig
	R2        R2Config
	Pipeline  PipelineConfig
	Purge     PurgeConfig
}

type ServerConfig struct {
	Port        string
	Env         string
	LogLevel    string
	FrontendURL string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type RateLimitConfig struct {
	GeneratePerHour int
}

type GroqConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

type TTSConfig struct {
	BaseURL  string
	Language string
}

type ImagesConfig struct {
	BaseURL string
	Width   int
	Height  int
}

type ComposerConfig struct {
	FFmpegPath  string
	FFprobePath string
	FontFile    string
	FPS         int
	Preset      string
}

// Storage drivers
const (
	StorageDriverLocal = "local"
	StorageDriverR2    = "r2"
)

type StorageConfig struct {
	Driver    string
	OutputDir string
	TempDir   string
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
	Prefix          string
	// Endpoint overrides the R2 account endpoint for other S3-compatible
	// stores. Path-style addressing is used when set.
	Endpoint        string
}

type PipelineConfig struct {
	DefaultDuration int // seconds
	MaxDuration     int // seconds
	ScriptTimeout   time.Duration
	VoiceTimeout    time.Duration
	ImageTimeout    time.Duration
	ComposeTimeout  time.Duration
	VisualDelay     time.Duration
	// ScriptFallback substitutes a placeholder script when the script
	// generator is unconfigured or fails, instead of failing the job.
	ScriptFallback  bool
}

type PurgeConfig struct {
	Enabled   bool
	Schedule  string
	Retention time.Duration
}

// Load reads configuration from config.yaml (optional) and the environment.
func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("GROQ_API_KEY")
	readSecret("R2_ACCOUNT_ID")
	readSecret("R2_ACCESS_KEY_ID")
	readSecret("R2_SECRET_ACCESS_KEY")

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	bindings := map[string]string{
		"server.port":                 "PORT",
		"server.env":                  "SERVER_ENV",
		"server.log_level":            "LOG_LEVEL",
		"server.frontend_url":         "FRONTEND_URL",
		"redis.addr":                  "REDIS_ADDR",
		"redis.password":              "REDIS_PASSWORD",
		"redis.db":                    "REDIS_DB",
		"ratelimit.generate_per_hour": "RATELIMIT_GENERATE_PER_HOUR",
		"groq.api_key":                "GROQ_API_KEY",
		"groq.base_url":               "GROQ_BASE_URL",
		"groq.model":                  "GROQ_MODEL",
		"tts.base_url":                "TTS_BASE_URL",
		"tts.language":                "TTS_LANGUAGE",
		"images.base_url":             "IMAGES_BASE_URL",
		"images.width":                "IMAGES_WIDTH",
		"images.height":               "IMAGES_HEIGHT",
		"composer.ffmpeg_path":        "FFMPEG_PATH",
		"composer.ffprobe_path":       "FFPROBE_PATH",
		"composer.font_file":          "CAPTION_FONT_FILE",
		"composer.fps":                "COMPOSER_FPS",
		"composer.preset":             "COMPOSER_PRESET",
		"storage.driver":              "STORAGE_DRIVER",
		"storage.output_dir":          "OUTPUT_DIR",
		"storage.temp_dir":            "TEMP_DIR",
		"r2.account_id":               "R2_ACCOUNT_ID",
		"r2.access_key_id":            "R2_ACCESS_KEY_ID",
		"r2.secret_access_key":        "R2_SECRET_ACCESS_KEY",
		"r2.bucket_name":              "R2_BUCKET_NAME",
		"r2.public_url":               "R2_PUBLIC_URL",
		"r2.prefix":                   "R2_PREFIX",
		"r2.endpoint":                 "R2_ENDPOINT",
		"pipeline.default_duration":   "PIPELINE_DEFAULT_DURATION",
		"pipeline.max_duration":       "PIPELINE_MAX_DURATION",
		"pipeline.script_timeout":     "PIPELINE_SCRIPT_TIMEOUT",
		"pipeline.voice_timeout":      "PIPELINE_VOICE_TIMEOUT",
		"pipeline.image_timeout":      "PIPELINE_IMAGE_TIMEOUT",
		"pipeline.compose_timeout":    "PIPELINE_COMPOSE_TIMEOUT",
		"pipeline.visual_delay":       "PIPELINE_VISUAL_DELAY",
		"pipeline.script_fallback":    "PIPELINE_SCRIPT_FALLBACK",
		"purge.enabled":               "PURGE_ENABLED",
		"purge.schedule":              "PURGE_SCHEDULE",
		"purge.retention":             "PURGE_RETENTION",
	}
	for key, env := range bindings {
		_ = v.BindEnv(key, env)
	}

	// Defaults
	v.SetDefault("server.port", "8000")
	v.SetDefault("server.env", "development")
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.frontend_url", "http://localhost:3000")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("ratelimit.generate_per_hour", 20)

	// Groq defaults
	v.SetDefault("groq.base_url", "https://api.groq.com/openai/v1")
	v.SetDefault("groq.model", "llama-3.3-70b-versatile")

	// Media collaborator defaults
	v.SetDefault("tts.base_url", "https://translate.google.com")
	v.SetDefault("tts.language", "en")
	v.SetDefault("images.base_url", "https://image.pollinations.ai")
	v.SetDefault("images.width", 1080)
	v.SetDefault("images.height", 1920)
	v.SetDefault("composer.ffmpeg_path", "ffmpeg")
	v.SetDefault("composer.ffprobe_path", "ffprobe")
	v.SetDefault("composer.fps", 30)
	v.SetDefault("composer.preset", "medium")

	// Storage defaults
	v.SetDefault("storage.driver", StorageDriverLocal)
	v.SetDefault("storage.output_dir", "output")
	v.SetDefault("storage.temp_dir", "temp")
	v.SetDefault("r2.prefix", "videos")

	// Pipeline defaults
	v.SetDefault("pipeline.default_duration", 30)
	v.SetDefault("pipeline.max_duration", 180)
	v.SetDefault("pipeline.script_timeout", 60*time.Second)
	v.SetDefault("pipeline.voice_timeout", 60*time.Second)
	v.SetDefault("pipeline.image_timeout", 30*time.Second)
	v.SetDefault("pipeline.compose_timeout", 10*time.Minute)
	v.SetDefault("pipeline.visual_delay", time.Second)
	v.SetDefault("pipeline.script_fallback", true)

	// Purge defaults
	v.SetDefault("purge.enabled", false)
	v.SetDefault("purge.schedule", "@every 1h")
	v.SetDefault("purge.retention", 24*time.Hour)

	// Try to read config file (optional)
	_ = v.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:        v.GetString("server.port"),
			Env:         v.GetString("server.env"),
			LogLevel:    v.GetString("server.log_level"),
			FrontendURL: v.GetString("server.frontend_url"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		RateLimit: RateLimitConfig{
			GeneratePerHour: v.GetInt("ratelimit.generate_per_hour"),
		},
		Groq: GroqConfig{
			APIKey:  v.GetString("groq.api_key"),
			BaseURL: v.GetString("groq.base_url"),
			Model:   v.GetString("groq.model"),
		},
		TTS: TTSConfig{
			BaseURL:  v.GetString("tts.base_url"),
			Language: v.GetString("tts.language"),
		},
		Images: ImagesConfig{
			BaseURL: v.GetString("images.base_url"),
			Width:   v.GetInt("images.width"),
			Height:  v.GetInt("images.height"),
		},
		Composer: ComposerConfig{
			FFmpegPath:  v.GetString("composer.ffmpeg_path"),
			FFprobePath: v.GetString("composer.ffprobe_path"),
			FontFile:    v.GetString("composer.font_file"),
			FPS:         v.GetInt("composer.fps"),
			Preset:      v.GetString("composer.preset"),
		},
		Storage: StorageConfig{
			Driver:    strings.ToLower(v.GetString("storage.driver")),
			OutputDir: v.GetString("storage.output_dir"),
			TempDir:   v.GetString("storage.temp_dir"),
		},
		R2: R2Config{
			AccountID:       v.GetString("r2.account_id"),
			AccessKeyID:     v.GetString("r2.access_key_id"),
			SecretAccessKey: v.GetString("r2.secret_access_key"),
			BucketName:      v.GetString("r2.bucket_name"),
			PublicURL:       v.GetString("r2.public_url"),
			Prefix:          v.GetString("r2.prefix"),
			Endpoint:        v.GetString("r2.endpoint"),
		},
		Pipeline: PipelineConfig{
			DefaultDuration: v.GetInt("pipeline.default_duration"),
			MaxDuration:     v.GetInt("pipeline.max_duration"),
			ScriptTimeout:   v.GetDuration("pipeline.script_timeout"),
			VoiceTimeout:    v.GetDuration("pipeline.voice_timeout"),
			ImageTimeout:    v.GetDuration("pipeline.image_timeout"),
			ComposeTimeout:  v.GetDuration("pipeline.compose_timeout"),
			VisualDelay:     v.GetDuration("pipeline.visual_delay"),
			ScriptFallback:  v.GetBool("pipeline.script_fallback"),
		},
		Purge: PurgeConfig{
			Enabled:   v.GetBool("purge.enabled"),
			Schedule:  v.GetString("purge.schedule"),
			Retention: v.GetDuration("purge.retention"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Storage.Driver {
	case StorageDriverLocal, StorageDriverR2:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Pipeline.MaxDuration < 1 {
		return fmt.Errorf("pipeline.max_duration must be positive, got %d", c.Pipeline.MaxDuration)
	}
	if c.Pipeline.DefaultDuration < 1 || c.Pipeline.DefaultDuration > c.Pipeline.MaxDuration {
		return fmt.Errorf("pipeline.default_duration must be within 1..%d, got %d", c.Pipeline.MaxDuration, c.Pipeline.DefaultDuration)
	}
	timeouts := map[string]time.Duration{
		"pipeline.script_timeout":  c.Pipeline.ScriptTimeout,
		"pipeline.voice_timeout":   c.Pipeline.VoiceTimeout,
		"pipeline.image_timeout":   c.Pipeline.ImageTimeout,
		"pipeline.compose_timeout": c.Pipeline.ComposeTimeout,
	}
	for key, d := range timeouts {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", key, d)
		}
	}
	if c.Pipeline.VisualDelay < 0 {
		return fmt.Errorf("pipeline.visual_delay must not be negative, got %s", c.Pipeline.VisualDelay)
	}
	if c.Images.Width < 1 || c.Images.Height < 1 {
		return fmt.Errorf("images size must be positive, got %dx%d", c.Images.Width, c.Images.Height)
	}
	if c.Composer.FPS < 1 {
		return fmt.Errorf("composer.fps must be positive, got %d", c.Composer.FPS)
	}
	return nil
}
