package config

import (
	"strconv"
	"time"

	"github.com/anatolykoptev/go-kit/env"
)

// DefaultUserAgent is sent to the downloader so extractors see a desktop browser.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

type Config struct {
	ServerAddr      string
	LogLevel        string
	ShutdownTimeout time.Duration
	AllowedOrigins  []string

	// Filesystem layout
	DownloadDir string
	TempDir     string

	// Downloader
	YtdlpPath               string
	UserAgent               string
	TitleTimeout            time.Duration
	MetadataTimeout         time.Duration
	MetadataFallbackTimeout time.Duration
	FormatsTimeout          time.Duration

	// Fallback progress ticker
	TickInterval time.Duration
	TickStep     float64
	TickCeiling  float64

	// Language model (Gemini through the OpenAI compatible endpoint)
	LLMAPIKey      string
	LLMAPIBase     string
	LLMModel       string
	LLMTimeout     time.Duration
	LLMMaxTokens   int
	LLMTemperature float64

	// Optional Redis cache for metadata lookups
	RedisURL string
	CacheTTL time.Duration

	// Optional object storage mirror for finalized files
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
	MinioRegion    string
}

func Load() *Config {
	minioUseSSL, _ := strconv.ParseBool(env.Str("MINIO_USE_SSL", "false"))

	apiKey := env.Str("LLM_API_KEY", "")
	if apiKey == "" {
		apiKey = env.Str("GEMINI_API_KEY", "")
	}

	return &Config{
		ServerAddr:      env.Str("SERVER_ADDR", ":8095"),
		LogLevel:        env.Str("LOG_LEVEL", "info"),
		ShutdownTimeout: env.Duration("SHUTDOWN_TIMEOUT", 30*time.Second),
		AllowedOrigins:  env.List("CORS_ALLOWED_ORIGINS", "*"),

		DownloadDir: env.Str("DOWNLOAD_DIR", "downloads"),
		TempDir:     env.Str("TEMP_DIR", "temp_downloads"),

		YtdlpPath:               env.Str("YTDLP_PATH", "yt-dlp"),
		UserAgent:               env.Str("YTDLP_USER_AGENT", DefaultUserAgent),
		TitleTimeout:            env.Duration("TITLE_TIMEOUT", 15*time.Second),
		MetadataTimeout:         env.Duration("METADATA_TIMEOUT", 45*time.Second),
		MetadataFallbackTimeout: env.Duration("METADATA_FALLBACK_TIMEOUT", 30*time.Second),
		FormatsTimeout:          env.Duration("FORMATS_TIMEOUT", 30*time.Second),

		TickInterval: env.Duration("PROGRESS_TICK_INTERVAL", 2*time.Second),
		TickStep:     env.Float("PROGRESS_TICK_STEP", 5),
		TickCeiling:  env.Float("PROGRESS_TICK_CEILING", 90),

		LLMAPIKey:      apiKey,
		LLMAPIBase:     env.Str("LLM_API_BASE", "https://generativelanguage.googleapis.com/v1beta/openai"),
		LLMModel:       env.Str("LLM_MODEL", "gemini-2.5-flash"),
		LLMTimeout:     env.Duration("LLM_TIMEOUT", 60*time.Second),
		LLMMaxTokens:   env.Int("LLM_MAX_TOKENS", 1024),
		LLMTemperature: env.Float("LLM_TEMPERATURE", 0.3),

		RedisURL: env.Str("REDIS_URL", ""),
		CacheTTL: env.Duration("CACHE_TTL", time.Hour),

		MinioEndpoint:  env.Str("MINIO_ENDPOINT", ""),
		MinioAccessKey: env.Str("MINIO_ACCESS_KEY", "minioadmin"),
		MinioSecretKey: env.Str("MINIO_SECRET_KEY", "minioadmin"),
		MinioBucket:    env.Str("MINIO_BUCKET", "downloads"),
		MinioUseSSL:    minioUseSSL,
		MinioRegion:    env.Str("MINIO_REGION", "us-east-1"),
	}
}

// CacheEnabled reports whether a Redis URL was configured.
func (c *Config) CacheEnabled() bool {
	return c.RedisURL != ""
}

// MirrorEnabled reports whether finalized files are mirrored to object storage.
func (c *Config) MirrorEnabled() bool {
	return c.MinioEndpoint != ""
}
