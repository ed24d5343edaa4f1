package config

import (
	"os"
	"strings"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	JWT       JWTConfig
	RateLimit RateLimitConfig
	Suno      SunoConfig
	Demucs    DemucsConfig
	Poll      PollConfig
	Stems     StemsConfig
}

type ServerConfig struct {
	Port      string
	Env       string
	LogLevel  string
	ApiDomain string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
}

type RateLimitConfig struct {
	GeneratePerHour int
	LayerPerHour    int
	LyricsPerMin    int
}

type SunoConfig struct {
	APIKey     string
	BaseURL    string
	MaxRetries int
}

type DemucsConfig struct {
	EndpointURL string
	Timeout     int // seconds; separation is synchronous and slow
}

type PollConfig struct {
	ClipInterval    int // seconds between generation status queries
	StemInterval    int // seconds between stem status queries
	GenerateTimeout int // seconds
	SeparateTimeout int // seconds
}

type StemsConfig struct {
	Core []string // stem types required before the preview layer is swapped out
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("SUNO_API_KEY")
	readSecret("JWT_SECRET")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = viper.BindEnv("server.port", "SERVER_PORT")
	_ = viper.BindEnv("server.env", "SERVER_ENV")
	_ = viper.BindEnv("server.log_level", "LOG_LEVEL")
	_ = viper.BindEnv("server.api_domain", "API_DOMAIN")
	_ = viper.BindEnv("redis.addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis.db", "REDIS_DB")
	_ = viper.BindEnv("jwt.secret", "JWT_SECRET")
	_ = viper.BindEnv("ratelimit.generate_per_hour", "RATELIMIT_GENERATE_PER_HOUR")
	_ = viper.BindEnv("ratelimit.layer_per_hour", "RATELIMIT_LAYER_PER_HOUR")
	_ = viper.BindEnv("ratelimit.lyrics_per_min", "RATELIMIT_LYRICS_PER_MIN")
	_ = viper.BindEnv("suno.api_key", "SUNO_API_KEY")
	_ = viper.BindEnv("suno.base_url", "SUNO_BASE_URL")
	_ = viper.BindEnv("suno.max_retries", "SUNO_MAX_RETRIES")
	_ = viper.BindEnv("demucs.endpoint_url", "DEMUCS_ENDPOINT_URL")
	_ = viper.BindEnv("demucs.timeout", "DEMUCS_TIMEOUT")
	_ = viper.BindEnv("poll.clip_interval", "POLL_CLIP_INTERVAL")
	_ = viper.BindEnv("poll.stem_interval", "POLL_STEM_INTERVAL")
	_ = viper.BindEnv("poll.generate_timeout", "POLL_GENERATE_TIMEOUT")
	_ = viper.BindEnv("poll.separate_timeout", "POLL_SEPARATE_TIMEOUT")
	_ = viper.BindEnv("stems.core", "CORE_STEMS")

	// Defaults
	viper.SetDefault("server.port", "8000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("jwt.secret", "change-me-in-production")
	viper.SetDefault("ratelimit.generate_per_hour", 10)
	viper.SetDefault("ratelimit.layer_per_hour", 30)
	viper.SetDefault("ratelimit.lyrics_per_min", 30)

	// Suno defaults
	viper.SetDefault("suno.base_url", "https://api.sunoapi.org")
	viper.SetDefault("suno.max_retries", 3)

	// Demucs defaults; separation of a two-minute track runs well over a minute
	viper.SetDefault("demucs.timeout", 300)

	// Polling defaults
	viper.SetDefault("poll.clip_interval", 5)
	viper.SetDefault("poll.stem_interval", 8)
	viper.SetDefault("poll.generate_timeout", 180)
	viper.SetDefault("poll.separate_timeout", 300)

	viper.SetDefault("stems.core", "drums,bass,vocals")

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:      viper.GetString("server.port"),
			Env:       viper.GetString("server.env"),
			LogLevel:  viper.GetString("server.log_level"),
			ApiDomain: viper.GetString("server.api_domain"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret: viper.GetString("jwt.secret"),
		},
		RateLimit: RateLimitConfig{
			GeneratePerHour: viper.GetInt("ratelimit.generate_per_hour"),
			LayerPerHour:    viper.GetInt("ratelimit.layer_per_hour"),
			LyricsPerMin:    viper.GetInt("ratelimit.lyrics_per_min"),
		},
		Suno: SunoConfig{
			APIKey:     viper.GetString("suno.api_key"),
			BaseURL:    viper.GetString("suno.base_url"),
			MaxRetries: viper.GetInt("suno.max_retries"),
		},
		Demucs: DemucsConfig{
			EndpointURL: viper.GetString("demucs.endpoint_url"),
			Timeout:     viper.GetInt("demucs.timeout"),
		},
		Poll: PollConfig{
			ClipInterval:    viper.GetInt("poll.clip_interval"),
			StemInterval:    viper.GetInt("poll.stem_interval"),
			GenerateTimeout: viper.GetInt("poll.generate_timeout"),
			SeparateTimeout: viper.GetInt("poll.separate_timeout"),
		},
		Stems: StemsConfig{
			Core: splitList(viper.GetString("stems.core")),
		},
	}

	return cfg, nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}
