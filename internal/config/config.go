package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Store drivers supported by the interview repository.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMongo    = "mongo"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName      string
	AppEnv       string
	AppPort      string
	AllowOrigins string

	StoreDriver   string
	DatabaseURL   string
	MongoURL      string
	MongoDatabase string

	RedisURL       string
	StatusCacheTTL time.Duration

	NATSURL         string
	NATSSubjectBase string

	JWTSecret string

	AIProvider   string
	OpenAIAPIKey string
	OpenAIModel  string
	OpenAIURL    string
	AITimeout    time.Duration
	PromptsFile  string

	DockerHost       string
	ExecutionTimeout time.Duration
	CodeRunMemoryMB  int
	CodeRunCPUShares int

	CloudinaryCloudName    string
	CloudinaryAPIKey       string
	CloudinaryAPISecret    string
	CloudinaryUploadFolder string

	LogLevel string
	LogFile  string

	GenerationRateLimit  int
	GenerationRateWindow time.Duration
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// CloudinaryEnabled reports whether report export has credentials.
func (c Config) CloudinaryEnabled() bool {
	return c.CloudinaryCloudName != "" && c.CloudinaryAPIKey != "" && c.CloudinaryAPISecret != ""
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("PREP")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "Interview Prep API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("cors.origins", "*")
	v.SetDefault("database.driver", StoreDriverPostgres)
	v.SetDefault("mongo.database", "interview_prep")
	v.SetDefault("status.cache_ttl", "30s")
	v.SetDefault("nats.subject_base", "interview-prep")
	v.SetDefault("ai.provider", "openai")
	v.SetDefault("ai.model", "gpt-4o-mini")
	v.SetDefault("ai.timeout", "60s")
	v.SetDefault("cloudinary.folder", "interview-prep/reports")
	v.SetDefault("execution_timeout_ms", 5000)
	v.SetDefault("code_run_memory_mb", 256)
	v.SetDefault("code_run_cpu_shares", 512)
	v.SetDefault("log.level", "info")
	v.SetDefault("rate_limit.generation", 20)
	v.SetDefault("rate_limit.window", "1m")

	cacheTTL, err := parseDuration(v, "status.cache_ttl")
	if err != nil {
		return Config{}, err
	}
	aiTimeout, err := parseDuration(v, "ai.timeout")
	if err != nil {
		return Config{}, err
	}
	rateWindow, err := parseDuration(v, "rate_limit.window")
	if err != nil {
		return Config{}, err
	}

	timeoutMs := v.GetInt("execution_timeout_ms")
	if timeoutMs <= 0 {
		timeoutMs = 5000
	}

	cfg := Config{
		AppName:                v.GetString("app.name"),
		AppEnv:                 v.GetString("app.env"),
		AppPort:                v.GetString("app.port"),
		AllowOrigins:           v.GetString("cors.origins"),
		StoreDriver:            strings.ToLower(strings.TrimSpace(v.GetString("database.driver"))),
		DatabaseURL:            v.GetString("database.url"),
		MongoURL:               v.GetString("mongo.url"),
		MongoDatabase:          v.GetString("mongo.database"),
		RedisURL:               v.GetString("redis.url"),
		StatusCacheTTL:         cacheTTL,
		NATSURL:                v.GetString("nats.url"),
		NATSSubjectBase:        v.GetString("nats.subject_base"),
		JWTSecret:              v.GetString("jwt.secret"),
		AIProvider:             strings.ToLower(v.GetString("ai.provider")),
		OpenAIAPIKey:           v.GetString("openai_api_key"),
		OpenAIModel:            v.GetString("ai.model"),
		OpenAIURL:              v.GetString("ai.base_url"),
		AITimeout:              aiTimeout,
		PromptsFile:            v.GetString("prompts.file"),
		DockerHost:             v.GetString("docker_host"),
		ExecutionTimeout:       time.Duration(timeoutMs) * time.Millisecond,
		CodeRunMemoryMB:        v.GetInt("code_run_memory_mb"),
		CodeRunCPUShares:       v.GetInt("code_run_cpu_shares"),
		CloudinaryCloudName:    v.GetString("cloudinary.cloud_name"),
		CloudinaryAPIKey:       v.GetString("cloudinary.api_key"),
		CloudinaryAPISecret:    v.GetString("cloudinary.api_secret"),
		CloudinaryUploadFolder: v.GetString("cloudinary.folder"),
		LogLevel:               v.GetString("log.level"),
		LogFile:                v.GetString("log.file"),
		GenerationRateLimit:    v.GetInt("rate_limit.generation"),
		GenerationRateWindow:   rateWindow,
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	switch cfg.StoreDriver {
	case StoreDriverPostgres:
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("database url must be provided for the postgres store")
		}
	case StoreDriverMongo:
		if cfg.MongoURL == "" {
			return Config{}, fmt.Errorf("mongo url must be provided for the mongo store")
		}
	default:
		return Config{}, fmt.Errorf("unsupported database driver %q", cfg.StoreDriver)
	}

	if cfg.AIProvider != "openai" {
		return Config{}, fmt.Errorf("unsupported ai provider %q", cfg.AIProvider)
	}

	if cfg.CodeRunMemoryMB <= 0 {
		cfg.CodeRunMemoryMB = 256
	}

	if cfg.CodeRunCPUShares <= 0 {
		cfg.CodeRunCPUShares = 512
	}

	return cfg, nil
}

func parseDuration(v *viper.Viper, key string) (time.Duration, error) {
	value := strings.TrimSpace(v.GetString(key))
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return parsed, nil
}
