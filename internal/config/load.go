package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "ISPLITTER"

var defaults = map[string]any{
	"server.port":             8081,
	"server.log_level":        "info",
	"server.api_prefix":       "/api/v1",
	"server.max_upload_mb":    100,
	"server.shutdown_timeout": 10 * time.Second,

	"auth.jwt_secret":             "",
	"auth.token_lifetime_minutes": 60,

	"llm.gemini_api_key":      "",
	"llm.model_name":          "gemini-2.5-flash-image",
	"llm.aspect_ratio":        "1:1",
	"llm.requests_per_minute": 60,

	"storage.backend":         "memory",
	"storage.endpoint":        "",
	"storage.region":          "us-east-1",
	"storage.access_key":      "",
	"storage.secret_key":      "",
	"storage.bucket":          "sop",
	"storage.use_path_style":  true,
	"storage.presign_expiry":  time.Hour,
	"storage.public_base_url": "",

	"queue.backend":                   "memory",
	"queue.worker_count":              4,
	"queue.queue_size":                100,
	"queue.max_attempts":              3,
	"queue.retry_backoff":             5 * time.Second,
	"queue.soft_time_limit":           300 * time.Second,
	"queue.hard_time_limit":           600 * time.Second,
	"queue.max_tasks_per_worker":      50,
	"queue.stuck_task_age":            15 * time.Minute,
	"queue.stuck_task_check_interval": time.Minute,

	"status.backend": "memory",
	"status.ttl":     time.Duration(0),

	"database.url": "",

	"mongo.uri":        "",
	"mongo.database":   "isplitter",
	"mongo.collection": "tryon_tasks",

	"pipeline.generate_timeout":     120 * time.Second,
	"pipeline.upload_timeout":       60 * time.Second,
	"pipeline.tryon_upload_timeout": 120 * time.Second,
	"pipeline.download_timeout":     30 * time.Second,
	"pipeline.max_clothing_items":   3,
	"pipeline.min_image_dimension":  100,
	"pipeline.output_quality":       95,
	"pipeline.split_key_prefix":     "split",
	"pipeline.tryon_key_prefix":     "tryon",
}

// Load configuration from a .env file, an optional config.yaml and
// environment variables. Environment variables take precedence over values
// from config files. Returns a populated Config struct or an error if
// loading/validation fails.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env file: %w", err)
	}

	v := viper.New()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks field constraints and the cross-section requirements of
// the selected backends.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	if (c.Queue.Backend == "postgres" || c.Status.Backend == "postgres") && c.Database.URL == "" {
		return errors.New("config validation failed: database.url is required by the postgres backends")
	}
	if c.Status.Backend == "mongo" && c.Mongo.URI == "" {
		return errors.New("config validation failed: mongo.uri is required by the mongo status backend")
	}
	if c.Storage.Backend == "s3" && (c.Storage.AccessKey == "") != (c.Storage.SecretKey == "") {
		return errors.New("config validation failed: storage.access_key and storage.secret_key must be set together")
	}

	return nil
}

// MaxUploadBytes is the request body limit derived from MaxUploadMB.
func (s ServerConfig) MaxUploadBytes() int64 {
	return int64(s.MaxUploadMB) << 20
}
