package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	Auth     AuthConfig     `mapstructure:"auth"`
	LLM      LLMConfig      `mapstructure:"llm" validate:"required"`
	Storage  StorageConfig  `mapstructure:"storage" validate:"required"`
	Queue    QueueConfig    `mapstructure:"queue" validate:"required"`
	Status   StatusConfig   `mapstructure:"status" validate:"required"`
	Database DatabaseConfig `mapstructure:"database"`
	Mongo    MongoConfig    `mapstructure:"mongo"`
	Pipeline PipelineConfig `mapstructure:"pipeline" validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel        string        `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	APIPrefix       string        `mapstructure:"api_prefix" validate:"required,startswith=/"`
	MaxUploadMB     int           `mapstructure:"max_upload_mb" validate:"required,gt=0,lte=1024"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0"`
}

// AuthConfig contains bearer-token settings. Auth is disabled when JWTSecret is empty.
type AuthConfig struct {
	JWTSecret            string `mapstructure:"jwt_secret" validate:"omitempty,min=32"`
	TokenLifetimeMinutes int    `mapstructure:"token_lifetime_minutes" validate:"gte=0,lte=44640"`
}

// Enabled reports whether API routes require a bearer token.
func (a AuthConfig) Enabled() bool {
	return a.JWTSecret != ""
}

// LLMConfig contains the generative image model settings.
type LLMConfig struct {
	GeminiAPIKey      string `mapstructure:"gemini_api_key" validate:"required"`
	ModelName         string `mapstructure:"model_name" validate:"required"`
	AspectRatio       string `mapstructure:"aspect_ratio" validate:"omitempty,oneof=1:1 3:4 4:3 9:16 16:9"`
	RequestsPerMinute int    `mapstructure:"requests_per_minute" validate:"gte=0"`
}

// StorageConfig contains the object storage settings.
type StorageConfig struct {
	Backend       string        `mapstructure:"backend" validate:"required,oneof=memory s3"`
	Endpoint      string        `mapstructure:"endpoint" validate:"omitempty,url"`
	Region        string        `mapstructure:"region" validate:"required"`
	AccessKey     string        `mapstructure:"access_key"`
	SecretKey     string        `mapstructure:"secret_key"`
	Bucket        string        `mapstructure:"bucket" validate:"required"`
	UsePathStyle  bool          `mapstructure:"use_path_style"`
	PresignExpiry time.Duration `mapstructure:"presign_expiry" validate:"required,gt=0"`
	// PublicBaseURL is where the memory backend's /objects route is reachable.
	// Empty means http://localhost:<port>/objects.
	PublicBaseURL string `mapstructure:"public_base_url" validate:"omitempty,url"`
}

// QueueConfig contains the task queue settings.
type QueueConfig struct {
	Backend                string        `mapstructure:"backend" validate:"required,oneof=memory postgres"`
	WorkerCount            int           `mapstructure:"worker_count" validate:"required,gt=0"`
	QueueSize              int           `mapstructure:"queue_size" validate:"required,gt=0"`
	MaxAttempts            int           `mapstructure:"max_attempts" validate:"required,gt=0,lte=10"`
	RetryBackoff           time.Duration `mapstructure:"retry_backoff" validate:"gte=0"`
	SoftTimeLimit          time.Duration `mapstructure:"soft_time_limit" validate:"required,gt=0"`
	HardTimeLimit          time.Duration `mapstructure:"hard_time_limit" validate:"required,gtfield=SoftTimeLimit"`
	MaxTasksPerWorker      int           `mapstructure:"max_tasks_per_worker" validate:"gte=0"`
	StuckTaskAge           time.Duration `mapstructure:"stuck_task_age" validate:"required,gtfield=HardTimeLimit"`
	StuckTaskCheckInterval time.Duration `mapstructure:"stuck_task_check_interval" validate:"required,gt=0"`
}

// StatusConfig contains the try-on status tracker settings.
type StatusConfig struct {
	Backend string        `mapstructure:"backend" validate:"required,oneof=memory postgres mongo"`
	TTL     time.Duration `mapstructure:"ttl" validate:"gte=0"`
}

// DatabaseConfig contains the Postgres settings used by the postgres backends.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"omitempty,url"`
}

// MongoConfig contains the MongoDB settings used by the mongo status backend.
type MongoConfig struct {
	URI        string `mapstructure:"uri" validate:"omitempty,uri"`
	Database   string `mapstructure:"database" validate:"required"`
	Collection string `mapstructure:"collection" validate:"required"`
}

// PipelineConfig contains the generate/upload pipeline settings.
type PipelineConfig struct {
	GenerateTimeout    time.Duration `mapstructure:"generate_timeout" validate:"required,gt=0"`
	UploadTimeout      time.Duration `mapstructure:"upload_timeout" validate:"required,gt=0"`
	TryOnUploadTimeout time.Duration `mapstructure:"tryon_upload_timeout" validate:"required,gt=0"`
	DownloadTimeout    time.Duration `mapstructure:"download_timeout" validate:"required,gt=0"`
	MaxClothingItems   int           `mapstructure:"max_clothing_items" validate:"required,gt=0,lte=10"`
	MinImageDimension  int           `mapstructure:"min_image_dimension" validate:"required,gt=0"`
	OutputQuality      int           `mapstructure:"output_quality" validate:"required,gt=0,lte=100"`
	SplitKeyPrefix     string        `mapstructure:"split_key_prefix" validate:"required"`
	TryOnKeyPrefix     string        `mapstructure:"tryon_key_prefix" validate:"required"`
}
