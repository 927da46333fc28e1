// internal/config/config.go
package config

import (
	"log"
	"os"
	"sync"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	App      AppConfig
	Log      LogConfig
	Cache    CacheConfig
	Storage  StorageConfig
	Drive    DriveConfig
	Forecast ForecastConfig
	Pipeline PipelineConfig
}

type ServerConfig struct {
	Port           string
	Mode           string
	ReadTimeout    int
	WriteTimeout   int
	AllowedOrigins []string
	MaxUploadMB    int64
}

type DatabaseConfig struct {
	Enabled  bool
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int64
}

type AppConfig struct {
	UploadDir string
	DataDir   string
}

type LogConfig struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

type CacheConfig struct {
	Enabled                   bool
	RedisURL                  string
	RedisHost                 string
	RedisPort                 string
	RedisPassword             string
	RedisDB                   int
	ProfileTTLSeconds         int
	RecommendationsTTLSeconds int
}

// StorageConfig points at an S3-compatible bucket for reports and exports.
type StorageConfig struct {
	Enabled      bool
	Endpoint     string
	AccessKey    string
	SecretKey    string
	Bucket       string
	Region       string
	UseSSL       bool
	ReportPrefix string
	ExportPrefix string
}

type DriveConfig struct {
	CredentialsJSON string
	FolderID        string
	FolderPath      string
	DownloadDir     string

	// PollMinutes > 0 watches the folder and forecasts new reports.
	PollMinutes int
}

// ForecastConfig holds the model and inventory policy settings.
type ForecastConfig struct {
	SeasonalPeriod        int
	SignificanceThreshold float64
	HorizonDays           int
	ReplenishmentDays     int
	StatisticalWeight     float64
	EventBaselineDays     int
	ClampNegative         bool
	ApplyEventUplift      bool
	MaxIterations         int
	MaxEvaluations        int
	RetryReducedOrder     bool
	EventsFile            string
	Trees                 int
	TreeDepth             int
	LearningRate          float64
}

type PipelineConfig struct {
	WorkerCount   int
	OutputDir     string
	BatchSize     int
	RetryAttempts int
}

var (
	once     sync.Once
	instance *Config
)

func Load() *Config {
	once.Do(func() {
		// Load .env file if it exists
		_ = godotenv.Load()

		setDefaults()

		// Read from environment variables
		viper.AutomaticEnv()

		// Ensure upload and data directories exist
		ensureDir(viper.GetString("APP_UPLOAD_DIR"))
		ensureDir(viper.GetString("APP_DATA_DIR"))

		instance = fromViper()
	})

	return instance
}

func setDefaults() {
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("SERVER_MODE", "debug")
	viper.SetDefault("SERVER_READ_TIMEOUT", 30)
	viper.SetDefault("SERVER_WRITE_TIMEOUT", 120)
	viper.SetDefault("SERVER_ALLOWED_ORIGINS", []string{"*"})
	viper.SetDefault("SERVER_MAX_UPLOAD_MB", 64)

	viper.SetDefault("DB_ENABLED", false)
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_USER", "postgres")
	viper.SetDefault("DB_PASSWORD", "postgres")
	viper.SetDefault("DB_NAME", "forecast")
	viper.SetDefault("DB_SSLMODE", "disable")
	viper.SetDefault("DB_MAX_CONNS", 10)

	viper.SetDefault("APP_UPLOAD_DIR", "./data/uploads")
	viper.SetDefault("APP_DATA_DIR", "./data/output")

	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("LOG_FILE", "")
	viper.SetDefault("LOG_MAX_SIZE_MB", 50)
	viper.SetDefault("LOG_MAX_BACKUPS", 3)
	viper.SetDefault("LOG_MAX_AGE_DAYS", 28)

	viper.SetDefault("CACHE_ENABLED", false)
	viper.SetDefault("REDIS_URL", "")
	viper.SetDefault("REDIS_HOST", "127.0.0.1")
	viper.SetDefault("REDIS_PORT", "6379")
	viper.SetDefault("REDIS_PASSWORD", "")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("CACHE_PROFILE_TTL_SECONDS", 86400)
	viper.SetDefault("CACHE_RECOMMENDATIONS_TTL_SECONDS", 60)

	viper.SetDefault("STORAGE_ENABLED", false)
	viper.SetDefault("STORAGE_ENDPOINT", "")
	viper.SetDefault("STORAGE_ACCESS_KEY", "")
	viper.SetDefault("STORAGE_SECRET_KEY", "")
	viper.SetDefault("STORAGE_BUCKET", "")
	viper.SetDefault("STORAGE_REGION", "us-east-1")
	viper.SetDefault("STORAGE_USE_SSL", true)
	viper.SetDefault("STORAGE_REPORT_PREFIX", "reports/")
	viper.SetDefault("STORAGE_EXPORT_PREFIX", "exports/")

	viper.SetDefault("GOOGLE_DRIVE_CREDENTIALS_JSON", "")
	viper.SetDefault("GOOGLE_DRIVE_FOLDER_ID", "")
	viper.SetDefault("GOOGLE_DRIVE_FOLDER_PATH", "")
	viper.SetDefault("GOOGLE_DRIVE_DOWNLOAD_DIR", "./data/drive")
	viper.SetDefault("GOOGLE_DRIVE_POLL_MINUTES", 0)

	viper.SetDefault("FORECAST_SEASONAL_PERIOD", 52)
	viper.SetDefault("FORECAST_SIGNIFICANCE_THRESHOLD", 0.05)
	viper.SetDefault("FORECAST_HORIZON_DAYS", 180)
	viper.SetDefault("FORECAST_REPLENISHMENT_DAYS", 120)
	viper.SetDefault("FORECAST_STATISTICAL_WEIGHT", 0.6)
	viper.SetDefault("FORECAST_EVENT_BASELINE_DAYS", 15)
	viper.SetDefault("FORECAST_CLAMP_NEGATIVE", true)
	viper.SetDefault("FORECAST_APPLY_EVENT_UPLIFT", false)
	viper.SetDefault("FORECAST_MAX_ITERATIONS", 2000)
	viper.SetDefault("FORECAST_MAX_EVALUATIONS", 10000)
	viper.SetDefault("FORECAST_RETRY_REDUCED_ORDER", true)
	viper.SetDefault("FORECAST_EVENTS_FILE", "")
	viper.SetDefault("FORECAST_TREES", 100)
	viper.SetDefault("FORECAST_TREE_DEPTH", 5)
	viper.SetDefault("FORECAST_LEARNING_RATE", 0.1)

	viper.SetDefault("PIPELINE_WORKER_COUNT", 4)
	viper.SetDefault("PIPELINE_OUTPUT_DIR", "./data/seeds/recommendations")
	viper.SetDefault("PIPELINE_BATCH_SIZE", 500)
	viper.SetDefault("PIPELINE_RETRY_ATTEMPTS", 2)
}

func fromViper() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           viper.GetString("SERVER_PORT"),
			Mode:           viper.GetString("SERVER_MODE"),
			ReadTimeout:    viper.GetInt("SERVER_READ_TIMEOUT"),
			WriteTimeout:   viper.GetInt("SERVER_WRITE_TIMEOUT"),
			AllowedOrigins: viper.GetStringSlice("SERVER_ALLOWED_ORIGINS"),
			MaxUploadMB:    viper.GetInt64("SERVER_MAX_UPLOAD_MB"),
		},
		Database: DatabaseConfig{
			Enabled:  viper.GetBool("DB_ENABLED"),
			Host:     viper.GetString("DB_HOST"),
			Port:     viper.GetString("DB_PORT"),
			User:     viper.GetString("DB_USER"),
			Password: viper.GetString("DB_PASSWORD"),
			DBName:   viper.GetString("DB_NAME"),
			SSLMode:  viper.GetString("DB_SSLMODE"),
			MaxConns: viper.GetInt64("DB_MAX_CONNS"),
		},
		App: AppConfig{
			UploadDir: viper.GetString("APP_UPLOAD_DIR"),
			DataDir:   viper.GetString("APP_DATA_DIR"),
		},
		Log: LogConfig{
			Level:      viper.GetString("LOG_LEVEL"),
			File:       viper.GetString("LOG_FILE"),
			MaxSizeMB:  viper.GetInt("LOG_MAX_SIZE_MB"),
			MaxBackups: viper.GetInt("LOG_MAX_BACKUPS"),
			MaxAgeDays: viper.GetInt("LOG_MAX_AGE_DAYS"),
		},
		Cache: CacheConfig{
			Enabled:                   viper.GetBool("CACHE_ENABLED"),
			RedisURL:                  viper.GetString("REDIS_URL"),
			RedisHost:                 viper.GetString("REDIS_HOST"),
			RedisPort:                 viper.GetString("REDIS_PORT"),
			RedisPassword:             viper.GetString("REDIS_PASSWORD"),
			RedisDB:                   viper.GetInt("REDIS_DB"),
			ProfileTTLSeconds:         viper.GetInt("CACHE_PROFILE_TTL_SECONDS"),
			RecommendationsTTLSeconds: viper.GetInt("CACHE_RECOMMENDATIONS_TTL_SECONDS"),
		},
		Storage: StorageConfig{
			Enabled:      viper.GetBool("STORAGE_ENABLED"),
			Endpoint:     viper.GetString("STORAGE_ENDPOINT"),
			AccessKey:    viper.GetString("STORAGE_ACCESS_KEY"),
			SecretKey:    viper.GetString("STORAGE_SECRET_KEY"),
			Bucket:       viper.GetString("STORAGE_BUCKET"),
			Region:       viper.GetString("STORAGE_REGION"),
			UseSSL:       viper.GetBool("STORAGE_USE_SSL"),
			ReportPrefix: viper.GetString("STORAGE_REPORT_PREFIX"),
			ExportPrefix: viper.GetString("STORAGE_EXPORT_PREFIX"),
		},
		Drive: DriveConfig{
			CredentialsJSON: viper.GetString("GOOGLE_DRIVE_CREDENTIALS_JSON"),
			FolderID:        viper.GetString("GOOGLE_DRIVE_FOLDER_ID"),
			FolderPath:      viper.GetString("GOOGLE_DRIVE_FOLDER_PATH"),
			DownloadDir:     viper.GetString("GOOGLE_DRIVE_DOWNLOAD_DIR"),
			PollMinutes:     viper.GetInt("GOOGLE_DRIVE_POLL_MINUTES"),
		},
		Forecast: ForecastConfig{
			SeasonalPeriod:        viper.GetInt("FORECAST_SEASONAL_PERIOD"),
			SignificanceThreshold: viper.GetFloat64("FORECAST_SIGNIFICANCE_THRESHOLD"),
			HorizonDays:           viper.GetInt("FORECAST_HORIZON_DAYS"),
			ReplenishmentDays:     viper.GetInt("FORECAST_REPLENISHMENT_DAYS"),
			StatisticalWeight:     viper.GetFloat64("FORECAST_STATISTICAL_WEIGHT"),
			EventBaselineDays:     viper.GetInt("FORECAST_EVENT_BASELINE_DAYS"),
			ClampNegative:         viper.GetBool("FORECAST_CLAMP_NEGATIVE"),
			ApplyEventUplift:      viper.GetBool("FORECAST_APPLY_EVENT_UPLIFT"),
			MaxIterations:         viper.GetInt("FORECAST_MAX_ITERATIONS"),
			MaxEvaluations:        viper.GetInt("FORECAST_MAX_EVALUATIONS"),
			RetryReducedOrder:     viper.GetBool("FORECAST_RETRY_REDUCED_ORDER"),
			EventsFile:            viper.GetString("FORECAST_EVENTS_FILE"),
			Trees:                 viper.GetInt("FORECAST_TREES"),
			TreeDepth:             viper.GetInt("FORECAST_TREE_DEPTH"),
			LearningRate:          viper.GetFloat64("FORECAST_LEARNING_RATE"),
		},
		Pipeline: PipelineConfig{
			WorkerCount:   viper.GetInt("PIPELINE_WORKER_COUNT"),
			OutputDir:     viper.GetString("PIPELINE_OUTPUT_DIR"),
			BatchSize:     viper.GetInt("PIPELINE_BATCH_SIZE"),
			RetryAttempts: viper.GetInt("PIPELINE_RETRY_ATTEMPTS"),
		},
	}
}

func ensureDir(dir string) {
	if dir == "" {
		return
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatalf("Failed to create directory %s: %v", dir, err)
		}
	}
}
