package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultMaxUploadBytes is the per-file size limit (16 MiB).
	DefaultMaxUploadBytes = 16 << 20
	// DefaultMaxBatchBytes bounds the whole multipart body.
	DefaultMaxBatchBytes = 8 * DefaultMaxUploadBytes
)

// Store drivers accepted by STORE_DRIVER.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// DefaultAllowedContentTypes is the intake allow-list when none is configured.
var DefaultAllowedContentTypes = []string{
	"image/png",
	"image/jpeg",
	"image/jpg",
	"image/tiff",
	"application/pdf",
}

// DatabaseConfig holds PostgreSQL database connection settings.
type DatabaseConfig struct {
	Host               string
	Port               string
	User               string
	Password           string
	Name               string
	SSLMode            string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetimeSec int
}

// SQLiteConfig holds settings for the embedded SQLite store.
type SQLiteConfig struct {
	Path string
}

// StoreConfig selects and configures the verification store.
type StoreConfig struct {
	Driver string
	SQLite SQLiteConfig
}

// MinIOConfig holds object storage settings for MinIO.
// Archiving of analyzed originals is enabled only when Endpoint is set.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Enabled reports whether originals should be archived.
func (c MinIOConfig) Enabled() bool {
	return c.Endpoint != ""
}

// AnalyzerConfig describes how to reach the analysis collaborator.
type AnalyzerConfig struct {
	BaseURL string
	Timeout time.Duration
	Workers int
	// RPS and Burst throttle outbound calls; RPS <= 0 disables throttling.
	RPS   float64
	Burst int
}

// IntakeConfig holds the upload validation rules.
type IntakeConfig struct {
	MaxUploadBytes      int64
	MaxBatchBytes       int64
	AllowedContentTypes []string
}

// AppConfig is the centralized configuration struct for the application.
// It is populated from environment variables. Sensitive values are not hardcoded.
type AppConfig struct {
	AppHost          string
	Port             string
	APIPrefix        string
	Timezone         string
	CORSAllowOrigins string
	Store            StoreConfig
	Database         DatabaseConfig
	MinIO            MinIOConfig
	Analyzer         AnalyzerConfig
	Intake           IntakeConfig
}

// Location resolves Timezone, falling back to UTC.
func (c *AppConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Load reads configuration from environment variables.
// A .env file can be auto-loaded by importing: _ "github.com/joho/godotenv/autoload"
// This function does not require a .env file; real environment variables take precedence.
func Load() *AppConfig {
	return &AppConfig{
		AppHost:          getEnv("APP_HOST", "localhost:8080"),
		Port:             getEnv("PORT", "8080"),
		APIPrefix:        getEnv("API_PREFIX", "/api"),
		Timezone:         getEnv("APP_TIMEZONE", "UTC"),
		CORSAllowOrigins: getEnv("CORS_ALLOW_ORIGINS", "*"),
		Store: StoreConfig{
			Driver: strings.ToLower(getEnv("STORE_DRIVER", DriverPostgres)),
			SQLite: SQLiteConfig{
				Path: getEnv("SQLITE_PATH", "documents.db"),
			},
		},
		Database: DatabaseConfig{
			Host:               getEnv("DB_HOST", ""),
			Port:               getEnv("DB_PORT", "5432"),
			User:               getEnv("DB_USER", ""),
			Password:           getEnv("DB_PASSWORD", ""),
			Name:               getEnv("DB_NAME", ""),
			SSLMode:            getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:       getEnvInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:       getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetimeSec: getEnvInt("DB_CONN_MAX_LIFETIME_SEC", 300),
		},
		MinIO: MinIOConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", ""),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			Bucket:    getEnv("MINIO_BUCKET", ""),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
		},
		Analyzer: AnalyzerConfig{
			BaseURL: getEnv("ANALYZER_URL", "http://localhost:5000"),
			Timeout: getEnvDuration("ANALYZER_TIMEOUT", 60*time.Second),
			Workers: getEnvInt("ANALYZER_WORKERS", 4),
			RPS:     getEnvFloat("ANALYZER_RPS", 0),
			Burst:   getEnvInt("ANALYZER_BURST", 1),
		},
		Intake: IntakeConfig{
			MaxUploadBytes:      int64(getEnvInt("MAX_UPLOAD_BYTES", DefaultMaxUploadBytes)),
			MaxBatchBytes:       int64(getEnvInt("MAX_BATCH_BYTES", DefaultMaxBatchBytes)),
			AllowedContentTypes: getEnvList("ALLOWED_CONTENT_TYPES", DefaultAllowedContentTypes),
		},
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err == nil {
			return f
		}
	}
	return def
}

// getEnvDuration accepts Go duration strings ("30s") or a plain number of seconds.
func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		if secs, err := strconv.Atoi(v); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return def
}

func getEnvList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
