package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server      ServerConfig
	Store       StoreConfig
	OpenAI      OpenAIConfig
	VectorStore VectorStoreConfig
	Upload      UploadConfig
	Archive     ArchiveConfig
	Auth        AuthConfig
	App         AppConfig
}

type ServerConfig struct {
	Port            string
	CORSOrigins     []string
	ShutdownTimeout time.Duration
}

type StoreConfig struct {
	Backend   string
	Path      string
	DSN       string
	RedisAddr string
	RedisDB   int
	MaxConns  int
	MinConns  int
}

type OpenAIConfig struct {
	APIKey         string
	BaseURL        string
	Organization   string
	Project        string
	Model          string
	Instructions   string
	MaxNumResults  int
	RequestsPerSec float64
	Burst          int
}

type VectorStoreConfig struct {
	Name              string
	ExpiresAfterDays  int
	PollInterval      time.Duration
	IndexTimeout      time.Duration
	ReconcileSchedule string
}

type UploadConfig struct {
	Dir      string
	MaxBytes int64
}

type ArchiveConfig struct {
	S3Bucket   string
	S3Prefix   string
	S3Endpoint string
}

type AuthConfig struct {
	Mode                    string
	APIKey                  string
	FirebaseCredentialsPath string
	FirebaseProjectID       string
}

type AppConfig struct {
	Environment string
	LogLevel    string
	Version     string
}

// fileValues holds the optional YAML overlay. Keys are the same names as the
// environment variables.
var fileValues map[string]string

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	fileValues = nil
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		values, err := loadFile(path)
		if err != nil {
			return nil, err
		}
		fileValues = values
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", "8080"),
			CORSOrigins:     getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"*"}),
			ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Store: StoreConfig{
			Backend:   getEnv("STORE_BACKEND", "sqlite"),
			Path:      getEnv("STORE_PATH", "data/openfast.db"),
			DSN:       getEnv("STORE_DSN", ""),
			RedisAddr: getEnv("REDIS_ADDR", "localhost:6379"),
			RedisDB:   getEnvAsInt("REDIS_DB", 0),
			MaxConns:  getEnvAsInt("DB_MAX_CONNS", 10),
			MinConns:  getEnvAsInt("DB_MIN_CONNS", 2),
		},
		OpenAI: OpenAIConfig{
			APIKey:         getEnv("OPENAI_API_KEY", ""),
			BaseURL:        getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			Organization:   getEnv("OPENAI_ORGANIZATION", ""),
			Project:        getEnv("OPENAI_PROJECT", ""),
			Model:          getEnv("OPENAI_MODEL", "gpt-4o"),
			Instructions:   getEnv("RAG_INSTRUCTIONS", ""),
			MaxNumResults:  getEnvAsInt("MAX_NUM_RESULTS", 0),
			RequestsPerSec: getEnvAsFloat("OPENAI_RPS", 5),
			Burst:          getEnvAsInt("OPENAI_BURST", 10),
		},
		VectorStore: VectorStoreConfig{
			Name:              getEnv("VECTOR_STORE_NAME", "OpenFast-RAG-Store"),
			ExpiresAfterDays:  getEnvAsInt("VECTOR_STORE_EXPIRES_DAYS", 0),
			PollInterval:      getEnvAsDuration("POLL_INTERVAL", time.Second),
			IndexTimeout:      getEnvAsDuration("INDEX_TIMEOUT", 5*time.Minute),
			ReconcileSchedule: getEnvAllowEmpty("RECONCILE_SCHEDULE", "0 */15 * * * *"),
		},
		Upload: UploadConfig{
			Dir:      getEnv("UPLOAD_DIR", "data"),
			MaxBytes: int64(getEnvAsInt("MAX_UPLOAD_MB", 32)) << 20,
		},
		Archive: ArchiveConfig{
			S3Bucket:   getEnv("ARCHIVE_S3_BUCKET", ""),
			S3Prefix:   getEnv("ARCHIVE_S3_PREFIX", "uploads/"),
			S3Endpoint: getEnv("ARCHIVE_S3_ENDPOINT", ""),
		},
		Auth: AuthConfig{
			Mode:                    strings.ToLower(getEnv("AUTH_MODE", "none")),
			APIKey:                  getEnv("API_KEY", ""),
			FirebaseCredentialsPath: getEnv("FIREBASE_CREDENTIALS_PATH", ""),
			FirebaseProjectID:       getEnv("FIREBASE_PROJECT_ID", ""),
		},
		App: AppConfig{
			Environment: getEnv("APP_ENV", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			Version:     getEnv("APP_VERSION", "1.0.0"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("PORT is required")
	}

	if c.OpenAI.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required")
	}

	switch c.Store.Backend {
	case "sqlite", "bolt":
		if c.Store.Path == "" {
			return fmt.Errorf("STORE_PATH is required for %s store", c.Store.Backend)
		}
	case "postgres", "pgx":
		if c.Store.DSN == "" {
			return fmt.Errorf("STORE_DSN is required for %s store", c.Store.Backend)
		}
	case "redis":
		if c.Store.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required for redis store")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.Store.Backend)
	}

	switch c.Auth.Mode {
	case "none":
	case "apikey":
		if c.Auth.APIKey == "" {
			return fmt.Errorf("API_KEY is required when AUTH_MODE=apikey")
		}
	case "firebase":
		if c.Auth.FirebaseCredentialsPath == "" {
			return fmt.Errorf("FIREBASE_CREDENTIALS_PATH is required when AUTH_MODE=firebase")
		}
	default:
		return fmt.Errorf("unknown AUTH_MODE %q", c.Auth.Mode)
	}

	if c.VectorStore.Name == "" {
		return fmt.Errorf("VECTOR_STORE_NAME is required")
	}
	if c.VectorStore.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be positive")
	}

	return nil
}

func loadFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Printf("Warning: config file %s not found, ignoring", path)
			return nil, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}

	values := make(map[string]string, len(raw))
	for k, v := range raw {
		switch t := v.(type) {
		case nil:
			values[strings.ToUpper(k)] = ""
		case []any:
			parts := make([]string, 0, len(t))
			for _, p := range t {
				parts = append(parts, fmt.Sprint(p))
			}
			values[strings.ToUpper(k)] = strings.Join(parts, ",")
		default:
			values[strings.ToUpper(k)] = fmt.Sprint(t)
		}
	}
	return values, nil
}

// lookup resolves a key from the environment first, then the config file. An
// empty environment value counts as unset here.
func lookup(key string) (string, bool) {
	envValue, envSet := os.LookupEnv(key)
	if envSet && envValue != "" {
		return envValue, true
	}
	if value, ok := fileValues[key]; ok {
		return value, true
	}
	return envValue, envSet
}

func getEnv(key, defaultValue string) string {
	if value, ok := lookup(key); ok && value != "" {
		return value
	}
	return defaultValue
}

// getEnvAllowEmpty treats an explicitly empty value as a real setting. A set
// environment variable wins over the config file even when empty.
func getEnvAllowEmpty(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	if value, ok := lookup(key); ok {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Warning: Invalid integer for %s, using default: %d", key, defaultValue)
		return defaultValue
	}

	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		log.Printf("Warning: Invalid number for %s, using default: %g", key, defaultValue)
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		log.Printf("Warning: Invalid duration for %s, using default: %s", key, defaultValue)
		return defaultValue
	}

	return value
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
