package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Backend names accepted by LOCAL_STORE and REMOTE_STORE.
const (
	BackendMemory    = "memory"
	BackendRedis     = "redis"
	BackendSQLite    = "sqlite"
	BackendFirestore = "firestore"
	BackendPostgres  = "postgres"
)

type Config struct {
	Server       ServerConfig
	App          AppConfig
	Storage      StorageConfig
	Remote       RemoteConfig
	Connectivity ConnectivityConfig
	Sync         SyncConfig
	Catalogue    CatalogueConfig
}

type ServerConfig struct {
	Port        string
	CORSOrigins []string
}

type AppConfig struct {
	Environment string
	LogLevel    string
	Version     string
}

type StorageConfig struct {
	Backend       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SQLitePath    string
}

type RemoteConfig struct {
	Backend                 string
	DSN                     string
	FirebaseCredentialsPath string
	FirebaseProjectID       string
}

type ConnectivityConfig struct {
	ProbeURL      string
	ProbeInterval time.Duration
}

type SyncConfig struct {
	ReplayRPS      float64
	DispatchBuffer int
}

type CatalogueConfig struct {
	Path      string
	OromoPath string
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "8080"),
			CORSOrigins: getEnvAsList("CORS_ORIGINS", []string{"*"}),
		},
		App: AppConfig{
			Environment: getEnv("APP_ENV", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			Version:     getEnv("APP_VERSION", "1.0.0"),
		},
		Storage: StorageConfig{
			Backend:       strings.ToLower(getEnv("LOCAL_STORE", BackendMemory)),
			RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
			RedisDB:       getEnvAsInt("REDIS_DB", 0),
			SQLitePath:    getEnv("SQLITE_PATH", "mezmur.db"),
		},
		Remote: RemoteConfig{
			Backend:                 strings.ToLower(getEnv("REMOTE_STORE", BackendMemory)),
			DSN:                     postgresDSN(),
			FirebaseCredentialsPath: getEnv("FIREBASE_CREDENTIALS_PATH", ""),
			FirebaseProjectID:       getEnv("FIREBASE_PROJECT_ID", ""),
		},
		Connectivity: ConnectivityConfig{
			ProbeURL:      getEnv("PROBE_URL", ""),
			ProbeInterval: getEnvAsDuration("PROBE_INTERVAL", 30*time.Second),
		},
		Sync: SyncConfig{
			ReplayRPS:      getEnvAsFloat("QUEUE_REPLAY_RPS", 5),
			DispatchBuffer: getEnvAsInt("SYNC_DISPATCH_BUFFER", 64),
		},
		Catalogue: CatalogueConfig{
			Path:      getEnv("CATALOGUE_PATH", ""),
			OromoPath: getEnv("OROMO_CATALOGUE_PATH", ""),
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

	switch c.Storage.Backend {
	case BackendMemory, BackendRedis, BackendSQLite:
	default:
		return fmt.Errorf("LOCAL_STORE must be one of memory, redis, sqlite: got %q", c.Storage.Backend)
	}
	if c.Storage.Backend == BackendSQLite && c.Storage.SQLitePath == "" {
		return fmt.Errorf("SQLITE_PATH is required when LOCAL_STORE=sqlite")
	}

	switch c.Remote.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.Remote.DSN == "" {
			return fmt.Errorf("DB_DSN or DB_HOST is required when REMOTE_STORE=postgres")
		}
	case BackendFirestore:
		if c.Remote.FirebaseProjectID == "" {
			return fmt.Errorf("FIREBASE_PROJECT_ID is required when REMOTE_STORE=firestore")
		}
	default:
		return fmt.Errorf("REMOTE_STORE must be one of memory, postgres, firestore: got %q", c.Remote.Backend)
	}

	if c.Connectivity.ProbeInterval <= 0 {
		return fmt.Errorf("PROBE_INTERVAL must be positive")
	}
	return nil
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
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
	valueStr := os.Getenv(key)
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
	valueStr := os.Getenv(key)
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
	valueStr := os.Getenv(key)
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
