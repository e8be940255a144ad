package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBDriver   string // postgres, sqlite
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	SQLitePath string

	JWTSecret  string
	TokenTTL   time.Duration
	ServerPort string
	LogMode    string // dev, prod
	CORSOrigin string
	// QuietStartup hides the Fiber banner.
	QuietStartup bool

	RedisAddr string
	CacheTTL  time.Duration

	SnapshotInterval time.Duration

	// Client side
	APIBaseURL     string
	SessionFile    string
	RequestTimeout time.Duration
}

func LoadConfig() (*Config, error) {
	err := godotenv.Load()
	if err != nil {
		log.Println("Error loading .env file, using environment variables")
	}

	return &Config{
		DBDriver:   strings.ToLower(getEnv("DB_DRIVER", "postgres")),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "postgres"),
		DBName:     getEnv("DB_NAME", "luminate"),
		SQLitePath: getEnv("SQLITE_PATH", "luminate.db"),

		JWTSecret:  getEnv("JWT_SECRET", "secret"),
		TokenTTL:   getDuration("TOKEN_TTL", 72*time.Hour),
		ServerPort: getEnv("SERVER_PORT", "8080"),
		LogMode:    getEnv("LOG_MODE", "dev"),
		CORSOrigin: getEnv("CORS_ORIGINS", "*"),

		QuietStartup: getBool("QUIET_STARTUP", false),

		RedisAddr: getEnv("REDIS_ADDR", ""),
		CacheTTL:  getDuration("CACHE_TTL", 5*time.Minute),

		SnapshotInterval: getDuration("SNAPSHOT_INTERVAL", time.Hour),

		APIBaseURL:     getEnv("LUMINATE_API_URL", "http://localhost:8080"),
		SessionFile:    getEnv("LUMINATE_SESSION_FILE", defaultSessionFile()),
		RequestTimeout: getDuration("LUMINATE_REQUEST_TIMEOUT", 10*time.Second),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	value := strings.TrimSpace(getEnv(key, ""))
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		log.Printf("Invalid bool for %s: %q, using %t", key, value, defaultValue)
		return defaultValue
	}
	return b
}

// getDuration accepts Go duration strings ("90s", "2h") or a bare number of seconds.
func getDuration(key string, defaultValue time.Duration) time.Duration {
	value := strings.TrimSpace(getEnv(key, ""))
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	log.Printf("Invalid duration for %s: %q, using %s", key, value, defaultValue)
	return defaultValue
}

func defaultSessionFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".luminate_session.json"
	}
	return filepath.Join(dir, "luminate", "session.json")
}
