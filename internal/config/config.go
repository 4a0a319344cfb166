package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	App      AppConfig
	Feed     FeedConfig
	Poll     PollConfig
	Retry    RetryConfig
	Firebase FirebaseConfig
	DB       DBConfig
	Redis    RedisConfig
	JWT      JWTConfig
	CORS     CORSConfig
}

type AppConfig struct {
	Env  string
	Port string
}

type FeedConfig struct {
	URL     string
	Timeout time.Duration
	Window  time.Duration
}

type PollConfig struct {
	Interval     time.Duration
	StartupCheck bool
	Warmups      []time.Duration
	Maintenance  time.Duration
}

type RetryConfig struct {
	Attempts int
	Delay    time.Duration
}

type FirebaseConfig struct {
	CredentialsFile string
}

type DBConfig struct {
	Enabled  bool
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// DSN returns the PostgreSQL connection string
func (d DBConfig) DSN() string {
	return "host=" + d.Host +
		" user=" + d.User +
		" password=" + d.Password +
		" dbname=" + d.Name +
		" port=" + d.Port +
		" sslmode=" + d.SSLMode +
		" TimeZone=Asia/Bangkok"
}

// URL returns the PostgreSQL connection URL (for golang-migrate)
func (d DBConfig) URL() string {
	return "postgres://" + d.User + ":" + d.Password +
		"@" + d.Host + ":" + d.Port +
		"/" + d.Name + "?sslmode=" + d.SSLMode
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Password string
}

// Addr returns the Redis address
func (r RedisConfig) Addr() string {
	return r.Host + ":" + r.Port
}

type JWTConfig struct {
	Secret string
	Expiry time.Duration
}

type CORSConfig struct {
	Origins []string
}

// Load reads configuration from .env file and environment variables
func Load() *Config {
	// Load .env file (ignore error if not exists - e.g. in Docker)
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading from environment variables")
	}

	return &Config{
		App: AppConfig{
			Env:  getEnv("APP_ENV", "development"),
			Port: getEnv("APP_PORT", "3000"),
		},
		Feed: FeedConfig{
			URL:     getEnv("FEED_URL", "https://earthquake.usgs.gov/fdsnws/event/1/query"),
			Timeout: getDuration("FEED_TIMEOUT", 15*time.Second),
			Window:  getDuration("FEED_WINDOW", 30*time.Minute),
		},
		Poll: PollConfig{
			Interval:     getDuration("POLL_INTERVAL", time.Minute),
			StartupCheck: getBool("POLL_STARTUP_CHECK", true),
			Warmups:      getDurations("POLL_WARMUP", []time.Duration{2 * time.Minute, 4 * time.Minute}),
			Maintenance:  getDuration("MAINTENANCE_INTERVAL", 24*time.Hour),
		},
		Retry: RetryConfig{
			Attempts: getInt("RETRY_ATTEMPTS", 3),
			Delay:    getDuration("RETRY_DELAY", time.Second),
		},
		Firebase: FirebaseConfig{
			CredentialsFile: getEnv("FIREBASE_CREDENTIALS_FILE", ""),
		},
		DB: DBConfig{
			Enabled:  getBool("DB_ENABLED", false),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "quakealert"),
			Password: getEnv("DB_PASSWORD", "quakealert"),
			Name:     getEnv("DB_NAME", "quakealert"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Enabled:  getBool("REDIS_ENABLED", false),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
		},
		JWT: JWTConfig{
			Secret: getEnv("ADMIN_JWT_SECRET", "default-secret"),
			Expiry: getDuration("ADMIN_JWT_EXPIRY", 24*time.Hour),
		},
		CORS: CORSConfig{
			Origins: getList("CORS_ORIGINS", []string{"*"}),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(getEnv(key, ""))
	if err != nil {
		return fallback
	}
	return d
}

func getInt(key string, fallback int) int {
	n, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return fallback
	}
	return n
}

func getBool(key string, fallback bool) bool {
	b, err := strconv.ParseBool(getEnv(key, ""))
	if err != nil {
		return fallback
	}
	return b
}

// getList splits a comma separated value, trimming entries and dropping empty ones.
// An unset or blank value yields fallback.
func getList(key string, fallback []string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

// getDurations parses a comma separated list; an empty value disables the list
func getDurations(key string, fallback []time.Duration) []time.Duration {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var out []time.Duration
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		d, err := time.ParseDuration(part)
		if err != nil {
			log.Printf("⚠️  Ignoring invalid %s entry %q: %v", key, part, err)
			continue
		}
		out = append(out, d)
	}
	return out
}
