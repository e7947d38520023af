package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

type Config struct {
	ListenPort      int
	IdleTimeout     time.Duration
	WriteTimeout    time.Duration
	MaxMessageBytes int

	SegmentSeparator  string
	ReceivingApp      string
	ReceivingFacility string

	StoreDriver  string
	DatabaseURL  string
	DBMaxConns   int
	DBMinConns   int
	StoreTimeout time.Duration

	WebPort       int
	DataDir       string
	PortalBaseURL string
	LogLevel      string
}

// Load reads .env (if present) and the environment. It does not validate.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ListenPort:        getEnvAsInt("MLLP_LISTEN_PORT", 2575),
		IdleTimeout:       getEnvAsDuration("MLLP_IDLE_TIMEOUT", 5*time.Minute),
		WriteTimeout:      getEnvAsDuration("MLLP_WRITE_TIMEOUT", 10*time.Second),
		MaxMessageBytes:   getEnvAsInt("MLLP_MAX_MESSAGE_BYTES", 1<<20),
		SegmentSeparator:  strings.ToLower(getEnv("HL7_SEGMENT_SEPARATOR", "cr")),
		ReceivingApp:      getEnv("HL7_RECEIVING_APP", "RIS-LISTENER"),
		ReceivingFacility: getEnv("HL7_RECEIVING_FACILITY", "PORTAL"),
		StoreDriver:       strings.ToLower(getEnv("STORE_DRIVER", DriverMemory)),
		DatabaseURL:       getEnv("DATABASE_URL", ""),
		DBMaxConns:        getEnvAsInt("DB_MAX_CONNS", 10),
		DBMinConns:        getEnvAsInt("DB_MIN_CONNS", 2),
		StoreTimeout:      getEnvAsDuration("STORE_TIMEOUT", 15*time.Second),
		WebPort:           getEnvAsInt("WEB_PORT", 5678),
		DataDir:           getEnv("DATA_DIR", "/data"),
		PortalBaseURL:     getEnv("PORTAL_BASE_URL", "https://portal.example.com"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
	}
	return cfg, nil
}

// Validate rejects settings the listener cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.ListenPort <= 0 || c.ListenPort > 65535 {
		errs = append(errs, fmt.Errorf("MLLP_LISTEN_PORT geçersiz: %d", c.ListenPort))
	}
	if c.WebPort <= 0 || c.WebPort > 65535 {
		errs = append(errs, fmt.Errorf("WEB_PORT geçersiz: %d", c.WebPort))
	}
	if c.IdleTimeout <= 0 {
		errs = append(errs, errors.New("MLLP_IDLE_TIMEOUT pozitif olmalı"))
	}
	if c.WriteTimeout <= 0 {
		errs = append(errs, errors.New("MLLP_WRITE_TIMEOUT pozitif olmalı"))
	}
	if c.StoreTimeout <= 0 {
		errs = append(errs, errors.New("STORE_TIMEOUT pozitif olmalı"))
	}
	if c.MaxMessageBytes <= 0 {
		errs = append(errs, errors.New("MLLP_MAX_MESSAGE_BYTES pozitif olmalı"))
	}
	if _, err := c.Separator(); err != nil {
		errs = append(errs, err)
	}
	switch c.StoreDriver {
	case DriverMemory:
	case DriverPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("STORE_DRIVER=postgres için DATABASE_URL gerekli"))
		}
		if c.DBMinConns > c.DBMaxConns {
			errs = append(errs, errors.New("DB_MIN_CONNS, DB_MAX_CONNS değerinden büyük olamaz"))
		}
	default:
		errs = append(errs, fmt.Errorf("bilinmeyen STORE_DRIVER: %q", c.StoreDriver))
	}
	return errors.Join(errs...)
}

// Separator returns the configured segment separator bytes.
func (c *Config) Separator() (string, error) {
	switch c.SegmentSeparator {
	case "cr", "":
		return "\r", nil
	case "lf":
		return "\n", nil
	}
	return "", fmt.Errorf("HL7_SEGMENT_SEPARATOR geçersiz: %q (cr veya lf)", c.SegmentSeparator)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		if secs, err := strconv.Atoi(value); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultValue
}

// SetupLogger installs the JSON slog handler as the default logger.
func SetupLogger(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, opts))
	slog.SetDefault(logger)
}
