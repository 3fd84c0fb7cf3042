package config

import (
	"os"
	"strings"
	"time"
)

// Config holds all configuration for the alert backend service
type Config struct {
	// Database configuration
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Server configuration
	Port           string
	AllowedOrigins []string

	// Media service configuration
	MediaUploadURL string
	MediaAPIKey    string
	MediaTimeout   time.Duration

	// Optional AMQP event mirror
	AMQPURL        string
	AMQPExchange   string
	AMQPRoutingKey string

	// Logging
	LogLevel string
}

// Load loads configuration from environment variables
func Load() *Config {
	return &Config{
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "server"),
		DBPassword: getEnv("DB_PASSWORD", "secret_app"),
		DBName:     getEnv("DB_NAME", "alarmas"),

		Port:           getEnv("PORT", "3004"),
		AllowedOrigins: getListEnv("ALLOWED_ORIGINS", []string{"*"}),

		MediaUploadURL: getEnv("MEDIA_UPLOAD_URL", "http://localhost:9090/upload"),
		MediaAPIKey:    getEnv("MEDIA_API_KEY", ""),
		MediaTimeout:   getDurationEnv("MEDIA_UPLOAD_TIMEOUT", 30*time.Second),

		AMQPURL:        getEnv("AMQP_URL", ""),
		AMQPExchange:   getEnv("AMQP_EXCHANGE", "alerts"),
		AMQPRoutingKey: getEnv("AMQP_ROUTING_KEY", "lifecycle"),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getDurationEnv gets a duration environment variable or returns a default value
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getListEnv gets a comma-separated environment variable or returns a default value
func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var items []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			items = append(items, part)
		}
	}
	if len(items) == 0 {
		return defaultValue
	}
	return items
}
