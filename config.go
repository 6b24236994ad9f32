package main

import (
	"os"
	"strconv"
	"time"
)

// Config holds everything the bot reads from the environment.
type Config struct {
	BotToken     string // Required: Telegram bot token
	SuperAdminID int64  // Required: Telegram user ID with full visibility

	ProxyServerURL string // Base URL of the proxy-auth server

	ResellerAPIKey  string // Optional: reseller purchases disabled when empty
	ResellerBaseURL string

	BuyCount   int    // Default proxies per purchase
	BuyPeriod  int    // Default lease period in days
	BuyCountry string // ISO 3166-1 alpha-2
	BuyVersion int    // Reseller protocol/sharing tier

	ClientsFile string
	AdminsFile  string

	LogLevel   string // debug, info, warn, error
	MaxBodyLog int    // Max logged HTTP body bytes, 0 hides bodies

	Port       int           // Health endpoint port
	SessionTTL time.Duration // Idle multi-step flows are evicted after this
}

func LoadConfig() Config {
	return Config{
		BotToken:        os.Getenv("BOT_TOKEN"),
		SuperAdminID:    getEnvInt64OrDefault("SUPER_ADMIN_ID", 0),
		ProxyServerURL:  getEnvOrDefault("PROXY_SERVER_URL", "http://127.0.0.1:8080"),
		ResellerAPIKey:  os.Getenv("PROXY6_API_KEY"),
		ResellerBaseURL: getEnvOrDefault("PROXY6_BASE_URL", "https://proxy6.net/api"),
		BuyCount:        getEnvIntOrDefault("PROXY_BUY_COUNT", 20),
		BuyPeriod:       getEnvIntOrDefault("PROXY_BUY_PERIOD", 14),
		BuyCountry:      getEnvOrDefault("PROXY_BUY_COUNTRY", "ru"),
		BuyVersion:      getEnvIntOrDefault("PROXY_BUY_VERSION", 3),
		ClientsFile:     getEnvOrDefault("CLIENTS_FILE", "clients.json"),
		AdminsFile:      getEnvOrDefault("ADMINS_FILE", "admins.json"),
		LogLevel:        getEnvOrDefault("LOG_LEVEL", "info"),
		MaxBodyLog:      getEnvIntOrDefault("MAX_BODY_LOG", 500),
		Port:            getEnvIntOrDefault("PORT", 3000),
		SessionTTL:      getEnvDurationOrDefault("SESSION_TTL", 30*time.Minute),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}
	return defaultValue
}

func getEnvInt64OrDefault(key string, defaultValue int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
		return intValue
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	return defaultValue
}
