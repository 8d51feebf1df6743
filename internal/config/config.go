package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Gateway
	GatewayToken string

	// Discord
	DiscordBotToken string
	DiscordAPIBase  string
	VerifiedRole    string

	// SMTP
	SMTPHost     string
	SMTPPort     int
	SMTPFrom     string
	SMTPUsername string
	SMTPPassword string

	// OTP
	OTPTTL time.Duration

	// Reminder
	RemindHour int

	// Rate Limit
	RateLimitCommand int
	RateLimitVerify  int

	// Cleanup
	CleanupRetentionDays int

	// Server
	ServerPort string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.GatewayToken = os.Getenv("GATEWAY_TOKEN")
	if cfg.GatewayToken == "" {
		missing = append(missing, "GATEWAY_TOKEN")
	}

	cfg.DiscordBotToken = os.Getenv("DISCORD_BOT_TOKEN")
	if cfg.DiscordBotToken == "" {
		missing = append(missing, "DISCORD_BOT_TOKEN")
	}

	cfg.SMTPHost = os.Getenv("SMTP_HOST")
	if cfg.SMTPHost == "" {
		missing = append(missing, "SMTP_HOST")
	}

	cfg.SMTPFrom = os.Getenv("SMTP_FROM")
	if cfg.SMTPFrom == "" {
		missing = append(missing, "SMTP_FROM")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.DiscordAPIBase = getEnvString("DISCORD_API_BASE", "")
	cfg.VerifiedRole = getEnvString("VERIFIED_ROLE", "Member")
	cfg.SMTPPort = getEnvInt("SMTP_PORT", 587)
	cfg.SMTPUsername = getEnvString("SMTP_USERNAME", "")
	cfg.SMTPPassword = getEnvString("SMTP_PASSWORD", "")
	cfg.OTPTTL = getEnvDuration("OTP_TTL", 5*time.Minute)
	cfg.RemindHour = getEnvInt("REMIND_HOUR", 9)
	cfg.RateLimitCommand = getEnvInt("RATE_LIMIT_COMMAND", 60)
	cfg.RateLimitVerify = getEnvInt("RATE_LIMIT_VERIFY", 5)
	cfg.CleanupRetentionDays = getEnvInt("CLEANUP_RETENTION_DAYS", 30)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")

	if cfg.RemindHour < 0 || cfg.RemindHour > 23 {
		return nil, fmt.Errorf("REMIND_HOUR must be between 0 and 23, got %d", cfg.RemindHour)
	}

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
