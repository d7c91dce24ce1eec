package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Username string
	Password string
	BaseURL  string

	// Optional override; defaults to the surname of the authenticated student.
	StudentSurname string

	ScanInterval time.Duration
	Retention    time.Duration
	StorageDir   string

	HTTPAddr  string
	LogLevel  string
	Env       string // dev|prod
	SentryDSN string

	BotToken string
	ChatID   int64

	Location *time.Location
}

func Load() (*Config, error) {
	tz := getenv("TZ", "Europe/Rome")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		loc = time.Local
	}

	scanMinutes, err := parsePositiveInt(getenv("SCAN_INTERVAL_MINUTES", "60"))
	if err != nil {
		return nil, fmt.Errorf("SCAN_INTERVAL_MINUTES: %w", err)
	}
	retentionDays, err := parsePositiveInt(getenv("RETENTION_DAYS", "60"))
	if err != nil {
		return nil, fmt.Errorf("RETENTION_DAYS: %w", err)
	}

	var chatID int64
	if v := os.Getenv("CHAT_ID"); v != "" {
		chatID, err = strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("CHAT_ID: %w", err)
		}
	}

	cfg := &Config{
		Username:       mustEnv("CV_USERNAME"),
		Password:       mustEnv("CV_PASSWORD"),
		BaseURL:        os.Getenv("CV_BASE_URL"),
		StudentSurname: os.Getenv("STUDENT_SURNAME"),
		ScanInterval:   time.Duration(scanMinutes) * time.Minute,
		Retention:      time.Duration(retentionDays) * 24 * time.Hour,
		StorageDir:     getenv("STORAGE_DIR", "./www"),
		HTTPAddr:       getenv("HTTP_ADDR", ":8080"),
		LogLevel:       getenv("LOG_LEVEL", "info"),
		Env:            getenv("ENV", "dev"),
		SentryDSN:      os.Getenv("SENTRY_DSN"),
		BotToken:       os.Getenv("BOT_TOKEN"),
		ChatID:         chatID,
		Location:       loc,
	}
	return cfg, nil
}

func mustEnv(k string) string {
	v := os.Getenv(k)
	if v == "" {
		panic("required env " + k + " is empty")
	}
	return v
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func parsePositiveInt(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("must be positive, got %d", n)
	}
	return n, nil
}
