package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the portal backend.
type Config struct {
	AppName                string
	AppEnv                 string
	AppPort                string
	PublicURL              string
	DatabaseURL            string
	RedisURL               string
	NATSURL                string
	NotificationSubject    string
	JWTSecret              string
	JWTRefreshSecret       string
	AccessTokenTTL         time.Duration
	RefreshTokenTTL        time.Duration
	ResetTokenTTL          time.Duration
	CloudinaryCloudName    string
	CloudinaryAPIKey       string
	CloudinaryAPISecret    string
	CloudinaryUploadFolder string
	EnrollmentCacheTTL     time.Duration
	NoteMaxBytes           int
	UploadMaxBytes         int64
	LoginRateLimit         int
	SendGridAPIKey         string
	MailFromName           string
	MailFromAddress        string
	BootstrapAdminEmail    string
	BootstrapAdminPassword string
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("PORTAL")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "Classroom Portal")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("public_url", "http://localhost:5173")
	v.SetDefault("nats.subject", "portal.auth.notifications")
	v.SetDefault("jwt.access_ttl", "1h")
	v.SetDefault("jwt.refresh_ttl", "720h")
	v.SetDefault("jwt.reset_ttl", "30m")
	v.SetDefault("cloudinary.folder", "portal/resources")
	v.SetDefault("enrollment.cache_ttl", "5m")
	v.SetDefault("note_max_bytes", 256*1024)
	v.SetDefault("upload_max_bytes", 25*1024*1024)
	v.SetDefault("login_rate_limit", 10)
	v.SetDefault("mail.from_name", "Classroom Portal")

	accessTTL, err := parseDuration(v, "jwt.access_ttl", time.Hour)
	if err != nil {
		return Config{}, err
	}
	refreshTTL, err := parseDuration(v, "jwt.refresh_ttl", 30*24*time.Hour)
	if err != nil {
		return Config{}, err
	}
	resetTTL, err := parseDuration(v, "jwt.reset_ttl", 30*time.Minute)
	if err != nil {
		return Config{}, err
	}
	cacheTTL, err := parseDuration(v, "enrollment.cache_ttl", 5*time.Minute)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppName:                v.GetString("app.name"),
		AppEnv:                 v.GetString("app.env"),
		AppPort:                v.GetString("app.port"),
		PublicURL:              strings.TrimRight(v.GetString("public_url"), "/"),
		DatabaseURL:            v.GetString("database.url"),
		RedisURL:               v.GetString("redis.url"),
		NATSURL:                v.GetString("nats.url"),
		NotificationSubject:    v.GetString("nats.subject"),
		JWTSecret:              v.GetString("jwt.secret"),
		JWTRefreshSecret:       v.GetString("jwt.refresh_secret"),
		AccessTokenTTL:         accessTTL,
		RefreshTokenTTL:        refreshTTL,
		ResetTokenTTL:          resetTTL,
		CloudinaryCloudName:    v.GetString("cloudinary.cloud_name"),
		CloudinaryAPIKey:       v.GetString("cloudinary.api_key"),
		CloudinaryAPISecret:    v.GetString("cloudinary.api_secret"),
		CloudinaryUploadFolder: v.GetString("cloudinary.folder"),
		EnrollmentCacheTTL:     cacheTTL,
		NoteMaxBytes:           v.GetInt("note_max_bytes"),
		UploadMaxBytes:         v.GetInt64("upload_max_bytes"),
		LoginRateLimit:         v.GetInt("login_rate_limit"),
		SendGridAPIKey:         v.GetString("sendgrid.api_key"),
		MailFromName:           v.GetString("mail.from_name"),
		MailFromAddress:        v.GetString("mail.from_address"),
		BootstrapAdminEmail:    strings.ToLower(strings.TrimSpace(v.GetString("bootstrap.admin_email"))),
		BootstrapAdminPassword: v.GetString("bootstrap.admin_password"),
	}

	if cfg.JWTSecret == "" || cfg.JWTRefreshSecret == "" {
		return Config{}, fmt.Errorf("jwt secrets must be provided")
	}

	if cfg.NoteMaxBytes <= 0 {
		cfg.NoteMaxBytes = 256 * 1024
	}

	if cfg.UploadMaxBytes <= 0 {
		cfg.UploadMaxBytes = 25 * 1024 * 1024
	}

	return cfg, nil
}

func parseDuration(v *viper.Viper, key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return fallback, nil
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}

	return parsed, nil
}
