package portal

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/noah-isme/classroom-portal/pkg/portal/backend"
	"github.com/noah-isme/classroom-portal/pkg/portal/tracker"
)

// Storage selects where progress and notes live.
type Storage string

const (
	StorageRemote Storage = "remote"
	StorageLocal  Storage = "local"
)

// Config holds the client settings.
type Config struct {
	BaseURL       string
	FunctionsURL  string
	Timeout       time.Duration
	Storage       Storage
	RedisURL      string
	SessionKey    string
	SessionTTL    time.Duration
	Descending    bool
	RollbackNotes bool
	NoteMaxBytes  int
	SearchLimit   int
}

// LoadConfig reads PORTAL_CLIENT_* variables and an optional .env file.
func LoadConfig() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("PORTAL_CLIENT")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("base_url", "http://localhost:8080")
	v.SetDefault("timeout", backend.DefaultTimeout.String())
	v.SetDefault("storage", string(StorageRemote))
	v.SetDefault("session.key", "portal:session")
	v.SetDefault("session.ttl", "720h")
	v.SetDefault("note_max_bytes", tracker.DefaultNoteMaxBytes)
	v.SetDefault("search_limit", 20)

	timeout, err := time.ParseDuration(strings.TrimSpace(v.GetString("timeout")))
	if err != nil {
		return Config{}, fmt.Errorf("invalid timeout: %w", err)
	}
	sessionTTL, err := time.ParseDuration(strings.TrimSpace(v.GetString("session.ttl")))
	if err != nil {
		return Config{}, fmt.Errorf("invalid session.ttl: %w", err)
	}

	cfg := Config{
		BaseURL:       strings.TrimRight(v.GetString("base_url"), "/"),
		FunctionsURL:  strings.TrimRight(v.GetString("functions_url"), "/"),
		Timeout:       timeout,
		Storage:       Storage(strings.ToLower(strings.TrimSpace(v.GetString("storage")))),
		RedisURL:      v.GetString("redis.url"),
		SessionKey:    v.GetString("session.key"),
		SessionTTL:    sessionTTL,
		Descending:    v.GetBool("descending"),
		RollbackNotes: v.GetBool("rollback_notes"),
		NoteMaxBytes:  v.GetInt("note_max_bytes"),
		SearchLimit:   v.GetInt("search_limit"),
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base url must be provided")
	}
	if c.FunctionsURL == "" {
		c.FunctionsURL = c.BaseURL + "/functions/v1"
	}
	switch c.Storage {
	case "":
		c.Storage = StorageRemote
	case StorageRemote, StorageLocal:
	default:
		return fmt.Errorf("unknown storage %q", c.Storage)
	}
	if c.Timeout <= 0 {
		c.Timeout = backend.DefaultTimeout
	}
	if c.NoteMaxBytes <= 0 {
		c.NoteMaxBytes = tracker.DefaultNoteMaxBytes
	}
	return nil
}
