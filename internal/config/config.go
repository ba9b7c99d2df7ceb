package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Duration is a time.Duration written as "10s" or "2m" in the config file.
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	if parsed < 0 {
		return fmt.Errorf("invalid duration %q: must not be negative", string(text))
	}
	*d = Duration(parsed)
	return nil
}

type Config struct {
	Addr          string   `toml:"addr"`
	DBPath        string   `toml:"db_path"`
	MigrationsDir string   `toml:"migrations_dir"`
	PairingSecret string   `toml:"pairing_secret"`
	JWTSecret     string   `toml:"jwt_secret"`
	TokenTTL      Duration `toml:"token_ttl"`
	CORSOrigins   []string `toml:"cors_origins"`
	SanctuaryURL  string   `toml:"sanctuary_url"`
	LogLevel      string   `toml:"log_level"`

	TickInterval      Duration `toml:"tick_interval"`
	RecomputeInterval Duration `toml:"recompute_interval"`
	RefreshInterval   Duration `toml:"refresh_interval"`
	GrantTTL          Duration `toml:"grant_ttl"`
	HistoryCap        int      `toml:"history_cap"`

	DesktopNotifications bool `toml:"desktop_notifications"`
}

func Default() Config {
	return Config{
		Addr:              "127.0.0.1:8787",
		DBPath:            "./data/flowbar.db",
		TokenTTL:          Duration(30 * 24 * time.Hour),
		CORSOrigins:       []string{"chrome-extension://*", "http://localhost:5173"},
		LogLevel:          "info",
		TickInterval:      Duration(10 * time.Second),
		RecomputeInterval: Duration(time.Second),
		RefreshInterval:   Duration(2 * time.Second),
		GrantTTL:          Duration(time.Minute),
		HistoryCap:        5000,
	}
}

// Load builds the config from defaults, then the TOML file named by
// FLOWBAR_CONFIG, then FLOWBAR_* environment variables.
func Load() (Config, error) {
	cfg := Default()

	if path := getEnv("FLOWBAR_CONFIG", ""); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := LoadBytes(&cfg, raw); err != nil {
			return cfg, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadBytes overlays TOML data onto cfg. Keys absent from data keep their
// current value.
func LoadBytes(cfg *Config, data []byte) error {
	return toml.Unmarshal(data, cfg)
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return fmt.Errorf("addr must not be empty")
	}
	if c.TickInterval.Std() < time.Second {
		return fmt.Errorf("tick_interval must be at least 1s, got %s", c.TickInterval.Std())
	}
	if c.RecomputeInterval.Std() <= 0 || c.RefreshInterval.Std() <= 0 || c.GrantTTL.Std() <= 0 {
		return fmt.Errorf("recompute_interval, refresh_interval and grant_ttl must be positive")
	}
	if c.HistoryCap <= 0 {
		return fmt.Errorf("history_cap must be positive, got %d", c.HistoryCap)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func applyEnv(cfg *Config) {
	cfg.Addr = getEnv("FLOWBAR_ADDR", cfg.Addr)
	cfg.DBPath = getEnv("FLOWBAR_DB_PATH", cfg.DBPath)
	cfg.MigrationsDir = getEnv("FLOWBAR_MIGRATIONS_DIR", cfg.MigrationsDir)
	cfg.PairingSecret = getEnv("FLOWBAR_PAIRING_SECRET", cfg.PairingSecret)
	cfg.JWTSecret = getEnv("FLOWBAR_JWT_SECRET", cfg.JWTSecret)
	cfg.TokenTTL = Duration(time.Duration(getEnvInt("FLOWBAR_TOKEN_TTL_HOURS", int(cfg.TokenTTL.Std()/time.Hour))) * time.Hour)
	cfg.CORSOrigins = getEnvList("FLOWBAR_CORS_ORIGINS", cfg.CORSOrigins)
	cfg.SanctuaryURL = getEnv("FLOWBAR_SANCTUARY_URL", cfg.SanctuaryURL)
	cfg.LogLevel = getEnv("FLOWBAR_LOG_LEVEL", cfg.LogLevel)
	cfg.TickInterval = getEnvDuration("FLOWBAR_TICK_INTERVAL", cfg.TickInterval)
	cfg.RecomputeInterval = getEnvDuration("FLOWBAR_RECOMPUTE_INTERVAL", cfg.RecomputeInterval)
	cfg.RefreshInterval = getEnvDuration("FLOWBAR_REFRESH_INTERVAL", cfg.RefreshInterval)
	cfg.GrantTTL = getEnvDuration("FLOWBAR_GRANT_TTL", cfg.GrantTTL)
	cfg.HistoryCap = getEnvInt("FLOWBAR_HISTORY_CAP", cfg.HistoryCap)
	cfg.DesktopNotifications = getEnvBool("FLOWBAR_DESKTOP_NOTIFICATIONS", cfg.DesktopNotifications)
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}

	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback Duration) Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}

	var parsed Duration
	if err := parsed.UnmarshalText([]byte(value)); err != nil {
		return fallback
	}
	return parsed
}

func getEnvList(key string, fallback []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}

	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	if len(items) == 0 {
		return fallback
	}
	return items
}
