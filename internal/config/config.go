package config

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all environment-based configuration for cardsync.
type Config struct {
	// Base URL of the card API, e.g. https://cards.example.com.
	APIURL string `env:"CARDSYNC_API_URL"`

	// Bearer credential used to seed the local credential cache. When
	// empty, the credential previously stored in the state database is
	// used.
	APIToken string `env:"CARDSYNC_API_TOKEN"`

	// Path of the local bbolt database. Defaults to
	// ~/.cardsync/state.db.
	StatePath string `env:"CARDSYNC_STATE_PATH"`

	// Directory holding on-device card images. Defaults to
	// ~/.cardsync/assets.
	AssetDir string `env:"CARDSYNC_ASSET_DIR"`

	// How often the daemon runs a full sync pass.
	SyncInterval time.Duration `env:"CARDSYNC_SYNC_INTERVAL" envDefault:"5m"`

	// Trailing window for the post-edit push. Only cards modified
	// within this window are pushed by PushToServer.
	RecentWindow time.Duration `env:"CARDSYNC_RECENT_WINDOW" envDefault:"30s"`

	// Delay before the single retry of a cancelled request.
	CancelRetryDelay time.Duration `env:"CARDSYNC_CANCEL_RETRY_DELAY" envDefault:"500ms"`

	// Per-request HTTP timeout.
	HTTPTimeout time.Duration `env:"CARDSYNC_HTTP_TIMEOUT" envDefault:"30s"`

	// Watch AssetDir for changed images in daemon mode.
	WatchAssets bool `env:"CARDSYNC_WATCH_ASSETS" envDefault:"false"`

	// Environment controls log format
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
}

// warnInsecureEnvFile checks whether the .env file (if present) has
// overly permissive permissions. The file may carry the API token.
func warnInsecureEnvFile() {
	if runtime.GOOS == "windows" {
		return
	}

	info, err := os.Stat(".env")
	if err != nil {
		return // file does not exist, nothing to check
	}

	mode := info.Mode().Perm()
	if mode&0o077 != 0 {
		log.Printf("WARNING: .env file has insecure permissions %04o; recommended 0600", mode)
	}
}

// Load reads configuration from environment variables.
// It first attempts to load a .env file if present, then parses env vars.
func Load() (*Config, error) {
	_ = godotenv.Load()

	warnInsecureEnvFile()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	if cfg.StatePath == "" || cfg.AssetDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("determining home directory: %w", err)
		}

		if cfg.StatePath == "" {
			cfg.StatePath = filepath.Join(home, ".cardsync", "state.db")
		}

		if cfg.AssetDir == "" {
			cfg.AssetDir = filepath.Join(home, ".cardsync", "assets")
		}
	}

	absDir, err := filepath.Abs(cfg.AssetDir)
	if err != nil {
		return nil, fmt.Errorf("resolving asset dir to absolute path: %w", err)
	}

	cfg.AssetDir = absDir

	return cfg, nil
}

func (c *Config) validate() error {
	if c.APIURL == "" {
		return fmt.Errorf("CARDSYNC_API_URL is required")
	}

	u, err := url.Parse(c.APIURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("CARDSYNC_API_URL must be an absolute http(s) URL")
	}

	if c.SyncInterval <= 0 {
		return fmt.Errorf("CARDSYNC_SYNC_INTERVAL must be positive")
	}

	if c.RecentWindow <= 0 {
		return fmt.Errorf("CARDSYNC_RECENT_WINDOW must be positive")
	}

	if c.CancelRetryDelay < 0 {
		return fmt.Errorf("CARDSYNC_CANCEL_RETRY_DELAY must not be negative")
	}

	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("CARDSYNC_HTTP_TIMEOUT must be positive")
	}

	return nil
}

// IsProduction returns true when the environment is set to production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
