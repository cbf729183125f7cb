package client

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/driftsync/driftsync"
	"github.com/driftsync/driftsync/internal/utils"
)

const DefaultSyncInterval = 30 * time.Second

var (
	home, _           = os.UserHomeDir()
	DefaultDataDir    = filepath.Join(home, ".driftsync")
	DefaultConfigPath = filepath.Join(home, ".driftsync", "config.json")
	DefaultServerURL  = "http://localhost:7425"
)

// Config is the host daemon configuration. Zero fields take defaults in
// Validate; the file on disk only needs the values that differ.
type Config struct {
	DataDir      string              `json:"data_dir"                mapstructure:"data_dir"`
	ServerURL    string              `json:"server_url"              mapstructure:"server_url"`
	Token        string              `json:"token,omitempty"         mapstructure:"token"`
	SyncInterval time.Duration       `json:"sync_interval,omitempty" mapstructure:"sync_interval"`
	Direction    driftsync.Direction `json:"direction,omitempty"     mapstructure:"direction"`
	Strategy     driftsync.Strategy  `json:"strategy,omitempty"      mapstructure:"strategy"`

	Path string `json:"-" mapstructure:"-"`
}

func (c *Config) Validate() error {
	if c.DataDir == "" {
		c.DataDir = DefaultDataDir
	}
	dataDir, err := utils.ResolvePath(c.DataDir)
	if err != nil {
		return fmt.Errorf("data dir %q: %w", c.DataDir, err)
	}
	c.DataDir = dataDir

	if c.ServerURL == "" {
		c.ServerURL = DefaultServerURL
	}
	if !strings.HasPrefix(c.ServerURL, "http://") && !strings.HasPrefix(c.ServerURL, "https://") {
		return fmt.Errorf("server url %q must be http or https", c.ServerURL)
	}

	if c.SyncInterval <= 0 {
		c.SyncInterval = DefaultSyncInterval
	}

	switch c.Direction {
	case "", driftsync.Upload, driftsync.Download, driftsync.Bidirectional:
	default:
		return fmt.Errorf("unknown direction %q", c.Direction)
	}

	switch c.Strategy {
	case "", driftsync.ServerWins, driftsync.LocalWins, driftsync.LastWriteWins, driftsync.Manual:
	default:
		return fmt.Errorf("unknown strategy %q", c.Strategy)
	}

	return nil
}

func (c *Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("data_dir", c.DataDir),
		slog.String("server_url", c.ServerURL),
		slog.String("token", utils.MaskSecret(c.Token)),
		slog.Duration("sync_interval", c.SyncInterval),
	)
}

// Save writes the config to path. 0600 because the file may carry the
// bearer token.
func (c *Config) Save(path string) error {
	if err := utils.EnsureParent(path); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.Path = path
	return &cfg, nil
}
