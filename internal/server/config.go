package server

import (
	"fmt"

	"github.com/ulule/limiter/v3"
)

const (
	DefaultAddr      = "127.0.0.1:7425"
	DefaultRateLimit = "600-M"
	DefaultPageLimit = 500
)

type Config struct {
	HTTP HTTPConfig
	Sync SyncConfig
}

type HTTPConfig struct {
	Addr     string
	CertFile string
	KeyFile  string
}

type SyncConfig struct {
	// AuthToken guards the sync endpoints with a static bearer token.
	// Empty disables auth, the dev default.
	AuthToken string

	// RateLimit is a ulule/limiter formatted rate, e.g. "600-M".
	RateLimit string

	// PageLimit caps how many records one pull page returns.
	PageLimit int

	// EntityTypes restricts which types the server accepts. Empty
	// accepts any type.
	EntityTypes []string
}

// Validate fills defaults and rejects values the server cannot run with.
func (c *Config) Validate() error {
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = DefaultAddr
	}
	if c.Sync.RateLimit == "" {
		c.Sync.RateLimit = DefaultRateLimit
	}
	if _, err := limiter.NewRateFromFormatted(c.Sync.RateLimit); err != nil {
		return fmt.Errorf("invalid rate limit %q: %w", c.Sync.RateLimit, err)
	}
	if c.Sync.PageLimit <= 0 {
		c.Sync.PageLimit = DefaultPageLimit
	}
	return nil
}
