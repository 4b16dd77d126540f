package cache

import (
	"time"

	"github.com/bool64/ctxd"
	"github.com/bool64/stats"
	"github.com/caarlos0/env/v11"
)

// Config controls a cache instance.
type Config struct {
	// Name is cache instance name, used in stats and logging.
	Name string `env:"NAME"`

	// MaxEntries bounds the number of live entries, default 1000.
	MaxEntries int `env:"MAX_ENTRIES" envDefault:"1000"`

	// MaxMemoryBytes bounds the sum of entry sizes, default 100 MiB.
	MaxMemoryBytes int64 `env:"MAX_MEMORY_BYTES" envDefault:"104857600"`

	// DefaultTTL applies to writes without an explicit TTL, default 5m.
	DefaultTTL time.Duration `env:"DEFAULT_TTL" envDefault:"5m"`

	// SweepInterval is delay between two expired entry sweeps, default 30s.
	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"30s"`

	// PersistInterval is delay between two snapshot writes, default 1m.
	PersistInterval time.Duration `env:"PERSIST_INTERVAL" envDefault:"1m"`

	// PersistPath is a snapshot file location, empty disables persistence.
	PersistPath string `env:"PERSIST_PATH"`

	// Logger is an instance of contextualized logger, can be nil.
	Logger ctxd.Logger `env:"-"`

	// Stats is metrics collector, can be nil.
	Stats stats.Tracker `env:"-"`
}

// ConfigFromEnv populates Config from CACHE_-prefixed environment variables.
func ConfigFromEnv() (Config, error) {
	var c Config

	if err := env.ParseWithOptions(&c, env.Options{Prefix: "CACHE_"}); err != nil {
		return c, err
	}

	return c, nil
}

func (c *Config) applyDefaults() {
	if c.MaxEntries == 0 {
		c.MaxEntries = 1000
	}

	if c.MaxMemoryBytes == 0 {
		c.MaxMemoryBytes = 100 * 1024 * 1024
	}

	if c.DefaultTTL == 0 {
		c.DefaultTTL = 5 * time.Minute
	}

	if c.SweepInterval == 0 {
		c.SweepInterval = 30 * time.Second
	}

	if c.PersistInterval == 0 {
		c.PersistInterval = time.Minute
	}

	if c.Logger == nil {
		c.Logger = ctxd.NoOpLogger{}
	}

	if c.Stats == nil {
		c.Stats = stats.NoOp{}
	}
}
