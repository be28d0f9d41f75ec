// Package config declares the server's command-line flags and collects them
// into a Config. Every flag can also be set through an ARENA_* variable.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"
)

const (
	DriverMemory   = "memory"
	DriverBolt     = "bolt"
	DriverPostgres = "postgres"
)

type Config struct {
	Port            int
	Env             string
	ShutdownTimeout time.Duration

	StoreDriver string
	BoltPath    string
	DatabaseURL string
	RedisURL    string
	CacheTTL    time.Duration

	KafkaBrokers string
	KafkaTopic   string

	// Genesis is the wall time of slot 0. It must stay fixed for the life of
	// a durable store, since deadlines are persisted as slot numbers.
	Genesis        time.Time
	SlotDuration   time.Duration
	KeeperInterval time.Duration

	// RegistryAuthority initializes the registry at startup when set and the
	// registry does not exist yet.
	RegistryAuthority string
}

// Flags returns the flags read by FromCommand.
func Flags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:    "port",
			Value:   8080,
			Sources: cli.EnvVars("ARENA_PORT", "PORT"),
		},
		&cli.StringFlag{
			Name:    "env",
			Value:   "production",
			Usage:   "deployment environment; local enables development logging",
			Sources: cli.EnvVars("ARENA_ENV"),
		},
		&cli.DurationFlag{
			Name:    "shutdown-timeout",
			Value:   5 * time.Second,
			Sources: cli.EnvVars("ARENA_SHUTDOWN_TIMEOUT"),
		},
		&cli.StringFlag{
			Name:    "store",
			Value:   DriverMemory,
			Usage:   "record store: memory, bolt or postgres",
			Sources: cli.EnvVars("ARENA_STORE"),
		},
		&cli.StringFlag{
			Name:    "bolt-path",
			Value:   "./data/escrow.db",
			Sources: cli.EnvVars("ARENA_BOLT_PATH"),
		},
		&cli.StringFlag{
			Name:    "database-url",
			Sources: cli.EnvVars("ARENA_DATABASE_URL", "DATABASE_URL"),
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "enables the read-through record cache",
			Sources: cli.EnvVars("ARENA_REDIS_URL", "REDIS_URL"),
		},
		&cli.DurationFlag{
			Name:    "cache-ttl",
			Value:   30 * time.Second,
			Sources: cli.EnvVars("ARENA_CACHE_TTL"),
		},
		&cli.StringFlag{
			Name:    "kafka-brokers",
			Usage:   "comma-separated brokers; enables event publishing",
			Sources: cli.EnvVars("ARENA_KAFKA_BROKERS"),
		},
		&cli.StringFlag{
			Name:    "kafka-topic",
			Value:   "escrow_events",
			Sources: cli.EnvVars("ARENA_KAFKA_TOPIC"),
		},
		&cli.Int64Flag{
			Name:    "genesis",
			Value:   0,
			Usage:   "unix time in seconds of slot 0; never change it for an existing store",
			Sources: cli.EnvVars("ARENA_GENESIS"),
		},
		&cli.DurationFlag{
			Name:    "slot-duration",
			Value:   time.Second,
			Usage:   "wall time per slot of the deadline counter",
			Sources: cli.EnvVars("ARENA_SLOT_DURATION"),
		},
		&cli.DurationFlag{
			Name:    "keeper-interval",
			Value:   5 * time.Second,
			Usage:   "deadline sweep period; 0 disables the keeper",
			Sources: cli.EnvVars("ARENA_KEEPER_INTERVAL"),
		},
		&cli.StringFlag{
			Name:    "registry-authority",
			Sources: cli.EnvVars("ARENA_REGISTRY_AUTHORITY"),
		},
	}
}

// FromCommand reads the flags declared by Flags.
func FromCommand(cmd *cli.Command) Config {
	return Config{
		Port:              cmd.Int("port"),
		Env:               cmd.String("env"),
		ShutdownTimeout:   cmd.Duration("shutdown-timeout"),
		StoreDriver:       cmd.String("store"),
		BoltPath:          cmd.String("bolt-path"),
		DatabaseURL:       cmd.String("database-url"),
		RedisURL:          cmd.String("redis-url"),
		CacheTTL:          cmd.Duration("cache-ttl"),
		KafkaBrokers:      cmd.String("kafka-brokers"),
		KafkaTopic:        cmd.String("kafka-topic"),
		Genesis:           time.Unix(cmd.Int64("genesis"), 0).UTC(),
		SlotDuration:      cmd.Duration("slot-duration"),
		KeeperInterval:    cmd.Duration("keeper-interval"),
		RegistryAuthority: cmd.String("registry-authority"),
	}
}

// Validate reports the first inconsistent setting.
func (c Config) Validate() error {
	switch c.StoreDriver {
	case DriverMemory:
	case DriverBolt:
		if c.BoltPath == "" {
			return errors.New("config: bolt store needs --bolt-path")
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return errors.New("config: postgres store needs --database-url")
		}
	default:
		return fmt.Errorf("config: unknown store %q", c.StoreDriver)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: port %d out of range", c.Port)
	}
	if c.Genesis.Before(time.Unix(0, 0)) {
		return errors.New("config: genesis must not be before the unix epoch")
	}
	if c.SlotDuration <= 0 {
		return errors.New("config: slot duration must be positive")
	}
	if c.KeeperInterval < 0 {
		return errors.New("config: keeper interval must not be negative")
	}
	return nil
}

// Addr is the HTTP listen address.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
