// Package quests parses quests command flags and launches the quests runtime.
package quests

import (
	"context"
	"flag"
	"fmt"
	"time"

	entrypoint "github.com/tandemhq/tandem/internal/platform/cmd"
	"github.com/tandemhq/tandem/internal/platform/timeouts"
	questsserver "github.com/tandemhq/tandem/internal/services/quests/app"
)

// Config holds quests command configuration.
type Config struct {
	Port           int           `env:"TANDEM_QUESTS_PORT" envDefault:"8093"`
	DBPath         string        `env:"TANDEM_QUESTS_DB_PATH" envDefault:"data/quests.db"`
	SweepInterval  time.Duration `env:"TANDEM_QUESTS_SWEEP_INTERVAL" envDefault:"1m"`
	SweepBatchSize int           `env:"TANDEM_QUESTS_SWEEP_BATCH_SIZE" envDefault:"500"`

	// Healthcheck switches the command into a one-shot probe of a running
	// server's health endpoint. Flag-only, for deploy probes.
	Healthcheck bool
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The quests health gRPC server port")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The quests SQLite database path")
	fs.DurationVar(&cfg.SweepInterval, "sweep-interval", cfg.SweepInterval, "Interval between expiration sweep passes")
	fs.IntVar(&cfg.SweepBatchSize, "sweep-batch-size", cfg.SweepBatchSize, "Maximum records expired per sweep batch")
	fs.BoolVar(&cfg.Healthcheck, "healthcheck", false, "Probe the running quests server health endpoint and exit")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Healthcheck probes a running quests server's health endpoint once.
func Healthcheck(ctx context.Context, cfg Config) error {
	return questsserver.WaitUntilReady(ctx, fmt.Sprintf("localhost:%d", cfg.Port), timeouts.GRPCDial)
}

// Run starts the quests runtime.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceQuests, func(context.Context) error {
		return questsserver.Run(ctx, questsserver.RuntimeConfig{
			Port:           cfg.Port,
			DBPath:         cfg.DBPath,
			SweepInterval:  cfg.SweepInterval,
			SweepBatchSize: cfg.SweepBatchSize,
		})
	})
}
