// Package app wires the quests runtime: storage, the expiration sweeper
// loop, and the health gRPC server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	platformgrpc "github.com/tandemhq/tandem/internal/platform/grpc"
	"github.com/tandemhq/tandem/internal/services/quests/storage"
	questssqlite "github.com/tandemhq/tandem/internal/services/quests/storage/sqlite"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

// RuntimeConfig controls quests runtime startup and sweep loop behavior.
type RuntimeConfig struct {
	Port           int
	DBPath         string
	SweepInterval  time.Duration
	SweepBatchSize int
}

const (
	defaultQuestsPort = 8093
	defaultQuestsDB   = "data/quests.db"
)

// Run starts quests runtime dependencies and the background sweep loop.
func Run(ctx context.Context, cfg RuntimeConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg.Port <= 0 {
		cfg.Port = defaultQuestsPort
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		cfg.DBPath = defaultQuestsDB
	}

	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create quests storage dir: %w", err)
		}
	}

	questStore, err := questssqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open quests sqlite store: %w", err)
	}
	defer func() {
		if closeErr := questStore.Close(); closeErr != nil {
			log.Printf("close quests sqlite store: %v", closeErr)
		}
	}()

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return fmt.Errorf("listen on quests port %d: %w", cfg.Port, err)
	}
	defer listener.Close()

	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus("quests.runtime", grpc_health_v1.HealthCheckResponse_SERVING)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- grpcServer.Serve(listener)
	}()
	defer func() {
		healthServer.Shutdown()
		grpcServer.GracefulStop()
		<-serveErr
	}()

	sweeper := NewSweeper(questStore, SweeperConfig{
		Interval:  cfg.SweepInterval,
		BatchSize: cfg.SweepBatchSize,
	}, nil)

	log.Printf("quests server listening at %v", listener.Addr())
	if err := sweeper.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// WaitUntilReady dials a quests runtime's health endpoint and returns once
// it reports SERVING. Deploy probes use it through the -healthcheck flag.
func WaitUntilReady(ctx context.Context, addr string, dialTimeout time.Duration) error {
	conn, err := platformgrpc.DialWithHealth(
		ctx,
		nil,
		addr,
		dialTimeout,
		log.Printf,
		platformgrpc.DefaultClientDialOptions()...,
	)
	if err != nil {
		return fmt.Errorf("dial quests runtime: %w", err)
	}
	return conn.Close()
}

// SweeperConfig controls the expiration sweep loop.
type SweeperConfig struct {
	Interval  time.Duration
	BatchSize int
}

const (
	defaultSweepInterval  = time.Minute
	defaultSweepBatchSize = 500
)

func (c SweeperConfig) normalized() SweeperConfig {
	if c.Interval <= 0 {
		c.Interval = defaultSweepInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaultSweepBatchSize
	}
	return c
}

// DueSweeper expires overdue open records in bounded batches.
type DueSweeper interface {
	SweepDueRecords(ctx context.Context, asOf time.Time, limit int) (int, error)
}

// Sweeper periodically expires overdue quest windows across all
// relationships, so completion facts never fire for a window whose time
// has passed even when nobody reads that relationship's progress.
type Sweeper struct {
	store  DueSweeper
	cfg    SweeperConfig
	clock  func() time.Time
	tracer trace.Tracer
}

// NewSweeper builds the background sweep loop.
func NewSweeper(store DueSweeper, cfg SweeperConfig, clock func() time.Time) *Sweeper {
	if clock == nil {
		clock = time.Now
	}
	return &Sweeper{
		store:  store,
		cfg:    cfg.normalized(),
		clock:  clock,
		tracer: otel.Tracer("quests.sweeper"),
	}
}

// Run drives the sweep loop until the context ends. A sweep pass runs
// immediately on start and then once per interval.
func (s *Sweeper) Run(ctx context.Context) error {
	if s == nil || s.store == nil {
		return fmt.Errorf("sweeper store is required")
	}
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		if _, err := s.SweepDue(ctx); err != nil && !errors.Is(err, context.Canceled) {
			// A failed pass is retried on the next tick.
			log.Printf("quests sweep pass: %v", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// SweepDue drains all currently overdue records in batches and reports the
// total rows it expired.
func (s *Sweeper) SweepDue(ctx context.Context) (int, error) {
	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		swept, err := s.sweepBatch(ctx)
		if err != nil {
			if errors.Is(err, storage.ErrConflict) {
				// Lost a lock race; the remainder waits for the next pass.
				return total, nil
			}
			return total, err
		}
		total += swept
		if swept < s.cfg.BatchSize {
			return total, nil
		}
	}
}

func (s *Sweeper) sweepBatch(ctx context.Context) (int, error) {
	ctx, span := s.tracer.Start(ctx, "quests.sweep_due_records")
	defer span.End()

	swept, err := s.store.SweepDueRecords(ctx, s.clock().UTC(), s.cfg.BatchSize)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	span.SetAttributes(attribute.Int("quests.swept_records", swept))
	return swept, nil
}
