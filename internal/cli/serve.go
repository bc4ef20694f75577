package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"VammLedger/internal/config"
	"VammLedger/internal/core"
	"VammLedger/internal/errs"
	"VammLedger/internal/event"
	"VammLedger/internal/ingestion"
	"VammLedger/internal/observability"
	"VammLedger/internal/persistence"
	"VammLedger/internal/projection"
	"VammLedger/internal/query"
	"VammLedger/internal/server"
	"VammLedger/internal/storage"
	"VammLedger/internal/stream"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Recover state and run the ledger",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runServe(ctx, cfg)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// channels between the engine and its downstream workers
type pipes struct {
	persist    chan core.CoreOutput
	projection chan core.CoreOutput
	stream     chan core.CoreOutput
	durable    chan *event.EventEnvelope
	inbound    chan ingestion.RawEvent
}

func newPipes(c config.ChannelConfig) *pipes {
	return &pipes{
		persist:    make(chan core.CoreOutput, c.Persist),
		projection: make(chan core.CoreOutput, c.Projection),
		stream:     make(chan core.CoreOutput, c.Stream),
		durable:    make(chan *event.EventEnvelope, c.Publish),
		inbound:    make(chan ingestion.RawEvent, c.Inbound),
	}
}

func runServe(ctx context.Context, cfg *config.Config) error {
	log := observability.NewLoggerWithLevel("main", observability.ParseLevel(cfg.LogLevel))
	log.Info().Msg("vammledger starting")

	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
	health := observability.NewHealthChecker()

	// --- Postgres ---
	db, err := openDB(ctx, cfg.Postgres)
	if err != nil {
		return err
	}
	defer db.Close()
	log.Info().Msg("postgres connected")
	health.AddCheck("postgres", func(ctx context.Context) error { return db.PingContext(ctx) })

	if err := persistence.NewMigrator(db, cfg.MigrationsDir).Up(ctx); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	snapStore, closeStore, err := storage.Open(storage.Options{
		Backend:    cfg.Snapshot.Backend,
		PebblePath: cfg.Snapshot.PebblePath,
		Keep:       cfg.Snapshot.Keep,
		RedisAddr:  cfg.Snapshot.RedisAddr,
		RedisTTL:   cfg.Snapshot.RedisTTL,
	}, db)
	if err != nil {
		return fmt.Errorf("open snapshot store: %w", err)
	}
	defer closeStore()
	eventLog := persistence.NewSnapshotManager(db)

	// --- NATS ---
	var (
		nc      *nats.Conn
		js      jetstream.JetStream
		custody core.CollateralTransfer
	)
	if cfg.NATS.Enabled {
		if nc, js, err = ingestion.ConnectNATS(cfg.NATS.URL); err != nil {
			return err
		}
		defer nc.Close()
		log.Info().Str("url", cfg.NATS.URL).Msg("NATS connected")
		health.AddCheck("nats", func(context.Context) error {
			if !nc.IsConnected() {
				return fmt.Errorf("nats %s", nc.Status())
			}
			return nil
		})
		if cfg.NATS.Custody {
			custody = ingestion.NewNATSCustody(nc, cfg.NATS.CustodyTimeout)
		}
	}

	// --- Engine ---
	p := newPipes(cfg.Channels)
	engine, err := core.New(core.Config{
		IdempotencyCapacity: cfg.Engine.IdempotencyCapacity,
		FundingHistory:      cfg.Engine.FundingHistory,
		OracleMaxAge:        cfg.Engine.OracleMaxAge,
		GlobalCheckInterval: cfg.Engine.GlobalCheckInterval,
		Custody:             custody,
		DBChecker:           persistence.NewPostgresIdempotencyChecker(db, metrics),
		Metrics:             metrics,
		PersistChan:         p.persist,
		ProjectionChan:      p.projection,
		StreamChan:          p.stream,
	})
	if err != nil {
		return err
	}

	// --- Recovery ---
	rec, err := persistence.Recover(ctx, engine, snapStore, eventLog, metrics)
	if err != nil {
		return fmt.Errorf("recovery: %w", err)
	}
	if keys, err := eventLog.RecentIdempotencyKeys(ctx, cfg.Engine.WarmKeys); err != nil {
		log.Warn().Err(err).Msg("idempotency warm-up skipped")
	} else {
		engine.WarmLRU(keys)
	}
	health.SetSequence(rec.Sequence)

	// --- Downstream workers ---
	// They drain until their inputs close, so they run on a context that
	// outlives the ingest side.
	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()
	workers, workerCtx := errgroup.WithContext(workerCtx)

	persistWorker := persistence.NewPersistenceWorker(db, p.persist, cfg.Persistence.BatchSize, cfg.Persistence.FlushTimeout, metrics)
	if nc != nil && cfg.NATS.Publish {
		persistWorker.OnDurable(p.durable)
	}
	workers.Go(func() error {
		defer close(p.durable)
		return persistWorker.Run(workerCtx)
	})
	workers.Go(func() error {
		return projection.NewProjectionWorker(db, p.projection, metrics).Run(workerCtx)
	})
	hub := stream.NewHub(metrics)
	workers.Go(func() error { return hub.Run(workerCtx, p.stream) })

	if nc != nil && cfg.NATS.Publish {
		publisher := ingestion.NewOutboundPublisher(js, p.durable)
		workers.Go(func() error { return publisher.Run(workerCtx) })
	} else {
		workers.Go(func() error {
			for range p.durable {
			}
			return nil
		})
	}

	// genesis runs after the workers start so its outputs have a reader
	if err := applyGenesis(ctx, log, engine, cfg.MarketsFile); err != nil {
		shutdownWorkers(p, workers)
		return err
	}

	// --- Ingest side ---
	snapshotter := storage.NewSnapshotter(engine, snapStore, cfg.Snapshot.Interval, cfg.Snapshot.CheckInterval, metrics)
	srv := server.NewGRPCServer(cfg.Server.GRPCAddr, cfg.Server.HTTPAddr, &server.ServerDeps{
		Engine:        engine,
		QueryService:  query.NewQueryService(db, metrics),
		Snapshot:      snapshotter.TakeSnapshot,
		Stream:        hub,
		HealthChecker: health,
	})

	g, gctx := errgroup.WithContext(ctx)
	var stopConsumers []func()
	if nc != nil {
		if err := ingestion.EnsureStreams(gctx, js); err != nil {
			shutdownWorkers(p, workers)
			return fmt.Errorf("ensure NATS streams: %w", err)
		}
		sub := ingestion.NewNATSSubscriber(js, p.inbound)
		if err := sub.Subscribe(gctx, ingestion.DefaultSubjects()); err != nil {
			shutdownWorkers(p, workers)
			return fmt.Errorf("nats subscribe: %w", err)
		}
		stopConsumers = append(stopConsumers, sub.Stop)
		if cfg.NATS.Oracle {
			relay := ingestion.NewOracleRelay(js, p.inbound)
			if err := relay.Start(gctx); err != nil {
				shutdownWorkers(p, workers)
				return err
			}
			stopConsumers = append(stopConsumers, relay.Stop)
		}
		g.Go(func() error { return ingestion.NewDispatcher(engine, metrics).Run(gctx, p.inbound) })
	}

	g.Go(func() error { return srv.StartGRPC(gctx) })
	g.Go(func() error { return srv.StartHTTPGateway(gctx) })
	g.Go(func() error { return serveMetrics(gctx, cfg.Server.MetricsAddr) })
	g.Go(func() error { return snapshotter.Run(gctx) })
	g.Go(func() error {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				health.SetSequence(engine.GetSequence())
				metrics.SetChannelMetrics("persist", len(p.persist), cap(p.persist))
				metrics.SetChannelMetrics("projection", len(p.projection), cap(p.projection))
				metrics.SetChannelMetrics("stream", len(p.stream), cap(p.stream))
				metrics.SetChannelMetrics("inbound", len(p.inbound), cap(p.inbound))
			}
		}
	})

	health.SetReady(true)
	srv.SetServing(true)
	log.Info().
		Int64("sequence", engine.GetSequence()).
		Str("grpc", cfg.Server.GRPCAddr).
		Str("http", cfg.Server.HTTPAddr).
		Str("metrics", cfg.Server.MetricsAddr).
		Msg("vammledger ready")

	runErr := g.Wait()
	if errors.Is(runErr, context.Canceled) {
		runErr = nil
	}

	// --- Graceful shutdown ---
	health.SetReady(false)
	srv.SetServing(false)
	for _, stop := range stopConsumers {
		stop()
	}
	shutdownWorkers(p, workers)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if seq, err := snapshotter.TakeSnapshot(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("final snapshot failed")
	} else {
		log.Info().Int64("sequence", seq).Msg("final snapshot saved")
	}

	log.Info().Msg("vammledger shutdown complete")
	return runErr
}

// shutdownWorkers closes the engine outputs once nothing can commit, then
// waits for the workers to drain them.
func shutdownWorkers(p *pipes, workers *errgroup.Group) {
	close(p.persist)
	close(p.projection)
	close(p.stream)
	_ = workers.Wait()
}

func openDB(ctx context.Context, cfg config.PostgresConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres open: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return db, nil
}

// applyGenesis initializes the markets of the genesis file. Markets that
// already exist are left alone.
func applyGenesis(ctx context.Context, log zerolog.Logger, engine *core.Engine, path string) error {
	if path == "" {
		return nil
	}
	f, err := config.LoadMarkets(path)
	if err != nil {
		return err
	}
	cmds, err := f.Commands()
	if err != nil {
		return err
	}
	for _, c := range cmds {
		res, err := engine.Process(ctx, c)
		switch {
		case errs.CodeOf(err) == errs.CodeMarketAlreadyExists:
			continue
		case err != nil:
			return fmt.Errorf("genesis market %d: %w", c.Market, err)
		case !res.Duplicate:
			log.Info().Uint16("market_index", c.Market).Str("name", c.Name).Int64("sequence", res.Sequence).Msg("market initialized")
		}
	}
	return nil
}

func serveMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutCtx)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
