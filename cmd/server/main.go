package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"gridreg/internal/content"
	"gridreg/internal/grid/cache"
	gridhandler "gridreg/internal/grid/handler"
	gridmetrics "gridreg/internal/grid/metrics"
	gridservice "gridreg/internal/grid/service"
	"gridreg/internal/grid/store/cell"
	"gridreg/internal/grid/store/member"
	"gridreg/internal/ledger"
	"gridreg/internal/outbox"
	"gridreg/internal/platform/config"
	"gridreg/internal/platform/httpserver"
	"gridreg/internal/platform/logger"
	"gridreg/internal/platform/metrics"
	"gridreg/internal/platform/postgres"
	"gridreg/internal/platform/redis"
	projecthandler "gridreg/internal/project/handler"
	"gridreg/internal/project/sequence"
	projectservice "gridreg/internal/project/service"
	projectstore "gridreg/internal/project/store"
	httptransport "gridreg/internal/transport/http"
	"gridreg/pkg/platform/circuit"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "gridreg: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	log := logger.New(cfg.LogLevel)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := postgres.Migrate(db, log); err != nil {
		return err
	}

	rc, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if rc != nil {
		defer rc.Close()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	txRunner := postgres.NewTxRunner(db,
		postgres.WithTxTimeout(cfg.Database.TxTimeout),
		postgres.WithLockTimeout(cfg.Database.LockTimeout),
	)
	events := outbox.NewPostgres(db)

	gridOpts := []gridservice.Option{
		gridservice.WithLogger(log),
		gridservice.WithMetrics(gridmetrics.New(reg)),
		gridservice.WithEvents(events),
	}
	if rc != nil {
		gridOpts = append(gridOpts, gridservice.WithCache(cache.NewRedis(rc.Client, cache.WithTTL(cfg.Redis.CacheTTL))))
	}
	grid := gridservice.New(cell.NewPostgres(db), member.NewPostgres(db), txRunner, gridOpts...)

	ipfs := content.NewIPFS(cfg.IPFS.APIURL,
		content.WithTimeout(cfg.IPFS.Timeout),
		content.WithBreaker(circuit.New("ipfs", circuit.WithLogger(log))),
	)
	projectOpts := []projectservice.Option{
		projectservice.WithLogger(log),
		projectservice.WithEvents(events),
		projectservice.WithIDPrefix(cfg.Project.IDPrefix),
	}
	if cfg.Ledger.URL != "" {
		projectOpts = append(projectOpts, projectservice.WithLedger(ledger.New(cfg.Ledger.URL,
			ledger.WithToken(cfg.Ledger.Token),
			ledger.WithTimeout(cfg.Ledger.Timeout),
			ledger.WithBreaker(circuit.New("ledger", circuit.WithLogger(log))),
		)))
	} else {
		log.Warn("ledger disabled, projects are registered without on-chain anchoring")
	}
	projects := projectservice.New(projectstore.NewPostgres(db), sequence.NewPostgres(db), ipfs, grid, txRunner, projectOpts...)

	checks := map[string]httptransport.HealthCheck{
		"postgres": db.PingContext,
	}
	if rc != nil {
		checks["redis"] = rc.Health
	}

	publisher, closePublisher, err := newPublisher(ctx, cfg.Kafka, log)
	if err != nil {
		return err
	}
	defer closePublisher()
	if k, ok := publisher.(*outbox.KafkaPublisher); ok {
		checks["kafka"] = k.Ping
	}
	if n, err := events.Pending(ctx); err == nil && n > 0 {
		log.Info("outbox has pending events", "count", n)
	}
	worker := outbox.NewWorker(events, publisher,
		outbox.WithInterval(cfg.Kafka.OutboxInterval),
		outbox.WithBatchSize(cfg.Kafka.OutboxBatch),
		outbox.WithLogger(log),
		outbox.WithMetrics(outbox.NewMetrics(reg)),
	)

	router := httptransport.NewRouter(httptransport.Deps{
		Logger:       log,
		Metrics:      metrics.New(reg),
		Gatherer:     reg,
		RateLimitRPS: cfg.Server.RateLimitRPS,
		Checks:       checks,
		Handlers: []httptransport.RouteRegistrar{
			projecthandler.New(projects, log),
			gridhandler.New(grid, log),
		},
	})
	srv := httpserver.New(cfg.Server.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting gridreg", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return worker.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		if _, err := worker.Drain(shutdownCtx); err != nil {
			log.Warn("final outbox drain failed", "error", err)
		}
		return nil
	})
	return g.Wait()
}

// newPublisher returns a Kafka publisher when brokers are configured and a
// logging publisher otherwise.
func newPublisher(ctx context.Context, cfg config.Kafka, log *slog.Logger) (outbox.Publisher, func(), error) {
	if len(cfg.Brokers) == 0 {
		log.Warn("kafka disabled, outbox events are logged")
		return outbox.NewLogPublisher(log), func() {}, nil
	}
	p, err := outbox.NewKafkaPublisher(cfg.Brokers, cfg.Topic)
	if err != nil {
		return nil, nil, err
	}
	if err := p.EnsureTopic(ctx, 3, 1); err != nil {
		p.Close()
		return nil, nil, fmt.Errorf("ensure topic %s: %w", cfg.Topic, err)
	}
	return p, p.Close, nil
}
