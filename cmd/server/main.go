package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"conveyance/internal/ledger"
	"conveyance/internal/platform/config"
	"conveyance/internal/platform/httpserver"
	"conveyance/internal/platform/logger"
	"conveyance/internal/platform/redis"
	"conveyance/internal/rules"
	"conveyance/internal/signing"
	"conveyance/internal/titledata"
	"conveyance/internal/transport"
	"conveyance/internal/workflow"
	"conveyance/internal/workflow/handler"
	"conveyance/internal/workflow/metrics"
	id "conveyance/pkg/domain"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.FromEnv()
	log := logger.New()

	party, err := id.ParsePartyID(cfg.Party)
	if err != nil {
		return fmt.Errorf("configured party: %w", err)
	}

	keyring := signing.NewKeyring()
	validator := rules.New(keyring)

	signer, err := signing.NewSigner(party)
	if err != nil {
		return fmt.Errorf("node signer: %w", err)
	}
	keyring.Register(party, signer.Public())

	var (
		store  ledger.Store
		notary ledger.Notary
	)
	if cfg.PostgresDSN != "" {
		pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pool.Close()

		pg := ledger.NewPostgres(pool, validator, keyring)
		if err := pg.EnsureSchema(ctx); err != nil {
			return err
		}
		store, notary = pg, pg
		log.Info("ledger store", "backend", "postgres")
	} else {
		mem := ledger.NewMemory(validator, keyring)
		store, notary = mem, mem
		log.Info("ledger store", "backend", "memory")
	}

	var titles titledata.Client = titledata.NewHTTPClient(cfg.TitleAPIBaseURL,
		titledata.WithTimeout(cfg.TitleAPITimeout),
		titledata.WithHTTPLogger(log),
	)
	if redisClient, err := redis.New(cfg.Redis); err != nil {
		return fmt.Errorf("connect redis: %w", err)
	} else if redisClient != nil {
		defer redisClient.Close()
		titles = titledata.NewRedisCache(titles, redisClient, config.TitleCacheTTL, log)
		log.Info("title cache", "backend", "redis", "ttl", config.TitleCacheTTL)
	}

	var bus transport.Bus
	if len(cfg.KafkaBrokers) > 0 {
		kafkaBus, err := transport.NewKafkaBus(ctx, cfg.KafkaBrokers, "conveyance-"+party.String(), log)
		if err != nil {
			return fmt.Errorf("connect kafka: %w", err)
		}
		bus = kafkaBus
		log.Info("transport", "backend", "kafka", "brokers", cfg.KafkaBrokers)
	} else {
		bus = transport.NewMemoryBus()
		log.Info("transport", "backend", "memory")
	}
	defer bus.Close()

	triggerStore, cleanup, err := newTriggerStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	m := metrics.New(prometheus.DefaultRegisterer)

	sched := workflow.NewScheduler(triggerStore,
		workflow.WithSchedulerLogger(log),
		workflow.WithSchedulerMetrics(m),
	)

	svc := workflow.New(party, store, notary, titles, bus,
		workflow.WithLogger(log),
		workflow.WithMetrics(m),
		workflow.WithScheduler(sched),
	)
	svc.RegisterSigner(signer)
	sched.Bind(svc)

	bus.Subscribe(svc.HandleAnnouncement)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", handler.New(svc, handler.WithLogger(log)).Routes())
	srv := httpserver.New(cfg.Addr, mux)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", "addr", cfg.Addr, "party", party)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func newTriggerStore(ctx context.Context, cfg config.Config) (workflow.TriggerStore, func(), error) {
	dsn := cfg.ScheduleDSN
	if dsn == "" {
		dsn = cfg.PostgresDSN
	}
	if dsn == "" {
		return workflow.NewMemoryTriggerStore(), func() {}, nil
	}

	store, err := workflow.NewPostgresTriggerStore(dsn)
	if err != nil {
		return nil, nil, err
	}
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, nil, err
	}
	return store, func() { store.Close() }, nil
}
