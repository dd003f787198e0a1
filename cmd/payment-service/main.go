package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dmehra2102/Trust-Settlement-System/internal/payment/application"
	paymenthttp "github.com/dmehra2102/Trust-Settlement-System/internal/payment/infrastructure/http"
	"github.com/dmehra2102/Trust-Settlement-System/internal/payment/infrastructure/ledger"
	paymentmem "github.com/dmehra2102/Trust-Settlement-System/internal/payment/infrastructure/memory"
	paymentpg "github.com/dmehra2102/Trust-Settlement-System/internal/payment/infrastructure/postgres"
	"github.com/dmehra2102/Trust-Settlement-System/internal/payment/infrastructure/processor"
	"github.com/dmehra2102/Trust-Settlement-System/pkg/admission"
	"github.com/dmehra2102/Trust-Settlement-System/pkg/broker"
	"github.com/dmehra2102/Trust-Settlement-System/pkg/config"
	"github.com/dmehra2102/Trust-Settlement-System/pkg/credentials"
	"github.com/dmehra2102/Trust-Settlement-System/pkg/httpx"
	"github.com/dmehra2102/Trust-Settlement-System/pkg/identity"
	"github.com/dmehra2102/Trust-Settlement-System/pkg/logging"
	"github.com/dmehra2102/Trust-Settlement-System/pkg/outbox"
	"github.com/dmehra2102/Trust-Settlement-System/pkg/shutdown"
	"github.com/dmehra2102/Trust-Settlement-System/pkg/tracing"
)

// Processors describes the routing table. With URLs set, each name maps to
// an HTTP processor at the same index; otherwise processors are simulated.
type Processors struct {
	Strategy            string        `mapstructure:"strategy"`
	Names               []string      `mapstructure:"names"`
	URLs                []string      `mapstructure:"urls"`
	Weights             []int         `mapstructure:"weights"`
	ApprovalRate        float64       `mapstructure:"approval_rate"`
	Latency             time.Duration `mapstructure:"latency"`
	Timeout             time.Duration `mapstructure:"timeout"`
	Retries             int           `mapstructure:"retries"`
	BreakerFailures     uint32        `mapstructure:"breaker_failures"`
	BreakerOpenDuration time.Duration `mapstructure:"breaker_open_duration"`
}

type Config struct {
	Log         config.Log         `mapstructure:"log"`
	HTTP        config.HTTP        `mapstructure:"http"`
	Tracing     config.Tracing     `mapstructure:"tracing"`
	RateLimiter config.RateLimiter `mapstructure:"rate_limiter"`
	Store       config.Store       `mapstructure:"store"`
	Postgres    config.Postgres    `mapstructure:"postgres"`
	Broker      config.Broker      `mapstructure:"broker"`
	Authority   config.Authority   `mapstructure:"authority"`
	Ledger      config.Ledger      `mapstructure:"ledger"`
	Token       config.Token       `mapstructure:"token"`
	Processors  Processors         `mapstructure:"processors"`
}

func defaults() config.Defaults {
	return config.Merge(
		config.LogDefaults(),
		config.HTTPDefaults(":8082"),
		config.TracingDefaults(),
		config.RateLimiterDefaults(),
		config.StoreDefaults("postgres", ""),
		config.PostgresDefaults(),
		config.BrokerDefaults("payment.events", "payment-service"),
		config.AuthorityDefaults(),
		config.LedgerDefaults(),
		config.TokenDefaults(),
		config.Defaults{
			"processors.strategy":              "parity",
			"processors.names":                 []string{"A", "B"},
			"processors.urls":                  []string{},
			"processors.weights":               []int{},
			"processors.approval_rate":         0.5,
			"processors.latency":               0,
			"processors.timeout":               5 * time.Second,
			"processors.retries":               2,
			"processors.breaker_failures":      5,
			"processors.breaker_open_duration": 30 * time.Second,
		},
	)
}

func main() {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "payment-service",
		Short: "Settles card payments for orders and publishes their outcome",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var cfg Config
			if err := config.Load("PAYMENT", cfgFile, defaults(), &cfg); err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
		SilenceUsage: true,
	}
	cmd.Flags().StringVar(&cfgFile, "config", "", "path to a YAML config file")

	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type storage struct {
	repo   application.PaymentRepository
	outbox outbox.Store
	close  func()
}

func openStorage(ctx context.Context, log *slog.Logger, cfg Config) (storage, error) {
	switch cfg.Store.Driver {
	case "memory":
		log.Warn("payments kept in memory; data is lost on restart")
		repo := paymentmem.NewRepository()
		return storage{repo: repo, outbox: repo, close: func() {}}, nil
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.Postgres.URL)
		if err != nil {
			return storage{}, fmt.Errorf("pg connect: %w", err)
		}
		repo := paymentpg.NewRepository(log, pool)
		if err := repo.Migrate(ctx); err != nil {
			pool.Close()
			return storage{}, fmt.Errorf("migrate: %w", err)
		}
		return storage{repo: repo, outbox: outbox.NewPGStore(pool), close: pool.Close}, nil
	default:
		return storage{}, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

func ownership(log *slog.Logger, cfg config.Ledger) (application.OrderOwnership, func(), error) {
	opts := ledger.BreakerOptions{ConsecutiveFailures: cfg.BreakerFailures, OpenFor: cfg.BreakerOpenDuration}
	if cfg.GRPCAddr != "" {
		conn, err := ledger.Dial(cfg.GRPCAddr)
		if err != nil {
			return nil, nil, fmt.Errorf("dial ledger: %w", err)
		}
		log.Info("ownership checks over grpc", "addr", cfg.GRPCAddr)
		return ledger.NewGRPCClient(log, conn, cfg.Timeout, opts), func() { _ = conn.Close() }, nil
	}
	log.Info("ownership checks over http", "base_url", cfg.BaseURL)
	return ledger.NewHTTPClient(log, cfg.BaseURL, cfg.Timeout, opts), func() {}, nil
}

func router(log *slog.Logger, cfg Processors) (*application.Router, error) {
	if len(cfg.URLs) > 0 && len(cfg.URLs) != len(cfg.Names) {
		return nil, fmt.Errorf("processors: %d urls for %d names", len(cfg.URLs), len(cfg.Names))
	}
	routes := make([]application.Route, 0, len(cfg.Names))
	for i, name := range cfg.Names {
		var p application.Processor
		if len(cfg.URLs) > 0 {
			p = processor.NewHTTP(cfg.URLs[i], &http.Client{})
		} else {
			p = processor.NewSimulated(log, name, cfg.ApprovalRate, cfg.Latency, uint64(time.Now().UnixNano())+uint64(i))
		}
		routes = append(routes, application.Route{
			Name:      name,
			Processor: processor.WithBreaker(log, name, p, cfg.BreakerFailures, cfg.BreakerOpenDuration),
		})
	}

	var strategy application.Strategy
	switch cfg.Strategy {
	case "parity", "":
		strategy = application.LastDigitParity
	case "weighted":
		strategy = application.WeightedHash(cfg.Weights...)
	default:
		return nil, fmt.Errorf("unknown routing strategy %q", cfg.Strategy)
	}
	return application.NewRouter(strategy, routes...)
}

func run(ctx context.Context, cfg Config) error {
	log := logging.New(cfg.Log.Level, cfg.Log.Format)

	tp, err := tracing.Init(ctx, "payment-service", cfg.Tracing.Endpoint, log)
	if err != nil {
		return fmt.Errorf("otel init: %w", err)
	}
	defer func() { _ = tp.Shutdown(context.Background()) }()

	store, err := openStorage(ctx, log, cfg)
	if err != nil {
		return err
	}
	defer store.close()

	owners, closeOwners, err := ownership(log, cfg.Ledger)
	if err != nil {
		return err
	}
	defer closeOwners()

	rt, err := router(log, cfg.Processors)
	if err != nil {
		return err
	}

	validator := credentials.NewClient(log, credentials.OptionsFrom(cfg.Authority))
	validator.Start()
	defer validator.Stop()

	svc := application.NewService(log, owners, rt, store.repo, application.Options{
		ProcessorTimeout:     cfg.Processors.Timeout,
		ProcessorRetries:     cfg.Processors.Retries,
		RetryInitialInterval: application.DefaultOptions().RetryInitialInterval,
		EventSource:          "payment-service",
	})

	writer := broker.NewWriter(cfg.Broker)
	defer writer.Close()
	dispatch := outbox.NewDispatcher(log, writer, cfg.Broker.Topic)
	relay := outbox.NewRelay(log, store.outbox, dispatch, "payment-service-relay", outbox.DefaultRelayOptions())

	limiter := admission.New(cfg.RateLimiter, log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer)
	if cfg.Token.SigningKey != "" {
		r.Use(identity.Middleware(identity.NewVerifier(cfg.Token.SigningKey)))
	}
	r.Use(limiter.Middleware)
	r.Mount("/api", paymenthttp.NewHandler(log, svc, validator).Routes())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		limiter.Run(gctx)
		return nil
	})
	g.Go(func() error {
		if err := relay.Run(gctx); err != nil {
			return fmt.Errorf("outbox relay: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return httpx.Serve(gctx, log, cfg.HTTP, r)
	})

	err = g.Wait()
	log.Info("payment-service shutdown complete")
	return err
}
