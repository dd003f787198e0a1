package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/dmehra2102/Trust-Settlement-System/internal/order/application"
	ordergrpc "github.com/dmehra2102/Trust-Settlement-System/internal/order/infrastructure/grpc"
	orderhttp "github.com/dmehra2102/Trust-Settlement-System/internal/order/infrastructure/http"
	orderkafka "github.com/dmehra2102/Trust-Settlement-System/internal/order/infrastructure/kafka"
	ordermem "github.com/dmehra2102/Trust-Settlement-System/internal/order/infrastructure/memory"
	orderpg "github.com/dmehra2102/Trust-Settlement-System/internal/order/infrastructure/postgres"
	"github.com/dmehra2102/Trust-Settlement-System/pkg/admission"
	"github.com/dmehra2102/Trust-Settlement-System/pkg/broker"
	"github.com/dmehra2102/Trust-Settlement-System/pkg/config"
	"github.com/dmehra2102/Trust-Settlement-System/pkg/credentials"
	"github.com/dmehra2102/Trust-Settlement-System/pkg/httpx"
	"github.com/dmehra2102/Trust-Settlement-System/pkg/identity"
	"github.com/dmehra2102/Trust-Settlement-System/pkg/idempotency"
	"github.com/dmehra2102/Trust-Settlement-System/pkg/logging"
	"github.com/dmehra2102/Trust-Settlement-System/pkg/shutdown"
	"github.com/dmehra2102/Trust-Settlement-System/pkg/tracing"
)

type Config struct {
	Log         config.Log         `mapstructure:"log"`
	HTTP        config.HTTP        `mapstructure:"http"`
	GRPC        config.GRPC        `mapstructure:"grpc"`
	Tracing     config.Tracing     `mapstructure:"tracing"`
	RateLimiter config.RateLimiter `mapstructure:"rate_limiter"`
	Store       config.Store       `mapstructure:"store"`
	Postgres    config.Postgres    `mapstructure:"postgres"`
	Redis       config.Redis       `mapstructure:"redis"`
	Broker      config.Broker      `mapstructure:"broker"`
	Authority   config.Authority   `mapstructure:"authority"`
	Token       config.Token       `mapstructure:"token"`
	DailyLimit  string             `mapstructure:"daily_limit"`
}

func defaults() config.Defaults {
	return config.Merge(
		config.LogDefaults(),
		config.HTTPDefaults(":8080"),
		config.GRPCDefaults(":9090"),
		config.TracingDefaults(),
		config.RateLimiterDefaults(),
		config.StoreDefaults("postgres", ""),
		config.PostgresDefaults(),
		config.RedisDefaults(),
		config.BrokerDefaults("payment.events", "order-service"),
		config.AuthorityDefaults(),
		config.TokenDefaults(),
		config.Defaults{"daily_limit": "10000"},
	)
}

func main() {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "order-service",
		Short: "Order ledger: orders, ownership checks and payment reconciliation",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var cfg Config
			if err := config.Load("ORDER", cfgFile, defaults(), &cfg); err != nil {
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

func openRepository(ctx context.Context, log *slog.Logger, cfg Config) (application.OrderRepository, func(), error) {
	switch cfg.Store.Driver {
	case "memory":
		log.Warn("orders kept in memory; data is lost on restart")
		return ordermem.NewRepository(), func() {}, nil
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("pg connect: %w", err)
		}
		repo := orderpg.NewRepository(log, pool)
		if err := repo.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		return repo, pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

func run(ctx context.Context, cfg Config) error {
	log := logging.New(cfg.Log.Level, cfg.Log.Format)

	dailyLimit, err := decimal.NewFromString(cfg.DailyLimit)
	if err != nil {
		return fmt.Errorf("daily_limit: %w", err)
	}

	tp, err := tracing.Init(ctx, "order-service", cfg.Tracing.Endpoint, log)
	if err != nil {
		return fmt.Errorf("otel init: %w", err)
	}
	defer func() { _ = tp.Shutdown(context.Background()) }()

	repo, closeRepo, err := openRepository(ctx, log, cfg)
	if err != nil {
		return err
	}
	defer closeRepo()

	validator := credentials.NewClient(log, credentials.OptionsFrom(cfg.Authority))
	validator.Start()
	defer validator.Stop()

	svc := application.NewService(log, repo, dailyLimit)
	reconciler := application.NewReconciler(log, repo)

	// Processed-event store is optional; order state checks alone keep
	// reconciliation idempotent.
	var processed orderkafka.ProcessedStore
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		processed = idempotency.NewStore(rdb, "order-reconciler", 24*time.Hour)
	}

	reader := broker.NewReader(cfg.Broker)
	dlq := broker.NewWriter(cfg.Broker)
	defer dlq.Close()
	consumer := orderkafka.NewConsumer(log, reader, dlq, reconciler, processed, orderkafka.OptionsFrom(cfg.Broker))

	limiter := admission.New(cfg.RateLimiter, log)

	gs, err := ordergrpc.Run(cfg.GRPC.Addr, ordergrpc.NewServer(log, svc),
		grpc.ChainUnaryInterceptor(limiter.UnaryServerInterceptor(ordergrpc.AdmissionKey)))
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	defer gs.GracefulStop()
	log.Info("grpc listening", "addr", cfg.GRPC.Addr)

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer)
	if cfg.Token.SigningKey != "" {
		r.Use(identity.Middleware(identity.NewVerifier(cfg.Token.SigningKey)))
	}
	r.Mount("/api", orderhttp.NewHandler(log, svc, validator).Routes(orderhttp.Guards{
		Default:   limiter.Middleware,
		Ownership: limiter.MiddlewareFunc(orderhttp.OwnershipKey),
	}))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		limiter.Run(gctx)
		return nil
	})
	g.Go(func() error {
		if err := consumer.Run(gctx); err != nil {
			return fmt.Errorf("reconciler consumer: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return httpx.Serve(gctx, log, cfg.HTTP, r)
	})

	err = g.Wait()
	log.Info("order-service shutdown complete")
	return err
}
