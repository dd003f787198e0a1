package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/dmehra2102/Trust-Settlement-System/internal/authority/application"
	authbolt "github.com/dmehra2102/Trust-Settlement-System/internal/authority/infrastructure/bolt"
	authhttp "github.com/dmehra2102/Trust-Settlement-System/internal/authority/infrastructure/http"
	authpg "github.com/dmehra2102/Trust-Settlement-System/internal/authority/infrastructure/postgres"
	"github.com/dmehra2102/Trust-Settlement-System/pkg/admission"
	"github.com/dmehra2102/Trust-Settlement-System/pkg/config"
	"github.com/dmehra2102/Trust-Settlement-System/pkg/httpx"
	"github.com/dmehra2102/Trust-Settlement-System/pkg/identity"
	"github.com/dmehra2102/Trust-Settlement-System/pkg/logging"
	"github.com/dmehra2102/Trust-Settlement-System/pkg/shutdown"
	"github.com/dmehra2102/Trust-Settlement-System/pkg/tracing"
)

type Config struct {
	Log         config.Log         `mapstructure:"log"`
	HTTP        config.HTTP        `mapstructure:"http"`
	Tracing     config.Tracing     `mapstructure:"tracing"`
	RateLimiter config.RateLimiter `mapstructure:"rate_limiter"`
	Store       config.Store       `mapstructure:"store"`
	Postgres    config.Postgres    `mapstructure:"postgres"`
	Token       config.Token       `mapstructure:"token"`
}

func defaults() config.Defaults {
	return config.Merge(
		config.LogDefaults(),
		config.HTTPDefaults(":8081"),
		config.TracingDefaults(),
		config.RateLimiterDefaults(),
		config.StoreDefaults("postgres", "authority.db"),
		config.PostgresDefaults(),
		config.TokenDefaults(),
	)
}

func main() {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "authority-service",
		Short: "Issues and validates company API credentials",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var cfg Config
			if err := config.Load("AUTHORITY", cfgFile, defaults(), &cfg); err != nil {
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

type closer func()

func openRepository(ctx context.Context, log *slog.Logger, cfg Config) (application.CompanyRepository, closer, error) {
	switch cfg.Store.Driver {
	case "bolt":
		repo, err := authbolt.Open(cfg.Store.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open bolt store: %w", err)
		}
		log.Info("company store opened", "driver", "bolt", "path", cfg.Store.Path)
		return repo, func() { _ = repo.Close() }, nil
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("pg connect: %w", err)
		}
		repo := authpg.NewRepository(log, pool)
		if err := repo.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		log.Info("company store opened", "driver", "postgres")
		return repo, pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

func run(ctx context.Context, cfg Config) error {
	log := logging.New(cfg.Log.Level, cfg.Log.Format)

	tp, err := tracing.Init(ctx, "authority-service", cfg.Tracing.Endpoint, log)
	if err != nil {
		return fmt.Errorf("otel init: %w", err)
	}
	defer func() { _ = tp.Shutdown(context.Background()) }()

	repo, closeRepo, err := openRepository(ctx, log, cfg)
	if err != nil {
		return err
	}
	defer closeRepo()

	var tokens application.TokenIssuer
	if cfg.Token.SigningKey != "" {
		tokens = identity.NewIssuer(cfg.Token.SigningKey, cfg.Token.TTL)
	}
	svc := application.NewService(log, repo, tokens)
	handler := authhttp.NewHandler(log, svc)

	limiter := admission.New(cfg.RateLimiter, log)
	go limiter.Run(ctx)

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer)
	if cfg.Token.SigningKey != "" {
		r.Use(identity.Middleware(identity.NewVerifier(cfg.Token.SigningKey)))
	}
	r.Mount("/api", handler.Routes(limiter.Middleware))

	err = httpx.Serve(ctx, log, cfg.HTTP, r)
	log.Info("authority-service shutdown complete")
	return err
}
