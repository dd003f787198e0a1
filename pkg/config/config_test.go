package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

type testConfig struct {
	Log         Log         `mapstructure:"log"`
	Broker      Broker      `mapstructure:"broker"`
	RateLimiter RateLimiter `mapstructure:"rate_limiter"`
}

func TestLoadDefaultsAndEnv(t *testing.T) {
	t.Setenv("TST_BROKER_RETRY_COUNT", "7")
	t.Setenv("TST_RATE_LIMITER_WINDOW", "30s")
	t.Setenv("TST_BROKER_BROKERS", "k1:9092,k2:9092")

	var cfg testConfig
	err := Load("TST", "", Merge(LogDefaults(), BrokerDefaults("payment.events", "order-service"), RateLimiterDefaults()), &cfg)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Log.Level != "info" {
		t.Errorf("log level = %q", cfg.Log.Level)
	}
	if cfg.Broker.RetryCount != 7 {
		t.Errorf("retry count = %d", cfg.Broker.RetryCount)
	}
	if cfg.Broker.DeadLetterTopic != "payment.events.dlq" {
		t.Errorf("dlq topic = %q", cfg.Broker.DeadLetterTopic)
	}
	if len(cfg.Broker.Brokers) != 2 || cfg.Broker.Brokers[1] != "k2:9092" {
		t.Errorf("brokers = %v", cfg.Broker.Brokers)
	}
	if cfg.RateLimiter.Window != 30*time.Second {
		t.Errorf("window = %v", cfg.RateLimiter.Window)
	}
	if cfg.RateLimiter.UnauthenticatedPermitLimit != 10 || cfg.RateLimiter.AnonymousKey != "anonymous" {
		t.Errorf("rate limiter defaults = %+v", cfg.RateLimiter)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	yaml := "log:\n  level: debug\nrate_limiter:\n  queue_limit: 0\n"
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	var cfg testConfig
	if err := Load("TSTFILE", path, Merge(LogDefaults(), RateLimiterDefaults()), &cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log level = %q", cfg.Log.Level)
	}
	if cfg.RateLimiter.QueueLimit != 0 {
		t.Errorf("queue limit = %d", cfg.RateLimiter.QueueLimit)
	}
	if cfg.RateLimiter.AuthenticatedPermitLimit != 100 {
		t.Errorf("authenticated limit = %d", cfg.RateLimiter.AuthenticatedPermitLimit)
	}
}

func TestLoadMissingFile(t *testing.T) {
	var cfg testConfig
	if err := Load("TST", "/nonexistent/cfg.yaml", LogDefaults(), &cfg); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestServiceSections(t *testing.T) {
	t.Setenv("SVC_LEDGER_GRPC_ADDR", "order:9090")
	t.Setenv("SVC_STORE_DRIVER", "memory")

	var cfg struct {
		Authority Authority `mapstructure:"authority"`
		Ledger    Ledger    `mapstructure:"ledger"`
		Store     Store     `mapstructure:"store"`
		Token     Token     `mapstructure:"token"`
	}
	err := Load("SVC", "", Merge(AuthorityDefaults(), LedgerDefaults(), StoreDefaults("postgres", ""), TokenDefaults()), &cfg)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Authority.CacheTTL != 5*time.Minute || cfg.Authority.RetryCount != 3 {
		t.Errorf("authority = %+v", cfg.Authority)
	}
	if cfg.Ledger.GRPCAddr != "order:9090" || cfg.Ledger.BreakerFailures != 5 {
		t.Errorf("ledger = %+v", cfg.Ledger)
	}
	if cfg.Store.Driver != "memory" {
		t.Errorf("store = %+v", cfg.Store)
	}
	if cfg.Token.TTL != 15*time.Minute {
		t.Errorf("token = %+v", cfg.Token)
	}
}
