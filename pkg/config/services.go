package config

import "time"

// Authority is where dependent services validate API credentials.
type Authority struct {
	ValidateURL string        `mapstructure:"validate_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
	RetryCount  int           `mapstructure:"retry_count"`
	CacheTTL    time.Duration `mapstructure:"cache_ttl"`
	CacheMaxAge time.Duration `mapstructure:"cache_max_age"`
}

// Token configures the HS256 access tokens the authority issues. An empty
// signing key disables tokens.
type Token struct {
	SigningKey string        `mapstructure:"signing_key"`
	TTL        time.Duration `mapstructure:"ttl"`
}

// Store selects the persistence driver, e.g. postgres, bolt or memory.
type Store struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
}

type GRPC struct {
	Addr string `mapstructure:"addr"`
}

// Ledger is how the payment service reaches the order ledger. GRPCAddr wins
// when both are set.
type Ledger struct {
	BaseURL             string        `mapstructure:"base_url"`
	GRPCAddr            string        `mapstructure:"grpc_addr"`
	Timeout             time.Duration `mapstructure:"timeout"`
	BreakerFailures     uint32        `mapstructure:"breaker_failures"`
	BreakerOpenDuration time.Duration `mapstructure:"breaker_open_duration"`
}

func AuthorityDefaults() Defaults {
	return Defaults{
		"authority.validate_url":  "http://localhost:8081/api/companies/validate",
		"authority.timeout":       3 * time.Second,
		"authority.retry_count":   3,
		"authority.cache_ttl":     5 * time.Minute,
		"authority.cache_max_age": 15 * time.Minute,
	}
}

func TokenDefaults() Defaults {
	return Defaults{"token.signing_key": "", "token.ttl": 15 * time.Minute}
}

func StoreDefaults(driver, path string) Defaults {
	return Defaults{"store.driver": driver, "store.path": path}
}

func GRPCDefaults(addr string) Defaults {
	return Defaults{"grpc.addr": addr}
}

func LedgerDefaults() Defaults {
	return Defaults{
		"ledger.base_url":              "http://localhost:8080/api",
		"ledger.grpc_addr":             "",
		"ledger.timeout":               2 * time.Second,
		"ledger.breaker_failures":      5,
		"ledger.breaker_open_duration": 30 * time.Second,
	}
}
