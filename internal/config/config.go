// Package config loads process configuration the way the teacher's
// cmd/server/main.go reads os.Getenv inline, generalized into a typed
// struct decoded with envdecode — no pack repo actually imports envdecode
// (r3e-network-neo-miniapps-platform lists it in go.mod but reads
// os.Getenv directly like the teacher does), so this is an ecosystem-idiom
// choice for a config struct with many more keys than the teacher's two —
// after loading a .env file with godotenv, the same dotenv-first startup
// original_source/src/main.rs performs via the `dotenv` crate.
package config

import (
	"fmt"
	"os"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// Config holds every key enumerated in spec.md §6.
type Config struct {
	Port string `env:"PORT,default=8080"`
	Env  string `env:"ENV,default=development"`
	Debug bool  `env:"DEBUG,default=false"`

	PoolAddress string `env:"POOL_ADDRESS,required"`
	PoolNetwork string `env:"POOL_NETWORK,default=signet"`

	CollateralRate float64 `env:"COLLATERAL_RATE,default=0.5"`
	RiskMargin     float64 `env:"RISK_MARGIN,default=1.2"`
	RiskFreeRate   float64 `env:"RISK_FREE_RATE,default=0.05"`

	AggregatorURL  string `env:"AGGREGATOR_URL,default=http://localhost:50051"`
	IvAPIURL       string `env:"IV_API_URL,default=http://localhost:8081/iv"`
	DeribitAPIURL  string `env:"DERIBIT_API_URL,default=https://www.deribit.com/api/v2"`
	MutinyAPIURL   string `env:"MUTINY_API_URL,default="`

	DatabasePath string `env:"DATABASE_PATH,default=contracts.db"`
	RedisAddr    string `env:"REDIS_ADDR,default=localhost:6379"`
}

// Load reads .env (if present — its absence is not an error, mirroring
// dotenv().ok() in the original Rust binary) and decodes the environment
// into Config, applying the §6 defaults.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envdecode.StrictDecode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	return &cfg, nil
}

// IsProduction mirrors the teacher's `os.Getenv("ENV") != "production"`
// check used to pick console vs JSON logging.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// MustPoolAddress aborts the process with a remediation-bearing message
// if POOL_ADDRESS is unset — matching §6's "missing pool address" exit
// code requirement. envdecode's `required` tag already enforces this at
// Load() time; cmd/server calls this helper on the loaded address as a
// second guard.
func MustPoolAddress(addr string) string {
	if addr == "" {
		fmt.Fprintln(os.Stderr, "POOL_ADDRESS is required; set it to the address the underwriting pool's collateral is held in")
		os.Exit(1)
	}
	return addr
}
