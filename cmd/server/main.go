package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/ironvault/btc-options-engine/internal/analyticscache"
	"github.com/ironvault/btc-options-engine/internal/api"
	"github.com/ironvault/btc-options-engine/internal/config"
	"github.com/ironvault/btc-options-engine/internal/contracts"
	"github.com/ironvault/btc-options-engine/internal/contracts/migrations"
	"github.com/ironvault/btc-options-engine/internal/iv"
	"github.com/ironvault/btc-options-engine/internal/metrics"
	"github.com/ironvault/btc-options-engine/internal/pool"
	"github.com/ironvault/btc-options-engine/internal/risk"
	"github.com/ironvault/btc-options-engine/internal/snapshot"
	"github.com/ironvault/btc-options-engine/internal/spot"
	"github.com/ironvault/btc-options-engine/internal/underwriting"
	"github.com/ironvault/btc-options-engine/pkg/middleware"
)

// init configures logging the way the teacher's cmd/server does: pretty
// console output outside production, JSON in production, level gated by
// DEBUG. Config isn't loaded yet at this point, so this reads the raw
// environment directly, exactly as the teacher does.
func init() {
	if os.Getenv("ENV") != "production" {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		zlog.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger := zlog.Logger

	db, err := gorm.Open(sqlite.Open(cfg.DatabasePath), &gorm.Config{})
	if err != nil {
		zlog.Fatal().Err(err).Msg("failed to open contract store")
	}

	if err := migrations.InitSchema(db); err != nil {
		zlog.Fatal().Err(err).Msg("failed to migrate contract store schema")
	}
	if err := migrations.MigrateLegacyFloatPremiums(db); err != nil {
		zlog.Fatal().Err(err).Msg("failed to migrate legacy float premiums")
	}

	store := contracts.NewStore(db)
	riskManager := risk.NewManager(cfg.CollateralRate, cfg.RiskMargin, cfg.RiskFreeRate, logger)

	spotSource := spot.New(cfg.AggregatorURL, logger)
	ivSource := iv.New(cfg.DeribitAPIURL, cfg.IvAPIURL, logger)
	poolURL := cfg.MutinyAPIURL
	if poolURL == "" {
		poolURL = pool.NetworkBaseURL(cfg.PoolNetwork)
	}
	poolSource := pool.New(poolURL, config.MustPoolAddress(cfg.PoolAddress), logger)

	// Startup probe, per §4.1: a failed first refresh is a
	// remediation-bearing hard error, and the process aborts.
	probeCtx, probeCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := spotSource.Probe(probeCtx); err != nil {
		probeCancel()
		zlog.Fatal().Err(err).Msg("spot aggregator unreachable at startup")
	}
	probeCancel()

	ivSource.StartRefresher()
	defer ivSource.Stop()

	fuser := snapshot.NewFuser(spotSource, ivSource, poolSource, cfg.RiskFreeRate, logger)
	gate := underwriting.NewGate(fuser, store, riskManager, logger)
	cache := analyticscache.New(cfg.RedisAddr, logger)
	defer cache.Close()

	handlers := api.NewHandlers(fuser, store, riskManager, gate, cache, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.AccessLog(logger))

	handlers.Register(router)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: metrics.InstrumentHandler(router),
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("listen")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Fatal().Err(err).Msg("server forced to shutdown")
	}

	zlog.Info().Msg("server exiting")
}
