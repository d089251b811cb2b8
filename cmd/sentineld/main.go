/**
 * Sentinel Daemon.
 *
 * Builds the explicit service container (REDESIGN FLAG: no globals)
 * and runs the packet-to-flow pipeline until SIGINT/SIGTERM: Config ->
 * EventBus -> Store (opens DB, runs migrations) -> DeviceRegistry ->
 * EnhancedIdentifier -> ThreatScorer -> FlowEngine -> retention
 * scheduler. Shutdown drains FlowEngine, then closes the Store.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kleaSCM/sentinel/internal/config"
	"github.com/kleaSCM/sentinel/internal/enricher"
	"github.com/kleaSCM/sentinel/internal/eventbus"
	"github.com/kleaSCM/sentinel/internal/flowengine"
	applog "github.com/kleaSCM/sentinel/internal/log"
	"github.com/kleaSCM/sentinel/internal/registry"
	"github.com/kleaSCM/sentinel/internal/retention"
	"github.com/kleaSCM/sentinel/internal/scorer"
	"github.com/kleaSCM/sentinel/internal/storage"
)

func main() {
	cfg := config.Defaults()

	flag.StringVar(&cfg.Interface, "interface", cfg.Interface, "network interface to capture on (default: platform default)")
	flag.StringVar(&cfg.DBPath, "db", cfg.DBPath, "sqlite database path")
	flag.StringVar(&cfg.BPFFilter, "bpf", cfg.BPFFilter, "BPF capture filter")
	flag.Float64Var(&cfg.SamplingRate, "sampling-rate", cfg.SamplingRate, "keep every ceil(1/rate)-th packet")
	flag.IntVar(&cfg.IdleTimeoutSeconds, "idle-timeout", cfg.IdleTimeoutSeconds, "seconds of inactivity before a flow is finalized")
	flag.IntVar(&cfg.DataRetentionDays, "retention-days", cfg.DataRetentionDays, "days of history to keep")
	flag.BoolVar(&cfg.SkipLocalTraffic, "skip-local", cfg.SkipLocalTraffic, "skip loopback/local traffic")
	flag.BoolVar(&cfg.Debug, "debug", cfg.Debug, "enable debug logging")
	geoCityDB := flag.String("geoip-city-db", "", "optional MaxMind GeoLite2 City database path")
	geoASNDB := flag.String("geoip-asn-db", "", "optional MaxMind GeoLite2 ASN database path")
	flag.Parse()

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "sentineld:", err)
		os.Exit(1)
	}

	logger, err := applog.New(cfg.Debug)
	if err != nil {
		fmt.Fprintln(os.Stderr, "sentineld: failed to build logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, *geoCityDB, *geoASNDB); err != nil {
		logger.Error("sentineld exited with error", zap.Error(err))
		os.Exit(1)
	}
}

// run wires the container in dependency order and blocks until ctx is
// canceled, then drains every component before returning.
func run(ctx context.Context, cfg *config.Config, logger *zap.Logger, geoCityDB, geoASNDB string) error {
	bus := eventbus.New(logger)

	store, err := storage.NewSQLiteStorage(ctx, cfg.DBPath, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	var resolver *enricher.DNSResolver
	if cfg.ReverseDNSEnable {
		resolver = enricher.NewDNSResolver(time.Duration(cfg.ReverseDNSTimeoutMs)*time.Millisecond, cfg.ReverseDNSRetries)
	}

	devices := registry.New(store, bus, resolver, logger)
	ident := enricher.NewEnhancedIdentifier(resolver)

	var geoIP *enricher.GeoIPService
	if geoCityDB != "" || geoASNDB != "" {
		geoIP, err = enricher.NewGeoIPService(geoCityDB, geoASNDB)
		if err != nil {
			logger.Warn("geoip database unavailable, continuing without geolocation", zap.Error(err))
			geoIP = nil
		}
	}

	threatScorer := scorer.New(store, bus, logger)

	engine, err := flowengine.New(cfg, flowengine.Deps{
		Store:   store,
		Bus:     bus,
		Devices: devices,
		Ident:   ident,
		GeoIP:   geoIP,
		Scorer:  threatScorer,
		Log:     logger,
	})
	if err != nil {
		return fmt.Errorf("build flow engine: %w", err)
	}

	retentionScheduler := retention.New(store, cfg.DataRetentionDays, logger)

	var wg sync.WaitGroup
	wg.Add(2)

	var engineErr error
	go func() {
		defer wg.Done()
		engineErr = engine.Start(ctx)
	}()
	go func() {
		defer wg.Done()
		retentionScheduler.Run(ctx)
	}()

	logger.Info("sentineld started",
		zap.String("interface", cfg.Interface),
		zap.String("db_path", cfg.DBPath),
		zap.String("bpf_filter", cfg.BPFFilter))

	<-ctx.Done()
	logger.Info("shutdown signal received, draining")
	engine.Stop()
	wg.Wait()

	return engineErr
}
