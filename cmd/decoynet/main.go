package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"decoynet/config"
	"decoynet/internal/adapt"
	"decoynet/internal/analyzer"
	"decoynet/internal/campaign"
	"decoynet/internal/input/tail"
	"decoynet/internal/logger"
	"decoynet/internal/metrics"
	"decoynet/internal/normalize"
	"decoynet/internal/oracle"
	"decoynet/internal/processor"
	"decoynet/internal/store"
	"decoynet/internal/watcher"
)

func findConfigFile(configArg string) string {
	if configArg != "" {
		if _, err := os.Stat(configArg); err == nil {
			return configArg
		}
		log.Printf("Warning: config file not found at %s, trying default locations", configArg)
	}

	if _, err := os.Stat("decoynet.yml"); err == nil {
		return "decoynet.yml"
	}

	exePath, err := os.Executable()
	if err == nil {
		path := filepath.Join(filepath.Dir(exePath), "decoynet.yml")
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return "decoynet.yml"
}

func applyDefaults(cfg *config.Config) {
	if cfg.Decoynet.Redis.Addr == "" {
		cfg.Decoynet.Redis.Addr = "127.0.0.1:6379"
	}
	if cfg.Decoynet.Redis.KeyPrefix == "" {
		cfg.Decoynet.Redis.KeyPrefix = "decoynet"
	}

	if cfg.Decoynet.Oracle.URL == "" {
		cfg.Decoynet.Oracle.URL = "http://127.0.0.1:8001"
	}
	if cfg.Decoynet.Oracle.Timeout <= 0 {
		cfg.Decoynet.Oracle.Timeout = config.Duration(10 * time.Second)
	}
	if cfg.Decoynet.Oracle.ProbeInterval <= 0 {
		cfg.Decoynet.Oracle.ProbeInterval = config.Duration(60 * time.Second)
	}
	if cfg.Decoynet.Oracle.ProbeTimeout <= 0 {
		cfg.Decoynet.Oracle.ProbeTimeout = config.Duration(5 * time.Second)
	}

	if cfg.Decoynet.Campaigns.Interval <= 0 {
		cfg.Decoynet.Campaigns.Interval = config.Duration(5 * time.Minute)
	}
	if cfg.Decoynet.Campaigns.Window <= 0 {
		cfg.Decoynet.Campaigns.Window = config.Duration(1 * time.Hour)
	}
	if cfg.Decoynet.Campaigns.MinIPs <= 0 {
		cfg.Decoynet.Campaigns.MinIPs = 3
	}

	if cfg.Decoynet.Adaptation.Cooldown <= 0 {
		cfg.Decoynet.Adaptation.Cooldown = config.Duration(300 * time.Second)
	}
	if cfg.Decoynet.Adaptation.RestartTimeout <= 0 {
		cfg.Decoynet.Adaptation.RestartTimeout = config.Duration(30 * time.Second)
	}

	if cfg.Decoynet.Metrics.Addr == "" {
		cfg.Decoynet.Metrics.Addr = ":9400"
	}
	if cfg.Decoynet.Logging.Level == "" {
		cfg.Decoynet.Logging.Level = "info"
	}
}

func main() {
	configArg := ""
	if len(os.Args) > 1 {
		configArg = os.Args[1]
	}
	configPath := findConfigFile(configArg)

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	applyDefaults(cfg)

	if err := logger.Init(cfg.Decoynet.Logging.Enabled, cfg.Decoynet.Logging.Level, cfg.Decoynet.Logging.File, cfg.Decoynet.Logging.Console); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	logger.Infof("decoynet starting")
	logger.Infof("Config loaded from: %s", configPath)

	db, err := store.NewRedisStore(store.Config{
		Addr:      cfg.Decoynet.Redis.Addr,
		Password:  cfg.Decoynet.Redis.Password,
		DB:        cfg.Decoynet.Redis.DB,
		KeyPrefix: cfg.Decoynet.Redis.KeyPrefix,
	})
	if err != nil {
		logger.Errorf("Failed to connect to redis: %v", err)
		log.Fatalf("Failed to connect to redis: %v", err)
	}
	defer db.Close()

	rules := analyzer.DefaultRuleSet()
	if path := cfg.Decoynet.Analyzer.RulesPath; path != "" {
		loaded, stats, err := analyzer.LoadRuleSet(path)
		if err != nil {
			logger.Errorf("Failed to load analyzer rules from %s: %v", path, err)
			log.Fatalf("Failed to load analyzer rules: %v", err)
		}
		rules = loaded
		logger.Infof("Analyzer rules loaded: phases=%d patterns=%d dangerous=%d skipped_invalid=%d",
			stats.Phases, stats.Patterns, stats.DangerousLoaded, stats.SkippedInvalid)
	}
	cmdAnalyzer := analyzer.New(rules)

	oracleClient, err := oracle.NewClient(oracle.Config{
		URL:           cfg.Decoynet.Oracle.URL,
		Timeout:       cfg.Decoynet.Oracle.Timeout.Std(),
		ProbeInterval: cfg.Decoynet.Oracle.ProbeInterval.Std(),
		ProbeTimeout:  cfg.Decoynet.Oracle.ProbeTimeout.Std(),
	}, cmdAnalyzer)
	if err != nil {
		logger.Errorf("Failed to create oracle client: %v", err)
		log.Fatalf("Failed to create oracle client: %v", err)
	}

	engine := adapt.NewEngine(db, adapt.Config{
		Cooldown:       cfg.Decoynet.Adaptation.Cooldown.Std(),
		BannerConfig:   cfg.Decoynet.Adaptation.BannerConfig,
		HoneyfilesPath: cfg.Decoynet.Adaptation.HoneyfilesPath,
		RestartCommand: cfg.Decoynet.Adaptation.RestartCommand,
		RestartTimeout: cfg.Decoynet.Adaptation.RestartTimeout.Std(),
	})

	proc := processor.New(db, oracleClient, engine, processor.Config{
		AutoAdapt: cfg.Decoynet.Adaptation.Enabled,
	})
	norm := normalize.New()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		oracleClient.Run(ctx)
	}()

	sources := []struct {
		kind normalize.Source
		cfg  config.SourceConfig
	}{
		{normalize.SourceShell, cfg.Decoynet.Sources.Shell},
		{normalize.SourceHTTP, cfg.Decoynet.Sources.HTTP},
		{normalize.SourceFTP, cfg.Decoynet.Sources.FTP},
	}
	started := 0
	for _, src := range sources {
		if !src.cfg.Enabled || src.cfg.Path == "" {
			logger.Infof("Source %s disabled", src.kind)
			continue
		}
		w := watcher.New(src.kind, tail.NewTailer(tail.Config{
			Path:         src.cfg.Path,
			PollInterval: src.cfg.PollInterval.Std(),
		}), norm, proc)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := w.Run(ctx); err != nil && err != context.Canceled {
				logger.Errorf("Watcher stopped with error: %v", err)
			}
		}()
		started++
	}
	logger.Infof("Ingestion watchers started (%d/%d sources)", started, len(sources))

	if cfg.Decoynet.Campaigns.Enabled {
		detector := campaign.NewDetector(db, campaign.Config{
			Interval: cfg.Decoynet.Campaigns.Interval.Std(),
			Window:   cfg.Decoynet.Campaigns.Window.Std(),
			Thresholds: campaign.Thresholds{
				MinIPs:           cfg.Decoynet.Campaigns.MinIPs,
				MinCommandHits:   cfg.Decoynet.Campaigns.MinCommandHit,
				MinBucketEvents:  cfg.Decoynet.Campaigns.MinBucketHit,
				MinNetworkEvents: cfg.Decoynet.Campaigns.MinNetworkHit,
			},
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			detector.Run(ctx)
		}()
		if active, err := db.ActiveCampaigns(ctx); err == nil && len(active) > 0 {
			logger.Infof("%d campaigns currently active", len(active))
		}
	}

	if cfg.Decoynet.Metrics.Enabled {
		go func() {
			logger.Infof("Metrics listening on %s", cfg.Decoynet.Metrics.Addr)
			if err := metrics.Serve(cfg.Decoynet.Metrics.Addr); err != nil {
				logger.Errorf("Metrics listener failed: %v", err)
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Infof("Shutting down")
	cancel()
	wg.Wait()
	logger.Infof("decoynet stopped")
}
