package app

import (
	"fmt"
	"strings"

	"sigrelay/internal/classifier"
	"sigrelay/internal/config"
	"sigrelay/internal/gateway"
	"sigrelay/internal/gateway/binance"
	"sigrelay/internal/gateway/mt5"
	"sigrelay/internal/hub"
	"sigrelay/internal/router"
	"sigrelay/internal/scheduler"
	"sigrelay/internal/source"
	"sigrelay/internal/source/scripted"
	"sigrelay/internal/source/telegram"
	"sigrelay/internal/store/sqlite"
	webhttp "sigrelay/internal/transport/http"
)

func build(cfg *config.Config) (*App, error) {
	settingsStore, err := sqlite.NewSettingsStore(cfg.Store.SettingsDB)
	if err != nil {
		return nil, fmt.Errorf("open settings store: %w", err)
	}

	src, err := buildSource(cfg.Source)
	if err != nil {
		settingsStore.Close()
		return nil, err
	}

	gw, err := buildGateway(cfg)
	if err != nil {
		settingsStore.Close()
		return nil, err
	}

	fastInterval, ok := scheduler.ParseIntervalDuration(cfg.Sweep.FastInterval)
	if !ok {
		settingsStore.Close()
		return nil, fmt.Errorf("invalid sweep fast_interval %q", cfg.Sweep.FastInterval)
	}
	slowInterval, ok := scheduler.ParseIntervalDuration(cfg.Sweep.SlowInterval)
	if !ok {
		settingsStore.Close()
		return nil, fmt.Errorf("invalid sweep slow_interval %q", cfg.Sweep.SlowInterval)
	}
	fastSweep := scheduler.NewIntervalScheduler("gateway-fast", fastInterval)
	fastSweep.RunImmediately = true
	slowSweep := scheduler.NewIntervalScheduler("gateway-slow", slowInterval)
	slowSweep.RunImmediately = true

	observers := hub.New()

	core, err := router.New(router.Deps{
		Source:     src,
		Classifier: classifier.NewOpenAIClassifier(cfg.Classifier),
		Gateway:    gw,
		Settings:   settingsStore,
		Observers:  observers,
		Sweeps:     []router.SweepControl{fastSweep, slowSweep},
		Trading:    cfg.Trading,
	})
	if err != nil {
		settingsStore.Close()
		return nil, err
	}
	observers.SetHandlers(core.ObserverJoined, core.ObserverLeft, core.ObserverCommand)

	httpServer, err := webhttp.NewServer(webhttp.ServerConfig{
		Addr: cfg.Server.Addr,
		Hub:  observers,
	})
	if err != nil {
		settingsStore.Close()
		return nil, err
	}

	return &App{
		cfg:       cfg,
		src:       src,
		router:    core,
		hub:       observers,
		http:      httpServer,
		store:     settingsStore,
		fastSweep: fastSweep,
		slowSweep: slowSweep,
	}, nil
}

func buildSource(cfg config.SourceConfig) (source.Source, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "telegram":
		return telegram.New(cfg), nil
	case "scripted":
		src := scripted.New()
		src.SetBacklogLimit(cfg.BacklogLimit)
		return src, nil
	default:
		return nil, fmt.Errorf("unsupported source provider: %s", cfg.Provider)
	}
}

func buildGateway(cfg *config.Config) (gateway.Gateway, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Gateway.Provider)) {
	case "", "mt5":
		return mt5.NewClient(cfg.Gateway.MT5)
	case "binance":
		return binance.New(cfg.Gateway.Binance, cfg.Sweep.QuoteSymbols), nil
	default:
		return nil, fmt.Errorf("unsupported gateway provider: %s", cfg.Gateway.Provider)
	}
}
