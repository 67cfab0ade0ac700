package main

import (
	"context"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"offline_sync_worker/internal/cachestore"
	"offline_sync_worker/internal/config"
	"offline_sync_worker/internal/connectivity"
	"offline_sync_worker/internal/events"
	"offline_sync_worker/internal/fetch"
	"offline_sync_worker/internal/lifecycle"
	"offline_sync_worker/internal/limits"
	"offline_sync_worker/internal/manifest"
	"offline_sync_worker/internal/notify"
	"offline_sync_worker/internal/obs"
	"offline_sync_worker/internal/queue"
	"offline_sync_worker/internal/refresher"
	"offline_sync_worker/internal/router"
	"offline_sync_worker/internal/server"
	"offline_sync_worker/internal/syncengine"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatalf("usage: %s <config.json>", os.Args[0])
	}
	data, err := os.ReadFile(os.Args[1])
	if err != nil {
		log.Fatalf("read config: %v", err)
	}
	cfg, err := config.ParseJSON(data)
	if err != nil {
		log.Fatalf("parse config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("validate config: %v", err)
	}
	origin, err := cfg.OriginURL()
	if err != nil {
		log.Fatalf("origin: %v", err)
	}
	limitConfig, err := limits.FromConfig(cfg.Limits)
	if err != nil {
		log.Fatalf("limits: %v", err)
	}
	assets, err := manifest.Load(cfg.ManifestPath)
	if err != nil {
		log.Fatalf("manifest: %v", err)
	}

	metrics := obs.NewMetrics()
	client := fetch.NewClient(fetch.Options{MaxBodyBytes: limitConfig.MaxBodyBytes})

	cacheStore, err := cachestore.OpenDiskStore(cfg.CacheDir(), cachestore.DefaultMaxObjectBytes)
	if err != nil {
		log.Fatalf("open cache store: %v", err)
	}
	queueStore, err := queue.OpenLevelStore(cfg.QueueDir, queue.LevelStoreOptions{
		Origin:      origin,
		MaxAttempts: cfg.ReplayAttempts(),
	})
	if err != nil {
		log.Fatalf("open queue store: %v", err)
	}
	if depth, err := queueStore.Depth(); err == nil {
		metrics.SetQueueDepth(depth)
	}

	manager, err := lifecycle.NewManager(lifecycle.ManagerOptions{
		Generation: cfg.GenerationName(),
		Origin:     origin,
		Assets:     assets,
		Cache:      cacheStore,
		Client:     client,
		Timeout:    cfg.FetchTimeout(),
		Metrics:    metrics,
	})
	if err != nil {
		log.Fatalf("lifecycle: %v", err)
	}

	dispatcher := events.NewDispatcher()
	scheduler := events.NewScheduler(dispatcher, cfg.RefreshInterval())

	hub := notify.NewHub(notify.HubOptions{
		Metrics: metrics,
		OnMessage: func(msg notify.Message) {
			if msg.Type == "skipWaiting" {
				_ = dispatcher.Dispatch(context.Background(), events.EventMessage)
			}
		},
	})

	engine := &syncengine.Engine{
		Queue:   queueStore,
		Client:  client,
		Timeout: cfg.ReplayTimeout(),
		Metrics: metrics,
	}
	refresh := &refresher.Refresher{
		Assets:      assets,
		Origin:      origin,
		Cache:       cacheStore,
		Client:      client,
		Generations: manager,
		Notifier:    hub,
		Timeout:     cfg.ReplayTimeout(),
		Metrics:     metrics,
	}

	dispatcher.Register(events.EventInstall, manager.Install)
	dispatcher.Register(events.EventActivate, manager.Activate)
	dispatcher.Register(events.EventSync, engine.Sync)
	dispatcher.Register(events.EventPeriodicSync, refresh.Refresh)
	dispatcher.Register(events.EventMessage, func(context.Context) error {
		manager.SkipWaiting()
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := dispatcher.Dispatch(ctx, events.EventInstall); err != nil {
		// A warm restart while the origin is down can still serve from the
		// already-populated generation; anything else is fatal.
		offlineKey := cachestore.Key(origin, &url.URL{Path: manifest.OfflinePage})
		if _, ok := cacheStore.Get(cfg.GenerationName(), offlineKey); !ok {
			log.Fatalf("install: %v", err)
		}
		log.Printf("install failed, serving previously populated generation: %v", err)
		manager.ForceWaiting()
	}
	if err := dispatcher.Dispatch(ctx, events.EventActivate); err != nil {
		log.Fatalf("activate: %v", err)
	}

	handler := &router.Handler{
		Origin:       origin,
		Cache:        cacheStore,
		Coalescer:    cachestore.NewCoalescer(cachestore.DefaultMaxFlights),
		Generations:  manager,
		Queue:        queueStore,
		Client:       client,
		Metrics:      metrics,
		FetchTimeout: cfg.FetchTimeout(),
		PassTimeout:  cfg.ReplayTimeout(),
		MaxBodyBytes: limitConfig.MaxBodyBytes,
	}

	monitor := connectivity.NewMonitor(connectivity.Options{
		URL:      origin.String(),
		Interval: cfg.ProbeInterval(),
		OnOnline: scheduler.RequestSync,
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/ws", hub)
	mux.Handle("/", handler)

	srv, err := server.Start(mux, cfg.ListenAddr, server.Options{
		Limits: limitConfig,
		Shutdown: server.ShutdownConfig{
			Drain:           durationMS(cfg.Shutdown.DrainMS),
			GracefulTimeout: durationMS(cfg.Shutdown.GracefulTimeoutMS),
		},
		Stoppers: []func(){cancel, monitor.Stop, hub.Close},
	})
	if err != nil {
		log.Fatalf("start server: %v", err)
	}
	log.Printf("worker listening on http://%s for origin %s", srv.Addr, origin)

	go scheduler.Run(ctx)
	monitor.Start()
	scheduler.RequestSync()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	<-signals

	if err := srv.Shutdown(); err != nil {
		log.Printf("shutdown: %v", err)
	}
	_ = queueStore.Close()
	_ = cacheStore.Close()
}

func durationMS(milliseconds int) time.Duration {
	if milliseconds <= 0 {
		return 0
	}
	return time.Duration(milliseconds) * time.Millisecond
}
