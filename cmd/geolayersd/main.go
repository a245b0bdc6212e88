package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/avelezdev/geolayers/internal/app/server"
	"github.com/avelezdev/geolayers/internal/cache"
	"github.com/avelezdev/geolayers/internal/cache/redisstore"
	"github.com/avelezdev/geolayers/internal/cluster"
	"github.com/avelezdev/geolayers/internal/config"
	"github.com/avelezdev/geolayers/internal/health"
	"github.com/avelezdev/geolayers/internal/layers"
	"github.com/avelezdev/geolayers/internal/logger"
	"github.com/avelezdev/geolayers/internal/model"
	"github.com/avelezdev/geolayers/internal/observability"
	"github.com/avelezdev/geolayers/internal/realtime"
	"github.com/avelezdev/geolayers/internal/refresh"
	"github.com/avelezdev/geolayers/internal/spatial"
	"github.com/avelezdev/geolayers/internal/upstream"
	"github.com/avelezdev/geolayers/internal/ws"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	addrFlag := flag.String("addr", "", "listen address override")
	flag.Parse()

	cfg := config.FromEnv()
	if *addrFlag != "" {
		cfg.Addr = strings.TrimSpace(*addrFlag)
	}

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   strings.ToLower(os.Getenv("LOG_CONSOLE")) == "true",
		Component: "geolayersd",
	}, os.Stdout)
	appLog := logger.NewSlog(&zl)

	observability.ExposeBuildInfo(Version)
	appLog.Info("starting geolayersd",
		"addr", cfg.Addr,
		"version", Version,
		"upstream", cfg.UpstreamURL,
		"backend", cfg.Backend,
		"cache", cfg.CacheEnabled,
		"realtime", cfg.Realtime.Enabled)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// payload cache; the service runs degraded without it
	var store cache.Interface
	if cfg.CacheEnabled {
		cli, err := redisstore.New(ctx, cfg.RedisAddr)
		if err != nil {
			appLog.Warn("redis unavailable, running without payload cache", "err", err)
		} else {
			defer func() { _ = cli.Close() }()
			store = cache.NewRedisAdapter(cli, cfg.CacheOpTimeout)
		}
	}

	hub := ws.NewHub(appLog, cfg.WSSendBuffer)
	go func() { _ = hub.Run(ctx) }()

	backend, err := layers.NewBackend(cfg.Backend, cfg, appLog, hub)
	if err != nil {
		appLog.Error("map backend setup failed", "err", err)
		return 1
	}

	mgr := layers.New(appLog, backend)
	idx := spatial.NewIndex(appLog)
	mgr.SetFeatureSink(idx)

	for _, lc := range defaultLayers() {
		if err := mgr.RegisterLayer(lc); err != nil {
			appLog.Error("layer registration failed", "layer", lc.ID, "err", err)
			return 1
		}
	}

	up, err := upstream.New(appLog, upstream.NewOutbound(), cfg.UpstreamURL, cfg.FetchTimeout)
	if err != nil {
		appLog.Error("upstream client setup failed", "err", err)
		return 1
	}

	ref := refresh.New(appLog, mgr, up, store, cfg)
	go func() { _ = ref.Run(ctx) }()
	ref.Trigger("startup")

	runner := realtime.NewRunner(cfg.Realtime, appLog, ref)
	if err := runner.Start(ctx); err != nil {
		appLog.Error("realtime consumer setup failed", "err", err)
		return 1
	}
	defer runner.Stop()

	var publisher server.ChangePublisher
	if cfg.Intake.Enabled {
		p, err := realtime.NewPublisher(appLog, cfg.Realtime.Brokers, cfg.Intake.Topic, cfg.Intake.Queue)
		if err != nil {
			appLog.Error("intake publisher setup failed", "err", err)
			return 1
		}
		defer func() { _ = p.Close() }()
		publisher = p
	}

	deps := server.Deps{
		Manager:   mgr,
		Refresher: ref,
		Spatial:   idx,
		Clusterer: cluster.New(cfg.ClusterResMin, cfg.ClusterResMax),
		Upstream:  up,
		Publisher: publisher,
		Hub:       hub,
		Probes: []health.Probe{
			func() (string, bool) {
				ready, _ := runner.Readiness()
				return "realtime", ready
			},
		},
	}

	if err := server.Run(ctx, cfg, appLog, deps); err != nil {
		appLog.Error("server exited with error", "err", err)
		return 1
	}
	appLog.Info("server stopped")
	return 0
}

// defaultLayers is the layer set registered at startup: one primary layer per
// entity category plus the children toggled with it.
func defaultLayers() []model.LayerConfig {
	return []model.LayerConfig{
		{
			ID: "people", Name: "People", SourceID: "people-src",
			Geometry: model.GeometryCircle, Category: model.CategoryPeople,
			Opacity: 0.9, Color: "#e5544b", Icon: "person",
			Children: []string{"people-heatmap"}, Visible: true,
		},
		{
			ID: "people-heatmap", Name: "People Density", SourceID: "people-src",
			Geometry: model.GeometryHeatmap, Category: model.CategoryPeople,
			Opacity: 0.6, MinZoom: 0, MaxZoom: 11, Visible: true,
		},
		{
			ID: "places", Name: "Shelters & Facilities", SourceID: "places-src",
			Geometry: model.GeometryCircle, Category: model.CategoryPlaces,
			Opacity: 0.9, Color: "#2a74d1", Icon: "shelter",
			Children: []string{"places-labels"}, Visible: true,
		},
		{
			ID: "places-labels", Name: "Facility Labels", SourceID: "places-src",
			Geometry: model.GeometryFill, Category: model.CategoryPlaces,
			Opacity: 0.8, MinZoom: 10, Visible: true,
		},
		{
			ID: "assets", Name: "Response Assets", SourceID: "assets-src",
			Geometry: model.GeometryCircle, Category: model.CategoryAssets,
			Opacity: 0.9, Color: "#2f9e44", Icon: "truck",
			Children: []string{"assets-status"}, Visible: false,
		},
		{
			ID: "assets-status", Name: "Asset Status", SourceID: "assets-src",
			Geometry: model.GeometryCircle, Category: model.CategoryAssets,
			Opacity: 0.7, MinZoom: 8, Visible: false,
		},
	}
}
