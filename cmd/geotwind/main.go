package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/mohammed-shakir/geotwin/internal/app"
	"github.com/mohammed-shakir/geotwin/internal/attrstore"
	"github.com/mohammed-shakir/geotwin/internal/attrstore/redisstore"
	"github.com/mohammed-shakir/geotwin/internal/core/config"
	"github.com/mohammed-shakir/geotwin/internal/core/observability"
	"github.com/mohammed-shakir/geotwin/internal/core/server"
	"github.com/mohammed-shakir/geotwin/internal/expr"
	"github.com/mohammed-shakir/geotwin/internal/logger"
	"github.com/mohammed-shakir/geotwin/internal/metrics"
	"github.com/mohammed-shakir/geotwin/internal/selectevents"
	"github.com/mohammed-shakir/geotwin/internal/tilestream"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// overriding the manifest path via flag
	layersFlag := flag.String("layers", "", "layer manifest (YAML)")
	flag.Parse()

	cfg := config.FromEnv()
	if *layersFlag != "" {
		cfg.LayersFile = strings.TrimSpace(*layersFlag)
	}

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		SampleN:   cfg.LogSampleN,
		Component: "geotwind",
	}, os.Stdout)
	appLog := logger.NewSlog(&zl)

	observability.ExposeBuildInfo(Version)
	appLog.Info("starting geotwind",
		"addr", cfg.Addr,
		"version", Version,
		"layers_file", cfg.LayersFile,
		"frame_rate", cfg.FrameRate)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	manifest, err := config.LoadManifestFile(cfg.LayersFile)
	if err != nil {
		appLog.Error("layer manifest", "err", err)
		return 1
	}

	var store *attrstore.Store
	if cfg.RedisAddr != "" {
		cli, err := redisstore.New(ctx, cfg.RedisAddr,
			redisstore.WithPoolSize(cfg.RedisPool),
			redisstore.WithDialTimeout(cfg.RedisDial),
			redisstore.WithReadTimeout(cfg.RedisRead),
		)
		if err != nil {
			appLog.Error("redis connect failed", "addr", cfg.RedisAddr, "err", err)
			return 1
		}
		defer func() { _ = cli.Close() }()
		store = attrstore.NewStore(cli, cfg.AttrTTL)
		appLog.Info("attribute store enabled", "addr", cfg.RedisAddr, "ttl", cfg.AttrTTL.String())
	}

	exprs := expr.NewCache(cfg.ExprCache)
	defs, err := app.BuildLayers(ctx, manifest, filepath.Dir(cfg.LayersFile), exprs, store, appLog)
	if err != nil {
		appLog.Error("layer setup failed", "err", err)
		return 1
	}

	opts := []app.Option{app.WithLogger(appLog)}

	if cfg.TileStream.Enabled {
		q := tilestream.NewQueue(cfg.TileStream.Queue)
		cons := tilestream.NewConsumer(
			tilestream.DefaultConfig(cfg.KafkaBrokers, cfg.TileStream.Topic, cfg.TileStream.GroupID),
			appLog, &zl, q,
		)
		go func() {
			if err := cons.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				appLog.Error("tile consumer stopped", "err", err)
			}
		}()
		opts = append(opts, app.WithTileQueue(q))
	}

	if cfg.SelectEvents.Enabled {
		pub, err := selectevents.NewPublisher(tilestream.SplitCSV(cfg.KafkaBrokers), cfg.SelectEvents.Topic, cfg.SelectEvents.Queue, appLog)
		if err != nil {
			appLog.Error("selection publisher setup failed", "err", err)
			return 1
		}
		defer func() { _ = pub.Close() }()
		opts = append(opts, app.WithSelectionSink(pub))
	}

	viewer, err := app.New(cfg, defs, opts...)
	if err != nil {
		appLog.Error("viewer setup failed", "err", err)
		return 1
	}
	viewerDone := make(chan struct{})
	go func() {
		defer close(viewerDone)
		_ = viewer.Run(ctx)
	}()

	var metricsHandler http.Handler
	if cfg.MetricsEnabled {
		p := metrics.Init(metrics.Config{
			Enabled: true,
			Addr:    cfg.MetricsAddr,
			Path:    cfg.MetricsPath,
			Build: metrics.BuildInfo{
				Version:   os.Getenv("BUILD_VERSION"),
				Revision:  os.Getenv("BUILD_REVISION"),
				Branch:    os.Getenv("BUILD_BRANCH"),
				BuildDate: os.Getenv("BUILD_DATE"),
			},
		})
		metricsHandler = p.Handler()
		if cfg.MetricsAddr != "" && cfg.MetricsAddr != cfg.Addr {
			go serveMetrics(ctx, cfg.MetricsAddr, cfg.MetricsPath, metricsHandler, appLog)
			metricsHandler = nil
		}
	}

	handler := server.NewHandler(appLog, viewer, exprs, metricsHandler)
	if err := server.Run(ctx, cfg, appLog, handler); err != nil {
		appLog.Error("server exited with error", "err", err)
		stop()
		<-viewerDone
		return 1
	}
	<-viewerDone
	appLog.Info("server stopped")
	return 0
}

func serveMetrics(ctx context.Context, addr, path string, h http.Handler, log *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle(path, h)
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// shutdown on signal
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("metrics shutdown", "err", err)
		}
	}()

	log.Info("metrics listen", "addr", addr, "path", path)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("metrics server exited", "err", err)
	}
}
