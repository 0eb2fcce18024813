package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cloudflare/tableflip"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/omalloc/cellar/api/defined/v1/event"
	"github.com/omalloc/cellar/conf"
	"github.com/omalloc/cellar/contrib/config"
	"github.com/omalloc/cellar/contrib/kratos"
	"github.com/omalloc/cellar/contrib/log"
	"github.com/omalloc/cellar/download"
	"github.com/omalloc/cellar/download/status"
	"github.com/omalloc/cellar/metrics"
	"github.com/omalloc/cellar/pkg/encoding"
	"github.com/omalloc/cellar/pkg/x/runtime"
	"github.com/omalloc/cellar/server"
	"github.com/omalloc/cellar/storage"
)

var (
	id, _ = os.Hostname()

	// flagConf is the config flag.
	flagConf string = "config.yaml"
	// flagVersion prints the build info and exits.
	flagVersion bool
)

func init() {
	flag.StringVar(&flagConf, "c", "config.yaml", "config file path")
	flag.BoolVar(&flagVersion, "v", false, "print version and exit")

	// init prometheus
	prometheus.Unregister(collectors.NewGoCollector())
	registerer := prometheus.WrapRegistererWithPrefix("cellar_", prometheus.DefaultRegisterer)
	registerer.MustRegister(collectors.NewGoCollector(collectors.WithGoCollectorMemStatsMetricsDisabled()))
}

func main() {
	flag.Parse()

	if flagVersion {
		fmt.Println(runtime.BuildInfo)
		return
	}

	bc, err := config.Load(flagConf, conf.Default())
	if err != nil {
		log.Fatal(err)
	}

	setupLogger(bc.Logger)
	encoding.SetDefaultCodec(bc.Cache.Codec)

	log.Debugf("conf = %#+v", bc)

	app, cleanup, err := newApp(bc)
	if err != nil {
		log.Fatal(err)
	}
	defer cleanup()

	if err := app.Run(); err != nil {
		log.Fatal(err)
	}
}

func setupLogger(c *conf.Logger) {
	level := log.ParseLevel(c.Level)
	base := log.NewFileLogger(log.FileOptions{
		Path:       c.Path,
		MaxSize:    c.MaxSize,
		MaxBackups: c.MaxBackups,
		MaxAge:     c.MaxAge,
		Compress:   c.Compress,
		JSON:       c.JSON,
	})

	log.SetLevel(level)
	log.SetLogger(log.With(log.NewFilter(base, log.FilterLevel(level)),
		"ts", log.Timestamp(time.RFC3339),
		"pid", os.Getpid(),
		"request_id", metrics.RequestID(),
	))
}

func newApp(bc *conf.Bootstrap) (*kratos.App, func(), error) {
	logger := log.GetLogger()
	stopTimeout := bc.Server.ShutdownTimeout

	// graceful upgrade
	flip, err := tableflip.New(tableflip.Options{
		PIDFile:        bc.PidFile,
		UpgradeTimeout: stopTimeout,
	})
	if err != nil {
		return nil, nil, err
	}

	// remove a stale unix socket unless a parent hands it over
	if !flip.HasParent() && strings.HasSuffix(bc.Server.Addr, ".sock") {
		_ = os.Remove(bc.Server.Addr)
	}

	cache, err := storage.New(bc.Cache, log.With(logger, "module", "cache"))
	if err != nil {
		flip.Stop()
		return nil, nil, err
	}

	info := status.NewInfo(bc.Download.StatusRetention)
	publisher := status.NewPublisher(event.Default(), bc.Events.NotificationEnabled, bc.Events.ActivityEnabled)
	cfg := download.NewConfig(bc.Download, bc.Cache.Enabled, cache, publisher, status.NewListener(info))

	mgr, err := download.NewManager(cfg, log.With(logger, "module", "download"))
	if err != nil {
		_ = cache.Close()
		flip.Stop()
		return nil, nil, err
	}

	srv := server.NewServer(bc.Server, mgr, info, cache, bc.Sources, server.WithUpgrader(flip))

	ctx, cancel := context.WithCancel(context.Background())
	go info.Run(ctx)
	reload := newReloader(cfg, publisher, bc)
	go func() {
		if err := config.Watch(ctx, flagConf, conf.Default, reload.apply); err != nil {
			log.Warnf("config watcher stopped: %v", err)
		}
	}()

	app := kratos.New(
		kratos.ID(id),
		kratos.Name(runtime.BuildInfo.AppName),
		kratos.Version(runtime.BuildInfo.Version),
		kratos.StopTimeout(stopTimeout),
		kratos.Logger(logger),
		kratos.Server(srv),
		kratos.BeforeStart(func(context.Context) error {
			return srv.Listen()
		}),
		kratos.AfterStart(func(context.Context) error {
			// every listener is bound, let the parent go
			return flip.Ready()
		}),
		kratos.AfterStop(func(ctx context.Context) error {
			return mgr.Close(ctx)
		}),
	)

	go func() {
		// a successful upgrade stops this process
		<-flip.Exit()
		_ = app.Stop()
	}()

	cleanup := func() {
		cancel()
		if err := cache.Close(); err != nil {
			log.Warnf("close product cache: %v", err)
		}
		flip.Stop()
	}
	return app, cleanup, nil
}

// reloader carries the switches that may change at runtime. cache.enabled
// is applied only when the file changes it, so a save that touches other
// keys keeps a cache disabled after a write failure switched off.
type reloader struct {
	cfg          *download.Config
	publisher    *status.Publisher
	cacheEnabled bool
}

func newReloader(cfg *download.Config, publisher *status.Publisher, bc *conf.Bootstrap) *reloader {
	return &reloader{cfg: cfg, publisher: publisher, cacheEnabled: bc.Cache.Enabled}
}

func (r *reloader) apply(nc *conf.Bootstrap) {
	if nc.Cache.Enabled != r.cacheEnabled {
		r.cacheEnabled = nc.Cache.Enabled
		log.Infof("product cache turned %s", onOff(nc.Cache.Enabled))
		r.cfg.SetCacheEnabled(nc.Cache.Enabled)
	}
	r.publisher.SetNotificationEnabled(nc.Events.NotificationEnabled)
	r.publisher.SetActivityEnabled(nc.Events.ActivityEnabled)
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
