// Package main is the entry point for the extanimd daemon.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	godbus "github.com/godbus/dbus/v5"

	"github.com/jmylchreest/extanim/internal/config"
	"github.com/jmylchreest/extanim/internal/daemon"
	"github.com/jmylchreest/extanim/internal/dbus"
	"github.com/jmylchreest/extanim/internal/display"
	"github.com/jmylchreest/extanim/internal/hotplug"
	"github.com/jmylchreest/extanim/internal/journal"
)

const (
	negotiateTimeout = 5 * time.Second
	statusInterval   = 2 * time.Second
)

var (
	// Build-time variables
	version = "dev"
)

func main() {
	configPath := flag.String("config", "", "Path to extanimd.toml (default: ~/.config/extanim/extanimd.toml)")
	propertiesPath := flag.String("properties", "", "Path to the property file (default: ~/.config/extanim/properties.toml)")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("extanimd version", version)
		os.Exit(0)
	}

	props, err := config.LoadProperties(*propertiesPath)
	if err != nil {
		// Unreadable properties mean every feature stays off
		fmt.Fprintln(os.Stderr, "extanimd: failed to load properties:", err)
	}
	features := config.LoadFeatures(props)

	level := slog.LevelInfo
	if features.DebugLogging {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := run(logger, *configPath, *propertiesPath, features); err != nil {
		logger.Error("extanimd failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, configPath, propertiesPath string, features config.FeatureConfig) error {
	logger.Info("starting extanimd",
		"version", version,
		"suppress_external_animation", features.SuppressExternalAnimation,
		"allow_hdr_fallback", features.AllowHDRFallback,
	)

	cfg, err := config.LoadDaemonConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn, err := dbus.Connect(cfg.DBus.Bus)
	if err != nil {
		return err
	}

	// The display-config service is optional; without it the static layout
	// applies and no animating flags are reported.
	dc, err := dbus.DialDisplayConfig(conn, cfg.DBus.DisplayConfigName,
		godbus.ObjectPath(cfg.DBus.DisplayConfigPath), logger.With("component", "display-config"))
	if err != nil {
		logger.Warn("display-config service unavailable", "name", cfg.DBus.DisplayConfigName, "error", err)
	}

	ranges := daemon.RangesFromConfig(cfg.Displays)
	if cfg.Displays.Negotiate {
		nctx, ncancel := context.WithTimeout(ctx, negotiateTimeout)
		negotiated, err := display.Negotiate(nctx, dc.Negotiator(), ranges, logger)
		ncancel()
		if err != nil {
			logger.Info("keeping configured display layout", "error", err)
		} else {
			ranges = negotiated
		}
	}
	classifier := display.NewClassifier(ranges)

	var jrnl *journal.Journal
	if cfg.Journal.Enabled {
		jrnl, err = journal.Open(cfg.JournalPath())
		if err != nil {
			logger.Warn("journal disabled", "error", err)
		} else {
			defer jrnl.Close()
			logger.Info("journal opened", "path", jrnl.Path())
		}
	}

	engine := daemon.NewEngine(daemon.Options{
		Features:    features,
		Classifier:  classifier,
		Compositor:  dbus.NewCompositorProxy(conn, cfg.DBus.CompositorName, godbus.ObjectPath(cfg.DBus.CompositorPath), logger.With("component", "compositor")),
		Controller:  dc.AnimatingController(),
		GateTimeout: cfg.Gate.Timeout.Duration(),
		Journal:     jrnl,
		Logger:      logger,
	})

	server := dbus.NewServer(engine, logger)
	daemon.NewNotifier(server, logger).Attach(engine)
	if err := server.Start(conn); err != nil {
		return fmt.Errorf("failed to start D-Bus service: %w", err)
	}
	defer server.Stop()

	if cfg.Hotplug.Enabled {
		watcher := hotplug.NewWatcher(cfg.HotplugDir(), engine, logger.With("component", "hotplug"))
		if err := watcher.Start(ctx); err != nil {
			logger.Warn("hotplug watcher disabled", "dir", watcher.Dir(), "error", err)
		} else {
			logger.Info("watching for display hotplug", "dir", watcher.Dir())
			defer watcher.Stop()
		}
	}

	if path, err := propertiesFile(propertiesPath); err == nil {
		pw := daemon.NewPropertiesWatcher(path, config.EnvProperties{Prefix: config.EnvPrefix}, logger)
		pw.SetChangeCallback(func(f config.FeatureConfig) {
			logger.Warn("feature flags changed on disk, restart extanimd to apply",
				"suppress_external_animation", f.SuppressExternalAnimation,
				"allow_hdr_fallback", f.AllowHDRFallback,
				"debug_logging", f.DebugLogging,
			)
		})
		if err := pw.Start(ctx, features); err != nil {
			logger.Warn("property watcher disabled", "error", err)
		} else {
			defer pw.Stop()
		}
	}

	logger.Info("extanimd ready",
		"gate_timeout", engine.Gate().Timeout(),
		"builtin", classifier.Builtin().Handles(),
		"gate_enabled", engine.Gate().Enabled(),
		"screenshot_tracking", engine.Tracker().Active(),
	)

	statusPath := daemon.StatusPath()
	statusDone := make(chan struct{})
	go func() {
		defer close(statusDone)
		publishStatus(ctx, engine, statusPath, logger)
	}()
	defer func() {
		<-statusDone
		if err := daemon.RemoveStatus(statusPath); err != nil {
			logger.Warn("failed to remove status file", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received signal, shutting down", "signal", sig)
	case <-ctx.Done():
	}

	cancel()
	logger.Info("extanimd stopped")
	return nil
}

func propertiesFile(path string) (string, error) {
	if path != "" {
		return path, nil
	}
	return config.PropertiesPath()
}

// publishStatus refreshes the status file until ctx is done.
func publishStatus(ctx context.Context, engine *daemon.Engine, path string, logger *slog.Logger) {
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	for {
		if err := daemon.SaveStatus(path, engine.Snapshot()); err != nil {
			logger.Debug("failed to write status file", "path", path, "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
