package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hearth-home/hearth/internal/builtin/netpresence"
	"github.com/hearth-home/hearth/internal/config"
	"github.com/hearth-home/hearth/internal/device"
	"github.com/hearth-home/hearth/internal/event"
	"github.com/hearth-home/hearth/internal/hardware"
	"github.com/hearth-home/hearth/internal/orchestrator"
	"github.com/hearth-home/hearth/internal/registry"
	"github.com/hearth-home/hearth/internal/server"
	"github.com/hearth-home/hearth/internal/settings"
	"github.com/hearth-home/hearth/internal/version"
	"github.com/hearth-home/hearth/internal/ws"
	"github.com/hearth-home/hearth/pkg/models"
	"github.com/hearth-home/hearth/pkg/plugin"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "path to configuration file")
	showVersion := flag.Bool("version", false, "print version information and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("hearthd %s (%s, %s)\n", version.Version, version.Commit, version.Date)
		os.Exit(0)
	}

	// Load configuration (before logger, so log level/format can be configured).
	viperCfg, err := server.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := config.NewLogger(viperCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Hearth hub starting", zap.String("version", version.Short()))

	if f := viperCfg.ConfigFileUsed(); f != "" {
		logger.Info("configuration loaded",
			zap.String("component", "config"),
			zap.String("source", f),
		)
	} else {
		logger.Warn("no configuration file found, using defaults",
			zap.String("component", "config"),
		)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Open the settings store.
	dbPath := viperCfg.GetString("database.path")
	if dbPath == "" {
		dbPath = "hearth.db"
	}
	store, err := settings.Open(dbPath)
	if err != nil {
		logger.Fatal("failed to open settings store", zap.Error(err))
	}
	defer store.Close()
	if err := store.CheckVersion(ctx, version.Version); err != nil {
		logger.Fatal("settings store version check failed", zap.Error(err))
	}
	logger.Info("settings store initialized",
		zap.String("component", "settings"),
		zap.String("path", dbPath),
	)

	bus := event.NewBus(logger.Named("event"))

	// Register the driver plugins (compile-time composition).
	host := registry.New(store, logger.Named("registry"))
	drivers := []plugin.DevicePlugin{
		netpresence.New(),
	}
	for _, d := range drivers {
		host.Register(d)
	}

	devices := device.New(store, logger.Named("device"))
	orch := orchestrator.New(host, devices, bus, logger.Named("hub"))

	// Hardware bus: the orchestrator is the consumer directory.
	var hwOpts []hardware.Option
	if path := viperCfg.GetString("hardware.radio433.device"); path != "" {
		hwOpts = append(hwOpts, hardware.WithRadio(
			hardware.NewSerialRadio(models.RadioBand433, path, logger.Named("radio433")),
		))
	}
	if path := viperCfg.GetString("hardware.radio868.device"); path != "" {
		hwOpts = append(hwOpts, hardware.WithRadio(
			hardware.NewSerialRadio(models.RadioBand868, path, logger.Named("radio868")),
		))
	}
	if viperCfg.GetBool("hardware.upnp.enabled") {
		hwOpts = append(hwOpts, hardware.WithUpnp(
			hardware.NewSsdpTransport(logger.Named("upnp")),
		))
	}
	if interval := viperCfg.GetDuration("hardware.tick_interval"); interval > 0 {
		hwOpts = append(hwOpts, hardware.WithTickInterval(interval))
	}
	hw := hardware.NewBus(orch, logger.Named("hardware"), hwOpts...)
	orch.SetHardware(hw)

	// Load plugins, restore devices, start the hardware bus.
	if err := orch.Start(ctx); err != nil {
		logger.Fatal("failed to start hub", zap.Error(err))
	}

	wsHandler := ws.NewHandler(bus, logger.Named("ws"))

	addr := viperCfg.GetString("server.host") + ":" + viperCfg.GetString("server.port")
	if addr == ":" {
		addr = "0.0.0.0:8123"
	}
	readyCheck := server.ReadinessChecker(func(ctx context.Context) error {
		return store.DB().PingContext(ctx)
	})
	srv := server.New(addr, orch, host, logger.Named("server"), readyCheck, wsHandler)

	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	logger.Info("Hearth hub ready", zap.String("addr", addr))

	// Wait for shutdown signal.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	orch.Stop()

	logger.Info("Hearth hub stopped")
}
