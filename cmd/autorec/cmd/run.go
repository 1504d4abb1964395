package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/autorec/autorec/internal/capture"
	"github.com/autorec/autorec/internal/catalog"
	"github.com/autorec/autorec/internal/device"
	"github.com/autorec/autorec/internal/encoder"
	"github.com/autorec/autorec/internal/httpapi"
	"github.com/autorec/autorec/internal/observability"
	"github.com/autorec/autorec/internal/recorder"
	"github.com/autorec/autorec/internal/resource"
	"github.com/autorec/autorec/internal/retention"
	"github.com/autorec/autorec/internal/version"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the recording appliance daemon",
	Long: `Run the unattended recording loop.

The daemon polls for the camera and microphone, starts recording as soon
as both are usable, and keeps recording across device churn. The HTTP API
(when enabled) serves status, the recording catalog, and a rotate control.`,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String("output-dir", "", "recording output directory (overrides config)")
	runCmd.Flags().Int("port", 0, "HTTP API port (overrides config)")
}

func runDaemon(cmd *cobra.Command, _ []string) error {
	logger := slog.Default()

	stringFlagOverride(cmd.Flags(), "output-dir", &cfg.Recording.OutputDir)
	intFlagOverride(cmd.Flags(), "port", &cfg.HTTP.Port)

	logger.Info("starting autorec",
		slog.String("version", version.Version),
		slog.String("output_dir", cfg.Recording.OutputDir))

	// No encoder, no appliance.
	detector := encoder.NewDetector(observability.WithComponent(logger, "encoder"))
	info, err := detector.Detect(context.Background(), cfg.Encoder.Binary)
	if err != nil {
		return fmt.Errorf("detecting encoder: %w", err)
	}
	videoCodec, err := info.SelectVideoCodec(cfg.Recording.VideoCodecs)
	if err != nil {
		return fmt.Errorf("selecting video codec: %w", err)
	}
	logger.Info("encoder ready",
		slog.String("binary", info.Path),
		slog.String("video_codec", videoCodec),
		slog.String("audio_codec", cfg.Recording.AudioCodec))

	store, err := catalog.Open(cfg.CatalogPath(), observability.WithComponent(logger, "catalog"))
	if err != nil {
		return fmt.Errorf("opening catalog: %w", err)
	}
	defer store.Close()

	// Rows still marked active belong to a previous run that died without
	// finalizing. Recovery failure is not fatal; recording matters more.
	if n, rerr := store.RecoverInterrupted(context.Background()); rerr != nil {
		logger.Warn("recovering interrupted recordings", slog.Any("error", rerr))
	} else if n > 0 {
		logger.Info("recovered interrupted recordings", slog.Int("count", n))
	}

	guard := resource.NewGuard(
		cfg.Recording.OutputDir,
		uint64(cfg.Resources.MinFreeDisk),
		uint64(cfg.Resources.MinFreeMemory),
		observability.WithComponent(logger, "resources"))

	monitor := device.NewMonitor(device.NewSysfsDiscoverer(),
		observability.WithComponent(logger, "monitor"))

	ctrl := recorder.NewController(cfg, monitor, guard, store, info, videoCodec,
		observability.WithComponent(logger, "recorder"))

	// Hotplug events shortcut the poll interval; losing the watcher only
	// costs latency, so its absence is not fatal.
	var watcher *device.Watcher
	if cfg.Monitor.WatchDev {
		w, werr := device.NewWatcher("/dev", "/dev/snd",
			observability.WithComponent(logger, "watcher"))
		if werr != nil {
			logger.Warn("hotplug watcher unavailable, relying on polling",
				slog.Any("error", werr))
		} else {
			watcher = w
			ctrl.WithNudges(w.Nudges())
		}
	}

	videoLog := observability.WithComponent(logger, "video")
	audioLog := observability.WithComponent(logger, "audio")
	videoSession := capture.NewVideoSession(ctrl, capture.NewVideoNegotiator(videoLog), videoLog).
		WithIdleDelay(cfg.Monitor.IdleSleep)
	audioSession := capture.NewAudioSession(ctrl, capture.NewAudioNegotiator(audioLog), audioLog).
		WithIdleDelay(cfg.Monitor.IdleSleep)

	var sweeper *retention.Sweeper
	if cfg.Retention.Enabled {
		sweeper, err = retention.NewSweeper(store, cfg.Retention,
			observability.WithComponent(logger, "retention"))
		if err != nil {
			return fmt.Errorf("configuring retention: %w", err)
		}
	}

	var server *httpapi.Server
	if cfg.HTTP.Enabled {
		server = httpapi.NewServer(cfg.HTTP,
			observability.WithComponent(logger, "http"), version.Version)
		httpapi.NewHandler(ctrl, store, version.Version).Register(server.API())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		cancel()
	}()

	if watcher != nil {
		watcher.Start(ctx)
		defer watcher.Stop()
	}
	if sweeper != nil {
		if err := sweeper.Start(ctx); err != nil {
			return fmt.Errorf("starting retention: %w", err)
		}
		defer sweeper.Stop()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return ctrl.Run(gctx)
	})
	g.Go(func() error {
		videoSession.Run(gctx)
		return nil
	})
	g.Go(func() error {
		audioSession.Run(gctx)
		return nil
	})
	if server != nil {
		g.Go(func() error {
			return server.ListenAndServe(gctx)
		})
	}

	err = g.Wait()
	logger.Info("autorec stopped")
	return err
}
