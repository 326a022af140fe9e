package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"faceclock/internal/attendance"
	"faceclock/internal/capture"
	"faceclock/internal/events"
	"faceclock/internal/httpapi"
	"faceclock/internal/metrics"
	"faceclock/internal/notify"
	"faceclock/internal/pipeline"
	"faceclock/internal/recognition"
)

var kioskCmd = &cobra.Command{
	Use:   "kiosk",
	Short: "Run capture, recognition, attendance and the HTTP API",
	Long: `Run the kiosk: the camera is captured, every frame is classified, and
recognized people are clocked in or out. With QUEUE_BACKEND=redis the
attendance decisions are left to a separate "faceclock worker".`,
	RunE: runKiosk,
}

var noAutostart bool

func init() {
	rootCmd.AddCommand(kioskCmd)
	kioskCmd.Flags().BoolVar(&noAutostart, "no-autostart", false, "Wait for POST /v1/capture/start instead of opening the camera at boot")
}

func runKiosk(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	cfg := a.cfg

	m, err := metrics.New()
	if err != nil {
		return err
	}
	bus := events.New()
	defer bus.Close()

	det, match, err := a.recognizer(ctx, true)
	if err != nil {
		a.log.Warn("matcher not trained, recognition will fail until it is", "err", err)
		det, match, _ = a.recognizer(ctx, false)
	}
	engine := recognition.NewEngine(det, match, a.backend, a.debounce(), recognition.Config{
		Threshold:           cfg.ConfidenceThreshold,
		LowConfidenceMargin: cfg.LowConfidenceMargin,
		DebounceWindow:      cfg.DebounceWindow,
	}, a.log)

	disp := attendance.NewDispatcher(a.queue(), a.clock(), a.log)

	open, err := capture.NewOpener(cfg.CameraDriver, cfg.CameraURLs, nil)
	if err != nil {
		return err
	}
	src := capture.NewSource(open, capture.Config{
		SourceID:    cfg.SourceID,
		DeviceIndex: cfg.CameraDeviceIndex,
		TargetFPS:   cfg.TargetFPS,
		StopTimeout: cfg.StopTimeout,
	}, nil, a.log)
	p := pipeline.New(src, engine, disp, bus, m, a.log)
	disp.OnOutcome(p.OnOutcome)

	g, gctx := errgroup.WithContext(ctx)

	if cfg.QueueBackend == "memory" {
		g.Go(func() error { return disp.Run(gctx) })
	} else {
		a.log.Info("attendance decisions delegated to the worker", "queue", cfg.QueueBackend)
	}

	if cfg.MQTTBroker != "" {
		client, err := notify.Connect(cfg.MQTTBroker, "faceclock-"+cfg.SourceID, a.log)
		if err != nil {
			a.log.Warn("mqtt disabled", "broker", cfg.MQTTBroker, "err", err)
		} else {
			pub := notify.NewMQTTPublisher(client, cfg.MQTTTopic, a.log)
			g.Go(func() error { return pub.Run(gctx, bus) })
		}
	}

	checks := map[string]httpapi.HealthCheck{"db": a.db.Healthy}
	if a.redis != nil {
		checks["redis"] = a.redis.Healthy
	}
	router := httpapi.NewRouter(httpapi.Options{
		Backend:         a.backend,
		Capture:         p,
		Bus:             bus,
		Metrics:         m.Handler(),
		Checks:          checks,
		Location:        a.loc,
		BaseContext:     gctx,
		RateLimitPerMin: cfg.RateLimitPerMin,
		Logger:          a.log,
	})
	srv := httpapi.NewHTTPServer(cfg.HTTPPort, router)

	g.Go(func() error {
		a.log.Info("starting server", "port", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		a.log.Info("shutting down")
		// Give outstanding requests 10 seconds to complete
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.log.Warn("server forced shutdown", "err", err)
		}
		return p.Stop()
	})

	if !noAutostart {
		if err := p.Start(gctx); err != nil {
			a.log.Error("camera did not start", "err", err)
		}
	}

	return g.Wait()
}
