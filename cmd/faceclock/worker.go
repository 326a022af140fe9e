package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"faceclock/internal/attendance"
	"faceclock/internal/events"
	"faceclock/internal/metrics"
	"faceclock/internal/notify"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Apply queued recognitions to the attendance clock",
	Long: `Consume recognized attempts from the Redis queue and run the attendance
clock on them, one at a time and in arrival order.`,
	RunE: runWorker,
}

var workerMetricsPort string

func init() {
	rootCmd.AddCommand(workerCmd)
	workerCmd.Flags().StringVar(&workerMetricsPort, "metrics-port", "", "Serve /metrics on this port")
}

func runWorker(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	if a.cfg.QueueBackend != "redis" {
		return errors.New("worker needs QUEUE_BACKEND=redis; the memory queue is consumed inside the kiosk")
	}

	m, err := metrics.New()
	if err != nil {
		return err
	}
	bus := events.New()
	defer bus.Close()

	disp := attendance.NewDispatcher(a.queue(), a.clock(), a.log)
	disp.OnOutcome(func(at attendance.Attempt, out attendance.Outcome) {
		m.Attendance.ObserveOutcome(string(out.Kind))
		if out.Kind == attendance.OutcomeFailed {
			a.log.Error("attendance not recorded", "person_id", at.PersonID, "at", at.At, "stage", "decide", "err", out.Err)
		}
		bus.Publish(events.Event{Type: events.TypeAttendance, Payload: attendance.NewDecision(at, out)})
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.log.Info("worker started, waiting for attempts")
		err := disp.Run(gctx)
		a.log.Info("worker stopped")
		return err
	})

	if a.cfg.MQTTBroker != "" {
		client, err := notify.Connect(a.cfg.MQTTBroker, "faceclock-worker", a.log)
		if err != nil {
			a.log.Warn("mqtt disabled", "broker", a.cfg.MQTTBroker, "err", err)
		} else {
			pub := notify.NewMQTTPublisher(client, a.cfg.MQTTTopic, a.log)
			g.Go(func() error { return pub.Run(gctx, bus) })
		}
	}

	if workerMetricsPort != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		srv := &http.Server{Addr: ":" + workerMetricsPort, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}
