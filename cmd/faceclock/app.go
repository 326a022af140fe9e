package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"faceclock/internal/attendance"
	"faceclock/internal/config"
	"faceclock/internal/faceclient"
	"faceclock/internal/logging"
	"faceclock/internal/matcher"
	"faceclock/internal/queue"
	"faceclock/internal/recognition"
	"faceclock/internal/store"
)

const attemptsKey = "attempts"

// app holds the dependencies every subcommand shares.
type app struct {
	cfg     config.App
	log     *slog.Logger
	loc     *time.Location
	db      *store.DB
	backend attendance.Backend
	redis   *store.Redis
}

func setup(ctx context.Context) (*app, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(log)

	// Set Gin mode based on environment
	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	db, err := store.Open(ctx, cfg.StoreBackend, cfg.DatabaseURL, cfg.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.StoreBackend, err)
	}
	a := &app{cfg: cfg, log: log, loc: loc, db: db, backend: db.Backend()}
	if cfg.QueueBackend == "redis" || cfg.DebounceBackend == "redis" {
		a.redis = store.NewRedis(cfg.RedisAddr, "")
		if !a.redis.Healthy(ctx) {
			log.Warn("redis not reachable yet", "addr", cfg.RedisAddr)
		}
	}
	log.Info("configuration loaded",
		"store", cfg.StoreBackend,
		"queue", cfg.QueueBackend,
		"debounce", cfg.DebounceBackend,
		"matcher", cfg.MatcherBackend,
		"timezone", loc.String(),
	)
	return a, nil
}

func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		a.log.Warn("close db", "err", err)
	}
	if err := a.redis.Close(); err != nil {
		a.log.Warn("close redis", "err", err)
	}
}

func (a *app) queue() queue.Queue {
	if a.cfg.QueueBackend == "redis" {
		return queue.NewRedisQueue(a.redis.Client, a.redis.Key(attemptsKey))
	}
	return queue.NewInMemory(64)
}

func (a *app) debounce() recognition.DebounceStore {
	if a.cfg.DebounceBackend == "redis" {
		return recognition.NewRedisDebounce(a.redis.Client, a.redis.Key("debounce"), a.cfg.DebounceWindow)
	}
	return recognition.NewMemoryDebounce(a.cfg.DebounceWindow)
}

func (a *app) clock() *attendance.Clock {
	return attendance.NewClock(a.backend, attendance.ClockConfig{MinimumDwell: a.cfg.MinimumDwell, Location: a.loc}, a.log)
}

// recognizer returns the detector and matcher for MATCHER_BACKEND. With train set,
// the local matcher is trained from ENROLL_DIR before it is returned.
func (a *app) recognizer(ctx context.Context, train bool) (recognition.Detector, recognition.Matcher, error) {
	if a.cfg.MatcherBackend == "remote" {
		fc := faceclient.New(a.cfg.FaceServiceURL, a.cfg.FaceSkip)
		if err := fc.Health(ctx); err != nil {
			a.log.Warn("face service not available", "url", a.cfg.FaceServiceURL, "err", err)
		}
		return fc, fc, nil
	}

	det := recognition.FullFrameDetector{}
	m := matcher.NewLocal()
	if !train {
		return det, m, nil
	}
	corpus, err := matcher.LoadCorpus(ctx, a.cfg.EnrollDir, det, a.log)
	if err != nil {
		return nil, nil, err
	}
	if err := m.Train(ctx, corpus.Faces, corpus.Labels); err != nil {
		return nil, nil, fmt.Errorf("train matcher from %s: %w", a.cfg.EnrollDir, err)
	}
	a.log.Info("matcher trained", "faces", m.Size(), "people", len(corpus.People()))
	return det, m, nil
}
