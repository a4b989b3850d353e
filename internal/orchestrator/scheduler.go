// Package orchestrator drives the periodic scoring cycle and serves current
// scores to the API with a freshness gate.
package orchestrator

import (
	"context"
	"errors"
	"log"
	"time"

	"ethpulse/internal/broadcast"
	"ethpulse/internal/domain"
	"ethpulse/internal/health"
	"ethpulse/internal/observability"
	"ethpulse/internal/storage"
)

const (
	// DefaultInterval is the default scoring cycle period.
	DefaultInterval = 60 * time.Second
	// DefaultFreshness is how old a stored record may be before Current
	// recomputes on demand.
	DefaultFreshness = 5 * time.Minute
)

// Scheduler owns the scoring cycle. Persistence and broadcast are
// best-effort sinks: their failures are logged, never propagated, and the
// computed record is always returned.
type Scheduler struct {
	calculator *health.Calculator
	scoreStore storage.HealthScoreStore
	hub        *broadcast.Hub
	redis      *broadcast.RedisPublisher

	interval  time.Duration
	freshness time.Duration
	metrics   *observability.Metrics
	logger    *log.Logger
}

// SchedulerOptions contains configuration for creating a Scheduler.
type SchedulerOptions struct {
	Calculator *health.Calculator
	ScoreStore storage.HealthScoreStore
	Hub        *broadcast.Hub
	Redis      *broadcast.RedisPublisher

	Interval  time.Duration // Default: 60s
	Freshness time.Duration // Default: 5m
	Metrics   *observability.Metrics
	Logger    *log.Logger
}

// NewScheduler creates a scheduler.
func NewScheduler(opts SchedulerOptions) *Scheduler {
	interval := opts.Interval
	if interval == 0 {
		interval = DefaultInterval
	}
	freshness := opts.Freshness
	if freshness == 0 {
		freshness = DefaultFreshness
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Scheduler{
		calculator: opts.Calculator,
		scoreStore: opts.ScoreStore,
		hub:        opts.Hub,
		redis:      opts.Redis,
		interval:   interval,
		freshness:  freshness,
		metrics:    opts.Metrics,
		logger:     logger,
	}
}

// Run executes scoring cycles until the context is cancelled. The first
// cycle runs immediately.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Printf("[orchestrator] scheduler started, interval %v", s.interval)

	s.RunCycle(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Println("[orchestrator] scheduler stopping")
			return ctx.Err()
		case <-ticker.C:
			s.RunCycle(ctx)
		}
	}
}

// RunCycle computes one score, persists it, and broadcasts it. The record is
// always returned, even when the sinks fail.
func (s *Scheduler) RunCycle(ctx context.Context) *domain.HealthScoreRecord {
	start := time.Now()
	record := s.calculator.Calculate(ctx, time.Now().UTC())

	if s.scoreStore != nil {
		if err := s.scoreStore.Insert(ctx, record); err != nil {
			s.logger.Printf("[orchestrator] persist score failed: %v", err)
		}
	}

	if s.hub != nil {
		if err := s.hub.Publish(broadcast.ChannelNetworkHealth, record); err != nil {
			s.logger.Printf("[orchestrator] hub publish failed: %v", err)
		}
	}
	if s.redis != nil {
		if err := s.redis.Publish(ctx, broadcast.ChannelNetworkHealth, record); err != nil {
			s.logger.Printf("[orchestrator] redis publish failed: %v", err)
		}
	}

	s.recordCycleMetrics(record, time.Since(start))
	return record
}

// Current returns the latest stored record when it is fresh enough,
// otherwise it runs a cycle on demand.
func (s *Scheduler) Current(ctx context.Context) (*domain.HealthScoreRecord, error) {
	if s.scoreStore != nil {
		latest, err := s.scoreStore.GetLatest(ctx)
		switch {
		case err == nil:
			if time.Now().UTC().Sub(latest.Timestamp) <= s.freshness {
				return latest, nil
			}
		case errors.Is(err, storage.ErrNotFound):
			// No score yet, compute the first one.
		default:
			s.logger.Printf("[orchestrator] latest score lookup failed: %v", err)
		}
	}

	return s.RunCycle(ctx), nil
}

// History returns stored records for the trailing window.
func (s *Scheduler) History(ctx context.Context, window time.Duration) ([]*domain.HealthScoreRecord, error) {
	if s.scoreStore == nil {
		return nil, nil
	}
	now := time.Now().UTC()
	return s.scoreStore.GetByTimeRange(ctx, now.Add(-window), now)
}

func (s *Scheduler) recordCycleMetrics(record *domain.HealthScoreRecord, elapsed time.Duration) {
	if s.metrics == nil {
		return
	}

	status := "ok"
	if record.HealthStatus == domain.StatusUnknown {
		status = "fallback"
	}
	s.metrics.ScoringCycles.WithLabelValues(status).Inc()
	s.metrics.ScoringDuration.Observe(elapsed.Seconds())
	s.metrics.RecordScore(record.OverallScore, record.ConfidenceLevel, record.ComponentScores)

	for _, anomaly := range record.Anomalies {
		s.metrics.AnomaliesDetected.WithLabelValues(anomaly.Metric, string(anomaly.Severity)).Inc()
	}

	if status == "ok" {
		s.metrics.LastSuccessfulScore.Set(float64(record.Timestamp.Unix()))
	}
}
