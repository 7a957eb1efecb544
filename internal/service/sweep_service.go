package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/vial-compliance-api/internal/models"
	"github.com/noah-isme/vial-compliance-api/internal/repository"
	"github.com/noah-isme/vial-compliance-api/pkg/jobs"
)

const sweepJobType = "enrollment_sweep"

type sweepStore interface {
	ListSweepCandidates(ctx context.Context, today, abandonedBefore time.Time, afterID string, limit int) ([]models.SweepCandidate, error)
	SweepStatus(ctx context.Context, id string, version int, from, to models.EnrollmentStatus) error
}

// SweepConfig tunes the expiration sweep.
type SweepConfig struct {
	Interval   time.Duration
	BatchSize  int
	Workers    int
	Retries    int
	RetryDelay time.Duration
	Rules      LifecycleRules
	Location   *time.Location
	Now        func() time.Time
}

// SweepResult summarises one pass.
type SweepResult struct {
	Scanned   int `json:"scanned"`
	Updated   int `json:"updated"`
	Conflicts int `json:"conflicts"`
	Failed    int `json:"failed"`
}

type sweepTask struct {
	candidate models.SweepCandidate
	target    models.EnrollmentStatus
}

// SweepService writes EXPIRED back to storage for rows whose validity has
// lapsed. INCOMPLETE stays derived on read so a late owner can still complete
// their own enrollment. The sweep never changes dates, and a row that changed
// underneath it is left for the next pass.
type SweepService struct {
	repo    sweepStore
	cfg     SweepConfig
	metrics *MetricsService
	cache   *CacheService
	audit   auditTrail
	logger  *zap.Logger
}

// NewSweepService constructs SweepService.
func NewSweepService(repo sweepStore, cfg SweepConfig, cache *CacheService, metrics *MetricsService, audit AuditWriter, logger *zap.Logger) *SweepService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 200
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 500 * time.Millisecond
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	cfg.Rules = cfg.Rules.normalised()
	return &SweepService{
		repo:    repo,
		cfg:     cfg,
		metrics: metrics,
		cache:   cache,
		audit:   auditTrail{writer: audit, logger: logger},
		logger:  logger,
	}
}

// RunOnce performs a full pass over the candidates due today.
func (s *SweepService) RunOnce(ctx context.Context) (SweepResult, error) {
	start := time.Now()
	today := CivilDate(s.cfg.Now(), s.cfg.Location)
	abandonedBefore := today.AddDate(0, 0, -s.cfg.Rules.ValidityDays)

	var updated, conflicts atomic.Int64
	queue := jobs.NewQueue(sweepJobType, func(jobCtx context.Context, job jobs.Job) error {
		task, ok := job.Payload.(sweepTask)
		if !ok {
			return nil
		}
		err := s.apply(jobCtx, task)
		switch {
		case err == nil:
			updated.Add(1)
		case errors.Is(err, repository.ErrVersionConflict):
			conflicts.Add(1)
			return nil
		}
		return err
	}, jobs.QueueConfig{
		Workers:    s.cfg.Workers,
		BufferSize: s.cfg.BatchSize,
		MaxRetries: s.cfg.Retries,
		RetryDelay: s.cfg.RetryDelay,
		Logger:     s.logger,
	})
	queue.Start(ctx)
	defer queue.Stop()

	result := SweepResult{}
	afterID := ""
	for {
		batch, err := s.repo.ListSweepCandidates(ctx, today, abandonedBefore, afterID, s.cfg.BatchSize)
		if err != nil {
			return result, fmt.Errorf("list sweep candidates: %w", err)
		}
		for _, candidate := range batch {
			result.Scanned++
			target := s.targetFor(candidate, today)
			if target == candidate.Status {
				continue
			}
			if err := queue.Enqueue(jobs.Job{ID: candidate.ID, Type: sweepJobType, Payload: sweepTask{candidate: candidate, target: target}}); err != nil {
				return result, err
			}
		}
		if len(batch) < s.cfg.BatchSize {
			break
		}
		afterID = batch[len(batch)-1].ID
	}

	if err := queue.Drain(ctx); err != nil {
		return result, err
	}
	result.Updated = int(updated.Load())
	result.Conflicts = int(conflicts.Load())
	result.Failed = int(queue.Stats().Dropped)

	if result.Updated > 0 {
		s.cache.Invalidate(ctx, reportCachePattern)
	}
	s.metrics.ObserveSweep(time.Since(start))
	s.logger.Info("expiration sweep finished",
		zap.String("today", today.Format("2006-01-02")),
		zap.Int("scanned", result.Scanned),
		zap.Int("updated", result.Updated),
		zap.Int("conflicts", result.Conflicts),
		zap.Int("failed", result.Failed))
	return result, nil
}

// Start runs RunOnce every Interval until ctx is done.
func (s *SweepService) Start(ctx context.Context) {
	if s.cfg.Interval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.Interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
					s.logger.Warn("expiration sweep failed", zap.Error(err))
				}
			}
		}
	}()
}

// targetFor returns the status to store, or the candidate's own status when
// nothing should be written. Only EXPIRED is ever materialized.
func (s *SweepService) targetFor(c models.SweepCandidate, today time.Time) models.EnrollmentStatus {
	eval := s.cfg.Rules.Evaluate(models.Enrollment{
		ID:             c.ID,
		EnrollmentDate: c.EnrollmentDate,
		DeadlineDate:   c.DeadlineDate,
		ExpirationDate: c.ExpirationDate,
		Status:         c.Status,
		Version:        c.Version,
	}, today)
	if eval.EffectiveStatus != models.EnrollmentStatusExpired {
		return c.Status
	}
	return models.EnrollmentStatusExpired
}

func (s *SweepService) apply(ctx context.Context, task sweepTask) error {
	c := task.candidate
	err := s.repo.SweepStatus(ctx, c.ID, c.Version, c.Status, task.target)
	s.metrics.RecordSweepUpdate(string(task.target), sweepOutcome(err))
	if err != nil {
		return err
	}
	s.audit.record(ctx, SystemActor, models.AuditActionEnrollmentSweep, "enrollments", c.ID,
		map[string]interface{}{"status": c.Status, "version": c.Version},
		map[string]interface{}{"status": task.target, "version": c.Version + 1})
	return nil
}

func sweepOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, repository.ErrVersionConflict):
		return "conflict"
	}
	return "error"
}
