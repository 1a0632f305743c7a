package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/devicehub/devicehub/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

const defaultIdempotencyTTL = 7 * 24 * time.Hour

// PayoutPurger removes payout records past their windows.
type PayoutPurger interface {
	PurgePaid(ctx context.Context) (int64, error)
	PurgeLedger(ctx context.Context) (int64, error)
}

// KeyCleaner removes idempotency keys older than a given age.
type KeyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// RetentionJob enforces the retention windows of paid repairs, the payout
// ledger and idempotency keys.
type RetentionJob struct {
	Payouts PayoutPurger
	Keys    KeyCleaner
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	KeyTTL  time.Duration
}

// NewRetentionJob wires dependencies for the retention handlers.
func NewRetentionJob(payouts PayoutPurger, keys KeyCleaner, logger *slog.Logger, metrics *jobmetrics.Metrics) *RetentionJob {
	return &RetentionJob{Payouts: payouts, Keys: keys, Logger: logger, Metrics: metrics, KeyTTL: defaultIdempotencyTTL}
}

// HandlePurgePaid processes TaskPurgePaid tasks.
func (j *RetentionJob) HandlePurgePaid(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Payouts == nil {
		return errors.New("purge paid: handler not configured")
	}
	return j.run(ctx, t, TaskPurgePaid, "paid_repairs", func(ctx context.Context, _ RetentionPayload) (int64, error) {
		return j.Payouts.PurgePaid(ctx)
	})
}

// HandlePurgeLedger processes TaskPurgeLedger tasks.
func (j *RetentionJob) HandlePurgeLedger(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Payouts == nil {
		return errors.New("purge ledger: handler not configured")
	}
	return j.run(ctx, t, TaskPurgeLedger, "ledger", func(ctx context.Context, _ RetentionPayload) (int64, error) {
		return j.Payouts.PurgeLedger(ctx)
	})
}

// HandleIdempotencyCleanup processes TaskIdempotencyCleanup tasks.
func (j *RetentionJob) HandleIdempotencyCleanup(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Keys == nil {
		return errors.New("idempotency cleanup: handler not configured")
	}
	return j.run(ctx, t, TaskIdempotencyCleanup, "idempotency_keys", func(ctx context.Context, payload RetentionPayload) (int64, error) {
		ttl := payload.OlderThan
		if ttl <= 0 {
			ttl = j.KeyTTL
		}
		if ttl <= 0 {
			ttl = defaultIdempotencyTTL
		}
		return j.Keys.Cleanup(ctx, ttl)
	})
}

func (j *RetentionJob) run(ctx context.Context, t *asynq.Task, job, kind string, purge func(context.Context, RetentionPayload) (int64, error)) error {
	var payload RetentionPayload
	if err := decodePayload(t, &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(job)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger(job)
	if payload.RequestedBy != "" {
		logger = logger.With(slog.String("requested_by", payload.RequestedBy))
	}
	start := time.Now()
	n, err := purge(ctx, payload)
	if err != nil {
		resultErr = err
		logger.Error("retention purge failed", slog.Any("error", err))
		return resultErr
	}
	j.metrics().AddPurged(kind, n)
	logger.Info("retention purge completed", slog.Int64("deleted", n), slog.Duration("duration", time.Since(start)))
	return resultErr
}

func (j *RetentionJob) logger(job string) *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", job))
	}
	return slog.Default().With(slog.String("job", job))
}

func (j *RetentionJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
