package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/devicehub/devicehub/internal/jobs"
)

type stubPurger struct {
	paid, ledger         int64
	err                  error
	paidRuns, ledgerRuns int
}

func (s *stubPurger) PurgePaid(context.Context) (int64, error) {
	s.paidRuns++
	return s.paid, s.err
}

func (s *stubPurger) PurgeLedger(context.Context) (int64, error) {
	s.ledgerRuns++
	return s.ledger, s.err
}

type stubCleaner struct {
	olderThan time.Duration
	n         int64
}

func (s *stubCleaner) Cleanup(_ context.Context, olderThan time.Duration) (int64, error) {
	s.olderThan = olderThan
	return s.n, nil
}

type stubWarmer struct {
	calls    int
	deadline bool
	err      error
}

func (s *stubWarmer) Warm(ctx context.Context) error {
	s.calls++
	_, s.deadline = ctx.Deadline()
	return s.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRetentionJobPurgesPaidAndLedger(t *testing.T) {
	purger := &stubPurger{paid: 3, ledger: 5}
	job := NewRetentionJob(purger, nil, discardLogger(), jobmetrics.NewMetrics(prometheus.NewRegistry()))

	task, err := NewPurgePaidTask(RetentionPayload{RequestedBy: "cron"})
	require.NoError(t, err)
	require.Equal(t, TaskPurgePaid, task.Type())
	require.NoError(t, job.HandlePurgePaid(context.Background(), task))

	task, err = NewPurgeLedgerTask(RetentionPayload{})
	require.NoError(t, err)
	require.NoError(t, job.HandlePurgeLedger(context.Background(), task))

	assert.Equal(t, 1, purger.paidRuns)
	assert.Equal(t, 1, purger.ledgerRuns)
}

func TestRetentionJobPropagatesFailure(t *testing.T) {
	boom := errors.New("db down")
	job := NewRetentionJob(&stubPurger{err: boom}, nil, discardLogger(), jobmetrics.NewMetrics(prometheus.NewRegistry()))
	task, err := NewPurgeLedgerTask(RetentionPayload{})
	require.NoError(t, err)
	require.ErrorIs(t, job.HandlePurgeLedger(context.Background(), task), boom)
}

func TestRetentionJobRejectsMalformedPayload(t *testing.T) {
	job := NewRetentionJob(&stubPurger{}, nil, discardLogger(), jobmetrics.NewMetrics(prometheus.NewRegistry()))
	err := job.HandlePurgePaid(context.Background(), asynq.NewTask(TaskPurgePaid, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestIdempotencyCleanupUsesPayloadOrDefault(t *testing.T) {
	cleaner := &stubCleaner{n: 2}
	job := NewRetentionJob(nil, cleaner, discardLogger(), jobmetrics.NewMetrics(prometheus.NewRegistry()))

	require.NoError(t, job.HandleIdempotencyCleanup(context.Background(), asynq.NewTask(TaskIdempotencyCleanup, nil)))
	assert.Equal(t, 7*24*time.Hour, cleaner.olderThan)

	task, err := NewIdempotencyCleanupTask(RetentionPayload{OlderThan: time.Hour})
	require.NoError(t, err)
	require.NoError(t, job.HandleIdempotencyCleanup(context.Background(), task))
	assert.Equal(t, time.Hour, cleaner.olderThan)
}

func TestUnconfiguredJobsFail(t *testing.T) {
	var retention *RetentionJob
	require.Error(t, retention.HandlePurgePaid(context.Background(), asynq.NewTask(TaskPurgePaid, nil)))
	require.Error(t, (&RetentionJob{}).HandleIdempotencyCleanup(context.Background(), asynq.NewTask(TaskIdempotencyCleanup, nil)))
	require.Error(t, (&DashboardWarmupJob{}).Handle(context.Background(), asynq.NewTask(TaskDashboardWarmup, nil)))
}

func TestDashboardWarmupRunsWithTimeout(t *testing.T) {
	warmer := &stubWarmer{}
	job := NewDashboardWarmupJob(warmer, discardLogger(), jobmetrics.NewMetrics(prometheus.NewRegistry()))
	task, err := NewDashboardWarmupTask(DashboardWarmupPayload{RequestedBy: "import"})
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, 1, warmer.calls)
	assert.True(t, warmer.deadline)

	warmer.err = errors.New("redis gone")
	require.ErrorIs(t, job.Handle(context.Background(), task), warmer.err)
}

func TestHealthWithoutInspector(t *testing.T) {
	h := NewHandler(nil, discardLogger())
	r := chi.NewRouter()
	r.Route("/jobs", h.MountRoutes)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"queue":"default","pending":0,"active":0,"retry":0,"archived":0}`, rec.Body.String())
}
