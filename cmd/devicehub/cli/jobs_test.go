package cli

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/devicehub/devicehub/jobs"
)

type stubEnqueuer struct {
	tasks []*asynq.Task
}

func (s *stubEnqueuer) Enqueue(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	s.tasks = append(s.tasks, task)
	return &asynq.TaskInfo{ID: "t-1", Type: task.Type(), Queue: jobs.QueueDefault}, nil
}

func (s *stubEnqueuer) Close() error { return nil }

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) { return s.info, s.err }

func (s stubInspector) ListScheduledTasks(string, ...asynq.ListOption) ([]*asynq.TaskInfo, error) {
	return nil, s.err
}

func (s stubInspector) Close() error { return nil }

func TestTriggerEnqueuesKnownJobs(t *testing.T) {
	client := &stubEnqueuer{}
	cli := &JobsCLI{client: client}

	for _, name := range []string{"purge-paid", "purge-ledger", "cleanup-keys", "warmup"} {
		_, err := cli.Trigger(context.Background(), name)
		require.NoError(t, err, name)
	}
	require.Len(t, client.tasks, 4)
	require.Equal(t, jobs.TaskPurgePaid, client.tasks[0].Type())
	require.Equal(t, jobs.TaskPurgeLedger, client.tasks[1].Type())
	require.Equal(t, jobs.TaskIdempotencyCleanup, client.tasks[2].Type())
	require.Equal(t, jobs.TaskDashboardWarmup, client.tasks[3].Type())

	_, err := cli.Trigger(context.Background(), "reindex")
	require.Error(t, err)
}

func TestCommandOutputs(t *testing.T) {
	cli := &JobsCLI{
		client:    &stubEnqueuer{},
		inspector: stubInspector{info: &asynq.QueueInfo{Queue: "default", Pending: 2, Retry: 1}},
	}

	stdout := new(bytes.Buffer)
	code := cli.Command(context.Background(), JobsOptions{Action: "stats", JSONOutput: true, Stdout: stdout, Stderr: new(bytes.Buffer)})
	require.Equal(t, 0, code)
	require.JSONEq(t, `{"queue":"default","pending":2,"active":0,"scheduled":0,"retry":1}`, stdout.String())

	stdout.Reset()
	code = cli.Command(context.Background(), JobsOptions{Action: "purge-paid", Stdout: stdout, Stderr: new(bytes.Buffer)})
	require.Equal(t, 0, code)
	require.Equal(t, "enqueued payouts:purge_paid as t-1 on default\n", stdout.String())

	stderr := new(bytes.Buffer)
	require.Equal(t, 2, cli.Command(context.Background(), JobsOptions{Stdout: stdout, Stderr: stderr}))
	require.Contains(t, stderr.String(), "cleanup-keys|purge-ledger|purge-paid|warmup")
}

func TestCommandReportsInspectorFailure(t *testing.T) {
	cli := &JobsCLI{inspector: stubInspector{err: errors.New("redis down")}}
	stderr := new(bytes.Buffer)
	require.Equal(t, 1, cli.Command(context.Background(), JobsOptions{Action: "stats", Stdout: new(bytes.Buffer), Stderr: stderr}))
	require.Contains(t, stderr.String(), "redis down")
}
