package queue

import (
	"context"
	"testing"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/require"
)

func TestWorkerRunOnce(t *testing.T) {
	ctx := context.Background()
	app, b, r := newTestApp(t, "test")
	w := NewWorker(app)
	w.Poll = 10 * time.Millisecond

	_, err := app.Send(ctx, "test.echo", map[string]string{"Text": "hello"}, SendOptions{})
	require.NoError(t, err)

	ok, err := w.RunOnce(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "hello", <-echoed)
	require.Zero(t, r.count())

	ok, err = w.RunOnce(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	_, _, unacked := b.Len()
	require.Zero(t, unacked)
}

func TestWorkerReportsFailuresAndAcks(t *testing.T) {
	ctx := context.Background()
	app, b, r := newTestApp(t, "test")
	w := NewWorker(app)
	w.Poll = 10 * time.Millisecond

	failID, err := app.Send(ctx, "test.fail", nil, SendOptions{})
	require.NoError(t, err)
	panicID, err := app.Send(ctx, "test.panic", nil, SendOptions{})
	require.NoError(t, err)

	for range 2 {
		ok, err := w.RunOnce(ctx)
		require.NoError(t, err)
		require.True(t, ok)
	}

	require.Equal(t, 2, r.count())
	require.Equal(t, TaskInfo{ID: failID, Task: "test.fail"}, r.reports[0])
	require.EqualError(t, r.errs[0], "boom")
	require.Equal(t, TaskInfo{ID: panicID, Task: "test.panic"}, r.reports[1])
	require.ErrorIs(t, r.errs[1], ErrTaskPanic)

	ready, _, unacked := b.Len()
	require.Zero(t, ready, "failed tasks are not retried")
	require.Zero(t, unacked)
}

func TestWorkerUnknownTaskReported(t *testing.T) {
	ctx := context.Background()
	app, b, r := newTestApp(t, "test")
	require.NoError(t, b.Push(ctx, Message{ID: "x", Task: "missing.task"}))

	ok, err := NewWorker(app).RunOnce(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 1, r.count())
	require.ErrorIs(t, r.errs[0], ErrUnknownTask)
}

func TestWorkerRequiresReporter(t *testing.T) {
	app, _, _ := newTestApp(t, "test")
	app.Reporter = nil
	w := NewWorker(app)

	require.ErrorIs(t, w.Run(context.Background()), ErrNoReporter)
	_, err := w.RunOnce(context.Background())
	require.ErrorIs(t, err, ErrNoReporter)
}

func TestWorkerRunPromotesAndProcesses(t *testing.T) {
	app, _, _ := newTestApp(t, "test")
	w := NewWorker(app)
	w.Poll = 10 * time.Millisecond
	w.Maintain = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ETA 等于当前时间, 由维护循环提升到就绪队列
	require.NoError(t, app.Broker.Schedule(ctx, Message{ID: "due", Task: "test.echo", Payload: []byte(`{"Text":"due"}`)}, fixedNow))

	errc := make(chan error, 1)
	go func() { errc <- w.Run(ctx) }()

	select {
	case got := <-echoed:
		require.Equal(t, "due", got)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduled task was not processed")
	}
	cancel()
	require.NoError(t, <-errc)
}

func TestSentryReporterTagsEvent(t *testing.T) {
	events := make(chan *sentry.Event, 1)
	r, err := NewSentryReporter(sentry.ClientOptions{
		Dsn: "https://public@example.com/1",
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			events <- event
			return nil
		},
	})
	require.NoError(t, err)

	r.Report(context.Background(), TaskInfo{ID: "42", Task: "ops.backup"}, ErrTaskPanic)

	select {
	case ev := <-events:
		require.Equal(t, "ops.backup", ev.Tags["task"])
		require.Equal(t, "42", ev.Tags["task_id"])
	case <-time.After(5 * time.Second):
		t.Fatal("no event captured")
	}
}
