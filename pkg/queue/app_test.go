package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wentf9/xdeploy/pkg/config"
	"github.com/wentf9/xdeploy/pkg/utils/concurrent"
)

var echoed = make(chan string, 16)

func init() {
	Register("test.echo", func(ctx context.Context, payload json.RawMessage) error {
		var v struct{ Text string }
		if err := json.Unmarshal(payload, &v); err != nil {
			return err
		}
		echoed <- v.Text
		return nil
	})
	Register("test.fail", func(context.Context, json.RawMessage) error {
		return errors.New("boom")
	})
	Register("test.panic", func(context.Context, json.RawMessage) error {
		panic("kaboom")
	})
	Register("other.noop", func(context.Context, json.RawMessage) error { return nil })
}

type recordingReporter struct {
	mu      sync.Mutex
	reports []TaskInfo
	errs    []error
}

func (r *recordingReporter) Report(_ context.Context, info TaskInfo, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, info)
	r.errs = append(r.errs, err)
}

func (r *recordingReporter) Flush(time.Duration) bool { return true }

func (r *recordingReporter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reports)
}

var fixedNow = time.Date(2018, 1, 2, 15, 4, 0, 0, time.UTC)

func testSettings(imports ...string) *config.Settings {
	s := config.Defaults()
	s.Project = "demo"
	s.Queue.Imports = imports
	return &s
}

func newTestApp(t *testing.T, imports ...string) (*App, *MemoryBroker, *recordingReporter) {
	t.Helper()
	b := NewMemoryBroker(config.DefaultVisibilityTimeout, func() time.Time { return fixedNow })
	r := &recordingReporter{}
	app, err := New(testSettings(imports...), WithBroker(b), WithReporter(r), WithClock(func() time.Time { return fixedNow }))
	require.NoError(t, err)
	return app, b, r
}

func TestRegisterDuplicatePanics(t *testing.T) {
	require.Panics(t, func() {
		Register("test.echo", func(context.Context, json.RawMessage) error { return nil })
	})
	require.Panics(t, func() { Register("", nil) })
}

func TestRegisterNewNameOnce(t *testing.T) {
	h := func(context.Context, json.RawMessage) error { return nil }
	require.NotPanics(t, func() { Register("once.task", h) })
	require.Panics(t, func() { Register("once.task", h) })
}

func TestAutodiscoverFiltersByImports(t *testing.T) {
	app, _, _ := newTestApp(t, "test")
	require.Equal(t, []string{"test.echo", "test.fail", "test.panic"}, app.Tasks())
	require.Zero(t, app.Autodiscover())

	fresh := &App{Config: testSettings("test").Queue, tasks: concurrent.NewMap[string, Handler](concurrent.HashString)}
	require.Equal(t, 3, fresh.Autodiscover())
	require.Equal(t, app.Tasks(), fresh.Tasks())

	all, _, _ := newTestApp(t)
	require.Subset(t, all.Tasks(), []string{"other.noop", "test.echo"})
}

func TestNewInstallsReporter(t *testing.T) {
	b := NewMemoryBroker(time.Hour, nil)

	app, err := New(testSettings(), WithBroker(b))
	require.NoError(t, err)
	require.IsType(t, LogReporter{}, app.Reporter)

	s := testSettings()
	s.Sentry.DSN = "https://public@example.com/1"
	app, err = New(s, WithBroker(b))
	require.NoError(t, err)
	require.IsType(t, &SentryReporter{}, app.Reporter)

	s.Sentry.DSN = "not a dsn"
	_, err = New(s, WithBroker(b))
	require.Error(t, err)
}

func TestNewDefaultsToRedisBroker(t *testing.T) {
	s := testSettings()
	s.Queue.BrokerURL = "redis://localhost:6379/2"
	app, err := New(s, WithReporter(LogReporter{}))
	require.NoError(t, err)
	require.IsType(t, &RedisBroker{}, app.Broker)
	require.NoError(t, app.Close())
}

func TestBootstrapIsSingleton(t *testing.T) {
	b := NewMemoryBroker(time.Hour, nil)
	first, err := Bootstrap(testSettings(), WithBroker(b))
	require.NoError(t, err)
	second, err := Bootstrap(testSettings("other"))
	require.NoError(t, err)
	require.Same(t, first, second)
	require.Same(t, first, Current())
}

func TestSendUnknownTask(t *testing.T) {
	app, b, _ := newTestApp(t, "test")
	_, err := app.Send(context.Background(), "other.noop", nil, SendOptions{})
	require.ErrorIs(t, err, ErrUnknownTask)
	ready, scheduled, _ := b.Len()
	require.Zero(t, ready+scheduled)
}

func TestSendImmediateAndDelayed(t *testing.T) {
	ctx := context.Background()
	app, b, _ := newTestApp(t, "test")

	id, err := app.Send(ctx, "test.echo", map[string]string{"Text": "hi"}, SendOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	_, err = app.Send(ctx, "test.echo", nil, SendOptions{Countdown: time.Minute})
	require.NoError(t, err)
	_, err = app.Send(ctx, "test.echo", nil, SendOptions{ETA: fixedNow.Add(-time.Minute)})
	require.NoError(t, err)

	ready, scheduled, _ := b.Len()
	require.Equal(t, 2, ready, "past ETA is sent immediately")
	require.Equal(t, 1, scheduled)
}
