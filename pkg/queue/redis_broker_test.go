package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/wentf9/xdeploy/pkg/config"
)

func newRedisBroker(t *testing.T, now time.Time) (*RedisBroker, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	b := NewRedisBroker(client, "test", "default", config.DefaultVisibilityTimeout)
	b.now = func() time.Time { return now }
	t.Cleanup(func() { _ = b.Close() })
	return b, s
}

func TestRedisBrokerPushReserveAck(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2018, 1, 2, 15, 4, 0, 0, time.UTC)
	b, s := newRedisBroker(t, now)

	require.NoError(t, b.Push(ctx, Message{ID: "1", Task: "ops.ping"}))
	require.NoError(t, b.Push(ctx, Message{ID: "2", Task: "ops.ping"}))

	d, err := b.Reserve(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, d)
	require.Equal(t, "1", d.ID, "FIFO order")
	require.Equal(t, now.Add(config.DefaultVisibilityTimeout), d.Deadline)

	ready, scheduled, unacked, err := b.Pending(ctx)
	require.NoError(t, err)
	require.Equal(t, [3]int64{1, 0, 1}, [3]int64{ready, scheduled, unacked})

	require.NoError(t, b.Ack(ctx, d))
	_, _, unacked, err = b.Pending(ctx)
	require.NoError(t, err)
	require.Zero(t, unacked)
	require.True(t, s.Exists("test:queue:default"))
}

func TestRedisBrokerVisibilityTimeout(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2018, 1, 2, 15, 4, 0, 0, time.UTC)
	b, _ := newRedisBroker(t, now)

	require.NoError(t, b.Push(ctx, Message{ID: "slow", Task: "ops.backup"}))
	d, err := b.Reserve(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, d)

	n, err := b.RequeueExpired(ctx, now.Add(6*24*time.Hour))
	require.NoError(t, err)
	require.Zero(t, n, "nothing shorter than a week redelivers")

	n, err = b.RequeueExpired(ctx, now.Add(config.DefaultVisibilityTimeout+time.Second))
	require.NoError(t, err)
	require.Equal(t, 1, n)

	again, err := b.Reserve(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, again)
	require.Equal(t, "slow", again.ID)
}

func TestRedisBrokerSchedule(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2018, 1, 2, 15, 4, 0, 0, time.UTC)
	b, _ := newRedisBroker(t, now)

	eta := now.Add(time.Hour)
	require.NoError(t, b.Schedule(ctx, Message{ID: "later", Task: "ops.ping"}, eta))

	n, err := b.PromoteDue(ctx, now.Add(59*time.Minute))
	require.NoError(t, err)
	require.Zero(t, n)

	n, err = b.PromoteDue(ctx, eta)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	d, err := b.Reserve(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, d)
	require.Equal(t, "later", d.ID)
	require.True(t, d.ETA.Equal(eta))
}
