package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBroker 使用 Redis 列表作为就绪队列, 两个有序集合分别保存延时消息 (按 eta)
// 和已取出未确认的消息 (按可见性截止时间)
type RedisBroker struct {
	client     *redis.Client
	visibility time.Duration
	now        func() time.Time

	ready     string
	scheduled string
	unacked   string
}

// NewRedisBroker namespace 用作键前缀, queue 为就绪队列名
func NewRedisBroker(client *redis.Client, namespace, queue string, visibility time.Duration) *RedisBroker {
	return &RedisBroker{
		client:     client,
		visibility: visibility,
		now:        time.Now,
		ready:      namespace + ":queue:" + queue,
		scheduled:  namespace + ":scheduled",
		unacked:    namespace + ":unacked",
	}
}

// NewRedisBrokerURL 按 redis:// URL 创建, 不做连通性检查
func NewRedisBrokerURL(url, namespace, queue string, visibility time.Duration) (*RedisBroker, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse broker url: %w", err)
	}
	return NewRedisBroker(redis.NewClient(opts), namespace, queue, visibility), nil
}

func score(t time.Time) float64 { return float64(t.UnixMilli()) }

func (b *RedisBroker) Push(ctx context.Context, msg Message) error {
	raw, err := encode(msg)
	if err != nil {
		return err
	}
	return b.client.LPush(ctx, b.ready, raw).Err()
}

func (b *RedisBroker) Schedule(ctx context.Context, msg Message, eta time.Time) error {
	msg.ETA = eta
	raw, err := encode(msg)
	if err != nil {
		return err
	}
	return b.client.ZAdd(ctx, b.scheduled, redis.Z{Score: score(eta), Member: raw}).Err()
}

func (b *RedisBroker) Reserve(ctx context.Context, wait time.Duration) (*Delivery, error) {
	res, err := b.client.BRPop(ctx, wait, b.ready).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	raw := res[1]
	deadline := b.now().Add(b.visibility)
	if err := b.client.ZAdd(ctx, b.unacked, redis.Z{Score: score(deadline), Member: raw}).Err(); err != nil {
		// 放回队列, 不丢消息
		_ = b.client.RPush(context.WithoutCancel(ctx), b.ready, raw).Err()
		return nil, err
	}
	msg, err := decode(raw)
	if err != nil {
		_ = b.client.ZRem(ctx, b.unacked, raw).Err()
		return nil, fmt.Errorf("decode message: %w", err)
	}
	return &Delivery{Message: msg, Deadline: deadline, raw: raw}, nil
}

func (b *RedisBroker) Ack(ctx context.Context, d *Delivery) error {
	return b.client.ZRem(ctx, b.unacked, d.raw).Err()
}

func (b *RedisBroker) PromoteDue(ctx context.Context, now time.Time) (int, error) {
	return b.move(ctx, b.scheduled, now)
}

func (b *RedisBroker) RequeueExpired(ctx context.Context, now time.Time) (int, error) {
	return b.move(ctx, b.unacked, now)
}

// move 把有序集合中分数不大于 now 的成员移到就绪队列.
// ZREM 成功的 worker 才会推入, 多个 worker 同时维护时不会重复投递
func (b *RedisBroker) move(ctx context.Context, key string, now time.Time) (int, error) {
	members, err := b.client.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatFloat(score(now), 'f', 0, 64),
	}).Result()
	if err != nil {
		return 0, err
	}
	moved := 0
	for _, raw := range members {
		n, err := b.client.ZRem(ctx, key, raw).Result()
		if err != nil {
			return moved, err
		}
		if n == 0 {
			continue
		}
		if err := b.client.LPush(ctx, b.ready, raw).Err(); err != nil {
			return moved, err
		}
		moved++
	}
	return moved, nil
}

// Pending 就绪, 延时, 未确认三类消息的数量
func (b *RedisBroker) Pending(ctx context.Context) (ready, scheduled, unacked int64, err error) {
	pipe := b.client.Pipeline()
	r := pipe.LLen(ctx, b.ready)
	s := pipe.ZCard(ctx, b.scheduled)
	u := pipe.ZCard(ctx, b.unacked)
	if _, err = pipe.Exec(ctx); err != nil {
		return 0, 0, 0, err
	}
	return r.Val(), s.Val(), u.Val(), nil
}

func (b *RedisBroker) Close() error {
	return b.client.Close()
}
