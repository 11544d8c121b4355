package queue

import (
	"context"
	"sync"
	"time"
)

// MemoryBroker 进程内 broker, 用于测试和单进程场景
type MemoryBroker struct {
	mu         sync.Mutex
	visibility time.Duration
	now        func() time.Time
	ready      []string
	scheduled  map[string]time.Time
	unacked    map[string]time.Time
	signal     chan struct{}
}

func NewMemoryBroker(visibility time.Duration, now func() time.Time) *MemoryBroker {
	if now == nil {
		now = time.Now
	}
	return &MemoryBroker{
		visibility: visibility,
		now:        now,
		scheduled:  map[string]time.Time{},
		unacked:    map[string]time.Time{},
		signal:     make(chan struct{}, 1),
	}
}

func (b *MemoryBroker) notify() {
	select {
	case b.signal <- struct{}{}:
	default:
	}
}

func (b *MemoryBroker) Push(ctx context.Context, msg Message) error {
	raw, err := encode(msg)
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.ready = append(b.ready, raw)
	b.mu.Unlock()
	b.notify()
	return nil
}

func (b *MemoryBroker) Schedule(ctx context.Context, msg Message, eta time.Time) error {
	msg.ETA = eta
	raw, err := encode(msg)
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.scheduled[raw] = eta
	b.mu.Unlock()
	return nil
}

func (b *MemoryBroker) pop() (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.ready) == 0 {
		return "", false
	}
	raw := b.ready[0]
	b.ready = b.ready[1:]
	b.unacked[raw] = b.now().Add(b.visibility)
	return raw, true
}

func (b *MemoryBroker) Reserve(ctx context.Context, wait time.Duration) (*Delivery, error) {
	timer := time.NewTimer(wait)
	defer timer.Stop()
	for {
		if raw, ok := b.pop(); ok {
			msg, err := decode(raw)
			if err != nil {
				return nil, err
			}
			b.mu.Lock()
			deadline := b.unacked[raw]
			b.mu.Unlock()
			return &Delivery{Message: msg, Deadline: deadline, raw: raw}, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return nil, nil
		case <-b.signal:
		}
	}
}

func (b *MemoryBroker) Ack(ctx context.Context, d *Delivery) error {
	b.mu.Lock()
	delete(b.unacked, d.raw)
	b.mu.Unlock()
	return nil
}

func (b *MemoryBroker) PromoteDue(ctx context.Context, now time.Time) (int, error) {
	return b.move(b.scheduled, now), nil
}

func (b *MemoryBroker) RequeueExpired(ctx context.Context, now time.Time) (int, error) {
	return b.move(b.unacked, now), nil
}

func (b *MemoryBroker) move(set map[string]time.Time, now time.Time) int {
	b.mu.Lock()
	moved := 0
	for raw, at := range set {
		if at.After(now) {
			continue
		}
		delete(set, raw)
		b.ready = append(b.ready, raw)
		moved++
	}
	b.mu.Unlock()
	if moved > 0 {
		b.notify()
	}
	return moved
}

// Len 就绪, 延时, 未确认三类消息的数量
func (b *MemoryBroker) Len() (ready, scheduled, unacked int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.ready), len(b.scheduled), len(b.unacked)
}

func (b *MemoryBroker) Close() error { return nil }
