package queue

import (
	"context"
	"encoding/json"
	"time"
)

// Message 一条任务消息
type Message struct {
	ID      string          `json:"id"`
	Task    string          `json:"task"`
	Payload json.RawMessage `json:"payload,omitempty"`
	ETA     time.Time       `json:"eta,omitzero"`
	SentAt  time.Time       `json:"sent_at"`
}

// Delivery 已被取出但尚未确认的消息
type Delivery struct {
	Message
	// Deadline 超过这个时间仍未确认的消息会被重新投递
	Deadline time.Time
	raw      string
}

// Broker 消息的存储与投递.
// 取出的消息在可见性超时内必须 Ack, 否则 RequeueExpired 会把它放回就绪队列
type Broker interface {
	// Push 放入就绪队列
	Push(ctx context.Context, msg Message) error
	// Schedule 到达 eta 之后才可被取出
	Schedule(ctx context.Context, msg Message, eta time.Time) error
	// Reserve 最多等待 wait, 没有消息时返回 nil, nil
	Reserve(ctx context.Context, wait time.Duration) (*Delivery, error)
	Ack(ctx context.Context, d *Delivery) error
	// PromoteDue 把到期的延时消息移入就绪队列
	PromoteDue(ctx context.Context, now time.Time) (int, error)
	// RequeueExpired 把超过可见性超时仍未确认的消息放回就绪队列
	RequeueExpired(ctx context.Context, now time.Time) (int, error)
	Close() error
}

func encode(msg Message) (string, error) {
	data, err := json.Marshal(msg)
	return string(data), err
}

func decode(raw string) (Message, error) {
	var msg Message
	err := json.Unmarshal([]byte(raw), &msg)
	return msg, err
}
