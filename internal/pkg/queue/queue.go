package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/qs3c/quota_relay/internal/model/dto"
)

type EventKind string

const (
	KindCommand  EventKind = "command"
	KindCallback EventKind = "callback"
)

var ErrEmptyEnvelope = errors.New("envelope carries no event")

// Queue 网关推送的入站事件队列（Redis list，LPUSH / BRPOP）
type Queue struct {
	client    *redis.Client
	queueName string
}

// Envelope 队列中的一条事件，Command 与 Callback 二选一
type Envelope struct {
	Kind       EventKind          `json:"kind"`
	Command    *dto.CommandEvent  `json:"command,omitempty"`
	Callback   *dto.CallbackEvent `json:"callback,omitempty"`
	EnqueuedAt time.Time          `json:"enqueued_at"`
}

func CommandEnvelope(ev *dto.CommandEvent) *Envelope {
	return &Envelope{Kind: KindCommand, Command: ev}
}

func CallbackEnvelope(ev *dto.CallbackEvent) *Envelope {
	return &Envelope{Kind: KindCallback, Callback: ev}
}

func (e *Envelope) validate() error {
	switch {
	case e.Kind == KindCommand && e.Command != nil:
		return nil
	case e.Kind == KindCallback && e.Callback != nil:
		return nil
	default:
		return ErrEmptyEnvelope
	}
}

func NewQueue(client *redis.Client, queueName string) *Queue {
	return &Queue{
		client:    client,
		queueName: queueName,
	}
}

// Push 将事件加入队列
func (q *Queue) Push(ctx context.Context, env *Envelope) error {
	if err := env.validate(); err != nil {
		return err
	}
	if env.EnqueuedAt.IsZero() {
		env.EnqueuedAt = time.Now().UTC()
	}

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	return q.client.LPush(ctx, q.queueName, data).Err()
}

// Pop 阻塞获取事件，超时返回 nil, nil
func (q *Queue) Pop(ctx context.Context, timeout time.Duration) (*Envelope, error) {
	result, err := q.client.BRPop(ctx, timeout, q.queueName).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to pop from queue: %w", err)
	}

	if len(result) < 2 {
		return nil, nil
	}

	var env Envelope
	if err := json.Unmarshal([]byte(result[1]), &env); err != nil {
		return nil, fmt.Errorf("failed to unmarshal envelope: %w", err)
	}
	if err := env.validate(); err != nil {
		return nil, err
	}

	return &env, nil
}

// Length 获取队列长度
func (q *Queue) Length(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.queueName).Result()
}
