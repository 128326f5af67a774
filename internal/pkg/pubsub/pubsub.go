package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/qs3c/quota_relay/internal/model/dto"
)

const DefaultNoticeChannel = "relay:notices"

var ErrEmptyNotice = errors.New("notice has no target chat")

// Publisher 把出站通知发布到 Redis 频道，供聊天网关订阅发送
type Publisher struct {
	client  *redis.Client
	channel string
}

// NewPublisher channel 为空时使用 DefaultNoticeChannel
func NewPublisher(client *redis.Client, channel string) *Publisher {
	if channel == "" {
		channel = DefaultNoticeChannel
	}
	return &Publisher{client: client, channel: channel}
}

// Notify 发布一条通知，实现 bot.Notifier
func (p *Publisher) Notify(ctx context.Context, notice *dto.Notice) error {
	if notice == nil || notice.ChatID == 0 {
		return ErrEmptyNotice
	}

	data, err := json.Marshal(notice)
	if err != nil {
		return fmt.Errorf("failed to marshal notice: %w", err)
	}

	return p.client.Publish(ctx, p.channel, data).Err()
}

// Subscriber 通知订阅者
type Subscriber struct {
	client  *redis.Client
	channel string
}

func NewSubscriber(client *redis.Client, channel string) *Subscriber {
	if channel == "" {
		channel = DefaultNoticeChannel
	}
	return &Subscriber{client: client, channel: channel}
}

// Subscribe 阻塞消费通知直到 ctx 结束
func (s *Subscriber) Subscribe(ctx context.Context, handler func(*dto.Notice)) error {
	ps := s.client.Subscribe(ctx, s.channel)
	defer ps.Close()

	// 确认订阅成功再开始消费
	if _, err := ps.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe %s: %w", s.channel, err)
	}

	ch := ps.Channel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			var notice dto.Notice
			if err := json.Unmarshal([]byte(msg.Payload), &notice); err != nil {
				continue // 忽略解析错误
			}

			handler(&notice)
		}
	}
}
