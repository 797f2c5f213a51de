package redis

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"codemail/backend/internal/domain"
)

const eventsChannel = "codemail:events:new_message"

// NewMessageEvent 新邮件事件
type NewMessageEvent struct {
	SessionID string          `json:"session_id"`
	Message   *domain.Message `json:"message"`
}

// EventBus 通过 Redis Pub/Sub 在多个实例间广播新邮件事件
type EventBus struct {
	client *Client
}

// NewEventBus 创建事件总线
func NewEventBus(client *Client) *EventBus {
	return &EventBus{client: client}
}

// NotifyNewMessage 发布新邮件事件
func (b *EventBus) NotifyNewMessage(ctx context.Context, sessionID string, message *domain.Message) {
	payload, err := json.Marshal(NewMessageEvent{SessionID: sessionID, Message: message})
	if err != nil {
		b.client.log.Error("failed to encode new message event", zap.Error(err))
		return
	}
	if err := b.client.rdb.Publish(ctx, eventsChannel, payload).Err(); err != nil {
		b.client.log.Warn("failed to publish new message event",
			zap.String("message_id", message.ID),
			zap.Error(err),
		)
	}
}

// Subscribe 订阅新邮件事件并交给 handler，直到 ctx 结束
func (b *EventBus) Subscribe(ctx context.Context, handler func(ctx context.Context, sessionID string, message *domain.Message)) error {
	sub := b.client.rdb.Subscribe(ctx, eventsChannel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var event NewMessageEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				b.client.log.Warn("dropping malformed event", zap.Error(err))
				continue
			}
			if event.Message == nil {
				continue
			}
			handler(ctx, event.SessionID, event.Message)
		}
	}
}
