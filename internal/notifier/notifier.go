// Package notifier 发布运行事件（RunSummary）到 Redis Streams 或 MQTT
package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	commonredis "github.com/datagridint/slv-extractor/common/redis"
	"github.com/datagridint/slv-extractor/internal/models"
)

const (
	// DefaultStream 默认 Redis Stream
	DefaultStream = "slv:runs"
	// DefaultTopic 默认 MQTT 主题
	DefaultTopic = "slv/extractor/runs"
)

// Notifier 运行事件通知
type Notifier interface {
	Notify(ctx context.Context, summary models.RunSummary) error
}

// StreamPublisher Redis Streams 发布接口（便于测试）
type StreamPublisher interface {
	PublishJSON(ctx context.Context, stream string, data interface{}) (string, error)
}

// redisPublisher 基于 go-redis 的 StreamPublisher
type redisPublisher struct {
	client *commonredis.Client
}

// NewRedisPublisher 用 Redis 客户端创建 StreamPublisher
func NewRedisPublisher(client *commonredis.Client) StreamPublisher {
	return &redisPublisher{client: client}
}

func (p *redisPublisher) PublishJSON(ctx context.Context, stream string, data interface{}) (string, error) {
	return commonredis.PublishJSONToStream(ctx, p.client, stream, data)
}

// StreamNotifier 将运行摘要写入 Redis Stream
type StreamNotifier struct {
	publisher StreamPublisher
	stream    string
	logger    *zap.Logger
}

// NewStreamNotifier 创建 Redis Stream 通知器
func NewStreamNotifier(publisher StreamPublisher, stream string, logger *zap.Logger) *StreamNotifier {
	if stream == "" {
		stream = DefaultStream
	}
	return &StreamNotifier{
		publisher: publisher,
		stream:    stream,
		logger:    logger,
	}
}

// Notify 发布运行摘要
func (n *StreamNotifier) Notify(ctx context.Context, summary models.RunSummary) error {
	id, err := n.publisher.PublishJSON(ctx, n.stream, summary)
	if err != nil {
		return fmt.Errorf("failed to publish run summary to stream %s: %w", n.stream, err)
	}
	n.logger.Debug("Published run summary to stream",
		zap.String("stream", n.stream),
		zap.String("message_id", id),
		zap.String("run_id", summary.RunID),
	)
	return nil
}

// MessagePublisher MQTT 发布接口（common/mqtt.Client 实现）
type MessagePublisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// MQTTNotifier 将运行摘要发布到 MQTT 主题
type MQTTNotifier struct {
	publisher MessagePublisher
	topic     string
	qos       byte
	logger    *zap.Logger
}

// NewMQTTNotifier 创建 MQTT 通知器
func NewMQTTNotifier(publisher MessagePublisher, topic string, qos byte, logger *zap.Logger) *MQTTNotifier {
	if topic == "" {
		topic = DefaultTopic
	}
	return &MQTTNotifier{
		publisher: publisher,
		topic:     topic,
		qos:       qos,
		logger:    logger,
	}
}

// Notify 发布运行摘要（非 retained）
func (n *MQTTNotifier) Notify(ctx context.Context, summary models.RunSummary) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal run summary: %w", err)
	}
	if err := n.publisher.Publish(n.topic, n.qos, false, payload); err != nil {
		return err
	}
	n.logger.Debug("Published run summary to MQTT",
		zap.String("topic", n.topic),
		zap.String("run_id", summary.RunID),
	)
	return nil
}

// Multi 依次调用多个通知器，返回所有错误
type Multi []Notifier

// Notify 逐个通知，某个失败不影响其余
func (m Multi) Notify(ctx context.Context, summary models.RunSummary) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, summary); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
