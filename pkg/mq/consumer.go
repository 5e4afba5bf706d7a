package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"crowdfundin/pkg/metrics"
	"crowdfundin/pkg/otel"
	"crowdfundin/pkg/trace"
	"crowdfundin/pkg/util"
)

// MessageHandler 处理一条消息；messageID 由发布方设置，可用于去重
type MessageHandler func(ctx context.Context, messageID string, data json.RawMessage) error

// RetryTracker 记录消息的重试次数
type RetryTracker interface {
	IncrementAndGet(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string) error
}

type ackAction int

const (
	actionAck ackAction = iota
	actionRequeue
	actionDeadLetter
)

// decide 根据处理结果决定 ack / 重新入队 / 死信
func decide(err error, attempt, maxRetries int64) (ackAction, string) {
	if err == nil {
		return actionAck, ""
	}
	retryable, errType := util.IsRetryableError(err)
	if util.ShouldRetry(attempt, maxRetries, retryable) {
		return actionRequeue, errType
	}
	return actionDeadLetter, errType
}

type Consumer struct {
	channel    *amqp091.Channel
	queue      amqp091.Queue
	routingKey string
	handler    MessageHandler
	conn       *amqp091.Connection
	logger     *zap.Logger

	retries    RetryTracker
	maxRetries int64

	consumerTag string
	stopOnce    sync.Once
	stopped     atomic.Bool
}

// NewConsumer creates a consumer for a specific routing key.
// 队列配置了死信交换机，被拒绝的消息会进入 <queue>.dlq
func NewConsumer(url, queueName, routingKey string, logger *zap.Logger) (*Consumer, error) {
	conn, err := NewConnection(url)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	fail := func(err error) (*Consumer, error) {
		ch.Close()
		conn.Close()
		return nil, err
	}

	if err := DeclareExchange(ch); err != nil {
		return fail(fmt.Errorf("failed to declare exchange: %w", err))
	}
	if err := DeclareDLQExchange(ch); err != nil {
		return fail(fmt.Errorf("failed to declare DLQ exchange: %w", err))
	}
	if _, err := DeclareDLQQueue(ch, queueName, routingKey); err != nil {
		return fail(err)
	}

	q, err := ch.QueueDeclare(
		queueName,
		true,
		false,
		false,
		false,
		amqp091.Table{"x-dead-letter-exchange": DLQExchangeName},
	)
	if err != nil {
		return fail(fmt.Errorf("failed to declare queue: %w", err))
	}

	if err := ch.QueueBind(q.Name, routingKey, ExchangeName, false, nil); err != nil {
		return fail(fmt.Errorf("failed to bind queue: %w", err))
	}

	// 一次只取少量消息，避免单个 worker 堆积
	if err := ch.Qos(10, 0, false); err != nil {
		return fail(fmt.Errorf("failed to set qos: %w", err))
	}

	logger.Info("Consumer initialized",
		zap.String("routing_key", routingKey),
		zap.String("queue", queueName),
		zap.String("exchange", ExchangeName),
	)

	return &Consumer{
		conn:        conn,
		channel:     ch,
		queue:       q,
		routingKey:  routingKey,
		logger:      logger,
		maxRetries:  3,
		consumerTag: "worker-" + queueName,
	}, nil
}

func (c *Consumer) SetHandler(h MessageHandler) {
	c.handler = h
}

// WithRetry 启用基于 Redis 的重试计数，超过 maxRetries 后进入死信队列
func (c *Consumer) WithRetry(tracker RetryTracker, maxRetries int64) *Consumer {
	c.retries = tracker
	c.maxRetries = maxRetries
	return c
}

// Stop 停止投递并关闭连接，StartConsuming 随之返回
func (c *Consumer) Stop() {
	c.stopOnce.Do(func() {
		c.stopped.Store(true)
		if c.channel != nil {
			_ = c.channel.Cancel(c.consumerTag, false)
		}
		c.Close()
	})
}

func (c *Consumer) Close() {
	if c.channel != nil {
		_ = c.channel.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

// StartConsuming starts consuming messages. This method blocks and should be called in a goroutine.
func (c *Consumer) StartConsuming(ctx context.Context) error {
	if c.handler == nil {
		return fmt.Errorf("consumer handler not set")
	}

	deliveries, err := c.channel.Consume(
		c.queue.Name,
		c.consumerTag,
		false, // 手动ack
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	c.logger.Info("Consumer started consuming messages",
		zap.String("routing_key", c.routingKey),
		zap.String("queue", c.queue.Name),
	)

	go func() {
		<-ctx.Done()
		c.Stop()
	}()

	return c.drain(ctx, deliveries)
}

// drain 处理投递直到通道关闭。未经 Stop 或 ctx 取消而关闭说明连接已断，返回错误让进程退出重启
func (c *Consumer) drain(ctx context.Context, deliveries <-chan amqp091.Delivery) error {
	// 保证每条消息都会被 ack 或 nack
	for msg := range deliveries {
		c.handle(ctx, msg)
	}

	if ctx.Err() == nil && !c.stopped.Load() {
		c.logger.Error("Delivery channel closed by broker", zap.String("queue", c.queue.Name))
		return fmt.Errorf("delivery channel closed for %s", c.queue.Name)
	}
	c.logger.Info("Consumer stopped", zap.String("queue", c.queue.Name))
	return nil
}

func (c *Consumer) handle(parent context.Context, msg amqp091.Delivery) {
	start := time.Now()
	ctx := otel.ExtractMQHeaders(context.WithoutCancel(parent), msg.Headers)
	if traceID, ok := msg.Headers[traceHeader].(string); ok && traceID != "" {
		ctx = trace.WithContext(ctx, traceID)
	}
	ctx, span := otel.MQConsumeSpan(ctx, msg.RoutingKey, c.queue.Name)
	defer span.End()

	logger := c.logger.With(
		zap.String("routing_key", msg.RoutingKey),
		zap.String("queue", c.queue.Name),
		zap.String("message_id", msg.MessageId),
	)

	// Panic 恢复：panic 视为不可重试，直接进入死信
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Handler panic recovered", zap.Any("panic", r))
			if err := msg.Nack(false, false); err != nil {
				logger.Error("Failed to nack message after panic", zap.Error(err))
			}
		}
	}()

	handlerErr := c.handler(ctx, msg.MessageId, msg.Body)
	metrics.RecordMQConsumeLatency(msg.RoutingKey, c.queue.Name, time.Since(start))

	retryKey := util.FormatRetryKey(c.queue.Name, msg.MessageId)
	var attempt int64
	if handlerErr != nil && c.retries != nil && msg.MessageId != "" {
		n, err := c.retries.IncrementAndGet(ctx, retryKey)
		if err != nil {
			logger.Warn("Retry counter unavailable", zap.Error(err))
		}
		attempt = n
	}

	action, errType := decide(handlerErr, attempt, c.maxRetries)
	switch action {
	case actionAck:
		if err := msg.Ack(false); err != nil {
			logger.Error("Failed to ack message", zap.Error(err))
		}
		if c.retries != nil && msg.MessageId != "" {
			_ = c.retries.Reset(ctx, retryKey)
		}
	case actionRequeue:
		logger.Warn("Handler error, requeueing",
			zap.String("error_type", errType),
			zap.Int64("attempt", attempt),
			zap.Error(handlerErr),
		)
		if err := msg.Nack(false, true); err != nil {
			logger.Error("Failed to nack message", zap.Error(err))
		}
	case actionDeadLetter:
		span.RecordError(handlerErr)
		logger.Error("Handler error, dead-lettering",
			zap.String("error_type", errType),
			zap.Int64("attempt", attempt),
			zap.Error(handlerErr),
		)
		if err := msg.Nack(false, false); err != nil {
			logger.Error("Failed to nack message", zap.Error(err))
		}
	}
}
