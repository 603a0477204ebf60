package queue

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/apk-analysis/apk-intake-go/internal/config"
	"github.com/apk-analysis/apk-intake-go/internal/retry"
)

// ErrNotConnected 当前没有可用的 channel
var ErrNotConnected = errors.New("rabbitmq channel is not open")

// RabbitMQ RabbitMQ 客户端，单连接单 channel，断线后由 Consumer 触发重连
type RabbitMQ struct {
	config        config.RabbitMQConfig
	heartbeat     time.Duration
	prefetchCount int // 预取数量，应与消费协程数量匹配
	logger        *logrus.Logger

	mu            sync.RWMutex
	conn          *amqp.Connection
	channel       *amqp.Channel
	closed        bool
	connNotify    chan *amqp.Error
	channelNotify chan *amqp.Error
	reconnect     chan struct{}
	watcherOnce   sync.Once
}

// NewRabbitMQ 连接并声明持久化队列
func NewRabbitMQ(cfg config.RabbitMQConfig, prefetchCount int, logger *logrus.Logger) (*RabbitMQ, error) {
	if prefetchCount <= 0 {
		prefetchCount = 1
	}
	if cfg.Queue == "" {
		cfg.Queue = "apk_intake_requests"
	}

	mq := &RabbitMQ{
		config:        cfg,
		heartbeat:     10 * time.Second,
		prefetchCount: prefetchCount,
		logger:        logger,
		reconnect:     make(chan struct{}, 1),
	}
	if err := mq.connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	return mq, nil
}

// amqpURL 用户名与密码需要转义
func amqpURL(cfg config.RabbitMQConfig) string {
	u := url.URL{
		Scheme: "amqp",
		User:   url.UserPassword(cfg.User, cfg.Password),
		Host:   fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Path:   "/" + cfg.VHost,
	}
	return u.String()
}

func (mq *RabbitMQ) connect() error {
	mq.mu.Lock()
	defer mq.mu.Unlock()

	conn, err := amqp.DialConfig(amqpURL(mq.config), amqp.Config{
		Heartbeat: mq.heartbeat,
		Locale:    "en_US",
	})
	if err != nil {
		return fmt.Errorf("failed to dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	if err := ch.Qos(mq.prefetchCount, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	if _, err := ch.QueueDeclare(
		mq.config.Queue, // name
		true,            // durable
		false,           // delete when unused
		false,           // exclusive
		false,           // no-wait
		nil,             // arguments
	); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	mq.conn = conn
	mq.channel = ch
	mq.connNotify = conn.NotifyClose(make(chan *amqp.Error, 1))
	mq.channelNotify = ch.NotifyClose(make(chan *amqp.Error, 1))

	mq.logger.WithFields(logrus.Fields{
		"host":           mq.config.Host,
		"port":           mq.config.Port,
		"queue":          mq.config.Queue,
		"prefetch_count": mq.prefetchCount,
	}).Info("Connected to RabbitMQ")
	return nil
}

// StartConnectionWatcher 监听连接与 channel 的关闭事件，只启动一次
func (mq *RabbitMQ) StartConnectionWatcher() {
	mq.watcherOnce.Do(func() {
		go mq.watchConnection()
	})
}

func (mq *RabbitMQ) watchConnection() {
	for {
		mq.mu.RLock()
		if mq.closed {
			mq.mu.RUnlock()
			return
		}
		connNotify, channelNotify := mq.connNotify, mq.channelNotify
		mq.mu.RUnlock()

		var amqpErr *amqp.Error
		select {
		case amqpErr = <-connNotify:
		case amqpErr = <-channelNotify:
		}

		if mq.isClosed() {
			return
		}
		if amqpErr != nil {
			mq.logger.WithError(amqpErr).Error("RabbitMQ connection closed unexpectedly")
		} else {
			mq.logger.Warn("RabbitMQ connection closed")
		}

		// 重连完成前不再监听旧的通知通道
		select {
		case mq.reconnect <- struct{}{}:
		default:
		}
		for !mq.isClosed() && !mq.IsConnected() {
			time.Sleep(time.Second)
		}
	}
}

func (mq *RabbitMQ) isClosed() bool {
	mq.mu.RLock()
	defer mq.mu.RUnlock()
	return mq.closed
}

// Reconnect 关闭旧连接后按退避策略重连
func (mq *RabbitMQ) Reconnect(ctx context.Context) error {
	mq.closeConnections()

	policy := retry.Policy{
		Attempts:    10,
		Interval:    time.Second,
		MaxInterval: 30 * time.Second,
		Backoff:     retry.BackoffExponential,
	}
	return retry.Do(ctx, policy, mq.logger.WithField("queue", mq.config.Queue), func(context.Context) error {
		if mq.isClosed() {
			return retry.Permanent(errors.New("rabbitmq client closed"))
		}
		return mq.connect()
	})
}

func (mq *RabbitMQ) closeConnections() {
	mq.mu.Lock()
	defer mq.mu.Unlock()

	if mq.channel != nil {
		mq.channel.Close()
		mq.channel = nil
	}
	if mq.conn != nil {
		mq.conn.Close()
		mq.conn = nil
	}
}

// Publish 发布持久化 JSON 消息
func (mq *RabbitMQ) Publish(ctx context.Context, body []byte) error {
	mq.mu.RLock()
	ch := mq.channel
	mq.mu.RUnlock()
	if ch == nil || ch.IsClosed() {
		return ErrNotConnected
	}

	return ch.PublishWithContext(
		ctx,
		"",              // exchange
		mq.config.Queue, // routing key
		false,           // mandatory
		false,           // immediate
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
}

// Consume 手动确认模式消费
func (mq *RabbitMQ) Consume() (<-chan amqp.Delivery, error) {
	mq.mu.RLock()
	ch := mq.channel
	mq.mu.RUnlock()
	if ch == nil {
		return nil, ErrNotConnected
	}

	msgs, err := ch.Consume(
		mq.config.Queue, // queue
		"",              // consumer
		false,           // auto-ack
		false,           // exclusive
		false,           // no-local
		false,           // no-wait
		nil,             // args
	)
	if err != nil {
		return nil, fmt.Errorf("failed to consume: %w", err)
	}
	return msgs, nil
}

// QueueDepth 队列中待消费的消息数
func (mq *RabbitMQ) QueueDepth() (int, error) {
	mq.mu.RLock()
	ch := mq.channel
	mq.mu.RUnlock()
	if ch == nil {
		return 0, ErrNotConnected
	}

	queue, err := ch.QueueInspect(mq.config.Queue)
	if err != nil {
		return 0, err
	}
	return queue.Messages, nil
}

// ReconnectSignal 断线信号
func (mq *RabbitMQ) ReconnectSignal() <-chan struct{} {
	return mq.reconnect
}

// IsConnected 检查连接状态
func (mq *RabbitMQ) IsConnected() bool {
	mq.mu.RLock()
	defer mq.mu.RUnlock()
	return mq.conn != nil && !mq.conn.IsClosed()
}

// Close 关闭连接
func (mq *RabbitMQ) Close() error {
	mq.mu.Lock()
	mq.closed = true
	mq.mu.Unlock()

	mq.closeConnections()
	mq.logger.Info("RabbitMQ connection closed")
	return nil
}
