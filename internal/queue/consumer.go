package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// 消息处理结果，对应 queue_messages_total 的 result 标签
const (
	ResultAcked    = "acked"
	ResultRequeued = "requeued"
	ResultRejected = "rejected"
)

// AnalysisHandler 消息处理函数
type AnalysisHandler func(ctx context.Context, msg *AnalysisMessage) error

// MessageRecorder 消息结果计数
type MessageRecorder interface {
	RecordQueueMessage(result string)
}

// Consumer 消息消费者
type Consumer struct {
	mq            *RabbitMQ
	logger        *logrus.Logger
	handler       AnalysisHandler
	recorder      MessageRecorder
	workerPool    int
	workerWg      sync.WaitGroup
	activeWorkers atomic.Int32

	mu         sync.Mutex
	running    bool
	cancelFunc context.CancelFunc // 用于取消当前所有 worker
}

// NewConsumer 创建消费者
func NewConsumer(mq *RabbitMQ, handler AnalysisHandler, workerPool int, logger *logrus.Logger) *Consumer {
	if workerPool <= 0 {
		workerPool = 1
	}
	return &Consumer{
		mq:         mq,
		logger:     logger,
		handler:    handler,
		workerPool: workerPool,
	}
}

// SetRecorder 设置结果计数
func (c *Consumer) SetRecorder(r MessageRecorder) {
	c.recorder = r
}

// Start 启动消费者
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		c.logger.Warn("Consumer already running, skipping start")
		return nil
	}

	msgs, err := c.mq.Consume()
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	workerCtx, cancel := context.WithCancel(ctx)
	c.cancelFunc = cancel
	c.running = true

	for i := 0; i < c.workerPool; i++ {
		c.workerWg.Add(1)
		go c.worker(workerCtx, i, msgs)
	}
	c.logger.WithField("workers", c.workerPool).Info("Consumer started")

	c.mq.StartConnectionWatcher()
	go c.handleReconnect(ctx)
	return nil
}

// worker 工作协程
func (c *Consumer) worker(ctx context.Context, id int, msgs <-chan amqp.Delivery) {
	defer c.workerWg.Done()
	c.activeWorkers.Add(1)
	defer c.activeWorkers.Add(-1)

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				c.logger.WithField("worker_id", id).Warn("Message channel closed")
				return
			}
			c.processMessage(ctx, id, msg)
		}
	}
}

// processMessage 处理单条消息：格式错误直接拒绝，被取消的重新入队，其余失败拒绝
func (c *Consumer) processMessage(ctx context.Context, workerID int, delivery amqp.Delivery) {
	startTime := time.Now()

	var msg AnalysisMessage
	if err := json.Unmarshal(delivery.Body, &msg); err != nil {
		c.logger.WithError(err).Error("Failed to unmarshal message")
		c.settle(delivery, ResultRejected)
		return
	}
	log := c.logger.WithFields(logrus.Fields{
		"worker_id":  workerID,
		"message_id": msg.ID,
	})
	if err := msg.Validate(); err != nil {
		log.WithError(err).Error("Invalid analysis request")
		c.settle(delivery, ResultRejected)
		return
	}

	log.WithField("paths", len(msg.Paths)).Info("Processing analysis request")

	if err := c.handler(ctx, &msg); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			log.WithError(err).Warn("Analysis interrupted, requeueing")
			c.settle(delivery, ResultRequeued)
			return
		}
		log.WithError(err).Error("Analysis request failed")
		c.settle(delivery, ResultRejected)
		return
	}

	c.settle(delivery, ResultAcked)
	log.WithField("duration_ms", time.Since(startTime).Milliseconds()).Info("Analysis request completed")
}

func (c *Consumer) settle(delivery amqp.Delivery, result string) {
	var err error
	switch result {
	case ResultAcked:
		err = delivery.Ack(false)
	case ResultRequeued:
		err = delivery.Nack(false, true)
	default:
		err = delivery.Nack(false, false)
	}
	if err != nil {
		c.logger.WithError(err).WithField("result", result).Error("Failed to settle message")
	}
	if c.recorder != nil {
		c.recorder.RecordQueueMessage(result)
	}
}

// handleReconnect 断线后停止 worker、重连并重新消费
func (c *Consumer) handleReconnect(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.mq.ReconnectSignal():
			c.logger.Warn("Connection lost, attempting to reconnect")
			c.stopWorkers()

			if err := c.mq.Reconnect(ctx); err != nil {
				c.logger.WithError(err).Error("Failed to reconnect")
				continue
			}
			if err := c.Start(ctx); err != nil {
				c.logger.WithError(err).Error("Failed to restart consumer")
			}
			return
		}
	}
}

// stopWorkers 停止所有 worker（等待当前任务完成）
func (c *Consumer) stopWorkers() {
	c.mu.Lock()
	if c.cancelFunc != nil {
		c.cancelFunc()
		c.cancelFunc = nil
	}
	c.running = false
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.workerWg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.logger.Info("All workers stopped gracefully")
	case <-time.After(30 * time.Second):
		c.logger.Warn("Timeout waiting for workers to stop")
	}
}

// Stop 停止消费者
func (c *Consumer) Stop() {
	c.logger.Info("Stopping consumer")
	c.stopWorkers()
	c.logger.Info("Consumer stopped")
}

// GetActiveWorkers 获取活跃 worker 数量
func (c *Consumer) GetActiveWorkers() int {
	return int(c.activeWorkers.Load())
}

// QueueDepth 所消费队列中待处理的消息数
func (c *Consumer) QueueDepth() (int, error) {
	return c.mq.QueueDepth()
}

// IsRunning 检查消费者是否正在运行
func (c *Consumer) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}
