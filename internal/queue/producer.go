package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/apk-analysis/apk-intake-go/internal/retry"
)

// AnalysisMessage 分析请求消息，路径为消费端可访问的本地路径
type AnalysisMessage struct {
	ID             string    `json:"id"`
	Paths          []string  `json:"paths"`
	SessionID      string    `json:"session_id,omitempty"`
	SplitChooseAll *bool     `json:"split_choose_all,omitempty"`
	SubmittedAt    time.Time `json:"submitted_at"`
}

// Validate 检查消息是否可以处理
func (m *AnalysisMessage) Validate() error {
	if len(m.Paths) == 0 {
		return errors.New("message has no paths")
	}
	for _, p := range m.Paths {
		if p == "" {
			return errors.New("message contains an empty path")
		}
	}
	return nil
}

// Publisher 消息发布
type Publisher interface {
	Publish(ctx context.Context, body []byte) error
}

// Producer 消息生产者
type Producer struct {
	publisher Publisher
	policy    retry.Policy
	logger    *logrus.Logger
}

// NewProducer 创建生产者
func NewProducer(publisher Publisher, logger *logrus.Logger) *Producer {
	return &Producer{
		publisher: publisher,
		policy:    retry.PublishPolicy(),
		logger:    logger,
	}
}

// PublishAnalysis 发布分析请求，连接短暂中断时按策略重试
func (p *Producer) PublishAnalysis(ctx context.Context, msg *AnalysisMessage) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.SubmittedAt.IsZero() {
		msg.SubmittedAt = time.Now().UTC()
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	log := p.logger.WithField("message_id", msg.ID)
	if err := retry.Do(ctx, p.policy, log, func(ctx context.Context) error {
		return p.publisher.Publish(ctx, body)
	}); err != nil {
		log.WithError(err).Error("Failed to publish analysis request")
		return fmt.Errorf("failed to publish: %w", err)
	}

	log.WithField("paths", len(msg.Paths)).Info("Analysis request published")
	return nil
}
