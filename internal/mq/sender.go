package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/zeromicro/go-zero/core/logx"

	"tx-guard-sol/internal/logic/core"
)

// FindingSink 将校验发现项发布到 Kafka，供看板 / 审计类消费方订阅。
// 发布失败只记日志，不回写校验结果。
type FindingSink struct {
	producer *kafka.Producer
	topic    string
	timeout  time.Duration
}

func NewFindingSink(producer *kafka.Producer, topic string, timeout time.Duration) *FindingSink {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &FindingSink{producer: producer, topic: topic, timeout: timeout}
}

// Publish 发布一次校验结果中的全部发现项，每条发现项一条消息，key 为交易 ID。
// 返回首个发送失败的错误（其余消息照常尝试）。
func (s *FindingSink) Publish(ctx context.Context, result *core.ValidationResult) error {
	if result == nil || len(result.Findings) == 0 {
		return nil
	}

	var firstErr error
	for i := range result.Findings {
		if err := s.send(ctx, result.TxID, &result.Findings[i]); err != nil {
			logx.Errorf("findings sink send failed: tx=%s, pattern=%s, err=%v",
				result.TxID, result.Findings[i].Pattern, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// send 发送单条发现项并等待 ack，超时后后台排空 delivery channel，防止 goroutine 泄漏。
func (s *FindingSink) send(ctx context.Context, txID string, f *core.Finding) error {
	value, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal finding: %w", err)
	}

	deliveryChan := make(chan kafka.Event, 1)
	err = s.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &s.topic,
			Partition: kafka.PartitionAny,
		},
		Key:   []byte(txID),
		Value: value,
	}, deliveryChan)
	if err != nil {
		return fmt.Errorf("produce error: %w", err)
	}

	select {
	case e, ok := <-deliveryChan:
		if !ok {
			return fmt.Errorf("delivery channel closed unexpectedly")
		}
		msg, ok := e.(*kafka.Message)
		if !ok {
			return fmt.Errorf("invalid message type: %T", e)
		}
		if msg.TopicPartition.Error != nil {
			return msg.TopicPartition.Error
		}
		return nil
	case <-time.After(s.timeout):
		go safeDrain(deliveryChan, s.topic)
		return fmt.Errorf("send to topic %s timed out after %v", s.topic, s.timeout)
	case <-ctx.Done():
		go safeDrain(deliveryChan, s.topic)
		return ctx.Err()
	}
}

// safeDrain 排空被放弃的 delivery channel，避免 librdkafka 回调阻塞。
func safeDrain(ch chan kafka.Event, topic string) {
	select {
	case e := <-ch:
		if msg, ok := e.(*kafka.Message); ok && msg.TopicPartition.Error != nil {
			logx.Errorf("late delivery failure on topic %s: %v", topic, msg.TopicPartition.Error)
		}
	case <-time.After(30 * time.Second):
		logx.Errorf("delivery channel for topic %s never resolved", topic)
	}
}
