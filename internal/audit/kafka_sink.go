package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

var ErrSinkClosed = errors.New("audit sink is closed")

// PublishError 寫入 kafka 失敗
type PublishError struct {
	Topic string
	Err   error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish audit event to topic %s failed: %v", e.Topic, e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}

// MessageWriter kafka.Writer 的最小介面, 方便測試替換
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaSink struct {
	w      MessageWriter
	topic  string
	closed atomic.Bool
}

/*
NewKafkaWriter 建立非同步 writer, 不阻塞授權請求
非同步寫入的錯誤只能在 Completion 中記錄
*/
func NewKafkaWriter(brokers []string, topic string, logger zerolog.Logger) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		BatchTimeout: 100 * time.Millisecond,
		WriteTimeout: 5 * time.Second,
		MaxAttempts:  3,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				logger.Error().Err(err).Int("messages", len(messages)).Str("topic", topic).Msg("audit events dropped")
			}
		},
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Error().Msgf("kafka writer: "+msg, args...)
		}),
	}
}

func NewKafkaSink(w MessageWriter, topic string) *KafkaSink {
	return &KafkaSink{
		w:     w,
		topic: topic,
	}
}

// Publish 以 DN 為 key, 同一 DN 的事件落在同一分區
func (s *KafkaSink) Publish(ctx context.Context, evt Event) error {
	if s.closed.Load() {
		return &PublishError{Topic: s.topic, Err: ErrSinkClosed}
	}

	value, err := json.Marshal(evt)
	if err != nil {
		return &PublishError{Topic: s.topic, Err: err}
	}

	err = s.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(evt.DN),
		Value: value,
		Time:  evt.Time,
	})
	if err != nil {
		return &PublishError{Topic: s.topic, Err: err}
	}
	return nil
}

func (s *KafkaSink) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.w.Close()
}
