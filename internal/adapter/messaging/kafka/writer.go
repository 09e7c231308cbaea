// Package kafka adapts the event channel to segmentio/kafka-go.
package kafka

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	kafkago "github.com/segmentio/kafka-go"
)

// Writer implements ports.BrokerWriter. One kafka.Writer is kept per topic,
// created lazily on first write.
type Writer struct {
	brokers []string
	log     zerolog.Logger

	mu      sync.Mutex
	writers map[string]*kafkago.Writer
}

// NewWriter creates a broker writer for the given brokers.
func NewWriter(brokers []string, log zerolog.Logger) *Writer {
	return &Writer{
		brokers: brokers,
		log:     log,
		writers: make(map[string]*kafkago.Writer),
	}
}

// WriteMessage delivers a single message to a topic. A single delivery
// attempt; retry policy belongs to the caller.
func (w *Writer) WriteMessage(ctx context.Context, topic string, key, value []byte) error {
	msg := kafkago.Message{
		Key:   key,
		Value: value,
		Time:  time.Now(),
	}
	return w.topicWriter(topic).WriteMessages(ctx, msg)
}

func (w *Writer) topicWriter(topic string) *kafkago.Writer {
	w.mu.Lock()
	defer w.mu.Unlock()

	if kw, ok := w.writers[topic]; ok {
		return kw
	}

	kw := &kafkago.Writer{
		Addr:         kafkago.TCP(w.brokers...),
		Topic:        topic,
		Balancer:     &kafkago.CRC32Balancer{},
		RequiredAcks: kafkago.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
		MaxAttempts:  1, // retries are the reliable publisher's job
	}
	w.writers[topic] = kw
	w.log.Debug().Str("topic", topic).Msg("kafka writer created")
	return kw
}

// Close closes all per-topic writers.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var firstErr error
	for topic, kw := range w.writers {
		if err := kw.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(w.writers, topic)
	}
	return firstErr
}
