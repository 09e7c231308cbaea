package service

import (
	"context"
	"encoding/json"
	"time"

	"wallet-service/internal/core/ports"
	"wallet-service/pkg/apperror"

	"github.com/rs/zerolog"
)

// Kafka topics used by the service.
const (
	// TopicBalanceUpdate carries balance update events for downstream consumers.
	TopicBalanceUpdate = "balance-update-event"
	// TopicDeadLetter receives balance update events that exhausted delivery retries.
	TopicDeadLetter = "dead-letter-queue"
	// TopicCustomerUpdate is consumed to provision wallets for new customers.
	TopicCustomerUpdate = "customer-update-queue"
	// TopicWalletCreateDeadLetter receives customer update events whose wallet
	// provisioning exhausted retries.
	TopicWalletCreateDeadLetter = "dead-letter-queue-wallet-create"
)

// ReliablePublisher delivers events to the broker with bounded retries and a
// dead-letter fallback. Delivery failure is never surfaced to the caller:
// after the retry budget is spent the payload is forwarded to the dead-letter
// topic and the call reports success. Only a payload that cannot be
// serialized at all returns an error.
type ReliablePublisher struct {
	writer   ports.BrokerWriter
	attempts int
	delay    time.Duration
	log      zerolog.Logger
}

// NewReliablePublisher creates a publisher with the given retry budget.
func NewReliablePublisher(writer ports.BrokerWriter, attempts int, delay time.Duration, log zerolog.Logger) *ReliablePublisher {
	if attempts < 1 {
		attempts = 1
	}
	return &ReliablePublisher{
		writer:   writer,
		attempts: attempts,
		delay:    delay,
		log:      log,
	}
}

// Publish serializes event and delivers it to topic, retrying transient
// failures and dead-lettering on exhaustion.
func (p *ReliablePublisher) Publish(ctx context.Context, topic string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		p.log.Error().Err(err).Str("topic", topic).Msg("event serialization failed")
		return apperror.ErrEventSerialization(err)
	}

	// The retry window and the dead-letter write must outlive the caller:
	// a cancelled request or a consumer mid-shutdown would otherwise fail
	// every remaining attempt against a healthy broker.
	ctx = context.WithoutCancel(ctx)

	var lastErr error
	for attempt := 1; attempt <= p.attempts; attempt++ {
		if attempt > 1 {
			time.Sleep(p.delay)
		}
		if err := p.writer.WriteMessage(ctx, topic, nil, payload); err != nil {
			lastErr = err
			p.log.Warn().Err(err).
				Str("topic", topic).
				Int("attempt", attempt).
				Int("max_attempts", p.attempts).
				Msg("event delivery failed")
			continue
		}
		if attempt > 1 {
			p.log.Info().Str("topic", topic).Int("attempt", attempt).Msg("event delivered after retry")
		}
		return nil
	}

	p.log.Error().Err(lastErr).Str("topic", topic).Msg("delivery retries exhausted, dead-lettering event")
	if err := p.writer.WriteMessage(ctx, TopicDeadLetter, nil, payload); err != nil {
		// Nothing left to do but record the loss.
		p.log.Error().Err(err).Str("topic", topic).Msg("dead-letter delivery failed, event dropped")
		return nil
	}
	p.log.Info().Str("topic", TopicDeadLetter).Msg("event forwarded to dead-letter queue")
	return nil
}
