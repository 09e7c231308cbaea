package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"wallet-service/internal/core/domain"
	"wallet-service/internal/core/ports"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Provisioner reacts to customer update events by creating a wallet for the
// customer. Wallet creation is retried on failure; once the retry budget is
// spent the triggering event is forwarded to the wallet-create dead-letter
// topic so provisioning can be replayed later.
type Provisioner struct {
	walletSvc ports.WalletService
	publisher ports.EventPublisher
	attempts  int
	delay     time.Duration
	log       zerolog.Logger
}

// NewProvisioner creates a provisioner with the given retry budget.
func NewProvisioner(walletSvc ports.WalletService, publisher ports.EventPublisher, attempts int, delay time.Duration, log zerolog.Logger) *Provisioner {
	if attempts < 1 {
		attempts = 1
	}
	return &Provisioner{
		walletSvc: walletSvc,
		publisher: publisher,
		attempts:  attempts,
		delay:     delay,
		log:       log,
	}
}

// HandleCustomerUpdate is the message handler bound to the customer update
// topic. A payload that does not decode is rejected outright; it would fail
// identically on every retry.
func (p *Provisioner) HandleCustomerUpdate(ctx context.Context, payload []byte) error {
	var event domain.CustomerUpdateEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("decode customer update event: %w", err)
	}

	p.log.Info().Int64("customer_id", event.CustomerID).Msg("customer update received")

	var lastErr error
	for attempt := 1; attempt <= p.attempts; attempt++ {
		if attempt > 1 {
			time.Sleep(p.delay)
		}
		if err := p.walletSvc.CreateWallet(ctx, event.CustomerID, decimal.Zero); err != nil {
			lastErr = err
			p.log.Warn().Err(err).
				Int64("customer_id", event.CustomerID).
				Int("attempt", attempt).
				Int("max_attempts", p.attempts).
				Msg("wallet provisioning failed")
			continue
		}
		return nil
	}

	p.log.Error().Err(lastErr).
		Int64("customer_id", event.CustomerID).
		Msg("wallet provisioning retries exhausted, dead-lettering event")
	if err := p.publisher.Publish(ctx, TopicWalletCreateDeadLetter, event); err != nil {
		p.log.Error().Err(err).Int64("customer_id", event.CustomerID).Msg("wallet-create dead-letter publish failed")
	}
	return nil
}
