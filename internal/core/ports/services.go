package ports

import (
	"context"
	"time"

	"wallet-service/internal/core/domain"

	"github.com/shopspring/decimal"
)

// WalletService is the balance mutation engine.
type WalletService interface {
	// CreateWallet provisions a wallet for a customer. It is a no-op when the
	// wallet already exists and is safe to call any number of times.
	CreateWallet(ctx context.Context, customerID int64, initialBalance decimal.Decimal) error
	// Deposit adds amount to the customer's balance. A request ID that was
	// already applied replays the committed wallet state without mutating.
	Deposit(ctx context.Context, customerID int64, amount decimal.Decimal, requestID string) (*domain.Wallet, error)
	// Withdraw subtracts amount from the customer's balance. Fails when the
	// resulting balance would be negative.
	Withdraw(ctx context.Context, customerID int64, amount decimal.Decimal, requestID string) (*domain.Wallet, error)
	GetWallet(ctx context.Context, customerID int64) (*domain.Wallet, error)
}

// EventPublisher delivers a domain event to a topic. Implementations own
// serialization, retry, and dead-letter fallback; a nil return means the
// event was handed to the channel or dead-lettered, not necessarily consumed.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, event any) error
}

// BrokerWriter is the raw write primitive of the event channel.
type BrokerWriter interface {
	WriteMessage(ctx context.Context, topic string, key, value []byte) error
}

// IdempotencyCache is the fast-path replay check in front of the
// request-key table.
type IdempotencyCache interface {
	Get(ctx context.Context, key string) ([]byte, error) // nil when absent
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}
