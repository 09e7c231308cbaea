package ports

import (
	"context"

	"wallet-service/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// WalletRepository defines persistence operations for wallets.
// Methods accepting pgx.Tx run inside transaction blocks; the ForUpdate
// variant takes the row lock that serializes mutations per customer.
type WalletRepository interface {
	Create(ctx context.Context, wallet *domain.Wallet) error
	GetByCustomerID(ctx context.Context, customerID int64) (*domain.Wallet, error)
	GetByCustomerIDForUpdate(ctx context.Context, tx pgx.Tx, customerID int64) (*domain.Wallet, error)
	UpdateBalance(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, balance decimal.Decimal) error
}

// RequestKeyRepository persists applied request identifiers. Create must be
// called on the same transaction as the balance write so the applied marker
// and the mutation commit atomically.
type RequestKeyRepository interface {
	Create(ctx context.Context, tx pgx.Tx, key *domain.RequestKey) error
	Get(ctx context.Context, key string) (*domain.RequestKey, error)
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
