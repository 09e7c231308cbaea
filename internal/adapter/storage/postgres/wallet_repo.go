package postgres

import (
	"context"
	"errors"
	"fmt"

	"wallet-service/internal/core/domain"
	"wallet-service/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// WalletRepo implements ports.WalletRepository. The wallets table carries a
// unique index on customer_id; balance is a NUMERIC column.
type WalletRepo struct {
	pool Pool
}

// NewWalletRepo creates a new WalletRepo.
func NewWalletRepo(pool Pool) *WalletRepo {
	return &WalletRepo{pool: pool}
}

// Create inserts a new wallet. Returns apperror.ErrDuplicateKey when a wallet
// for the customer already exists.
func (r *WalletRepo) Create(ctx context.Context, w *domain.Wallet) error {
	query := `INSERT INTO wallets (id, customer_id, balance, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := r.pool.Exec(ctx, query, w.ID, w.CustomerID, w.Balance, w.CreatedAt, w.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("wallet for customer %d: %w", w.CustomerID, apperror.ErrDuplicateKey)
		}
		return fmt.Errorf("insert wallet: %w", err)
	}
	return nil
}

// GetByCustomerID fetches a wallet without locking. Returns nil, nil when the
// customer has no wallet.
func (r *WalletRepo) GetByCustomerID(ctx context.Context, customerID int64) (*domain.Wallet, error) {
	query := `SELECT id, customer_id, balance, created_at, updated_at
		FROM wallets WHERE customer_id = $1`

	w := &domain.Wallet{}
	err := r.pool.QueryRow(ctx, query, customerID).Scan(
		&w.ID, &w.CustomerID, &w.Balance, &w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get wallet by customer id: %w", err)
	}
	return w, nil
}

// GetByCustomerIDForUpdate fetches a wallet with a row lock that serializes
// concurrent mutations on the same customer. MUST be called within a
// transaction.
func (r *WalletRepo) GetByCustomerIDForUpdate(ctx context.Context, tx pgx.Tx, customerID int64) (*domain.Wallet, error) {
	query := `SELECT id, customer_id, balance, created_at, updated_at
		FROM wallets WHERE customer_id = $1 FOR UPDATE`

	w := &domain.Wallet{}
	err := tx.QueryRow(ctx, query, customerID).Scan(
		&w.ID, &w.CustomerID, &w.Balance, &w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get wallet for update: %w", err)
	}
	return w, nil
}

// UpdateBalance writes a wallet's balance within a transaction.
func (r *WalletRepo) UpdateBalance(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, balance decimal.Decimal) error {
	query := `UPDATE wallets SET balance = $1, updated_at = NOW() WHERE id = $2`

	tag, err := tx.Exec(ctx, query, balance, walletID)
	if err != nil {
		return fmt.Errorf("update wallet balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("wallet not found: %s", walletID)
	}
	return nil
}
