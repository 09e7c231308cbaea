package postgres

import (
	"context"
	"errors"
	"fmt"

	"wallet-service/internal/core/domain"
	"wallet-service/pkg/apperror"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// RequestKeyRepo implements ports.RequestKeyRepository on the request_keys
// table (key TEXT primary key).
type RequestKeyRepo struct {
	pool Pool
}

// NewRequestKeyRepo creates a new RequestKeyRepo.
func NewRequestKeyRepo(pool Pool) *RequestKeyRepo {
	return &RequestKeyRepo{pool: pool}
}

// Create inserts an applied-request marker on the caller's transaction, so it
// commits together with the balance write. Returns apperror.ErrDuplicateKey
// when the request ID was already recorded by a concurrent attempt.
func (r *RequestKeyRepo) Create(ctx context.Context, tx pgx.Tx, k *domain.RequestKey) error {
	query := `INSERT INTO request_keys (key, customer_id, response_json, created_at)
		VALUES ($1, $2, $3, $4)`

	_, err := tx.Exec(ctx, query, k.Key, k.CustomerID, k.ResponseJSON, k.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("request key %q: %w", k.Key, apperror.ErrDuplicateKey)
		}
		return fmt.Errorf("insert request key: %w", err)
	}
	return nil
}

// Get fetches an applied-request marker by key. Returns nil, nil when the
// request has not been applied.
func (r *RequestKeyRepo) Get(ctx context.Context, key string) (*domain.RequestKey, error) {
	query := `SELECT key, customer_id, response_json, created_at FROM request_keys WHERE key = $1`

	k := &domain.RequestKey{}
	err := r.pool.QueryRow(ctx, query, key).Scan(&k.Key, &k.CustomerID, &k.ResponseJSON, &k.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get request key: %w", err)
	}
	return k, nil
}
