package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"wallet-service/internal/core/domain"
	"wallet-service/internal/core/ports"
	"wallet-service/pkg/apperror"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const idempotencyTTL = 24 * time.Hour

// WalletServiceImpl implements ports.WalletService. Mutations run as a
// locked read-modify-write on the wallet row; the request key is written in
// the same transaction, so a request is marked applied exactly when its
// mutation commits. The update event is published after commit — a failing
// event channel never rolls back a committed balance.
type WalletServiceImpl struct {
	walletRepo ports.WalletRepository
	keyRepo    ports.RequestKeyRepository
	idempCache ports.IdempotencyCache
	transactor ports.DBTransactor
	publisher  ports.EventPublisher
	log        zerolog.Logger
}

// NewWalletService creates a new WalletServiceImpl.
func NewWalletService(
	walletRepo ports.WalletRepository,
	keyRepo ports.RequestKeyRepository,
	idempCache ports.IdempotencyCache,
	transactor ports.DBTransactor,
	publisher ports.EventPublisher,
	log zerolog.Logger,
) *WalletServiceImpl {
	return &WalletServiceImpl{
		walletRepo: walletRepo,
		keyRepo:    keyRepo,
		idempCache: idempCache,
		transactor: transactor,
		publisher:  publisher,
		log:        log,
	}
}

// CreateWallet provisions a wallet for a customer. Calling it for an already
// provisioned customer is a no-op.
func (s *WalletServiceImpl) CreateWallet(ctx context.Context, customerID int64, initialBalance decimal.Decimal) error {
	existing, err := s.walletRepo.GetByCustomerID(ctx, customerID)
	if err != nil {
		return fmt.Errorf("lookup wallet: %w", err)
	}
	if existing != nil {
		s.log.Debug().Int64("customer_id", customerID).Msg("wallet already exists")
		return nil
	}

	wallet := domain.NewWallet(customerID, initialBalance)
	if err := s.walletRepo.Create(ctx, wallet); err != nil {
		// A concurrent provisioning attempt won the insert race.
		if errors.Is(err, apperror.ErrDuplicateKey) {
			s.log.Debug().Int64("customer_id", customerID).Msg("wallet created concurrently")
			return nil
		}
		return fmt.Errorf("create wallet: %w", err)
	}

	s.log.Info().Int64("customer_id", customerID).Msg("wallet created")
	return nil
}

// Deposit adds amount to the customer's balance and emits a DEBIT-labeled
// update event carrying the resulting balance.
func (s *WalletServiceImpl) Deposit(ctx context.Context, customerID int64, amount decimal.Decimal, requestID string) (*domain.Wallet, error) {
	if !amount.IsPositive() {
		return nil, apperror.ErrInvalidAmount()
	}

	if wallet, replayed, err := s.replay(ctx, requestID); err != nil {
		return nil, err
	} else if replayed {
		s.log.Info().Str("request_id", requestID).Msg("request already applied, replaying deposit result")
		return wallet, nil
	}

	wallet, err := s.applyMutation(ctx, customerID, amount, requestID, domain.ActionDebit)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Int64("customer_id", customerID).
		Str("amount", amount.String()).
		Str("balance", wallet.Balance.String()).
		Msg("deposit applied")
	return wallet, nil
}

// Withdraw subtracts amount from the customer's balance and emits a
// CREDIT-labeled update event. Fails without side effects when the resulting
// balance would be negative.
func (s *WalletServiceImpl) Withdraw(ctx context.Context, customerID int64, amount decimal.Decimal, requestID string) (*domain.Wallet, error) {
	if !amount.IsPositive() {
		return nil, apperror.ErrInvalidAmount()
	}

	if wallet, replayed, err := s.replay(ctx, requestID); err != nil {
		return nil, err
	} else if replayed {
		s.log.Info().Str("request_id", requestID).Msg("request already applied, replaying withdrawal result")
		return wallet, nil
	}

	wallet, err := s.applyMutation(ctx, customerID, amount.Neg(), requestID, domain.ActionCredit)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Int64("customer_id", customerID).
		Str("amount", amount.String()).
		Str("balance", wallet.Balance.String()).
		Msg("withdrawal applied")
	return wallet, nil
}

// GetWallet fetches the wallet for a customer.
func (s *WalletServiceImpl) GetWallet(ctx context.Context, customerID int64) (*domain.Wallet, error) {
	wallet, err := s.walletRepo.GetByCustomerID(ctx, customerID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lookup wallet: %w", err))
	}
	if wallet == nil {
		return nil, apperror.ErrCustomerNotFound(customerID)
	}
	return wallet, nil
}

// applyMutation performs the locked read-modify-write for a signed delta
// (positive = deposit, negative = withdrawal), records the request key in the
// same transaction, and publishes the update event after commit.
func (s *WalletServiceImpl) applyMutation(ctx context.Context, customerID int64, delta decimal.Decimal, requestID string, action domain.ActionType) (*domain.Wallet, error) {
	tx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	wallet, err := s.walletRepo.GetByCustomerIDForUpdate(ctx, tx, customerID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock wallet: %w", err))
	}
	if wallet == nil {
		return nil, apperror.ErrCustomerNotFound(customerID)
	}

	newBalance := wallet.Balance.Add(delta)
	if newBalance.IsNegative() {
		return nil, apperror.ErrInsufficientBalance()
	}

	if err := s.walletRepo.UpdateBalance(ctx, tx, wallet.ID, newBalance); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update balance: %w", err))
	}
	wallet.Balance = newBalance
	wallet.UpdatedAt = time.Now().UTC()

	respJSON, err := json.Marshal(wallet)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("marshal wallet: %w", err))
	}

	key := &domain.RequestKey{
		Key:          requestID,
		CustomerID:   customerID,
		ResponseJSON: respJSON,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.keyRepo.Create(ctx, tx, key); err != nil {
		if errors.Is(err, apperror.ErrDuplicateKey) {
			// A concurrent retry with the same request ID committed first.
			// Drop this attempt and replay the committed result.
			_ = tx.Rollback(ctx)
			return s.replayFromStore(ctx, requestID)
		}
		return nil, apperror.InternalError(fmt.Errorf("record request key: %w", err))
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	// Post-commit work is detached from the caller's context: a client
	// disconnect after commit must not lose the cache write or the event.
	postCtx := context.WithoutCancel(ctx)

	// Best-effort fast-path cache.
	if err := s.idempCache.Set(postCtx, requestID, respJSON, idempotencyTTL); err != nil {
		s.log.Warn().Err(err).Str("request_id", requestID).Msg("failed to cache request key in redis")
	}

	// The publisher owns retry and dead-lettering. A returned error means
	// the payload could not even be serialized; the balance mutation stands
	// regardless.
	event := domain.UpdateEvent{
		CustomerID: customerID,
		Amount:     delta.Abs(),
		ActionType: action,
		Balance:    newBalance,
	}
	if err := s.publisher.Publish(postCtx, TopicBalanceUpdate, event); err != nil {
		s.log.Error().Err(err).
			Int64("customer_id", customerID).
			Str("action", string(action)).
			Msg("update event not published")
	}

	return wallet, nil
}

// replay returns the committed wallet state for an already applied request.
// Checks the Redis fast path first, then the request_keys table.
func (s *WalletServiceImpl) replay(ctx context.Context, requestID string) (*domain.Wallet, bool, error) {
	cached, err := s.idempCache.Get(ctx, requestID)
	if err != nil {
		s.log.Warn().Err(err).Str("request_id", requestID).Msg("redis idempotency check failed, falling through to DB")
	}
	if cached != nil {
		wallet, err := unmarshalWallet(cached)
		if err == nil {
			return wallet, true, nil
		}
		// A corrupt cache entry is treated as a miss; the request_keys row
		// is authoritative.
		s.log.Warn().Err(err).Str("request_id", requestID).Msg("corrupt cached response, falling through to DB")
	}

	key, err := s.keyRepo.Get(ctx, requestID)
	if err != nil {
		return nil, false, apperror.InternalError(fmt.Errorf("db idempotency check: %w", err))
	}
	if key == nil {
		return nil, false, nil
	}
	wallet, err := unmarshalWallet(key.ResponseJSON)
	return wallet, wallet != nil, err
}

// replayFromStore reads the committed response directly from the
// request_keys table, bypassing the cache.
func (s *WalletServiceImpl) replayFromStore(ctx context.Context, requestID string) (*domain.Wallet, error) {
	key, err := s.keyRepo.Get(ctx, requestID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("db idempotency check: %w", err))
	}
	if key == nil {
		return nil, apperror.InternalError(fmt.Errorf("request key %q vanished after duplicate insert", requestID))
	}
	return unmarshalWallet(key.ResponseJSON)
}

func unmarshalWallet(data []byte) (*domain.Wallet, error) {
	wallet := &domain.Wallet{}
	if err := json.Unmarshal(data, wallet); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("unmarshal cached wallet: %w", err))
	}
	return wallet, nil
}
