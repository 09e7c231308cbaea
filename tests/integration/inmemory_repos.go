package integration

import (
	"context"
	"fmt"
	"sync"

	"wallet-service/internal/core/domain"
	"wallet-service/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// --- In-Memory Wallet Repo ---

type inMemoryWalletRepo struct {
	mu          sync.RWMutex
	wallets     map[int64]*domain.Wallet
	failCreates int
}

func newInMemoryWalletRepo() *inMemoryWalletRepo {
	return &inMemoryWalletRepo{wallets: make(map[int64]*domain.Wallet)}
}

// failNextCreates injects n transient insert failures.
func (r *inMemoryWalletRepo) failNextCreates(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failCreates = n
}

func (r *inMemoryWalletRepo) Create(ctx context.Context, w *domain.Wallet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failCreates > 0 {
		r.failCreates--
		return fmt.Errorf("injected insert failure")
	}
	if _, ok := r.wallets[w.CustomerID]; ok {
		return apperror.ErrDuplicateKey
	}
	cp := *w
	r.wallets[w.CustomerID] = &cp
	return nil
}

func (r *inMemoryWalletRepo) GetByCustomerID(ctx context.Context, customerID int64) (*domain.Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.wallets[customerID]
	if !ok {
		return nil, nil
	}
	cp := *w
	return &cp, nil
}

func (r *inMemoryWalletRepo) GetByCustomerIDForUpdate(ctx context.Context, tx pgx.Tx, customerID int64) (*domain.Wallet, error) {
	return r.GetByCustomerID(ctx, customerID)
}

func (r *inMemoryWalletRepo) UpdateBalance(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, balance decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, w := range r.wallets {
		if w.ID == walletID {
			w.Balance = balance
			return nil
		}
	}
	return fmt.Errorf("wallet %s not found", walletID)
}

// --- In-Memory Request Key Repo ---

type inMemoryRequestKeyRepo struct {
	mu   sync.RWMutex
	keys map[string]*domain.RequestKey
}

func newInMemoryRequestKeyRepo() *inMemoryRequestKeyRepo {
	return &inMemoryRequestKeyRepo{keys: make(map[string]*domain.RequestKey)}
}

func (r *inMemoryRequestKeyRepo) Create(ctx context.Context, tx pgx.Tx, key *domain.RequestKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.keys[key.Key]; ok {
		return apperror.ErrDuplicateKey
	}
	cp := *key
	r.keys[key.Key] = &cp
	return nil
}

func (r *inMemoryRequestKeyRepo) Get(ctx context.Context, key string) (*domain.RequestKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	k, ok := r.keys[key]
	if !ok {
		return nil, nil
	}
	cp := *k
	return &cp, nil
}

// --- In-Memory Transactor ---

// lockingTransactor serializes transactions behind a single mutex, standing
// in for the row lock the SQL repos take. Required for deterministic
// concurrency tests.
type lockingTransactor struct {
	mu sync.Mutex
}

func newLockingTransactor() *lockingTransactor {
	return &lockingTransactor{}
}

func (t *lockingTransactor) Begin(ctx context.Context) (pgx.Tx, error) {
	t.mu.Lock()
	tx := &memTx{}
	tx.release = func() { t.mu.Unlock() }
	return tx, nil
}

// memTx is a pgx.Tx whose Commit/Rollback release the transactor lock.
type memTx struct {
	release func()
	once    sync.Once
}

func (t *memTx) end() {
	t.once.Do(t.release)
}

func (t *memTx) Begin(ctx context.Context) (pgx.Tx, error) { return t, nil }
func (t *memTx) Commit(ctx context.Context) error          { t.end(); return nil }
func (t *memTx) Rollback(ctx context.Context) error        { t.end(); return nil }
func (t *memTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *memTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (t *memTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (t *memTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *memTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (t *memTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (t *memTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return nil
}
func (t *memTx) Conn() *pgx.Conn { return nil }

// --- In-Memory Broker ---

// fakeBroker records written messages per topic. failures[topic] injects
// that many write errors before deliveries start succeeding.
type fakeBroker struct {
	mu       sync.Mutex
	messages map[string][][]byte
	failures map[string]int
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{
		messages: make(map[string][][]byte),
		failures: make(map[string]int),
	}
}

func (b *fakeBroker) failNext(topic string, n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[topic] = n
}

func (b *fakeBroker) WriteMessage(ctx context.Context, topic string, key, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failures[topic] > 0 {
		b.failures[topic]--
		return fmt.Errorf("injected broker failure for %s", topic)
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	b.messages[topic] = append(b.messages[topic], cp)
	return nil
}

func (b *fakeBroker) topicMessages(topic string) [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([][]byte, len(b.messages[topic]))
	copy(out, b.messages[topic])
	return out
}
