package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	httpHandler "wallet-service/internal/adapter/http/handler"
	redisStorage "wallet-service/internal/adapter/storage/redis"
	"wallet-service/internal/core/ports"
	"wallet-service/internal/service"
	"wallet-service/pkg/logger"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testApp struct {
	server      *httptest.Server
	redis       *miniredis.Miniredis
	rdb         *goredis.Client
	broker      *fakeBroker
	walletRepo  *inMemoryWalletRepo
	walletSvc   ports.WalletService
	provisioner *service.Provisioner
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	// Start miniredis
	mr, err := miniredis.Run()
	require.NoError(t, err)

	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	idempotencyCache := redisStorage.NewIdempotencyCache(rdb)

	// In-memory repos and broker
	walletRepo := newInMemoryWalletRepo()
	keyRepo := newInMemoryRequestKeyRepo()
	transactor := newLockingTransactor()
	broker := newFakeBroker()

	// Business services with a small retry delay to keep tests fast
	log := logger.New("debug", false)
	publisher := service.NewReliablePublisher(broker, 5, time.Millisecond, log)
	walletSvc := service.NewWalletService(walletRepo, keyRepo, idempotencyCache, transactor, publisher, log)
	provisioner := service.NewProvisioner(walletSvc, publisher, 5, time.Millisecond, log)

	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		WalletSvc:      walletSvc,
		HealthCheckers: []ports.HealthChecker{redisStorage.NewHealthCheck(rdb)},
		Logger:         log,
	})

	server := httptest.NewServer(router)

	return &testApp{
		server:      server,
		redis:       mr,
		rdb:         rdb,
		broker:      broker,
		walletRepo:  walletRepo,
		walletSvc:   walletSvc,
		provisioner: provisioner,
	}
}

func (a *testApp) close() {
	a.server.Close()
	a.rdb.Close()
	a.redis.Close()
}

// mutate issues an authenticated deposit/withdraw call.
func (a *testApp) mutate(t *testing.T, path string, customerID, amount int64, requestID string) *http.Response {
	t.Helper()
	body, err := json.Marshal(map[string]any{"amount": decimal.NewFromInt(amount)})
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, a.server.URL+path, bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("userId", strconv.FormatInt(customerID, 10))
	req.Header.Set("requestId", requestID)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBalance(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	var envelope struct {
		Data struct {
			Balance string `json:"balance"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	return envelope.Data.Balance
}

// --- Integration Tests ---

func TestIntegration_HealthCheck(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	resp, err := http.Get(app.server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "healthy", body["status"])
}

func TestIntegration_DepositFlow(t *testing.T) {
	app := newTestApp(t)
	defer app.close()
	ctx := context.Background()

	require.NoError(t, app.walletSvc.CreateWallet(ctx, 42, decimal.Zero))

	resp := app.mutate(t, "/api/v1/wallet/deposit", 42, 500, "dep-1")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "500", decodeBalance(t, resp))

	// Balance endpoint agrees
	req, _ := http.NewRequest(http.MethodGet, app.server.URL+"/api/v1/wallet/balance", nil)
	req.Header.Set("userId", "42")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "500", decodeBalance(t, resp))

	// Exactly one DEBIT event on the update topic
	events := app.broker.topicMessages(service.TopicBalanceUpdate)
	require.Len(t, events, 1)
	assert.Contains(t, string(events[0]), `"actionType":"DEBIT"`)
	assert.Contains(t, string(events[0]), `"customerId":42`)
}

func TestIntegration_WithdrawEmitsCreditEvent(t *testing.T) {
	app := newTestApp(t)
	defer app.close()
	ctx := context.Background()

	require.NoError(t, app.walletSvc.CreateWallet(ctx, 42, decimal.NewFromInt(1000)))

	resp := app.mutate(t, "/api/v1/wallet/withdraw", 42, 300, "wd-1")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "700", decodeBalance(t, resp))

	events := app.broker.topicMessages(service.TopicBalanceUpdate)
	require.Len(t, events, 1)
	assert.Contains(t, string(events[0]), `"actionType":"CREDIT"`)
}

func TestIntegration_IdempotentReplay(t *testing.T) {
	app := newTestApp(t)
	defer app.close()
	ctx := context.Background()

	require.NoError(t, app.walletSvc.CreateWallet(ctx, 42, decimal.Zero))

	first := app.mutate(t, "/api/v1/wallet/deposit", 42, 500, "dep-1")
	assert.Equal(t, http.StatusOK, first.StatusCode)
	assert.Equal(t, "500", decodeBalance(t, first))

	// Same request ID: no second mutation, no second event
	second := app.mutate(t, "/api/v1/wallet/deposit", 42, 500, "dep-1")
	assert.Equal(t, http.StatusOK, second.StatusCode)
	assert.Equal(t, "500", decodeBalance(t, second))

	assert.Len(t, app.broker.topicMessages(service.TopicBalanceUpdate), 1)

	// Replay survives a cache wipe: the request_keys record is authoritative
	app.redis.FlushAll()
	third := app.mutate(t, "/api/v1/wallet/deposit", 42, 500, "dep-1")
	assert.Equal(t, http.StatusOK, third.StatusCode)
	assert.Equal(t, "500", decodeBalance(t, third))
	assert.Len(t, app.broker.topicMessages(service.TopicBalanceUpdate), 1)
}

func TestIntegration_Withdraw_InsufficientBalance(t *testing.T) {
	app := newTestApp(t)
	defer app.close()
	ctx := context.Background()

	require.NoError(t, app.walletSvc.CreateWallet(ctx, 42, decimal.NewFromInt(100)))

	resp := app.mutate(t, "/api/v1/wallet/withdraw", 42, 500, "wd-1")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// No mutation and no event
	wallet, err := app.walletSvc.GetWallet(ctx, 42)
	require.NoError(t, err)
	assert.True(t, wallet.Balance.Equal(decimal.NewFromInt(100)))
	assert.Empty(t, app.broker.topicMessages(service.TopicBalanceUpdate))

	// A retry with a fresh request ID is not blocked by the failed attempt
	retry := app.mutate(t, "/api/v1/wallet/withdraw", 42, 50, "wd-2")
	assert.Equal(t, http.StatusOK, retry.StatusCode)
	assert.Equal(t, "50", decodeBalance(t, retry))
}

func TestIntegration_UnknownCustomer(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	resp := app.mutate(t, "/api/v1/wallet/deposit", 99, 500, "dep-1")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestIntegration_PublishExhaustionDeadLetters(t *testing.T) {
	app := newTestApp(t)
	defer app.close()
	ctx := context.Background()

	require.NoError(t, app.walletSvc.CreateWallet(ctx, 42, decimal.Zero))
	app.broker.failNext(service.TopicBalanceUpdate, 5)

	// The caller still sees success: the mutation committed
	resp := app.mutate(t, "/api/v1/wallet/deposit", 42, 500, "dep-1")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "500", decodeBalance(t, resp))

	assert.Empty(t, app.broker.topicMessages(service.TopicBalanceUpdate))
	deadLetters := app.broker.topicMessages(service.TopicDeadLetter)
	require.Len(t, deadLetters, 1)
	assert.Contains(t, string(deadLetters[0]), `"actionType":"DEBIT"`)

	wallet, err := app.walletSvc.GetWallet(ctx, 42)
	require.NoError(t, err)
	assert.True(t, wallet.Balance.Equal(decimal.NewFromInt(500)))
}

func TestIntegration_Provisioning(t *testing.T) {
	app := newTestApp(t)
	defer app.close()
	ctx := context.Background()

	payload := []byte(`{"customerId":7}`)
	require.NoError(t, app.provisioner.HandleCustomerUpdate(ctx, payload))

	wallet, err := app.walletSvc.GetWallet(ctx, 7)
	require.NoError(t, err)
	assert.True(t, wallet.Balance.Equal(decimal.Zero))

	// Redelivery of the same event is a no-op
	require.NoError(t, app.provisioner.HandleCustomerUpdate(ctx, payload))
	again, err := app.walletSvc.GetWallet(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, wallet.ID, again.ID)
}

func TestIntegration_Provisioning_RecoversFromTransientFailures(t *testing.T) {
	app := newTestApp(t)
	defer app.close()
	ctx := context.Background()

	app.walletRepo.failNextCreates(3)
	require.NoError(t, app.provisioner.HandleCustomerUpdate(ctx, []byte(`{"customerId":7}`)))

	wallet, err := app.walletSvc.GetWallet(ctx, 7)
	require.NoError(t, err)
	assert.NotNil(t, wallet)
	assert.Empty(t, app.broker.topicMessages(service.TopicWalletCreateDeadLetter))
}

func TestIntegration_Provisioning_ExhaustionDeadLetters(t *testing.T) {
	app := newTestApp(t)
	defer app.close()
	ctx := context.Background()

	app.walletRepo.failNextCreates(5)
	require.NoError(t, app.provisioner.HandleCustomerUpdate(ctx, []byte(`{"customerId":7}`)))

	// No wallet, but the event is preserved on the wallet-create DLQ
	_, err := app.walletSvc.GetWallet(ctx, 7)
	require.Error(t, err)

	deadLetters := app.broker.topicMessages(service.TopicWalletCreateDeadLetter)
	require.Len(t, deadLetters, 1)
	assert.JSONEq(t, `{"customerId":7}`, string(deadLetters[0]))
}
