package integration

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"strconv"
	"testing"

	"wallet-service/internal/service"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRandomizedMutationSequence drives a seeded random mix of deposits,
// withdrawals, and verbatim replays against one wallet and checks every
// response against a model ledger. The balance may never go negative and
// each committed mutation must emit exactly one update event.
func TestRandomizedMutationSequence(t *testing.T) {
	app := newTestApp(t)
	defer app.close()
	ctx := context.Background()

	// Fixed seed keeps failures reproducible.
	rng := rand.New(rand.NewSource(20240901))

	require.NoError(t, app.walletSvc.CreateWallet(ctx, 42, decimal.NewFromInt(500)))

	type op struct {
		id       string
		amount   int64
		withdraw bool
	}
	balance := int64(500)
	var committed []op

	for i := 0; i < 200; i++ {
		// Occasionally redeliver a committed request verbatim; it must
		// replay without mutating.
		if len(committed) > 0 && rng.Intn(8) == 0 {
			prev := committed[rng.Intn(len(committed))]
			path := "/api/v1/wallet/deposit"
			if prev.withdraw {
				path = "/api/v1/wallet/withdraw"
			}
			resp := app.mutate(t, path, 42, prev.amount, prev.id)
			assert.Equal(t, http.StatusOK, resp.StatusCode, "replay of %s", prev.id)
			resp.Body.Close()
			continue
		}

		o := op{
			id:       fmt.Sprintf("op-%d", i),
			amount:   int64(rng.Intn(200) + 1),
			withdraw: rng.Intn(2) == 1,
		}
		path := "/api/v1/wallet/deposit"
		if o.withdraw {
			path = "/api/v1/wallet/withdraw"
		}
		resp := app.mutate(t, path, 42, o.amount, o.id)

		if o.withdraw && o.amount > balance {
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "op %s", o.id)
			resp.Body.Close()
			continue
		}

		require.Equal(t, http.StatusOK, resp.StatusCode, "op %s", o.id)
		if o.withdraw {
			balance -= o.amount
		} else {
			balance += o.amount
		}
		require.GreaterOrEqual(t, balance, int64(0))
		assert.Equal(t, strconv.FormatInt(balance, 10), decodeBalance(t, resp), "op %s", o.id)
		committed = append(committed, o)
	}

	wallet, err := app.walletSvc.GetWallet(ctx, 42)
	require.NoError(t, err)
	assert.True(t, wallet.Balance.Equal(decimal.NewFromInt(balance)))

	// One update event per committed mutation; replays and rejections add none.
	assert.Len(t, app.broker.topicMessages(service.TopicBalanceUpdate), len(committed))
}
