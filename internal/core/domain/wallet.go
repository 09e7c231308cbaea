package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Wallet is the per-customer balance record. CustomerID is the external
// identifier; ID is the internal storage key.
type Wallet struct {
	ID         uuid.UUID       `json:"id"`
	CustomerID int64           `json:"customer_id"`
	Balance    decimal.Decimal `json:"balance"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// NewWallet builds a wallet for a customer with the given starting balance.
func NewWallet(customerID int64, balance decimal.Decimal) *Wallet {
	now := time.Now().UTC()
	return &Wallet{
		ID:         uuid.New(),
		CustomerID: customerID,
		Balance:    balance,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}
