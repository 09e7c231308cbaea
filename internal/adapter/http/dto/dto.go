// Package dto defines request/response payloads for the HTTP API.
package dto

import (
	"time"

	"wallet-service/internal/core/domain"

	"github.com/shopspring/decimal"
)

// MutationRequest is the body for deposit and withdrawal calls.
type MutationRequest struct {
	Amount decimal.Decimal `json:"amount" binding:"required"`
}

// WalletResponse is the wallet state returned by the API.
type WalletResponse struct {
	CustomerID int64           `json:"customer_id"`
	Balance    decimal.Decimal `json:"balance"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// ToWalletResponse maps a domain wallet to its API shape.
func ToWalletResponse(w *domain.Wallet) WalletResponse {
	return WalletResponse{
		CustomerID: w.CustomerID,
		Balance:    w.Balance,
		UpdatedAt:  w.UpdatedAt,
	}
}
