package domain

import "github.com/shopspring/decimal"

// ActionType labels a balance mutation in the outbound event stream.
// DEBIT marks a deposit, CREDIT marks a withdrawal. Downstream consumers
// key off these exact strings.
type ActionType string

const (
	ActionCredit ActionType = "CREDIT"
	ActionDebit  ActionType = "DEBIT"
)

// UpdateEvent describes a completed balance mutation. Published to the
// balance-update-event topic after the balance write commits.
type UpdateEvent struct {
	CustomerID int64           `json:"customerId"`
	Amount     decimal.Decimal `json:"amount"`
	ActionType ActionType      `json:"actionType"`
	Balance    decimal.Decimal `json:"balance"`
}

// CustomerUpdateEvent arrives from the upstream customer system and
// triggers wallet provisioning.
type CustomerUpdateEvent struct {
	CustomerID int64 `json:"customerId"`
}
