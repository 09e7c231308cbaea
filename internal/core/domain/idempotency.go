package domain

import "time"

// RequestKey records a fully applied mutation request. The row is inserted in
// the same database transaction as the balance update, so a request is marked
// applied if and only if its mutation committed.
type RequestKey struct {
	Key          string    `json:"key"` // caller-supplied idempotency key
	CustomerID   int64     `json:"customer_id"`
	ResponseJSON []byte    `json:"response_json"` // committed wallet state, replayed on retry
	CreatedAt    time.Time `json:"created_at"`
}
