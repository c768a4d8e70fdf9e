package events

import "time"

// Event types
const (
	UserCreated = "user.created"
	UserUpdated = "user.updated"
	UserDeleted = "user.deleted"

	TransactionCreated       = "transaction.created"
	TransactionStatusChanged = "transaction.status_changed"
	TransactionDeleted       = "transaction.deleted"
	SettlementBatchFinished  = "settlement.batch_finished"
)

// Stream names
const (
	UserEventsStream        = "user.events"
	TransactionEventsStream = "transaction.events"
)

// Base event structure
type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// User events
type UserCreatedEvent struct {
	UserID int64  `json:"userId"`
	Email  string `json:"email"`
	Name   string `json:"name"`
}

type UserUpdatedEvent struct {
	UserID int64  `json:"userId"`
	Email  string `json:"email"`
	Name   string `json:"name"`
}

type UserDeletedEvent struct {
	UserID int64 `json:"userId"`
}

// Transaction events
type TransactionCreatedEvent struct {
	TransactionID int64  `json:"transactionId"`
	Reference     string `json:"transactionReference"`
	UserID        int64  `json:"userId"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	Type          string `json:"type"`
}

type TransactionStatusChangedEvent struct {
	TransactionID int64  `json:"transactionId"`
	UserID        int64  `json:"userId"`
	Status        string `json:"status"`
	FailureReason string `json:"failureReason,omitempty"`
}

type TransactionDeletedEvent struct {
	TransactionID int64 `json:"transactionId"`
	UserID        int64 `json:"userId"`
}

type SettlementBatchFinishedEvent struct {
	Claimed   int `json:"claimed"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}
