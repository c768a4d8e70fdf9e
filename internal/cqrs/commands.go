package cqrs

import (
	"github.com/graphbank/backoffice/internal/models"
	"github.com/shopspring/decimal"
)

type CreateTransactionCommand struct {
	UserID      int64
	Type        models.TransactionType
	Amount      decimal.Decimal
	Currency    string
	Description string
}

type CreateTransferCommand struct {
	UserID        int64
	FromAccountID int64
	ToAccountID   int64
	Amount        decimal.Decimal
	Currency      string
	Description   string
}

type UpdateTransactionStatusCommand struct {
	TransactionID int64
	Status        models.TransactionStatus
	FailureReason string
}

type CreateUserCommand struct {
	Name     string
	Email    string
	Password string
}

type UpdateUserCommand struct {
	UserID int64
	Name   string
	Email  string
}

type DeleteUserCommand struct {
	UserID int64
}
