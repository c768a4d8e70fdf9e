package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/graphbank/backoffice/internal/cqrs"
	"github.com/graphbank/backoffice/internal/middleware"
	"github.com/graphbank/backoffice/internal/models"
	"github.com/graphbank/backoffice/internal/transaction/settlement"
)

// Commander defines the write-side operations used by TransactionHandler.
type Commander interface {
	CreateTransaction(ctx context.Context, cmd cqrs.CreateTransactionCommand) (*models.Transaction, error)
	CreateTransfer(ctx context.Context, cmd cqrs.CreateTransferCommand) (*models.Transaction, error)
	UpdateStatus(ctx context.Context, cmd cqrs.UpdateTransactionStatusCommand) (*models.Transaction, error)
	Complete(ctx context.Context, id int64) (*models.Transaction, error)
	Fail(ctx context.Context, id int64, reason string) (*models.Transaction, error)
	Cancel(ctx context.Context, id int64) (*models.Transaction, error)
	Delete(ctx context.Context, id int64) error
}

// Querier defines the read-side operations used by TransactionHandler.
type Querier interface {
	ListAll(ctx context.Context) ([]models.Transaction, error)
	GetByID(ctx context.Context, q cqrs.GetTransactionQuery) (*models.Transaction, error)
	GetByReference(ctx context.Context, q cqrs.GetTransactionByReferenceQuery) (*models.Transaction, error)
	List(ctx context.Context, q cqrs.ListTransactionsQuery) ([]models.Transaction, error)
	ListStale(ctx context.Context, q cqrs.StaleTransactionsQuery) ([]models.Transaction, error)
	Count(ctx context.Context, q cqrs.TransactionCountQuery) (int64, error)
	TotalDebitsByAccount(ctx context.Context, accountID int64) (decimal.Decimal, error)
	TotalCreditsByAccount(ctx context.Context, accountID int64) (decimal.Decimal, error)
	UserSummary(ctx context.Context, q cqrs.UserSummaryQuery) (*models.UserTransactionSummary, error)
}

// BatchProcessor runs a settlement pass over all pending transactions.
type BatchProcessor interface {
	ProcessPending(ctx context.Context) (settlement.Result, error)
}

type TransactionHandler struct {
	commands  Commander
	queries   Querier
	processor BatchProcessor
}

func NewTransactionHandler(commands Commander, queries Querier, processor BatchProcessor) *TransactionHandler {
	return &TransactionHandler{commands: commands, queries: queries, processor: processor}
}

// RegisterRoutes mounts the full operation set under /v1.
func (h *TransactionHandler) RegisterRoutes(r gin.IRouter) {
	v1 := r.Group("/v1")
	{
		v1.GET("/transactions", h.ListTransactions)
		v1.GET("/transactions/stale", h.ListStale)
		v1.GET("/transactions/reference/:reference", h.GetByReference)
		v1.GET("/transactions/:id", h.GetByID)
		v1.POST("/transactions", h.Create)
		v1.POST("/transfers", h.CreateTransfer)
		v1.PATCH("/transactions/:id/status", h.UpdateStatus)
		v1.POST("/transactions/:id/complete", h.Complete)
		v1.POST("/transactions/:id/fail", h.Fail)
		v1.POST("/transactions/:id/cancel", h.Cancel)
		v1.DELETE("/transactions/:id", h.Delete)

		v1.GET("/users/:userId/transactions", h.ListByUser)
		v1.GET("/users/:userId/transactions/summary", h.UserSummary)
		v1.GET("/users/:userId/transactions/count", h.CountByUser)
		v1.GET("/accounts/:accountId/transactions", h.ListByAccount)
		v1.GET("/accounts/:accountId/transactions/totals", h.AccountTotals)

		v1.POST("/settlements/run", h.RunSettlement)
	}
}

type CreateTransactionRequest struct {
	UserID      int64           `json:"userId" validate:"required,gt=0"`
	Type        string          `json:"type" validate:"required,oneof=TRANSFER DEPOSIT WITHDRAWAL PAYMENT REFUND"`
	Amount      decimal.Decimal `json:"amount" validate:"required"`
	Currency    string          `json:"currency"`
	Description string          `json:"description"`
}

type CreateTransferRequest struct {
	UserID        int64           `json:"userId" validate:"required,gt=0"`
	FromAccountID int64           `json:"fromAccountId" validate:"required,gt=0"`
	ToAccountID   int64           `json:"toAccountId" validate:"required,gt=0"`
	Amount        decimal.Decimal `json:"amount" validate:"required"`
	Currency      string          `json:"currency"`
	Description   string          `json:"description"`
}

type UpdateStatusRequest struct {
	Status        string `json:"status" validate:"required,oneof=PENDING PROCESSING COMPLETED FAILED CANCELLED"`
	FailureReason string `json:"failureReason"`
}

type FailTransactionRequest struct {
	FailureReason string `json:"failureReason" validate:"required"`
}

type ListTransactionsResponse struct {
	Transactions []models.Transaction `json:"transactions"`
}

func (h *TransactionHandler) Create(c *gin.Context) {
	var req CreateTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if validationErrors := middleware.ValidateRequest(req); validationErrors != nil {
		middleware.RespondWithValidationError(c, validationErrors)
		return
	}
	tx, err := h.commands.CreateTransaction(c.Request.Context(), cqrs.CreateTransactionCommand{
		UserID:      req.UserID,
		Type:        models.TransactionType(req.Type),
		Amount:      req.Amount,
		Currency:    req.Currency,
		Description: req.Description,
	})
	if err != nil {
		respondWithDomainError(c, err)
		return
	}
	c.JSON(http.StatusCreated, tx)
}

func (h *TransactionHandler) CreateTransfer(c *gin.Context) {
	var req CreateTransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if validationErrors := middleware.ValidateRequest(req); validationErrors != nil {
		middleware.RespondWithValidationError(c, validationErrors)
		return
	}
	tx, err := h.commands.CreateTransfer(c.Request.Context(), cqrs.CreateTransferCommand{
		UserID:        req.UserID,
		FromAccountID: req.FromAccountID,
		ToAccountID:   req.ToAccountID,
		Amount:        req.Amount,
		Currency:      req.Currency,
		Description:   req.Description,
	})
	if err != nil {
		respondWithDomainError(c, err)
		return
	}
	c.JSON(http.StatusCreated, tx)
}

func (h *TransactionHandler) UpdateStatus(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if validationErrors := middleware.ValidateRequest(req); validationErrors != nil {
		middleware.RespondWithValidationError(c, validationErrors)
		return
	}
	tx, err := h.commands.UpdateStatus(c.Request.Context(), cqrs.UpdateTransactionStatusCommand{
		TransactionID: id,
		Status:        models.TransactionStatus(req.Status),
		FailureReason: req.FailureReason,
	})
	if err != nil {
		respondWithDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, tx)
}

func (h *TransactionHandler) Complete(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	tx, err := h.commands.Complete(c.Request.Context(), id)
	if err != nil {
		respondWithDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, tx)
}

func (h *TransactionHandler) Fail(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req FailTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if validationErrors := middleware.ValidateRequest(req); validationErrors != nil {
		middleware.RespondWithValidationError(c, validationErrors)
		return
	}
	tx, err := h.commands.Fail(c.Request.Context(), id, req.FailureReason)
	if err != nil {
		respondWithDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, tx)
}

func (h *TransactionHandler) Cancel(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	tx, err := h.commands.Cancel(c.Request.Context(), id)
	if err != nil {
		respondWithDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, tx)
}

func (h *TransactionHandler) Delete(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.commands.Delete(c.Request.Context(), id); err != nil {
		respondWithDomainError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *TransactionHandler) GetByID(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	tx, err := h.queries.GetByID(c.Request.Context(), cqrs.GetTransactionQuery{TransactionID: id})
	if err != nil {
		respondWithDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, tx)
}

func (h *TransactionHandler) GetByReference(c *gin.Context) {
	tx, err := h.queries.GetByReference(c.Request.Context(), cqrs.GetTransactionByReferenceQuery{
		Reference: c.Param("reference"),
	})
	if err != nil {
		respondWithDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, tx)
}

// ListTransactions serves list-all, list-by-status and list-by-type via the
// optional status and type query parameters.
func (h *TransactionHandler) ListTransactions(c *gin.Context) {
	q := cqrs.ListTransactionsQuery{}
	if !parseStatusParam(c, &q) || !parseTypeParam(c, &q) {
		return
	}
	if q.Status == nil && q.Type == nil {
		transactions, err := h.queries.ListAll(c.Request.Context())
		if err != nil {
			respondWithDomainError(c, err)
			return
		}
		c.JSON(http.StatusOK, ListTransactionsResponse{Transactions: transactions})
		return
	}
	transactions, err := h.queries.List(c.Request.Context(), q)
	if err != nil {
		respondWithDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, ListTransactionsResponse{Transactions: transactions})
}

// ListByUser serves list-by-user plus the status, type and date-range
// variants via query parameters.
func (h *TransactionHandler) ListByUser(c *gin.Context) {
	userID, ok := pathID(c, "userId")
	if !ok {
		return
	}
	q := cqrs.ListTransactionsQuery{UserID: &userID}
	if !parseStatusParam(c, &q) || !parseTypeParam(c, &q) || !parseRangeParams(c, &q) {
		return
	}
	transactions, err := h.queries.List(c.Request.Context(), q)
	if err != nil {
		respondWithDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, ListTransactionsResponse{Transactions: transactions})
}

// ListByAccount matches either account leg, optionally bounded by a date range.
func (h *TransactionHandler) ListByAccount(c *gin.Context) {
	accountID, ok := pathID(c, "accountId")
	if !ok {
		return
	}
	q := cqrs.ListTransactionsQuery{AccountID: &accountID}
	if !parseRangeParams(c, &q) {
		return
	}
	transactions, err := h.queries.List(c.Request.Context(), q)
	if err != nil {
		respondWithDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, ListTransactionsResponse{Transactions: transactions})
}

func (h *TransactionHandler) ListStale(c *gin.Context) {
	hoursOld, err := strconv.Atoi(c.DefaultQuery("hoursOld", "24"))
	if err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid hoursOld parameter")
		return
	}
	transactions, err := h.queries.ListStale(c.Request.Context(), cqrs.StaleTransactionsQuery{HoursOld: hoursOld})
	if err != nil {
		respondWithDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, ListTransactionsResponse{Transactions: transactions})
}

func (h *TransactionHandler) CountByUser(c *gin.Context) {
	userID, ok := pathID(c, "userId")
	if !ok {
		return
	}
	status, err := models.ParseTransactionStatus(c.Query("status"))
	if err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid status parameter")
		return
	}
	count, err := h.queries.Count(c.Request.Context(), cqrs.TransactionCountQuery{UserID: userID, Status: status})
	if err != nil {
		respondWithDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"userId": userID, "status": status, "count": count})
}

func (h *TransactionHandler) UserSummary(c *gin.Context) {
	userID, ok := pathID(c, "userId")
	if !ok {
		return
	}
	summary, err := h.queries.UserSummary(c.Request.Context(), cqrs.UserSummaryQuery{UserID: userID})
	if err != nil {
		respondWithDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *TransactionHandler) AccountTotals(c *gin.Context) {
	accountID, ok := pathID(c, "accountId")
	if !ok {
		return
	}
	debits, err := h.queries.TotalDebitsByAccount(c.Request.Context(), accountID)
	if err != nil {
		respondWithDomainError(c, err)
		return
	}
	credits, err := h.queries.TotalCreditsByAccount(c.Request.Context(), accountID)
	if err != nil {
		respondWithDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"accountId":    accountID,
		"totalDebits":  debits,
		"totalCredits": credits,
	})
}

func (h *TransactionHandler) RunSettlement(c *gin.Context) {
	result, err := h.processor.ProcessPending(c.Request.Context())
	if err != nil {
		respondWithDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"scanned":   result.Scanned,
		"claimed":   result.Claimed,
		"completed": result.Completed,
		"failed":    result.Failed,
	})
}

// ---- helpers ----

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid "+name+" parameter")
		return 0, false
	}
	return id, true
}

func parseStatusParam(c *gin.Context, q *cqrs.ListTransactionsQuery) bool {
	raw := c.Query("status")
	if raw == "" {
		return true
	}
	status, err := models.ParseTransactionStatus(raw)
	if err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid status parameter")
		return false
	}
	q.Status = &status
	return true
}

func parseTypeParam(c *gin.Context, q *cqrs.ListTransactionsQuery) bool {
	raw := c.Query("type")
	if raw == "" {
		return true
	}
	txType, err := models.ParseTransactionType(raw)
	if err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid type parameter")
		return false
	}
	q.Type = &txType
	return true
}

func parseRangeParams(c *gin.Context, q *cqrs.ListTransactionsQuery) bool {
	if raw := c.Query("from"); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			middleware.RespondWithError(c, http.StatusBadRequest, "Invalid from parameter, expected RFC3339")
			return false
		}
		q.From = &from
	}
	if raw := c.Query("to"); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			middleware.RespondWithError(c, http.StatusBadRequest, "Invalid to parameter, expected RFC3339")
			return false
		}
		q.To = &to
	}
	return true
}

// respondWithDomainError maps domain error kinds to HTTP statuses.
func respondWithDomainError(c *gin.Context, err error) {
	switch {
	case models.IsValidation(err):
		middleware.RespondWithError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, models.ErrNotFound):
		middleware.RespondWithError(c, http.StatusNotFound, "Transaction not found")
	case errors.Is(err, models.ErrInvalidOperation):
		middleware.RespondWithError(c, http.StatusConflict, err.Error())
	case errors.Is(err, models.ErrReferenceExhausted):
		middleware.RespondWithError(c, http.StatusServiceUnavailable, "Could not allocate a transaction reference")
	default:
		middleware.RespondWithError(c, http.StatusInternalServerError, "Internal server error")
	}
}
