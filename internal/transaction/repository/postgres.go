package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/graphbank/backoffice/internal/models"
)

// PostgresStore is the durable Store backed by PostgreSQL (lib/pq).
// Per-record atomicity for Update and Delete comes from SELECT ... FOR UPDATE
// inside a transaction.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the transactions table when it does not exist yet.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS transactions (
			id                    BIGSERIAL PRIMARY KEY,
			transaction_reference VARCHAR(12) NOT NULL UNIQUE,
			user_id               BIGINT NOT NULL,
			from_account_id       BIGINT,
			to_account_id         BIGINT,
			transaction_type      VARCHAR(16) NOT NULL,
			transaction_status    VARCHAR(16) NOT NULL,
			amount                NUMERIC(19,2) NOT NULL,
			currency              VARCHAR(8) NOT NULL,
			description           TEXT,
			failure_reason        TEXT,
			created_at            TIMESTAMPTZ NOT NULL,
			updated_at            TIMESTAMPTZ NOT NULL,
			processed_at          TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS idx_transactions_user_id ON transactions (user_id);
		CREATE INDEX IF NOT EXISTS idx_transactions_status ON transactions (transaction_status);
		CREATE INDEX IF NOT EXISTS idx_transactions_created_at ON transactions (created_at);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure transactions schema: %w", err)
	}
	return nil
}

const transactionColumns = `id, transaction_reference, user_id, from_account_id, to_account_id,
	transaction_type, transaction_status, amount, currency, description, failure_reason,
	created_at, updated_at, processed_at`

func (s *PostgresStore) Create(ctx context.Context, tx *models.Transaction) error {
	query := `
		INSERT INTO transactions (transaction_reference, user_id, from_account_id, to_account_id,
			transaction_type, transaction_status, amount, currency, description, failure_reason,
			created_at, updated_at, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id
	`
	err := s.db.QueryRowContext(ctx, query,
		tx.Reference, tx.UserID, nullInt64(tx.FromAccountID), nullInt64(tx.ToAccountID),
		tx.Type, tx.Status, tx.Amount, tx.Currency,
		nullString(tx.Description), nullString(tx.FailureReason),
		tx.CreatedAt, tx.UpdatedAt, nullTime(tx.ProcessedAt),
	).Scan(&tx.ID)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return models.ErrDuplicateReference
		}
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetByID(ctx context.Context, id int64) (*models.Transaction, error) {
	query := fmt.Sprintf(`SELECT %s FROM transactions WHERE id = $1`, transactionColumns)
	return scanTransaction(s.db.QueryRowContext(ctx, query, id))
}

func (s *PostgresStore) GetByReference(ctx context.Context, reference string) (*models.Transaction, error) {
	query := fmt.Sprintf(`SELECT %s FROM transactions WHERE transaction_reference = $1`, transactionColumns)
	return scanTransaction(s.db.QueryRowContext(ctx, query, reference))
}

func (s *PostgresStore) ExistsByReference(ctx context.Context, reference string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM transactions WHERE transaction_reference = $1)`, reference,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check reference: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) List(ctx context.Context, filter Filter) ([]models.Transaction, error) {
	where, args := buildWhere(filter)
	query := fmt.Sprintf(`SELECT %s FROM transactions %s ORDER BY created_at DESC, id DESC`, transactionColumns, where)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	transactions := []models.Transaction{}
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, *tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transactions: %w", err)
	}
	return transactions, nil
}

func (s *PostgresStore) Update(ctx context.Context, id int64, fn func(*models.Transaction) error) (*models.Transaction, error) {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin update: %w", err)
	}
	defer dbTx.Rollback()

	query := fmt.Sprintf(`SELECT %s FROM transactions WHERE id = $1 FOR UPDATE`, transactionColumns)
	tx, err := scanTransaction(dbTx.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, err
	}
	if err := fn(tx); err != nil {
		return nil, err
	}
	finalize(tx, time.Now().UTC())

	_, err = dbTx.ExecContext(ctx, `
		UPDATE transactions
		SET transaction_status = $2, failure_reason = $3, description = $4,
			updated_at = $5, processed_at = $6
		WHERE id = $1
	`, tx.ID, tx.Status, nullString(tx.FailureReason), nullString(tx.Description),
		tx.UpdatedAt, nullTime(tx.ProcessedAt))
	if err != nil {
		return nil, fmt.Errorf("failed to update transaction: %w", err)
	}
	if err := dbTx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit update: %w", err)
	}
	return tx, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id int64, guard func(*models.Transaction) error) error {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin delete: %w", err)
	}
	defer dbTx.Rollback()

	query := fmt.Sprintf(`SELECT %s FROM transactions WHERE id = $1 FOR UPDATE`, transactionColumns)
	tx, err := scanTransaction(dbTx.QueryRowContext(ctx, query, id))
	if err != nil {
		return err
	}
	if err := guard(tx); err != nil {
		return err
	}
	if _, err := dbTx.ExecContext(ctx, `DELETE FROM transactions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete transaction: %w", err)
	}
	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delete: %w", err)
	}
	return nil
}

func (s *PostgresStore) CountByUserAndStatus(ctx context.Context, userID int64, status models.TransactionStatus) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transactions WHERE user_id = $1 AND transaction_status = $2`,
		userID, status,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) SumByUserAndType(ctx context.Context, userID int64, txType models.TransactionType) (decimal.Decimal, error) {
	return s.sum(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM transactions
		WHERE user_id = $1 AND transaction_type = $2 AND transaction_status = 'COMPLETED'
	`, userID, txType)
}

func (s *PostgresStore) SumDebitsByAccount(ctx context.Context, accountID int64) (decimal.Decimal, error) {
	return s.sum(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM transactions
		WHERE from_account_id = $1 AND transaction_status = 'COMPLETED'
	`, accountID)
}

func (s *PostgresStore) SumCreditsByAccount(ctx context.Context, accountID int64) (decimal.Decimal, error) {
	return s.sum(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM transactions
		WHERE to_account_id = $1 AND transaction_status = 'COMPLETED'
	`, accountID)
}

func (s *PostgresStore) sum(ctx context.Context, query string, args ...any) (decimal.Decimal, error) {
	var total decimal.Decimal
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum transactions: %w", err)
	}
	return total, nil
}

func buildWhere(filter Filter) (string, []any) {
	clauses := []string{}
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.UserID != nil {
		clauses = append(clauses, "user_id = "+arg(*filter.UserID))
	}
	if filter.AccountID != nil {
		p := arg(*filter.AccountID)
		clauses = append(clauses, fmt.Sprintf("(from_account_id = %s OR to_account_id = %s)", p, p))
	}
	if filter.Status != nil {
		clauses = append(clauses, "transaction_status = "+arg(*filter.Status))
	}
	if filter.Type != nil {
		clauses = append(clauses, "transaction_type = "+arg(*filter.Type))
	}
	if filter.CreatedFrom != nil {
		clauses = append(clauses, "created_at >= "+arg(*filter.CreatedFrom))
	}
	if filter.CreatedTo != nil {
		clauses = append(clauses, "created_at <= "+arg(*filter.CreatedTo))
	}
	if filter.CreatedBefore != nil {
		clauses = append(clauses, "created_at < "+arg(*filter.CreatedBefore))
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	var (
		tx            models.Transaction
		fromAccount   sql.NullInt64
		toAccount     sql.NullInt64
		description   sql.NullString
		failureReason sql.NullString
		processedAt   sql.NullTime
	)
	err := row.Scan(
		&tx.ID, &tx.Reference, &tx.UserID, &fromAccount, &toAccount,
		&tx.Type, &tx.Status, &tx.Amount, &tx.Currency, &description, &failureReason,
		&tx.CreatedAt, &tx.UpdatedAt, &processedAt,
	)
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan transaction: %w", err)
	}
	if fromAccount.Valid {
		tx.FromAccountID = &fromAccount.Int64
	}
	if toAccount.Valid {
		tx.ToAccountID = &toAccount.Int64
	}
	if description.Valid {
		tx.Description = description.String
	}
	if failureReason.Valid {
		tx.FailureReason = failureReason.String
	}
	if processedAt.Valid {
		tx.ProcessedAt = &processedAt.Time
	}
	return &tx, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
