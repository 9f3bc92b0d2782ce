package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/saeid-a/SessionLedgerBack/internal/models"
)

type CreateFinancialTransactionInput struct {
	Reference string
	UserID    int64
	OrderID   int64
	Amount    float64
	Type      string
	Metadata  json.RawMessage
}

type FinancialTransactionRepository struct {
	db DBTX
}

func NewFinancialTransactionRepository(db DBTX) *FinancialTransactionRepository {
	return &FinancialTransactionRepository{db: db}
}

type txBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Create inserts the audit row. When the repository runs inside a transaction
// the insert is wrapped in a savepoint, so a failed insert leaves the outer
// transaction usable.
func (r *FinancialTransactionRepository) Create(
	ctx context.Context,
	input CreateFinancialTransactionInput,
) (*models.FinancialTransaction, error) {
	beginner, ok := r.db.(txBeginner)
	if !ok {
		return r.insert(ctx, r.db, input)
	}

	savepoint, err := beginner.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin financial transaction savepoint: %w", err)
	}
	defer func() {
		_ = savepoint.Rollback(ctx)
	}()

	record, err := r.insert(ctx, savepoint, input)
	if err != nil {
		return nil, err
	}
	if err := savepoint.Commit(ctx); err != nil {
		return nil, fmt.Errorf("release financial transaction savepoint: %w", err)
	}
	return record, nil
}

func (r *FinancialTransactionRepository) insert(
	ctx context.Context,
	db DBTX,
	input CreateFinancialTransactionInput,
) (*models.FinancialTransaction, error) {
	query := `
		INSERT INTO financial_transactions (reference, user_id, order_id, amount, type, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, reference, user_id, order_id, amount, type, metadata, created_at
	`

	var record models.FinancialTransaction
	err := db.QueryRow(
		ctx,
		query,
		input.Reference,
		input.UserID,
		input.OrderID,
		input.Amount,
		input.Type,
		[]byte(input.Metadata),
	).Scan(
		&record.ID,
		&record.Reference,
		&record.UserID,
		&record.OrderID,
		&record.Amount,
		&record.Type,
		&record.Metadata,
		&record.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert financial transaction: %w", err)
	}
	return &record, nil
}
