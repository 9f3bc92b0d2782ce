package repository

import (
	"context"
	"fmt"

	"github.com/saeid-a/SessionLedgerBack/internal/models"
)

type OrderRepository struct {
	db DBTX
}

func NewOrderRepository(db DBTX) *OrderRepository {
	return &OrderRepository{db: db}
}

// GetCompletedForUser loads a completed order owned by userID together with
// its line items and their catalog entries. Any mismatch reads as not found.
func (r *OrderRepository) GetCompletedForUser(
	ctx context.Context,
	orderID int64,
	userID int64,
) (*models.Order, error) {
	query := `
		SELECT id, user_id, status, total_amount, created_at
		FROM orders
		WHERE id = $1 AND user_id = $2 AND status = $3
	`
	var order models.Order
	err := r.db.QueryRow(ctx, query, orderID, userID, models.OrderStatusCompleted).Scan(
		&order.ID,
		&order.UserID,
		&order.Status,
		&order.TotalAmount,
		&order.CreatedAt,
	)
	if err != nil {
		return nil, mapNoRows(err)
	}

	items, err := r.listItems(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	order.Items = items
	return &order, nil
}

func (r *OrderRepository) listItems(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	query := `
		SELECT oi.id, oi.order_id, oi.catalog_entry_id, oi.quantity, oi.price,
		       ce.id, ce.name, ce.package_type, ce.sessions, ce.total_sessions,
		       ce.months, ce.sessions_per_week, ce.price
		FROM order_items oi
		JOIN catalog_entries ce ON ce.id = oi.catalog_entry_id
		WHERE oi.order_id = $1
		ORDER BY oi.id ASC
	`
	rows, err := r.db.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}
	defer rows.Close()

	items := make([]models.OrderItem, 0)
	for rows.Next() {
		var item models.OrderItem
		if err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.CatalogEntryID,
			&item.Quantity,
			&item.Price,
			&item.CatalogEntry.ID,
			&item.CatalogEntry.Name,
			&item.CatalogEntry.PackageType,
			&item.CatalogEntry.Sessions,
			&item.CatalogEntry.TotalSessions,
			&item.CatalogEntry.Months,
			&item.CatalogEntry.SessionsPerWeek,
			&item.CatalogEntry.Price,
		); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
