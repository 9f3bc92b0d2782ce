package models

import (
	"encoding/json"
	"time"
)

const (
	OrderStatusCompleted = "completed"

	PackageTypeFixed   = "fixed"
	PackageTypeMonthly = "monthly"
)

type Order struct {
	ID          int64       `json:"id"`
	UserID      int64       `json:"user_id"`
	Status      string      `json:"status"`
	TotalAmount float64     `json:"total_amount"`
	CreatedAt   time.Time   `json:"created_at"`
	Items       []OrderItem `json:"items,omitempty"`
}

type OrderItem struct {
	ID             int64        `json:"id"`
	OrderID        int64        `json:"order_id"`
	CatalogEntryID int64        `json:"catalog_entry_id"`
	Quantity       int          `json:"quantity"`
	Price          float64      `json:"price"`
	CatalogEntry   CatalogEntry `json:"catalog_entry"`
}

// CatalogEntry is a purchasable training package. Exactly how many sessions
// a unit grants depends on which of the optional counts are filled in.
type CatalogEntry struct {
	ID              int64   `json:"id"`
	Name            string  `json:"name"`
	PackageType     string  `json:"package_type"`
	Sessions        *int    `json:"sessions,omitempty"`
	TotalSessions   *int    `json:"total_sessions,omitempty"`
	Months          *int    `json:"months,omitempty"`
	SessionsPerWeek *int    `json:"sessions_per_week,omitempty"`
	Price           float64 `json:"price"`
}

type FinancialTransaction struct {
	ID        int64           `json:"id"`
	Reference string          `json:"reference"`
	UserID    int64           `json:"user_id"`
	OrderID   int64           `json:"order_id"`
	Amount    float64         `json:"amount"`
	Type      string          `json:"type"`
	Metadata  json.RawMessage `json:"metadata"`
	CreatedAt time.Time       `json:"created_at"`
}

type AllocationResult struct {
	Allocated     bool      `json:"allocated"`
	TotalSessions int       `json:"total_sessions"`
	Sessions      []Session `json:"sessions"`
}
