package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/saeid-a/SessionLedgerBack/internal/models"
	"github.com/saeid-a/SessionLedgerBack/internal/repository"
)

const (
	weeksPerMonth           = 4
	financialTypeAllocation = "session_allocation"
)

type AllocationService struct {
	store      repository.Store
	dispatcher *Dispatcher
	ledger     creditLedger
	now        func() time.Time
	logger     *slog.Logger
}

func NewAllocationService(
	store repository.Store,
	dispatcher *Dispatcher,
	now func() time.Time,
	logger *slog.Logger,
) *AllocationService {
	if now == nil {
		now = time.Now
	}
	return &AllocationService{
		store:      store,
		dispatcher: dispatcher,
		now:        now,
		logger:     defaultLogger(logger),
	}
}

// SessionsForItem resolves how many credits one order line grants. A flat
// session count wins, then a total count, then monthly packages at four weeks
// per month. Anything else grants nothing.
func SessionsForItem(item models.OrderItem) int {
	if item.Quantity <= 0 {
		return 0
	}
	entry := item.CatalogEntry

	switch {
	case positive(entry.Sessions):
		return *entry.Sessions * item.Quantity
	case positive(entry.TotalSessions):
		return *entry.TotalSessions * item.Quantity
	case entry.PackageType == models.PackageTypeMonthly &&
		positive(entry.Months) && positive(entry.SessionsPerWeek):
		return *entry.Months * *entry.SessionsPerWeek * weeksPerMonth * item.Quantity
	}
	return 0
}

type allocatedItem struct {
	CatalogEntryID int64  `json:"catalog_entry_id"`
	Name           string `json:"name"`
	Quantity       int    `json:"quantity"`
	Sessions       int    `json:"sessions"`
}

type allocationSnapshot struct {
	OrderID       int64           `json:"order_id"`
	TotalSessions int             `json:"total_sessions"`
	SessionIDs    []int64         `json:"session_ids"`
	Items         []allocatedItem `json:"items"`
	Balance       int             `json:"balance_after"`
	AllocatedAt   time.Time       `json:"allocated_at"`
}

// AllocateFromOrder turns a completed order into unscheduled session
// placeholders and the matching credit balance in one transaction. It is not
// idempotent: callers must invoke it at most once per order.
func (s *AllocationService) AllocateFromOrder(
	ctx context.Context,
	orderID int64,
	userID int64,
) (*models.AllocationResult, error) {
	logger := serviceLogger(ctx, s.logger, "allocation", "allocate", "order_id", orderID, "user_id", userID)

	result := &models.AllocationResult{Sessions: []models.Session{}}
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		order, err := repos.Orders.GetCompletedForUser(ctx, orderID, userID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrOrderNotFound
			}
			return err
		}
		if len(order.Items) == 0 {
			return ErrOrderNotFound
		}

		total := 0
		items := make([]allocatedItem, 0, len(order.Items))
		for _, item := range order.Items {
			count := SessionsForItem(item)
			if count == 0 {
				logger.Info("order item grants no sessions", "order_item_id", item.ID, "catalog_entry_id", item.CatalogEntryID)
				continue
			}
			total += count
			items = append(items, allocatedItem{
				CatalogEntryID: item.CatalogEntryID,
				Name:           item.CatalogEntry.Name,
				Quantity:       item.Quantity,
				Sessions:       count,
			})
		}
		if total == 0 {
			return nil
		}

		owner := userID
		sessionIDs := make([]int64, 0, total)
		for i := 0; i < total; i++ {
			session, err := repos.Sessions.Create(ctx, repository.CreateSessionInput{
				Duration: models.DefaultSessionDuration,
				Status:   models.StatusAvailable,
				ClientID: &owner,
			})
			if err != nil {
				return fmt.Errorf("create session placeholder: %w", err)
			}
			result.Sessions = append(result.Sessions, *session)
			sessionIDs = append(sessionIDs, session.ID)
		}

		balance, err := s.ledger.Credit(ctx, repos.Users, userID, total)
		if err != nil {
			return err
		}

		result.Allocated = true
		result.TotalSessions = total

		s.recordFinancialTransaction(ctx, logger, repos.FinancialTransactions, order, allocationSnapshot{
			OrderID:       order.ID,
			TotalSessions: total,
			SessionIDs:    sessionIDs,
			Items:         items,
			Balance:       balance,
			AllocatedAt:   s.now().UTC(),
		})
		return nil
	})
	if err != nil {
		logger.Warn("allocation failed", "error_kind", ErrorKind(err), "error", err)
		return nil, err
	}

	if result.Allocated {
		box := newOutbox(s.now)
		box.Broadcast(EventSessionCreated, map[string]any{
			"order_id": orderID,
			"user_id":  userID,
			"count":    result.TotalSessions,
		}, BroadcastOptions{Priority: PriorityNormal, Roles: []models.Role{models.RoleAdmin}})
		s.dispatcher.Drain(ctx, box)
	}

	logger.Info("order allocated", "total_sessions", result.TotalSessions)
	return result, nil
}

// recordFinancialTransaction is best effort. A failure is logged and never
// aborts the allocation.
func (s *AllocationService) recordFinancialTransaction(
	ctx context.Context,
	logger *slog.Logger,
	transactions repository.FinancialTransactionStore,
	order *models.Order,
	snapshot allocationSnapshot,
) {
	metadata, err := json.Marshal(snapshot)
	if err != nil {
		logger.Warn("encode allocation snapshot", "error", err)
		return
	}

	_, err = transactions.Create(ctx, repository.CreateFinancialTransactionInput{
		Reference: uuid.NewString(),
		UserID:    order.UserID,
		OrderID:   order.ID,
		Amount:    order.TotalAmount,
		Type:      financialTypeAllocation,
		Metadata:  metadata,
	})
	if err != nil {
		logger.Warn("financial transaction not recorded", "error_kind", "dependency_failure", "error", err)
	}
}

func positive(value *int) bool {
	return value != nil && *value > 0
}
