// Package testfixtures provides in-memory collaborators for service and
// handler tests.
package testfixtures

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/saeid-a/SessionLedgerBack/internal/models"
	"github.com/saeid-a/SessionLedgerBack/internal/repository"
)

// Fault points accepted by MemoryStore.FailOn.
const (
	FaultSessionCreate     = "sessions.Create"
	FaultSessionUpdate     = "sessions.Update"
	FaultSessionList       = "sessions.List"
	FaultSessionOverlap    = "sessions.FindOverlapping"
	FaultUserAdjustBalance = "users.AdjustAvailableSessions"
	FaultUserFirstNames    = "users.FirstNames"
	FaultFinancialCreate   = "financial_transactions.Create"
	FaultCommit            = "tx.Commit"
)

// ErrNegativeBalance mirrors the database check on available_sessions.
var ErrNegativeBalance = errors.New("available_sessions would become negative")

type memoryState struct {
	nextSessionID   int64
	nextUserID      int64
	nextOrderID     int64
	nextFinancialID int64
	sessions        map[int64]models.Session
	users           map[int64]models.User
	orders          map[int64]models.Order
	financial       []models.FinancialTransaction
}

func (s *memoryState) clone() *memoryState {
	out := &memoryState{
		nextSessionID:   s.nextSessionID,
		nextUserID:      s.nextUserID,
		nextOrderID:     s.nextOrderID,
		nextFinancialID: s.nextFinancialID,
		sessions:        make(map[int64]models.Session, len(s.sessions)),
		users:           make(map[int64]models.User, len(s.users)),
		orders:          make(map[int64]models.Order, len(s.orders)),
		financial:       append([]models.FinancialTransaction(nil), s.financial...),
	}
	for id, session := range s.sessions {
		out.sessions[id] = session
	}
	for id, user := range s.users {
		out.users[id] = user
	}
	for id, order := range s.orders {
		out.orders[id] = order
	}
	return out
}

// MemoryStore implements repository.Store. Transactions hold one lock for
// their whole duration and work on a copy of the state that replaces the
// committed state only when fn succeeds, so they are serialisable and atomic.
type MemoryStore struct {
	mu    sync.Mutex
	state *memoryState

	faultMu sync.Mutex
	faults  map[string]error

	commits   int
	rollbacks int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		state: &memoryState{
			sessions: make(map[int64]models.Session),
			users:    make(map[int64]models.User),
			orders:   make(map[int64]models.Order),
		},
		faults: make(map[string]error),
	}
}

// FailOn makes every later call to the named fault point return err. A nil
// err clears the fault.
func (m *MemoryStore) FailOn(point string, err error) {
	m.faultMu.Lock()
	defer m.faultMu.Unlock()
	if err == nil {
		delete(m.faults, point)
		return
	}
	m.faults[point] = err
}

func (m *MemoryStore) fault(point string) error {
	m.faultMu.Lock()
	defer m.faultMu.Unlock()
	return m.faults[point]
}

func (m *MemoryStore) Repos() repository.Repositories {
	return m.repositories(&memoryTx{store: m})
}

func (m *MemoryStore) WithinTx(
	ctx context.Context,
	fn func(ctx context.Context, repos repository.Repositories) error,
) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	working := m.state.clone()
	if err := fn(ctx, m.repositories(&memoryTx{store: m, state: working})); err != nil {
		m.rollbacks++
		return err
	}
	if err := m.fault(FaultCommit); err != nil {
		m.rollbacks++
		return fmt.Errorf("commit transaction: %w", err)
	}

	m.state = working
	m.commits++
	return nil
}

// TxStats reports how many transactions committed and rolled back.
func (m *MemoryStore) TxStats() (commits, rollbacks int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commits, m.rollbacks
}

func (m *MemoryStore) repositories(tx *memoryTx) repository.Repositories {
	return repository.Repositories{
		Sessions:              &memorySessions{tx: tx},
		Users:                 &memoryUsers{tx: tx},
		Orders:                &memoryOrders{tx: tx},
		FinancialTransactions: &memoryFinancial{tx: tx},
	}
}

// memoryTx runs repository calls either on a transaction's working copy or,
// when state is nil, on the committed state under the store lock.
type memoryTx struct {
	store *MemoryStore
	state *memoryState
}

func (t *memoryTx) with(point string, fn func(st *memoryState) error) error {
	if point != "" {
		if err := t.store.fault(point); err != nil {
			return err
		}
	}
	if t.state != nil {
		return fn(t.state)
	}
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	return fn(t.store.state)
}

// Seeding and inspection helpers. They bypass fault injection.

func (m *MemoryStore) AddUser(user models.User) models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	if user.ID == 0 {
		m.state.nextUserID++
		user.ID = m.state.nextUserID
	} else if user.ID > m.state.nextUserID {
		m.state.nextUserID = user.ID
	}
	if user.Role == "" {
		user.Role = models.RoleClient
	}
	now := time.Now().UTC()
	user.CreatedAt, user.UpdatedAt = now, now
	m.state.users[user.ID] = user
	return user
}

func (m *MemoryStore) AddSession(session models.Session) models.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.nextSessionID++
	session.ID = m.state.nextSessionID
	if session.Duration == 0 {
		session.Duration = models.DefaultSessionDuration
	}
	now := time.Now().UTC()
	session.CreatedAt, session.UpdatedAt = now, now
	m.state.sessions[session.ID] = session
	return session
}

func (m *MemoryStore) AddOrder(order models.Order) models.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.nextOrderID++
	order.ID = m.state.nextOrderID
	for i := range order.Items {
		order.Items[i].ID = int64(i + 1)
		order.Items[i].OrderID = order.ID
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}
	m.state.orders[order.ID] = order
	return order
}

func (m *MemoryStore) Session(id int64) (models.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.state.sessions[id]
	return session, ok
}

func (m *MemoryStore) User(id int64) (models.User, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.state.users[id]
	return user, ok
}

func (m *MemoryStore) SessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.state.sessions)
}

func (m *MemoryStore) FinancialTransactions() []models.FinancialTransaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.FinancialTransaction(nil), m.state.financial...)
}

type memorySessions struct {
	tx *memoryTx
}

func (r *memorySessions) Create(
	_ context.Context,
	input repository.CreateSessionInput,
) (*models.Session, error) {
	var created models.Session
	err := r.tx.with(FaultSessionCreate, func(st *memoryState) error {
		st.nextSessionID++
		now := time.Now().UTC()
		created = models.Session{
			ID:              st.nextSessionID,
			SessionDate:     input.SessionDate,
			EndDate:         input.EndDate,
			Duration:        input.Duration,
			Status:          input.Status,
			ClientID:        input.ClientID,
			TrainerID:       input.TrainerID,
			Location:        input.Location,
			SessionType:     input.SessionType,
			Notes:           input.Notes,
			SessionDeducted: input.SessionDeducted,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if created.Duration == 0 {
			created.Duration = models.DefaultSessionDuration
		}
		if created.Status == "" {
			created.Status = models.StatusAvailable
		}
		st.sessions[created.ID] = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

func (r *memorySessions) GetByID(_ context.Context, sessionID int64) (*models.Session, error) {
	var found models.Session
	err := r.tx.with("", func(st *memoryState) error {
		session, ok := st.sessions[sessionID]
		if !ok {
			return repository.ErrNotFound
		}
		found = session
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &found, nil
}

func (r *memorySessions) GetByIDForUpdate(ctx context.Context, sessionID int64) (*models.Session, error) {
	return r.GetByID(ctx, sessionID)
}

func (r *memorySessions) List(
	_ context.Context,
	filter repository.SessionFilter,
) ([]models.Session, error) {
	var out []models.Session
	err := r.tx.with(FaultSessionList, func(st *memoryState) error {
		out = filterSessions(st, filter)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return []models.Session{}, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *memorySessions) Update(_ context.Context, session *models.Session) (*models.Session, error) {
	var updated models.Session
	err := r.tx.with(FaultSessionUpdate, func(st *memoryState) error {
		if _, ok := st.sessions[session.ID]; !ok {
			return repository.ErrNotFound
		}
		updated = *session
		updated.UpdatedAt = time.Now().UTC()
		st.sessions[session.ID] = updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (r *memorySessions) FindOverlapping(
	_ context.Context,
	query repository.OverlapQuery,
) ([]models.Session, error) {
	out := make([]models.Session, 0)
	err := r.tx.with(FaultSessionOverlap, func(st *memoryState) error {
		for _, session := range sortedSessions(st) {
			if session.ID == query.ExcludeID || session.SessionDate == nil {
				continue
			}
			switch {
			case query.TrainerID != nil:
				if !session.HasTrainer(*query.TrainerID) {
					continue
				}
			case query.ClientID != nil:
				if !session.HasClient(*query.ClientID) {
					continue
				}
			default:
				continue
			}
			if !statusIn(session.Status, query.Statuses) {
				continue
			}
			if session.SessionDate.Before(query.End) && session.EndTime().After(query.Start) {
				out = append(out, session)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *memorySessions) CountByStatus(
	_ context.Context,
	filter repository.SessionFilter,
) (map[models.SessionStatus]int, error) {
	counts := make(map[models.SessionStatus]int)
	err := r.tx.with("", func(st *memoryState) error {
		for _, session := range filterSessions(st, filter) {
			counts[session.Status]++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}

func filterSessions(st *memoryState, filter repository.SessionFilter) []models.Session {
	out := make([]models.Session, 0)
	for _, session := range sortedSessions(st) {
		if len(filter.Statuses) > 0 && !statusIn(session.Status, filter.Statuses) {
			continue
		}
		if filter.TrainerID != nil && !session.HasTrainer(*filter.TrainerID) {
			continue
		}
		if filter.ClientID != nil && !session.HasClient(*filter.ClientID) {
			continue
		}
		if filter.ClientOrAvailable != nil {
			own := session.HasClient(*filter.ClientOrAvailable)
			open := session.Status == models.StatusAvailable && session.ClientID == nil
			if !own && !open {
				continue
			}
		}
		if filter.StartsAfter != nil &&
			(session.SessionDate == nil || session.SessionDate.Before(*filter.StartsAfter)) {
			continue
		}
		if filter.StartsBefore != nil &&
			(session.SessionDate == nil || !session.SessionDate.Before(*filter.StartsBefore)) {
			continue
		}
		out = append(out, session)
	}
	return out
}

// sortedSessions orders like the SQL list: dated sessions first by date,
// then undated ones, ties broken by id.
func sortedSessions(st *memoryState) []models.Session {
	out := make([]models.Session, 0, len(st.sessions))
	for _, session := range st.sessions {
		out = append(out, session)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		switch {
		case a.SessionDate == nil && b.SessionDate == nil:
			return a.ID < b.ID
		case a.SessionDate == nil:
			return false
		case b.SessionDate == nil:
			return true
		case !a.SessionDate.Equal(*b.SessionDate):
			return a.SessionDate.Before(*b.SessionDate)
		default:
			return a.ID < b.ID
		}
	})
	return out
}

func statusIn(status models.SessionStatus, statuses []models.SessionStatus) bool {
	for _, candidate := range statuses {
		if candidate == status {
			return true
		}
	}
	return false
}

type memoryUsers struct {
	tx *memoryTx
}

func (r *memoryUsers) Create(_ context.Context, user *models.User) error {
	return r.tx.with("", func(st *memoryState) error {
		for _, existing := range st.users {
			if existing.Email == user.Email {
				return fmt.Errorf("duplicate email %q", user.Email)
			}
		}
		st.nextUserID++
		now := time.Now().UTC()
		user.ID = st.nextUserID
		user.CreatedAt, user.UpdatedAt = now, now
		st.users[user.ID] = *user
		return nil
	})
}

func (r *memoryUsers) GetByID(_ context.Context, userID int64) (*models.User, error) {
	var found models.User
	err := r.tx.with("", func(st *memoryState) error {
		user, ok := st.users[userID]
		if !ok {
			return repository.ErrNotFound
		}
		found = user
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &found, nil
}

func (r *memoryUsers) GetByIDForUpdate(ctx context.Context, userID int64) (*models.User, error) {
	return r.GetByID(ctx, userID)
}

func (r *memoryUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	var found models.User
	err := r.tx.with("", func(st *memoryState) error {
		for _, user := range st.users {
			if user.Email == email {
				found = user
				return nil
			}
		}
		return repository.ErrNotFound
	})
	if err != nil {
		return nil, err
	}
	return &found, nil
}

func (r *memoryUsers) AdjustAvailableSessions(_ context.Context, userID int64, delta int) (int, error) {
	var balance int
	err := r.tx.with(FaultUserAdjustBalance, func(st *memoryState) error {
		user, ok := st.users[userID]
		if !ok {
			return repository.ErrNotFound
		}
		if user.AvailableSessions+delta < 0 {
			return ErrNegativeBalance
		}
		user.AvailableSessions += delta
		user.UpdatedAt = time.Now().UTC()
		st.users[userID] = user
		balance = user.AvailableSessions
		return nil
	})
	return balance, err
}

func (r *memoryUsers) FirstNames(_ context.Context, userIDs []int64) (map[int64]string, error) {
	names := make(map[int64]string, len(userIDs))
	err := r.tx.with(FaultUserFirstNames, func(st *memoryState) error {
		for _, id := range userIDs {
			if user, ok := st.users[id]; ok {
				names[id] = user.FirstName
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return names, nil
}

func (r *memoryUsers) CountByRole(_ context.Context, role models.Role) (int, error) {
	count := 0
	err := r.tx.with("", func(st *memoryState) error {
		for _, user := range st.users {
			if models.ParseRole(string(user.Role)) == role {
				count++
			}
		}
		return nil
	})
	return count, err
}

type memoryOrders struct {
	tx *memoryTx
}

func (r *memoryOrders) GetCompletedForUser(
	_ context.Context,
	orderID int64,
	userID int64,
) (*models.Order, error) {
	var found models.Order
	err := r.tx.with("", func(st *memoryState) error {
		order, ok := st.orders[orderID]
		if !ok || order.UserID != userID || order.Status != models.OrderStatusCompleted {
			return repository.ErrNotFound
		}
		found = order
		found.Items = append([]models.OrderItem(nil), order.Items...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &found, nil
}

type memoryFinancial struct {
	tx *memoryTx
}

func (r *memoryFinancial) Create(
	_ context.Context,
	input repository.CreateFinancialTransactionInput,
) (*models.FinancialTransaction, error) {
	var record models.FinancialTransaction
	err := r.tx.with(FaultFinancialCreate, func(st *memoryState) error {
		st.nextFinancialID++
		record = models.FinancialTransaction{
			ID:        st.nextFinancialID,
			Reference: input.Reference,
			UserID:    input.UserID,
			OrderID:   input.OrderID,
			Amount:    input.Amount,
			Type:      input.Type,
			Metadata:  append([]byte(nil), input.Metadata...),
			CreatedAt: time.Now().UTC(),
		}
		st.financial = append(st.financial, record)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}
