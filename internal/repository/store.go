package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/saeid-a/SessionLedgerBack/internal/models"
)

// ErrNotFound is returned by every repository when the addressed row does not exist.
var ErrNotFound = errors.New("repository: not found")

type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type SessionStore interface {
	Create(ctx context.Context, input CreateSessionInput) (*models.Session, error)
	GetByID(ctx context.Context, sessionID int64) (*models.Session, error)
	GetByIDForUpdate(ctx context.Context, sessionID int64) (*models.Session, error)
	List(ctx context.Context, filter SessionFilter) ([]models.Session, error)
	Update(ctx context.Context, session *models.Session) (*models.Session, error)
	FindOverlapping(ctx context.Context, query OverlapQuery) ([]models.Session, error)
	CountByStatus(ctx context.Context, filter SessionFilter) (map[models.SessionStatus]int, error)
}

type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, userID int64) (*models.User, error)
	GetByIDForUpdate(ctx context.Context, userID int64) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	AdjustAvailableSessions(ctx context.Context, userID int64, delta int) (int, error)
	FirstNames(ctx context.Context, userIDs []int64) (map[int64]string, error)
	CountByRole(ctx context.Context, role models.Role) (int, error)
}

type OrderStore interface {
	GetCompletedForUser(ctx context.Context, orderID int64, userID int64) (*models.Order, error)
}

type FinancialTransactionStore interface {
	Create(ctx context.Context, input CreateFinancialTransactionInput) (*models.FinancialTransaction, error)
}

// Repositories bundles the stores that share one connection or transaction.
type Repositories struct {
	Sessions              SessionStore
	Users                 UserStore
	Orders                OrderStore
	FinancialTransactions FinancialTransactionStore
}

// Store is the unit of work the services depend on. Repos serves reads that
// need no isolation; WithinTx runs fn against transaction-scoped repositories
// and commits only when fn returns nil.
type Store interface {
	Repos() Repositories
	WithinTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}

type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

func (s *PgStore) Repos() Repositories {
	return NewRepositories(s.pool)
}

func (s *PgStore) WithinTx(
	ctx context.Context,
	fn func(ctx context.Context, repos Repositories) error,
) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(ctx, NewRepositories(tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func NewRepositories(db DBTX) Repositories {
	return Repositories{
		Sessions:              NewSessionRepository(db),
		Users:                 NewUserRepository(db),
		Orders:                NewOrderRepository(db),
		FinancialTransactions: NewFinancialTransactionRepository(db),
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func mapNoRows(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
