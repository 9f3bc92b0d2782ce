package repository

import (
	"context"
	"fmt"

	"github.com/saeid-a/SessionLedgerBack/internal/models"
)

const userColumns = `id, email, password_hash, role, first_name, last_name, available_sessions, created_at, updated_at`

type UserRepository struct {
	db DBTX
}

func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (email, password_hash, role, first_name, last_name, available_sessions)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`
	return r.db.QueryRow(
		ctx,
		query,
		user.Email,
		user.PasswordHash,
		string(user.Role),
		user.FirstName,
		user.LastName,
		user.AvailableSessions,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	user, err := scanUser(r.db.QueryRow(ctx, query, email))
	if err != nil {
		return nil, mapNoRows(err)
	}
	return user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, userID int64) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	user, err := scanUser(r.db.QueryRow(ctx, query, userID))
	if err != nil {
		return nil, mapNoRows(err)
	}
	return user, nil
}

func (r *UserRepository) GetByIDForUpdate(ctx context.Context, userID int64) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 FOR UPDATE`
	user, err := scanUser(r.db.QueryRow(ctx, query, userID))
	if err != nil {
		return nil, mapNoRows(err)
	}
	return user, nil
}

// AdjustAvailableSessions adds delta (negative to debit) to the balance and
// returns the balance after the change.
func (r *UserRepository) AdjustAvailableSessions(
	ctx context.Context,
	userID int64,
	delta int,
) (int, error) {
	query := `
		UPDATE users
		SET available_sessions = available_sessions + $2, updated_at = NOW()
		WHERE id = $1
		RETURNING available_sessions
	`
	var balance int
	if err := r.db.QueryRow(ctx, query, userID, delta).Scan(&balance); err != nil {
		return 0, fmt.Errorf("adjust available sessions: %w", mapNoRows(err))
	}
	return balance, nil
}

func (r *UserRepository) FirstNames(ctx context.Context, userIDs []int64) (map[int64]string, error) {
	names := make(map[int64]string, len(userIDs))
	if len(userIDs) == 0 {
		return names, nil
	}

	rows, err := r.db.Query(ctx, `SELECT id, first_name FROM users WHERE id = ANY($1)`, userIDs)
	if err != nil {
		return nil, fmt.Errorf("load first names: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id   int64
			name string
		)
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		names[id] = name
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return names, nil
}

// CountByRole counts users whose stored role parses to role, so legacy
// "user" rows count as clients.
func (r *UserRepository) CountByRole(ctx context.Context, role models.Role) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM users WHERE role = ANY($1)`
	if err := r.db.QueryRow(ctx, query, storedRoleNames(role)).Scan(&count); err != nil {
		return 0, fmt.Errorf("count users by role: %w", err)
	}
	return count, nil
}

func storedRoleNames(role models.Role) []string {
	if role == models.RoleClient {
		return []string{string(models.RoleClient), "user"}
	}
	return []string{string(role)}
}

func scanUser(row rowScanner) (*models.User, error) {
	var (
		user models.User
		role string
	)
	if err := row.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&role,
		&user.FirstName,
		&user.LastName,
		&user.AvailableSessions,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return nil, err
	}
	user.Role = models.ParseRole(role)
	return &user, nil
}
