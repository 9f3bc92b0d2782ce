package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/saeid-a/SessionLedgerBack/internal/models"
)

const sessionColumns = `
	id, session_date, end_date, duration, status, confirmed, client_id, trainer_id,
	location, session_type, notes, private_notes, booking_date,
	confirmed_by, confirmation_date, completed_by, completion_date,
	cancelled_by, cancellation_reason, cancellation_date, assigned_by, assigned_at,
	session_deducted, created_at, updated_at`

type CreateSessionInput struct {
	SessionDate     *time.Time
	EndDate         *time.Time
	Duration        int
	Status          models.SessionStatus
	ClientID        *int64
	TrainerID       *int64
	Location        *string
	SessionType     *string
	Notes           *string
	SessionDeducted bool
}

// SessionFilter narrows session reads. ClientOrAvailable expresses the client
// visibility rule: rows owned by that client, or unclaimed available slots.
type SessionFilter struct {
	Statuses          []models.SessionStatus
	TrainerID         *int64
	ClientID          *int64
	ClientOrAvailable *int64
	StartsAfter       *time.Time
	StartsBefore      *time.Time
	Limit             int
	Offset            int
}

// OverlapQuery selects committed sessions whose [start, end) window intersects
// the candidate window. Exactly one of TrainerID and ClientID is expected.
type OverlapQuery struct {
	TrainerID *int64
	ClientID  *int64
	Start     time.Time
	End       time.Time
	ExcludeID int64
	Statuses  []models.SessionStatus
}

type SessionRepository struct {
	db DBTX
}

func NewSessionRepository(db DBTX) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(
	ctx context.Context,
	input CreateSessionInput,
) (*models.Session, error) {
	query := `
		INSERT INTO sessions (
			session_date, end_date, duration, status, client_id, trainer_id,
			location, session_type, notes, session_deducted
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING ` + sessionColumns

	session, err := scanSession(r.db.QueryRow(
		ctx,
		query,
		input.SessionDate,
		input.EndDate,
		input.Duration,
		string(input.Status),
		input.ClientID,
		input.TrainerID,
		input.Location,
		input.SessionType,
		input.Notes,
		input.SessionDeducted,
	))
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	return session, nil
}

func (r *SessionRepository) GetByID(ctx context.Context, sessionID int64) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`
	session, err := scanSession(r.db.QueryRow(ctx, query, sessionID))
	if err != nil {
		return nil, mapNoRows(err)
	}
	return session, nil
}

func (r *SessionRepository) GetByIDForUpdate(
	ctx context.Context,
	sessionID int64,
) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1 FOR UPDATE`
	session, err := scanSession(r.db.QueryRow(ctx, query, sessionID))
	if err != nil {
		return nil, mapNoRows(err)
	}
	return session, nil
}

func (r *SessionRepository) List(
	ctx context.Context,
	filter SessionFilter,
) ([]models.Session, error) {
	where, args := buildSessionWhere(filter)

	query := `SELECT ` + sessionColumns + ` FROM sessions` + where +
		` ORDER BY session_date ASC NULLS LAST, id ASC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]models.Session, 0)
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *session)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return sessions, nil
}

// Update persists every mutable column of the session and returns the stored row.
func (r *SessionRepository) Update(
	ctx context.Context,
	session *models.Session,
) (*models.Session, error) {
	query := `
		UPDATE sessions
		SET session_date = $2,
		    end_date = $3,
		    duration = $4,
		    status = $5,
		    confirmed = $6,
		    client_id = $7,
		    trainer_id = $8,
		    location = $9,
		    session_type = $10,
		    notes = $11,
		    private_notes = $12,
		    booking_date = $13,
		    confirmed_by = $14,
		    confirmation_date = $15,
		    completed_by = $16,
		    completion_date = $17,
		    cancelled_by = $18,
		    cancellation_reason = $19,
		    cancellation_date = $20,
		    assigned_by = $21,
		    assigned_at = $22,
		    session_deducted = $23,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING ` + sessionColumns

	updated, err := scanSession(r.db.QueryRow(
		ctx,
		query,
		session.ID,
		session.SessionDate,
		session.EndDate,
		session.Duration,
		string(session.Status),
		session.Confirmed,
		session.ClientID,
		session.TrainerID,
		session.Location,
		session.SessionType,
		session.Notes,
		session.PrivateNotes,
		session.BookingDate,
		session.ConfirmedBy,
		session.ConfirmationDate,
		session.CompletedBy,
		session.CompletionDate,
		session.CancelledBy,
		session.CancellationReason,
		session.CancellationDate,
		session.AssignedBy,
		session.AssignedAt,
		session.SessionDeducted,
	))
	if err != nil {
		return nil, mapNoRows(err)
	}
	return updated, nil
}

func (r *SessionRepository) FindOverlapping(
	ctx context.Context,
	query OverlapQuery,
) ([]models.Session, error) {
	var (
		column string
		owner  int64
	)
	switch {
	case query.TrainerID != nil:
		column, owner = "trainer_id", *query.TrainerID
	case query.ClientID != nil:
		column, owner = "client_id", *query.ClientID
	default:
		return nil, nil
	}

	sql := fmt.Sprintf(`
		SELECT %s
		FROM sessions
		WHERE %s = $1
		  AND id <> $2
		  AND status = ANY($3)
		  AND session_date IS NOT NULL
		  AND session_date < $4
		  AND COALESCE(end_date, session_date + (duration * INTERVAL '1 minute')) > $5
		ORDER BY session_date ASC, id ASC
	`, sessionColumns, column)

	rows, err := r.db.Query(
		ctx,
		sql,
		owner,
		query.ExcludeID,
		statusStrings(query.Statuses),
		query.End.UTC(),
		query.Start.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("find overlapping sessions: %w", err)
	}
	defer rows.Close()

	overlapping := make([]models.Session, 0)
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		overlapping = append(overlapping, *session)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return overlapping, nil
}

func (r *SessionRepository) CountByStatus(
	ctx context.Context,
	filter SessionFilter,
) (map[models.SessionStatus]int, error) {
	where, args := buildSessionWhere(filter)
	query := `SELECT status, COUNT(*) FROM sessions` + where + ` GROUP BY status`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("count sessions: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.SessionStatus]int)
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[models.SessionStatus(status)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return counts, nil
}

func buildSessionWhere(filter SessionFilter) (string, []any) {
	args := make([]any, 0, 6)
	whereParts := make([]string, 0, 6)

	if len(filter.Statuses) > 0 {
		args = append(args, statusStrings(filter.Statuses))
		whereParts = append(whereParts, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	if filter.TrainerID != nil {
		args = append(args, *filter.TrainerID)
		whereParts = append(whereParts, fmt.Sprintf("trainer_id = $%d", len(args)))
	}
	if filter.ClientID != nil {
		args = append(args, *filter.ClientID)
		whereParts = append(whereParts, fmt.Sprintf("client_id = $%d", len(args)))
	}
	if filter.ClientOrAvailable != nil {
		args = append(args, *filter.ClientOrAvailable)
		whereParts = append(whereParts, fmt.Sprintf(
			"(client_id = $%d OR (status = 'available' AND client_id IS NULL))",
			len(args),
		))
	}
	if filter.StartsAfter != nil {
		args = append(args, filter.StartsAfter.UTC())
		whereParts = append(whereParts, fmt.Sprintf("session_date >= $%d", len(args)))
	}
	if filter.StartsBefore != nil {
		args = append(args, filter.StartsBefore.UTC())
		whereParts = append(whereParts, fmt.Sprintf("session_date < $%d", len(args)))
	}

	if len(whereParts) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(whereParts, " AND "), args
}

func statusStrings(statuses []models.SessionStatus) []string {
	out := make([]string, 0, len(statuses))
	for _, status := range statuses {
		out = append(out, string(status))
	}
	return out
}

func scanSession(row rowScanner) (*models.Session, error) {
	var (
		session models.Session
		status  string
	)
	err := row.Scan(
		&session.ID,
		&session.SessionDate,
		&session.EndDate,
		&session.Duration,
		&status,
		&session.Confirmed,
		&session.ClientID,
		&session.TrainerID,
		&session.Location,
		&session.SessionType,
		&session.Notes,
		&session.PrivateNotes,
		&session.BookingDate,
		&session.ConfirmedBy,
		&session.ConfirmationDate,
		&session.CompletedBy,
		&session.CompletionDate,
		&session.CancelledBy,
		&session.CancellationReason,
		&session.CancellationDate,
		&session.AssignedBy,
		&session.AssignedAt,
		&session.SessionDeducted,
		&session.CreatedAt,
		&session.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	session.Status = models.SessionStatus(status)
	return &session, nil
}
