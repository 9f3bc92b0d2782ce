package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/saeid-a/SessionLedgerBack/internal/repository"
)

// creditLedger adjusts a user's session credit balance. It never commits on
// its own: callers pass the transaction scoped UserStore.
type creditLedger struct{}

// Debit removes n credits. The balance row is locked and re-read first, and
// a debit that would take it below zero fails with ErrInsufficientCredits.
func (creditLedger) Debit(ctx context.Context, users repository.UserStore, userID int64, n int) (int, error) {
	if n <= 0 {
		return 0, fmt.Errorf("%w: debit amount must be positive", ErrInvalidInput)
	}

	user, err := users.GetByIDForUpdate(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, ErrUserNotFound
		}
		return 0, fmt.Errorf("load credit balance: %w", err)
	}
	if user.AvailableSessions < n {
		return user.AvailableSessions, fmt.Errorf(
			"%w: balance %d, need %d",
			ErrInsufficientCredits,
			user.AvailableSessions,
			n,
		)
	}

	balance, err := users.AdjustAvailableSessions(ctx, userID, -n)
	if err != nil {
		return 0, fmt.Errorf("debit credits: %w", err)
	}
	return balance, nil
}

func (creditLedger) Credit(ctx context.Context, users repository.UserStore, userID int64, n int) (int, error) {
	if n <= 0 {
		return 0, fmt.Errorf("%w: credit amount must be positive", ErrInvalidInput)
	}

	balance, err := users.AdjustAvailableSessions(ctx, userID, n)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, ErrUserNotFound
		}
		return 0, fmt.Errorf("credit credits: %w", err)
	}
	return balance, nil
}
