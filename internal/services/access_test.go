package services

import (
	"testing"
	"time"

	"github.com/saeid-a/SessionLedgerBack/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func int64Ptr(v int64) *int64 { return &v }

func TestScopeQuery(t *testing.T) {
	from := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	raw := SessionQuery{
		Statuses:  []models.SessionStatus{models.StatusScheduled},
		TrainerID: int64Ptr(9),
		ClientID:  int64Ptr(8),
		From:      &from,
	}

	t.Run("admin passes through", func(t *testing.T) {
		filter := ScopeQuery(Subject{ID: 1, Role: models.RoleAdmin}, raw)
		assert.Equal(t, int64(9), *filter.TrainerID)
		assert.Equal(t, int64(8), *filter.ClientID)
		assert.Nil(t, filter.ClientOrAvailable)
		assert.Equal(t, &from, filter.StartsAfter)
	})

	t.Run("trainer is pinned to own sessions", func(t *testing.T) {
		filter := ScopeQuery(Subject{ID: 2, Role: models.RoleTrainer}, raw)
		require.NotNil(t, filter.TrainerID)
		assert.Equal(t, int64(2), *filter.TrainerID)
		assert.Equal(t, []models.SessionStatus{models.StatusScheduled}, filter.Statuses)
	})

	t.Run("client gets own or available", func(t *testing.T) {
		filter := ScopeQuery(Subject{ID: 3, Role: models.RoleClient}, raw)
		assert.Nil(t, filter.ClientID)
		require.NotNil(t, filter.ClientOrAvailable)
		assert.Equal(t, int64(3), *filter.ClientOrAvailable)
	})

	t.Run("unknown roles scope as client", func(t *testing.T) {
		filter := ScopeQuery(Subject{ID: 4, Role: models.Role("superuser")}, raw)
		require.NotNil(t, filter.ClientOrAvailable)
		assert.Equal(t, int64(4), *filter.ClientOrAvailable)
		assert.Nil(t, filter.ClientID)
	})
}

func TestCanViewAndRedact(t *testing.T) {
	notes := "shoulder"
	owned := &models.Session{
		Status:       models.StatusConfirmed,
		ClientID:     int64Ptr(3),
		TrainerID:    int64Ptr(2),
		PrivateNotes: &notes,
	}
	open := &models.Session{Status: models.StatusAvailable}
	placeholder := &models.Session{Status: models.StatusAvailable, ClientID: int64Ptr(5)}

	admin := Subject{ID: 1, Role: models.RoleAdmin}
	trainer := Subject{ID: 2, Role: models.RoleTrainer}
	client := Subject{ID: 3, Role: models.RoleClient}
	stranger := Subject{ID: 4, Role: models.RoleClient}

	assert.True(t, CanView(admin, owned))
	assert.True(t, CanView(trainer, owned))
	assert.True(t, CanView(client, owned))
	assert.False(t, CanView(stranger, owned))
	assert.True(t, CanView(stranger, open))
	assert.False(t, CanView(stranger, placeholder))
	assert.False(t, CanView(trainer, open))
	assert.False(t, CanView(admin, nil))

	assert.NotNil(t, redactFor(admin, *owned).PrivateNotes)
	assert.NotNil(t, redactFor(trainer, *owned).PrivateNotes)
	assert.Nil(t, redactFor(client, *owned).PrivateNotes)
	assert.NotNil(t, owned.PrivateNotes, "redaction must not touch the original")
}

func TestAuthorize(t *testing.T) {
	session := &models.Session{ClientID: int64Ptr(3), TrainerID: int64Ptr(2)}

	admin := Subject{ID: 1, Role: models.RoleAdmin}
	trainer := Subject{ID: 2, Role: models.RoleTrainer}
	otherTrainer := Subject{ID: 5, Role: models.RoleTrainer}
	client := Subject{ID: 3, Role: models.RoleClient}
	otherClient := Subject{ID: 4, Role: models.RoleClient}

	cases := []struct {
		op      Operation
		subject Subject
		allowed bool
	}{
		{OpCreateAvailable, admin, true},
		{OpCreateAvailable, trainer, false},
		{OpCreateRecurring, client, false},
		{OpBook, client, true},
		{OpBook, admin, false},
		{OpConfirm, admin, true},
		{OpConfirm, trainer, true},
		{OpConfirm, otherTrainer, false},
		{OpConfirm, client, false},
		{OpComplete, trainer, true},
		{OpComplete, otherTrainer, false},
		{OpCancel, admin, true},
		{OpCancel, trainer, true},
		{OpCancel, client, true},
		{OpCancel, otherClient, false},
		{OpCancel, otherTrainer, false},
		{OpAssignTrainer, admin, true},
		{OpAssignTrainer, trainer, false},
	}

	for _, tc := range cases {
		err := authorize(tc.op, tc.subject, session)
		if tc.allowed {
			assert.NoErrorf(t, err, "%s by %s %d", tc.op, tc.subject.Role, tc.subject.ID)
			continue
		}
		assert.ErrorIsf(t, err, ErrForbidden, "%s by %s %d", tc.op, tc.subject.Role, tc.subject.ID)
	}
}

func TestSessionTitle(t *testing.T) {
	assert.Equal(t, "Confirmed with Tina for Carl @ Gym", sessionTitle(models.StatusConfirmed, "Tina", "Carl", "Gym"))
	assert.Equal(t, "Scheduled for Carl", sessionTitle(models.StatusScheduled, "", "Carl", ""))
	assert.Equal(t, "Available @ Gym", sessionTitle(models.StatusAvailable, " ", "", "Gym"))
	assert.Equal(t, "Session", sessionTitle("", "", "", ""))
}
