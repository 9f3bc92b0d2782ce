package routes

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/saeid-a/SessionLedgerBack/internal/config"
	"github.com/saeid-a/SessionLedgerBack/internal/models"
	"github.com/saeid-a/SessionLedgerBack/internal/services"
	"github.com/saeid-a/SessionLedgerBack/internal/testfixtures"
	sessionws "github.com/saeid-a/SessionLedgerBack/internal/websocket"
	"github.com/saeid-a/SessionLedgerBack/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const routesSecret = "routes-secret"

type routesFixture struct {
	app         *fiber.App
	store       *testfixtures.MemoryStore
	broadcaster *testfixtures.RecordingBroadcaster
	admin       models.User
	trainer     models.User
	client      models.User
}

func newRoutesFixture(t *testing.T) *routesFixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := testfixtures.NewMemoryStore()
	broadcaster := &testfixtures.RecordingBroadcaster{}
	clock := testfixtures.NewClock(time.Date(2029, 12, 1, 8, 0, 0, 0, time.UTC))

	dispatcher := services.NewDispatcher(
		&testfixtures.RecordingNotifier{},
		broadcaster,
		services.NewConflictDetector(store),
		logger,
	)

	app := fiber.New()
	RegisterRoutes(app, &config.Config{JWTSecret: routesSecret}, Dependencies{
		Store: store,
		Sessions: services.NewSessionService(store, dispatcher, services.SessionServiceConfig{
			Location:           time.UTC,
			RecurringSlotLimit: 50,
			Now:                clock.Now,
			Logger:             logger,
		}),
		Allocations: services.NewAllocationService(store, dispatcher, clock.Now, logger),
		Hub:         sessionws.NewHub(logger),
		Logger:      logger,
	})

	return &routesFixture{
		app:         app,
		store:       store,
		broadcaster: broadcaster,
		admin:       store.AddUser(models.User{Email: "ada@example.com", FirstName: "Ada", Role: models.RoleAdmin}),
		trainer:     store.AddUser(models.User{Email: "tina@example.com", FirstName: "Tina", Role: models.RoleTrainer}),
		client:      store.AddUser(models.User{Email: "carl@example.com", FirstName: "Carl", Role: models.RoleClient, AvailableSessions: 1}),
	}
}

func (f *routesFixture) call(t *testing.T, user *models.User, method, target, body string) (int, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != nil {
		token, err := utils.GenerateToken(strconv.FormatInt(user.ID, 10), string(user.Role), routesSecret)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := f.app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	payload := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&payload)
	return resp.StatusCode, payload
}

func TestSessionRoutesRequireToken(t *testing.T) {
	f := newRoutesFixture(t)

	status, _ := f.call(t, nil, http.MethodGet, "/api/v1/sessions", "")
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestWebSocketRouteRequiresUpgrade(t *testing.T) {
	f := newRoutesFixture(t)

	status, _ := f.call(t, nil, http.MethodGet, "/api/v1/ws", "")
	assert.Equal(t, http.StatusUpgradeRequired, status)
}

func TestAllocateRouteIsAdminOnly(t *testing.T) {
	f := newRoutesFixture(t)

	status, _ := f.call(t, &f.trainer, http.MethodPost, "/api/v1/orders/1/allocate", `{"user_id": 3}`)
	assert.Equal(t, http.StatusForbidden, status)
}

func TestBookingFlowOverHTTP(t *testing.T) {
	f := newRoutesFixture(t)

	body := `{"slots": [{"session_date": "2030-01-01T10:00:00Z", "trainer_id": ` +
		strconv.FormatInt(f.trainer.ID, 10) + `}]}`
	status, payload := f.call(t, &f.admin, http.MethodPost, "/api/v1/sessions/available", body)
	require.Equal(t, http.StatusCreated, status, payload)

	created, ok := payload["sessions"].([]any)
	require.True(t, ok)
	require.Len(t, created, 1)
	sessionID := int64(created[0].(map[string]any)["id"].(float64))
	target := "/api/v1/sessions/" + strconv.FormatInt(sessionID, 10)

	status, _ = f.call(t, &f.trainer, http.MethodPost, target+"/book", "")
	assert.Equal(t, http.StatusForbidden, status)

	status, payload = f.call(t, &f.client, http.MethodPost, target+"/book", "")
	require.Equal(t, http.StatusOK, status, payload)
	booked := payload["session"].(map[string]any)
	assert.Equal(t, "scheduled", booked["status"])
	assert.Equal(t, true, booked["session_deducted"])

	status, _ = f.call(t, &f.client, http.MethodPost, target+"/book", "")
	assert.Equal(t, http.StatusConflict, status)

	user, _ := f.store.User(f.client.ID)
	assert.Equal(t, 0, user.AvailableSessions)

	status, payload = f.call(t, &f.trainer, http.MethodPost, target+"/confirm", "")
	require.Equal(t, http.StatusOK, status, payload)

	status, payload = f.call(t, &f.client, http.MethodPost, target+"/cancel", `{"reason": "travel"}`)
	require.Equal(t, http.StatusOK, status, payload)
	assert.Equal(t, "travel", payload["session"].(map[string]any)["cancellation_reason"])

	user, _ = f.store.User(f.client.ID)
	assert.Equal(t, 1, user.AvailableSessions)

	status, _ = f.call(t, &f.trainer, http.MethodPost, target+"/complete", "")
	assert.Equal(t, http.StatusUnprocessableEntity, status)

	assert.NotEmpty(t, f.broadcaster.EventsOf(services.EventSessionCancelled))
}
