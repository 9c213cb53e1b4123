package api

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthshare/internal/config"
	"healthshare/internal/db"
	"healthshare/internal/lifecycle"
	"healthshare/internal/middleware"
	"healthshare/internal/models"
	"healthshare/internal/notify"
)

func testConfig() *config.Config {
	return &config.Config{
		BaseURL:             "https://share.example.org",
		OwnerIDHeader:       "X-Owner-ID",
		LockTimeout:         50 * time.Millisecond,
		BundleDefaultTTL:    7 * 24 * time.Hour,
		BundleMaxTTL:        30 * 24 * time.Hour,
		BundleDefaultAccess: 5,
	}
}

func newShareApp(t *testing.T) (*fiber.App, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	cfg := testConfig()
	database := &db.DB{Pool: mock}
	engine := lifecycle.New(database, notify.NewBroker(), cfg.LockTimeout)
	handler := NewShareHandler(database, engine, cfg)
	owner := middleware.NewOwnerMiddleware(cfg.OwnerIDHeader)

	app := fiber.New()
	app.Post("/api/shares", owner.RequireOwner, handler.Create)
	app.Post("/api/subjects/:subjectId/ready", NewSubjectHandler(engine).Ready)
	return app, mock
}

func TestApplyBundlePolicy(t *testing.T) {
	h := &ShareHandler{cfg: testConfig()}

	t.Run("defaults applied when caller omits both", func(t *testing.T) {
		expiresAt, autoRevoke := h.applyBundlePolicy(nil, nil)
		require.NotNil(t, expiresAt)
		assert.WithinDuration(t, time.Now().Add(7*24*time.Hour), *expiresAt, time.Minute)
		require.NotNil(t, autoRevoke)
		assert.Equal(t, 5, *autoRevoke)
	})

	t.Run("expiry beyond cap is clamped", func(t *testing.T) {
		far := time.Now().Add(90 * 24 * time.Hour)
		expiresAt, _ := h.applyBundlePolicy(&far, nil)
		require.NotNil(t, expiresAt)
		assert.WithinDuration(t, time.Now().Add(30*24*time.Hour), *expiresAt, time.Minute)
	})

	t.Run("explicit values inside the cap pass through", func(t *testing.T) {
		in := time.Now().Add(24 * time.Hour)
		limit := 2
		expiresAt, autoRevoke := h.applyBundlePolicy(&in, &limit)
		assert.Equal(t, in, *expiresAt)
		assert.Equal(t, 2, *autoRevoke)
	})
}

func TestCreateShareEndpoint(t *testing.T) {
	app, mock := newShareApp(t)
	ownerID := uuid.New()
	shareID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO shares`).
		WithArgs(ownerID, "proof-77", models.KindProof, pgxmock.AnyArg(),
			models.StatusPending, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id", "access_count", "created_at", "updated_at"}).
			AddRow(shareID, int64(0), time.Now(), time.Now()))
	mock.ExpectExec(`INSERT INTO share_recipients`).
		WithArgs(shareID, 0, models.RecipientEmail, "dr.smith@example.org").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	payload := `{"subject_id":"proof-77","kind":"proof","recipients":[{"kind":"email","target":"dr.smith@example.org"}]}`
	req := httptest.NewRequest("POST", "/api/shares", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Owner-ID", ownerID.String())

	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var envelope struct {
		Status string `json:"status"`
		Data   struct {
			Share models.ShareRecord `json:"share"`
			Link  string             `json:"link"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(body, &envelope))
	assert.Equal(t, "ok", envelope.Status)
	assert.Equal(t, shareID, envelope.Data.Share.ID)
	assert.Equal(t, models.StatusPending, envelope.Data.Share.Status)
	assert.True(t, strings.HasPrefix(envelope.Data.Link, "https://share.example.org/s/"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateShareRequiresSubjectID(t *testing.T) {
	app, _ := newShareApp(t)

	req := httptest.NewRequest("POST", "/api/shares", strings.NewReader(`{"kind":"proof"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Owner-ID", uuid.New().String())

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestCreateShareUnknownKind(t *testing.T) {
	app, _ := newShareApp(t)

	payload := `{"subject_id":"x","kind":"certificate"}`
	req := httptest.NewRequest("POST", "/api/shares", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Owner-ID", uuid.New().String())

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestCreateShareRequiresOwnerHeader(t *testing.T) {
	app, _ := newShareApp(t)

	req := httptest.NewRequest("POST", "/api/shares", strings.NewReader(`{"subject_id":"x","kind":"proof"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestSubjectReadyEndpoint(t *testing.T) {
	app, mock := newShareApp(t)

	mock.ExpectQuery(`UPDATE shares`).
		WithArgs(models.StatusActive, pgxmock.AnyArg(), "proof-77", models.StatusPending).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(uuid.New()))

	req := httptest.NewRequest("POST", "/api/subjects/proof-77/ready", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.NoError(t, mock.ExpectationsWereMet())
}
