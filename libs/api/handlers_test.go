package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/solsub/scheduler/libs/admin"
	"github.com/solsub/scheduler/libs/chainrpc"
	"github.com/solsub/scheduler/libs/dispatcher"
	"github.com/solsub/scheduler/libs/health"
	"github.com/solsub/scheduler/libs/scheduler"
	"github.com/solsub/scheduler/libs/store"
	"github.com/solsub/scheduler/libs/validator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func emptyRowsExpectation(mock sqlmock.Sqlmock) {
	mock.ExpectQuery("SELECT sub_id, settlement_contract").
		WillReturnRows(sqlmock.NewRows([]string{
			"sub_id", "settlement_contract", "token_mint", "payer", "merchant",
			"amount_hint", "interval_seconds", "reminder_days_before", "status", "next_execution_at",
			"last_triggered_at", "trigger_count", "failed_payment_count", "last_failure_at", "last_error",
			"created_at", "updated_at", "owner_principal",
		}))
}

func newTestStore(t *testing.T) (*store.Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	emptyRowsExpectation(mock)
	st, err := store.New(context.Background(), db, zap.NewNop())
	require.NoError(t, err)
	return st, mock
}

type fakeLicense struct {
	status validator.LicenseStatus
}

func (f *fakeLicense) ValidateLicense(_ context.Context, _ string) (validator.LicenseStatus, error) {
	return f.status, nil
}

func (f *fakeLicense) ConsumeLicenseUsage(_ context.Context, _ string) error {
	return nil
}

type fakeSigner struct{}

func (fakeSigner) Sign(_ context.Context, _ []byte) ([64]byte, error) { return [64]byte{}, nil }

type fakeSubmitter struct{}

func (fakeSubmitter) SendTransaction(_ context.Context, _ string) (string, error) { return "", nil }
func (fakeSubmitter) BreakerState() chainrpc.CircuitState                        { return chainrpc.CircuitClosed }

type fakeDispatch struct{}

func (fakeDispatch) Dispatch(_ context.Context, _ string, _ dispatcher.Opcode) dispatcher.Outcome {
	return dispatcher.Outcome{}
}

func newTestHandlers(t *testing.T) (*Handlers, *store.Store, sqlmock.Sqlmock) {
	t.Helper()
	st, mock := newTestStore(t)

	sched := scheduler.New(st, fakeDispatch{}, nil, scheduler.DefaultConfig(), zap.NewNop())
	h := health.New()
	adminSvc := admin.New(st, sched, fakeSigner{}, fakeSubmitter{}, h, admin.Config{}, zap.NewNop())

	license := &fakeLicense{status: validator.LicenseStatus{IsValid: true, RateLimitRemaining: 100}}
	val := validator.New(st, license, zap.NewNop())

	handlers := NewHandlers(context.Background(), zap.NewNop(), st, val, sched, adminSvc, nil, nil)
	return handlers, st, mock
}

func validAddr(seed byte) string {
	return strings.Repeat(string(rune('A'+seed%26)), 32)
}

func TestPing(t *testing.T) {
	handlers, _, _ := newTestHandlers(t)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil)

	handlers.Ping(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "pong")
}

func TestCreateSubscription_HappyPath(t *testing.T) {
	handlers, _, mock := newTestHandlers(t)

	mock.ExpectExec("INSERT INTO subscriptions").WillReturnResult(sqlmock.NewResult(1, 1))

	body := `{
		"sub_id": "sub-create-1",
		"settlement_contract": "` + validAddr(0) + `",
		"token_mint": "` + validAddr(1) + `",
		"payer": "` + validAddr(2) + `",
		"merchant": "` + validAddr(3) + `",
		"amount_hint": 1000000,
		"interval_seconds": 86400,
		"reminder_days_before": 3,
		"api_key": "key-abc"
	}`

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/v1/subscriptions", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	c.Set(principalKey, validAddr(2))

	handlers.CreateSubscription(c)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateSubscription_ValidationFailureNeverTouchesStore(t *testing.T) {
	handlers, _, mock := newTestHandlers(t)

	// interval_seconds is below store.MinIntervalSeconds: Validate must
	// reject before any INSERT is attempted.
	body := `{
		"sub_id": "sub-bad-interval",
		"settlement_contract": "` + validAddr(0) + `",
		"token_mint": "` + validAddr(1) + `",
		"payer": "` + validAddr(2) + `",
		"merchant": "` + validAddr(3) + `",
		"amount_hint": 1000000,
		"interval_seconds": 10,
		"reminder_days_before": 3,
		"api_key": "key-abc"
	}`

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/v1/subscriptions", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")

	handlers.CreateSubscription(c)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResumeSubscription_PreservesNextExecutionAnchor(t *testing.T) {
	handlers, st, mock := newTestHandlers(t)

	mock.ExpectExec("INSERT INTO subscriptions").WillReturnResult(sqlmock.NewResult(1, 1))
	sub := &store.Subscription{
		SubID:              "sub-resume-1",
		SettlementContract: validAddr(0),
		TokenMint:          validAddr(1),
		Payer:              validAddr(2),
		Merchant:           validAddr(3),
		AmountHint:         1_000_000,
		IntervalSeconds:    86_400,
		Status:             store.StatusPaused,
		NextExecutionAt:    42,
		OwnerPrincipal:     "principal-1",
	}
	require.NoError(t, st.Put(context.Background(), sub))

	mock.ExpectExec("UPDATE subscriptions").WillReturnResult(sqlmock.NewResult(1, 1))

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/v1/subscriptions/sub-resume-1/resume", nil)
	c.Params = gin.Params{{Key: "sub_id", Value: "sub-resume-1"}}

	handlers.ResumeSubscription(c)

	assert.Equal(t, http.StatusOK, w.Code)
	got, err := st.Get("sub-resume-1")
	require.NoError(t, err)
	assert.Equal(t, store.StatusActive, got.Status)
	assert.Equal(t, int64(42), got.NextExecutionAt)
}

func TestGetSubscription_NotFound(t *testing.T) {
	handlers, _, _ := newTestHandlers(t)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/v1/subscriptions/missing", nil)
	c.Params = gin.Params{{Key: "sub_id", Value: "missing"}}

	handlers.GetSubscription(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestInitializeFirstAdmin(t *testing.T) {
	handlers, _, _ := newTestHandlers(t)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/v1/admin/init", nil)
	c.Set(principalKey, "operator-1")

	handlers.InitializeFirstAdmin(c)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestInitializeFirstAdmin_Twice(t *testing.T) {
	handlers, _, _ := newTestHandlers(t)

	w1 := httptest.NewRecorder()
	c1, _ := gin.CreateTestContext(w1)
	c1.Request = httptest.NewRequest(http.MethodPost, "/api/v1/admin/init", nil)
	c1.Set(principalKey, "operator-1")
	handlers.InitializeFirstAdmin(c1)
	require.Equal(t, http.StatusOK, w1.Code)

	w2 := httptest.NewRecorder()
	c2, _ := gin.CreateTestContext(w2)
	c2.Request = httptest.NewRequest(http.MethodPost, "/api/v1/admin/init", nil)
	c2.Set(principalKey, "operator-2")
	handlers.InitializeFirstAdmin(c2)

	assert.Equal(t, http.StatusConflict, w2.Code)
}
