package admin

import (
	"context"
	"sync"
	"testing"

	"github.com/solsub/scheduler/libs/chainrpc"
	"github.com/solsub/scheduler/libs/health"
	"github.com/solsub/scheduler/libs/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeStore struct {
	mu   sync.Mutex
	subs map[string]*store.Subscription
}

func newFakeStore(subs ...*store.Subscription) *fakeStore {
	fs := &fakeStore{subs: make(map[string]*store.Subscription)}
	for _, sub := range subs {
		fs.subs[sub.SubID] = sub
	}
	return fs
}

func (f *fakeStore) Get(subID string) (*store.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub, ok := f.subs[subID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *sub
	return &cp, nil
}

func (f *fakeStore) Update(_ context.Context, sub *store.Subscription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *sub
	f.subs[sub.SubID] = &cp
	return nil
}

func (f *fakeStore) ListAllActive() []*store.Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*store.Subscription, 0, len(f.subs))
	for _, sub := range f.subs {
		if sub.Status == store.StatusActive {
			cp := *sub
			out = append(out, &cp)
		}
	}
	return out
}

type fakeTimers struct {
	mu      sync.Mutex
	armed   map[string]int
	cancels map[string]int
}

func newFakeTimers() *fakeTimers {
	return &fakeTimers{armed: make(map[string]int), cancels: make(map[string]int)}
}

func (f *fakeTimers) Arm(sub *store.Subscription) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.armed[sub.SubID]++
}

func (f *fakeTimers) Cancel(subID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels[subID]++
}

type fakeSigner struct {
	sig [64]byte
	err error
}

func (f *fakeSigner) Sign(_ context.Context, _ []byte) ([64]byte, error) {
	return f.sig, f.err
}

type fakeSubmitter struct {
	txID  string
	err   error
	state chainrpc.CircuitState
}

func (f *fakeSubmitter) SendTransaction(_ context.Context, _ string) (string, error) {
	return f.txID, f.err
}

func (f *fakeSubmitter) BreakerState() chainrpc.CircuitState {
	if f.state == "" {
		return chainrpc.CircuitClosed
	}
	return f.state
}

func testSub(id string, status store.Status) *store.Subscription {
	return &store.Subscription{
		SubID:              id,
		SettlementContract: "contract-old",
		TokenMint:          "mint-old",
		Status:             status,
		NextExecutionAt:    1_000_000,
		IntervalSeconds:    86_400,
	}
}

func newTestService(st SubscriptionStore, timers TimerControl) *Service {
	h := health.New()
	svc := New(st, timers, &fakeSigner{}, &fakeSubmitter{txID: "tx-1"}, h, Config{}, zap.NewNop())
	return svc
}

func TestACL_FirstAdminThenGating(t *testing.T) {
	svc := newTestService(newFakeStore(), newFakeTimers())

	require.ErrorIs(t, svc.AddAdmin("nobody", "alice"), ErrForbidden)

	require.NoError(t, svc.InitializeFirstAdmin("root"))
	require.ErrorIs(t, svc.InitializeFirstAdmin("someone-else"), ErrAdminSetInitialized)
	assert.True(t, svc.IsAdmin("root"))

	require.NoError(t, svc.AddAdmin("root", "alice"))
	assert.True(t, svc.IsAdmin("alice"))

	require.NoError(t, svc.AddReader("root", "bob"))
	assert.True(t, svc.IsReader("bob"))
	assert.False(t, svc.IsAdmin("bob"))

	require.NoError(t, svc.RemoveAdmin("root", "alice"))
	assert.False(t, svc.IsAdmin("alice"))
}

func TestFeeGovernance_TwoStageWithMinAge(t *testing.T) {
	svc := newTestService(newFakeStore(), newFakeTimers())
	require.NoError(t, svc.InitializeFirstAdmin("root"))
	svc.cfg.FeeProposalMinAgeSeconds = 0 // allow immediate execution in this test

	require.NoError(t, svc.ProposeFeeAddressChange("root", "new-fee-addr"))
	_, pending := svc.PendingFeeProposal()
	assert.True(t, pending)

	require.ErrorIs(t, svc.ProposeFeeAddressChange("root", "another-addr"), ErrProposalExists)

	require.NoError(t, svc.ExecuteFeeAddressChange("root"))
	assert.Equal(t, "new-fee-addr", svc.CurrentFeeAddress())
	_, pending = svc.PendingFeeProposal()
	assert.False(t, pending)
}

func TestFeeGovernance_ExecuteTooEarlyFails(t *testing.T) {
	svc := newTestService(newFakeStore(), newFakeTimers())
	require.NoError(t, svc.InitializeFirstAdmin("root"))

	require.NoError(t, svc.ProposeFeeAddressChange("root", "new-fee-addr"))
	require.ErrorIs(t, svc.ExecuteFeeAddressChange("root"), ErrProposalTooYoung)

	require.NoError(t, svc.CancelFeeAddressProposal("root"))
	_, pending := svc.PendingFeeProposal()
	assert.False(t, pending)
	require.ErrorIs(t, svc.CancelFeeAddressProposal("root"), ErrNoProposal)
}

func TestEmergencyPauseAll_ResumesExactlyThatSet(t *testing.T) {
	fs := newFakeStore(
		testSub("sub-1", store.StatusActive),
		testSub("sub-2", store.StatusActive),
		testSub("sub-3", store.StatusPaused), // already paused for another reason
	)
	timers := newFakeTimers()
	svc := newTestService(fs, timers)
	require.NoError(t, svc.InitializeFirstAdmin("root"))

	n, err := svc.EmergencyPauseAll(context.Background(), "root")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	sub1, _ := fs.Get("sub-1")
	assert.Equal(t, store.StatusPaused, sub1.Status)
	assert.Equal(t, 1, timers.cancels["sub-1"])
	assert.Equal(t, 1, timers.cancels["sub-2"])
	assert.Equal(t, 0, timers.cancels["sub-3"])

	n, err = svc.ResumeOperations(context.Background(), "root")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	sub1, _ = fs.Get("sub-1")
	assert.Equal(t, store.StatusActive, sub1.Status)
	sub3, _ := fs.Get("sub-3")
	assert.Equal(t, store.StatusPaused, sub3.Status, "sub-3 was never part of the emergency pause set")
	assert.Equal(t, 1, timers.armed["sub-1"])
	assert.Equal(t, 1, timers.armed["sub-2"])
}

func TestCycleStatus_ThresholdAndRefill(t *testing.T) {
	svc := newTestService(newFakeStore(), newFakeTimers())
	require.NoError(t, svc.InitializeFirstAdmin("root"))

	require.NoError(t, svc.SetCycleThreshold("root", 1000))
	require.NoError(t, svc.EnableAutoRefill("root", true))
	require.NoError(t, svc.RefillCyclesFromFees(context.Background(), "root", 5000))

	status, err := svc.GetCycleStatus("root")
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), status.Threshold)
	assert.True(t, status.AutoRefillEnabled)
	assert.Equal(t, uint64(5000), status.Current)
	assert.Equal(t, uint64(5000), status.TotalRefilled)
	require.NotNil(t, status.LastRefill)
}

func TestAdminWithdrawSOL_HappyPath(t *testing.T) {
	submitter := &fakeSubmitter{txID: "tx-withdraw-1"}
	svc := New(newFakeStore(), newFakeTimers(), &fakeSigner{}, submitter, health.New(), Config{}, zap.NewNop())
	require.NoError(t, svc.InitializeFirstAdmin("root"))

	txID, err := svc.AdminWithdrawSOL(context.Background(), "root", "dest-addr", 12345)
	require.NoError(t, err)
	assert.Equal(t, "tx-withdraw-1", txID)
}

func TestAdminWithdraw_RequiresAdmin(t *testing.T) {
	svc := newTestService(newFakeStore(), newFakeTimers())
	require.NoError(t, svc.InitializeFirstAdmin("root"))

	_, err := svc.AdminWithdrawSOL(context.Background(), "stranger", "dest-addr", 1)
	require.ErrorIs(t, err, ErrForbidden)
}

func TestUpdateSubscriptionAddresses_MigratesInPlace(t *testing.T) {
	fs := newFakeStore(testSub("sub-1", store.StatusActive))
	svc := newTestService(fs, newFakeTimers())
	require.NoError(t, svc.InitializeFirstAdmin("root"))

	err := svc.UpdateSubscriptionAddresses(context.Background(), "root", "sub-1", "contract-new", "mint-new")
	require.NoError(t, err)

	sub, _ := fs.Get("sub-1")
	assert.Equal(t, "contract-new", sub.SettlementContract)
	assert.Equal(t, "mint-new", sub.TokenMint)
	assert.Equal(t, store.StatusActive, sub.Status, "migration must not change lifecycle status")
}

func TestGetCanisterHealth_ReflectsBreakerAndCycleState(t *testing.T) {
	submitter := &fakeSubmitter{state: chainrpc.CircuitOpen}
	svc := New(newFakeStore(), newFakeTimers(), &fakeSigner{}, submitter, health.New(), Config{}, zap.NewNop())
	require.NoError(t, svc.InitializeFirstAdmin("root"))
	require.NoError(t, svc.SetCycleThreshold("root", 100))
	svc.RegisterHealthCheckers()

	result, err := svc.GetCanisterHealth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, HealthCritical, result.Level, "an open breaker must surface as critical")
}
