package dispatcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/solsub/scheduler/libs/chainrpc"
	"github.com/solsub/scheduler/libs/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeStore struct {
	subs map[string]*store.Subscription
}

func (f *fakeStore) Get(subID string) (*store.Subscription, error) {
	sub, ok := f.subs[subID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return sub, nil
}

type fakeSigner struct {
	sig [64]byte
	err error
}

func (f *fakeSigner) Sign(ctx context.Context, payload []byte) ([64]byte, error) {
	return f.sig, f.err
}

type fakeSubmitter struct {
	sendErr      error
	txID         string
	statusesFunc func(ctx context.Context, signatures []string) ([]*chainrpc.SignatureStatus, error)
}

func (f *fakeSubmitter) SendTransaction(ctx context.Context, signedTxBase64 string) (string, error) {
	if f.sendErr != nil {
		return "", f.sendErr
	}
	return f.txID, nil
}

func (f *fakeSubmitter) GetSignatureStatuses(ctx context.Context, signatures []string) ([]*chainrpc.SignatureStatus, error) {
	return f.statusesFunc(ctx, signatures)
}

func testSub() *store.Subscription {
	return &store.Subscription{
		SubID:              "sub-1",
		SettlementContract: "contract-1",
		TokenMint:          "mint-usdc",
		Payer:              "payer-1",
		Merchant:           "merchant-1",
		AmountHint:         1_000_000,
		IntervalSeconds:    86_400,
		Status:             store.StatusActive,
		NextExecutionAt:    1000,
		TriggerCount:       4,
	}
}

func TestDispatch_SkipsNonActiveSubscription(t *testing.T) {
	sub := testSub()
	sub.Status = store.StatusPaused
	d := New(&fakeStore{subs: map[string]*store.Subscription{"sub-1": sub}}, &fakeSigner{}, &fakeSubmitter{}, DefaultConfig(), zaptest.NewLogger(t))

	outcome := d.Dispatch(context.Background(), "sub-1", OpcodePayment)
	assert.Equal(t, OutcomeSkipped, outcome.Kind)
}

func TestDispatch_SkipsUnknownSubscription(t *testing.T) {
	d := New(&fakeStore{subs: map[string]*store.Subscription{}}, &fakeSigner{}, &fakeSubmitter{}, DefaultConfig(), zaptest.NewLogger(t))

	outcome := d.Dispatch(context.Background(), "missing", OpcodePayment)
	assert.Equal(t, OutcomeSkipped, outcome.Kind)
}

func TestDispatch_SuccessOnConfirmedStatus(t *testing.T) {
	sub := testSub()
	submitter := &fakeSubmitter{
		txID: "tx-1",
		statusesFunc: func(ctx context.Context, signatures []string) ([]*chainrpc.SignatureStatus, error) {
			return []*chainrpc.SignatureStatus{{ConfirmationStatus: "confirmed"}}, nil
		},
	}
	cfg := DefaultConfig()
	cfg.PollInterval = time.Millisecond

	d := New(&fakeStore{subs: map[string]*store.Subscription{"sub-1": sub}}, &fakeSigner{}, submitter, cfg, zaptest.NewLogger(t))

	outcome := d.Dispatch(context.Background(), "sub-1", OpcodePayment)
	assert.Equal(t, OutcomeSuccess, outcome.Kind)
	assert.Equal(t, "tx-1", outcome.TxID)
}

func TestDispatch_ChainRejectOnRejectedStatus(t *testing.T) {
	sub := testSub()
	submitter := &fakeSubmitter{
		txID: "tx-1",
		statusesFunc: func(ctx context.Context, signatures []string) ([]*chainrpc.SignatureStatus, error) {
			return []*chainrpc.SignatureStatus{{ConfirmationStatus: "processed", Err: []byte(`{"InstructionError":[0,"Custom"]}`)}}, nil
		},
	}
	cfg := DefaultConfig()
	cfg.PollInterval = time.Millisecond

	d := New(&fakeStore{subs: map[string]*store.Subscription{"sub-1": sub}}, &fakeSigner{}, submitter, cfg, zaptest.NewLogger(t))

	outcome := d.Dispatch(context.Background(), "sub-1", OpcodePayment)
	assert.Equal(t, OutcomeChainReject, outcome.Kind)
}

func TestDispatch_TransientOnNetworkErrorDuringSubmit(t *testing.T) {
	sub := testSub()
	submitter := &fakeSubmitter{sendErr: errors.New("connection reset by peer")}

	d := New(&fakeStore{subs: map[string]*store.Subscription{"sub-1": sub}}, &fakeSigner{}, submitter, DefaultConfig(), zaptest.NewLogger(t))

	outcome := d.Dispatch(context.Background(), "sub-1", OpcodePayment)
	assert.Equal(t, OutcomeTransient, outcome.Kind)
}

func TestDispatch_ChainRejectOnNonRetryableSubmitError(t *testing.T) {
	sub := testSub()
	submitter := &fakeSubmitter{sendErr: errors.New("insufficient funds for transaction")}

	d := New(&fakeStore{subs: map[string]*store.Subscription{"sub-1": sub}}, &fakeSigner{}, submitter, DefaultConfig(), zaptest.NewLogger(t))

	outcome := d.Dispatch(context.Background(), "sub-1", OpcodePayment)
	assert.Equal(t, OutcomeChainReject, outcome.Kind)
}

func TestDispatch_TransientOnUnresolvedConfirmationAfterTimeout(t *testing.T) {
	sub := testSub()
	submitter := &fakeSubmitter{
		txID: "tx-1",
		statusesFunc: func(ctx context.Context, signatures []string) ([]*chainrpc.SignatureStatus, error) {
			return []*chainrpc.SignatureStatus{{ConfirmationStatus: "processed"}}, nil
		},
	}
	cfg := Config{ConfirmationTimeout: 5 * time.Millisecond, PollInterval: time.Millisecond}

	d := New(&fakeStore{subs: map[string]*store.Subscription{"sub-1": sub}}, &fakeSigner{}, submitter, cfg, zaptest.NewLogger(t))

	outcome := d.Dispatch(context.Background(), "sub-1", OpcodePayment)
	assert.Equal(t, OutcomeTransient, outcome.Kind)
}

func TestDispatch_TransientOnSignerFailure(t *testing.T) {
	sub := testSub()
	d := New(&fakeStore{subs: map[string]*store.Subscription{"sub-1": sub}}, &fakeSigner{err: errors.New("keystore locked")}, &fakeSubmitter{}, DefaultConfig(), zaptest.NewLogger(t))

	outcome := d.Dispatch(context.Background(), "sub-1", OpcodePayment)
	assert.Equal(t, OutcomeTransient, outcome.Kind)
}

func TestEncodePayload_IsDeterministicAndLayoutStable(t *testing.T) {
	sub := testSub()

	a := EncodePayload(sub, OpcodePayment, 5)
	b := EncodePayload(sub, OpcodePayment, 5)
	require.Equal(t, a, b, "identical inputs must produce byte-identical payloads")

	c := EncodePayload(sub, OpcodeReminder, 5)
	assert.NotEqual(t, a, c, "opcode must be reflected in the payload")

	d := EncodePayload(sub, OpcodePayment, 6)
	assert.NotEqual(t, a, d, "attempt must change the derived nonce")

	assert.Equal(t, byte(0x01), a[0], "protocol tag must be 0x01")
	assert.Equal(t, byte(OpcodePayment), a[1], "opcode byte must follow the protocol tag")
}
