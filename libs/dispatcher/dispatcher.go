// Package dispatcher implements the authenticated dispatch path: building
// the canonical opcode payload, signing it, submitting it to the settlement
// chain, and classifying the result. It is side-effect-free on the
// subscription store — the scheduler applies every state transition based
// on the Outcome a Dispatch call returns.
package dispatcher

import (
	"context"
	"fmt"
	"time"

	"github.com/solsub/scheduler/libs/chainrpc"
	"github.com/solsub/scheduler/libs/store"
	"go.uber.org/zap"
)

// SubscriptionLookup is the read-only slice of store.Store the dispatcher
// needs. Satisfied by *store.Store.
type SubscriptionLookup interface {
	Get(subID string) (*store.Subscription, error)
}

// Signer is the slice of libs/signer.Signer the dispatcher needs.
type Signer interface {
	Sign(ctx context.Context, payload []byte) ([64]byte, error)
}

// Submitter is the slice of libs/chainrpc.Client the dispatcher needs.
type Submitter interface {
	SendTransaction(ctx context.Context, signedTxBase64 string) (string, error)
	GetSignatureStatuses(ctx context.Context, signatures []string) ([]*chainrpc.SignatureStatus, error)
}

// Config tunes the bounded wait this package performs after submission,
// polling for confirmation before giving up and classifying Unknown as
// Transient.
type Config struct {
	ConfirmationTimeout time.Duration
	PollInterval        time.Duration
}

// DefaultConfig mirrors the RPC client's own default outcall timeout.
func DefaultConfig() Config {
	return Config{
		ConfirmationTimeout: 30 * time.Second,
		PollInterval:        2 * time.Second,
	}
}

// Dispatcher ties together the Store, Signer, and RPC Client to execute one
// dispatch attempt.
type Dispatcher struct {
	store  SubscriptionLookup
	signer Signer
	rpc    Submitter
	cfg    Config
	logger *zap.Logger
}

// New builds a Dispatcher.
func New(store SubscriptionLookup, signer Signer, rpc Submitter, cfg Config, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{store: store, signer: signer, rpc: rpc, cfg: cfg, logger: logger}
}

// Dispatch executes one attempt for subID with the given opcode: load,
// encode, sign, submit, classify. It never mutates the store.
func (d *Dispatcher) Dispatch(ctx context.Context, subID string, opcode Opcode) Outcome {
	start := time.Now()
	outcome := d.dispatch(ctx, subID, opcode)

	d.logger.Info("dispatch resolved",
		zap.String("sub_id", subID),
		zap.String("opcode", opcodeName(opcode)),
		zap.String("outcome", string(outcome.Kind)),
		zap.String("reason", outcome.Reason),
		zap.Duration("duration", time.Since(start)),
	)
	return outcome
}

func (d *Dispatcher) dispatch(ctx context.Context, subID string, opcode Opcode) Outcome {
	sub, err := d.store.Get(subID)
	if err != nil {
		return skipped(fmt.Sprintf("subscription lookup failed: %v", err))
	}
	if sub.Status != store.StatusActive {
		return skipped(fmt.Sprintf("subscription is %s, not active", sub.Status))
	}

	payload := EncodePayload(sub, opcode, sub.TriggerCount+1)

	sig, err := d.signer.Sign(ctx, payload)
	if err != nil {
		return transient(fmt.Sprintf("signing failed: %v", err))
	}

	signedTx := encodeSignedTransaction(payload, sig)

	txID, err := d.rpc.SendTransaction(ctx, signedTx)
	if err != nil {
		if chainrpc.IsRetryable(err) {
			return transient(err.Error())
		}
		return chainReject(err.Error(), "")
	}

	return d.awaitConfirmation(ctx, txID)
}

// awaitConfirmation polls GetSignatureStatuses until the chain reports
// confirmed, rejects the transaction, or the bounded wait elapses.
func (d *Dispatcher) awaitConfirmation(ctx context.Context, txID string) Outcome {
	deadline := time.Now().Add(d.cfg.ConfirmationTimeout)
	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	for {
		statuses, err := d.rpc.GetSignatureStatuses(ctx, []string{txID})
		if err == nil && len(statuses) == 1 && statuses[0] != nil {
			status := statuses[0]
			if status.Rejected() {
				return chainReject(string(status.Err), txID)
			}
			if status.Confirmed() {
				return success(txID)
			}
		}

		if time.Now().After(deadline) {
			return transient(fmt.Sprintf("no confirmation for %s after %s", txID, d.cfg.ConfirmationTimeout))
		}

		select {
		case <-ctx.Done():
			return transient(ctx.Err().Error())
		case <-ticker.C:
		}
	}
}

func opcodeName(op Opcode) string {
	if op == OpcodeReminder {
		return "reminder"
	}
	return "payment"
}

// encodeSignedTransaction glues the canonical payload and its signature
// into the base64 blob the RPC client submits. The settlement contract
// expects the payload immediately followed by its 64-byte Ed25519
// signature.
func encodeSignedTransaction(payload []byte, sig [64]byte) string {
	raw := make([]byte, 0, len(payload)+64)
	raw = append(raw, payload...)
	raw = append(raw, sig[:]...)
	return chainrpc.EncodeTransaction(raw)
}
