// Package admin implements the administrative and governance surface:
// admin/reader ACLs, two-stage fee-address governance, emergency
// pause/resume, cycle monitoring, and the self-funded withdraw/migration
// operations that bypass the normal subscription lifecycle entirely.
package admin

import (
	"context"
	"sync"

	"github.com/solsub/scheduler/libs/chainrpc"
	"github.com/solsub/scheduler/libs/health"
	"github.com/solsub/scheduler/libs/store"
	"go.uber.org/zap"
)

// SubscriptionStore is the slice of store.Store the admin surface needs.
type SubscriptionStore interface {
	Get(subID string) (*store.Subscription, error)
	Update(ctx context.Context, sub *store.Subscription) error
	ListAllActive() []*store.Subscription
}

// TimerControl is the slice of scheduler.Scheduler the admin surface needs
// to keep armed timers consistent with status changes it makes directly.
type TimerControl interface {
	Arm(sub *store.Subscription)
	Cancel(subID string)
}

// Signer is the slice of libs/signer.Signer that AdminWithdraw* needs.
type Signer interface {
	Sign(ctx context.Context, payload []byte) ([64]byte, error)
}

// Submitter is the slice of libs/chainrpc.Client that AdminWithdraw* and
// GetCanisterHealth need.
type Submitter interface {
	SendTransaction(ctx context.Context, signedTxBase64 string) (string, error)
	BreakerState() chainrpc.CircuitState
}

// Config tunes the admin surface's own policy knobs (everything else — the
// ACL membership, fee proposal, cycle state — is runtime state held by
// Service).
type Config struct {
	// FeeProposalMinAgeSeconds is how old a fee-address proposal must be before
	// it can be executed. Defaults to 7 days if zero.
	FeeProposalMinAgeSeconds int64
	InitialFeeAddress        string
}

// Service is the administrative surface. A single instance is shared by
// every admin-facing entrypoint in the process.
type Service struct {
	mu sync.RWMutex

	store      SubscriptionStore
	timers     TimerControl
	signer     Signer
	rpc        Submitter
	health     *health.Health
	logger     *zap.Logger
	cfg        Config

	admins  map[string]struct{}
	readers map[string]struct{}

	feeAddress  string
	feeProposal *FeeAddressProposal

	lastEmergencyPaused []string

	cycle CycleStatus
}

// New builds a Service. No admin exists yet until InitializeFirstAdmin is
// called (or the caller pre-populates the admin set itself).
func New(st SubscriptionStore, timers TimerControl, signer Signer, rpc Submitter, h *health.Health, cfg Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.FeeProposalMinAgeSeconds <= 0 {
		cfg.FeeProposalMinAgeSeconds = defaultFeeProposalMinAgeSeconds
	}
	return &Service{
		store:      st,
		timers:     timers,
		signer:     signer,
		rpc:        rpc,
		health:     h,
		logger:     logger,
		cfg:        cfg,
		admins:     make(map[string]struct{}),
		readers:    make(map[string]struct{}),
		feeAddress: cfg.InitialFeeAddress,
	}
}

func adminField(principal string) zap.Field  { return zap.String("principal", principal) }
func callerField(principal string) zap.Field { return zap.String("caller", principal) }

// Ping is reachable by any caller, including anonymous ones — it only
// confirms the process is up, not that any particular component is
// healthy (that's GetCanisterHealth).
func (s *Service) Ping() string { return "pong" }
