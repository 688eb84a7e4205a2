// Package api exposes the scheduler core over HTTP: subscription lifecycle
// endpoints backed by the validator/store/scheduler trio, and an
// administrative surface that delegates straight to libs/admin.
package api

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/solsub/scheduler/libs/admin"
	"github.com/solsub/scheduler/libs/metrics"
	"github.com/solsub/scheduler/libs/scheduler"
	"github.com/solsub/scheduler/libs/store"
	"github.com/solsub/scheduler/libs/validator"
	"go.uber.org/zap"
)

// Handlers holds every dependency the HTTP layer needs to service requests.
// It owns no state of its own beyond what it's handed at construction time.
type Handlers struct {
	logger *zap.Logger

	store     *store.Store
	validator *validator.Validator
	scheduler *scheduler.Scheduler
	admin     *admin.Service

	promMetrics  *metrics.PrometheusMetrics
	promRegistry *prometheus.Registry

	ctx context.Context
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(
	ctx context.Context,
	logger *zap.Logger,
	st *store.Store,
	val *validator.Validator,
	sched *scheduler.Scheduler,
	adminSvc *admin.Service,
	promMetrics *metrics.PrometheusMetrics,
	promRegistry *prometheus.Registry,
) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		logger:       logger,
		store:        st,
		validator:    val,
		scheduler:    sched,
		admin:        adminSvc,
		promMetrics:  promMetrics,
		promRegistry: promRegistry,
		ctx:          ctx,
	}
}

// Context returns the handlers' background context.
func (h *Handlers) Context() context.Context {
	if h.ctx == nil {
		return context.Background()
	}
	return h.ctx
}

func nowUnix() int64 { return time.Now().Unix() }
