package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/solsub/scheduler/libs/store"
	"github.com/solsub/scheduler/libs/validator"
	"go.uber.org/zap"
)

// createSubscriptionRequest mirrors validator.CreateRequest plus the fields
// that only the store needs (settlement contract, token mint, merchant).
type createSubscriptionRequest struct {
	SubID               string `json:"sub_id" binding:"required"`
	SettlementContract  string `json:"settlement_contract" binding:"required"`
	TokenMint           string `json:"token_mint" binding:"required"`
	Payer               string `json:"payer" binding:"required"`
	Merchant            string `json:"merchant" binding:"required"`
	AmountHint          uint64 `json:"amount_hint"`
	IntervalSeconds     uint64 `json:"interval_seconds"`
	ReminderDaysBefore  int    `json:"reminder_days_before"`
	APIKey              string `json:"api_key" binding:"required"`
}

// CreateSubscription validates the request against the validator's ordered
// checklist, then (only on success) persists it and arms its timers — a
// rejected validation never touches the store or the scheduler.
func (h *Handlers) CreateSubscription(c *gin.Context) {
	var req createSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "message": err.Error()})
		return
	}

	principal := callerPrincipal(c)

	vreq := validator.CreateRequest{
		SubID:               req.SubID,
		OwnerPrincipal:      principal,
		SettlementContract:  req.SettlementContract,
		TokenMint:           req.TokenMint,
		Payer:               req.Payer,
		Merchant:            req.Merchant,
		AmountHint:          req.AmountHint,
		IntervalSeconds:     req.IntervalSeconds,
		ReminderDaysBefore:  req.ReminderDaysBefore,
		APIKey:              req.APIKey,
	}

	if err := h.validator.Validate(c.Request.Context(), vreq); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "validation failed", "message": err.Error()})
		return
	}

	now := nowUnix()
	sub := &store.Subscription{
		SubID:              req.SubID,
		SettlementContract: req.SettlementContract,
		TokenMint:          req.TokenMint,
		Payer:              req.Payer,
		Merchant:           req.Merchant,
		AmountHint:         req.AmountHint,
		IntervalSeconds:    req.IntervalSeconds,
		ReminderDaysBefore: req.ReminderDaysBefore,
		Status:             store.StatusActive,
		NextExecutionAt:    now + int64(req.IntervalSeconds),
		CreatedAt:          now,
		UpdatedAt:          now,
		OwnerPrincipal:     principal,
	}

	if err := h.store.Put(c.Request.Context(), sub); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			c.JSON(http.StatusConflict, gin.H{"error": "conflict", "message": "sub_id already exists"})
			return
		}
		h.logger.Error("failed to persist subscription", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	h.scheduler.Arm(sub)
	if h.promMetrics != nil {
		_, total := h.store.ActiveCount(principal)
		h.promMetrics.UpdateActiveSubscriptions(total)
	}

	c.JSON(http.StatusCreated, sub)
}

// GetSubscription returns a subscription by sub_id.
func (h *Handlers) GetSubscription(c *gin.Context) {
	subID := c.Param("sub_id")
	sub, err := h.store.Get(subID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, sub)
}

// PauseSubscription transitions an active subscription to paused and
// cancels its armed timers; the store write and the timer cancellation are
// kept in that order so a crash between them leaves the store (not the
// timer) as the source of truth on restart.
func (h *Handlers) PauseSubscription(c *gin.Context) {
	h.transition(c, store.StatusPaused, func(sub *store.Subscription) bool {
		return sub.Status == store.StatusActive
	})
}

// ResumeSubscription transitions a paused subscription back to active and
// re-arms it. NextExecutionAt, TriggerCount, and FailedCount are left
// exactly as they were at pause time: if the original due instant has
// already passed, Arm fires it immediately rather than pushing the anchor
// forward by a full interval.
func (h *Handlers) ResumeSubscription(c *gin.Context) {
	subID := c.Param("sub_id")
	sub, err := h.store.Get(subID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if sub.Status != store.StatusPaused {
		c.JSON(http.StatusConflict, gin.H{"error": "conflict", "message": "subscription is not paused"})
		return
	}

	sub.Status = store.StatusActive
	sub.UpdatedAt = nowUnix()

	if err := h.store.Update(c.Request.Context(), sub); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	h.scheduler.Arm(sub)
	c.JSON(http.StatusOK, sub)
}

// CancelSubscription transitions a subscription to cancelled regardless of
// its current status (except already-cancelled), per a duplicate Cancel
// being idempotent rather than a Conflict.
func (h *Handlers) CancelSubscription(c *gin.Context) {
	h.transition(c, store.StatusCancelled, func(sub *store.Subscription) bool {
		return sub.Status != store.StatusCancelled
	})
}

// transition is the shared Pause/Cancel shape: load, check the precondition,
// mutate status, persist, cancel timers.
func (h *Handlers) transition(c *gin.Context, newStatus store.Status, allowed func(*store.Subscription) bool) {
	subID := c.Param("sub_id")
	sub, err := h.store.Get(subID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if !allowed(sub) {
		if newStatus == store.StatusCancelled && sub.Status == store.StatusCancelled {
			c.JSON(http.StatusOK, sub)
			return
		}
		c.JSON(http.StatusConflict, gin.H{"error": "conflict", "message": "subscription is not in a state that allows this transition"})
		return
	}

	sub.Status = newStatus
	sub.UpdatedAt = nowUnix()

	if err := h.store.Update(c.Request.Context(), sub); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	h.scheduler.Cancel(subID)
	c.JSON(http.StatusOK, sub)
}

// ListSubscriptionsByPrincipal paginates a principal's subscriptions.
func (h *Handlers) ListSubscriptionsByPrincipal(c *gin.Context) {
	principal := c.Param("principal")
	subs, err := h.store.ListByPrincipal(c.Request.Context(), principal, 100, nil)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"subscriptions": subs})
}
