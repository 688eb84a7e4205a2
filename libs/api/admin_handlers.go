package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/solsub/scheduler/libs/admin"
)

// Ping is a liveness probe, callable by anyone.
func (h *Handlers) Ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": h.admin.Ping()})
}

// GetCanisterHealth reports cycle balance and subsystem health — anonymous,
// matching the rest of the health surface.
func (h *Handlers) GetCanisterHealth(c *gin.Context) {
	status, err := h.admin.GetCanisterHealth(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, status)
}

// adminErrorStatus maps admin's ACL/precondition sentinels to HTTP status
// codes. Everything else is a 400 — admin.Service never exposes storage
// internals through its error values.
func adminErrorStatus(err error) int {
	switch {
	case errors.Is(err, admin.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, admin.ErrAdminSetInitialized):
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

func (h *Handlers) respondAdminErr(c *gin.Context, err error) {
	c.JSON(adminErrorStatus(err), gin.H{"error": "admin operation failed", "message": err.Error()})
}

// InitializeFirstAdmin bootstraps the admin set. Only succeeds once.
func (h *Handlers) InitializeFirstAdmin(c *gin.Context) {
	principal := callerPrincipal(c)
	if err := h.admin.InitializeFirstAdmin(principal); err != nil {
		h.respondAdminErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"admin": principal})
}

type addRemovePrincipalRequest struct {
	Target string `json:"target" binding:"required"`
}

func (h *Handlers) AddAdmin(c *gin.Context) {
	var req addRemovePrincipalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "message": err.Error()})
		return
	}
	if err := h.admin.AddAdmin(callerPrincipal(c), req.Target); err != nil {
		h.respondAdminErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handlers) RemoveAdmin(c *gin.Context) {
	var req addRemovePrincipalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "message": err.Error()})
		return
	}
	if err := h.admin.RemoveAdmin(callerPrincipal(c), req.Target); err != nil {
		h.respondAdminErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handlers) AddReader(c *gin.Context) {
	var req addRemovePrincipalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "message": err.Error()})
		return
	}
	if err := h.admin.AddReader(callerPrincipal(c), req.Target); err != nil {
		h.respondAdminErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handlers) RemoveReader(c *gin.Context) {
	var req addRemovePrincipalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "message": err.Error()})
		return
	}
	if err := h.admin.RemoveReader(callerPrincipal(c), req.Target); err != nil {
		h.respondAdminErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetCycleStatus reports the current cycle balance and refill configuration.
func (h *Handlers) GetCycleStatus(c *gin.Context) {
	status, err := h.admin.GetCycleStatus(callerPrincipal(c))
	if err != nil {
		h.respondAdminErr(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

type setCycleThresholdRequest struct {
	Threshold uint64 `json:"threshold"`
}

func (h *Handlers) SetCycleThreshold(c *gin.Context) {
	var req setCycleThresholdRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "message": err.Error()})
		return
	}
	if err := h.admin.SetCycleThreshold(callerPrincipal(c), req.Threshold); err != nil {
		h.respondAdminErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type enableAutoRefillRequest struct {
	Enabled bool `json:"enabled"`
}

func (h *Handlers) EnableAutoRefill(c *gin.Context) {
	var req enableAutoRefillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "message": err.Error()})
		return
	}
	if err := h.admin.EnableAutoRefill(callerPrincipal(c), req.Enabled); err != nil {
		h.respondAdminErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type refillCyclesRequest struct {
	Amount uint64 `json:"amount"`
}

func (h *Handlers) RefillCyclesFromFees(c *gin.Context) {
	var req refillCyclesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "message": err.Error()})
		return
	}
	if err := h.admin.RefillCyclesFromFees(c.Request.Context(), callerPrincipal(c), req.Amount); err != nil {
		h.respondAdminErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// EmergencyPauseAll pauses every active subscription and reports how many
// were affected.
func (h *Handlers) EmergencyPauseAll(c *gin.Context) {
	n, err := h.admin.EmergencyPauseAll(c.Request.Context(), callerPrincipal(c))
	if err != nil {
		h.respondAdminErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"paused": n})
}

// ResumeOperations re-arms every subscription paused by EmergencyPauseAll.
func (h *Handlers) ResumeOperations(c *gin.Context) {
	n, err := h.admin.ResumeOperations(c.Request.Context(), callerPrincipal(c))
	if err != nil {
		h.respondAdminErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"resumed": n})
}

type proposeFeeAddressRequest struct {
	NewAddress string `json:"new_address" binding:"required"`
}

func (h *Handlers) ProposeFeeAddressChange(c *gin.Context) {
	var req proposeFeeAddressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "message": err.Error()})
		return
	}
	if err := h.admin.ProposeFeeAddressChange(callerPrincipal(c), req.NewAddress); err != nil {
		h.respondAdminErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handlers) ExecuteFeeAddressChange(c *gin.Context) {
	if err := h.admin.ExecuteFeeAddressChange(callerPrincipal(c)); err != nil {
		h.respondAdminErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"fee_address": h.admin.CurrentFeeAddress()})
}

func (h *Handlers) CancelFeeAddressProposal(c *gin.Context) {
	if err := h.admin.CancelFeeAddressProposal(callerPrincipal(c)); err != nil {
		h.respondAdminErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handlers) PendingFeeProposal(c *gin.Context) {
	proposal, ok := h.admin.PendingFeeProposal()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no pending proposal"})
		return
	}
	c.JSON(http.StatusOK, proposal)
}

type withdrawSOLRequest struct {
	Destination string `json:"destination" binding:"required"`
	Amount      uint64 `json:"amount"`
}

func (h *Handlers) AdminWithdrawSOL(c *gin.Context) {
	var req withdrawSOLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "message": err.Error()})
		return
	}
	sig, err := h.admin.AdminWithdrawSOL(c.Request.Context(), callerPrincipal(c), req.Destination, req.Amount)
	if err != nil {
		h.respondAdminErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"signature": sig})
}

type withdrawTokenRequest struct {
	Destination string `json:"destination" binding:"required"`
	TokenMint   string `json:"token_mint" binding:"required"`
	Amount      uint64 `json:"amount"`
}

func (h *Handlers) AdminWithdrawToken(c *gin.Context) {
	var req withdrawTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "message": err.Error()})
		return
	}
	sig, err := h.admin.AdminWithdrawToken(c.Request.Context(), callerPrincipal(c), req.Destination, req.TokenMint, req.Amount)
	if err != nil {
		h.respondAdminErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"signature": sig})
}

type updateSubscriptionAddressesRequest struct {
	NewSettlementContract string `json:"new_settlement_contract" binding:"required"`
	NewTokenMint           string `json:"new_token_mint" binding:"required"`
}

func (h *Handlers) UpdateSubscriptionAddresses(c *gin.Context) {
	var req updateSubscriptionAddressesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "message": err.Error()})
		return
	}
	subID := c.Param("sub_id")
	if err := h.admin.UpdateSubscriptionAddresses(c.Request.Context(), callerPrincipal(c), subID, req.NewSettlementContract, req.NewTokenMint); err != nil {
		h.respondAdminErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
