// Package chainrpc is a JSON-RPC client for the settlement chain's
// validator API: submitting signed transactions and polling their
// confirmation status, guarded by a circuit breaker, a bounded retry
// policy, and a FIFO-fair concurrency cap.
package chainrpc

import "encoding/json"

// Request is a JSON-RPC 2.0 request envelope, matching the wire shape the
// settlement chain's validators expect.
type Request struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

// Response is a JSON-RPC 2.0 response envelope.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error is a JSON-RPC error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Message
}

// SignatureStatus mirrors the settlement chain's getSignatureStatuses
// result for a single transaction signature.
type SignatureStatus struct {
	Slot               uint64 `json:"slot"`
	Confirmations      *uint64 `json:"confirmations"`
	ConfirmationStatus string  `json:"confirmationStatus"` // "processed" | "confirmed" | "finalized"
	Err                json.RawMessage `json:"err,omitempty"`
}

// Confirmed reports whether the chain has at least reached "confirmed"
// status for this signature (the threshold the dispatcher waits for before
// classifying a dispatch as Success).
func (s *SignatureStatus) Confirmed() bool {
	if s == nil {
		return false
	}
	return s.ConfirmationStatus == "confirmed" || s.ConfirmationStatus == "finalized"
}

// Rejected reports whether the chain attached a program/runtime error to
// this signature.
func (s *SignatureStatus) Rejected() bool {
	return s != nil && len(s.Err) > 0 && string(s.Err) != "null"
}
