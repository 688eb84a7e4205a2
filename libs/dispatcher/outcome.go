package dispatcher

// OutcomeKind classifies the result of one dispatch attempt. The scheduler
// decides state transitions from this and this alone; the dispatcher never
// touches the store itself.
type OutcomeKind string

const (
	// OutcomeSuccess: the chain confirmed the transaction.
	OutcomeSuccess OutcomeKind = "success"
	// OutcomeChainReject: the chain refused the transaction outright. Not
	// retryable as-is; counts as a consecutive failure.
	OutcomeChainReject OutcomeKind = "chain_reject"
	// OutcomeTransient: a network error, timeout, or an unresolved
	// confirmation after the bounded wait. Retryable.
	OutcomeTransient OutcomeKind = "transient"
	// OutcomeSkipped: the subscription was not Active when loaded; no
	// side effects occurred.
	OutcomeSkipped OutcomeKind = "skipped"
)

// Outcome is the dispatcher's sole return value for one dispatch attempt.
type Outcome struct {
	Kind   OutcomeKind
	Reason string
	TxID   string
}

func success(txID string) Outcome {
	return Outcome{Kind: OutcomeSuccess, TxID: txID}
}

func chainReject(reason, txID string) Outcome {
	return Outcome{Kind: OutcomeChainReject, Reason: reason, TxID: txID}
}

func transient(reason string) Outcome {
	return Outcome{Kind: OutcomeTransient, Reason: reason}
}

func skipped(reason string) Outcome {
	return Outcome{Kind: OutcomeSkipped, Reason: reason}
}
