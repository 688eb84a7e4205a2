package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Store is the authoritative, Postgres-backed subscription store plus its
// in-memory secondary indices. Every mutation commits to Postgres before the
// indices are updated, so on restart the indices can always be rebuilt from
// the table (invariant 3: re-established before any externally triggered
// operation is serviced).
type Store struct {
	db     *sql.DB
	logger *zap.Logger

	mu      sync.RWMutex
	byID    map[string]*Subscription
	due     *dueIndex // Active subscriptions only, keyed on NextExecutionAt
	active  map[string]map[string]struct{} // principal -> set of active SubIds
	totalActive int
}

// New loads every subscription from Postgres and rebuilds the in-memory
// indices, then returns a ready-to-serve Store.
func New(ctx context.Context, db *sql.DB, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		db:     db,
		logger: logger,
		byID:   make(map[string]*Subscription),
		due:    newDueIndex(),
		active: make(map[string]map[string]struct{}),
	}
	if err := s.rebuildIndices(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) rebuildIndices(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, selectAllColumns+` FROM subscriptions`)
	if err != nil {
		return fmt.Errorf("store: rebuild indices: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return fmt.Errorf("store: rebuild indices: %w", err)
		}
		s.indexLocked(sub)
	}
	s.logger.Info("store indices rebuilt", zap.Int("subscriptions", len(s.byID)))
	return rows.Err()
}

// indexLocked updates the in-memory indices for sub. Caller must hold s.mu.
func (s *Store) indexLocked(sub *Subscription) {
	if prev, ok := s.byID[sub.SubID]; ok && prev.Status == StatusActive {
		if set, ok := s.active[prev.OwnerPrincipal]; ok {
			if _, wasActive := set[sub.SubID]; wasActive {
				delete(set, sub.SubID)
				s.totalActive--
			}
		}
	}

	s.byID[sub.SubID] = sub

	if sub.Status == StatusActive {
		if _, ok := s.active[sub.OwnerPrincipal]; !ok {
			s.active[sub.OwnerPrincipal] = make(map[string]struct{})
		}
		s.active[sub.OwnerPrincipal][sub.SubID] = struct{}{}
		s.totalActive++
		s.due.Upsert(sub.SubID, sub.NextExecutionAt)
	} else {
		s.due.Remove(sub.SubID)
	}
}

func (s *Store) unindexLocked(subID string) {
	sub, ok := s.byID[subID]
	if !ok {
		return
	}
	if sub.Status == StatusActive {
		if set, ok := s.active[sub.OwnerPrincipal]; ok {
			delete(set, subID)
			s.totalActive--
		}
	}
	s.due.Remove(subID)
	delete(s.byID, subID)
}

const selectAllColumns = `SELECT sub_id, settlement_contract, token_mint, payer, merchant,
	amount_hint, interval_seconds, reminder_days_before, status, next_execution_at,
	last_triggered_at, trigger_count, failed_payment_count, last_failure_at, last_error,
	created_at, updated_at, owner_principal`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSubscription(r rowScanner) (*Subscription, error) {
	var sub Subscription
	var lastTriggeredAt, lastFailureAt sql.NullInt64
	err := r.Scan(
		&sub.SubID, &sub.SettlementContract, &sub.TokenMint, &sub.Payer, &sub.Merchant,
		&sub.AmountHint, &sub.IntervalSeconds, &sub.ReminderDaysBefore, &sub.Status, &sub.NextExecutionAt,
		&lastTriggeredAt, &sub.TriggerCount, &sub.FailedPaymentCount, &lastFailureAt, &sub.LastError,
		&sub.CreatedAt, &sub.UpdatedAt, &sub.OwnerPrincipal,
	)
	if err != nil {
		return nil, err
	}
	if lastTriggeredAt.Valid {
		sub.LastTriggeredAt = &lastTriggeredAt.Int64
	}
	if lastFailureAt.Valid {
		sub.LastFailureAt = &lastFailureAt.Int64
	}
	return &sub, nil
}

// Put inserts a brand-new subscription. Returns ErrAlreadyExists if the
// SubId is already taken (invariant 1).
func (s *Store) Put(ctx context.Context, sub *Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[sub.SubID]; exists {
		return ErrAlreadyExists
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO subscriptions (sub_id, settlement_contract, token_mint, payer, merchant,
			amount_hint, interval_seconds, reminder_days_before, status, next_execution_at,
			last_triggered_at, trigger_count, failed_payment_count, last_failure_at, last_error,
			created_at, updated_at, owner_principal)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`,
		sub.SubID, sub.SettlementContract, sub.TokenMint, sub.Payer, sub.Merchant,
		sub.AmountHint, sub.IntervalSeconds, sub.ReminderDaysBefore, sub.Status, sub.NextExecutionAt,
		nullableInt64(sub.LastTriggeredAt), sub.TriggerCount, sub.FailedPaymentCount,
		nullableInt64(sub.LastFailureAt), sub.LastError, sub.CreatedAt, sub.UpdatedAt, sub.OwnerPrincipal,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("store: put %s: %w", sub.SubID, err)
	}

	cp := *sub
	s.indexLocked(&cp)
	return nil
}

// Get returns a copy of the subscription identified by subID.
func (s *Store) Get(subID string) (*Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.byID[subID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *sub
	return &cp, nil
}

// Exists reports whether subID is already present, for the Validator's
// uniqueness check ahead of Put.
func (s *Store) Exists(subID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byID[subID]
	return ok
}

// Update persists an in-place mutation of an already-stored subscription. It
// re-reads nothing on the caller's behalf: the caller (Scheduler, Dispatcher
// outcome application, Admin) is responsible for having re-read the row
// before crossing a suspension point.
func (s *Store) Update(ctx context.Context, sub *Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[sub.SubID]; !ok {
		return ErrNotFound
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE subscriptions SET
			settlement_contract=$2, token_mint=$3, payer=$4, merchant=$5, amount_hint=$6,
			interval_seconds=$7, reminder_days_before=$8, status=$9, next_execution_at=$10,
			last_triggered_at=$11, trigger_count=$12, failed_payment_count=$13,
			last_failure_at=$14, last_error=$15, updated_at=$16, owner_principal=$17
		WHERE sub_id=$1`,
		sub.SubID, sub.SettlementContract, sub.TokenMint, sub.Payer, sub.Merchant, sub.AmountHint,
		sub.IntervalSeconds, sub.ReminderDaysBefore, sub.Status, sub.NextExecutionAt,
		nullableInt64(sub.LastTriggeredAt), sub.TriggerCount, sub.FailedPaymentCount,
		nullableInt64(sub.LastFailureAt), sub.LastError, sub.UpdatedAt, sub.OwnerPrincipal,
	)
	if err != nil {
		return fmt.Errorf("store: update %s: %w", sub.SubID, err)
	}

	cp := *sub
	s.indexLocked(&cp)
	return nil
}

// Remove deletes subID outright. Normal cancellation only flips status, it
// never removes the row; CleanupOldSubscriptions deletes with its own query
// and does not call Remove.
func (s *Store) Remove(ctx context.Context, subID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[subID]; !ok {
		return ErrNotFound
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE sub_id=$1`, subID); err != nil {
		return fmt.Errorf("store: remove %s: %w", subID, err)
	}
	s.unindexLocked(subID)
	return nil
}

// Overdue returns every Active subscription whose NextExecutionAt <= now.
func (s *Store) Overdue(now int64) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.due.PeekDue(now, 0)
}

// NextDue returns up to limit SubIds in ascending NextExecutionAt order.
// limit <= 0 means unbounded.
func (s *Store) NextDue(limit int) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.due.Next(limit)
}

// ListAllActive returns every currently Active subscription, across all
// principals. Used by Admin's EmergencyPauseAll; not paginated since the
// global active count is bounded by MaxTotalActive.
func (s *Store) ListAllActive() []*Subscription {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Subscription, 0, s.totalActive)
	for _, set := range s.active {
		for subID := range set {
			cp := *s.byID[subID]
			out = append(out, &cp)
		}
	}
	return out
}

// ActiveCount reports the per-principal and global active subscription
// counts the Validator needs to enforce MaxPerPrincipal / MaxTotalActive.
func (s *Store) ActiveCount(principal string) (perPrincipal, total int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.active[principal]), s.totalActive
}

// ListByPrincipal returns up to limit subscriptions owned by principal,
// ordered by CreatedAt ascending, starting after cursor (exclusive).
func (s *Store) ListByPrincipal(ctx context.Context, principal string, limit int, cursor *Cursor) ([]*Subscription, error) {
	query := selectAllColumns + ` FROM subscriptions WHERE owner_principal = $1`
	args := []interface{}{principal}
	if cursor != nil {
		query += ` AND (created_at, sub_id) > ($2, $3)`
		args = append(args, cursor.CreatedAt, cursor.SubID)
	}
	query += ` ORDER BY created_at ASC, sub_id ASC LIMIT $` + placeholderIndex(len(args)+1)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list by principal %s: %w", principal, err)
	}
	defer rows.Close()

	var out []*Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("store: list by principal %s: %w", principal, err)
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

// CleanupOldSubscriptions deletes every Cancelled or Expired subscription
// whose UpdatedAt predates olderThan, and returns the count removed.
func (s *Store) CleanupOldSubscriptions(ctx context.Context, olderThan int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT sub_id FROM subscriptions
		WHERE status IN ($1, $2) AND updated_at < $3`,
		StatusCancelled, StatusExpired, olderThan)
	if err != nil {
		return 0, fmt.Errorf("store: cleanup: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("store: cleanup: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()

	if len(ids) == 0 {
		return 0, nil
	}

	if _, err := s.db.ExecContext(ctx, `
		DELETE FROM subscriptions WHERE status IN ($1, $2) AND updated_at < $3`,
		StatusCancelled, StatusExpired, olderThan); err != nil {
		return 0, fmt.Errorf("store: cleanup delete: %w", err)
	}

	for _, id := range ids {
		s.unindexLocked(id)
	}
	return len(ids), nil
}

// PutEncryptedMetadata stores (or replaces) the opaque encrypted blob
// associated with subID. The store never decrypts it; the blob is stored
// exactly as the caller supplies it.
func (s *Store) PutEncryptedMetadata(ctx context.Context, subID string, blob []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO encrypted_metadata (sub_id, blob, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (sub_id) DO UPDATE SET blob = EXCLUDED.blob, updated_at = EXCLUDED.updated_at`,
		subID, blob, nowUnix())
	if err != nil {
		return fmt.Errorf("store: put encrypted metadata %s: %w", subID, err)
	}
	return nil
}

// GetEncryptedMetadata returns the stored blob for subID, or ErrNotFound.
func (s *Store) GetEncryptedMetadata(ctx context.Context, subID string) ([]byte, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT blob FROM encrypted_metadata WHERE sub_id = $1`, subID,
	).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get encrypted metadata %s: %w", subID, err)
	}
	return blob, nil
}

// DeleteEncryptedMetadata removes subID's blob, if any. It is a no-op, not
// an error, when no blob is stored (metadata is optional).
func (s *Store) DeleteEncryptedMetadata(ctx context.Context, subID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM encrypted_metadata WHERE sub_id = $1`, subID); err != nil {
		return fmt.Errorf("store: delete encrypted metadata %s: %w", subID, err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func nullableInt64(v *int64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func isUniqueViolation(err error) bool {
	// lib/pq surfaces unique-violation as error code 23505; string-match to
	// avoid importing the driver's pq.Error type into the public API.
	return err != nil && containsAny(err.Error(), "23505", "duplicate key value")
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if len(sub) <= len(s) {
			for i := 0; i+len(sub) <= len(s); i++ {
				if s[i:i+len(sub)] == sub {
					return true
				}
			}
		}
	}
	return false
}

func placeholderIndex(i int) string {
	return fmt.Sprintf("%d", i)
}
