// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package tracker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrLeaseLost is returned by ReleaseLease and ExtendLease when the lease
// row no longer carries the caller's token: it expired and another worker
// stole it, or it was already released.
var ErrLeaseLost = errors.New("lease not held")

// Lease is exclusive, time-bounded ownership of one identifier. Ownership
// is proven by the token; a crashed worker's lease simply expires and
// becomes stealable, no cleanup required.
type Lease struct {
	ID         string
	Token      string
	WorkerID   string
	AcquiredAt time.Time
	ExpiresAt  time.Time
}

// AcquireLease attempts to take the lease for id. It succeeds when no
// lease row exists or the existing one has expired; a live lease held by
// anyone (including the same worker) is not stolen. The second return
// reports whether the lease was acquired.
func (s *Store) AcquireLease(ctx context.Context, id, workerID string, ttl time.Duration) (Lease, bool, error) {
	now := time.Now().UTC()
	lease := Lease{
		ID:         id,
		Token:      uuid.NewString(),
		WorkerID:   workerID,
		AcquiredAt: now,
		ExpiresAt:  now.Add(ttl),
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO leases (id, token, worker_id, acquired_at_ms, expires_at_ms)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			token=excluded.token, worker_id=excluded.worker_id,
			acquired_at_ms=excluded.acquired_at_ms, expires_at_ms=excluded.expires_at_ms
		 WHERE leases.expires_at_ms <= excluded.acquired_at_ms`,
		id, lease.Token, workerID, now.UnixMilli(), lease.ExpiresAt.UnixMilli(),
	)
	if err != nil {
		return Lease{}, false, fmt.Errorf("acquiring lease for %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Lease{}, false, fmt.Errorf("acquiring lease for %s: %w", id, err)
	}
	if n == 0 {
		return Lease{}, false, nil
	}
	return lease, true, nil
}

// ReleaseLease removes the lease if the token still matches. Returns
// ErrLeaseLost when it does not; the thief's lease is left alone.
func (s *Store) ReleaseLease(ctx context.Context, lease Lease) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM leases WHERE id = ? AND token = ?`, lease.ID, lease.Token)
	if err != nil {
		return fmt.Errorf("releasing lease for %s: %w", lease.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("releasing lease for %s: %w", lease.ID, err)
	}
	if n == 0 {
		return ErrLeaseLost
	}
	return nil
}

// ExtendLease pushes the expiry of a still-live lease forward by ttl from
// now. An expired or stolen lease cannot be extended.
func (s *Store) ExtendLease(ctx context.Context, lease *Lease, ttl time.Duration) error {
	now := time.Now().UTC()
	expires := now.Add(ttl)

	res, err := s.db.ExecContext(ctx,
		`UPDATE leases SET expires_at_ms = ?
		 WHERE id = ? AND token = ? AND expires_at_ms > ?`,
		expires.UnixMilli(), lease.ID, lease.Token, now.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("extending lease for %s: %w", lease.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("extending lease for %s: %w", lease.ID, err)
	}
	if n == 0 {
		return ErrLeaseLost
	}
	lease.ExpiresAt = expires
	return nil
}

// ActiveLeases returns leases that have not yet expired, ordered by id.
func (s *Store) ActiveLeases(ctx context.Context) ([]Lease, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, token, worker_id, acquired_at_ms, expires_at_ms
		 FROM leases WHERE expires_at_ms > ? ORDER BY id`,
		time.Now().UTC().UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("listing leases: %w", err)
	}
	defer rows.Close()

	var leases []Lease
	for rows.Next() {
		var (
			l                     Lease
			acquiredMS, expiresMS int64
		)
		if err := rows.Scan(&l.ID, &l.Token, &l.WorkerID, &acquiredMS, &expiresMS); err != nil {
			return nil, fmt.Errorf("scanning lease: %w", err)
		}
		l.AcquiredAt = time.UnixMilli(acquiredMS).UTC()
		l.ExpiresAt = time.UnixMilli(expiresMS).UTC()
		leases = append(leases, l)
	}
	return leases, rows.Err()
}
