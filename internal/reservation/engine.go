package reservation

import (
	"context"
	"fmt"
	"time"

	"github.com/jra3/agentmail/internal/apierr"
	"github.com/jra3/agentmail/internal/db"
	"github.com/jra3/agentmail/internal/model"
)

// MinTTL is the floor below which a requested TTL is silently clamped
// (spec §4.4: "TTL floor: 60 seconds; below floor the server silently clamps").
const MinTTL = 60 * time.Second

// Engine enforces advisory file reservations over a project's path patterns.
type Engine struct {
	store *db.Store
}

func New(store *db.Store) *Engine {
	return &Engine{store: store}
}

func clampTTL(ttl time.Duration) time.Duration {
	if ttl < MinTTL {
		return MinTTL
	}
	return ttl
}

// Grant is the result of Reserve: reservations are advisory (spec §4.3), so
// granting always succeeds — Conflicts lists the other agents' active leases
// the caller overlapped with, for it to decide whether to proceed or coordinate.
type Grant struct {
	Reservation *model.FileReservation
	Conflicts   []model.FileReservation
}

// Reserve creates a new reservation after sweeping stale leases. The write
// always succeeds; any conflicting active reservations held by other agents
// are returned alongside the grant rather than rejecting the call.
func (e *Engine) Reserve(ctx context.Context, projectID, agentID int64, pathPattern string, exclusive bool, reason string, ttl time.Duration) (*Grant, error) {
	if _, err := e.store.Queries().ExpireStaleReservations(ctx, projectID); err != nil {
		return nil, fmt.Errorf("expire stale reservations: %w", err)
	}

	active, err := e.store.Queries().ListActiveReservations(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("list active reservations: %w", err)
	}

	now := db.Now()
	var conflicts []model.FileReservation
	for _, r := range active {
		if Conflicts(*r, pathPattern, exclusive, agentID, now) {
			conflicts = append(conflicts, *r)
		}
	}

	r := &model.FileReservation{
		ProjectID:   projectID,
		AgentID:     agentID,
		PathPattern: pathPattern,
		Exclusive:   exclusive,
		Reason:      reason,
		ExpiresTS:   now.Add(clampTTL(ttl)),
	}
	created, err := e.store.Queries().CreateReservation(ctx, r)
	if err != nil {
		return nil, err
	}
	return &Grant{Reservation: created, Conflicts: conflicts}, nil
}

// Renew extends an existing reservation's expiry from max(now, current
// expiry) by extend, clamped to the same TTL floor as Reserve.
func (e *Engine) Renew(ctx context.Context, reservationID int64, extend time.Duration) (*model.FileReservation, error) {
	r, err := e.store.Queries().GetReservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if r.ReleasedTS != nil {
		return nil, apierr.New(apierr.NotFound, "reservation is not active", nil)
	}
	now := db.Now()
	base := r.ExpiresTS
	if now.After(base) {
		base = now
	}
	newExpiry := base.Add(clampTTL(extend))
	if err := e.store.Queries().RenewReservation(ctx, reservationID, newExpiry); err != nil {
		return nil, err
	}
	r.ExpiresTS = newExpiry
	return r, nil
}

// Release marks a reservation released; idempotent (releasing an
// already-released reservation is not an error).
func (e *Engine) Release(ctx context.Context, reservationID int64) error {
	return e.store.Queries().ReleaseReservation(ctx, reservationID)
}

// ConflictsForWrite checks a set of write-surface path patterns against a
// project's active reservations, excluding the writer's own agent, and
// returns the conflicting reservations (empty slice means clear to proceed).
// Used by the message pipeline's reservation-gating step (spec §4.5 step 6).
func (e *Engine) ConflictsForWrite(ctx context.Context, projectID, writerAgentID int64, surfaces []string) ([]model.FileReservation, error) {
	if _, err := e.store.Queries().ExpireStaleReservations(ctx, projectID); err != nil {
		return nil, fmt.Errorf("expire stale reservations: %w", err)
	}
	active, err := e.store.Queries().ListActiveReservations(ctx, projectID)
	if err != nil {
		return nil, err
	}
	now := db.Now()
	var conflicts []model.FileReservation
	for _, r := range active {
		if r.AgentID == writerAgentID {
			continue
		}
		if !r.Exclusive {
			continue
		}
		for _, surface := range surfaces {
			if Conflicts(*r, surface, false, writerAgentID, now) {
				conflicts = append(conflicts, *r)
				break
			}
		}
	}
	return conflicts, nil
}

// HasOverlappingActiveReservations reports whether agentA and agentB each
// hold at least one active reservation whose patterns overlap — the
// auto-allow heuristic in spec §4.4 (3).
func (e *Engine) HasOverlappingActiveReservations(ctx context.Context, projectID, agentA, agentB int64) (bool, error) {
	active, err := e.store.Queries().ListActiveReservations(ctx, projectID)
	if err != nil {
		return false, err
	}
	var aPatterns, bPatterns []string
	for _, r := range active {
		if !r.Active(db.Now()) {
			continue
		}
		switch r.AgentID {
		case agentA:
			aPatterns = append(aPatterns, r.PathPattern)
		case agentB:
			bPatterns = append(bPatterns, r.PathPattern)
		}
	}
	if len(aPatterns) == 0 || len(bPatterns) == 0 {
		return false, nil
	}
	return AnyPatternsOverlap(aPatterns, bPatterns), nil
}
