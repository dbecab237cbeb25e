// Package contact implements the inbound contact-policy engine (C5): the
// per-agent policy table, the auto-allow heuristics available under the
// "auto" policy, and the pending/approved/blocked AgentLink state machine.
package contact

import (
	"context"
	"fmt"
	"time"

	"github.com/jra3/agentmail/internal/apierr"
	"github.com/jra3/agentmail/internal/db"
	"github.com/jra3/agentmail/internal/model"
	"github.com/jra3/agentmail/internal/reservation"
)

// Engine decides, for a candidate send from a sender to a recipient, whether
// delivery may proceed (spec §4.4).
type Engine struct {
	store        *db.Store
	reservations *reservation.Engine
	enforced     bool
	contactTTL   time.Duration
}

func New(store *db.Store, reservations *reservation.Engine, enforced bool, contactTTL time.Duration) *Engine {
	return &Engine{store: store, reservations: reservations, enforced: enforced, contactTTL: contactTTL}
}

// Candidate describes one gating decision: a send from sender to recipient,
// optionally within an existing thread, optionally itself an ack-required
// introduction (which bypasses gating per heuristic 5).
type Candidate struct {
	ProjectID   int64
	SenderID    int64
	Recipient   *model.Agent
	ThreadID    string // empty if this is a top-level send
	AckRequired bool
}

// Decision is the result of Evaluate.
type Decision struct {
	Allowed bool
	Reason  string // which rule allowed/denied the send, for logging/debugging
	Err     *apierr.Error
}

// Evaluate applies the policy table and, when the recipient's policy is
// "auto", the auto-allow heuristics, in the order given in spec §4.4.
func (e *Engine) Evaluate(ctx context.Context, c Candidate) (Decision, error) {
	if c.AckRequired {
		// Heuristic 5: an ack-required message is itself the contact
		// request and always bypasses gating, regardless of policy.
		return Decision{Allowed: true, Reason: "ack_required_bypass"}, nil
	}

	policy := c.Recipient.ContactPolicy
	if !policy.Valid() {
		policy = model.DefaultContactPolicy
	}

	switch policy {
	case model.PolicyOpen:
		return Decision{Allowed: true, Reason: "open"}, nil
	case model.PolicyBlockAll:
		return Decision{Allowed: false, Reason: "block_all", Err: apierr.New(apierr.ContactBlocked,
			fmt.Sprintf("%s is not accepting messages", c.Recipient.Name), nil)}, nil
	case model.PolicyContactsOnly, model.PolicyAuto:
		if !e.enforced {
			return Decision{Allowed: true, Reason: "enforcement_disabled"}, nil
		}
		if c.SenderID == c.Recipient.ID {
			return Decision{Allowed: true, Reason: "self"}, nil
		}

		link, err := e.store.Queries().GetLink(ctx, c.ProjectID, c.SenderID, c.ProjectID, c.Recipient.ID)
		var ae *apierr.Error
		switch {
		case err == nil && link.Status == model.LinkBlocked:
			// Blocked links override every auto-allow heuristic (spec §4.4).
			return Decision{Allowed: false, Reason: "blocked_link", Err: apierr.New(apierr.ContactRequired,
				fmt.Sprintf("%s has blocked contact from this agent", c.Recipient.Name), nil)}, nil
		case err == nil && link.Status == model.LinkApproved && link.Unexpired(db.Now()):
			return Decision{Allowed: true, Reason: "approved_link"}, nil
		case err != nil && !isNotFound(err, &ae):
			return Decision{}, err
		}

		if policy == model.PolicyAuto {
			if allowed, reason, err := e.autoAllow(ctx, c); err != nil {
				return Decision{}, err
			} else if allowed {
				return Decision{Allowed: true, Reason: reason}, nil
			}
		}

		return Decision{Allowed: false, Reason: "contact_required", Err: apierr.New(apierr.ContactRequired,
			fmt.Sprintf("%s requires an approved contact link before messaging", c.Recipient.Name),
			map[string]any{"recipient": c.Recipient.Name})}, nil
	default:
		return Decision{Allowed: true, Reason: "unrecognized_policy_defaulted_open"}, nil
	}
}

// autoAllow runs heuristics 2-4 (self and ack-required are handled by the
// caller before reaching here).
func (e *Engine) autoAllow(ctx context.Context, c Candidate) (bool, string, error) {
	if c.ThreadID != "" {
		ok, err := e.store.Queries().ThreadHasParticipant(ctx, c.ProjectID, c.ThreadID, c.Recipient.ID)
		if err != nil {
			return false, "", fmt.Errorf("thread participant check: %w", err)
		}
		if ok {
			return true, "thread_participant", nil
		}
	}

	overlap, err := e.reservations.HasOverlappingActiveReservations(ctx, c.ProjectID, c.SenderID, c.Recipient.ID)
	if err != nil {
		return false, "", fmt.Errorf("reservation overlap check: %w", err)
	}
	if overlap {
		return true, "overlapping_reservation", nil
	}

	if e.contactTTL > 0 {
		since := db.Now().Add(-e.contactTTL)
		recent, err := e.store.Queries().HasRecentContact(ctx, c.ProjectID, c.SenderID, c.Recipient.ID, since)
		if err != nil {
			return false, "", fmt.Errorf("recent contact check: %w", err)
		}
		if recent {
			return true, "recent_prior_contact", nil
		}
		// Contact may have originated in the other direction too.
		recentReverse, err := e.store.Queries().HasRecentContact(ctx, c.ProjectID, c.Recipient.ID, c.SenderID, since)
		if err != nil {
			return false, "", fmt.Errorf("recent contact check: %w", err)
		}
		if recentReverse {
			return true, "recent_prior_contact", nil
		}
	}

	return false, "", nil
}

func isNotFound(err error, ae **apierr.Error) bool {
	if e, ok := err.(*apierr.Error); ok {
		*ae = e
		return e.Kind == apierr.NotFound
	}
	return false
}

// RequestContact creates or refreshes a pending link from (aProject,aAgent)
// to (bProject,bAgent) (spec §4.4: "A contact request creates or refreshes a
// pending link"). The caller is responsible for sending the ack-required
// introduction message that accompanies the request.
func (e *Engine) RequestContact(ctx context.Context, aProjectID, aAgentID, bProjectID, bAgentID int64, reason string) (*model.AgentLink, error) {
	return e.store.Queries().UpsertLinkRequest(ctx, aProjectID, aAgentID, bProjectID, bAgentID, reason)
}

// RespondContact transitions a pending (or existing) link to approved or
// blocked. expiresAt is nil for an unscoped approval.
func (e *Engine) RespondContact(ctx context.Context, linkID int64, approve bool, expiresAt *time.Time) error {
	status := model.LinkBlocked
	if approve {
		status = model.LinkApproved
	}
	return e.store.Queries().SetLinkStatus(ctx, linkID, status, expiresAt)
}

// ListContacts returns every link involving (projectID, agentID) as either endpoint.
func (e *Engine) ListContacts(ctx context.Context, projectID, agentID int64) ([]*model.AgentLink, error) {
	return e.store.Queries().ListLinksForAgent(ctx, projectID, agentID)
}
