// Package mailpipeline implements the end-to-end send/reply procedure (C6):
// resolve, gate, persist, archive, commit, return — spec §4.5.
package mailpipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jra3/agentmail/internal/apierr"
	"github.com/jra3/agentmail/internal/archive"
	"github.com/jra3/agentmail/internal/contact"
	"github.com/jra3/agentmail/internal/db"
	"github.com/jra3/agentmail/internal/model"
	"github.com/jra3/agentmail/internal/names"
	"github.com/jra3/agentmail/internal/reservation"
)

// Pipeline wires the persistence, archive, reservation, and contact layers
// together into the canonical send procedure.
type Pipeline struct {
	Store        *db.Store
	Writer       *archive.Writer
	Reservations *reservation.Engine
	Contacts     *contact.Engine
	Lookups      *LookupCache // optional; nil falls back to uncached Store lookups

	ReservationsEnforced bool
	AttachmentsDefault   model.AttachmentsPolicy
	ConvertImagesDefault bool
}

// SendRequest is the normalized input to Send. ProjectHumanKey must be an
// absolute path (spec §4.5 step 1: "relative input fails").
type SendRequest struct {
	ProjectHumanKey string
	SenderName      string
	To, CC, BCC     []string
	Subject         string
	BodyMD          string
	Importance      model.Importance
	AckRequired     bool
	ThreadKey       string
	Attachments     []archive.AttachmentInput
	AttachmentsPolicyOverride model.AttachmentsPolicy
	AutoHandshake   bool
}

// ReplyRequest specializes Send for a reply to an existing message (spec §4.5 "Reply semantics").
type ReplyRequest struct {
	ProjectHumanKey string
	SenderName      string
	MessageID       int64
	BodyMD          string
	To, CC, BCC     []string // optional overrides; default to=[original sender]
	Attachments     []archive.AttachmentInput
	AttachmentsPolicyOverride model.AttachmentsPolicy
	AutoHandshake   bool
}

// Delivery is one project's worth of a send: its own message row and commit.
type Delivery struct {
	ProjectSlug string
	MessageID   int64
	ThreadKey   string
	Subject     string
	Attachments []model.AttachmentMeta
	CommitHash  string
}

// SendResult is the top-level return value of Send/Reply.
type SendResult struct {
	Deliveries  []Delivery
	Attachments []model.AttachmentMeta // back-compat: populated only when len(Deliveries) == 1
}

// resolvedRecipient is one recipient after routing (spec §4.5 step 4).
type resolvedRecipient struct {
	kind        model.RecipientKind
	displayName string
	local       *model.Agent // set if local
	// external fields
	external     bool
	targetSlug   string
	targetProjID int64
	targetAgent  *model.Agent
}

// Send executes the canonical procedure (spec §4.5 steps 1-10).
func (p *Pipeline) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	if !filepath.IsAbs(req.ProjectHumanKey) {
		return nil, apierr.New(apierr.InvalidArgument, "project identifier must be an absolute path", nil)
	}

	project, err := p.Lookups.projectByHumanKey(ctx, p.Store.Queries(), req.ProjectHumanKey)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, apierr.New(apierr.NotFound, "project not registered: "+req.ProjectHumanKey, nil)
	}

	sender, err := p.Lookups.agentByName(ctx, p.Store.Queries(), project.ID, req.SenderName)
	if err != nil {
		return nil, err
	}

	resolved, missing, err := p.routeRecipients(ctx, project, req.To, req.CC, req.BCC)
	if err != nil {
		return nil, err
	}
	if len(missing) > 0 {
		return nil, apierr.New(apierr.RecipientNotFound, "one or more recipients could not be resolved",
			map[string]any{"missing": missing})
	}

	if err := p.gateContacts(ctx, project.ID, sender.ID, req.ThreadKey, req.AckRequired, resolved, req.AutoHandshake); err != nil {
		return nil, err
	}

	if p.ReservationsEnforced {
		if err := p.gateReservations(ctx, project, sender, resolved); err != nil {
			return nil, err
		}
	}

	localMsg, localRecipients, err := p.persistLocal(ctx, project, sender, req, resolved)
	if err != nil {
		return nil, err
	}
	localDelivery, err := p.archiveLocal(ctx, project.Slug, localMsg, sender.Name, localRecipients, req, "send_message")
	if err != nil {
		return nil, err
	}

	deliveries := []Delivery{*localDelivery}
	externalDeliveries, err := p.fanOutExternal(ctx, sender, req, resolved, localMsg)
	if err != nil {
		return nil, err
	}
	deliveries = append(deliveries, externalDeliveries...)

	result := &SendResult{Deliveries: deliveries}
	if len(deliveries) == 1 {
		result.Attachments = deliveries[0].Attachments
	}
	return result, nil
}

// Reply executes Send with the subject/thread/importance/ack inheritance
// rules from spec §4.5's reply specialization.
func (p *Pipeline) Reply(ctx context.Context, req ReplyRequest) (*SendResult, error) {
	project, err := p.Lookups.projectByHumanKey(ctx, p.Store.Queries(), req.ProjectHumanKey)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, apierr.New(apierr.NotFound, "project not registered: "+req.ProjectHumanKey, nil)
	}
	original, err := p.Store.Queries().GetMessage(ctx, project.ID, req.MessageID)
	if err != nil {
		return nil, err
	}
	originalSender, err := p.Store.Queries().GetAgentByID(ctx, original.SenderID)
	if err != nil {
		return nil, err
	}

	to := req.To
	if len(to) == 0 {
		to = []string{originalSender.Name}
	}

	sendReq := SendRequest{
		ProjectHumanKey:           req.ProjectHumanKey,
		SenderName:                req.SenderName,
		To:                        to,
		CC:                        req.CC,
		BCC:                       req.BCC,
		Subject:                   prefixReply(original.Subject),
		BodyMD:                    req.BodyMD,
		Importance:                original.Importance,
		AckRequired:               original.AckRequired,
		ThreadKey:                 EffectiveThreadKey(original),
		Attachments:               req.Attachments,
		AttachmentsPolicyOverride: req.AttachmentsPolicyOverride,
		AutoHandshake:             req.AutoHandshake,
	}
	return p.Send(ctx, sendReq)
}

// EffectiveThreadKey returns the externally visible thread identifier for a
// message: its persisted thread_id, or its own id stringified as a fallback
// (spec §4.5 step 8 / §8 scenario 4).
func EffectiveThreadKey(m *model.Message) string {
	if m.ThreadID != nil && *m.ThreadID != "" {
		return *m.ThreadID
	}
	return strconv.FormatInt(m.ID, 10)
}

// prefixReply prepends "Re: " unless the subject already starts with it,
// case-insensitively (spec §4.5: "prepended case-insensitively unless
// already present" — "Re: Re:" must never occur on repeated replies).
func prefixReply(subject string) string {
	trimmed := strings.TrimSpace(subject)
	if len(trimmed) >= 3 && strings.EqualFold(trimmed[:3], "re:") {
		return subject
	}
	return "Re: " + subject
}

// --- recipient routing (spec §4.5 steps 3-4) --------------------------------

func normalizeRecipients(raw []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, r := range raw {
		sanitized := names.Sanitize(r)
		if sanitized == "" {
			continue
		}
		key := strings.ToLower(sanitized)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, sanitized)
	}
	return out
}

// parseExternalForm recognizes "project:<slug>#<Agent>" and
// "<Agent>@<project-slug>" (spec §4.5 step 3).
func parseExternalForm(raw string) (slug, agentName string, external bool) {
	if strings.HasPrefix(raw, "project:") {
		rest := raw[len("project:"):]
		if idx := strings.Index(rest, "#"); idx >= 0 {
			return rest[:idx], rest[idx+1:], true
		}
		return "", "", false
	}
	if idx := strings.LastIndex(raw, "@"); idx > 0 {
		return raw[idx+1:], raw[:idx], true
	}
	return "", "", false
}

func (p *Pipeline) routeRecipients(ctx context.Context, project *model.Project, to, cc, bcc []string) ([]resolvedRecipient, []string, error) {
	var resolved []resolvedRecipient
	var missing []string

	resolveOne := func(raw string, kind model.RecipientKind) {
		slug, agentName, isExternal := parseExternalForm(raw)
		if isExternal && slug != project.Slug {
			targetProj, err := p.Lookups.projectBySlug(ctx, p.Store.Queries(), slug)
			if err != nil {
				missing = append(missing, raw)
				return
			}
			targetAgent, err := p.Lookups.agentByName(ctx, p.Store.Queries(), targetProj.ID, agentName)
			if err != nil {
				missing = append(missing, raw)
				return
			}
			resolved = append(resolved, resolvedRecipient{
				kind: kind, displayName: targetAgent.Name, external: true,
				targetSlug: targetProj.Slug, targetProjID: targetProj.ID, targetAgent: targetAgent,
			})
			return
		}
		localName := agentName
		if localName == "" {
			localName = raw
		}
		agent, err := p.Lookups.agentByName(ctx, p.Store.Queries(), project.ID, localName)
		if err != nil {
			missing = append(missing, raw)
			return
		}
		resolved = append(resolved, resolvedRecipient{kind: kind, displayName: agent.Name, local: agent})
	}

	for _, r := range normalizeRecipients(to) {
		resolveOne(r, model.RecipientTo)
	}
	for _, r := range normalizeRecipients(cc) {
		resolveOne(r, model.RecipientCC)
	}
	for _, r := range normalizeRecipients(bcc) {
		resolveOne(r, model.RecipientBCC)
	}
	return resolved, missing, nil
}

// --- contact gating (spec §4.5 step 5) --------------------------------------

func (p *Pipeline) gateContacts(ctx context.Context, projectID, senderID int64, threadKey string, ackRequired bool, resolved []resolvedRecipient, autoHandshake bool) error {
	for _, r := range resolved {
		if r.local == nil {
			continue
		}
		decision, err := p.Contacts.Evaluate(ctx, contact.Candidate{
			ProjectID: projectID, SenderID: senderID, Recipient: r.local, ThreadID: threadKey, AckRequired: ackRequired,
		})
		if err != nil {
			return fmt.Errorf("contact gating: %w", err)
		}
		if decision.Allowed {
			continue
		}
		if autoHandshake && decision.Err != nil && decision.Err.Kind == apierr.ContactRequired {
			if _, err := p.Contacts.RequestContact(ctx, projectID, senderID, projectID, r.local.ID, "auto-handshake"); err != nil {
				return fmt.Errorf("auto-handshake request: %w", err)
			}
			link, err := p.Store.Queries().GetLink(ctx, projectID, senderID, projectID, r.local.ID)
			if err == nil {
				if err := p.Contacts.RespondContact(ctx, link.ID, true, nil); err != nil {
					return fmt.Errorf("auto-handshake approve: %w", err)
				}
			}
			retry, err := p.Contacts.Evaluate(ctx, contact.Candidate{
				ProjectID: projectID, SenderID: senderID, Recipient: r.local, ThreadID: threadKey, AckRequired: ackRequired,
			})
			if err != nil {
				return fmt.Errorf("contact gating retry: %w", err)
			}
			if retry.Allowed {
				continue
			}
		}
		if decision.Err != nil {
			return decision.Err
		}
		return apierr.New(apierr.ContactRequired, "recipient policy denies this send", nil)
	}
	return nil
}
