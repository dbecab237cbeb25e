package mailpipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/jra3/agentmail/internal/apierr"
	"github.com/jra3/agentmail/internal/archive"
	"github.com/jra3/agentmail/internal/db"
	"github.com/jra3/agentmail/internal/model"
)

// gateReservations implements spec §4.5 step 6: compute the on-disk
// surfaces a delivery will touch (sender outbox folder, each local
// recipient's inbox folder) and reject with FILE_RESERVATION_CONFLICT if
// any is covered by another agent's active exclusive reservation.
func (p *Pipeline) gateReservations(ctx context.Context, project *model.Project, sender *model.Agent, resolved []resolvedRecipient) error {
	now := db.Now()
	surfaces := []string{writeSurface(sender.Name, "outbox", now)}
	seen := map[string]bool{sender.Name: true}
	for _, r := range resolved {
		if r.local == nil || seen[r.local.Name] {
			continue
		}
		seen[r.local.Name] = true
		surfaces = append(surfaces, writeSurface(r.local.Name, "inbox", now))
	}

	conflicts, err := p.Reservations.ConflictsForWrite(ctx, project.ID, sender.ID, surfaces)
	if err != nil {
		return fmt.Errorf("reservation gating: %w", err)
	}
	if len(conflicts) == 0 {
		return nil
	}
	holders := make([]map[string]any, 0, len(conflicts))
	for _, c := range conflicts {
		holders = append(holders, map[string]any{
			"agent_id": c.AgentID, "path_pattern": c.PathPattern, "reservation_id": c.ID,
		})
	}
	return apierr.New(apierr.FileReservationConflict, "send surfaces overlap an active exclusive reservation",
		map[string]any{"holders": holders})
}

// writeSurface names the archive-relative directory a delivery will write
// into, as a glob pattern comparable against reservation path patterns
// (spec §4.5 step 6: "sender outbox folder for the current month, each
// recipient inbox folder").
func writeSurface(agentName, box string, ts time.Time) string {
	return fmt.Sprintf("agents/%s/%s/%04d/%02d/*", agentName, box, ts.Year(), ts.Month())
}

func threadIDPtr(key string) *string {
	if key == "" {
		return nil
	}
	v := key
	return &v
}

// persistLocal inserts the canonical message row that always lives in the
// sender's own project, with recipient rows for every resolved recipient
// (local and external alike — the invariant "at least one recipient per
// message" is trivially satisfied this way even when every recipient turns
// out to be external, and the canonical copy still lists everyone addressed).
func (p *Pipeline) persistLocal(ctx context.Context, project *model.Project, sender *model.Agent, req SendRequest, resolved []resolvedRecipient) (*model.Message, []db.NamedRecipient, error) {
	if len(resolved) == 0 {
		return nil, nil, apierr.New(apierr.InvalidArgument, "at least one recipient is required", nil)
	}

	msg := &model.Message{
		ProjectID:   project.ID,
		SenderID:    sender.ID,
		ThreadID:    threadIDPtr(req.ThreadKey),
		Subject:     req.Subject,
		BodyMD:      req.BodyMD,
		Importance:  req.Importance.Normalize(),
		AckRequired: req.AckRequired,
	}

	recipients := make([]db.Recipient, 0, len(resolved))
	for _, r := range resolved {
		id := r.targetAgent.ID
		if r.local != nil {
			id = r.local.ID
		}
		recipients = append(recipients, db.Recipient{AgentID: id, Kind: r.kind})
	}

	var created *model.Message
	err := p.Store.WithTx(ctx, func(q *db.Queries) error {
		var txErr error
		created, txErr = q.CreateMessage(ctx, msg, recipients)
		return txErr
	})
	if err != nil {
		return nil, nil, fmt.Errorf("persist message: %w", err)
	}

	named, err := p.Store.Queries().ListRecipientsForMessage(ctx, created.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("load recipients: %w", err)
	}
	return created, named, nil
}

func namesByKind(named []db.NamedRecipient) map[model.RecipientKind][]string {
	out := map[model.RecipientKind][]string{}
	for _, n := range named {
		out[n.Kind] = append(out[n.Kind], n.Name)
	}
	return out
}

// archiveLocal writes the sender's canonical/outbox copy plus an inbox copy
// for every LOCAL recipient, and commits (spec §4.5 step 9).
func (p *Pipeline) archiveLocal(ctx context.Context, slug string, msg *model.Message, senderName string, named []db.NamedRecipient, req SendRequest, operation string) (*Delivery, error) {
	copies := []archive.RecipientCopy{{AgentName: senderName, Outbox: true}}
	seen := map[string]bool{senderName: true}
	for _, n := range named {
		if seen[n.Name] {
			continue
		}
		seen[n.Name] = true
		copies = append(copies, archive.RecipientCopy{AgentName: n.Name})
	}

	policy := req.AttachmentsPolicyOverride
	result, err := p.Writer.WriteMessage(ctx, slug, msg, senderName, copies, namesByKind(named), req.Attachments, policy, p.ConvertImagesDefault, operation)
	if err != nil {
		return nil, err
	}
	return &Delivery{
		ProjectSlug: slug, MessageID: msg.ID, ThreadKey: EffectiveThreadKey(msg),
		Subject: msg.Subject, Attachments: result.Attachments, CommitHash: result.CommitHash,
	}, nil
}

// fanOutExternal delivers to every external target project, each getting
// its own message row and its own commit (spec §9 open question: "a
// multi-project fan-out produces one commit per target project's archive").
func (p *Pipeline) fanOutExternal(ctx context.Context, sender *model.Agent, req SendRequest, resolved []resolvedRecipient, localMsg *model.Message) ([]Delivery, error) {
	groups := map[string][]resolvedRecipient{}
	var order []string
	for _, r := range resolved {
		if !r.external {
			continue
		}
		if _, ok := groups[r.targetSlug]; !ok {
			order = append(order, r.targetSlug)
		}
		groups[r.targetSlug] = append(groups[r.targetSlug], r)
	}

	var deliveries []Delivery
	for _, slug := range order {
		group := groups[slug]
		msg := &model.Message{
			ProjectID:   group[0].targetProjID,
			SenderID:    sender.ID,
			ThreadID:    localMsg.ThreadID,
			Subject:     req.Subject,
			BodyMD:      req.BodyMD,
			Importance:  req.Importance.Normalize(),
			AckRequired: req.AckRequired,
		}
		recipients := make([]db.Recipient, 0, len(group))
		for _, r := range group {
			recipients = append(recipients, db.Recipient{AgentID: r.targetAgent.ID, Kind: r.kind})
		}

		var created *model.Message
		err := p.Store.WithTx(ctx, func(q *db.Queries) error {
			var txErr error
			created, txErr = q.CreateMessage(ctx, msg, recipients)
			return txErr
		})
		if err != nil {
			return nil, fmt.Errorf("persist external message for %s: %w", slug, err)
		}
		named, err := p.Store.Queries().ListRecipientsForMessage(ctx, created.ID)
		if err != nil {
			return nil, fmt.Errorf("load external recipients for %s: %w", slug, err)
		}

		copies := make([]archive.RecipientCopy, 0, len(named))
		seen := map[string]bool{}
		for _, n := range named {
			if seen[n.Name] {
				continue
			}
			seen[n.Name] = true
			copies = append(copies, archive.RecipientCopy{AgentName: n.Name})
		}

		result, err := p.Writer.WriteMessage(ctx, slug, created, sender.Name, copies, namesByKind(named), req.Attachments, req.AttachmentsPolicyOverride, p.ConvertImagesDefault, "send_message (external)")
		if err != nil {
			return nil, fmt.Errorf("archive external message for %s: %w", slug, err)
		}
		deliveries = append(deliveries, Delivery{
			ProjectSlug: slug, MessageID: created.ID, ThreadKey: EffectiveThreadKey(created),
			Subject: created.Subject, Attachments: result.Attachments, CommitHash: result.CommitHash,
		})
	}
	return deliveries, nil
}
