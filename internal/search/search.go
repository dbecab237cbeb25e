// Package search implements full-text search over message subject/body
// (C8): a thin pass-through to SQLite's FTS5 MATCH operator and bm25
// ranking, enriched with the sender name and effective thread key.
package search

import (
	"context"

	"github.com/jra3/agentmail/internal/db"
	"github.com/jra3/agentmail/internal/mailpipeline"
	"github.com/jra3/agentmail/internal/model"
)

// Service runs scoped full-text queries (spec §4.7).
type Service struct {
	Store *db.Store
}

func New(store *db.Store) *Service {
	return &Service{Store: store}
}

// Result is one match: id, subject, importance, ack-required flag, creation
// timestamp, thread key, and sender name, ranked lowest-bm25-first (best match).
type Result struct {
	ID          int64           `json:"id"`
	Subject     string          `json:"subject"`
	Importance  model.Importance `json:"importance"`
	AckRequired bool            `json:"ack_required"`
	CreatedTS   string          `json:"created_ts"`
	ThreadKey   string          `json:"thread_key"`
	SenderName  string          `json:"from"`
}

// SearchMessages runs ftsQuery (SQLite MATCH syntax: phrases, prefix via
// "term*", boolean AND/OR/NOT) scoped to projectID, passed through
// verbatim to the FTS5 virtual table.
func (s *Service) SearchMessages(ctx context.Context, projectID int64, ftsQuery string, limit int) ([]Result, error) {
	msgs, err := s.Store.Queries().SearchMessages(ctx, projectID, ftsQuery, limit)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(msgs))
	for _, m := range msgs {
		sender, err := s.Store.Queries().GetAgentByID(ctx, m.SenderID)
		senderName := "unknown"
		if err == nil {
			senderName = sender.Name
		}
		results = append(results, Result{
			ID:          m.ID,
			Subject:     m.Subject,
			Importance:  m.Importance,
			AckRequired: m.AckRequired,
			CreatedTS:   m.CreatedTS.Format("2006-01-02T15:04:05Z07:00"),
			ThreadKey:   mailpipeline.EffectiveThreadKey(m),
			SenderName:  senderName,
		})
	}
	return results, nil
}
