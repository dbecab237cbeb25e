package archive

import (
	"encoding/json"
	"fmt"

	"github.com/jra3/agentmail/internal/marshal"
	"github.com/jra3/agentmail/internal/model"
)

// MessageFrontmatter is the typed shape of a message bundle's front-matter
// block (spec §6 "File formats"): id, thread id, project, from, to/cc/bcc,
// subject, importance, ack flag, creation timestamp, attachments. It's the
// concrete type buildFrontMatter hands to marshal.FromTyped instead of
// assembling the map[string]any Render expects by hand.
type MessageFrontmatter struct {
	ID          int64                  `yaml:"id"`
	ProjectID   int64                  `yaml:"project_id"`
	ThreadID    string                 `yaml:"thread_id"`
	From        string                 `yaml:"from"`
	To          []string               `yaml:"to,omitempty"`
	CC          []string               `yaml:"cc,omitempty"`
	BCC         []string               `yaml:"bcc,omitempty"`
	Subject     string                 `yaml:"subject"`
	Importance  string                 `yaml:"importance"`
	AckRequired bool                   `yaml:"ack_required"`
	CreatedTS   string                 `yaml:"created_ts"`
	Attachments []model.AttachmentMeta `yaml:"attachments,omitempty"`
}

// buildFrontMatter assembles the front-matter block every message bundle
// carries.
func buildFrontMatter(msg *model.Message, senderName string, namesByKind map[model.RecipientKind][]string) (*marshal.Document, error) {
	threadID := fmt.Sprintf("%d", msg.ID)
	if msg.ThreadID != nil {
		threadID = *msg.ThreadID
	}
	fm := MessageFrontmatter{
		ID:          msg.ID,
		ProjectID:   msg.ProjectID,
		ThreadID:    threadID,
		From:        senderName,
		To:          namesByKind[model.RecipientTo],
		CC:          namesByKind[model.RecipientCC],
		BCC:         namesByKind[model.RecipientBCC],
		Subject:     msg.Subject,
		Importance:  string(msg.Importance),
		AckRequired: msg.AckRequired,
		CreatedTS:   msg.CreatedTS.Format("2006-01-02T15:04:05Z07:00"),
		Attachments: msg.Attachments,
	}
	return marshal.FromTyped(fm, msg.BodyMD)
}

// AgentProfileRecord is the typed shape of an agent's profile.json.
type AgentProfileRecord struct {
	ID                int64  `json:"id"`
	Name              string `json:"name"`
	Program           string `json:"program"`
	Model             string `json:"model"`
	TaskDescription   string `json:"task_description"`
	InceptionTS       string `json:"inception_ts"`
	LastActiveTS      string `json:"last_active_ts"`
	ContactPolicy     string `json:"contact_policy"`
	AttachmentsPolicy string `json:"attachments_policy"`
}

func profileJSON(a *model.Agent) ([]byte, error) {
	rec := AgentProfileRecord{
		ID:                a.ID,
		Name:              a.Name,
		Program:           a.Program,
		Model:             a.Model,
		TaskDescription:   a.TaskDescription,
		InceptionTS:       a.InceptionTS.Format("2006-01-02T15:04:05Z07:00"),
		LastActiveTS:      a.LastActiveTS.Format("2006-01-02T15:04:05Z07:00"),
		ContactPolicy:     string(a.ContactPolicy),
		AttachmentsPolicy: string(a.AttachmentsPolicy),
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal agent profile: %w", err)
	}
	return data, nil
}

// ReservationRecord is the typed shape of a reservation's on-disk JSON
// artifact.
type ReservationRecord struct {
	ID          int64  `json:"id"`
	ProjectID   int64  `json:"project_id"`
	AgentID     int64  `json:"agent_id"`
	PathPattern string `json:"path_pattern"`
	Exclusive   bool   `json:"exclusive"`
	Reason      string `json:"reason"`
	CreatedTS   string `json:"created_ts"`
	ExpiresTS   string `json:"expires_ts"`
	ReleasedTS  string `json:"released_ts,omitempty"`
}

func reservationJSON(r *model.FileReservation) ([]byte, error) {
	rec := ReservationRecord{
		ID:          r.ID,
		ProjectID:   r.ProjectID,
		AgentID:     r.AgentID,
		PathPattern: r.PathPattern,
		Exclusive:   r.Exclusive,
		Reason:      r.Reason,
		CreatedTS:   r.CreatedTS.Format("2006-01-02T15:04:05Z07:00"),
		ExpiresTS:   r.ExpiresTS.Format("2006-01-02T15:04:05Z07:00"),
	}
	if r.ReleasedTS != nil {
		rec.ReleasedTS = r.ReleasedTS.Format("2006-01-02T15:04:05Z07:00")
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal reservation record: %w", err)
	}
	return data, nil
}
