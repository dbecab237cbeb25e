package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jra3/agentmail/internal/apierr"
	"github.com/jra3/agentmail/internal/model"
)

// Queries exposes the hand-written CRUD surface over either the pooled *sql.DB
// (read paths) or a *sql.Tx (inside Store.WithTx). execer picks whichever is set.
type Queries struct {
	db *sql.DB
	tx *sql.Tx
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (q *Queries) x() execer {
	if q.tx != nil {
		return q.tx
	}
	return q.db
}

// --- projects -------------------------------------------------------------

// CreateProject inserts a new project row. Callers must have already checked
// for slug collisions against a different human_key (spec Open Question:
// ensure_project rejects the second registration with InvalidArgument).
func (q *Queries) CreateProject(ctx context.Context, slug, humanKey string) (*model.Project, error) {
	now := Now()
	res, err := q.x().ExecContext(ctx,
		`INSERT INTO projects (slug, human_key, created_at) VALUES (?, ?, ?)`,
		slug, humanKey, now)
	if err != nil {
		return nil, fmt.Errorf("insert project: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &model.Project{ID: id, Slug: slug, HumanKey: humanKey, CreatedAt: now}, nil
}

func scanProject(row interface {
	Scan(dest ...any) error
}) (*model.Project, error) {
	var p model.Project
	if err := row.Scan(&p.ID, &p.Slug, &p.HumanKey, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	return &p, nil
}

// GetProjectBySlug returns the project with the given slug, or a NotFound apierr.
func (q *Queries) GetProjectBySlug(ctx context.Context, slug string) (*model.Project, error) {
	row := q.x().QueryRowContext(ctx,
		`SELECT id, slug, human_key, created_at FROM projects WHERE slug = ?`, slug)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apierr.New(apierr.NotFound, "project not found: "+slug, nil)
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// GetProjectByHumanKey returns the project registered under the given absolute path.
func (q *Queries) GetProjectByHumanKey(ctx context.Context, humanKey string) (*model.Project, error) {
	row := q.x().QueryRowContext(ctx,
		`SELECT id, slug, human_key, created_at FROM projects WHERE human_key = ?`, humanKey)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// GetProjectBySlugIfDifferentHumanKey supports the slug-collision check: it
// returns the project owning slug only when its human_key differs from want.
func (q *Queries) GetProjectBySlugIfDifferentHumanKey(ctx context.Context, slug, want string) (*model.Project, error) {
	p, err := q.GetProjectBySlug(ctx, slug)
	if err != nil {
		var ae *apierr.Error
		if errors.As(err, &ae) && ae.Kind == apierr.NotFound {
			return nil, nil
		}
		return nil, err
	}
	if p.HumanKey == want {
		return nil, nil
	}
	return p, nil
}

// ListProjects returns all registered projects ordered by creation time.
func (q *Queries) ListProjects(ctx context.Context) ([]*model.Project, error) {
	rows, err := q.x().QueryContext(ctx, `SELECT id, slug, human_key, created_at FROM projects ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// --- agents -----------------------------------------------------------------

func scanAgent(row interface{ Scan(dest ...any) error }) (*model.Agent, error) {
	var a model.Agent
	if err := row.Scan(&a.ID, &a.ProjectID, &a.Name, new(string), &a.Program, &a.Model,
		&a.TaskDescription, &a.InceptionTS, &a.LastActiveTS, &a.ContactPolicy, &a.AttachmentsPolicy); err != nil {
		return nil, err
	}
	a.InceptionTS = a.InceptionTS.UTC()
	a.LastActiveTS = a.LastActiveTS.UTC()
	return &a, nil
}

// CreateOrGetAgent registers a new agent persona, or returns the existing one
// if (project_id, lower(name)) is already taken.
func (q *Queries) CreateOrGetAgent(ctx context.Context, projectID int64, name, program, modelName, taskDescription string) (*model.Agent, bool, error) {
	existing, err := q.GetAgentByName(ctx, projectID, name)
	if err == nil {
		return existing, false, nil
	}
	var ae *apierr.Error
	if !errors.As(err, &ae) || ae.Kind != apierr.RecipientNotFound {
		return nil, false, err
	}

	now := Now()
	nameLower := lower(name)
	res, execErr := q.x().ExecContext(ctx, `
		INSERT INTO agents (project_id, name, name_lower, program, model, task_description,
			inception_ts, last_active_ts, contact_policy, attachments_policy)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		projectID, name, nameLower, program, modelName, taskDescription,
		now, now, model.DefaultContactPolicy, model.DefaultAttachmentsPolicy)
	if execErr != nil {
		return nil, false, fmt.Errorf("insert agent: %w", execErr)
	}
	id, execErr := res.LastInsertId()
	if execErr != nil {
		return nil, false, execErr
	}
	return &model.Agent{
		ID: id, ProjectID: projectID, Name: name, Program: program, Model: modelName,
		TaskDescription: taskDescription, InceptionTS: now, LastActiveTS: now,
		ContactPolicy: model.DefaultContactPolicy, AttachmentsPolicy: model.DefaultAttachmentsPolicy,
	}, true, nil
}

// GetAgentByName looks up an agent case-insensitively within a project.
func (q *Queries) GetAgentByName(ctx context.Context, projectID int64, name string) (*model.Agent, error) {
	row := q.x().QueryRowContext(ctx, `
		SELECT id, project_id, name, name_lower, program, model, task_description,
			inception_ts, last_active_ts, contact_policy, attachments_policy
		FROM agents WHERE project_id = ? AND name_lower = ?`, projectID, lower(name))
	a, err := scanAgent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apierr.New(apierr.RecipientNotFound, "agent not found: "+name, nil)
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// GetAgentByID fetches an agent by its surrogate key.
func (q *Queries) GetAgentByID(ctx context.Context, id int64) (*model.Agent, error) {
	row := q.x().QueryRowContext(ctx, `
		SELECT id, project_id, name, name_lower, program, model, task_description,
			inception_ts, last_active_ts, contact_policy, attachments_policy
		FROM agents WHERE id = ?`, id)
	a, err := scanAgent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apierr.New(apierr.RecipientNotFound, "agent not found", nil)
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// ListAgentsByProject returns every agent registered under a project.
func (q *Queries) ListAgentsByProject(ctx context.Context, projectID int64) ([]*model.Agent, error) {
	rows, err := q.x().QueryContext(ctx, `
		SELECT id, project_id, name, name_lower, program, model, task_description,
			inception_ts, last_active_ts, contact_policy, attachments_policy
		FROM agents WHERE project_id = ? ORDER BY name_lower`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// AgentWithUnread pairs an agent with its unread-message count.
type AgentWithUnread struct {
	Agent  *model.Agent
	Unread int
}

// ListAgentsWithUnreadCounts returns every agent in a project alongside its
// unread count, computed in one aggregate query (spec §4.8: "agent
// directory ... including per-agent unread counts (one aggregate query)").
func (q *Queries) ListAgentsWithUnreadCounts(ctx context.Context, projectID int64) ([]AgentWithUnread, error) {
	rows, err := q.x().QueryContext(ctx, `
		SELECT a.id, a.project_id, a.name, a.name_lower, a.program, a.model, a.task_description,
			a.inception_ts, a.last_active_ts, a.contact_policy, a.attachments_policy,
			COUNT(CASE WHEN r.read_ts IS NULL THEN 1 END) AS unread
		FROM agents a
		LEFT JOIN message_recipients r ON r.agent_id = a.id
		WHERE a.project_id = ?
		GROUP BY a.id
		ORDER BY a.name_lower`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AgentWithUnread
	for rows.Next() {
		var a model.Agent
		var unread int
		if err := rows.Scan(&a.ID, &a.ProjectID, &a.Name, new(string), &a.Program, &a.Model,
			&a.TaskDescription, &a.InceptionTS, &a.LastActiveTS, &a.ContactPolicy, &a.AttachmentsPolicy, &unread); err != nil {
			return nil, err
		}
		a.InceptionTS = a.InceptionTS.UTC()
		a.LastActiveTS = a.LastActiveTS.UTC()
		out = append(out, AgentWithUnread{Agent: &a, Unread: unread})
	}
	return out, rows.Err()
}

// TouchLastActive bumps an agent's last_active_ts to now.
func (q *Queries) TouchLastActive(ctx context.Context, agentID int64) error {
	_, err := q.x().ExecContext(ctx, `UPDATE agents SET last_active_ts = ? WHERE id = ?`, Now(), agentID)
	return err
}

// SetContactPolicy updates an agent's contact policy.
func (q *Queries) SetContactPolicy(ctx context.Context, agentID int64, policy model.ContactPolicy) error {
	_, err := q.x().ExecContext(ctx, `UPDATE agents SET contact_policy = ? WHERE id = ?`, policy, agentID)
	return err
}

// SetAttachmentsPolicy updates an agent's attachments policy.
func (q *Queries) SetAttachmentsPolicy(ctx context.Context, agentID int64, policy model.AttachmentsPolicy) error {
	_, err := q.x().ExecContext(ctx, `UPDATE agents SET attachments_policy = ? WHERE id = ?`, policy, agentID)
	return err
}

func lower(s string) string {
	// Matches SQLite's ASCII-only lower() used elsewhere in the index; callers
	// compare against name_lower which is computed with the same function.
	out := []rune(s)
	for i, r := range out {
		if r >= 'A' && r <= 'Z' {
			out[i] = r + ('a' - 'A')
		}
	}
	return string(out)
}

// --- messages ---------------------------------------------------------------

// Recipient pairs an agent id with its to/cc/bcc kind for message creation.
type Recipient struct {
	AgentID int64
	Kind    model.RecipientKind
}

// CreateMessage inserts a message and its recipient rows atomically, and bumps
// the sender's last_active_ts. Call within Store.WithTx for true atomicity.
func (q *Queries) CreateMessage(ctx context.Context, msg *model.Message, recipients []Recipient) (*model.Message, error) {
	attachJSON, err := json.Marshal(msg.Attachments)
	if err != nil {
		return nil, fmt.Errorf("marshal attachments: %w", err)
	}
	now := Now()
	res, err := q.x().ExecContext(ctx, `
		INSERT INTO messages (project_id, sender_id, thread_id, subject, body_md,
			importance, ack_required, created_ts, attachments_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ProjectID, msg.SenderID, msg.ThreadID, msg.Subject, msg.BodyMD,
		msg.Importance, boolToInt(msg.AckRequired), now, string(attachJSON))
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	for _, r := range recipients {
		if _, err := q.x().ExecContext(ctx,
			`INSERT INTO message_recipients (message_id, agent_id, kind) VALUES (?, ?, ?)`,
			id, r.AgentID, r.Kind); err != nil {
			return nil, fmt.Errorf("insert recipient %d: %w", r.AgentID, err)
		}
	}
	if _, err := q.x().ExecContext(ctx, `UPDATE agents SET last_active_ts = ? WHERE id = ?`, now, msg.SenderID); err != nil {
		return nil, fmt.Errorf("touch sender: %w", err)
	}
	out := *msg
	out.ID = id
	out.CreatedTS = now
	return &out, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func scanMessage(row interface{ Scan(dest ...any) error }) (*model.Message, error) {
	var m model.Message
	var threadID sql.NullString
	var ackRequired int
	var attachJSON string
	if err := row.Scan(&m.ID, &m.ProjectID, &m.SenderID, &threadID, &m.Subject, &m.BodyMD,
		&m.Importance, &ackRequired, &m.CreatedTS, &attachJSON); err != nil {
		return nil, err
	}
	m.ThreadID = fromNullString(threadID)
	m.AckRequired = ackRequired != 0
	m.CreatedTS = m.CreatedTS.UTC()
	if attachJSON != "" {
		if err := json.Unmarshal([]byte(attachJSON), &m.Attachments); err != nil {
			return nil, fmt.Errorf("unmarshal attachments for message %d: %w", m.ID, err)
		}
	}
	return &m, nil
}

const messageColumns = `id, project_id, sender_id, thread_id, subject, body_md, importance, ack_required, created_ts, attachments_json`

// GetMessage fetches a single message by id, scoped to a project.
func (q *Queries) GetMessage(ctx context.Context, projectID, messageID int64) (*model.Message, error) {
	row := q.x().QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE id = ? AND project_id = ?`, messageID, projectID)
	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apierr.New(apierr.NotFound, fmt.Sprintf("message %d not found", messageID), nil)
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// ListMessagesByThread returns every message in a thread, oldest first.
func (q *Queries) ListMessagesByThread(ctx context.Context, projectID int64, threadID string) ([]*model.Message, error) {
	rows, err := q.x().QueryContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE project_id = ? AND thread_id = ? ORDER BY created_ts, id`,
		projectID, threadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// InboxFilter narrows ListInbox results.
type InboxFilter struct {
	UnreadOnly bool
	UrgentOnly bool
	ThreadID   string
	Since      sql.NullTime
	Limit      int
}

// ListInbox returns messages addressed to agentID, newest first, optionally
// filtered to unread-only / a single thread / a time floor.
func (q *Queries) ListInbox(ctx context.Context, agentID int64, f InboxFilter) ([]*model.Message, []model.MessageRecipient, error) {
	query := `
		SELECT m.` + messageColumnsAliased() + `, r.kind, r.read_ts, r.ack_ts
		FROM messages m JOIN message_recipients r ON r.message_id = m.id
		WHERE r.agent_id = ?`
	args := []any{agentID}
	if f.UnreadOnly {
		query += ` AND r.read_ts IS NULL`
	}
	if f.UrgentOnly {
		query += ` AND m.importance = 'urgent'`
	}
	if f.ThreadID != "" {
		query += ` AND m.thread_id = ?`
		args = append(args, f.ThreadID)
	}
	if f.Since.Valid {
		query += ` AND m.created_ts > ?`
		args = append(args, f.Since.Time)
	}
	query += ` ORDER BY m.created_ts DESC, m.id DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := q.x().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var msgs []*model.Message
	var recips []model.MessageRecipient
	for rows.Next() {
		var m model.Message
		var threadID sql.NullString
		var ackRequired int
		var attachJSON string
		var kind model.RecipientKind
		var readTS, ackTS sql.NullTime
		if err := rows.Scan(&m.ID, &m.ProjectID, &m.SenderID, &threadID, &m.Subject, &m.BodyMD,
			&m.Importance, &ackRequired, &m.CreatedTS, &attachJSON, &kind, &readTS, &ackTS); err != nil {
			return nil, nil, err
		}
		m.ThreadID = fromNullString(threadID)
		m.AckRequired = ackRequired != 0
		m.CreatedTS = m.CreatedTS.UTC()
		if attachJSON != "" {
			if err := json.Unmarshal([]byte(attachJSON), &m.Attachments); err != nil {
				return nil, nil, fmt.Errorf("unmarshal attachments for message %d: %w", m.ID, err)
			}
		}
		msgs = append(msgs, &m)
		recips = append(recips, model.MessageRecipient{
			MessageID: m.ID, AgentID: agentID, Kind: kind,
			ReadTS: fromNullTime(readTS), AckTS: fromNullTime(ackTS),
		})
	}
	return msgs, recips, rows.Err()
}

func messageColumnsAliased() string {
	return "id, project_id, sender_id, thread_id, subject, body_md, importance, ack_required, created_ts, attachments_json"
}

// MarkRead sets read_ts for (message, agent) if not already set (set-once semantics).
func (q *Queries) MarkRead(ctx context.Context, messageID, agentID int64) error {
	_, err := q.x().ExecContext(ctx, `
		UPDATE message_recipients SET read_ts = ?
		WHERE message_id = ? AND agent_id = ? AND read_ts IS NULL`,
		Now(), messageID, agentID)
	return err
}

// Acknowledge sets ack_ts for (message, agent) if not already set (set-once semantics).
func (q *Queries) Acknowledge(ctx context.Context, messageID, agentID int64) error {
	_, err := q.x().ExecContext(ctx, `
		UPDATE message_recipients SET ack_ts = ?
		WHERE message_id = ? AND agent_id = ? AND ack_ts IS NULL`,
		Now(), messageID, agentID)
	return err
}

// NamedRecipient pairs a recipient row with the agent's display name, for
// archive front-matter and delivery responses.
type NamedRecipient struct {
	AgentID int64
	Name    string
	Kind    model.RecipientKind
}

// ListRecipientsForMessage returns every recipient of a message with the
// recipient agent's current name, ordered to/cc/bcc then name.
func (q *Queries) ListRecipientsForMessage(ctx context.Context, messageID int64) ([]NamedRecipient, error) {
	rows, err := q.x().QueryContext(ctx, `
		SELECT r.agent_id, a.name, r.kind
		FROM message_recipients r JOIN agents a ON a.id = r.agent_id
		WHERE r.message_id = ?
		ORDER BY CASE r.kind WHEN 'to' THEN 0 WHEN 'cc' THEN 1 ELSE 2 END, a.name_lower`, messageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []NamedRecipient
	for rows.Next() {
		var n NamedRecipient
		if err := rows.Scan(&n.AgentID, &n.Name, &n.Kind); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// GetRecipient fetches the recipient row for (message, agent).
func (q *Queries) GetRecipient(ctx context.Context, messageID, agentID int64) (*model.MessageRecipient, error) {
	var r model.MessageRecipient
	var kind model.RecipientKind
	var readTS, ackTS sql.NullTime
	err := q.x().QueryRowContext(ctx,
		`SELECT kind, read_ts, ack_ts FROM message_recipients WHERE message_id = ? AND agent_id = ?`,
		messageID, agentID).Scan(&kind, &readTS, &ackTS)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apierr.New(apierr.RecipientNotFound, "not a recipient of this message", nil)
	}
	if err != nil {
		return nil, err
	}
	r.MessageID = messageID
	r.AgentID = agentID
	r.Kind = kind
	r.ReadTS = fromNullTime(readTS)
	r.AckTS = fromNullTime(ackTS)
	return &r, nil
}

// UnreadCount returns the number of unread messages addressed to agentID.
func (q *Queries) UnreadCount(ctx context.Context, agentID int64) (int, error) {
	var n int
	err := q.x().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM message_recipients WHERE agent_id = ? AND read_ts IS NULL`, agentID).Scan(&n)
	return n, err
}

// SearchMessages runs a full-text query (spec C8) scoped to a project, ranked by bm25.
func (q *Queries) SearchMessages(ctx context.Context, projectID int64, ftsQuery string, limit int) ([]*model.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := q.x().QueryContext(ctx, `
		SELECT m.`+messageColumnsAliased()+`
		FROM messages_fts f
		JOIN messages m ON m.id = f.rowid
		WHERE messages_fts MATCH ? AND m.project_id = ?
		ORDER BY bm25(messages_fts)
		LIMIT ?`, ftsQuery, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("fts query: %w", err)
	}
	defer rows.Close()
	var out []*model.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// HasRecentContact reports whether any message exists in projectID sent by
// fromAgentID with toAgentID among its recipients, created at or after
// since. Backs the contact-policy auto-allow heuristic "recent prior
// contact" (spec §4.4 heuristic 4).
func (q *Queries) HasRecentContact(ctx context.Context, projectID, fromAgentID, toAgentID int64, since time.Time) (bool, error) {
	var n int
	err := q.x().QueryRowContext(ctx, `
		SELECT COUNT(*) FROM messages m
		JOIN message_recipients r ON r.message_id = m.id
		WHERE m.project_id = ? AND m.sender_id = ? AND r.agent_id = ? AND m.created_ts >= ?`,
		projectID, fromAgentID, toAgentID, since).Scan(&n)
	return n > 0, err
}

// ThreadHasParticipant reports whether agentID appears as sender or
// recipient of any message in the given thread. Backs the contact-policy
// auto-allow heuristic "thread participant" (spec §4.4 heuristic 2).
func (q *Queries) ThreadHasParticipant(ctx context.Context, projectID int64, threadID string, agentID int64) (bool, error) {
	var n int
	err := q.x().QueryRowContext(ctx, `
		SELECT COUNT(*) FROM messages m
		WHERE m.project_id = ? AND m.thread_id = ? AND (
			m.sender_id = ? OR EXISTS (
				SELECT 1 FROM message_recipients r WHERE r.message_id = m.id AND r.agent_id = ?
			)
		)`, projectID, threadID, agentID, agentID).Scan(&n)
	return n > 0, err
}

// --- file reservations -------------------------------------------------------

// CreateReservation inserts a new advisory lease.
func (q *Queries) CreateReservation(ctx context.Context, r *model.FileReservation) (*model.FileReservation, error) {
	now := Now()
	res, err := q.x().ExecContext(ctx, `
		INSERT INTO file_reservations (project_id, agent_id, path_pattern, exclusive, reason, created_ts, expires_ts)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ProjectID, r.AgentID, r.PathPattern, boolToInt(r.Exclusive), r.Reason, now, r.ExpiresTS)
	if err != nil {
		return nil, fmt.Errorf("insert reservation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	out := *r
	out.ID = id
	out.CreatedTS = now
	return &out, nil
}

func scanReservation(row interface{ Scan(dest ...any) error }) (*model.FileReservation, error) {
	var r model.FileReservation
	var exclusive int
	var released sql.NullTime
	if err := row.Scan(&r.ID, &r.ProjectID, &r.AgentID, &r.PathPattern, &exclusive,
		&r.Reason, &r.CreatedTS, &r.ExpiresTS, &released); err != nil {
		return nil, err
	}
	r.Exclusive = exclusive != 0
	r.CreatedTS = r.CreatedTS.UTC()
	r.ExpiresTS = r.ExpiresTS.UTC()
	r.ReleasedTS = fromNullTime(released)
	return &r, nil
}

const reservationColumns = `id, project_id, agent_id, path_pattern, exclusive, reason, created_ts, expires_ts, released_ts`

// ListActiveReservations returns non-released, non-expired reservations for a project.
func (q *Queries) ListActiveReservations(ctx context.Context, projectID int64) ([]*model.FileReservation, error) {
	rows, err := q.x().QueryContext(ctx, `
		SELECT `+reservationColumns+` FROM file_reservations
		WHERE project_id = ? AND released_ts IS NULL AND expires_ts > ?
		ORDER BY created_ts`, projectID, Now())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.FileReservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetReservation fetches a single reservation by id.
func (q *Queries) GetReservation(ctx context.Context, id int64) (*model.FileReservation, error) {
	row := q.x().QueryRowContext(ctx, `SELECT `+reservationColumns+` FROM file_reservations WHERE id = ?`, id)
	r, err := scanReservation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apierr.New(apierr.NotFound, "reservation not found", nil)
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// RenewReservation extends an active reservation's expiry.
func (q *Queries) RenewReservation(ctx context.Context, id int64, newExpiry time.Time) error {
	res, err := q.x().ExecContext(ctx, `
		UPDATE file_reservations SET expires_ts = ? WHERE id = ? AND released_ts IS NULL`, newExpiry, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apierr.New(apierr.NotFound, "reservation not active", nil)
	}
	return nil
}

// ReleaseReservation marks a reservation released; idempotent across repeated calls.
func (q *Queries) ReleaseReservation(ctx context.Context, id int64) error {
	_, err := q.x().ExecContext(ctx, `
		UPDATE file_reservations SET released_ts = ? WHERE id = ? AND released_ts IS NULL`, Now(), id)
	return err
}

// ExpireStaleReservations releases every reservation whose expiry has passed
// and that hasn't already been released, returning how many rows changed.
func (q *Queries) ExpireStaleReservations(ctx context.Context, projectID int64) (int64, error) {
	res, err := q.x().ExecContext(ctx, `
		UPDATE file_reservations SET released_ts = ?
		WHERE project_id = ? AND released_ts IS NULL AND expires_ts <= ?`,
		Now(), projectID, Now())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// --- agent links --------------------------------------------------------------

func scanLink(row interface{ Scan(dest ...any) error }) (*model.AgentLink, error) {
	var l model.AgentLink
	var expires sql.NullTime
	if err := row.Scan(&l.ID, &l.AProjectID, &l.AAgentID, &l.BProjectID, &l.BAgentID,
		&l.Status, &l.Reason, &l.CreatedTS, &l.UpdatedTS, &expires); err != nil {
		return nil, err
	}
	l.CreatedTS = l.CreatedTS.UTC()
	l.UpdatedTS = l.UpdatedTS.UTC()
	l.ExpiresTS = fromNullTime(expires)
	return &l, nil
}

const linkColumns = `id, a_project_id, a_agent_id, b_project_id, b_agent_id, status, reason, created_ts, updated_ts, expires_ts`

// UpsertLinkRequest creates a pending link, or returns the existing one if
// already present (contact requests are idempotent on the directed edge).
func (q *Queries) UpsertLinkRequest(ctx context.Context, aProjectID, aAgentID, bProjectID, bAgentID int64, reason string) (*model.AgentLink, error) {
	existing, err := q.GetLink(ctx, aProjectID, aAgentID, bProjectID, bAgentID)
	if err == nil {
		return existing, nil
	}
	var ae *apierr.Error
	if !errors.As(err, &ae) || ae.Kind != apierr.NotFound {
		return nil, err
	}
	now := Now()
	res, execErr := q.x().ExecContext(ctx, `
		INSERT INTO agent_links (a_project_id, a_agent_id, b_project_id, b_agent_id, status, reason, created_ts, updated_ts)
		VALUES (?, ?, ?, ?, 'pending', ?, ?, ?)`,
		aProjectID, aAgentID, bProjectID, bAgentID, reason, now, now)
	if execErr != nil {
		return nil, fmt.Errorf("insert link: %w", execErr)
	}
	id, execErr := res.LastInsertId()
	if execErr != nil {
		return nil, execErr
	}
	return &model.AgentLink{
		ID: id, AProjectID: aProjectID, AAgentID: aAgentID, BProjectID: bProjectID, BAgentID: bAgentID,
		Status: model.LinkPending, Reason: reason, CreatedTS: now, UpdatedTS: now,
	}, nil
}

// GetLink fetches the directed link row between two endpoints.
func (q *Queries) GetLink(ctx context.Context, aProjectID, aAgentID, bProjectID, bAgentID int64) (*model.AgentLink, error) {
	row := q.x().QueryRowContext(ctx,
		`SELECT `+linkColumns+` FROM agent_links WHERE a_project_id=? AND a_agent_id=? AND b_project_id=? AND b_agent_id=?`,
		aProjectID, aAgentID, bProjectID, bAgentID)
	l, err := scanLink(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apierr.New(apierr.NotFound, "link not found", nil)
	}
	if err != nil {
		return nil, err
	}
	return l, nil
}

// SetLinkStatus transitions a link to approved or blocked, optionally with an expiry.
func (q *Queries) SetLinkStatus(ctx context.Context, id int64, status model.LinkStatus, expiresTS *time.Time) error {
	_, err := q.x().ExecContext(ctx,
		`UPDATE agent_links SET status = ?, updated_ts = ?, expires_ts = ? WHERE id = ?`,
		status, Now(), toNullTimePtr(expiresTS), id)
	return err
}

// ListLinksForAgent returns every link row involving (projectID, agentID) as either endpoint.
func (q *Queries) ListLinksForAgent(ctx context.Context, projectID, agentID int64) ([]*model.AgentLink, error) {
	rows, err := q.x().QueryContext(ctx, `
		SELECT `+linkColumns+` FROM agent_links
		WHERE (a_project_id = ? AND a_agent_id = ?) OR (b_project_id = ? AND b_agent_id = ?)
		ORDER BY updated_ts DESC`, projectID, agentID, projectID, agentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.AgentLink
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// --- project sibling suggestions ----------------------------------------------

// UpsertSiblingSuggestion records or refreshes a similarity score between two
// distinct projects. Canonicalization (a < b) is the caller's responsibility.
func (q *Queries) UpsertSiblingSuggestion(ctx context.Context, s *model.ProjectSiblingSuggestion) error {
	now := Now()
	_, err := q.x().ExecContext(ctx, `
		INSERT INTO project_sibling_suggestions (project_a_id, project_b_id, score, rationale, status, evaluated_ts)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(project_a_id, project_b_id) DO UPDATE SET
			score = excluded.score, rationale = excluded.rationale, evaluated_ts = excluded.evaluated_ts
		WHERE project_sibling_suggestions.status = 'suggested'`,
		s.ProjectAID, s.ProjectBID, s.Score, s.Rationale, s.Status, now)
	return err
}

// ListSiblingSuggestions returns every suggestion involving projectID.
func (q *Queries) ListSiblingSuggestions(ctx context.Context, projectID int64) ([]*model.ProjectSiblingSuggestion, error) {
	rows, err := q.x().QueryContext(ctx, `
		SELECT id, project_a_id, project_b_id, score, rationale, status, evaluated_ts
		FROM project_sibling_suggestions
		WHERE project_a_id = ? OR project_b_id = ?
		ORDER BY score DESC`, projectID, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.ProjectSiblingSuggestion
	for rows.Next() {
		var s model.ProjectSiblingSuggestion
		if err := rows.Scan(&s.ID, &s.ProjectAID, &s.ProjectBID, &s.Score, &s.Rationale, &s.Status, &s.EvaluatedTS); err != nil {
			return nil, err
		}
		s.EvaluatedTS = s.EvaluatedTS.UTC()
		out = append(out, &s)
	}
	return out, rows.Err()
}

// SetSiblingStatus moderates a suggestion (confirm/dismiss).
func (q *Queries) SetSiblingStatus(ctx context.Context, id int64, status model.SiblingStatus) error {
	_, err := q.x().ExecContext(ctx, `UPDATE project_sibling_suggestions SET status = ? WHERE id = ?`, status, id)
	return err
}
