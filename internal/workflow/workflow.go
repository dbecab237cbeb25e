// Package workflow implements the composed macro operations (C10): single
// calls that chain several primitives to minimize client round-trips
// (spec §4.9).
package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jra3/agentmail/internal/contact"
	"github.com/jra3/agentmail/internal/inbox"
	"github.com/jra3/agentmail/internal/mailpipeline"
	"github.com/jra3/agentmail/internal/model"
	"github.com/jra3/agentmail/internal/project"
	"github.com/jra3/agentmail/internal/reservation"
)

type Service struct {
	Projects     *project.Service
	Inbox        *inbox.Service
	Reservations *reservation.Engine
	Contacts     *contact.Engine
	Pipeline     *mailpipeline.Pipeline
}

func New(projects *project.Service, inboxSvc *inbox.Service, reservations *reservation.Engine, contacts *contact.Engine, pipeline *mailpipeline.Pipeline) *Service {
	return &Service{Projects: projects, Inbox: inboxSvc, Reservations: reservations, Contacts: contacts, Pipeline: pipeline}
}

// StartSessionRequest is the input to StartSession: ensure-project +
// register-agent + optional reservation + fetch-inbox (spec §4.9).
type StartSessionRequest struct {
	ProjectHumanKey string
	AgentName       string
	Program         string
	Model           string
	TaskDescription string

	ReservePathPattern string // empty skips the reservation step
	ReserveExclusive   bool
	ReserveReason      string
	ReserveTTL         time.Duration

	InboxOptions inbox.FetchOptions
}

// StartSessionResult bundles everything a client needs to begin working in
// a project without further round-trips.
type StartSessionResult struct {
	CorrelationID uuid.UUID // ties this macro's steps together across logs
	Project       *model.Project
	Agent         *model.Agent
	Reservation   *reservation.Grant // nil if ReservePathPattern was empty
	Inbox         []inbox.InboxEntry
}

func (s *Service) StartSession(ctx context.Context, req StartSessionRequest) (*StartSessionResult, error) {
	correlationID := uuid.New()
	proj, err := s.Projects.EnsureProject(ctx, req.ProjectHumanKey)
	if err != nil {
		return nil, fmt.Errorf("start-session[%s]: ensure-project: %w", correlationID, err)
	}
	agent, _, err := s.Projects.RegisterAgent(ctx, proj.ID, req.AgentName, req.Program, req.Model, req.TaskDescription)
	if err != nil {
		return nil, fmt.Errorf("start-session[%s]: register-agent: %w", correlationID, err)
	}

	result := &StartSessionResult{CorrelationID: correlationID, Project: proj, Agent: agent}

	if req.ReservePathPattern != "" {
		grant, err := s.Reservations.Reserve(ctx, proj.ID, agent.ID, req.ReservePathPattern, req.ReserveExclusive, req.ReserveReason, req.ReserveTTL)
		if err != nil {
			return nil, fmt.Errorf("start-session[%s]: reserve: %w", correlationID, err)
		}
		result.Reservation = grant
	}

	entries, err := s.Inbox.FetchInbox(ctx, agent.ID, req.InboxOptions)
	if err != nil {
		return nil, fmt.Errorf("start-session[%s]: fetch-inbox: %w", correlationID, err)
	}
	result.Inbox = entries
	return result, nil
}

// PrepareThreadRequest composes ensure/register agent + thread-summary +
// fetch-inbox (spec §4.9 "prepare-thread").
type PrepareThreadRequest struct {
	ProjectHumanKey string
	AgentName       string
	Program         string
	Model           string
	TaskDescription string

	ThreadKey       string
	IncludeExamples bool
	UseLLM          bool

	InboxOptions inbox.FetchOptions
}

type PrepareThreadResult struct {
	CorrelationID uuid.UUID
	Project       *model.Project
	Agent         *model.Agent

	Summary      inbox.Summary
	Examples     []inbox.ThreadExample
	MessageCount int

	Inbox []inbox.InboxEntry
}

func (s *Service) PrepareThread(ctx context.Context, req PrepareThreadRequest) (*PrepareThreadResult, error) {
	correlationID := uuid.New()
	proj, err := s.Projects.EnsureProject(ctx, req.ProjectHumanKey)
	if err != nil {
		return nil, fmt.Errorf("prepare-thread[%s]: ensure-project: %w", correlationID, err)
	}
	agent, _, err := s.Projects.RegisterAgent(ctx, proj.ID, req.AgentName, req.Program, req.Model, req.TaskDescription)
	if err != nil {
		return nil, fmt.Errorf("prepare-thread[%s]: register-agent: %w", correlationID, err)
	}

	summary, examples, count, err := s.Inbox.ThreadSummary(ctx, proj.ID, req.ThreadKey, req.IncludeExamples, req.UseLLM)
	if err != nil {
		return nil, fmt.Errorf("prepare-thread[%s]: thread-summary: %w", correlationID, err)
	}

	entries, err := s.Inbox.FetchInbox(ctx, agent.ID, req.InboxOptions)
	if err != nil {
		return nil, fmt.Errorf("prepare-thread[%s]: fetch-inbox: %w", correlationID, err)
	}

	return &PrepareThreadResult{
		CorrelationID: correlationID,
		Project:       proj, Agent: agent,
		Summary: summary, Examples: examples, MessageCount: count,
		Inbox: entries,
	}, nil
}

// ReservationCycleRequest composes reserve + optional immediate release
// (spec §4.9 "reservation-cycle"): useful for a client that wants to hold a
// reservation only long enough to perform a single write.
type ReservationCycleRequest struct {
	ProjectID       int64
	AgentID         int64
	PathPattern     string
	Exclusive       bool
	Reason          string
	TTL             time.Duration
	ReleaseImmediately bool
}

type ReservationCycleResult struct {
	CorrelationID uuid.UUID
	Reservation   *reservation.Grant
	Released      bool
}

func (s *Service) ReservationCycle(ctx context.Context, req ReservationCycleRequest) (*ReservationCycleResult, error) {
	correlationID := uuid.New()
	grant, err := s.Reservations.Reserve(ctx, req.ProjectID, req.AgentID, req.PathPattern, req.Exclusive, req.Reason, req.TTL)
	if err != nil {
		return nil, fmt.Errorf("reservation-cycle[%s]: reserve: %w", correlationID, err)
	}
	result := &ReservationCycleResult{CorrelationID: correlationID, Reservation: grant}
	if req.ReleaseImmediately {
		if err := s.Reservations.Release(ctx, grant.Reservation.ID); err != nil {
			return nil, fmt.Errorf("reservation-cycle[%s]: release: %w", correlationID, err)
		}
		result.Released = true
	}
	return result, nil
}

// ContactHandshakeRequest composes request-contact + optional auto-accept on
// behalf of the target + optional welcome message (spec §4.9
// "contact-handshake"). Welcome-send failure is non-fatal: the handshake
// itself has already succeeded by the time the welcome is attempted.
type ContactHandshakeRequest struct {
	RequesterProjectID, RequesterAgentID int64
	TargetProjectID                     int64
	TargetAgentName                     string
	TargetProgram, TargetModel, TargetTaskDescription string
	AutoRegisterTarget                  bool
	Reason                              string

	AutoAccept bool

	WelcomeSubject string
	WelcomeBodyMD  string
	WelcomeFrom    string // sender name used for the welcome send, defaults to TargetAgentName
}

type ContactHandshakeResult struct {
	CorrelationID    uuid.UUID
	Link             *model.AgentLink
	TargetAgent      *model.Agent
	TargetRegistered bool
	Accepted         bool
	WelcomeSent      bool
	WelcomeError     string
}

func (s *Service) ContactHandshake(ctx context.Context, req ContactHandshakeRequest) (*ContactHandshakeResult, error) {
	correlationID := uuid.New()
	target, registered, err := s.resolveTarget(ctx, req)
	if err != nil {
		return nil, err
	}

	link, err := s.Contacts.RequestContact(ctx, req.RequesterProjectID, req.RequesterAgentID, req.TargetProjectID, target.ID, req.Reason)
	if err != nil {
		return nil, fmt.Errorf("contact-handshake[%s]: request-contact: %w", correlationID, err)
	}

	result := &ContactHandshakeResult{CorrelationID: correlationID, Link: link, TargetAgent: target, TargetRegistered: registered}

	if req.AutoAccept {
		if err := s.Contacts.RespondContact(ctx, link.ID, true, nil); err != nil {
			return nil, fmt.Errorf("contact-handshake[%s]: auto-accept: %w", correlationID, err)
		}
		result.Accepted = true
	}

	if result.Accepted && req.WelcomeBodyMD != "" {
		from := req.WelcomeFrom
		if from == "" {
			from = req.TargetAgentName
		}
		humanKey := ""
		if projects, listErr := s.Pipeline.Store.Queries().ListProjects(ctx); listErr == nil {
			for _, p := range projects {
				if p.ID == req.TargetProjectID {
					humanKey = p.HumanKey
				}
			}
		}
		_, sendErr := s.Pipeline.Send(ctx, mailpipeline.SendRequest{
			ProjectHumanKey: humanKey,
			SenderName:      from,
			To:              []string{req.TargetAgentName},
			Subject:         req.WelcomeSubject,
			BodyMD:          req.WelcomeBodyMD,
			Importance:      model.ImportanceNormal,
		})
		if sendErr != nil {
			result.WelcomeError = sendErr.Error()
		} else {
			result.WelcomeSent = true
		}
	}

	return result, nil
}

func (s *Service) resolveTarget(ctx context.Context, req ContactHandshakeRequest) (*model.Agent, bool, error) {
	if !req.AutoRegisterTarget {
		agent, err := s.Projects.Whois(ctx, req.TargetProjectID, req.TargetAgentName)
		if err != nil {
			return nil, false, fmt.Errorf("contact-handshake: target resolution: %w", err)
		}
		return agent.Agent, false, nil
	}
	agent, created, err := s.Projects.RegisterAgent(ctx, req.TargetProjectID, req.TargetAgentName, req.TargetProgram, req.TargetModel, req.TargetTaskDescription)
	if err != nil {
		return nil, false, fmt.Errorf("contact-handshake: auto-register target: %w", err)
	}
	if s.Pipeline != nil {
		s.Pipeline.Lookups.InvalidateAgent(req.TargetProjectID, req.TargetAgentName)
	}
	return agent, created, nil
}
