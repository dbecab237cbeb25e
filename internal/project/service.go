// Package project implements ensure-project and register-agent: the
// stateful half of C1 Identifier & Name Service (the pure half lives in
// internal/names).
package project

import (
	"context"
	"math/rand"

	"github.com/jra3/agentmail/internal/apierr"
	"github.com/jra3/agentmail/internal/db"
	"github.com/jra3/agentmail/internal/model"
	"github.com/jra3/agentmail/internal/names"
)

type Service struct {
	Store *db.Store
}

func New(store *db.Store) *Service {
	return &Service{Store: store}
}

// EnsureProject returns the project registered under humanKey, creating it
// (with a derived slug) if absent. A derived slug colliding with an
// existing project whose human_key differs is rejected (spec: slug
// collisions reject creation rather than silently aliasing).
func (s *Service) EnsureProject(ctx context.Context, humanKey string) (*model.Project, error) {
	if existing, err := s.Store.Queries().GetProjectByHumanKey(ctx, humanKey); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	slug := names.Slugify(humanKey)
	if collision, err := s.Store.Queries().GetProjectBySlugIfDifferentHumanKey(ctx, slug, humanKey); err != nil {
		return nil, err
	} else if collision != nil {
		return nil, apierr.New(apierr.InvalidArgument,
			"derived slug \""+slug+"\" already belongs to a different project", map[string]any{"slug": slug})
	}

	return s.Store.Queries().CreateProject(ctx, slug, humanKey)
}

// RegisterAgent returns the named agent in projectID, creating it (and
// generating a fresh adjective+noun name when name is empty) if absent.
func (s *Service) RegisterAgent(ctx context.Context, projectID int64, name, program, modelName, taskDescription string) (*model.Agent, bool, error) {
	if name == "" {
		rng := rand.New(rand.NewSource(int64(projectID)))
		exists := func(candidate string) bool {
			_, err := s.Store.Queries().GetAgentByName(ctx, projectID, candidate)
			return err == nil
		}
		name = names.GenerateName(rng, exists)
	} else {
		name = names.Sanitize(name)
		if !names.ValidateFormat(name) {
			return nil, false, apierr.New(apierr.InvalidArgument, "agent name \""+name+"\" does not match the adjective+noun convention", nil)
		}
	}
	return s.Store.Queries().CreateOrGetAgent(ctx, projectID, name, program, modelName, taskDescription)
}

// Whois resolves a display identity for an agent: name, program, model,
// task description, and contact policy (spec §6 "whois").
type Identity struct {
	Agent *model.Agent
}

func (s *Service) Whois(ctx context.Context, projectID int64, name string) (*Identity, error) {
	agent, err := s.Store.Queries().GetAgentByName(ctx, projectID, name)
	if err != nil {
		return nil, err
	}
	return &Identity{Agent: agent}, nil
}

// SetContactPolicy updates an agent's default contact-approval policy.
func (s *Service) SetContactPolicy(ctx context.Context, agentID int64, policy model.ContactPolicy) error {
	return s.Store.Queries().SetContactPolicy(ctx, agentID, policy)
}
