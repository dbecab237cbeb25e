package cmd

import (
	"fmt"
	"time"

	"github.com/jra3/agentmail/internal/archive"
	"github.com/jra3/agentmail/internal/config"
	"github.com/jra3/agentmail/internal/contact"
	"github.com/jra3/agentmail/internal/db"
	"github.com/jra3/agentmail/internal/directory"
	"github.com/jra3/agentmail/internal/inbox"
	"github.com/jra3/agentmail/internal/llm"
	"github.com/jra3/agentmail/internal/mailpipeline"
	"github.com/jra3/agentmail/internal/model"
	"github.com/jra3/agentmail/internal/project"
	"github.com/jra3/agentmail/internal/reservation"
	"github.com/jra3/agentmail/internal/search"
	"github.com/jra3/agentmail/internal/workflow"
)

// app bundles every component wired up from one loaded Config, mirroring
// the teacher's own single-struct dependency graph for its FUSE filesystem.
type app struct {
	Config *config.Config
	Store  *db.Store

	Projects     *project.Service
	Reservations *reservation.Engine
	Contacts     *contact.Engine
	Writer       *archive.Writer
	Pipeline     *mailpipeline.Pipeline
	Inbox        *inbox.Service
	Search       *search.Service
	Directory    *directory.Service
	Workflow     *workflow.Service
}

func newApp(cfg *config.Config) (*app, error) {
	store, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	reservations := reservation.New(store)
	contacts := contact.New(store, reservations, cfg.Policy.ContactEnforced, cfg.Policy.ContactTTL)
	writer := archive.NewWriter(cfg.Storage.Root, cfg.Storage.GitAuthorName, cfg.Storage.GitAuthorEmail,
		cfg.Attachments.InlineThresholdBytes, nil, archive.NewRegistry())

	pipeline := &mailpipeline.Pipeline{
		Store: store, Writer: writer, Reservations: reservations, Contacts: contacts,
		Lookups:              mailpipeline.NewLookupCache(30 * time.Second),
		ReservationsEnforced: cfg.Policy.ReservationsEnforced,
		AttachmentsDefault:   model.DefaultAttachmentsPolicy,
		ConvertImagesDefault: cfg.Attachments.ConvertImages,
	}

	// Real LLM provider wiring is out of scope (spec Non-goals: "only the
	// pluggable interface + a stub"); the config toggle only selects which
	// Client the rest of the CLI sees.
	var llmClient llm.Client = llm.Disabled{}

	projects := project.New(store)
	inboxSvc := inbox.New(store, llmClient)
	searchSvc := search.New(store)
	directorySvc := directory.New(store, cfg.Storage.Root, cfg.Storage.GitAuthorName, cfg.Storage.GitAuthorEmail, cfg.Storage.RetentionIgnore)
	workflowSvc := workflow.New(projects, inboxSvc, reservations, contacts, pipeline)

	return &app{
		Config: cfg, Store: store,
		Projects: projects, Reservations: reservations, Contacts: contacts,
		Writer: writer, Pipeline: pipeline, Inbox: inboxSvc, Search: searchSvc,
		Directory: directorySvc, Workflow: workflowSvc,
	}, nil
}

func (a *app) Close() error {
	return a.Store.Close()
}

func loadConfig() (*config.Config, error) {
	return config.Load()
}
