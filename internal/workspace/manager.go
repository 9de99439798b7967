package workspace

import (
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/example/trafficwatch/internal/analysis"
	"github.com/example/trafficwatch/internal/intake"
	"github.com/example/trafficwatch/internal/models"
)

type options struct {
	sink          func(Event)
	archiver      Archiver
	submitterOpts []analysis.SubmitterOption
	intakeOpts    []intake.Option
}

// Option configures a Manager
type Option func(*options)

// WithEventSink receives every workspace event
func WithEventSink(fn func(Event)) Option {
	return func(o *options) { o.sink = fn }
}

// WithArchiver keeps uploads and results of every workspace
func WithArchiver(a Archiver) Option {
	return func(o *options) { o.archiver = a }
}

// WithSubmitterOptions is applied to each workspace's submitter
func WithSubmitterOptions(opts ...analysis.SubmitterOption) Option {
	return func(o *options) { o.submitterOpts = append(o.submitterOpts, opts...) }
}

// WithIntakeOptions is applied to each workspace's intake
func WithIntakeOptions(opts ...intake.Option) Option {
	return func(o *options) { o.intakeOpts = append(o.intakeOpts, opts...) }
}

// Manager keeps the open workspaces
type Manager struct {
	client analysis.Doer
	cfg    intake.Config
	opts   options

	mu         sync.RWMutex
	workspaces map[string]*Workspace
	seq        uint64
}

// NewManager creates a manager whose workspaces call client
func NewManager(client analysis.Doer, cfg intake.Config, opts ...Option) *Manager {
	m := &Manager{
		client:     client,
		cfg:        cfg,
		workspaces: make(map[string]*Workspace),
	}
	for _, opt := range opts {
		opt(&m.opts)
	}
	return m
}

// Create opens a workspace for a category name or page route
func (m *Manager) Create(category string) (*Workspace, error) {
	c, ok := models.ParseCategory(category)
	if !ok {
		return nil, ErrUnknownCategory
	}

	ws := newWorkspace(uuid.NewString(), c, m.client, m.cfg, &m.opts)

	m.mu.Lock()
	m.seq++
	ws.seq = m.seq
	m.workspaces[ws.ID] = ws
	m.mu.Unlock()

	log.Info().Str("workspace_id", ws.ID).Str("category", string(c)).Msg("Workspace opened")
	return ws, nil
}

// Get returns an open workspace
func (m *Manager) Get(id string) (*Workspace, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ws, ok := m.workspaces[id]
	if !ok {
		return nil, ErrNotFound
	}
	return ws, nil
}

// Close tears a workspace down and forgets it
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	ws, ok := m.workspaces[id]
	delete(m.workspaces, id)
	m.mu.Unlock()

	if !ok {
		return ErrNotFound
	}
	ws.Close()
	log.Info().Str("workspace_id", id).Msg("Workspace torn down")
	return nil
}

// List returns the open workspaces, oldest first
func (m *Manager) List() []*Workspace {
	m.mu.RLock()
	out := make([]*Workspace, 0, len(m.workspaces))
	for _, ws := range m.workspaces {
		out = append(out, ws)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// Len is the number of open workspaces
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.workspaces)
}

// CloseAll tears every workspace down
func (m *Manager) CloseAll() {
	m.mu.Lock()
	open := m.workspaces
	m.workspaces = make(map[string]*Workspace)
	m.mu.Unlock()

	for _, ws := range open {
		ws.Close()
	}
}
