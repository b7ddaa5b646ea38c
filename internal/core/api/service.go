// Package api hosts form controllers for remote renderers.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/solatis/formkeeper/internal/core/db"
	"github.com/solatis/formkeeper/internal/form"
	"github.com/solatis/formkeeper/internal/specdoc"
	"github.com/solatis/formkeeper/internal/types"
)

// SpecSource resolves a catalog name to its latest document.
type SpecSource interface {
	Get(ctx context.Context, name string) (db.SpecRecord, error)
}

// OpenRequest mounts a form. Exactly one of Document and SpecName is set.
type OpenRequest struct {
	Document []byte
	SpecName string
	Initial  types.State
}

// SessionView is the state a remote renderer needs after each call.
type SessionView struct {
	SessionID types.SessionID
	State     types.State
	Feedback  map[string]types.Feedback
	CanSubmit bool
}

// SessionService owns one controller per session.
// Thin orchestration layer delegating to specdoc, form and the catalog.
type SessionService struct {
	binder      *specdoc.Binder
	catalog     SpecSource
	opts        []form.Option
	maxSessions int
	logger      *slog.Logger

	mu       sync.Mutex
	sessions map[types.SessionID]*form.Controller
	closed   bool
}

// NewSessionService creates service instance with dependencies. catalog may
// be nil, in which case sessions open only from inline documents.
func NewSessionService(binder *specdoc.Binder, catalog SpecSource, maxSessions int, logger *slog.Logger, opts ...form.Option) (*SessionService, error) {
	if binder == nil {
		return nil, fmt.Errorf("binder cannot be nil")
	}
	if maxSessions <= 0 {
		return nil, fmt.Errorf("maxSessions must be positive, got %d", maxSessions)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &SessionService{
		binder:      binder,
		catalog:     catalog,
		opts:        opts,
		maxSessions: maxSessions,
		logger:      logger,
		sessions:    make(map[types.SessionID]*form.Controller),
	}, nil
}

// Open binds the requested document and mounts a controller on it.
func (s *SessionService) Open(ctx context.Context, req OpenRequest) (SessionView, error) {
	document, err := s.document(ctx, req)
	if err != nil {
		return SessionView{}, err
	}

	spec, err := s.binder.Load(document)
	if err != nil {
		return SessionView{}, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return SessionView{}, fmt.Errorf("%w: session service shut down", types.ErrClosed)
	}
	if len(s.sessions) >= s.maxSessions {
		s.mu.Unlock()
		return SessionView{}, fmt.Errorf("%w: limit %d", types.ErrTooManySessions, s.maxSessions)
	}
	id := types.NewSessionID()
	// Reserve the slot so concurrent opens respect the limit
	s.sessions[id] = nil
	s.mu.Unlock()

	opts := append([]form.Option{
		form.WithLogger(s.logger.With("session_id", id)),
		form.WithRenderers(form.DescriptorRenderers(spec)),
	}, s.opts...)

	c, err := form.New(spec, req.Initial, opts...)
	if err != nil {
		s.mu.Lock()
		delete(s.sessions, id)
		s.mu.Unlock()
		return SessionView{}, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		c.Close()
		return SessionView{}, fmt.Errorf("%w: session service shut down", types.ErrClosed)
	}
	s.sessions[id] = c
	open := len(s.sessions)
	s.mu.Unlock()

	s.logger.Info("session opened", "session_id", id, "spec", req.SpecName, "open_sessions", open)
	return view(id, c), nil
}

func (s *SessionService) document(ctx context.Context, req OpenRequest) ([]byte, error) {
	switch {
	case len(req.Document) > 0 && req.SpecName != "":
		return nil, fmt.Errorf("%w: document and spec name are exclusive", types.ErrInvalidSpec)
	case len(req.Document) > 0:
		return req.Document, nil
	case req.SpecName == "":
		return nil, fmt.Errorf("%w: document or spec name is required", types.ErrInvalidSpec)
	case s.catalog == nil:
		return nil, fmt.Errorf("%w: no catalog configured for %q", types.ErrSpecNotFound, req.SpecName)
	}

	rec, err := s.catalog.Get(ctx, req.SpecName)
	if err != nil {
		return nil, err
	}
	return []byte(rec.Document), nil
}

// Edit applies one change. With flush set, a pending debounced validation
// runs before the view is taken.
func (s *SessionService) Edit(ctx context.Context, id types.SessionID, key string, value any, flush bool) (SessionView, error) {
	c, err := s.session(id)
	if err != nil {
		return SessionView{}, err
	}
	if err := c.Edit(key, value); err != nil {
		return SessionView{}, err
	}
	if flush {
		c.Flush()
	}
	return view(id, c), nil
}

// Blur validates key with its full rule list.
func (s *SessionService) Blur(ctx context.Context, id types.SessionID, key string) (SessionView, error) {
	c, err := s.session(id)
	if err != nil {
		return SessionView{}, err
	}
	if err := c.Blur(key); err != nil {
		return SessionView{}, err
	}
	return view(id, c), nil
}

// Snapshot returns the initial state, current state and their diff.
func (s *SessionService) Snapshot(ctx context.Context, id types.SessionID) (types.Snapshot, error) {
	c, err := s.session(id)
	if err != nil {
		return types.Snapshot{}, err
	}
	return c.Snapshot(), nil
}

// Render returns a descriptor per visible element, grouped by section.
func (s *SessionService) Render(ctx context.Context, id types.SessionID) ([]any, error) {
	c, err := s.session(id)
	if err != nil {
		return nil, err
	}
	views, err := c.Render()
	if err != nil {
		return nil, err
	}
	return form.DescribeSections(views), nil
}

// Close releases the session's controller.
func (s *SessionService) Close(ctx context.Context, id types.SessionID) error {
	s.mu.Lock()
	c, ok := s.sessions[id]
	if ok && c != nil {
		delete(s.sessions, id)
	}
	s.mu.Unlock()

	if !ok || c == nil {
		return fmt.Errorf("%w: %s", types.ErrSessionNotFound, id)
	}
	s.logger.Info("session closed", "session_id", id)
	return c.Close()
}

// Shutdown closes every session.
func (s *SessionService) Shutdown() {
	s.mu.Lock()
	s.closed = true
	sessions := s.sessions
	s.sessions = make(map[types.SessionID]*form.Controller)
	s.mu.Unlock()

	for _, c := range sessions {
		if c != nil {
			c.Close()
		}
	}
}

// Len returns the number of open sessions.
func (s *SessionService) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *SessionService) session(id types.SessionID) (*form.Controller, error) {
	s.mu.Lock()
	c := s.sessions[id]
	s.mu.Unlock()
	if c == nil {
		return nil, fmt.Errorf("%w: %s", types.ErrSessionNotFound, id)
	}
	return c, nil
}

func view(id types.SessionID, c *form.Controller) SessionView {
	return SessionView{
		SessionID: id,
		State:     c.State(),
		Feedback:  c.AllFeedback(),
		CanSubmit: c.CanSubmit(),
	}
}
