// Package pondertest provides test utilities for ponder.
package pondertest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zoobzio/ponder"
	"github.com/zoobzio/zyn"
)

// MockArchive implements ponder.Archive in memory for testing without a
// database. All methods copy records on the way in and out, so callers and
// running loops never share mutable state.
type MockArchive struct {
	mu        sync.RWMutex
	sessions  map[string]*ponder.Session
	order     []string
	thoughts  map[string][]ponder.Thought
	questions map[string][]ponder.Question
	syntheses map[string][]ponder.Synthesis
}

// NewMockArchive creates a new in-memory mock for ponder.Archive.
func NewMockArchive() *MockArchive {
	return &MockArchive{
		sessions:  make(map[string]*ponder.Session),
		thoughts:  make(map[string][]ponder.Thought),
		questions: make(map[string][]ponder.Question),
		syntheses: make(map[string][]ponder.Synthesis),
	}
}

// CreateSession persists a new session and returns it with ID populated.
func (m *MockArchive) CreateSession(_ context.Context, session *ponder.Session) (*ponder.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := *session
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	m.sessions[s.ID] = &s
	m.order = append(m.order, s.ID)

	out := s
	return &out, nil
}

// GetSession loads a session by ID.
func (m *MockArchive) GetSession(_ context.Context, id string) (*ponder.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ponder.ErrSessionNotFound, id)
	}
	out := *s
	out.ConfidenceTrail = append(ponder.FloatList(nil), s.ConfidenceTrail...)
	return &out, nil
}

// UpdateSession writes the session's mutable fields.
func (m *MockArchive) UpdateSession(_ context.Context, session *ponder.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[session.ID]; !ok {
		return fmt.Errorf("%w: %s", ponder.ErrSessionNotFound, session.ID)
	}
	s := *session
	s.ConfidenceTrail = append(ponder.FloatList(nil), session.ConfidenceTrail...)
	m.sessions[s.ID] = &s
	return nil
}

// UpdateConfidenceTrail writes only the session's confidence trail.
func (m *MockArchive) UpdateConfidenceTrail(_ context.Context, sessionID string, trail ponder.FloatList) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return fmt.Errorf("%w: %s", ponder.ErrSessionNotFound, sessionID)
	}
	s.ConfidenceTrail = append(ponder.FloatList(nil), trail...)
	return nil
}

// ListSessions loads sessions in creation order, optionally filtered by status.
func (m *MockArchive) ListSessions(_ context.Context, status ponder.Status) ([]*ponder.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*ponder.Session
	for _, id := range m.order {
		s := m.sessions[id]
		if status != "" && s.Status != status {
			continue
		}
		copied := *s
		out = append(out, &copied)
	}
	return out, nil
}

// AppendThought persists a thought and returns it with ID populated.
func (m *MockArchive) AppendThought(_ context.Context, thought *ponder.Thought) (*ponder.Thought, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := *thought
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	m.thoughts[t.SessionID] = append(m.thoughts[t.SessionID], t)

	out := t
	return &out, nil
}

// ListThoughts loads all thoughts for a session in sequence order.
func (m *MockArchive) ListThoughts(_ context.Context, sessionID string) ([]ponder.Thought, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]ponder.Thought(nil), m.thoughts[sessionID]...), nil
}

// AppendQuestion persists a sub-question and returns it with ID populated.
func (m *MockArchive) AppendQuestion(_ context.Context, question *ponder.Question) (*ponder.Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	q := *question
	if q.ID == "" {
		q.ID = uuid.New().String()
	}
	m.questions[q.SessionID] = append(m.questions[q.SessionID], q)

	out := q
	return &out, nil
}

// UpdateQuestion writes a question's priority and explored flag.
func (m *MockArchive) UpdateQuestion(_ context.Context, question *ponder.Question) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	list := m.questions[question.SessionID]
	for i := range list {
		if list[i].ID == question.ID {
			list[i].Priority = question.Priority
			list[i].Explored = question.Explored
			return nil
		}
	}
	return fmt.Errorf("question not found: %s", question.ID)
}

// ListQuestions loads all sub-questions for a session in creation order.
func (m *MockArchive) ListQuestions(_ context.Context, sessionID string) ([]ponder.Question, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]ponder.Question(nil), m.questions[sessionID]...), nil
}

// AppendSynthesis persists a synthesis and returns it with ID populated.
func (m *MockArchive) AppendSynthesis(_ context.Context, synthesis *ponder.Synthesis) (*ponder.Synthesis, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := *synthesis
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	m.syntheses[s.SessionID] = append(m.syntheses[s.SessionID], s)

	out := s
	return &out, nil
}

// ListSyntheses loads all syntheses for a session in sequence order.
func (m *MockArchive) ListSyntheses(_ context.Context, sessionID string) ([]ponder.Synthesis, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]ponder.Synthesis(nil), m.syntheses[sessionID]...), nil
}

// Verify MockArchive implements ponder.Archive.
var _ ponder.Archive = (*MockArchive)(nil)

// ScriptedProvider implements ponder.Provider with a script over the last
// message content. The script decides the reply; an optional per-call delay
// honors context cancellation, which makes timeout behavior testable.
type ScriptedProvider struct {
	name   string
	script func(prompt string) (string, error)
	delay  time.Duration

	mu    sync.Mutex
	calls []string
}

// NewScriptedProvider creates a provider whose replies come from script.
func NewScriptedProvider(name string, script func(prompt string) (string, error)) *ScriptedProvider {
	return &ScriptedProvider{name: name, script: script}
}

// WithDelay makes every call wait for d before replying, respecting the
// call's context deadline.
func (p *ScriptedProvider) WithDelay(d time.Duration) *ScriptedProvider {
	p.delay = d
	return p
}

// Call implements ponder.Provider.
func (p *ScriptedProvider) Call(ctx context.Context, messages []zyn.Message, _ float32) (*zyn.ProviderResponse, error) {
	if len(messages) == 0 {
		return nil, fmt.Errorf("no messages")
	}
	prompt := messages[len(messages)-1].Content

	p.mu.Lock()
	p.calls = append(p.calls, prompt)
	p.mu.Unlock()

	if p.delay > 0 {
		timer := time.NewTimer(p.delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	reply, err := p.script(prompt)
	if err != nil {
		return nil, err
	}
	return &zyn.ProviderResponse{
		Content: reply,
		Usage:   zyn.TokenUsage{Prompt: len(prompt) / 4, Completion: len(reply) / 4, Total: (len(prompt) + len(reply)) / 4},
	}, nil
}

// Name implements ponder.Provider.
func (p *ScriptedProvider) Name() string {
	return p.name
}

// Calls returns the prompts received so far, in order.
func (p *ScriptedProvider) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

// Verify ScriptedProvider implements ponder.Provider.
var _ ponder.Provider = (*ScriptedProvider)(nil)
