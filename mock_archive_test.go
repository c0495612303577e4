package ponder

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zoobzio/zyn"
)

// mockArchive implements Archive in memory for testing. It mirrors the
// exported mock in testing/pondertest, which cannot be imported here without
// a cycle.
type mockArchive struct {
	mu        sync.RWMutex
	sessions  map[string]*Session
	order     []string
	thoughts  map[string][]Thought
	questions map[string][]Question
	syntheses map[string][]Synthesis

	// Fault injection: methods named here fail with failErr.
	failOn  map[string]bool
	failErr error
}

func newMockArchive() *mockArchive {
	return &mockArchive{
		sessions:  make(map[string]*Session),
		thoughts:  make(map[string][]Thought),
		questions: make(map[string][]Question),
		syntheses: make(map[string][]Synthesis),
		failOn:    make(map[string]bool),
	}
}

func (m *mockArchive) failing(method string) error {
	if m.failOn[method] {
		return m.failErr
	}
	return nil
}

func (m *mockArchive) CreateSession(_ context.Context, session *Session) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failing("CreateSession"); err != nil {
		return nil, err
	}

	s := *session
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	m.sessions[s.ID] = &s
	m.order = append(m.order, s.ID)

	out := s
	return &out, nil
}

func (m *mockArchive) GetSession(_ context.Context, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.failing("GetSession"); err != nil {
		return nil, err
	}

	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	out := *s
	out.ConfidenceTrail = append(FloatList(nil), s.ConfidenceTrail...)
	return &out, nil
}

func (m *mockArchive) UpdateSession(_ context.Context, session *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failing("UpdateSession"); err != nil {
		return err
	}

	if _, ok := m.sessions[session.ID]; !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, session.ID)
	}
	s := *session
	s.ConfidenceTrail = append(FloatList(nil), session.ConfidenceTrail...)
	m.sessions[s.ID] = &s
	return nil
}

func (m *mockArchive) UpdateConfidenceTrail(_ context.Context, sessionID string, trail FloatList) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failing("UpdateConfidenceTrail"); err != nil {
		return err
	}

	s, ok := m.sessions[sessionID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	s.ConfidenceTrail = append(FloatList(nil), trail...)
	return nil
}

func (m *mockArchive) ListSessions(_ context.Context, status Status) ([]*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Session
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

func (m *mockArchive) AppendThought(_ context.Context, thought *Thought) (*Thought, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failing("AppendThought"); err != nil {
		return nil, err
	}

	t := *thought
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	m.thoughts[t.SessionID] = append(m.thoughts[t.SessionID], t)

	out := t
	return &out, nil
}

func (m *mockArchive) ListThoughts(_ context.Context, sessionID string) ([]Thought, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Thought(nil), m.thoughts[sessionID]...), nil
}

func (m *mockArchive) AppendQuestion(_ context.Context, question *Question) (*Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failing("AppendQuestion"); err != nil {
		return nil, err
	}

	q := *question
	if q.ID == "" {
		q.ID = uuid.New().String()
	}
	m.questions[q.SessionID] = append(m.questions[q.SessionID], q)

	out := q
	return &out, nil
}

func (m *mockArchive) UpdateQuestion(_ context.Context, question *Question) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failing("UpdateQuestion"); err != nil {
		return err
	}

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

func (m *mockArchive) ListQuestions(_ context.Context, sessionID string) ([]Question, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Question(nil), m.questions[sessionID]...), nil
}

func (m *mockArchive) AppendSynthesis(_ context.Context, synthesis *Synthesis) (*Synthesis, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failing("AppendSynthesis"); err != nil {
		return nil, err
	}

	s := *synthesis
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	m.syntheses[s.SessionID] = append(m.syntheses[s.SessionID], s)

	out := s
	return &out, nil
}

func (m *mockArchive) ListSyntheses(_ context.Context, sessionID string) ([]Synthesis, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Synthesis(nil), m.syntheses[sessionID]...), nil
}

var _ Archive = (*mockArchive)(nil)

// scriptedProvider implements Provider over a script function, like the
// exported version in testing/pondertest. The script sees the user prompt.
type scriptedProvider struct {
	name   string
	script func(prompt string) (string, error)
	delay  time.Duration

	mu    sync.Mutex
	calls []string
}

func newScriptedProvider(name string, script func(string) (string, error)) *scriptedProvider {
	return &scriptedProvider{name: name, script: script}
}

func (p *scriptedProvider) withDelay(d time.Duration) *scriptedProvider {
	p.delay = d
	return p
}

func (p *scriptedProvider) Call(ctx context.Context, messages []zyn.Message, _ float32) (*zyn.ProviderResponse, error) {
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
		Usage:   zyn.TokenUsage{Prompt: 10, Completion: 20, Total: 30},
	}, nil
}

func (p *scriptedProvider) Name() string { return p.name }

func (p *scriptedProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

var _ Provider = (*scriptedProvider)(nil)

// reasonerScript answers every loop prompt kind with well-formed output, so
// a full session can run end to end against it.
func reasonerScript(prompt string) (string, error) {
	switch {
	case strings.Contains(prompt, "distinct reasoning steps"):
		return thoughtReply(4), nil
	case strings.Contains(prompt, "follow-up questions"):
		return "QUESTION: What about edge cases?\nPRIORITY: 8\nRATIONALE: untested paths\n---\nQUESTION: Is the premise sound?\nPRIORITY: 6\nRATIONALE: foundational\n", nil
	case strings.Contains(prompt, "revise the priority"):
		return "1: 9\n", nil
	case strings.Contains(prompt, "SYNTHESIS:"):
		return "SYNTHESIS: Progress consolidated into a working answer.\nKEY_INSIGHTS:\n- main insight\nCONFIDENCE: 0.8\nREMAINING_QUESTIONS:\n- one open thread\n", nil
	default:
		return "", fmt.Errorf("unrecognized prompt: %s", prompt)
	}
}

func thoughtReply(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "THOUGHT: reasoning step %d\nTYPE: exploration\nCONFIDENCE: 0.7\n---\n", i)
	}
	return b.String()
}
