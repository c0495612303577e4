package ponder

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/zoobzio/capitan"
)

// worker tracks one running reasoning loop. done closes only after the loop
// has fully returned, so a closed channel is the stop confirmation Resume
// waits for.
type worker struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Manager owns the session lifecycle: it creates sessions, launches their
// reasoning loops, enforces the concurrency ceiling, and guarantees a single
// writer per session. All lifecycle writes happen under the manager's lock;
// loops only write progress records and terminal transitions.
type Manager struct {
	archive Archive
	cfg     Config
	now     func() time.Time

	mu        sync.Mutex
	workers   map[string]*worker
	providers map[string]Provider
	fallback  Provider
	closed    bool
}

// NewManager creates a manager over the given archive.
// The zero Config is usable; unset fields take package defaults.
func NewManager(archive Archive, cfg Config) *Manager {
	return &Manager{
		archive:   archive,
		cfg:       cfg.withDefaults(),
		now:       time.Now,
		workers:   make(map[string]*worker),
		providers: make(map[string]Provider),
	}
}

// RegisterProvider routes sessions whose model matches to the given provider.
// Unmatched models fall back to WithFallback, then the context/global chain.
func (m *Manager) RegisterProvider(model string, p Provider) *Manager {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.providers[model] = p
	return m
}

// WithFallback sets the provider used for models with no registration.
func (m *Manager) WithFallback(p Provider) *Manager {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = p
	return m
}

func (m *Manager) providerFor(model string) Provider {
	if p, ok := m.providers[model]; ok {
		return p
	}
	return m.fallback
}

// Start creates a session and launches its reasoning loop. The capacity
// ceiling is checked first: a rejected start leaves no record behind.
//
// durationMinutes is the thinking budget; synthesisInterval <= 0 takes the
// configured default. The interval is persisted with the session so its
// cadence survives pause/resume.
func (m *Manager) Start(ctx context.Context, question, model string, durationMinutes int, synthesisInterval time.Duration) (*Session, error) {
	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("question must not be empty")
	}
	if durationMinutes <= 0 {
		return nil, fmt.Errorf("duration must be positive, got %d minutes", durationMinutes)
	}
	if synthesisInterval <= 0 {
		synthesisInterval = m.cfg.SynthesisInterval
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrManagerClosed
	}
	if len(m.workers) >= m.cfg.MaxConcurrent {
		return nil, fmt.Errorf("%w: %d sessions thinking", ErrCapacityExceeded, len(m.workers))
	}

	// The session is persisted already thinking in a single write: a failed
	// create leaves no record, and no intermediate created row ever exists.
	status, err := transition(StatusCreated, ActionStart)
	if err != nil {
		return nil, err
	}

	now := m.now()
	session := &Session{
		Question:                 question,
		Model:                    model,
		DurationMinutes:          durationMinutes,
		SynthesisIntervalSeconds: int(synthesisInterval.Seconds()),
		Status:                   status,
		CreatedAt:                now,
		StartedAt:                &now,
	}

	session, err = m.archive.CreateSession(ctx, session)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	capitan.Emit(ctx, SessionCreated,
		FieldSessionID.Field(session.ID),
		FieldQuestion.Field(session.Question),
		FieldModel.Field(session.Model),
	)

	m.launch(session)

	capitan.Emit(ctx, SessionStarted,
		FieldSessionID.Field(session.ID),
		FieldModel.Field(session.Model),
	)

	return session, nil
}

// Pause freezes a thinking session's budget and signals its loop to stop at
// the next iteration boundary. The in-flight generation call, if any, is
// allowed to finish; Pause does not wait for the loop to exit.
func (m *Manager) Pause(ctx context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, err := m.archive.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}

	next, err := transition(session.Status, ActionPause)
	if err != nil {
		return nil, err
	}

	// Persist paused before canceling so the loop's terminal writes, which
	// re-read and re-check the transition, cannot race past the pause.
	now := m.now()
	session.Status = next
	session.PausedAt = &now
	if err := m.archive.UpdateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to pause session: %w", err)
	}

	if w, ok := m.workers[id]; ok {
		w.cancel()
	}

	capitan.Emit(ctx, SessionPaused,
		FieldSessionID.Field(session.ID),
		FieldElapsed.Field(session.Elapsed(now)),
		FieldProgress.Field(float32(session.Progress(now))),
	)

	return session, nil
}

// Resume restarts a paused session with a fresh worker. It is rejected with
// ErrWorkerActive until the prior worker has confirmed it stopped, and with
// ErrCapacityExceeded at the concurrency ceiling. The pause interval is
// added to the session's paused time so the budget excludes it.
func (m *Manager) Resume(ctx context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrManagerClosed
	}

	if w, ok := m.workers[id]; ok {
		select {
		case <-w.done:
			delete(m.workers, id)
		default:
			return nil, fmt.Errorf("%w: session %s", ErrWorkerActive, id)
		}
	}

	if len(m.workers) >= m.cfg.MaxConcurrent {
		return nil, fmt.Errorf("%w: %d sessions thinking", ErrCapacityExceeded, len(m.workers))
	}

	session, err := m.archive.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}

	next, err := transition(session.Status, ActionResume)
	if err != nil {
		return nil, err
	}

	now := m.now()
	if session.PausedAt != nil {
		session.PausedSeconds += now.Sub(*session.PausedAt).Seconds()
	}
	session.Status = next
	session.ResumedAt = &now
	session.PausedAt = nil
	if err := m.archive.UpdateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to resume session: %w", err)
	}

	m.launch(session)

	capitan.Emit(ctx, SessionResumed,
		FieldSessionID.Field(session.ID),
		FieldElapsed.Field(session.Elapsed(now)),
	)

	return session, nil
}

// launch registers a worker and starts its loop. Caller holds m.mu.
func (m *Manager) launch(session *Session) {
	runCtx, cancel := context.WithCancel(context.Background())
	w := &worker{cancel: cancel, done: make(chan struct{})}
	m.workers[session.ID] = w

	eng := newEngine(session, m.archive, m.providerFor(session.Model), m.cfg, m.now)

	go func() {
		defer close(w.done)
		defer m.release(session.ID, w)
		defer cancel()

		ctx := context.Background()
		if err := eng.restore(ctx); err != nil {
			eng.fail(ctx, err)
			return
		}
		eng.run(runCtx)
	}()
}

// release removes the worker's registry entry once its loop has returned,
// freeing both the capacity slot and the single-writer hold.
func (m *Manager) release(id string, w *worker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.workers[id] == w {
		delete(m.workers, id)
	}
}

// Summary is a point-in-time view of a session's progress.
type Summary struct {
	SessionID  string
	Question   string
	Model      string
	Status     Status
	Elapsed    time.Duration
	Remaining  time.Duration
	Progress   float64
	Confidence float64
	Thoughts   int
	Questions  int
	Explored   int
	Syntheses  int
}

// Status reports a session's current state and record counts. It reads only
// the archive, so it works for sessions this manager never launched.
func (m *Manager) Status(ctx context.Context, id string) (*Summary, error) {
	session, err := m.archive.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}

	thoughts, err := m.archive.ListThoughts(ctx, id)
	if err != nil {
		return nil, err
	}
	questions, err := m.archive.ListQuestions(ctx, id)
	if err != nil {
		return nil, err
	}
	syntheses, err := m.archive.ListSyntheses(ctx, id)
	if err != nil {
		return nil, err
	}

	explored := 0
	for _, q := range questions {
		if q.Explored {
			explored++
		}
	}

	now := m.now()
	elapsed := session.Elapsed(now)
	remaining := session.Budget() - elapsed
	if remaining < 0 {
		remaining = 0
	}

	return &Summary{
		SessionID:  session.ID,
		Question:   session.Question,
		Model:      session.Model,
		Status:     session.Status,
		Elapsed:    elapsed,
		Remaining:  remaining,
		Progress:   session.Progress(now),
		Confidence: session.Confidence(),
		Thoughts:   len(thoughts),
		Questions:  len(questions),
		Explored:   explored,
		Syntheses:  len(syntheses),
	}, nil
}

// Sessions lists sessions, optionally filtered by status.
func (m *Manager) Sessions(ctx context.Context, status Status) ([]*Session, error) {
	return m.archive.ListSessions(ctx, status)
}

// Session loads one session by ID.
func (m *Manager) Session(ctx context.Context, id string) (*Session, error) {
	return m.archive.GetSession(ctx, id)
}

// Thoughts lists a session's thoughts in sequence order.
func (m *Manager) Thoughts(ctx context.Context, id string) ([]Thought, error) {
	return m.archive.ListThoughts(ctx, id)
}

// Questions lists a session's sub-questions in creation order.
func (m *Manager) Questions(ctx context.Context, id string) ([]Question, error) {
	return m.archive.ListQuestions(ctx, id)
}

// Syntheses lists a session's syntheses in sequence order.
func (m *Manager) Syntheses(ctx context.Context, id string) ([]Synthesis, error) {
	return m.archive.ListSyntheses(ctx, id)
}

// Wait blocks until the session's worker has stopped, or ctx is done. It
// returns immediately for sessions with no running worker.
func (m *Manager) Wait(ctx context.Context, id string) error {
	m.mu.Lock()
	w, ok := m.workers[id]
	m.mu.Unlock()
	if !ok {
		return nil
	}

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close signals every running loop to stop and waits for all of them to
// return. Sessions left mid-thought stay in the thinking state and can be
// picked up by a new manager over the same archive.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	waiting := make([]*worker, 0, len(m.workers))
	for _, w := range m.workers {
		w.cancel()
		waiting = append(waiting, w)
	}
	m.mu.Unlock()

	for _, w := range waiting {
		<-w.done
	}
}
