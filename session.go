package ponder

import (
	"fmt"
	"time"
)

// Status is the closed set of session states.
type Status string

const (
	StatusCreated   Status = "created"
	StatusThinking  Status = "thinking"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Action is a requested lifecycle change.
type Action string

const (
	ActionStart    Action = "start"
	ActionPause    Action = "pause"
	ActionResume   Action = "resume"
	ActionComplete Action = "complete"
	ActionFail     Action = "fail"
)

// transition returns the next status for (current, action). Anything not
// explicitly allowed is rejected: only thinking accepts pause, only paused
// accepts resume, and terminal states accept nothing.
func transition(current Status, action Action) (Status, error) {
	switch {
	case current == StatusCreated && action == ActionStart:
		return StatusThinking, nil
	case current == StatusThinking && action == ActionPause:
		return StatusPaused, nil
	case current == StatusPaused && action == ActionResume:
		return StatusThinking, nil
	case current == StatusThinking && action == ActionComplete:
		return StatusCompleted, nil
	case current == StatusThinking && action == ActionFail:
		return StatusFailed, nil
	default:
		return current, fmt.Errorf("%w: cannot %s a %s session", ErrInvalidTransition, action, current)
	}
}

// Session represents one reasoning run.
//
// A session is created by the Manager and mutated only by the Manager
// (lifecycle fields) and its single reasoning loop (progress fields). The
// core never deletes sessions.
type Session struct {
	// Identity
	ID       string `db:"id" type:"uuid" constraints:"primarykey" default:"gen_random_uuid()"`
	Question string `db:"question" type:"text" constraints:"notnull"`
	Model    string `db:"model" type:"text" constraints:"notnull"`

	// Budget
	DurationMinutes          int `db:"duration_minutes" type:"integer" constraints:"notnull"`
	SynthesisIntervalSeconds int `db:"synthesis_interval_seconds" type:"integer" constraints:"notnull"`

	// Lifecycle
	Status      Status     `db:"status" type:"text" constraints:"notnull"`
	CreatedAt   time.Time  `db:"created_at" type:"timestamp" constraints:"notnull"`
	StartedAt   *time.Time `db:"started_at" type:"timestamp"`
	PausedAt    *time.Time `db:"paused_at" type:"timestamp"`
	ResumedAt   *time.Time `db:"resumed_at" type:"timestamp"`
	CompletedAt *time.Time `db:"completed_at" type:"timestamp"`

	// PausedSeconds accumulates every completed pause interval so elapsed
	// time stays correct across any number of pause/resume cycles.
	PausedSeconds float64 `db:"paused_seconds" type:"double precision" default:"0"`

	// Outcome
	FinalAnswer     string    `db:"final_answer" type:"text" default:"''"`
	FinalConfidence float64   `db:"final_confidence" type:"double precision" default:"0"`
	ConfidenceTrail FloatList `db:"confidence_trail" type:"jsonb" default:"'[]'"`
}

// Budget returns the configured thinking duration.
func (s *Session) Budget() time.Duration {
	return time.Duration(s.DurationMinutes) * time.Minute
}

// SynthesisInterval returns the configured synthesis cadence.
func (s *Session) SynthesisInterval() time.Duration {
	return time.Duration(s.SynthesisIntervalSeconds) * time.Second
}

// Elapsed returns wall-clock time since start, net of pauses. It is frozen
// while the session is paused and after it reaches a terminal state.
func (s *Session) Elapsed(now time.Time) time.Duration {
	if s.StartedAt == nil {
		return 0
	}

	end := now
	switch {
	case s.CompletedAt != nil:
		end = *s.CompletedAt
	case s.Status == StatusPaused && s.PausedAt != nil:
		end = *s.PausedAt
	}

	elapsed := end.Sub(*s.StartedAt) - time.Duration(s.PausedSeconds*float64(time.Second))
	if elapsed < 0 {
		elapsed = 0
	}
	return elapsed
}

// Progress returns percent of the budget consumed, clamped to [0,100].
func (s *Session) Progress(now time.Time) float64 {
	budget := s.Budget()
	if budget <= 0 {
		return 0
	}

	pct := s.Elapsed(now).Seconds() / budget.Seconds() * 100
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

// Exhausted reports whether the time budget is spent.
func (s *Session) Exhausted(now time.Time) bool {
	return s.Elapsed(now) >= s.Budget()
}

// Confidence returns the most recent recorded confidence, or 0 before the
// first synthesis.
func (s *Session) Confidence() float64 {
	if s.Status == StatusCompleted {
		return s.FinalConfidence
	}
	if n := len(s.ConfidenceTrail); n > 0 {
		return s.ConfidenceTrail[n-1]
	}
	return 0
}
