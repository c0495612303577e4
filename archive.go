package ponder

import "context"

// Archive defines the interface for session persistence.
// Sessions support create/read/update; child records are append-only and
// listed in sequence order. The core never deletes anything; retention is
// the archive implementation's concern.
type Archive interface {
	// CreateSession persists a new session and returns it with ID populated.
	CreateSession(ctx context.Context, session *Session) (*Session, error)

	// GetSession loads a session by ID.
	GetSession(ctx context.Context, id string) (*Session, error)

	// UpdateSession writes the session's mutable lifecycle and outcome fields.
	UpdateSession(ctx context.Context, session *Session) error

	// UpdateConfidenceTrail writes only the session's confidence trail.
	// The loop records trail progress with this so a concurrent lifecycle
	// write (a pause) is never overwritten.
	UpdateConfidenceTrail(ctx context.Context, sessionID string, trail FloatList) error

	// ListSessions loads sessions ordered by creation time, optionally
	// filtered by status (empty status means all).
	ListSessions(ctx context.Context, status Status) ([]*Session, error)

	// AppendThought persists a thought and returns it with ID populated.
	AppendThought(ctx context.Context, thought *Thought) (*Thought, error)

	// ListThoughts loads all thoughts for a session ordered by sequence.
	ListThoughts(ctx context.Context, sessionID string) ([]Thought, error)

	// AppendQuestion persists a sub-question and returns it with ID populated.
	AppendQuestion(ctx context.Context, question *Question) (*Question, error)

	// UpdateQuestion writes a question's priority and explored flag.
	UpdateQuestion(ctx context.Context, question *Question) error

	// ListQuestions loads all sub-questions for a session in creation order.
	ListQuestions(ctx context.Context, sessionID string) ([]Question, error)

	// AppendSynthesis persists a synthesis and returns it with ID populated.
	AppendSynthesis(ctx context.Context, synthesis *Synthesis) (*Synthesis, error)

	// ListSyntheses loads all syntheses for a session ordered by sequence.
	ListSyntheses(ctx context.Context, sessionID string) ([]Synthesis, error)
}
