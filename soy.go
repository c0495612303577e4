package ponder

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/zoobzio/astql/postgres"
	"github.com/zoobzio/soy"
)

// SoyArchive implements Archive using soy for persistence.
type SoyArchive struct {
	sessions  *soy.Soy[Session]
	thoughts  *soy.Soy[Thought]
	questions *soy.Soy[Question]
	syntheses *soy.Soy[Synthesis]
	db        *sqlx.DB
}

// NewSoyArchive creates a new soy-backed Archive implementation.
func NewSoyArchive(db *sqlx.DB) (*SoyArchive, error) {
	renderer := postgres.New()

	sessions, err := soy.New[Session](db, "sessions", renderer)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize sessions table: %w", err)
	}

	thoughts, err := soy.New[Thought](db, "thoughts", renderer)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize thoughts table: %w", err)
	}

	questions, err := soy.New[Question](db, "questions", renderer)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize questions table: %w", err)
	}

	syntheses, err := soy.New[Synthesis](db, "syntheses", renderer)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize syntheses table: %w", err)
	}

	return &SoyArchive{
		sessions:  sessions,
		thoughts:  thoughts,
		questions: questions,
		syntheses: syntheses,
		db:        db,
	}, nil
}

// CreateSession persists a new session and returns it with ID populated.
func (a *SoyArchive) CreateSession(ctx context.Context, session *Session) (*Session, error) {
	inserted, err := a.sessions.Insert().Exec(ctx, session)
	if err != nil {
		return nil, fmt.Errorf("failed to insert session: %w", err)
	}
	return inserted, nil
}

// GetSession loads a session by ID.
func (a *SoyArchive) GetSession(ctx context.Context, id string) (*Session, error) {
	session, err := a.sessions.Select().
		Where("id", "=", "id").
		Exec(ctx, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSessionNotFound, id, err)
	}
	return session, nil
}

// UpdateSession writes the session's mutable lifecycle and outcome fields.
func (a *SoyArchive) UpdateSession(ctx context.Context, session *Session) error {
	_, err := a.sessions.Modify().
		Set("status", "status").
		Set("started_at", "started_at").
		Set("paused_at", "paused_at").
		Set("resumed_at", "resumed_at").
		Set("completed_at", "completed_at").
		Set("paused_seconds", "paused_seconds").
		Set("final_answer", "final_answer").
		Set("final_confidence", "final_confidence").
		Set("confidence_trail", "confidence_trail").
		Where("id", "=", "id").
		Exec(ctx, map[string]any{
			"status":           session.Status,
			"started_at":       session.StartedAt,
			"paused_at":        session.PausedAt,
			"resumed_at":       session.ResumedAt,
			"completed_at":     session.CompletedAt,
			"paused_seconds":   session.PausedSeconds,
			"final_answer":     session.FinalAnswer,
			"final_confidence": session.FinalConfidence,
			"confidence_trail": session.ConfidenceTrail,
			"id":               session.ID,
		})
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	return nil
}

// UpdateConfidenceTrail writes only the session's confidence trail.
func (a *SoyArchive) UpdateConfidenceTrail(ctx context.Context, sessionID string, trail FloatList) error {
	_, err := a.sessions.Modify().
		Set("confidence_trail", "confidence_trail").
		Where("id", "=", "id").
		Exec(ctx, map[string]any{
			"confidence_trail": trail,
			"id":               sessionID,
		})
	if err != nil {
		return fmt.Errorf("failed to update confidence trail: %w", err)
	}
	return nil
}

// ListSessions loads sessions ordered by creation time, optionally filtered
// by status.
func (a *SoyArchive) ListSessions(ctx context.Context, status Status) ([]*Session, error) {
	query := a.sessions.Query().OrderBy("created_at", "asc")
	params := map[string]any{}
	if status != "" {
		query = query.Where("status", "=", "status")
		params["status"] = status
	}

	sessions, err := query.Exec(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}

// AppendThought persists a thought and returns it with ID populated.
func (a *SoyArchive) AppendThought(ctx context.Context, thought *Thought) (*Thought, error) {
	inserted, err := a.thoughts.Insert().Exec(ctx, thought)
	if err != nil {
		return nil, fmt.Errorf("failed to insert thought: %w", err)
	}
	return inserted, nil
}

// ListThoughts loads all thoughts for a session ordered by sequence.
func (a *SoyArchive) ListThoughts(ctx context.Context, sessionID string) ([]Thought, error) {
	ptrs, err := a.thoughts.Query().
		Where("session_id", "=", "session_id").
		OrderBy("seq", "asc").
		Exec(ctx, map[string]any{"session_id": sessionID})
	if err != nil {
		return nil, fmt.Errorf("failed to list thoughts: %w", err)
	}

	thoughts := make([]Thought, len(ptrs))
	for i, t := range ptrs {
		thoughts[i] = *t
	}
	return thoughts, nil
}

// AppendQuestion persists a sub-question and returns it with ID populated.
func (a *SoyArchive) AppendQuestion(ctx context.Context, question *Question) (*Question, error) {
	inserted, err := a.questions.Insert().Exec(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("failed to insert question: %w", err)
	}
	return inserted, nil
}

// UpdateQuestion writes a question's priority and explored flag.
func (a *SoyArchive) UpdateQuestion(ctx context.Context, question *Question) error {
	_, err := a.questions.Modify().
		Set("priority", "priority").
		Set("explored", "explored").
		Where("id", "=", "id").
		Exec(ctx, map[string]any{
			"priority": question.Priority,
			"explored": question.Explored,
			"id":       question.ID,
		})
	if err != nil {
		return fmt.Errorf("failed to update question: %w", err)
	}
	return nil
}

// ListQuestions loads all sub-questions for a session in creation order.
func (a *SoyArchive) ListQuestions(ctx context.Context, sessionID string) ([]Question, error) {
	ptrs, err := a.questions.Query().
		Where("session_id", "=", "session_id").
		OrderBy("created", "asc").
		Exec(ctx, map[string]any{"session_id": sessionID})
	if err != nil {
		return nil, fmt.Errorf("failed to list questions: %w", err)
	}

	questions := make([]Question, len(ptrs))
	for i, q := range ptrs {
		questions[i] = *q
	}
	return questions, nil
}

// AppendSynthesis persists a synthesis and returns it with ID populated.
func (a *SoyArchive) AppendSynthesis(ctx context.Context, synthesis *Synthesis) (*Synthesis, error) {
	inserted, err := a.syntheses.Insert().Exec(ctx, synthesis)
	if err != nil {
		return nil, fmt.Errorf("failed to insert synthesis: %w", err)
	}
	return inserted, nil
}

// ListSyntheses loads all syntheses for a session ordered by sequence.
func (a *SoyArchive) ListSyntheses(ctx context.Context, sessionID string) ([]Synthesis, error) {
	ptrs, err := a.syntheses.Query().
		Where("session_id", "=", "session_id").
		OrderBy("seq", "asc").
		Exec(ctx, map[string]any{"session_id": sessionID})
	if err != nil {
		return nil, fmt.Errorf("failed to list syntheses: %w", err)
	}

	syntheses := make([]Synthesis, len(ptrs))
	for i, s := range ptrs {
		syntheses[i] = *s
	}
	return syntheses, nil
}

// Close closes the underlying database connection.
func (a *SoyArchive) Close() error {
	return a.db.Close()
}
