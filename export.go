package ponder

import "context"

// Export is a complete portable snapshot of one session: the record itself
// plus every thought, sub-question, and synthesis in order.
type Export struct {
	Session   *Session    `json:"session"`
	Thoughts  []Thought   `json:"thoughts"`
	Questions []Question  `json:"questions"`
	Syntheses []Synthesis `json:"syntheses"`
}

// Export assembles a session snapshot from the archive. It works in any
// session state; an in-flight session exports whatever is persisted so far.
func (m *Manager) Export(ctx context.Context, id string) (*Export, error) {
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

	return &Export{
		Session:   session,
		Thoughts:  thoughts,
		Questions: questions,
		Syntheses: syntheses,
	}, nil
}
