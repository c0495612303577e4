package ponder

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ThoughtKind classifies a reasoning step.
type ThoughtKind string

const (
	ThoughtExploration ThoughtKind = "exploration"
	ThoughtCritique    ThoughtKind = "critique"
	ThoughtConnection  ThoughtKind = "connection"
	ThoughtInsight     ThoughtKind = "insight"
)

// knownThoughtKinds is the closed label set the parser accepts.
var knownThoughtKinds = map[ThoughtKind]bool{
	ThoughtExploration: true,
	ThoughtCritique:    true,
	ThoughtConnection:  true,
	ThoughtInsight:     true,
}

// Thought is one atomic reasoning step. Thoughts are append-only and written
// only by the session's reasoning loop; Seq is contiguous from 0 per session.
type Thought struct {
	ID        string      `db:"id" type:"uuid" constraints:"primarykey" default:"gen_random_uuid()"`
	SessionID string      `db:"session_id" type:"uuid" constraints:"notnull" references:"sessions(id)"`
	Seq       int         `db:"seq" type:"integer" constraints:"notnull"`
	Content   string      `db:"content" type:"text" constraints:"notnull"`
	Kind      ThoughtKind `db:"kind" type:"text" constraints:"notnull"`
	Confidence float64    `db:"confidence" type:"double precision" constraints:"notnull"`

	// OffsetSeconds is elapsed session time (net of pauses) when the
	// thought was produced.
	OffsetSeconds float64 `db:"offset_seconds" type:"double precision" constraints:"notnull"`

	// QuestionID links the thought to the sub-question it was generated to
	// address, if the focus was not the original question.
	QuestionID *string `db:"question_id" type:"uuid" references:"questions(id)"`

	Created time.Time `db:"created" type:"timestamp" constraints:"notnull"`
}

// Question is a discovered unknown. Priority is 1-10 (10 most important) and
// may be revised by reprioritization; Explored flips to true the moment the
// loop selects the question as focus.
type Question struct {
	ID        string    `db:"id" type:"uuid" constraints:"primarykey" default:"gen_random_uuid()"`
	SessionID string    `db:"session_id" type:"uuid" constraints:"notnull" references:"sessions(id)"`
	Content   string    `db:"content" type:"text" constraints:"notnull"`
	Priority  int       `db:"priority" type:"integer" constraints:"notnull"`
	Explored  bool      `db:"explored" type:"boolean" constraints:"notnull" default:"false"`
	Rationale string    `db:"rationale" type:"text" default:"''"`
	Created   time.Time `db:"created" type:"timestamp" constraints:"notnull"`
}

// Synthesis is a periodic consolidation snapshot. The last synthesis before
// termination is the final one; its confidence becomes the session's.
type Synthesis struct {
	ID         string     `db:"id" type:"uuid" constraints:"primarykey" default:"gen_random_uuid()"`
	SessionID  string     `db:"session_id" type:"uuid" constraints:"notnull" references:"sessions(id)"`
	Seq        int        `db:"seq" type:"integer" constraints:"notnull"`
	Content    string     `db:"content" type:"text" constraints:"notnull"`
	Insights   StringList `db:"insights" type:"jsonb" default:"'[]'"`
	Confidence float64    `db:"confidence" type:"double precision" constraints:"notnull"`
	Remaining  StringList `db:"remaining" type:"jsonb" default:"'[]'"`

	OffsetSeconds float64   `db:"offset_seconds" type:"double precision" constraints:"notnull"`
	Created       time.Time `db:"created" type:"timestamp" constraints:"notnull"`
}

// FloatList is a jsonb-backed []float64 column.
// Implements sql.Scanner and driver.Valuer for database compatibility.
type FloatList []float64

// Scan implements sql.Scanner.
func (l *FloatList) Scan(src any) error {
	return scanJSONList(src, l, "FloatList")
}

// Value implements driver.Valuer.
func (l FloatList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]float64(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// StringList is a jsonb-backed []string column.
// Implements sql.Scanner and driver.Valuer for database compatibility.
type StringList []string

// Scan implements sql.Scanner.
func (l *StringList) Scan(src any) error {
	return scanJSONList(src, l, "StringList")
}

// Value implements driver.Valuer.
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func scanJSONList(src, dst any, kind string) error {
	if src == nil {
		return nil
	}

	var b []byte
	switch val := src.(type) {
	case []byte:
		b = val
	case string:
		b = []byte(val)
	default:
		return fmt.Errorf("cannot scan %T into %s", src, kind)
	}

	if len(b) == 0 {
		return nil
	}
	return json.Unmarshal(b, dst)
}
