package ponder

import (
	"time"

	"github.com/zoobzio/zyn"
)

// Default configuration for ponder sessions.
// These can be overridden per-manager through Config.
var (
	// DefaultMaxConcurrent is the ceiling on sessions in the thinking state.
	// Start and Resume are rejected with ErrCapacityExceeded at the ceiling.
	DefaultMaxConcurrent = 8

	// DefaultSynthesisInterval is the wall-clock cadence between periodic
	// syntheses within a session.
	DefaultSynthesisInterval = 5 * time.Minute

	// DefaultCallTimeout bounds each individual generation call. Generation
	// is slow; a timed-out call is a recoverable error for that iteration.
	DefaultCallTimeout = 45 * time.Second

	// DefaultQuestionCadence is the number of persisted thoughts between
	// question-generation requests. The cadence is global to the session,
	// not per-focus.
	DefaultQuestionCadence = 5

	// DefaultQuestionWindow is how many recent thoughts are embedded in a
	// question-generation prompt.
	DefaultQuestionWindow = 15

	// DefaultSynthesisWindow is how many recent thoughts are embedded in a
	// periodic synthesis prompt. The final synthesis uses full history.
	DefaultSynthesisWindow = 20

	// DefaultMaxQuestions caps how many sub-questions one generation
	// request may add.
	DefaultMaxQuestions = 3

	// DefaultThoughtBatch is how many thoughts each iteration asks the
	// backend to produce.
	DefaultThoughtBatch = 4

	// DefaultSynthesisRetries is how many times a failed synthesis call is
	// retried with the same bounded context before the failure counts.
	DefaultSynthesisRetries = 1

	// DefaultMaxConsecutiveFailures is how many backend calls may fail in a
	// row before the session transitions to failed. Any successful call
	// resets the count.
	DefaultMaxConsecutiveFailures = 3

	// DefaultThoughtTemperature is used for thought and question
	// generation, where variety matters.
	DefaultThoughtTemperature = zyn.DefaultTemperatureCreative

	// DefaultSynthesisTemperature is used for syntheses and
	// reprioritization, where consistency matters.
	DefaultSynthesisTemperature = zyn.DefaultTemperatureDeterministic
)

// Config tunes a Manager and the reasoning loops it launches.
// The zero value is usable; unset fields take the package defaults above.
type Config struct {
	MaxConcurrent          int
	SynthesisInterval      time.Duration
	CallTimeout            time.Duration
	QuestionCadence        int
	QuestionWindow         int
	SynthesisWindow        int
	MaxQuestions           int
	ThoughtBatch           int
	SynthesisRetries       int
	MaxConsecutiveFailures int
	ThoughtTemperature     float32
	SynthesisTemperature   float32
}

// withDefaults fills unset fields with package defaults.
func (c Config) withDefaults() Config {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = DefaultMaxConcurrent
	}
	if c.SynthesisInterval <= 0 {
		c.SynthesisInterval = DefaultSynthesisInterval
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = DefaultCallTimeout
	}
	if c.QuestionCadence <= 0 {
		c.QuestionCadence = DefaultQuestionCadence
	}
	if c.QuestionWindow <= 0 {
		c.QuestionWindow = DefaultQuestionWindow
	}
	if c.SynthesisWindow <= 0 {
		c.SynthesisWindow = DefaultSynthesisWindow
	}
	if c.MaxQuestions <= 0 {
		c.MaxQuestions = DefaultMaxQuestions
	}
	if c.ThoughtBatch <= 0 {
		c.ThoughtBatch = DefaultThoughtBatch
	}
	if c.SynthesisRetries < 0 {
		c.SynthesisRetries = 0
	} else if c.SynthesisRetries == 0 {
		c.SynthesisRetries = DefaultSynthesisRetries
	}
	if c.MaxConsecutiveFailures <= 0 {
		c.MaxConsecutiveFailures = DefaultMaxConsecutiveFailures
	}
	if c.ThoughtTemperature == 0 {
		c.ThoughtTemperature = DefaultThoughtTemperature
	}
	if c.SynthesisTemperature == 0 {
		c.SynthesisTemperature = DefaultSynthesisTemperature
	}
	return c
}
