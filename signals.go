package ponder

import "github.com/zoobzio/capitan"

// Signal definitions for ponder session events.
// Signals follow the pattern: ponder.<entity>.<event>.
var (
	// Session lifecycle signals.
	SessionCreated = capitan.NewSignal(
		"ponder.session.created",
		"New thinking session record created",
	)
	SessionStarted = capitan.NewSignal(
		"ponder.session.started",
		"Session entered thinking and its loop was launched",
	)
	SessionPaused = capitan.NewSignal(
		"ponder.session.paused",
		"Session paused; time budget frozen",
	)
	SessionResumed = capitan.NewSignal(
		"ponder.session.resumed",
		"Session resumed with a fresh worker",
	)
	SessionCompleted = capitan.NewSignal(
		"ponder.session.completed",
		"Session exhausted its budget and produced a final answer",
	)
	SessionFailed = capitan.NewSignal(
		"ponder.session.failed",
		"Session stopped on an unrecoverable error",
	)

	// Loop signals.
	FocusSelected = capitan.NewSignal(
		"ponder.loop.focus",
		"Loop selected the question it will generate thoughts about",
	)
	ThoughtRecorded = capitan.NewSignal(
		"ponder.thought.recorded",
		"Thought parsed and persisted",
	)
	QuestionsGenerated = capitan.NewSignal(
		"ponder.questions.generated",
		"Sub-questions parsed and persisted",
	)
	QuestionsReprioritized = capitan.NewSignal(
		"ponder.questions.reprioritized",
		"Open question priorities revised",
	)
	SynthesisRecorded = capitan.NewSignal(
		"ponder.synthesis.recorded",
		"Synthesis persisted and confidence recorded",
	)

	// Backend signals.
	BackendCallFailed = capitan.NewSignal(
		"ponder.backend.failed",
		"A generation call failed; recoverable until the failure threshold",
	)
)

// Field keys for ponder event data.
var (
	// Session metadata.
	FieldSessionID = capitan.NewStringKey("session_id")
	FieldQuestion  = capitan.NewStringKey("question")
	FieldModel     = capitan.NewStringKey("model")
	FieldStatus    = capitan.NewStringKey("status")

	// Loop metadata.
	FieldFocus       = capitan.NewStringKey("focus")
	FieldSeq         = capitan.NewIntKey("seq")
	FieldThoughtKind = capitan.NewStringKey("kind")
	FieldConfidence  = capitan.NewFloat32Key("confidence")
	FieldPriority    = capitan.NewIntKey("priority")
	FieldCount       = capitan.NewIntKey("count")
	FieldFailures    = capitan.NewIntKey("consecutive_failures")

	// Timing.
	FieldElapsed      = capitan.NewDurationKey("elapsed")
	FieldProgress     = capitan.NewFloat32Key("progress")
	FieldCallDuration = capitan.NewDurationKey("call_duration")

	// Backend usage.
	FieldProvider = capitan.NewStringKey("provider")
	FieldTokens   = capitan.NewIntKey("tokens")

	// Error information.
	FieldError = capitan.NewErrorKey("error")
)
