// Package ponder provides autonomous, time-bounded reasoning sessions for Go.
//
// A session takes a question and a time budget, then thinks on its own: it
// emits a sequence of discrete [Thought] records, discovers follow-up
// [Question] records along the way, and periodically consolidates progress
// into a [Synthesis] with a confidence estimate. When the budget is spent,
// a final synthesis becomes the session's answer.
//
// # Core Types
//
//   - [Session] - One reasoning run: question, budget, status, final answer
//   - [Thought] - An atomic reasoning step with a type and confidence
//   - [Question] - A discovered unknown with a 1-10 priority
//   - [Synthesis] - A periodic consolidation snapshot
//
// # Running Sessions
//
// The [Manager] owns every in-flight session. It enforces a concurrency
// ceiling, launches one goroutine per session, and exposes the command
// surface:
//
//	mgr := ponder.NewManager(archive, ponder.Config{MaxConcurrent: 4})
//	mgr.RegisterProvider("gpt-4", provider)
//
//	session, err := mgr.Start(ctx, "Why do distributed caches stampede?", "gpt-4", 15, 0)
//
//	summary, _ := mgr.Status(ctx, session.ID)   // status, progress, counts
//	mgr.Pause(ctx, session.ID)                  // freezes the time budget
//	mgr.Resume(ctx, session.ID)                 // picks up where it left off
//	export, _ := mgr.Export(ctx, session.ID)    // session plus all child records
//
// Pausing is cooperative: the loop finishes the step in flight, persists
// its result, and only then stops. The paused interval is excluded from
// the session's elapsed time.
//
// # Provider & Archive
//
// LLM access uses the same resolution hierarchy as the rest of the zoobzio
// stack: a per-model registration on the Manager, then a context value
// (ponder.WithProvider), then the global default (ponder.SetProvider).
// Providers implement the zyn-compatible [Provider] interface.
//
// Persistence goes through the [Archive] interface. [SoyArchive] is the
// shipped postgres implementation; testing/pondertest has an in-memory one.
//
// # Parsing
//
// Generated text is unreliable. The parser ([ParseThoughts],
// [ParseQuestions], [ParseSynthesis]) never fails: malformed fields degrade
// to documented defaults and bodyless blocks are dropped.
//
// # Observability
//
// Every lifecycle transition, persisted record, and backend failure emits a
// capitan signal (see signals.go). Hook them for logging or metrics:
//
//	capitan.Hook(ponder.ThoughtRecorded, func(ctx context.Context, e *capitan.Event) {
//	    seq, _ := ponder.FieldSeq.From(e)
//	    log.Printf("thought %d recorded", seq)
//	})
package ponder
