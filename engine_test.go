package ponder

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeClock is a manually advanced clock. Tests advance it from the provider
// script, so simulated session time moves in lockstep with backend calls.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// startedSession persists a session already in the thinking state.
func startedSession(t *testing.T, archive *mockArchive, clock *fakeClock, minutes, intervalSeconds int) *Session {
	t.Helper()

	now := clock.Now()
	session, err := archive.CreateSession(context.Background(), &Session{
		Question:                 "why is the sky blue?",
		Model:                    "test-model",
		DurationMinutes:          minutes,
		SynthesisIntervalSeconds: intervalSeconds,
		Status:                   StatusThinking,
		CreatedAt:                now,
		StartedAt:                &now,
	})
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	return session
}

func runEngine(t *testing.T, ctx context.Context, session *Session, archive *mockArchive, provider Provider, clock *fakeClock) {
	t.Helper()

	eng := newEngine(session, archive, provider, Config{}, clock.Now)
	if err := eng.restore(context.Background()); err != nil {
		t.Fatalf("restore failed: %v", err)
	}
	eng.run(ctx)
}

func TestEngineCompletesWithinBudget(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	archive := newMockArchive()

	// Each backend call consumes 10 simulated seconds against a 1-minute
	// budget and a 30-second synthesis interval.
	provider := newScriptedProvider("reasoner", func(prompt string) (string, error) {
		clock.Advance(10 * time.Second)
		return reasonerScript(prompt)
	})

	session := startedSession(t, archive, clock, 1, 30)
	runEngine(t, ctx, session, archive, provider, clock)

	final, err := archive.GetSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}

	if final.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", final.Status)
	}
	if final.FinalAnswer == "" {
		t.Error("expected a final answer")
	}
	if final.FinalConfidence != 0.8 {
		t.Errorf("expected final confidence 0.8, got %v", final.FinalConfidence)
	}
	if final.CompletedAt == nil {
		t.Error("expected CompletedAt to be set")
	}
	if len(final.ConfidenceTrail) == 0 {
		t.Error("expected a non-empty confidence trail")
	}

	thoughts, _ := archive.ListThoughts(ctx, session.ID)
	if len(thoughts) == 0 {
		t.Fatal("expected thoughts to be persisted")
	}
	for i, th := range thoughts {
		if th.Seq != i {
			t.Errorf("expected contiguous seq, got %d at position %d", th.Seq, i)
		}
	}

	syntheses, _ := archive.ListSyntheses(ctx, session.ID)
	if len(syntheses) < 2 {
		t.Errorf("expected periodic plus final synthesis, got %d", len(syntheses))
	}
	for i, s := range syntheses {
		if s.Seq != i {
			t.Errorf("expected contiguous synthesis seq, got %d at position %d", s.Seq, i)
		}
	}
	if syntheses[0].OffsetSeconds < 30 {
		t.Errorf("first periodic synthesis before the interval, at %vs", syntheses[0].OffsetSeconds)
	}
	for i := 1; i < len(syntheses)-1; i++ {
		if gap := syntheses[i].OffsetSeconds - syntheses[i-1].OffsetSeconds; gap < 30 {
			t.Errorf("periodic syntheses %d and %d only %vs apart", i-1, i, gap)
		}
	}

	// Question generation fires exactly once per cadence threshold crossed.
	questionCalls := 0
	for _, call := range provider.calls {
		if strings.Contains(call, "follow-up questions") {
			questionCalls++
		}
	}
	if want := len(thoughts) / DefaultQuestionCadence; questionCalls != want {
		t.Errorf("expected %d question generations for %d thoughts, got %d", want, len(thoughts), questionCalls)
	}
}

func TestEngineExploresQuestionsByPriority(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	archive := newMockArchive()

	provider := newScriptedProvider("reasoner", func(prompt string) (string, error) {
		clock.Advance(10 * time.Second)
		return reasonerScript(prompt)
	})

	session := startedSession(t, archive, clock, 1, 30)
	runEngine(t, ctx, session, archive, provider, clock)

	questions, _ := archive.ListQuestions(ctx, session.ID)
	if len(questions) == 0 {
		t.Fatal("expected generated questions")
	}

	// The highest-priority question must be explored before lower ones.
	var exploredPriority, openPriority int
	for _, q := range questions {
		if q.Explored && q.Priority > exploredPriority {
			exploredPriority = q.Priority
		}
		if !q.Explored && q.Priority > openPriority {
			openPriority = q.Priority
		}
	}
	if exploredPriority == 0 {
		t.Fatal("expected at least one explored question")
	}

	thoughts, _ := archive.ListThoughts(ctx, session.ID)
	linked := 0
	for _, th := range thoughts {
		if th.QuestionID != nil {
			linked++
		}
	}
	if linked == 0 {
		t.Error("expected thoughts linked to an explored question")
	}
}

func TestEngineFailsAfterConsecutiveBackendFailures(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	archive := newMockArchive()

	provider := newScriptedProvider("down", func(string) (string, error) {
		return "", errors.New("connection refused")
	})

	session := startedSession(t, archive, clock, 60, 300)
	runEngine(t, ctx, session, archive, provider, clock)

	final, _ := archive.GetSession(ctx, session.ID)
	if final.Status != StatusFailed {
		t.Fatalf("expected failed, got %s", final.Status)
	}
	if got := provider.callCount(); got != DefaultMaxConsecutiveFailures {
		t.Errorf("expected %d attempts before giving up, got %d", DefaultMaxConsecutiveFailures, got)
	}
}

func TestEngineRecoversFromTransientFailures(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	archive := newMockArchive()

	failures := 0
	provider := newScriptedProvider("flaky", func(prompt string) (string, error) {
		clock.Advance(10 * time.Second)
		if failures < 2 {
			failures++
			return "", errors.New("transient")
		}
		return reasonerScript(prompt)
	})

	session := startedSession(t, archive, clock, 1, 30)
	runEngine(t, ctx, session, archive, provider, clock)

	final, _ := archive.GetSession(ctx, session.ID)
	if final.Status != StatusCompleted {
		t.Fatalf("expected completed despite transient failures, got %s", final.Status)
	}
}

func TestEngineArchiveFailureIsFatal(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	archive := newMockArchive()

	provider := newScriptedProvider("reasoner", func(prompt string) (string, error) {
		clock.Advance(10 * time.Second)
		return reasonerScript(prompt)
	})

	session := startedSession(t, archive, clock, 60, 300)
	archive.failErr = errors.New("disk full")
	archive.failOn["AppendThought"] = true

	runEngine(t, ctx, session, archive, provider, clock)

	final, _ := archive.GetSession(ctx, session.ID)
	if final.Status != StatusFailed {
		t.Fatalf("expected failed on archive error, got %s", final.Status)
	}
	if got := provider.callCount(); got != 1 {
		t.Errorf("expected no retry on archive errors, got %d calls", got)
	}
}

// pausingArchive pauses the session just before the loop's first trail write
// lands, the way a concurrent Pause would, then signals the loop to stop.
type pausingArchive struct {
	*mockArchive
	clock  *fakeClock
	cancel context.CancelFunc
	once   sync.Once
}

func (a *pausingArchive) UpdateConfidenceTrail(ctx context.Context, sessionID string, trail FloatList) error {
	a.once.Do(func() {
		session, err := a.mockArchive.GetSession(ctx, sessionID)
		if err != nil {
			return
		}
		next, err := transition(session.Status, ActionPause)
		if err != nil {
			return
		}
		now := a.clock.Now()
		session.Status = next
		session.PausedAt = &now
		if err := a.mockArchive.UpdateSession(ctx, session); err != nil {
			return
		}
		a.cancel()
	})
	return a.mockArchive.UpdateConfidenceTrail(ctx, sessionID, trail)
}

func TestEnginePauseSurvivesTrailArchival(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	archive := &pausingArchive{mockArchive: newMockArchive(), clock: clock, cancel: cancel}

	provider := newScriptedProvider("reasoner", func(prompt string) (string, error) {
		clock.Advance(10 * time.Second)
		return reasonerScript(prompt)
	})

	session := startedSession(t, archive.mockArchive, clock, 60, 30)

	eng := newEngine(session, archive, provider, Config{}, clock.Now)
	if err := eng.restore(context.Background()); err != nil {
		t.Fatalf("restore failed: %v", err)
	}
	eng.run(runCtx)

	final, err := archive.GetSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}

	if final.Status != StatusPaused {
		t.Fatalf("pause concurrent with trail archival was overwritten, got %s", final.Status)
	}
	if final.PausedAt == nil {
		t.Error("expected PausedAt to survive the trail write")
	}
	if n := len(final.ConfidenceTrail); n == 0 || final.ConfidenceTrail[n-1] != 0.8 {
		t.Errorf("expected the synthesis confidence on the trail, got %v", final.ConfidenceTrail)
	}
	if _, err := transition(final.Status, ActionResume); err != nil {
		t.Errorf("paused session must remain resumable: %v", err)
	}
}

func TestEngineStopsAtIterationBoundary(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	archive := newMockArchive()

	runCtx, cancel := context.WithCancel(ctx)

	// Cancel mid-way through the second thought call. The call still
	// completes and its thoughts persist; the loop then stops before
	// question generation.
	calls := 0
	provider := newScriptedProvider("reasoner", func(prompt string) (string, error) {
		clock.Advance(10 * time.Second)
		calls++
		if calls == 2 {
			cancel()
		}
		return reasonerScript(prompt)
	})

	session := startedSession(t, archive, clock, 60, 300)
	runEngine(t, runCtx, session, archive, provider, clock)

	final, _ := archive.GetSession(ctx, session.ID)
	if final.Status != StatusThinking {
		t.Fatalf("a stop must not write a terminal state, got %s", final.Status)
	}

	thoughts, _ := archive.ListThoughts(ctx, session.ID)
	if len(thoughts) != 2*DefaultThoughtBatch {
		t.Fatalf("expected both in-flight batches persisted, got %d thoughts", len(thoughts))
	}

	questions, _ := archive.ListQuestions(ctx, session.ID)
	if len(questions) != 0 {
		t.Errorf("expected stop before question generation, got %d questions", len(questions))
	}

	// A fresh engine picks up where the first stopped: sequence numbers
	// stay contiguous and the question cadence is not replayed.
	provider2 := newScriptedProvider("reasoner", func(prompt string) (string, error) {
		clock.Advance(10 * time.Second)
		return reasonerScript(prompt)
	})
	runEngine(t, ctx, session, archive, provider2, clock)

	final, _ = archive.GetSession(ctx, session.ID)
	if final.Status != StatusCompleted {
		t.Fatalf("expected completion after restart, got %s", final.Status)
	}

	thoughts, _ = archive.ListThoughts(ctx, session.ID)
	for i, th := range thoughts {
		if th.Seq != i {
			t.Fatalf("expected contiguous seq across restart, got %d at position %d", th.Seq, i)
		}
	}

	total := 0
	for _, p := range [][]string{provider.calls, provider2.calls} {
		for _, call := range p {
			if strings.Contains(call, "follow-up questions") {
				total++
			}
		}
	}
	// The cadence interval in flight at the stop is not replayed: the
	// restored position rounds to the persisted thought count.
	if want := len(thoughts)/DefaultQuestionCadence - 1; total != want {
		t.Errorf("expected %d question generations across restart, got %d", want, total)
	}
}
