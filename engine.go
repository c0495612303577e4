package ponder

import (
	"context"
	"fmt"
	"time"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/pipz"
	"github.com/zoobzio/zyn"
)

// generation carries one backend request/response pair through the pipz
// reliability chain.
type generation struct {
	prompt      string
	temperature float32
	reply       string
	usage       zyn.TokenUsage
}

// Clone implements pipz.Cloner[*generation].
func (g *generation) Clone() *generation {
	clone := *g
	return &clone
}

// engine is the per-session reasoning loop. It is the session's single
// writer: one engine runs per session at a time, and a resume builds a fresh
// engine that restores its position from the archive.
type engine struct {
	session     *Session
	archive     Archive
	provider    Provider
	prioritizer *Prioritizer
	cfg         Config
	now         func() time.Time

	// Loop position. All of it is derivable from persisted records, so a
	// pause/resume cycle never resets cadences or focus.
	seq           int           // next thought sequence number
	questionMark  int           // question-cadence intervals already served
	synthSeq      int           // next synthesis sequence number
	lastSynthesis time.Duration // elapsed offset of the last synthesis
	failures      int           // consecutive backend failures

	call      pipz.Chainable[*generation] // timeout-bounded backend call
	synthCall pipz.Chainable[*generation] // same, plus synthesis retry
}

func newEngine(session *Session, archive Archive, provider Provider, cfg Config, now func() time.Time) *engine {
	cfg = cfg.withDefaults()
	if now == nil {
		now = time.Now
	}

	// Work on a private copy; the manager mutates lifecycle fields on its
	// own reads, never on the engine's.
	s := *session
	s.ConfidenceTrail = append(FloatList(nil), session.ConfidenceTrail...)

	e := &engine{
		session:     &s,
		archive:     archive,
		provider:    provider,
		prioritizer: NewPrioritizer().WithProvider(provider).WithTemperatures(cfg.ThoughtTemperature, cfg.SynthesisTemperature),
		cfg:         cfg,
		now:         now,
	}

	backend := pipz.Apply(pipz.NewIdentity("backend-call", ""), e.callBackend)
	e.call = pipz.NewTimeout(pipz.NewIdentity("backend-timeout", ""), backend, cfg.CallTimeout)
	e.synthCall = pipz.NewRetry(pipz.NewIdentity("synthesis-retry", ""),
		pipz.NewTimeout(pipz.NewIdentity("synthesis-timeout", ""), backend, cfg.CallTimeout),
		cfg.SynthesisRetries+1)

	return e
}

// callBackend resolves the provider and issues one generation request.
func (e *engine) callBackend(ctx context.Context, g *generation) (*generation, error) {
	provider, err := ResolveProvider(ctx, e.provider)
	if err != nil {
		return g, err
	}

	reply, usage, err := callProvider(ctx, provider, g.prompt, g.temperature)
	if err != nil {
		return g, err
	}

	g.reply = reply
	g.usage = usage
	return g, nil
}

// restore rebuilds loop position from persisted records. Called before run
// on both start and resume.
func (e *engine) restore(ctx context.Context) error {
	thoughts, err := e.archive.ListThoughts(ctx, e.session.ID)
	if err != nil {
		return fmt.Errorf("failed to restore thoughts: %w", err)
	}
	e.seq = len(thoughts)
	e.questionMark = e.seq / e.cfg.QuestionCadence

	syntheses, err := e.archive.ListSyntheses(ctx, e.session.ID)
	if err != nil {
		return fmt.Errorf("failed to restore syntheses: %w", err)
	}
	e.synthSeq = len(syntheses)
	if n := len(syntheses); n > 0 {
		e.lastSynthesis = time.Duration(syntheses[n-1].OffsetSeconds * float64(time.Second))
	}

	return nil
}

// run drives the per-iteration algorithm until the budget is exhausted, an
// unrecoverable error occurs, or runCtx is canceled by a pause.
//
// Generation and persistence run on their own context so a pause never
// severs an in-flight call: runCtx is consulted only between steps, after
// the step's persistence writes have completed.
func (e *engine) run(runCtx context.Context) {
	ctx := context.Background()

	for {
		if runCtx.Err() != nil {
			return
		}

		if e.session.Exhausted(e.now()) {
			e.finish(ctx)
			return
		}

		focus, questionID, err := e.selectFocus(ctx)
		if err != nil {
			e.fail(ctx, err)
			return
		}

		if err := e.generateThoughts(ctx, focus, questionID); err != nil {
			if !e.recover(ctx, err) {
				e.fail(ctx, err)
				return
			}
			continue
		}
		if runCtx.Err() != nil {
			return
		}

		if e.seq/e.cfg.QuestionCadence > e.questionMark {
			if err := e.generateQuestions(ctx); err != nil {
				if !e.recover(ctx, err) {
					e.fail(ctx, err)
					return
				}
				continue
			}
			e.questionMark = e.seq / e.cfg.QuestionCadence
		}
		if runCtx.Err() != nil {
			return
		}

		if e.session.Elapsed(e.now())-e.lastSynthesis >= e.session.SynthesisInterval() {
			if err := e.synthesize(ctx, false); err != nil {
				if !e.recover(ctx, err) {
					e.fail(ctx, err)
					return
				}
			}
		}
	}
}

// recover handles a step failure. Backend failures are recoverable until
// they repeat past the configured threshold; everything else (archive,
// provider resolution) is fatal. Returns true when the loop may continue.
func (e *engine) recover(ctx context.Context, err error) bool {
	if !isBackendError(err) {
		return false
	}

	e.failures++
	capitan.Error(ctx, BackendCallFailed,
		FieldSessionID.Field(e.session.ID),
		FieldFailures.Field(e.failures),
		FieldError.Field(err),
	)
	return e.failures < e.cfg.MaxConsecutiveFailures
}

// selectFocus picks the highest-priority unexplored question, marking it
// explored the moment it becomes focus. Ties break toward earliest creation.
// With no open questions the focus reverts to the original question.
func (e *engine) selectFocus(ctx context.Context) (string, *string, error) {
	questions, err := e.archive.ListQuestions(ctx, e.session.ID)
	if err != nil {
		return "", nil, fmt.Errorf("failed to list questions: %w", err)
	}

	pick := -1
	for i, q := range questions {
		if q.Explored {
			continue
		}
		if pick < 0 ||
			q.Priority > questions[pick].Priority ||
			(q.Priority == questions[pick].Priority && q.Created.Before(questions[pick].Created)) {
			pick = i
		}
	}

	if pick < 0 {
		return e.session.Question, nil, nil
	}

	q := questions[pick]
	q.Explored = true
	if err := e.archive.UpdateQuestion(ctx, &q); err != nil {
		return "", nil, fmt.Errorf("failed to mark question explored: %w", err)
	}

	capitan.Emit(ctx, FocusSelected,
		FieldSessionID.Field(e.session.ID),
		FieldFocus.Field(q.Content),
		FieldPriority.Field(q.Priority),
	)

	return q.Content, &q.ID, nil
}

// generateThoughts requests a batch of thoughts about the focus, parses the
// reply, and persists each with a strictly increasing sequence number.
func (e *engine) generateThoughts(ctx context.Context, focus string, questionID *string) error {
	elapsed := e.session.Elapsed(e.now())
	start := e.now()

	g := &generation{
		prompt:      thoughtPrompt(e.session.Question, focus, e.cfg.ThoughtBatch),
		temperature: e.cfg.ThoughtTemperature,
	}
	res, err := e.call.Process(ctx, g)
	if err != nil {
		return wrapBackendError(err)
	}
	e.failures = 0

	for _, cand := range ParseThoughts(res.reply) {
		thought := &Thought{
			SessionID:     e.session.ID,
			Seq:           e.seq,
			Content:       cand.Content,
			Kind:          cand.Kind,
			Confidence:    cand.Confidence,
			OffsetSeconds: elapsed.Seconds(),
			QuestionID:    questionID,
			Created:       e.now(),
		}
		if _, err := e.archive.AppendThought(ctx, thought); err != nil {
			return fmt.Errorf("failed to persist thought: %w", err)
		}
		e.seq++

		capitan.Emit(ctx, ThoughtRecorded,
			FieldSessionID.Field(e.session.ID),
			FieldSeq.Field(thought.Seq),
			FieldThoughtKind.Field(string(thought.Kind)),
			FieldConfidence.Field(float32(thought.Confidence)),
			FieldCallDuration.Field(e.now().Sub(start)),
			FieldTokens.Field(res.usage.Total),
		)
	}

	return nil
}

// generateQuestions runs the prioritizer's discovery step over a bounded
// window of recent thoughts and persists the candidates.
func (e *engine) generateQuestions(ctx context.Context) error {
	recent, err := e.recentThoughts(ctx, e.cfg.QuestionWindow)
	if err != nil {
		return err
	}

	cctx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	defer cancel()

	candidates, err := e.prioritizer.Generate(cctx, e.session, recent, e.cfg.MaxQuestions)
	if err != nil {
		return err
	}
	e.failures = 0

	for _, cand := range candidates {
		question := &Question{
			SessionID: e.session.ID,
			Content:   cand.Content,
			Priority:  cand.Priority,
			Rationale: cand.Rationale,
			Created:   e.now(),
		}
		if _, err := e.archive.AppendQuestion(ctx, question); err != nil {
			return fmt.Errorf("failed to persist question: %w", err)
		}
	}

	return nil
}

// synthesize consolidates progress into a persisted synthesis and records
// its confidence on the session. Periodic syntheses use a bounded window of
// recent thoughts; the final synthesis uses the full history and becomes the
// session's answer.
func (e *engine) synthesize(ctx context.Context, final bool) error {
	elapsed := e.session.Elapsed(e.now())

	thoughts, err := e.archive.ListThoughts(ctx, e.session.ID)
	if err != nil {
		return fmt.Errorf("failed to list thoughts: %w", err)
	}
	window := thoughts
	if !final && len(window) > e.cfg.SynthesisWindow {
		window = window[len(window)-e.cfg.SynthesisWindow:]
	}

	questions, err := e.archive.ListQuestions(ctx, e.session.ID)
	if err != nil {
		return fmt.Errorf("failed to list questions: %w", err)
	}
	var explored []Question
	for _, q := range questions {
		if q.Explored {
			explored = append(explored, q)
		}
	}

	g := &generation{
		prompt:      synthesisPrompt(e.session.Question, window, explored, final),
		temperature: e.cfg.SynthesisTemperature,
	}
	res, err := e.synthCall.Process(ctx, g)
	if err != nil {
		return wrapBackendError(err)
	}
	e.failures = 0

	cand := ParseSynthesis(res.reply)
	synthesis := &Synthesis{
		SessionID:     e.session.ID,
		Seq:           e.synthSeq,
		Content:       cand.Content,
		Insights:      StringList(cand.Insights),
		Confidence:    cand.Confidence,
		Remaining:     StringList(cand.Remaining),
		OffsetSeconds: elapsed.Seconds(),
		Created:       e.now(),
	}
	if _, err := e.archive.AppendSynthesis(ctx, synthesis); err != nil {
		return fmt.Errorf("failed to persist synthesis: %w", err)
	}
	e.synthSeq++
	e.lastSynthesis = elapsed
	e.session.ConfidenceTrail = append(e.session.ConfidenceTrail, cand.Confidence)

	capitan.Emit(ctx, SynthesisRecorded,
		FieldSessionID.Field(e.session.ID),
		FieldSeq.Field(synthesis.Seq),
		FieldConfidence.Field(float32(synthesis.Confidence)),
		FieldElapsed.Field(elapsed),
		FieldTokens.Field(res.usage.Total),
	)

	if final {
		return e.complete(ctx, cand)
	}

	if err := e.persistTrail(ctx); err != nil {
		return err
	}
	return e.reprioritizeOpen(ctx, questions, cand.Content, thoughts)
}

// reprioritizeOpen revises open-question priorities against the freshest
// understanding (the synthesis just produced).
func (e *engine) reprioritizeOpen(ctx context.Context, questions []Question, understanding string, thoughts []Thought) error {
	var open []Question
	for _, q := range questions {
		if !q.Explored {
			open = append(open, q)
		}
	}
	if len(open) == 0 {
		return nil
	}

	if understanding == "" {
		recent := thoughts
		if len(recent) > e.cfg.SynthesisWindow {
			recent = recent[len(recent)-e.cfg.SynthesisWindow:]
		}
		understanding = thoughtDigest(recent)
	}

	cctx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	defer cancel()

	updates, err := e.prioritizer.Reprioritize(cctx, e.session, open, understanding)
	if err != nil {
		return err
	}
	e.failures = 0

	for i := range open {
		priority, ok := updates[open[i].ID]
		if !ok || priority == open[i].Priority {
			continue
		}
		open[i].Priority = priority
		if err := e.archive.UpdateQuestion(ctx, &open[i]); err != nil {
			return fmt.Errorf("failed to update question priority: %w", err)
		}
	}

	return nil
}

// finish performs the terminating synthesis over full history.
func (e *engine) finish(ctx context.Context) {
	if err := e.synthesize(ctx, true); err != nil {
		e.fail(ctx, err)
	}
}

// complete transitions the session to completed with the final answer. The
// session is re-read first so lifecycle bookkeeping written by the manager
// (pause accounting) is never clobbered.
func (e *engine) complete(ctx context.Context, cand SynthesisCandidate) error {
	session, err := e.archive.GetSession(ctx, e.session.ID)
	if err != nil {
		return err
	}

	next, err := transition(session.Status, ActionComplete)
	if err != nil {
		return err
	}

	now := e.now()
	session.Status = next
	session.CompletedAt = &now
	session.FinalAnswer = cand.Content
	session.FinalConfidence = cand.Confidence
	session.ConfidenceTrail = e.session.ConfidenceTrail

	if err := e.archive.UpdateSession(ctx, session); err != nil {
		return fmt.Errorf("failed to complete session: %w", err)
	}

	capitan.Emit(ctx, SessionCompleted,
		FieldSessionID.Field(session.ID),
		FieldConfidence.Field(float32(session.FinalConfidence)),
		FieldElapsed.Field(session.Elapsed(now)),
		FieldCount.Field(e.seq),
	)

	return nil
}

// fail transitions the session to failed. Records persisted so far remain.
func (e *engine) fail(ctx context.Context, cause error) {
	capitan.Error(ctx, SessionFailed,
		FieldSessionID.Field(e.session.ID),
		FieldFailures.Field(e.failures),
		FieldError.Field(cause),
	)

	session, err := e.archive.GetSession(ctx, e.session.ID)
	if err != nil {
		return
	}

	next, err := transition(session.Status, ActionFail)
	if err != nil {
		return
	}

	session.Status = next
	session.ConfidenceTrail = e.session.ConfidenceTrail
	_ = e.archive.UpdateSession(ctx, session)
}

// persistTrail archives the confidence trail. The write touches only the
// trail column, so a pause landing concurrently keeps its lifecycle fields.
func (e *engine) persistTrail(ctx context.Context) error {
	if err := e.archive.UpdateConfidenceTrail(ctx, e.session.ID, e.session.ConfidenceTrail); err != nil {
		return fmt.Errorf("failed to persist confidence trail: %w", err)
	}
	return nil
}

// recentThoughts returns the last n thoughts for the session.
func (e *engine) recentThoughts(ctx context.Context, n int) ([]Thought, error) {
	thoughts, err := e.archive.ListThoughts(ctx, e.session.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list thoughts: %w", err)
	}
	if len(thoughts) > n {
		thoughts = thoughts[len(thoughts)-n:]
	}
	return thoughts, nil
}
