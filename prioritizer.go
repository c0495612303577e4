package ponder

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"github.com/zoobzio/capitan"
)

// Prioritizer discovers follow-up questions and revises their importance.
// Both operations are single backend calls; failures surface to the caller
// (the reasoning loop decides recoverable-vs-fatal), never get swallowed.
type Prioritizer struct {
	provider            Provider
	generateTemperature float32
	rankTemperature     float32
}

// NewPrioritizer creates a prioritizer with default temperatures: creative
// for discovery, deterministic for ranking.
func NewPrioritizer() *Prioritizer {
	return &Prioritizer{
		generateTemperature: DefaultThoughtTemperature,
		rankTemperature:     DefaultSynthesisTemperature,
	}
}

// WithProvider sets the provider for this prioritizer, overriding context
// and global resolution.
func (p *Prioritizer) WithProvider(provider Provider) *Prioritizer {
	p.provider = provider
	return p
}

// WithTemperatures sets the discovery and ranking temperatures.
func (p *Prioritizer) WithTemperatures(generate, rank float32) *Prioritizer {
	p.generateTemperature = generate
	p.rankTemperature = rank
	return p
}

// Generate asks the backend for follow-up questions surfaced by the recent
// thoughts and returns up to maxQuestions parsed candidates.
func (p *Prioritizer) Generate(ctx context.Context, session *Session, recent []Thought, maxQuestions int) ([]QuestionCandidate, error) {
	provider, err := ResolveProvider(ctx, p.provider)
	if err != nil {
		return nil, fmt.Errorf("prioritizer: %w", err)
	}

	prompt := questionPrompt(session.Question, recent, maxQuestions)
	reply, usage, err := callProvider(ctx, provider, prompt, p.generateTemperature)
	if err != nil {
		return nil, fmt.Errorf("prioritizer: question generation failed: %w", err)
	}

	candidates := ParseQuestions(reply)
	if len(candidates) > maxQuestions {
		candidates = candidates[:maxQuestions]
	}

	capitan.Emit(ctx, QuestionsGenerated,
		FieldSessionID.Field(session.ID),
		FieldCount.Field(len(candidates)),
		FieldProvider.Field(provider.Name()),
		FieldTokens.Field(usage.Total),
	)

	return candidates, nil
}

// rankLine matches "<question number>: <priority>" with the usual LLM
// punctuation drift tolerated.
var rankLine = regexp.MustCompile(`(?m)^\s*(\d+)\s*[:.)-]\s*(\d+)\s*$`)

// Reprioritize asks the backend to revise the priorities of the open
// questions given a condensed statement of current understanding. The result
// maps question ID to new priority; questions the response does not mention
// are absent and keep their prior priority.
func (p *Prioritizer) Reprioritize(ctx context.Context, session *Session, open []Question, understanding string) (map[string]int, error) {
	if len(open) == 0 {
		return map[string]int{}, nil
	}

	provider, err := ResolveProvider(ctx, p.provider)
	if err != nil {
		return nil, fmt.Errorf("prioritizer: %w", err)
	}

	prompt := reprioritizePrompt(session.Question, open, understanding)
	reply, usage, err := callProvider(ctx, provider, prompt, p.rankTemperature)
	if err != nil {
		return nil, fmt.Errorf("prioritizer: reprioritization failed: %w", err)
	}

	updates := make(map[string]int)
	for _, match := range rankLine.FindAllStringSubmatch(reply, -1) {
		idx, err := strconv.Atoi(match[1])
		if err != nil || idx < 1 || idx > len(open) {
			continue
		}
		priority, err := strconv.Atoi(match[2])
		if err != nil {
			continue
		}
		if priority < 1 {
			priority = 1
		}
		if priority > 10 {
			priority = 10
		}
		updates[open[idx-1].ID] = priority
	}

	capitan.Emit(ctx, QuestionsReprioritized,
		FieldSessionID.Field(session.ID),
		FieldCount.Field(len(updates)),
		FieldProvider.Field(provider.Name()),
		FieldTokens.Field(usage.Total),
	)

	return updates, nil
}
