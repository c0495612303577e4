package ponder

import (
	"fmt"
	"strings"
)

// Prompt builders for the four request kinds. Each prompt restates the full
// context it needs and pins the exact output format the parser understands.

func thoughtPrompt(question, focus string, batch int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are thinking about: %s\n", question)
	if focus != question {
		fmt.Fprintf(&b, "Current focus: %s\n", focus)
	}
	fmt.Fprintf(&b, `
Produce %d distinct reasoning steps about the current focus. For each step use exactly this format, separating steps with a line of three dashes:

THOUGHT: <one self-contained reasoning step>
TYPE: <one of: exploration, critique, connection, insight>
CONFIDENCE: <number between 0 and 1>
---
`, batch)
	return b.String()
}

func questionPrompt(question string, recent []Thought, maxQuestions int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are thinking about: %s\n\nRecent reasoning steps:\n", question)
	writeThoughtLines(&b, recent)
	fmt.Fprintf(&b, `
Identify up to %d follow-up questions that this reasoning has surfaced but not answered. For each use exactly this format, separating questions with a line of three dashes:

QUESTION: <the unanswered question>
PRIORITY: <integer 1-10, 10 most important>
RATIONALE: <one line on why it matters>
---
`, maxQuestions)
	return b.String()
}

func reprioritizePrompt(question string, open []Question, understanding string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are thinking about: %s\n\nCurrent understanding:\n%s\n\nOpen questions:\n", question, understanding)
	for i, q := range open {
		fmt.Fprintf(&b, "%d. %s (current priority: %d)\n", i+1, q.Content, q.Priority)
	}
	b.WriteString(`
Given the current understanding, revise the priority of each question. Answer with one line per question you want to change, in the form:

<question number>: <new priority 1-10>

Omit questions whose priority should stay as it is.
`)
	return b.String()
}

func synthesisPrompt(question string, recent []Thought, explored []Question, final bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are thinking about: %s\n\nReasoning so far:\n", question)
	writeThoughtLines(&b, recent)

	if len(explored) > 0 {
		b.WriteString("\nSub-questions explored:\n")
		for _, q := range explored {
			fmt.Fprintf(&b, "- %s\n", q.Content)
		}
	}

	if final {
		b.WriteString("\nThe thinking time is over. Produce the final, complete answer.\n")
	} else {
		b.WriteString("\nConsolidate progress so far.\n")
	}

	b.WriteString(`
Use exactly this format:

SYNTHESIS: <the consolidated answer as one paragraph>
KEY_INSIGHTS:
- <insight>
- <insight>
CONFIDENCE: <number between 0 and 1>
REMAINING_QUESTIONS:
- <open question>
`)
	return b.String()
}

// thoughtDigest condenses recent thoughts into a plain-text statement of
// current understanding, used before the first synthesis exists.
func thoughtDigest(recent []Thought) string {
	if len(recent) == 0 {
		return "(no reasoning yet)"
	}
	var b strings.Builder
	writeThoughtLines(&b, recent)
	return b.String()
}

func writeThoughtLines(b *strings.Builder, thoughts []Thought) {
	for _, t := range thoughts {
		fmt.Fprintf(b, "- [%s] %s\n", t.Kind, t.Content)
	}
}
