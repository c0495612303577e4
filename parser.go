package ponder

import (
	"regexp"
	"strconv"
	"strings"
)

// The parser converts raw generated text into structured candidates. It is a
// pure transformation and never fails: malformed or missing fields degrade to
// defaults, and blocks with no extractable body are dropped.
//
// Expected shapes (the prompts in prompts.go request exactly these):
//
//	THOUGHT: <text>            QUESTION: <text>        SYNTHESIS: <paragraph>
//	TYPE: <label>              PRIORITY: <1-10>        KEY_INSIGHTS:
//	CONFIDENCE: <0-1>          RATIONALE: <text>       - <insight>
//	---                        ---                     CONFIDENCE: <0-1>
//	<next block>               <next block>            REMAINING_QUESTIONS:
//	                                                   - <question>

// ThoughtCandidate is a parsed thought before it gets a sequence number.
type ThoughtCandidate struct {
	Content    string
	Kind       ThoughtKind
	Confidence float64
}

// QuestionCandidate is a parsed sub-question before persistence.
type QuestionCandidate struct {
	Content   string
	Priority  int
	Rationale string
}

// SynthesisCandidate is a parsed synthesis before it gets a sequence number.
type SynthesisCandidate struct {
	Content    string
	Insights   []string
	Confidence float64
	Remaining  []string
}

var (
	blockSeparator = regexp.MustCompile(`(?m)^[ \t]*-{3,}[ \t]*$`)
	numberPattern  = regexp.MustCompile(`[-+]?\d+(?:\.\d+)?`)
	bulletPrefix   = regexp.MustCompile(`^(?:[-*•]|\d+[.)])\s*`)
)

// ParseThoughts extracts thought candidates from a thought-batch response.
// A block missing TYPE defaults to exploration; a block missing CONFIDENCE
// defaults to 0.5; a block with no body is discarded.
func ParseThoughts(raw string) []ThoughtCandidate {
	var out []ThoughtCandidate
	for _, block := range splitBlocks(raw) {
		var body []string
		kind := ThoughtExploration
		confidence := 0.5

		for _, line := range strings.Split(block, "\n") {
			switch {
			case hasMarker(line, "TYPE"):
				label := ThoughtKind(strings.ToLower(markerValue(line, "TYPE")))
				if knownThoughtKinds[label] {
					kind = label
				}
			case hasMarker(line, "CONFIDENCE"):
				confidence = parseConfidence(markerValue(line, "CONFIDENCE"))
			case hasMarker(line, "THOUGHT"):
				if v := markerValue(line, "THOUGHT"); v != "" {
					body = append(body, v)
				}
			default:
				if v := strings.TrimSpace(line); v != "" {
					body = append(body, v)
				}
			}
		}

		if len(body) == 0 {
			continue
		}
		out = append(out, ThoughtCandidate{
			Content:    strings.Join(body, " "),
			Kind:       kind,
			Confidence: confidence,
		})
	}
	return out
}

// ParseQuestions extracts question candidates from a question-batch response.
// A block missing PRIORITY defaults to 5; priorities are clamped to [1,10];
// a block with no question text is discarded.
func ParseQuestions(raw string) []QuestionCandidate {
	var out []QuestionCandidate
	for _, block := range splitBlocks(raw) {
		var body []string
		var rationale string
		priority := 5

		for _, line := range strings.Split(block, "\n") {
			switch {
			case hasMarker(line, "PRIORITY"):
				priority = parsePriority(markerValue(line, "PRIORITY"))
			case hasMarker(line, "RATIONALE"):
				rationale = markerValue(line, "RATIONALE")
			case hasMarker(line, "QUESTION"):
				if v := markerValue(line, "QUESTION"); v != "" {
					body = append(body, v)
				}
			default:
				if v := strings.TrimSpace(line); v != "" {
					body = append(body, v)
				}
			}
		}

		if len(body) == 0 {
			continue
		}
		out = append(out, QuestionCandidate{
			Content:   strings.Join(body, " "),
			Priority:  priority,
			Rationale: rationale,
		})
	}
	return out
}

// ParseSynthesis extracts a synthesis candidate. With no recognizable
// markers, the whole text becomes the synthesis paragraph and confidence
// defaults to 0.5.
func ParseSynthesis(raw string) SynthesisCandidate {
	const (
		modeContent = iota
		modeInsights
		modeRemaining
	)

	cand := SynthesisCandidate{Confidence: 0.5}
	mode := modeContent
	var content []string

	appendBullet := func(dst []string, line string) []string {
		v := strings.TrimSpace(bulletPrefix.ReplaceAllString(strings.TrimSpace(line), ""))
		if v == "" {
			return dst
		}
		return append(dst, v)
	}

	for _, line := range strings.Split(raw, "\n") {
		switch {
		case hasMarker(line, "SYNTHESIS"):
			mode = modeContent
			if v := markerValue(line, "SYNTHESIS"); v != "" {
				content = append(content, v)
			}
		case hasMarker(line, "KEY_INSIGHTS"), hasMarker(line, "KEY INSIGHTS"), hasMarker(line, "INSIGHTS"):
			mode = modeInsights
		case hasMarker(line, "REMAINING_QUESTIONS"), hasMarker(line, "REMAINING QUESTIONS"):
			mode = modeRemaining
		case hasMarker(line, "CONFIDENCE"):
			cand.Confidence = parseConfidence(markerValue(line, "CONFIDENCE"))
		default:
			switch mode {
			case modeInsights:
				cand.Insights = appendBullet(cand.Insights, line)
			case modeRemaining:
				cand.Remaining = appendBullet(cand.Remaining, line)
			default:
				if v := strings.TrimSpace(line); v != "" {
					content = append(content, v)
				}
			}
		}
	}

	cand.Content = strings.Join(content, "\n")
	return cand
}

// splitBlocks splits a batch response on separator lines (three or more
// dashes) and drops empty blocks.
func splitBlocks(raw string) []string {
	var blocks []string
	for _, block := range blockSeparator.Split(raw, -1) {
		if strings.TrimSpace(block) != "" {
			blocks = append(blocks, block)
		}
	}
	return blocks
}

// hasMarker reports whether the line starts with "MARKER:" (case-insensitive).
func hasMarker(line, marker string) bool {
	trimmed := strings.TrimSpace(line)
	if len(trimmed) <= len(marker) {
		return false
	}
	return strings.EqualFold(trimmed[:len(marker)], marker) &&
		strings.HasPrefix(trimmed[len(marker):], ":")
}

// markerValue returns the text after "MARKER:", trimmed.
func markerValue(line, marker string) string {
	trimmed := strings.TrimSpace(line)
	rest := trimmed[len(marker)+1:]
	return strings.TrimSpace(rest)
}

// parseConfidence extracts a confidence in [0,1] from free text. Values on a
// 0-100 scale (with or without a percent sign) are normalized; anything
// unparseable degrades to 0.5.
func parseConfidence(s string) float64 {
	match := numberPattern.FindString(s)
	if match == "" {
		return 0.5
	}

	v, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0.5
	}

	if strings.Contains(s, "%") || v > 1 {
		v /= 100
	}

	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// parsePriority extracts a priority clamped to [1,10], defaulting to 5.
func parsePriority(s string) int {
	match := numberPattern.FindString(s)
	if match == "" {
		return 5
	}

	v, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 5
	}

	p := int(v)
	if p < 1 {
		return 1
	}
	if p > 10 {
		return 10
	}
	return p
}
