// Package classifier implements memd's intent classifier (spec §4.7): a
// pure, thread-safe function from query text to an Intent, a confidence
// score, and (when present) a time window.
package classifier

import (
	"strings"
	"time"

	"github.com/olebedev/when"

	"github.com/agentmemory/memd/internal/types"
)

// Keywords is the configurable per-intent keyword set. Explore, Answer,
// and Locate are scored; TimeBoxed is never keyword-scored, only reached
// via the timeout/time-window override.
type Keywords struct {
	Explore []string
	Answer  []string
	Locate  []string
}

// Classifier holds immutable, precomputed state: keyword lists, the
// minimum-confidence threshold, and the natural-language date parser.
// Safe for concurrent use once constructed.
type Classifier struct {
	minConfidence float64
	scored        []scoredIntent
	when          *when.Parser
}

type scoredIntent struct {
	intent   types.Intent
	keywords []string
}

// New builds a Classifier from a keyword set and a minimum-confidence
// threshold below which classification falls back to Answer.
func New(keywords Keywords, minConfidence float64) *Classifier {
	return &Classifier{
		minConfidence: minConfidence,
		scored: []scoredIntent{
			{intent: types.IntentExplore, keywords: keywords.Explore},
			{intent: types.IntentLocate, keywords: keywords.Locate},
			{intent: types.IntentAnswer, keywords: keywords.Answer},
		},
		when: newWhenParser(),
	}
}

// Options carries the call-specific inputs that can force a TimeBoxed
// verdict independent of keyword scoring.
type Options struct {
	// Now defaults to time.Now() when zero; tests pin it for determinism.
	Now time.Time
	// TimeoutSpecified means the caller attached an explicit stop-condition
	// timeout to this query, which alone is enough to force TimeBoxed.
	TimeoutSpecified bool
}

// Classify scores text against every keyword set, resolves ties via
// Explore > Locate > Answer, applies the min-confidence fallback to
// Answer, and finally applies the TimeBoxed override.
func (c *Classifier) Classify(text string, opts Options) types.Classification {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	lower := strings.ToLower(text)
	var best scoredIntent
	var bestScore float64
	var bestMatches []string

	for _, candidate := range c.scored {
		score, matches := scoreKeywords(lower, candidate.keywords)
		if score > bestScore {
			bestScore = score
			best = candidate
			bestMatches = matches
		}
	}

	window := extractTimeWindow(c.when, text, now)

	result := types.Classification{
		Intent:          best.intent,
		Confidence:      bestScore,
		MatchedKeywords: bestMatches,
		TimeWindow:      window,
	}
	if result.Intent == "" || bestScore < c.minConfidence {
		result = types.Classification{
			Intent:     types.IntentAnswer,
			Confidence: 0.5,
			Reason:     "default: below min_confidence",
			TimeWindow: window,
		}
	} else {
		result.Reason = "keyword match"
	}

	if opts.TimeoutSpecified || (window != nil && hasDeadline(text)) {
		result.Intent = types.IntentTimeBoxed
		result.Confidence = 0.9
		result.Reason = "time-boxed: timeout or deadline specified"
	}
	return result
}

// hasDeadline reports whether text names a deadline rather than a plain
// lookback window ("by tomorrow", "before the meeting", "deadline").
func hasDeadline(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range []string{"deadline", "by tomorrow", "by today", "due by", "before "} {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// scoreKeywords implements the spec's scoring formula: min(matches/3, 1)
// plus 0.1 per matched keyword longer than 5 characters, capped at 1.
func scoreKeywords(lower string, keywords []string) (float64, []string) {
	var matches []string
	longBonus := 0.0
	for _, kw := range keywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			matches = append(matches, kw)
			if len(kw) > 5 {
				longBonus += 0.1
			}
		}
	}
	score := float64(len(matches)) / 3
	if score > 1 {
		score = 1
	}
	score += longBonus
	if score > 1 {
		score = 1
	}
	return score, matches
}
