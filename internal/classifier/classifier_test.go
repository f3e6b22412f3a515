package classifier

import (
	"testing"
	"time"

	"github.com/agentmemory/memd/internal/types"
)

func newTestClassifier() *Classifier {
	return New(Keywords{
		Explore: DefaultExploreKeywords,
		Answer:  DefaultAnswerKeywords,
		Locate:  DefaultLocateKeywords,
	}, 0.35)
}

var fixedNow = time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

func TestClassifyExplore(t *testing.T) {
	c := newTestClassifier()
	got := c.Classify("give me an overview of everything about the migration", Options{Now: fixedNow})
	if got.Intent != types.IntentExplore {
		t.Fatalf("Intent = %v, want Explore (got %+v)", got.Intent, got)
	}
	if got.Confidence < 0.35 {
		t.Fatalf("Confidence = %v, want >= min_confidence", got.Confidence)
	}
}

func TestClassifyLocate(t *testing.T) {
	c := newTestClassifier()
	got := c.Classify("find the commit where we mentioned the schema change", Options{Now: fixedNow})
	if got.Intent != types.IntentLocate {
		t.Fatalf("Intent = %v, want Locate (got %+v)", got.Intent, got)
	}
}

// TestClassifyExploreLiteralSpecExample and TestClassifyLocateLiteralSpecExample
// pin the two literal query/intent pairs the classifier laws invariant names:
// a sub-threshold string must fall back to Answer, but these two must not.
func TestClassifyExploreLiteralSpecExample(t *testing.T) {
	c := newTestClassifier()
	got := c.Classify("what topics have been recurring?", Options{Now: fixedNow})
	if got.Intent != types.IntentExplore {
		t.Fatalf("Intent = %v, want Explore (got %+v)", got.Intent, got)
	}
}

func TestClassifyLocateLiteralSpecExample(t *testing.T) {
	c := newTestClassifier()
	got := c.Classify("find the exact error message", Options{Now: fixedNow})
	if got.Intent != types.IntentLocate {
		t.Fatalf("Intent = %v, want Locate (got %+v)", got.Intent, got)
	}
}

func TestClassifyFallsBackToAnswerBelowMinConfidence(t *testing.T) {
	c := newTestClassifier()
	got := c.Classify("blah blah nonsense", Options{Now: fixedNow})
	if got.Intent != types.IntentAnswer {
		t.Fatalf("Intent = %v, want Answer (default)", got.Intent)
	}
	if got.Reason == "" {
		t.Fatal("expected a non-empty default reason")
	}
}

func TestClassifyTimeBoxedByTimeoutOverride(t *testing.T) {
	c := newTestClassifier()
	got := c.Classify("give me an overview of everything", Options{Now: fixedNow, TimeoutSpecified: true})
	if got.Intent != types.IntentTimeBoxed {
		t.Fatalf("Intent = %v, want TimeBoxed", got.Intent)
	}
	if got.Confidence < 0.8 {
		t.Fatalf("Confidence = %v, want high", got.Confidence)
	}
}

func TestClassifyTimeBoxedByDeadline(t *testing.T) {
	c := newTestClassifier()
	got := c.Classify("what is the status, due by tomorrow", Options{Now: fixedNow})
	if got.Intent != types.IntentTimeBoxed {
		t.Fatalf("Intent = %v, want TimeBoxed", got.Intent)
	}
}

func TestExtractTimeWindowAgoPattern(t *testing.T) {
	c := newTestClassifier()
	got := c.Classify("what did we decide 3 days ago", Options{Now: fixedNow})
	if got.TimeWindow == nil {
		t.Fatal("expected a time window")
	}
	wantStart := fixedNow.AddDate(0, 0, -3).UnixMilli()
	if got.TimeWindow.StartMs != wantStart {
		t.Fatalf("StartMs = %d, want %d", got.TimeWindow.StartMs, wantStart)
	}
	if got.TimeWindow.EndMs != fixedNow.UnixMilli() {
		t.Fatalf("EndMs = %d, want now", got.TimeWindow.EndMs)
	}
}

func TestExtractTimeWindowNamedPattern(t *testing.T) {
	c := newTestClassifier()
	got := c.Classify("what happened last week", Options{Now: fixedNow})
	if got.TimeWindow == nil {
		t.Fatal("expected a time window")
	}
	wantStart := fixedNow.AddDate(0, 0, -7).UnixMilli()
	if got.TimeWindow.StartMs != wantStart {
		t.Fatalf("StartMs = %d, want %d", got.TimeWindow.StartMs, wantStart)
	}
}

func TestExtractTimeWindowAbsentWhenNoPhrase(t *testing.T) {
	c := newTestClassifier()
	got := c.Classify("why is the build failing", Options{Now: fixedNow})
	if got.TimeWindow != nil {
		t.Fatalf("TimeWindow = %+v, want nil", got.TimeWindow)
	}
}

func TestClassifyTiesPreferExploreOverLocateOverAnswer(t *testing.T) {
	c := New(Keywords{
		Explore: []string{"topic"},
		Locate:  []string{"topic"},
		Answer:  []string{"topic"},
	}, 0.1)
	got := c.Classify("tell me about this topic", Options{Now: fixedNow})
	if got.Intent != types.IntentExplore {
		t.Fatalf("Intent = %v, want Explore on a scoring tie", got.Intent)
	}
}
