package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestPercentile(t *testing.T) {
	sorted := []float64{1, 2, 3, 4, 5}
	if got := percentile(sorted, 50); got != 3 {
		t.Errorf("percentile(50) = %v, want 3", got)
	}
	if got := percentile(sorted, 0); got != 1 {
		t.Errorf("percentile(0) = %v, want 1", got)
	}
	if got := percentile(sorted, 100); got != 5 {
		t.Errorf("percentile(100) = %v, want 5", got)
	}
	if got := percentile(nil, 50); got != 0 {
		t.Errorf("percentile(nil) = %v, want 0", got)
	}
}

func TestEventsPerSecond(t *testing.T) {
	if got := eventsPerSecond(100, 1000); got != 100 {
		t.Errorf("eventsPerSecond(100, 1000ms) = %v, want 100", got)
	}
	if got := eventsPerSecond(10, 0); got != 0 {
		t.Errorf("eventsPerSecond(10, 0ms) = %v, want 0", got)
	}
}

func TestSyntheticEventsDeterministicAndDistinctAgents(t *testing.T) {
	single := syntheticEvents(20, scenarioSingle, 0)
	if len(single) != 20 {
		t.Fatalf("len(single) = %d, want 20", len(single))
	}
	agents := map[string]bool{}
	for _, ev := range single {
		agents[ev.AgentID] = true
	}
	if len(agents) != 1 {
		t.Errorf("single-agent scenario produced %d distinct agents, want 1", len(agents))
	}

	multi := syntheticEvents(20, scenarioMulti, 0)
	agents = map[string]bool{}
	for _, ev := range multi {
		agents[ev.AgentID] = true
	}
	if len(agents) < 2 {
		t.Errorf("multi-agent scenario produced %d distinct agents, want >= 2", len(agents))
	}

	again := syntheticEvents(20, scenarioSingle, 0)
	for i := range single {
		if single[i].Text != again[i].Text || single[i].TimestampMs != again[i].TimestampMs {
			t.Fatalf("syntheticEvents not deterministic for same seed at index %d", i)
		}
	}
}

func TestBuildTocSegment(t *testing.T) {
	events := syntheticEvents(10, scenarioMulti, 0)
	node, grips := buildTocSegment(events, scenarioMulti)

	if node.StartMs != events[0].TimestampMs || node.EndMs != events[len(events)-1].TimestampMs {
		t.Errorf("node time bounds = [%d,%d], want [%d,%d]", node.StartMs, node.EndMs, events[0].TimestampMs, events[len(events)-1].TimestampMs)
	}
	if len(node.ContributingAgents) < 2 {
		t.Errorf("node.ContributingAgents = %v, want at least 2 for a multi-agent segment", node.ContributingAgents)
	}
	if len(node.Bullets) != 1 || len(node.Bullets[0].GripIDs) != 1 {
		t.Fatalf("expected exactly one bullet referencing one grip, got %+v", node.Bullets)
	}
	if len(grips) != 1 {
		t.Fatalf("len(grips) = %d, want 1", len(grips))
	}
	if grips[0].ID != node.Bullets[0].GripIDs[0] {
		t.Errorf("bullet grip id %q does not match built grip id %q", node.Bullets[0].GripIDs[0], grips[0].ID)
	}
	if grips[0].FirstEventID != events[0].ID || grips[0].LastEventID != events[len(events)-1].ID {
		t.Errorf("grip does not span the full event range")
	}
}

func TestRunIterationProducesAllSteps(t *testing.T) {
	sample, err := runIteration(12, scenarioSingle, 0)
	if err != nil {
		t.Fatalf("runIteration() error = %v", err)
	}
	wantSteps := []string{"single.ingest", "single.toc", "single.bm25", "single.vector", "single.topics", "single.route_query"}
	for _, step := range wantSteps {
		if _, ok := sample.durations[step]; !ok {
			t.Errorf("missing duration for step %q, got %v", step, sample.durations)
		}
	}
	if eps, ok := sample.throughput["single.ingest"]; !ok || eps <= 0 {
		t.Errorf("single.ingest throughput = %v, want > 0", eps)
	}
}

func TestCompareWithBaselineThresholds(t *testing.T) {
	dir := t.TempDir()
	baselinePath := filepath.Join(dir, "baseline.json")

	base := baselineFile{
		Runs: map[string]map[string]stepMetrics{
			"small": {
				"single.ingest": {P50Ms: 10, Samples: 3},
			},
		},
	}
	data, err := json.Marshal(base)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	if err := os.WriteFile(baselinePath, data, 0o644); err != nil {
		t.Fatalf("os.WriteFile() error = %v", err)
	}

	// Within tolerance: no warning, no severe.
	clean := benchOutput{
		Tier:  "small",
		Steps: map[string]stepMetrics{"single.ingest": {P50Ms: 10.5, Samples: 3}},
	}
	warnings, severe := compareWithBaseline(baselinePath, clean)
	if len(warnings) != 0 || len(severe) != 0 {
		t.Errorf("compareWithBaseline(clean) = warnings=%v severe=%v, want none", warnings, severe)
	}

	// 60% slower: crosses the severe threshold.
	regressed := benchOutput{
		Tier:  "small",
		Steps: map[string]stepMetrics{"single.ingest": {P50Ms: 16, Samples: 3}},
	}
	warnings, severe = compareWithBaseline(baselinePath, regressed)
	if len(severe) != 1 {
		t.Errorf("compareWithBaseline(regressed) severe = %v, want 1 entry", severe)
	}
	_ = warnings

	// Unknown tier: no baseline entry, nothing reported.
	unknownTier := benchOutput{
		Tier:  "medium",
		Steps: map[string]stepMetrics{"single.ingest": {P50Ms: 1000, Samples: 3}},
	}
	warnings, severe = compareWithBaseline(baselinePath, unknownTier)
	if len(warnings) != 0 || len(severe) != 0 {
		t.Errorf("compareWithBaseline(unknown tier) = warnings=%v severe=%v, want none", warnings, severe)
	}
}

func TestWriteAndReadBaselineRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "baseline.json")

	out := benchOutput{
		Tier:       "small",
		Iterations: 2,
		Steps: map[string]stepMetrics{
			"single.ingest": {P50Ms: 5, P90Ms: 8, P99Ms: 9, Samples: 2, ThroughputEPS: 200},
		},
	}
	if err := writeBaseline(path, out); err != nil {
		t.Fatalf("writeBaseline() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("os.ReadFile() error = %v", err)
	}
	var bf baselineFile
	if err := json.Unmarshal(data, &bf); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	got, ok := bf.Runs["small"]["single.ingest"]
	if !ok {
		t.Fatal("baseline missing small/single.ingest entry")
	}
	if got.P50Ms != 5 || got.ThroughputEPS != 200 {
		t.Errorf("round-tripped metrics = %+v, want P50Ms=5 ThroughputEPS=200", got)
	}
}
