// Command memd-bench measures ingest, indexing, and route-query latency
// against synthetic conversational event streams, the way the original
// implementation's perf_bench harness benchmarked the Rust service.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentmemory/memd/internal/classifier"
	"github.com/agentmemory/memd/internal/embed"
	"github.com/agentmemory/memd/internal/eventstore"
	"github.com/agentmemory/memd/internal/idgen"
	"github.com/agentmemory/memd/internal/indexlexical"
	"github.com/agentmemory/memd/internal/indexvector"
	"github.com/agentmemory/memd/internal/retrieval"
	"github.com/agentmemory/memd/internal/storage/sqlite"
	"github.com/agentmemory/memd/internal/toc"
	"github.com/agentmemory/memd/internal/topics"
	"github.com/agentmemory/memd/internal/types"
)

const (
	smallEventCount  = 60
	mediumEventCount = 240
	benchVectorDim   = 128
)

var (
	flagTier          string
	flagIterations    int
	flagOutDir        string
	flagWriteBaseline bool
	flagBaselinePath  string
)

var rootCmd = &cobra.Command{
	Use:   "memd-bench",
	Short: "benchmark memd's ingest/index/route-query pipeline against synthetic traffic",
	RunE:  runBench,
}

func init() {
	rootCmd.Flags().StringVar(&flagTier, "tier", "small", "dataset size: small or medium")
	rootCmd.Flags().IntVar(&flagIterations, "iterations", 3, "iterations per scenario")
	rootCmd.Flags().StringVar(&flagOutDir, "out-dir", "./memd-bench-out", "directory for latest.json/latest.txt")
	rootCmd.Flags().BoolVar(&flagWriteBaseline, "write-baseline", false, "record this run as the new baseline instead of comparing against it")
	rootCmd.Flags().StringVar(&flagBaselinePath, "baseline", "./memd-bench-out/baseline.json", "path to the baseline file to compare against or update")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "memd-bench:", err)
		os.Exit(1)
	}
}

type scenario string

const (
	scenarioSingle scenario = "single"
	scenarioMulti  scenario = "multi"
)

type stepMetrics struct {
	P50Ms         float64 `json:"p50_ms"`
	P90Ms         float64 `json:"p90_ms"`
	P99Ms         float64 `json:"p99_ms"`
	Samples       int     `json:"samples"`
	ThroughputEPS float64 `json:"throughput_eps,omitempty"`
}

type benchOutput struct {
	Tier        string                 `json:"tier"`
	Iterations  int                    `json:"iterations"`
	GeneratedAt string                 `json:"generated_at"`
	Steps       map[string]stepMetrics `json:"steps"`
}

type baselineFile struct {
	Runs map[string]map[string]stepMetrics `json:"runs"` // tier -> step -> metrics
}

func runBench(cmd *cobra.Command, args []string) error {
	if err := os.MkdirAll(flagOutDir, 0o755); err != nil {
		return fmt.Errorf("creating out dir: %w", err)
	}

	eventCount := smallEventCount
	if flagTier == "medium" {
		eventCount = mediumEventCount
	}

	durations := map[string][]float64{}
	throughput := map[string][]float64{}

	for iteration := 0; iteration < flagIterations; iteration++ {
		for _, sc := range []scenario{scenarioSingle, scenarioMulti} {
			sample, err := runIteration(eventCount, sc, iteration)
			if err != nil {
				return fmt.Errorf("iteration %d/%s: %w", iteration, sc, err)
			}
			for step, ms := range sample.durations {
				durations[step] = append(durations[step], ms)
			}
			for step, eps := range sample.throughput {
				throughput[step] = append(throughput[step], eps)
			}
		}
	}

	steps := map[string]stepMetrics{}
	for step, values := range durations {
		sorted := append([]float64(nil), values...)
		sort.Float64s(sorted)
		m := stepMetrics{
			P50Ms:   percentile(sorted, 50),
			P90Ms:   percentile(sorted, 90),
			P99Ms:   percentile(sorted, 99),
			Samples: len(sorted),
		}
		if eps, ok := throughput[step]; ok && len(eps) > 0 {
			epsSorted := append([]float64(nil), eps...)
			sort.Float64s(epsSorted)
			m.ThroughputEPS = percentile(epsSorted, 50)
		}
		steps[step] = m
	}

	out := benchOutput{
		Tier:        flagTier,
		Iterations:  flagIterations,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Steps:       steps,
	}

	if flagWriteBaseline {
		if err := writeBaseline(flagBaselinePath, out); err != nil {
			return fmt.Errorf("writing baseline: %w", err)
		}
	}

	if err := writeOutputs(flagOutDir, out); err != nil {
		return fmt.Errorf("writing outputs: %w", err)
	}
	printTable(out)

	if !flagWriteBaseline {
		warnings, severe := compareWithBaseline(flagBaselinePath, out)
		for _, w := range warnings {
			fmt.Println("WARNING:", w)
		}
		for _, s := range severe {
			fmt.Println("SEVERE:", s)
		}
		if len(severe) > 0 {
			return fmt.Errorf("%d severe regression(s) detected", len(severe))
		}
	}
	return nil
}

type iterationSample struct {
	durations  map[string]float64
	throughput map[string]float64
}

// runIteration builds a fresh in-memory-sized store, ingests synthetic
// events, builds one TOC segment node over them, indexes it into the
// lexical and vector adapters, and runs one route query — timing each
// step the way perf_bench's single iteration did.
func runIteration(eventCount int, sc scenario, iteration int) (iterationSample, error) {
	ctx := context.Background()
	dir, err := os.MkdirTemp("", "memd-bench-*")
	if err != nil {
		return iterationSample{}, err
	}
	defer os.RemoveAll(dir)

	engine, err := sqlite.Open(ctx, filepath.Join(dir, "memory.db"))
	if err != nil {
		return iterationSample{}, err
	}
	defer engine.Close()

	events, err := eventstore.Open(engine)
	if err != nil {
		return iterationSample{}, err
	}
	tocStore := toc.Open(engine)
	topicsStore := topics.Open(engine, topics.ImportanceParams{HalfLifeDays: 14, RecencyBoostFactor: 1.5, MinScore: 0.05})

	lexical, err := indexlexical.Open(filepath.Join(dir, "lexical.bleve"), tocStore)
	if err != nil {
		return iterationSample{}, err
	}
	defer lexical.Close()

	embedder := embed.NewHashing(benchVectorDim)
	vector, err := indexvector.Open(filepath.Join(dir, "vector.faiss"), benchVectorDim, engine, tocStore, embedder)
	if err != nil {
		return iterationSample{}, err
	}
	defer vector.Close()

	durations := map[string]float64{}
	throughputs := map[string]float64{}
	label := func(step string) string { return fmt.Sprintf("%s.%s", sc, step) }

	synthetic := syntheticEvents(eventCount, sc, iteration)

	ingestStart := time.Now()
	for _, ev := range synthetic {
		if _, err := events.PutEvent(ev); err != nil {
			return iterationSample{}, err
		}
	}
	ingestMs := elapsedMs(ingestStart)
	durations[label("ingest")] = ingestMs
	throughputs[label("ingest")] = eventsPerSecond(len(synthetic), ingestMs)

	tocStart := time.Now()
	node, grips := buildTocSegment(synthetic, sc)
	if _, err := tocStore.PutTocNode(node); err != nil {
		return iterationSample{}, err
	}
	for _, g := range grips {
		if err := tocStore.PutGrip(g); err != nil {
			return iterationSample{}, err
		}
	}
	durations[label("toc")] = elapsedMs(tocStart)

	lexStart := time.Now()
	entry := types.OutboxEntry{Action: types.ActionUpdateToc, DocID: node.ID}
	if err := lexical.IndexDocument(entry); err != nil {
		return iterationSample{}, err
	}
	for _, g := range grips {
		if err := lexical.IndexDocument(types.OutboxEntry{Action: types.ActionUpdateToc, DocID: g.ID}); err != nil {
			return iterationSample{}, err
		}
	}
	if err := lexical.Commit(); err != nil {
		return iterationSample{}, err
	}
	durations[label("bm25")] = elapsedMs(lexStart)

	vecStart := time.Now()
	if err := vector.IndexDocument(entry); err != nil {
		return iterationSample{}, err
	}
	if err := vector.Commit(); err != nil {
		return iterationSample{}, err
	}
	durations[label("vector")] = elapsedMs(vecStart)

	topicsStart := time.Now()
	topic, err := topicsStore.CreateTopic(node.Keywords[0], node.Keywords, nil)
	if err != nil {
		return iterationSample{}, err
	}
	if err := topicsStore.PutTopicLink(types.TopicLink{TopicID: topic.ID, NodeID: node.ID, Relevance: 0.8}); err != nil {
		return iterationSample{}, err
	}
	durations[label("topics")] = elapsedMs(topicsStart)

	routeStart := time.Now()
	cls := classifier.New(classifier.Keywords{
		Explore: classifier.DefaultExploreKeywords,
		Answer:  classifier.DefaultAnswerKeywords,
		Locate:  classifier.DefaultLocateKeywords,
	}, 0.35)
	classification := cls.Classify("memory safety retrieval", classifier.Options{})

	agentic := retrieval.NewAgenticSearcher(tocStore, 3, 4)
	executor := retrieval.New(
		bm25LayerFunc(lexical), vectorLayerFunc(vector, embedder), topicsLayerFunc(topicsStore),
		agentic.Search, map[types.Layer]float64{},
	)
	_ = executor.Execute(ctx, retrieval.Request{
		Query:  "memory safety retrieval",
		Intent: classification.Intent,
		Mode:   types.ModeHybrid,
	})
	durations[label("route_query")] = elapsedMs(routeStart)

	return iterationSample{durations: durations, throughput: throughputs}, nil
}

func elapsedMs(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}

func eventsPerSecond(count int, ms float64) float64 {
	if ms <= 0 {
		return 0
	}
	return float64(count) / (ms / 1000.0)
}

var topicsPool = []string{
	"rust ownership and borrow checker",
	"vector search embeddings",
	"topic graph clustering",
	"bm25 lexical search",
	"multi agent routing",
	"toc navigation summaries",
}

func syntheticEvents(count int, sc scenario, iteration int) []types.Event {
	seed := int64(1337 + iteration)
	if sc == scenarioMulti {
		seed += 10
	}
	rng := rand.New(rand.NewSource(seed))
	baseMs := int64(1_706_540_400_000)
	agents := []string{"claude", "copilot"}

	out := make([]types.Event, 0, count)
	for i := 0; i < count; i++ {
		ts := baseMs + int64(i)*100
		topic := topicsPool[rng.Intn(len(topicsPool))]
		detail := rng.Intn(1000)
		kind := types.EventKind("UserMessage")
		role := types.Role("user")
		if i%2 != 0 {
			kind, role = types.EventKind("AssistantMessage"), types.Role("assistant")
		}
		agent := agents[0]
		if sc == scenarioMulti {
			agent = agents[i%len(agents)]
		}
		out = append(out, types.Event{
			ID:          idgen.NewEventID(ts),
			TimestampMs: ts,
			SessionID:   fmt.Sprintf("bench-%s-%d", sc, iteration),
			Kind:        kind,
			Role:        role,
			Text:        fmt.Sprintf("%s detail %d", topic, detail),
			AgentID:     agent,
		})
	}
	return out
}

// buildTocSegment builds one Segment-level TocNode spanning events, plus
// one grip anchored to the first and last event, the way a real TOC
// builder's smallest unit of work would.
func buildTocSegment(events []types.Event, sc scenario) (types.TocNode, []types.Grip) {
	keywordSet := map[string]struct{}{}
	var bullets []types.Bullet
	agents := map[string]struct{}{}
	for _, ev := range events {
		agents[ev.AgentID] = struct{}{}
	}
	var contributing []string
	for a := range agents {
		if a != "" {
			contributing = append(contributing, a)
		}
	}
	sort.Strings(contributing)

	for _, t := range topicsPool {
		keywordSet[t] = struct{}{}
	}
	var keywords []string
	for k := range keywordSet {
		keywords = append(keywords, k)
	}
	sort.Strings(keywords)

	gripID := idgen.New()
	grip := types.Grip{
		ID:           gripID,
		Text:         events[0].Text,
		FirstEventID: events[0].ID,
		LastEventID:  events[len(events)-1].ID,
		Source:       "bench",
	}
	bullets = append(bullets, types.Bullet{Text: "synthetic conversation segment", GripIDs: []string{gripID}})

	node := types.TocNode{
		ID:                 fmt.Sprintf("toc:segment:bench:%s:%d", sc, events[0].TimestampMs),
		Level:              types.LevelSegment,
		Title:              fmt.Sprintf("bench segment (%s)", sc),
		Bullets:            bullets,
		Keywords:           keywords,
		StartMs:            events[0].TimestampMs,
		EndMs:              events[len(events)-1].TimestampMs,
		ContributingAgents: contributing,
	}
	return node, []types.Grip{grip}
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := (p / 100.0) * float64(len(sorted)-1)
	low := int(rank)
	high := low + 1
	if high >= len(sorted) {
		return sorted[low]
	}
	weight := rank - float64(low)
	return sorted[low] + (sorted[high]-sorted[low])*weight
}

func writeOutputs(dir string, out benchOutput) error {
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "latest.json"), data, 0o644); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "latest.txt"), []byte(renderTable(out)), 0o644)
}

func printTable(out benchOutput) {
	fmt.Print(renderTable(out))
}

func renderTable(out benchOutput) string {
	lines := []string{
		fmt.Sprintf("Benchmark Results (tier=%s, iterations=%d)", out.Tier, out.Iterations),
		"step\tp50_ms\tp90_ms\tp99_ms\tthroughput_eps",
	}
	keys := make([]string, 0, len(out.Steps))
	for k := range out.Steps {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		m := out.Steps[k]
		tp := "-"
		if m.ThroughputEPS > 0 {
			tp = fmt.Sprintf("%.2f", m.ThroughputEPS)
		}
		lines = append(lines, fmt.Sprintf("%s\t%.2f\t%.2f\t%.2f\t%s", k, m.P50Ms, m.P90Ms, m.P99Ms, tp))
	}
	return joinLines(lines)
}

func joinLines(lines []string) string {
	s := ""
	for i, l := range lines {
		if i > 0 {
			s += "\n"
		}
		s += l
	}
	return s + "\n"
}

func writeBaseline(path string, out benchOutput) error {
	var bf baselineFile
	if data, err := os.ReadFile(path); err == nil {
		_ = json.Unmarshal(data, &bf)
	}
	if bf.Runs == nil {
		bf.Runs = map[string]map[string]stepMetrics{}
	}
	bf.Runs[out.Tier] = out.Steps
	data, err := json.MarshalIndent(bf, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

const (
	warnRelative   = 0.15
	warnAbsMs      = 25.0
	severeRelative = 0.30
	severeAbsMs    = 50.0
)

func compareWithBaseline(path string, out benchOutput) (warnings, severe []string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil
	}
	var bf baselineFile
	if err := json.Unmarshal(data, &bf); err != nil {
		return nil, nil
	}
	base, ok := bf.Runs[out.Tier]
	if !ok {
		return nil, nil
	}
	for step, current := range out.Steps {
		baseline, ok := base[step]
		if !ok || baseline.P50Ms == 0 {
			continue
		}
		delta := current.P50Ms - baseline.P50Ms
		ratio := (current.P50Ms / baseline.P50Ms) - 1.0
		msg := fmt.Sprintf("%s p50_ms baseline=%.2f current=%.2f", step, baseline.P50Ms, current.P50Ms)
		switch {
		case delta >= severeAbsMs || ratio >= severeRelative:
			severe = append(severe, msg)
		case delta >= warnAbsMs || ratio >= warnRelative:
			warnings = append(warnings, msg)
		}
	}
	return warnings, severe
}
