package rpc

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/agentmemory/memd/internal/classifier"
	"github.com/agentmemory/memd/internal/eventstore"
	"github.com/agentmemory/memd/internal/idgen"
	"github.com/agentmemory/memd/internal/retrieval"
	"github.com/agentmemory/memd/internal/scheduler"
	"github.com/agentmemory/memd/internal/storage/sqlite"
	"github.com/agentmemory/memd/internal/tier"
	"github.com/agentmemory/memd/internal/toc"
	"github.com/agentmemory/memd/internal/topics"
	"github.com/agentmemory/memd/internal/types"
)

// testHarness wires a real (if minimal) set of components around an
// in-memory-sized sqlite engine, the same way cmd/memd wires the daemon,
// and starts a Server over a temp-dir Unix socket.
type testHarness struct {
	server *Server
	client *Client
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()

	engine, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "memory.db"))
	if err != nil {
		t.Fatalf("sqlite.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = engine.Close() })

	events, err := eventstore.Open(engine)
	if err != nil {
		t.Fatalf("eventstore.Open() error = %v", err)
	}
	tocStore := toc.Open(engine)
	topicsStore := topics.Open(engine, topics.ImportanceParams{HalfLifeDays: 14, RecencyBoostFactor: 1.5})

	agentic := retrieval.NewAgenticSearcher(tocStore, 3, 5)
	executor := retrieval.New(nil, nil, nil, agentic.Search, nil)

	detector := tier.New(
		func(context.Context) types.LayerHealth { return types.LayerHealth{Status: types.StatusDisabled} },
		func(context.Context) types.LayerHealth { return types.LayerHealth{Status: types.StatusDisabled} },
		func(context.Context) types.LayerHealth { return types.LayerHealth{Status: types.StatusDisabled} },
		500*time.Millisecond, 30*time.Second,
	)

	cls := classifier.New(classifier.Keywords{
		Explore: []string{"explore", "find"},
		Answer:  []string{"what", "why"},
		Locate:  []string{"where"},
	}, 0.35)

	reg := scheduler.NewRegistry()
	sched := scheduler.New(reg, nil)

	socketPath := filepath.Join(t.TempDir(), "memd.sock")
	server := NewServer(socketPath, Dependencies{
		Engine:     engine,
		Events:     events,
		TOC:        tocStore,
		Topics:     topicsStore,
		Classifier: cls,
		Tier:       detector,
		Executor:   executor,
		Scheduler:  sched,
		Version:    "test",
		DBPath:     "memory.db",
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start(ctx) }()
	select {
	case <-server.WaitReady():
	case err := <-errCh:
		t.Fatalf("server.Start() exited early: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not become ready")
	}
	t.Cleanup(func() { _ = server.Stop() })

	client, err := Dial(socketPath, time.Second)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	return &testHarness{server: server, client: client}
}

func TestPingAndStatus(t *testing.T) {
	h := newTestHarness(t)
	if err := h.client.Ping(); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
	status, err := h.client.Status()
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if status.Version != "test" {
		t.Fatalf("Version = %q, want %q", status.Version, "test")
	}
}

func TestIngestEventRoundTrip(t *testing.T) {
	h := newTestHarness(t)
	event := types.Event{
		ID:          idgen.NewEventIDNow(),
		TimestampMs: types.NowMs(),
		SessionID:   "session-1",
		Kind:        types.EventKind("Message"),
		Role:        types.Role("user"),
		Text:        "hello world",
	}

	result, err := h.client.IngestEvent(IngestEventArgs{Event: event})
	if err != nil {
		t.Fatalf("IngestEvent() error = %v", err)
	}
	if !result.Created || result.EventID != event.ID {
		t.Fatalf("result = %+v, want Created=true EventID=%s", result, event.ID)
	}

	// Re-ingesting the same id is idempotent, not an error.
	result2, err := h.client.IngestEvent(IngestEventArgs{Event: event})
	if err != nil {
		t.Fatalf("IngestEvent() (duplicate) error = %v", err)
	}
	if result2.Created {
		t.Fatalf("expected duplicate ingest to report Created=false")
	}

	events, err := h.client.GetEvents(GetEventsArgs{StartMs: 0, EndMs: types.NowMs() + 1, Limit: 10})
	if err != nil {
		t.Fatalf("GetEvents() error = %v", err)
	}
	if len(events.Events) != 1 || events.Events[0].ID != event.ID {
		t.Fatalf("events = %+v, want one event with id %s", events.Events, event.ID)
	}

	// The duplicate ingest must not have enqueued a second outbox sequence.
	outboxEntries, err := h.server.deps.Events.GetOutboxEntries(0, 10)
	if err != nil {
		t.Fatalf("GetOutboxEntries() error = %v", err)
	}
	if len(outboxEntries) != 1 {
		t.Fatalf("outbox entries = %+v, want exactly one", outboxEntries)
	}
}

func TestIngestEventRejectsEmptyIDs(t *testing.T) {
	h := newTestHarness(t)
	_, err := h.client.IngestEvent(IngestEventArgs{Event: types.Event{}})
	if err == nil {
		t.Fatalf("expected error ingesting an event with empty id and session_id")
	}
}

func TestClassifyQueryIntent(t *testing.T) {
	h := newTestHarness(t)
	result, err := h.client.ClassifyQueryIntent(ClassifyQueryIntentArgs{Query: "where is the config file"})
	if err != nil {
		t.Fatalf("ClassifyQueryIntent() error = %v", err)
	}
	if result.Intent != types.IntentLocate {
		t.Fatalf("Intent = %q, want %q", result.Intent, types.IntentLocate)
	}
}

func TestGetRetrievalCapabilitiesAllDisabled(t *testing.T) {
	h := newTestHarness(t)
	result, err := h.client.GetRetrievalCapabilities(GetRetrievalCapabilitiesArgs{})
	if err != nil {
		t.Fatalf("GetRetrievalCapabilities() error = %v", err)
	}
	if result.Tier != types.TierAgentic {
		t.Fatalf("Tier = %q, want %q with every indexer disabled", result.Tier, types.TierAgentic)
	}
	if !result.AgenticAvailable {
		t.Fatalf("expected agentic to always be available")
	}
}

func TestRouteQueryFallsBackToAgentic(t *testing.T) {
	h := newTestHarness(t)
	node := types.TocNode{
		ID:       "Year:2026",
		Level:    types.LevelYear,
		Title:    "memory daemon retrospective",
		Keywords: []string{"memory", "daemon"},
		Bullets:  []types.Bullet{{Text: "shipped the memory daemon"}},
	}
	if _, err := h.server.deps.TOC.PutTocNode(node); err != nil {
		t.Fatalf("PutTocNode() error = %v", err)
	}
	grip := types.Grip{
		ID:           "grip-1",
		Text:         "shipped the memory daemon",
		OwningNodeID: node.ID,
	}
	if err := h.server.deps.TOC.PutGrip(grip); err != nil {
		t.Fatalf("PutGrip() error = %v", err)
	}

	result, err := h.client.RouteQuery(RouteQueryArgs{Query: "memory daemon", Limit: 5})
	if err != nil {
		t.Fatalf("RouteQuery() error = %v", err)
	}
	if !result.HasResults {
		t.Fatalf("expected RouteQuery to fall through to the agentic layer and find the seeded node")
	}
}

func TestGetTocRootAndGetNode(t *testing.T) {
	h := newTestHarness(t)
	node := types.TocNode{ID: "Year:2026", Level: types.LevelYear, Title: "2026"}
	if _, err := h.server.deps.TOC.PutTocNode(node); err != nil {
		t.Fatalf("PutTocNode() error = %v", err)
	}

	root, err := h.client.GetTocRoot()
	if err != nil {
		t.Fatalf("GetTocRoot() error = %v", err)
	}
	if len(root.Nodes) != 1 || root.Nodes[0].ID != node.ID {
		t.Fatalf("root.Nodes = %+v, want one node with id %s", root.Nodes, node.ID)
	}

	got, err := h.client.GetNode(GetNodeArgs{ID: node.ID})
	if err != nil {
		t.Fatalf("GetNode() error = %v", err)
	}
	if !got.Found || got.Node.Title != node.Title {
		t.Fatalf("GetNode() = %+v, want found node titled %q", got, node.Title)
	}

	missing, err := h.client.GetNode(GetNodeArgs{ID: "does-not-exist"})
	if err != nil {
		t.Fatalf("GetNode() error = %v", err)
	}
	if missing.Found {
		t.Fatalf("expected Found=false for an unknown node id")
	}
}

func TestBrowseTocPagination(t *testing.T) {
	h := newTestHarness(t)
	parent := types.TocNode{ID: "Year:2026", Level: types.LevelYear, Title: "2026"}
	if _, err := h.server.deps.TOC.PutTocNode(parent); err != nil {
		t.Fatalf("PutTocNode(parent) error = %v", err)
	}
	var childIDs []string
	for i := 0; i < 3; i++ {
		child := types.TocNode{ID: idgen.New(), Level: types.LevelMonth, Title: "month"}
		if _, err := h.server.deps.TOC.PutTocNode(child); err != nil {
			t.Fatalf("PutTocNode(child) error = %v", err)
		}
		childIDs = append(childIDs, child.ID)
	}
	parent.ChildIDs = childIDs
	if _, err := h.server.deps.TOC.PutTocNode(parent); err != nil {
		t.Fatalf("PutTocNode(parent update) error = %v", err)
	}

	page1, err := h.client.BrowseToc(BrowseTocArgs{Parent: parent.ID, PageSize: 2})
	if err != nil {
		t.Fatalf("BrowseToc() error = %v", err)
	}
	if len(page1.Nodes) != 2 || page1.NextContinuationToken == "" {
		t.Fatalf("page1 = %+v, want 2 nodes and a continuation token", page1)
	}

	page2, err := h.client.BrowseToc(BrowseTocArgs{Parent: parent.ID, PageSize: 2, ContinuationToken: page1.NextContinuationToken})
	if err != nil {
		t.Fatalf("BrowseToc() (page 2) error = %v", err)
	}
	if len(page2.Nodes) != 1 || page2.NextContinuationToken != "" {
		t.Fatalf("page2 = %+v, want 1 node and no further continuation token", page2)
	}
}

func TestSchedulerStatusPauseResume(t *testing.T) {
	h := newTestHarness(t)
	spec := scheduler.JobSpec{Name: "outbox-gc", Interval: time.Hour, Pausable: true, Enabled: true}
	if err := h.server.deps.Scheduler.Registry().Register(spec, func(context.Context) (scheduler.JobResult, error) {
		return scheduler.JobResult{}, nil
	}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	status, err := h.client.GetSchedulerStatus()
	if err != nil {
		t.Fatalf("GetSchedulerStatus() error = %v", err)
	}
	if len(status.Jobs) != 1 || status.Jobs[0].Name != "outbox-gc" || status.Jobs[0].Paused {
		t.Fatalf("status.Jobs = %+v, want one running outbox-gc job", status.Jobs)
	}

	if err := h.client.PauseJob("outbox-gc"); err != nil {
		t.Fatalf("PauseJob() error = %v", err)
	}
	status, _ = h.client.GetSchedulerStatus()
	if !status.Jobs[0].Paused {
		t.Fatalf("expected outbox-gc paused after PauseJob")
	}

	if err := h.client.ResumeJob("outbox-gc"); err != nil {
		t.Fatalf("ResumeJob() error = %v", err)
	}
	status, _ = h.client.GetSchedulerStatus()
	if status.Jobs[0].Paused {
		t.Fatalf("expected outbox-gc resumed after ResumeJob")
	}
}

func TestPauseUnknownJobReturnsError(t *testing.T) {
	h := newTestHarness(t)
	if err := h.client.PauseJob("does-not-exist"); err == nil {
		t.Fatalf("expected an error pausing an unregistered job")
	}
}

func TestSearchLexicalUnavailableWhenNotConfigured(t *testing.T) {
	h := newTestHarness(t)
	_, err := h.client.SearchLexical(SearchLexicalArgs{Query: "anything"})
	if err == nil {
		t.Fatalf("expected an error when the lexical indexer is not configured")
	}
}

func TestGetStatsCountsIngestedEvents(t *testing.T) {
	h := newTestHarness(t)
	event := types.Event{ID: idgen.NewEventIDNow(), TimestampMs: types.NowMs(), SessionID: "s1", Text: "x"}
	if _, err := h.client.IngestEvent(IngestEventArgs{Event: event}); err != nil {
		t.Fatalf("IngestEvent() error = %v", err)
	}
	stats, err := h.client.GetStats()
	if err != nil {
		t.Fatalf("GetStats() error = %v", err)
	}
	if stats.EventCount != 1 {
		t.Fatalf("EventCount = %d, want 1", stats.EventCount)
	}
}

func TestCompact(t *testing.T) {
	h := newTestHarness(t)
	result, err := h.client.Compact()
	if err != nil {
		t.Fatalf("Compact() error = %v", err)
	}
	if !result.OK {
		t.Fatalf("expected Compact to report ok=true")
	}
}

func TestGetAgentStatsAggregatesContributingAgents(t *testing.T) {
	h := newTestHarness(t)
	year := types.TocNode{
		ID: "Year:2026", Level: types.LevelYear, Title: "2026",
		ContributingAgents: []string{"agent-a"}, EndMs: 1000,
	}
	if _, err := h.server.deps.TOC.PutTocNode(year); err != nil {
		t.Fatalf("PutTocNode(year) error = %v", err)
	}
	day := types.TocNode{
		ID: "Day:2026-01-02", Level: types.LevelDay, Title: "day",
		ContributingAgents: []string{"agent-a", "agent-b"}, EndMs: 2000,
	}
	if _, err := h.server.deps.TOC.PutTocNode(day); err != nil {
		t.Fatalf("PutTocNode(day) error = %v", err)
	}

	result, err := h.client.GetAgentStats(GetAgentStatsArgs{})
	if err != nil {
		t.Fatalf("GetAgentStats() error = %v", err)
	}
	if len(result.Agents) != 2 {
		t.Fatalf("Agents = %+v, want 2 agents", result.Agents)
	}
	// sorted by agent id
	if result.Agents[0].AgentID != "agent-a" || result.Agents[0].TocNodeCount != 2 {
		t.Fatalf("Agents[0] = %+v, want agent-a with 2 contributed nodes", result.Agents[0])
	}
	if result.Agents[0].LastActiveMs != 2000 {
		t.Fatalf("Agents[0].LastActiveMs = %d, want 2000 (max of both nodes)", result.Agents[0].LastActiveMs)
	}
	if result.Agents[1].AgentID != "agent-b" || result.Agents[1].TocNodeCount != 1 {
		t.Fatalf("Agents[1] = %+v, want agent-b with 1 contributed node", result.Agents[1])
	}
}

func TestGetAgentStatsFiltersByAgentID(t *testing.T) {
	h := newTestHarness(t)
	node := types.TocNode{
		ID: "Year:2026", Level: types.LevelYear, Title: "2026",
		ContributingAgents: []string{"agent-a", "agent-b"},
	}
	if _, err := h.server.deps.TOC.PutTocNode(node); err != nil {
		t.Fatalf("PutTocNode() error = %v", err)
	}

	result, err := h.client.GetAgentStats(GetAgentStatsArgs{AgentID: "agent-b"})
	if err != nil {
		t.Fatalf("GetAgentStats() error = %v", err)
	}
	if len(result.Agents) != 1 || result.Agents[0].AgentID != "agent-b" {
		t.Fatalf("Agents = %+v, want only agent-b", result.Agents)
	}
}

func TestUnknownOperationIsInvalidArgument(t *testing.T) {
	h := newTestHarness(t)
	err := h.client.Call("NotARealOperation", nil, nil)
	if err == nil {
		t.Fatalf("expected an error for an unknown operation")
	}
}
