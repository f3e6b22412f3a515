// Package rpc implements the daemon's local request/response protocol
// (spec §6): a newline-delimited JSON envelope carried over a Unix
// domain socket, with one typed Args/Result pair per operation.
package rpc

import (
	"encoding/json"

	"github.com/agentmemory/memd/internal/types"
)

// Request is one call's full envelope. Args is deferred decoding so the
// server can dispatch on Operation before knowing the concrete type.
type Request struct {
	Operation string          `json:"operation"`
	Args      json.RawMessage `json:"args,omitempty"`
	Actor     string          `json:"actor,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
	TimeoutMs int             `json:"timeout_ms,omitempty"`
}

// Response is one call's full reply. Data is encoded as a raw message so
// the client can decode it into the result type matching Request.Operation.
type Response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Operation names, one per external interface entry in spec §6.
const (
	OpPing                     = "Ping"
	OpStatus                   = "Status"
	OpShutdown                 = "Shutdown"
	OpIngestEvent              = "IngestEvent"
	OpGetRetrievalCapabilities = "GetRetrievalCapabilities"
	OpClassifyQueryIntent      = "ClassifyQueryIntent"
	OpRouteQuery               = "RouteQuery"
	OpGetTocRoot               = "GetTocRoot"
	OpGetNode                  = "GetNode"
	OpBrowseToc                = "BrowseToc"
	OpGetEvents                = "GetEvents"
	OpExpandGrip               = "ExpandGrip"
	OpSearchLexical            = "SearchLexical"
	OpSearchVector             = "SearchVector"
	OpSearchTopics             = "SearchTopics"
	OpGetSchedulerStatus       = "GetSchedulerStatus"
	OpPauseJob                 = "PauseJob"
	OpResumeJob                = "ResumeJob"
	OpGetStats                 = "GetStats"
	OpCompact                  = "Compact"
	OpRebuildToc               = "RebuildToc"
	OpGetAgentStats            = "GetAgentStats"
)

// StatusResult answers OpStatus.
type StatusResult struct {
	DBPath    string `json:"db_path"`
	UptimeMs  int64  `json:"uptime_ms"`
	Version   string `json:"version"`
	StartedMs int64  `json:"started_ms"`
}

// IngestEventArgs wraps the event described in spec §3.
type IngestEventArgs struct {
	Event types.Event `json:"event"`
}

// IngestEventResult answers IngestEventArgs.
type IngestEventResult struct {
	EventID string `json:"event_id"`
	Created bool   `json:"created"`
}

// GetRetrievalCapabilitiesArgs optionally forces a fresh tier probe,
// bypassing the detector's cache (spec §4.8).
type GetRetrievalCapabilitiesArgs struct {
	Force bool `json:"force,omitempty"`
}

// GetRetrievalCapabilitiesResult answers GetRetrievalCapabilitiesArgs.
type GetRetrievalCapabilitiesResult struct {
	Tier             types.Tier               `json:"tier"`
	BM25             types.LayerHealth        `json:"bm25"`
	Vector           types.LayerHealth        `json:"vector"`
	Topics           types.LayerHealth        `json:"topics"`
	AgenticAvailable bool                     `json:"agentic_always_available"`
	DetectionTimeMs  int64                    `json:"detection_time_ms"`
	Warnings         []string                 `json:"warnings,omitempty"`
}

// ClassifyQueryIntentArgs classifies a raw query string.
type ClassifyQueryIntentArgs struct {
	Query     string `json:"query"`
	TimeoutMs int    `json:"timeout_ms,omitempty"`
}

// ClassifyQueryIntentResult answers ClassifyQueryIntentArgs.
type ClassifyQueryIntentResult struct {
	Intent          types.Intent     `json:"intent"`
	Confidence      float64          `json:"confidence"`
	Reason          string           `json:"reason"`
	MatchedKeywords []string         `json:"matched_keywords,omitempty"`
	TimeWindow      *types.TimeWindow `json:"time_window,omitempty"`
}

// RouteQueryArgs is one full retrieval call's input over the wire.
type RouteQueryArgs struct {
	Query          string               `json:"query"`
	IntentOverride *types.Intent        `json:"intent_override,omitempty"`
	StopConditions *types.StopConditions `json:"stop_conditions,omitempty"`
	ModeOverride   *types.ExecutionMode `json:"mode_override,omitempty"`
	Limit          int                  `json:"limit,omitempty"`
	AgentFilter    string               `json:"agent_filter,omitempty"`
}

// RouteQueryResult answers RouteQueryArgs.
type RouteQueryResult struct {
	Results         []types.RetrievalResult `json:"results"`
	Explanation     types.Explainability    `json:"explanation"`
	HasResults      bool                    `json:"has_results"`
	LayersAttempted []types.Layer           `json:"layers_attempted"`
}

// GetNodeArgs identifies a single TOC node.
type GetNodeArgs struct {
	ID string `json:"id"`
}

// GetNodeResult answers GetNodeArgs.
type GetNodeResult struct {
	Node  types.TocNode `json:"node"`
	Found bool          `json:"found"`
}

// BrowseTocArgs pages through one node's children.
type BrowseTocArgs struct {
	Parent            string `json:"parent"`
	PageSize          int    `json:"page_size"`
	ContinuationToken string `json:"continuation_token,omitempty"`
}

// BrowseTocResult answers BrowseTocArgs.
type BrowseTocResult struct {
	Nodes                 []types.TocNode `json:"nodes"`
	NextContinuationToken string          `json:"next_continuation_token,omitempty"`
}

// GetEventsArgs bounds an event-stream range query.
type GetEventsArgs struct {
	StartMs int64 `json:"start_ms"`
	EndMs   int64 `json:"end_ms"`
	Limit   int   `json:"limit"`
}

// GetEventsResult answers GetEventsArgs.
type GetEventsResult struct {
	Events []types.Event `json:"events"`
}

// ExpandGripArgs widens a grip into the surrounding event window.
type ExpandGripArgs struct {
	GripID       string `json:"grip_id"`
	EventsBefore int    `json:"events_before"`
	EventsAfter  int    `json:"events_after"`
}

// ExpandGripResult answers ExpandGripArgs.
type ExpandGripResult struct {
	Grip   types.Grip    `json:"grip"`
	Events []types.Event `json:"events"`
	Found  bool          `json:"found"`
}

// SearchLexicalArgs is a direct BM25 layer query (spec §4.4), bypassing
// intent classification and the fallback chain.
type SearchLexicalArgs struct {
	Query   string `json:"query"`
	Limit   int    `json:"limit"`
	DocType string `json:"doc_type,omitempty"`
	Level   string `json:"level,omitempty"`
	Agent   string `json:"agent,omitempty"`
}

// SearchLexicalResult answers SearchLexicalArgs.
type SearchLexicalResult struct {
	Results []types.RetrievalResult `json:"results"`
}

// SearchVectorArgs is a direct vector layer query (spec §4.5).
type SearchVectorArgs struct {
	Query string `json:"query"`
	K     int    `json:"k"`
}

// SearchVectorResult answers SearchVectorArgs.
type SearchVectorResult struct {
	Results []types.RetrievalResult `json:"results"`
}

// SearchTopicsArgs is a direct topic-graph query (spec §4.6).
type SearchTopicsArgs struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

// SearchTopicsResult answers SearchTopicsArgs.
type SearchTopicsResult struct {
	Topics []types.Topic `json:"topics"`
}

// GetSchedulerStatusResult reports every maintenance job's state.
type GetSchedulerStatusResult struct {
	Jobs []SchedulerJobStatus `json:"jobs"`
}

// SchedulerJobStatus mirrors scheduler.JobStatus without importing the
// scheduler package's internal JobResult shape into the wire protocol.
type SchedulerJobStatus struct {
	Name      string `json:"name"`
	Enabled   bool   `json:"enabled"`
	Paused    bool   `json:"paused"`
	Running   bool   `json:"running"`
	LastRunMs int64  `json:"last_run_ms"`
	RunCount  uint64 `json:"run_count"`
	FailCount uint64 `json:"fail_count"`
	LastErr   string `json:"last_error,omitempty"`
}

// JobNameArgs names a single scheduler job, used by PauseJob/ResumeJob.
type JobNameArgs struct {
	Name string `json:"name"`
}

// GetStatsResult reports daemon-wide counters for the admin surface.
type GetStatsResult struct {
	EventCount   int64 `json:"event_count"`
	TocNodeCount int64 `json:"toc_node_count"`
	TopicCount   int64 `json:"topic_count"`
	UptimeMs     int64 `json:"uptime_ms"`
}

// CompactResult reports whether the underlying engine's compaction ran.
type CompactResult struct {
	OK bool `json:"ok"`
}

// RebuildTocArgs optionally bounds a TOC rebuild to one time window.
type RebuildTocArgs struct {
	Window *types.TimeWindow `json:"window,omitempty"`
}

// RebuildTocResult reports the size of a rebuild. `memd admin rebuild-toc`
// fills NodesRebuilt with the number of outbox entries it reprocessed.
type RebuildTocResult struct {
	NodesRebuilt int `json:"nodes_rebuilt"`
}

// GetAgentStatsArgs optionally narrows the result to one agent.
type GetAgentStatsArgs struct {
	AgentID string `json:"agent_id,omitempty"`
}

// AgentStats summarises one agent's footprint: how many TOC nodes it
// contributed to, when the most recent one ended, and how often those
// nodes have been retrieved.
type AgentStats struct {
	AgentID      string `json:"agent_id"`
	TocNodeCount int    `json:"toc_node_count"`
	LastActiveMs int64  `json:"last_active_ms"`
	AccessCount  uint64 `json:"access_count"`
}

// GetAgentStatsResult answers GetAgentStatsArgs.
type GetAgentStatsResult struct {
	Agents []AgentStats `json:"agents"`
}
