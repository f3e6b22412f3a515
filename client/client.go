// Package client is the public, importable surface for talking to a
// running memd daemon. It is a thin wrapper over internal/rpc.Client:
// extensions (hooks, editor plugins, other CLIs) that want to ingest
// events or query memory without linking the daemon's internals import
// this package instead.
package client

import (
	"time"

	"github.com/agentmemory/memd/internal/project"
	"github.com/agentmemory/memd/internal/rpc"
)

// DefaultDialTimeout bounds how long Connect waits for the daemon's
// Unix socket to accept a connection.
const DefaultDialTimeout = 2 * time.Second

// Client is a connection to one project's memd daemon.
type Client struct {
	rpc *rpc.Client
}

// Connect dials the daemon socket under projectDir (or the current
// working directory's .memd when projectDir is empty). It returns an
// error if no daemon is listening; callers that want to decide whether
// to spawn one themselves should use Probe instead.
func Connect(projectDir string) (*Client, error) {
	socketPath, err := socketPath(projectDir)
	if err != nil {
		return nil, err
	}
	c, err := rpc.Dial(socketPath, DefaultDialTimeout)
	if err != nil {
		return nil, err
	}
	return &Client{rpc: c}, nil
}

// Probe is Connect, but returns (nil, nil) instead of an error when no
// daemon is running, matching the convention callers use to decide
// whether to spawn one before giving up.
func Probe(projectDir string) (*Client, error) {
	socketPath, err := socketPath(projectDir)
	if err != nil {
		return nil, err
	}
	c, err := rpc.TryDial(socketPath, DefaultDialTimeout)
	if err != nil || c == nil {
		return nil, err
	}
	return &Client{rpc: c}, nil
}

func socketPath(projectDir string) (string, error) {
	dir, err := project.ResolveDir(projectDir)
	if err != nil {
		return "", err
	}
	return project.VarPath(dir, "memd.sock"), nil
}

// SetTimeout overrides the per-request socket deadline (default 30s).
func (c *Client) SetTimeout(timeout time.Duration) { c.rpc.SetTimeout(timeout) }

// Close closes the underlying connection.
func (c *Client) Close() error { return c.rpc.Close() }

// Ping verifies the daemon is alive and responding.
func (c *Client) Ping() error { return c.rpc.Ping() }

// Status retrieves daemon status metadata.
func (c *Client) Status() (rpc.StatusResult, error) { return c.rpc.Status() }

// IngestEvent sends one conversational event for ingestion. Re-sending
// an event with the same ID is idempotent: Created reports false and
// no error.
func (c *Client) IngestEvent(args rpc.IngestEventArgs) (rpc.IngestEventResult, error) {
	return c.rpc.IngestEvent(args)
}

// GetRetrievalCapabilities reports which retrieval layers are healthy
// and which capability tier the daemon is currently operating at.
func (c *Client) GetRetrievalCapabilities(args rpc.GetRetrievalCapabilitiesArgs) (rpc.GetRetrievalCapabilitiesResult, error) {
	return c.rpc.GetRetrievalCapabilities(args)
}

// ClassifyQueryIntent classifies a query's intent without running it.
func (c *Client) ClassifyQueryIntent(args rpc.ClassifyQueryIntentArgs) (rpc.ClassifyQueryIntentResult, error) {
	return c.rpc.ClassifyQueryIntent(args)
}

// RouteQuery runs the full classify-and-retrieve pipeline: classify
// intent, detect the capability tier, execute the matching fallback
// chain, and return explainable results.
func (c *Client) RouteQuery(args rpc.RouteQueryArgs) (rpc.RouteQueryResult, error) {
	return c.rpc.RouteQuery(args)
}

// GetTocRoot returns the top-level (year) table-of-contents nodes.
func (c *Client) GetTocRoot() (rpc.BrowseTocResult, error) { return c.rpc.GetTocRoot() }

// GetNode returns one table-of-contents node by id.
func (c *Client) GetNode(id string) (rpc.GetNodeResult, error) {
	return c.rpc.GetNode(rpc.GetNodeArgs{ID: id})
}

// BrowseToc pages through one node's children.
func (c *Client) BrowseToc(args rpc.BrowseTocArgs) (rpc.BrowseTocResult, error) {
	return c.rpc.BrowseToc(args)
}

// GetEvents fetches raw events within a time range.
func (c *Client) GetEvents(args rpc.GetEventsArgs) (rpc.GetEventsResult, error) {
	return c.rpc.GetEvents(args)
}

// ExpandGrip widens a grip excerpt into its surrounding event window.
func (c *Client) ExpandGrip(args rpc.ExpandGripArgs) (rpc.ExpandGripResult, error) {
	return c.rpc.ExpandGrip(args)
}

// SearchLexical runs a direct BM25 query, bypassing intent
// classification and the fallback chain.
func (c *Client) SearchLexical(args rpc.SearchLexicalArgs) (rpc.SearchLexicalResult, error) {
	return c.rpc.SearchLexical(args)
}

// SearchVector runs a direct vector (semantic) query.
func (c *Client) SearchVector(args rpc.SearchVectorArgs) (rpc.SearchVectorResult, error) {
	return c.rpc.SearchVector(args)
}

// SearchTopics runs a direct topic-graph query.
func (c *Client) SearchTopics(args rpc.SearchTopicsArgs) (rpc.SearchTopicsResult, error) {
	return c.rpc.SearchTopics(args)
}

// GetSchedulerStatus reports every maintenance job's state.
func (c *Client) GetSchedulerStatus() (rpc.GetSchedulerStatusResult, error) {
	return c.rpc.GetSchedulerStatus()
}

// PauseJob pauses a pausable maintenance job by name.
func (c *Client) PauseJob(name string) error { return c.rpc.PauseJob(name) }

// ResumeJob resumes a paused maintenance job by name.
func (c *Client) ResumeJob(name string) error { return c.rpc.ResumeJob(name) }

// GetStats reports daemon-wide counters (event, node, and topic counts).
func (c *Client) GetStats() (rpc.GetStatsResult, error) { return c.rpc.GetStats() }

// Compact triggers the underlying storage engine's compaction pass.
func (c *Client) Compact() (rpc.CompactResult, error) { return c.rpc.Compact() }

// Shutdown requests an orderly daemon shutdown.
func (c *Client) Shutdown() error { return c.rpc.Shutdown() }

// GetAgentStats reports per-agent contribution and usage counters,
// derived from TOC node attribution and the usage tracker.
func (c *Client) GetAgentStats(args rpc.GetAgentStatsArgs) (rpc.GetAgentStatsResult, error) {
	return c.rpc.GetAgentStats(args)
}
