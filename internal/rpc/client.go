package rpc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/agentmemory/memd/internal/merrors"
)

// Client is a connection to a running daemon's Unix domain socket.
type Client struct {
	conn    net.Conn
	timeout time.Duration
}

// Dial connects to the daemon listening at socketPath. It does not
// perform a health check; callers that want a fail-fast "is anything
// listening" probe should call TryDial instead.
func Dial(socketPath string, dialTimeout time.Duration) (*Client, error) {
	if dialTimeout <= 0 {
		dialTimeout = 2 * time.Second
	}
	conn, err := dialRPC(socketPath, dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("rpc: dial %s: %w", socketPath, err)
	}
	return &Client{conn: conn, timeout: 30 * time.Second}, nil
}

// TryDial is Dial, but returns (nil, nil) instead of an error when no
// daemon is listening at socketPath, matching the convention callers
// use to decide whether to spawn one.
func TryDial(socketPath string, dialTimeout time.Duration) (*Client, error) {
	if !endpointExists(socketPath) {
		return nil, nil
	}
	client, err := Dial(socketPath, dialTimeout)
	if err != nil {
		return nil, nil
	}
	return client, nil
}

// SetTimeout overrides the per-request socket deadline (default 30s).
func (c *Client) SetTimeout(timeout time.Duration) { c.timeout = timeout }

// Close closes the underlying connection.
func (c *Client) Close() error { return c.conn.Close() }

// Call sends operation with args marshalled as the request payload, and
// unmarshals the response's Data into out (which must be a pointer). A
// nil args or out is valid for operations with no payload in either
// direction.
func (c *Client) Call(operation string, args any, out any) error {
	var argsJSON json.RawMessage
	if args != nil {
		marshalled, err := json.Marshal(args)
		if err != nil {
			return fmt.Errorf("rpc: marshal args: %w", err)
		}
		argsJSON = marshalled
	}

	req := Request{Operation: operation, Args: argsJSON}
	reqJSON, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("rpc: marshal request: %w", err)
	}

	if c.timeout > 0 {
		if err := c.conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
			return fmt.Errorf("rpc: set deadline: %w", err)
		}
	}

	writer := bufio.NewWriter(c.conn)
	if _, err := writer.Write(reqJSON); err != nil {
		return fmt.Errorf("rpc: write request: %w", err)
	}
	if err := writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("rpc: write newline: %w", err)
	}
	if err := writer.Flush(); err != nil {
		return fmt.Errorf("rpc: flush: %w", err)
	}

	reader := bufio.NewReader(c.conn)
	line, err := reader.ReadBytes('\n')
	if err != nil {
		return fmt.Errorf("rpc: read response: %w", err)
	}

	var resp Response
	if err := json.Unmarshal(line, &resp); err != nil {
		return fmt.Errorf("rpc: unmarshal response: %w", err)
	}
	if !resp.Success {
		return merrors.New(merrors.Internal, operation, resp.Error)
	}
	if out != nil && len(resp.Data) > 0 {
		if err := json.Unmarshal(resp.Data, out); err != nil {
			return fmt.Errorf("rpc: unmarshal result: %w", err)
		}
	}
	return nil
}

// Ping verifies the daemon is alive and responding.
func (c *Client) Ping() error {
	return c.Call(OpPing, nil, nil)
}

// Status retrieves daemon status metadata.
func (c *Client) Status() (StatusResult, error) {
	var out StatusResult
	err := c.Call(OpStatus, nil, &out)
	return out, err
}

// Shutdown requests an orderly daemon shutdown.
func (c *Client) Shutdown() error {
	return c.Call(OpShutdown, nil, nil)
}

// IngestEvent sends one event for ingestion.
func (c *Client) IngestEvent(args IngestEventArgs) (IngestEventResult, error) {
	var out IngestEventResult
	err := c.Call(OpIngestEvent, args, &out)
	return out, err
}

// GetRetrievalCapabilities reports the current capability tier.
func (c *Client) GetRetrievalCapabilities(args GetRetrievalCapabilitiesArgs) (GetRetrievalCapabilitiesResult, error) {
	var out GetRetrievalCapabilitiesResult
	err := c.Call(OpGetRetrievalCapabilities, args, &out)
	return out, err
}

// ClassifyQueryIntent classifies a query without routing it.
func (c *Client) ClassifyQueryIntent(args ClassifyQueryIntentArgs) (ClassifyQueryIntentResult, error) {
	var out ClassifyQueryIntentResult
	err := c.Call(OpClassifyQueryIntent, args, &out)
	return out, err
}

// RouteQuery runs the full classify-and-retrieve pipeline.
func (c *Client) RouteQuery(args RouteQueryArgs) (RouteQueryResult, error) {
	var out RouteQueryResult
	err := c.Call(OpRouteQuery, args, &out)
	return out, err
}

// GetTocRoot returns the top-level (year) TOC nodes.
func (c *Client) GetTocRoot() (BrowseTocResult, error) {
	var out BrowseTocResult
	err := c.Call(OpGetTocRoot, nil, &out)
	return out, err
}

// GetNode returns one TOC node by id.
func (c *Client) GetNode(args GetNodeArgs) (GetNodeResult, error) {
	var out GetNodeResult
	err := c.Call(OpGetNode, args, &out)
	return out, err
}

// BrowseToc pages through one node's children.
func (c *Client) BrowseToc(args BrowseTocArgs) (BrowseTocResult, error) {
	var out BrowseTocResult
	err := c.Call(OpBrowseToc, args, &out)
	return out, err
}

// GetEvents fetches raw events in a time range.
func (c *Client) GetEvents(args GetEventsArgs) (GetEventsResult, error) {
	var out GetEventsResult
	err := c.Call(OpGetEvents, args, &out)
	return out, err
}

// ExpandGrip widens a grip into its surrounding event window.
func (c *Client) ExpandGrip(args ExpandGripArgs) (ExpandGripResult, error) {
	var out ExpandGripResult
	err := c.Call(OpExpandGrip, args, &out)
	return out, err
}

// SearchLexical runs a direct BM25 query.
func (c *Client) SearchLexical(args SearchLexicalArgs) (SearchLexicalResult, error) {
	var out SearchLexicalResult
	err := c.Call(OpSearchLexical, args, &out)
	return out, err
}

// SearchVector runs a direct vector query.
func (c *Client) SearchVector(args SearchVectorArgs) (SearchVectorResult, error) {
	var out SearchVectorResult
	err := c.Call(OpSearchVector, args, &out)
	return out, err
}

// SearchTopics runs a direct topic-graph query.
func (c *Client) SearchTopics(args SearchTopicsArgs) (SearchTopicsResult, error) {
	var out SearchTopicsResult
	err := c.Call(OpSearchTopics, args, &out)
	return out, err
}

// GetSchedulerStatus reports every maintenance job's state.
func (c *Client) GetSchedulerStatus() (GetSchedulerStatusResult, error) {
	var out GetSchedulerStatusResult
	err := c.Call(OpGetSchedulerStatus, nil, &out)
	return out, err
}

// PauseJob pauses a pausable maintenance job.
func (c *Client) PauseJob(name string) error {
	return c.Call(OpPauseJob, JobNameArgs{Name: name}, nil)
}

// ResumeJob resumes a paused maintenance job.
func (c *Client) ResumeJob(name string) error {
	return c.Call(OpResumeJob, JobNameArgs{Name: name}, nil)
}

// GetStats reports daemon-wide counters.
func (c *Client) GetStats() (GetStatsResult, error) {
	var out GetStatsResult
	err := c.Call(OpGetStats, nil, &out)
	return out, err
}

// Compact triggers the underlying engine's compaction pass.
func (c *Client) Compact() (CompactResult, error) {
	var out CompactResult
	err := c.Call(OpCompact, nil, &out)
	return out, err
}

// RebuildToc rebuilds the table of contents, optionally bounded to window.
func (c *Client) RebuildToc(args RebuildTocArgs) (RebuildTocResult, error) {
	var out RebuildTocResult
	err := c.Call(OpRebuildToc, args, &out)
	return out, err
}

// GetAgentStats reports per-agent contribution and usage counters
// derived from TOC node attribution and the usage tracker.
func (c *Client) GetAgentStats(args GetAgentStatsArgs) (GetAgentStatsResult, error) {
	var out GetAgentStatsResult
	err := c.Call(OpGetAgentStats, args, &out)
	return out, err
}
