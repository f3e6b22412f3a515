package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentmemory/memd/client"
	"github.com/agentmemory/memd/internal/rpc"
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "query the running memd daemon's table of contents and events",
}

func init() {
	queryCmd.AddCommand(queryRootCmd, queryNodeCmd, queryBrowseCmd, queryEventsCmd, queryExpandCmd)
}

// connectClient dials the daemon for resolvedProjectDir, translating a
// "nothing listening" failure into a clear runtime error since every
// query subcommand requires a live daemon.
func connectClient() (*client.Client, error) {
	c, err := client.Connect(resolvedProjectDir)
	if err != nil {
		return nil, runtimeErrf("connecting to memd daemon (is it running? try `memd start`): %v", err)
	}
	return c, nil
}

var queryRootCmd = &cobra.Command{
	Use:   "root",
	Short: "list the top-level (year) table-of-contents nodes",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := connectClient()
		if err != nil {
			return err
		}
		defer func() { _ = c.Close() }()

		result, err := c.GetTocRoot()
		if err != nil {
			return runtimeErrf("GetTocRoot: %v", err)
		}
		if flagJSON {
			return printJSON(result)
		}
		for _, node := range result.Nodes {
			fmt.Printf("%s  %s\n", node.ID, node.Title)
		}
		return nil
	},
}

var queryNodeCmd = &cobra.Command{
	Use:   "node <id>",
	Short: "fetch one table-of-contents node by id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := connectClient()
		if err != nil {
			return err
		}
		defer func() { _ = c.Close() }()

		result, err := c.GetNode(args[0])
		if err != nil {
			return runtimeErrf("GetNode: %v", err)
		}
		if flagJSON {
			return printJSON(result)
		}
		if !result.Found {
			printf("no such node: %s\n", args[0])
			return nil
		}
		fmt.Printf("%s  %s\n", result.Node.ID, result.Node.Title)
		for _, kw := range result.Node.Keywords {
			fmt.Printf("  keyword: %s\n", kw)
		}
		for _, b := range result.Node.Bullets {
			fmt.Printf("  - %s\n", b.Text)
		}
		return nil
	},
}

var (
	queryBrowsePageSize int
	queryBrowseToken    string
)

var queryBrowseCmd = &cobra.Command{
	Use:   "browse <parent-id>",
	Short: "page through one node's children",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := connectClient()
		if err != nil {
			return err
		}
		defer func() { _ = c.Close() }()

		result, err := c.BrowseToc(rpc.BrowseTocArgs{
			Parent:            args[0],
			PageSize:          queryBrowsePageSize,
			ContinuationToken: queryBrowseToken,
		})
		if err != nil {
			return runtimeErrf("BrowseToc: %v", err)
		}
		if flagJSON {
			return printJSON(result)
		}
		for _, node := range result.Nodes {
			fmt.Printf("%s  %s\n", node.ID, node.Title)
		}
		if result.NextContinuationToken != "" {
			printf("next: --continuation-token=%s\n", result.NextContinuationToken)
		}
		return nil
	},
}

func init() {
	queryBrowseCmd.Flags().IntVar(&queryBrowsePageSize, "page-size", 20, "maximum children per page")
	queryBrowseCmd.Flags().StringVar(&queryBrowseToken, "continuation-token", "", "continuation token from a previous page")
}

var (
	queryEventsStartMs int64
	queryEventsEndMs   int64
	queryEventsLimit   int
)

var queryEventsCmd = &cobra.Command{
	Use:   "events",
	Short: "fetch raw events within a time range",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := connectClient()
		if err != nil {
			return err
		}
		defer func() { _ = c.Close() }()

		result, err := c.GetEvents(rpc.GetEventsArgs{
			StartMs: queryEventsStartMs,
			EndMs:   queryEventsEndMs,
			Limit:   queryEventsLimit,
		})
		if err != nil {
			return runtimeErrf("GetEvents: %v", err)
		}
		if flagJSON {
			return printJSON(result)
		}
		for _, ev := range result.Events {
			fmt.Printf("%s  %s  %s\n", ev.ID, ev.AgentID, ev.Text)
		}
		return nil
	},
}

func init() {
	queryEventsCmd.Flags().Int64Var(&queryEventsStartMs, "start-ms", 0, "range start, unix ms")
	queryEventsCmd.Flags().Int64Var(&queryEventsEndMs, "end-ms", 0, "range end, unix ms (0 = now)")
	queryEventsCmd.Flags().IntVar(&queryEventsLimit, "limit", 100, "maximum events to return")
}

var (
	queryExpandBefore int
	queryExpandAfter  int
)

var queryExpandCmd = &cobra.Command{
	Use:   "expand <grip-id>",
	Short: "widen a grip excerpt into its surrounding event window",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := connectClient()
		if err != nil {
			return err
		}
		defer func() { _ = c.Close() }()

		result, err := c.ExpandGrip(rpc.ExpandGripArgs{
			GripID:       args[0],
			EventsBefore: queryExpandBefore,
			EventsAfter:  queryExpandAfter,
		})
		if err != nil {
			return runtimeErrf("ExpandGrip: %v", err)
		}
		if flagJSON {
			return printJSON(result)
		}
		fmt.Println(result.Grip.Text)
		for _, ev := range result.Events {
			fmt.Printf("  %s  %s\n", ev.ID, ev.Text)
		}
		return nil
	},
}

func init() {
	queryExpandCmd.Flags().IntVar(&queryExpandBefore, "before", 3, "events to include before the grip")
	queryExpandCmd.Flags().IntVar(&queryExpandAfter, "after", 3, "events to include after the grip")
}
