package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentmemory/memd/internal/daemonrunner"
	"github.com/agentmemory/memd/internal/project"
	"github.com/agentmemory/memd/internal/rpc"
)

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "administrative operations against the memd daemon and its store",
}

func init() {
	adminCmd.AddCommand(adminStatsCmd, adminCompactCmd, adminRebuildTocCmd)
}

var adminStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "report event, TOC, and topic counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := connectClient()
		if err != nil {
			return err
		}
		defer func() { _ = c.Close() }()

		result, err := c.GetStats()
		if err != nil {
			return runtimeErrf("GetStats: %v", err)
		}
		if flagJSON {
			return printJSON(result)
		}
		fmt.Printf("events      %d\n", result.EventCount)
		fmt.Printf("toc nodes   %d\n", result.TocNodeCount)
		fmt.Printf("topics      %d\n", result.TopicCount)
		fmt.Printf("uptime      %s\n", fmtDuration(msToDuration(result.UptimeMs)))
		return nil
	},
}

var adminCompactCmd = &cobra.Command{
	Use:   "compact",
	Short: "compact the underlying storage engine",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := connectClient()
		if err != nil {
			return err
		}
		defer func() { _ = c.Close() }()

		result, err := c.Compact()
		if err != nil {
			return runtimeErrf("Compact: %v", err)
		}
		if flagJSON {
			return printJSON(result)
		}
		if result.OK {
			printf("%s compaction finished\n", okStyle.Render("done"))
		} else {
			printf("%s compaction reported no changes\n", mutedStyle.Render("done"))
		}
		return nil
	},
}

// adminRebuildTocCmd drains the event outbox through the lexical and
// vector adapters outside of a running daemon. internal/rpc's
// handleRebuildToc refuses this over the wire (internal/rpc has no
// outbox dependency to replay through), so this is the one admin
// subcommand that builds its own daemonComponents locally instead of
// going through client.Client, and therefore requires the daemon to be
// stopped first.
var adminRebuildTocCmd = &cobra.Command{
	Use:   "rebuild-toc",
	Short: "reprocess the event outbox into the lexical and vector indexes",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := rootCtx

		varDir := project.VarDir(resolvedProjectDir)
		if pid, err := daemonrunner.ReadPID(varDir); err == nil && pid != 0 {
			return runtimeErrf("memd is running for %s (pid %d); stop it before rebuild-toc", resolvedProjectDir, pid)
		}

		d, err := buildComponents(ctx, cfg, resolvedProjectDir, Version, logger)
		if err != nil {
			return runtimeErrf("building local components: %v", err)
		}
		defer d.close(context.Background())

		var processed int
		for {
			res, err := d.outboxDriver.Tick()
			if err != nil {
				return runtimeErrf("rebuild-toc: outbox tick: %v", err)
			}
			processed += res.Processed
			if res.FetchedEntries == 0 {
				break
			}
		}

		result := rpc.RebuildTocResult{NodesRebuilt: processed}
		if flagJSON {
			return printJSON(result)
		}
		printf("%s reprocessed %d outbox entries\n", okStyle.Render("done"), processed)
		return nil
	},
}

func msToDuration(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
