package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentmemory/memd/client"
	"github.com/agentmemory/memd/internal/daemonrunner"
	"github.com/agentmemory/memd/internal/project"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "report whether the memd daemon is running",
	RunE: func(cmd *cobra.Command, args []string) error {
		info, lockErr := daemonrunner.ReadLockInfo(project.VarDir(resolvedProjectDir))
		c, probeErr := client.Probe(resolvedProjectDir)
		if probeErr != nil {
			return runtimeErrf("probing daemon socket: %v", probeErr)
		}
		defer func() {
			if c != nil {
				_ = c.Close()
			}
		}()

		running := c != nil
		var rpcStatus any
		if running {
			s, err := c.Status()
			if err == nil {
				rpcStatus = s
			}
		}

		if flagJSON {
			out := map[string]any{"running": running}
			if lockErr == nil {
				out["lock"] = info
			}
			if rpcStatus != nil {
				out["status"] = rpcStatus
			}
			return printJSON(out)
		}

		if running {
			printf("%s memd is running for %s\n", okStyle.Render("●"), resolvedProjectDir)
		} else {
			printf("%s memd is not running for %s\n", mutedStyle.Render("○"), resolvedProjectDir)
		}
		if lockErr == nil {
			fmt.Printf("  pid %d, db %s, version %s\n", info.PID, info.Database, info.Version)
		}
		return nil
	},
}
