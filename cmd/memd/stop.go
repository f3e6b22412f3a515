package main

import (
	"syscall"

	"github.com/spf13/cobra"

	"github.com/agentmemory/memd/internal/daemonrunner"
	"github.com/agentmemory/memd/internal/project"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "stop the running memd daemon by PID file",
	RunE: func(cmd *cobra.Command, args []string) error {
		pid, err := daemonrunner.ReadPID(project.VarDir(resolvedProjectDir))
		if err != nil {
			return runtimeErrf("reading pid file: %v", err)
		}
		if pid == 0 {
			if flagJSON {
				return printJSON(map[string]any{"stopped": false, "reason": "not running"})
			}
			printf("memd is not running for %s\n", resolvedProjectDir)
			return nil
		}

		if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
			return runtimeErrf("signalling pid %d: %v", pid, err)
		}

		if flagJSON {
			return printJSON(map[string]any{"stopped": true, "pid": pid})
		}
		printf("sent termination signal to memd (pid %d)\n", pid)
		return nil
	},
}
