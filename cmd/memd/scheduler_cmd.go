package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "inspect and control the daemon's background maintenance jobs",
}

func init() {
	schedulerCmd.AddCommand(schedulerStatusCmd, schedulerPauseCmd, schedulerResumeCmd)
}

var schedulerStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "list every maintenance job and its last run",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := connectClient()
		if err != nil {
			return err
		}
		defer func() { _ = c.Close() }()

		result, err := c.GetSchedulerStatus()
		if err != nil {
			return runtimeErrf("GetSchedulerStatus: %v", err)
		}
		if flagJSON {
			return printJSON(result)
		}
		for _, j := range result.Jobs {
			state := "idle"
			style := mutedStyle
			switch {
			case j.Running:
				state, style = "running", okStyle
			case j.Paused:
				state, style = "paused", warnStyle
			case j.LastErr != "":
				state, style = "failing", failStyle
			}
			fmt.Printf("%-20s %s  runs=%d fails=%d\n", j.Name, style.Render(state), j.RunCount, j.FailCount)
			if j.LastErr != "" {
				fmt.Printf("  last error: %s\n", j.LastErr)
			}
		}
		return nil
	},
}

var schedulerPauseCmd = &cobra.Command{
	Use:   "pause <job>",
	Short: "pause one maintenance job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := connectClient()
		if err != nil {
			return err
		}
		defer func() { _ = c.Close() }()

		if err := c.PauseJob(args[0]); err != nil {
			return runtimeErrf("PauseJob: %v", err)
		}
		if flagJSON {
			return printJSON(map[string]any{"paused": args[0]})
		}
		printf("%s paused\n", args[0])
		return nil
	},
}

var schedulerResumeCmd = &cobra.Command{
	Use:   "resume <job>",
	Short: "resume one maintenance job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := connectClient()
		if err != nil {
			return err
		}
		defer func() { _ = c.Close() }()

		if err := c.ResumeJob(args[0]); err != nil {
			return runtimeErrf("ResumeJob: %v", err)
		}
		if flagJSON {
			return printJSON(map[string]any{"resumed": args[0]})
		}
		printf("%s resumed\n", args[0])
		return nil
	},
}
