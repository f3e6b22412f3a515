// Command memd is the agent-memory daemon: it ingests conversational
// event streams, maintains a hierarchical table of contents, indexes it
// for lexical, vector, and topic-graph retrieval, and serves queries
// over a Unix domain socket through an explainable, tiered fallback
// chain.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/agentmemory/memd/internal/merrors"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "memd:", err)
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor maps an error to the exit codes spec §6 names: 2 for an
// argument/config problem, 1 for any other runtime failure.
func exitCodeFor(err error) int {
	var ce *cliError
	if errors.As(err, &ce) {
		return ce.code
	}
	if merrors.Is(err, merrors.InvalidArgument) {
		return 2
	}
	return 1
}
