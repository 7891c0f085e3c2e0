// Command cagent is the entry point for the commerce recommendation agent.
// It provides a CLI interface (via Cobra) and an optional HTTP server
// exposing catalog search, image search, recommendations, and chat.
package main

import (
	"fmt"
	"os"

	"github.com/commerce-agent/cagent-go/cmd/cagent/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
