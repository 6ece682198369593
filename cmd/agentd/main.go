// Command agentd runs the agent session runtime.
package main

import (
	"fmt"
	"os"

	"github.com/ashosive/agent-runtime/cmd/agentd/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
