// Command agentmail is the CLI front end for the agent mail coordination
// engine: project/agent identity, message send/reply, inbox and thread
// views, file reservations, contact policy, directory listings, and the
// composed workflow macros.
package main

import (
	"fmt"
	"os"

	"github.com/jra3/agentmail/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
