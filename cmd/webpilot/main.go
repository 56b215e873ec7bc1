// Command webpilot is an MCP server that lets an agent drive a web browser.
package main

import (
	"fmt"
	"os"

	"github.com/entrhq/webpilot/cmd/webpilot/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
