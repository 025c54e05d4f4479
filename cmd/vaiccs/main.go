// Command vaiccs is the live captioning service and its management CLI.
//
// Usage:
//
//	vaiccs <command> [flags]
//
// Commands:
//
//	run       - Run the captioning daemon
//	profiles  - Manage enrolled speaker profiles
//	vocab     - Manage the custom recognition vocabulary
//	captions  - Export journaled captions as subtitles
//	mcp       - Serve profile and caption tools over MCP stdio
//	version   - Print the version
//
// Configuration lives in a YAML file passed with -c/--config (default:
// config.yaml); copy configs/example.yaml to get started.
package main

import (
	"fmt"
	"os"

	"github.com/dominicskywalkr/VAICCS-sub000/cmd/vaiccs/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
