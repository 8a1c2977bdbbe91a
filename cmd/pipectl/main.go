// Package main is the entry point for the pipectl CLI.
// pipectl is the operator terminal tool for inspecting and driving
// driveplane pipelines over the orchestrator API.
package main

import (
	"os"

	"driveplane/cmd/pipectl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
