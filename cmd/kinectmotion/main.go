// Package main provides the kinectmotion CLI tool.
//
// Usage:
//
//	kinectmotion [flags] <command> [args]
//
// Commands:
//
//	capture  - Map the tracked body onto a scene and record takes
//	probe    - Inspect the motion stream
//	serve    - Serve a replayed or synthetic motion stream
//	take     - List, show, export, import and delete takes
//	config   - Configuration management
//	joints   - Joint table and mapping
//	version  - Version information
//
// Configuration:
//
//	The CLI stores configuration in ~/.kinectmotion/kinectmotion/
//	Use 'kinectmotion config context' commands to manage contexts.
package main

import (
	"fmt"
	"os"

	"github.com/haivivi/kinectmotion/cmd/kinectmotion/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
