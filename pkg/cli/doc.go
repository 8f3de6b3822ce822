// Package cli provides common CLI utilities for the kinectmotion tools.
//
// This package includes:
//   - Configuration management (capture contexts)
//   - Output formatting (JSON, YAML, raw)
//   - Rig and mapping file loading (YAML/JSON)
//   - Terminal status rendering
//
// Configuration is stored in ~/.kinectmotion/<app>/ directory, supporting
// multiple contexts similar to kubectl.
//
// Example usage:
//
//	cfg, err := cli.LoadConfig("kinectmotion")
//
//	// Named context, or the current one
//	ctx, err := cfg.ResolveContext(name)
//	timeout, err := ctx.ReceiveTimeout()
//
//	cli.Output(take, cli.OutputOptions{Format: cli.FormatJSON})
package cli
