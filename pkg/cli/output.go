package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
)

// OutputFormat is the encoding of a command result.
type OutputFormat string

const (
	FormatYAML OutputFormat = "yaml"
	FormatJSON OutputFormat = "json"
)

// FormatFor picks the result encoding. JSON is used when asJSON is set or
// the output file ends in .json; everything else is YAML.
func FormatFor(file string, asJSON bool) OutputFormat {
	if asJSON || strings.EqualFold(filepath.Ext(file), ".json") {
		return FormatJSON
	}
	return FormatYAML
}

// OutputOptions says where and how a result is written.
type OutputOptions struct {
	Format OutputFormat

	// File receives the result instead of stdout when set.
	File string

	// Writer overrides both File and stdout.
	Writer io.Writer
}

// Output encodes result and writes it out. The file is only created once
// the result has been encoded.
func Output(result any, opts OutputOptions) error {
	data, err := encodeResult(result, opts.Format)
	if err != nil {
		return err
	}

	switch {
	case opts.Writer != nil:
		_, err = opts.Writer.Write(data)
	case opts.File != "":
		if err = os.WriteFile(opts.File, data, 0644); err != nil {
			err = fmt.Errorf("write %s: %w", opts.File, err)
		}
	default:
		_, err = os.Stdout.Write(data)
	}
	return err
}

func encodeResult(result any, format OutputFormat) ([]byte, error) {
	switch format {
	case FormatJSON:
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return nil, fmt.Errorf("encode json: %w", err)
		}
		return buf.Bytes(), nil
	case FormatYAML, "":
		data, err := yaml.Marshal(result)
		if err != nil {
			return nil, fmt.Errorf("encode yaml: %w", err)
		}
		return data, nil
	}
	return nil, fmt.Errorf("unsupported output format: %s", format)
}

// PrintSuccess prints a success message with checkmark
func PrintSuccess(format string, args ...any) {
	fmt.Printf("✓ "+format+"\n", args...)
}

// PrintError prints an error message to stderr
func PrintError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}

func PrintInfo(format string, args ...any) {
	fmt.Printf("ℹ "+format+"\n", args...)
}
