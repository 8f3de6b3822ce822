package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadFile decodes a rig or mapping file into v. The extension selects
// YAML or JSON; any other name is tried as YAML, then as JSON.
func LoadFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return DecodeFile(data, path, v)
}

// DecodeFile decodes data read from the file called name.
func DecodeFile(data []byte, name string, v any) error {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		return decodeYAML(data, v)
	case ".json":
		return decodeJSON(data, v)
	}
	yerr := decodeYAML(data, v)
	if yerr == nil {
		return nil
	}
	if jerr := decodeJSON(data, v); jerr != nil {
		return fmt.Errorf("%s is neither YAML nor JSON: %w", filepath.Base(name), yerr)
	}
	return nil
}

func decodeYAML(data []byte, v any) error {
	if err := yaml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("yaml: %w", err)
	}
	return nil
}

func decodeJSON(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("json: %w", err)
	}
	return nil
}
