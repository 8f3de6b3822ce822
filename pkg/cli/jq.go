package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/itchyny/gojq"
)

// JQFilter is a parsed jq expression applied to raw JSON documents.
type JQFilter struct {
	Expr  string
	query *gojq.Query
}

// ParseJQ parses expr. An empty expression yields a nil filter, which
// passes documents through unchanged.
func ParseJQ(expr string) (*JQFilter, error) {
	if expr == "" {
		return nil, nil
	}
	query, err := gojq.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid jq expression %q: %w", expr, err)
	}
	return &JQFilter{Expr: expr, query: query}, nil
}

// Apply runs the filter on a JSON document and returns every result,
// each marshaled back to JSON.
func (f *JQFilter) Apply(doc json.RawMessage) ([]json.RawMessage, error) {
	if f == nil {
		return []json.RawMessage{doc}, nil
	}
	var input any
	if err := json.Unmarshal(doc, &input); err != nil {
		return nil, fmt.Errorf("decode jq input: %w", err)
	}

	var out []json.RawMessage
	iter := f.query.Run(input)
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, ok := v.(error); ok {
			var halt *gojq.HaltError
			if errors.As(err, &halt) && halt.Value() == nil {
				break
			}
			return nil, fmt.Errorf("jq error: %w", err)
		}
		result, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("marshal jq result: %w", err)
		}
		out = append(out, result)
	}
	return out, nil
}
