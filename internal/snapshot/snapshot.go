// Package snapshot persists one self-contained document per symbol. A newer
// snapshot always replaces the previous one.
package snapshot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"go.yaml.in/yaml/v3"

	"setfetch/internal/record"
)

// ErrNotFound is returned when no snapshot exists for a symbol
var ErrNotFound = errors.New("snapshot not found")

// Store saves and loads aggregated records keyed by symbol
type Store interface {
	Save(ctx context.Context, rec record.Aggregated) error
	Load(ctx context.Context, symbol record.Symbol) (record.Aggregated, error)
}

// Format is the serialization of a snapshot document
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat accepts json, yaml or yml in any case
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json", "":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported snapshot format %q", s)
	}
}

// Ext returns the file extension for the format
func (f Format) Ext() string {
	if f == FormatYAML {
		return ".yaml"
	}
	return ".json"
}

// Encode renders rec as an indented document. Non-ASCII text is written
// as-is.
func Encode(rec record.Aggregated, format Format) ([]byte, error) {
	doc, err := encodeJSON(rec)
	if err != nil {
		return nil, err
	}
	if format != FormatYAML {
		return doc, nil
	}

	// JSON is valid YAML; re-emitting the node tree in block style keeps
	// field names and null handling identical across formats.
	var node yaml.Node
	if err := yaml.Unmarshal(doc, &node); err != nil {
		return nil, fmt.Errorf("failed to convert snapshot to yaml: %w", err)
	}
	blockStyle(&node)

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&node); err != nil {
		return nil, fmt.Errorf("failed to encode yaml snapshot: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode yaml snapshot: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode parses a document produced by Encode
func Decode(data []byte, format Format) (record.Aggregated, error) {
	if format == FormatYAML {
		var generic any
		if err := yaml.Unmarshal(data, &generic); err != nil {
			return record.Aggregated{}, fmt.Errorf("failed to decode yaml snapshot: %w", err)
		}
		converted, err := json.Marshal(generic)
		if err != nil {
			return record.Aggregated{}, fmt.Errorf("failed to decode yaml snapshot: %w", err)
		}
		data = converted
	}

	var rec record.Aggregated
	if err := json.Unmarshal(data, &rec); err != nil {
		return record.Aggregated{}, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return rec, nil
}

func encodeJSON(rec record.Aggregated) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rec); err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return buf.Bytes(), nil
}

// blockStyle clears flow and quoting styles; the encoder re-quotes strings
// that would otherwise read back as another type.
func blockStyle(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		blockStyle(c)
	}
}

// validSymbol rejects symbols that cannot be used as a single key
func validSymbol(symbol record.Symbol) error {
	s := symbol.String()
	if s == "" || s == "." || s == ".." || strings.ContainsAny(s, `/\`) {
		return fmt.Errorf("invalid symbol %q for snapshot", s)
	}
	return nil
}
