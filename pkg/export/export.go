// Package export writes generation artifacts in formats meant for other
// tools: descriptor dumps, Go types and OpenAPI.
package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/edgeflare/pgsynth/pkg/openapi"
	"github.com/edgeflare/pgsynth/pkg/synth"
	"gopkg.in/yaml.v3"
)

// Format is an output format.
type Format string

const (
	FormatYAML    Format = "yaml"
	FormatJSON    Format = "json"
	FormatGo      Format = "go"
	FormatOpenAPI Format = "openapi"
)

// Formats lists the supported formats.
var Formats = []Format{FormatYAML, FormatJSON, FormatGo, FormatOpenAPI}

// ParseFormat validates s.
func ParseFormat(s string) (Format, error) {
	for _, f := range Formats {
		if string(f) == s {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown export format %q (want one of %v)", s, Formats)
}

// Options tunes the Go and OpenAPI formats.
type Options struct {
	// Package is the package clause of generated Go code.
	Package string
	Info    openapi.Info
	// ServerURL is the server advertised in OpenAPI output.
	ServerURL string
}

// Write renders a in format f to w.
func Write(w io.Writer, a *synth.Artifacts, f Format, opts Options) error {
	var (
		data []byte
		err  error
	)
	switch f {
	case FormatYAML:
		data, err = YAML(a)
	case FormatJSON:
		data, err = JSON(a)
	case FormatGo:
		data, err = Go(a, opts.Package)
	case FormatOpenAPI:
		data, err = openapi.Marshal(a, opts.Info, opts.ServerURL)
		data = append(data, '\n')
	default:
		return fmt.Errorf("unknown export format %q", f)
	}
	if err != nil {
		return fmt.Errorf("export %s: %w", f, err)
	}
	_, err = w.Write(data)
	return err
}

// JSON returns the indented descriptor of a.
func JSON(a *synth.Artifacts) ([]byte, error) {
	data, err := json.MarshalIndent(a.Descriptor(), "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// YAML returns the descriptor of a as block-style YAML. Keys keep the order
// of the JSON encoding, so the output is as stable as JSON's.
func YAML(a *synth.Artifacts) ([]byte, error) {
	data, err := json.Marshal(a.Descriptor())
	if err != nil {
		return nil, err
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	blockStyle(&doc)

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// blockStyle clears the flow style JSON input leaves on every node.
func blockStyle(n *yaml.Node) {
	n.Style &^= yaml.FlowStyle
	if n.Kind == yaml.ScalarNode && n.Style&yaml.DoubleQuotedStyle != 0 && n.Tag == "!!str" {
		n.Style &^= yaml.DoubleQuotedStyle
	}
	for _, c := range n.Content {
		blockStyle(c)
	}
}
