package catalog

import (
	"context"
	"fmt"
	"os"

	"github.com/edgeflare/pgsynth/pkg/diag"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// FileSource serves a snapshot stored as YAML, or held inline as a decoded
// map (for example a section of the configuration file). It is used for
// offline generation and fixtures.
type FileSource struct {
	path string
	raw  map[string]any
}

// NewFileSource reads the snapshot at path on every Extract, so edits are
// picked up by the next regeneration.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// NewInlineSource serves a snapshot already decoded into a generic map.
func NewInlineSource(raw map[string]any) *FileSource {
	return &FileSource{raw: raw}
}

// Path returns the backing file, if any.
func (s *FileSource) Path() string { return s.path }

func (s *FileSource) Extract(ctx context.Context, scope Scope) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, classify(ctx, "read", err)
	}
	if err := scope.Validate(); err != nil {
		return nil, &diag.ExtractionError{Op: "scope", Cause: err}
	}

	raw := s.raw
	if s.path != "" {
		data, err := os.ReadFile(s.path)
		if err != nil {
			return nil, &diag.ExtractionError{Op: "read", Cause: err}
		}
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, &diag.ExtractionError{Op: "decode", Cause: fmt.Errorf("%s: %w", s.path, err)}
		}
	}

	snap, err := DecodeSnapshot(raw)
	if err != nil {
		return nil, &diag.ExtractionError{Op: "decode", Cause: err}
	}
	return snap.Scoped(scope), nil
}

// DecodeSnapshot converts a generic map into a Snapshot. Unknown keys are
// rejected so that typos in hand-written snapshots surface early.
func DecodeSnapshot(raw map[string]any) (*Snapshot, error) {
	var snap Snapshot
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &snap,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	for i := range snap.Relations {
		r := &snap.Relations[i]
		if r.Kind == "" {
			r.Kind = KindTable
		}
		for j := range r.Columns {
			if r.Columns[j].Position == 0 {
				r.Columns[j].Position = j + 1
			}
		}
	}
	for i := range snap.Routines {
		r := &snap.Routines[i]
		if r.Kind == "" {
			r.Kind = KindFunction
		}
		if r.Returns.Kind == "" {
			r.Returns.Kind = ReturnNone
		}
		for j := range r.Params {
			if r.Params[j].Mode == "" {
				r.Params[j].Mode = ModeIn
			}
		}
	}
	snap.Sort()
	return &snap, nil
}

// DecodeSnapshotYAML decodes a YAML document into a Snapshot.
func DecodeSnapshotYAML(data []byte) (*Snapshot, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return DecodeSnapshot(raw)
}

// EncodeSnapshotYAML writes snap in the format FileSource reads.
func EncodeSnapshotYAML(snap *Snapshot) ([]byte, error) {
	return yaml.Marshal(snap)
}
