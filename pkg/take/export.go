package take

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/haivivi/kinectmotion/pkg/mocap"
)

// Format is the encoding of an exported take document.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat parses "json", "yaml" or "yml".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("take: unknown format %q", s)
}

// FormatOf guesses the format from a file extension. Anything that is not
// .json is YAML.
func FormatOf(p string) Format {
	if strings.EqualFold(path.Ext(p), ".json") {
		return FormatJSON
	}
	return FormatYAML
}

func contentType(p string) string {
	if FormatOf(p) == FormatJSON {
		return "application/json"
	}
	return "application/yaml"
}

// Document is the portable form of a take.
type Document struct {
	Take   Take    `json:"take" yaml:"take"`
	Tracks []Track `json:"tracks" yaml:"tracks"`
}

// Track is the keyframes of one channel of one target, ordered by frame.
type Track struct {
	Kind     mocap.TargetKind `json:"kind" yaml:"kind"`
	Armature string           `json:"armature,omitempty" yaml:"armature,omitempty"`
	Target   string           `json:"target" yaml:"target"`
	Channel  mocap.Channel    `json:"channel" yaml:"channel"`
	Keys     []Key            `json:"keys" yaml:"keys"`
}

// Key is one keyframe of a track.
type Key struct {
	Frame  int       `json:"frame" yaml:"frame"`
	Values []float64 `json:"values" yaml:"values,flow"`
}

func (t *Track) sameTrack(kf *Keyframe) bool {
	return t.Kind == kf.Kind && t.Armature == kf.Armature && t.Target == kf.Target && t.Channel == kf.Channel
}

// Document loads take id and its keyframes into a Document.
func (s *Store) Document(ctx context.Context, id string) (*Document, error) {
	t, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	doc := &Document{Take: *t, Tracks: []Track{}}
	for kf, err := range s.Keyframes(ctx, t.ID) {
		if err != nil {
			return nil, err
		}
		n := len(doc.Tracks)
		if n == 0 || !doc.Tracks[n-1].sameTrack(&kf) {
			doc.Tracks = append(doc.Tracks, Track{
				Kind:     kf.Kind,
				Armature: kf.Armature,
				Target:   kf.Target,
				Channel:  kf.Channel,
			})
			n++
		}
		doc.Tracks[n-1].Keys = append(doc.Tracks[n-1].Keys, Key{Frame: kf.Frame, Values: kf.Values})
	}
	return doc, nil
}

// Encode writes doc to w.
func (d *Document) Encode(w io.Writer, f Format) error {
	var (
		data []byte
		err  error
	)
	switch f {
	case FormatJSON:
		data, err = json.MarshalIndent(d, "", "  ")
		data = append(data, '\n')
	case FormatYAML:
		data, err = yaml.Marshal(d)
	default:
		return fmt.Errorf("take: unknown format %q", f)
	}
	if err != nil {
		return fmt.Errorf("take: encode %s: %w", f, err)
	}
	_, err = w.Write(data)
	return err
}

// DecodeDocument reads a document from r.
func DecodeDocument(r io.Reader, f Format) (*Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var doc Document
	switch f {
	case FormatJSON:
		err = json.Unmarshal(data, &doc)
	case FormatYAML:
		err = yaml.Unmarshal(data, &doc)
	default:
		return nil, fmt.Errorf("take: unknown format %q", f)
	}
	if err != nil {
		return nil, fmt.Errorf("take: decode %s: %w", f, err)
	}
	if doc.Take.ID == "" {
		return nil, errors.New("take: document has no take id")
	}
	return &doc, nil
}

// Export writes take id to path in fs. The format follows the extension.
func (s *Store) Export(ctx context.Context, id string, fs FileStore, p string) error {
	doc, err := s.Document(ctx, id)
	if err != nil {
		return err
	}
	w, err := fs.Write(ctx, p)
	if err != nil {
		return fmt.Errorf("take: export %s: %w", p, err)
	}
	if err := doc.Encode(w, FormatOf(p)); err != nil {
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("take: export %s: %w", p, err)
	}
	return nil
}

// Import reads a take document from path in fs and stores it. It fails if
// the take already exists.
func (s *Store) Import(ctx context.Context, fs FileStore, p string) (*Take, error) {
	r, err := fs.Read(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("take: import %s: %w", p, err)
	}
	defer r.Close()

	doc, err := DecodeDocument(r, FormatOf(p))
	if err != nil {
		return nil, err
	}
	t := doc.Take
	if err := s.Create(ctx, &t); err != nil {
		return nil, err
	}
	var kfs []Keyframe
	for _, tr := range doc.Tracks {
		for _, k := range tr.Keys {
			kfs = append(kfs, Keyframe{
				Kind:     tr.Kind,
				Armature: tr.Armature,
				Target:   tr.Target,
				Channel:  tr.Channel,
				Frame:    k.Frame,
				Values:   k.Values,
			})
		}
	}
	if err := s.PutKeyframes(ctx, t.ID, kfs); err != nil {
		return nil, err
	}
	return &t, nil
}
