// Package manifest loads the input tilt-series from a JSON manifest. A manifest may be
// rewritten while a streaming run reads it: Refresh picks up the new content.
package manifest

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"github.com/vova616/xxhash"
	"go.uber.org/zap"

	"github.com/askiada/go-fidder/pkg/tomo"
)

var ErrNoTiltSeries = errors.New("manifest has no tilt-series set")

// Document is the content of a manifest file.
type Document struct {
	Set tomo.SetInfo `json:"set"`
	// StreamState is "open" while the producer may still add tilt-series. An empty state
	// means closed.
	StreamState tomo.StreamState   `json:"streamState,omitempty"`
	TiltSeries  []*tomo.TiltSeries `json:"tiltSeries"`
}

// Source is a tilt-series set backed by a manifest file.
type Source struct {
	mu       sync.Mutex
	path     string
	checksum uint32
	set      *tomo.Set
	logger   *zap.SugaredLogger
}

// Load reads the manifest at path.
func Load(path string, logger *zap.SugaredLogger) (*Source, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	src := &Source{
		path:   path,
		set:    tomo.NewSet(tomo.SetInfo{}),
		logger: logger,
	}

	err := src.Refresh()
	if err != nil {
		return nil, err
	}

	return src, nil
}

// Refresh re-reads the manifest. The set is left untouched when the file did not change or
// cannot be parsed.
func (s *Source) Refresh() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	content, err := os.ReadFile(s.path)
	if err != nil {
		return errors.Wrapf(err, "unable to read manifest %s", s.path)
	}

	checksum := xxhash.Checksum32(content)
	if checksum == s.checksum && s.checksum != 0 {
		return nil
	}

	doc := Document{}
	err = json.Unmarshal(content, &doc)
	if err != nil {
		return errors.Wrapf(err, "unable to parse manifest %s", s.path)
	}
	if doc.Set.Name == "" && len(doc.TiltSeries) == 0 && doc.StreamState == "" {
		return errors.Wrap(ErrNoTiltSeries, s.path)
	}

	state := tomo.StreamClosed
	if doc.StreamState == tomo.StreamOpen {
		state = tomo.StreamOpen
	}

	base := filepath.Dir(s.path)
	for _, ts := range doc.TiltSeries {
		resolve(base, ts)
	}

	s.set.Sync(doc.Set, doc.TiltSeries, state)
	s.checksum = checksum
	s.logger.Debugf("manifest %s loaded: %d tilt-series, stream %s", s.path, len(doc.TiltSeries), state)

	return nil
}

// resolve makes the file references of ts relative to the manifest directory.
func resolve(base string, ts *tomo.TiltSeries) {
	ts.OddFile = join(base, ts.OddFile)
	ts.EvenFile = join(base, ts.EvenFile)
	for _, ti := range ts.Images {
		ti.FileName = join(base, ti.FileName)
		ti.OddFile = join(base, ti.OddFile)
		ti.EvenFile = join(base, ti.EvenFile)
	}
}

func join(base, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}

	return filepath.Join(base, path)
}

// Info returns the set metadata.
func (s *Source) Info() tomo.SetInfo {
	return s.set.Info()
}

// Items returns the tilt-series read so far.
func (s *Source) Items() []*tomo.TiltSeries {
	return s.set.Items()
}

// IsStreamOpen reports whether the producer may still add tilt-series.
func (s *Source) IsStreamOpen() bool {
	return s.set.IsStreamOpen()
}

// Len returns the number of tilt-series.
func (s *Source) Len() int {
	return s.set.Len()
}

// Write saves doc at path, going through a temporary file so that readers never see a
// partial manifest.
func Write(path string, doc *Document) error {
	content, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.Wrap(err, "unable to encode manifest")
	}

	tmp := path + ".tmp"
	err = os.WriteFile(tmp, content, 0o600)
	if err != nil {
		return errors.Wrapf(err, "unable to write %s", tmp)
	}

	return errors.Wrapf(os.Rename(tmp, path), "unable to replace %s", path)
}
