package manifest_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/go-fidder/internal/manifest"
	"github.com/askiada/go-fidder/pkg/tomo"
)

func TestLoadAndRefresh(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "input.json")

	doc := &manifest.Document{
		Set:         tomo.SetInfo{Name: "inTsSet", SamplingRate: 1.35},
		StreamState: tomo.StreamOpen,
		TiltSeries: []*tomo.TiltSeries{{
			TsID:   "TS1",
			Images: []*tomo.TiltImage{{Index: 1, FileName: "TS1.mrcs"}, {Index: 2, FileName: "/abs/TS1.mrcs"}},
		}},
	}
	require.NoError(t, manifest.Write(path, doc))

	src, err := manifest.Load(path, nil)
	require.NoError(t, err)
	assert.True(t, src.IsStreamOpen())
	assert.InDelta(t, 1.35, src.Info().SamplingRate, 1e-9)

	items := src.Items()
	require.Len(t, items, 1)
	assert.Equal(t, filepath.Join(dir, "TS1.mrcs"), items[0].Images[0].FileName)
	assert.Equal(t, "/abs/TS1.mrcs", items[0].Images[1].FileName)

	doc.StreamState = ""
	doc.TiltSeries = append(doc.TiltSeries, &tomo.TiltSeries{TsID: "TS2"})
	require.NoError(t, manifest.Write(path, doc))
	require.NoError(t, src.Refresh())
	assert.False(t, src.IsStreamOpen())
	assert.Equal(t, 2, src.Len())
}

func TestRefreshKeepsSetOnBadContent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "input.json")
	require.NoError(t, manifest.Write(path, &manifest.Document{
		Set:         tomo.SetInfo{Name: "inTsSet"},
		StreamState: tomo.StreamOpen,
		TiltSeries:  []*tomo.TiltSeries{{TsID: "TS1"}},
	}))

	src, err := manifest.Load(path, nil)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte(`{"set": `), 0o600))
	require.Error(t, src.Refresh())
	assert.Equal(t, 1, src.Len())
	assert.True(t, src.IsStreamOpen())
}

func TestLoadErrors(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		content string
		wantErr error
	}{
		"empty document": {
			content: `{}`,
			wantErr: manifest.ErrNoTiltSeries,
		},
	}

	for name, tc := range tcs {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			path := filepath.Join(t.TempDir(), "input.json")
			require.NoError(t, os.WriteFile(path, []byte(tc.content), 0o600))
			_, err := manifest.Load(path, nil)
			require.ErrorIs(t, err, tc.wantErr)
		})
	}

	_, err := manifest.Load(filepath.Join(t.TempDir(), "missing.json"), nil)
	require.Error(t, err)
}
