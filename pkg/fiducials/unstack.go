package fiducials

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/askiada/go-fidder/internal/stack"
	"github.com/askiada/go-fidder/pkg/tomo"
)

// Unstacker splits a tilt-series stack into one float32 file per image.
type Unstacker struct {
	codec  *stack.Codec
	layout layout
}

// NewUnstacker creates an unstacker writing under workDir.
func NewUnstacker(workDir string, codec *stack.Codec) *Unstacker {
	return &Unstacker{codec: codec, layout: layout{workDir: workDir}}
}

// Unstack writes the images of ts in its tmp directory, together with the odd and even
// images when doEvenOdd is set. The mask and result directories are created as well.
func (u *Unstacker) Unstack(ts *tomo.TiltSeries, doEvenOdd bool) error {
	for _, suffix := range suffixes(doEvenOdd) {
		for _, dir := range []string{
			u.layout.images(ts.TsID, suffix),
			u.layout.masks(ts.TsID, suffix),
			u.layout.results(ts.TsID, suffix),
		} {
			err := os.MkdirAll(dir, 0o755)
			if err != nil {
				return errors.Wrapf(err, "unable to create %s", dir)
			}
		}

		for _, ti := range ts.SortedImages() {
			src := sourceFile(ts, ti, suffix)
			ref := fmt.Sprintf("%d@%s", ti.Index, src)
			if src == "" {
				return &ConversionError{TsID: ts.TsID, Reference: ref, Err: errors.Errorf("no %s file", suffixLabel(suffix))}
			}

			dst := filepath.Join(u.layout.images(ts.TsID, suffix), imageName(ts.TsID, ti.Index))
			err := u.codec.Convert(src, ti.Index, dst)
			if err != nil {
				return &ConversionError{TsID: ts.TsID, Reference: ref, Err: err}
			}
		}
	}

	return nil
}

func suffixes(doEvenOdd bool) []string {
	if doEvenOdd {
		return []string{SuffixNone, SuffixEven, SuffixOdd}
	}

	return []string{SuffixNone}
}

func suffixLabel(suffix string) string {
	switch suffix {
	case SuffixEven:
		return "even"
	case SuffixOdd:
		return "odd"
	default:
		return "stack"
	}
}

func sourceFile(ts *tomo.TiltSeries, ti *tomo.TiltImage, suffix string) string {
	switch suffix {
	case SuffixEven:
		return ts.EvenFileOf(ti)
	case SuffixOdd:
		return ts.OddFileOf(ti)
	}

	if ti.FileName != "" {
		return ti.FileName
	}
	if first := ts.FirstItem(); first != nil {
		return first.FileName
	}

	return ""
}
