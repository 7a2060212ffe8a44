package fiducials

import (
	"fmt"
	"path/filepath"

	"github.com/askiada/go-fidder/internal/stack"
)

// Suffixes of the image sets processed for a tilt-series.
const (
	SuffixNone = ""
	SuffixEven = "_even"
	SuffixOdd  = "_odd"
	SuffixMask = "_mask"
)

const (
	tmpDir     = "tmp"
	extraDir   = "extra"
	imgsDir    = "unstackedImgs"
	masksDir   = "unstackedMasks"
	resultsDir = "unstackedResults"
)

// layout computes the paths used for a tilt-series under the working directory.
type layout struct {
	workDir string
}

func (l layout) tmp(tsID string) string {
	return filepath.Join(l.workDir, tmpDir, tsID)
}

func (l layout) images(tsID, suffix string) string {
	return filepath.Join(l.tmp(tsID), imgsDir+suffix)
}

func (l layout) masks(tsID, suffix string) string {
	return filepath.Join(l.tmp(tsID), masksDir+suffix)
}

func (l layout) results(tsID, suffix string) string {
	return filepath.Join(l.tmp(tsID), resultsDir+suffix)
}

func (l layout) extra() string {
	return filepath.Join(l.workDir, extraDir)
}

// stackFile is the restacked output of the tilt-series for suffix.
func (l layout) stackFile(tsID, suffix string) string {
	return filepath.Join(l.extra(), tsID+suffix+stack.StackExt)
}

// imageName embeds the zero-padded index so that name order is index order.
func imageName(tsID string, index int) string {
	return fmt.Sprintf("%s_%03d%s", tsID, index, stack.ImageExt)
}
