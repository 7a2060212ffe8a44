// Package stack converts tilt images out of their stacks and mounts per-image results back
// into stacks.
package stack

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/askiada/go-fidder/internal/mrc"
)

// ImageExt is the extension of single-image files.
const ImageExt = ".mrc"

// StackExt is the extension of mounted stacks.
const StackExt = ".mrcs"

var ErrNoImages = errors.New("no images to mount")

// Codec converts and mounts MRC images.
type Codec struct {
	Logger *zap.SugaredLogger
}

// Convert extracts image index (1-based, as in "index@stack") from stackFile and writes it
// to dst as float32.
func (c *Codec) Convert(stackFile string, index int, dst string) error {
	src, err := mrc.Open(stackFile)
	if err != nil {
		return err
	}
	defer src.Close()

	im, err := src.Slice(index - 1)
	if err != nil {
		return err
	}
	conv, err := im.AsFloat32()
	if err != nil {
		return errors.Wrapf(err, "unable to convert %d@%s", index, stackFile)
	}

	return mrc.WriteImage(dst, conv, src.Header.VoxelSize())
}

// Images returns the single-image files of dir sorted by name. dir is read as is, so
// names holding glob characters are listed too.
func Images(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to list %s", dir)
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ImageExt {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(files)

	return files, nil
}

// Mount assembles every image of imagesDir into outFile, in file name order, and returns
// the number of images written. File names embed the zero-padded tilt index, so name order
// is index order.
func (c *Codec) Mount(imagesDir, outFile string, samplingRate float64) (int, error) {
	images, err := Images(imagesDir)
	if err != nil {
		return 0, err
	}
	if len(images) == 0 {
		return 0, errors.Wrap(ErrNoImages, imagesDir)
	}

	first, err := mrc.ReadImage(images[0])
	if err != nil {
		return 0, err
	}

	stk, err := mrc.NewStack(len(images), first.NX, first.NY, first.Mode)
	if err != nil {
		return 0, err
	}

	for i, img := range images {
		c.logger().Debugf("Inserting image - index [%d], %s", i, img)
		im := first
		if i > 0 {
			im, err = mrc.ReadImage(img)
			if err != nil {
				return 0, err
			}
		}
		err = stk.Set(i, im)
		if err != nil {
			return 0, errors.Wrapf(err, "unable to insert %s", img)
		}
	}

	err = mrc.WriteStack(outFile, stk, float32(samplingRate))
	if err != nil {
		return 0, err
	}

	return len(images), nil
}

func (c *Codec) logger() *zap.SugaredLogger {
	if c.Logger == nil {
		return zap.NewNop().Sugar()
	}

	return c.Logger
}
