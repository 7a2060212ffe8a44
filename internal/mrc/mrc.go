package mrc

import (
	"bufio"
	"encoding/binary"
	"math"
	"os"

	"github.com/pkg/errors"
	"golang.org/x/exp/mmap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

var (
	ErrUnsupportedMode = errors.New("unsupported mrc mode")
	ErrInvalidHeader   = errors.New("invalid mrc header")
	ErrSliceOutOfRange = errors.New("slice index out of range")
	ErrShapeMismatch   = errors.New("image shape does not match")
)

// Image is a single 2-D image. Data holds the raw little-endian samples of the given mode.
type Image struct {
	NX, NY int
	Mode   Mode
	Data   []byte
}

// NewFloat32Image builds a float32 image from samples stored row by row.
func NewFloat32Image(nx, ny int, samples []float32) (*Image, error) {
	if len(samples) != nx*ny {
		return nil, errors.Wrapf(ErrShapeMismatch, "got %d samples for %dx%d", len(samples), nx, ny)
	}
	data := make([]byte, 4*len(samples))
	for i, v := range samples {
		binary.LittleEndian.PutUint32(data[4*i:], math.Float32bits(v))
	}

	return &Image{NX: nx, NY: ny, Mode: ModeFloat32, Data: data}, nil
}

// Float32 decodes the samples of the image.
func (im *Image) Float32() ([]float32, error) {
	return decode(im.Mode, im.Data)
}

// AsFloat32 returns a float32 copy of the image.
func (im *Image) AsFloat32() (*Image, error) {
	samples, err := im.Float32()
	if err != nil {
		return nil, err
	}

	return NewFloat32Image(im.NX, im.NY, samples)
}

func decode(mode Mode, data []byte) ([]float32, error) {
	bpp, err := mode.BytesPerPixel()
	if err != nil {
		return nil, err
	}
	res := make([]float32, len(data)/bpp)
	for i := range res {
		off := i * bpp
		switch mode {
		case ModeInt8:
			res[i] = float32(int8(data[off]))
		case ModeInt16:
			res[i] = float32(int16(binary.LittleEndian.Uint16(data[off:])))
		case ModeUint16:
			res[i] = float32(binary.LittleEndian.Uint16(data[off:]))
		case ModeFloat32:
			res[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[off:]))
		}
	}

	return res, nil
}

// File is a read-only, memory-mapped MRC file.
type File struct {
	Header Header
	path   string
	r      *mmap.ReaderAt
}

// Open maps the file at path and reads its header.
func Open(path string) (*File, error) {
	r, err := mmap.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to map %s", path)
	}

	hdr, err := readHeader(r)
	if err != nil {
		_ = r.Close()

		return nil, errors.Wrapf(err, "unable to open %s", path)
	}

	return &File{Header: hdr, path: path, r: r}, nil
}

// Len returns the number of images in the file.
func (f *File) Len() int {
	return int(f.Header.NZ)
}

// Slice reads image i, counted from 0.
func (f *File) Slice(i int) (*Image, error) {
	if i < 0 || i >= f.Len() {
		return nil, errors.Wrapf(ErrSliceOutOfRange, "%d not in [0, %d) of %s", i, f.Len(), f.path)
	}
	size, err := f.Header.SliceSize()
	if err != nil {
		return nil, err
	}

	data := make([]byte, size)
	off := f.Header.DataOffset() + int64(i)*int64(size)
	_, err = f.r.ReadAt(data, off)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to read slice %d of %s", i, f.path)
	}

	return &Image{
		NX:   int(f.Header.NX),
		NY:   int(f.Header.NY),
		Mode: f.Header.Mode,
		Data: data,
	}, nil
}

// Close unmaps the file.
func (f *File) Close() error {
	return f.r.Close()
}

// ReadImage reads the first image of the file at path.
func ReadImage(path string) (*Image, error) {
	f, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return f.Slice(0)
}

// Stack is an in-memory stack of equally shaped images.
type Stack struct {
	NX, NY, NZ int
	Mode       Mode
	Data       []byte
	sliceSize  int
}

// NewStack allocates a stack of nz images.
func NewStack(nz, nx, ny int, mode Mode) (*Stack, error) {
	bpp, err := mode.BytesPerPixel()
	if err != nil {
		return nil, err
	}
	sliceSize := nx * ny * bpp

	return &Stack{
		NX:        nx,
		NY:        ny,
		NZ:        nz,
		Mode:      mode,
		Data:      make([]byte, nz*sliceSize),
		sliceSize: sliceSize,
	}, nil
}

// Set copies im into slot i.
func (s *Stack) Set(i int, im *Image) error {
	if i < 0 || i >= s.NZ {
		return errors.Wrapf(ErrSliceOutOfRange, "%d not in [0, %d)", i, s.NZ)
	}
	if im.NX != s.NX || im.NY != s.NY || im.Mode != s.Mode {
		return errors.Wrapf(ErrShapeMismatch, "slot %d expects %dx%d mode %d, got %dx%d mode %d",
			i, s.NX, s.NY, s.Mode, im.NX, im.NY, im.Mode)
	}
	copy(s.Data[i*s.sliceSize:(i+1)*s.sliceSize], im.Data)

	return nil
}

// Slice returns a copy of image i.
func (s *Stack) Slice(i int) (*Image, error) {
	if i < 0 || i >= s.NZ {
		return nil, errors.Wrapf(ErrSliceOutOfRange, "%d not in [0, %d)", i, s.NZ)
	}
	data := make([]byte, s.sliceSize)
	copy(data, s.Data[i*s.sliceSize:(i+1)*s.sliceSize])

	return &Image{NX: s.NX, NY: s.NY, Mode: s.Mode, Data: data}, nil
}

// WriteImage writes im as a single-image MRC file.
func WriteImage(path string, im *Image, voxelSize float32) error {
	s := &Stack{NX: im.NX, NY: im.NY, NZ: 1, Mode: im.Mode, Data: im.Data, sliceSize: len(im.Data)}

	return WriteStack(path, s, voxelSize)
}

// WriteStack writes s to path, overwriting any existing file. Header statistics are
// computed from the data.
func WriteStack(path string, s *Stack, voxelSize float32) error {
	hdr := newHeader(s.NX, s.NY, s.NZ, s.Mode, voxelSize)
	err := updateStats(&hdr, s)
	if err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "unable to create %s", path)
	}

	w := bufio.NewWriter(file)
	err = writeHeader(w, &hdr)
	if err == nil {
		_, err = w.Write(s.Data)
	}
	if err == nil {
		err = w.Flush()
	}
	if err != nil {
		_ = file.Close()

		return errors.Wrapf(err, "unable to write %s", path)
	}

	return errors.Wrapf(file.Close(), "unable to close %s", path)
}

func updateStats(hdr *Header, s *Stack) error {
	samples, err := decode(s.Mode, s.Data)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		return nil
	}

	values := make([]float64, len(samples))
	for i, v := range samples {
		values[i] = float64(v)
	}
	mean, std := stat.PopMeanStdDev(values, nil)

	hdr.DMin = float32(floats.Min(values))
	hdr.DMax = float32(floats.Max(values))
	hdr.DMean = float32(mean)
	hdr.RMS = float32(std)

	return nil
}
