package mrc

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// HeaderSize is the size of the fixed MRC2014 header.
const HeaderSize = 1024

// Mode is the MRC data type of a pixel.
type Mode int32

const (
	ModeInt8    Mode = 0
	ModeInt16   Mode = 1
	ModeFloat32 Mode = 2
	ModeUint16  Mode = 6
)

// BytesPerPixel returns the pixel size for m.
func (m Mode) BytesPerPixel() (int, error) {
	switch m {
	case ModeInt8:
		return 1, nil
	case ModeInt16, ModeUint16:
		return 2, nil
	case ModeFloat32:
		return 4, nil
	default:
		return 0, errors.Wrapf(ErrUnsupportedMode, "mode %d", m)
	}
}

// Header is the MRC2014 main header. Fields are laid out in file order.
type Header struct {
	NX, NY, NZ                int32
	Mode                      Mode
	NXStart, NYStart, NZStart int32
	MX, MY, MZ                int32
	CellA                     [3]float32
	CellB                     [3]float32
	MapC, MapR, MapS          int32
	DMin, DMax, DMean         float32
	ISPG                      int32
	NSymBT                    int32
	Extra1                    [8]byte
	ExtType                   [4]byte
	NVersion                  int32
	Extra2                    [84]byte
	Origin                    [3]float32
	Map                       [4]byte
	MachSt                    [4]byte
	RMS                       float32
	NLabl                     int32
	Labels                    [10][80]byte
}

// newHeader returns a header for a stack of nz images of nx*ny pixels.
func newHeader(nx, ny, nz int, mode Mode, voxelSize float32) Header {
	hdr := Header{
		NX:   int32(nx),
		NY:   int32(ny),
		NZ:   int32(nz),
		Mode: mode,
		// ISPG stays 0: image stacks have no space group
		MX:       int32(nx),
		MY:       int32(ny),
		MZ:       int32(nz),
		CellB:    [3]float32{90, 90, 90},
		MapC:     1,
		MapR:     2,
		MapS:     3,
		NVersion: 20140,
		Map:      [4]byte{'M', 'A', 'P', ' '},
		MachSt:   [4]byte{0x44, 0x44, 0x00, 0x00},
	}
	hdr.SetVoxelSize(voxelSize)

	return hdr
}

// SetVoxelSize sets the cell dimensions so that every voxel is size Å wide.
func (h *Header) SetVoxelSize(size float32) {
	h.CellA = [3]float32{size * float32(h.MX), size * float32(h.MY), size * float32(h.MZ)}
}

// VoxelSize returns the pixel spacing along X in Å.
func (h *Header) VoxelSize() float32 {
	if h.MX == 0 {
		return 0
	}

	return h.CellA[0] / float32(h.MX)
}

// SliceSize returns the number of bytes of one image.
func (h *Header) SliceSize() (int, error) {
	bpp, err := h.Mode.BytesPerPixel()
	if err != nil {
		return 0, err
	}

	return int(h.NX) * int(h.NY) * bpp, nil
}

// DataOffset returns the file offset of the first image.
func (h *Header) DataOffset() int64 {
	return HeaderSize + int64(h.NSymBT)
}

func (h *Header) validate() error {
	if h.Map != [4]byte{'M', 'A', 'P', ' '} && h.NVersion != 0 {
		return errors.Wrap(ErrInvalidHeader, "missing MAP tag")
	}
	if h.NX <= 0 || h.NY <= 0 || h.NZ <= 0 {
		return errors.Wrapf(ErrInvalidHeader, "invalid dimensions %dx%dx%d", h.NX, h.NY, h.NZ)
	}
	if h.NSymBT < 0 {
		return errors.Wrapf(ErrInvalidHeader, "invalid extended header size %d", h.NSymBT)
	}
	_, err := h.Mode.BytesPerPixel()

	return err
}

func readHeader(r io.ReaderAt) (Header, error) {
	buf := make([]byte, HeaderSize)
	_, err := r.ReadAt(buf, 0)
	if err != nil {
		return Header{}, errors.Wrap(err, "unable to read header")
	}

	hdr := Header{}
	err = binary.Read(bytes.NewReader(buf), binary.LittleEndian, &hdr)
	if err != nil {
		return Header{}, errors.Wrap(err, "unable to decode header")
	}

	err = hdr.validate()
	if err != nil {
		return Header{}, err
	}

	return hdr, nil
}

func writeHeader(w io.Writer, hdr *Header) error {
	err := binary.Write(w, binary.LittleEndian, hdr)
	if err != nil {
		return errors.Wrap(err, "unable to write header")
	}

	return nil
}
