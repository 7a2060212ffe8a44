package tomo

import (
	"sort"
)

// Acquisition holds the microscope settings shared by every image of a tilt-series.
type Acquisition struct {
	Voltage             float64 `json:"voltage"`
	SphericalAberration float64 `json:"sphericalAberration"`
	AmplitudeContrast   float64 `json:"amplitudeContrast"`
	Magnification       float64 `json:"magnification"`
	DoseInitial         float64 `json:"doseInitial"`
	DosePerTilt         float64 `json:"dosePerTilt"`
	TiltAxisAngle       float64 `json:"tiltAxisAngle"`
}

// TiltImage is one projection of a tilt-series.
//
// FileName points to the stack that holds the image and Index is the 1-based position
// of the image inside that stack. Index is unique within the parent series and defines
// the stacking order.
type TiltImage struct {
	Index     int     `json:"index"`
	FileName  string  `json:"fileName"`
	TiltAngle float64 `json:"tiltAngle"`
	OddFile   string  `json:"oddFile,omitempty"`
	EvenFile  string  `json:"evenFile,omitempty"`
}

// Clone returns a copy of the image.
func (ti *TiltImage) Clone() *TiltImage {
	c := *ti
	return &c
}

// TiltSeries is an ordered set of projection images of the same specimen.
type TiltSeries struct {
	TsID         string       `json:"tsId"`
	SamplingRate float64      `json:"samplingRate"`
	Acquisition  Acquisition  `json:"acquisition"`
	OddFile      string       `json:"oddFile,omitempty"`
	EvenFile     string       `json:"evenFile,omitempty"`
	Images       []*TiltImage `json:"images"`
}

// CopyInfo copies the series metadata, but not its images.
func (ts *TiltSeries) CopyInfo(other *TiltSeries) {
	ts.TsID = other.TsID
	ts.SamplingRate = other.SamplingRate
	ts.Acquisition = other.Acquisition
	ts.OddFile = other.OddFile
	ts.EvenFile = other.EvenFile
}

// Clone returns a deep copy of the series including its images.
func (ts *TiltSeries) Clone() *TiltSeries {
	c := &TiltSeries{}
	c.CopyInfo(ts)
	c.Images = make([]*TiltImage, len(ts.Images))
	for i, ti := range ts.Images {
		c.Images[i] = ti.Clone()
	}

	return c
}

// Len returns the number of images of the series.
func (ts *TiltSeries) Len() int {
	return len(ts.Images)
}

// FirstItem returns the image with the lowest index, or nil for an empty series.
func (ts *TiltSeries) FirstItem() *TiltImage {
	sorted := ts.SortedImages()
	if len(sorted) == 0 {
		return nil
	}

	return sorted[0]
}

// SortedImages returns the images ordered by index. The series itself is not modified.
func (ts *TiltSeries) SortedImages() []*TiltImage {
	sorted := make([]*TiltImage, len(ts.Images))
	copy(sorted, ts.Images)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Index < sorted[j].Index
	})

	return sorted
}

// Append adds an image to the series.
func (ts *TiltSeries) Append(ti *TiltImage) {
	ts.Images = append(ts.Images, ti)
}

// HasOddEven reports whether every image can be resolved to odd and even companions.
func (ts *TiltSeries) HasOddEven() bool {
	if ts.Len() == 0 {
		return false
	}
	for _, ti := range ts.Images {
		if ts.OddFileOf(ti) == "" || ts.EvenFileOf(ti) == "" {
			return false
		}
	}

	return true
}

// OddFileOf returns the stack holding the odd frames of ti, falling back to the series companion.
func (ts *TiltSeries) OddFileOf(ti *TiltImage) string {
	if ti.OddFile != "" {
		return ti.OddFile
	}

	return ts.OddFile
}

// EvenFileOf returns the stack holding the even frames of ti, falling back to the series companion.
func (ts *TiltSeries) EvenFileOf(ti *TiltImage) string {
	if ti.EvenFile != "" {
		return ti.EvenFile
	}

	return ts.EvenFile
}
