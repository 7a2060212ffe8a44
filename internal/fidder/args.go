package fidder

import (
	"strconv"
)

// PredictRequest describes one "predict" call: image in, probability mask out.
type PredictRequest struct {
	InputImage           string
	OutputMask           string
	PixelSpacing         float64
	ProbabilityThreshold float64
}

// Args returns the command line of the request.
func (r PredictRequest) Args() []string {
	return []string{
		"predict",
		"--input-image", r.InputImage,
		"--output-mask", r.OutputMask,
		"--pixel-spacing", strconv.FormatFloat(r.PixelSpacing, 'f', 3, 64),
		"--probability-threshold", strconv.FormatFloat(r.ProbabilityThreshold, 'f', 2, 64),
	}
}

// EraseRequest describes one "erase" call: image and mask in, cleaned image out.
type EraseRequest struct {
	InputImage  string
	InputMask   string
	OutputImage string
}

// Args returns the command line of the request.
func (r EraseRequest) Args() []string {
	return []string{
		"erase",
		"--input-image", r.InputImage,
		"--input-mask", r.InputMask,
		"--output-image", r.OutputImage,
	}
}
