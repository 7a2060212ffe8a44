package fiducials

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrInputMustBeSet  = errors.New("input tilt-series must be set")
	ErrRunnerMustBeSet = errors.New("fidder runner must be set")
	ErrUnknownItem     = errors.New("unknown tilt-series")
	ErrMissingImages   = errors.New("unstacked images do not match the tilt-series")
)

// ConfigurationError is returned before anything runs when the parameters cannot be used.
type ConfigurationError struct {
	Problems []string
}

func (e *ConfigurationError) Error() string {
	return "invalid configuration: " + strings.Join(e.Problems, "; ")
}

// ConversionError is returned when an image cannot be extracted from its stack.
type ConversionError struct {
	TsID      string
	Reference string
	Err       error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("tsId = %s: unable to convert %s: %v", e.TsID, e.Reference, e.Err)
}

func (e *ConversionError) Unwrap() error {
	return e.Err
}

// RunnerError is returned when the fidder program fails on an image.
type RunnerError struct {
	TsID  string
	Image string
	Err   error
}

func (e *RunnerError) Error() string {
	return fmt.Sprintf("tsId = %s: fidder failed on %s: %v", e.TsID, e.Image, e.Err)
}

func (e *RunnerError) Unwrap() error {
	return e.Err
}

// RestackError is returned when the per-image results cannot be mounted into a stack.
type RestackError struct {
	TsID string
	Dir  string
	Err  error
}

func (e *RestackError) Error() string {
	return fmt.Sprintf("tsId = %s: unable to mount %s: %v", e.TsID, e.Dir, e.Err)
}

func (e *RestackError) Unwrap() error {
	return e.Err
}
