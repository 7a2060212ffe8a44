package fiducials

import (
	"time"

	"github.com/askiada/go-fidder/pkg/tomo"
)

const (
	DefaultProbThreshold = 0.5
	DefaultPollInterval  = 10 * time.Second
)

// Config holds the parameters of a run.
type Config struct {
	// ProbThreshold is the probability above which a pixel belongs to a fiducial, in (0, 1].
	ProbThreshold float64
	// DoEvenOdd also erases the fiducials of the odd and even tilt-series.
	DoEvenOdd bool
	// SaveMaskStack keeps the predicted masks as a stack next to the results.
	SaveMaskStack bool
	// WorkDir holds the tmp and extra directories.
	WorkDir string
	// Streaming keeps polling the input until it is closed.
	Streaming    bool
	PollInterval time.Duration
}

// Validate checks the configuration against the input metadata.
func (c *Config) Validate(input tomo.SetInfo) error {
	var problems []string

	if c.ProbThreshold <= 0 || c.ProbThreshold > 1 {
		problems = append(problems, "the fiducial probability threshold must be in (0, 1]")
	}
	if c.DoEvenOdd && !input.OddEven {
		problems = append(problems, "the even/odd tilt-series cannot be processed as no even/odd tilt-series "+
			"are found in the metadata of the introduced tilt-series")
	}
	if c.WorkDir == "" {
		problems = append(problems, "the working directory must be set")
	}
	if c.Streaming && c.PollInterval <= 0 {
		problems = append(problems, "the poll interval must be positive")
	}

	if len(problems) > 0 {
		return &ConfigurationError{Problems: problems}
	}

	return nil
}
