package pipeline

import (
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

var (
	ErrPipelineMustBeSet   = errors.New("p must be set")
	ErrStepMustBeSet       = errors.New("step must be set")
	ErrStepFnMustBeSet     = errors.New("step function must be set")
	ErrStepAlreadyExists   = errors.New("step already exists")
	ErrUnknownPrerequisite = errors.New("unknown prerequisite")
	ErrAlreadyRunning      = errors.New("pipeline is already running")
	ErrPipelineFinished    = errors.New("pipeline is finished")
)

// stepErrors collects the errors of every step. Steps run concurrently, so add is guarded.
type stepErrors struct {
	mu   sync.Mutex
	list []error
}

func (se *stepErrors) add(name string, err error) {
	se.mu.Lock()
	defer se.mu.Unlock()
	se.list = append(se.list, errors.Wrap(err, name))
}

func (se *stepErrors) combined() error {
	se.mu.Lock()
	defer se.mu.Unlock()

	return multierr.Combine(se.list...)
}
