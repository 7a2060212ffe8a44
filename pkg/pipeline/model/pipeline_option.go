package model

import "time"

// PipelineOption defines the interface for pipeline options.
type PipelineOption interface {
	// New initialises the pipeline option.
	New() error

	// PrepareStep runs when a step is submitted, with the steps it depends on.
	PrepareStep(parentSteps []*StepInfo, step *StepInfo) error
	// OnStepStart runs when a step gets its resources, waitDuration is the time spent
	// since submission.
	OnStepStart(step *StepInfo, waitDuration time.Duration) error
	// OnStepEnd runs when a step reaches a terminal state.
	OnStepEnd(step *StepInfo, state StepState, runDuration time.Duration) error

	// Finish runs after the pipeline is finished.
	Finish() error
}
