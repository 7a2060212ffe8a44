package model

import "context"

// StepState is the execution state of a step.
type StepState string

const (
	StepPending StepState = "pending"
	StepRunning StepState = "running"
	StepDone    StepState = "done"
	StepFailed  StepState = "failed"
	// StepSkipped is set when a prerequisite did not complete.
	StepSkipped StepState = "skipped"
)

// IsTerminal reports whether the step will not change state anymore.
func (s StepState) IsTerminal() bool {
	switch s {
	case StepDone, StepFailed, StepSkipped:
		return true
	default:
		return false
	}
}

// StepInfo describes a unit of work of the pipeline.
type StepInfo struct {
	// Name identifies the step in the graph. It must be unique.
	Name string `json:"name"`
	// Group ties together the steps working on the same item (a tsId).
	Group string `json:"group,omitempty"`
	// Stage is the kind of work done by the step.
	Stage string `json:"stage,omitempty"`
	// GPU tags steps that need a GPU device.
	GPU bool `json:"gpu"`
	// Watcher tags long steps that mostly wait on external state. They do not take a
	// worker slot.
	Watcher bool `json:"watcher,omitempty"`
}

// Handle references a submitted step. It is used to declare prerequisites.
type Handle string

// StepFunc is the work of a step. ctx carries the resources granted to the step.
type StepFunc func(ctx context.Context) error

// Submitter accepts steps and their prerequisites.
//
// Submitting only describes the dependency: the step runs once every prerequisite is done
// and the resources it is tagged with are available.
type Submitter interface {
	Submit(step *StepInfo, stepFn StepFunc, prerequisites ...Handle) (Handle, error)
}
