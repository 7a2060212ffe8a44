package measure

import (
	"time"

	"github.com/askiada/go-fidder/pkg/pipeline/model"
)

// Measure collects a metric per step.
type Measure interface {
	AddMetric(step *model.StepInfo) Metric
	GetMetric(name string) Metric
	AllMetrics() map[string]Metric
	// StageAverages returns the average run duration of the steps of each stage.
	StageAverages() map[string]time.Duration
}

// Metric follows a single step.
type Metric interface {
	SetWaitDuration(elapsed time.Duration)
	SetRunDuration(elapsed time.Duration)
	SetState(state model.StepState)
	WaitDuration() time.Duration
	RunDuration() time.Duration
	State() model.StepState
	Stage() string
}
