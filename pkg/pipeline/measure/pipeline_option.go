package measure

import (
	"time"

	"github.com/pkg/errors"

	"github.com/askiada/go-fidder/pkg/pipeline/model"
)

var ErrUnknownStep = errors.New("no metric for step")

type pipelineMeasure struct {
	Measure
}

func (pm *pipelineMeasure) New() error {
	return nil
}

func (pm *pipelineMeasure) PrepareStep(_ []*model.StepInfo, step *model.StepInfo) error {
	pm.AddMetric(step)

	return nil
}

func (pm *pipelineMeasure) OnStepStart(step *model.StepInfo, waitDuration time.Duration) error {
	mt := pm.GetMetric(step.Name)
	if mt == nil {
		return errors.Wrap(ErrUnknownStep, step.Name)
	}
	mt.SetWaitDuration(waitDuration)
	mt.SetState(model.StepRunning)

	return nil
}

func (pm *pipelineMeasure) OnStepEnd(step *model.StepInfo, state model.StepState, runDuration time.Duration) error {
	mt := pm.GetMetric(step.Name)
	if mt == nil {
		return errors.Wrap(ErrUnknownStep, step.Name)
	}
	mt.SetRunDuration(runDuration)
	mt.SetState(state)

	return nil
}

func (pm *pipelineMeasure) Finish() error {
	return nil
}

// PipelineMeasure records the wait and run durations of every step into measure.
func PipelineMeasure(measure Measure) model.PipelineOption {
	return &pipelineMeasure{measure}
}
