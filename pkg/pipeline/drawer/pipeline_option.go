package drawer

import (
	"time"

	"github.com/pkg/errors"

	"github.com/askiada/go-fidder/pkg/pipeline/measure"
	"github.com/askiada/go-fidder/pkg/pipeline/model"
)

type pipelineDrawer struct {
	Drawer
	m         measure.Measure
	startTime time.Time
}

func (pd *pipelineDrawer) New() error {
	pd.startTime = time.Now()

	return nil
}

func (pd *pipelineDrawer) PrepareStep(parentSteps []*model.StepInfo, step *model.StepInfo) error {
	err := pd.AddStep(step)
	if err != nil {
		return err
	}

	for _, parentStep := range parentSteps {
		err = pd.AddLink(parentStep.Name, step.Name)
		if err != nil {
			return err
		}
	}

	return nil
}

func (pd *pipelineDrawer) OnStepStart(*model.StepInfo, time.Duration) error {
	return nil
}

func (pd *pipelineDrawer) OnStepEnd(*model.StepInfo, model.StepState, time.Duration) error {
	return nil
}

func (pd *pipelineDrawer) Finish() error {
	err := pd.SetTotalTime(pd.startTime)
	if err != nil {
		return errors.Wrap(err, "unable to set total time")
	}

	if pd.m != nil {
		err = pd.AddMeasure(pd.m)
		if err != nil {
			return errors.Wrap(err, "unable to add measure")
		}
	}

	err = pd.Draw()
	if err != nil {
		return errors.Wrap(err, "unable to draw pipeline")
	}

	return nil
}

// PipelineDrawer draws the step graph once the pipeline is finished. measure is optional.
func PipelineDrawer(drawer Drawer, measure measure.Measure) model.PipelineOption {
	return &pipelineDrawer{Drawer: drawer, m: measure, startTime: time.Now()}
}
