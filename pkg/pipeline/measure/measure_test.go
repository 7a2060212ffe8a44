package measure_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/go-fidder/pkg/pipeline/measure"
	"github.com/askiada/go-fidder/pkg/pipeline/model"
)

func TestPipelineMeasure(t *testing.T) {
	t.Parallel()

	msr := measure.NewDefaultMeasure()
	opt := measure.PipelineMeasure(msr)
	require.NoError(t, opt.New())

	steps := []*model.StepInfo{
		{Name: "unstack TS1", Stage: "unstack"},
		{Name: "unstack TS2", Stage: "unstack"},
		{Name: "register TS1", Stage: "register"},
	}
	for _, step := range steps {
		require.NoError(t, opt.PrepareStep(nil, step))
	}

	require.NoError(t, opt.OnStepStart(steps[0], 5*time.Millisecond))
	require.NoError(t, opt.OnStepEnd(steps[0], model.StepDone, 2*time.Second))
	require.NoError(t, opt.OnStepStart(steps[1], time.Millisecond))
	require.NoError(t, opt.OnStepEnd(steps[1], model.StepFailed, 4*time.Second))
	require.NoError(t, opt.OnStepEnd(steps[2], model.StepSkipped, 0))
	require.NoError(t, opt.Finish())

	mt := msr.GetMetric("unstack TS1")
	require.NotNil(t, mt)
	assert.Equal(t, 5*time.Millisecond, mt.WaitDuration())
	assert.Equal(t, 2*time.Second, mt.RunDuration())
	assert.Equal(t, model.StepDone, mt.State())

	assert.Equal(t, map[string]time.Duration{"unstack": 3 * time.Second}, msr.StageAverages())
	assert.Len(t, msr.AllMetrics(), 3)
}

func TestPipelineMeasureUnknownStep(t *testing.T) {
	t.Parallel()

	opt := measure.PipelineMeasure(measure.NewDefaultMeasure())
	err := opt.OnStepStart(&model.StepInfo{Name: "nope"}, 0)
	require.ErrorIs(t, err, measure.ErrUnknownStep)
}
