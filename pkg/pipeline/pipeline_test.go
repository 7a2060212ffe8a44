package pipeline_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/go-fidder/internal/gpu"
	"github.com/askiada/go-fidder/pkg/pipeline"
	"github.com/askiada/go-fidder/pkg/pipeline/drawer"
	"github.com/askiada/go-fidder/pkg/pipeline/measure"
	"github.com/askiada/go-fidder/pkg/pipeline/model"
)

func noop(context.Context) error {
	return nil
}

type recorder struct {
	mu    sync.Mutex
	order []string
}

func (r *recorder) step(name string) model.StepFunc {
	return func(context.Context) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.order = append(r.order, name)

		return nil
	}
}

func (r *recorder) get() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	res := make([]string, len(r.order))
	copy(res, r.order)

	return res
}

func TestSubmitNilPipeline(t *testing.T) {
	t.Parallel()

	var pipe *pipeline.Pipeline
	_, err := pipe.Submit(&model.StepInfo{Name: "a"}, noop)
	require.ErrorIs(t, err, pipeline.ErrPipelineMustBeSet)
}

func TestSubmitInvalid(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		prepare func(pipe *pipeline.Pipeline)
		step    *model.StepInfo
		fn      model.StepFunc
		prereqs []model.Handle
		wantErr error
	}{
		"nil step": {
			fn:      noop,
			wantErr: pipeline.ErrStepMustBeSet,
		},
		"nil function": {
			step:    &model.StepInfo{Name: "a"},
			wantErr: pipeline.ErrStepFnMustBeSet,
		},
		"duplicate name": {
			prepare: func(pipe *pipeline.Pipeline) {
				_, err := pipe.Submit(&model.StepInfo{Name: "a"}, noop)
				require.NoError(t, err)
			},
			step:    &model.StepInfo{Name: "a"},
			fn:      noop,
			wantErr: pipeline.ErrStepAlreadyExists,
		},
		"unknown prerequisite": {
			step:    &model.StepInfo{Name: "b"},
			fn:      noop,
			prereqs: []model.Handle{"a"},
			wantErr: pipeline.ErrUnknownPrerequisite,
		},
	}

	for name, tc := range tcs {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			pipe, err := pipeline.New()
			require.NoError(t, err)
			if tc.prepare != nil {
				tc.prepare(pipe)
			}
			_, err = pipe.Submit(tc.step, tc.fn, tc.prereqs...)
			require.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestRunChain(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	pipe, err := pipeline.New(pipeline.Concurrency(4))
	require.NoError(t, err)

	a, err := pipe.Submit(&model.StepInfo{Name: "a"}, rec.step("a"))
	require.NoError(t, err)
	b, err := pipe.Submit(&model.StepInfo{Name: "b"}, rec.step("b"), a)
	require.NoError(t, err)
	_, err = pipe.Submit(&model.StepInfo{Name: "c"}, rec.step("c"), b, a, a)
	require.NoError(t, err)

	require.NoError(t, pipe.Run(context.Background()))
	assert.Equal(t, []string{"a", "b", "c"}, rec.get())

	steps, err := pipe.Steps()
	require.NoError(t, err)
	require.Len(t, steps, 3)
	assert.Equal(t, "c", steps[2].Name)
	assert.Equal(t, []string{"a", "b"}, steps[2].Prerequisites)
	for _, step := range steps {
		assert.Equal(t, model.StepDone, step.State)
	}
}

func TestRunFailureSkipsDependents(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	pipe, err := pipeline.New(pipeline.Concurrency(2))
	require.NoError(t, err)

	bad, err := pipe.Submit(&model.StepInfo{Name: "unstack TS1"}, func(context.Context) error {
		return assert.AnError
	})
	require.NoError(t, err)
	skipped, err := pipe.Submit(&model.StepInfo{Name: "register TS1"}, rec.step("register TS1"), bad)
	require.NoError(t, err)
	good, err := pipe.Submit(&model.StepInfo{Name: "unstack TS2"}, rec.step("unstack TS2"))
	require.NoError(t, err)
	_, err = pipe.Submit(&model.StepInfo{Name: "register TS2"}, rec.step("register TS2"), good)
	require.NoError(t, err)

	err = pipe.Run(context.Background())
	require.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, err.Error(), "unstack TS1")
	assert.Equal(t, []string{"unstack TS2", "register TS2"}, rec.get())

	state, err := pipe.State(skipped)
	require.NoError(t, err)
	assert.Equal(t, model.StepSkipped, state)
	state, err = pipe.State(bad)
	require.NoError(t, err)
	assert.Equal(t, model.StepFailed, state)

	steps, err := pipe.Steps()
	require.NoError(t, err)
	states := map[string]model.StepState{}
	for _, step := range steps {
		states[step.Name] = step.State
	}
	assert.Equal(t, map[string]model.StepState{
		"unstack TS1":  model.StepFailed,
		"register TS1": model.StepSkipped,
		"unstack TS2":  model.StepDone,
		"register TS2": model.StepDone,
	}, states)

	counts := pipe.Counts()
	assert.Equal(t, 2, counts[model.StepDone])
	assert.Equal(t, 1, counts[model.StepFailed])
	assert.Equal(t, 1, counts[model.StepSkipped])
}

func TestRunSubmitFromRunningStep(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	pipe, err := pipeline.New(pipeline.Concurrency(2))
	require.NoError(t, err)

	var pollErr error
	_, err = pipe.Submit(&model.StepInfo{Name: "poll"}, func(context.Context) error {
		first, err := pipe.Submit(&model.StepInfo{Name: "found 1"}, rec.step("found 1"))
		if err != nil {
			return err
		}
		// leave time for the first step to start before extending the graph again
		time.Sleep(20 * time.Millisecond)
		_, pollErr = pipe.Submit(&model.StepInfo{Name: "found 2"}, rec.step("found 2"), first)

		return pollErr
	})
	require.NoError(t, err)

	require.NoError(t, pipe.Run(context.Background()))
	require.NoError(t, pollErr)
	assert.Equal(t, []string{"found 1", "found 2"}, rec.get())

	_, err = pipe.Submit(&model.StepInfo{Name: "late"}, noop)
	require.ErrorIs(t, err, pipeline.ErrPipelineFinished)
	require.ErrorIs(t, pipe.Run(context.Background()), pipeline.ErrAlreadyRunning)
}

func TestRunConcurrencyLimit(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		concurrent int
		gpus       string
		gpuSteps   bool
		wantMax    int32
	}{
		"cpu steps": {
			concurrent: 2,
			wantMax:    2,
		},
		"gpu steps with one device": {
			concurrent: 4,
			gpus:       "0",
			gpuSteps:   true,
			wantMax:    1,
		},
	}

	for name, tc := range tcs {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			opts := []pipeline.Option{pipeline.Concurrency(tc.concurrent)}
			if tc.gpus != "" {
				pool, err := gpu.NewPool(tc.gpus)
				require.NoError(t, err)
				opts = append(opts, pipeline.GPUs(pool))
			}
			pipe, err := pipeline.New(opts...)
			require.NoError(t, err)

			var current, highest int32
			for _, name := range []string{"s1", "s2", "s3", "s4", "s5", "s6"} {
				_, err = pipe.Submit(&model.StepInfo{Name: name, GPU: tc.gpuSteps}, func(ctx context.Context) error {
					if tc.gpuSteps {
						if _, ok := gpu.DeviceFromContext(ctx); !ok {
							return assert.AnError
						}
					}
					now := atomic.AddInt32(&current, 1)
					for {
						seen := atomic.LoadInt32(&highest)
						if now <= seen || atomic.CompareAndSwapInt32(&highest, seen, now) {
							break
						}
					}
					time.Sleep(10 * time.Millisecond)
					atomic.AddInt32(&current, -1)

					return nil
				})
				require.NoError(t, err)
			}

			require.NoError(t, pipe.Run(context.Background()))
			assert.LessOrEqual(t, atomic.LoadInt32(&highest), tc.wantMax)
			assert.Positive(t, atomic.LoadInt32(&highest))
		})
	}
}

func TestRunGPUDevices(t *testing.T) {
	t.Parallel()

	pool, err := gpu.NewPool("2,3")
	require.NoError(t, err)
	pipe, err := pipeline.New(pipeline.Concurrency(2), pipeline.GPUs(pool))
	require.NoError(t, err)

	var mu sync.Mutex
	devices := map[string]struct{}{}
	var cpuHasDevice bool
	for _, name := range []string{"g1", "g2", "g3"} {
		_, err = pipe.Submit(&model.StepInfo{Name: name, GPU: true}, func(ctx context.Context) error {
			device, _ := gpu.DeviceFromContext(ctx)
			mu.Lock()
			devices[device] = struct{}{}
			mu.Unlock()

			return nil
		})
		require.NoError(t, err)
	}
	_, err = pipe.Submit(&model.StepInfo{Name: "cpu"}, func(ctx context.Context) error {
		_, cpuHasDevice = gpu.DeviceFromContext(ctx)

		return nil
	})
	require.NoError(t, err)

	require.NoError(t, pipe.Run(context.Background()))
	assert.False(t, cpuHasDevice)
	for device := range devices {
		assert.Contains(t, []string{"2", "3"}, device)
	}
}

func TestRunCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pipe, err := pipeline.New()
	require.NoError(t, err)

	blocking, err := pipe.Submit(&model.StepInfo{Name: "blocking"}, func(ctx context.Context) error {
		cancel()
		<-ctx.Done()

		return ctx.Err()
	})
	require.NoError(t, err)
	after, err := pipe.Submit(&model.StepInfo{Name: "after"}, noop, blocking)
	require.NoError(t, err)

	err = pipe.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	state, err := pipe.State(after)
	require.NoError(t, err)
	assert.Equal(t, model.StepSkipped, state)
}

func TestRunWithHooks(t *testing.T) {
	t.Parallel()

	dotFile := filepath.Join(t.TempDir(), "steps.gv")
	msr := measure.NewDefaultMeasure()
	pipe, err := pipeline.New(pipeline.Hooks(
		measure.PipelineMeasure(msr),
		drawer.PipelineDrawer(drawer.NewDOTDrawer(dotFile), msr),
	))
	require.NoError(t, err)

	a, err := pipe.Submit(&model.StepInfo{Name: "a", Stage: "unstack"}, func(context.Context) error {
		time.Sleep(time.Millisecond)

		return nil
	})
	require.NoError(t, err)
	_, err = pipe.Submit(&model.StepInfo{Name: "b", Stage: "register"}, noop, a)
	require.NoError(t, err)

	require.NoError(t, pipe.Run(context.Background()))

	assert.Equal(t, model.StepDone, msr.GetMetric("a").State())
	assert.Positive(t, msr.GetMetric("a").RunDuration())
	assert.Contains(t, msr.StageAverages(), "unstack")

	content, err := os.ReadFile(dotFile)
	require.NoError(t, err)
	assert.Contains(t, string(content), `"a" -> "b"`)
}
