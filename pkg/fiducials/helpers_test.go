package fiducials_test

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/askiada/go-fidder/internal/fidder"
	"github.com/askiada/go-fidder/internal/mrc"
	"github.com/askiada/go-fidder/pkg/fiducials"
	"github.com/askiada/go-fidder/pkg/pipeline"
	"github.com/askiada/go-fidder/pkg/pipeline/model"
	"github.com/askiada/go-fidder/pkg/tomo"
)

const testSamplingRate = 2.5

// fakeRunner copies its input image to its output, so that the restacked result holds the
// unstacked samples.
type fakeRunner struct {
	mu       sync.Mutex
	failOn   map[string]bool
	predicts []fidder.PredictRequest
	erases   []fidder.EraseRequest
}

func (f *fakeRunner) fails(img string) bool {
	for tsID := range f.failOn {
		if strings.HasPrefix(filepath.Base(img), tsID+"_") {
			return true
		}
	}

	return false
}

func (f *fakeRunner) Predict(_ context.Context, req fidder.PredictRequest) error {
	f.mu.Lock()
	f.predicts = append(f.predicts, req)
	f.mu.Unlock()

	if f.fails(req.InputImage) {
		return &fidder.ExecError{Args: req.Args(), Err: assert.AnError}
	}

	return copyImage(req.InputImage, req.OutputMask)
}

func (f *fakeRunner) Erase(_ context.Context, req fidder.EraseRequest) error {
	f.mu.Lock()
	f.erases = append(f.erases, req)
	f.mu.Unlock()

	return copyImage(req.InputImage, req.OutputImage)
}

func (f *fakeRunner) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.predicts), len(f.erases)
}

func copyImage(src, dst string) error {
	im, err := mrc.ReadImage(src)
	if err != nil {
		return err
	}

	return mrc.WriteImage(dst, im, testSamplingRate)
}

// writeStack writes n 4x4 images; image i (1-based) is filled with offset+i.
func writeStack(t *testing.T, path string, n int, offset float32) {
	t.Helper()

	stk, err := mrc.NewStack(n, 4, 4, mrc.ModeFloat32)
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		samples := make([]float32, 16)
		for j := range samples {
			samples[j] = offset + float32(i+1)
		}
		im, err := mrc.NewFloat32Image(4, 4, samples)
		require.NoError(t, err)
		require.NoError(t, stk.Set(i, im))
	}
	require.NoError(t, mrc.WriteStack(path, stk, testSamplingRate))
}

// newSeries writes the stacks of a tilt-series of n images in dir.
func newSeries(t *testing.T, dir, tsID string, n int, oddEven bool) *tomo.TiltSeries {
	t.Helper()

	ts := &tomo.TiltSeries{TsID: tsID, SamplingRate: testSamplingRate}
	stackFile := filepath.Join(dir, tsID+".mrcs")
	writeStack(t, stackFile, n, 0)
	if oddEven {
		ts.EvenFile = filepath.Join(dir, tsID+"_even.mrcs")
		ts.OddFile = filepath.Join(dir, tsID+"_odd.mrcs")
		writeStack(t, ts.EvenFile, n, 100)
		writeStack(t, ts.OddFile, n, 200)
	}

	// appended in reverse order so that ordering relies on the index
	for i := n; i >= 1; i-- {
		ts.Append(&tomo.TiltImage{Index: i, FileName: stackFile, TiltAngle: float64(3 * (i - 1))})
	}

	return ts
}

func newInput(t *testing.T, oddEven bool, series ...*tomo.TiltSeries) *tomo.Set {
	t.Helper()

	set := tomo.NewSet(tomo.SetInfo{Name: "inTsSet", SamplingRate: testSamplingRate, OddEven: oddEven})
	for _, ts := range series {
		require.NoError(t, set.Append(ts))
	}
	set.Close()

	return set
}

func testConfig(t *testing.T) fiducials.Config {
	t.Helper()

	return fiducials.Config{
		ProbThreshold: fiducials.DefaultProbThreshold,
		WorkDir:       t.TempDir(),
		PollInterval:  5 * time.Millisecond,
	}
}

func runProtocol(t *testing.T, cfg fiducials.Config, input fiducials.Source, runner fidder.Runner) (*fiducials.Protocol, *pipeline.Pipeline, error) {
	t.Helper()

	proto, err := fiducials.New(cfg, input, runner, nil, zap.NewNop().Sugar())
	require.NoError(t, err)
	pipe, err := pipeline.New(pipeline.Concurrency(2))
	require.NoError(t, err)
	require.NoError(t, proto.Start(pipe))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return proto, pipe, pipe.Run(ctx)
}

func stackValues(t *testing.T, path string) []float32 {
	t.Helper()

	file, err := mrc.Open(path)
	require.NoError(t, err)
	defer file.Close()

	res := []float32{}
	for i := 0; i < file.Len(); i++ {
		im, err := file.Slice(i)
		require.NoError(t, err)
		samples, err := im.Float32()
		require.NoError(t, err)
		res = append(res, samples[0])
	}

	return res
}

// recordingSubmitter accepts steps without running them.
type recordingSubmitter struct {
	mu    sync.Mutex
	steps []*model.StepInfo
	deps  map[string][]model.Handle
}

func (r *recordingSubmitter) Submit(step *model.StepInfo, _ model.StepFunc, prerequisites ...model.Handle) (model.Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.deps == nil {
		r.deps = make(map[string][]model.Handle)
	}
	for _, s := range r.steps {
		if s.Name == step.Name {
			return "", fmt.Errorf("duplicate step %s", step.Name)
		}
	}
	r.steps = append(r.steps, step)
	r.deps[step.Name] = prerequisites

	return model.Handle(step.Name), nil
}

func (r *recordingSubmitter) stages() map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()

	res := map[string]int{}
	for _, s := range r.steps {
		res[s.Stage]++
	}

	return res
}
