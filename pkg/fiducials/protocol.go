package fiducials

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/askiada/go-fidder/internal/fidder"
	"github.com/askiada/go-fidder/internal/stack"
	"github.com/askiada/go-fidder/pkg/tomo"
)

// Source is the input collection of tilt-series. It may still grow while the protocol runs.
type Source interface {
	// Refresh reloads the members and the stream state.
	Refresh() error
	Info() tomo.SetInfo
	Items() []*tomo.TiltSeries
	IsStreamOpen() bool
}

// Protocol detects and erases the fiducials of every tilt-series of its input.
type Protocol struct {
	cfg       Config
	input     Source
	info      tomo.SetInfo
	runner    fidder.Runner
	codec     *stack.Codec
	unstacker *Unstacker
	outputs   *Outputs
	layout    layout
	logger    *zap.SugaredLogger

	inputMu sync.Mutex

	mu     sync.Mutex
	items  map[string]*tomo.TiltSeries
	failed map[string]error
}

// New validates cfg against the input and creates the protocol. A nil outputs creates a
// fresh manager.
func New(cfg Config, input Source, runner fidder.Runner, outputs *Outputs, logger *zap.SugaredLogger) (*Protocol, error) {
	if input == nil {
		return nil, ErrInputMustBeSet
	}
	if runner == nil {
		return nil, ErrRunnerMustBeSet
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	info := input.Info()
	err := cfg.Validate(info)
	if err != nil {
		return nil, err
	}

	if outputs == nil {
		outputs = NewOutputs(info, logger)
	}
	codec := &stack.Codec{Logger: logger}

	return &Protocol{
		cfg:       cfg,
		input:     input,
		info:      info,
		runner:    runner,
		codec:     codec,
		unstacker: NewUnstacker(cfg.WorkDir, codec),
		outputs:   outputs,
		layout:    layout{workDir: cfg.WorkDir},
		logger:    logger,
		items:     make(map[string]*tomo.TiltSeries),
		failed:    make(map[string]error),
	}, nil
}

// Outputs returns the output collections.
func (p *Protocol) Outputs() *Outputs {
	return p.outputs
}

// track keeps a private copy of ts, so that later changes of the input do not affect a
// chain already submitted.
func (p *Protocol) track(ts *tomo.TiltSeries) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.items[ts.TsID] = ts.Clone()
}

func (p *Protocol) item(tsID string) (*tomo.TiltSeries, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ts, ok := p.items[tsID]
	if !ok {
		return nil, errors.Wrap(ErrUnknownItem, tsID)
	}

	return ts, nil
}

func (p *Protocol) markFailed(tsID string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.logger.Errorf("tsId = %s: %v", tsID, err)
	if _, ok := p.failed[tsID]; !ok {
		p.failed[tsID] = err
	}
}

func (p *Protocol) failure(tsID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.failed[tsID]
}

// Failed returns the tsIds recorded as failed and their first error.
func (p *Protocol) Failed() map[string]error {
	p.mu.Lock()
	defer p.mu.Unlock()

	res := make(map[string]error, len(p.failed))
	for id, err := range p.failed {
		res[id] = err
	}

	return res
}

func (p *Protocol) samplingRate(ts *tomo.TiltSeries) float64 {
	if p.info.SamplingRate > 0 {
		return p.info.SamplingRate
	}

	return ts.SamplingRate
}

// Unstack writes every image of the tilt-series as a single file. A tilt-series that
// cannot be unstacked is recorded as failed.
func (p *Protocol) Unstack(_ context.Context, tsID string) error {
	ts, err := p.item(tsID)
	if err != nil {
		return err
	}

	p.logger.Infof("tsId = %s: unstacking %d images...", tsID, ts.Len())
	err = p.unstacker.Unstack(ts, p.cfg.DoEvenOdd)
	if err != nil {
		p.markFailed(tsID, err)
	}

	return nil
}

// PredictAndErase predicts the fiducial mask of every image and erases the fiducials.
// With even/odd processing the odd and even images are erased with the same masks.
//
// A failure of the fidder program is recorded and stops the processing of the tilt-series;
// it is not returned.
func (p *Protocol) PredictAndErase(ctx context.Context, tsID string) error {
	ts, err := p.item(tsID)
	if err != nil {
		return err
	}
	if err = p.failure(tsID); err != nil {
		p.logger.Warnf("tsId = %s: not predicting, the tilt-series failed", tsID)

		return nil
	}

	p.logger.Infof("tsId = %s: Predicting the fiducial mask and erasing them...", tsID)

	images, err := p.unstacked(ts, SuffixNone)
	if err != nil {
		p.markFailed(tsID, err)

		return nil
	}

	for i, img := range images {
		p.logger.Infof("tsId = %s: processing image %d of %d", tsID, i+1, len(images))
		name := filepath.Base(img)
		mask := filepath.Join(p.layout.masks(tsID, SuffixNone), name)

		err = p.runner.Predict(ctx, fidder.PredictRequest{
			InputImage:           img,
			OutputMask:           mask,
			PixelSpacing:         p.samplingRate(ts),
			ProbabilityThreshold: p.cfg.ProbThreshold,
		})
		if err == nil {
			err = p.runner.Erase(ctx, fidder.EraseRequest{
				InputImage:  img,
				InputMask:   mask,
				OutputImage: filepath.Join(p.layout.results(tsID, SuffixNone), name),
			})
		}
		if err != nil {
			return p.runnerFailed(ctx, tsID, img, err)
		}
	}

	if !p.cfg.DoEvenOdd {
		return nil
	}

	for _, suffix := range []string{SuffixEven, SuffixOdd} {
		p.logger.Infof("tsId = %s%s: erasing the fiducials...", tsID, suffix)

		images, err := p.unstacked(ts, suffix)
		if err != nil {
			p.markFailed(tsID, err)

			return nil
		}

		for _, img := range images {
			name := filepath.Base(img)
			err = p.runner.Erase(ctx, fidder.EraseRequest{
				InputImage:  img,
				InputMask:   filepath.Join(p.layout.masks(tsID, SuffixNone), name),
				OutputImage: filepath.Join(p.layout.results(tsID, suffix), name),
			})
			if err != nil {
				return p.runnerFailed(ctx, tsID, img, err)
			}
		}
	}

	return nil
}

// unstacked lists the unstacked images of ts. Every image of the series must be there.
func (p *Protocol) unstacked(ts *tomo.TiltSeries, suffix string) ([]string, error) {
	dir := p.layout.images(ts.TsID, suffix)
	images, err := stack.Images(dir)
	if err != nil {
		return nil, err
	}
	if len(images) != ts.Len() {
		return nil, errors.Wrapf(ErrMissingImages, "tsId = %s: found %d images in %s, expected %d", ts.TsID, len(images), dir, ts.Len())
	}

	return images, nil
}

// runnerFailed records the failure unless the run itself is being cancelled.
func (p *Protocol) runnerFailed(ctx context.Context, tsID, img string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	p.markFailed(tsID, &RunnerError{TsID: tsID, Image: img, Err: err})

	return nil
}

// Register adds the processed tilt-series to the output collection, or the original one to
// the failed collection, then removes its tmp directory.
func (p *Protocol) Register(_ context.Context, tsID string) error {
	ts, err := p.item(tsID)
	if err != nil {
		return err
	}

	if set, ok := p.outputs.Set(OutputName); ok && set.Contains(tsID) {
		p.logger.Infof("tsId = %s: already registered", tsID)

		return p.cleanup(tsID)
	}

	if p.failure(tsID) == nil {
		err = p.registerResult(ts)
		if err != nil {
			var restackErr *RestackError
			if !errors.As(err, &restackErr) {
				return err
			}
			p.markFailed(tsID, err)
		}
	}

	if p.failure(tsID) != nil {
		p.logger.Warnf("tsId = %s: registering the tilt-series as failed", tsID)
		err = p.outputs.Register(FailedOutputName, ts.Clone())
		if err != nil {
			return err
		}
	}

	return p.cleanup(tsID)
}

func (p *Protocol) cleanup(tsID string) error {
	err := os.RemoveAll(p.layout.tmp(tsID))
	if err != nil {
		return errors.Wrapf(err, "tsId = %s: unable to remove the tmp directory", tsID)
	}

	return nil
}

func (p *Protocol) registerResult(ts *tomo.TiltSeries) error {
	p.logger.Infof("tsId = %s: Creating the resulting tilt-series...", ts.TsID)

	err := os.MkdirAll(p.layout.extra(), 0o755)
	if err != nil {
		return errors.Wrapf(err, "unable to create %s", p.layout.extra())
	}

	if p.cfg.SaveMaskStack {
		_, err = p.mount(ts, p.layout.masks(ts.TsID, SuffixNone), SuffixMask)
		if err != nil {
			return err
		}
	}

	resultFile, err := p.mount(ts, p.layout.results(ts.TsID, SuffixNone), SuffixNone)
	if err != nil {
		return err
	}

	var evenFile, oddFile string
	if p.cfg.DoEvenOdd {
		evenFile, err = p.mount(ts, p.layout.results(ts.TsID, SuffixEven), SuffixEven)
		if err != nil {
			return err
		}
		oddFile, err = p.mount(ts, p.layout.results(ts.TsID, SuffixOdd), SuffixOdd)
		if err != nil {
			return err
		}
	}

	newTs := &tomo.TiltSeries{}
	newTs.CopyInfo(ts)
	if p.cfg.DoEvenOdd {
		newTs.EvenFile = evenFile
		newTs.OddFile = oddFile
	}
	for _, inTi := range ts.SortedImages() {
		newTi := inTi.Clone()
		newTi.FileName = resultFile
		if p.cfg.DoEvenOdd {
			newTi.EvenFile = evenFile
			newTi.OddFile = oddFile
		}
		newTs.Append(newTi)
	}

	return p.outputs.Register(OutputName, newTs)
}

func (p *Protocol) mount(ts *tomo.TiltSeries, imagesDir, suffix string) (string, error) {
	p.logger.Infof("tsId = %s%s: mounting the stack file...", ts.TsID, suffix)

	outFile := p.layout.stackFile(ts.TsID, suffix)
	n, err := p.codec.Mount(imagesDir, outFile, p.samplingRate(ts))
	if err != nil {
		return "", &RestackError{TsID: ts.TsID, Dir: imagesDir, Err: err}
	}
	if n != ts.Len() {
		return "", &RestackError{
			TsID: ts.TsID,
			Dir:  imagesDir,
			Err:  errors.Errorf("mounted %d images, the tilt-series has %d", n, ts.Len()),
		}
	}

	return outFile, nil
}

// CloseOutputs closes the output collections once every tilt-series is registered.
func (p *Protocol) CloseOutputs(context.Context) error {
	return p.outputs.Close()
}
