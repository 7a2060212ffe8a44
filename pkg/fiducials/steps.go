package fiducials

import (
	"context"
	"sort"

	"github.com/pkg/errors"

	"github.com/askiada/go-fidder/pkg/pipeline/model"
	"github.com/askiada/go-fidder/pkg/tomo"
)

// Stages of the step graph.
const (
	StageUnstack         = "unstack"
	StagePredictAndErase = "predictAndErase"
	StageRegister        = "register"
	StageCloseOutputs    = "closeOutputs"
	StagePoll            = "poll"
)

func stepInfo(stage, tsID string, gpu bool) *model.StepInfo {
	return &model.StepInfo{
		Name:  stage + " " + tsID,
		Group: tsID,
		Stage: stage,
		GPU:   gpu,
	}
}

// Start submits the work of the protocol: every chain at once in batch mode, or a poller
// that submits chains as tilt-series arrive in streaming mode.
//
// Outputs closed by a previous run are never reopened: nothing is submitted and the
// tilt-series they miss are only reported.
func (p *Protocol) Start(sub model.Submitter) error {
	if p.outputs.Closed() {
		registered := p.outputs.RegisteredIDs()
		p.inputMu.Lock()
		items := p.input.Items()
		p.inputMu.Unlock()
		for _, ts := range items {
			if _, ok := registered[ts.TsID]; !ok {
				p.logger.Warnf("tsId = %s: not processed, the outputs were closed by a previous run", ts.TsID)
			}
		}

		return nil
	}

	if !p.cfg.Streaming {
		return p.Build(sub)
	}

	_, err := sub.Submit(&model.StepInfo{Name: StagePoll, Stage: StagePoll, Watcher: true}, func(ctx context.Context) error {
		return p.Poll(ctx, sub)
	})

	return errors.Wrap(err, "unable to submit the poller")
}

// Build submits one chain per input tilt-series, then the step closing the outputs once
// every chain is registered. Tilt-series already present in an output collection, from a
// previous run, are skipped.
func (p *Protocol) Build(sub model.Submitter) error {
	registered := p.outputs.RegisteredIDs()

	p.inputMu.Lock()
	items := p.input.Items()
	p.inputMu.Unlock()
	sort.Slice(items, func(i, j int) bool {
		return items[i].TsID < items[j].TsID
	})

	closeDeps := make([]model.Handle, 0, len(items))
	for _, ts := range items {
		if _, ok := registered[ts.TsID]; ok {
			p.logger.Infof("tsId = %s: already registered, skipping", ts.TsID)

			continue
		}

		handle, err := p.submitChain(sub, ts)
		if err != nil {
			return err
		}
		closeDeps = append(closeDeps, handle)
	}

	return p.submitClose(sub, closeDeps)
}

// submitChain submits unstack, predict and erase, then register for ts and returns the
// handle of the register step.
func (p *Protocol) submitChain(sub model.Submitter, ts *tomo.TiltSeries) (model.Handle, error) {
	p.track(ts)
	tsID := ts.TsID

	unstack, err := sub.Submit(stepInfo(StageUnstack, tsID, false), func(ctx context.Context) error {
		return p.Unstack(ctx, tsID)
	})
	if err != nil {
		return "", errors.Wrapf(err, "tsId = %s: unable to submit the unstack step", tsID)
	}

	predict, err := sub.Submit(stepInfo(StagePredictAndErase, tsID, true), func(ctx context.Context) error {
		return p.PredictAndErase(ctx, tsID)
	}, unstack)
	if err != nil {
		return "", errors.Wrapf(err, "tsId = %s: unable to submit the predict step", tsID)
	}

	register, err := sub.Submit(stepInfo(StageRegister, tsID, false), func(ctx context.Context) error {
		return p.Register(ctx, tsID)
	}, predict)
	if err != nil {
		return "", errors.Wrapf(err, "tsId = %s: unable to submit the register step", tsID)
	}

	return register, nil
}

func (p *Protocol) submitClose(sub model.Submitter, prerequisites []model.Handle) error {
	_, err := sub.Submit(&model.StepInfo{Name: StageCloseOutputs, Stage: StageCloseOutputs}, p.CloseOutputs, prerequisites...)

	return errors.Wrap(err, "unable to submit the close step")
}
