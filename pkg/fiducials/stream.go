package fiducials

import (
	"context"
	"sort"
	"time"

	"github.com/askiada/go-fidder/pkg/pipeline/model"
	"github.com/askiada/go-fidder/pkg/tomo"
)

// Poll watches the input and submits a chain for every new tilt-series with at least one
// image. Each tsId is submitted at most once; the ones already registered by a previous
// run are never submitted.
//
// Poll returns once the input is closed and every member was submitted, after submitting
// the step closing the outputs.
func (p *Protocol) Poll(ctx context.Context, sub model.Submitter) error {
	seen := p.outputs.RegisteredIDs()
	closeDeps := []model.Handle{}

	for {
		items, open, err := p.refreshInput()
		if err != nil {
			p.logger.Warnf("unable to refresh the input, retrying in %s: %v", p.cfg.PollInterval, err)
		} else {
			for _, ts := range items {
				if _, ok := seen[ts.TsID]; ok {
					continue
				}
				if ts.Len() == 0 {
					p.logger.Debugf("tsId = %s: no images yet", ts.TsID)

					continue
				}

				handle, err := p.submitChain(sub, ts)
				if err != nil {
					return err
				}
				seen[ts.TsID] = struct{}{}
				closeDeps = append(closeDeps, handle)
				p.logger.Infof("tsId = %s: new tilt-series submitted", ts.TsID)
			}

			if !open && allSeen(items, seen) {
				p.logger.Infof("input closed, %d tilt-series submitted", len(closeDeps))

				return p.submitClose(sub, closeDeps)
			}
		}

		timer := time.NewTimer(p.cfg.PollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()

			return ctx.Err()
		case <-timer.C:
		}
	}
}

// refreshInput reloads the input and reads its members and state in one critical section.
func (p *Protocol) refreshInput() ([]*tomo.TiltSeries, bool, error) {
	p.inputMu.Lock()
	defer p.inputMu.Unlock()

	err := p.input.Refresh()
	if err != nil {
		return nil, false, err
	}
	items := p.input.Items()
	sort.Slice(items, func(i, j int) bool {
		return items[i].TsID < items[j].TsID
	})

	return items, p.input.IsStreamOpen(), nil
}

func allSeen(items []*tomo.TiltSeries, seen map[string]struct{}) bool {
	for _, ts := range items {
		if _, ok := seen[ts.TsID]; !ok {
			return false
		}
	}

	return true
}
