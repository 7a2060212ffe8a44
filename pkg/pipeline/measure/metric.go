package measure

import (
	"sync"
	"time"

	"github.com/askiada/go-fidder/pkg/pipeline/model"
)

type DefaultMetric struct {
	mu          *sync.Mutex
	stage       string
	state       model.StepState
	waitElapsed time.Duration
	runElapsed  time.Duration
}

func (mt *DefaultMetric) SetWaitDuration(elapsed time.Duration) {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	mt.waitElapsed = elapsed
}

func (mt *DefaultMetric) SetRunDuration(elapsed time.Duration) {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	mt.runElapsed = elapsed
}

func (mt *DefaultMetric) SetState(state model.StepState) {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	mt.state = state
}

func (mt *DefaultMetric) WaitDuration() time.Duration {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	return round(mt.waitElapsed)
}

func (mt *DefaultMetric) RunDuration() time.Duration {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	return round(mt.runElapsed)
}

func (mt *DefaultMetric) State() model.StepState {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	return mt.state
}

func (mt *DefaultMetric) Stage() string {
	return mt.stage
}

func round(d time.Duration) time.Duration {
	switch {
	case d > time.Hour:
		d = d.Round(time.Minute)
	case d > time.Second:
		d = d.Round(time.Second)
	case d > time.Millisecond:
		d = d.Round(time.Millisecond)
	case d > time.Microsecond:
		d = d.Round(time.Microsecond)
	}

	return d
}

var _ Metric = (*DefaultMetric)(nil)
