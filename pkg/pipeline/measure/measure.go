package measure

import (
	"sync"
	"time"

	"github.com/askiada/go-fidder/pkg/pipeline/model"
)

type DefaultMeasure struct {
	mu    sync.RWMutex
	Steps map[string]Metric
}

func NewDefaultMeasure() *DefaultMeasure {
	return &DefaultMeasure{
		Steps: make(map[string]Metric),
	}
}

func (m *DefaultMeasure) AddMetric(step *model.StepInfo) Metric {
	mt := &DefaultMetric{
		mu:    &sync.Mutex{},
		stage: step.Stage,
		state: model.StepPending,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.Steps[step.Name] = mt

	return mt
}

// GetMetric returns nil when no metric was added for name.
func (m *DefaultMeasure) GetMetric(name string) Metric {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.Steps[name]
}

func (m *DefaultMeasure) AllMetrics() map[string]Metric {
	m.mu.RLock()
	defer m.mu.RUnlock()

	res := make(map[string]Metric, len(m.Steps))
	for name, mt := range m.Steps {
		res[name] = mt
	}

	return res
}

// StageAverages only counts steps that ran.
func (m *DefaultMeasure) StageAverages() map[string]time.Duration {
	totals := make(map[string]time.Duration)
	counts := make(map[string]int64)

	for _, mt := range m.AllMetrics() {
		state := mt.State()
		if state != model.StepDone && state != model.StepFailed {
			continue
		}
		totals[mt.Stage()] += mt.RunDuration()
		counts[mt.Stage()]++
	}

	res := make(map[string]time.Duration, len(totals))
	for stage, total := range totals {
		res[stage] = round(time.Duration(float64(total) / float64(counts[stage])))
	}

	return res
}

var _ Measure = (*DefaultMeasure)(nil)
