package drawer

import (
	"time"

	"github.com/askiada/go-fidder/pkg/pipeline/measure"
	"github.com/askiada/go-fidder/pkg/pipeline/model"
)

// Drawer is an interface that defines the methods for drawing a pipeline.
type Drawer interface {
	// AddStep adds a step to the pipeline drawer.
	AddStep(step *model.StepInfo) error
	// AddLink adds a link between a prerequisite and the step depending on it.
	AddLink(parentStepName, childStepName string) error
	// Draw creates a file with the pipeline graph.
	Draw() error
	// SetTotalTime labels the graph with the time elapsed since startTime.
	SetTotalTime(startTime time.Time) error
	// AddMeasure adds a measure to the pipeline drawer.
	AddMeasure(measure measure.Measure) error
}
