package pipeline

import (
	"go.uber.org/zap"

	"github.com/askiada/go-fidder/internal/gpu"
	"github.com/askiada/go-fidder/pkg/pipeline/model"
)

type Option func(p *Pipeline)

// Concurrency sets how many steps may run at the same time. Values below 1 mean 1.
func Concurrency(concurrent int) Option {
	return func(p *Pipeline) {
		if concurrent < 1 {
			concurrent = 1
		}
		p.concurrent = concurrent
	}
}

// GPUs hands a device of pool to every GPU step. Without a pool GPU steps run with no
// device in their context.
func GPUs(pool *gpu.Pool) Option {
	return func(p *Pipeline) {
		p.gpus = pool
	}
}

// Logger sets the pipeline logger.
func Logger(logger *zap.SugaredLogger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// Hooks registers pipeline options that follow the life of every step.
func Hooks(opts ...model.PipelineOption) Option {
	return func(p *Pipeline) {
		p.opts = append(p.opts, opts...)
	}
}
