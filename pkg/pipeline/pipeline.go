package pipeline

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dominikbraun/graph"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/askiada/go-fidder/internal/gpu"
	"github.com/askiada/go-fidder/internal/store"
	"github.com/askiada/go-fidder/pkg/pipeline/model"
)

const stateAttribute = "state"

type node struct {
	info      *model.StepInfo
	fn        model.StepFunc
	parents   []*node
	done      chan struct{}
	submitted time.Time

	mu    sync.Mutex
	state model.StepState
	err   error
}

func (n *node) getState() (model.StepState, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.state, n.err
}

// Pipeline is a graph of steps executed as soon as their prerequisites are done.
//
// Steps can be submitted before Run, or while it runs from inside a running step. The
// latter is how a step extends the graph with work it discovers.
type Pipeline struct {
	mu       sync.Mutex
	graph    graph.Graph[string, *model.StepInfo]
	store    store.CustomStore[string, *model.StepInfo]
	nodes    map[string]*node
	pending  []*node
	ctx      context.Context
	running  bool
	finished bool

	opts       []model.PipelineOption
	errs       *stepErrors
	logger     *zap.SugaredLogger
	gpus       *gpu.Pool
	threads    *semaphore.Weighted
	concurrent int
	grp        errgroup.Group
	startTime  time.Time
}

func stepHash(step *model.StepInfo) string {
	return step.Name
}

// New creates a new pipeline.
func New(opts ...Option) (*Pipeline, error) {
	st := store.NewMemoryStore[string, *model.StepInfo]()
	pipe := &Pipeline{
		store:      st,
		graph:      graph.NewWithStore[string, *model.StepInfo](stepHash, st, graph.Directed(), graph.Acyclic(), graph.PreventCycles()),
		nodes:      make(map[string]*node),
		errs:       &stepErrors{},
		logger:     zap.NewNop().Sugar(),
		concurrent: 1,
		startTime:  time.Now(),
	}

	for _, opt := range opts {
		opt(pipe)
	}
	pipe.threads = semaphore.NewWeighted(int64(pipe.concurrent))

	for _, opt := range pipe.opts {
		err := opt.New()
		if err != nil {
			return nil, errors.Wrap(err, "unable to apply pipeline option")
		}
	}

	return pipe, nil
}

// Submit adds a step to the graph. The step starts once all prerequisites are done; if
// one of them fails or is skipped, the step is skipped.
func (p *Pipeline) Submit(step *model.StepInfo, stepFn model.StepFunc, prerequisites ...model.Handle) (model.Handle, error) {
	if p == nil {
		return "", ErrPipelineMustBeSet
	}
	if step == nil {
		return "", ErrStepMustBeSet
	}
	if stepFn == nil {
		return "", errors.Wrap(ErrStepFnMustBeSet, step.Name)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.finished {
		return "", ErrPipelineFinished
	}
	if _, ok := p.nodes[step.Name]; ok {
		return "", errors.Wrap(ErrStepAlreadyExists, step.Name)
	}

	parents := make([]*node, 0, len(prerequisites))
	parentInfos := make([]*model.StepInfo, 0, len(prerequisites))
	seen := make(map[model.Handle]struct{}, len(prerequisites))
	for _, handle := range prerequisites {
		if _, ok := seen[handle]; ok {
			continue
		}
		seen[handle] = struct{}{}

		parent, ok := p.nodes[string(handle)]
		if !ok {
			return "", errors.Wrapf(ErrUnknownPrerequisite, "%s for %s", handle, step.Name)
		}
		parents = append(parents, parent)
		parentInfos = append(parentInfos, parent.info)
	}

	err := p.graph.AddVertex(step, graph.VertexAttribute(stateAttribute, string(model.StepPending)))
	if err != nil {
		return "", errors.Wrapf(err, "unable to add step %s", step.Name)
	}
	for _, parent := range parents {
		err = p.graph.AddEdge(parent.info.Name, step.Name)
		if err != nil {
			return "", errors.Wrapf(err, "unable to link %s to %s", parent.info.Name, step.Name)
		}
	}

	for _, opt := range p.opts {
		err = opt.PrepareStep(parentInfos, step)
		if err != nil {
			return "", errors.Wrap(err, "unable to run prepare step function")
		}
	}

	n := &node{
		info:      step,
		fn:        stepFn,
		parents:   parents,
		done:      make(chan struct{}),
		submitted: time.Now(),
		state:     model.StepPending,
	}
	p.nodes[step.Name] = n

	if p.running {
		p.start(n)
	} else {
		p.pending = append(p.pending, n)
	}

	return model.Handle(step.Name), nil
}

// Run starts the pipeline and waits for every step to reach a terminal state.
//
// A failing step does not stop the others: only its dependents are skipped. The returned
// error combines the errors of all failed steps.
func (p *Pipeline) Run(ctx context.Context) error {
	p.mu.Lock()
	if p.running || p.finished {
		p.mu.Unlock()

		return ErrAlreadyRunning
	}
	p.running = true
	p.ctx = ctx
	for _, n := range p.pending {
		p.start(n)
	}
	p.pending = nil
	p.mu.Unlock()

	if p.gpus != nil {
		p.logger.Infof("pipeline started with %d concurrent steps and %d GPUs", p.concurrent, p.gpus.Size())
	} else {
		p.logger.Infof("pipeline started with %d concurrent steps", p.concurrent)
	}

	// Wait for all steps to finish. Steps submitted by running steps are waited for too.
	_ = p.grp.Wait()

	p.mu.Lock()
	p.running = false
	p.finished = true
	p.mu.Unlock()

	counts := p.Counts()
	p.logger.Infof("pipeline finished in %s: %d done, %d failed, %d skipped",
		time.Since(p.startTime).Round(time.Millisecond), counts[model.StepDone], counts[model.StepFailed], counts[model.StepSkipped])

	err := p.errs.combined()
	if ctx.Err() != nil {
		err = multierr.Append(err, ctx.Err())
	}

	return multierr.Append(err, p.finishRun())
}

func (p *Pipeline) finishRun() error {
	for _, opt := range p.opts {
		err := opt.Finish()
		if err != nil {
			return errors.Wrap(err, "unable to finish pipeline option")
		}
	}

	return nil
}

// start must be called with p.mu held.
func (p *Pipeline) start(n *node) {
	ctx := p.ctx
	p.grp.Go(func() error {
		p.execute(ctx, n)

		return nil
	})
}

func (p *Pipeline) execute(ctx context.Context, n *node) {
	defer close(n.done)

	for _, parent := range n.parents {
		select {
		case <-ctx.Done():
			p.end(n, model.StepSkipped, 0, nil)

			return
		case <-parent.done:
		}
		state, _ := parent.getState()
		if state != model.StepDone {
			p.logger.Warnf("step %s skipped: prerequisite %s is %s", n.info.Name, parent.info.Name, state)
			p.end(n, model.StepSkipped, 0, nil)

			return
		}
	}

	stepCtx := ctx
	if n.info.GPU && p.gpus != nil {
		device, err := p.gpus.Acquire(ctx)
		if err != nil {
			p.end(n, model.StepSkipped, 0, nil)

			return
		}
		defer p.gpus.Release(device)
		stepCtx = gpu.WithDevice(ctx, device)
	}

	if !n.info.Watcher {
		err := p.threads.Acquire(ctx, 1)
		if err != nil {
			p.end(n, model.StepSkipped, 0, nil)

			return
		}
		defer p.threads.Release(1)
	}

	for _, opt := range p.opts {
		hookErr := opt.OnStepStart(n.info, time.Since(n.submitted))
		if hookErr != nil {
			p.errs.add(n.info.Name, errors.Wrap(hookErr, "unable to run step start function"))
		}
	}
	p.setState(n, model.StepRunning, nil)

	startFn := time.Now()
	err := n.fn(stepCtx)
	if err != nil {
		p.logger.Errorw("step failed", "step", n.info.Name, "error", err)
		p.errs.add(n.info.Name, err)
		p.end(n, model.StepFailed, time.Since(startFn), err)

		return
	}
	p.end(n, model.StepDone, time.Since(startFn), nil)
}

func (p *Pipeline) setState(n *node, state model.StepState, err error) {
	n.mu.Lock()
	n.state = state
	n.err = err
	n.mu.Unlock()

	updateErr := p.store.UpdateVertex(n.info.Name, graph.VertexAttribute(stateAttribute, string(state)))
	if updateErr != nil {
		p.logger.Warnf("unable to record state of %s: %v", n.info.Name, updateErr)
	}
}

func (p *Pipeline) end(n *node, state model.StepState, runDuration time.Duration, err error) {
	p.setState(n, state, err)
	for _, opt := range p.opts {
		hookErr := opt.OnStepEnd(n.info, state, runDuration)
		if hookErr != nil {
			p.errs.add(n.info.Name, errors.Wrap(hookErr, "unable to run step end function"))
		}
	}
}

// StepStatus is a snapshot of a step.
type StepStatus struct {
	model.StepInfo
	State         model.StepState `json:"state"`
	Error         string          `json:"error,omitempty"`
	Prerequisites []string        `json:"prerequisites,omitempty"`
}

// Steps returns the status of every step, in a stable topological order.
func (p *Pipeline) Steps() ([]StepStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	order, err := graph.StableTopologicalSort(p.graph, func(a, b string) bool {
		return a < b
	})
	if err != nil {
		return nil, errors.Wrap(err, "unable to sort steps")
	}

	res := make([]StepStatus, 0, len(order))
	for _, name := range order {
		n := p.nodes[name]
		state, err := p.store.VertexAttribute(name, stateAttribute)
		if err != nil {
			return nil, errors.Wrapf(err, "unable to get state of %s", name)
		}
		_, stepErr := n.getState()
		status := StepStatus{StepInfo: *n.info, State: model.StepState(state)}
		if stepErr != nil {
			status.Error = stepErr.Error()
		}
		preds, err := p.store.Predecessors(name)
		if err != nil {
			return nil, errors.Wrapf(err, "unable to get prerequisites of %s", name)
		}
		sort.Strings(preds)
		status.Prerequisites = preds
		res = append(res, status)
	}

	return res, nil
}

// Counts returns the number of steps per state.
func (p *Pipeline) Counts() map[model.StepState]int {
	p.mu.Lock()
	defer p.mu.Unlock()

	counts := make(map[model.StepState]int)
	for _, n := range p.nodes {
		state, _ := n.getState()
		counts[state]++
	}

	return counts
}

// State returns the state of the step referenced by handle.
func (p *Pipeline) State(handle model.Handle) (model.StepState, error) {
	p.mu.Lock()
	n, ok := p.nodes[string(handle)]
	p.mu.Unlock()
	if !ok {
		return "", errors.Wrap(ErrUnknownPrerequisite, string(handle))
	}
	state, _ := n.getState()

	return state, nil
}

var _ model.Submitter = (*Pipeline)(nil)
