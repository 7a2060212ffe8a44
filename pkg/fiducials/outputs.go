package fiducials

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/askiada/go-fidder/pkg/tomo"
)

// Names of the output collections.
const (
	OutputName       = "tiltSeries"
	FailedOutputName = "failedTiltSeries"
)

// Recorder persists the changes made to an output collection.
type Recorder interface {
	Created(info tomo.SetInfo) error
	Appended(ts *tomo.TiltSeries) error
	Updated(ts *tomo.TiltSeries) error
	Closed() error
}

// Outputs manages the success and failure collections.
//
// Collections are created on first use with the metadata of the input. Every change goes
// through a single lock covering the existence check, the change and its persistence.
type Outputs struct {
	mu        sync.Mutex
	info      tomo.SetInfo
	sets      map[string]*tomo.Set
	recorders map[string]Recorder
	logger    *zap.SugaredLogger
}

// NewOutputs creates the manager. info is the metadata of the input collection.
func NewOutputs(info tomo.SetInfo, logger *zap.SugaredLogger) *Outputs {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	return &Outputs{
		info:      info,
		sets:      make(map[string]*tomo.Set),
		recorders: make(map[string]Recorder),
		logger:    logger,
	}
}

// Record persists every later change of the collection name through rec.
func (o *Outputs) Record(name string, rec Recorder) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.recorders[name] = rec
}

// Restore loads the members of a collection saved by a previous run. A collection that run
// closed stays closed; an open one keeps accepting members.
func (o *Outputs) Restore(name string, info tomo.SetInfo, items []*tomo.TiltSeries, closed bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	info.Name = name
	state := tomo.StreamOpen
	if closed {
		state = tomo.StreamClosed
	}
	set := tomo.NewSet(info)
	set.Sync(info, items, state)
	o.sets[name] = set
	o.logger.Infof("restored %d tilt-series in %s (%s)", set.Len(), name, state)
}

// Closed reports whether a collection was already closed, by this run or a previous one.
func (o *Outputs) Closed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	for _, set := range o.sets {
		if !set.IsStreamOpen() {
			return true
		}
	}

	return false
}

// Register adds ts to the collection name, creating the collection if needed. Registering
// the same tsId twice updates the member instead of adding a second one.
//
// Every change is persisted before it is applied, so a failed write leaves the collection
// as the recorder last saw it.
func (o *Outputs) Register(name string, ts *tomo.TiltSeries) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	rec := o.recorders[name]

	set, ok := o.sets[name]
	if ok {
		err := set.EnableAppend()
		if err != nil {
			return errors.Wrapf(err, "unable to append to %s", name)
		}
	} else {
		info := o.info
		info.Name = name
		if rec != nil {
			err := rec.Created(info)
			if err != nil {
				return errors.Wrapf(err, "unable to persist creation of %s", name)
			}
		}
		set = tomo.NewSet(info)
		o.sets[name] = set
	}

	if set.Contains(ts.TsID) {
		if rec != nil {
			err := rec.Updated(ts)
			if err != nil {
				return errors.Wrapf(err, "unable to persist update of %s in %s", ts.TsID, name)
			}
		}

		return errors.Wrapf(set.Update(ts), "unable to update %s", name)
	}

	if rec != nil {
		err := rec.Appended(ts)
		if err != nil {
			return errors.Wrapf(err, "unable to persist %s in %s", ts.TsID, name)
		}
	}

	return errors.Wrapf(set.Append(ts), "unable to append to %s", name)
}

// Close closes every collection created so far. Closing is final.
func (o *Outputs) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	for _, name := range o.names() {
		set := o.sets[name]
		if !set.IsStreamOpen() {
			continue
		}
		if rec := o.recorders[name]; rec != nil {
			err := rec.Closed()
			if err != nil {
				return errors.Wrapf(err, "unable to persist closing of %s", name)
			}
		}

		set.Close()
		o.logger.Infof("output %s closed with %d tilt-series", name, set.Len())
	}

	return nil
}

// Set returns the collection name if it exists.
func (o *Outputs) Set(name string) (*tomo.Set, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	set, ok := o.sets[name]

	return set, ok
}

// RegisteredIDs returns the tsIds present in any collection.
func (o *Outputs) RegisteredIDs() map[string]struct{} {
	o.mu.Lock()
	defer o.mu.Unlock()

	res := make(map[string]struct{})
	for _, set := range o.sets {
		for _, id := range set.IDs() {
			res[id] = struct{}{}
		}
	}

	return res
}

// Sizes returns the number of members of each collection.
func (o *Outputs) Sizes() map[string]int {
	o.mu.Lock()
	defer o.mu.Unlock()

	res := make(map[string]int, len(o.sets))
	for name, set := range o.sets {
		res[name] = set.Len()
	}

	return res
}

func (o *Outputs) names() []string {
	names := make([]string, 0, len(o.sets))
	for name := range o.sets {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}
