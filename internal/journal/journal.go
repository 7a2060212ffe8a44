// Package journal persists the changes of an output collection on disk, so that an
// interrupted run can be resumed.
package journal

import (
	"os"
	"path/filepath"
	"reflect"
	"sync"

	"github.com/pkg/errors"
	"github.com/uncharted-causemos/dque"
	"github.com/vova616/xxhash"

	"github.com/askiada/go-fidder/pkg/tomo"
)

const segmentSize = 50

var ErrCorruptRecord = errors.New("journal record does not match its checksum")

// Op is the kind of change recorded.
type Op uint8

const (
	OpCreate Op = iota + 1
	OpAppend
	OpUpdate
	OpClose
)

type record struct {
	Op   Op
	Key  uint32
	Info tomo.SetInfo
	Item *tomo.TiltSeries
}

func recordBuilder() interface{} {
	return &record{}
}

// Key is the checksum stored with every member record. Replay rejects a record whose item
// does not match its key.
func Key(tsID string) uint32 {
	return xxhash.Checksum32([]byte(tsID))
}

// Journal is an append-only log of the changes of one collection.
type Journal struct {
	mu    sync.Mutex
	queue *dque.DQue
	name  string
}

// Open opens the journal name in dir, creating it if needed.
func Open(dir, name string) (*Journal, error) {
	var queue *dque.DQue

	_, err := os.Stat(filepath.Join(dir, name))
	switch {
	case os.IsNotExist(err):
		err = os.MkdirAll(dir, os.ModePerm)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to create journal dir %s", dir)
		}

		queue, err = dque.New(name, dir, segmentSize, recordBuilder)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to initialize journal %s/%s", dir, name)
		}
	case err != nil:
		return nil, errors.Wrapf(err, "failed to stat journal %s/%s", dir, name)
	default:
		queue, err = dque.Open(name, dir, segmentSize, recordBuilder)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to load journal %s/%s", dir, name)
		}
	}

	return &Journal{queue: queue, name: name}, nil
}

func (j *Journal) enqueue(rec *record) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	err := j.queue.Enqueue(rec)

	return errors.Wrapf(err, "failed to record change of %s", j.name)
}

// Created records the creation of the collection.
func (j *Journal) Created(info tomo.SetInfo) error {
	return j.enqueue(&record{Op: OpCreate, Info: info})
}

// Appended records a new member.
func (j *Journal) Appended(ts *tomo.TiltSeries) error {
	return j.enqueue(&record{Op: OpAppend, Key: Key(ts.TsID), Item: ts})
}

// Updated records a member rewrite.
func (j *Journal) Updated(ts *tomo.TiltSeries) error {
	return j.enqueue(&record{Op: OpUpdate, Key: Key(ts.TsID), Item: ts})
}

// Closed records the closing of the collection.
func (j *Journal) Closed() error {
	return j.enqueue(&record{Op: OpClose})
}

// Size returns the number of records.
func (j *Journal) Size() int {
	return j.queue.Size()
}

// Close flushes the journal to disk.
func (j *Journal) Close() error {
	return errors.Wrap(j.queue.Close(), "failed to close journal")
}

// State is a collection rebuilt from its journal.
type State struct {
	Info    tomo.SetInfo
	Items   []*tomo.TiltSeries
	Closed  bool
	Created bool

	index map[string]int
}

// Apply is called on each record of the journal, in order.
func (s *State) Apply(entry interface{}) error {
	rec, ok := entry.(*record)
	if !ok {
		return errors.Errorf("unexpected type %s", reflect.TypeOf(entry))
	}

	switch rec.Op {
	case OpCreate:
		s.Created = true
		s.Info = rec.Info
	case OpAppend, OpUpdate:
		if rec.Item == nil {
			return errors.Errorf("record %d without item", rec.Op)
		}
		if rec.Key != Key(rec.Item.TsID) {
			return errors.Wrapf(ErrCorruptRecord, "tsId %s", rec.Item.TsID)
		}
		if idx, ok := s.index[rec.Item.TsID]; ok {
			s.Items[idx] = rec.Item
			return nil
		}
		s.index[rec.Item.TsID] = len(s.Items)
		s.Items = append(s.Items, rec.Item)
	case OpClose:
		s.Closed = true
	default:
		return errors.Errorf("unknown journal op %d", rec.Op)
	}

	return nil
}

// Replay rebuilds the collection from the records.
func (j *Journal) Replay() (*State, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	state := &State{index: make(map[string]int)}
	err := j.queue.ApplyToQueue(state)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to replay journal %s", j.name)
	}

	return state, nil
}
