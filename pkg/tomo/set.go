package tomo

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
)

var (
	ErrSetClosed     = errors.New("set is closed")
	ErrNotAppendable = errors.New("set is not in append mode")
	ErrDuplicateItem = errors.New("item already in set")
	ErrItemNotFound  = errors.New("item not found in set")
)

// StreamState tells whether a set may still grow.
type StreamState string

const (
	StreamOpen   StreamState = "open"
	StreamClosed StreamState = "closed"
)

// SetInfo is the metadata shared by all members of a set.
type SetInfo struct {
	Name         string      `json:"name"`
	SamplingRate float64     `json:"samplingRate"`
	Acquisition  Acquisition `json:"acquisition"`
	OddEven      bool        `json:"hasOddEven"`
}

// Set is a growable collection of tilt-series keyed by tsId.
//
// All methods are safe for concurrent use. Reads return clones so callers never observe
// a member while another goroutine rewrites it.
type Set struct {
	mu         sync.RWMutex
	info       SetInfo
	state      StreamState
	appendable bool
	items      []*TiltSeries
	index      map[string]int
}

// NewSet creates an empty open set in append mode.
func NewSet(info SetInfo) *Set {
	return &Set{
		info:       info,
		state:      StreamOpen,
		appendable: true,
		index:      make(map[string]int),
	}
}

// Info returns the set metadata.
func (s *Set) Info() SetInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.info
}

// CopyInfo copies the metadata of other, keeping the set name.
func (s *Set) CopyInfo(other SetInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := s.info.Name
	s.info = other
	s.info.Name = name
}

// HasOddEven reports whether the set carries odd/even metadata.
func (s *Set) HasOddEven() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.info.OddEven
}

// SamplingRate returns the pixel size in Å/px.
func (s *Set) SamplingRate() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.info.SamplingRate
}

// StreamState returns the current stream state.
func (s *Set) StreamState() StreamState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.state
}

// IsStreamOpen reports whether more members may still arrive.
func (s *Set) IsStreamOpen() bool {
	return s.StreamState() == StreamOpen
}

// Refresh is a no-op for in-memory sets; members are visible as soon as they are appended.
func (s *Set) Refresh() error {
	return nil
}

// EnableAppend puts an existing open set back in append mode.
func (s *Set) EnableAppend() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StreamClosed {
		return ErrSetClosed
	}
	s.appendable = true

	return nil
}

// Append adds ts to the set.
func (s *Set) Append(ts *TiltSeries) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StreamClosed {
		return ErrSetClosed
	}
	if !s.appendable {
		return ErrNotAppendable
	}
	if _, ok := s.index[ts.TsID]; ok {
		return errors.Wrap(ErrDuplicateItem, ts.TsID)
	}
	s.index[ts.TsID] = len(s.items)
	s.items = append(s.items, ts.Clone())

	return nil
}

// Update replaces the member with the same tsId.
func (s *Set) Update(ts *TiltSeries) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StreamClosed {
		return ErrSetClosed
	}
	idx, ok := s.index[ts.TsID]
	if !ok {
		return errors.Wrap(ErrItemNotFound, ts.TsID)
	}
	s.items[idx] = ts.Clone()

	return nil
}

// Close marks the stream as closed. No further appends are accepted.
func (s *Set) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = StreamClosed
	s.appendable = false
}

// Contains reports whether a member with tsID exists.
func (s *Set) Contains(tsID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.index[tsID]

	return ok
}

// Item returns a clone of the member with tsID.
func (s *Set) Item(tsID string) (*TiltSeries, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, ok := s.index[tsID]
	if !ok {
		return nil, false
	}

	return s.items[idx].Clone(), true
}

// Items returns clones of all members in insertion order.
func (s *Set) Items() []*TiltSeries {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res := make([]*TiltSeries, len(s.items))
	for i, ts := range s.items {
		res[i] = ts.Clone()
	}

	return res
}

// IDs returns the sorted tsIds of all members.
func (s *Set) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.index))
	for id := range s.index {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	return ids
}

// Len returns the number of members.
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.items)
}

// Sync replaces the whole content of the set in a single critical section. It is used by
// loaders that re-read the members from an upstream source.
func (s *Set) Sync(info SetInfo, items []*TiltSeries, state StreamState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.info = info
	s.state = state
	s.items = make([]*TiltSeries, 0, len(items))
	s.index = make(map[string]int, len(items))
	for _, ts := range items {
		if idx, ok := s.index[ts.TsID]; ok {
			s.items[idx] = ts.Clone()
			continue
		}
		s.index[ts.TsID] = len(s.items)
		s.items = append(s.items, ts.Clone())
	}
}
