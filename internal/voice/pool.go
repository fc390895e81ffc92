// Package voice implements the fixed voice pool and the three-pass
// allocator described in spec.md §4.5 (C5). Apart from Build, which asks
// the backend for the voices once up front, the pool never calls into the
// backend; it only tracks which source name last bound each slot, leaving
// backend.CloseVoice to the caller so the scheduler stays
// backend-agnostic, same separation the teacher keeps
// between StreamManager and BufferManager in internal/audio/streaming.go.
package voice

import (
	"sync"

	"github.com/adkarpov/sona3d/internal/backend"
)

// slot is one element of a pool array.
type slot struct {
	handle     backend.Voice
	hasHandle  bool
	lastSource string
}

// IsPlayingFunc reports whether the voice currently bound to a slot is
// producing sound. Passed in by the caller (the dispatcher) since only it
// knows the registry's Source.Playing() state.
type IsPlayingFunc func(sourceName string) bool

// IsPriorityFunc reports whether the source currently bound to a slot is
// priority (exempt from non-priority eviction).
type IsPriorityFunc func(sourceName string) bool

// Pool is one of the two fixed arrays described by spec.md's VoicePool
// (normal[NN] or streaming[NS]), plus its round-robin cursor. Binding
// state is mutated only by the dispatcher worker, but read by metrics
// snapshots on caller threads, hence the mutex.
type Pool struct {
	mu     sync.Mutex
	kind   backend.Kind
	slots  []slot
	cursor int
}

// NewPool creates a pool of size voices pre-bound to backend handles.
func NewPool(kind backend.Kind, handles []backend.Voice) *Pool {
	slots := make([]slot, len(handles))
	for i, h := range handles {
		slots[i] = slot{handle: h, hasHandle: true}
	}
	return &Pool{kind: kind, slots: slots}
}

// Len returns the number of slots in the pool.
func (p *Pool) Len() int { return len(p.slots) }

// LastSource returns the name of the source last bound to slot i, or "".
func (p *Pool) LastSource(i int) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.slots[i].lastSource
}

// Handle returns the backend voice handle at slot i. Handles are fixed
// at construction, so no lock is needed.
func (p *Pool) Handle(i int) backend.Voice { return p.slots[i].handle }

// FindBySource returns the slot index currently bound to sourceName, if any.
func (p *Pool) FindBySource(sourceName string) (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.findLocked(sourceName)
}

func (p *Pool) findLocked(sourceName string) (int, bool) {
	for i := range p.slots {
		if p.slots[i].lastSource == sourceName {
			return i, true
		}
	}
	return 0, false
}

// Allocate runs the three-pass algorithm from spec.md §4.5 and returns the
// slot index to use, or ok=false if every slot is ineligible.
//
//  1. Re-bind: a slot already bound to sourceName wins immediately.
//  2. First slot with an empty or non-playing last source.
//  3. First slot whose current source is non-priority or not playing
//     (eviction).
//  4. None.
//
// Whenever a slot changes hands (pass 2 over a finished source, or a
// pass-3 steal), evicted=true and evictedSource names the displaced
// source so the caller can sever its voice link; a dangling link would
// break the one-source-per-voice invariant.
func (p *Pool) Allocate(sourceName string, isPlaying IsPlayingFunc, isPriority IsPriorityFunc) (idx int, evicted bool, evictedSource string, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.slots)
	if n == 0 {
		return 0, false, "", false
	}

	if i, found := p.findLocked(sourceName); found {
		return i, false, "", true
	}

	for pass := 0; pass < n; pass++ {
		i := (p.cursor + pass) % n
		s := &p.slots[i]
		if s.lastSource == "" || !isPlaying(s.lastSource) {
			prev := s.lastSource
			p.bind(i, sourceName)
			p.cursor = (i + 1) % n
			return i, prev != "", prev, true
		}
	}

	for pass := 0; pass < n; pass++ {
		i := (p.cursor + pass) % n
		s := &p.slots[i]
		if !isPriority(s.lastSource) || !isPlaying(s.lastSource) {
			prev := s.lastSource
			p.bind(i, sourceName)
			p.cursor = (i + 1) % n
			return i, true, prev, true
		}
	}

	return 0, false, "", false
}

func (p *Pool) bind(i int, sourceName string) {
	p.slots[i].lastSource = sourceName
}

// Unbind clears the last-source link for slot i without touching the
// backend handle (eviction "does not destroy the previous Source entry;
// it only disconnects", spec.md §4.5).
func (p *Pool) Unbind(i int) {
	p.mu.Lock()
	p.slots[i].lastSource = ""
	p.mu.Unlock()
}
