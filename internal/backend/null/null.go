// Package null implements the silent fallback backend (spec.md §4.3):
// every operation succeeds without producing sound. It is selected when
// no configured backend reports itself supported.
package null

import (
	"sync"

	"github.com/adkarpov/sona3d/internal/backend"
	"github.com/adkarpov/sona3d/internal/clipcache"
	"github.com/adkarpov/sona3d/internal/geometry"
)

// Backend is the Null audio backend.
type Backend struct {
	mu     sync.Mutex
	next   backend.Voice
	opened bool
}

// New returns a Null backend. It is always supported and never fails to
// open, by design (spec.md §4.3: "used as fallback").
func New() *Backend {
	return &Backend{}
}

func (b *Backend) Name() string       { return "null" }
func (b *Backend) IsSupported() bool  { return true }
func (b *Backend) Open() error        { b.mu.Lock(); b.opened = true; b.mu.Unlock(); return nil }
func (b *Backend) Close() error       { b.mu.Lock(); b.opened = false; b.mu.Unlock(); return nil }

func (b *Backend) CreateVoice(_ backend.Kind) (backend.Voice, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	return b.next, true
}

func (b *Backend) AttachOneshot(_ backend.Voice, _ *clipcache.Clip) error { return nil }
func (b *Backend) ResetStream(_ backend.Voice, _ clipcache.ClipFormat) error { return nil }

func (b *Backend) Preload(_ backend.Voice, chunks [][]byte) (bool, error) {
	return len(chunks) == 0, nil
}

func (b *Backend) Queue(_ backend.Voice, _ []byte) error { return nil }
func (b *Backend) BuffersProcessed(_ backend.Voice) int  { return 0 }
func (b *Backend) Play(_ backend.Voice)                  {}
func (b *Backend) Pause(_ backend.Voice)                 {}
func (b *Backend) Stop(_ backend.Voice)                  {}
func (b *Backend) Rewind(_ backend.Voice)                {}
func (b *Backend) Flush(_ backend.Voice)                 {}
func (b *Backend) CloseVoice(_ backend.Voice)            {}
func (b *Backend) IsPlaying(_ backend.Voice) bool        { return false }
func (b *Backend) SetGain(_ backend.Voice, _ float32)    {}
func (b *Backend) SetPan(_ backend.Voice, _ float32)     {}

func (b *Backend) Set3D(_ backend.Voice, _ geometry.Vec3, _ float32, _ bool) {}
func (b *Backend) SetListener(_, _, _ geometry.Vec3)                        {}
func (b *Backend) SetMasterGain(_ float32)                                  {}

var _ backend.Backend = (*Backend)(nil)
