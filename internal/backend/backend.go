// Package backend defines the capability contract (spec.md §4.3) behind
// which interchangeable audio backends plug in. The core never dispatches
// on backend subtype; it only ever calls through this interface, keyed on
// an opaque Voice handle.
package backend

import (
	"errors"

	"github.com/adkarpov/sona3d/internal/clipcache"
	"github.com/adkarpov/sona3d/internal/geometry"
)

// Kind distinguishes the two voice pools (spec.md §3 VoicePool).
type Kind int

const (
	// Normal voices play one-shot clips loaded in full.
	Normal Kind = iota
	// Streaming voices are fed PCM chunks incrementally by the pump.
	Streaming
)

func (k Kind) String() string {
	if k == Streaming {
		return "streaming"
	}
	return "normal"
}

// Voice is an opaque backend-assigned handle. The zero Voice is never
// valid; CreateVoice returns ok=false instead of the zero value on
// exhaustion.
type Voice uint32

// Error kinds a Backend may return, per spec.md §4.3.
var (
	ErrUnsupported = errors.New("backend: unsupported operation")
	ErrLineBusy    = errors.New("backend: line busy")
	ErrFormat      = errors.New("backend: unsupported format")
	ErrIO          = errors.New("backend: i/o failure")
)

// Backend is the capability contract every concrete audio output
// implements. All methods except AttachOneshot/Preload/Open/Close are
// assumed non-blocking (spec.md §5); the engine never holds registry_lock
// or watch_list_lock while calling into one of these.
type Backend interface {
	// Name identifies the backend for logging and Init's priority list.
	Name() string

	// IsSupported reports whether this backend can run on the current
	// host, without side effects. Checked before Open during selection.
	IsSupported() bool

	// Open acquires the device and allocates any shared state. Called
	// once during Init after selection.
	Open() error

	// Close releases the device and all outstanding voices.
	Close() error

	// CreateVoice allocates one voice slot of the given kind. Returns
	// ok=false if the backend has no more voices to give (spec.md §4.3:
	// "scheduler must tolerate pools smaller than requested").
	CreateVoice(kind Kind) (v Voice, ok bool)

	// AttachOneshot loads an entire clip into voice for one-shot
	// playback. May perform up to one audio-driver syscall.
	AttachOneshot(v Voice, clip *clipcache.Clip) error

	// ResetStream prepares voice for a fresh streaming session in the
	// given format, discarding any previously queued data.
	ResetStream(v Voice, format clipcache.ClipFormat) error

	// Preload submits the initial ring of chunks for a streaming voice.
	// eos is true when chunks is empty, i.e. there was nothing to queue
	// (the zero-length clip boundary case); a short clip that fills only
	// part of the ring still reports false.
	Preload(v Voice, chunks [][]byte) (eos bool, err error)

	// Queue appends one more chunk to voice's streaming ring.
	Queue(v Voice, chunk []byte) error

	// BuffersProcessed returns how many previously queued/preloaded
	// chunks the backend has finished consuming since the last call.
	BuffersProcessed(v Voice) int

	// Play starts or resumes playback on voice.
	Play(v Voice)

	// Pause suspends playback, retaining position.
	Pause(v Voice)

	// Stop halts playback and rewinds voice to the start.
	Stop(v Voice)

	// Rewind resets voice's playback position to the start without
	// changing its play/pause state.
	Rewind(v Voice)

	// Flush drops any queued-but-unplayed data from voice.
	Flush(v Voice)

	// CloseVoice stops and flushes voice, releasing it back to the pool
	// for rebinding (it is not destroyed; voices live until backend
	// Close).
	CloseVoice(v Voice)

	// IsPlaying reports whether voice is actively producing sound.
	IsPlaying(v Voice) bool

	// SetGain sets linear gain in [0,1]. May be a no-op on backends
	// that only support native 3D attenuation.
	SetGain(v Voice, g float32)

	// SetPan sets stereo pan in [-1,1]. No-op on backends without a
	// stereo panner (e.g. a native-3D backend computes its own).
	SetPan(v Voice, p float32)

	// Set3D pushes raw position/rolloff/looping to backends with
	// native 3D support. No-op otherwise.
	Set3D(v Voice, pos geometry.Vec3, rolloff float32, looping bool)

	// SetListener pushes listener pose to backends that consume it
	// natively. No-op where not applicable.
	SetListener(pos, look, up geometry.Vec3)

	// SetMasterGain sets the process-wide master gain in [0,1].
	SetMasterGain(g float32)
}
