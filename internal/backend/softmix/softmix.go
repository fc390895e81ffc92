// Package softmix implements spec.md's SoftwareMixer backend: no native
// 3D, so the engine computes gain and pan and this backend just applies
// them per voice, mirrored onto a gopxl/beep mixer driven through a
// single speaker device — the same device-ownership pattern the teacher
// uses in internal/audio/player.go (speaker.Init once, beep.Ctrl/volume
// per stream, speaker.Lock/Unlock around any live-pipeline mutation).
package softmix

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/adkarpov/sona3d/internal/backend"
	"github.com/adkarpov/sona3d/internal/clipcache"
	"github.com/adkarpov/sona3d/internal/geometry"
	"github.com/gopxl/beep"
	"github.com/gopxl/beep/effects"
	"github.com/gopxl/beep/speaker"
)

var (
	speakerOnce sync.Once
	speakerErr  error
)

const (
	minGainDB = -60.0
	maxGainDB = 0.0
	volBase   = 2.0
)

// voiceSlot is the backend-side state for one mixer voice.
type voiceSlot struct {
	kind    backend.Kind
	ctrl    *beep.Ctrl
	volume  *effects.Volume
	pan     *panStreamer
	queue   *queueStreamer // non-nil only for Streaming voices
	oneshot *pcmStreamer   // non-nil while a Normal voice holds a clip
	playing bool
	gen     uint64 // bumped on each AttachOneshot to invalidate stale Callback closures
}

// Backend is the SoftwareMixer implementation of backend.Backend.
type Backend struct {
	mu         sync.Mutex
	sampleRate beep.SampleRate
	bufferSize int
	opened     bool
	mixer      *beep.Mixer
	voices     map[backend.Voice]*voiceSlot
	nextVoice  backend.Voice
	maxVoices  int
}

// New returns a SoftwareMixer backend targeting sampleRate Hz with the
// given callback buffer size in samples (0 or less uses 200ms worth).
// maxVoices bounds how many voices CreateVoice will hand out (0 means
// unbounded).
func New(sampleRate, bufferSize, maxVoices int) *Backend {
	return &Backend{
		sampleRate: beep.SampleRate(sampleRate),
		bufferSize: bufferSize,
		mixer:      &beep.Mixer{},
		voices:     make(map[backend.Voice]*voiceSlot),
		maxVoices:  maxVoices,
	}
}

func (b *Backend) Name() string      { return "softmix" }
func (b *Backend) IsSupported() bool { return true }

func (b *Backend) Open() error {
	speakerOnce.Do(func() {
		buf := b.bufferSize
		if buf <= 0 {
			buf = b.sampleRate.N(200 * time.Millisecond)
		}
		speakerErr = speaker.Init(b.sampleRate, buf)
	})
	if speakerErr != nil {
		return fmt.Errorf("softmix: speaker init: %w", speakerErr)
	}
	b.mu.Lock()
	b.opened = true
	b.mu.Unlock()
	speaker.Play(b.mixer)
	return nil
}

func (b *Backend) Close() error {
	speaker.Clear()
	b.mu.Lock()
	b.opened = false
	b.voices = make(map[backend.Voice]*voiceSlot)
	b.mu.Unlock()
	return nil
}

func (b *Backend) CreateVoice(kind backend.Kind) (backend.Voice, bool) {
	b.mu.Lock()
	if b.maxVoices > 0 && len(b.voices) >= b.maxVoices {
		b.mu.Unlock()
		return 0, false
	}

	ctrl := &beep.Ctrl{Streamer: beep.Silence(-1)}
	var queue *queueStreamer
	if kind == backend.Streaming {
		queue = newQueueStreamer(clipcache.ClipFormat{SampleRate: int(b.sampleRate), Channels: 2, BitsPerSample: 16})
		ctrl.Streamer = queue
	}
	volume := &effects.Volume{Streamer: ctrl, Base: volBase}
	pan := &panStreamer{Streamer: volume}

	b.nextVoice++
	v := b.nextVoice
	b.voices[v] = &voiceSlot{kind: kind, ctrl: ctrl, volume: volume, pan: pan, queue: queue}
	b.mu.Unlock()

	// mixer.Add touches the live pipeline; never while holding b.mu, since
	// the speaker goroutine's callbacks take b.mu themselves.
	speaker.Lock()
	b.mixer.Add(pan)
	speaker.Unlock()
	return v, true
}

func (b *Backend) slot(v backend.Voice) (*voiceSlot, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.voices[v]
	return s, ok
}

func (b *Backend) AttachOneshot(v backend.Voice, clip *clipcache.Clip) error {
	s, ok := b.slot(v)
	if !ok {
		return backend.ErrUnsupported
	}
	if s.kind != backend.Normal {
		return backend.ErrFormat
	}
	if clip == nil || len(clip.Bytes) == 0 {
		speaker.Lock()
		s.ctrl.Streamer = beep.Silence(-1)
		speaker.Unlock()
		b.mu.Lock()
		s.playing = false
		s.oneshot = nil
		b.mu.Unlock()
		return nil
	}

	pcm := newPCMStreamer(clip)
	var src beep.Streamer = pcm
	clipRate := beep.SampleRate(clip.Format.SampleRate)
	if clipRate > 0 && clipRate != b.sampleRate {
		src = beep.Resample(4, clipRate, b.sampleRate, src)
	}

	b.mu.Lock()
	s.gen++
	myGen := s.gen
	s.oneshot = pcm
	b.mu.Unlock()

	done := beep.Callback(func() {
		b.mu.Lock()
		if s.gen == myGen {
			s.playing = false
		}
		b.mu.Unlock()
	})

	speaker.Lock()
	s.ctrl.Streamer = beep.Seq(src, done, beep.Silence(-1))
	s.ctrl.Paused = true
	speaker.Unlock()
	return nil
}

func (b *Backend) ResetStream(v backend.Voice, format clipcache.ClipFormat) error {
	s, ok := b.slot(v)
	if !ok {
		return backend.ErrUnsupported
	}
	if s.kind != backend.Streaming || s.queue == nil {
		return backend.ErrFormat
	}
	s.queue.reset(format)
	return nil
}

func (b *Backend) Preload(v backend.Voice, chunks [][]byte) (bool, error) {
	s, ok := b.slot(v)
	if !ok || s.queue == nil {
		return false, backend.ErrUnsupported
	}
	s.queue.flush()
	for _, c := range chunks {
		s.queue.push(c)
	}
	return len(chunks) == 0, nil
}

func (b *Backend) Queue(v backend.Voice, chunk []byte) error {
	s, ok := b.slot(v)
	if !ok || s.queue == nil {
		return backend.ErrUnsupported
	}
	s.queue.push(chunk)
	return nil
}

func (b *Backend) BuffersProcessed(v backend.Voice) int {
	s, ok := b.slot(v)
	if !ok || s.queue == nil {
		return 0
	}
	// Lossy approximation per spec.md's Open Questions: the software
	// backend only knows "something finished" since the last poll.
	n := s.queue.pollProcessed()
	if n > 1 {
		n = 1
	}
	return n
}

func (b *Backend) Play(v backend.Voice) {
	s, ok := b.slot(v)
	if !ok {
		return
	}
	speaker.Lock()
	s.ctrl.Paused = false
	speaker.Unlock()
	b.mu.Lock()
	// A Normal voice with no clip attached has no completion callback to
	// ever flip playing back off; it completes immediately instead
	// (zero-length clip boundary).
	if s.kind != backend.Normal || s.oneshot != nil {
		s.playing = true
	}
	b.mu.Unlock()
}

func (b *Backend) Pause(v backend.Voice) {
	s, ok := b.slot(v)
	if !ok {
		return
	}
	speaker.Lock()
	s.ctrl.Paused = true
	speaker.Unlock()
}

func (b *Backend) Stop(v backend.Voice) {
	s, ok := b.slot(v)
	if !ok {
		return
	}
	speaker.Lock()
	s.ctrl.Paused = true
	if s.kind == backend.Normal {
		s.ctrl.Streamer = beep.Silence(-1)
	}
	speaker.Unlock()
	if s.queue != nil {
		s.queue.flush()
	}
	b.mu.Lock()
	s.playing = false
	if s.kind == backend.Normal {
		// The streamer was just replaced with silence; a later Play on
		// this voice without a fresh attach has nothing to play.
		s.oneshot = nil
	}
	b.mu.Unlock()
}

func (b *Backend) Rewind(v backend.Voice) {
	s, ok := b.slot(v)
	if !ok {
		return
	}
	if s.queue != nil {
		s.queue.flush()
		return
	}
	b.mu.Lock()
	pcm := s.oneshot
	b.mu.Unlock()
	if pcm != nil {
		speaker.Lock()
		pcm.seek(0)
		speaker.Unlock()
	}
}

func (b *Backend) Flush(v backend.Voice) {
	s, ok := b.slot(v)
	if !ok || s.queue == nil {
		return
	}
	s.queue.flush()
}

func (b *Backend) CloseVoice(v backend.Voice) {
	b.Stop(v)
}

func (b *Backend) IsPlaying(v backend.Voice) bool {
	s, ok := b.slot(v)
	if !ok {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return s.playing
}

func (b *Backend) SetGain(v backend.Voice, g float32) {
	s, ok := b.slot(v)
	if !ok {
		return
	}
	speaker.Lock()
	defer speaker.Unlock()
	if g <= 0 {
		s.volume.Silent = true
		return
	}
	s.volume.Silent = false
	valueDB := geometry.DBFromLinear(float64(g), minGainDB, maxGainDB)
	s.volume.Volume = valueDB / 20 * math.Log2(10)
}

func (b *Backend) SetPan(v backend.Voice, p float32) {
	s, ok := b.slot(v)
	if !ok {
		return
	}
	speaker.Lock()
	s.pan.Pan = float64(geometry.Clamp(p, -1, 1))
	speaker.Unlock()
}

func (b *Backend) Set3D(_ backend.Voice, _ geometry.Vec3, _ float32, _ bool) {}
func (b *Backend) SetListener(_, _, _ geometry.Vec3)                        {}
func (b *Backend) SetMasterGain(_ float32)                                  {}

var _ backend.Backend = (*Backend)(nil)
