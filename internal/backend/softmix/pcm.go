package softmix

import (
	"sync"

	"github.com/adkarpov/sona3d/internal/clipcache"
	"github.com/gopxl/beep"
)

// sampleReader converts little-endian interleaved PCM bytes into
// beep's [2]float64 stereo frames, per the in-memory representation
// fixed by spec.md §6.
type sampleReader struct {
	format clipcache.ClipFormat
}

func (r sampleReader) bytesPerFrame() int {
	bytesPerSample := r.format.BitsPerSample / 8
	if bytesPerSample <= 0 {
		bytesPerSample = 2
	}
	channels := r.format.Channels
	if channels <= 0 {
		channels = 1
	}
	return bytesPerSample * channels
}

func (r sampleReader) readFrame(b []byte) [2]float64 {
	bytesPerSample := r.format.BitsPerSample / 8
	if bytesPerSample <= 0 {
		bytesPerSample = 2
	}
	var left, right float64
	switch r.format.BitsPerSample {
	case 8:
		left = (float64(b[0]) - 128) / 128
		if r.format.Channels == 2 && len(b) >= 2 {
			right = (float64(b[1]) - 128) / 128
		} else {
			right = left
		}
	default: // 16-bit signed little-endian
		s0 := int16(uint16(b[0]) | uint16(b[1])<<8)
		left = float64(s0) / 32768
		if r.format.Channels == 2 && len(b) >= 4 {
			s1 := int16(uint16(b[2]) | uint16(b[3])<<8)
			right = float64(s1) / 32768
		} else {
			right = left
		}
	}
	return [2]float64{left, right}
}

// pcmStreamer streams an entire one-shot clip's bytes once.
type pcmStreamer struct {
	reader sampleReader
	data   []byte
	pos    int
}

func newPCMStreamer(clip *clipcache.Clip) *pcmStreamer {
	return &pcmStreamer{
		reader: sampleReader{format: clip.Format},
		data:   clip.Bytes,
	}
}

func (s *pcmStreamer) Stream(samples [][2]float64) (n int, ok bool) {
	frameSize := s.reader.bytesPerFrame()
	for n < len(samples) {
		if s.pos+frameSize > len(s.data) {
			break
		}
		samples[n] = s.reader.readFrame(s.data[s.pos : s.pos+frameSize])
		s.pos += frameSize
		n++
	}
	return n, n > 0
}

// seek repositions the streamer at the given byte offset. Callers must
// hold speaker.Lock, since the speaker goroutine reads pos in Stream.
func (s *pcmStreamer) seek(pos int) {
	if pos < 0 || pos > len(s.data) {
		pos = 0
	}
	s.pos = pos
}

func (s *pcmStreamer) Err() error { return nil }

// queueStreamer is the streaming-voice backing store: the pump Queue()s
// chunks of PCM bytes and the real-time callback drains them through
// Stream(). When the queue is empty it emits silence rather than
// finishing, so the mixer entry survives idle periods (spec.md §4.6:
// the pump, not the backend, decides when a streaming source is done).
type queueStreamer struct {
	mu      sync.Mutex
	reader  sampleReader
	pending [][]byte
	cur     []byte
	curPos  int

	// consumedSinceLastPoll is the lossy "available" counter described
	// in spec.md's Open Questions: the software backend only knows
	// "something finished" since the last poll, not how many discrete
	// buffers, so BuffersProcessed reports at most 1 regardless of how
	// many chunks actually drained.
	consumedSinceLastPoll int
}

func newQueueStreamer(format clipcache.ClipFormat) *queueStreamer {
	return &queueStreamer{reader: sampleReader{format: format}}
}

func (q *queueStreamer) reset(format clipcache.ClipFormat) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.reader = sampleReader{format: format}
	q.pending = nil
	q.cur = nil
	q.curPos = 0
	q.consumedSinceLastPoll = 0
}

func (q *queueStreamer) push(chunk []byte) {
	q.mu.Lock()
	q.pending = append(q.pending, chunk)
	q.mu.Unlock()
}

func (q *queueStreamer) flush() {
	q.mu.Lock()
	q.pending = nil
	q.cur = nil
	q.curPos = 0
	q.mu.Unlock()
}

func (q *queueStreamer) pollProcessed() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := q.consumedSinceLastPoll
	q.consumedSinceLastPoll = 0
	return n
}

func (q *queueStreamer) Stream(samples [][2]float64) (n int, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	frameSize := q.reader.bytesPerFrame()
	for n < len(samples) {
		if len(q.cur)-q.curPos < frameSize {
			if len(q.pending) == 0 {
				// No data ready: emit silence, keep the voice alive.
				samples[n] = [2]float64{0, 0}
				n++
				continue
			}
			q.cur = q.pending[0]
			q.pending = q.pending[1:]
			q.curPos = 0
			q.consumedSinceLastPoll++
		}
		if len(q.cur)-q.curPos < frameSize {
			// Partial trailing frame in a short chunk: drop it and retry.
			q.cur = nil
			q.curPos = 0
			continue
		}
		samples[n] = q.reader.readFrame(q.cur[q.curPos : q.curPos+frameSize])
		q.curPos += frameSize
		n++
	}
	return n, true
}

func (q *queueStreamer) Err() error { return nil }

var _ beep.Streamer = (*pcmStreamer)(nil)
var _ beep.Streamer = (*queueStreamer)(nil)
