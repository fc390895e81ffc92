package softmix

import "github.com/gopxl/beep"

// panStreamer applies a linear stereo pan in [-1,+1] to an inner
// streamer: the channel on the far side is scaled by 1-|pan| and the near
// side is left at full gain (the engine, not the backend, computes the
// pan value; this just applies the two gains).
type panStreamer struct {
	Streamer beep.Streamer
	Pan      float64 // [-1,+1], read under speaker.Lock by the caller
}

func (p *panStreamer) Stream(samples [][2]float64) (n int, ok bool) {
	n, ok = p.Streamer.Stream(samples)
	panL := 1.0
	panR := 1.0
	if p.Pan > 0 {
		panL = 1 - p.Pan
	} else if p.Pan < 0 {
		panR = 1 + p.Pan
	}
	for i := 0; i < n; i++ {
		samples[i][0] *= panL
		samples[i][1] *= panR
	}
	return n, ok
}

func (p *panStreamer) Err() error { return p.Streamer.Err() }

var _ beep.Streamer = (*panStreamer)(nil)
