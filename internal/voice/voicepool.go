package voice

import "github.com/adkarpov/sona3d/internal/backend"

// VoicePool is spec.md §3's VoicePool: the two fixed arrays, normal and
// streaming, each with its own cursor.
type VoicePool struct {
	Normal    *Pool
	Streaming *Pool
}

// Build asks b for numNormal Normal-kind voices and numStreaming
// Streaming-kind voices. Backends are permitted to hand back fewer than
// requested (spec.md §4.3: "scheduler must tolerate pools smaller than
// requested"); Build stops at the first refusal per pool rather than
// erroring.
func Build(b backend.Backend, numNormal, numStreaming int) *VoicePool {
	return &VoicePool{
		Normal:    NewPool(backend.Normal, createVoices(b, backend.Normal, numNormal)),
		Streaming: NewPool(backend.Streaming, createVoices(b, backend.Streaming, numStreaming)),
	}
}

func createVoices(b backend.Backend, kind backend.Kind, n int) []backend.Voice {
	handles := make([]backend.Voice, 0, n)
	for i := 0; i < n; i++ {
		v, ok := b.CreateVoice(kind)
		if !ok {
			break
		}
		handles = append(handles, v)
	}
	return handles
}

// For returns the pool matching streaming.
func (vp *VoicePool) For(streaming bool) *Pool {
	if streaming {
		return vp.Streaming
	}
	return vp.Normal
}
