// Package clipcache owns the lifetime of decoded PCM payloads. It wraps
// the decoder collaborator (spec.md §6 AudioSource) and keeps one Clip per
// distinct name/URL until explicitly unloaded.
package clipcache

import (
	"fmt"
	"sync"
)

// ClipFormat describes the layout of a decoded PCM payload.
type ClipFormat struct {
	SampleRate    int // Hz, > 0
	Channels      int // 1 or 2
	BitsPerSample int // 8 or 16
}

// Clip is an immutable decoded PCM payload. It is shared by reference
// between the cache and any Source currently bound to it.
type Clip struct {
	Name   string
	Format ClipFormat
	Bytes  []byte
}

// Len returns the total byte length of the clip.
func (c *Clip) Len() int64 {
	if c == nil {
		return 0
	}
	return int64(len(c.Bytes))
}

// Decoder is the out-of-scope AudioSource collaborator (spec.md §6): given
// a name (path or URL), it yields raw PCM bytes plus their format, or an
// error. Container decoding (WAV/OGG/MIDI) lives entirely behind this
// interface; the engine never parses a container itself.
type Decoder interface {
	Decode(name string) (ClipFormat, []byte, error)
}

// DecoderFunc adapts a function to a Decoder.
type DecoderFunc func(name string) (ClipFormat, []byte, error)

// Decode implements Decoder.
func (f DecoderFunc) Decode(name string) (ClipFormat, []byte, error) {
	return f(name)
}

// Cache is the clip cache (C2). It is safe for concurrent use, though
// spec.md §5 only ever drives it from the dispatcher worker.
type Cache struct {
	mu         sync.RWMutex
	clips      map[string]*Clip
	decoder    Decoder
	maxClipLen int // software-backend one-shot trim cap; 0 disables trimming
}

// New creates a clip cache backed by decoder. maxClipLen bounds one-shot
// clip size for backends that trim (spec.md §4.2); pass 0 to disable.
func New(decoder Decoder, maxClipLen int) *Cache {
	return &Cache{
		clips:      make(map[string]*Clip),
		decoder:    decoder,
		maxClipLen: maxClipLen,
	}
}

// GetOrLoad returns the cached clip for name, decoding it on a cache miss.
// A failed decode leaves the cache unchanged (spec.md §7): a later call
// with the same name will retry the decoder.
func (c *Cache) GetOrLoad(name string) (*Clip, error) {
	c.mu.RLock()
	if clip, ok := c.clips[name]; ok {
		c.mu.RUnlock()
		return clip, nil
	}
	c.mu.RUnlock()

	if c.decoder == nil {
		return nil, fmt.Errorf("clipcache: no decoder configured for %q", name)
	}
	format, data, err := c.decoder.Decode(name)
	if err != nil {
		return nil, fmt.Errorf("clipcache: decode %q: %w", name, err)
	}

	clip := &Clip{Name: name, Format: format, Bytes: data}

	c.mu.Lock()
	c.clips[name] = clip
	c.mu.Unlock()
	return clip, nil
}

// Unload removes name from the cache. In-flight Source references to the
// previously returned *Clip remain valid until the Source is destroyed;
// the cache only forgets its own pointer.
func (c *Cache) Unload(name string) {
	c.mu.Lock()
	delete(c.clips, name)
	c.mu.Unlock()
}

// Trim truncates one-shot clip bytes to the cache's configured
// max_clip_bytes, per spec.md §4.2. Streaming sources never trim and must
// not call this.
func (c *Cache) Trim(clip *Clip) *Clip {
	if c.maxClipLen <= 0 || clip == nil || len(clip.Bytes) <= c.maxClipLen {
		return clip
	}
	trimmed := &Clip{
		Name:   clip.Name,
		Format: clip.Format,
		Bytes:  clip.Bytes[:c.maxClipLen],
	}
	return trimmed
}

// Has reports whether name is currently cached.
func (c *Cache) Has(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.clips[name]
	return ok
}

// Len returns the number of cached clips.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.clips)
}
