package clipcache

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetOrLoadCachesAndIsIdempotent(t *testing.T) {
	calls := 0
	dec := DecoderFunc(func(name string) (ClipFormat, []byte, error) {
		calls++
		return ClipFormat{SampleRate: 44100, Channels: 2, BitsPerSample: 16}, []byte{1, 2, 3, 4}, nil
	})
	c := New(dec, 0)

	clip1, err := c.GetOrLoad("a.wav")
	require.NoError(t, err)
	clip2, err := c.GetOrLoad("a.wav")
	require.NoError(t, err)

	require.Same(t, clip1, clip2)
	require.Equal(t, 1, calls)
	require.Equal(t, int64(4), clip1.Len())
}

func TestDecodeFailureLeavesCacheUnchanged(t *testing.T) {
	attempts := 0
	dec := DecoderFunc(func(name string) (ClipFormat, []byte, error) {
		attempts++
		if attempts == 1 {
			return ClipFormat{}, nil, errors.New("boom")
		}
		return ClipFormat{SampleRate: 44100, Channels: 1, BitsPerSample: 16}, []byte{9}, nil
	})
	c := New(dec, 0)

	_, err := c.GetOrLoad("bad.wav")
	require.Error(t, err)
	require.False(t, c.Has("bad.wav"))

	clip, err := c.GetOrLoad("bad.wav")
	require.NoError(t, err)
	require.Equal(t, []byte{9}, clip.Bytes)
	require.Equal(t, 2, attempts)
}

func TestUnloadRemovesEntryButExistingRefsSurvive(t *testing.T) {
	dec := DecoderFunc(func(name string) (ClipFormat, []byte, error) {
		return ClipFormat{SampleRate: 8000, Channels: 1, BitsPerSample: 8}, []byte{1}, nil
	})
	c := New(dec, 0)

	clip, err := c.GetOrLoad("x")
	require.NoError(t, err)
	c.Unload("x")
	require.False(t, c.Has("x"))
	require.Equal(t, byte(1), clip.Bytes[0])
}

func TestTrimCapsOneshotLength(t *testing.T) {
	dec := DecoderFunc(func(name string) (ClipFormat, []byte, error) {
		return ClipFormat{SampleRate: 44100, Channels: 2, BitsPerSample: 16}, make([]byte, 100), nil
	})
	c := New(dec, 10)

	clip, err := c.GetOrLoad("big.wav")
	require.NoError(t, err)
	require.Len(t, clip.Bytes, 100)

	trimmed := c.Trim(clip)
	require.Len(t, trimmed.Bytes, 10)

	untrimmed := New(dec, 0).Trim(clip)
	require.Len(t, untrimmed.Bytes, 100)
}
