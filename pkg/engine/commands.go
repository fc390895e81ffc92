package engine

import (
	"github.com/adkarpov/sona3d/internal/dispatcher"
	"github.com/adkarpov/sona3d/internal/geometry"
)

// AttenuationModel re-exports geometry's attenuation enum for callers.
type AttenuationModel = geometry.AttenuationModel

const (
	AttenuationNone           = geometry.AttenuationNone
	AttenuationInverseRolloff = geometry.AttenuationInverseRolloff
	AttenuationLinear         = geometry.AttenuationLinear
)

// Vec3 re-exports geometry's vector type for callers.
type Vec3 = geometry.Vec3

// NewSourceParams mirrors spec.md §6's NewSource/QuickPlay command args.
type NewSourceParams struct {
	Priority          bool
	Streaming         bool
	Looping           bool
	Temporary         bool // only meaningful for QuickPlay
	ClipName          string
	Position          Vec3
	Attenuation       AttenuationModel
	DistanceOrRolloff float32
	Volume            float32 // source_volume; 0 or negative defaults to 1.0
}

func (p NewSourceParams) toArgs() dispatcher.NewSourceArgs {
	return dispatcher.NewSourceArgs{
		Priority:    p.Priority,
		Streaming:   p.Streaming,
		Looping:     p.Looping,
		Temporary:   p.Temporary,
		ClipName:    p.ClipName,
		Position:    p.Position,
		Attenuation: p.Attenuation,
		DistOrRoll:  p.DistanceOrRolloff,
		Volume:      p.Volume,
	}
}

// LoadSound decodes (on cache miss) and caches the clip named name.
// Idempotent: a second call for an already-cached name is a no-op.
func (e *Engine) LoadSound(name string) error {
	if name == "" {
		return ErrEmptyName
	}
	cmd := dispatcher.NewCommand(dispatcher.LoadSound)
	cmd.SName = name
	e.enqueue(cmd)
	return nil
}

// UnloadSound removes name from the clip cache.
func (e *Engine) UnloadSound(name string) error {
	if name == "" {
		return ErrEmptyName
	}
	cmd := dispatcher.NewCommand(dispatcher.UnloadSound)
	cmd.SName = name
	e.enqueue(cmd)
	return nil
}

// DefaultAttenuation returns the configured default_attenuation model,
// for callers building NewSourceParams without an opinion of their own.
func (e *Engine) DefaultAttenuation() AttenuationModel {
	return geometry.ParseAttenuation(e.cfg.Audio.DefaultAttenuation)
}

// applyDefaults substitutes the configured rolloff/fade-distance for a
// missing distance_or_rolloff. An explicit value always wins, and
// AttenuationNone needs no distance parameter at all.
func (e *Engine) applyDefaults(p NewSourceParams) NewSourceParams {
	if p.DistanceOrRolloff <= 0 {
		switch p.Attenuation {
		case AttenuationInverseRolloff:
			p.DistanceOrRolloff = float32(e.cfg.Audio.DefaultRolloff)
		case AttenuationLinear:
			p.DistanceOrRolloff = float32(e.cfg.Audio.DefaultFadeDistance)
		}
	}
	return p
}

// NewSource registers a new source under name.
func (e *Engine) NewSource(name string, p NewSourceParams) error {
	if name == "" {
		return ErrEmptyName
	}
	cmd := dispatcher.NewCommand(dispatcher.NewSource)
	cmd.SName = name
	cmd.NewSource = e.applyDefaults(p).toArgs()
	e.enqueue(cmd)
	return nil
}

// QuickPlay registers a new source under name and immediately enqueues
// play for it.
func (e *Engine) QuickPlay(name string, p NewSourceParams) error {
	if name == "" {
		return ErrEmptyName
	}
	cmd := dispatcher.NewCommand(dispatcher.QuickPlay)
	cmd.SName = name
	cmd.NewSource = e.applyDefaults(p).toArgs()
	e.enqueue(cmd)
	return nil
}

// RemoveSource destroys the source named name.
func (e *Engine) RemoveSource(name string) error {
	if name == "" {
		return ErrEmptyName
	}
	cmd := dispatcher.NewCommand(dispatcher.RemoveSource)
	cmd.SName = name
	e.enqueue(cmd)
	return nil
}

// SetPosition moves a source and triggers a gain/pan recompute.
func (e *Engine) SetPosition(name string, pos Vec3) error {
	if name == "" {
		return ErrEmptyName
	}
	cmd := dispatcher.NewCommand(dispatcher.SetPosition)
	cmd.SName = name
	cmd.Vec3 = pos
	e.enqueue(cmd)
	return nil
}

// SetVolume sets a source's source_volume scalar.
func (e *Engine) SetVolume(name string, v float32) error {
	if name == "" {
		return ErrEmptyName
	}
	cmd := dispatcher.NewCommand(dispatcher.SetVolume)
	cmd.SName = name
	cmd.F = v
	e.enqueue(cmd)
	return nil
}

// SetGain is an alias of SetVolume (spec.md §6: "alias of SetVolume in
// some backends").
func (e *Engine) SetGain(name string, g float32) error { return e.SetVolume(name, g) }

// SetPriority sets whether a source is exempt from non-priority
// eviction while playing.
func (e *Engine) SetPriority(name string, priority bool) error {
	if name == "" {
		return ErrEmptyName
	}
	cmd := dispatcher.NewCommand(dispatcher.SetPriority)
	cmd.SName = name
	cmd.B = priority
	e.enqueue(cmd)
	return nil
}

// SetLooping sets a source's loop flag.
func (e *Engine) SetLooping(name string, looping bool) error {
	if name == "" {
		return ErrEmptyName
	}
	cmd := dispatcher.NewCommand(dispatcher.SetLooping)
	cmd.SName = name
	cmd.B = looping
	e.enqueue(cmd)
	return nil
}

// SetAttenuation sets a source's attenuation model.
func (e *Engine) SetAttenuation(name string, model AttenuationModel) error {
	if name == "" {
		return ErrEmptyName
	}
	cmd := dispatcher.NewCommand(dispatcher.SetAttenuation)
	cmd.SName = name
	cmd.Model = model
	e.enqueue(cmd)
	return nil
}

// SetDistanceOrRolloff sets a source's distance_or_rolloff parameter.
func (e *Engine) SetDistanceOrRolloff(name string, v float32) error {
	if name == "" {
		return ErrEmptyName
	}
	cmd := dispatcher.NewCommand(dispatcher.SetDistOrRoll)
	cmd.SName = name
	cmd.F = v
	e.enqueue(cmd)
	return nil
}

// SetTemporary sets whether a source is destroyed by the reaper once it
// naturally stops.
func (e *Engine) SetTemporary(name string, temporary bool) error {
	if name == "" {
		return ErrEmptyName
	}
	cmd := dispatcher.NewCommand(dispatcher.SetTemporary)
	cmd.SName = name
	cmd.B = temporary
	e.enqueue(cmd)
	return nil
}

// Play, Pause, Stop, Rewind, Cull and Activate realize spec.md §4.7's
// state-transition table for the named source.
func (e *Engine) Play(name string) error     { return e.simple(name, dispatcher.Play) }
func (e *Engine) Pause(name string) error    { return e.simple(name, dispatcher.Pause) }
func (e *Engine) Stop(name string) error     { return e.simple(name, dispatcher.Stop) }
func (e *Engine) Rewind(name string) error   { return e.simple(name, dispatcher.Rewind) }
func (e *Engine) Cull(name string) error     { return e.simple(name, dispatcher.Cull) }
func (e *Engine) Activate(name string) error { return e.simple(name, dispatcher.Activate) }

func (e *Engine) simple(name string, kind dispatcher.Kind) error {
	if name == "" {
		return ErrEmptyName
	}
	cmd := dispatcher.NewCommand(kind)
	cmd.SName = name
	e.enqueue(cmd)
	return nil
}

// MoveListener applies a relative position delta to the listener.
func (e *Engine) MoveListener(delta Vec3) {
	cmd := dispatcher.NewCommand(dispatcher.MoveListener)
	cmd.Vec3 = delta
	e.enqueue(cmd)
}

// SetListenerPosition sets an absolute listener position.
func (e *Engine) SetListenerPosition(pos Vec3) {
	cmd := dispatcher.NewCommand(dispatcher.SetListenerPosition)
	cmd.Vec3 = pos
	e.enqueue(cmd)
}

// TurnListener applies a relative yaw delta in radians.
func (e *Engine) TurnListener(dTheta float64) {
	cmd := dispatcher.NewCommand(dispatcher.TurnListener)
	cmd.Angle = dTheta
	e.enqueue(cmd)
}

// SetListenerAngle sets the listener's absolute yaw in radians.
func (e *Engine) SetListenerAngle(theta float64) {
	cmd := dispatcher.NewCommand(dispatcher.SetListenerAngle)
	cmd.Angle = theta
	e.enqueue(cmd)
}

// SetListenerOrientation sets the listener's look/up vectors (normalized
// on apply).
func (e *Engine) SetListenerOrientation(look, up Vec3) {
	cmd := dispatcher.NewCommand(dispatcher.SetListenerOrientation)
	cmd.LookAt = look
	cmd.Up = up
	e.enqueue(cmd)
}

// SetMasterVolume sets the process-wide master gain, recomputing every
// source.
func (e *Engine) SetMasterVolume(g float32) {
	cmd := dispatcher.NewCommand(dispatcher.SetMasterVolume)
	cmd.F = g
	e.enqueue(cmd)
}
