// Package geometry implements the listener/source position math shared by
// every backend: vectors, listener pose, attenuation and stereo pan.
package geometry

import "math"

// Vec3 is a 3-component vector used for positions and directions.
type Vec3 struct {
	X, Y, Z float32
}

// Add returns v+o.
func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z}
}

// Sub returns v-o.
func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z}
}

// Scale returns v*s.
func (v Vec3) Scale(s float32) Vec3 {
	return Vec3{v.X * s, v.Y * s, v.Z * s}
}

// Dot returns the dot product of v and o.
func (v Vec3) Dot(o Vec3) float32 {
	return v.X*o.X + v.Y*o.Y + v.Z*o.Z
}

// Cross returns the cross product v x o.
func (v Vec3) Cross(o Vec3) Vec3 {
	return Vec3{
		X: v.Y*o.Z - v.Z*o.Y,
		Y: v.Z*o.X - v.X*o.Z,
		Z: v.X*o.Y - v.Y*o.X,
	}
}

// Length returns the Euclidean norm of v.
func (v Vec3) Length() float32 {
	return float32(math.Sqrt(float64(v.Dot(v))))
}

// Distance returns ||v-o||.
func (v Vec3) Distance(o Vec3) float32 {
	return v.Sub(o).Length()
}

// Normalize returns a unit vector in the direction of v. The zero vector
// normalizes to itself rather than producing NaNs.
func (v Vec3) Normalize() Vec3 {
	l := v.Length()
	if l == 0 {
		return v
	}
	return v.Scale(1 / l)
}

// IsFinite reports whether every component of v is a finite float.
func (v Vec3) IsFinite() bool {
	return !math.IsNaN(float64(v.X)) && !math.IsInf(float64(v.X), 0) &&
		!math.IsNaN(float64(v.Y)) && !math.IsInf(float64(v.Y), 0) &&
		!math.IsNaN(float64(v.Z)) && !math.IsInf(float64(v.Z), 0)
}

// Listener holds the position and orientation of the virtual ear used for
// 3D gain and pan calculations. LookAt and Up are always kept normalized;
// Yaw is the counterclockwise angle about Y that produced the current
// orientation (maintained for SetAngle/TurnListener round-tripping).
type Listener struct {
	Position Vec3
	LookAt   Vec3
	Up       Vec3
	Yaw      float64 // radians
}

// NewListener returns a listener facing -Z with +Y up, at the origin.
func NewListener() Listener {
	return Listener{
		Position: Vec3{},
		LookAt:   Vec3{0, 0, -1},
		Up:       Vec3{0, 1, 0},
		Yaw:      0,
	}
}

// SetOrientation normalizes and stores look/up. The caller is responsible
// for ensuring look and up are not colinear; a colinear pair normalizes
// without error but produces a degenerate (zero-area) pan basis.
func (l *Listener) SetOrientation(look, up Vec3) {
	l.LookAt = look.Normalize()
	l.Up = up.Normalize()
}

// SetAngle sets the absolute yaw (radians, counterclockwise about Y) and
// rederives LookAt, holding Up fixed at world +Y.
func (l *Listener) SetAngle(theta float64) {
	l.Yaw = theta
	l.LookAt = Vec3{
		X: float32(math.Sin(theta)),
		Y: 0,
		Z: float32(-math.Cos(theta)),
	}
	l.Up = Vec3{0, 1, 0}
}

// Turn adds dTheta radians to the current yaw.
func (l *Listener) Turn(dTheta float64) {
	l.SetAngle(l.Yaw + dTheta)
}

// Side returns the pan basis axis normalize(up x look). For the default
// listener (facing -Z, +Y up) this is -X, the listener's left; Pan negates
// its result so that a source on the right still pans positive.
func (l Listener) Side() Vec3 {
	return l.Up.Cross(l.LookAt).Normalize()
}

// AttenuationModel selects the distance->gain curve for a source.
type AttenuationModel int

const (
	// AttenuationNone applies no distance falloff; base gain is always 1.
	AttenuationNone AttenuationModel = iota
	// AttenuationInverseRolloff is an inverse-square-like rolloff curve.
	AttenuationInverseRolloff
	// AttenuationLinear fades linearly to zero at distanceOrRolloff.
	AttenuationLinear
)

func (m AttenuationModel) String() string {
	switch m {
	case AttenuationNone:
		return "none"
	case AttenuationInverseRolloff:
		return "inverse_rolloff"
	case AttenuationLinear:
		return "linear"
	default:
		return "unknown"
	}
}

// ParseAttenuation maps a configuration string to its model, defaulting
// to AttenuationInverseRolloff for anything unrecognized.
func ParseAttenuation(name string) AttenuationModel {
	switch name {
	case "none":
		return AttenuationNone
	case "linear":
		return AttenuationLinear
	default:
		return AttenuationInverseRolloff
	}
}

// inverseRolloffK is the constant k in base = 1/(1+rolloff*d^2*k).
const inverseRolloffK = 0.0005

// Clamp01 clamps g to [0,1].
func Clamp01(g float32) float32 {
	if g < 0 {
		return 0
	}
	if g > 1 {
		return 1
	}
	return g
}

// Clamp clamps v to [lo,hi].
func Clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Distance returns the Euclidean distance between a source position and
// the listener position.
func Distance(sourcePos Vec3, l Listener) float32 {
	return sourcePos.Distance(l.Position)
}

// BaseAttenuation computes the distance-only gain term ("base" in
// spec.md §4.1), before source_volume and master_gain are folded in.
func BaseAttenuation(model AttenuationModel, distanceOrRolloff float32, d float32) float32 {
	switch model {
	case AttenuationNone:
		return 1.0
	case AttenuationLinear:
		if d <= 0 {
			return 1.0
		}
		if d >= distanceOrRolloff {
			return 0.0
		}
		return 1 - d/distanceOrRolloff
	case AttenuationInverseRolloff:
		if d <= 0 {
			return 1.0
		}
		att := distanceOrRolloff * d * d * inverseRolloffK
		if att < 0 {
			att = 0
		}
		return 1 / (1 + att)
	default:
		return 1.0
	}
}

// Gain computes computed_gain per spec.md §4.1: base attenuation folded
// with the source's own volume and the process-wide master gain, clamped
// to [0,1].
func Gain(model AttenuationModel, distanceOrRolloff float32, d float32, sourceVolume, masterGain float32) float32 {
	base := BaseAttenuation(model, distanceOrRolloff, d)
	return Clamp01(base * sourceVolume * masterGain)
}

// Pan computes the stereo pan in [-1,+1] for the software-mixer backend,
// per spec.md §4.1. Backends with native 3D ignore this and consume the
// raw position/orientation instead.
func Pan(sourcePos Vec3, l Listener) float32 {
	side := l.Up.Cross(l.LookAt).Normalize()
	rel := sourcePos.Sub(l.Position)
	x := rel.Dot(side)
	z := rel.Dot(l.LookAt)
	pan := -float32(math.Sin(math.Atan2(float64(x), float64(z))))
	return Clamp(pan, -1, 1)
}

// DBFromLinear maps a linear gain g in [0,1] to a backend decibel value
// per spec.md §4.1's undocumented-derivation dB curve. g=0 maps to minDB;
// g=1 maps to 0.5*maxDB, which equals maxDB (to within float epsilon)
// only when maxDB is 0, as it is for the software mixer.
func DBFromLinear(g, minDB, maxDB float64) float64 {
	ampGainDB := 0.5*maxDB - minDB
	c := math.Log(10) / 20
	return minDB + (1/c)*math.Log(1+(math.Exp(c*ampGainDB)-1)*g)
}
