package dispatcher

import (
	"github.com/adkarpov/sona3d/internal/geometry"
	"github.com/google/uuid"
)

// Kind enumerates the ~26 command variants from spec.md §6. Init is
// handled synchronously by the facade at construction time (it must
// complete before any other command can be meaningful) and therefore has
// no Kind here; every other row of spec.md §6's table is a Kind.
type Kind int

const (
	LoadSound Kind = iota
	UnloadSound
	NewSource
	QuickPlay
	SetPosition
	SetVolume
	SetPriority
	SetLooping
	SetAttenuation
	SetDistOrRoll
	SetGain
	Play
	Pause
	Stop
	Rewind
	Cull
	Activate
	SetTemporary
	RemoveSource
	MoveListener
	SetListenerPosition
	TurnListener
	SetListenerAngle
	SetListenerOrientation
	SetMasterVolume
)

func (k Kind) String() string {
	names := [...]string{
		"LoadSound", "UnloadSound", "NewSource", "QuickPlay", "SetPosition",
		"SetVolume", "SetPriority", "SetLooping", "SetAttenuation",
		"SetDistOrRoll", "SetGain", "Play", "Pause", "Stop", "Rewind",
		"Cull", "Activate", "SetTemporary", "RemoveSource", "MoveListener",
		"SetListenerPosition", "TurnListener", "SetListenerAngle",
		"SetListenerOrientation", "SetMasterVolume",
	}
	if int(k) < 0 || int(k) >= len(names) {
		return "Unknown"
	}
	return names[k]
}

// NewSourceArgs carries the fields shared by NewSource and QuickPlay
// (spec.md §6's table: "..as NewSource.., temporary").
type NewSourceArgs struct {
	Priority    bool
	Streaming   bool
	Looping     bool
	Temporary   bool
	ClipName    string
	Position    geometry.Vec3
	Attenuation geometry.AttenuationModel
	DistOrRoll  float32
	Volume      float32
}

// Command is a single tagged record on the queue. Only the fields
// relevant to Kind are populated; this mirrors a sum type the way a
// command-record-per-struct hierarchy would, without the boilerplate of
// ~26 Go types implementing a marker interface.
type Command struct {
	ID   uuid.UUID
	Kind Kind

	SName string // most commands address a source by name

	NewSource NewSourceArgs // NewSource, QuickPlay

	Vec3  geometry.Vec3             // SetPosition, MoveListener, SetListenerPosition
	F     float32                   // SetVolume/SetGain, SetDistOrRoll, SetMasterVolume
	B     bool                      // SetPriority, SetLooping, SetTemporary
	Model geometry.AttenuationModel // SetAttenuation

	LookAt, Up geometry.Vec3 // SetListenerOrientation
	Angle      float64       // TurnListener, SetListenerAngle
}

func newCmd(k Kind) Command {
	return Command{ID: uuid.New(), Kind: k}
}
