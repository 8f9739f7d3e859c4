package xray

import (
	"github.com/bimview/xray/pkg/scene"
	"github.com/bimview/xray/pkg/storage"
)

// State is the lifecycle position of a group's artifact.
type State int

const (
	// Pending groups hold a placeholder artifact.
	Pending State = iota
	// InFlight groups are being outlined.
	InFlight
	// Ready groups hold their outline.
	Ready
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case InFlight:
		return "in_flight"
	case Ready:
		return "ready"
	default:
		return "unknown"
	}
}

type groupState struct {
	group    storage.GroupKey
	artifact *scene.LineSegments
	state    State
}
