package game

import "time"

// Kind selects which simulation runs a session.
type Kind string

const (
	KindPong Kind = "pong"
	KindTank Kind = "tank"
)

// Mode is the player-count variant of a session.
type Mode string

const (
	TwoPlayer  Mode = "2player"
	FourPlayer Mode = "4player"
)

func (m Mode) MaxPlayers() int {
	if m == FourPlayer {
		return 4
	}
	return 2
}

type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusPlaying  Status = "playing"
	StatusFinished Status = "finished"
)

const (
	TickRate     = 60
	TickDuration = time.Second / TickRate
)

// Side is the field edge a player defends. Assigned once at session
// creation and never reassigned.
type Side string

const (
	SideLeft   Side = "left"
	SideRight  Side = "right"
	SideTop    Side = "top"
	SideBottom Side = "bottom"
)

// SidesFor returns the side assignment order for a mode. Players get
// sides in join order.
func SidesFor(mode Mode) []Side {
	if mode == FourPlayer {
		return []Side{SideLeft, SideTop, SideRight, SideBottom}
	}
	return []Side{SideLeft, SideRight}
}

// sideGeometry describes one edge of the 4-player pong field: which
// ball axis the edge sits on, and at which end. Keeping the geometry
// in a table keeps the side logic out of the tick loop branches.
type sideGeometry struct {
	horizontal bool    // true: edge lies on the X axis (left/right)
	sign       float64 // -1 for the negative end, +1 for the positive end
}

var sideTable = map[Side]sideGeometry{
	SideLeft:   {horizontal: true, sign: -1},
	SideRight:  {horizontal: true, sign: +1},
	SideTop:    {horizontal: false, sign: +1},
	SideBottom: {horizontal: false, sign: -1},
}

// wallCoord is the ball coordinate measured against this edge;
// lateralCoord runs along the edge (the paddle axis).
func (g sideGeometry) wallCoord(b Ball) float64 {
	if g.horizontal {
		return b.X
	}
	return b.Z
}

func (g sideGeometry) lateralCoord(b Ball) float64 {
	if g.horizontal {
		return b.Z
	}
	return b.X
}

// Ball carries pong ball position and velocity.
type Ball struct {
	X, Y, Z    float64
	VX, VY, VZ float64
}

// PlayerInfo identifies a participant at session creation time.
type PlayerInfo struct {
	ID       string
	Username string
}
