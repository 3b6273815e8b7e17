package game

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/shimizu42/transcendence-sub000/internal/net"
)

const (
	PaddleSpeed      = 0.2
	PaddleHeight     = 2.0
	PaddleLimit      = 4.0
	InitialBallSpeed = 0.1
	SpinFactor       = 0.1
	MaxScore         = 5
	PongLives        = 3 // 4-player elimination variant

	ballFloorY = 0.25
	ballCeilY  = 2.0

	// 2-player field: paddles sit in a band in front of each goal line.
	scoreLineX   = 10.0
	paddleNearX  = 8.5
	paddleFarX   = 9.5
	sideWallZ    = 4.5

	// 4-player field: a square of half-extent 5, every edge owned by a
	// player. The paddle band straddles the edge by half a unit.
	fieldHalf4P    = 5.0
	bandHalf4P     = 0.5
	paddleSize4P   = 2.0
	maxBallSpeed4P = 0.3
)

type PongPlayer struct {
	ID             string
	Username       string
	Score          int
	Lives          int
	PaddlePosition float64
	Alive          bool
	Side           Side
}

// PongSession is one pong match, 2-player score race or 4-player
// elimination. All exported methods take the session lock; the tick
// loop and inbound input are serialized through it.
type PongSession struct {
	mu sync.Mutex

	ID           string
	Mode         Mode
	Status       Status
	Players      map[string]*PongPlayer
	PlayerIDs    []string
	Ball         Ball
	AlivePlayers []string
	Winner       string
	CreatedAt    time.Time
}

// NewPongSession assigns sides by join order and serves the ball from
// center with a random horizontal direction.
func NewPongSession(id string, players []PlayerInfo, mode Mode) (*PongSession, error) {
	if len(players) != mode.MaxPlayers() {
		return nil, InvalidState("game", id)
	}

	sides := SidesFor(mode)
	s := &PongSession{
		ID:        id,
		Mode:      mode,
		Status:    StatusWaiting,
		Players:   make(map[string]*PongPlayer, len(players)),
		CreatedAt: time.Now(),
	}

	lives := 0
	if mode == FourPlayer {
		lives = PongLives
	}

	for i, p := range players {
		s.Players[p.ID] = &PongPlayer{
			ID:       p.ID,
			Username: p.Username,
			Lives:    lives,
			Alive:    true,
			Side:     sides[i],
		}
		s.PlayerIDs = append(s.PlayerIDs, p.ID)
		s.AlivePlayers = append(s.AlivePlayers, p.ID)
	}

	s.resetBall()
	return s, nil
}

func (s *PongSession) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Status != StatusWaiting {
		return InvalidState("game", s.ID)
	}
	s.Status = StatusPlaying
	return nil
}

// MovePaddle nudges the player's paddle by one speed increment along
// its axis, clamped to the field. Direction beyond [-1,1] is clamped,
// not rejected.
func (s *PongSession) MovePaddle(playerID string, direction int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Status != StatusPlaying {
		return InvalidState("game", s.ID)
	}
	p, ok := s.Players[playerID]
	if !ok {
		return NotFound("player", playerID)
	}
	if !p.Alive {
		return InvalidState("player", playerID)
	}

	if direction > 1 {
		direction = 1
	} else if direction < -1 {
		direction = -1
	}

	pos := p.PaddlePosition + float64(direction)*PaddleSpeed
	p.PaddlePosition = clamp(pos, -PaddleLimit, PaddleLimit)
	return nil
}

// End finishes the session, reporting whether this call made the
// transition. Finishing a finished session keeps the first winner.
func (s *PongSession) End(winnerID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finishLocked(winnerID)
}

func (s *PongSession) finishLocked(winnerID string) bool {
	if s.Status == StatusFinished {
		return false
	}
	s.Status = StatusFinished
	s.Winner = winnerID
	return true
}

// Tick advances the simulation one step. Returns true on the tick
// that finishes the session.
func (s *PongSession) Tick() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Status != StatusPlaying {
		return false
	}

	s.Ball.X += s.Ball.VX
	s.Ball.Y += s.Ball.VY
	s.Ball.Z += s.Ball.VZ

	if s.Ball.Y <= ballFloorY || s.Ball.Y >= ballCeilY {
		s.Ball.VY = -s.Ball.VY
	}

	if s.Mode == FourPlayer {
		s.tickFourPlayer()
	} else {
		s.tickTwoPlayer()
	}

	return s.Status == StatusFinished
}

func (s *PongSession) tickTwoPlayer() {
	if s.Ball.Z >= sideWallZ || s.Ball.Z <= -sideWallZ {
		s.Ball.VZ = -s.Ball.VZ
	}

	left := s.playerOnSide(SideLeft)
	right := s.playerOnSide(SideRight)

	// A paddle only deflects a ball moving toward it, so a slow ball
	// cannot re-trigger inside the band on consecutive ticks.
	if s.Ball.VX < 0 && s.Ball.X <= -paddleNearX && s.Ball.X >= -paddleFarX && left != nil {
		if math.Abs(s.Ball.Z-left.PaddlePosition) <= PaddleHeight/2 {
			s.Ball.VX = math.Abs(s.Ball.VX)
			s.Ball.VZ += (s.Ball.Z - left.PaddlePosition) * SpinFactor
		}
	}
	if s.Ball.VX > 0 && s.Ball.X >= paddleNearX && s.Ball.X <= paddleFarX && right != nil {
		if math.Abs(s.Ball.Z-right.PaddlePosition) <= PaddleHeight/2 {
			s.Ball.VX = -math.Abs(s.Ball.VX)
			s.Ball.VZ += (s.Ball.Z - right.PaddlePosition) * SpinFactor
		}
	}

	if s.Ball.X < -scoreLineX && right != nil {
		right.Score++
		s.resetBall()
	} else if s.Ball.X > scoreLineX && left != nil {
		left.Score++
		s.resetBall()
	}

	for _, p := range s.Players {
		if p.Score >= MaxScore {
			s.finishLocked(p.ID)
			return
		}
	}
}

// fourPlayerOrder fixes which edge wins when the ball satisfies two
// side conditions in the same tick (corner hits): first side tested
// wins, and at most one deflection fires per tick.
var fourPlayerOrder = []Side{SideLeft, SideRight, SideTop, SideBottom}

func (s *PongSession) tickFourPlayer() {
	for _, side := range fourPlayerOrder {
		g := sideTable[side]
		toward := g.wallCoord(s.Ball) * g.sign // distance along the outward axis
		vel := s.velTowardWall(g)
		if vel <= 0 || toward < fieldHalf4P-bandHalf4P || toward > fieldHalf4P+bandHalf4P {
			continue
		}

		p := s.playerOnSide(side)
		if p == nil || !p.Alive {
			// An eliminated player's edge is a rigid wall: the ball
			// bounces, no spin, no life lost.
			s.reflectFromWall(g)
		} else if math.Abs(g.lateralCoord(s.Ball)-p.PaddlePosition) <= paddleSize4P/2 {
			s.reflectFromWall(g)
			s.addSpin(g, (g.lateralCoord(s.Ball)-p.PaddlePosition)*SpinFactor)
			s.Ball.VX = clamp(s.Ball.VX, -maxBallSpeed4P, maxBallSpeed4P)
			s.Ball.VZ = clamp(s.Ball.VZ, -maxBallSpeed4P, maxBallSpeed4P)
		}
		return
	}

	// No band contact this tick; a ball past an alive owner's edge is
	// an undefended goal.
	for _, side := range fourPlayerOrder {
		g := sideTable[side]
		if g.wallCoord(s.Ball)*g.sign <= fieldHalf4P {
			continue
		}
		p := s.playerOnSide(side)
		if p != nil && p.Alive {
			s.loseLife(p)
		} else {
			s.reflectFromWall(g)
		}
		return
	}
}

func (s *PongSession) loseLife(p *PongPlayer) {
	p.Lives--
	if p.Lives <= 0 {
		p.Alive = false
		s.AlivePlayers = removeID(s.AlivePlayers, p.ID)
		if len(s.AlivePlayers) <= 1 {
			winner := ""
			if len(s.AlivePlayers) == 1 {
				winner = s.AlivePlayers[0]
			}
			s.finishLocked(winner)
			return
		}
	}
	s.resetBall()
}

func (s *PongSession) velTowardWall(g sideGeometry) float64 {
	if g.horizontal {
		return s.Ball.VX * g.sign
	}
	return s.Ball.VZ * g.sign
}

func (s *PongSession) reflectFromWall(g sideGeometry) {
	if g.horizontal {
		s.Ball.VX = -g.sign * math.Abs(s.Ball.VX)
	} else {
		s.Ball.VZ = -g.sign * math.Abs(s.Ball.VZ)
	}
}

func (s *PongSession) addSpin(g sideGeometry, spin float64) {
	if g.horizontal {
		s.Ball.VZ += spin
	} else {
		s.Ball.VX += spin
	}
}

func (s *PongSession) playerOnSide(side Side) *PongPlayer {
	for _, id := range s.PlayerIDs {
		if p := s.Players[id]; p != nil && p.Side == side {
			return p
		}
	}
	return nil
}

func (s *PongSession) resetBall() {
	s.Ball = Ball{
		X:  0,
		Y:  ballFloorY,
		Z:  0,
		VX: InitialBallSpeed,
		VZ: (rand.Float64() - 0.5) * 0.1,
	}
	if rand.Float64() < 0.5 {
		s.Ball.VX = -InitialBallSpeed
	}
}

// Snapshot copies current state into a wire message.
func (s *PongSession) Snapshot() net.PongState {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := net.PongState{
		GameID:   s.ID,
		GameType: string(s.Mode),
		Status:   string(s.Status),
		Ball: net.BallState{
			X: s.Ball.X, Y: s.Ball.Y, Z: s.Ball.Z,
			VX: s.Ball.VX, VY: s.Ball.VY, VZ: s.Ball.VZ,
		},
		AlivePlayers: append([]string(nil), s.AlivePlayers...),
		Winner:       s.Winner,
	}
	for _, id := range s.PlayerIDs {
		p := s.Players[id]
		state.Players = append(state.Players, net.PongPlayerState{
			ID:             p.ID,
			Username:       p.Username,
			Score:          p.Score,
			Lives:          p.Lives,
			PaddlePosition: p.PaddlePosition,
			Alive:          p.Alive,
			Side:           string(p.Side),
		})
	}
	return state
}

// CurrentStatus reads the status under the session lock.
func (s *PongSession) CurrentStatus() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Status
}

// Result reports winner and participants once the session finished.
func (s *PongSession) Result() (winnerID string, playerIDs []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Winner, append([]string(nil), s.PlayerIDs...)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
