package game

import (
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shimizu42/transcendence-sub000/internal/net"
)

const (
	TankSpeed       = 0.1
	TurnSpeed       = 0.05
	TurretTurnSpeed = 0.08
	BulletSpeed     = 0.3
	BulletLifetime  = 5 * time.Second
	ShotCooldown    = 500 * time.Millisecond
	TankLives       = 3

	barrelLength = 1.5
	muzzleHeight = 0.5
	tankHitSize  = 2.5
	tankLimit    = 14.0 // movement clamp
	bulletLimit  = 15.0 // bullets die at the field walls
	spawnOffset  = 3.0
)

type TankPlayer struct {
	ID             string
	Username       string
	Lives          int
	X, Y, Z        float64
	Rotation       float64 // body yaw, radians in [0, 2π)
	TurretRotation float64
	Alive          bool
	Side           Side
	LastShot       time.Time
}

type Bullet struct {
	ID        string
	OwnerID   string
	X, Y, Z   float64
	DX, DZ    float64 // unit direction in the ground plane
	Speed     float64
	Active    bool
	CreatedAt time.Time
}

// TankControls is one frame of player input. Analog axes are clamped
// to [-1, 1] rather than rejected.
type TankControls struct {
	MoveForward float64
	Turn        float64
	TurretTurn  float64
	Shoot       bool
}

// TankSession is one tank battle. Same locking discipline as
// PongSession: every exported method takes the session lock.
type TankSession struct {
	mu sync.Mutex

	ID           string
	Mode         Mode
	Status       Status
	Players      map[string]*TankPlayer
	PlayerIDs    []string
	Bullets      map[string]*Bullet
	AlivePlayers []string
	Winner       string
	CreatedAt    time.Time
}

// NewTankSession spawns one tank per side, a few units in from its
// wall and facing the field center.
func NewTankSession(id string, players []PlayerInfo, mode Mode) (*TankSession, error) {
	if len(players) != mode.MaxPlayers() {
		return nil, InvalidState("game", id)
	}

	sides := SidesFor(mode)
	s := &TankSession{
		ID:        id,
		Mode:      mode,
		Status:    StatusWaiting,
		Players:   make(map[string]*TankPlayer, len(players)),
		Bullets:   make(map[string]*Bullet),
		CreatedAt: time.Now(),
	}

	for i, p := range players {
		x, z, rot := tankSpawn(sides[i], mode)
		s.Players[p.ID] = &TankPlayer{
			ID:             p.ID,
			Username:       p.Username,
			Lives:          TankLives,
			X:              x,
			Z:              z,
			Rotation:       rot,
			TurretRotation: rot,
			Alive:          true,
			Side:           sides[i],
		}
		s.PlayerIDs = append(s.PlayerIDs, p.ID)
		s.AlivePlayers = append(s.AlivePlayers, p.ID)
	}
	return s, nil
}

func tankSpawn(side Side, mode Mode) (x, z, rot float64) {
	if mode == TwoPlayer {
		// Narrower 2-player field, tanks on the X axis.
		if side == SideLeft {
			return -10 + spawnOffset, 0, math.Pi / 2
		}
		return 10 - spawnOffset, 0, 3 * math.Pi / 2
	}
	switch side {
	case SideTop:
		return 0, bulletLimit - spawnOffset, math.Pi
	case SideBottom:
		return 0, -bulletLimit + spawnOffset, 0
	case SideLeft:
		return -bulletLimit + spawnOffset, 0, math.Pi / 2
	default: // right
		return bulletLimit - spawnOffset, 0, 3 * math.Pi / 2
	}
}

func (s *TankSession) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Status != StatusWaiting {
		return InvalidState("game", s.ID)
	}
	s.Status = StatusPlaying
	return nil
}

// End finishes the session, reporting whether this call made the
// transition.
func (s *TankSession) End(winnerID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finishLocked(winnerID)
}

func (s *TankSession) finishLocked(winnerID string) bool {
	if s.Status == StatusFinished {
		return false
	}
	s.Status = StatusFinished
	s.Winner = winnerID
	return true
}

// ApplyControls handles one input frame: move along the body heading,
// turn body and turret, fire if the cooldown allows it.
func (s *TankSession) ApplyControls(playerID string, c TankControls, now time.Time) error {
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

	c.MoveForward = clamp(c.MoveForward, -1, 1)
	c.Turn = clamp(c.Turn, -1, 1)
	c.TurretTurn = clamp(c.TurretTurn, -1, 1)

	if c.MoveForward != 0 {
		// Yaw 0 faces +Z; π/2 faces +X.
		p.X = clamp(p.X+math.Sin(p.Rotation)*c.MoveForward*TankSpeed, -tankLimit, tankLimit)
		p.Z = clamp(p.Z+math.Cos(p.Rotation)*c.MoveForward*TankSpeed, -tankLimit, tankLimit)
	}
	if c.Turn != 0 {
		p.Rotation = normalizeAngle(p.Rotation + c.Turn*TurnSpeed)
	}
	if c.TurretTurn != 0 {
		p.TurretRotation = normalizeAngle(p.TurretRotation + c.TurretTurn*TurretTurnSpeed)
	}

	if c.Shoot && now.Sub(p.LastShot) > ShotCooldown {
		s.spawnBullet(p, now)
		p.LastShot = now
	}
	return nil
}

func (s *TankSession) spawnBullet(p *TankPlayer, now time.Time) {
	dx := math.Sin(p.TurretRotation)
	dz := math.Cos(p.TurretRotation)
	b := &Bullet{
		ID:        uuid.NewString(),
		OwnerID:   p.ID,
		X:         p.X + dx*barrelLength,
		Y:         p.Y + muzzleHeight,
		Z:         p.Z + dz*barrelLength,
		DX:        dx,
		DZ:        dz,
		Speed:     BulletSpeed,
		Active:    true,
		CreatedAt: now,
	}
	s.Bullets[b.ID] = b
}

// Tick advances bullets, applies hits and checks for the end of the
// match. Returns true on the tick that finishes the session.
func (s *TankSession) Tick(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Status != StatusPlaying {
		return false
	}

	s.stepBullets(now)
	s.applyHits()
	s.purgeInactive()

	if len(s.AlivePlayers) <= 1 {
		winner := ""
		if len(s.AlivePlayers) == 1 {
			winner = s.AlivePlayers[0]
		}
		s.finishLocked(winner)
	}
	return s.Status == StatusFinished
}

func (s *TankSession) stepBullets(now time.Time) {
	for _, b := range s.Bullets {
		if !b.Active {
			continue
		}
		b.X += b.DX * b.Speed
		b.Z += b.DZ * b.Speed

		if now.Sub(b.CreatedAt) > BulletLifetime {
			b.Active = false
			continue
		}
		if math.Abs(b.X) > bulletLimit || math.Abs(b.Z) > bulletLimit {
			b.Active = false
		}
	}
}

// applyHits gives each bullet at most one hit per tick, never against
// its own owner. The first alive tank inside the hit radius takes the
// damage and the bullet dies.
func (s *TankSession) applyHits() {
	for _, b := range s.Bullets {
		if !b.Active {
			continue
		}
		for _, id := range s.PlayerIDs {
			p := s.Players[id]
			if !p.Alive || p.ID == b.OwnerID {
				continue
			}
			dx := b.X - p.X
			dz := b.Z - p.Z
			if math.Sqrt(dx*dx+dz*dz) >= tankHitSize {
				continue
			}

			p.Lives--
			b.Active = false
			if p.Lives <= 0 {
				p.Alive = false
				s.AlivePlayers = removeID(s.AlivePlayers, p.ID)
			}
			break
		}
	}
}

// purgeInactive drops dead bullets so they are never redelivered in a
// snapshot.
func (s *TankSession) purgeInactive() {
	for id, b := range s.Bullets {
		if !b.Active {
			delete(s.Bullets, id)
		}
	}
}

// Snapshot copies current state into a wire message.
func (s *TankSession) Snapshot() net.TankState {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := net.TankState{
		GameID:       s.ID,
		GameType:     string(s.Mode),
		Status:       string(s.Status),
		AlivePlayers: append([]string(nil), s.AlivePlayers...),
		Winner:       s.Winner,
	}
	for _, id := range s.PlayerIDs {
		p := s.Players[id]
		state.Players = append(state.Players, net.TankPlayerState{
			ID:             p.ID,
			Username:       p.Username,
			Lives:          p.Lives,
			X:              p.X,
			Y:              p.Y,
			Z:              p.Z,
			Rotation:       p.Rotation,
			TurretRotation: p.TurretRotation,
			Alive:          p.Alive,
			Side:           string(p.Side),
		})
	}
	for _, b := range s.Bullets {
		state.Bullets = append(state.Bullets, net.BulletState{
			ID:      b.ID,
			OwnerID: b.OwnerID,
			X:       b.X,
			Y:       b.Y,
			Z:       b.Z,
		})
	}
	return state
}

func (s *TankSession) CurrentStatus() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Status
}

func (s *TankSession) Result() (winnerID string, playerIDs []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Winner, append([]string(nil), s.PlayerIDs...)
}

// BulletCount reports live bullets.
func (s *TankSession) BulletCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Bullets)
}

func normalizeAngle(a float64) float64 {
	a = math.Mod(a, 2*math.Pi)
	if a < 0 {
		a += 2 * math.Pi
	}
	return a
}
