package game

import (
	"math"
	"testing"
)

func newTestPong(t *testing.T, mode Mode) *PongSession {
	t.Helper()
	var players []PlayerInfo
	names := []string{"alice", "bob", "carol", "dave"}
	for i := 0; i < mode.MaxPlayers(); i++ {
		players = append(players, PlayerInfo{ID: names[i], Username: names[i]})
	}
	s, err := NewPongSession("g1", players, mode)
	if err != nil {
		t.Fatalf("NewPongSession: %v", err)
	}
	return s
}

func TestPongSideAssignment(t *testing.T) {
	s := newTestPong(t, TwoPlayer)
	if s.Players["alice"].Side != SideLeft || s.Players["bob"].Side != SideRight {
		t.Fatalf("2p sides = %s/%s, want left/right", s.Players["alice"].Side, s.Players["bob"].Side)
	}

	s4 := newTestPong(t, FourPlayer)
	seen := map[Side]bool{}
	for _, id := range s4.PlayerIDs {
		seen[s4.Players[id].Side] = true
	}
	if len(seen) != 4 {
		t.Fatalf("4p sides are not a permutation of the four edges: %v", seen)
	}
	if s4.Players["alice"].Lives != PongLives {
		t.Fatalf("4p lives = %d, want %d", s4.Players["alice"].Lives, PongLives)
	}
}

func TestPongStartTransitions(t *testing.T) {
	s := newTestPong(t, TwoPlayer)
	if err := s.Start(); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	if err := s.Start(); err == nil {
		t.Fatal("second Start should fail")
	}
	if s.CurrentStatus() != StatusPlaying {
		t.Fatalf("status = %s, want playing", s.CurrentStatus())
	}
}

func TestPaddleMoveClampsToField(t *testing.T) {
	s := newTestPong(t, TwoPlayer)
	if err := s.MovePaddle("alice", 1); err == nil {
		t.Fatal("paddle move before start should fail")
	}
	s.Start()

	for i := 0; i < 100; i++ {
		if err := s.MovePaddle("alice", 1); err != nil {
			t.Fatalf("MovePaddle: %v", err)
		}
	}
	if got := s.Players["alice"].PaddlePosition; got != PaddleLimit {
		t.Fatalf("paddle position = %f, want clamped to %f", got, PaddleLimit)
	}

	// Out-of-range direction clamps instead of erroring.
	if err := s.MovePaddle("bob", 5); err != nil {
		t.Fatalf("MovePaddle with big direction: %v", err)
	}
	if got := s.Players["bob"].PaddlePosition; got != PaddleSpeed {
		t.Fatalf("paddle position = %f, want one increment", got)
	}

	if err := s.MovePaddle("nobody", 1); err == nil {
		t.Fatal("unknown player should fail")
	}
}

func TestTwoPlayerScoringAndWin(t *testing.T) {
	s := newTestPong(t, TwoPlayer)
	s.Start()

	scores := 0
	for s.CurrentStatus() == StatusPlaying {
		// Push the ball past the right goal line; left player scores.
		s.mu.Lock()
		s.Ball = Ball{X: scoreLineX + 0.05, Y: ballFloorY, VX: InitialBallSpeed}
		s.mu.Unlock()
		finished := s.Tick()
		scores++

		s.mu.Lock()
		left := s.Players["alice"]
		if left.Score != scores {
			t.Fatalf("left score after %d scoring events = %d", scores, left.Score)
		}
		if !finished && (s.Ball.X != 0 || s.Ball.Z != 0) {
			t.Fatalf("ball not reset to center after score: %+v", s.Ball)
		}
		if !finished && math.Abs(s.Ball.VX) != InitialBallSpeed {
			t.Fatalf("|vx| after reset = %f, want %f", math.Abs(s.Ball.VX), InitialBallSpeed)
		}
		s.mu.Unlock()
	}

	if scores != MaxScore {
		t.Fatalf("session ended after %d scoring events, want %d", scores, MaxScore)
	}
	if s.Winner != "alice" {
		t.Fatalf("winner = %q, want alice", s.Winner)
	}
}

func TestTwoPlayerPaddleDeflects(t *testing.T) {
	s := newTestPong(t, TwoPlayer)
	s.Start()

	s.mu.Lock()
	s.Players["bob"].PaddlePosition = 0
	s.Ball = Ball{X: paddleNearX - 0.05, Y: ballFloorY, Z: 0.5, VX: InitialBallSpeed}
	s.mu.Unlock()

	s.Tick() // enters the right paddle band moving right
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Ball.VX >= 0 {
		t.Fatalf("vx after paddle contact = %f, want negative", s.Ball.VX)
	}
	if s.Ball.VZ == 0 {
		t.Fatal("expected spin from off-center paddle contact")
	}
}

func TestFourPlayerLifeLossAndElimination(t *testing.T) {
	s := newTestPong(t, FourPlayer)
	s.Start()
	left := s.playerOnSide(SideLeft)

	loseOnLeft := func() {
		s.mu.Lock()
		s.Ball = Ball{X: -fieldHalf4P - bandHalf4P - 0.1, Y: ballFloorY, Z: 3, VX: -InitialBallSpeed}
		s.mu.Unlock()
		s.Tick()
	}

	loseOnLeft()
	if left.Lives != PongLives-1 {
		t.Fatalf("lives after one goal = %d, want %d", left.Lives, PongLives-1)
	}
	if s.Ball.X != 0 || s.Ball.Z != 0 {
		t.Fatalf("ball not reset after life loss: %+v", s.Ball)
	}

	loseOnLeft()
	loseOnLeft()
	if left.Alive {
		t.Fatal("player should be eliminated at zero lives")
	}
	if len(s.AlivePlayers) != 3 {
		t.Fatalf("alive players = %d, want 3", len(s.AlivePlayers))
	}
	for _, id := range s.AlivePlayers {
		if id == left.ID {
			t.Fatal("eliminated player still in alive set")
		}
	}
}

func TestFourPlayerDeadSideIsRigidWall(t *testing.T) {
	s := newTestPong(t, FourPlayer)
	s.Start()
	left := s.playerOnSide(SideLeft)
	left.Lives = 0
	left.Alive = false
	s.AlivePlayers = removeID(s.AlivePlayers, left.ID)

	s.mu.Lock()
	s.Ball = Ball{X: -fieldHalf4P + 0.3, Y: ballFloorY, Z: 2, VX: -InitialBallSpeed}
	s.mu.Unlock()

	s.Tick()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Ball.VX <= 0 {
		t.Fatalf("vx after dead wall = %f, want positive bounce", s.Ball.VX)
	}
	for _, id := range s.PlayerIDs {
		if p := s.Players[id]; p.Alive && p.Lives != PongLives {
			t.Fatalf("life lost on a dead-side bounce: %s has %d", id, p.Lives)
		}
	}
}

func TestFourPlayerSingleDeflectionAtCorner(t *testing.T) {
	s := newTestPong(t, FourPlayer)
	s.Start()

	// Ball entering the left and top bands in the same tick; left is
	// tested first, so only the horizontal velocity flips.
	s.mu.Lock()
	s.Ball = Ball{X: -fieldHalf4P + 0.35, Y: ballFloorY, Z: fieldHalf4P - 0.35, VX: -0.1, VZ: 0.1}
	s.playerOnSide(SideLeft).PaddlePosition = fieldHalf4P - 0.35 // paddle right under the ball
	s.mu.Unlock()

	s.Tick()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Ball.VX <= 0 {
		t.Fatalf("left deflection did not fire: vx = %f", s.Ball.VX)
	}
	if s.Ball.VZ < 0 {
		t.Fatalf("top side also deflected in the same tick: vz = %f", s.Ball.VZ)
	}
}

func TestFourPlayerEndsWithLastAlive(t *testing.T) {
	s := newTestPong(t, FourPlayer)
	s.Start()

	// Knock out everyone but the right-side player.
	for _, side := range []Side{SideLeft, SideTop, SideBottom} {
		p := s.playerOnSide(side)
		p.Lives = 1
		s.mu.Lock()
		g := sideTable[side]
		b := Ball{Y: ballFloorY}
		if g.horizontal {
			b.X = g.sign * (fieldHalf4P + bandHalf4P + 0.1)
			b.VX = g.sign * InitialBallSpeed
		} else {
			b.Z = g.sign * (fieldHalf4P + bandHalf4P + 0.1)
			b.VZ = g.sign * InitialBallSpeed
		}
		s.Ball = b
		s.mu.Unlock()
		s.Tick()
	}

	if s.CurrentStatus() != StatusFinished {
		t.Fatalf("status = %s, want finished", s.CurrentStatus())
	}
	want := s.playerOnSide(SideRight).ID
	if s.Winner != want {
		t.Fatalf("winner = %q, want %q", s.Winner, want)
	}
}

func TestBallResetDirectionIsRandomized(t *testing.T) {
	s := newTestPong(t, TwoPlayer)
	pos, neg := 0, 0
	for i := 0; i < 200; i++ {
		s.resetBall()
		if math.Abs(s.Ball.VX) != InitialBallSpeed {
			t.Fatalf("|vx| after reset = %f, want %f", math.Abs(s.Ball.VX), InitialBallSpeed)
		}
		if s.Ball.VX > 0 {
			pos++
		} else {
			neg++
		}
	}
	if pos == 0 || neg == 0 {
		t.Fatalf("serve direction never varied over 200 resets: +%d/-%d", pos, neg)
	}
}

func TestMovePaddleRejectedForEliminatedPlayer(t *testing.T) {
	s := newTestPong(t, FourPlayer)
	s.Start()
	p := s.playerOnSide(SideTop)
	p.Alive = false

	if err := s.MovePaddle(p.ID, 1); err == nil {
		t.Fatal("eliminated player should not move its paddle")
	}
}
