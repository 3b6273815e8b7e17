package server

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shimizu42/transcendence-sub000/internal/game"
	"github.com/shimizu42/transcendence-sub000/internal/net"
)

// PongEngine runs the authoritative pong simulations. Each playing
// session gets its own tick goroutine; session state is guarded by
// the session's lock, the loop bookkeeping by the engine's.
type PongEngine struct {
	sessions *Store[*game.PongSession]
	users    UserDirectory
	sink     ResultSink

	mu    sync.Mutex
	loops map[string]*loopHandle
}

func NewPongEngine(sessions *Store[*game.PongSession], users UserDirectory, sink ResultSink) *PongEngine {
	if sink == nil {
		sink = LogSink{}
	}
	return &PongEngine{
		sessions: sessions,
		users:    users,
		sink:     sink,
		loops:    make(map[string]*loopHandle),
	}
}

func (e *PongEngine) CreateSession(playerIDs []string, mode game.Mode) (string, error) {
	id := uuid.NewString()
	s, err := game.NewPongSession(id, e.resolvePlayers(playerIDs), mode)
	if err != nil {
		return "", err
	}
	e.sessions.Put(id, s)
	log.Printf("pong session %s created (%s, players=%v)", id, mode, playerIDs)
	return id, nil
}

func (e *PongEngine) resolvePlayers(playerIDs []string) []game.PlayerInfo {
	players := make([]game.PlayerInfo, 0, len(playerIDs))
	for i, id := range playerIDs {
		name := fmt.Sprintf("Player%d", i+1)
		if e.users != nil {
			if n, ok := e.users.Username(id); ok {
				name = n
			}
		}
		players = append(players, game.PlayerInfo{ID: id, Username: name})
	}
	return players
}

func (e *PongEngine) Get(id string) (*game.PongSession, bool) {
	return e.sessions.Get(id)
}

func (e *PongEngine) Snapshot(id string) (net.PongState, error) {
	s, ok := e.sessions.Get(id)
	if !ok {
		return net.PongState{}, game.NotFound("game", id)
	}
	return s.Snapshot(), nil
}

// Start flips the session to playing and launches its tick loop.
func (e *PongEngine) Start(id string) error {
	s, ok := e.sessions.Get(id)
	if !ok {
		return game.NotFound("game", id)
	}
	if err := s.Start(); err != nil {
		return err
	}

	h := newLoopHandle()
	e.mu.Lock()
	e.loops[id] = h
	e.mu.Unlock()

	go e.run(s, h)
	log.Printf("pong session %s started", id)
	return nil
}

func (e *PongEngine) run(s *game.PongSession, h *loopHandle) {
	ticker := time.NewTicker(game.TickDuration)
	defer ticker.Stop()

	for {
		select {
		case <-h.quit:
			return
		case <-ticker.C:
			finished, report := e.safeTick(s)
			if finished {
				e.stopLoop(s.ID)
				if report {
					e.report(s)
				}
				return
			}
		}
	}
}

// safeTick contains a panicking tick to its own session: the session
// is finished with no winner, no other loop is affected.
func (e *PongEngine) safeTick(s *game.PongSession) (finished, report bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("pong session %s: tick panic: %v", s.ID, r)
			report = s.End("")
			finished = true
		}
	}()
	finished = s.Tick()
	return finished, finished
}

func (e *PongEngine) MovePaddle(id, playerID string, direction int) error {
	s, ok := e.sessions.Get(id)
	if !ok {
		return game.NotFound("game", id)
	}
	return s.MovePaddle(playerID, direction)
}

// EndSession finishes a session from outside the simulation
// (disconnects, administrative shutdown).
func (e *PongEngine) EndSession(id, winnerID string) error {
	s, ok := e.sessions.Get(id)
	if !ok {
		return game.NotFound("game", id)
	}
	if s.End(winnerID) {
		e.report(s)
	}
	e.stopLoop(id)
	return nil
}

// Remove drops the session from the registry and cancels its loop.
func (e *PongEngine) Remove(id string) bool {
	e.stopLoop(id)
	return e.sessions.Remove(id)
}

func (e *PongEngine) stopLoop(id string) {
	e.mu.Lock()
	h := e.loops[id]
	delete(e.loops, id)
	e.mu.Unlock()
	if h != nil {
		h.stop()
	}
}

func (e *PongEngine) report(s *game.PongSession) {
	winner, players := s.Result()
	e.sink.Record(MatchResult{
		SessionID:  s.ID,
		GameType:   game.KindPong,
		Mode:       s.Mode,
		PlayerIDs:  players,
		WinnerID:   winner,
		Duration:   time.Since(s.CreatedAt),
		FinishedAt: time.Now(),
	})
}
