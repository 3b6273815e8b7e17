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

// TankEngine runs the authoritative tank battles. Same shape as
// PongEngine: one tick goroutine per playing session.
type TankEngine struct {
	sessions *Store[*game.TankSession]
	users    UserDirectory
	sink     ResultSink

	mu    sync.Mutex
	loops map[string]*loopHandle
}

func NewTankEngine(sessions *Store[*game.TankSession], users UserDirectory, sink ResultSink) *TankEngine {
	if sink == nil {
		sink = LogSink{}
	}
	return &TankEngine{
		sessions: sessions,
		users:    users,
		sink:     sink,
		loops:    make(map[string]*loopHandle),
	}
}

func (e *TankEngine) CreateSession(playerIDs []string, mode game.Mode) (string, error) {
	id := uuid.NewString()
	s, err := game.NewTankSession(id, e.resolvePlayers(playerIDs), mode)
	if err != nil {
		return "", err
	}
	e.sessions.Put(id, s)
	log.Printf("tank session %s created (%s, players=%v)", id, mode, playerIDs)
	return id, nil
}

func (e *TankEngine) resolvePlayers(playerIDs []string) []game.PlayerInfo {
	players := make([]game.PlayerInfo, 0, len(playerIDs))
	for i, id := range playerIDs {
		name := fmt.Sprintf("Tank%d", i+1)
		if e.users != nil {
			if n, ok := e.users.Username(id); ok {
				name = n
			}
		}
		players = append(players, game.PlayerInfo{ID: id, Username: name})
	}
	return players
}

func (e *TankEngine) Get(id string) (*game.TankSession, bool) {
	return e.sessions.Get(id)
}

func (e *TankEngine) Snapshot(id string) (net.TankState, error) {
	s, ok := e.sessions.Get(id)
	if !ok {
		return net.TankState{}, game.NotFound("game", id)
	}
	return s.Snapshot(), nil
}

func (e *TankEngine) Start(id string) error {
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
	log.Printf("tank session %s started", id)
	return nil
}

func (e *TankEngine) run(s *game.TankSession, h *loopHandle) {
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

func (e *TankEngine) safeTick(s *game.TankSession) (finished, report bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("tank session %s: tick panic: %v", s.ID, r)
			report = s.End("")
			finished = true
		}
	}()
	finished = s.Tick(time.Now())
	return finished, finished
}

func (e *TankEngine) ApplyControls(id, playerID string, c game.TankControls) error {
	s, ok := e.sessions.Get(id)
	if !ok {
		return game.NotFound("game", id)
	}
	return s.ApplyControls(playerID, c, time.Now())
}

func (e *TankEngine) EndSession(id, winnerID string) error {
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

// Restart builds a fresh session for the same players and retires the
// old one. The new session has a new id and starts in waiting.
func (e *TankEngine) Restart(id string) (string, error) {
	old, ok := e.sessions.Get(id)
	if !ok {
		return "", game.NotFound("game", id)
	}
	_, players := old.Result()
	newID, err := e.CreateSession(players, old.Mode)
	if err != nil {
		return "", err
	}
	e.Remove(id)
	return newID, nil
}

func (e *TankEngine) Remove(id string) bool {
	e.stopLoop(id)
	return e.sessions.Remove(id)
}

func (e *TankEngine) stopLoop(id string) {
	e.mu.Lock()
	h := e.loops[id]
	delete(e.loops, id)
	e.mu.Unlock()
	if h != nil {
		h.stop()
	}
}

func (e *TankEngine) report(s *game.TankSession) {
	winner, players := s.Result()
	e.sink.Record(MatchResult{
		SessionID:  s.ID,
		GameType:   game.KindTank,
		Mode:       s.Mode,
		PlayerIDs:  players,
		WinnerID:   winner,
		Duration:   time.Since(s.CreatedAt),
		FinishedAt: time.Now(),
	})
}
