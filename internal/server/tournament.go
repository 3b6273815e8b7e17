package server

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shimizu42/transcendence-sub000/internal/game"
	"github.com/shimizu42/transcendence-sub000/internal/net"
)

type TournamentStatus string

const (
	TournamentSemifinal TournamentStatus = "semifinal"
	TournamentFinal     TournamentStatus = "final"
	TournamentFinished  TournamentStatus = "finished"
)

type MatchStatus string

const (
	MatchWaiting  MatchStatus = "waiting"
	MatchPlaying  MatchStatus = "playing"
	MatchFinished MatchStatus = "finished"
)

type TournamentMatch struct {
	ID          string
	Round       int
	MatchNumber int
	Player1ID   string
	Player2ID   string
	WinnerID    string
	SessionID   string
	Status      MatchStatus
	CreatedAt   time.Time
}

// Tournament is a 4-player single-elimination bracket: two semifinals
// feed one final.
type Tournament struct {
	ID           string
	GameType     game.Kind
	PlayerIDs    []string
	Matches      []*TournamentMatch
	CurrentRound int
	Status       TournamentStatus
	WinnerID     string
	CreatedAt    time.Time
}

const (
	roundSemifinal = 1
	roundFinal     = 2
)

// Tournaments sequences brackets and delegates actual play to the
// engines. It never reaches into session internals; matches reference
// sessions by id only.
type Tournaments struct {
	mu      sync.Mutex
	items   map[string]*Tournament
	queues  map[game.Kind][]string
	engines map[game.Kind]GameEngine
}

func NewTournaments(pong, tank GameEngine) *Tournaments {
	return &Tournaments{
		items:  make(map[string]*Tournament),
		queues: make(map[game.Kind][]string),
		engines: map[game.Kind]GameEngine{
			game.KindPong: pong,
			game.KindTank: tank,
		},
	}
}

// Create seeds a bracket from exactly four players in join order:
// semifinal 1 is players[0] vs players[1], semifinal 2 is players[2]
// vs players[3].
func (t *Tournaments) Create(playerIDs []string, kind game.Kind) (*Tournament, error) {
	if e, ok := t.engines[kind]; !ok || e == nil {
		return nil, game.NotFound("gameType", string(kind))
	}
	if len(playerIDs) != 4 {
		return nil, game.InvalidState("tournament", "")
	}

	now := time.Now()
	tn := &Tournament{
		ID:           uuid.NewString(),
		GameType:     kind,
		PlayerIDs:    append([]string(nil), playerIDs...),
		CurrentRound: roundSemifinal,
		Status:       TournamentSemifinal,
		CreatedAt:    now,
	}
	for i := 0; i < 2; i++ {
		tn.Matches = append(tn.Matches, &TournamentMatch{
			ID:          uuid.NewString(),
			Round:       roundSemifinal,
			MatchNumber: i + 1,
			Player1ID:   playerIDs[i*2],
			Player2ID:   playerIDs[i*2+1],
			Status:      MatchWaiting,
			CreatedAt:   now,
		})
	}

	t.mu.Lock()
	t.items[tn.ID] = tn
	t.mu.Unlock()

	log.Printf("tournament %s created (%s, players=%v)", tn.ID, kind, playerIDs)
	return tn, nil
}

// Get returns a read-only view of the tournament.
func (t *Tournaments) Get(id string) (net.TournamentView, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	tn, ok := t.items[id]
	if !ok {
		return net.TournamentView{}, false
	}
	return viewOf(tn), true
}

// StartMatch creates and starts a 2-player session for a waiting
// match through the engine for the tournament's game type.
func (t *Tournaments) StartMatch(tournamentID, matchID string) (sessionID string, err error) {
	t.mu.Lock()
	tn, ok := t.items[tournamentID]
	if !ok {
		t.mu.Unlock()
		return "", game.NotFound("tournament", tournamentID)
	}
	match := tn.match(matchID)
	if match == nil {
		t.mu.Unlock()
		return "", game.NotFound("match", matchID)
	}
	if match.Status != MatchWaiting || match.Player1ID == "" || match.Player2ID == "" {
		t.mu.Unlock()
		return "", game.InvalidState("match", matchID)
	}
	engine := t.engines[tn.GameType]
	p1, p2 := match.Player1ID, match.Player2ID
	t.mu.Unlock()

	// Engine call happens outside the controller lock.
	sessionID, err = engine.CreateSession([]string{p1, p2}, game.TwoPlayer)
	if err != nil {
		return "", err
	}
	if err := engine.Start(sessionID); err != nil {
		return "", err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	// Re-check; the tournament may have been removed while the
	// session was being created.
	if tn, ok = t.items[tournamentID]; ok {
		if match = tn.match(matchID); match != nil {
			match.SessionID = sessionID
			match.Status = MatchPlaying
		}
	}
	return sessionID, nil
}

// FinishMatch records a result. Completing the second semifinal
// synthesizes the final; completing the final finishes the
// tournament.
func (t *Tournaments) FinishMatch(tournamentID, matchID, winnerID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	tn, ok := t.items[tournamentID]
	if !ok {
		return game.NotFound("tournament", tournamentID)
	}
	match := tn.match(matchID)
	if match == nil {
		return game.NotFound("match", matchID)
	}
	return t.finishMatchLocked(tn, match, winnerID)
}

// FinishBySession records a delegated session's result against the
// playing match that references it, so bracket advancement never
// depends on a client reporting the winner. Returns the owning
// tournament's id when a match was resolved.
func (t *Tournaments) FinishBySession(sessionID, winnerID string) (tournamentID string, ok bool) {
	if sessionID == "" {
		return "", false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, tn := range t.items {
		for _, m := range tn.Matches {
			if m.SessionID == sessionID && m.Status == MatchPlaying {
				if err := t.finishMatchLocked(tn, m, winnerID); err != nil {
					return "", false
				}
				return tn.ID, true
			}
		}
	}
	return "", false
}

func (t *Tournaments) finishMatchLocked(tn *Tournament, match *TournamentMatch, winnerID string) error {
	if match.Status == MatchFinished {
		return game.InvalidState("match", match.ID)
	}

	match.WinnerID = winnerID
	match.Status = MatchFinished

	if !tn.roundFinished(tn.CurrentRound) {
		return nil
	}
	switch tn.CurrentRound {
	case roundSemifinal:
		tn.buildFinal()
	case roundFinal:
		tn.Status = TournamentFinished
		tn.WinnerID = winnerID
		log.Printf("tournament %s finished, winner %s", tn.ID, winnerID)
	}
	return nil
}

func (tn *Tournament) match(id string) *TournamentMatch {
	for _, m := range tn.Matches {
		if m.ID == id {
			return m
		}
	}
	return nil
}

func (tn *Tournament) roundFinished(round int) bool {
	for _, m := range tn.Matches {
		if m.Round == round && m.Status != MatchFinished {
			return false
		}
	}
	return true
}

// buildFinal pairs the semifinal winners. No-op if a winner is
// missing.
func (tn *Tournament) buildFinal() {
	var winners []string
	for _, m := range tn.Matches {
		if m.Round == roundSemifinal && m.Status == MatchFinished && m.WinnerID != "" {
			winners = append(winners, m.WinnerID)
		}
	}
	if len(winners) != 2 {
		return
	}

	tn.Matches = append(tn.Matches, &TournamentMatch{
		ID:          uuid.NewString(),
		Round:       roundFinal,
		MatchNumber: 1,
		Player1ID:   winners[0],
		Player2ID:   winners[1],
		Status:      MatchWaiting,
		CreatedAt:   time.Now(),
	})
	tn.CurrentRound = roundFinal
	tn.Status = TournamentFinal
}

// NextMatch returns the earliest waiting match of the current round.
func (t *Tournaments) NextMatch(tournamentID string) (net.MatchView, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	tn, ok := t.items[tournamentID]
	if !ok {
		return net.MatchView{}, game.NotFound("tournament", tournamentID)
	}
	for _, m := range tn.Matches {
		if m.Round == tn.CurrentRound && m.Status == MatchWaiting {
			return matchViewOf(m), nil
		}
	}
	return net.MatchView{}, game.NotFound("match", "")
}

// JoinQueue queues a player for a tournament of the given game type;
// the fourth distinct join creates the tournament from the queued
// players in join order.
func (t *Tournaments) JoinQueue(kind game.Kind, playerID string) (*Tournament, int, error) {
	if e, ok := t.engines[kind]; !ok || e == nil {
		return nil, 0, game.NotFound("gameType", string(kind))
	}

	t.mu.Lock()
	q := t.queues[kind]
	for i, id := range q {
		if id == playerID {
			t.mu.Unlock()
			return nil, i + 1, game.Conflict("tournamentQueue", playerID)
		}
	}
	q = append(q, playerID)
	if len(q) < queueSize {
		t.queues[kind] = q
		pos := len(q)
		t.mu.Unlock()
		return nil, pos, nil
	}
	players := append([]string(nil), q[:queueSize]...)
	t.queues[kind] = append([]string(nil), q[queueSize:]...)
	t.mu.Unlock()

	tn, err := t.Create(players, kind)
	if err != nil {
		return nil, 0, err
	}
	return tn, 0, nil
}

func (t *Tournaments) LeaveQueue(kind game.Kind, playerID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	q := t.queues[kind]
	for i, id := range q {
		if id == playerID {
			t.queues[kind] = append(q[:i], q[i+1:]...)
			return
		}
	}
}

// LeaveAllQueues drops the player from every game-type queue; used on
// disconnect.
func (t *Tournaments) LeaveAllQueues(playerID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for kind, q := range t.queues {
		for i, id := range q {
			if id == playerID {
				t.queues[kind] = append(q[:i], q[i+1:]...)
				break
			}
		}
	}
}

func (t *Tournaments) QueueLength(kind game.Kind) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.queues[kind])
}

// Remove drops the tournament. Sessions already delegated to the
// engines keep running and must be ended separately if desired.
func (t *Tournaments) Remove(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.items[id]
	delete(t.items, id)
	return ok
}

func viewOf(tn *Tournament) net.TournamentView {
	v := net.TournamentView{
		ID:           tn.ID,
		GameType:     string(tn.GameType),
		PlayerIDs:    append([]string(nil), tn.PlayerIDs...),
		CurrentRound: tn.CurrentRound,
		Status:       string(tn.Status),
		WinnerID:     tn.WinnerID,
	}
	for _, m := range tn.Matches {
		v.Matches = append(v.Matches, matchViewOf(m))
	}
	return v
}

func matchViewOf(m *TournamentMatch) net.MatchView {
	return net.MatchView{
		ID:          m.ID,
		Round:       m.Round,
		MatchNumber: m.MatchNumber,
		Player1ID:   m.Player1ID,
		Player2ID:   m.Player2ID,
		WinnerID:    m.WinnerID,
		SessionID:   m.SessionID,
		Status:      m.Status.String(),
	}
}

func (s MatchStatus) String() string { return string(s) }
