package server

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shimizu42/transcendence-sub000/internal/game"
)

// GameEngine is the slice of an engine that matchmaking and
// tournaments need: session creation and start.
type GameEngine interface {
	CreateSession(playerIDs []string, mode game.Mode) (string, error)
	Start(id string) error
}

type InviteStatus string

const (
	InvitePending  InviteStatus = "pending"
	InviteAccepted InviteStatus = "accepted"
	InviteDeclined InviteStatus = "declined"
)

// Invitation is a pending direct challenge. Terminal states are not
// retained: accept and decline both delete the invitation.
type Invitation struct {
	ID         string
	FromUserID string
	ToUserID   string
	GameType   game.Kind
	Status     InviteStatus
	CreatedAt  time.Time
}

const queueSize = 4

// Matchmaking owns invitations and the 4-player join queues, one
// queue per game type. Presence/availability validation is the
// caller's job; the manager only records and resolves.
type Matchmaking struct {
	mu          sync.Mutex
	invitations map[string]*Invitation
	queues      map[game.Kind][]string
	engines     map[game.Kind]GameEngine
}

func NewMatchmaking(pong, tank GameEngine) *Matchmaking {
	return &Matchmaking{
		invitations: make(map[string]*Invitation),
		queues:      make(map[game.Kind][]string),
		engines: map[game.Kind]GameEngine{
			game.KindPong: pong,
			game.KindTank: tank,
		},
	}
}

func (m *Matchmaking) engine(kind game.Kind) (GameEngine, bool) {
	e, ok := m.engines[kind]
	return e, ok && e != nil
}

// Invite records a pending invitation from one player to another.
func (m *Matchmaking) Invite(fromUserID, toUserID string, kind game.Kind) (*Invitation, error) {
	if _, ok := m.engine(kind); !ok {
		return nil, game.NotFound("gameType", string(kind))
	}

	inv := &Invitation{
		ID:         uuid.NewString(),
		FromUserID: fromUserID,
		ToUserID:   toUserID,
		GameType:   kind,
		Status:     InvitePending,
		CreatedAt:  time.Now(),
	}

	m.mu.Lock()
	m.invitations[inv.ID] = inv
	m.mu.Unlock()

	log.Printf("invitation %s: %s -> %s (%s)", inv.ID, fromUserID, toUserID, kind)
	return inv, nil
}

func (m *Matchmaking) GetInvitation(id string) (*Invitation, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invitations[id]
	if !ok {
		return nil, false
	}
	cp := *inv
	return &cp, true
}

// Accept resolves a pending invitation into a fresh 2-player session
// of the invitation's game type and deletes the invitation. Racing a
// decline (or a second accept) is an expected InvalidState.
func (m *Matchmaking) Accept(id string) (sessionID string, inv *Invitation, err error) {
	m.mu.Lock()
	stored, ok := m.invitations[id]
	if !ok {
		m.mu.Unlock()
		return "", nil, game.NotFound("invitation", id)
	}
	if stored.Status != InvitePending {
		m.mu.Unlock()
		return "", nil, game.InvalidState("invitation", id)
	}
	stored.Status = InviteAccepted
	delete(m.invitations, id)
	cp := *stored
	m.mu.Unlock()

	engine, _ := m.engine(cp.GameType)
	sessionID, err = engine.CreateSession([]string{cp.FromUserID, cp.ToUserID}, game.TwoPlayer)
	if err != nil {
		return "", nil, err
	}
	return sessionID, &cp, nil
}

// Decline resolves a pending invitation and deletes it.
func (m *Matchmaking) Decline(id string) (*Invitation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	inv, ok := m.invitations[id]
	if !ok {
		return nil, game.NotFound("invitation", id)
	}
	if inv.Status != InvitePending {
		return nil, game.InvalidState("invitation", id)
	}
	inv.Status = InviteDeclined
	delete(m.invitations, id)
	cp := *inv
	return &cp, nil
}

// JoinQueue appends the player to the 4-player queue for a game type.
// When the queue reaches four players, the first four leave the queue
// together and become a new 4-player session, returned by id; until
// then the player's 1-based position is returned.
func (m *Matchmaking) JoinQueue(kind game.Kind, playerID string) (sessionID string, position int, err error) {
	engine, ok := m.engine(kind)
	if !ok {
		return "", 0, game.NotFound("gameType", string(kind))
	}

	m.mu.Lock()
	q := m.queues[kind]
	for _, id := range q {
		if id == playerID {
			m.mu.Unlock()
			return "", 0, game.Conflict("queue", playerID)
		}
	}
	q = append(q, playerID)

	if len(q) < queueSize {
		m.queues[kind] = q
		pos := len(q)
		m.mu.Unlock()
		return "", pos, nil
	}

	players := append([]string(nil), q[:queueSize]...)
	m.queues[kind] = append([]string(nil), q[queueSize:]...)
	m.mu.Unlock()

	sessionID, err = engine.CreateSession(players, game.FourPlayer)
	if err != nil {
		return "", 0, err
	}
	log.Printf("queue %s full, session %s created for %v", kind, sessionID, players)
	return sessionID, 0, nil
}

// LeaveQueue removes the player if queued. Idempotent.
func (m *Matchmaking) LeaveQueue(kind game.Kind, playerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	q := m.queues[kind]
	for i, id := range q {
		if id == playerID {
			m.queues[kind] = append(q[:i], q[i+1:]...)
			return
		}
	}
}

// LeaveAllQueues drops the player from every game-type queue; used on
// disconnect.
func (m *Matchmaking) LeaveAllQueues(playerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for kind, q := range m.queues {
		for i, id := range q {
			if id == playerID {
				m.queues[kind] = append(q[:i], q[i+1:]...)
				break
			}
		}
	}
}

func (m *Matchmaking) QueueLength(kind game.Kind) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queues[kind])
}
