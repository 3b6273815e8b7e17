package server

import (
	"sync"
	"time"
)

type UserState struct {
	ID          string
	Username    string
	InGame      bool
	ConnectedAt time.Time
}

// Presence tracks which users currently hold a live connection. It is
// the UserDirectory the engines resolve display names from.
type Presence struct {
	mu    sync.RWMutex
	users map[string]*UserState
}

func NewPresence() *Presence {
	return &Presence{users: make(map[string]*UserState)}
}

// Connect registers a user as online. Reconnecting replaces the
// previous record.
func (p *Presence) Connect(id, username string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.users[id] = &UserState{
		ID:          id,
		Username:    username,
		ConnectedAt: time.Now(),
	}
}

func (p *Presence) Disconnect(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.users, id)
}

func (p *Presence) SetInGame(id string, inGame bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if u, ok := p.users[id]; ok {
		u.InGame = inGame
	}
}

func (p *Presence) Online(id string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.users[id]
	return ok
}

func (p *Presence) Username(id string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	u, ok := p.users[id]
	if !ok {
		return "", false
	}
	return u.Username, true
}

func (p *Presence) Get(id string) (UserState, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	u, ok := p.users[id]
	if !ok {
		return UserState{}, false
	}
	return *u, true
}

func (p *Presence) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.users)
}
