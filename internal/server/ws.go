package server

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/shimizu42/transcendence-sub000/internal/net"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local dev
	},
}

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	snapshotPeriod = 50 * time.Millisecond
)

// Gateway owns the websocket boundary: one Connection per client,
// dispatch of inbound envelopes to the managers, and per-session
// snapshot broadcast loops.
type Gateway struct {
	presence    *Presence
	pong        *PongEngine
	tank        *TankEngine
	matchmaking *Matchmaking
	tournaments *Tournaments

	mu       sync.RWMutex
	conns    map[string]*Connection
	watchers map[string]struct{}
}

func NewGateway(presence *Presence, pong *PongEngine, tank *TankEngine, mm *Matchmaking, tn *Tournaments) *Gateway {
	return &Gateway{
		presence:    presence,
		pong:        pong,
		tank:        tank,
		matchmaking: mm,
		tournaments: tn,
		conns:       make(map[string]*Connection),
		watchers:    make(map[string]struct{}),
	}
}

type Connection struct {
	gw     *Gateway
	conn   *websocket.Conn
	send   chan []byte
	userID string
}

func (g *Gateway) newConnection(ws *websocket.Conn) *Connection {
	return &Connection{
		gw:   g,
		conn: ws,
		send: make(chan []byte, 256),
	}
}

// Send marshals an envelope onto the outbound buffer. Messages are
// dropped when the buffer is full rather than blocking a game loop.
func (c *Connection) Send(msgType string, payload interface{}) {
	data, err := net.Marshal(msgType, payload)
	if err != nil {
		log.Printf("Error marshaling %s message: %v", msgType, err)
		return
	}
	select {
	case c.send <- data:
	default:
		log.Printf("Send buffer full for user %s, dropping %s", c.userID, msgType)
	}
}

// SendTo delivers to a user by id, if connected.
func (g *Gateway) SendTo(userID, msgType string, payload interface{}) {
	g.mu.RLock()
	c, ok := g.conns[userID]
	g.mu.RUnlock()
	if ok {
		c.Send(msgType, payload)
	}
}

func (g *Gateway) broadcast(userIDs []string, msgType string, payload interface{}) {
	for _, id := range userIDs {
		g.SendTo(id, msgType, payload)
	}
}

func (g *Gateway) register(c *Connection) {
	g.mu.Lock()
	old, ok := g.conns[c.userID]
	g.conns[c.userID] = c
	g.mu.Unlock()
	if ok && old != c {
		old.conn.Close()
	}
}

func (g *Gateway) unregister(c *Connection) {
	if c.userID == "" {
		return
	}
	g.mu.Lock()
	if g.conns[c.userID] == c {
		delete(g.conns, c.userID)
	}
	g.mu.Unlock()
}

func (c *Connection) readPump() {
	defer func() {
		c.gw.unregister(c)
		if c.userID != "" {
			c.gw.presence.Disconnect(c.userID)
			c.gw.matchmaking.LeaveAllQueues(c.userID)
			c.gw.tournaments.LeaveAllQueues(c.userID)
			log.Printf("User %s disconnected", c.userID)
		}
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		var env net.Envelope
		if err := json.Unmarshal(message, &env); err != nil || env.Type == "" {
			continue
		}
		c.gw.handle(c, env)
	}
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Send queued messages
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// watchPong pushes snapshots to the participants every 50ms until the
// session finishes, then emits gameEnd. At most one watcher runs per
// session.
func (g *Gateway) watchPong(sessionID string, playerIDs []string) {
	if !g.claimWatcher(sessionID) {
		return
	}
	go func() {
		defer g.releaseWatcher(sessionID)
		ticker := time.NewTicker(snapshotPeriod)
		defer ticker.Stop()

		for range ticker.C {
			snap, err := g.pong.Snapshot(sessionID)
			if err != nil {
				return
			}
			g.broadcast(playerIDs, "gameState", snap)
			if snap.Status == "finished" {
				g.finishBroadcast(sessionID, snap.Winner, playerIDs)
				return
			}
		}
	}()
}

func (g *Gateway) watchTank(sessionID string, playerIDs []string) {
	if !g.claimWatcher(sessionID) {
		return
	}
	go func() {
		defer g.releaseWatcher(sessionID)
		ticker := time.NewTicker(snapshotPeriod)
		defer ticker.Stop()

		for range ticker.C {
			snap, err := g.tank.Snapshot(sessionID)
			if err != nil {
				return
			}
			g.broadcast(playerIDs, "gameState", snap)
			if snap.Status == "finished" {
				g.finishBroadcast(sessionID, snap.Winner, playerIDs)
				return
			}
		}
	}()
}

func (g *Gateway) finishBroadcast(sessionID, winnerID string, playerIDs []string) {
	g.broadcast(playerIDs, "gameEnd", net.GameEndData{GameID: sessionID, WinnerID: winnerID})
	for _, id := range playerIDs {
		g.presence.SetInGame(id, false)
	}
	g.advanceTournament(sessionID, winnerID)
}

func (g *Gateway) claimWatcher(sessionID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.watchers[sessionID]; ok {
		return false
	}
	g.watchers[sessionID] = struct{}{}
	return true
}

func (g *Gateway) releaseWatcher(sessionID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.watchers, sessionID)
}

// Handler returns the /ws upgrade handler.
func (g *Gateway) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("WebSocket upgrade error: %v", err)
			return
		}

		c := g.newConnection(ws)
		go c.writePump()
		go c.readPump()

		log.Printf("Client connected")
	}
}
