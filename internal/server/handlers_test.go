package server

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shimizu42/transcendence-sub000/internal/game"
	"github.com/shimizu42/transcendence-sub000/internal/net"
)

func newTestGateway() (*Gateway, *recordingSink) {
	presence := NewPresence()
	sink := &recordingSink{}
	pong := NewPongEngine(NewStore[*game.PongSession](), presence, sink)
	tank := NewTankEngine(NewStore[*game.TankSession](), presence, sink)
	mm := NewMatchmaking(pong, tank)
	tn := NewTournaments(pong, tank)
	return NewGateway(presence, pong, tank, mm, tn), sink
}

func envelope(t *testing.T, msgType string, payload interface{}) net.Envelope {
	t.Helper()
	b, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal %s payload: %v", msgType, err)
	}
	return net.Envelope{Type: msgType, Data: b}
}

// dial identifies a connection without a real websocket underneath;
// handlers only touch the send buffer.
func dial(t *testing.T, g *Gateway, userID, username string) *Connection {
	t.Helper()
	c := g.newConnection(nil)
	g.handle(c, envelope(t, "hello", net.HelloData{UserID: userID, Username: username}))
	msgs := drain(c)
	if len(msgs) != 1 || msgs[0].Type != "welcome" {
		t.Fatalf("hello reply for %s: %+v", userID, msgs)
	}
	return c
}

func drain(c *Connection) []net.Envelope {
	var out []net.Envelope
	for {
		select {
		case b := <-c.send:
			var env net.Envelope
			if json.Unmarshal(b, &env) == nil {
				out = append(out, env)
			}
		default:
			return out
		}
	}
}

func findType(msgs []net.Envelope, msgType string) (net.Envelope, bool) {
	for _, m := range msgs {
		if m.Type == msgType {
			return m, true
		}
	}
	return net.Envelope{}, false
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}

// startInvitedPong drives invite → accept between two dialed users and
// returns the created session id.
func startInvitedPong(t *testing.T, g *Gateway, inviter, invitee *Connection) string {
	t.Helper()
	g.handle(inviter, envelope(t, "invite", net.InviteData{ToUserID: invitee.userID, GameType: "pong"}))
	invMsg, ok := findType(drain(invitee), "gameInvitation")
	if !ok {
		t.Fatal("invitee received no gameInvitation")
	}
	var inv net.InvitationData
	if err := json.Unmarshal(invMsg.Data, &inv); err != nil {
		t.Fatalf("decode invitation: %v", err)
	}

	g.handle(invitee, envelope(t, "inviteResponse", net.InviteResponseData{InvitationID: inv.ID, Response: "accept"}))
	startMsg, ok := findType(drain(inviter), "gameStart")
	if !ok {
		t.Fatal("inviter received no gameStart")
	}
	var gs net.GameStartData
	if err := json.Unmarshal(startMsg.Data, &gs); err != nil {
		t.Fatalf("decode gameStart: %v", err)
	}
	return gs.GameID
}

func TestSecondHelloRejected(t *testing.T) {
	g, _ := newTestGateway()
	c := dial(t, g, "u1", "Alice")

	g.handle(c, envelope(t, "hello", net.HelloData{UserID: "u2", Username: "Mallory"}))
	msgs := drain(c)
	if len(msgs) != 1 || msgs[0].Type != "error" {
		t.Fatalf("expected a single error reply, got %+v", msgs)
	}
	if c.userID != "u1" {
		t.Fatalf("connection identity rewritten to %q", c.userID)
	}
	if g.presence.Online("u2") {
		t.Fatal("second identity registered in presence")
	}
}

func TestInviteResponseOnlyByInvitee(t *testing.T) {
	g, _ := newTestGateway()
	alice := dial(t, g, "alice", "Alice")
	bob := dial(t, g, "bob", "Bob")
	carol := dial(t, g, "carol", "Carol")

	g.handle(alice, envelope(t, "invite", net.InviteData{ToUserID: "bob", GameType: "pong"}))
	invMsg, ok := findType(drain(bob), "gameInvitation")
	if !ok {
		t.Fatal("bob received no gameInvitation")
	}
	var inv net.InvitationData
	if err := json.Unmarshal(invMsg.Data, &inv); err != nil {
		t.Fatalf("decode invitation: %v", err)
	}

	// A third party with the invitation id cannot resolve it.
	g.handle(carol, envelope(t, "inviteResponse", net.InviteResponseData{InvitationID: inv.ID, Response: "accept"}))
	if msg, ok := findType(drain(carol), "error"); !ok {
		t.Fatal("third-party accept was not rejected")
	} else {
		var e net.ErrorData
		json.Unmarshal(msg.Data, &e)
		if e.Kind != "invalidState" {
			t.Fatalf("error kind = %q, want invalidState", e.Kind)
		}
	}
	if _, ok := g.matchmaking.GetInvitation(inv.ID); !ok {
		t.Fatal("invitation consumed by a third party")
	}

	// Nor can the inviter decline on the invitee's behalf.
	g.handle(alice, envelope(t, "inviteResponse", net.InviteResponseData{InvitationID: inv.ID, Response: "decline"}))
	if _, ok := findType(drain(alice), "error"); !ok {
		t.Fatal("inviter resolving own invitation was not rejected")
	}

	// The invitee still can.
	g.handle(bob, envelope(t, "inviteResponse", net.InviteResponseData{InvitationID: inv.ID, Response: "accept"}))
	startMsg, ok := findType(drain(bob), "gameStart")
	if !ok {
		t.Fatal("invitee accept did not start a game")
	}
	var gs net.GameStartData
	json.Unmarshal(startMsg.Data, &gs)
	g.pong.Remove(gs.GameID)
}

func TestLeaveGameEndsSessionForOpponent(t *testing.T) {
	g, sink := newTestGateway()
	alice := dial(t, g, "alice", "Alice")
	bob := dial(t, g, "bob", "Bob")
	gameID := startInvitedPong(t, g, alice, bob)
	defer g.pong.Remove(gameID)

	g.handle(alice, envelope(t, "leaveGame", net.LeaveGameData{GameID: gameID, GameType: "pong"}))

	snap, err := g.pong.Snapshot(gameID)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if snap.Status != string(game.StatusFinished) || snap.Winner != "bob" {
		t.Fatalf("leave did not end the session for the opponent: status=%s winner=%s", snap.Status, snap.Winner)
	}
	if results := sink.all(); len(results) != 1 || results[0].WinnerID != "bob" {
		t.Fatalf("result sink: %+v", results)
	}
	if u, _ := g.presence.Get("alice"); u.InGame {
		t.Fatal("leaver still flagged in-game")
	}

	// The snapshot watcher announces the end to the other participant.
	var msgs []net.Envelope
	waitFor(t, 2*time.Second, func() bool {
		msgs = append(msgs, drain(bob)...)
		_, ok := findType(msgs, "gameEnd")
		return ok
	}, "opponent never received gameEnd")
}

func TestTournamentMatchResultFeedsBracket(t *testing.T) {
	g, _ := newTestGateway()
	ids := []string{"p1", "p2", "p3", "p4"}
	conns := make(map[string]*Connection)
	for _, id := range ids {
		conns[id] = dial(t, g, id, id)
	}
	for _, id := range ids {
		g.handle(conns[id], envelope(t, "joinTournamentQueue", net.QueueData{GameType: "pong"}))
	}

	createdMsg, ok := findType(drain(conns["p1"]), "tournamentCreated")
	if !ok {
		t.Fatal("no tournamentCreated broadcast")
	}
	var view net.TournamentView
	if err := json.Unmarshal(createdMsg.Data, &view); err != nil {
		t.Fatalf("decode tournament: %v", err)
	}

	g.handle(conns["p1"], envelope(t, "startMatch", net.StartMatchData{
		TournamentID: view.ID,
		MatchID:      view.Matches[0].ID,
	}))
	startMsg, ok := findType(drain(conns["p1"]), "gameStart")
	if !ok {
		t.Fatal("semifinal 1 did not start")
	}
	var gs net.GameStartData
	json.Unmarshal(startMsg.Data, &gs)

	// p2 walks out; the session finishes with p1 as winner and the
	// bracket must pick the result up without any finishMatch message.
	g.handle(conns["p2"], envelope(t, "leaveGame", net.LeaveGameData{GameID: gs.GameID, GameType: "pong"}))

	waitFor(t, 3*time.Second, func() bool {
		v, ok := g.tournaments.Get(view.ID)
		if !ok {
			return false
		}
		return v.Matches[0].Status == "finished" && v.Matches[0].WinnerID == "p1" &&
			v.Matches[1].Status == "playing"
	}, "bracket never recorded the session result and advanced")

	v, _ := g.tournaments.Get(view.ID)
	g.pong.Remove(v.Matches[1].SessionID)
	g.pong.Remove(gs.GameID)
}
