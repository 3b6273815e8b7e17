package server

import (
	"errors"
	"fmt"
	"testing"

	"github.com/shimizu42/transcendence-sub000/internal/game"
)

// fakeEngine records CreateSession calls without running anything.
type fakeEngine struct {
	created [][]string
	modes   []game.Mode
	started []string
	next    int
}

func (f *fakeEngine) CreateSession(playerIDs []string, mode game.Mode) (string, error) {
	f.created = append(f.created, append([]string(nil), playerIDs...))
	f.modes = append(f.modes, mode)
	f.next++
	return fmt.Sprintf("session-%d", f.next), nil
}

func (f *fakeEngine) Start(id string) error {
	f.started = append(f.started, id)
	return nil
}

func TestInviteAcceptCreatesTwoPlayerSession(t *testing.T) {
	pong := &fakeEngine{}
	mm := NewMatchmaking(pong, &fakeEngine{})

	inv, err := mm.Invite("alice", "bob", game.KindPong)
	if err != nil {
		t.Fatalf("Invite failed: %v", err)
	}
	if inv.Status != InvitePending {
		t.Fatalf("expected pending invitation, got %s", inv.Status)
	}

	sessionID, accepted, err := mm.Accept(inv.ID)
	if err != nil {
		t.Fatalf("Accept failed: %v", err)
	}
	if sessionID == "" {
		t.Fatal("Accept returned empty session id")
	}
	if accepted.FromUserID != "alice" || accepted.ToUserID != "bob" {
		t.Fatalf("wrong participants: %+v", accepted)
	}
	if len(pong.created) != 1 {
		t.Fatalf("expected 1 session, got %d", len(pong.created))
	}
	if got := pong.created[0]; got[0] != "alice" || got[1] != "bob" {
		t.Fatalf("wrong player order: %v", got)
	}
	if pong.modes[0] != game.TwoPlayer {
		t.Fatalf("expected 2player mode, got %s", pong.modes[0])
	}

	// Accepted invitations are gone.
	if _, ok := mm.GetInvitation(inv.ID); ok {
		t.Fatal("invitation still present after accept")
	}
	if _, _, err := mm.Accept(inv.ID); !errors.Is(err, game.ErrNotFound) {
		t.Fatalf("second accept: expected not found, got %v", err)
	}
}

func TestInviteDeclineRemovesInvitation(t *testing.T) {
	mm := NewMatchmaking(&fakeEngine{}, &fakeEngine{})

	inv, err := mm.Invite("alice", "bob", game.KindTank)
	if err != nil {
		t.Fatalf("Invite failed: %v", err)
	}
	declined, err := mm.Decline(inv.ID)
	if err != nil {
		t.Fatalf("Decline failed: %v", err)
	}
	if declined.Status != InviteDeclined {
		t.Fatalf("expected declined status, got %s", declined.Status)
	}
	if _, ok := mm.GetInvitation(inv.ID); ok {
		t.Fatal("invitation still present after decline")
	}
}

func TestQueueFillsInCallOrder(t *testing.T) {
	pong := &fakeEngine{}
	mm := NewMatchmaking(pong, &fakeEngine{})

	for i, id := range []string{"p1", "p2", "p3"} {
		sessionID, pos, err := mm.JoinQueue(game.KindPong, id)
		if err != nil {
			t.Fatalf("JoinQueue(%s) failed: %v", id, err)
		}
		if sessionID != "" {
			t.Fatalf("session created after %d joins", i+1)
		}
		if pos != i+1 {
			t.Fatalf("expected position %d, got %d", i+1, pos)
		}
	}

	sessionID, _, err := mm.JoinQueue(game.KindPong, "p4")
	if err != nil {
		t.Fatalf("fourth JoinQueue failed: %v", err)
	}
	if sessionID == "" {
		t.Fatal("expected session on fourth join")
	}
	if len(pong.created) != 1 {
		t.Fatalf("expected 1 session, got %d", len(pong.created))
	}
	want := []string{"p1", "p2", "p3", "p4"}
	got := pong.created[0]
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("player order: want %v, got %v", want, got)
		}
	}
	if pong.modes[0] != game.FourPlayer {
		t.Fatalf("expected 4player mode, got %s", pong.modes[0])
	}
	if mm.QueueLength(game.KindPong) != 0 {
		t.Fatalf("queue not drained: %d left", mm.QueueLength(game.KindPong))
	}
}

func TestFifthPlayerStartsNextQueue(t *testing.T) {
	pong := &fakeEngine{}
	mm := NewMatchmaking(pong, &fakeEngine{})

	for _, id := range []string{"p1", "p2", "p3", "p4"} {
		if _, _, err := mm.JoinQueue(game.KindPong, id); err != nil {
			t.Fatalf("JoinQueue(%s) failed: %v", id, err)
		}
	}
	sessionID, pos, err := mm.JoinQueue(game.KindPong, "p5")
	if err != nil {
		t.Fatalf("fifth JoinQueue failed: %v", err)
	}
	if sessionID != "" {
		t.Fatal("fifth player must not get a session")
	}
	if pos != 1 {
		t.Fatalf("fifth player should head the next queue, got position %d", pos)
	}
}

func TestDuplicateQueueJoinConflicts(t *testing.T) {
	mm := NewMatchmaking(&fakeEngine{}, &fakeEngine{})

	if _, _, err := mm.JoinQueue(game.KindTank, "p1"); err != nil {
		t.Fatalf("first join failed: %v", err)
	}
	if _, _, err := mm.JoinQueue(game.KindTank, "p1"); !errors.Is(err, game.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if mm.QueueLength(game.KindTank) != 1 {
		t.Fatalf("duplicate join changed queue length: %d", mm.QueueLength(game.KindTank))
	}
}

func TestQueuesAreIndependentPerGameType(t *testing.T) {
	mm := NewMatchmaking(&fakeEngine{}, &fakeEngine{})

	mm.JoinQueue(game.KindPong, "p1")
	mm.JoinQueue(game.KindTank, "p1")

	if mm.QueueLength(game.KindPong) != 1 || mm.QueueLength(game.KindTank) != 1 {
		t.Fatalf("queues leaked across game types: pong=%d tank=%d",
			mm.QueueLength(game.KindPong), mm.QueueLength(game.KindTank))
	}
}

func TestLeaveQueueIsIdempotent(t *testing.T) {
	mm := NewMatchmaking(&fakeEngine{}, &fakeEngine{})

	mm.JoinQueue(game.KindPong, "p1")
	mm.JoinQueue(game.KindPong, "p2")

	mm.LeaveQueue(game.KindPong, "p1")
	mm.LeaveQueue(game.KindPong, "p1")
	if mm.QueueLength(game.KindPong) != 1 {
		t.Fatalf("expected 1 queued player, got %d", mm.QueueLength(game.KindPong))
	}

	// p2 moves up: three more players complete the group.
	mm.JoinQueue(game.KindPong, "p3")
	mm.JoinQueue(game.KindPong, "p4")
	sessionID, _, err := mm.JoinQueue(game.KindPong, "p5")
	if err != nil {
		t.Fatalf("JoinQueue failed: %v", err)
	}
	if sessionID == "" {
		t.Fatal("expected session once four players queued")
	}
}

func TestLeaveAllQueuesDropsEveryMembership(t *testing.T) {
	mm := NewMatchmaking(&fakeEngine{}, &fakeEngine{})

	mm.JoinQueue(game.KindPong, "p1")
	mm.JoinQueue(game.KindTank, "p1")
	mm.LeaveAllQueues("p1")

	if mm.QueueLength(game.KindPong) != 0 || mm.QueueLength(game.KindTank) != 0 {
		t.Fatalf("memberships remain: pong=%d tank=%d",
			mm.QueueLength(game.KindPong), mm.QueueLength(game.KindTank))
	}
}
