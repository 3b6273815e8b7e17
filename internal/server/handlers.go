package server

import (
	"encoding/json"
	"errors"
	"log"

	"github.com/shimizu42/transcendence-sub000/internal/game"
	"github.com/shimizu42/transcendence-sub000/internal/net"
)

// handle dispatches one inbound envelope. Everything except hello
// requires an identified connection.
func (g *Gateway) handle(c *Connection, env net.Envelope) {
	if env.Type == "hello" {
		g.handleHello(c, env.Data)
		return
	}
	if c.userID == "" {
		c.Send("error", net.ErrorData{Kind: "invalidState", Message: "hello required"})
		return
	}

	switch env.Type {
	case "invite":
		g.handleInvite(c, env.Data)
	case "inviteResponse":
		g.handleInviteResponse(c, env.Data)
	case "paddleMove":
		g.handlePaddleMove(c, env.Data)
	case "tankControls":
		g.handleTankControls(c, env.Data)
	case "joinQueue":
		g.handleJoinQueue(c, env.Data)
	case "leaveQueue":
		g.handleLeaveQueue(c, env.Data)
	case "joinGame":
		g.handleJoinGame(c, env.Data)
	case "leaveGame":
		g.handleLeaveGame(c, env.Data)
	case "tankRestart":
		g.handleTankRestart(c, env.Data)
	case "joinTournamentQueue":
		g.handleJoinTournamentQueue(c, env.Data)
	case "leaveTournamentQueue":
		g.handleLeaveTournamentQueue(c, env.Data)
	case "startMatch":
		g.handleStartMatch(c, env.Data)
	case "finishMatch":
		g.handleFinishMatch(c, env.Data)
	case "nextMatch":
		g.handleNextMatch(c, env.Data)
	default:
		log.Printf("Unknown message type %q from %s", env.Type, c.userID)
	}
}

func (g *Gateway) handleHello(c *Connection, data json.RawMessage) {
	// A connection identifies itself once; userID is read by watcher
	// goroutines and must not change afterwards.
	if c.userID != "" {
		c.Send("error", net.ErrorData{Kind: "invalidState", Message: "already identified"})
		return
	}
	var hello net.HelloData
	if err := json.Unmarshal(data, &hello); err != nil || hello.UserID == "" {
		c.Send("error", net.ErrorData{Kind: "invalidState", Message: "bad hello"})
		return
	}
	c.userID = hello.UserID
	g.presence.Connect(hello.UserID, hello.Username)
	g.register(c)
	c.Send("welcome", net.WelcomeData{UserID: hello.UserID})
	log.Printf("User %s (%s) connected", hello.UserID, hello.Username)
}

func (g *Gateway) handleInvite(c *Connection, data json.RawMessage) {
	var msg net.InviteData
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	kind, err := parseKind(msg.GameType)
	if err != nil {
		g.sendError(c, err)
		return
	}
	if msg.ToUserID == c.userID {
		g.sendError(c, game.InvalidState("invitation", ""))
		return
	}
	if !g.presence.Online(msg.ToUserID) {
		g.sendError(c, game.NotFound("user", msg.ToUserID))
		return
	}

	inv, err := g.matchmaking.Invite(c.userID, msg.ToUserID, kind)
	if err != nil {
		g.sendError(c, err)
		return
	}
	fromName, _ := g.presence.Username(c.userID)
	g.SendTo(msg.ToUserID, "gameInvitation", net.InvitationData{
		ID:       inv.ID,
		FromUser: net.UserRef{ID: c.userID, Username: fromName},
		GameType: string(kind),
	})
}

func (g *Gateway) handleInviteResponse(c *Connection, data json.RawMessage) {
	var msg net.InviteResponseData
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}

	// Only the invitee may resolve an invitation.
	inv, ok := g.matchmaking.GetInvitation(msg.InvitationID)
	if !ok {
		g.sendError(c, game.NotFound("invitation", msg.InvitationID))
		return
	}
	if inv.ToUserID != c.userID {
		g.sendError(c, game.InvalidState("invitation", msg.InvitationID))
		return
	}

	if msg.Response != "accept" {
		inv, err := g.matchmaking.Decline(msg.InvitationID)
		if err != nil {
			g.sendError(c, err)
			return
		}
		g.SendTo(inv.FromUserID, "inviteDeclined", net.InvitationData{
			ID:       inv.ID,
			FromUser: net.UserRef{ID: inv.ToUserID},
			GameType: string(inv.GameType),
		})
		return
	}

	sessionID, inv, err := g.matchmaking.Accept(msg.InvitationID)
	if err != nil {
		g.sendError(c, err)
		return
	}
	g.launchSession(inv.GameType, sessionID)
}

func (g *Gateway) handlePaddleMove(c *Connection, data json.RawMessage) {
	var msg net.PaddleMoveData
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	if err := g.pong.MovePaddle(msg.GameID, c.userID, msg.Direction); err != nil {
		g.sendError(c, err)
	}
}

func (g *Gateway) handleTankControls(c *Connection, data json.RawMessage) {
	var msg net.TankControlsData
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	controls := game.TankControls{
		MoveForward: msg.MoveForward,
		Turn:        msg.Turn,
		TurretTurn:  msg.TurretTurn,
		Shoot:       msg.Shoot,
	}
	if err := g.tank.ApplyControls(msg.GameID, c.userID, controls); err != nil {
		g.sendError(c, err)
	}
}

func (g *Gateway) handleJoinQueue(c *Connection, data json.RawMessage) {
	var msg net.QueueData
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	kind, err := parseKind(msg.GameType)
	if err != nil {
		g.sendError(c, err)
		return
	}

	sessionID, position, err := g.matchmaking.JoinQueue(kind, c.userID)
	if err != nil {
		g.sendError(c, err)
		return
	}
	if sessionID != "" {
		g.launchSession(kind, sessionID)
		return
	}
	c.Send("queueUpdate", net.QueueUpdateData{
		GameType: string(kind),
		Position: position,
		Count:    g.matchmaking.QueueLength(kind),
	})
}

func (g *Gateway) handleLeaveQueue(c *Connection, data json.RawMessage) {
	var msg net.QueueData
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	kind, err := parseKind(msg.GameType)
	if err != nil {
		g.sendError(c, err)
		return
	}
	g.matchmaking.LeaveQueue(kind, c.userID)
	c.Send("queueUpdate", net.QueueUpdateData{GameType: string(kind), Position: 0})
}

// handleJoinGame sends a catch-up snapshot to a client that navigated
// to a running game.
func (g *Gateway) handleJoinGame(c *Connection, data json.RawMessage) {
	var msg net.JoinGameData
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	kind, err := parseKind(msg.GameType)
	if err != nil {
		g.sendError(c, err)
		return
	}
	switch kind {
	case game.KindPong:
		snap, err := g.pong.Snapshot(msg.GameID)
		if err != nil {
			g.sendError(c, err)
			return
		}
		c.Send("gameState", snap)
	case game.KindTank:
		snap, err := g.tank.Snapshot(msg.GameID)
		if err != nil {
			g.sendError(c, err)
			return
		}
		c.Send("gameState", snap)
	}
}

// handleLeaveGame ends a running session on behalf of a departing
// player. When exactly one other participant is still alive, they
// take the win.
func (g *Gateway) handleLeaveGame(c *Connection, data json.RawMessage) {
	var msg net.LeaveGameData
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	kind, err := parseKind(msg.GameType)
	if err != nil {
		g.sendError(c, err)
		return
	}

	winner := g.remainingOpponent(kind, msg.GameID, c.userID)
	switch kind {
	case game.KindPong:
		err = g.pong.EndSession(msg.GameID, winner)
	case game.KindTank:
		err = g.tank.EndSession(msg.GameID, winner)
	}
	if err != nil {
		g.sendError(c, err)
		return
	}
	g.presence.SetInGame(c.userID, false)
	log.Printf("User %s left game %s", c.userID, msg.GameID)
}

// remainingOpponent returns the sole alive participant other than the
// leaver, or "" when the outcome is ambiguous.
func (g *Gateway) remainingOpponent(kind game.Kind, sessionID, leaverID string) string {
	var alive []string
	switch kind {
	case game.KindPong:
		if snap, err := g.pong.Snapshot(sessionID); err == nil {
			alive = snap.AlivePlayers
		}
	case game.KindTank:
		if snap, err := g.tank.Snapshot(sessionID); err == nil {
			alive = snap.AlivePlayers
		}
	}
	winner := ""
	for _, id := range alive {
		if id == leaverID {
			continue
		}
		if winner != "" {
			return ""
		}
		winner = id
	}
	return winner
}

func (g *Gateway) handleTankRestart(c *Connection, data json.RawMessage) {
	var msg net.TankRestartData
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	newID, err := g.tank.Restart(msg.GameID)
	if err != nil {
		g.sendError(c, err)
		return
	}
	g.launchSession(game.KindTank, newID)
}

func (g *Gateway) handleJoinTournamentQueue(c *Connection, data json.RawMessage) {
	var msg net.QueueData
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	kind, err := parseKind(msg.GameType)
	if err != nil {
		g.sendError(c, err)
		return
	}

	tn, position, err := g.tournaments.JoinQueue(kind, c.userID)
	if err != nil {
		g.sendError(c, err)
		return
	}
	if tn != nil {
		view, _ := g.tournaments.Get(tn.ID)
		g.broadcast(tn.PlayerIDs, "tournamentCreated", view)
		return
	}
	c.Send("tournamentQueueUpdate", net.TournamentQueueUpdateData{
		GameType: string(kind),
		Position: position,
	})
}

func (g *Gateway) handleLeaveTournamentQueue(c *Connection, data json.RawMessage) {
	var msg net.QueueData
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	kind, err := parseKind(msg.GameType)
	if err != nil {
		g.sendError(c, err)
		return
	}
	g.tournaments.LeaveQueue(kind, c.userID)
	c.Send("tournamentQueueUpdate", net.TournamentQueueUpdateData{GameType: string(kind), Position: 0})
}

func (g *Gateway) handleStartMatch(c *Connection, data json.RawMessage) {
	var msg net.StartMatchData
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	sessionID, err := g.tournaments.StartMatch(msg.TournamentID, msg.MatchID)
	if err != nil {
		g.sendError(c, err)
		return
	}
	g.afterMatchStart(msg.TournamentID, sessionID)
}

func (g *Gateway) afterMatchStart(tournamentID, sessionID string) {
	view, ok := g.tournaments.Get(tournamentID)
	if !ok {
		return
	}
	kind, _ := parseKind(view.GameType)
	players := g.sessionPlayers(kind, sessionID)
	g.startWatcher(kind, sessionID, players)
	g.markInGame(players)
	g.broadcast(players, "gameStart", net.GameStartData{GameID: sessionID, GameType: string(kind)})
	g.sendAssignments(kind, sessionID, players)
	g.broadcast(view.PlayerIDs, "tournamentUpdate", view)
}

// advanceTournament feeds a finished session's winner back into its
// bracket, then starts the next waiting match. Sessions that belong
// to no tournament are ignored.
func (g *Gateway) advanceTournament(sessionID, winnerID string) {
	tournamentID, ok := g.tournaments.FinishBySession(sessionID, winnerID)
	if !ok {
		return
	}
	view, ok := g.tournaments.Get(tournamentID)
	if !ok {
		return
	}
	g.broadcast(view.PlayerIDs, "tournamentUpdate", view)
	if view.Status == string(TournamentFinished) {
		g.broadcast(view.PlayerIDs, "tournamentCompleted", view)
		return
	}

	next, err := g.tournaments.NextMatch(tournamentID)
	if err != nil {
		return
	}
	nextSession, err := g.tournaments.StartMatch(tournamentID, next.ID)
	if err != nil {
		log.Printf("tournament %s: starting match %s failed: %v", tournamentID, next.ID, err)
		return
	}
	g.afterMatchStart(tournamentID, nextSession)
}

func (g *Gateway) handleFinishMatch(c *Connection, data json.RawMessage) {
	var msg net.FinishMatchData
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	if err := g.tournaments.FinishMatch(msg.TournamentID, msg.MatchID, msg.WinnerID); err != nil {
		g.sendError(c, err)
		return
	}
	if view, ok := g.tournaments.Get(msg.TournamentID); ok {
		g.broadcast(view.PlayerIDs, "tournamentUpdate", view)
	}
}

func (g *Gateway) handleNextMatch(c *Connection, data json.RawMessage) {
	var msg net.NextMatchData
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	match, err := g.tournaments.NextMatch(msg.TournamentID)
	if err != nil {
		g.sendError(c, err)
		return
	}
	c.Send("nextMatch", match)
}

// launchSession starts a created session and wires snapshot broadcast
// and per-player notifications.
func (g *Gateway) launchSession(kind game.Kind, sessionID string) {
	players := g.sessionPlayers(kind, sessionID)
	if players == nil {
		return
	}

	var err error
	switch kind {
	case game.KindPong:
		err = g.pong.Start(sessionID)
	case game.KindTank:
		err = g.tank.Start(sessionID)
	}
	if err != nil {
		log.Printf("Failed to start %s session %s: %v", kind, sessionID, err)
		return
	}

	g.startWatcher(kind, sessionID, players)
	g.markInGame(players)
	g.broadcast(players, "gameStart", net.GameStartData{GameID: sessionID, GameType: string(kind)})
	g.sendAssignments(kind, sessionID, players)
}

func (g *Gateway) startWatcher(kind game.Kind, sessionID string, players []string) {
	switch kind {
	case game.KindPong:
		g.watchPong(sessionID, players)
	case game.KindTank:
		g.watchTank(sessionID, players)
	}
}

func (g *Gateway) markInGame(players []string) {
	for _, id := range players {
		g.presence.SetInGame(id, true)
	}
}

// sendAssignments tells each participant which player slot and wall it
// got.
func (g *Gateway) sendAssignments(kind game.Kind, sessionID string, players []string) {
	sides := make(map[string]string)
	switch kind {
	case game.KindPong:
		if snap, err := g.pong.Snapshot(sessionID); err == nil {
			for _, p := range snap.Players {
				sides[p.ID] = p.Side
			}
		}
	case game.KindTank:
		if snap, err := g.tank.Snapshot(sessionID); err == nil {
			for _, p := range snap.Players {
				sides[p.ID] = p.Side
			}
		}
	}
	for i, id := range players {
		g.SendTo(id, "playerAssignment", net.PlayerAssignmentData{
			PlayerID:     id,
			PlayerNumber: i + 1,
			Side:         sides[id],
		})
	}
}

func (g *Gateway) sessionPlayers(kind game.Kind, sessionID string) []string {
	switch kind {
	case game.KindPong:
		if s, ok := g.pong.Get(sessionID); ok {
			_, players := s.Result()
			return players
		}
	case game.KindTank:
		if s, ok := g.tank.Get(sessionID); ok {
			_, players := s.Result()
			return players
		}
	}
	return nil
}

func (g *Gateway) sendError(c *Connection, err error) {
	data := net.ErrorData{Kind: "internal", Message: err.Error()}
	var op *game.OpError
	if errors.As(err, &op) {
		data.Entity = op.Entity
		data.ID = op.ID
	}
	switch {
	case errors.Is(err, game.ErrNotFound):
		data.Kind = "notFound"
	case errors.Is(err, game.ErrInvalidState):
		data.Kind = "invalidState"
	case errors.Is(err, game.ErrConflict):
		data.Kind = "conflict"
	}
	c.Send("error", data)
}

func parseKind(s string) (game.Kind, error) {
	switch game.Kind(s) {
	case game.KindPong:
		return game.KindPong, nil
	case game.KindTank:
		return game.KindTank, nil
	}
	return "", game.NotFound("gameType", s)
}
