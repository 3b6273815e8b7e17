package net

import "encoding/json"

// Envelope is the framing for every websocket message in both
// directions: a type tag plus a type-specific payload.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Client → Server payloads

type HelloData struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

type InviteData struct {
	ToUserID string `json:"toUserId"`
	GameType string `json:"gameType"` // "pong" or "tank"
}

type InviteResponseData struct {
	InvitationID string `json:"invitationId"`
	Response     string `json:"response"` // "accept" or "decline"
}

type PaddleMoveData struct {
	GameID    string `json:"gameId"`
	Direction int    `json:"direction"` // -1, 0, 1
}

type TankControlsData struct {
	GameID      string  `json:"gameId"`
	MoveForward float64 `json:"moveForward"`
	Turn        float64 `json:"turn"`
	TurretTurn  float64 `json:"turretTurn"`
	Shoot       bool    `json:"shoot"`
}

type QueueData struct {
	GameType string `json:"gameType"`
}

type JoinGameData struct {
	GameID   string `json:"gameId"`
	GameType string `json:"gameType"`
}

type LeaveGameData struct {
	GameID   string `json:"gameId"`
	GameType string `json:"gameType"`
}

type TankRestartData struct {
	GameID string `json:"gameId"`
}

type StartMatchData struct {
	TournamentID string `json:"tournamentId"`
	MatchID      string `json:"matchId"`
}

type FinishMatchData struct {
	TournamentID string `json:"tournamentId"`
	MatchID      string `json:"matchId"`
	WinnerID     string `json:"winnerId"`
}

type NextMatchData struct {
	TournamentID string `json:"tournamentId"`
}

// Server → Client payloads

type WelcomeData struct {
	UserID string `json:"userId"`
}

type ErrorData struct {
	Kind    string `json:"kind"` // "notFound", "invalidState", "conflict"
	Entity  string `json:"entity,omitempty"`
	ID      string `json:"id,omitempty"`
	Message string `json:"message"`
}

type UserRef struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type InvitationData struct {
	ID       string  `json:"id"`
	FromUser UserRef `json:"fromUser"`
	GameType string  `json:"gameType"`
}

type GameStartData struct {
	GameID   string `json:"gameId"`
	GameType string `json:"gameType"`
}

type PlayerAssignmentData struct {
	PlayerID     string `json:"playerId"`
	PlayerNumber int    `json:"playerNumber"`
	Side         string `json:"side"`
}

type QueueUpdateData struct {
	GameType string `json:"gameType"`
	Position int    `json:"position"`
	Count    int    `json:"count"`
}

type GameEndData struct {
	GameID   string `json:"gameId"`
	WinnerID string `json:"winnerId"`
}

type TournamentQueueUpdateData struct {
	GameType string `json:"gameType"`
	Position int    `json:"position"`
}

// Snapshot messages

type BallState struct {
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
	Z  float64 `json:"z"`
	VX float64 `json:"vx"`
	VY float64 `json:"vy"`
	VZ float64 `json:"vz"`
}

type PongPlayerState struct {
	ID             string  `json:"id"`
	Username       string  `json:"username"`
	Score          int     `json:"score"`
	Lives          int     `json:"lives"`
	PaddlePosition float64 `json:"paddlePosition"`
	Alive          bool    `json:"isAlive"`
	Side           string  `json:"side"`
}

type PongState struct {
	GameID       string            `json:"gameId"`
	GameType     string            `json:"gameType"` // "2player" or "4player"
	Status       string            `json:"status"`
	Ball         BallState         `json:"ball"`
	Players      []PongPlayerState `json:"players"`
	AlivePlayers []string          `json:"alivePlayers"`
	Winner       string            `json:"winner,omitempty"`
}

type TankPlayerState struct {
	ID             string  `json:"id"`
	Username       string  `json:"username"`
	Lives          int     `json:"lives"`
	X              float64 `json:"x"`
	Y              float64 `json:"y"`
	Z              float64 `json:"z"`
	Rotation       float64 `json:"rotation"`
	TurretRotation float64 `json:"turretRotation"`
	Alive          bool    `json:"isAlive"`
	Side           string  `json:"side"`
}

type BulletState struct {
	ID      string  `json:"id"`
	OwnerID string  `json:"ownerId"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Z       float64 `json:"z"`
}

type TankState struct {
	GameID       string            `json:"gameId"`
	GameType     string            `json:"gameType"`
	Status       string            `json:"status"`
	Players      []TankPlayerState `json:"players"`
	Bullets      []BulletState     `json:"bullets"`
	AlivePlayers []string          `json:"alivePlayers"`
	Winner       string            `json:"winner,omitempty"`
}

type MatchView struct {
	ID          string `json:"id"`
	Round       int    `json:"round"`
	MatchNumber int    `json:"matchNumber"`
	Player1ID   string `json:"player1Id"`
	Player2ID   string `json:"player2Id"`
	WinnerID    string `json:"winnerId,omitempty"`
	SessionID   string `json:"gameId,omitempty"`
	Status      string `json:"status"`
}

type TournamentView struct {
	ID           string      `json:"id"`
	GameType     string      `json:"gameType"`
	PlayerIDs    []string    `json:"playerIds"`
	Matches      []MatchView `json:"matches"`
	CurrentRound int         `json:"currentRound"`
	Status       string      `json:"status"`
	WinnerID     string      `json:"winnerId,omitempty"`
}

// Marshal wraps a payload in an Envelope and encodes it.
func Marshal(msgType string, payload interface{}) ([]byte, error) {
	var data json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		data = b
	}
	return json.Marshal(Envelope{Type: msgType, Data: data})
}
