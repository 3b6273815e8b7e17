package server

import (
	"encoding/json"
	"log"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/shimizu42/transcendence-sub000/internal/game"
)

// MatchResult is handed to the result sink when a session finishes.
// Persisting it (match history, stats) is an external concern.
type MatchResult struct {
	SessionID  string        `json:"sessionId"`
	GameType   game.Kind     `json:"gameType"`
	Mode       game.Mode     `json:"mode"`
	PlayerIDs  []string      `json:"playerIds"`
	WinnerID   string        `json:"winnerId"`
	Duration   time.Duration `json:"durationMs"`
	FinishedAt time.Time     `json:"finishedAt"`
}

type ResultSink interface {
	Record(MatchResult)
}

// LogSink is the default sink when no broker is configured.
type LogSink struct{}

func (LogSink) Record(r MatchResult) {
	log.Printf("match finished: %s %s/%s winner=%q duration=%s",
		r.SessionID, r.GameType, r.Mode, r.WinnerID, r.Duration.Round(time.Millisecond))
}

// NATSSink publishes finished-match results as JSON for whatever
// stats consumer is listening.
type NATSSink struct {
	conn    *nats.Conn
	subject string
}

const resultSubject = "arena.results"

func NewNATSSink(url string) (*NATSSink, error) {
	nc, err := nats.Connect(url, nats.Name("arena-results"))
	if err != nil {
		return nil, err
	}
	return &NATSSink{conn: nc, subject: resultSubject}, nil
}

func (s *NATSSink) Record(r MatchResult) {
	payload, err := json.Marshal(r)
	if err != nil {
		log.Printf("result sink: marshal %s: %v", r.SessionID, err)
		return
	}
	if err := s.conn.Publish(s.subject, payload); err != nil {
		log.Printf("result sink: publish %s: %v", r.SessionID, err)
	}
}

func (s *NATSSink) Close() {
	s.conn.Close()
}
