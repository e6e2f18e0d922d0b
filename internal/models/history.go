package models

import (
	"time"

	"github.com/google/uuid"
)

// ScanHistoryRecord is one immutable entry of a user's scan history.
type ScanHistoryRecord struct {
	ID           string    `json:"id"`
	ProductName  string    `json:"productName"`
	SafetyStatus Status    `json:"safetyStatus"`
	ScanDate     time.Time `json:"scanDate"`
}

// HistoryStats counts a user's scans by verdict.
type HistoryStats struct {
	Total  int `json:"total"`
	Safe   int `json:"safe"`
	Risky  int `json:"risky"`
	Unsafe int `json:"unsafe"`
}

// Add counts one record.
func (s *HistoryStats) Add(st Status) {
	s.AddN(st, 1)
}

// AddN counts n records of the same status.
func (s *HistoryStats) AddN(st Status, n int) {
	s.Total += n
	switch st {
	case StatusSafe:
		s.Safe += n
	case StatusRisky:
		s.Risky += n
	case StatusUnsafe:
		s.Unsafe += n
	}
}

// SafePercent is the share of safe scans, rounded down.
func (s HistoryStats) SafePercent() int {
	if s.Total == 0 {
		return 0
	}
	return s.Safe * 100 / s.Total
}

// Sender identifies who wrote a chat turn.
type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

// ChatTurn is one message of a chat session.
type ChatTurn struct {
	ID     string `json:"id"`
	Text   string `json:"text"`
	Sender Sender `json:"sender"`
}

// Transcript is the ordered chat of one session. It lives only as long as
// the session and is never persisted.
type Transcript struct {
	Turns []ChatTurn `json:"turns"`
}

// Append adds a turn with a fresh id and returns it.
func (t *Transcript) Append(sender Sender, text string) ChatTurn {
	turn := ChatTurn{
		ID:     uuid.NewString(),
		Text:   text,
		Sender: sender,
	}
	t.Turns = append(t.Turns, turn)
	return turn
}
