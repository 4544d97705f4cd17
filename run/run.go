package run

import (
	"time"
)

type Status uint8

const (
	Idle Status = iota
	Streaming
	AwaitingReadiness
	Ready
	Failed
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Streaming:
		return "Streaming"
	case AwaitingReadiness:
		return "AwaitingReadiness"
	case Ready:
		return "Ready"
	case Failed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// RoundRecord is one decoded line of the training stream. The wire field
// names match what the training backend emits per round.
type RoundRecord struct {
	Round       int                `json:"round"`
	GlobalLoss  float64            `json:"global_loss"`
	ClientTrain map[string]float64 `json:"client_train,omitempty"`
	ClientVal   map[string]float64 `json:"client_val,omitempty"`
	RunID       string             `json:"run_id,omitempty"`
}

// Session is the orchestrator-owned state of one training run. RunID is
// empty until resolved and never changes afterwards.
type Session struct {
	ID           string        `json:"id"`
	Name         string        `json:"name,omitempty"`
	RunID        string        `json:"run_id,omitempty"`
	Status       Status        `json:"status"`
	AttemptCount int           `json:"attempt_count"`
	Rounds       []RoundRecord `json:"rounds,omitempty"`
	Error        string        `json:"error,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

type TrainConfig struct {
	NumClients int `json:"num_clients"`
	NumRounds  int `json:"num_rounds"`
}
