// Package store is the durable side of a battle: the record created before
// any player connects, the per-round results appended as play advances, and
// the chat transcript. The live session in memory stays authoritative while
// a battle runs; writes here are best-effort durability.
package store

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("battle not found")

type RoundResult struct {
	Round   int    `json:"round"`
	Choice1 string `json:"choice1,omitempty"`
	Choice2 string `json:"choice2,omitempty"`
	Winner  string `json:"winner"`
}

type ChatMessage struct {
	Sender    string    `json:"sender"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
)

type BattleRecord struct {
	ID          string        `json:"id"`
	CreatorName string        `json:"creatorName"`
	InvitedName string        `json:"invitedName"`
	Player1ID   string        `json:"player1Id,omitempty"`
	Player2ID   string        `json:"player2Id,omitempty"`
	TotalRounds int           `json:"totalRounds"`
	Status      string        `json:"status"`
	FinalWinner string        `json:"finalWinner,omitempty"`
	Results     []RoundResult `json:"results"`
	Chat        []ChatMessage `json:"chat"`
	CreatedAt   time.Time     `json:"createdAt"`
}

// Gateway is the persistence boundary consumed by the orchestrator.
type Gateway interface {
	// Load returns the durable record, or ErrNotFound.
	Load(ctx context.Context, id string) (*BattleRecord, error)
	Create(ctx context.Context, rec *BattleRecord) error
	AppendRound(ctx context.Context, id string, r RoundResult) error
	AppendChat(ctx context.Context, id string, m ChatMessage) error
	// SetPlayers records which identities hold seat 1 and seat 2 once both
	// are known, so per-player queries can attribute sides.
	SetPlayers(ctx context.Context, id string, player1, player2 string) error
	// SetFinalResult records the match winner and marks the battle completed.
	SetFinalResult(ctx context.Context, id string, winner string) error
	// ListByPlayer returns the completed battles the player took part in,
	// newest first.
	ListByPlayer(ctx context.Context, playerID string) ([]*BattleRecord, error)
}
