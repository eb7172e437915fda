package store

import (
	"context"
	"sort"
	"sync"
)

// Memory is a Gateway kept entirely in process memory. It backs tests and
// database-less development runs; records vanish on restart.
type Memory struct {
	mu      sync.Mutex
	battles map[string]*BattleRecord
}

func NewMemory() *Memory {
	return &Memory{battles: make(map[string]*BattleRecord)}
}

func (m *Memory) Load(_ context.Context, id string) (*BattleRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.battles[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRecord(rec), nil
}

func (m *Memory) Create(_ context.Context, rec *BattleRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.battles[rec.ID] = cloneRecord(rec)
	return nil
}

func (m *Memory) AppendRound(_ context.Context, id string, r RoundResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.battles[id]
	if !ok {
		return ErrNotFound
	}
	rec.Results = append(rec.Results, r)
	return nil
}

func (m *Memory) AppendChat(_ context.Context, id string, msg ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.battles[id]
	if !ok {
		return ErrNotFound
	}
	rec.Chat = append(rec.Chat, msg)
	return nil
}

func (m *Memory) SetPlayers(_ context.Context, id string, player1, player2 string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.battles[id]
	if !ok {
		return ErrNotFound
	}
	rec.Player1ID = player1
	rec.Player2ID = player2
	return nil
}

func (m *Memory) ListByPlayer(_ context.Context, playerID string) ([]*BattleRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*BattleRecord
	for _, rec := range m.battles {
		if rec.Status != StatusCompleted {
			continue
		}
		if rec.Player1ID != playerID && rec.Player2ID != playerID {
			continue
		}
		out = append(out, cloneRecord(rec))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) SetFinalResult(_ context.Context, id string, winner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.battles[id]
	if !ok {
		return ErrNotFound
	}
	rec.FinalWinner = winner
	rec.Status = StatusCompleted
	return nil
}

func cloneRecord(rec *BattleRecord) *BattleRecord {
	c := *rec
	c.Results = append([]RoundResult(nil), rec.Results...)
	c.Chat = append([]ChatMessage(nil), rec.Chat...)
	return &c
}
