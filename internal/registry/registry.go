// Package registry owns the map from battle id to live session. Sessions
// are created on demand from the durable record and dropped a grace period
// after completing; the map is the only place a session pointer lives.
package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"battle-server/internal/battle"
	"battle-server/internal/game"
	"battle-server/internal/store"
)

type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*battle.Session

	// group collapses concurrent GetOrCreate calls for the same battle so a
	// slow record load never produces two sessions, and never blocks
	// lookups of unrelated battles.
	group singleflight.Group

	gateway  store.Gateway
	ranking  battle.ResultRecorder
	clock    clockwork.Clock
	timeouts battle.Timeouts
	ctx      context.Context
	log      *zap.Logger
}

func New(ctx context.Context, gateway store.Gateway, ranking battle.ResultRecorder, clock clockwork.Clock, timeouts battle.Timeouts, log *zap.Logger) *Registry {
	return &Registry{
		sessions: make(map[string]*battle.Session),
		gateway:  gateway,
		ranking:  ranking,
		clock:    clock,
		timeouts: timeouts,
		ctx:      ctx,
		log:      log.Named("registry"),
	}
}

// GetOrCreate returns the live session for id, loading the durable record
// and building one if none is in memory. Returns store.ErrNotFound when no
// such battle was ever created.
func (r *Registry) GetOrCreate(ctx context.Context, id string) (*battle.Session, error) {
	if s := r.Get(id); s != nil {
		return s, nil
	}

	v, err, _ := r.group.Do(id, func() (any, error) {
		if s := r.Get(id); s != nil {
			return s, nil
		}

		rec, err := r.gateway.Load(ctx, id)
		if err != nil {
			return nil, err
		}

		cfg := battle.Config{
			ID:              rec.ID,
			TotalRounds:     rec.TotalRounds,
			RoundsCompleted: len(rec.Results),
			Scores:          scoresFromResults(rec.Results),
			Completed:       rec.Status == store.StatusCompleted,
			Chat:            rec.Chat,
			Timeouts:        r.timeouts,
		}
		s := battle.New(r.ctx, cfg, r.deps())

		r.mu.Lock()
		r.sessions[id] = s
		r.mu.Unlock()
		r.log.Info("session created", zap.String("battle_id", id))
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*battle.Session), nil
}

// Get returns the live session or nil.
func (r *Registry) Get(id string) *battle.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[id]
}

// Remove drops and shuts down the in-memory session; no-op when absent.
// The durable record outlives it.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	s := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if s != nil {
		s.Inbox() <- battle.Shutdown{}
		r.log.Info("session removed", zap.String("battle_id", id))
	}
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) deps() battle.Deps {
	return battle.Deps{
		Store:        r.gateway,
		Ranking:      r.ranking,
		Clock:        r.clock,
		Log:          r.log,
		OnRemove:     r.Remove,
		StartRematch: r.startRematch,
	}
}

// startRematch persists a successor battle for the same pair, carrying the
// chat transcript forward, and registers its session with both players
// already seated so the first round starts on its own.
func (r *Registry) startRematch(ctx context.Context, seed battle.RematchSeed) (string, error) {
	prev, err := r.gateway.Load(ctx, seed.FromID)
	if err != nil {
		return "", fmt.Errorf("load battle %s for rematch: %w", seed.FromID, err)
	}

	id := uuid.NewString()
	rec := &store.BattleRecord{
		ID:          id,
		CreatorName: prev.CreatorName,
		InvitedName: prev.InvitedName,
		Player1ID:   seed.Seats[0],
		Player2ID:   seed.Seats[1],
		TotalRounds: prev.TotalRounds,
		Status:      store.StatusPending,
		Chat:        prev.Chat,
		CreatedAt:   time.Now(),
	}
	if err := r.gateway.Create(ctx, rec); err != nil {
		return "", fmt.Errorf("create rematch battle: %w", err)
	}

	cfg := battle.Config{
		ID:          id,
		TotalRounds: prev.TotalRounds,
		Seats:       seed.Seats,
		Present:     seed.Present,
		Chat:        prev.Chat,
		StartDelay:  r.timeouts.RematchStart,
		Timeouts:    r.timeouts,
	}
	s := battle.New(r.ctx, cfg, r.deps())

	r.mu.Lock()
	r.sessions[id] = s
	r.mu.Unlock()
	r.log.Info("rematch session created",
		zap.String("battle_id", id),
		zap.String("previous_battle_id", seed.FromID))
	return id, nil
}

func scoresFromResults(results []store.RoundResult) [2]int {
	var scores [2]int
	for _, res := range results {
		switch game.Outcome(res.Winner) {
		case game.OutcomePlayer1:
			scores[0]++
		case game.OutcomePlayer2:
			scores[1]++
		}
	}
	return scores
}
