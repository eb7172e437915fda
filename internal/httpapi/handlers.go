package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"battle-server/internal/ranking"
	"battle-server/internal/store"
)

// Rankings is the read side of the leaderboard; nil when the server runs
// without a database.
type Rankings interface {
	Top(ctx context.Context, n int) ([]ranking.User, error)
}

type createBattleRequest struct {
	CreatorName string `json:"creatorName"`
	InvitedName string `json:"invitedName"`
	Rounds      int    `json:"rounds"`
}

// CreateBattle persists a pending battle record and hands back the id
// players use to connect.
func CreateBattle(gateway store.Gateway, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createBattleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if req.Rounds != 1 && req.Rounds != 3 {
			http.Error(w, "rounds must be 1 or 3", http.StatusBadRequest)
			return
		}
		if req.CreatorName == "" {
			req.CreatorName = "Guest"
		}
		if req.InvitedName == "" {
			req.InvitedName = "Guest"
		}

		rec := &store.BattleRecord{
			ID:          uuid.NewString(),
			CreatorName: req.CreatorName,
			InvitedName: req.InvitedName,
			TotalRounds: req.Rounds,
			Status:      store.StatusPending,
			CreatedAt:   time.Now(),
		}
		if err := gateway.Create(r.Context(), rec); err != nil {
			log.Error("create battle failed", zap.Error(err))
			http.Error(w, "failed to create battle", http.StatusInternalServerError)
			return
		}
		log.Info("battle created",
			zap.String("battle_id", rec.ID),
			zap.Int("rounds", rec.TotalRounds))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(struct {
			ID string `json:"battleId"`
		}{ID: rec.ID})
	}
}

// GetBattle serves the durable record: round history, chat transcript and
// final result if any.
func GetBattle(gateway store.Gateway, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "battleID")
		rec, err := gateway.Load(r.Context(), id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				http.Error(w, "battle not found", http.StatusNotFound)
				return
			}
			log.Error("load battle failed", zap.String("battle_id", id), zap.Error(err))
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(rec)
	}
}

type playerStats struct {
	Username string         `json:"username"`
	Battles  int            `json:"battles"`
	Wins     int            `json:"wins"`
	Losses   int            `json:"losses"`
	Choices  map[string]int `json:"choices"`
}

// GetPlayerStats aggregates a player's completed battles: win/loss totals
// and how often each move was thrown. Sides come from the seat identities
// recorded on each battle.
func GetPlayerStats(gateway store.Gateway, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		username := chi.URLParam(r, "username")
		recs, err := gateway.ListByPlayer(r.Context(), username)
		if err != nil {
			log.Error("load player battles failed", zap.String("username", username), zap.Error(err))
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		stats := playerStats{
			Username: username,
			Choices:  map[string]int{"rock": 0, "paper": 0, "scissors": 0},
		}
		for _, rec := range recs {
			stats.Battles++
			side := "player1"
			if rec.Player2ID == username {
				side = "player2"
			}
			if rec.FinalWinner == side {
				stats.Wins++
			} else {
				stats.Losses++
			}
			for _, res := range rec.Results {
				choice := res.Choice1
				if side == "player2" {
					choice = res.Choice2
				}
				if choice != "" {
					stats.Choices[choice]++
				}
			}
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(stats)
	}
}

// ListPlayerBattles serves a player's completed battles, newest first.
func ListPlayerBattles(gateway store.Gateway, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		username := chi.URLParam(r, "username")
		recs, err := gateway.ListByPlayer(r.Context(), username)
		if err != nil {
			log.Error("load player battles failed", zap.String("username", username), zap.Error(err))
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if recs == nil {
			recs = []*store.BattleRecord{}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(recs)
	}
}

func GetRankings(rankings Rankings, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if rankings == nil {
			http.Error(w, "rankings unavailable", http.StatusNotImplemented)
			return
		}
		users, err := rankings.Top(r.Context(), 10)
		if err != nil {
			log.Error("load rankings failed", zap.Error(err))
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(users)
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
