// Package ranking keeps the win/loss/points tally updated when matches
// complete. It is bookkeeping on the side of the orchestrator: a failed
// update never affects the match that triggered it.
package ranking

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	winPoints  = 10
	lossPoints = 5
)

type User struct {
	Username string `gorm:"primaryKey" json:"username"`
	Wins     int    `json:"wins"`
	Losses   int    `json:"losses"`
	Points   int    `json:"points"`
}

func (User) TableName() string { return "users" }

type Store struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewStore(db *gorm.DB, log *zap.Logger) (*Store, error) {
	if err := db.AutoMigrate(&User{}); err != nil {
		return nil, fmt.Errorf("migrate users table: %w", err)
	}
	return &Store{db: db, log: log.Named("ranking")}, nil
}

// RecordResult credits the winner and debits the loser, creating rows for
// identities never seen before.
func (s *Store) RecordResult(ctx context.Context, winner, loser string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := bump(tx, winner, 1, 0, winPoints); err != nil {
			return fmt.Errorf("credit winner %s: %w", winner, err)
		}
		if err := bump(tx, loser, 0, 1, -lossPoints); err != nil {
			return fmt.Errorf("debit loser %s: %w", loser, err)
		}
		return nil
	})
}

func bump(tx *gorm.DB, username string, wins, losses, points int) error {
	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "username"}},
		DoUpdates: clause.Assignments(map[string]any{
			"wins":   gorm.Expr("users.wins + ?", wins),
			"losses": gorm.Expr("users.losses + ?", losses),
			"points": gorm.Expr("users.points + ?", points),
		}),
	}).Create(&User{Username: username, Wins: wins, Losses: losses, Points: points}).Error
}

// Top returns the leaderboard, best first.
func (s *Store) Top(ctx context.Context, n int) ([]User, error) {
	var users []User
	err := s.db.WithContext(ctx).Order("points DESC, wins DESC").Limit(n).Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("load rankings: %w", err)
	}
	return users, nil
}

// Noop satisfies the recorder interface for database-less runs.
type Noop struct{}

func (Noop) RecordResult(context.Context, string, string) error { return nil }
