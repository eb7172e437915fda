package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type battleModel struct {
	ID          string `gorm:"primaryKey;type:uuid"`
	CreatorName string `gorm:"default:Guest"`
	InvitedName string `gorm:"default:Guest"`
	Player1ID   string `gorm:"index"`
	Player2ID   string `gorm:"index"`
	TotalRounds int    `gorm:"not null"`
	Status      string `gorm:"type:varchar(16);default:pending"`
	FinalWinner string
	CreatedAt   time.Time
	Results     []roundModel `gorm:"foreignKey:BattleID;constraint:OnDelete:CASCADE"`
	Chat        []chatModel  `gorm:"foreignKey:BattleID;constraint:OnDelete:CASCADE"`
}

func (battleModel) TableName() string { return "battles" }

type roundModel struct {
	ID       uint   `gorm:"primaryKey"`
	BattleID string `gorm:"index;type:uuid;not null"`
	Round    int
	Choice1  string
	Choice2  string
	Winner   string
}

func (roundModel) TableName() string { return "battle_rounds" }

type chatModel struct {
	ID        uint   `gorm:"primaryKey"`
	BattleID  string `gorm:"index;type:uuid;not null"`
	Sender    string
	Message   string
	Timestamp time.Time
}

func (chatModel) TableName() string { return "battle_chat" }

// Postgres implements Gateway on a gorm connection.
type Postgres struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewPostgres(db *gorm.DB, log *zap.Logger) (*Postgres, error) {
	if err := db.AutoMigrate(&battleModel{}, &roundModel{}, &chatModel{}); err != nil {
		return nil, fmt.Errorf("migrate battle tables: %w", err)
	}
	return &Postgres{db: db, log: log.Named("store")}, nil
}

func (p *Postgres) Load(ctx context.Context, id string) (*BattleRecord, error) {
	var m battleModel
	err := p.db.WithContext(ctx).
		Preload("Results", func(db *gorm.DB) *gorm.DB { return db.Order("round ASC") }).
		Preload("Chat", func(db *gorm.DB) *gorm.DB { return db.Order("timestamp ASC") }).
		First(&m, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load battle %s: %w", id, err)
	}
	return recordFromModel(&m), nil
}

func recordFromModel(m *battleModel) *BattleRecord {
	rec := &BattleRecord{
		ID:          m.ID,
		CreatorName: m.CreatorName,
		InvitedName: m.InvitedName,
		Player1ID:   m.Player1ID,
		Player2ID:   m.Player2ID,
		TotalRounds: m.TotalRounds,
		Status:      m.Status,
		FinalWinner: m.FinalWinner,
		CreatedAt:   m.CreatedAt,
	}
	for _, r := range m.Results {
		rec.Results = append(rec.Results, RoundResult{Round: r.Round, Choice1: r.Choice1, Choice2: r.Choice2, Winner: r.Winner})
	}
	for _, c := range m.Chat {
		rec.Chat = append(rec.Chat, ChatMessage{Sender: c.Sender, Message: c.Message, Timestamp: c.Timestamp})
	}
	return rec
}

func (p *Postgres) Create(ctx context.Context, rec *BattleRecord) error {
	m := battleModel{
		ID:          rec.ID,
		CreatorName: rec.CreatorName,
		InvitedName: rec.InvitedName,
		Player1ID:   rec.Player1ID,
		Player2ID:   rec.Player2ID,
		TotalRounds: rec.TotalRounds,
		Status:      rec.Status,
		CreatedAt:   rec.CreatedAt,
	}
	for _, c := range rec.Chat {
		m.Chat = append(m.Chat, chatModel{Sender: c.Sender, Message: c.Message, Timestamp: c.Timestamp})
	}
	if err := p.db.WithContext(ctx).Create(&m).Error; err != nil {
		return fmt.Errorf("create battle %s: %w", rec.ID, err)
	}
	return nil
}

func (p *Postgres) AppendRound(ctx context.Context, id string, r RoundResult) error {
	m := roundModel{BattleID: id, Round: r.Round, Choice1: r.Choice1, Choice2: r.Choice2, Winner: r.Winner}
	if err := p.db.WithContext(ctx).Create(&m).Error; err != nil {
		return fmt.Errorf("append round %d to battle %s: %w", r.Round, id, err)
	}
	return nil
}

func (p *Postgres) AppendChat(ctx context.Context, id string, msg ChatMessage) error {
	m := chatModel{BattleID: id, Sender: msg.Sender, Message: msg.Message, Timestamp: msg.Timestamp}
	if err := p.db.WithContext(ctx).Create(&m).Error; err != nil {
		return fmt.Errorf("append chat to battle %s: %w", id, err)
	}
	return nil
}

func (p *Postgres) SetPlayers(ctx context.Context, id string, player1, player2 string) error {
	res := p.db.WithContext(ctx).Model(&battleModel{}).Where("id = ?", id).
		Updates(map[string]any{"player1_id": player1, "player2_id": player2})
	if res.Error != nil {
		return fmt.Errorf("set players for battle %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) ListByPlayer(ctx context.Context, playerID string) ([]*BattleRecord, error) {
	var models []battleModel
	err := p.db.WithContext(ctx).
		Preload("Results", func(db *gorm.DB) *gorm.DB { return db.Order("round ASC") }).
		Where("status = ? AND (player1_id = ? OR player2_id = ?)", StatusCompleted, playerID, playerID).
		Order("created_at DESC").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("list battles for %s: %w", playerID, err)
	}
	out := make([]*BattleRecord, 0, len(models))
	for i := range models {
		out = append(out, recordFromModel(&models[i]))
	}
	return out, nil
}

func (p *Postgres) SetFinalResult(ctx context.Context, id string, winner string) error {
	res := p.db.WithContext(ctx).Model(&battleModel{}).Where("id = ?", id).
		Updates(map[string]any{"final_winner": winner, "status": StatusCompleted})
	if res.Error != nil {
		return fmt.Errorf("set final result for battle %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
