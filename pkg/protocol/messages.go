package protocol

import "time"

// Client -> server message types.
const (
	TypeJoin           = "join"
	TypeSubmitChoice   = "submitChoice"
	TypeRequestRematch = "requestRematch"
	TypeRespondRematch = "respondRematch"
	TypeChatMessage    = "chatMessage"
)

// Server -> client message types.
const (
	TypePlayerCountChanged = "playerCountChanged"
	TypeRoundStarted       = "roundStarted"
	TypeRoundResult        = "roundResult"
	TypeMatchResult        = "matchResult"
	TypeRematchRequested   = "rematchRequested"
	TypeRematchStarted     = "rematchStarted"
	TypeRematchRejected    = "rematchRejected"
	TypePlayerDisconnected = "playerDisconnected"
	TypeChatHistory        = "chatHistory"
	TypeError              = "error"
)

type ClientMessage struct {
	Type    string `json:"type"`
	Choice  string `json:"choice,omitempty"`
	Accept  bool   `json:"accept,omitempty"`
	Message string `json:"message,omitempty"`
}

type Scores struct {
	Player1 int `json:"player1"`
	Player2 int `json:"player2"`
}

type ChatMessage struct {
	Sender    string    `json:"sender"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// ServerMessage carries every outbound event; Type decides which fields are
// populated. Empty choice strings mean the round deadline fired before that
// player submitted.
type ServerMessage struct {
	Type             string        `json:"type"`
	Count            int           `json:"count,omitempty"`
	RoundNumber      int           `json:"roundNumber,omitempty"`
	TotalRounds      int           `json:"totalRounds,omitempty"`
	Choice1          string        `json:"choice1,omitempty"`
	Choice2          string        `json:"choice2,omitempty"`
	Winner           string        `json:"winner,omitempty"`
	Scores           *Scores       `json:"scores,omitempty"`
	RequestingPlayer string        `json:"requestingPlayer,omitempty"`
	NewBattleID      string        `json:"newBattleId,omitempty"`
	PlayerID         string        `json:"playerId,omitempty"`
	Sender           string        `json:"sender,omitempty"`
	Message          string        `json:"message,omitempty"`
	Timestamp        *time.Time    `json:"timestamp,omitempty"`
	Messages         []ChatMessage `json:"messages,omitempty"`
	Error            string        `json:"error,omitempty"`
}
