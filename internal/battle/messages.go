package battle

import (
	"battle-server/internal/game"
	"battle-server/pkg/protocol"
)

type Msg interface{ isBattleMsg() }

// Subscribe registers a connection's outbox for this battle's events.
// ClientID identifies the connection, PlayerID the logical player behind it;
// a spectating chat client may subscribe without ever joining. The session
// takes ownership of Outbox and closes it when the subscription ends, so a
// channel must never be subscribed to two sessions at once.
type Subscribe struct {
	ClientID string
	PlayerID string
	Outbox   chan protocol.ServerMessage
}

func (Subscribe) isBattleMsg() {}

type Unsubscribe struct{ ClientID string }

func (Unsubscribe) isBattleMsg() {}

// Join binds a player identity to the battle. Idempotent for an already
// bound player; a third distinct identity is rejected.
type Join struct {
	PlayerID string
	ClientID string // where join errors and chat history are delivered
}

func (Join) isBattleMsg() {}

type SubmitChoice struct {
	PlayerID string
	Choice   game.Move
}

func (SubmitChoice) isBattleMsg() {}

// Disconnect drops the player from the live player set. The session keeps
// running; the same identity can rejoin into the in-flight round.
type Disconnect struct{ PlayerID string }

func (Disconnect) isBattleMsg() {}

type RequestRematch struct{ PlayerID string }

func (RequestRematch) isBattleMsg() {}

type RespondRematch struct {
	PlayerID string
	ClientID string
	Accept   bool
}

func (RespondRematch) isBattleMsg() {}

type Chat struct {
	Sender  string
	Message string
}

func (Chat) isBattleMsg() {}

type Shutdown struct{}

func (Shutdown) isBattleMsg() {}

// GetState reflects internal state without data races; used by tests and
// the HTTP debug surface.
type GetState struct{ Reply chan View }

func (GetState) isBattleMsg() {}

type timerKind int

const (
	timerRoundDeadline timerKind = iota
	timerNextRound
)

// timerFired is enqueued by the clock callback so expiry is handled on the
// session goroutine like any other message. Epoch is captured at schedule
// time; a firing whose epoch is stale is dropped.
type timerFired struct {
	kind  timerKind
	epoch uint64
}

func (timerFired) isBattleMsg() {}

type Status string

const (
	StatusForming    Status = "forming"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

type View struct {
	ID              string
	Status          Status
	Seats           [2]string
	Present         [2]bool
	Scores          [2]int
	RoundsCompleted int
	TotalRounds     int
	ChoiceCount     int
	Subscribers     int
	RematchBy       string
}
