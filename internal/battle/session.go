// Package battle runs one live battle per goroutine. Every mutation of a
// session's state flows through its inbox, so joins, choices, chat, timer
// expiries and rematch negotiation for one battle never interleave, while
// separate battles proceed independently.
package battle

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"battle-server/internal/game"
	"battle-server/internal/store"
	"battle-server/pkg/protocol"
)

// Timeouts are the fixed delays that drive a battle forward.
type Timeouts struct {
	Round          time.Duration // deadline for both choices to arrive
	BetweenRounds  time.Duration // pause so clients can render the result
	RematchStart   time.Duration // pause before round 1 of a rematch
	CompletedGrace time.Duration // how long a completed session stays in memory
}

func DefaultTimeouts() Timeouts {
	return Timeouts{
		Round:          15 * time.Second,
		BetweenRounds:  3 * time.Second,
		RematchStart:   time.Second,
		CompletedGrace: 5 * time.Minute,
	}
}

// ResultRecorder receives the final winner/loser pair for ranking
// bookkeeping. Implementations live outside this package.
type ResultRecorder interface {
	RecordResult(ctx context.Context, winner, loser string) error
}

// RematchSeed is what the registry needs to spin up the successor battle of
// an accepted rematch.
type RematchSeed struct {
	FromID  string
	Seats   [2]string
	Present [2]bool
}

type Deps struct {
	Store   store.Gateway
	Ranking ResultRecorder
	Clock   clockwork.Clock
	Log     *zap.Logger

	// OnRemove is called once the completed-session grace period elapses.
	OnRemove func(id string)
	// StartRematch persists and registers a fresh battle for the same pair,
	// returning its id. Nil disables rematches.
	StartRematch func(ctx context.Context, seed RematchSeed) (string, error)
}

// Config seeds a session from its durable record (or from the battle it is
// a rematch of).
type Config struct {
	ID              string
	TotalRounds     int
	RoundsCompleted int
	Scores          [2]int
	Completed       bool
	Seats           [2]string
	Present         [2]bool
	Chat            []store.ChatMessage
	// StartDelay > 0 schedules the first round without waiting for joins;
	// rematch sessions start this way since both players carry over.
	StartDelay time.Duration
	Timeouts   Timeouts
}

type subscriber struct {
	playerID string
	out      chan protocol.ServerMessage
}

type Session struct {
	inbox chan Msg

	id              string
	totalRounds     int
	roundsCompleted int
	status          Status
	seats           [2]string
	present         [2]bool
	scores          [2]int
	choices         map[string]game.Move
	chat            []store.ChatMessage

	// epoch invalidates outstanding timers: every round start and round
	// resolution bumps it, and a timer firing with an older epoch is stale.
	epoch       uint64
	pending     clockwork.Timer
	pendingKind timerKind
	hasPending  bool

	rematchBy   string
	rematchDone bool

	subs     map[string]subscriber
	timeouts Timeouts
	deps     Deps
	ctx      context.Context
	cancel   context.CancelFunc
	log      *zap.Logger
}

func New(parent context.Context, cfg Config, deps Deps) *Session {
	ctx, cancel := context.WithCancel(parent)

	s := &Session{
		inbox:           make(chan Msg, 64),
		id:              cfg.ID,
		totalRounds:     cfg.TotalRounds,
		roundsCompleted: cfg.RoundsCompleted,
		scores:          cfg.Scores,
		seats:           cfg.Seats,
		present:         cfg.Present,
		choices:         make(map[string]game.Move, 2),
		chat:            append([]store.ChatMessage(nil), cfg.Chat...),
		subs:            make(map[string]subscriber),
		timeouts:        cfg.Timeouts,
		deps:            deps,
		ctx:             ctx,
		cancel:          cancel,
		log:             deps.Log.Named("battle").With(zap.String("battle_id", cfg.ID)),
	}
	if s.timeouts == (Timeouts{}) {
		s.timeouts = DefaultTimeouts()
	}

	switch {
	case cfg.Completed:
		s.status = StatusCompleted
		s.scheduleRemoval()
	case s.present[0] && s.present[1]:
		s.status = StatusInProgress
	default:
		s.status = StatusForming
	}

	if cfg.StartDelay > 0 && s.status == StatusInProgress {
		s.schedule(timerNextRound, cfg.StartDelay)
	}

	go s.loop()
	return s
}

// Inbox is where transports, timers and the registry send messages.
func (s *Session) Inbox() chan<- Msg { return s.inbox }

func (s *Session) ID() string { return s.id }

func (s *Session) loop() {
	for {
		select {
		case <-s.ctx.Done():
			s.shutdown()
			return

		case m := <-s.inbox:
			switch msg := m.(type) {
			case Subscribe:
				s.subs[msg.ClientID] = subscriber{playerID: msg.PlayerID, out: msg.Outbox}

			case Unsubscribe:
				// The session owns every subscribed outbox; closing it tells
				// the writer this subscription is finished.
				if sub, ok := s.subs[msg.ClientID]; ok {
					close(sub.out)
					delete(s.subs, msg.ClientID)
				}

			case Join:
				s.handleJoin(msg)

			case SubmitChoice:
				s.handleChoice(msg)

			case Disconnect:
				s.handleDisconnect(msg.PlayerID)

			case RequestRematch:
				s.handleRematchRequest(msg.PlayerID)

			case RespondRematch:
				s.handleRematchResponse(msg)

			case Chat:
				s.handleChat(msg)

			case timerFired:
				if msg.epoch != s.epoch {
					s.log.Debug("stale timer fire ignored",
						zap.Uint64("fired_epoch", msg.epoch),
						zap.Uint64("current_epoch", s.epoch))
					break
				}
				s.pending = nil
				s.hasPending = false
				switch msg.kind {
				case timerRoundDeadline:
					s.resolveRound()
				case timerNextRound:
					s.startRound()
				}

			case GetState:
				msg.Reply <- View{
					ID:              s.id,
					Status:          s.status,
					Seats:           s.seats,
					Present:         s.present,
					Scores:          s.scores,
					RoundsCompleted: s.roundsCompleted,
					TotalRounds:     s.totalRounds,
					ChoiceCount:     len(s.choices),
					Subscribers:     len(s.subs),
					RematchBy:       s.rematchBy,
				}

			case Shutdown:
				s.shutdown()
				return
			}
		}
	}
}

func (s *Session) handleJoin(msg Join) {
	seat := s.seatOf(msg.PlayerID)
	if seat == -1 {
		if s.seats[0] != "" && s.seats[1] != "" {
			s.log.Info("join rejected, battle full", zap.String("player_id", msg.PlayerID))
			s.sendToClient(msg.ClientID, protocol.ServerMessage{
				Type:  protocol.TypeError,
				Error: "battle is full, only two players are allowed",
			})
			return
		}
		if s.seats[0] == "" {
			seat = 0
		} else {
			seat = 1
		}
		s.seats[seat] = msg.PlayerID
		if s.seats[0] != "" && s.seats[1] != "" {
			p1, p2 := s.seats[0], s.seats[1]
			s.persistAsync("set players", func(ctx context.Context) error {
				return s.deps.Store.SetPlayers(ctx, s.id, p1, p2)
			})
		}
	}

	if s.present[seat] {
		// Duplicate join from an already connected player.
		return
	}
	s.present[seat] = true
	s.log.Info("player joined", zap.String("player_id", msg.PlayerID), zap.Int("seat", seat))

	s.sendToClient(msg.ClientID, protocol.ServerMessage{
		Type:     protocol.TypeChatHistory,
		Messages: toProtocolChat(s.chat),
	})
	if s.status == StatusCompleted {
		// Rejoining within the grace period: replay the final result, which
		// is the context the session is being kept around for.
		s.sendToClient(msg.ClientID, protocol.ServerMessage{
			Type:   protocol.TypeMatchResult,
			Winner: string(game.ResolveMatch(s.scores[0], s.scores[1])),
			Scores: &protocol.Scores{Player1: s.scores[0], Player2: s.scores[1]},
		})
	}
	s.broadcast(protocol.ServerMessage{Type: protocol.TypePlayerCountChanged, Count: s.presentCount()})

	if s.present[0] && s.present[1] && s.status != StatusCompleted {
		s.status = StatusInProgress
		if !s.hasPending {
			if s.roundsCompleted < s.totalRounds {
				s.startRound()
			} else {
				// Every round was persisted but the final-result write was
				// lost; settle the match again instead of wedging here.
				s.resolveMatch()
			}
		}
	}
}

func (s *Session) handleChoice(msg SubmitChoice) {
	seat := s.seatOf(msg.PlayerID)
	if seat == -1 || !s.present[seat] {
		s.log.Warn("choice from player not in battle", zap.String("player_id", msg.PlayerID))
		return
	}
	if !s.roundInFlight() {
		s.log.Warn("choice with no round in flight", zap.String("player_id", msg.PlayerID))
		return
	}
	if _, dup := s.choices[msg.PlayerID]; dup {
		// First submission wins.
		s.log.Warn("duplicate choice ignored", zap.String("player_id", msg.PlayerID))
		return
	}

	s.choices[msg.PlayerID] = msg.Choice
	if len(s.choices) == 2 {
		s.cancelPending()
		s.resolveRound()
	}
}

func (s *Session) handleDisconnect(playerID string) {
	seat := s.seatOf(playerID)
	if seat == -1 || !s.present[seat] {
		return
	}
	// The seat survives so a reconnect lands back in the same match; an
	// in-flight round keeps waiting for its deadline.
	s.present[seat] = false
	s.log.Info("player disconnected", zap.String("player_id", playerID))
	s.broadcast(protocol.ServerMessage{Type: protocol.TypePlayerDisconnected, PlayerID: playerID})
}

func (s *Session) handleRematchRequest(playerID string) {
	seat := s.seatOf(playerID)
	if seat == -1 || s.status != StatusCompleted || s.rematchBy != "" || s.rematchDone {
		s.log.Warn("rematch request ignored",
			zap.String("player_id", playerID),
			zap.String("status", string(s.status)),
			zap.String("already_requested_by", s.rematchBy))
		return
	}
	s.rematchBy = playerID
	s.sendToPlayer(s.seats[1-seat], protocol.ServerMessage{
		Type:             protocol.TypeRematchRequested,
		RequestingPlayer: playerID,
	})
}

func (s *Session) handleRematchResponse(msg RespondRematch) {
	if s.rematchBy == "" || s.rematchDone || msg.PlayerID == s.rematchBy || s.seatOf(msg.PlayerID) == -1 {
		s.log.Warn("rematch response ignored", zap.String("player_id", msg.PlayerID))
		return
	}

	if !msg.Accept {
		requester := s.rematchBy
		s.rematchBy = ""
		s.sendToPlayer(requester, protocol.ServerMessage{Type: protocol.TypeRematchRejected})
		return
	}

	if s.deps.StartRematch == nil {
		s.log.Error("rematch accepted but no rematch starter configured")
		return
	}
	newID, err := s.deps.StartRematch(s.ctx, RematchSeed{
		FromID:  s.id,
		Seats:   s.seats,
		Present: s.present,
	})
	if err != nil {
		s.log.Error("rematch creation failed", zap.Error(err))
		s.rematchBy = ""
		s.sendToClient(msg.ClientID, protocol.ServerMessage{
			Type:  protocol.TypeError,
			Error: "failed to create rematch",
		})
		return
	}
	s.rematchDone = true
	s.log.Info("rematch started", zap.String("new_battle_id", newID))
	for _, seatID := range s.seats {
		s.sendToPlayer(seatID, protocol.ServerMessage{
			Type:        protocol.TypeRematchStarted,
			NewBattleID: newID,
		})
	}
}

func (s *Session) handleChat(msg Chat) {
	cm := store.ChatMessage{Sender: msg.Sender, Message: msg.Message, Timestamp: s.deps.Clock.Now()}
	s.chat = append(s.chat, cm)
	s.persistAsync("append chat", func(ctx context.Context) error {
		return s.deps.Store.AppendChat(ctx, s.id, cm)
	})
	s.broadcast(protocol.ServerMessage{
		Type:      protocol.TypeChatMessage,
		Sender:    cm.Sender,
		Message:   cm.Message,
		Timestamp: &cm.Timestamp,
	})
}

func (s *Session) startRound() {
	if s.status == StatusCompleted || s.roundsCompleted >= s.totalRounds {
		return
	}
	s.status = StatusInProgress
	s.choices = make(map[string]game.Move, 2)
	s.epoch++
	s.broadcast(protocol.ServerMessage{
		Type:        protocol.TypeRoundStarted,
		RoundNumber: s.roundsCompleted + 1,
		TotalRounds: s.totalRounds,
	})
	s.schedule(timerRoundDeadline, s.timeouts.Round)
}

// resolveRound settles the in-flight round from whatever choices arrived.
// Runs exactly once per round: either on the second choice (timer already
// cancelled) or on the deadline firing.
func (s *Session) resolveRound() {
	s.cancelPending()
	s.epoch++

	choice1 := s.choices[s.seats[0]]
	choice2 := s.choices[s.seats[1]]
	outcome := game.ResolveRound(choice1, choice2)
	switch outcome {
	case game.OutcomePlayer1:
		s.scores[0]++
	case game.OutcomePlayer2:
		s.scores[1]++
	}
	s.roundsCompleted++

	rr := store.RoundResult{
		Round:   s.roundsCompleted,
		Choice1: string(choice1),
		Choice2: string(choice2),
		Winner:  string(outcome),
	}
	s.persistAsync("append round", func(ctx context.Context) error {
		return s.deps.Store.AppendRound(ctx, s.id, rr)
	})

	s.broadcast(protocol.ServerMessage{
		Type:        protocol.TypeRoundResult,
		Choice1:     string(choice1),
		Choice2:     string(choice2),
		Winner:      string(outcome),
		Scores:      &protocol.Scores{Player1: s.scores[0], Player2: s.scores[1]},
		RoundNumber: s.roundsCompleted,
		TotalRounds: s.totalRounds,
	})

	if s.roundsCompleted >= s.totalRounds {
		s.resolveMatch()
	} else {
		s.schedule(timerNextRound, s.timeouts.BetweenRounds)
	}
}

func (s *Session) resolveMatch() {
	outcome := game.ResolveMatch(s.scores[0], s.scores[1])
	s.status = StatusCompleted

	winner, loser := s.seats[0], s.seats[1]
	if outcome == game.OutcomePlayer2 {
		winner, loser = loser, winner
	}
	s.log.Info("match completed",
		zap.String("winner", string(outcome)),
		zap.Int("score1", s.scores[0]),
		zap.Int("score2", s.scores[1]))

	s.persistAsync("final result", func(ctx context.Context) error {
		return s.deps.Store.SetFinalResult(ctx, s.id, string(outcome))
	})
	if s.deps.Ranking != nil {
		s.persistAsync("ranking update", func(ctx context.Context) error {
			return s.deps.Ranking.RecordResult(ctx, winner, loser)
		})
	}

	s.broadcast(protocol.ServerMessage{
		Type:   protocol.TypeMatchResult,
		Winner: string(outcome),
		Scores: &protocol.Scores{Player1: s.scores[0], Player2: s.scores[1]},
	})
	s.scheduleRemoval()
}

func (s *Session) schedule(kind timerKind, d time.Duration) {
	s.cancelPending()
	epoch := s.epoch
	s.pendingKind = kind
	s.hasPending = true
	s.pending = s.deps.Clock.AfterFunc(d, func() {
		select {
		case s.inbox <- timerFired{kind: kind, epoch: epoch}:
		case <-s.ctx.Done():
		}
	})
}

// cancelPending is idempotent: choice arrival and deadline expiry can race,
// and the epoch guard catches any firing that slips through Stop.
func (s *Session) cancelPending() {
	if s.pending != nil {
		s.pending.Stop()
		s.pending = nil
	}
	s.hasPending = false
}

func (s *Session) scheduleRemoval() {
	if s.deps.OnRemove == nil {
		return
	}
	id := s.id
	s.deps.Clock.AfterFunc(s.timeouts.CompletedGrace, func() { s.deps.OnRemove(id) })
}

// persistAsync runs a durable write off the session goroutine. The
// in-memory state already advanced; a failure is logged and accepted.
func (s *Session) persistAsync(op string, fn func(ctx context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := fn(ctx); err != nil {
			s.log.Error("persistence failed", zap.String("op", op), zap.Error(err))
		}
	}()
}

func (s *Session) roundInFlight() bool {
	return s.hasPending && s.pendingKind == timerRoundDeadline
}

func (s *Session) seatOf(playerID string) int {
	for i, id := range s.seats {
		if id != "" && id == playerID {
			return i
		}
	}
	return -1
}

func (s *Session) presentCount() int {
	n := 0
	for _, p := range s.present {
		if p {
			n++
		}
	}
	return n
}

func (s *Session) broadcast(msg protocol.ServerMessage) {
	for id, sub := range s.subs {
		select {
		case sub.out <- msg:
		default:
			// Slow or gone - drop them.
			close(sub.out)
			delete(s.subs, id)
		}
	}
}

func (s *Session) sendToClient(clientID string, msg protocol.ServerMessage) {
	sub, ok := s.subs[clientID]
	if !ok {
		return
	}
	select {
	case sub.out <- msg:
	default:
		close(sub.out)
		delete(s.subs, clientID)
	}
}

func (s *Session) sendToPlayer(playerID string, msg protocol.ServerMessage) {
	if playerID == "" {
		return
	}
	for id, sub := range s.subs {
		if sub.playerID != playerID {
			continue
		}
		select {
		case sub.out <- msg:
		default:
			close(sub.out)
			delete(s.subs, id)
		}
	}
}

func (s *Session) shutdown() {
	s.cancelPending()
	for id, sub := range s.subs {
		close(sub.out)
		delete(s.subs, id)
	}
	s.cancel()
}

func toProtocolChat(in []store.ChatMessage) []protocol.ChatMessage {
	out := make([]protocol.ChatMessage, 0, len(in))
	for _, m := range in {
		out = append(out, protocol.ChatMessage{Sender: m.Sender, Message: m.Message, Timestamp: m.Timestamp})
	}
	return out
}
