// Package ws adapts websocket connections to battle session inboxes. One
// reader loop feeds inbound events in, one writer goroutine drains the
// session outbox, and rematch migration re-points both at the new session.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"battle-server/internal/battle"
	"battle-server/internal/conn"
	"battle-server/internal/game"
	"battle-server/internal/registry"
	"battle-server/internal/store"
	"battle-server/pkg/protocol"
)

const (
	writeTimeout = 3 * time.Second
	outboxSize   = 16
)

// Handler upgrades /ws?battle=<id>&player=<id> connections. The player id
// is a client-supplied opaque token with no server-side authentication; an
// accepted trust boundary, so a reconnect only has to present the same
// token to resume its seat.
func Handler(reg *registry.Registry, tracker *conn.Tracker, log *zap.Logger) http.HandlerFunc {
	log = log.Named("ws")
	return func(w http.ResponseWriter, r *http.Request) {
		battleID := r.URL.Query().Get("battle")
		playerID := r.URL.Query().Get("player")
		if battleID == "" || playerID == "" {
			http.Error(w, "missing battle or player", http.StatusBadRequest)
			return
		}

		sess, err := reg.GetOrCreate(r.Context(), battleID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				http.Error(w, "battle not found", http.StatusNotFound)
				return
			}
			log.Error("session lookup failed", zap.String("battle_id", battleID), zap.Error(err))
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close(websocket.StatusNormalClosure, "bye")

		clientID := uuid.NewString()
		clog := log.With(
			zap.String("battle_id", battleID),
			zap.String("player_id", playerID),
			zap.String("client_id", clientID))

		// cur is swapped by the writer goroutine on rematch migration.
		var cur atomic.Pointer[battle.Session]
		cur.Store(sess)

		tracker.Bind(playerID, clientID)
		tracker.Attach(playerID, sess)
		defer tracker.Unbind(clientID)

		out := make(chan protocol.ServerMessage, outboxSize)
		sess.Inbox() <- battle.Subscribe{ClientID: clientID, PlayerID: playerID, Outbox: out}
		sess.Inbox() <- battle.Join{PlayerID: playerID, ClientID: clientID}
		defer func() {
			cur.Load().Inbox() <- battle.Unsubscribe{ClientID: clientID}
		}()

		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		writeMsg := func(msg protocol.ServerMessage) {
			payload, err := json.Marshal(msg)
			if err != nil {
				clog.Error("marshal outbound message", zap.Error(err))
				return
			}
			ctx, cancel := context.WithTimeout(writeCtx, writeTimeout)
			_ = c.Write(ctx, websocket.MessageText, payload)
			cancel()
		}
		go func() {
			ch := out
			for {
				msg, ok := <-ch
				if !ok {
					// Subscription over: unsubscribed, dropped or shut down.
					c.Close(websocket.StatusGoingAway, "session closed")
					return
				}
				writeMsg(msg)
				if msg.Type == protocol.TypeRematchStarted {
					if next := reg.Get(msg.NewBattleID); next != nil {
						fresh := migrate(&cur, next, tracker, clientID, playerID)
						// The old session closes ch when it processes the
						// unsubscribe; deliver whatever it sent in between.
						for trailing := range ch {
							writeMsg(trailing)
						}
						ch = fresh
						clog.Info("migrated to rematch battle", zap.String("new_battle_id", msg.NewBattleID))
					}
				}
			}
		}()

		for {
			_, data, err := c.Read(r.Context())
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
					return
				}
				return
			}

			var cm protocol.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				writeError(writeCtx, c, "bad json")
				continue
			}

			msg, ok := toSessionMsg(cm, playerID, clientID)
			if !ok {
				writeError(writeCtx, c, "unknown or invalid message")
				continue
			}
			cur.Load().Inbox() <- msg
		}
	}
}

// migrate points the connection at the rematch successor. Every session owns
// the channel it was subscribed with, so the successor gets a fresh one and
// the old session closes the previous channel when it processes the
// unsubscribe; the two sessions never share an outbox.
func migrate(cur *atomic.Pointer[battle.Session], next *battle.Session, tracker *conn.Tracker, clientID, playerID string) chan protocol.ServerMessage {
	prev := cur.Load()
	fresh := make(chan protocol.ServerMessage, outboxSize)
	next.Inbox() <- battle.Subscribe{ClientID: clientID, PlayerID: playerID, Outbox: fresh}
	prev.Inbox() <- battle.Unsubscribe{ClientID: clientID}
	tracker.Attach(playerID, next)
	tracker.Detach(playerID, prev)
	cur.Store(next)
	return fresh
}

func toSessionMsg(m protocol.ClientMessage, playerID, clientID string) (battle.Msg, bool) {
	switch m.Type {
	case protocol.TypeJoin:
		return battle.Join{PlayerID: playerID, ClientID: clientID}, true
	case protocol.TypeSubmitChoice:
		choice, ok := game.ParseMove(m.Choice)
		if !ok {
			return nil, false
		}
		return battle.SubmitChoice{PlayerID: playerID, Choice: choice}, true
	case protocol.TypeRequestRematch:
		return battle.RequestRematch{PlayerID: playerID}, true
	case protocol.TypeRespondRematch:
		return battle.RespondRematch{PlayerID: playerID, ClientID: clientID, Accept: m.Accept}, true
	case protocol.TypeChatMessage:
		if m.Message == "" {
			return nil, false
		}
		return battle.Chat{Sender: playerID, Message: m.Message}, true
	default:
		return nil, false
	}
}

func writeError(ctx context.Context, c *websocket.Conn, text string) {
	payload, _ := json.Marshal(protocol.ServerMessage{Type: protocol.TypeError, Error: text})
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	_ = c.Write(wctx, websocket.MessageText, payload)
	cancel()
}
