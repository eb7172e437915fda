// Package conn maps logical player identity to the transport connection
// currently speaking for it. Bindings are ephemeral: replaced on reconnect,
// gone on disconnect, never persisted.
package conn

import (
	"sync"

	"go.uber.org/zap"

	"battle-server/internal/battle"
)

type Tracker struct {
	mu       sync.Mutex
	byHandle map[string]string // connection handle -> player id
	byPlayer map[string]string // player id -> current handle
	attached map[string]map[*battle.Session]struct{}
	log      *zap.Logger
}

func NewTracker(log *zap.Logger) *Tracker {
	return &Tracker{
		byHandle: make(map[string]string),
		byPlayer: make(map[string]string),
		attached: make(map[string]map[*battle.Session]struct{}),
		log:      log.Named("conn"),
	}
}

// Bind makes handle the player's current connection, replacing any prior
// one. Session membership is untouched; join stays an explicit operation.
func (t *Tracker) Bind(playerID, handle string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if old, ok := t.byPlayer[playerID]; ok && old != handle {
		delete(t.byHandle, old)
		t.log.Info("rebinding player connection", zap.String("player_id", playerID))
	}
	t.byPlayer[playerID] = handle
	t.byHandle[handle] = playerID
}

// Attach records that playerID participates in the session, so a later
// Unbind can notify it. Idempotent.
func (t *Tracker) Attach(playerID string, s *battle.Session) {
	t.mu.Lock()
	defer t.mu.Unlock()
	set, ok := t.attached[playerID]
	if !ok {
		set = make(map[*battle.Session]struct{})
		t.attached[playerID] = set
	}
	set[s] = struct{}{}
}

func (t *Tracker) Detach(playerID string, s *battle.Session) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if set, ok := t.attached[playerID]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(t.attached, playerID)
		}
	}
}

// Unbind removes the binding owned by handle and sends Disconnect to every
// session the owning player is attached to. A handle that was already
// replaced by a reconnect unbinds silently without touching the player.
func (t *Tracker) Unbind(handle string) {
	t.mu.Lock()
	playerID, ok := t.byHandle[handle]
	if !ok {
		t.mu.Unlock()
		return
	}
	delete(t.byHandle, handle)

	if t.byPlayer[playerID] != handle {
		// The player already rebound on a newer connection.
		t.mu.Unlock()
		return
	}
	delete(t.byPlayer, playerID)
	set := t.attached[playerID]
	delete(t.attached, playerID)

	sessions := make([]*battle.Session, 0, len(set))
	for s := range set {
		sessions = append(sessions, s)
	}
	t.mu.Unlock()

	for _, s := range sessions {
		s.Inbox() <- battle.Disconnect{PlayerID: playerID}
	}
	t.log.Info("player unbound", zap.String("player_id", playerID))
}
