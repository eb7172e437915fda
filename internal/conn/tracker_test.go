package conn

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"battle-server/internal/battle"
	"battle-server/internal/store"
)

func newSessionWithPlayer(t *testing.T, playerID string) *battle.Session {
	t.Helper()
	mem := store.NewMemory()
	require.NoError(t, mem.Create(context.Background(), &store.BattleRecord{
		ID: "b1", TotalRounds: 3, Status: store.StatusPending,
	}))
	s := battle.New(context.Background(), battle.Config{ID: "b1", TotalRounds: 3}, battle.Deps{
		Store: mem,
		Clock: clockwork.NewFakeClock(),
		Log:   zap.NewNop(),
	})
	t.Cleanup(func() { s.Inbox() <- battle.Shutdown{} })
	s.Inbox() <- battle.Join{PlayerID: playerID, ClientID: "c-" + playerID}
	return s
}

func present(t *testing.T, s *battle.Session) [2]bool {
	t.Helper()
	reply := make(chan battle.View, 1)
	s.Inbox() <- battle.GetState{Reply: reply}
	select {
	case v := <-reply:
		return v.Present
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for session view")
		return [2]bool{} // unreachable
	}
}

func TestTracker_UnbindDisconnectsAttachedSessions(t *testing.T) {
	tr := NewTracker(zap.NewNop())
	s := newSessionWithPlayer(t, "alice")
	require.Equal(t, [2]bool{true, false}, present(t, s))

	tr.Bind("alice", "h1")
	tr.Attach("alice", s)
	tr.Unbind("h1")

	require.Equal(t, [2]bool{false, false}, present(t, s))
}

func TestTracker_StaleHandleUnbindsSilently(t *testing.T) {
	tr := NewTracker(zap.NewNop())
	s := newSessionWithPlayer(t, "alice")

	tr.Bind("alice", "h1")
	tr.Attach("alice", s)
	tr.Bind("alice", "h2") // reconnect replaces h1

	// The old connection closing must not disconnect the player.
	tr.Unbind("h1")
	require.Equal(t, [2]bool{true, false}, present(t, s))

	// The live connection closing does.
	tr.Unbind("h2")
	require.Equal(t, [2]bool{false, false}, present(t, s))
}

func TestTracker_DetachStopsNotification(t *testing.T) {
	tr := NewTracker(zap.NewNop())
	s := newSessionWithPlayer(t, "alice")

	tr.Bind("alice", "h1")
	tr.Attach("alice", s)
	tr.Attach("alice", s) // idempotent
	tr.Detach("alice", s)
	tr.Unbind("h1")

	require.Equal(t, [2]bool{true, false}, present(t, s))
}

func TestTracker_UnbindUnknownHandleIsNoop(t *testing.T) {
	tr := NewTracker(zap.NewNop())
	tr.Unbind("never-bound")
}
