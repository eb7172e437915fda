package registry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"battle-server/internal/battle"
	"battle-server/internal/game"
	"battle-server/internal/store"
	"battle-server/pkg/protocol"
)

func newTestRegistry(t *testing.T) (*Registry, *store.Memory, *clockwork.FakeClock) {
	t.Helper()
	mem := store.NewMemory()
	fc := clockwork.NewFakeClock()
	reg := New(context.Background(), mem, nil, fc, battle.DefaultTimeouts(), zap.NewNop())
	return reg, mem, fc
}

func seedBattle(t *testing.T, mem *store.Memory, rec store.BattleRecord) {
	t.Helper()
	require.NoError(t, mem.Create(context.Background(), &rec))
}

func sessionView(t *testing.T, s *battle.Session) battle.View {
	t.Helper()
	reply := make(chan battle.View, 1)
	s.Inbox() <- battle.GetState{Reply: reply}
	select {
	case v := <-reply:
		return v
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for session view")
		return battle.View{} // unreachable
	}
}

func drainFor(t *testing.T, ch <-chan protocol.ServerMessage, typ string) protocol.ServerMessage {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case msg, ok := <-ch:
			require.True(t, ok, "outbox closed while waiting for %q", typ)
			if msg.Type == typ {
				return msg
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q", typ)
		}
	}
}

func TestRegistry_GetOrCreateUnknownBattle(t *testing.T) {
	reg, _, _ := newTestRegistry(t)

	_, err := reg.GetOrCreate(context.Background(), "no-such-battle")
	require.ErrorIs(t, err, store.ErrNotFound)
	require.Equal(t, 0, reg.Len())
}

func TestRegistry_ConcurrentGetOrCreateSharesOneSession(t *testing.T) {
	reg, mem, _ := newTestRegistry(t)
	seedBattle(t, mem, store.BattleRecord{
		ID: "b1", CreatorName: "Alice", InvitedName: "Bob",
		TotalRounds: 3, Status: store.StatusPending,
	})

	const callers = 8
	sessions := make([]*battle.Session, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sessions[i], errs[i] = reg.GetOrCreate(context.Background(), "b1")
		}(i)
	}
	wg.Wait()

	for i := range sessions {
		require.NoError(t, errs[i])
		require.Same(t, sessions[0], sessions[i])
	}
	require.Equal(t, 1, reg.Len())
}

func TestRegistry_RemoveIsIdempotent(t *testing.T) {
	reg, mem, _ := newTestRegistry(t)
	seedBattle(t, mem, store.BattleRecord{ID: "b1", TotalRounds: 3, Status: store.StatusPending})

	_, err := reg.GetOrCreate(context.Background(), "b1")
	require.NoError(t, err)

	reg.Remove("b1")
	require.Equal(t, 0, reg.Len())
	require.Nil(t, reg.Get("b1"))
	reg.Remove("b1") // absent: no-op
}

func TestRegistry_ResumeSeedsProgressFromRecord(t *testing.T) {
	reg, mem, _ := newTestRegistry(t)
	seedBattle(t, mem, store.BattleRecord{
		ID: "b1", TotalRounds: 3, Status: store.StatusPending,
		Results: []store.RoundResult{
			{Round: 1, Choice1: "rock", Choice2: "scissors", Winner: "player1"},
			{Round: 2, Choice1: "paper", Choice2: "scissors", Winner: "player2"},
		},
	})

	s, err := reg.GetOrCreate(context.Background(), "b1")
	require.NoError(t, err)

	v := sessionView(t, s)
	require.Equal(t, 2, v.RoundsCompleted)
	require.Equal(t, [2]int{1, 1}, v.Scores)
	require.Equal(t, battle.StatusForming, v.Status)
}

func TestRegistry_ResumeCompletedBattle(t *testing.T) {
	reg, mem, _ := newTestRegistry(t)
	seedBattle(t, mem, store.BattleRecord{
		ID: "b1", TotalRounds: 1, Status: store.StatusCompleted, FinalWinner: "player1",
		Results: []store.RoundResult{{Round: 1, Choice1: "rock", Choice2: "scissors", Winner: "player1"}},
	})

	s, err := reg.GetOrCreate(context.Background(), "b1")
	require.NoError(t, err)
	require.Equal(t, battle.StatusCompleted, sessionView(t, s).Status)
}

func TestRegistry_RematchCreatesFreshSession(t *testing.T) {
	reg, mem, fc := newTestRegistry(t)
	seedBattle(t, mem, store.BattleRecord{
		ID: "b1", CreatorName: "Alice", InvitedName: "Bob",
		TotalRounds: 1, Status: store.StatusPending,
	})

	s, err := reg.GetOrCreate(context.Background(), "b1")
	require.NoError(t, err)

	a := make(chan protocol.ServerMessage, 16)
	b := make(chan protocol.ServerMessage, 16)
	s.Inbox() <- battle.Subscribe{ClientID: "ca", PlayerID: "alice", Outbox: a}
	s.Inbox() <- battle.Join{PlayerID: "alice", ClientID: "ca"}
	s.Inbox() <- battle.Subscribe{ClientID: "cb", PlayerID: "bob", Outbox: b}
	s.Inbox() <- battle.Join{PlayerID: "bob", ClientID: "cb"}
	drainFor(t, a, protocol.TypeRoundStarted)
	drainFor(t, b, protocol.TypeRoundStarted)

	s.Inbox() <- battle.SubmitChoice{PlayerID: "alice", Choice: game.MoveRock}
	s.Inbox() <- battle.SubmitChoice{PlayerID: "bob", Choice: game.MoveScissors}
	drainFor(t, a, protocol.TypeMatchResult)
	drainFor(t, b, protocol.TypeMatchResult)

	s.Inbox() <- battle.RequestRematch{PlayerID: "alice"}
	drainFor(t, b, protocol.TypeRematchRequested)
	s.Inbox() <- battle.RespondRematch{PlayerID: "bob", ClientID: "cb", Accept: true}

	started := drainFor(t, a, protocol.TypeRematchStarted)
	require.NotEmpty(t, started.NewBattleID)
	require.NotEqual(t, "b1", started.NewBattleID)
	drainFor(t, b, protocol.TypeRematchStarted)

	next := reg.Get(started.NewBattleID)
	require.NotNil(t, next)
	require.Equal(t, 2, reg.Len())

	v := sessionView(t, next)
	require.Equal(t, [2]string{"alice", "bob"}, v.Seats)
	require.Equal(t, [2]bool{true, true}, v.Present)
	require.Equal(t, [2]int{0, 0}, v.Scores)
	require.Equal(t, battle.StatusInProgress, v.Status)

	rec, err := mem.Load(context.Background(), started.NewBattleID)
	require.NoError(t, err)
	require.Equal(t, "Alice", rec.CreatorName)
	require.Equal(t, "alice", rec.Player1ID)
	require.Equal(t, "bob", rec.Player2ID)
	require.Equal(t, 1, rec.TotalRounds)
	require.Equal(t, store.StatusPending, rec.Status)

	// The successor starts round 1 on its own after the rematch delay. Two
	// timers are armed at this point: the old session's removal and the new
	// session's start.
	a2 := make(chan protocol.ServerMessage, 16)
	next.Inbox() <- battle.Subscribe{ClientID: "ca2", PlayerID: "alice", Outbox: a2}

	fc.BlockUntil(2)
	fc.Advance(battle.DefaultTimeouts().RematchStart)

	msg := drainFor(t, a2, protocol.TypeRoundStarted)
	require.Equal(t, 1, msg.RoundNumber)
}
