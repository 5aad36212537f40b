package server

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"minirace/protocol"
)

func TestRoom_JoinSendsSnapshotAndBroadcast(t *testing.T) {
	r := NewRoom("game_room")
	alice := connect(r, "s-alice", "alice")
	bob := connect(r, "s-bob", "bob")

	joined := decodeAs[protocol.Joined](t, bob.last(t, protocol.TypeJoined))
	assert.Equal(t, protocol.Joined{SessionID: "s-bob", Username: "bob"}, joined)

	roster := decodeAs[protocol.OnlinePlayers](t, bob.last(t, protocol.TypeOnlinePlayers))
	assert.Equal(t, []string{"alice", "bob"}, roster.Players)
	assert.Equal(t, 2, roster.Count)

	// 迟到玩家收到已在线玩家的姿态
	updates := bob.envelopes(t, protocol.TypePlayerUpdate)
	require.Len(t, updates, 1)
	assert.Equal(t, "alice", decodeAs[protocol.PlayerUpdate](t, updates[0]).Username)

	pj := decodeAs[protocol.PlayerJoin](t, alice.last(t, protocol.TypePlayerJoin))
	assert.Equal(t, protocol.PlayerJoin{Username: "bob", OnlineCount: 2}, pj)

	assert.Empty(t, bob.envelopes(t, protocol.TypePlayerJoin))
	assert.Equal(t, int64(2), r.Metrics().Joins)
}

func TestRoom_InvalidUsernameThenRetry(t *testing.T) {
	r := NewRoom("game_room")
	alice := connect(r, "s-alice", "alice")
	alice.reset()

	c := connect(r, "s-1", "1bob")
	rej := decodeAs[protocol.UsernameRejected](t, c.last(t, protocol.TypeUsernameRejected))
	assert.Equal(t, protocol.ReasonInvalidFormat, rej.Reason)
	assert.Equal(t, "1bob", rej.Username)
	assert.Equal(t, StateConnecting, r.sessions["s-1"].State)
	assert.Equal(t, 1, r.store.Len())
	assert.False(t, c.isClosed())
	assert.Empty(t, alice.envelopes(t, protocol.TypePlayerJoin))

	// 同一会话可换名重试
	deliver(r, "s-1", protocol.TypeJoin, protocol.JoinRequest{Username: "bob"})
	joined := decodeAs[protocol.Joined](t, c.last(t, protocol.TypeJoined))
	assert.Equal(t, "bob", joined.Username)
	assert.Equal(t, StateActive, r.sessions["s-1"].State)

	pj := decodeAs[protocol.PlayerJoin](t, alice.last(t, protocol.TypePlayerJoin))
	assert.Equal(t, protocol.PlayerJoin{Username: "bob", OnlineCount: 2}, pj)
}

func TestRoom_RejectionReasons(t *testing.T) {
	tests := []struct {
		name       string
		maxPlayers int
		existing   []string
		candidate  string
		wantReason string
	}{
		{name: "too short", maxPlayers: 10, candidate: "ab", wantReason: protocol.ReasonTooShort},
		{name: "bad characters", maxPlayers: 10, candidate: "bo b", wantReason: protocol.ReasonInvalidFormat},
		{name: "taken", maxPlayers: 10, existing: []string{"alice"}, candidate: "alice", wantReason: protocol.ReasonTaken},
		{name: "room full", maxPlayers: 1, existing: []string{"alice"}, candidate: "bob", wantReason: protocol.ReasonRoomFull},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRoom("game_room", WithMaxPlayers(tt.maxPlayers))
			for i, name := range tt.existing {
				connect(r, "existing-"+string(rune('a'+i)), name)
			}
			c := connect(r, "candidate", tt.candidate)

			rej := decodeAs[protocol.UsernameRejected](t, c.last(t, protocol.TypeUsernameRejected))
			assert.Equal(t, tt.wantReason, rej.Reason)
			assert.Empty(t, c.envelopes(t, protocol.TypeJoined))
			assert.Equal(t, len(tt.existing), r.store.Len())
			assert.Equal(t, int64(1), r.Metrics().NamesRejected)
		})
	}
}

func TestRoom_SynthesizedUsername(t *testing.T) {
	r := NewRoom("game_room")
	c := connect(r, "0f8fad5b-d9cb-469f-a165-70867728950e", "")

	joined := decodeAs[protocol.Joined](t, c.last(t, protocol.TypeJoined))
	assert.Equal(t, "Player0f8fad5b", joined.Username)
	assert.NoError(t, protocol.ValidateUsername(joined.Username))
}

func TestRoom_JoinWhenActive(t *testing.T) {
	r := NewRoom("game_room")
	c := connect(r, "s1", "alice")

	deliver(r, "s1", protocol.TypeJoin, protocol.JoinRequest{Username: "alice2"})

	msg := decodeAs[protocol.ErrorMessage](t, c.last(t, protocol.TypeError))
	assert.Equal(t, protocol.ReasonAlreadyActive, msg.Reason)
	assert.Equal(t, "alice", r.sessions["s1"].Username)
	assert.False(t, r.store.Taken("alice2"))
}

func TestRoom_CheckUsername(t *testing.T) {
	r := NewRoom("game_room")
	connect(r, "s-alice", "alice")
	probe := connectProbe(r, "probe")

	tests := []struct {
		name      string
		candidate string
		want      protocol.UsernameAvailability
	}{
		{name: "taken", candidate: "alice", want: protocol.UsernameAvailability{Available: false, Reason: protocol.ReasonTaken}},
		{name: "free", candidate: "carol", want: protocol.UsernameAvailability{Available: true}},
		{name: "too short", candidate: "ab", want: protocol.UsernameAvailability{Available: false, Reason: protocol.ReasonTooShort}},
		{name: "starts with digit", candidate: "1bob", want: protocol.UsernameAvailability{Available: false, Reason: protocol.ReasonInvalidFormat}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			probe.reset()
			deliver(r, "probe", protocol.TypeCheckUsername, protocol.CheckUsername{Username: tt.candidate})
			got := decodeAs[protocol.UsernameAvailability](t, probe.last(t, protocol.TypeUsernameAvailability))
			assert.Equal(t, tt.want, got)
		})
	}

	// 预检会话不计入在线人数
	assert.Equal(t, 1, r.store.Len())
	assert.Equal(t, StateConnecting, r.sessions["probe"].State)
}

func TestRoom_LeaveAndDisconnect(t *testing.T) {
	r := NewRoom("game_room")
	alice := connect(r, "s-alice", "alice")
	bob := connect(r, "s-bob", "bob")
	carol := connect(r, "s-carol", "carol")
	bob.reset()

	// 主动离开
	deliver(r, "s-alice", protocol.TypeLeave, nil)
	assert.True(t, alice.isClosed())
	pl := decodeAs[protocol.PlayerLeave](t, bob.last(t, protocol.TypePlayerLeave))
	assert.Equal(t, protocol.PlayerLeave{Username: "alice", OnlineCount: 2}, pl)

	// 离开后的更新不会再被转发
	deliver(r, "s-alice", protocol.TypeUpdatePosition, protocol.UpdatePosition{Transform: protocol.Transform{X: 9}})
	assert.Empty(t, bob.envelopes(t, protocol.TypePlayerUpdate))

	// 断线等同离开；重复断线无副作用
	r.handle(event{kind: evDisconnect, sessionID: "s-carol"})
	r.handle(event{kind: evDisconnect, sessionID: "s-carol"})
	assert.True(t, carol.isClosed())
	leaves := bob.envelopes(t, protocol.TypePlayerLeave)
	require.Len(t, leaves, 2)
	assert.Equal(t, protocol.PlayerLeave{Username: "carol", OnlineCount: 1}, decodeAs[protocol.PlayerLeave](t, leaves[1]))

	assert.Equal(t, []string{"bob"}, r.store.Usernames())
	assert.Equal(t, int64(2), r.Metrics().Leaves)

	// 名字释放后可被新会话使用
	dave := connect(r, "s-alice-2", "alice")
	assert.Equal(t, "alice", decodeAs[protocol.Joined](t, dave.last(t, protocol.TypeJoined)).Username)
}

func TestRoom_DisconnectBeforeJoinIsSilent(t *testing.T) {
	r := NewRoom("game_room")
	alice := connect(r, "s-alice", "alice")
	alice.reset()
	connect(r, "s-bad", "1bad")

	r.handle(event{kind: evDisconnect, sessionID: "s-bad"})

	assert.Empty(t, alice.envelopes(t, protocol.TypePlayerLeave))
	assert.NotContains(t, r.sessions, "s-bad")
}

func TestRoom_OnlineCountMatchesActiveSessions(t *testing.T) {
	r := NewRoom("game_room", WithMaxPlayers(100))
	watcher := connect(r, "watcher", "watcher")
	rng := rand.New(rand.NewSource(7))

	active := map[string]bool{}
	next := 0
	for i := 0; i < 300; i++ {
		if len(active) == 0 || rng.Intn(2) == 0 {
			id := fmt.Sprintf("s%d", next)
			name := fmt.Sprintf("player%d", next)
			next++
			connect(r, id, name)
			active[id] = true
		} else {
			var victim string
			for id := range active {
				victim = id
				break
			}
			if rng.Intn(2) == 0 {
				deliver(r, victim, protocol.TypeLeave, nil)
			} else {
				r.handle(event{kind: evDisconnect, sessionID: victim})
			}
			delete(active, victim)
		}

		last := watcher.envelopes(t, "")
		env := last[len(last)-1]
		switch env.Type {
		case protocol.TypePlayerJoin:
			assert.Equal(t, len(active)+1, decodeAs[protocol.PlayerJoin](t, env).OnlineCount)
		case protocol.TypePlayerLeave:
			assert.Equal(t, len(active)+1, decodeAs[protocol.PlayerLeave](t, env).OnlineCount)
		default:
			t.Fatalf("unexpected message %s", env.Type)
		}
		assert.Equal(t, len(active)+1, r.store.Len())
	}
}

func TestRoom_ConcurrentJoinSameName(t *testing.T) {
	r := NewRoom("game_room", WithMaxPlayers(100))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Start(ctx)

	const n = 50
	conns := make([]*fakeConn, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		conns[i] = &fakeConn{}
		wg.Add(1)
		go func(c *fakeConn) {
			defer wg.Done()
			_, ok := r.Connect(c, "racer", true)
			assert.True(t, ok)
		}(conns[i])
	}
	wg.Wait()

	// Roster 与连接事件同一循环串行处理，返回时所有连接已处理完毕
	roster, err := r.Roster(ctx)
	require.NoError(t, err)
	assert.Equal(t, protocol.OnlinePlayers{Players: []string{"racer"}, Count: 1}, roster)

	var admitted, rejected int
	for _, c := range conns {
		admitted += len(c.envelopes(t, protocol.TypeJoined))
		for _, env := range c.envelopes(t, protocol.TypeUsernameRejected) {
			assert.Equal(t, protocol.ReasonTaken, decodeAs[protocol.UsernameRejected](t, env).Reason)
			rejected++
		}
	}
	assert.Equal(t, 1, admitted)
	assert.Equal(t, n-1, rejected)
}

func TestRoom_StopClosesSessions(t *testing.T) {
	r := NewRoom("game_room")
	ctx, cancel := context.WithCancel(context.Background())
	r.Start(ctx)
	r.Start(ctx)

	c := &fakeConn{}
	_, ok := r.Connect(c, "alice", true)
	require.True(t, ok)
	_, err := r.Roster(ctx)
	require.NoError(t, err)

	cancel()
	select {
	case <-r.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("room loop did not stop")
	}

	assert.True(t, c.isClosed())
	_, ok = r.Connect(&fakeConn{}, "bob", true)
	assert.False(t, ok)
	assert.ErrorIs(t, r.Call(context.Background(), func() {}), ErrRoomClosed)
}

func TestRoom_SetMaxPlayers(t *testing.T) {
	r := NewRoom("game_room", WithMaxPlayers(1))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Start(ctx)

	require.NoError(t, r.SetMaxPlayers(ctx, 5))
	n, err := r.MaxPlayers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	assert.Error(t, r.SetMaxPlayers(ctx, 0))
}

func TestRoom_CallCancelledBeforeLoopRuns(t *testing.T) {
	r := NewRoom("game_room")
	connect(r, "s-alice", "alice")

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	out, err := r.Roster(cancelled)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, protocol.OnlinePlayers{}, out)
	n, err := r.MaxPlayers(cancelled)
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, n)

	// 之后启动的循环仍会执行已排队的调用，不影响新的调用
	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	r.Start(ctx)
	got, err := r.Roster(ctx)
	require.NoError(t, err)
	assert.Equal(t, protocol.OnlinePlayers{Players: []string{"alice"}, Count: 1}, got)
}

func TestRoom_SendQueueFullCounted(t *testing.T) {
	r := NewRoom("game_room")
	connect(r, "s-alice", "alice")
	bob := connect(r, "s-bob", "bob")
	bob.full = true

	deliver(r, "s-alice", protocol.TypeUpdatePosition, protocol.UpdatePosition{Transform: protocol.Transform{X: 1}})

	assert.Equal(t, int64(1), r.Metrics().SendDropped)
	assert.Equal(t, int64(1), r.Metrics().UpdatesRelayed)
}
