package server

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"minirace/protocol"
)

type fakeConn struct {
	mu     sync.Mutex
	sent   [][]byte
	closed bool
	full   bool
}

func (f *fakeConn) Enqueue(b []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.full || f.closed {
		return false
	}
	f.sent = append(f.sent, b)
	return true
}

func (f *fakeConn) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeConn) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeConn) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = nil
}

// envelopes 返回指定类型的已发送消息；typ 为空返回全部
func (f *fakeConn) envelopes(t *testing.T, typ string) []protocol.Envelope {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []protocol.Envelope
	for _, raw := range f.sent {
		env, err := protocol.Decode(raw)
		require.NoError(t, err)
		if typ == "" || env.Type == typ {
			out = append(out, env)
		}
	}
	return out
}

func (f *fakeConn) last(t *testing.T, typ string) protocol.Envelope {
	t.Helper()
	envs := f.envelopes(t, typ)
	require.NotEmpty(t, envs, "no %s message", typ)
	return envs[len(envs)-1]
}

func decodeAs[T any](t *testing.T, env protocol.Envelope) T {
	t.Helper()
	var out T
	require.NoError(t, protocol.DecodeData(env, &out))
	return out
}

// connect 在当前协程中同步处理连接事件
func connect(r *Room, sessionID, username string) *fakeConn {
	c := &fakeConn{}
	r.handle(event{kind: evConnect, sessionID: sessionID, conn: c, username: username, autoJoin: true})
	return c
}

func connectProbe(r *Room, sessionID string) *fakeConn {
	c := &fakeConn{}
	r.handle(event{kind: evConnect, sessionID: sessionID, conn: c, autoJoin: false})
	return c
}

func deliver(r *Room, sessionID, typ string, payload any) {
	r.handle(event{kind: evMessage, sessionID: sessionID, raw: protocol.MustEncode(typ, payload)})
}

func deliverRaw(r *Room, sessionID, raw string) {
	r.handle(event{kind: evMessage, sessionID: sessionID, raw: []byte(raw)})
}
