package server

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"minirace/protocol"
)

// ErrRoomClosed 房间事件循环已退出
var ErrRoomClosed = errors.New("room closed")

const (
	defaultMaxPlayers    = 10
	defaultStatsInterval = 30 * time.Second
)

// Conn 会话的发送端（WebSocket 写协程或测试替身）
type Conn interface {
	// Enqueue 非阻塞投递，队列满时返回 false
	Enqueue(b []byte) bool
	Close()
}

// Room 房间：权威状态维护在内存，由单个事件循环串行处理所有事件
type Room struct {
	ID string

	store    *Store
	sessions map[string]*Session
	events   chan event
	done     chan struct{}

	maxPlayers    int
	statsInterval time.Duration
	metrics       *RoomMetrics

	started atomic.Bool
}

type RoomOption func(*Room)

func WithMaxPlayers(n int) RoomOption {
	return func(r *Room) {
		if n > 0 {
			r.maxPlayers = n
		}
	}
}

func WithStatsInterval(d time.Duration) RoomOption {
	return func(r *Room) {
		if d > 0 {
			r.statsInterval = d
		}
	}
}

// NewRoom 创建房间，初始化数据结构
func NewRoom(id string, opts ...RoomOption) *Room {
	r := &Room{
		ID:            id,
		store:         NewStore(),
		sessions:      make(map[string]*Session),
		events:        make(chan event, 256), // 足够缓冲，避免网络读阻塞
		done:          make(chan struct{}),
		maxPlayers:    defaultMaxPlayers,
		statsInterval: defaultStatsInterval,
		metrics:       &RoomMetrics{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Room) Metrics() *RoomMetrics { return r.metrics }

// Connect 分配新的会话 ID 并投递连接事件；autoJoin 为 false 时会话停留在 CONNECTING
func (r *Room) Connect(conn Conn, username string, autoJoin bool) (string, bool) {
	id := uuid.NewString()
	ok := r.submit(event{kind: evConnect, sessionID: id, conn: conn, username: username, autoJoin: autoJoin})
	return id, ok
}

// Deliver 投递一条原始文本帧
func (r *Room) Deliver(sessionID string, raw []byte) bool {
	return r.submit(event{kind: evMessage, sessionID: sessionID, raw: raw})
}

// Disconnect 请求在事件循环中移除会话；同一会话重复调用无副作用
func (r *Room) Disconnect(sessionID string) {
	r.submit(event{kind: evDisconnect, sessionID: sessionID})
}

// Call 在事件循环中执行 fn 并等待完成。
// 返回错误时 fn 可能仍会稍后执行，结果应经带缓冲的 channel 交回。
func (r *Room) Call(ctx context.Context, fn func()) error {
	ev := event{kind: evCall, fn: fn, done: make(chan struct{})}
	select {
	case <-r.done:
		return ErrRoomClosed
	default:
	}
	select {
	case r.events <- ev:
	case <-r.done:
		return ErrRoomClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-ev.done:
		return nil
	case <-r.done:
		return ErrRoomClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Roster 当前在线名单快照
func (r *Room) Roster(ctx context.Context) (protocol.OnlinePlayers, error) {
	ch := make(chan protocol.OnlinePlayers, 1)
	if err := r.Call(ctx, func() {
		ch <- protocol.OnlinePlayers{Players: r.store.Usernames(), Count: r.store.Len()}
	}); err != nil {
		return protocol.OnlinePlayers{}, err
	}
	return <-ch, nil
}

func (r *Room) MaxPlayers(ctx context.Context) (int, error) {
	ch := make(chan int, 1)
	if err := r.Call(ctx, func() { ch <- r.maxPlayers }); err != nil {
		return 0, err
	}
	return <-ch, nil
}

// SetMaxPlayers 热更新房间容量；已在房间内的玩家不受影响
func (r *Room) SetMaxPlayers(ctx context.Context, n int) error {
	if n <= 0 {
		return fmt.Errorf("maxPlayers must be positive, got %d", n)
	}
	return r.Call(ctx, func() { r.maxPlayers = n })
}

func (r *Room) submit(ev event) bool {
	select {
	case <-r.done:
		return false
	default:
	}
	select {
	case r.events <- ev:
		return true
	case <-r.done:
		return false
	}
}

// handle 处理单个事件直至完成（仅在事件循环中调用）
func (r *Room) handle(ev event) {
	switch ev.kind {
	case evConnect:
		r.onConnect(ev)
	case evMessage:
		r.onMessage(ev.sessionID, ev.raw)
	case evDisconnect:
		r.closeSession(ev.sessionID, "disconnect")
	case evCall:
		ev.fn()
		close(ev.done)
	}
}

func (r *Room) onConnect(ev event) {
	s := &Session{ID: ev.sessionID, State: StateConnecting, Conn: ev.conn}
	r.sessions[s.ID] = s
	Log.Debugf("session connected: room=%s session=%s", r.ID, s.ID)
	if ev.autoJoin {
		r.join(s, ev.username)
	}
}

func (r *Room) onMessage(sessionID string, raw []byte) {
	s, ok := r.sessions[sessionID]
	if !ok {
		return
	}
	env, err := protocol.Decode(raw)
	if err != nil {
		r.dropMalformed(s, err)
		return
	}

	switch env.Type {
	case protocol.TypeJoin:
		var req protocol.JoinRequest
		if len(env.Data) > 0 {
			if err := protocol.DecodeData(env, &req); err != nil {
				r.dropMalformed(s, err)
				return
			}
		}
		if s.State == StateActive {
			r.sendError(s, protocol.ErrAlreadyActive)
			return
		}
		r.join(s, req.Username)
	case protocol.TypeCheckUsername:
		var req protocol.CheckUsername
		if err := protocol.DecodeData(env, &req); err != nil {
			r.dropMalformed(s, err)
			return
		}
		r.send(s, protocol.TypeUsernameAvailability, r.availability(req.Username))
	case protocol.TypeUpdatePosition, protocol.TypeMove:
		r.onTransformUpdate(s, env)
	case protocol.TypeLeave:
		r.closeSession(s.ID, "leave")
	default:
		r.sendError(s, fmt.Errorf("%w: %q", protocol.ErrUnknownMessage, env.Type))
	}
}

// join 处理入房请求；用户名缺失时由会话 ID 生成
func (r *Room) join(s *Session, desired string) {
	name := desired
	if name == "" {
		name = synthesizeUsername(s.ID)
	}
	if err := r.admit(s, name); err != nil {
		r.metrics.IncNamesRejected()
		Log.Infof("username rejected: room=%s session=%s username=%q reason=%s", r.ID, s.ID, name, protocol.ReasonOf(err))
		r.send(s, protocol.TypeUsernameRejected, protocol.UsernameRejected{
			Username: name,
			Reason:   protocol.ReasonOf(err),
			Message:  err.Error(),
		})
	}
}

// admit 校验 + 占位 + 激活在同一次处理中完成
func (r *Room) admit(s *Session, name string) error {
	if err := protocol.ValidateUsername(name); err != nil {
		return err
	}
	if r.store.Len() >= r.maxPlayers {
		return protocol.ErrRoomFull
	}
	if err := r.store.Reserve(s.ID, name); err != nil {
		return err
	}
	s.State = StateActive
	s.Username = name
	r.metrics.IncJoins()

	count := r.store.Len()
	r.send(s, protocol.TypeJoined, protocol.Joined{SessionID: s.ID, Username: name})
	r.send(s, protocol.TypeOnlinePlayers, protocol.OnlinePlayers{Players: r.store.Usernames(), Count: count})
	r.broadcastExcept(s.ID, protocol.MustEncode(protocol.TypePlayerJoin, protocol.PlayerJoin{Username: name, OnlineCount: count}))

	// 迟到玩家补发其他人最近一次的姿态
	r.store.ForEach(func(id string, rec PlayerRecord) {
		if id == s.ID {
			return
		}
		r.send(s, protocol.TypePlayerUpdate, protocol.PlayerUpdate{Username: rec.Username, Transform: rec.Transform, Seq: rec.LastSeq})
	})

	Log.Infof("player joined: room=%s session=%s username=%s online=%d", r.ID, s.ID, name, count)
	return nil
}

func (r *Room) availability(name string) protocol.UsernameAvailability {
	if err := protocol.ValidateUsername(name); err != nil {
		return protocol.UsernameAvailability{Available: false, Reason: protocol.ReasonOf(err)}
	}
	if r.store.Taken(name) {
		return protocol.UsernameAvailability{Available: false, Reason: protocol.ReasonTaken}
	}
	return protocol.UsernameAvailability{Available: true}
}

// closeSession ACTIVE/CONNECTING -> CLOSED；记录与会话同时移除
func (r *Room) closeSession(sessionID, cause string) {
	s, ok := r.sessions[sessionID]
	if !ok {
		return
	}
	delete(r.sessions, sessionID)
	wasActive := s.State == StateActive
	s.State = StateClosed

	if wasActive {
		if rec, ok := r.store.Remove(sessionID); ok {
			count := r.store.Len()
			r.metrics.IncLeaves()
			r.broadcastExcept(sessionID, protocol.MustEncode(protocol.TypePlayerLeave, protocol.PlayerLeave{Username: rec.Username, OnlineCount: count}))
			Log.Infof("player left: room=%s session=%s username=%s cause=%s online=%d", r.ID, sessionID, rec.Username, cause, count)
		}
	}
	if s.Conn != nil {
		s.Conn.Close()
	}
}

// closeAll 事件循环退出时关闭所有会话
func (r *Room) closeAll() {
	for id := range r.sessions {
		r.closeSession(id, "shutdown")
	}
}

func (r *Room) send(s *Session, typ string, payload any) {
	b, err := protocol.Encode(typ, payload)
	if err != nil {
		Log.Errorf("encode %s: %v", typ, err)
		return
	}
	if s.Conn != nil && !s.Conn.Enqueue(b) {
		r.metrics.IncSendDropped()
	}
}

func (r *Room) sendError(s *Session, err error) {
	r.send(s, protocol.TypeError, protocol.ErrorMessage{Reason: protocol.ReasonOf(err), Message: err.Error()})
}

func (r *Room) dropMalformed(s *Session, err error) {
	r.metrics.IncMalformedDropped()
	Log.Debugf("malformed message dropped: room=%s session=%s err=%v", r.ID, s.ID, err)
	r.sendError(s, err)
}

// broadcastExcept 发送给除 except 以外的所有 ACTIVE 会话
func (r *Room) broadcastExcept(except string, b []byte) {
	r.store.ForEach(func(id string, _ PlayerRecord) {
		if id == except {
			return
		}
		s, ok := r.sessions[id]
		if !ok || s.State != StateActive || s.Conn == nil {
			return
		}
		if !s.Conn.Enqueue(b) {
			r.metrics.IncSendDropped()
		}
	})
}

func synthesizeUsername(sessionID string) string {
	id := strings.ReplaceAll(sessionID, "-", "")
	if len(id) > 8 {
		id = id[:8]
	}
	return "Player" + id
}
