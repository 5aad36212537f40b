package client

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"minirace/protocol"
)

var (
	ErrClosed        = errors.New("client closed")
	ErrSendQueueFull = errors.New("send queue full")
)

const (
	defaultWriteWait  = 10 * time.Second
	defaultQueueSize  = 64
	defaultServerPath = "/ws"
)

// Options 连接参数
type Options struct {
	URL      string // 如 ws://localhost:3001/ws
	Username string // 为空时由服务端生成
	Room     string

	Dialer    *websocket.Dialer
	Logger    *zap.SugaredLogger
	WriteWait time.Duration

	// OnRoster 名单变化时回调（UI 层），在读协程中执行，不得阻塞
	OnRoster func(players []string, count int)
}

type admission struct {
	joined protocol.Joined
	err    error
}

// Client 一个已入房的连接：读协程把远端更新写入 Engine，写协程发送本地姿态
type Client struct {
	ws     *websocket.Conn
	engine *Engine
	roster *Roster
	log    *zap.SugaredLogger

	username  string
	sessionID string
	writeWait time.Duration

	send      chan []byte
	admitted  chan admission
	closed    chan struct{}
	closeOnce sync.Once

	errMu sync.Mutex
	err   error

	seq atomic.Int64
}

// Dial 连接服务端并等待入房结果；用户名被拒绝时关闭连接并返回对应错误
func Dial(ctx context.Context, opts Options, engine *Engine) (*Client, error) {
	u, err := serverURL(opts.URL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	if opts.Username != "" {
		q.Set("username", opts.Username)
	}
	if opts.Room != "" {
		q.Set("room", opts.Room)
	}
	u.RawQuery = q.Encode()

	dialer := opts.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	ws, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	log := opts.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	writeWait := opts.WriteWait
	if writeWait <= 0 {
		writeWait = defaultWriteWait
	}
	if engine == nil {
		engine = NewEngine()
	}

	c := &Client{
		ws:        ws,
		engine:    engine,
		roster:    NewRoster(opts.OnRoster),
		log:       log,
		writeWait: writeWait,
		send:      make(chan []byte, defaultQueueSize),
		admitted:  make(chan admission, 1),
		closed:    make(chan struct{}),
	}
	go c.writePump()
	go c.readPump()

	select {
	case a := <-c.admitted:
		if a.err != nil {
			c.Close()
			return nil, a.err
		}
		log.Infof("joined room: session=%s username=%s", a.joined.SessionID, a.joined.Username)
		return c, nil
	case <-c.closed:
		return nil, fmt.Errorf("failed to connect: %w", c.Err())
	case <-ctx.Done():
		c.Close()
		return nil, fmt.Errorf("failed to connect: %w", ctx.Err())
	}
}

func serverURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid server url %q: %w", raw, err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return nil, fmt.Errorf("invalid server url %q: unsupported scheme", raw)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = defaultServerPath
	}
	return u, nil
}

func (c *Client) Username() string  { return c.username }
func (c *Client) SessionID() string { return c.sessionID }
func (c *Client) Engine() *Engine   { return c.engine }
func (c *Client) Roster() *Roster   { return c.roster }

// Done 连接关闭后关闭
func (c *Client) Done() <-chan struct{} { return c.closed }

// Err 连接关闭的原因
func (c *Client) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	if c.err == nil {
		select {
		case <-c.closed:
			return ErrClosed
		default:
		}
	}
	return c.err
}

// SendTransform 推送本地姿态，附带单调递增的序列号；不阻塞
func (c *Client) SendTransform(t protocol.Transform) error {
	b, err := protocol.Encode(protocol.TypeUpdatePosition, protocol.UpdatePosition{Transform: t, Seq: c.seq.Add(1)})
	if err != nil {
		return err
	}
	return c.enqueue(b)
}

// Leave 主动离开房间并关闭连接
func (c *Client) Leave() error {
	err := c.enqueue(protocol.MustEncode(protocol.TypeLeave, nil))
	c.Close()
	return err
}

// Close 关闭连接；可重复调用
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.closed) })
}

func (c *Client) enqueue(b []byte) error {
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}
	select {
	case c.send <- b:
		return nil
	default:
		return ErrSendQueueFull
	}
}

func (c *Client) fail(err error) {
	c.errMu.Lock()
	if c.err == nil {
		c.err = err
	}
	c.errMu.Unlock()
	c.Close()
}

func (c *Client) writePump() {
	defer c.ws.Close()
	for {
		select {
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.fail(err)
				return
			}
		case <-c.closed:
			for {
				select {
				case msg := <-c.send:
					_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeWait))
					if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
						return
					}
				default:
					_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeWait))
					_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
					return
				}
			}
		}
	}
}

// readPump 退出后清空名单与远端副本，UI 收到 (nil, 0)
func (c *Client) readPump() {
	defer func() {
		c.ws.Close()
		c.roster.Reset()
		c.engine.Reset()
	}()
	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			c.fail(err)
			return
		}
		env, err := protocol.Decode(raw)
		if err != nil {
			c.log.Warnf("invalid message from server: %v", err)
			continue
		}
		c.dispatch(env)
	}
}

func (c *Client) dispatch(env protocol.Envelope) {
	switch env.Type {
	case protocol.TypeJoined:
		var m protocol.Joined
		if err := protocol.DecodeData(env, &m); err != nil {
			c.log.Warnf("%v", err)
			return
		}
		c.username = m.Username
		c.sessionID = m.SessionID
		c.signal(admission{joined: m})
	case protocol.TypeUsernameRejected:
		var m protocol.UsernameRejected
		if err := protocol.DecodeData(env, &m); err != nil {
			c.log.Warnf("%v", err)
			return
		}
		c.signal(admission{err: fmt.Errorf("username %q rejected: %w", m.Username, protocol.ErrorForReason(m.Reason))})
	case protocol.TypeOnlinePlayers:
		var m protocol.OnlinePlayers
		if err := protocol.DecodeData(env, &m); err == nil {
			c.roster.ApplySnapshot(m)
		}
	case protocol.TypePlayerJoin:
		var m protocol.PlayerJoin
		if err := protocol.DecodeData(env, &m); err == nil {
			c.roster.ApplyJoin(m)
			// 重新入房的玩家序列号从头开始
			c.engine.Remove(m.Username)
		}
	case protocol.TypePlayerLeave:
		var m protocol.PlayerLeave
		if err := protocol.DecodeData(env, &m); err == nil {
			c.roster.ApplyLeave(m)
			c.engine.Remove(m.Username)
		}
	case protocol.TypePlayerUpdate:
		var m protocol.PlayerUpdate
		if err := protocol.DecodeData(env, &m); err != nil {
			c.log.Warnf("%v", err)
			return
		}
		// 忽略自己的回显
		if m.Username == c.username {
			return
		}
		c.engine.Ingest(m)
	case protocol.TypeError:
		var m protocol.ErrorMessage
		if err := protocol.DecodeData(env, &m); err == nil {
			c.log.Warnf("server error: reason=%s message=%s", m.Reason, m.Message)
		}
	default:
		c.log.Debugf("ignored message type %q", env.Type)
	}
}

func (c *Client) signal(a admission) {
	select {
	case c.admitted <- a:
	default:
	}
}
