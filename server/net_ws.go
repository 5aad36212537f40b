package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/samber/lo"
)

const maxMessageSize = 4096

// ClientConn 负责发送（写）数据到客户端的轻量包装
type ClientConn struct {
	ws   *websocket.Conn
	send chan []byte

	writeWait time.Duration
	pongWait  time.Duration

	closeOnce sync.Once
	closed    chan struct{}
}

func NewClientConn(ws *websocket.Conn, cfg Config) *ClientConn {
	return &ClientConn{
		ws:        ws,
		send:      make(chan []byte, cfg.SendQueueSize),
		writeWait: cfg.WriteWait,
		pongWait:  cfg.PongWait,
		closed:    make(chan struct{}),
	}
}

// Enqueue 将要发送的消息压入队列（非阻塞，满则丢弃）
func (c *ClientConn) Enqueue(b []byte) bool {
	select {
	case <-c.closed:
		return false
	default:
	}
	select {
	case c.send <- b:
		return true
	default:
		// 为了实时性，丢弃新消息（防止阻塞房间循环）
		return false
	}
}

// Close 通知写协程发送关闭帧并断开；可重复调用
func (c *ClientConn) Close() {
	c.closeOnce.Do(func() { close(c.closed) })
}

// writePump 独立协程，负责从 send 队列写出到 WS，并定期发送 ping
func (c *ClientConn) writePump() {
	ticker := time.NewTicker(c.pongWait * 9 / 10)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.closed:
			// 尽量把队列中剩余的消息写出，再发送关闭帧
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

// readPump 读取客户端消息，原样投递到房间事件循环
func (c *ClientConn) readPump(room *Room, sessionID string) {
	// 读泵退出时，通知房间在事件循环中移除该会话
	defer room.Disconnect(sessionID)
	defer c.Close()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.pongWait))
	})

	for {
		_, payload, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				Log.Warnf("read error: room=%s session=%s err=%v", room.ID, sessionID, err)
			}
			return
		}
		if !room.Deliver(sessionID, payload) {
			return
		}
	}
}

func newUpgrader(origins []string) *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return originAllowed(origins, r.Header.Get("Origin"))
		},
	}
}

// originAllowed 无 Origin 头（非浏览器客户端）时放行
func originAllowed(allowed []string, origin string) bool {
	if origin == "" {
		return true
	}
	return lo.Contains(allowed, "*") || lo.Contains(allowed, origin)
}

// HandleWS WebSocket 接入：/ws?username=alice[&room=game_room][&join=false]
// join=false 时会话只用于 checkUsername 预检，不入房
func HandleWS(rm *RoomManager, cfg Config) http.HandlerFunc {
	upgrader := newUpgrader(cfg.Origins())
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		room, ok := rm.Lookup(q.Get("room"))
		if !ok {
			http.Error(w, "unknown room", http.StatusNotFound)
			return
		}

		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			Log.Warnf("upgrade error: %v", err)
			return
		}

		client := NewClientConn(ws, cfg)
		sessionID, ok := room.Connect(client, q.Get("username"), q.Get("join") != "false")
		if !ok {
			_ = ws.Close()
			return
		}

		go client.writePump()
		go client.readPump(room, sessionID)
	}
}
