package client

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"minirace/protocol"
)

// DefaultCheckTimeout 预检超时，超时视为用户名不可用
const DefaultCheckTimeout = 30 * time.Second

// CheckUsername 用一条不入房的临时连接查询用户名是否可用。
// 不可用时返回 false 及对应的哨兵错误（格式错误、已占用、超时等）。
func CheckUsername(ctx context.Context, rawURL, username string) (bool, error) {
	if err := protocol.ValidateUsername(username); err != nil {
		return false, err
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultCheckTimeout)
		defer cancel()
	}

	u, err := serverURL(rawURL)
	if err != nil {
		return false, err
	}
	q := u.Query()
	q.Set("join", "false")
	u.RawQuery = q.Encode()

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return false, fmt.Errorf("failed to connect: %w", err)
	}
	defer ws.Close()
	// 超时后关闭连接，解除 ReadMessage 阻塞
	stop := context.AfterFunc(ctx, func() { _ = ws.Close() })
	defer stop()

	req := protocol.MustEncode(protocol.TypeCheckUsername, protocol.CheckUsername{Username: username})
	if err := ws.WriteMessage(websocket.TextMessage, req); err != nil {
		return false, fmt.Errorf("send checkUsername: %w", err)
	}

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return false, fmt.Errorf("username check timed out: %w", ctx.Err())
			}
			return false, fmt.Errorf("username check: %w", err)
		}
		env, err := protocol.Decode(raw)
		if err != nil || env.Type != protocol.TypeUsernameAvailability {
			continue
		}
		var resp protocol.UsernameAvailability
		if err := protocol.DecodeData(env, &resp); err != nil {
			return false, err
		}
		if !resp.Available {
			return false, protocol.ErrorForReason(resp.Reason)
		}
		return true, nil
	}
}
