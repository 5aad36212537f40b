package server

import "minirace/protocol"

// SessionState 会话状态机：CONNECTING -> ACTIVE -> CLOSED（终态）
type SessionState int

const (
	StateConnecting SessionState = iota
	StateActive
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateActive:
		return "ACTIVE"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// PlayerRecord 服务端权威的玩家状态（用户名 + 最近一次姿态）
type PlayerRecord struct {
	Username  string
	Transform protocol.Transform
	LastSeq   int64 // 最近一次被接受的客户端序列号，0 表示未使用
}

// Session 一个已连接的网络端点
type Session struct {
	ID       string
	State    SessionState
	Username string // ACTIVE 之后不可变

	Conn Conn // 网络连接的发送端（写协程）
}
