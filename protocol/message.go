package protocol

import (
	"encoding/json"
	"fmt"
)

// 消息类型（客户端与服务端共用）
const (
	TypeJoin                 = "join"
	TypeLeave                = "leave"
	TypeCheckUsername        = "checkUsername"
	TypeUsernameAvailability = "usernameAvailability"
	TypeUpdatePosition       = "updatePosition"
	TypeMove                 = "move" // 旧版客户端使用，等同 updatePosition
	TypeOnlinePlayers        = "onlinePlayers"
	TypePlayerJoin           = "playerJoin"
	TypePlayerLeave          = "playerLeave"
	TypePlayerUpdate         = "playerUpdate"
	TypeJoined               = "joined"
	TypeUsernameRejected     = "usernameRejected"
	TypeError                = "error"
)

// Envelope 所有 WebSocket 文本帧的外层结构
// 示例：{"type":"updatePosition","data":{"x":1,"y":0,"z":2,"rotation":0.5,"speed":0.2,"steering":0}}
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Transform 玩家在某一时刻的空间姿态
type Transform struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Z        float64 `json:"z"`
	Rotation float64 `json:"rotation"` // 弧度
	Speed    float64 `json:"speed"`
	Steering float64 `json:"steering"`
}

// JoinRequest 在 CONNECTING 状态下重试入房
type JoinRequest struct {
	Username string `json:"username"`
}

type CheckUsername struct {
	Username string `json:"username"`
}

type UsernameAvailability struct {
	Available bool   `json:"available"`
	Reason    string `json:"reason,omitempty"`
}

// UpdatePosition 客户端每次推送的位置；Seq 可选，单调递增
type UpdatePosition struct {
	Transform
	Seq int64 `json:"seq,omitempty"`
}

// OnlinePlayers 入房时发给新客户端的名单快照
type OnlinePlayers struct {
	Players []string `json:"players"`
	Count   int      `json:"count"`
}

type PlayerJoin struct {
	Username    string `json:"username"`
	OnlineCount int    `json:"onlineCount"`
}

type PlayerLeave struct {
	Username    string `json:"username"`
	OnlineCount int    `json:"onlineCount"`
}

// PlayerUpdate 转发给其他会话的位置更新（字段与 Transform 平铺）
type PlayerUpdate struct {
	Username string `json:"username"`
	Transform
	Seq int64 `json:"seq,omitempty"`
}

type Joined struct {
	SessionID string `json:"sessionId"`
	Username  string `json:"username"`
}

type UsernameRejected struct {
	Username string `json:"username"`
	Reason   string `json:"reason"`
	Message  string `json:"message"`
}

type ErrorMessage struct {
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

// Encode 将负载包装为 Envelope 并序列化
func Encode(typ string, payload any) ([]byte, error) {
	env := Envelope{Type: typ}
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", typ, err)
		}
		env.Data = b
	}
	return json.Marshal(env)
}

// MustEncode 仅用于负载类型固定、不可能序列化失败的场景
func MustEncode(typ string, payload any) []byte {
	b, err := Encode(typ, payload)
	if err != nil {
		panic(err)
	}
	return b
}

// Decode 解析外层结构；类型为空视为非法
func Decode(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("%w: missing type", ErrMalformedPayload)
	}
	return env, nil
}

// DecodeData 解析 data 字段到指定结构
func DecodeData(env Envelope, out any) error {
	if len(env.Data) == 0 {
		return fmt.Errorf("%w: %s has no data", ErrMalformedPayload, env.Type)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedPayload, env.Type, err)
	}
	return nil
}
