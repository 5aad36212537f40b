package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrUsernameTooShort = errors.New("username must be at least 3 characters long")
	ErrUsernameFormat   = errors.New("username must start with a letter and contain only letters, numbers, and dots")
	ErrUsernameTaken    = errors.New("username is already taken")
	ErrRoomFull         = errors.New("room is full")
	ErrMalformedPayload = errors.New("malformed payload")
	ErrUnknownMessage   = errors.New("unknown message type")
	ErrNotActive        = errors.New("session is not active")
	ErrAlreadyActive    = errors.New("session already joined")
)

// 对外的拒绝原因码
const (
	ReasonTooShort      = "too_short"
	ReasonInvalidFormat = "invalid_format"
	ReasonTaken         = "taken"
	ReasonRoomFull      = "room_full"
	ReasonMalformed     = "malformed"
	ReasonUnknown       = "unknown_message"
	ReasonNotActive     = "not_active"
	ReasonAlreadyActive = "already_active"
	ReasonInternal      = "internal"
)

// ReasonOf 将错误映射为稳定的原因码
func ReasonOf(err error) string {
	switch {
	case errors.Is(err, ErrUsernameTooShort):
		return ReasonTooShort
	case errors.Is(err, ErrUsernameFormat):
		return ReasonInvalidFormat
	case errors.Is(err, ErrUsernameTaken):
		return ReasonTaken
	case errors.Is(err, ErrRoomFull):
		return ReasonRoomFull
	case errors.Is(err, ErrMalformedPayload):
		return ReasonMalformed
	case errors.Is(err, ErrUnknownMessage):
		return ReasonUnknown
	case errors.Is(err, ErrNotActive):
		return ReasonNotActive
	case errors.Is(err, ErrAlreadyActive):
		return ReasonAlreadyActive
	default:
		return ReasonInternal
	}
}

// ErrorForReason 原因码到哨兵错误的反向映射（客户端使用）
func ErrorForReason(reason string) error {
	switch reason {
	case ReasonTooShort:
		return ErrUsernameTooShort
	case ReasonInvalidFormat:
		return ErrUsernameFormat
	case ReasonTaken:
		return ErrUsernameTaken
	case ReasonRoomFull:
		return ErrRoomFull
	case ReasonMalformed:
		return ErrMalformedPayload
	case ReasonUnknown:
		return ErrUnknownMessage
	case ReasonNotActive:
		return ErrNotActive
	case ReasonAlreadyActive:
		return ErrAlreadyActive
	default:
		return fmt.Errorf("server error: %s", reason)
	}
}
