package protocol

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/go-playground/validator/v10"
)

// 用户名：字母开头，其余仅允许字母、数字与点
var usernamePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9.]*$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return usernamePattern.MatchString(fl.Field().String())
	})
	return v
}

type usernameInput struct {
	Username string `validate:"min=3,username"`
}

// updatePositionInput 入站位置更新；指针用于区分“缺失”与“零值”
type updatePositionInput struct {
	X        *float64 `json:"x" validate:"required"`
	Y        *float64 `json:"y" validate:"required"`
	Z        *float64 `json:"z" validate:"required"`
	Rotation *float64 `json:"rotation" validate:"required"`
	Speed    *float64 `json:"speed" validate:"required"`
	Steering *float64 `json:"steering" validate:"required"`
	Seq      int64    `json:"seq,omitempty" validate:"gte=0"`
}

// ValidateUsername 校验用户名格式（不检查是否被占用）
func ValidateUsername(name string) error {
	err := validate.Struct(usernameInput{Username: name})
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		if verrs[0].Tag() == "min" {
			return ErrUsernameTooShort
		}
		return ErrUsernameFormat
	}
	return fmt.Errorf("%w: %v", ErrUsernameFormat, err)
}

// DecodeTransform 解析并校验 updatePosition 负载，返回姿态与可选序列号
func DecodeTransform(env Envelope) (Transform, int64, error) {
	var in updatePositionInput
	if err := DecodeData(env, &in); err != nil {
		return Transform{}, 0, err
	}
	if err := validate.Struct(in); err != nil {
		return Transform{}, 0, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	t := Transform{
		X:        *in.X,
		Y:        *in.Y,
		Z:        *in.Z,
		Rotation: *in.Rotation,
		Speed:    *in.Speed,
		Steering: *in.Steering,
	}
	return t, in.Seq, nil
}
