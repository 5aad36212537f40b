package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateUsername(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{name: "valid", input: "alice", wantErr: nil},
		{name: "dots and digits", input: "bob.2024", wantErr: nil},
		{name: "exactly three", input: "abc", wantErr: nil},
		{name: "empty", input: "", wantErr: ErrUsernameTooShort},
		{name: "too short", input: "ab", wantErr: ErrUsernameTooShort},
		{name: "starts with digit", input: "1bob", wantErr: ErrUsernameFormat},
		{name: "starts with dot", input: ".bob", wantErr: ErrUsernameFormat},
		{name: "contains space", input: "bo b", wantErr: ErrUsernameFormat},
		{name: "contains dash", input: "bo-b", wantErr: ErrUsernameFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUsername(tt.input)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestDecodeTransform(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    Transform
		wantSeq int64
		wantErr bool
	}{
		{
			name: "all fields",
			data: `{"x":1,"y":0,"z":2,"rotation":0.5,"speed":0.2,"steering":0}`,
			want: Transform{X: 1, Z: 2, Rotation: 0.5, Speed: 0.2},
		},
		{
			name:    "with seq",
			data:    `{"x":1,"y":2,"z":3,"rotation":0,"speed":0,"steering":-0.3,"seq":7}`,
			want:    Transform{X: 1, Y: 2, Z: 3, Steering: -0.3},
			wantSeq: 7,
		},
		{name: "missing steering", data: `{"x":1,"y":0,"z":2,"rotation":0.5,"speed":0.2}`, wantErr: true},
		{name: "wrong type", data: `{"x":"1","y":0,"z":2,"rotation":0.5,"speed":0.2,"steering":0}`, wantErr: true},
		{name: "negative seq", data: `{"x":1,"y":0,"z":2,"rotation":0,"speed":0,"steering":0,"seq":-1}`, wantErr: true},
		{name: "not an object", data: `[1,2,3]`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := Envelope{Type: TypeUpdatePosition, Data: json.RawMessage(tt.data)}
			got, seq, err := DecodeTransform(env)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformedPayload)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantSeq, seq)
		})
	}
}

func TestDecode_Envelope(t *testing.T) {
	_, err := Decode([]byte("not json"))
	assert.ErrorIs(t, err, ErrMalformedPayload)

	_, err = Decode([]byte(`{"data":{}}`))
	assert.ErrorIs(t, err, ErrMalformedPayload)

	raw, err := Encode(TypePlayerJoin, PlayerJoin{Username: "alice", OnlineCount: 2})
	require.NoError(t, err)
	env, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, TypePlayerJoin, env.Type)

	var pj PlayerJoin
	require.NoError(t, DecodeData(env, &pj))
	assert.Equal(t, PlayerJoin{Username: "alice", OnlineCount: 2}, pj)
}

func TestPlayerUpdate_FlatFields(t *testing.T) {
	raw, err := json.Marshal(PlayerUpdate{Username: "alice", Transform: Transform{X: 1, Z: 2}})
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	assert.Equal(t, "alice", m["username"])
	assert.Equal(t, float64(1), m["x"])
	assert.Equal(t, float64(2), m["z"])
	assert.NotContains(t, m, "seq")
}

func TestReasonOf(t *testing.T) {
	assert.Equal(t, ReasonTaken, ReasonOf(ErrUsernameTaken))
	assert.Equal(t, ReasonMalformed, ReasonOf(ErrMalformedPayload))
	assert.Equal(t, ReasonRoomFull, ReasonOf(ErrRoomFull))
	assert.Equal(t, ReasonInternal, ReasonOf(assert.AnError))
}
