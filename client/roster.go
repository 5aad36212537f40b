package client

import (
	"sync"

	"github.com/samber/lo"

	"minirace/protocol"
)

// Roster 本地维护的在线名单，变化时回调给 UI 层
type Roster struct {
	mu      sync.Mutex
	players []string
	count   int

	onChange func(players []string, count int)
}

func NewRoster(onChange func(players []string, count int)) *Roster {
	return &Roster{onChange: onChange}
}

func (r *Roster) ApplySnapshot(m protocol.OnlinePlayers) {
	r.update(func() {
		r.players = lo.Uniq(m.Players)
		r.count = m.Count
	})
}

func (r *Roster) ApplyJoin(m protocol.PlayerJoin) {
	r.update(func() {
		if !lo.Contains(r.players, m.Username) {
			r.players = append(r.players, m.Username)
		}
		r.count = m.OnlineCount
	})
}

func (r *Roster) ApplyLeave(m protocol.PlayerLeave) {
	r.update(func() {
		r.players = lo.Without(r.players, m.Username)
		r.count = m.OnlineCount
	})
}

func (r *Roster) Reset() {
	r.update(func() {
		r.players = nil
		r.count = 0
	})
}

// Snapshot 返回名单副本与服务端给出的在线人数
func (r *Roster) Snapshot() ([]string, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.players...), r.count
}

func (r *Roster) update(fn func()) {
	r.mu.Lock()
	fn()
	players := append([]string(nil), r.players...)
	count := r.count
	r.mu.Unlock()

	if r.onChange != nil {
		r.onChange(players, count)
	}
}
