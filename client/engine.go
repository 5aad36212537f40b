package client

import (
	"sort"
	"sync"
	"time"

	"minirace/protocol"
)

const (
	DefaultSmoothing     = 0.1
	DefaultStaleHorizon  = 5 * time.Second
	DefaultSweepInterval = time.Second
	DefaultFrameInterval = 16 * time.Millisecond
)

// RemoteShadow 远端玩家在本地的平滑副本
type RemoteShadow struct {
	Username   string
	Target     protocol.Transform // 最近一次收到的姿态
	Current    protocol.Transform // 仅由 Tick 推进
	LastUpdate time.Time
	LastSeq    int64
}

// Engine 客户端状态调和：网络协程只写 Target，渲染循环推进 Current
type Engine struct {
	mu      sync.Mutex
	shadows map[string]*RemoteShadow

	smoothing float64
	horizon   time.Duration
	now       func() time.Time
}

type EngineOption func(*Engine)

// WithSmoothing 每帧向目标靠近的比例，取值 (0, 1]
func WithSmoothing(f float64) EngineOption {
	return func(e *Engine) {
		if f > 0 && f <= 1 {
			e.smoothing = f
		}
	}
}

func WithStaleHorizon(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.horizon = d
		}
	}
}

// WithClock 替换时间源（测试用）
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		shadows:   make(map[string]*RemoteShadow),
		smoothing: DefaultSmoothing,
		horizon:   DefaultStaleHorizon,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Ingest 写入一条远端更新。首次出现的用户名直接以该姿态初始化，
// 之后只更新 Target，不直接覆盖 Current。带序列号的旧更新被丢弃并返回 false。
func (e *Engine) Ingest(u protocol.PlayerUpdate) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	sh, ok := e.shadows[u.Username]
	if !ok {
		e.shadows[u.Username] = &RemoteShadow{
			Username:   u.Username,
			Target:     u.Transform,
			Current:    u.Transform,
			LastUpdate: now,
			LastSeq:    u.Seq,
		}
		return true
	}
	if u.Seq > 0 && u.Seq <= sh.LastSeq {
		return false
	}
	sh.Target = u.Transform
	sh.LastUpdate = now
	if u.Seq > 0 {
		sh.LastSeq = u.Seq
	}
	return true
}

// Remove 收到 playerLeave 时移除
func (e *Engine) Remove(username string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.shadows[username]; !ok {
		return false
	}
	delete(e.shadows, username)
	return true
}

// Tick 每个渲染帧调用一次：位置线性插值，朝向走最短弧
func (e *Engine) Tick() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, sh := range e.shadows {
		step(&sh.Current, sh.Target, e.smoothing)
	}
}

func step(cur *protocol.Transform, target protocol.Transform, f float64) {
	cur.X += (target.X - cur.X) * f
	cur.Y += (target.Y - cur.Y) * f
	cur.Z += (target.Z - cur.Z) * f
	cur.Rotation = NormalizeAngle(cur.Rotation + ShortestAngle(cur.Rotation, target.Rotation)*f)
	// 速度与转向只驱动车轮等外观，直接取目标值
	cur.Speed = target.Speed
	cur.Steering = target.Steering
}

// Sweep 移除超过时限未更新的副本，返回被移除的用户名
func (e *Engine) Sweep() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	var evicted []string
	for name, sh := range e.shadows {
		if now.Sub(sh.LastUpdate) >= e.horizon {
			delete(e.shadows, name)
			evicted = append(evicted, name)
		}
	}
	sort.Strings(evicted)
	return evicted
}

// Snapshot 渲染层每帧读取的平滑姿态
func (e *Engine) Snapshot() map[string]protocol.Transform {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]protocol.Transform, len(e.shadows))
	for name, sh := range e.shadows {
		out[name] = sh.Current
	}
	return out
}

func (e *Engine) Shadow(username string) (RemoteShadow, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	sh, ok := e.shadows[username]
	if !ok {
		return RemoteShadow{}, false
	}
	return *sh, true
}

func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.shadows)
}

// Reset 断开连接后清空
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.shadows = make(map[string]*RemoteShadow)
}
