package server

import (
	"context"
	"time"
)

// Start 启动房间事件循环（单线程处理所有事件），重复调用无效
func (r *Room) Start(ctx context.Context) {
	if !r.started.CompareAndSwap(false, true) {
		return
	}
	go r.run(ctx)
}

// Done 事件循环退出后关闭
func (r *Room) Done() <-chan struct{} { return r.done }

func (r *Room) run(ctx context.Context) {
	ticker := time.NewTicker(r.statsInterval)
	defer ticker.Stop()
	defer close(r.done)
	defer r.closeAll()

	for {
		select {
		case <-ctx.Done():
			Log.Infof("room %s loop stopped", r.ID)
			return
		case ev := <-r.events:
			// 核心循环：每个事件处理完成后才处理下一个
			start := time.Now()
			r.handle(ev)
			r.metrics.AddEvent(time.Since(start).Nanoseconds())
		case <-ticker.C:
			Log.Debugf("room stats: room=%s sessions=%d online=%d", r.ID, len(r.sessions), r.store.Len())
		}
	}
}
