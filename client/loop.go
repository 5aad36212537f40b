package client

import (
	"context"
	"errors"
	"time"

	"minirace/protocol"
)

// DefaultSyncInterval 本地姿态推送周期
const DefaultSyncInterval = 100 * time.Millisecond

// RunSync 按固定周期推送 source 给出的本地姿态，静止时也持续推送，
// 避免对端因超时清理掉副本。ctx 取消或连接关闭后返回。
func (c *Client) RunSync(ctx context.Context, interval time.Duration, source func() protocol.Transform) error {
	if interval <= 0 {
		interval = DefaultSyncInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.closed:
			return ErrClosed
		case <-ticker.C:
			err := c.SendTransform(source())
			switch {
			case errors.Is(err, ErrClosed):
				return err
			case errors.Is(err, ErrSendQueueFull):
				c.log.Debugf("sync skipped: %v", err)
			case err != nil:
				return err
			}
		}
	}
}

// RunLoop 以渲染节奏推进调和引擎，并按 sweep 周期清理过期副本。
// onFrame 在每帧推进后收到平滑后的姿态，可为 nil。ctx 取消后返回。
func RunLoop(ctx context.Context, e *Engine, frame, sweep time.Duration, onFrame func(map[string]protocol.Transform)) {
	if frame <= 0 {
		frame = DefaultFrameInterval
	}
	if sweep <= 0 {
		sweep = DefaultSweepInterval
	}
	frameTicker := time.NewTicker(frame)
	defer frameTicker.Stop()
	sweepTicker := time.NewTicker(sweep)
	defer sweepTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-frameTicker.C:
			e.Tick()
			if onFrame != nil {
				onFrame(e.Snapshot())
			}
		case <-sweepTicker.C:
			e.Sweep()
		}
	}
}
