package server

import (
	"sync/atomic"
)

// RoomMetrics 记录房间运行期的关键指标（用于监控与调试）
type RoomMetrics struct {
	Joins            int64 // 成功入房数
	Leaves           int64 // 离开数（主动或断线）
	NamesRejected    int64 // 用户名被拒绝次数
	UpdatesRelayed   int64 // 被转发的位置更新数
	MalformedDropped int64 // 非法负载被丢弃数
	OldSeqIgnored    int64 // 因旧序列被忽略的更新数
	SendDropped      int64 // 因发送队列满被丢弃的消息数
	EventCount       int64 // 处理的事件数
	TotalEventNs     int64 // 事件处理累计耗时（纳秒）
}

func (m *RoomMetrics) IncJoins()            { atomic.AddInt64(&m.Joins, 1) }
func (m *RoomMetrics) IncLeaves()           { atomic.AddInt64(&m.Leaves, 1) }
func (m *RoomMetrics) IncNamesRejected()    { atomic.AddInt64(&m.NamesRejected, 1) }
func (m *RoomMetrics) IncUpdatesRelayed()   { atomic.AddInt64(&m.UpdatesRelayed, 1) }
func (m *RoomMetrics) IncMalformedDropped() { atomic.AddInt64(&m.MalformedDropped, 1) }
func (m *RoomMetrics) IncOldSeqIgnored()    { atomic.AddInt64(&m.OldSeqIgnored, 1) }
func (m *RoomMetrics) IncSendDropped()      { atomic.AddInt64(&m.SendDropped, 1) }
func (m *RoomMetrics) AddEvent(ns int64) {
	atomic.AddInt64(&m.EventCount, 1)
	atomic.AddInt64(&m.TotalEventNs, ns)
}

// Snapshot 返回只读副本，便于 HTTP 输出
func (m *RoomMetrics) Snapshot() map[string]any {
	count := atomic.LoadInt64(&m.EventCount)
	total := atomic.LoadInt64(&m.TotalEventNs)
	var avgUs float64
	if count > 0 {
		avgUs = float64(total) / float64(count) / 1e3
	}
	return map[string]any{
		"joins":             atomic.LoadInt64(&m.Joins),
		"leaves":            atomic.LoadInt64(&m.Leaves),
		"names_rejected":    atomic.LoadInt64(&m.NamesRejected),
		"updates_relayed":   atomic.LoadInt64(&m.UpdatesRelayed),
		"malformed_dropped": atomic.LoadInt64(&m.MalformedDropped),
		"old_seq_ignored":   atomic.LoadInt64(&m.OldSeqIgnored),
		"send_dropped":      atomic.LoadInt64(&m.SendDropped),
		"event_count":       count,
		"avg_event_us":      avgUs,
	}
}
