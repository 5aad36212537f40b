package server

import "minirace/protocol"

// onTransformUpdate 校验并保存位置更新，再转发给除发送者之外的所有会话
func (r *Room) onTransformUpdate(s *Session, env protocol.Envelope) {
	if s.State != StateActive {
		r.sendError(s, protocol.ErrNotActive)
		return
	}
	t, seq, err := protocol.DecodeTransform(env)
	if err != nil {
		r.dropMalformed(s, err)
		return
	}
	rec, ok := r.store.Get(s.ID)
	if !ok {
		return
	}
	// 带序列号时丢弃乱序的旧更新；不带序列号则后写者胜
	if seq > 0 && seq <= rec.LastSeq {
		r.metrics.IncOldSeqIgnored()
		return
	}
	rec.Transform = t
	if seq > 0 {
		rec.LastSeq = seq
	}
	r.store.Upsert(s.ID, rec)

	msg := protocol.MustEncode(protocol.TypePlayerUpdate, protocol.PlayerUpdate{
		Username:  rec.Username,
		Transform: t,
		Seq:       seq,
	})
	r.broadcastExcept(s.ID, msg)
	r.metrics.IncUpdatesRelayed()
}
