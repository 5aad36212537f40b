package server

import "context"

// RoomManager 管理进程内唯一房间的生命周期
type RoomManager struct {
	room *Room
}

func NewRoomManager(cfg Config) *RoomManager {
	return &RoomManager{
		room: NewRoom(cfg.RoomName,
			WithMaxPlayers(cfg.MaxPlayers),
			WithStatsInterval(cfg.StatsInterval),
		),
	}
}

// Lookup 按名称查找房间；空名称返回默认房间
func (m *RoomManager) Lookup(id string) (*Room, bool) {
	if id == "" || id == m.room.ID {
		return m.room, true
	}
	return nil, false
}

func (m *RoomManager) Room() *Room { return m.room }

// Start 启动房间事件循环；ctx 取消后房间关闭所有会话
func (m *RoomManager) Start(ctx context.Context) {
	m.room.Start(ctx)
}

// Wait 阻塞直到房间事件循环退出
func (m *RoomManager) Wait() {
	<-m.room.Done()
}
