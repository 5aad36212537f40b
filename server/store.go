package server

import (
	"sort"

	"github.com/samber/lo"

	"minirace/protocol"
)

// Store 房间状态存储：sessionId -> PlayerRecord，附带用户名索引
// 只由房间事件循环访问，因此不加锁
type Store struct {
	records map[string]*PlayerRecord
	names   map[string]string // username -> sessionId
}

func NewStore() *Store {
	return &Store{
		records: make(map[string]*PlayerRecord),
		names:   make(map[string]string),
	}
}

// Upsert 写入或覆盖某个会话的记录
func (s *Store) Upsert(sessionID string, rec PlayerRecord) {
	if old, ok := s.records[sessionID]; ok && old.Username != rec.Username {
		delete(s.names, old.Username)
	}
	r := rec
	s.records[sessionID] = &r
	s.names[rec.Username] = sessionID
}

// Reserve 在同一次调用中完成“可用性检查 + 占位”，关闭并发入房的竞态窗口
func (s *Store) Reserve(sessionID, username string) error {
	if holder, ok := s.names[username]; ok && holder != sessionID {
		return protocol.ErrUsernameTaken
	}
	s.Upsert(sessionID, PlayerRecord{Username: username})
	return nil
}

// Remove 删除记录并返回被删除的副本
func (s *Store) Remove(sessionID string) (PlayerRecord, bool) {
	rec, ok := s.records[sessionID]
	if !ok {
		return PlayerRecord{}, false
	}
	delete(s.records, sessionID)
	if s.names[rec.Username] == sessionID {
		delete(s.names, rec.Username)
	}
	return *rec, true
}

func (s *Store) Get(sessionID string) (PlayerRecord, bool) {
	rec, ok := s.records[sessionID]
	if !ok {
		return PlayerRecord{}, false
	}
	return *rec, true
}

// ForEach 遍历所有记录（回调内不得修改 Store）
func (s *Store) ForEach(fn func(sessionID string, rec PlayerRecord)) {
	for id, rec := range s.records {
		fn(id, *rec)
	}
}

// Taken 用户名是否被当前任一会话持有
func (s *Store) Taken(username string) bool {
	_, ok := s.names[username]
	return ok
}

func (s *Store) Len() int { return len(s.records) }

// Usernames 返回排序后的在线用户名
func (s *Store) Usernames() []string {
	out := lo.Keys(s.names)
	sort.Strings(out)
	return out
}
