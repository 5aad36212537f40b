package server

// eventKind 房间事件循环处理的事件类别
type eventKind int

const (
	evConnect eventKind = iota
	evMessage
	evDisconnect
	evCall
)

// event 入站事件：网络协程只负责投递，全部状态修改都在房间循环中完成
type event struct {
	kind      eventKind
	sessionID string

	conn     Conn   // evConnect
	username string // evConnect：握手时携带的期望用户名
	autoJoin bool   // evConnect：false 表示仅做预检（checkUsername），不入房

	raw []byte // evMessage：原始文本帧

	fn   func() // evCall
	done chan struct{}
}
