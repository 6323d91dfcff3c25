package server

import (
	"fmt"
	"sync/atomic"
)

// TankState 为广播给客户端的坦克状态
type TankState struct {
	PlayerID string `json:"id"`
	Position Vec2   `json:"pos"`
	Velocity Vec2   `json:"vel"`
}

// WorldView 某个 Tick 结束时的世界视图（交给编解码器序列化）
type WorldView struct {
	Tick  uint64      `json:"tick"`
	Tanks []TankState `json:"tanks"`
}

// Has 视图中是否包含该玩家
func (v WorldView) Has(id PlayerID) bool {
	s := id.String()
	for _, t := range v.Tanks {
		if t.PlayerID == s {
			return true
		}
	}
	return false
}

// WorldSnapshot 每 Tick 发布一次的不可变快照，所有写协程共享只读
type WorldSnapshot struct {
	WorldView
	Payload []byte // 编解码器输出，直接作为二进制帧发送
}

// Publisher 以原子指针替换的方式发布快照，读者永远看不到半更新的状态
type Publisher struct {
	codec  Codec
	latest atomic.Pointer[WorldSnapshot]
}

func NewPublisher(codec Codec) *Publisher {
	return &Publisher{codec: codec}
}

// Publish 编码视图并整体替换当前快照
func (p *Publisher) Publish(view WorldView) (*WorldSnapshot, error) {
	payload, err := p.codec.EncodeSnapshot(view)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot tick=%d: %w", view.Tick, err)
	}
	snap := &WorldSnapshot{WorldView: view, Payload: payload}
	p.latest.Store(snap)
	return snap, nil
}

// Latest 返回最近一次发布的快照，尚未发布时为 nil
func (p *Publisher) Latest() *WorldSnapshot {
	return p.latest.Load()
}
