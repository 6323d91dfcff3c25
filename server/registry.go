package server

import (
	"sync"

	"github.com/google/uuid"
)

// RegistryEventKind 注册事件类型
type RegistryEventKind int

const (
	PlayerJoined RegistryEventKind = iota
	PlayerLeft
)

func (k RegistryEventKind) String() string {
	if k == PlayerJoined {
		return "join"
	}
	return "leave"
}

// RegistryEvent 排队等待模拟循环处理的加入/离开
type RegistryEvent struct {
	Kind     RegistryEventKind
	PlayerID PlayerID
}

// Registry 记录在线玩家；加入与离开都只排队，由下一次 Tick 应用到世界，
// 避免网络协程直接改动 World
type Registry struct {
	mu      sync.Mutex
	live    map[PlayerID]struct{}
	pending []RegistryEvent
}

func NewRegistry() *Registry {
	return &Registry{live: make(map[PlayerID]struct{})}
}

// NewPlayerID 生成一个与在线玩家不冲突的随机 ID
func (r *Registry) NewPlayerID() PlayerID {
	r.mu.Lock()
	defer r.mu.Unlock()
	for {
		id := uuid.New()
		if _, taken := r.live[id]; !taken {
			return id
		}
	}
}

// Register 标记玩家在线并排队加入事件；重复注册返回 false
func (r *Registry) Register(id PlayerID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.live[id]; ok {
		return false
	}
	r.live[id] = struct{}{}
	r.pending = append(r.pending, RegistryEvent{Kind: PlayerJoined, PlayerID: id})
	return true
}

// Unregister 标记玩家离线并排队离开事件；未在线时返回 false
func (r *Registry) Unregister(id PlayerID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.live[id]; !ok {
		return false
	}
	delete(r.live, id)
	r.pending = append(r.pending, RegistryEvent{Kind: PlayerLeft, PlayerID: id})
	return true
}

// Drain 按到达顺序取走全部待处理事件
func (r *Registry) Drain() []RegistryEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.pending
	r.pending = nil
	return out
}

// IsLive 玩家是否在线
func (r *Registry) IsLive(id PlayerID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.live[id]
	return ok
}

// Live 在线玩家列表（无序）
func (r *Registry) Live() []PlayerID {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]PlayerID, 0, len(r.live))
	for id := range r.live {
		out = append(out, id)
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.live)
}
