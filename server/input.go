package server

import (
	"errors"
	"strings"
	"sync"
)

// ErrEmptyAction 不含任何控制信号的动作，视为解码失败
var ErrEmptyAction = errors.New("empty action")

// Control 离散控制信号（服务端权威解释客户端“意图”）
type Control uint8

const (
	ControlUnknown Control = iota
	ControlUp
	ControlDown
	ControlLeft
	ControlRight
)

var controlNames = [...]string{"unknown", "up", "down", "left", "right"}

func (c Control) String() string {
	if int(c) < len(controlNames) {
		return controlNames[c]
	}
	return controlNames[ControlUnknown]
}

// Direction 返回控制对应的单位方向；未知控制返回 false
func (c Control) Direction() (Vec2, bool) {
	switch c {
	case ControlUp:
		return VecUp, true
	case ControlDown:
		return VecDown, true
	case ControlLeft:
		return VecLeft, true
	case ControlRight:
		return VecRight, true
	default:
		return Vec2{}, false
	}
}

// ParseControl 按名字解析（大小写不敏感），无法识别时为 ControlUnknown
func ParseControl(s string) Control {
	switch strings.ToLower(s) {
	case "up":
		return ControlUp
	case "down":
		return ControlDown
	case "left":
		return ControlLeft
	case "right":
		return ControlRight
	default:
		return ControlUnknown
	}
}

// PlayerAction 一次输入消息携带的有序控制序列，由下一次 Tick 消费
type PlayerAction struct {
	Controls []Control
}

// Validate 读协程边界的校验：非空且不含未知控制码
func (a PlayerAction) Validate() error {
	if len(a.Controls) == 0 {
		return ErrEmptyAction
	}
	for _, c := range a.Controls {
		if _, ok := c.Direction(); !ok {
			return ErrUnknownControl
		}
	}
	return nil
}

// ActionIntake 两次 Tick 之间每个玩家最新的输入（后到覆盖先到）
type ActionIntake struct {
	mu      sync.Mutex
	pending map[PlayerID]PlayerAction
}

func NewActionIntake() *ActionIntake {
	return &ActionIntake{pending: make(map[PlayerID]PlayerAction)}
}

// Submit 写入或覆盖玩家的待处理动作；锁只覆盖一次 map 写入
func (in *ActionIntake) Submit(id PlayerID, action PlayerAction) {
	in.mu.Lock()
	in.pending[id] = action
	in.mu.Unlock()
}

// Drain 原子地取走自上次 Drain 以来的全部动作，并换上空容器。
// 与 Drain 并发的 Submit 要么整体落在本次结果里，要么整体留到下一次。
func (in *ActionIntake) Drain() map[PlayerID]PlayerAction {
	fresh := make(map[PlayerID]PlayerAction)
	in.mu.Lock()
	out := in.pending
	in.pending = fresh
	in.mu.Unlock()
	return out
}

// Pending 当前待处理的玩家数
func (in *ActionIntake) Pending() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return len(in.pending)
}
