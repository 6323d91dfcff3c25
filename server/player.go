package server

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// PlayerID 玩家唯一标识（128 位随机值），在连接注册时分配
type PlayerID = uuid.UUID

// NilPlayer 零值 ID，从不分配给真实玩家
var NilPlayer PlayerID

var (
	// ErrUnknownControl 未知控制码，读协程边界拒绝，不进入输入箱
	ErrUnknownControl = errors.New("unknown control")
	// ErrUnknownPlayer 玩家没有对应的坦克（未注册或已注销）
	ErrUnknownPlayer = errors.New("unknown player")
)

// Tank 玩家坦克（服务端权威状态），只由模拟循环修改
type Tank struct {
	PlayerID     PlayerID
	Position     Vec2
	Velocity     Vec2
	Acceleration Vec2 // 本 Tick 累积的加速度，积分后清零
}

// ApplyControls 将控制信号折算为加速度；遇到未知控制码时坦克保持不变
func (t *Tank) ApplyControls(controls []Control, accel float64) error {
	delta := Vec2{}
	for _, c := range controls {
		dir, ok := c.Direction()
		if !ok {
			return fmt.Errorf("player %s: %w %d", t.PlayerID, ErrUnknownControl, c)
		}
		delta = delta.Add(dir.Scale(accel))
	}
	t.Acceleration = t.Acceleration.Add(delta)
	return nil
}

// State 导出只读视图
func (t *Tank) State() TankState {
	return TankState{PlayerID: t.PlayerID.String(), Position: t.Position, Velocity: t.Velocity}
}
