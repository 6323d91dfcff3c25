package server

import (
	"errors"
	"fmt"
)

// ErrMissingBody 刚体引擎中找不到坦克对应的刚体
var ErrMissingBody = errors.New("no body found for tank")

// Integrator 推进一个坦克一个 Tick 的运动学状态
type Integrator interface {
	// Track 在坦克出生时登记
	Track(id PlayerID, pos Vec2)
	// Untrack 在坦克移除时注销
	Untrack(id PlayerID)
	// Step 推进一个 Tick；返回错误时坦克保持不变
	Step(t *Tank, tun Tuning) error
}

// NewIntegrator 按配置名选择积分器
func NewIntegrator(name string, cfg Config) (Integrator, error) {
	switch name {
	case PhysicsEuler:
		return EulerIntegrator{}, nil
	case PhysicsRigid:
		return NewRigidBodyEngine(cfg.LinearDamping, cfg.MaxSpeed), nil
	default:
		return nil, fmt.Errorf("physics %q: %w", name, ErrInvalidConfig)
	}
}

// EulerIntegrator 显式欧拉积分，无内部状态
type EulerIntegrator struct{}

func (EulerIntegrator) Track(PlayerID, Vec2) {}
func (EulerIntegrator) Untrack(PlayerID) {}

// Step p += v·dt + ½·a·dt²；v += a·dt；a 清零
func (EulerIntegrator) Step(t *Tank, tun Tuning) error {
	a := t.Acceleration
	t.Position = t.Position.Add(t.Velocity.Scale(tun.DT)).Add(a.Scale(0.5 * tun.DTSquared))
	t.Velocity = t.Velocity.Add(a.Scale(tun.DT))
	t.Acceleration = Vec2{}
	return nil
}

// rigidBody 单位质量刚体
type rigidBody struct {
	pos Vec2
	vel Vec2
}

// RigidBodyEngine 带线性阻尼与限速的刚体步进，刚体只归模拟循环所有
type RigidBodyEngine struct {
	damping  float64
	maxSpeed float64
	bodies   map[PlayerID]*rigidBody
}

func NewRigidBodyEngine(damping, maxSpeed float64) *RigidBodyEngine {
	return &RigidBodyEngine{
		damping:  damping,
		maxSpeed: maxSpeed,
		bodies:   make(map[PlayerID]*rigidBody),
	}
}

func (e *RigidBodyEngine) Track(id PlayerID, pos Vec2) {
	e.bodies[id] = &rigidBody{pos: pos}
}

func (e *RigidBodyEngine) Untrack(id PlayerID) {
	delete(e.bodies, id)
}

// Bodies 当前登记的刚体数
func (e *RigidBodyEngine) Bodies() int { return len(e.bodies) }

// Step 加速度直接改变速度，再施加阻尼与限速，最后积分位置
func (e *RigidBodyEngine) Step(t *Tank, tun Tuning) error {
	b, ok := e.bodies[t.PlayerID]
	if !ok {
		return fmt.Errorf("player %s: %w", t.PlayerID, ErrMissingBody)
	}
	// 世界边界裁剪后以坦克状态为准
	b.pos, b.vel = t.Position, t.Velocity

	b.vel = b.vel.Add(t.Acceleration.Scale(tun.DT))
	if e.damping > 0 {
		b.vel = b.vel.Scale(1 / (1 + e.damping*tun.DT))
	}
	if e.maxSpeed > 0 {
		if speed := b.vel.Len(); speed > e.maxSpeed {
			b.vel = b.vel.Scale(e.maxSpeed / speed)
		}
	}
	b.pos = b.pos.Add(b.vel.Scale(tun.DT))

	t.Position, t.Velocity = b.pos, b.vel
	t.Acceleration = Vec2{}
	return nil
}
