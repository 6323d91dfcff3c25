package server

import (
	"fmt"
	"math/rand"
	"sort"
	"time"
)

// World 权威世界：PlayerID → Tank。只由模拟循环所在的协程读写
type World struct {
	tanks  map[PlayerID]*Tank
	spawn  Rect
	bounds Rect
	rng    *rand.Rand
}

// NewWorld 创建世界；RNGSeed 为 0 时使用当前时间作为种子
func NewWorld(cfg Config) *World {
	seed := cfg.RNGSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &World{
		tanks:  make(map[PlayerID]*Tank),
		spawn:  cfg.SpawnBounds,
		bounds: cfg.WorldBounds,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// Spawn 在出生区域内随机放置坦克；已存在时返回原坦克与 false
func (w *World) Spawn(id PlayerID) (*Tank, bool) {
	if t, ok := w.tanks[id]; ok {
		return t, false
	}
	pos := Vec2{
		X: w.spawn.MinX + w.rng.Float64()*(w.spawn.MaxX-w.spawn.MinX),
		Y: w.spawn.MinY + w.rng.Float64()*(w.spawn.MaxY-w.spawn.MinY),
	}
	return w.AddTank(id, pos), true
}

// AddTank 在指定位置放置（或替换）坦克
func (w *World) AddTank(id PlayerID, pos Vec2) *Tank {
	t := &Tank{PlayerID: id, Position: pos}
	w.tanks[id] = t
	return t
}

// Remove 移除坦克，不存在时返回 false
func (w *World) Remove(id PlayerID) bool {
	if _, ok := w.tanks[id]; !ok {
		return false
	}
	delete(w.tanks, id)
	return true
}

func (w *World) Tank(id PlayerID) (*Tank, bool) {
	t, ok := w.tanks[id]
	return t, ok
}

func (w *World) Len() int { return len(w.tanks) }

// Apply 将本 Tick 的动作折算到各坦克；单个动作失败不影响其他动作
func (w *World) Apply(actions map[PlayerID]PlayerAction, accel float64) (applied int, errs []error) {
	for id, a := range actions {
		t, ok := w.tanks[id]
		if !ok {
			errs = append(errs, fmt.Errorf("tank for player %s: %w", id, ErrUnknownPlayer))
			continue
		}
		if err := t.ApplyControls(a.Controls, accel); err != nil {
			errs = append(errs, err)
			continue
		}
		applied++
	}
	return applied, errs
}

// Step 用积分器推进所有坦克一个 Tick，随后裁剪到世界边界。
// 积分器出错的坦克本 Tick 跳过。
func (w *World) Step(integ Integrator, tun Tuning) (errs []error) {
	for _, t := range w.tanks {
		if err := integ.Step(t, tun); err != nil {
			errs = append(errs, err)
			continue
		}
		pos, hitX, hitY := w.bounds.Clamp(t.Position)
		t.Position = pos
		// 撞墙时清零法向速度
		if hitX {
			t.Velocity.X = 0
		}
		if hitY {
			t.Velocity.Y = 0
		}
	}
	return errs
}

// View 生成按 PlayerID 排序的只读视图
func (w *World) View(tick uint64) WorldView {
	view := WorldView{Tick: tick, Tanks: make([]TankState, 0, len(w.tanks))}
	for _, t := range w.tanks {
		view.Tanks = append(view.Tanks, t.State())
	}
	sort.Slice(view.Tanks, func(i, j int) bool {
		return view.Tanks[i].PlayerID < view.Tanks[j].PlayerID
	})
	return view
}
