package server

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Simulation 固定步长模拟循环，是 World 唯一的写者
type Simulation struct {
	world      *World
	intake     *ActionIntake
	registry   *Registry
	integrator Integrator
	publisher  *Publisher
	metrics    *Metrics
	tuning     Tuning
	interval   time.Duration
	log        *zap.SugaredLogger

	tick uint64
}

// SimulationDeps 模拟循环依赖的组件
type SimulationDeps struct {
	World      *World
	Intake     *ActionIntake
	Registry   *Registry
	Integrator Integrator
	Publisher  *Publisher
	Metrics    *Metrics
	Logger     *zap.SugaredLogger
}

// NewSimulation 每 Tick 常量由 cfg.Tuning() 计算一次后固定
func NewSimulation(cfg Config, deps SimulationDeps) *Simulation {
	metrics := deps.Metrics
	if metrics == nil {
		metrics = &Metrics{}
	}
	integ := deps.Integrator
	if integ == nil {
		integ = EulerIntegrator{}
	}
	return &Simulation{
		world:      deps.World,
		intake:     deps.Intake,
		registry:   deps.Registry,
		integrator: integ,
		publisher:  deps.Publisher,
		metrics:    metrics,
		tuning:     cfg.Tuning(),
		interval:   cfg.TickInterval(),
		log:        loggerOr(deps.Logger),
	}
}

// Tick 已完成的 Tick 数（仅在循环协程内读取）
func (s *Simulation) Tick() uint64 { return s.tick }

// Step 执行一个完整 Tick：注册 → 应用动作 → 物理推进 → 发布快照
func (s *Simulation) Step() *WorldSnapshot {
	start := time.Now()
	s.tick++

	s.applyRegistrations()

	actions := s.intake.Drain()
	applied, errs := s.world.Apply(actions, s.tuning.Accel)
	for _, err := range errs {
		s.log.Warnw("dropping player action", "tick", s.tick, "err", err)
	}
	s.metrics.AddApplied(applied)
	s.metrics.AddDropped(len(errs))

	if errs := s.world.Step(s.integrator, s.tuning); len(errs) > 0 {
		for _, err := range errs {
			s.log.Warnw("skipping tank for this tick", "tick", s.tick, "err", err)
		}
		s.metrics.AddIntegratorSkips(len(errs))
	}

	snap, err := s.publisher.Publish(s.world.View(s.tick))
	if err != nil {
		// 保留上一份快照，写协程继续发送旧状态
		s.log.Errorw("publish snapshot failed", "tick", s.tick, "err", err)
	} else {
		s.metrics.SetSnapshotBytes(len(snap.Payload))
	}

	s.metrics.AddTick(time.Since(start).Nanoseconds())
	return snap
}

// applyRegistrations 按到达顺序处理加入与离开，并按 ID 去重
func (s *Simulation) applyRegistrations() {
	for _, ev := range s.registry.Drain() {
		switch ev.Kind {
		case PlayerJoined:
			t, created := s.world.Spawn(ev.PlayerID)
			if !created {
				s.log.Debugw("duplicate join ignored", "player", ev.PlayerID)
				continue
			}
			s.integrator.Track(ev.PlayerID, t.Position)
			s.metrics.IncJoined()
			s.log.Infow("tank spawned", "player", ev.PlayerID, "x", t.Position.X, "y", t.Position.Y)
		case PlayerLeft:
			if !s.world.Remove(ev.PlayerID) {
				s.log.Warnw("leave for player without tank", "player", ev.PlayerID)
				continue
			}
			s.integrator.Untrack(ev.PlayerID)
			s.metrics.IncLeft()
			s.log.Infow("tank removed", "player", ev.PlayerID)
		}
	}
}

// Run 按固定间隔推进世界，直到 ctx 取消
func (s *Simulation) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	s.log.Infow("simulation started", "interval", s.interval)
	for {
		select {
		case <-ctx.Done():
			s.log.Infow("simulation stopped", "tick", s.tick)
			return ctx.Err()
		case <-ticker.C:
			s.Step()
		}
	}
}
