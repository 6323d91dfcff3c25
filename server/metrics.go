package server

import (
	"sync/atomic"
)

// Metrics 记录运行期的关键指标（用于监控与调试）
type Metrics struct {
	TickCount        int64 // 已完成的 Tick 次数
	TotalTickNs      int64 // Tick 累计耗时（纳秒）
	ActionsSubmitted int64 // 进入输入箱的动作数
	ActionsApplied   int64 // 被应用到坦克的动作数
	ActionsDropped   int64 // 因玩家不存在或控制非法被丢弃的动作数
	DecodeErrors     int64 // 无法解码的入站帧
	PlayersJoined    int64
	PlayersLeft      int64
	IntegratorSkips  int64 // 因积分器异常被跳过的坦克次数
	SessionsActive   int64
	SnapshotBytes    int64 // 最近一次快照的编码长度
}

func (m *Metrics) IncSubmitted() { atomic.AddInt64(&m.ActionsSubmitted, 1) }
func (m *Metrics) AddApplied(n int) { atomic.AddInt64(&m.ActionsApplied, int64(n)) }
func (m *Metrics) AddDropped(n int) { atomic.AddInt64(&m.ActionsDropped, int64(n)) }
func (m *Metrics) IncDecodeErrors() { atomic.AddInt64(&m.DecodeErrors, 1) }
func (m *Metrics) IncJoined() { atomic.AddInt64(&m.PlayersJoined, 1) }
func (m *Metrics) IncLeft() { atomic.AddInt64(&m.PlayersLeft, 1) }
func (m *Metrics) AddIntegratorSkips(n int) { atomic.AddInt64(&m.IntegratorSkips, int64(n)) }
func (m *Metrics) SessionOpened() { atomic.AddInt64(&m.SessionsActive, 1) }
func (m *Metrics) SessionClosed() { atomic.AddInt64(&m.SessionsActive, -1) }
func (m *Metrics) SetSnapshotBytes(n int) { atomic.StoreInt64(&m.SnapshotBytes, int64(n)) }
func (m *Metrics) AddTick(ns int64) {
	atomic.AddInt64(&m.TickCount, 1)
	atomic.AddInt64(&m.TotalTickNs, ns)
}

// Snapshot 返回只读副本，便于 HTTP 输出
func (m *Metrics) Snapshot() map[string]any {
	tick := atomic.LoadInt64(&m.TickCount)
	total := atomic.LoadInt64(&m.TotalTickNs)
	var avgMs float64
	if tick > 0 {
		avgMs = float64(total) / float64(tick) / 1e6
	}
	return map[string]any{
		"tick_count":        tick,
		"avg_tick_ms":       avgMs,
		"actions_submitted": atomic.LoadInt64(&m.ActionsSubmitted),
		"actions_applied":   atomic.LoadInt64(&m.ActionsApplied),
		"actions_dropped":   atomic.LoadInt64(&m.ActionsDropped),
		"decode_errors":     atomic.LoadInt64(&m.DecodeErrors),
		"players_joined":    atomic.LoadInt64(&m.PlayersJoined),
		"players_left":      atomic.LoadInt64(&m.PlayersLeft),
		"integrator_skips":  atomic.LoadInt64(&m.IntegratorSkips),
		"sessions_active":   atomic.LoadInt64(&m.SessionsActive),
		"snapshot_bytes":    atomic.LoadInt64(&m.SnapshotBytes),
	}
}
