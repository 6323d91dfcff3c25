package server

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// ErrInvalidConfig 启动期配置错误，进程直接退出
var ErrInvalidConfig = errors.New("invalid config")

const (
	CodecMsgpack = "msgpack"
	CodecJSON    = "json"

	PhysicsEuler = "euler"
	PhysicsRigid = "rigid"
)

// Config 服务配置：默认值 → .env → TANK_* 环境变量 → 命令行参数
type Config struct {
	Addr              string  `json:"addr"`
	TickIntervalMs    int     `json:"tick_interval_ms"`
	PublishIntervalMs int     `json:"publish_interval_ms"`
	StatusIntervalMs  int     `json:"status_interval_ms"`
	SpawnBounds       Rect    `json:"spawn_bounds"`
	WorldBounds       Rect    `json:"world_bounds"`
	BaseAcceleration  float64 `json:"base_acceleration"`
	Codec             string  `json:"codec"`
	Physics           string  `json:"physics"`
	MaxSpeed          float64 `json:"max_speed"`
	LinearDamping     float64 `json:"linear_damping"`
	RNGSeed           int64   `json:"rng_seed"`
	LogFile           string  `json:"log_file"`
	LogLevel          string  `json:"log_level"`
}

// DefaultConfig 默认 10 TPS，广播与 Tick 同频
func DefaultConfig() Config {
	return Config{
		Addr:              ":9001",
		TickIntervalMs:    100,
		PublishIntervalMs: 100,
		StatusIntervalMs:  5000,
		SpawnBounds:       Rect{MinX: 40, MinY: 40, MaxX: 60, MaxY: 60},
		WorldBounds:       Rect{MinX: 0, MinY: 0, MaxX: 100, MaxY: 100},
		BaseAcceleration:  5,
		Codec:             CodecMsgpack,
		Physics:           PhysicsEuler,
		MaxSpeed:          20,
		LinearDamping:     1,
		LogFile:           "app.log",
		LogLevel:          "info",
	}
}

// LoadConfig 读取可选的 .env 文件（不存在不报错）并叠加环境变量
func LoadConfig(envFiles ...string) (Config, error) {
	cfg := DefaultConfig()
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("load %s: %w", f, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	var firstErr error
	fail := func(key string, err error) {
		if firstErr == nil {
			firstErr = fmt.Errorf("%s: %v: %w", key, err, ErrInvalidConfig)
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				fail(key, err)
				return
			}
			*dst = n
		}
	}
	float := func(key string, dst *float64) {
		if v, ok := lookup(key); ok && v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				fail(key, err)
				return
			}
			*dst = f
		}
	}
	rect := func(key string, dst *Rect) {
		if v, ok := lookup(key); ok && v != "" {
			r, err := ParseRect(v)
			if err != nil {
				fail(key, err)
				return
			}
			*dst = r
		}
	}

	str("TANK_ADDR", &c.Addr)
	num("TANK_TICK_INTERVAL_MS", &c.TickIntervalMs)
	num("TANK_PUBLISH_INTERVAL_MS", &c.PublishIntervalMs)
	num("TANK_STATUS_INTERVAL_MS", &c.StatusIntervalMs)
	rect("TANK_SPAWN_BOUNDS", &c.SpawnBounds)
	rect("TANK_WORLD_BOUNDS", &c.WorldBounds)
	float("TANK_BASE_ACCELERATION", &c.BaseAcceleration)
	str("TANK_CODEC", &c.Codec)
	str("TANK_PHYSICS", &c.Physics)
	float("TANK_MAX_SPEED", &c.MaxSpeed)
	float("TANK_LINEAR_DAMPING", &c.LinearDamping)
	if v, ok := lookup("TANK_RNG_SEED"); ok && v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			fail("TANK_RNG_SEED", err)
		} else {
			c.RNGSeed = n
		}
	}
	str("TANK_LOG_FILE", &c.LogFile)
	str("TANK_LOG_LEVEL", &c.LogLevel)
	return firstErr
}

// Validate 启动期校验，任何错误都包装 ErrInvalidConfig
func (c Config) Validate() error {
	bad := func(format string, args ...any) error {
		return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrInvalidConfig)
	}
	if _, _, err := net.SplitHostPort(c.Addr); err != nil {
		return bad("addr %q: %v", c.Addr, err)
	}
	if c.TickIntervalMs <= 0 {
		return bad("tick_interval_ms must be positive, got %d", c.TickIntervalMs)
	}
	if c.PublishIntervalMs <= 0 {
		return bad("publish_interval_ms must be positive, got %d", c.PublishIntervalMs)
	}
	if c.StatusIntervalMs < 0 {
		return bad("status_interval_ms must not be negative, got %d", c.StatusIntervalMs)
	}
	if !c.WorldBounds.Valid() {
		return bad("world_bounds %s is empty or not finite", c.WorldBounds)
	}
	if !c.SpawnBounds.Valid() {
		return bad("spawn_bounds %s is empty or not finite", c.SpawnBounds)
	}
	if !c.WorldBounds.ContainsRect(c.SpawnBounds) {
		return bad("spawn_bounds %s outside world_bounds %s", c.SpawnBounds, c.WorldBounds)
	}
	if !finite(c.BaseAcceleration) || c.BaseAcceleration <= 0 {
		return bad("base_acceleration must be a positive finite number, got %g", c.BaseAcceleration)
	}
	switch c.Codec {
	case CodecMsgpack, CodecJSON:
	default:
		return bad("codec %q", c.Codec)
	}
	switch c.Physics {
	case PhysicsEuler, PhysicsRigid:
	default:
		return bad("physics %q", c.Physics)
	}
	if !finite(c.MaxSpeed) || c.MaxSpeed < 0 {
		return bad("max_speed must be a finite non-negative number, got %g", c.MaxSpeed)
	}
	if !finite(c.LinearDamping) || c.LinearDamping < 0 {
		return bad("linear_damping must be a finite non-negative number, got %g", c.LinearDamping)
	}
	return nil
}

func (c Config) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalMs) * time.Millisecond
}

func (c Config) PublishInterval() time.Duration {
	return time.Duration(c.PublishIntervalMs) * time.Millisecond
}

// StatusInterval 文本诊断帧间隔，0 表示关闭
func (c Config) StatusInterval() time.Duration {
	return time.Duration(c.StatusIntervalMs) * time.Millisecond
}

// Tuning 由配置在启动时推导一次的每 Tick 常量
type Tuning struct {
	DT        float64 // 秒
	DTSquared float64
	Accel     float64 // 每个控制信号施加的加速度
}

func (c Config) Tuning() Tuning {
	dt := c.TickInterval().Seconds()
	return Tuning{DT: dt, DTSquared: dt * dt, Accel: c.BaseAcceleration}
}
