package server

import (
	"context"
	"net/http"

	"go.uber.org/zap"
)

// Server 组装模拟循环、注册表、输入箱与快照发布器，对外提供 HTTP 路由
type Server struct {
	cfg        Config
	world      *World
	intake     *ActionIntake
	registry   *Registry
	integrator Integrator
	publisher  *Publisher
	codec      Codec
	metrics    *Metrics
	sim        *Simulation
	log        *zap.SugaredLogger

	// 会话的父 context：在 NewServer 中创建，Run 返回时取消
	ctx    context.Context
	cancel context.CancelFunc
}

// NewServer 校验配置并构建全部组件；配置错误在此处返回，进程应直接退出
func NewServer(cfg Config, logger *zap.SugaredLogger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	codec, err := NewCodec(cfg.Codec)
	if err != nil {
		return nil, err
	}
	integ, err := NewIntegrator(cfg.Physics, cfg)
	if err != nil {
		return nil, err
	}
	s := &Server{
		cfg:        cfg,
		world:      NewWorld(cfg),
		intake:     NewActionIntake(),
		registry:   NewRegistry(),
		integrator: integ,
		publisher:  NewPublisher(codec),
		codec:      codec,
		metrics:    &Metrics{},
		log:        loggerOr(logger),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.sim = NewSimulation(cfg, SimulationDeps{
		World:      s.world,
		Intake:     s.intake,
		Registry:   s.registry,
		Integrator: s.integrator,
		Publisher:  s.publisher,
		Metrics:    s.metrics,
		Logger:     s.log,
	})
	return s, nil
}

// Routes 注册 WebSocket 与管理接口
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.HandleWS)
	mux.HandleFunc("/metrics", s.HandleMetrics)
	mux.HandleFunc("/admin/config", s.HandleAdminConfig)
	mux.HandleFunc("/admin/players", s.HandlePlayers)
	mux.HandleFunc("/schema", s.HandleSchema)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// Run 运行模拟循环直到 ctx 取消；返回时结束所有会话，包括 Run 之前接入的
func (s *Server) Run(ctx context.Context) error {
	defer s.cancel()
	return s.sim.Run(ctx)
}

func (s *Server) baseContext() context.Context { return s.ctx }

func (s *Server) Config() Config { return s.cfg }

func (s *Server) Metrics() *Metrics { return s.metrics }

// Latest 最近一次发布的快照
func (s *Server) Latest() *WorldSnapshot { return s.publisher.Latest() }
