package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"tankarena/server"
)

// tankarena 入口：加载配置，启动模拟循环与 HTTP + WebSocket 服务
func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "tankarena:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := server.LoadConfig()
	if err != nil {
		return err
	}
	// 命令行参数覆盖 .env 与环境变量
	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "server listen address, e.g. :9001")
	flag.IntVar(&cfg.TickIntervalMs, "tick-ms", cfg.TickIntervalMs, "simulation tick interval in milliseconds")
	flag.IntVar(&cfg.PublishIntervalMs, "publish-ms", cfg.PublishIntervalMs, "snapshot broadcast interval in milliseconds")
	flag.IntVar(&cfg.StatusIntervalMs, "status-ms", cfg.StatusIntervalMs, "text status frame interval in milliseconds, 0 disables")
	flag.Float64Var(&cfg.BaseAcceleration, "accel", cfg.BaseAcceleration, "acceleration applied per control signal")
	flag.StringVar(&cfg.Codec, "codec", cfg.Codec, "wire codec: msgpack or json")
	flag.StringVar(&cfg.Physics, "physics", cfg.Physics, "integrator: euler or rigid")
	flag.StringVar(&cfg.LogFile, "log", cfg.LogFile, "log file path, empty for stderr")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	flag.Parse()

	// 使用第三方 zap 日志库写入日志文件（带滚动）
	if err := server.InitLogger(cfg.LogFile, cfg.LogLevel); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer server.SyncLogger()

	srv, err := server.NewServer(cfg, server.Log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	httpSrv := &http.Server{Addr: cfg.Addr, Handler: srv.Routes()}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(ctx)
	})
	g.Go(func() error {
		server.Log.Infof("tankarena listening on %s (codec=%s physics=%s tick=%dms)",
			cfg.Addr, cfg.Codec, cfg.Physics, cfg.TickIntervalMs)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		server.Log.Info("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
