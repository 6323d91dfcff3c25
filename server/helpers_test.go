package server

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.RNGSeed = 42
	cfg.LogFile = ""
	return cfg
}

func observedLogger(level zap.AtomicLevel) (*zap.SugaredLogger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return zap.New(core).Sugar(), logs
}

type testSim struct {
	cfg       Config
	world     *World
	intake    *ActionIntake
	registry  *Registry
	publisher *Publisher
	metrics   *Metrics
	sim       *Simulation
	logs      *observer.ObservedLogs
}

func newTestSim(t *testing.T, cfg Config, integ Integrator) *testSim {
	t.Helper()
	logger, logs := observedLogger(zap.NewAtomicLevelAt(zap.DebugLevel))
	ts := &testSim{
		cfg:       cfg,
		world:     NewWorld(cfg),
		intake:    NewActionIntake(),
		registry:  NewRegistry(),
		publisher: NewPublisher(MsgpackCodec{}),
		metrics:   &Metrics{},
		logs:      logs,
	}
	ts.sim = NewSimulation(cfg, SimulationDeps{
		World:      ts.world,
		Intake:     ts.intake,
		Registry:   ts.registry,
		Integrator: integ,
		Publisher:  ts.publisher,
		Metrics:    ts.metrics,
		Logger:     logger,
	})
	return ts
}

type frame struct {
	mt   int
	data []byte
	err  error
}

// fakeConn 内存连接：in 为客户端发来的帧，out 收集服务端写出的帧
type fakeConn struct {
	in     chan frame
	out    chan frame
	closed chan struct{}
	once   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan frame, 16),
		out:    make(chan frame, 256),
		closed: make(chan struct{}),
	}
}

var errConnClosed = errors.New("use of closed connection")

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case f := <-c.in:
		return f.mt, f.data, f.err
	case <-c.closed:
		return 0, nil, errConnClosed
	}
}

func (c *fakeConn) WriteMessage(mt int, data []byte) error {
	select {
	case <-c.closed:
		return errConnClosed
	default:
	}
	select {
	case c.out <- frame{mt: mt, data: data}:
	default:
	}
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) sendBinary(b []byte) { c.in <- frame{mt: websocket.BinaryMessage, data: b} }
func (c *fakeConn) sendText(s string) { c.in <- frame{mt: websocket.TextMessage, data: []byte(s)} }
func (c *fakeConn) sendClose() {
	c.in <- frame{err: &websocket.CloseError{Code: websocket.CloseNormalClosure}}
}

func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func mustEncode(t *testing.T, controls ...Control) []byte {
	t.Helper()
	b, err := MsgpackCodec{}.EncodeAction(PlayerAction{Controls: controls})
	if err != nil {
		t.Fatalf("encode action: %v", err)
	}
	return b
}
