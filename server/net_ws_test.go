package server

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type sessionHarness struct {
	conn  *fakeConn
	sess  *Session
	id    PlayerID
	done  chan struct{}
	reg   *Registry
	in    *ActionIntake
	pub   *Publisher
	stats *Metrics
}

func startSession(t *testing.T, reg *Registry, in *ActionIntake, pub *Publisher, stats *Metrics) *sessionHarness {
	t.Helper()
	return startSessionWithStatus(t, reg, in, pub, stats, 0)
}

func startSessionWithStatus(t *testing.T, reg *Registry, in *ActionIntake, pub *Publisher, stats *Metrics, status time.Duration) *sessionHarness {
	t.Helper()
	logger, _ := observedLogger(zap.NewAtomicLevelAt(zap.DebugLevel))
	h := &sessionHarness{conn: newFakeConn(), done: make(chan struct{}), reg: reg, in: in, pub: pub, stats: stats}
	h.id = reg.NewPlayerID()
	reg.Register(h.id)
	h.sess = NewSession(h.id, h.conn, SessionDeps{
		Codec:           MsgpackCodec{},
		Intake:          in,
		Registry:        reg,
		Publisher:       pub,
		Metrics:         stats,
		PublishInterval: 5 * time.Millisecond,
		StatusInterval:  status,
		Logger:          logger,
	})
	go func() {
		h.sess.Run(context.Background())
		close(h.done)
	}()
	return h
}

func (h *sessionHarness) running() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

func (h *sessionHarness) waitDone(t *testing.T) {
	t.Helper()
	select {
	case <-h.done:
	case <-time.After(time.Second):
		t.Fatalf("session did not terminate")
	}
}

func TestSessionSendsWelcome(t *testing.T) {
	h := startSession(t, NewRegistry(), NewActionIntake(), NewPublisher(MsgpackCodec{}), &Metrics{})
	defer h.conn.Close()

	select {
	case f := <-h.conn.out:
		if f.mt != websocket.TextMessage {
			t.Fatalf("expected text welcome, got type %d", f.mt)
		}
		var msg welcomeMessage
		if err := json.Unmarshal(f.data, &msg); err != nil {
			t.Fatalf("welcome not json: %v", err)
		}
		if msg.PlayerID != h.id.String() || msg.Codec != CodecMsgpack {
			t.Fatalf("unexpected welcome %+v", msg)
		}
	case <-time.After(time.Second):
		t.Fatalf("no welcome frame")
	}
}

func TestSessionDecodeErrorKeepsConnection(t *testing.T) {
	reg, in, stats := NewRegistry(), NewActionIntake(), &Metrics{}
	pub := NewPublisher(MsgpackCodec{})
	bad := startSession(t, reg, in, pub, stats)
	good := startSession(t, reg, in, pub, stats)

	bad.conn.sendBinary([]byte{0xc1, 0x00})
	bad.conn.sendText("hello from a debug client")
	good.conn.sendBinary(mustEncode(t, ControlUp))

	waitFor(t, time.Second, "good action", func() bool { return in.Pending() == 1 })
	waitFor(t, time.Second, "decode error counted", func() bool { return atomic.LoadInt64(&stats.DecodeErrors) == 1 })
	if !bad.running() || !good.running() {
		t.Fatalf("a decode error must not end any session")
	}

	// 解码失败后，同一连接仍能提交合法动作
	bad.conn.sendBinary(mustEncode(t, ControlLeft, ControlLeft))
	waitFor(t, time.Second, "bad connection recovers", func() bool { return in.Pending() == 2 })

	drained := in.Drain()
	if got := drained[good.id].Controls; len(got) != 1 || got[0] != ControlUp {
		t.Fatalf("good connection's action disturbed: %v", got)
	}
	if got := drained[bad.id].Controls; len(got) != 2 {
		t.Fatalf("unexpected action for recovering connection: %v", got)
	}

	bad.conn.sendClose()
	good.conn.sendClose()
	bad.waitDone(t)
	good.waitDone(t)
}

func TestSessionCloseUnregisters(t *testing.T) {
	reg := NewRegistry()
	h := startSession(t, reg, NewActionIntake(), NewPublisher(MsgpackCodec{}), &Metrics{})
	if !reg.IsLive(h.id) {
		t.Fatalf("player should be live while connected")
	}
	h.conn.sendClose()
	h.waitDone(t)

	if reg.IsLive(h.id) {
		t.Fatalf("player still live after close")
	}
	events := reg.Drain()
	if len(events) != 2 || events[1].Kind != PlayerLeft || events[1].PlayerID != h.id {
		t.Fatalf("expected queued leave, got %v", events)
	}
	select {
	case <-h.conn.closed:
	default:
		t.Fatalf("connection not closed")
	}
}

func TestSessionWriterFailureEndsSession(t *testing.T) {
	reg := NewRegistry()
	pub := NewPublisher(MsgpackCodec{})
	if _, err := pub.Publish(WorldView{Tick: 1}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	h := startSession(t, reg, NewActionIntake(), pub, &Metrics{})

	// 写端断开：关闭连接后写协程失败，读协程随之被取消
	h.conn.Close()
	h.waitDone(t)
	if reg.IsLive(h.id) {
		t.Fatalf("player still live after transport failure")
	}
}

func TestSessionWriterSendsEachSnapshotOnce(t *testing.T) {
	pub := NewPublisher(MsgpackCodec{})
	h := startSession(t, NewRegistry(), NewActionIntake(), pub, &Metrics{})
	defer h.conn.Close()

	<-h.conn.out // welcome
	snap, _ := pub.Publish(WorldView{Tick: 9})
	select {
	case f := <-h.conn.out:
		if f.mt != websocket.BinaryMessage || string(f.data) != string(snap.Payload) {
			t.Fatalf("unexpected frame %d %x", f.mt, f.data)
		}
	case <-time.After(time.Second):
		t.Fatalf("snapshot not sent")
	}
	select {
	case f := <-h.conn.out:
		t.Fatalf("unchanged snapshot re-sent: %x", f.data)
	case <-time.After(30 * time.Millisecond):
	}
}

func TestSessionSendsPeriodicStatus(t *testing.T) {
	reg := NewRegistry()
	other := reg.NewPlayerID()
	reg.Register(other)
	pub := NewPublisher(MsgpackCodec{})
	if _, err := pub.Publish(WorldView{Tick: 4}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	h := startSessionWithStatus(t, reg, NewActionIntake(), pub, &Metrics{}, 5*time.Millisecond)
	defer h.conn.Close()

	<-h.conn.out // welcome
	deadline := time.After(time.Second)
	for {
		select {
		case f := <-h.conn.out:
			if f.mt != websocket.TextMessage {
				continue
			}
			var msg statusMessage
			if err := json.Unmarshal(f.data, &msg); err != nil {
				t.Fatalf("status not json: %v", err)
			}
			if msg.Type != "status" || msg.Players != 2 || msg.Tick != 4 {
				t.Fatalf("unexpected status %+v", msg)
			}
			return
		case <-deadline:
			t.Fatalf("no status frame")
		}
	}
}

// Run 启动前接入的会话也必须随 Run 的 ctx 一起结束
func TestSessionAcceptedBeforeRunEndsOnShutdown(t *testing.T) {
	srv, err := NewServer(testConfig(), zap.NewNop().Sugar())
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ts := httptest.NewServer(srv.Routes())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()
	_ = client.SetReadDeadline(time.Now().Add(3 * time.Second))
	if _, _, err := client.ReadMessage(); err != nil {
		t.Fatalf("welcome: %v", err)
	}
	waitFor(t, time.Second, "session registered", func() bool {
		return atomic.LoadInt64(&srv.metrics.SessionsActive) == 1
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()
	cancel()
	<-done

	waitFor(t, 2*time.Second, "session shutdown", func() bool {
		return atomic.LoadInt64(&srv.metrics.SessionsActive) == 0
	})
	if srv.registry.Len() != 0 {
		t.Fatalf("player still registered after shutdown")
	}
}

// 端到端：连接、发送一个 UP 动作、关闭；坦克获得向上速度，断开后从快照中消失
func TestEndToEndConnectActDisconnect(t *testing.T) {
	cfg := testConfig()
	cfg.TickIntervalMs = 10
	cfg.PublishIntervalMs = 10
	srv, err := NewServer(cfg, zap.NewNop().Sugar())
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = srv.Run(ctx) }()

	ts := httptest.NewServer(srv.Routes())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()
	_ = client.SetReadDeadline(time.Now().Add(3 * time.Second))

	mt, data, err := client.ReadMessage()
	if err != nil || mt != websocket.TextMessage {
		t.Fatalf("expected welcome, got %d %v", mt, err)
	}
	var welcome welcomeMessage
	if err := json.Unmarshal(data, &welcome); err != nil {
		t.Fatalf("welcome: %v", err)
	}

	if err := client.WriteMessage(websocket.BinaryMessage, mustEncode(t, ControlUp)); err != nil {
		t.Fatalf("send action: %v", err)
	}

	codec := MsgpackCodec{}
	for moving := false; !moving; {
		mt, data, err := client.ReadMessage()
		if err != nil {
			t.Fatalf("read snapshot: %v", err)
		}
		if mt != websocket.BinaryMessage {
			continue
		}
		view, err := codec.DecodeSnapshot(data)
		if err != nil {
			t.Fatalf("decode snapshot: %v", err)
		}
		for _, tank := range view.Tanks {
			if tank.PlayerID == welcome.PlayerID && tank.Velocity.Y < 0 {
				moving = true
			}
		}
	}

	_ = client.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))

	waitFor(t, 2*time.Second, "tank removal", func() bool {
		snap := srv.Latest()
		if snap == nil {
			return false
		}
		for _, tank := range snap.Tanks {
			if tank.PlayerID == welcome.PlayerID {
				return false
			}
		}
		return true
	})
	if n := srv.registry.Len(); n != 0 {
		t.Fatalf("registry still holds %d players", n)
	}
}
