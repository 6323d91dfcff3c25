package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	maxFrame   = 1 << 20 // 1MB
)

// Conn 会话所需的最小连接能力，*websocket.Conn 满足该接口
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// welcomeMessage 连接建立后发送的文本诊断帧
type welcomeMessage struct {
	Type     string `json:"type"`
	PlayerID string `json:"playerId"`
	Codec    string `json:"codec"`
}

// statusMessage 周期性文本诊断帧：在线玩家数与最近快照的 Tick
type statusMessage struct {
	Type    string `json:"type"`
	Tick    uint64 `json:"tick"`
	Players int    `json:"players"`
}

// Session 一个连接上的读协程与写协程，二者只通过输入箱与快照交互
type Session struct {
	id        PlayerID
	conn      Conn
	codec     Codec
	intake    *ActionIntake
	registry  *Registry
	publisher *Publisher
	metrics   *Metrics
	interval  time.Duration
	status    time.Duration
	log       *zap.SugaredLogger
}

// SessionDeps 会话共享的服务端组件
type SessionDeps struct {
	Codec           Codec
	Intake          *ActionIntake
	Registry        *Registry
	Publisher       *Publisher
	Metrics         *Metrics
	PublishInterval time.Duration
	StatusInterval  time.Duration // 文本诊断帧间隔，0 表示不发送
	Logger          *zap.SugaredLogger
}

func NewSession(id PlayerID, conn Conn, deps SessionDeps) *Session {
	metrics := deps.Metrics
	if metrics == nil {
		metrics = &Metrics{}
	}
	return &Session{
		id:        id,
		conn:      conn,
		codec:     deps.Codec,
		intake:    deps.Intake,
		registry:  deps.Registry,
		publisher: deps.Publisher,
		metrics:   metrics,
		interval:  deps.PublishInterval,
		status:    deps.StatusInterval,
		log:       loggerOr(deps.Logger).With("player", id),
	}
}

// Run 读写协程竞速：任意一方结束即取消另一方，关闭连接并注销玩家。
// 注销只排队，坦克在下一次 Tick 移除。
func (s *Session) Run(ctx context.Context) {
	s.metrics.SessionOpened()
	defer s.metrics.SessionClosed()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.sendWelcome()

	done := make(chan string, 2)
	go func() {
		s.readLoop(ctx)
		done <- "reader"
	}()
	go func() {
		s.writeLoop(ctx)
		done <- "writer"
	}()

	var first string
	select {
	case first = <-done:
	case <-ctx.Done():
		first = "context"
	}
	cancel()
	// 关闭连接以解除读协程在 ReadMessage 上的阻塞
	_ = s.conn.Close()

	s.registry.Unregister(s.id)
	s.log.Infow("session closed", "ended_by", first)
}

func (s *Session) sendWelcome() {
	b, err := json.Marshal(welcomeMessage{Type: "welcome", PlayerID: s.id.String(), Codec: s.codec.Name()})
	if err != nil {
		return
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, b); err != nil {
		s.log.Debugw("welcome not delivered", "err", err)
	}
}

// readLoop 读取入站帧：文本帧仅记录；二进制帧解码为动作；
// 解码失败记录后继续，关闭帧或传输错误结束会话
func (s *Session) readLoop(ctx context.Context) {
	for {
		mt, payload, err := s.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				s.log.Infow("client closed", "code", ce.Code)
			} else {
				s.log.Infow("read failed", "err", err)
			}
			return
		}
		switch mt {
		case websocket.TextMessage:
			s.log.Debugw("text frame ignored", "text", string(payload))
		case websocket.BinaryMessage:
			action, err := s.codec.DecodeAction(payload)
			if err != nil {
				s.metrics.IncDecodeErrors()
				s.log.Warnw("could not parse client message", "err", err, "bytes", len(payload))
				continue
			}
			s.intake.Submit(s.id, action)
			s.metrics.IncSubmitted()
		case websocket.CloseMessage:
			return
		}
	}
}

// writeLoop 按广播间隔发送最新快照，同一快照不重复发送；
// 启用时另按诊断间隔发送文本状态帧
func (s *Session) writeLoop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	var statusC <-chan time.Time
	if s.status > 0 {
		statusTicker := time.NewTicker(s.status)
		defer statusTicker.Stop()
		statusC = statusTicker.C
	}
	var last *WorldSnapshot
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := s.publisher.Latest()
			if snap == nil || snap == last {
				continue
			}
			if err := s.conn.WriteMessage(websocket.BinaryMessage, snap.Payload); err != nil {
				s.log.Infow("write failed", "err", err, "tick", snap.Tick)
				return
			}
			last = snap
		case <-statusC:
			if err := s.sendStatus(); err != nil {
				s.log.Infow("status write failed", "err", err)
				return
			}
		}
	}
}

func (s *Session) sendStatus() error {
	msg := statusMessage{Type: "status", Players: s.registry.Len()}
	if snap := s.publisher.Latest(); snap != nil {
		msg.Tick = snap.Tick
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, b)
}

// wsConn 为 gorilla 连接加上写超时与心跳
type wsConn struct {
	*websocket.Conn
	writeMu   sync.Mutex
	stop      chan struct{}
	closeOnce sync.Once
}

func newWSConn(ws *websocket.Conn) *wsConn {
	c := &wsConn{Conn: ws, stop: make(chan struct{})}
	ws.SetReadLimit(maxFrame)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	go c.pingLoop()
	return c
}

// WriteMessage gorilla 连接只允许一个并发写者，欢迎帧、快照与 ping 在这里串行
func (c *wsConn) WriteMessage(mt int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.Conn.WriteMessage(mt, data)
}

func (c *wsConn) Close() error {
	c.closeOnce.Do(func() { close(c.stop) })
	return c.Conn.Close()
}

func (c *wsConn) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// 传输安全不在本服务范围内：允许所有来源
		return true
	},
}

// HandleWS WebSocket 接入：分配玩家 ID、排队注册，并在当前协程运行会话
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnw("upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}

	id := s.registry.NewPlayerID()
	s.registry.Register(id)
	s.log.Infow("client connected", "player", id, "remote", r.RemoteAddr)

	sess := NewSession(id, newWSConn(ws), SessionDeps{
		Codec:           s.codec,
		Intake:          s.intake,
		Registry:        s.registry,
		Publisher:       s.publisher,
		Metrics:         s.metrics,
		PublishInterval: s.cfg.PublishInterval(),
		StatusInterval:  s.cfg.StatusInterval(),
		Logger:          s.log,
	})
	sess.Run(s.baseContext())
}
