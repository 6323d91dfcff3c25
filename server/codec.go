package server

import (
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Codec 线上编解码边界：核心只依赖这个接口，不依赖具体 schema
type Codec interface {
	Name() string
	DecodeAction(b []byte) (PlayerAction, error)
	EncodeSnapshot(view WorldView) ([]byte, error)
}

// DecodeError 入站二进制帧无法解析为合法动作
type DecodeError struct {
	Codec string
	Err   error
}

func (e *DecodeError) Error() string { return fmt.Sprintf("decode %s: %v", e.Codec, e.Err) }
func (e *DecodeError) Unwrap() error { return e.Err }

// NewCodec 按配置名选择编解码器
func NewCodec(name string) (Codec, error) {
	switch name {
	case CodecMsgpack:
		return MsgpackCodec{}, nil
	case CodecJSON:
		return JSONCodec{}, nil
	default:
		return nil, fmt.Errorf("codec %q: %w", name, ErrInvalidConfig)
	}
}

// msgpack 线上结构：控制信号为数值码数组（[]uint8 会被编码为 bin，这里用 []int）
type msgpackAction struct {
	Actions []int `msgpack:"actions"`
}

type msgpackTank struct {
	ID  string     `msgpack:"id"`
	Pos [2]float64 `msgpack:"pos"`
	Vel [2]float64 `msgpack:"vel"`
}

type msgpackSnapshot struct {
	Tick  uint64        `msgpack:"tick"`
	Tanks []msgpackTank `msgpack:"tanks"`
}

// controlFromCode 超出范围的数值码一律视为 ControlUnknown，由 Validate 拒绝
func controlFromCode(code int) Control {
	if code <= int(ControlUnknown) || code > int(ControlRight) {
		return ControlUnknown
	}
	return Control(code)
}

// MsgpackCodec 默认的二进制编解码器
type MsgpackCodec struct{}

func (MsgpackCodec) Name() string { return CodecMsgpack }

func (c MsgpackCodec) DecodeAction(b []byte) (PlayerAction, error) {
	var m msgpackAction
	if err := msgpack.Unmarshal(b, &m); err != nil {
		return PlayerAction{}, &DecodeError{Codec: c.Name(), Err: err}
	}
	a := PlayerAction{Controls: make([]Control, len(m.Actions))}
	for i, code := range m.Actions {
		a.Controls[i] = controlFromCode(code)
	}
	if err := a.Validate(); err != nil {
		return PlayerAction{}, &DecodeError{Codec: c.Name(), Err: err}
	}
	return a, nil
}

func (MsgpackCodec) EncodeSnapshot(view WorldView) ([]byte, error) {
	m := msgpackSnapshot{Tick: view.Tick, Tanks: make([]msgpackTank, len(view.Tanks))}
	for i, t := range view.Tanks {
		m.Tanks[i] = msgpackTank{
			ID:  t.PlayerID,
			Pos: [2]float64{t.Position.X, t.Position.Y},
			Vel: [2]float64{t.Velocity.X, t.Velocity.Y},
		}
	}
	return msgpack.Marshal(&m)
}

// EncodeAction 客户端侧编码，供测试与调试客户端使用
func (MsgpackCodec) EncodeAction(a PlayerAction) ([]byte, error) {
	m := msgpackAction{Actions: make([]int, len(a.Controls))}
	for i, c := range a.Controls {
		m.Actions[i] = int(c)
	}
	return msgpack.Marshal(&m)
}

// DecodeSnapshot 客户端侧解码
func (c MsgpackCodec) DecodeSnapshot(b []byte) (WorldView, error) {
	var m msgpackSnapshot
	if err := msgpack.Unmarshal(b, &m); err != nil {
		return WorldView{}, &DecodeError{Codec: c.Name(), Err: err}
	}
	view := WorldView{Tick: m.Tick, Tanks: make([]TankState, len(m.Tanks))}
	for i, t := range m.Tanks {
		view.Tanks[i] = TankState{
			PlayerID: t.ID,
			Position: Vec2{X: t.Pos[0], Y: t.Pos[1]},
			Velocity: Vec2{X: t.Vel[0], Y: t.Vel[1]},
		}
	}
	return view, nil
}

// JSONAction JSON 线上动作，示例：{"actions":["up","left"]}
type JSONAction struct {
	Actions []string `json:"actions" jsonschema:"title=Controls,description=Ordered control signals applied on the next tick,minItems=1,enum=up,enum=down,enum=left,enum=right"`
}

// JSONSnapshot JSON 线上世界快照
type JSONSnapshot struct {
	Type  string      `json:"type" jsonschema:"enum=state"`
	Tick  uint64      `json:"tick" jsonschema:"description=Simulation tick that produced this snapshot"`
	Tanks []TankState `json:"tanks"`
}

// JSONCodec 便于浏览器调试的文本 schema，仍以二进制帧承载
type JSONCodec struct{}

func (JSONCodec) Name() string { return CodecJSON }

func (c JSONCodec) DecodeAction(b []byte) (PlayerAction, error) {
	var m JSONAction
	if err := json.Unmarshal(b, &m); err != nil {
		return PlayerAction{}, &DecodeError{Codec: c.Name(), Err: err}
	}
	a := PlayerAction{Controls: make([]Control, len(m.Actions))}
	for i, name := range m.Actions {
		a.Controls[i] = ParseControl(name)
	}
	if err := a.Validate(); err != nil {
		return PlayerAction{}, &DecodeError{Codec: c.Name(), Err: err}
	}
	return a, nil
}

func (JSONCodec) EncodeSnapshot(view WorldView) ([]byte, error) {
	tanks := view.Tanks
	if tanks == nil {
		tanks = []TankState{}
	}
	return json.Marshal(JSONSnapshot{Type: "state", Tick: view.Tick, Tanks: tanks})
}

func (JSONCodec) EncodeAction(a PlayerAction) ([]byte, error) {
	m := JSONAction{Actions: make([]string, len(a.Controls))}
	for i, c := range a.Controls {
		m.Actions[i] = c.String()
	}
	return json.Marshal(m)
}

func (c JSONCodec) DecodeSnapshot(b []byte) (WorldView, error) {
	var m JSONSnapshot
	if err := json.Unmarshal(b, &m); err != nil {
		return WorldView{}, &DecodeError{Codec: c.Name(), Err: err}
	}
	return WorldView{Tick: m.Tick, Tanks: m.Tanks}, nil
}
