package server

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Vec2 二维向量（屏幕坐标系：y 轴向下）
type Vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// 四个控制方向的单位向量，UP 使 y 减小
var (
	VecUp    = Vec2{X: 0, Y: -1}
	VecDown  = Vec2{X: 0, Y: 1}
	VecLeft  = Vec2{X: -1, Y: 0}
	VecRight = Vec2{X: 1, Y: 0}
)

func (v Vec2) Add(o Vec2) Vec2 { return Vec2{X: v.X + o.X, Y: v.Y + o.Y} }

func (v Vec2) Scale(k float64) Vec2 { return Vec2{X: v.X * k, Y: v.Y * k} }

func (v Vec2) Len() float64 { return math.Hypot(v.X, v.Y) }

func (v Vec2) IsZero() bool { return v.X == 0 && v.Y == 0 }

// Rect 轴对齐矩形，用于世界边界与出生区域
type Rect struct {
	MinX float64 `json:"minX"`
	MinY float64 `json:"minY"`
	MaxX float64 `json:"maxX"`
	MaxY float64 `json:"maxY"`
}

// Valid 坐标均为有限值且宽高为正
func (r Rect) Valid() bool {
	for _, f := range [...]float64{r.MinX, r.MinY, r.MaxX, r.MaxY} {
		if !finite(f) {
			return false
		}
	}
	return r.MaxX > r.MinX && r.MaxY > r.MinY
}

func finite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }

func (r Rect) Contains(p Vec2) bool {
	return p.X >= r.MinX && p.X <= r.MaxX && p.Y >= r.MinY && p.Y <= r.MaxY
}

// ContainsRect 判断 o 是否完全落在 r 内
func (r Rect) ContainsRect(o Rect) bool {
	return o.MinX >= r.MinX && o.MaxX <= r.MaxX && o.MinY >= r.MinY && o.MaxY <= r.MaxY
}

// Clamp 将点裁剪进矩形，返回每个轴是否发生了裁剪
func (r Rect) Clamp(p Vec2) (out Vec2, hitX, hitY bool) {
	out = p
	if out.X < r.MinX {
		out.X, hitX = r.MinX, true
	} else if out.X > r.MaxX {
		out.X, hitX = r.MaxX, true
	}
	if out.Y < r.MinY {
		out.Y, hitY = r.MinY, true
	} else if out.Y > r.MaxY {
		out.Y, hitY = r.MaxY, true
	}
	return out, hitX, hitY
}

func (r Rect) String() string {
	return fmt.Sprintf("%g,%g,%g,%g", r.MinX, r.MinY, r.MaxX, r.MaxY)
}

// ParseRect 解析 "minX,minY,maxX,maxY"
func ParseRect(s string) (Rect, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return Rect{}, fmt.Errorf("rect %q: want 4 comma separated numbers", s)
	}
	var vals [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return Rect{}, fmt.Errorf("rect %q: %w", s, err)
		}
		vals[i] = f
	}
	r := Rect{MinX: vals[0], MinY: vals[1], MaxX: vals[2], MaxY: vals[3]}
	if !r.Valid() {
		return Rect{}, fmt.Errorf("rect %q: empty area", s)
	}
	return r, nil
}
