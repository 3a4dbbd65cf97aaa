// Package geometry 提供答题卡校正所需的二维几何基础类型。
package geometry

import "math"

type Point2D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (p Point2D) Distance(q Point2D) float64 {
	dx := p.X - q.X
	dy := p.Y - q.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// AffineTransform 仿射变换：
//
//	x' = A*x + B*y + TX
//	y' = C*x + D*y + TY
type AffineTransform struct {
	A, B, TX float64
	C, D, TY float64
}

// Identity 单位变换
func Identity() AffineTransform {
	return AffineTransform{A: 1, D: 1}
}

func (t AffineTransform) Apply(p Point2D) Point2D {
	return Point2D{
		X: t.A*p.X + t.B*p.Y + t.TX,
		Y: t.C*p.X + t.D*p.Y + t.TY,
	}
}

// Invert 返回逆变换。行列式接近 0 时返回 ok=false。
func (t AffineTransform) Invert() (AffineTransform, bool) {
	det := t.A*t.D - t.B*t.C
	if math.Abs(det) < 1e-12 {
		return AffineTransform{}, false
	}
	inv := AffineTransform{
		A: t.D / det,
		B: -t.B / det,
		C: -t.C / det,
		D: t.A / det,
	}
	inv.TX = -(inv.A*t.TX + inv.B*t.TY)
	inv.TY = -(inv.C*t.TX + inv.D*t.TY)
	return inv, true
}
