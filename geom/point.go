package geom

import (
	"math"
	"strconv"
)

// Axis identifies one of the three coordinate axes.
type Axis int

const (
	AxisX Axis = iota
	AxisY
	AxisZ
)

func (a Axis) String() string {
	switch a {
	case AxisX:
		return "x"
	case AxisY:
		return "y"
	case AxisZ:
		return "z"
	default:
		return "axis(" + strconv.Itoa(int(a)) + ")"
	}
}

// Point is a position in 3D space. Points are values and are copied
// wherever they are stored.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func NewPoint(x, y, z float64) Point {
	return Point{X: x, Y: y, Z: z}
}

// Set overwrites all three coordinates.
func (p *Point) Set(x, y, z float64) {
	p.X = x
	p.Y = y
	p.Z = z
}

// Equal reports whether both points have exactly the same coordinates.
func (p Point) Equal(o Point) bool {
	return p.X == o.X && p.Y == o.Y && p.Z == o.Z
}

// Coord returns the coordinate of p on the given axis.
func (p Point) Coord(a Axis) float64 {
	switch a {
	case AxisX:
		return p.X
	case AxisY:
		return p.Y
	default:
		return p.Z
	}
}

// IsValid reports whether every coordinate is a finite number.
func (p Point) IsValid() bool {
	return isFinite(p.X) && isFinite(p.Y) && isFinite(p.Z)
}

func (p Point) String() string {
	return "(" + formatCoord(p.X) + ", " + formatCoord(p.Y) + ", " + formatCoord(p.Z) + ")"
}

func Min(a, b Point) Point {
	return Point{math.Min(a.X, b.X), math.Min(a.Y, b.Y), math.Min(a.Z, b.Z)}
}

func Max(a, b Point) Point {
	return Point{math.Max(a.X, b.X), math.Max(a.Y, b.Y), math.Max(a.Z, b.Z)}
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
