package fixed

import (
	"fmt"
	"math"
)

// Vector2d is a fixed-point 2D vector. Arithmetic helpers return new values;
// the pointer methods are the only mutators.
type Vector2d struct {
	X Fixed
	Y Fixed
}

var (
	Zero  = Vector2d{}
	Up    = Vector2d{0, One}
	Right = Vector2d{One, 0}
	Down  = Vector2d{0, -One}
	Left  = Vector2d{-One, 0}
)

// Vec builds a vector from raw fixed values.
func Vec(x, y Fixed) Vector2d { return Vector2d{X: x, Y: y} }

// VecInt builds a vector from whole units.
func VecInt(x, y int) Vector2d { return Vector2d{X: FromInt(x), Y: FromInt(y)} }

func (v Vector2d) Add(o Vector2d) Vector2d { return Vector2d{v.X + o.X, v.Y + o.Y} }
func (v Vector2d) Sub(o Vector2d) Vector2d { return Vector2d{v.X - o.X, v.Y - o.Y} }
func (v Vector2d) Neg() Vector2d           { return Vector2d{-v.X, -v.Y} }

// Scale multiplies both components by a fixed-point factor.
func (v Vector2d) Scale(f Fixed) Vector2d { return Vector2d{Mul(v.X, f), Mul(v.Y, f)} }

// ScaleInt multiplies both components by a whole number.
func (v Vector2d) ScaleInt(n int64) Vector2d { return Vector2d{v.X * n, v.Y * n} }

// Div divides both components by a fixed-point divisor. Panics on zero.
func (v Vector2d) Div(f Fixed) Vector2d { return Vector2d{Div(v.X, f), Div(v.Y, f)} }

// DivInt divides both components by a whole number.
func (v Vector2d) DivInt(n int64) Vector2d { return Vector2d{v.X / n, v.Y / n} }

func (v Vector2d) Dot(o Vector2d) Fixed   { return Mul(v.X, o.X) + Mul(v.Y, o.Y) }
func (v Vector2d) Cross(o Vector2d) Fixed { return Mul(v.X, o.Y) - Mul(v.Y, o.X) }

// SqrMagnitude is |v|^2 in fixed-point.
func (v Vector2d) SqrMagnitude() Fixed { return Mul(v.X, v.X) + Mul(v.Y, v.Y) }

func (v Vector2d) Magnitude() Fixed { return Sqrt(v.SqrMagnitude()) }

// FastMagnitude is |v|^2 without the final shift; only useful for comparisons.
func (v Vector2d) FastMagnitude() Fixed { return v.X*v.X + v.Y*v.Y }

// Normalized returns the unit vector; zero stays zero.
func (v Vector2d) Normalized() Vector2d {
	mag := v.Magnitude()
	if mag == 0 || mag == One {
		return v
	}
	return Vector2d{Div(v.X, mag), Div(v.Y, mag)}
}

func (v Vector2d) SqrDistance(o Vector2d) Fixed { return v.Sub(o).SqrMagnitude() }
func (v Vector2d) Distance(o Vector2d) Fixed    { return v.Sub(o).Magnitude() }

// FastDistance grows with the distance; it is the unshifted square.
func (v Vector2d) FastDistance(o Vector2d) Fixed { return v.Sub(o).FastMagnitude() }

// Rotated applies a clockwise rotation given as a cos/sin pair.
func (v Vector2d) Rotated(cos, sin Fixed) Vector2d {
	return Vector2d{
		X: Mul(v.X, cos) + Mul(v.Y, sin),
		Y: Mul(v.X, -sin) + Mul(v.Y, cos),
	}
}

// RotatedInverse undoes Rotated.
func (v Vector2d) RotatedInverse(cos, sin Fixed) Vector2d { return v.Rotated(cos, -sin) }

func (v Vector2d) RotatedRight() Vector2d { return Vector2d{v.Y, -v.X} }
func (v Vector2d) RotatedLeft() Vector2d  { return Vector2d{-v.Y, v.X} }

// Lerp moves toward target by amount in [0, One].
func (v Vector2d) Lerp(target Vector2d, amount Fixed) Vector2d {
	return Vector2d{Lerp(v.X, target.X, amount), Lerp(v.Y, target.Y, amount)}
}

// Reflect mirrors v across the given unit axis.
func (v Vector2d) Reflect(axis Vector2d) Vector2d {
	p := v.Dot(axis)
	px, py := Mul(axis.X, p), Mul(axis.Y, p)
	return Vector2d{px + px - v.X, py + py - v.Y}
}

// NotZero reports whether either component is more than one step from zero.
func (v Vector2d) NotZero() bool { return MoreThanEpsilon(v.X) || MoreThanEpsilon(v.Y) }

// Set overwrites both components.
func (v *Vector2d) Set(x, y Fixed) {
	v.X = x
	v.Y = y
}

// AddInPlace accumulates o into v.
func (v *Vector2d) AddInPlace(o Vector2d) {
	v.X += o.X
	v.Y += o.Y
}

// Normalize turns v into its unit vector and returns the previous magnitude.
func (v *Vector2d) Normalize() Fixed {
	mag := v.Magnitude()
	if mag != 0 && mag != One {
		v.X = Div(v.X, mag)
		v.Y = Div(v.Y, mag)
	}
	return mag
}

// LongHash mixes both components.
func (v Vector2d) LongHash() int64 { return v.X*31 + v.Y*7 }

// StateHash is the 32-bit contribution of this vector to the state hash.
func (v Vector2d) StateHash() int32 { return int32(v.LongHash() % math.MaxInt32) }

func (v Vector2d) String() string {
	return fmt.Sprintf("(%.2f, %.2f)", ToFloat(v.X), ToFloat(v.Y))
}

// Rotation is a facing stored as a unit cos/sin pair.
type Rotation struct {
	Cos Fixed
	Sin Fixed
}

// Radian0 faces along +X.
var Radian0 = Rotation{Cos: One, Sin: 0}

// RotationFromAngle builds a rotation from fixed-point radians.
func RotationFromAngle(angle Fixed) Rotation {
	return Rotation{Cos: Cos(angle), Sin: Sin(angle)}
}

// RotationFromVector uses the normalized direction of v; zero yields Radian0.
func RotationFromVector(v Vector2d) Rotation {
	if !v.NotZero() {
		return Radian0
	}
	n := v.Normalized()
	return Rotation{Cos: n.X, Sin: n.Y}
}

// Vector returns the rotation as a direction vector.
func (r Rotation) Vector() Vector2d { return Vector2d{r.Cos, r.Sin} }

// Angle returns the rotation in radians.
func (r Rotation) Angle() Fixed { return Atan2(r.Sin, r.Cos) }

// Rotate applies r to v.
func (r Rotation) Rotate(v Vector2d) Vector2d { return v.Rotated(r.Cos, r.Sin) }
