package fixed

// Angles are fixed-point radians. The constants are rounded once and baked in
// so every build sees the same bits.
const (
	Pi     Fixed = 205887
	TwoPi  Fixed = 411775
	HalfPi Fixed = 102944

	Degree     Fixed = 1144 // Pi / 180
	TenDegrees Fixed = 11438
)

// cordicAtan[i] = atan(2^-i) in fixed-point radians.
var cordicAtan = [...]Fixed{
	51472, 30386, 16055, 8150, 4091, 2047, 1024, 512,
	256, 128, 64, 32, 16, 8, 4, 2, 1,
}

// Sin evaluates a Taylor polynomial on the first quadrant after range reduction.
func Sin(angle Fixed) Fixed {
	r := angle % TwoPi
	if r < 0 {
		r += TwoPi
	}
	negative := false
	if r >= Pi {
		negative = true
		r -= Pi
	}
	if r > HalfPi {
		r = Pi - r
	}

	r2 := Mul(r, r)
	sum := r
	term := r
	for k := int64(1); k <= 5; k++ {
		term = -Mul(term, r2) / ((2 * k) * (2*k + 1))
		sum += term
	}
	sum = Clamp(sum, 0, One)
	if negative {
		return -sum
	}
	return sum
}

// Cos is Sin shifted by a quarter turn.
func Cos(angle Fixed) Fixed {
	return Sin(angle + HalfPi)
}

// Atan2 returns the angle of (x, y) in (-Pi, Pi] using integer CORDIC with a
// fixed iteration count. The zero vector yields 0.
func Atan2(y, x Fixed) Fixed {
	if x == 0 && y == 0 {
		return 0
	}
	for Abs(x) > 1<<60 || Abs(y) > 1<<60 {
		x >>= 1
		y >>= 1
	}

	var base Fixed
	if x < 0 {
		if y >= 0 {
			base = Pi
		} else {
			base = -Pi
		}
		x, y = -x, -y
	}

	var z Fixed
	for i, step := range cordicAtan {
		if y > 0 {
			x, y, z = x+(y>>i), y-(x>>i), z+step
		} else {
			x, y, z = x-(y>>i), y+(x>>i), z-step
		}
	}
	return base + z
}
