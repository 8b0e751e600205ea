package protocol

import (
	"math"

	"github.com/pkg/errors"
)

// Fixed-point parameters of the wire format.
const (
	PositionWidth       = 32
	PositionMantissa    = 16
	OrientationWidth    = 16
	OrientationMantissa = 14
)

var (
	positionFormat    = FixedPoint{Width: PositionWidth, Mantissa: PositionMantissa}
	orientationFormat = FixedPoint{Width: OrientationWidth, Mantissa: OrientationMantissa}
)

// PositionFormat returns the fixed-point format used for position components.
func PositionFormat() FixedPoint { return positionFormat }

// OrientationFormat returns the fixed-point format used for orientation components.
func OrientationFormat() FixedPoint { return orientationFormat }

// FixedPoint describes a float quantized into a signed integer of Width bits
// holding the value scaled by 2^Mantissa.
type FixedPoint struct {
	Width    uint8 // 8, 16 or 32
	Mantissa uint8
}

// Size returns the encoded size in bytes.
func (f FixedPoint) Size() int {
	return int(f.Width) / 8
}

// Unit returns the quantization step, 2^-Mantissa.
func (f FixedPoint) Unit() float64 {
	return math.Ldexp(1, -int(f.Mantissa))
}

// Range returns the smallest and largest representable values.
func (f FixedPoint) Range() (lo, hi float64) {
	limit := math.Ldexp(1, int(f.Width)-1)
	return math.Ldexp(-limit, -int(f.Mantissa)), math.Ldexp(limit-1, -int(f.Mantissa))
}

// Quantize converts v to its fixed-point integer, rounding to nearest.
// NaN, infinities and values outside Range are rejected rather than clamped.
func (f FixedPoint) Quantize(v float32) (int32, error) {
	scaled := math.Round(math.Ldexp(float64(v), int(f.Mantissa)))
	limit := math.Ldexp(1, int(f.Width)-1)
	if math.IsNaN(scaled) || scaled < -limit || scaled > limit-1 {
		return 0, errors.Wrapf(ErrValueOutOfRange, "%v does not fit %d.%d fixed-point", v, f.Width-f.Mantissa, f.Mantissa)
	}
	return int32(scaled), nil
}

// Dequantize converts a fixed-point integer back to a float.
func (f FixedPoint) Dequantize(q int32) float32 {
	return float32(math.Ldexp(float64(q), -int(f.Mantissa)))
}

// put writes q big-endian into dst[:f.Size()].
func (f FixedPoint) put(dst []byte, q int32) {
	u := uint32(q)
	for i := f.Size() - 1; i >= 0; i-- {
		dst[i] = byte(u)
		u >>= 8
	}
}

// get reads a big-endian signed integer from src[:f.Size()].
func (f FixedPoint) get(src []byte) int32 {
	var u uint32
	for i := 0; i < f.Size(); i++ {
		u = u<<8 | uint32(src[i])
	}
	shift := 32 - uint(f.Width)
	return int32(u<<shift) >> shift
}
