package utils

import "math"

// F16 is a 16.16 fixed-point value. The actuator layer takes its direction
// setpoint in this format so it can be forwarded to integer-only motor
// controllers without another conversion.
type F16 int32

const f16One = 1 << 16

// F16FromFloat converts a float to fixed point, rounding to the nearest
// representable value.
func F16FromFloat(f float64) F16 {
	return F16(math.Round(f * f16One))
}

// F16FromInt converts an integer to fixed point.
func F16FromInt(i int16) F16 {
	return F16(int32(i) << 16)
}

// Float converts back to a float.
func (f F16) Float() float64 {
	return float64(f) / f16One
}

// Int returns the integer part, truncating toward negative infinity.
func (f F16) Int() int16 {
	return int16(f >> 16)
}

// Neg returns the negated value.
func (f F16) Neg() F16 {
	return -f
}
