// Package utils contains small numeric helpers shared by the simulation packages.
package utils

import "math"

// MMPerInch is the number of millimeters in an inch.
const MMPerInch = 25.4

// DegToRad converts degrees to radians.
func DegToRad(degrees float64) float64 {
	return degrees * math.Pi / 180
}

// RadToDeg converts radians to degrees.
func RadToDeg(radians float64) float64 {
	return radians * 180 / math.Pi
}

// MMToInches converts millimeters to inches.
func MMToInches(mm float64) float64 {
	return mm / MMPerInch
}

// InchesToMM converts inches to millimeters.
func InchesToMM(in float64) float64 {
	return in * MMPerInch
}

// Float64AlmostEqual compares two float64s and returns if the difference between them is less
// than epsilon.
func Float64AlmostEqual(a, b, epsilon float64) bool {
	return math.Abs(a-b) < epsilon
}

// Sign returns -1, 0 or 1 matching the sign of n.
func Sign(n float64) float64 {
	switch {
	case n > 0:
		return 1
	case n < 0:
		return -1
	}
	return 0
}

// ClampMagnitude limits n to [-limit, limit], keeping its sign.
func ClampMagnitude(n, limit float64) float64 {
	if n > limit {
		return limit
	}
	if n < -limit {
		return -limit
	}
	return n
}

// IsFinite reports whether every value is neither NaN nor infinite.
func IsFinite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
