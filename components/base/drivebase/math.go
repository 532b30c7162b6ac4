package drivebase

import "math"

// completionEpsilon is how close a remaining distance (mm) or angle (deg) must get to zero for a
// maneuver to count as finished.
const completionEpsilon = 1e-6

// linearSpeedToWheel converts a ground speed in mm/s into a wheel speed in deg/s.
func (cfg *Config) linearSpeedToWheel(mmPerSec float64) float64 {
	return 360 * mmPerSec / (math.Pi * cfg.WheelDiameterMM)
}

// turnRateToWheel converts a robot turn rate in deg/s into the wheel speed difference, in deg/s,
// each wheel adds or removes from the drive speed.
func (cfg *Config) turnRateToWheel(degsPerSec float64) float64 {
	return degsPerSec * cfg.AxleTrackMM / cfg.WheelDiameterMM
}

// straightDistanceToWheel returns how far, in degrees, both wheels turn to cover distanceMM.
func (cfg *Config) straightDistanceToWheel(distanceMM float64) float64 {
	return 360 * distanceMM / (math.Pi * cfg.WheelDiameterMM)
}

// spinMath returns how far, in degrees, the left wheel turns to spin the robot in place by
// angleDeg. The right wheel turns the same amount the other way.
func (cfg *Config) spinMath(angleDeg float64) float64 {
	return angleDeg * cfg.AxleTrackMM / cfg.WheelDiameterMM
}

// distanceMoved returns the ground distance, in mm, covered by the center of the robot when the
// wheels turn by deltaL and deltaR degrees.
func (cfg *Config) distanceMoved(deltaL, deltaR float64) float64 {
	return cfg.WheelDiameterMM * math.Pi * (deltaL + deltaR) / 2 / 360
}

// angleTurned returns the clockwise turn, in degrees, caused by the wheels turning by deltaL and
// deltaR degrees.
func (cfg *Config) angleTurned(deltaL, deltaR float64) float64 {
	return (deltaL - deltaR) / 2 * cfg.WheelDiameterMM / cfg.AxleTrackMM
}

// curveRatio is the inner to outer wheel speed ratio when the center of the robot follows a
// circle of radiusMM.
func (cfg *Config) curveRatio(radiusMM float64) float64 {
	r := math.Abs(radiusMM)
	half := cfg.AxleTrackMM / 2
	return (r - half) / (r + half)
}

// curveOuterDegrees returns how far, in degrees, the outer wheel turns to change the heading by
// headingDeg along a curve with the given inner to outer ratio.
func (cfg *Config) curveOuterDegrees(headingDeg, ratio float64) float64 {
	return math.Abs(headingDeg) * 2 * cfg.AxleTrackMM / (cfg.WheelDiameterMM * (1 - ratio))
}

// reached reports whether remaining has run out, measured in the direction of target.
func reached(remaining, target float64) bool {
	if target < 0 {
		return remaining >= -completionEpsilon
	}
	return remaining <= completionEpsilon
}
