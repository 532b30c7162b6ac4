package drivebase

// A HeadingSource reports the robot's gyro heading in degrees, clockwise positive.
type HeadingSource interface {
	Heading() float64
}

// A GyroCorrector adjusts straight line wheel speeds from the heading error, the current gyro
// heading minus the heading the maneuver started at.
type GyroCorrector interface {
	Correct(headingError, speedL, speedR float64) (float64, float64)
}

// ProportionalCorrector shifts Gain deg/s of wheel speed per degree of heading error from the
// left wheel to the right one.
type ProportionalCorrector struct {
	Gain float64
}

// Correct implements GyroCorrector.
func (p ProportionalCorrector) Correct(headingError, speedL, speedR float64) (float64, float64) {
	c := p.Gain * headingError
	return speedL - c, speedR + c
}
