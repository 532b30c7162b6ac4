package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/edaniels/golog"
	"go.viam.com/test"

	"go.viam.com/fieldsim/kinematics"
)

func TestFromReaderValidate(t *testing.T) {
	logger := golog.NewTestLogger(t)

	_, err := FromReader("somepath", strings.NewReader(""), logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "EOF")

	_, err = FromReader("somepath", strings.NewReader(`{"robot": 1}`), logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "unmarshal")

	_, err = FromReader("somepath", strings.NewReader(`{"cloud": {}}`), logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "unknown field")

	conf, err := FromReader("somepath", strings.NewReader(`{}`), logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, conf.ConfigFilePath, test.ShouldEqual, "somepath")
	test.That(t, *conf.Robot.StartPosition, test.ShouldResemble, Pose{X: 15.5, Y: 8.5, Theta: 45})
	test.That(t, conf.Robot.LeftWheel, test.ShouldEqual, "A")
	test.That(t, conf.Robot.RightWheel, test.ShouldEqual, "B")
	test.That(t, conf.Robot.WheelDiameterMM, test.ShouldEqual, 56)
	test.That(t, conf.Robot.AxleTrackMM, test.ShouldEqual, 112)
	test.That(t, conf.Robot.Slip, test.ShouldEqual, kinematics.DefaultSlip)
	test.That(t, conf.Simulation.FrameRate, test.ShouldEqual, 60)
	test.That(t, conf.Simulation.TimeoutMS, test.ShouldEqual, DefaultTimeoutMS)
	test.That(t, *conf.Simulation.PauseOnModel, test.ShouldBeTrue)

	_, err = FromReader("somepath", strings.NewReader(`{"robot": {"left_wheel": "G"}}`), logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "robot")
	test.That(t, err.Error(), test.ShouldContainSubstring, "left_wheel")

	_, err = FromReader("somepath", strings.NewReader(`{"maneuvers": [{}]}`), logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "maneuvers.0")
	test.That(t, err.Error(), test.ShouldContainSubstring, `"type" is required`)

	_, err = FromReader("somepath", strings.NewReader(`{"field": {"obstacles": [{"category": "wall"}]}}`), logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "field.obstacles.0")
	test.That(t, err.Error(), test.ShouldContainSubstring, `"boxes" is required`)
}

func TestRead(t *testing.T) {
	t.Setenv("FIELDSIM_TEST_WHEEL", "C")
	path := filepath.Join(t.TempDir(), "sim.json")
	body := `{
		"robot": {"left_wheel": "${FIELDSIM_TEST_WHEEL}", "right_wheel": "d"},
		"maneuvers": [{"type": "straight", "args": {"distance_mm": 100}}]
	}`
	test.That(t, os.WriteFile(path, []byte(body), 0o600), test.ShouldBeNil)

	conf, err := Read(path, golog.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, conf.ConfigFilePath, test.ShouldEqual, path)
	test.That(t, conf.Robot.LeftWheel, test.ShouldEqual, "C")
	test.That(t, conf.Maneuvers, test.ShouldHaveLength, 1)

	_, err = Read(filepath.Join(t.TempDir(), "missing.json"), golog.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
}
