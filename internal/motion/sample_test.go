package motion

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeAngle(t *testing.T) {
	cases := []struct {
		in, want float64
	}{
		{0, 0},
		{180, 180},
		{-180, 180},
		{190, -170},
		{-190, 170},
		{360, 0},
		{-360, 0},
		{720, 0},
		{540, 180},
		{179.5, 179.5},
		{-179.5, -179.5},
		{-1000, 80},
	}
	for _, tc := range cases {
		got := NormalizeAngle(tc.in)
		assert.InDelta(t, tc.want, got, 1e-9, "NormalizeAngle(%v)", tc.in)
		assert.Greater(t, got, -180.0)
		assert.LessOrEqual(t, got, 180.0)
	}
}

func TestNormalizeAngleCongruent(t *testing.T) {
	for _, in := range []float64{13.7, -91.2, 451.0, -3600.5, 179.999} {
		got := NormalizeAngle(in)
		diff := math.Mod(in-got, 360)
		assert.InDelta(t, 0, math.Abs(diff), 1e-9, "input %v", in)
	}
}

func TestAngleDeltaWrapSafe(t *testing.T) {
	// Baseline 170, current -170: the short way round is 20 degrees.
	assert.InDelta(t, 20, AngleDelta(-170, 170), 1e-9)
	assert.InDelta(t, -20, AngleDelta(170, -170), 1e-9)
	assert.InDelta(t, 0, AngleDelta(45, 45), 1e-9)
}

func TestQuaternionEulerIdentity(t *testing.T) {
	pitch, roll, yaw := Quaternion{W: 1}.Euler()
	assert.InDelta(t, 0, pitch, 1e-9)
	assert.InDelta(t, 0, roll, 1e-9)
	assert.InDelta(t, 0, yaw, 1e-9)
}

func TestQuaternionEulerKnownRotations(t *testing.T) {
	// 90 degree rotation about X: roll = 90.
	s := math.Sin(math.Pi / 4)
	c := math.Cos(math.Pi / 4)

	_, roll, _ := Quaternion{W: c, X: s}.Euler()
	assert.InDelta(t, 90, roll, 1e-6)

	// 90 degree rotation about Z: yaw = 90.
	_, _, yaw := Quaternion{W: c, Z: s}.Euler()
	assert.InDelta(t, 90, yaw, 1e-6)

	// 90 degree rotation about Y hits the asin saturation branch.
	pitch, _, _ := Quaternion{W: c, Y: s}.Euler()
	assert.InDelta(t, 90, pitch, 1e-6)
}

func TestQuaternionEulerDegenerateInput(t *testing.T) {
	// All-zero quaternion must still produce a value, not NaN from a domain
	// error in asin.
	pitch, roll, yaw := Quaternion{}.Euler()
	assert.False(t, math.IsNaN(pitch))
	assert.False(t, math.IsNaN(roll))
	assert.False(t, math.IsNaN(yaw))
}

func TestNewSampleNormalizesAngles(t *testing.T) {
	ts := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s := NewSample(ts, Quaternion{W: 1}, Vector3{X: 0.1}, Vector3{Z: -1}, Vector3{})

	assert.Equal(t, ts, s.Timestamp)
	assert.Greater(t, s.Pitch, -180.0)
	assert.LessOrEqual(t, s.Pitch, 180.0)
	assert.Equal(t, 0.1, s.Acceleration.X)
	assert.Equal(t, -1.0, s.Gravity.Z)
}
