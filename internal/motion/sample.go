// Copyright (c) 2026 Standsense Labs
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package motion defines the unified motion sample model and the capability
// interface implemented by every motion source (serial head tracker, I2C IMU,
// remote MQTT feed, mock).
package motion

import (
	"math"
	"time"
)

// Vector3 is a raw 3-axis sensor reading in the provider's native units.
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Quaternion is a raw device orientation (w, x, y, z).
type Quaternion struct {
	W float64 `json:"w"`
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Sample is one normalized motion reading. Angles are degrees, normalized to
// (-180, 180]. Samples are immutable once created and are not retained by
// consumers.
type Sample struct {
	Timestamp time.Time `json:"timestamp"`

	Pitch float64 `json:"pitch"`
	Roll  float64 `json:"roll"`
	Yaw   float64 `json:"yaw"`

	Acceleration Vector3 `json:"acceleration"`
	Gravity      Vector3 `json:"gravity"`
	RotationRate Vector3 `json:"rotation_rate"`
}

// NewSample converts a raw orientation quaternion plus raw motion vectors into
// a normalized Sample. It never fails; degenerate input still yields a value.
func NewSample(ts time.Time, q Quaternion, accel, gravity, rotation Vector3) Sample {
	pitch, roll, yaw := q.Euler()
	return Sample{
		Timestamp:    ts,
		Pitch:        NormalizeAngle(pitch),
		Roll:         NormalizeAngle(roll),
		Yaw:          NormalizeAngle(yaw),
		Acceleration: accel,
		Gravity:      gravity,
		RotationRate: rotation,
	}
}

// Euler converts the quaternion to pitch, roll and yaw in degrees using the
// standard aerospace sequence:
//
//	roll  = atan2(2(wx+yz), 1-2(x²+y²))
//	pitch = asin(2(wy-zx))
//	yaw   = atan2(2(wz+xy), 1-2(y²+z²))
//
// The asin argument is clamped to [-1, 1]; at gimbal-adjacent orientations
// pitch saturates at ±90° with the sign of the input.
func (q Quaternion) Euler() (pitch, roll, yaw float64) {
	rollRad := math.Atan2(2*(q.W*q.X+q.Y*q.Z), 1-2*(q.X*q.X+q.Y*q.Y))

	sinPitch := 2 * (q.W*q.Y - q.Z*q.X)
	var pitchRad float64
	if math.Abs(sinPitch) >= 1 {
		pitchRad = math.Copysign(math.Pi/2, sinPitch)
	} else {
		pitchRad = math.Asin(sinPitch)
	}

	yawRad := math.Atan2(2*(q.W*q.Z+q.X*q.Y), 1-2*(q.Y*q.Y+q.Z*q.Z))

	const radToDeg = 180.0 / math.Pi
	return pitchRad * radToDeg, rollRad * radToDeg, yawRad * radToDeg
}

// NormalizeAngle reduces a to the range (-180, 180]. Correct for any finite
// input: NormalizeAngle(190) = -170, NormalizeAngle(-190) = 170,
// NormalizeAngle(360) = 0, NormalizeAngle(180) = 180.
func NormalizeAngle(a float64) float64 {
	for a > 180 {
		a -= 360
	}
	for a <= -180 {
		a += 360
	}
	return a
}

// AngleDelta returns the wrap-safe signed difference a-b, normalized to
// (-180, 180]. A baseline of 170° against a current reading of -170° is a
// deviation of 20°, not 340°.
func AngleDelta(a, b float64) float64 {
	return NormalizeAngle(a - b)
}
