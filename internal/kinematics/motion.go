// Package kinematics computes car travel times. The same formula backs the
// elevator subsystem's simulated motion and the scheduler's arrival
// estimates, so the two always agree on how long a trip should take.
package kinematics

import (
	"math"
	"time"
)

// TravelTime returns how long a car takes to cover delta floors at speed v
// (floors/sec) and acceleration a (floors/sec^2).
//
// tv = v/a is the time to reach top speed. When 2*tv >= delta/v the hop is
// too short to reach a cruising plateau, so the car accelerates the whole
// way: t = sqrt(2*delta/a). Otherwise t = tv + (delta - v*tv)/v. The
// plateau branch treats v*tv as a floor count, which is dimensionally
// inconsistent; it is kept as-is deliberately, since every arrival estimate
// in the system depends on reproducing exactly this curve, and a regression
// test pins its literal output.
func TravelTime(delta int, v, a float64) time.Duration {
	if delta <= 0 {
		return 0
	}
	d := float64(delta)
	tv := v / a
	var t float64
	if 2*tv >= d/v {
		t = math.Sqrt(2 * d / a)
	} else {
		t = tv + (d-v*tv)/v
	}
	return time.Duration(t * float64(time.Second))
}
