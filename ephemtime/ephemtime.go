// Package ephemtime converts between time.Time epochs and the Julian-date
// convention ephemeris data is traditionally expressed in, via the same
// soniakeys/meeus/julian package ("julian.TimeToJD(dt)").
package ephemtime

import (
	"time"

	"github.com/soniakeys/meeus/julian"
)

// JulianDate returns the Julian date of t (converted to UTC first, as the
// teacher's celestial.go comments require: "all ephemeris data is in
// UTC").
func JulianDate(t time.Time) float64 {
	return julian.TimeToJD(t.UTC())
}

// SecondsSinceEpoch returns the number of seconds elapsed from epoch to t,
// the flat float64 time coordinate every package in this module (ct, dt,
// integrator, ephemeris) actually integrates on.
func SecondsSinceEpoch(epoch, t time.Time) float64 {
	return t.Sub(epoch).Seconds()
}

// TimeFromSecondsSinceEpoch is the inverse of SecondsSinceEpoch.
func TimeFromSecondsSinceEpoch(epoch time.Time, seconds float64) time.Time {
	return epoch.Add(time.Duration(seconds * float64(time.Second)))
}
