// Package astro computes sun and moon positions and daily sun event times
// for a fixed observer location.
//
// The computations come from github.com/sixdouglas/suncalc. This package
// adds degree renderings and drops sun events that do not occur on a given
// day (polar day and night). Accuracy is about a minute for event times and
// a fraction of a degree for positions.
//
// # Conventions
//
//   - Azimuth in SunPosition.Azimuth / MoonPosition.Azimuth is measured in
//     radians from south, positive towards west (suncalc convention).
//   - AzimuthDegrees is measured clockwise from north (0 = north, 90 = east,
//     180 = south), which is what window orientation is configured in.
//   - Altitude is measured in radians above the horizon.
//
// # Usage
//
//	eph := astro.New(51.48, -0.01)
//	pos := eph.SunPosition(time.Now())
//	times := eph.SunTimes(time.Now())
//	sunrise := times[astro.Sunrise]
//
// # Thread Safety
//
// Ephemeris is immutable and safe for concurrent use.
package astro
