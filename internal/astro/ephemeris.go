package astro

import (
	"math"
	"time"

	"github.com/sixdouglas/suncalc"
)

const toDegs = 180 / math.Pi

// Names of the sun events returned by SunTimes.
const (
	SolarNoon     = string(suncalc.SolarNoon)
	Nadir         = string(suncalc.Nadir)
	Sunrise       = string(suncalc.Sunrise)
	Sunset        = string(suncalc.Sunset)
	SunriseEnd    = string(suncalc.SunriseEnd)
	SunsetStart   = string(suncalc.SunsetStart)
	Dawn          = string(suncalc.Dawn)
	Dusk          = string(suncalc.Dusk)
	NauticalDawn  = string(suncalc.NauticalDawn)
	NauticalDusk  = string(suncalc.NauticalDusk)
	NightEnd      = string(suncalc.NightEnd)
	Night         = string(suncalc.Night)
	GoldenHourEnd = string(suncalc.GoldenHourEnd)
	GoldenHour    = string(suncalc.GoldenHour)
)

// sunEventAngles pairs a sun altitude (degrees) with its morning and evening
// event names. An event pair exists only on days where the sun crosses it.
var sunEventAngles = []struct {
	angle         float64
	rise, setting suncalc.DayTimeName
}{
	{-0.833, suncalc.Sunrise, suncalc.Sunset},
	{-0.3, suncalc.SunriseEnd, suncalc.SunsetStart},
	{-6, suncalc.Dawn, suncalc.Dusk},
	{-12, suncalc.NauticalDawn, suncalc.NauticalDusk},
	{-18, suncalc.NightEnd, suncalc.Night},
	{6, suncalc.GoldenHourEnd, suncalc.GoldenHour},
}

// SunPosition describes where the sun is for an observer at a given instant.
type SunPosition struct {
	Time            time.Time `json:"ts"`
	Azimuth         float64   `json:"azimuth"`
	Altitude        float64   `json:"altitude"`
	AzimuthDegrees  float64   `json:"azimuthDegrees"`
	AltitudeDegrees float64   `json:"altitudeDegrees"`
	AltitudeRadians float64   `json:"altitudeRadians"`
}

// MoonPosition describes where the moon is for an observer at a given instant.
type MoonPosition struct {
	Time             time.Time `json:"ts"`
	Azimuth          float64   `json:"azimuth"`
	Altitude         float64   `json:"altitude"`
	AzimuthDegrees   float64   `json:"azimuthDegrees"`
	AltitudeDegrees  float64   `json:"altitudeDegrees"`
	Distance         float64   `json:"distance"`
	ParallacticAngle float64   `json:"parallacticAngle"`
}

// MoonIllumination describes the lit part of the moon.
type MoonIllumination struct {
	Fraction float64 `json:"fraction"`
	Phase    float64 `json:"phase"`
	Angle    float64 `json:"angle"`
}

// Ephemeris computes positions for one observer location.
type Ephemeris struct {
	latitude  float64
	longitude float64
}

// New creates an Ephemeris for the given latitude and longitude in degrees.
func New(latitude, longitude float64) *Ephemeris {
	return &Ephemeris{latitude: latitude, longitude: longitude}
}

// Latitude returns the observer latitude in degrees.
func (e *Ephemeris) Latitude() float64 { return e.latitude }

// Longitude returns the observer longitude in degrees.
func (e *Ephemeris) Longitude() float64 { return e.longitude }

// SunPosition returns the sun's azimuth and altitude at t.
func (e *Ephemeris) SunPosition(t time.Time) SunPosition {
	p := suncalc.GetPosition(t, e.latitude, e.longitude)
	return SunPosition{
		Time:            t,
		Azimuth:         p.Azimuth,
		Altitude:        p.Altitude,
		AzimuthDegrees:  180 + p.Azimuth*toDegs,
		AltitudeDegrees: p.Altitude * toDegs,
		AltitudeRadians: p.Altitude,
	}
}

// SunTimes returns the sun event times for the solar day containing day.
//
// Events that do not happen on that day (polar day or night) are omitted
// from the map.
func (e *Ephemeris) SunTimes(day time.Time) map[string]time.Time {
	times := suncalc.GetTimes(day, e.latitude, e.longitude)

	noon := times[suncalc.SolarNoon].Value.UTC()
	result := map[string]time.Time{
		SolarNoon: noon,
		Nadir:     times[suncalc.Nadir].Value.UTC(),
	}

	// The sun peaks at noon and bottoms out half a day away.
	high := e.SunPosition(noon).AltitudeDegrees
	low := math.Min(e.SunPosition(noon.Add(-12*time.Hour)).AltitudeDegrees,
		e.SunPosition(noon.Add(12*time.Hour)).AltitudeDegrees)

	for _, ev := range sunEventAngles {
		if ev.angle >= high || ev.angle <= low {
			continue
		}
		rise, set := times[ev.rise].Value.UTC(), times[ev.setting].Value.UTC()
		if !sameSolarDay(noon, rise) || !sameSolarDay(noon, set) {
			continue
		}
		result[string(ev.rise)] = rise
		result[string(ev.setting)] = set
	}
	return result
}

// sameSolarDay reports whether t lies within half a day of noon.
func sameSolarDay(noon, t time.Time) bool {
	d := t.Sub(noon)
	return d >= -12*time.Hour && d <= 12*time.Hour
}

// MoonPosition returns the moon's azimuth, altitude and distance at t.
// Altitude includes atmospheric refraction.
func (e *Ephemeris) MoonPosition(t time.Time) MoonPosition {
	p := suncalc.GetMoonPosition(t, e.latitude, e.longitude)
	return MoonPosition{
		Time:             t,
		Azimuth:          p.Azimuth,
		Altitude:         p.Altitude,
		AzimuthDegrees:   180 + p.Azimuth*toDegs,
		AltitudeDegrees:  p.Altitude * toDegs,
		Distance:         p.Distance,
		ParallacticAngle: p.ParallacticAngle,
	}
}

// MoonIllumination returns the illuminated fraction and phase of the moon at t.
// It does not depend on the observer location.
func (e *Ephemeris) MoonIllumination(t time.Time) MoonIllumination {
	ill := suncalc.GetMoonIllumination(t)
	return MoonIllumination{
		Fraction: ill.Fraction,
		Phase:    ill.Phase,
		Angle:    ill.Angle,
	}
}
