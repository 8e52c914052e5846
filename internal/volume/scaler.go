// Package volume holds the numeric mapping between user-facing volume
// percentages and the client's internal volume curve, plus the control
// boundary used to read and write local volumes.
package volume

import "math"

const (
	// DefaultVolume is the client default on the display scale. A user at
	// this level has no custom volume set.
	DefaultVolume = 100

	// MaxVolume is the display-scale ceiling the client allows.
	MaxVolume = 200
)

// Scaler converts between display percentages and internal units. The same
// scaler must be applied everywhere a volume crosses the boundary: capture,
// compare-to-default, restore and listings all go through it.
type Scaler interface {
	ToInternal(display float64) float64
	ToDisplay(internal float64) float64
}

// Identity maps display percentages 1:1 onto internal units.
type Identity struct{}

func (Identity) ToInternal(display float64) float64 { return clampDisplay(display) }
func (Identity) ToDisplay(internal float64) float64 { return clampDisplay(internal) }

// Perceptual applies the client's cube loudness curve: a display percentage
// d maps to (d/100)^3 * 100 internal units.
type Perceptual struct{}

func (Perceptual) ToInternal(display float64) float64 {
	d := clampDisplay(display)
	return math.Pow(d/100, 3) * 100
}

func (Perceptual) ToDisplay(internal float64) float64 {
	if internal < 0 {
		internal = 0
	}
	return clampDisplay(math.Cbrt(internal/100) * 100)
}

func clampDisplay(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > MaxVolume {
		return MaxVolume
	}
	return v
}

// ForCurve returns the scaler for a configured curve name. Unknown names
// fall back to the identity mapping.
func ForCurve(name string) Scaler {
	if name == "perceptual" {
		return Perceptual{}
	}
	return Identity{}
}
