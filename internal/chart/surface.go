// Package chart maps chart documents onto plotting surfaces. The Canvas
// surface renders PNG or SVG images with go-chart.
package chart

import (
	"time"

	"github.com/hyp3rd/ewrap"

	"perfstore/internal/sentinel"
)

// Series is one line of a chart. Times is used instead of X on time axes.
// Err, when set, holds a symmetric error per point drawn as a band.
type Series struct {
	Name  string
	X     []float64
	Times []time.Time
	Y     []float64
	Err   []float64
}

// Len is the number of points.
func (s Series) Len() int {
	return len(s.Y)
}

// Validate checks that the coordinates are aligned.
func (s Series) Validate(timeAxis bool) error {
	xs := len(s.X)
	if timeAxis {
		xs = len(s.Times)
	}

	if xs != len(s.Y) {
		return ewrap.Wrapf(sentinel.ErrInvalidArgument, "series %q has %d x values and %d y values", s.Name, xs, len(s.Y))
	}

	if s.Err != nil && len(s.Err) != len(s.Y) {
		return ewrap.Wrapf(sentinel.ErrInvalidArgument, "series %q has %d errors for %d points", s.Name, len(s.Err), len(s.Y))
	}

	return nil
}

// Layout configures the axes of a target.
type Layout struct {
	Title    string
	XName    string
	YName    string
	TimeAxis bool
	Width    int
	Height   int
}

// Surface receives one plot call per series, addressed to a named target.
type Surface interface {
	Plot(target string, series Series, layout Layout) error
}
