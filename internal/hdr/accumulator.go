package hdr

import (
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

const (
	significantDigits = 3
	lowestTrackable   = 1
	// initial upper bound of the merged histogram; it grows on demand.
	defaultHighestTrackable = int64(time.Hour)
)

// Accumulator merges interval histograms into one distribution. Adding is
// commutative and associative, so percentiles do not depend on the order of Add calls.
type Accumulator struct {
	hist    *hdrhistogram.Histogram
	dropped int64
}

// NewAccumulator returns an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{
		hist: hdrhistogram.New(lowestTrackable, defaultHighestTrackable, significantDigits),
	}
}

// Add merges the interval's distribution. Intervals without a distribution are ignored.
func (a *Accumulator) Add(iv *Interval) {
	if iv == nil || iv.hist == nil {
		return
	}

	a.AddHistogram(iv.hist)
}

// AddHistogram merges h, widening the tracked range first when h holds larger values.
func (a *Accumulator) AddHistogram(h *hdrhistogram.Histogram) {
	if h.TotalCount() == 0 {
		return
	}

	a.ensureRange(h.Max())
	a.dropped += a.hist.Merge(h)
}

func (a *Accumulator) ensureRange(v int64) {
	highest := a.hist.HighestTrackableValue()
	if v <= highest {
		return
	}

	for highest < v {
		highest *= 2
	}

	wider := hdrhistogram.New(lowestTrackable, highest, significantDigits)
	wider.Merge(a.hist)
	a.hist = wider
}

// Histogram returns the merged distribution.
func (a *Accumulator) Histogram() *hdrhistogram.Histogram {
	return a.hist
}

// TotalCount is the number of merged observations.
func (a *Accumulator) TotalCount() int64 {
	return a.hist.TotalCount()
}

// Dropped counts observations that fell outside the tracked range while merging.
func (a *Accumulator) Dropped() int64 {
	return a.dropped
}

// ValueAtPercentile returns the merged value at percentile (0-100), 0 when nothing was recorded.
func (a *Accumulator) ValueAtPercentile(percentile float64) int64 {
	if a.hist.TotalCount() == 0 {
		return 0
	}

	return a.hist.ValueAtQuantile(percentile)
}
