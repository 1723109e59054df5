// Package hdr turns HDR interval-histogram logs into chart-ready data:
// per-interval series, merged percentile summaries, percentile curves and
// the fixed percentile samples used to compare runs.
package hdr

import (
	"math"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/hyp3rd/ewrap"
)

// Interval is one decoded log record covering a fixed time window.
// Values are in nanoseconds, timestamps in milliseconds since the epoch.
type Interval struct {
	StartMs     int64
	EndMs       int64
	TotalCount  int64
	MeanNanos   float64
	StdDevNanos float64

	hist *hdrhistogram.Histogram
}

// FromHistogram captures the statistics of h. The histogram must not be
// modified afterwards.
func FromHistogram(h *hdrhistogram.Histogram) *Interval {
	return &Interval{
		StartMs:     h.StartTimeMs(),
		EndMs:       h.EndTimeMs(),
		TotalCount:  h.TotalCount(),
		MeanNanos:   h.Mean(),
		StdDevNanos: h.StdDev(),
		hist:        h,
	}
}

// Record builds an interval over [startMs, endMs] holding the given
// nanosecond values.
func Record(startMs, endMs int64, values ...int64) (*Interval, error) {
	highest := defaultHighestTrackable
	for _, v := range values {
		highest = max(highest, v)
	}

	h := hdrhistogram.New(lowestTrackable, highest, significantDigits)
	for _, v := range values {
		if err := h.RecordValue(v); err != nil {
			return nil, ewrap.Wrapf(err, "record value %d", v)
		}
	}

	h.SetStartTimeMs(startMs)
	h.SetEndTimeMs(endMs)

	return FromHistogram(h), nil
}

// DurationMs is the interval length.
func (iv *Interval) DurationMs() int64 {
	return iv.EndMs - iv.StartMs
}

// ValueAtPercentile queries the interval's own distribution; percentile is in [0, 100].
// It returns 0 when the interval carries no distribution or no observations.
func (iv *Interval) ValueAtPercentile(percentile float64) int64 {
	if iv.hist == nil || iv.hist.TotalCount() == 0 {
		return 0
	}

	return iv.hist.ValueAtQuantile(percentile)
}

// Max is the highest recorded value, 0 for an empty interval.
func (iv *Interval) Max() int64 {
	if iv.hist == nil || iv.hist.TotalCount() == 0 {
		return 0
	}

	return iv.hist.Max()
}

// Histogram exposes the underlying distribution, nil for intervals built from statistics only.
func (iv *Interval) Histogram() *hdrhistogram.Histogram {
	return iv.hist
}

// mergeIntervals folds a group of consecutive (or time-aligned) intervals into one
// covering [min start, max end].
func mergeIntervals(group []*Interval) *Interval {
	if len(group) == 1 {
		return group[0]
	}

	start, end := group[0].StartMs, group[0].EndMs
	withHist := true

	for _, iv := range group {
		start = min(start, iv.StartMs)
		end = max(end, iv.EndMs)

		if iv.hist == nil {
			withHist = false
		}
	}

	if withHist {
		acc := NewAccumulator()
		for _, iv := range group {
			acc.Add(iv)
		}

		merged := FromHistogram(acc.Histogram())
		merged.StartMs, merged.EndMs = start, end

		return merged
	}

	return pooledStats(group, start, end)
}

// pooledStats combines count, mean and deviation without the distributions.
func pooledStats(group []*Interval, start, end int64) *Interval {
	var count int64

	var sum, sumSq float64

	for _, iv := range group {
		n := float64(iv.TotalCount)
		count += iv.TotalCount
		sum += n * iv.MeanNanos
		sumSq += n * (iv.StdDevNanos*iv.StdDevNanos + iv.MeanNanos*iv.MeanNanos)
	}

	out := &Interval{StartMs: start, EndMs: end, TotalCount: count}
	if count == 0 {
		return out
	}

	mean := sum / float64(count)
	out.MeanNanos = mean
	out.StdDevNanos = math.Sqrt(math.Max(0, sumSq/float64(count)-mean*mean))

	return out
}
