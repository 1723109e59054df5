package hdr

import (
	"io"
	"time"
)

// SeriesPoint is the chart view of one interval.
type SeriesPoint struct {
	Index        int
	Timestamp    time.Time
	Throughput   float64
	MeanMillis   float64
	StdDevMillis float64
}

// Series holds aligned per-interval values in log order.
type Series struct {
	Points []SeriesPoint
	// Timed holds, per summary percentile key, one value in milliseconds per point.
	Timed map[string][]float64
	// Intervals are the accepted intervals, aligned with Points.
	Intervals []*Interval
}

// Len is the number of accepted intervals.
func (s *Series) Len() int {
	return len(s.Points)
}

// ExtractSeries walks src once and derives throughput, mean and deviation
// for every interval. A zero or negative duration is a DataError: with a nil
// skip it aborts the extraction, otherwise skip is told and the interval is left out.
func ExtractSeries(src Source, skip func(*DataError)) (*Series, error) {
	series := &Series{Timed: make(map[string][]float64, len(Percentiles))}
	for _, p := range Percentiles {
		series.Timed[p.Key()] = []float64{}
	}

	for index := 0; ; index++ {
		iv, err := src.Next()
		if err == io.EOF {
			return series, nil
		}

		if err != nil {
			return series, err
		}

		point, dataErr := seriesPoint(iv, index)
		if dataErr != nil {
			if skip == nil {
				return series, dataErr
			}

			skip(dataErr)

			continue
		}

		point.Index = len(series.Points)
		series.Points = append(series.Points, point)
		series.Intervals = append(series.Intervals, iv)

		for _, p := range Percentiles {
			series.Timed[p.Key()] = append(series.Timed[p.Key()], float64(iv.ValueAtPercentile(p.Rank()))/nanosPerMilli)
		}
	}
}

func seriesPoint(iv *Interval, index int) (SeriesPoint, *DataError) {
	duration := iv.DurationMs()
	if duration <= 0 {
		return SeriesPoint{}, &DataError{Index: index, Reason: "non-positive interval duration"}
	}

	return SeriesPoint{
		Timestamp:    time.UnixMilli(iv.StartMs).UTC(),
		Throughput:   float64(iv.TotalCount) * 1000 / float64(duration),
		MeanMillis:   iv.MeanNanos / nanosPerMilli,
		StdDevMillis: iv.StdDevNanos / nanosPerMilli,
	}, nil
}
