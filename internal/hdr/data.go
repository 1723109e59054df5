package hdr

import (
	"time"
)

// FixedPercentileCount is the number of fixed percentile samples kept per
// document for statistical comparison.
const FixedPercentileCount = 10

// HdrData is the chart document of one output log or one aggregated
// operation. Per-interval slices are aligned and in log order; times are in
// milliseconds, response times in milliseconds unless noted.
type HdrData struct {
	StartTimes []int64   `json:"startTimes"`
	TPS        []float64 `json:"tps"`
	Means      []float64 `json:"means"`
	// Errors holds the per-interval standard deviation, drawn as error bars.
	Errors           []float64            `json:"errors"`
	TimedPercentiles map[string][]float64 `json:"timedPercentiles"`
	// RoundedPercentiles are the merged summary values in nanoseconds.
	RoundedPercentiles PercentileSummary `json:"roundedPercentiles"`
	PercentilePoints   []float64         `json:"percentilePoints"`
	PercentileValues   []float64         `json:"percentileValues"`
	// FixedPercentileValues are nanosecond values at FixedPercentileRanks.
	FixedPercentileValues []int64 `json:"fixedPercentileValues"`
}

// Build assembles the document from an extracted series and the accumulator
// holding the same intervals.
func Build(series *Series, acc *Accumulator) (*HdrData, error) {
	data := &HdrData{
		StartTimes:       make([]int64, 0, series.Len()),
		TPS:              make([]float64, 0, series.Len()),
		Means:            make([]float64, 0, series.Len()),
		Errors:           make([]float64, 0, series.Len()),
		TimedPercentiles: series.Timed,
	}

	for _, p := range series.Points {
		data.StartTimes = append(data.StartTimes, p.Timestamp.UnixMilli())
		data.TPS = append(data.TPS, p.Throughput)
		data.Means = append(data.Means, p.MeanMillis)
		data.Errors = append(data.Errors, p.StdDevMillis)
	}

	data.RoundedPercentiles = Summarize(acc)
	data.FixedPercentileValues = fixedValues(acc)

	curve, err := Curve(acc)
	if err != nil {
		return nil, err
	}

	data.PercentilePoints = make([]float64, 0, len(curve))
	data.PercentileValues = make([]float64, 0, len(curve))

	for _, c := range curve {
		data.PercentilePoints = append(data.PercentilePoints, c.X)
		data.PercentileValues = append(data.PercentileValues, c.Y)
	}

	return data, nil
}

// Blank is the document of an operation without any log: no points, zero
// summary values.
func Blank() *HdrData {
	data, _ := Build(&Series{Timed: emptyTimed()}, NewAccumulator())

	return data
}

func emptyTimed() map[string][]float64 {
	timed := make(map[string][]float64, len(Percentiles))
	for _, p := range Percentiles {
		timed[p.Key()] = []float64{}
	}

	return timed
}

func fixedValues(acc *Accumulator) []int64 {
	ranks := FixedPercentileRanks(FixedPercentileCount)
	out := make([]int64, 0, len(ranks))

	for _, r := range ranks {
		out = append(out, acc.ValueAtPercentile(r))
	}

	return out
}

// Len is the number of data points.
func (d *HdrData) Len() int {
	return len(d.StartTimes)
}

// Points rebuilds the series points of the document.
func (d *HdrData) Points() []SeriesPoint {
	out := make([]SeriesPoint, 0, d.Len())

	for i, start := range d.StartTimes {
		p := SeriesPoint{Index: i, Timestamp: time.UnixMilli(start).UTC()}
		if i < len(d.TPS) {
			p.Throughput = d.TPS[i]
		}

		if i < len(d.Means) {
			p.MeanMillis = d.Means[i]
		}

		if i < len(d.Errors) {
			p.StdDevMillis = d.Errors[i]
		}

		out = append(out, p)
	}

	return out
}

// Curve returns the percentile curve of the document.
func (d *HdrData) Curve() []CurvePoint {
	n := min(len(d.PercentilePoints), len(d.PercentileValues))
	out := make([]CurvePoint, 0, n)

	for i := range n {
		out = append(out, CurvePoint{X: d.PercentilePoints[i], Y: d.PercentileValues[i]})
	}

	return out
}

// FixedSamples returns the fixed percentile values as floats for statistical tests.
func (d *HdrData) FixedSamples() []float64 {
	out := make([]float64, 0, len(d.FixedPercentileValues))
	for _, v := range d.FixedPercentileValues {
		out = append(out, float64(v))
	}

	return out
}
