package hdr

// Percentile is one of the fixed summary ranks shown in reports.
type Percentile int

const (
	Median Percentile = iota
	P99
	P99_99
	Max
)

// Percentiles lists the summary ranks in display order.
var Percentiles = []Percentile{Median, P99, P99_99, Max}

// Rank is the percentile rank in [0, 100].
func (p Percentile) Rank() float64 {
	switch p {
	case Median:
		return 50
	case P99:
		return 99
	case P99_99:
		return 99.99
	default:
		return 100
	}
}

// Key is the wire name used in JSON documents.
func (p Percentile) Key() string {
	switch p {
	case Median:
		return "MEDIAN"
	case P99:
		return "_99"
	case P99_99:
		return "_99_99"
	default:
		return "MAX"
	}
}

// Name is the human label.
func (p Percentile) Name() string {
	switch p {
	case Median:
		return "Median"
	case P99:
		return "99%"
	case P99_99:
		return "99.99%"
	default:
		return "Max"
	}
}

// PercentileSummary maps each summary rank to its native (nanosecond) value.
type PercentileSummary map[string]int64

// Summarize reads the summary ranks off a merged histogram.
func Summarize(acc *Accumulator) PercentileSummary {
	out := make(PercentileSummary, len(Percentiles))
	for _, p := range Percentiles {
		out[p.Key()] = acc.ValueAtPercentile(p.Rank())
	}

	return out
}

// Value returns the native value for p.
func (s PercentileSummary) Value(p Percentile) int64 {
	return s[p.Key()]
}

// Micros returns the value for p in microseconds, as displayed in percentile tables.
func (s PercentileSummary) Micros(p Percentile) float64 {
	return float64(s[p.Key()]) / 1000
}

// FixedPercentileRanks returns n ranks (0-100) that halve the remaining
// distance to 100 at each step: 0, 50, 75, 87.5, ...
func FixedPercentileRanks(n int) []float64 {
	ranks := make([]float64, 0, n)
	point := 0.0

	for range n {
		ranks = append(ranks, point*100)
		point += (1 - point) / 2
	}

	return ranks
}
