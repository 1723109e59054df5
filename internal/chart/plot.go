package chart

import (
	"time"

	"github.com/hyp3rd/ewrap"

	"perfstore/internal/hdr"
	"perfstore/internal/sentinel"
)

// Kind names a report chart.
type Kind string

const (
	Throughput       Kind = "tps"
	ResponseTime     Kind = "response-time"
	TimedPercentiles Kind = "timed-percentiles"
	PercentileCurve  Kind = "percentiles"
)

// Kinds lists the report charts in display order.
var Kinds = []Kind{Throughput, ResponseTime, TimedPercentiles, PercentileCurve}

// ParseKind validates a chart name.
func ParseKind(name string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == name {
			return k, nil
		}
	}

	return "", ewrap.Wrapf(sentinel.ErrInvalidArgument, "chart kind %q", name)
}

// Run is one labelled document to draw.
type Run struct {
	Name string
	Data *hdr.HdrData
}

// Target names the drawing target of a chart of an operation.
func Target(op string, kind Kind) string {
	return op + "-" + string(kind)
}

// Plot draws kind for every run onto target. With timeAxis unset, points are
// placed by their ordinal index so runs started at different times overlay.
func Plot(s Surface, kind Kind, target string, runs []Run, timeAxis bool) error {
	switch kind {
	case Throughput:
		return PlotThroughput(s, target, runs, timeAxis)
	case ResponseTime:
		return PlotResponseTime(s, target, runs, timeAxis)
	case TimedPercentiles:
		return PlotTimedPercentiles(s, target, runs, timeAxis)
	case PercentileCurve:
		return PlotPercentiles(s, target, runs)
	default:
		return ewrap.Wrapf(sentinel.ErrInvalidArgument, "chart kind %q", kind)
	}
}

// PlotThroughput draws operations per second over time.
func PlotThroughput(s Surface, target string, runs []Run, timeAxis bool) error {
	layout := timeLayout("Throughput", "TPS", timeAxis)

	for _, r := range runs {
		series := timed(r.Name, r.Data, r.Data.TPS, timeAxis)
		if err := s.Plot(target, series, layout); err != nil {
			return err
		}
	}

	return nil
}

// PlotResponseTime draws the mean response time with its deviation as error bars.
func PlotResponseTime(s Surface, target string, runs []Run, timeAxis bool) error {
	layout := timeLayout("Response time", "ms", timeAxis)

	for _, r := range runs {
		series := timed(r.Name, r.Data, r.Data.Means, timeAxis)
		series.Err = fit(r.Data.Errors, series.Len())

		if err := s.Plot(target, series, layout); err != nil {
			return err
		}
	}

	return nil
}

// PlotTimedPercentiles draws one line per summary percentile and run.
func PlotTimedPercentiles(s Surface, target string, runs []Run, timeAxis bool) error {
	layout := timeLayout("Timed percentiles", "ms", timeAxis)

	for _, r := range runs {
		for _, p := range hdr.Percentiles {
			name := p.Name()
			if r.Name != "" {
				name = r.Name + " " + name
			}

			series := timed(name, r.Data, r.Data.TimedPercentiles[p.Key()], timeAxis)
			if err := s.Plot(target, series, layout); err != nil {
				return err
			}
		}
	}

	return nil
}

// PlotPercentiles draws the percentile curve of every run, percentile (0-100) on x.
func PlotPercentiles(s Surface, target string, runs []Run) error {
	layout := Layout{Title: "Percentile distribution", XName: "Percentile", YName: "ms"}

	for _, r := range runs {
		curve := r.Data.Curve()
		series := Series{Name: r.Name, X: make([]float64, 0, len(curve)), Y: make([]float64, 0, len(curve))}

		for _, c := range curve {
			series.X = append(series.X, c.X*100)
			series.Y = append(series.Y, c.Y)
		}

		if err := s.Plot(target, series, layout); err != nil {
			return err
		}
	}

	return nil
}

func timeLayout(title, yName string, timeAxis bool) Layout {
	layout := Layout{Title: title, XName: "Interval", YName: yName, TimeAxis: timeAxis}
	if timeAxis {
		layout.XName = "Time"
	}

	return layout
}

// timed aligns ys with the start times of d, truncating to the shorter of the two.
func timed(name string, d *hdr.HdrData, ys []float64, timeAxis bool) Series {
	n := min(len(d.StartTimes), len(ys))
	series := Series{Name: name, Y: ys[:n]}

	if timeAxis {
		series.Times = make([]time.Time, 0, n)
		for _, ms := range d.StartTimes[:n] {
			series.Times = append(series.Times, time.UnixMilli(ms).UTC())
		}

		return series
	}

	series.X = make([]float64, 0, n)
	for i := range n {
		series.X = append(series.X, float64(i))
	}

	return series
}

func fit(values []float64, n int) []float64 {
	if len(values) < n {
		return nil
	}

	return values[:n]
}
