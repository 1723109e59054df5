package chart

import (
	"io"
	"slices"
	"sync"
	"time"

	"github.com/hyp3rd/ewrap"
	gochart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"perfstore/internal/sentinel"
)

// Format is an image output format.
type Format string

const (
	PNG Format = "png"
	SVG Format = "svg"
)

const (
	defaultWidth  = 1024
	defaultHeight = 400
)

var palette = []drawing.Color{
	gochart.ColorBlue,
	gochart.ColorGreen,
	gochart.ColorRed,
	gochart.ColorOrange,
	gochart.ColorCyan,
	gochart.ColorAlternateGray,
}

type figure struct {
	layout Layout
	series []Series
}

// Canvas collects plotted series per target and renders them as images.
// It is safe for concurrent use.
type Canvas struct {
	mu      sync.Mutex
	figures map[string]*figure
}

// NewCanvas returns an empty canvas.
func NewCanvas() *Canvas {
	return &Canvas{figures: make(map[string]*figure)}
}

// Plot adds series to target. The layout of the latest call wins. Series
// without points are ignored.
func (c *Canvas) Plot(target string, series Series, layout Layout) error {
	if err := series.Validate(layout.TimeAxis); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	fig, ok := c.figures[target]
	if !ok {
		fig = &figure{}
		c.figures[target] = fig
	}

	fig.layout = layout

	if series.Len() > 0 {
		fig.series = append(fig.series, series)
	}

	return nil
}

// Targets lists the targets plotted so far, sorted.
func (c *Canvas) Targets() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]string, 0, len(c.figures))
	for name := range c.figures {
		out = append(out, name)
	}

	slices.Sort(out)

	return out
}

// SeriesCount is the number of series drawn on target.
func (c *Canvas) SeriesCount(target string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if fig, ok := c.figures[target]; ok {
		return len(fig.series)
	}

	return 0
}

// Clear forgets target.
func (c *Canvas) Clear(target string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.figures, target)
}

// Render draws target to w.
func (c *Canvas) Render(target string, format Format, w io.Writer) error {
	c.mu.Lock()
	fig, ok := c.figures[target]

	var snapshot figure
	if ok {
		snapshot = figure{layout: fig.layout, series: slices.Clone(fig.series)}
	}
	c.mu.Unlock()

	if !ok {
		return ewrap.Wrapf(sentinel.ErrNotFound, "chart target %q", target)
	}

	if len(snapshot.series) == 0 {
		return ewrap.Wrapf(sentinel.ErrNoSeries, "chart target %q", target)
	}

	provider := gochart.PNG
	if format == SVG {
		provider = gochart.SVG
	}

	ch := snapshot.build()
	if err := ch.Render(provider, w); err != nil {
		return ewrap.Wrapf(err, "render chart %q", target)
	}

	return nil
}

func (f *figure) build() gochart.Chart {
	layout := f.layout

	width, height := layout.Width, layout.Height
	if width <= 0 {
		width = defaultWidth
	}

	if height <= 0 {
		height = defaultHeight
	}

	xAxis := gochart.XAxis{Name: layout.XName}
	if layout.TimeAxis {
		xAxis.ValueFormatter = gochart.TimeValueFormatterWithFormat("15:04:05")
	}

	var series []gochart.Series

	for i, s := range f.series {
		color := palette[i%len(palette)]
		series = append(series, toChartSeries(s.Name, s, s.Y, lineStyle(color), layout.TimeAxis))

		if s.Err == nil {
			continue
		}

		upper := make([]float64, len(s.Y))
		lower := make([]float64, len(s.Y))

		for j, y := range s.Y {
			upper[j] = y + s.Err[j]
			lower[j] = y - s.Err[j]
		}

		band := bandStyle(color)
		series = append(series,
			toChartSeries(s.Name+" +σ", s, upper, band, layout.TimeAxis),
			toChartSeries(s.Name+" -σ", s, lower, band, layout.TimeAxis),
		)
	}

	ch := gochart.Chart{
		Title:      layout.Title,
		Width:      width,
		Height:     height,
		Background: gochart.Style{Padding: gochart.Box{Top: 20, Left: 16, Right: 12, Bottom: 12}},
		XAxis:      xAxis,
		YAxis:      gochart.YAxis{Name: layout.YName, Range: f.flatRange()},
		Series:     series,
	}
	ch.Elements = []gochart.Renderable{gochart.Legend(&ch)}

	return ch
}

// flatRange pads the y axis when every value is equal; go-chart refuses a zero y delta.
func (f *figure) flatRange() gochart.Range {
	first := true

	var lo, hi float64

	for _, s := range f.series {
		for i, y := range s.Y {
			e := 0.0
			if s.Err != nil {
				e = s.Err[i]
			}

			if first {
				lo, hi, first = y-e, y+e, false

				continue
			}

			lo = min(lo, y-e)
			hi = max(hi, y+e)
		}
	}

	if first || lo != hi {
		return nil
	}

	return &gochart.ContinuousRange{Min: lo - 1, Max: hi + 1}
}

func lineStyle(color drawing.Color) gochart.Style {
	return gochart.Style{StrokeColor: color, StrokeWidth: 2}
}

func bandStyle(color drawing.Color) gochart.Style {
	return gochart.Style{StrokeColor: color.WithAlpha(96), StrokeWidth: 1, StrokeDashArray: []float64{4, 4}}
}

// toChartSeries converts s with the given y values. A single point is
// widened to a short flat segment, since a zero-width range cannot be drawn.
func toChartSeries(name string, s Series, ys []float64, style gochart.Style, timeAxis bool) gochart.Series {
	if timeAxis {
		times := s.Times
		if len(times) == 1 {
			times = []time.Time{times[0], times[0].Add(time.Second)}
			ys = []float64{ys[0], ys[0]}
		}

		return gochart.TimeSeries{Name: name, XValues: times, YValues: ys, Style: style}
	}

	xs := s.X
	if len(xs) == 1 {
		xs = []float64{xs[0], xs[0] + 1}
		ys = []float64{ys[0], ys[0]}
	}

	return gochart.ContinuousSeries{Name: name, XValues: xs, YValues: ys, Style: style}
}
