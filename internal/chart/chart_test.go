package chart

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/longbridgeapp/assert"

	"perfstore/internal/hdr"
	"perfstore/internal/sentinel"
)

type call struct {
	target string
	series Series
	layout Layout
}

type recorder struct {
	calls []call
}

func (r *recorder) Plot(target string, series Series, layout Layout) error {
	r.calls = append(r.calls, call{target, series, layout})

	return nil
}

func sampleData() *hdr.HdrData {
	d := hdr.Blank()
	d.StartTimes = []int64{0, 1000, 2000}
	d.TPS = []float64{100, 200, 150}
	d.Means = []float64{5, 5, 6}
	d.Errors = []float64{1, 2, 1}

	for _, p := range hdr.Percentiles {
		d.TimedPercentiles[p.Key()] = []float64{1, 2, 3}
	}

	d.PercentilePoints = []float64{0, 0.5, 1}
	d.PercentileValues = []float64{1, 2, 9}

	return d
}

func TestPlot_OneCallPerSeries(t *testing.T) {
	rec := &recorder{}
	runs := []Run{{Name: "run 1", Data: sampleData()}, {Name: "run 2", Data: sampleData()}}

	assert.NoError(t, Plot(rec, Throughput, "GET-tps", runs, true))
	assert.Equal(t, 2, len(rec.calls))
	assert.Equal(t, "GET-tps", rec.calls[0].target)
	assert.Equal(t, 3, len(rec.calls[0].series.Times))
	assert.True(t, rec.calls[0].layout.TimeAxis)
	assert.Equal(t, []float64{100, 200, 150}, rec.calls[1].series.Y)

	rec.calls = nil
	assert.NoError(t, Plot(rec, ResponseTime, "GET-rt", runs[:1], false))
	assert.Equal(t, 1, len(rec.calls))
	assert.Equal(t, []float64{0, 1, 2}, rec.calls[0].series.X)
	assert.Equal(t, []float64{1, 2, 1}, rec.calls[0].series.Err)

	rec.calls = nil
	assert.NoError(t, Plot(rec, TimedPercentiles, "GET-tp", runs, false))
	assert.Equal(t, 2*len(hdr.Percentiles), len(rec.calls))
	assert.Equal(t, "run 1 Median", rec.calls[0].series.Name)

	rec.calls = nil
	assert.NoError(t, Plot(rec, PercentileCurve, "GET-p", runs[:1], false))
	assert.Equal(t, []float64{0, 50, 100}, rec.calls[0].series.X)
	assert.Equal(t, []float64{1, 2, 9}, rec.calls[0].series.Y)
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("response-time")
	assert.NoError(t, err)
	assert.Equal(t, ResponseTime, k)

	_, err = ParseKind("pie")
	assert.True(t, errors.Is(err, sentinel.ErrInvalidArgument))
}

func TestCanvas_Render(t *testing.T) {
	c := NewCanvas()
	runs := []Run{{Name: "run 1", Data: sampleData()}}

	for _, kind := range Kinds {
		assert.NoError(t, Plot(c, kind, Target("GET", kind), runs, kind != PercentileCurve))
	}

	assert.Equal(t, len(Kinds), len(c.Targets()))
	assert.Equal(t, len(hdr.Percentiles), c.SeriesCount(Target("GET", TimedPercentiles)))

	var png bytes.Buffer
	assert.NoError(t, c.Render(Target("GET", ResponseTime), PNG, &png))
	assert.True(t, bytes.HasPrefix(png.Bytes(), []byte("\x89PNG")))

	var svg bytes.Buffer
	assert.NoError(t, c.Render(Target("GET", PercentileCurve), SVG, &svg))
	assert.True(t, strings.Contains(svg.String(), "<svg"))

	c.Clear(Target("GET", Throughput))
	assert.Equal(t, len(Kinds)-1, len(c.Targets()))
}

func TestCanvas_SinglePointAndFlat(t *testing.T) {
	c := NewCanvas()
	assert.NoError(t, c.Plot("flat", Series{Name: "one", X: []float64{0}, Y: []float64{7}}, Layout{}))

	var buf bytes.Buffer
	assert.NoError(t, c.Render("flat", PNG, &buf))
	assert.True(t, buf.Len() > 0)
}

func TestCanvas_Errors(t *testing.T) {
	c := NewCanvas()

	err := c.Plot("bad", Series{Name: "bad", X: []float64{1, 2}, Y: []float64{1}}, Layout{})
	assert.True(t, errors.Is(err, sentinel.ErrInvalidArgument))

	assert.NoError(t, c.Plot("empty", Series{Name: "none"}, Layout{}))
	assert.True(t, errors.Is(c.Render("empty", PNG, &bytes.Buffer{}), sentinel.ErrNoSeries))
	assert.True(t, errors.Is(c.Render("missing", PNG, &bytes.Buffer{}), sentinel.ErrNotFound))
}
