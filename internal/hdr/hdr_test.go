package hdr

import (
	"bytes"
	"errors"
	"io"
	"math"
	"os"
	"strings"
	"testing"
	"testing/iotest"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/longbridgeapp/assert"

	"perfstore/internal/sentinel"
)

func newInterval(t *testing.T, startMs, endMs int64, values ...int64) *Interval {
	t.Helper()

	h := hdrhistogram.New(lowestTrackable, int64(time.Minute), significantDigits)
	for _, v := range values {
		assert.NoError(t, h.RecordValue(v))
	}

	h.SetStartTimeMs(startMs)
	h.SetEndTimeMs(endMs)

	return FromHistogram(h)
}

func TestExtractSeries_ThroughputAndMeans(t *testing.T) {
	intervals := []*Interval{
		{StartMs: 0, EndMs: 1000, TotalCount: 100, MeanNanos: 5_000_000, StdDevNanos: 1_000_000},
		{StartMs: 1000, EndMs: 2000, TotalCount: 200, MeanNanos: 5_000_000, StdDevNanos: 2_000_000},
	}

	series, err := ExtractSeries(NewSliceSource(intervals), nil)
	assert.NoError(t, err)
	assert.Equal(t, 2, series.Len())

	assert.Equal(t, 100.0, series.Points[0].Throughput)
	assert.Equal(t, 200.0, series.Points[1].Throughput)
	assert.Equal(t, 5.0, series.Points[0].MeanMillis)
	assert.Equal(t, 5.0, series.Points[1].MeanMillis)
	assert.Equal(t, 1.0, series.Points[0].StdDevMillis)
	assert.Equal(t, 2.0, series.Points[1].StdDevMillis)
	assert.Equal(t, time.UnixMilli(1000).UTC(), series.Points[1].Timestamp)
}

func TestExtractSeries_NonPositiveDuration(t *testing.T) {
	intervals := []*Interval{
		{StartMs: 0, EndMs: 1000, TotalCount: 10},
		{StartMs: 1000, EndMs: 1000, TotalCount: 10},
		{StartMs: 2000, EndMs: 1500, TotalCount: 10},
		{StartMs: 2000, EndMs: 2500, TotalCount: 10},
	}

	_, err := ExtractSeries(NewSliceSource(intervals), nil)
	assert.Error(t, err)
	assert.True(t, errors.Is(err, sentinel.ErrDataError))

	var dataErr *DataError
	assert.True(t, errors.As(err, &dataErr))
	assert.Equal(t, 1, dataErr.Index)

	var skipped []int

	series, err := ExtractSeries(NewSliceSource(intervals), func(e *DataError) {
		skipped = append(skipped, e.Index)
	})
	assert.NoError(t, err)
	assert.Equal(t, []int{1, 2}, skipped)
	assert.Equal(t, 2, series.Len())
	assert.Equal(t, 10.0, series.Points[0].Throughput)
	assert.Equal(t, 20.0, series.Points[1].Throughput)
	assert.Equal(t, 1, series.Points[1].Index)

	for _, p := range series.Points {
		assert.False(t, p.Throughput != p.Throughput)
	}
}

func TestAccumulator_OrderIndependent(t *testing.T) {
	a := newInterval(t, 0, 1000, 1_000, 2_000, 3_000, 50_000)
	b := newInterval(t, 1000, 2000, 7_000, 8_000, 9_000_000)
	c := newInterval(t, 2000, 3000, 500, 600, 700, 800, 900)

	orders := [][]*Interval{{a, b, c}, {c, b, a}, {b, a, c}, {c, a, b}}

	var want PercentileSummary

	for i, order := range orders {
		acc := NewAccumulator()
		for _, iv := range order {
			acc.Add(iv)
		}

		got := Summarize(acc)
		assert.Equal(t, int64(12), acc.TotalCount())

		if i == 0 {
			want = got

			continue
		}

		assert.Equal(t, want, got)
	}
}

func TestAccumulator_MaxPreserved(t *testing.T) {
	intervals := []*Interval{
		newInterval(t, 0, 1000, 10, 20, 30),
		newInterval(t, 1000, 2000, 4_000_000, 12),
		newInterval(t, 2000, 3000, 99, 100),
	}

	acc := NewAccumulator()

	var maxSingle int64

	for _, iv := range intervals {
		acc.Add(iv)
		maxSingle = max(maxSingle, iv.Max())
	}

	assert.Equal(t, maxSingle, acc.ValueAtPercentile(100))
	assert.Equal(t, maxSingle, Summarize(acc).Value(Max))
}

func TestAccumulator_WidensRange(t *testing.T) {
	h := hdrhistogram.New(lowestTrackable, int64(3*time.Hour), significantDigits)
	assert.NoError(t, h.RecordValue(int64(2*time.Hour)))

	acc := NewAccumulator()
	acc.AddHistogram(h)

	assert.Equal(t, int64(0), acc.Dropped())
	assert.Equal(t, h.Max(), acc.ValueAtPercentile(100))
}

func TestAccumulator_EmptyGivesZero(t *testing.T) {
	acc := NewAccumulator()
	acc.Add(&Interval{StartMs: 0, EndMs: 1000})

	for _, p := range Percentiles {
		assert.Equal(t, int64(0), acc.ValueAtPercentile(p.Rank()))
	}

	curve, err := Curve(acc)
	assert.NoError(t, err)
	assert.Equal(t, 0, len(curve))
}

func TestParseDistribution(t *testing.T) {
	text := "# comment line\n" +
		"50.000 1.234 10 5.00\n" +
		"\n" +
		"12.0 0.5 4\n" +
		"abc 0.5 4 2.00\n" +
		"3000000.000 0.990000 99 100.00\n"

	var skipped []*DataError

	points := ParseDistribution(text, func(e *DataError) { skipped = append(skipped, e) })

	assert.Equal(t, 2, len(points))
	assert.Equal(t, 1.234, points[0].X)
	assert.Equal(t, 50.0/nanosPerMilli, points[0].Y)
	assert.Equal(t, 0.99, points[1].X)
	assert.Equal(t, 3.0, points[1].Y)

	assert.Equal(t, 2, len(skipped))
	assert.Equal(t, 4, skipped[0].Index)
	assert.Equal(t, 5, skipped[1].Index)
}

func TestCurve(t *testing.T) {
	acc := NewAccumulator()
	acc.Add(newInterval(t, 0, 1000, 1_000_000, 2_000_000, 3_000_000, 4_000_000, 10_000_000))

	curve, err := Curve(acc)
	assert.NoError(t, err)
	assert.True(t, len(curve) > 0)

	for i, p := range curve {
		assert.True(t, p.X >= 0 && p.X <= 1)

		if i > 0 {
			assert.True(t, p.X >= curve[i-1].X)
			assert.True(t, p.Y >= curve[i-1].Y)
		}
	}
}

func TestFixedPercentileRanks(t *testing.T) {
	assert.Equal(t, []float64{0, 50, 75, 87.5}, FixedPercentileRanks(4))
	assert.Equal(t, FixedPercentileCount, len(FixedPercentileRanks(FixedPercentileCount)))
}

func TestCompact(t *testing.T) {
	intervals := make([]*Interval, 0, 450)
	for i := range 450 {
		start := int64(i) * 1000
		intervals = append(intervals, &Interval{StartMs: start, EndMs: start + 1000, TotalCount: 10, MeanNanos: 1_000_000})
	}

	compacted := Compact(intervals, 200)
	assert.Equal(t, 150, len(compacted))
	assert.Equal(t, int64(0), compacted[0].StartMs)
	assert.Equal(t, int64(3000), compacted[0].EndMs)
	assert.Equal(t, int64(30), compacted[0].TotalCount)
	assert.Equal(t, 1_000_000.0, compacted[0].MeanNanos)

	var total int64
	for _, iv := range compacted {
		total += iv.TotalCount
	}

	assert.Equal(t, int64(4500), total)

	// trailing group is kept even when shorter than the ratio
	compacted = Compact(intervals[:401], 200)
	assert.Equal(t, 134, len(compacted))
	assert.Equal(t, int64(20), compacted[133].TotalCount)

	assert.Equal(t, 3, len(Compact(intervals[:3], 200)))
}

func TestCompact_WithHistograms(t *testing.T) {
	intervals := []*Interval{
		newInterval(t, 0, 1000, 100, 200),
		newInterval(t, 1000, 2000, 300),
		newInterval(t, 2000, 3000, 5_000),
	}

	compacted := Compact(intervals, 2)
	assert.Equal(t, 2, len(compacted))
	assert.Equal(t, int64(3), compacted[0].TotalCount)
	assert.Equal(t, intervals[1].Max(), compacted[0].Max())
	assert.Equal(t, int64(2000), compacted[0].EndMs)
}

func TestAlignFrames(t *testing.T) {
	a := []*Interval{
		{StartMs: 0, EndMs: 1000, TotalCount: 10},
		{StartMs: 1000, EndMs: 2000, TotalCount: 10},
		{StartMs: 2000, EndMs: 3000, TotalCount: 10},
	}
	b := []*Interval{
		{StartMs: 300, EndMs: 1300, TotalCount: 5},
		{StartMs: 1300, EndMs: 2300, TotalCount: 5},
		{StartMs: 2300, EndMs: 3300, TotalCount: 5},
	}

	frames := AlignFrames([][]*Interval{a, b})
	assert.Equal(t, 3, len(frames))

	for i, f := range frames {
		assert.Equal(t, int64(i)*1000, f.StartMs)
		assert.Equal(t, int64(15), f.TotalCount)
	}

	assert.Equal(t, int64(3300), frames[2].EndMs)
}

func TestAlignFrames_RestartsOnRepeatedLog(t *testing.T) {
	a := []*Interval{
		{StartMs: 0, EndMs: 500, TotalCount: 1},
		{StartMs: 500, EndMs: 1000, TotalCount: 2},
	}
	b := []*Interval{
		{StartMs: 100, EndMs: 1100, TotalCount: 4},
	}

	frames := AlignFrames([][]*Interval{a, b})
	assert.Equal(t, 1, len(frames))
	assert.Equal(t, int64(6), frames[0].TotalCount)
	assert.Equal(t, int64(100), frames[0].StartMs)
	assert.Equal(t, int64(1100), frames[0].EndMs)
}

func TestAlignFrames_KeepsExactStart(t *testing.T) {
	frames := AlignFrames([][]*Interval{{newInterval(t, 1500, 2500, 1, 2, 3, 4)}})
	assert.Equal(t, 1, len(frames))
	assert.Equal(t, int64(1500), frames[0].StartMs)
	assert.Equal(t, int64(2500), frames[0].EndMs)

	frames = AlignFrames([][]*Interval{
		{newInterval(t, 1500, 2500, 1, 2)},
		{newInterval(t, 1200, 2400, 3)},
	})
	assert.Equal(t, 1, len(frames))
	assert.Equal(t, int64(1200), frames[0].StartMs)
	assert.Equal(t, int64(2500), frames[0].EndMs)
	assert.Equal(t, int64(3), frames[0].TotalCount)
}

func TestKolmogorovSmirnov(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	y := []float64{11, 12, 13, 14, 15, 16, 17, 18, 19, 20}

	assert.Equal(t, 1.0, KolmogorovSmirnovTest(x, x))
	assert.Equal(t, 1.0, KolmogorovSmirnovTest(x, nil))
	assert.Equal(t, 1.0, KolmogorovSmirnovStatistic(x, y))

	p := KolmogorovSmirnovTest(x, y)
	assert.True(t, p > 0 && p < 0.001)

	shifted := []float64{2, 3, 4, 5, 6, 7, 8, 9, 10, 11}
	assert.True(t, KolmogorovSmirnovTest(x, shifted) > 0.5)

	large := make([]float64, 200)
	largeShifted := make([]float64, 200)

	for i := range large {
		large[i] = float64(i)
		largeShifted[i] = float64(i + 1000)
	}

	assert.True(t, KolmogorovSmirnovTest(large, largeShifted) < 1e-6)
	assert.Equal(t, 1.0, KolmogorovSmirnovTest(large, large))
}

func TestKolmogorovSmirnovStatistic_UnsortedWithTies(t *testing.T) {
	x := []float64{3, 1, 2, 2}
	y := []float64{2, 5, 2, 4}

	assert.Equal(t, 0.5, KolmogorovSmirnovStatistic(x, y))
	assert.Equal(t, []float64{3, 1, 2, 2}, x)
	assert.Equal(t, 0.0, KolmogorovSmirnovStatistic(x, []float64{2, 2, 1, 3}))
}

func TestService_RejectsNonPositiveMaxDataPoints(t *testing.T) {
	_, err := NewService(0, nil)
	assert.True(t, errors.Is(err, sentinel.ErrInvalidArgument))
}

func TestService_AggregateWithoutLogs(t *testing.T) {
	svc, err := NewService(DefaultMaxDataPoints, nil)
	assert.NoError(t, err)

	data, err := svc.Aggregate(nil)
	assert.NoError(t, err)
	assert.Equal(t, 0, data.Len())
	assert.Equal(t, FixedPercentileCount, len(data.FixedPercentileValues))

	for _, p := range Percentiles {
		assert.Equal(t, int64(0), data.RoundedPercentiles.Value(p))
	}
}

func writeLog(t *testing.T, intervals ...*Interval) []byte {
	t.Helper()

	var buf bytes.Buffer
	assert.NoError(t, WriteLog(&buf, intervals))

	return buf.Bytes()
}

func TestReader_SingleUse(t *testing.T) {
	log := writeLog(t, newInterval(t, 0, 1000, 5, 6), newInterval(t, 1000, 2000, 7))

	r := NewReader(bytes.NewReader(log), nil)

	intervals, err := ReadAll(r)
	assert.NoError(t, err)
	assert.Equal(t, 2, len(intervals))
	assert.Equal(t, int64(2), intervals[0].TotalCount)

	_, err = r.Next()
	assert.Equal(t, io.EOF, err)
}

func TestService_ReadLog(t *testing.T) {
	intervals := []*Interval{
		newInterval(t, 0, 1000, 1_000_000, 2_000_000),
		newInterval(t, 1000, 2000, 3_000_000),
		newInterval(t, 2000, 3000, 8_000_000, 1_500_000, 2_500_000),
	}

	svc, err := NewService(DefaultMaxDataPoints, nil)
	assert.NoError(t, err)

	data, err := svc.Read(bytes.NewReader(writeLog(t, intervals...)))
	assert.NoError(t, err)
	assert.Equal(t, 3, data.Len())
	assert.Equal(t, 3, len(data.TimedPercentiles[Max.Key()]))
	assert.Equal(t, intervals[2].Max(), data.RoundedPercentiles.Value(Max))
	assert.Equal(t, FixedPercentileCount, len(data.FixedPercentileValues))
	assert.True(t, len(data.Curve()) > 0)
	assert.Equal(t, 1.0, svc.ComparePercentiles(data, data))

	compacted, err := NewService(2, nil)
	assert.NoError(t, err)

	small, err := compacted.Read(bytes.NewReader(writeLog(t, intervals...)))
	assert.NoError(t, err)
	assert.Equal(t, 2, small.Len())
	assert.Equal(t, data.RoundedPercentiles, small.RoundedPercentiles)
}

func TestService_Aggregate(t *testing.T) {
	slowest := newInterval(t, 1000, 2000, 4_000_000)
	first := writeLog(t, newInterval(t, 0, 1000, 1_000), newInterval(t, 1000, 2000, 2_000))
	second := writeLog(t, newInterval(t, 0, 1000, 3_000), slowest)

	svc, err := NewService(DefaultMaxDataPoints, nil)
	assert.NoError(t, err)

	data, err := svc.Aggregate([]io.Reader{bytes.NewReader(first), bytes.NewReader(second)})
	assert.NoError(t, err)
	assert.Equal(t, 2, data.Len())
	assert.Equal(t, 2.0, data.TPS[0])
	assert.Equal(t, slowest.Max(), data.RoundedPercentiles.Value(Max))
}

func TestWriteLog_RoundTrip(t *testing.T) {
	log := writeLog(t, newInterval(t, 1500, 2500, 1_000_000, 2_000_000), newInterval(t, 2500, 3500, 5_000_000))

	text := string(log)
	assert.True(t, strings.Contains(text, "#[BaseTime: 1.500 (seconds since epoch)]\n"))
	assert.True(t, strings.Contains(text, "\n0.000,1.000,2.001,HISTF"))
	assert.True(t, strings.Contains(text, "\n1.000,1.000,5.001,HISTF"))

	intervals, err := ReadAll(NewReader(bytes.NewReader(log), nil))
	assert.NoError(t, err)
	assert.Equal(t, 2, len(intervals))
	assert.Equal(t, int64(1500), intervals[0].StartMs)
	assert.Equal(t, int64(2500), intervals[0].EndMs)
	assert.Equal(t, int64(2500), intervals[1].StartMs)
	assert.Equal(t, int64(3500), intervals[1].EndMs)
	assert.Equal(t, int64(2), intervals[0].TotalCount)
}

func TestWriteLog_RequiresDistribution(t *testing.T) {
	var buf bytes.Buffer

	err := WriteLog(&buf, []*Interval{{StartMs: 0, EndMs: 1000, TotalCount: 3}})
	assert.True(t, errors.Is(err, sentinel.ErrInvalidArgument))
}

// jhiccup-v2.hlog holds the first records of a log written by jHiccup: times
// relative to the StartTime header, no BaseTime header.
func TestReader_JavaWrittenLog(t *testing.T) {
	raw, err := os.ReadFile("testdata/jhiccup-v2.hlog")
	assert.NoError(t, err)

	intervals, err := ReadAll(NewReader(bytes.NewReader(raw), nil))
	assert.NoError(t, err)
	assert.Equal(t, 3, len(intervals))

	assert.Equal(t, int64(1441812279601), intervals[0].StartMs)
	assert.Equal(t, []int64{1007, 999, 1001}, []int64{
		intervals[0].DurationMs(), intervals[1].DurationMs(), intervals[2].DurationMs(),
	})
	assert.Equal(t, []int64{741, 749, 745}, []int64{
		intervals[0].TotalCount, intervals[1].TotalCount, intervals[2].TotalCount,
	})

	maxMs := float64(intervals[0].Max()) / nanosPerMilli
	assert.True(t, math.Abs(maxMs-2.769) < 0.03, "max %v", maxMs)

	svc, err := NewService(DefaultMaxDataPoints, nil)
	assert.NoError(t, err)

	data, err := svc.Read(bytes.NewReader(raw))
	assert.NoError(t, err)
	assert.Equal(t, 3, data.Len())
	assert.Equal(t, 741*1000/1007.0, data.TPS[0])
	assert.Equal(t, int64(1441812279601), data.StartTimes[0])
}

// corruptRecord replaces the payload of the data line at index.
func corruptRecord(t *testing.T, log []byte, index int) []byte {
	t.Helper()

	lines := strings.Split(string(log), "\n")
	seen := 0

	for i, line := range lines {
		if line == "" || line[0] == '#' || line[0] == '"' {
			continue
		}

		if seen == index {
			fields := strings.SplitN(line, ",", 4)
			lines[i] = strings.Join(fields[:3], ",") + ",HISTFAAAA%%not-base64%%"
		}

		seen++
	}

	return []byte(strings.Join(lines, "\n"))
}

func TestReader_SkipsUndecodableRecord(t *testing.T) {
	log := corruptRecord(t, writeLog(t,
		newInterval(t, 0, 1000, 1_000),
		newInterval(t, 1000, 2000, 2_000),
		newInterval(t, 2000, 3000, 3_000, 4_000),
	), 1)

	var skipped []*DataError

	intervals, err := ReadAll(NewReader(bytes.NewReader(log), func(e *DataError) { skipped = append(skipped, e) }))
	assert.NoError(t, err)
	assert.Equal(t, 2, len(intervals))
	assert.Equal(t, int64(0), intervals[0].StartMs)
	assert.Equal(t, int64(2000), intervals[1].StartMs)
	assert.Equal(t, int64(2), intervals[1].TotalCount)
	assert.Equal(t, 1, len(skipped))
	assert.Equal(t, 1, skipped[0].Index)

	_, err = ReadAll(NewReader(bytes.NewReader(log), nil))
	assert.True(t, errors.Is(err, sentinel.ErrDataError))

	short := strings.Replace(string(log), "HISTFAAAA%%not-base64%%", "AAAA", 1)

	skipped = nil
	intervals, err = ReadAll(NewReader(strings.NewReader(short), func(e *DataError) { skipped = append(skipped, e) }))
	assert.NoError(t, err)
	assert.Equal(t, 2, len(intervals))
	assert.Equal(t, 1, len(skipped))

	svc, err := NewService(DefaultMaxDataPoints, nil)
	assert.NoError(t, err)

	data, err := svc.Read(bytes.NewReader(log))
	assert.NoError(t, err)
	assert.Equal(t, 2, data.Len())
}

func TestReader_UnterminatedLastLine(t *testing.T) {
	log := bytes.TrimRight(writeLog(t, newInterval(t, 0, 1000, 1_000), newInterval(t, 1000, 2000, 2_000)), "\n")

	intervals, err := ReadAll(NewReader(bytes.NewReader(log), nil))
	assert.NoError(t, err)
	assert.Equal(t, 2, len(intervals))
}

func TestReader_StreamFailure(t *testing.T) {
	broken := io.MultiReader(bytes.NewReader(writeLog(t, newInterval(t, 0, 1000, 1_000))), iotest.ErrReader(errors.New("disk gone")))

	_, err := ReadAll(NewReader(broken, func(*DataError) {}))
	assert.Error(t, err)
	assert.False(t, errors.Is(err, sentinel.ErrDataError))
}

func TestService_AggregateUnalignedSeconds(t *testing.T) {
	svc, err := NewService(DefaultMaxDataPoints, nil)
	assert.NoError(t, err)

	one := writeLog(t, newInterval(t, 1500, 2500, 1_000, 2_000, 3_000, 4_000))

	data, err := svc.Aggregate([]io.Reader{bytes.NewReader(one)})
	assert.NoError(t, err)
	assert.Equal(t, []float64{4}, data.TPS)
	assert.Equal(t, int64(1500), data.StartTimes[0])

	data, err = svc.Aggregate([]io.Reader{bytes.NewReader(one), bytes.NewReader(one)})
	assert.NoError(t, err)
	assert.Equal(t, []float64{8}, data.TPS)
}
