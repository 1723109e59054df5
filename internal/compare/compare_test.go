package compare

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/goccy/go-json"
	"github.com/longbridgeapp/assert"
	"github.com/xuri/excelize/v2"

	"perfstore/internal/hdr"
	"perfstore/internal/sentinel"
)

type fakeFetcher struct {
	calls atomic.Int32
	docs  map[int64]*hdr.HdrData
	fail  int64
}

func (f *fakeFetcher) Fetch(_ context.Context, runID int64, _ string) (*hdr.HdrData, error) {
	f.calls.Add(1)

	if runID == f.fail {
		return nil, sentinel.ErrNotFound
	}

	return f.docs[runID], nil
}

func doc(maxNanos int64) *hdr.HdrData {
	d := hdr.Blank()
	d.RoundedPercentiles = hdr.PercentileSummary{"MEDIAN": maxNanos / 2, "_99": maxNanos, "_99_99": maxNanos, "MAX": maxNanos}
	d.FixedPercentileValues = []int64{maxNanos}

	return d
}

// pairID encodes which documents were compared so tests can check wiring.
func pairID(x, y *hdr.HdrData) float64 {
	return float64(x.FixedPercentileValues[0]*1000 + y.FixedPercentileValues[0])
}

func newFetcher() *fakeFetcher {
	return &fakeFetcher{docs: map[int64]*hdr.HdrData{1: doc(1), 2: doc(2), 3: doc(3)}}
}

func TestCompare_RowsAndPairs(t *testing.T) {
	f := newFetcher()
	agg := NewAggregator(f, pairID, nil)

	res, err := agg.Compare(context.Background(), "GET", []int64{3, 1, 2, 1})
	assert.NoError(t, err)
	assert.Equal(t, int32(3), f.calls.Load())

	assert.Equal(t, 3, len(res.Rows))
	assert.Equal(t, int64(3), res.Rows[0].RunID)
	assert.Equal(t, int64(1), res.Rows[1].RunID)
	assert.Equal(t, int64(2), res.Rows[2].RunID)

	assert.Equal(t, 3, len(res.PValues))
	assert.Equal(t, 3001.0, res.PValues[Pair{3, 1}])
	assert.Equal(t, 3002.0, res.PValues[Pair{3, 2}])
	assert.Equal(t, 1002.0, res.PValues[Pair{1, 2}])

	p, ok := res.PValue(2, 1)
	assert.True(t, ok)
	assert.Equal(t, 1002.0, p)
}

func TestCompare_NothingToCompare(t *testing.T) {
	f := newFetcher()
	agg := NewAggregator(f, pairID, nil)

	for _, ids := range [][]int64{nil, {1}, {2, 2}} {
		res, err := agg.Compare(context.Background(), "GET", ids)
		assert.True(t, errors.Is(err, sentinel.ErrNothingToCompare))

		var empty *EmptyResultError
		assert.True(t, errors.As(err, &empty))
		assert.NotNil(t, res)
		assert.Equal(t, 0, len(res.PValues))
	}

	assert.Equal(t, int32(0), f.calls.Load())
}

func TestCompare_FetchFailure(t *testing.T) {
	f := newFetcher()
	f.fail = 2

	_, err := NewAggregator(f, pairID, nil).Compare(context.Background(), "GET", []int64{1, 2})
	assert.True(t, errors.Is(err, sentinel.ErrNotFound))
}

func TestResult_JSON(t *testing.T) {
	res, err := NewAggregator(newFetcher(), pairID, nil).Compare(context.Background(), "PUT", []int64{2, 1})
	assert.NoError(t, err)

	raw, err := json.Marshal(res)
	assert.NoError(t, err)

	var wire map[string]any
	assert.NoError(t, json.Unmarshal(raw, &wire))

	pvalues, ok := wire["pvalues"].(map[string]any)
	assert.True(t, ok)
	assert.Equal(t, 2001.0, pvalues["[2,1]"])

	runs, ok := wire["runs"].(map[string]any)
	assert.True(t, ok)
	assert.Equal(t, 2, len(runs))

	var back Result
	assert.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, "PUT", back.Operation)
	assert.Equal(t, int64(2), back.Rows[0].RunID)
	assert.Equal(t, res.PValues, back.PValues)
	assert.Equal(t, int64(2), back.Rows[0].Data.RoundedPercentiles.Value(hdr.Max))
}

func TestPair_UnmarshalText(t *testing.T) {
	var p Pair
	assert.NoError(t, p.UnmarshalText([]byte("[12, 7]")))
	assert.Equal(t, Pair{12, 7}, p)

	assert.Error(t, p.UnmarshalText([]byte("12,7")))
	assert.Error(t, p.UnmarshalText([]byte("[a,7]")))
}

func TestWriteXLSX(t *testing.T) {
	res, err := NewAggregator(newFetcher(), pairID, nil).Compare(context.Background(), "GET", []int64{1, 2, 3})
	assert.NoError(t, err)

	var buf bytes.Buffer
	assert.NoError(t, WriteXLSX(&buf, res))

	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	assert.NoError(t, err)

	defer f.Close()

	rows, err := f.GetRows(percentileSheet)
	assert.NoError(t, err)
	assert.Equal(t, 4, len(rows))
	assert.Equal(t, "Run", rows[0][0])
	assert.Equal(t, "Max (us)", rows[0][4])
	assert.Equal(t, "3", rows[3][0])

	pairs, err := f.GetRows(pvalueSheet)
	assert.NoError(t, err)
	assert.Equal(t, 4, len(pairs))
	assert.Equal(t, "1", pairs[1][0])
	assert.Equal(t, "2", pairs[1][1])
}

func TestRegression(t *testing.T) {
	f := newFetcher()
	lowForThree := func(x, y *hdr.HdrData) float64 {
		if y.FixedPercentileValues[0] == 3 {
			return 0.001
		}

		return 0.9
	}

	agg := NewAggregator(f, lowForThree, nil)

	report, err := agg.Regression(context.Background(), 1, 3, []string{"GET", "PUT"}, 0.05)
	assert.NoError(t, err)
	assert.Equal(t, int64(1), report.BaselineID)
	assert.Equal(t, 2, len(report.PValues))
	assert.Equal(t, 0.001, report.PValues["GET"])

	report, err = agg.Regression(context.Background(), 1, 2, []string{"GET"}, 0.05)
	assert.NoError(t, err)
	assert.Equal(t, 0, len(report.PValues))

	report, err = agg.Regression(context.Background(), 0, 2, []string{"GET"}, 0.05)
	assert.NoError(t, err)
	assert.Equal(t, 0, len(report.PValues))
}
