// Package compare builds per-operation comparisons of several runs: one row
// per run in caller order and a p-value for every pair of runs.
package compare

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/hyp3rd/ewrap"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"perfstore/internal/hdr"
	"perfstore/internal/sentinel"
)

// defaultFetchLimit bounds concurrent fetches of one comparison.
const defaultFetchLimit = 4

// Fetcher returns the aggregated document of one operation of one run.
type Fetcher interface {
	Fetch(ctx context.Context, runID int64, op string) (*hdr.HdrData, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, runID int64, op string) (*hdr.HdrData, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, runID int64, op string) (*hdr.HdrData, error) {
	return f(ctx, runID, op)
}

// PValueFunc tests two documents for distributional equality.
type PValueFunc func(x, y *hdr.HdrData) float64

// EmptyResultError flags a comparison that cannot be made. It is a user
// facing condition, not a failure of the system.
type EmptyResultError struct {
	Reason string
}

func (e *EmptyResultError) Error() string {
	return "nothing to compare: " + e.Reason
}

// Unwrap lets errors.Is match sentinel.ErrNothingToCompare.
func (e *EmptyResultError) Unwrap() error {
	return sentinel.ErrNothingToCompare
}

// Pair is an unordered pair of runs, kept in caller order.
type Pair struct {
	Left  int64
	Right int64
}

func (p Pair) String() string {
	return fmt.Sprintf("[%d,%d]", p.Left, p.Right)
}

// MarshalText encodes the pair as "[left,right]".
func (p Pair) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText parses "[left,right]".
func (p *Pair) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	if !strings.HasPrefix(s, "[") || !strings.HasSuffix(s, "]") {
		return ewrap.Wrapf(sentinel.ErrInvalidArgument, "pair %q", s)
	}

	parts := strings.Split(s[1:len(s)-1], ",")
	if len(parts) != 2 {
		return ewrap.Wrapf(sentinel.ErrInvalidArgument, "pair %q", s)
	}

	left, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
	if err != nil {
		return ewrap.Wrapf(sentinel.ErrInvalidArgument, "pair %q", s)
	}

	right, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
	if err != nil {
		return ewrap.Wrapf(sentinel.ErrInvalidArgument, "pair %q", s)
	}

	p.Left, p.Right = left, right

	return nil
}

// Row is one run of a comparison.
type Row struct {
	RunID int64
	Data  *hdr.HdrData
}

// Result is the comparison of one operation across runs.
type Result struct {
	Operation string
	Rows      []Row
	PValues   map[Pair]float64
}

// PValue looks a pair up in either order.
func (r *Result) PValue(a, b int64) (float64, bool) {
	if p, ok := r.PValues[Pair{a, b}]; ok {
		return p, true
	}

	p, ok := r.PValues[Pair{b, a}]

	return p, ok
}

// Aggregator assembles comparisons from fetched documents.
type Aggregator struct {
	fetch  Fetcher
	pvalue PValueFunc
	limit  int
	log    *zap.Logger
}

// NewAggregator returns an Aggregator using fetch for data and pvalue for pair tests.
func NewAggregator(fetch Fetcher, pvalue PValueFunc, log *zap.Logger) *Aggregator {
	if log == nil {
		log = zap.NewNop()
	}

	return &Aggregator{fetch: fetch, pvalue: pvalue, limit: defaultFetchLimit, log: log}
}

// Dedupe drops repeated ids, keeping the first occurrence.
func Dedupe(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))

	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}

		seen[id] = struct{}{}
		out = append(out, id)
	}

	return out
}

// Compare fetches op for every run and tests each pair. Fewer than two
// distinct runs give an empty result together with an *EmptyResultError,
// before anything is fetched.
func (a *Aggregator) Compare(ctx context.Context, op string, ids []int64) (*Result, error) {
	ids = Dedupe(ids)
	result := &Result{Operation: op, PValues: make(map[Pair]float64)}

	if len(ids) < 2 {
		return result, &EmptyResultError{Reason: fmt.Sprintf("%d run(s) selected, at least 2 are needed", len(ids))}
	}

	data := make([]*hdr.HdrData, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.limit)

	for i, id := range ids {
		g.Go(func() error {
			d, err := a.fetch.Fetch(gctx, id, op)
			if err != nil {
				return ewrap.Wrapf(err, "fetch %s of run %d", op, id)
			}

			data[i] = d

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	result.Rows = make([]Row, 0, len(ids))
	for i, id := range ids {
		result.Rows = append(result.Rows, Row{RunID: id, Data: data[i]})
	}

	for i := range ids {
		for j := i + 1; j < len(ids); j++ {
			result.PValues[Pair{ids[i], ids[j]}] = a.pvalue(data[i], data[j])
		}
	}

	a.log.Debug("runs compared", zap.String("operation", op), zap.Int64s("runs", ids))

	return result, nil
}

// ChangeReport lists the operations of a run whose distribution differs
// from the baseline run with a p-value below the threshold.
type ChangeReport struct {
	BaselineID int64              `json:"baselineID,omitempty"`
	Threshold  float64            `json:"threshold"`
	PValues    map[string]float64 `json:"pValues"`
}

// Regression compares every operation of runID against baselineID. A zero
// baselineID means no baseline exists and yields an empty report.
func (a *Aggregator) Regression(ctx context.Context, baselineID, runID int64, ops []string, threshold float64) (*ChangeReport, error) {
	report := &ChangeReport{BaselineID: baselineID, Threshold: threshold, PValues: map[string]float64{}}
	if baselineID == 0 {
		return report, nil
	}

	for _, op := range ops {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		base, err := a.fetch.Fetch(ctx, baselineID, op)
		if err != nil {
			return nil, ewrap.Wrapf(err, "fetch %s of baseline %d", op, baselineID)
		}

		current, err := a.fetch.Fetch(ctx, runID, op)
		if err != nil {
			return nil, ewrap.Wrapf(err, "fetch %s of run %d", op, runID)
		}

		if p := a.pvalue(base, current); p < threshold {
			report.PValues[op] = p
		}
	}

	return report, nil
}
