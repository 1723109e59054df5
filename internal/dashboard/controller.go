package dashboard

import (
	"context"
	"strconv"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"perfstore/internal/chart"
	"perfstore/internal/compare"
	"perfstore/internal/hdr"
)

const defaultParallelism = 4

// Source is what the controller fetches from. *Client implements it.
type Source interface {
	Operations(ctx context.Context, runID int64) ([]string, error)
	CommonOperations(ctx context.Context, runIDs []int64) ([]string, error)
	Aggregate(ctx context.Context, runID int64, op string) (*hdr.HdrData, error)
	Compare(ctx context.Context, runIDs []int64, op string) (*compare.Result, error)
	SetBaseline(ctx context.Context, runID int64, baseline bool) error
}

var _ Source = (*Client)(nil)

// Controller runs report pages: one independent fetch-then-draw task per
// operation, each publishing its progress into the shared State.
type Controller struct {
	source  Source
	surface chart.Surface
	log     *zap.Logger

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	// page counts entered pages; events of older pages are dropped.
	page int
	// Results keeps the last comparison per operation.
	results map[string]*compare.Result
}

// NewController draws onto surface with data from source.
func NewController(source Source, surface chart.Surface, log *zap.Logger) *Controller {
	if log == nil {
		log = zap.NewNop()
	}

	return &Controller{source: source, surface: surface, log: log, state: NewState(), results: map[string]*compare.Result{}}
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

// Comparison returns the last comparison of op.
func (c *Controller) Comparison(op string) (*compare.Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok := c.results[op]

	return r, ok
}

func (c *Controller) dispatch(page int, ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if page != c.page {
		return
	}

	c.state = Reduce(c.state, ev)
}

// enter starts a new page: in-flight work of the previous one is canceled.
func (c *Controller) enter(ctx context.Context) (context.Context, int) {
	ctx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}

	c.page++
	c.cancel = cancel
	c.state = NewState()
	c.results = map[string]*compare.Result{}

	return ctx, c.page
}

// Leave cancels in-flight work and resets the state.
func (c *Controller) Leave() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}

	c.page++
	c.state = Reduce(c.state, Event{Type: Reset})
}

func runName(id int64) string {
	return "run " + strconv.FormatInt(id, 10)
}

// ReportRun draws every chart of every operation of a run. Failures of one
// operation mark it ERROR and leave the others running. The returned error
// covers the operation listing only.
func (c *Controller) ReportRun(ctx context.Context, runID int64) error {
	ctx, page := c.enter(ctx)

	ops, err := c.source.Operations(ctx, runID)
	if err != nil {
		c.dispatch(page, Event{Type: Notice, Text: err.Error()})

		return err
	}

	if len(ops) == 0 {
		err := &compare.EmptyResultError{Reason: "the run recorded no operations"}
		c.dispatch(page, Event{Type: Notice, Text: err.Error()})

		return err
	}

	c.fanOut(ctx, page, ops, func(ctx context.Context, op string) error {
		data, err := c.source.Aggregate(ctx, runID, op)
		if err != nil {
			return err
		}

		c.dispatch(page, Event{Type: DataArrived, Op: op})

		return c.draw(page, op, []chart.Run{{Name: runName(runID), Data: data}}, true)
	})

	return nil
}

// ReportComparison draws every common operation of runs, one series per run.
// Fewer than two runs or no common operation give an EmptyResultError before
// any chart data is fetched.
func (c *Controller) ReportComparison(ctx context.Context, runIDs []int64) error {
	ctx, page := c.enter(ctx)

	ids := compare.Dedupe(runIDs)
	if len(ids) < 2 {
		err := &compare.EmptyResultError{Reason: strconv.Itoa(len(ids)) + " run(s) selected, at least 2 are needed"}
		c.dispatch(page, Event{Type: Notice, Text: err.Error()})

		return err
	}

	ops, err := c.source.CommonOperations(ctx, ids)
	if err != nil {
		c.dispatch(page, Event{Type: Notice, Text: err.Error()})

		return err
	}

	if len(ops) == 0 {
		err := &compare.EmptyResultError{Reason: "no common operations"}
		c.dispatch(page, Event{Type: Notice, Text: err.Error()})

		return err
	}

	c.fanOut(ctx, page, ops, func(ctx context.Context, op string) error {
		result, err := c.source.Compare(ctx, ids, op)
		if err != nil {
			return err
		}

		c.mu.Lock()
		if page == c.page {
			c.results[op] = result
		}
		c.mu.Unlock()

		c.dispatch(page, Event{Type: DataArrived, Op: op})

		runs := make([]chart.Run, 0, len(result.Rows))
		for _, row := range result.Rows {
			runs = append(runs, chart.Run{Name: runName(row.RunID), Data: row.Data})
		}

		return c.draw(page, op, runs, false)
	})

	return nil
}

// ToggleBaseline sets the baseline flag of a run.
func (c *Controller) ToggleBaseline(ctx context.Context, runID int64, baseline bool) error {
	c.mu.Lock()
	page := c.page
	c.mu.Unlock()

	if err := c.source.SetBaseline(ctx, runID, baseline); err != nil {
		c.dispatch(page, Event{Type: Notice, Text: err.Error()})

		return err
	}

	return nil
}

// fanOut runs task once per operation and waits for all of them.
func (c *Controller) fanOut(ctx context.Context, page int, ops []string, task func(context.Context, string) error) {
	for _, op := range ops {
		c.dispatch(page, Event{Type: FetchStarted, Op: op})
	}

	var g errgroup.Group
	g.SetLimit(defaultParallelism)

	for _, op := range ops {
		g.Go(func() error {
			if err := task(ctx, op); err != nil {
				c.log.Warn("operation report failed", zap.String("operation", op), zap.Error(err))
				c.dispatch(page, Event{Type: FetchFailed, Op: op, Err: err})
			}

			return nil
		})
	}

	_ = g.Wait()
}

func (c *Controller) draw(page int, op string, runs []chart.Run, timeAxis bool) error {
	for _, kind := range chart.Kinds {
		target := chart.Target(op, kind)

		if err := chart.Plot(c.surface, kind, target, runs, timeAxis); err != nil {
			return err
		}

		c.dispatch(page, Event{Type: ChartDrawn, Op: op, Target: target})
	}

	c.dispatch(page, Event{Type: DrawCompleted, Op: op})

	return nil
}
