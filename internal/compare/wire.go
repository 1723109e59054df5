package compare

import (
	"slices"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/hyp3rd/ewrap"

	"perfstore/internal/hdr"
)

// wireResult is the JSON shape served at /compare/{ids}/{op}. Order keeps the
// caller's run order, which a JSON object cannot carry.
type wireResult struct {
	Operation string                  `json:"operation,omitempty"`
	Order     []int64                 `json:"order,omitempty"`
	Runs      map[string]*hdr.HdrData `json:"runs"`
	PValues   map[string]float64      `json:"pvalues"`
}

// MarshalJSON encodes {runs: {id: data}, pvalues: {"[a,b]": p}}.
func (r *Result) MarshalJSON() ([]byte, error) {
	w := wireResult{
		Operation: r.Operation,
		Order:     make([]int64, 0, len(r.Rows)),
		Runs:      make(map[string]*hdr.HdrData, len(r.Rows)),
		PValues:   make(map[string]float64, len(r.PValues)),
	}

	for _, row := range r.Rows {
		w.Order = append(w.Order, row.RunID)
		w.Runs[strconv.FormatInt(row.RunID, 10)] = row.Data
	}

	for pair, p := range r.PValues {
		w.PValues[pair.String()] = p
	}

	return json.Marshal(w)
}

// UnmarshalJSON decodes the wire shape. Without an order, rows are sorted by run id.
func (r *Result) UnmarshalJSON(data []byte) error {
	var w wireResult
	if err := json.Unmarshal(data, &w); err != nil {
		return ewrap.Wrap(err, "decode comparison")
	}

	order := w.Order
	if len(order) == 0 {
		for key := range w.Runs {
			id, err := strconv.ParseInt(key, 10, 64)
			if err != nil {
				return ewrap.Wrapf(err, "run id %q", key)
			}

			order = append(order, id)
		}

		slices.Sort(order)
	}

	r.Operation = w.Operation
	r.Rows = make([]Row, 0, len(order))

	for _, id := range order {
		r.Rows = append(r.Rows, Row{RunID: id, Data: w.Runs[strconv.FormatInt(id, 10)]})
	}

	r.PValues = make(map[Pair]float64, len(w.PValues))

	for key, p := range w.PValues {
		var pair Pair
		if err := pair.UnmarshalText([]byte(key)); err != nil {
			return err
		}

		r.PValues[pair] = p
	}

	return nil
}
