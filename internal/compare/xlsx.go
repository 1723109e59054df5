package compare

import (
	"io"
	"strconv"

	"github.com/hyp3rd/ewrap"
	"github.com/xuri/excelize/v2"

	"perfstore/internal/hdr"
)

const (
	percentileSheet = "Percentiles"
	pvalueSheet     = "P-Values"
)

// WriteXLSX exports the comparison as a workbook with a percentile table
// (microseconds) and a p-value table.
func WriteXLSX(w io.Writer, r *Result) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", percentileSheet); err != nil {
		return ewrap.Wrap(err, "name percentile sheet")
	}

	header := []any{"Run"}
	for _, p := range hdr.Percentiles {
		header = append(header, p.Name()+" (us)")
	}

	if err := f.SetSheetRow(percentileSheet, "A1", &header); err != nil {
		return ewrap.Wrap(err, "write percentile header")
	}

	for i, row := range r.Rows {
		values := []any{row.RunID}

		for _, p := range hdr.Percentiles {
			var v float64
			if row.Data != nil {
				v = row.Data.RoundedPercentiles.Micros(p)
			}

			values = append(values, v)
		}

		if err := f.SetSheetRow(percentileSheet, "A"+strconv.Itoa(i+2), &values); err != nil {
			return ewrap.Wrapf(err, "write run %d", row.RunID)
		}
	}

	if _, err := f.NewSheet(pvalueSheet); err != nil {
		return ewrap.Wrap(err, "create p-value sheet")
	}

	if err := f.SetSheetRow(pvalueSheet, "A1", &[]any{"Run", "Run", "p-value"}); err != nil {
		return ewrap.Wrap(err, "write p-value header")
	}

	line := 2

	for i := range r.Rows {
		for j := i + 1; j < len(r.Rows); j++ {
			a, b := r.Rows[i].RunID, r.Rows[j].RunID

			p, ok := r.PValue(a, b)
			if !ok {
				continue
			}

			if err := f.SetSheetRow(pvalueSheet, "A"+strconv.Itoa(line), &[]any{a, b, p}); err != nil {
				return ewrap.Wrapf(err, "write pair %d-%d", a, b)
			}

			line++
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return ewrap.Wrap(err, "write workbook")
	}

	return nil
}
