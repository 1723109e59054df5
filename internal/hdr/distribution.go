package hdr

import (
	"bufio"
	"bytes"
	"math"
	"strconv"
	"strings"

	"github.com/hyp3rd/ewrap"
)

// DistributionFormatV1 names the percentile-distribution text layout printed by
// the histogram library: a header, then one line per step holding
// "value percentile totalCount 1/(1-percentile)", then '#'-prefixed footer lines.
// The layout is owned by the library; the parser accepts exactly this shape.
const DistributionFormatV1 = "hdrhistogram-percentiles/v1"

const (
	distributionFields   = 4
	distributionComment  = '#'
	ticksPerHalfDistance = 5
	nanosPerMilli        = 1e6
)

// CurvePoint is one step of the percentile curve: X is the cumulative
// percentile as a fraction in [0, 1], Y the value in milliseconds.
type CurvePoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// ParseDistribution turns percentile-distribution text into curve points.
// Comment lines and malformed lines produce no point; each malformed line is
// reported through skip when skip is not nil.
func ParseDistribution(text string, skip func(*DataError)) []CurvePoint {
	var points []CurvePoint

	scanner := bufio.NewScanner(strings.NewReader(text))
	lineNo := 0

	for scanner.Scan() {
		lineNo++

		point, err := parseDistributionLine(scanner.Text(), lineNo)
		if err != nil {
			if skip != nil {
				skip(err)
			}

			continue
		}

		if point != nil {
			points = append(points, *point)
		}
	}

	return points
}

// parseDistributionLine returns (nil, nil) for blank and comment lines.
func parseDistributionLine(raw string, lineNo int) (*CurvePoint, *DataError) {
	line := strings.TrimSpace(raw)
	if line == "" || line[0] == distributionComment {
		return nil, nil
	}

	fields := strings.Fields(line)
	if len(fields) != distributionFields {
		return nil, &DataError{Index: lineNo, Reason: "expected 4 fields"}
	}

	value, err := strconv.ParseFloat(fields[0], 64)
	if err != nil || math.IsNaN(value) {
		return nil, &DataError{Index: lineNo, Reason: "non-numeric value"}
	}

	percentile, err := strconv.ParseFloat(fields[1], 64)
	if err != nil || math.IsNaN(percentile) {
		return nil, &DataError{Index: lineNo, Reason: "non-numeric percentile"}
	}

	return &CurvePoint{X: percentile, Y: value / nanosPerMilli}, nil
}

// Curve prints the merged distribution and parses it back into curve points.
// An empty accumulator yields no points.
func Curve(acc *Accumulator) ([]CurvePoint, error) {
	if acc.TotalCount() == 0 {
		return nil, nil
	}

	var buf bytes.Buffer

	_, err := acc.Histogram().PercentilesPrint(&buf, ticksPerHalfDistance, 1.0)
	if err != nil {
		return nil, ewrap.Wrap(err, "print percentile distribution")
	}

	return ParseDistribution(buf.String(), nil), nil
}
