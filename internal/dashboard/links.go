// Package dashboard drives the report pages: it builds store URLs, fetches
// chart documents, draws them and tracks per-operation progress.
package dashboard

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/hyp3rd/ewrap"

	"perfstore/internal/sentinel"
)

// LinkKind names a store resource.
type LinkKind int

const (
	Home LinkKind = iota
	Case
	RunsList
	Run
	Baseline
	Job
	Outputs
	Output
	OutputHdr
	Aggregate
	Compare
	CompareOp
	Operations
	CommonOperations
	Regression
)

var linkNames = [...]string{
	Home:             "home",
	Case:             "case",
	RunsList:         "runs-list",
	Run:              "run",
	Baseline:         "baseline",
	Job:              "job",
	Outputs:          "outputs",
	Output:           "output",
	OutputHdr:        "output-hdr",
	Aggregate:        "aggregate",
	Compare:          "compare",
	CompareOp:        "compare-op",
	Operations:       "operations",
	CommonOperations: "common-operations",
	Regression:       "regression",
}

func (k LinkKind) String() string {
	if k < 0 || int(k) >= len(linkNames) {
		return "link(" + strconv.Itoa(int(k)) + ")"
	}

	return linkNames[k]
}

// Link is a resource reference. Which fields matter depends on Kind.
type Link struct {
	Kind      LinkKind
	ID        int64
	IDs       []int64
	Op        string
	Threshold float64
}

// Links builds URLs below a base path.
type Links struct {
	base string
}

// NewLinks returns a builder for base, e.g. "/performance" or "http://host:8080/performance".
func NewLinks(base string) Links {
	return Links{base: strings.TrimSuffix(base, "/")}
}

// Base returns the base path.
func (l Links) Base() string {
	return l.base
}

func joinIDs(ids []int64) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, strconv.FormatInt(id, 10))
	}

	return strings.Join(parts, "-")
}

// Build renders link.
func (l Links) Build(link Link) (string, error) {
	id := strconv.FormatInt(link.ID, 10)
	op := url.PathEscape(link.Op)

	needsID := link.Kind != Home && link.Kind != Compare && link.Kind != CompareOp && link.Kind != CommonOperations
	if needsID && link.ID <= 0 {
		return "", ewrap.Wrapf(sentinel.ErrInvalidArgument, "%s link without id", link.Kind)
	}

	needsOp := link.Kind == Aggregate || link.Kind == CompareOp
	if needsOp && link.Op == "" {
		return "", ewrap.Wrapf(sentinel.ErrInvalidArgument, "%s link without operation", link.Kind)
	}

	switch link.Kind {
	case Home:
		return l.base + "/", nil
	case Case:
		return l.base + "/cases/" + id, nil
	case RunsList:
		return l.base + "/cases/" + id + "/runs/json", nil
	case Run:
		return l.base + "/runs/" + id, nil
	case Baseline:
		return l.base + "/runs/" + id + "/baseline", nil
	case Job:
		return l.base + "/jobs/" + id, nil
	case Outputs:
		return l.base + "/jobs/" + id + "/outputs", nil
	case Output:
		return l.base + "/outputs/" + id, nil
	case OutputHdr:
		return l.base + "/outputs/" + id + "/hdr", nil
	case Aggregate:
		return l.base + "/runs/" + id + "/aggregate/" + op, nil
	case Compare, CompareOp, CommonOperations:
		if len(link.IDs) == 0 {
			return "", ewrap.Wrapf(sentinel.ErrInvalidArgument, "%s link without runs", link.Kind)
		}

		ids := joinIDs(link.IDs)

		switch link.Kind {
		case Compare:
			return l.base + "/compare/" + ids, nil
		case CompareOp:
			return l.base + "/compare/" + ids + "/" + op, nil
		default:
			return l.base + "/runs/" + ids + "/common-operations", nil
		}
	case Operations:
		return l.base + "/runs/" + id + "/operations", nil
	case Regression:
		return l.base + "/runs/" + id + "/regression/" + strconv.FormatFloat(link.Threshold, 'g', -1, 64), nil
	default:
		return "", ewrap.Wrapf(sentinel.ErrInvalidArgument, "unknown link kind %d", int(link.Kind))
	}
}
