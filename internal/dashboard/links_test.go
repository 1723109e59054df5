package dashboard

import (
	"errors"
	"testing"

	"github.com/longbridgeapp/assert"

	"perfstore/internal/sentinel"
)

func TestLinksBuild(t *testing.T) {
	l := NewLinks("/performance/")

	cases := []struct {
		link Link
		want string
	}{
		{Link{Kind: Home}, "/performance/"},
		{Link{Kind: Case, ID: 3}, "/performance/cases/3"},
		{Link{Kind: RunsList, ID: 3}, "/performance/cases/3/runs/json"},
		{Link{Kind: Run, ID: 7}, "/performance/runs/7"},
		{Link{Kind: Baseline, ID: 7}, "/performance/runs/7/baseline"},
		{Link{Kind: Job, ID: 9}, "/performance/jobs/9"},
		{Link{Kind: Outputs, ID: 9}, "/performance/jobs/9/outputs"},
		{Link{Kind: Output, ID: 11}, "/performance/outputs/11"},
		{Link{Kind: OutputHdr, ID: 11}, "/performance/outputs/11/hdr"},
		{Link{Kind: Aggregate, ID: 7, Op: "GET"}, "/performance/runs/7/aggregate/GET"},
		{Link{Kind: Aggregate, ID: 7, Op: "a/b"}, "/performance/runs/7/aggregate/a%2Fb"},
		{Link{Kind: Compare, IDs: []int64{1, 2, 3}}, "/performance/compare/1-2-3"},
		{Link{Kind: CompareOp, IDs: []int64{1, 2}, Op: "PUT"}, "/performance/compare/1-2/PUT"},
		{Link{Kind: Operations, ID: 7}, "/performance/runs/7/operations"},
		{Link{Kind: CommonOperations, IDs: []int64{4, 5}}, "/performance/runs/4-5/common-operations"},
		{Link{Kind: Regression, ID: 7, Threshold: 0.05}, "/performance/runs/7/regression/0.05"},
	}

	for _, tc := range cases {
		got, err := l.Build(tc.link)
		assert.NoError(t, err)
		assert.Equal(t, tc.want, got)
	}
}

func TestLinksRejectIncomplete(t *testing.T) {
	l := NewLinks("")

	for _, link := range []Link{
		{Kind: Run},
		{Kind: Aggregate, ID: 1},
		{Kind: CompareOp, Op: "GET"},
		{Kind: LinkKind(99), ID: 1},
	} {
		_, err := l.Build(link)
		assert.True(t, errors.Is(err, sentinel.ErrInvalidArgument))
	}
}

func TestLinkKindString(t *testing.T) {
	assert.Equal(t, "common-operations", CommonOperations.String())
	assert.Equal(t, "link(99)", LinkKind(99).String())
}
