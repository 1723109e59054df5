package dashboard

import "slices"

// Selection is the state of the comparison form: the runs picked so far and
// the operations they all recorded.
type Selection struct {
	Runs      []int64
	CommonOps []string
}

// AddRuns appends runs not selected yet, keeping their order. Common
// operations are cleared until recomputed.
func (s Selection) AddRuns(ids ...int64) Selection {
	runs := slices.Clone(s.Runs)

	for _, id := range ids {
		if !slices.Contains(runs, id) {
			runs = append(runs, id)
		}
	}

	return Selection{Runs: runs}
}

// RemoveRuns drops the given runs.
func (s Selection) RemoveRuns(ids ...int64) Selection {
	runs := slices.DeleteFunc(slices.Clone(s.Runs), func(id int64) bool { return slices.Contains(ids, id) })

	return Selection{Runs: runs}
}

// Clear empties the selection.
func (s Selection) Clear() Selection {
	return Selection{}
}

// WithCommonOps records the operations shared by the selected runs.
func (s Selection) WithCommonOps(ops []string) Selection {
	return Selection{Runs: s.Runs, CommonOps: slices.Clone(ops)}
}

// CanCompare reports whether at least two runs sharing an operation are selected.
func (s Selection) CanCompare() bool {
	return len(s.Runs) >= 2 && len(s.CommonOps) > 0
}
