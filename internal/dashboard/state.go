package dashboard

import (
	"maps"
	"slices"
)

// Phase is the progress of one operation's report.
type Phase string

const (
	Pending  Phase = "PENDING"
	Loading  Phase = "LOADING"
	Rendered Phase = "RENDERED"
	Failed   Phase = "ERROR"
)

// OpState is the progress of one operation.
type OpState struct {
	Phase   Phase
	HasData bool
	Err     string
	// Tabs lists the chart targets drawn so far, in drawing order.
	Tabs []string
}

// State is the whole page state. Values are never mutated in place;
// Reduce returns a new State.
type State struct {
	Ops map[string]OpState
	// Order keeps operations in the order they were first seen.
	Order     []string
	ActiveTab string
	// Message is a blocking notice such as "nothing to compare".
	Message string
}

// NewState returns a state with every op pending.
func NewState(ops ...string) State {
	s := State{Ops: make(map[string]OpState, len(ops))}

	for _, op := range ops {
		if _, ok := s.Ops[op]; ok {
			continue
		}

		s.Ops[op] = OpState{Phase: Pending}
		s.Order = append(s.Order, op)
	}

	return s
}

// EventType tags an Event.
type EventType int

const (
	FetchStarted EventType = iota
	DataArrived
	ChartDrawn
	DrawCompleted
	FetchFailed
	Notice
	Reset
)

// Event is an input of Reduce.
type Event struct {
	Type EventType
	Op   string
	// Target is the drawn chart for ChartDrawn.
	Target string
	Err    error
	// Text is the notice for Notice.
	Text string
}

func (s State) clone() State {
	out := s
	out.Ops = maps.Clone(s.Ops)
	out.Order = slices.Clone(s.Order)

	if out.Ops == nil {
		out.Ops = map[string]OpState{}
	}

	return out
}

// Reduce applies ev to s. Events the machine does not allow in the current
// phase leave the state unchanged.
//
//	PENDING  --FetchStarted-->  LOADING
//	ERROR    --FetchStarted-->  LOADING
//	LOADING  --DataArrived-->   LOADING (with data)
//	LOADING  --ChartDrawn-->    LOADING (one more tab), once data arrived
//	LOADING  --DrawCompleted--> RENDERED, once data arrived
//	LOADING  --FetchFailed-->   ERROR
func Reduce(s State, ev Event) State {
	switch ev.Type {
	case Reset:
		return NewState()
	case Notice:
		out := s.clone()
		out.Message = ev.Text

		return out
	}

	cur, known := s.Ops[ev.Op]
	if !known {
		cur = OpState{Phase: Pending}
	}

	next, ok := transition(cur, ev)
	if !ok {
		return s
	}

	out := s.clone()
	if !known {
		out.Order = append(out.Order, ev.Op)
	}

	out.Ops[ev.Op] = next

	if out.ActiveTab == "" && ev.Type == ChartDrawn {
		out.ActiveTab = ev.Target
	}

	return out
}

func transition(cur OpState, ev Event) (OpState, bool) {
	switch ev.Type {
	case FetchStarted:
		if cur.Phase != Pending && cur.Phase != Failed {
			return cur, false
		}

		return OpState{Phase: Loading}, true
	case DataArrived:
		if cur.Phase != Loading {
			return cur, false
		}

		cur.HasData = true

		return cur, true
	case ChartDrawn:
		if cur.Phase != Loading || !cur.HasData {
			return cur, false
		}

		if ev.Target != "" && !slices.Contains(cur.Tabs, ev.Target) {
			cur.Tabs = append(slices.Clone(cur.Tabs), ev.Target)
		}

		return cur, true
	case DrawCompleted:
		if cur.Phase != Loading || !cur.HasData {
			return cur, false
		}

		cur.Phase = Rendered

		return cur, true
	case FetchFailed:
		if cur.Phase != Loading {
			return cur, false
		}

		msg := "fetch failed"
		if ev.Err != nil {
			msg = ev.Err.Error()
		}

		return OpState{Phase: Failed, Err: msg, Tabs: cur.Tabs}, true
	default:
		return cur, false
	}
}

// Done reports whether no operation is pending or loading.
func (s State) Done() bool {
	for _, op := range s.Ops {
		if op.Phase == Pending || op.Phase == Loading {
			return false
		}
	}

	return true
}

// Phase returns the phase of op, Pending when unknown.
func (s State) Phase(op string) Phase {
	if st, ok := s.Ops[op]; ok {
		return st.Phase
	}

	return Pending
}
