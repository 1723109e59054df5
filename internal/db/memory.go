// Package db persists store records in memory or in Postgres.
package db

import (
	"context"
	"slices"
	"sync"

	"github.com/hyp3rd/ewrap"

	"perfstore/internal/core"
	"perfstore/internal/sentinel"
)

// MemoryDB is an in-memory implementation of core.Database.
type MemoryDB struct {
	mu     sync.RWMutex
	nextID int64

	cases   map[int64]core.Case
	runs    map[int64]core.Run
	jobs    map[int64]core.Job
	outputs map[int64]core.OutputLog
	monitor map[int64]core.MonitorLog
}

// NewMemoryDB returns an empty store.
func NewMemoryDB() *MemoryDB {
	return &MemoryDB{
		cases:   make(map[int64]core.Case),
		runs:    make(map[int64]core.Run),
		jobs:    make(map[int64]core.Job),
		outputs: make(map[int64]core.OutputLog),
		monitor: make(map[int64]core.MonitorLog),
	}
}

func (m *MemoryDB) id() int64 {
	m.nextID++

	return m.nextID
}

func notFound(kind string, id int64) error {
	return ewrap.Wrapf(sentinel.ErrNotFound, "%s %d", kind, id)
}

// get looks id up in records under the read lock.
func get[T any](m *MemoryDB, records map[int64]T, kind string, id int64) (*T, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := records[id]
	if !ok {
		return nil, notFound(kind, id)
	}

	return &rec, nil
}

// list returns the records matching keep in ID order.
func list[T any](m *MemoryDB, records map[int64]T, keep func(T) bool) []T {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]int64, 0, len(records))
	for id, rec := range records {
		if keep(rec) {
			ids = append(ids, id)
		}
	}

	slices.Sort(ids)

	out := make([]T, 0, len(ids))
	for _, id := range ids {
		out = append(out, records[id])
	}

	return out
}

func (m *MemoryDB) CreateCase(_ context.Context, c *core.Case) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.cases {
		if existing.Name == c.Name {
			return ewrap.Wrapf(sentinel.ErrDuplicateName, "case %q", c.Name)
		}
	}

	c.ID = m.id()
	m.cases[c.ID] = *c

	return nil
}

func (m *MemoryDB) GetCase(_ context.Context, id int64) (*core.Case, error) {
	return get(m, m.cases, "case", id)
}

func (m *MemoryDB) ListCases(_ context.Context) ([]core.Case, error) {
	return list(m, m.cases, func(core.Case) bool { return true }), nil
}

func (m *MemoryDB) CreateRun(_ context.Context, r *core.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r.ID = m.id()
	m.runs[r.ID] = *r

	return nil
}

func (m *MemoryDB) GetRun(_ context.Context, id int64) (*core.Run, error) {
	return get(m, m.runs, "run", id)
}

func (m *MemoryDB) ListRuns(_ context.Context, caseID int64) ([]core.Run, error) {
	return list(m, m.runs, func(r core.Run) bool { return r.CaseID == caseID }), nil
}

func (m *MemoryDB) UpdateRun(_ context.Context, r *core.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.runs[r.ID]; !ok {
		return notFound("run", r.ID)
	}

	m.runs[r.ID] = *r

	return nil
}

// LastBaseline returns the most recently created baseline run of a case.
func (m *MemoryDB) LastBaseline(_ context.Context, caseID int64) (*core.Run, error) {
	runs := list(m, m.runs, func(r core.Run) bool { return r.CaseID == caseID && r.Baseline })
	if len(runs) == 0 {
		return nil, ewrap.Wrapf(sentinel.ErrNotFound, "baseline of case %d", caseID)
	}

	last := runs[len(runs)-1]

	return &last, nil
}

func (m *MemoryDB) CreateJob(_ context.Context, j *core.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j.ID = m.id()
	m.jobs[j.ID] = *j

	return nil
}

func (m *MemoryDB) GetJob(_ context.Context, id int64) (*core.Job, error) {
	return get(m, m.jobs, "job", id)
}

func (m *MemoryDB) ListJobs(_ context.Context, runID int64) ([]core.Job, error) {
	return list(m, m.jobs, func(j core.Job) bool { return j.RunID == runID }), nil
}

func (m *MemoryDB) CreateOutput(_ context.Context, o *core.OutputLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o.ID = m.id()
	o.Proof = slices.Clone(o.Proof)
	m.outputs[o.ID] = *o

	return nil
}

func (m *MemoryDB) GetOutput(_ context.Context, id int64) (*core.OutputLog, error) {
	return get(m, m.outputs, "output", id)
}

func (m *MemoryDB) ListOutputs(_ context.Context, jobID int64) ([]core.OutputLog, error) {
	return list(m, m.outputs, func(o core.OutputLog) bool { return o.JobID == jobID }), nil
}

func (m *MemoryDB) OutputsForOperation(_ context.Context, runID int64, op string) ([]core.OutputLog, error) {
	return list(m, m.outputs, func(o core.OutputLog) bool { return o.RunID == runID && o.Operation == op }), nil
}

// Operations returns the sorted distinct operation names of a run.
func (m *MemoryDB) Operations(_ context.Context, runID int64) ([]string, error) {
	ops := []string{}

	for _, o := range list(m, m.outputs, func(o core.OutputLog) bool { return o.RunID == runID }) {
		ops = append(ops, o.Operation)
	}

	slices.Sort(ops)

	return slices.Compact(ops), nil
}

func (m *MemoryDB) CreateMonitorLog(_ context.Context, ml *core.MonitorLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ml.ID = m.id()
	m.monitor[ml.ID] = *ml

	return nil
}

func (m *MemoryDB) GetMonitorLog(_ context.Context, id int64) (*core.MonitorLog, error) {
	return get(m, m.monitor, "monitor log", id)
}

func (m *MemoryDB) ListMonitorLogs(_ context.Context, runID int64) ([]core.MonitorLog, error) {
	return list(m, m.monitor, func(ml core.MonitorLog) bool { return ml.RunID == runID }), nil
}
