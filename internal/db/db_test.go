package db

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/longbridgeapp/assert"

	"perfstore/internal/core"
	"perfstore/internal/sentinel"
)

var (
	_ core.Database = (*MemoryDB)(nil)
	_ core.Database = (*PostgresDB)(nil)
)

// exercise runs the shared behavior checks against a fresh database.
func exercise(t *testing.T, d core.Database) {
	t.Helper()

	ctx := context.Background()

	c := &core.Case{Name: "checkout", Created: 1}
	assert.NoError(t, d.CreateCase(ctx, c))
	assert.NotEqual(t, int64(0), c.ID)

	err := d.CreateCase(ctx, &core.Case{Name: "checkout"})
	assert.True(t, errors.Is(err, sentinel.ErrDuplicateName))

	_, err = d.GetCase(ctx, c.ID+1000)
	assert.True(t, errors.Is(err, sentinel.ErrNotFound))

	r1 := &core.Run{CaseID: c.ID, Status: core.StatusComplete, Baseline: true}
	r2 := &core.Run{CaseID: c.ID, Status: core.StatusComplete, Baseline: true}
	r3 := &core.Run{CaseID: c.ID, Status: core.StatusIncomplete}

	for _, r := range []*core.Run{r1, r2, r3} {
		assert.NoError(t, d.CreateRun(ctx, r))
	}

	runs, err := d.ListRuns(ctx, c.ID)
	assert.NoError(t, err)
	assert.Equal(t, 3, len(runs))
	assert.Equal(t, r1.ID, runs[0].ID)

	base, err := d.LastBaseline(ctx, c.ID)
	assert.NoError(t, err)
	assert.Equal(t, r2.ID, base.ID)

	r2.Baseline = false
	assert.NoError(t, d.UpdateRun(ctx, r2))

	base, err = d.LastBaseline(ctx, c.ID)
	assert.NoError(t, err)
	assert.Equal(t, r1.ID, base.ID)

	_, err = d.LastBaseline(ctx, c.ID+1000)
	assert.True(t, errors.Is(err, sentinel.ErrNotFound))

	err = d.UpdateRun(ctx, &core.Run{ID: r3.ID + 1000, CaseID: c.ID})
	assert.True(t, errors.Is(err, sentinel.ErrNotFound))

	job := &core.Job{RunID: r1.ID, Host: "loadgen-1"}
	assert.NoError(t, d.CreateJob(ctx, job))

	for _, op := range []string{"write", "read", "write"} {
		out := &core.OutputLog{
			JobID:     job.ID,
			RunID:     r1.ID,
			Operation: op,
			Anchor:    core.Anchor{FileHash: "ab", Proof: []core.ProofStep{{Hash: "cd", Side: "left"}}},
		}
		assert.NoError(t, d.CreateOutput(ctx, out))
	}

	ops, err := d.Operations(ctx, r1.ID)
	assert.NoError(t, err)
	assert.Equal(t, []string{"read", "write"}, ops)

	ops, err = d.Operations(ctx, r3.ID)
	assert.NoError(t, err)
	assert.Equal(t, 0, len(ops))

	writes, err := d.OutputsForOperation(ctx, r1.ID, "write")
	assert.NoError(t, err)
	assert.Equal(t, 2, len(writes))
	assert.Equal(t, 1, len(writes[0].Proof))
	assert.Equal(t, "left", writes[0].Proof[0].Side)

	outs, err := d.ListOutputs(ctx, job.ID)
	assert.NoError(t, err)
	assert.Equal(t, 3, len(outs))

	got, err := d.GetOutput(ctx, outs[1].ID)
	assert.NoError(t, err)
	assert.Equal(t, "read", got.Operation)

	ml := &core.MonitorLog{RunID: r1.ID, Host: "db-1", Type: "vmstat"}
	assert.NoError(t, d.CreateMonitorLog(ctx, ml))

	mls, err := d.ListMonitorLogs(ctx, r1.ID)
	assert.NoError(t, err)
	assert.Equal(t, 1, len(mls))
	assert.Equal(t, "vmstat", mls[0].Type)

	_, err = d.GetMonitorLog(ctx, ml.ID+1000)
	assert.True(t, errors.Is(err, sentinel.ErrNotFound))
}

func TestMemoryDB(t *testing.T) {
	exercise(t, NewMemoryDB())
}

func TestMemoryDBCopiesRecords(t *testing.T) {
	ctx := context.Background()
	d := NewMemoryDB()

	r := &core.Run{CaseID: 1}
	assert.NoError(t, d.CreateRun(ctx, r))

	r.Baseline = true

	got, err := d.GetRun(ctx, r.ID)
	assert.NoError(t, err)
	assert.False(t, got.Baseline)
}

func TestPostgresDSN(t *testing.T) {
	cfg := PostgresConfig{Host: "db", Port: "5432", User: "perf", Password: "secret", DBName: "perfstore", SSLMode: "disable"}
	assert.Equal(t, "host=db user=perf password=secret dbname=perfstore port=5432 sslmode=disable", cfg.DSN())
}

// PERFSTORE_TEST_POSTGRES names the host of a scratch database.
func TestPostgresDB(t *testing.T) {
	if os.Getenv("PERFSTORE_TEST_POSTGRES") == "" {
		t.Skip("PERFSTORE_TEST_POSTGRES not set")
	}

	d, err := NewPostgresDB(PostgresConfig{
		Host:     os.Getenv("PERFSTORE_TEST_POSTGRES"),
		Port:     "5432",
		User:     "postgres",
		Password: os.Getenv("PGPASSWORD"),
		DBName:   "perfstore_test",
		SSLMode:  "disable",
	})
	assert.NoError(t, err)

	defer d.Close()

	exercise(t, d)
}
