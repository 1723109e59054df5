package server

import (
	"context"

	"perfstore/internal/compare"
	"perfstore/internal/compress"
	"perfstore/internal/core"
	"perfstore/internal/hdr"
)

// Store is the part of core.Service the routes use.
type Store interface {
	CreateCase(ctx context.Context, name, description string) (*core.Case, error)
	GetCase(ctx context.Context, id int64) (*core.Case, error)
	ListCases(ctx context.Context) ([]core.Case, error)

	CreateRun(ctx context.Context, caseID int64, run core.Run) (*core.Run, error)
	GetRun(ctx context.Context, id int64) (*core.Run, error)
	ListRuns(ctx context.Context, caseID int64) ([]core.Run, error)
	SetStatus(ctx context.Context, runID int64, status core.RunStatus) (*core.Run, error)
	SetBaseline(ctx context.Context, runID int64, baseline bool) (*core.Run, error)

	CreateJob(ctx context.Context, runID int64, job core.Job) (*core.Job, error)
	GetJob(ctx context.Context, id int64) (*core.Job, error)
	ListJobs(ctx context.Context, runID int64) ([]core.Job, error)

	AddOutput(ctx context.Context, jobID int64, operation string, payload compress.Payload) (*core.OutputLog, error)
	GetOutput(ctx context.Context, id int64) (*core.OutputLog, error)
	ListOutputs(ctx context.Context, jobID int64) ([]core.OutputLog, error)
	OutputText(ctx context.Context, id int64) ([]byte, error)
	OutputHdr(ctx context.Context, id int64) (*hdr.HdrData, error)
	VerifyOutput(ctx context.Context, id int64) (*core.Verification, error)

	Aggregate(ctx context.Context, runID int64, op string) (*hdr.HdrData, error)
	Operations(ctx context.Context, runID int64) ([]string, error)
	CommonOperations(ctx context.Context, runIDs []int64) ([]string, error)
	Compare(ctx context.Context, op string, runIDs []int64) (*compare.Result, error)
	Regression(ctx context.Context, runID int64, threshold float64) (*compare.ChangeReport, error)

	AddMonitorLog(ctx context.Context, runID int64, host, logType string, payload compress.Payload) (*core.MonitorLog, error)
	ListMonitorLogs(ctx context.Context, runID int64) ([]core.MonitorLog, error)
	MonitorLogText(ctx context.Context, id int64) ([]byte, error)
}

var _ Store = (*core.Service)(nil)
