package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/hyp3rd/ewrap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"perfstore/internal/core"
	"perfstore/internal/sentinel"
)

// PostgresConfig holds the connection parameters.
type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// DSN renders the connection string.
func (c PostgresConfig) DSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		c.Host, c.User, c.Password, c.DBName, c.Port, sslMode)
}

// PostgresDB implements core.Database with gorm.
type PostgresDB struct {
	db *gorm.DB
}

// NewPostgresDB connects and migrates every table.
func NewPostgresDB(cfg PostgresConfig) (*PostgresDB, error) {
	database, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, ewrap.Wrap(err, "connect to database")
	}

	return newGormDB(database)
}

func newGormDB(database *gorm.DB) (*PostgresDB, error) {
	err := database.AutoMigrate(&core.Case{}, &core.Run{}, &core.Job{}, &core.OutputLog{}, &core.MonitorLog{})
	if err != nil {
		return nil, ewrap.Wrap(err, "migrate database")
	}

	return &PostgresDB{db: database}, nil
}

// Close releases the connection pool.
func (p *PostgresDB) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}

	return sqlDB.Close()
}

// translate maps gorm errors onto the sentinels.
func translate(err error, kind string, id any) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ewrap.Wrapf(sentinel.ErrNotFound, "%s %v", kind, id)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ewrap.Wrapf(sentinel.ErrDuplicateName, "%s %v", kind, id)
	default:
		return ewrap.Wrapf(err, "%s %v", kind, id)
	}
}

func first[T any](ctx context.Context, db *gorm.DB, kind string, id int64) (*T, error) {
	var rec T
	if err := db.WithContext(ctx).First(&rec, id).Error; err != nil {
		return nil, translate(err, kind, id)
	}

	return &rec, nil
}

func where[T any](ctx context.Context, db *gorm.DB, query string, args ...any) ([]T, error) {
	out := []T{}
	if err := db.WithContext(ctx).Where(query, args...).Order("id").Find(&out).Error; err != nil {
		return nil, ewrap.Wrap(err, "query")
	}

	return out, nil
}

func (p *PostgresDB) CreateCase(ctx context.Context, c *core.Case) error {
	return translate(p.db.WithContext(ctx).Create(c).Error, "case", c.Name)
}

func (p *PostgresDB) GetCase(ctx context.Context, id int64) (*core.Case, error) {
	return first[core.Case](ctx, p.db, "case", id)
}

func (p *PostgresDB) ListCases(ctx context.Context) ([]core.Case, error) {
	return where[core.Case](ctx, p.db, "1 = 1")
}

func (p *PostgresDB) CreateRun(ctx context.Context, r *core.Run) error {
	return translate(p.db.WithContext(ctx).Create(r).Error, "run", r.CaseID)
}

func (p *PostgresDB) GetRun(ctx context.Context, id int64) (*core.Run, error) {
	return first[core.Run](ctx, p.db, "run", id)
}

func (p *PostgresDB) ListRuns(ctx context.Context, caseID int64) ([]core.Run, error) {
	return where[core.Run](ctx, p.db, "case_id = ?", caseID)
}

func (p *PostgresDB) UpdateRun(ctx context.Context, r *core.Run) error {
	res := p.db.WithContext(ctx).Model(r).Select("*").Updates(r)
	if res.Error != nil {
		return translate(res.Error, "run", r.ID)
	}

	if res.RowsAffected == 0 {
		return ewrap.Wrapf(sentinel.ErrNotFound, "run %d", r.ID)
	}

	return nil
}

func (p *PostgresDB) LastBaseline(ctx context.Context, caseID int64) (*core.Run, error) {
	var r core.Run

	err := p.db.WithContext(ctx).Where("case_id = ? AND baseline", caseID).Order("id DESC").First(&r).Error
	if err != nil {
		return nil, translate(err, "baseline of case", caseID)
	}

	return &r, nil
}

func (p *PostgresDB) CreateJob(ctx context.Context, j *core.Job) error {
	return translate(p.db.WithContext(ctx).Create(j).Error, "job of run", j.RunID)
}

func (p *PostgresDB) GetJob(ctx context.Context, id int64) (*core.Job, error) {
	return first[core.Job](ctx, p.db, "job", id)
}

func (p *PostgresDB) ListJobs(ctx context.Context, runID int64) ([]core.Job, error) {
	return where[core.Job](ctx, p.db, "run_id = ?", runID)
}

func (p *PostgresDB) CreateOutput(ctx context.Context, o *core.OutputLog) error {
	return translate(p.db.WithContext(ctx).Create(o).Error, "output of job", o.JobID)
}

func (p *PostgresDB) GetOutput(ctx context.Context, id int64) (*core.OutputLog, error) {
	return first[core.OutputLog](ctx, p.db, "output", id)
}

func (p *PostgresDB) ListOutputs(ctx context.Context, jobID int64) ([]core.OutputLog, error) {
	return where[core.OutputLog](ctx, p.db, "job_id = ?", jobID)
}

func (p *PostgresDB) OutputsForOperation(ctx context.Context, runID int64, op string) ([]core.OutputLog, error) {
	return where[core.OutputLog](ctx, p.db, "run_id = ? AND operation = ?", runID, op)
}

func (p *PostgresDB) Operations(ctx context.Context, runID int64) ([]string, error) {
	ops := []string{}

	err := p.db.WithContext(ctx).Model(&core.OutputLog{}).
		Where("run_id = ?", runID).
		Distinct().
		Order("operation").
		Pluck("operation", &ops).Error
	if err != nil {
		return nil, ewrap.Wrapf(err, "operations of run %d", runID)
	}

	return ops, nil
}

func (p *PostgresDB) CreateMonitorLog(ctx context.Context, m *core.MonitorLog) error {
	return translate(p.db.WithContext(ctx).Create(m).Error, "monitor log of run", m.RunID)
}

func (p *PostgresDB) GetMonitorLog(ctx context.Context, id int64) (*core.MonitorLog, error) {
	return first[core.MonitorLog](ctx, p.db, "monitor log", id)
}

func (p *PostgresDB) ListMonitorLogs(ctx context.Context, runID int64) ([]core.MonitorLog, error) {
	return where[core.MonitorLog](ctx, p.db, "run_id = ?", runID)
}
