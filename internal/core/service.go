// Package core is the results store: cases, runs, jobs and their logs, the
// chart documents derived from them, and the integrity anchoring of uploads.
package core

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"regexp"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hyp3rd/ewrap"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"perfstore/internal/compare"
	"perfstore/internal/compress"
	"perfstore/internal/hdr"
	"perfstore/internal/sentinel"
)

var caseNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ObjectStorage keeps payload blobs.
type ObjectStorage interface {
	Upload(ctx context.Context, key string, data io.Reader, size int64, contentType string) (path string, err error)
	Download(ctx context.Context, path string) ([]byte, error)
}

// Ledger records Merkle roots.
type Ledger interface {
	Write(ctx context.Context, hash string, metadata string) (txID string, err error)
}

// Database persists the store records. Create methods assign the ID.
// Lookups of missing records return an error matching sentinel.ErrNotFound.
type Database interface {
	CreateCase(ctx context.Context, c *Case) error
	GetCase(ctx context.Context, id int64) (*Case, error)
	ListCases(ctx context.Context) ([]Case, error)

	CreateRun(ctx context.Context, r *Run) error
	GetRun(ctx context.Context, id int64) (*Run, error)
	ListRuns(ctx context.Context, caseID int64) ([]Run, error)
	UpdateRun(ctx context.Context, r *Run) error
	LastBaseline(ctx context.Context, caseID int64) (*Run, error)

	CreateJob(ctx context.Context, j *Job) error
	GetJob(ctx context.Context, id int64) (*Job, error)
	ListJobs(ctx context.Context, runID int64) ([]Job, error)

	CreateOutput(ctx context.Context, o *OutputLog) error
	GetOutput(ctx context.Context, id int64) (*OutputLog, error)
	ListOutputs(ctx context.Context, jobID int64) ([]OutputLog, error)
	OutputsForOperation(ctx context.Context, runID int64, op string) ([]OutputLog, error)
	Operations(ctx context.Context, runID int64) ([]string, error)

	CreateMonitorLog(ctx context.Context, m *MonitorLog) error
	GetMonitorLog(ctx context.Context, id int64) (*MonitorLog, error)
	ListMonitorLogs(ctx context.Context, runID int64) ([]MonitorLog, error)
}

// SummaryCache keeps computed chart documents. Failures are logged and
// otherwise ignored; the document is recomputed.
type SummaryCache interface {
	Get(ctx context.Context, key SummaryKey) (*hdr.HdrData, bool, error)
	Set(ctx context.Context, key SummaryKey, data *hdr.HdrData) error
	InvalidateRun(ctx context.Context, runID int64) error
}

// Service implements the store operations on top of its collaborators.
type Service struct {
	db      Database
	storage ObjectStorage
	hdr     *hdr.Service
	compare *compare.Aggregator

	batcher *MerkleBatcher
	cache   SummaryCache
	format  compress.Format
	metrics *Instruments
	log     *zap.Logger
	now     func() time.Time

	// generations counts the output uploads of each run; a document computed
	// under an older count is not kept in the cache.
	genMu       sync.Mutex
	generations map[int64]uint64
}

// Option configures a Service.
type Option func(*Service)

// WithAnchoring anchors every uploaded output through b.
func WithAnchoring(b *MerkleBatcher) Option {
	return func(s *Service) { s.batcher = b }
}

// WithCache caches chart documents in c.
func WithCache(c SummaryCache) Option {
	return func(s *Service) { s.cache = c }
}

// WithStorageFormat recompresses uploads to f before storing them.
func WithStorageFormat(f compress.Format) Option {
	return func(s *Service) { s.format = f }
}

// WithInstruments records metrics on ins.
func WithInstruments(ins *Instruments) Option {
	return func(s *Service) { s.metrics = ins }
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Service) { s.log = log }
}

// WithClock replaces time.Now for creation timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService wires the store.
func NewService(db Database, storage ObjectStorage, hdrService *hdr.Service, opts ...Option) *Service {
	s := &Service{
		db:      db,
		storage: storage,
		hdr:     hdrService,
		format:  compress.Raw,
		metrics: NopInstruments(),
		log:     zap.NewNop(),
		now:     time.Now,

		generations: map[int64]uint64{},
	}

	for _, opt := range opts {
		opt(s)
	}

	s.compare = compare.NewAggregator(s, hdrService.ComparePercentiles, s.log)

	return s
}

func (s *Service) created() int64 {
	return s.now().Unix()
}

// CreateCase registers a test case. Names must match [A-Za-z0-9_-]+ and be unique.
func (s *Service) CreateCase(ctx context.Context, name, description string) (*Case, error) {
	if !caseNamePattern.MatchString(name) {
		return nil, ewrap.Wrapf(sentinel.ErrInvalidName, "case name %q", name)
	}

	c := &Case{Name: name, Description: description, Created: s.created()}
	if err := s.db.CreateCase(ctx, c); err != nil {
		return nil, err
	}

	s.log.Info("case created", zap.Int64("id", c.ID), zap.String("name", name))

	return c, nil
}

// GetCase returns a case by id.
func (s *Service) GetCase(ctx context.Context, id int64) (*Case, error) {
	return s.db.GetCase(ctx, id)
}

// ListCases returns every case.
func (s *Service) ListCases(ctx context.Context) ([]Case, error) {
	return s.db.ListCases(ctx)
}

// CreateRun adds a run to an existing case.
func (s *Service) CreateRun(ctx context.Context, caseID int64, run Run) (*Run, error) {
	if _, err := s.db.GetCase(ctx, caseID); err != nil {
		return nil, err
	}

	if run.Status == "" {
		run.Status = StatusUnknown
	}

	if !run.Status.Valid() {
		return nil, ewrap.Wrapf(sentinel.ErrInvalidArgument, "run status %q", run.Status)
	}

	run.ID = 0
	run.CaseID = caseID
	run.Created = s.created()

	if err := s.db.CreateRun(ctx, &run); err != nil {
		return nil, err
	}

	s.log.Info("run created", zap.Int64("id", run.ID), zap.Int64("case", caseID))

	return &run, nil
}

// GetRun returns a run by id.
func (s *Service) GetRun(ctx context.Context, id int64) (*Run, error) {
	return s.db.GetRun(ctx, id)
}

// ListRuns returns the runs of a case.
func (s *Service) ListRuns(ctx context.Context, caseID int64) ([]Run, error) {
	if _, err := s.db.GetCase(ctx, caseID); err != nil {
		return nil, err
	}

	return s.db.ListRuns(ctx, caseID)
}

// SetStatus updates the status of a run.
func (s *Service) SetStatus(ctx context.Context, runID int64, status RunStatus) (*Run, error) {
	if !status.Valid() {
		return nil, ewrap.Wrapf(sentinel.ErrInvalidArgument, "run status %q", status)
	}

	run, err := s.db.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	run.Status = status
	if err := s.db.UpdateRun(ctx, run); err != nil {
		return nil, err
	}

	s.log.Info("run status changed", zap.Int64("id", runID), zap.String("status", string(status)))

	return run, nil
}

// SetBaseline flags or unflags a run as baseline. Setting the current value again is a no-op.
func (s *Service) SetBaseline(ctx context.Context, runID int64, baseline bool) (*Run, error) {
	run, err := s.db.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	if run.Baseline == baseline {
		return run, nil
	}

	run.Baseline = baseline
	if err := s.db.UpdateRun(ctx, run); err != nil {
		return nil, err
	}

	s.log.Info("baseline changed", zap.Int64("run", runID), zap.Bool("baseline", baseline))

	return run, nil
}

// CreateJob adds a client job to a run.
func (s *Service) CreateJob(ctx context.Context, runID int64, job Job) (*Job, error) {
	if _, err := s.db.GetRun(ctx, runID); err != nil {
		return nil, err
	}

	job.ID = 0
	job.RunID = runID
	job.Created = s.created()

	if err := s.db.CreateJob(ctx, &job); err != nil {
		return nil, err
	}

	return &job, nil
}

// GetJob returns a job by id.
func (s *Service) GetJob(ctx context.Context, id int64) (*Job, error) {
	return s.db.GetJob(ctx, id)
}

// ListJobs returns the jobs of a run.
func (s *Service) ListJobs(ctx context.Context, runID int64) ([]Job, error) {
	return s.db.ListJobs(ctx, runID)
}

// AddOutput stores the HDR log of one operation of a job. The payload may be
// compressed in any supported format; it is decoded to hash it, re-encoded in
// the storage format, uploaded, anchored when anchoring is enabled, and
// recorded. Cached documents of the run are dropped.
func (s *Service) AddOutput(ctx context.Context, jobID int64, operation string, payload compress.Payload) (out *OutputLog, err error) {
	start := time.Now()
	defer func() { s.metrics.rec(ctx, "AddOutput", start, err, attribute.String("operation", operation)) }()

	if operation == "" {
		return nil, ewrap.Wrap(sentinel.ErrInvalidArgument, "operation name is empty")
	}

	job, err := s.db.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	var timing UploadTiming

	blob, raw, err := s.store(ctx, "outputs", payload, &timing)
	if err != nil {
		return nil, err
	}

	hashStart := time.Now()
	digest := sha256.Sum256(raw)
	timing.Hash = time.Since(hashStart)

	out = &OutputLog{
		JobID:     jobID,
		RunID:     job.RunID,
		Operation: operation,
		Blob:      blob,
		Anchor:    Anchor{FileHash: hex.EncodeToString(digest[:])},
		Created:   s.created(),
	}

	if s.batcher != nil {
		anchorStart := time.Now()

		res, aerr := s.batcher.Add(ctx, digest[:])
		if aerr != nil {
			return nil, ewrap.Wrap(aerr, "anchor output")
		}

		timing.Anchor = time.Since(anchorStart)
		out.MerkleRoot, out.TxID = res.Root, res.TxID
		out.LeafIndex, out.BatchSize, out.Proof = res.Index, res.BatchSize, res.Proof
	}

	dbStart := time.Now()
	if err := s.db.CreateOutput(ctx, out); err != nil {
		return nil, err
	}

	timing.DB = time.Since(dbStart)
	timing.Total = time.Since(start)
	s.metrics.recordUpload(ctx, timing)

	s.bumpGeneration(job.RunID)
	s.invalidate(ctx, job.RunID)

	s.log.Info("output created",
		zap.Int64("id", out.ID),
		zap.Int64("job", jobID),
		zap.String("operation", operation),
		zap.Int("bytes", len(raw)),
		zap.Duration("total", timing.Total))

	return out, nil
}

// store decodes payload, re-encodes it in the storage format and uploads it.
// It returns the blob record and the decoded bytes.
func (s *Service) store(ctx context.Context, prefix string, payload compress.Payload, timing *UploadTiming) (Blob, []byte, error) {
	decodeStart := time.Now()

	raw, err := payload.Bytes()
	if err != nil {
		return Blob{}, nil, ewrap.Wrapf(sentinel.ErrInvalidArgument, "decode %s payload: %v", payload.Format, err)
	}

	encoded := payload.Data
	format := payload.Format

	if format == "" {
		format = compress.Raw
	}

	if format != s.format {
		encoded, err = compress.Compress(s.format, raw)
		if err != nil {
			return Blob{}, nil, err
		}

		format = s.format
	}

	timing.Decode = time.Since(decodeStart)

	storageStart := time.Now()
	key := prefix + "/" + uuid.NewString()

	path, err := s.storage.Upload(ctx, key, bytes.NewReader(encoded), int64(len(encoded)), "application/octet-stream")
	if err != nil {
		return Blob{}, nil, ewrap.Wrap(err, "upload payload")
	}

	timing.Storage = time.Since(storageStart)

	return Blob{Format: format, OriginalLength: len(raw), Size: int64(len(encoded)), StoragePath: path}, raw, nil
}

// load downloads and decodes a blob.
func (s *Service) load(ctx context.Context, blob Blob) ([]byte, error) {
	data, err := s.storage.Download(ctx, blob.StoragePath)
	if err != nil {
		return nil, ewrap.Wrapf(err, "download %s", blob.StoragePath)
	}

	return compress.Decompress(blob.Format, data, blob.OriginalLength)
}

// GetOutput returns an output record.
func (s *Service) GetOutput(ctx context.Context, id int64) (*OutputLog, error) {
	return s.db.GetOutput(ctx, id)
}

// ListOutputs returns the outputs of a job.
func (s *Service) ListOutputs(ctx context.Context, jobID int64) ([]OutputLog, error) {
	return s.db.ListOutputs(ctx, jobID)
}

// OutputText returns the decoded log of an output.
func (s *Service) OutputText(ctx context.Context, id int64) ([]byte, error) {
	out, err := s.db.GetOutput(ctx, id)
	if err != nil {
		return nil, err
	}

	return s.load(ctx, out.Blob)
}

// OutputHdr builds the chart document of one output log.
func (s *Service) OutputHdr(ctx context.Context, id int64) (data *hdr.HdrData, err error) {
	start := time.Now()
	defer func() { s.metrics.rec(ctx, "OutputHdr", start, err) }()

	out, err := s.db.GetOutput(ctx, id)
	if err != nil {
		return nil, err
	}

	key := SummaryKey{RunID: out.RunID, OutputID: id}
	gen := s.generation(out.RunID)

	if cached, ok := s.cached(ctx, key); ok {
		return cached, nil
	}

	raw, err := s.load(ctx, out.Blob)
	if err != nil {
		return nil, err
	}

	data, err = s.hdr.Read(bytes.NewReader(raw))
	if err != nil {
		return nil, ewrap.Wrapf(err, "read output %d", id)
	}

	s.remember(ctx, key, gen, data)

	return data, nil
}

// Aggregate merges every output log of op in a run into one chart document.
// A run without logs for op yields a blank document.
func (s *Service) Aggregate(ctx context.Context, runID int64, op string) (data *hdr.HdrData, err error) {
	start := time.Now()
	defer func() { s.metrics.rec(ctx, "Aggregate", start, err, attribute.String("operation", op)) }()

	if _, err := s.db.GetRun(ctx, runID); err != nil {
		return nil, err
	}

	key := SummaryKey{RunID: runID, Operation: op}
	gen := s.generation(runID)

	if cached, ok := s.cached(ctx, key); ok {
		return cached, nil
	}

	outputs, err := s.db.OutputsForOperation(ctx, runID, op)
	if err != nil {
		return nil, err
	}

	readers := make([]io.Reader, 0, len(outputs))

	for _, out := range outputs {
		raw, err := s.load(ctx, out.Blob)
		if err != nil {
			return nil, err
		}

		s.log.Debug("aggregating output log", zap.Int64("output", out.ID), zap.Int64("run", runID), zap.String("operation", op))
		readers = append(readers, bytes.NewReader(raw))
	}

	data, err = s.hdr.Aggregate(readers)
	if err != nil {
		return nil, ewrap.Wrapf(err, "aggregate %s of run %d", op, runID)
	}

	s.remember(ctx, key, gen, data)

	return data, nil
}

// Fetch lets the service serve as the data source of comparisons.
func (s *Service) Fetch(ctx context.Context, runID int64, op string) (*hdr.HdrData, error) {
	return s.Aggregate(ctx, runID, op)
}

// Operations lists the distinct operations recorded for a run, sorted.
func (s *Service) Operations(ctx context.Context, runID int64) ([]string, error) {
	if _, err := s.db.GetRun(ctx, runID); err != nil {
		return nil, err
	}

	return s.db.Operations(ctx, runID)
}

// CommonOperations lists the operations recorded by every one of the runs, sorted.
func (s *Service) CommonOperations(ctx context.Context, runIDs []int64) ([]string, error) {
	if len(runIDs) == 0 {
		return []string{}, nil
	}

	var common []string

	for i, id := range compare.Dedupe(runIDs) {
		ops, err := s.Operations(ctx, id)
		if err != nil {
			return nil, err
		}

		if i == 0 {
			common = ops

			continue
		}

		common = slices.DeleteFunc(common, func(op string) bool { return !slices.Contains(ops, op) })
	}

	return common, nil
}

// Compare builds the comparison of op across runs. Fewer than two distinct
// runs give an *compare.EmptyResultError.
func (s *Service) Compare(ctx context.Context, op string, runIDs []int64) (*compare.Result, error) {
	return s.compare.Compare(ctx, op, runIDs)
}

// Regression compares every operation of a run with the last baseline of
// its case and reports those with a p-value below threshold.
func (s *Service) Regression(ctx context.Context, runID int64, threshold float64) (*compare.ChangeReport, error) {
	if threshold < 0 || threshold > 1 {
		return nil, ewrap.Wrapf(sentinel.ErrInvalidArgument, "threshold %v outside [0, 1]", threshold)
	}

	run, err := s.db.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	var baselineID int64

	baseline, err := s.db.LastBaseline(ctx, run.CaseID)

	switch {
	case errors.Is(err, sentinel.ErrNotFound):
	case err != nil:
		return nil, err
	default:
		baselineID = baseline.ID
	}

	ops, err := s.db.Operations(ctx, runID)
	if err != nil {
		return nil, err
	}

	return s.compare.Regression(ctx, baselineID, runID, ops, threshold)
}

// AddMonitorLog stores a host statistics log for a run.
func (s *Service) AddMonitorLog(ctx context.Context, runID int64, host, logType string, payload compress.Payload) (*MonitorLog, error) {
	if _, err := s.db.GetRun(ctx, runID); err != nil {
		return nil, err
	}

	var timing UploadTiming

	blob, _, err := s.store(ctx, "monitor", payload, &timing)
	if err != nil {
		return nil, err
	}

	m := &MonitorLog{RunID: runID, Host: host, Type: logType, Blob: blob, Created: s.created()}
	if err := s.db.CreateMonitorLog(ctx, m); err != nil {
		return nil, err
	}

	s.log.Info("monitor log created", zap.Int64("id", m.ID), zap.Int64("run", runID), zap.String("host", host))

	return m, nil
}

// ListMonitorLogs returns the monitor logs of a run.
func (s *Service) ListMonitorLogs(ctx context.Context, runID int64) ([]MonitorLog, error) {
	return s.db.ListMonitorLogs(ctx, runID)
}

// MonitorLogText returns the decoded monitor log.
func (s *Service) MonitorLogText(ctx context.Context, id int64) ([]byte, error) {
	m, err := s.db.GetMonitorLog(ctx, id)
	if err != nil {
		return nil, err
	}

	return s.load(ctx, m.Blob)
}

// VerifyOutput re-hashes the stored payload of an output and checks its
// inclusion proof against the recorded Merkle root.
func (s *Service) VerifyOutput(ctx context.Context, id int64) (*Verification, error) {
	out, err := s.db.GetOutput(ctx, id)
	if err != nil {
		return nil, err
	}

	if !out.Anchored() {
		return nil, ewrap.Wrapf(sentinel.ErrNotAnchored, "output %d", id)
	}

	raw, err := s.load(ctx, out.Blob)
	if err != nil {
		return nil, err
	}

	digest := sha256.Sum256(raw)
	v := &Verification{
		OutputID:   id,
		FileHash:   out.FileHash,
		ActualHash: hex.EncodeToString(digest[:]),
		MerkleRoot: out.MerkleRoot,
		TxID:       out.TxID,
	}
	v.HashMatches = v.ActualHash == v.FileHash

	v.ProofValid, err = VerifyProof(digest[:], out.Proof, out.MerkleRoot)
	if err != nil {
		return nil, err
	}

	return v, nil
}

func (s *Service) cached(ctx context.Context, key SummaryKey) (*hdr.HdrData, bool) {
	if s.cache == nil {
		return nil, false
	}

	data, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.log.Warn("summary cache read", zap.Int64("run", key.RunID), zap.Error(err))

		return nil, false
	}

	return data, ok
}

// remember stores data computed while the run was at generation gen. An
// upload that lands meanwhile may already have invalidated the run, so the
// generation is checked again after the write and the run dropped on change.
func (s *Service) remember(ctx context.Context, key SummaryKey, gen uint64, data *hdr.HdrData) {
	if s.cache == nil || s.generation(key.RunID) != gen {
		return
	}

	if err := s.cache.Set(ctx, key, data); err != nil {
		s.log.Warn("summary cache write", zap.Int64("run", key.RunID), zap.Error(err))

		return
	}

	if s.generation(key.RunID) != gen {
		s.log.Debug("discarding stale summary", zap.Int64("run", key.RunID), zap.String("operation", key.Operation))
		s.invalidate(ctx, key.RunID)
	}
}

func (s *Service) generation(runID int64) uint64 {
	s.genMu.Lock()
	defer s.genMu.Unlock()

	return s.generations[runID]
}

func (s *Service) bumpGeneration(runID int64) {
	s.genMu.Lock()
	s.generations[runID]++
	s.genMu.Unlock()
}

func (s *Service) invalidate(ctx context.Context, runID int64) {
	if s.cache == nil {
		return
	}

	if err := s.cache.InvalidateRun(ctx, runID); err != nil {
		s.log.Warn("summary cache invalidation", zap.Int64("run", runID), zap.Error(err))
	}
}
