package hdr

import (
	"io"

	"github.com/hyp3rd/ewrap"
	"go.uber.org/zap"

	"perfstore/internal/sentinel"
)

// DefaultMaxDataPoints caps the number of points in a chart document.
const DefaultMaxDataPoints = 200

// Service builds chart documents out of HDR logs. It holds no per-log state
// and is safe for concurrent use.
type Service struct {
	maxDataPoints int
	log           *zap.Logger
}

// NewService returns a Service compacting documents to maxDataPoints.
func NewService(maxDataPoints int, log *zap.Logger) (*Service, error) {
	if maxDataPoints <= 0 {
		return nil, ewrap.Wrapf(sentinel.ErrInvalidArgument, "max data points must be positive, was %d", maxDataPoints)
	}

	if log == nil {
		log = zap.NewNop()
	}

	return &Service{maxDataPoints: maxDataPoints, log: log}, nil
}

// MaxDataPoints is the configured cap.
func (s *Service) MaxDataPoints() int {
	return s.maxDataPoints
}

// Read decodes one log and builds its document.
func (s *Service) Read(r io.Reader) (*HdrData, error) {
	intervals, err := ReadAll(NewReader(r, s.skip))
	if err != nil {
		return nil, err
	}

	return s.build(intervals)
}

// Aggregate merges several logs of one operation by time-aligned frames and
// builds the document. No logs give a blank document.
func (s *Service) Aggregate(readers []io.Reader) (*HdrData, error) {
	if len(readers) == 0 {
		return Blank(), nil
	}

	logs := make([][]*Interval, 0, len(readers))

	for i, r := range readers {
		intervals, err := ReadAll(NewReader(r, s.skip))
		if err != nil {
			return nil, ewrap.Wrapf(err, "read log %d", i)
		}

		logs = append(logs, intervals)
	}

	return s.build(AlignFrames(logs))
}

// ComparePercentiles is the Kolmogorov-Smirnov p-value of the fixed
// percentile samples of two documents.
func (s *Service) ComparePercentiles(x, y *HdrData) float64 {
	return KolmogorovSmirnovTest(x.FixedSamples(), y.FixedSamples())
}

func (s *Service) build(intervals []*Interval) (*HdrData, error) {
	compacted := Compact(intervals, s.maxDataPoints)

	series, err := ExtractSeries(NewSliceSource(compacted), s.skip)
	if err != nil {
		return nil, err
	}

	acc := NewAccumulator()
	for _, iv := range series.Intervals {
		acc.Add(iv)
	}

	if dropped := acc.Dropped(); dropped > 0 {
		s.log.Warn("observations dropped while merging", zap.Int64("dropped", dropped))
	}

	return Build(series, acc)
}

func (s *Service) skip(err *DataError) {
	s.log.Debug("skipping interval", zap.Int("index", err.Index), zap.String("reason", err.Reason))
}
