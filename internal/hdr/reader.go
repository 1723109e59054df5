package hdr

import (
	"io"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/hyp3rd/ewrap"
)

// Source yields intervals in log order. Next returns io.EOF once exhausted.
type Source interface {
	Next() (*Interval, error)
}

// Reader decodes an HDR interval log. It is a forward-only, single-use cursor:
// once it has returned io.EOF it keeps doing so.
type Reader struct {
	log   *hdrhistogram.HistogramLogReader
	src   *logSource
	skip  func(*DataError)
	index int
	done  bool
}

// logSource feeds the log reader. It remembers the first read failure,
// which the log reader does not tell apart from a bad record, and ends an
// unterminated last line with a newline so that the line is not dropped.
type logSource struct {
	r       io.Reader
	err     error
	last    byte
	seen    bool
	eof     bool
	pending bool
}

func (s *logSource) Read(p []byte) (int, error) {
	if s.eof {
		if s.pending && len(p) > 0 {
			s.pending = false
			p[0] = '\n'

			return 1, nil
		}

		return 0, io.EOF
	}

	n, err := s.r.Read(p)
	if n > 0 {
		s.seen = true
		s.last = p[n-1]
	}

	switch {
	case err == io.EOF:
		s.eof = true
		s.pending = s.seen && s.last != '\n'

		if n == 0 {
			return s.Read(p)
		}

		return n, nil
	case err != nil && s.err == nil:
		s.err = err
	}

	return n, err
}

// NewReader wraps a textual HDR log stream. A record whose timestamps or
// payload cannot be decoded is a DataError: with a nil skip it ends the
// read, otherwise skip is told and the reader moves on to the next line.
func NewReader(r io.Reader, skip func(*DataError)) *Reader {
	src := &logSource{r: r}

	return &Reader{log: hdrhistogram.NewHistogramLogReader(src), src: src, skip: skip}
}

// Next decodes the next interval histogram.
func (r *Reader) Next() (*Interval, error) {
	for !r.done {
		h, err := r.nextHistogram()

		if r.src.err != nil {
			r.done = true

			return nil, ewrap.Wrap(r.src.err, "read interval log")
		}

		if err != nil && err != io.EOF {
			dataErr := &DataError{Index: r.index, Reason: "undecodable record: " + err.Error()}
			r.index++

			if r.skip == nil {
				r.done = true

				return nil, dataErr
			}

			r.skip(dataErr)

			continue
		}

		if h == nil {
			break
		}

		r.index++

		return FromHistogram(h), nil
	}

	r.done = true

	return nil, io.EOF
}

// nextHistogram guards against payloads too short for the decoder, which
// panics on them. The record's line is consumed before decoding starts.
func (r *Reader) nextHistogram() (h *hdrhistogram.Histogram, err error) {
	defer func() {
		if p := recover(); p != nil {
			h, err = nil, ewrap.Newf("decode payload: %v", p)
		}
	}()

	return r.log.NextIntervalHistogram()
}

// SliceSource replays already decoded intervals.
type SliceSource struct {
	intervals []*Interval
	pos       int
}

// NewSliceSource returns a Source over intervals.
func NewSliceSource(intervals []*Interval) *SliceSource {
	return &SliceSource{intervals: intervals}
}

// Next returns the next interval or io.EOF.
func (s *SliceSource) Next() (*Interval, error) {
	if s.pos >= len(s.intervals) {
		return nil, io.EOF
	}

	iv := s.intervals[s.pos]
	s.pos++

	return iv, nil
}

// ReadAll drains src.
func ReadAll(src Source) ([]*Interval, error) {
	var out []*Interval

	for {
		iv, err := src.Next()
		if err == io.EOF {
			return out, nil
		}

		if err != nil {
			return out, err
		}

		out = append(out, iv)
	}
}
