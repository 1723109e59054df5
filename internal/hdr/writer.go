package hdr

import (
	"fmt"
	"io"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/hyp3rd/ewrap"

	"perfstore/internal/sentinel"
)

// WriteLog encodes intervals as an interval log in the layout of the HdrHistogram
// log writers: a version line, start and base time headers, the column legend,
// then one "start,length,max,payload" line per interval. Start and length are
// seconds relative to the earliest interval, max is in milliseconds.
func WriteLog(w io.Writer, intervals []*Interval) error {
	var baseMs int64

	for i, iv := range intervals {
		if i == 0 || iv.StartMs < baseMs {
			baseMs = iv.StartMs
		}
	}

	base := float64(baseMs) / 1000
	header := fmt.Sprintf("#[Histogram log format version %s]\n"+
		"#[StartTime: %.3f (seconds since epoch), %s]\n"+
		"#[BaseTime: %.3f (seconds since epoch)]\n"+
		"\"StartTimestamp\",\"Interval_Length\",\"Interval_Max\",\"Interval_Compressed_Histogram\"\n",
		hdrhistogram.HISTOGRAM_LOG_FORMAT_VERSION, base, time.UnixMilli(baseMs).UTC().Format(time.RFC3339), base)

	if _, err := io.WriteString(w, header); err != nil {
		return ewrap.Wrap(err, "write log header")
	}

	for i, iv := range intervals {
		h := iv.Histogram()
		if h == nil {
			return ewrap.Wrapf(sentinel.ErrInvalidArgument, "interval %d has no distribution", i)
		}

		payload, err := h.Encode(hdrhistogram.V2CompressedEncodingCookieBase)
		if err != nil {
			return ewrap.Wrapf(err, "encode interval %d", i)
		}

		_, err = fmt.Fprintf(w, "%.3f,%.3f,%.3f,%s\n",
			float64(iv.StartMs-baseMs)/1000,
			float64(iv.DurationMs())/1000,
			float64(iv.Max())/nanosPerMilli,
			payload)
		if err != nil {
			return ewrap.Wrapf(err, "write interval %d", i)
		}
	}

	return nil
}
