package hdr

import (
	"sort"
)

// Compact caps the number of intervals at maxPoints by merging consecutive
// groups of ceil(n/maxPoints) intervals. The trailing group may be shorter.
func Compact(intervals []*Interval, maxPoints int) []*Interval {
	if maxPoints <= 0 || len(intervals) <= maxPoints {
		return intervals
	}

	ratio := (len(intervals) + maxPoints - 1) / maxPoints
	out := make([]*Interval, 0, maxPoints)

	for i := 0; i < len(intervals); i += ratio {
		end := min(i+ratio, len(intervals))
		out = append(out, mergeIntervals(intervals[i:end]))
	}

	return out
}

// roundToSecond truncates a millisecond timestamp to its second.
func roundToSecond(ms int64) int64 {
	return ms - ms%1000
}

type taggedInterval struct {
	tag     int
	seq     int
	rounded int64
	iv      *Interval
}

// AlignFrames merges the logs of several clients of one run into a single
// sequence. Intervals are ordered by start time rounded down to the second;
// a frame is emitted once every log contributed one interval, and it starts
// at the earliest exact start among them. When a log
// contributes a second interval before the frame is complete, the frame
// restarts from that interval.
func AlignFrames(logs [][]*Interval) []*Interval {
	if len(logs) == 0 {
		return nil
	}

	var all []taggedInterval

	for tag, log := range logs {
		for seq, iv := range log {
			all = append(all, taggedInterval{tag: tag, seq: seq, rounded: roundToSecond(iv.StartMs), iv: iv})
		}
	}

	sort.SliceStable(all, func(i, j int) bool {
		if all[i].rounded != all[j].rounded {
			return all[i].rounded < all[j].rounded
		}

		if all[i].tag != all[j].tag {
			return all[i].tag < all[j].tag
		}

		return all[i].seq < all[j].seq
	})

	var frames []*Interval

	assembly := make(map[int]taggedInterval, len(logs))

	for _, t := range all {
		if _, seen := assembly[t.tag]; seen {
			clear(assembly)
			assembly[t.tag] = t

			continue
		}

		assembly[t.tag] = t
		if len(assembly) < len(logs) {
			continue
		}

		frames = append(frames, mergeFrame(assembly))
		clear(assembly)
	}

	return frames
}

// mergeFrame keeps the exact earliest start of the frame; the rounded second
// only orders intervals.
func mergeFrame(assembly map[int]taggedInterval) *Interval {
	group := make([]*Interval, 0, len(assembly))

	for tag := range len(assembly) {
		group = append(group, assembly[tag].iv)
	}

	return mergeIntervals(group)
}
