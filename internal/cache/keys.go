// Package cache keeps computed chart documents in memory or in Redis.
package cache

import (
	"strconv"

	"github.com/cespare/xxhash/v2"

	"perfstore/internal/core"
)

const keyPrefix = "perfstore:summary:"

// Key renders the storage key of a document. Keys of one run share the
// run prefix; the rest is a hash of the output id and the operation.
func Key(k core.SummaryKey) string {
	h := xxhash.New()
	_, _ = h.WriteString(strconv.FormatInt(k.OutputID, 10))
	_, _ = h.WriteString("/")
	_, _ = h.WriteString(k.Operation)

	return runKey(k.RunID) + ":" + strconv.FormatUint(h.Sum64(), 16)
}

func runKey(runID int64) string {
	return keyPrefix + strconv.FormatInt(runID, 10)
}

// runSetKey names the set tracking the document keys of a run.
func runSetKey(runID int64) string {
	return runKey(runID) + ":keys"
}
