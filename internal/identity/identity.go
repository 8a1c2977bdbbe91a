// Package identity derives the deterministic ids and the stage path for a
// pipeline record. Identical identity and window inputs always produce the
// same ids, which is what makes record creation idempotent.
package identity

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Endpoint names one side of the pipeline (source, stage or target).
type Endpoint struct {
	Name        string
	Category    string
	SubCategory string
}

// canonical renders an instant in the canonical ISO-8601 form used for
// hashing. The offset is preserved, so the same wall-clock instant in a
// different zone yields a different id on purpose.
func canonical(t time.Time) string {
	return t.Format(time.RFC3339)
}

func digest(input string) string {
	sum := md5.Sum([]byte(input))
	return hex.EncodeToString(sum[:])
}

// ComponentID derives the 16-character id of one endpoint bound to a window.
func ComponentID(e Endpoint, windowStart, windowEnd time.Time) string {
	input := strings.Join([]string{
		e.Name, e.Category, e.SubCategory, canonical(windowStart), canonical(windowEnd),
	}, "*")
	return digest(input)[:16]
}

// PipelineID derives the 32-character primary key from the three component
// ids, the target day and the window boundaries.
func PipelineID(sourceID, stageID, targetID string, targetDay time.Time, windowStart, windowEnd time.Time) string {
	input := strings.Join([]string{
		sourceID, stageID, targetID,
		targetDay.Format("2006-01-02"), canonical(windowStart), canonical(windowEnd),
	}, "*")
	return digest(input)[:32]
}

// StageBase is the deterministic part of a record's storage location:
// <prefix>/<target_day>/<HH-mm>. It feeds the stage component id, so it must
// not depend on when the record was generated.
func StageBase(prefix string, targetDay, windowStart time.Time) string {
	return fmt.Sprintf("%s/%s/%s",
		strings.TrimSuffix(prefix, "/"),
		targetDay.Format("2006-01-02"),
		windowStart.Format("15-04"),
	)
}

// StagePath appends the epoch suffix to a stage base: <base>/<epoch>/. The
// suffix keeps retries that recreate a record with the same id from
// colliding with leftovers of an earlier attempt; the full path lives only
// in the record's miscellaneous blob.
func StagePath(base string, epoch int64) string {
	return fmt.Sprintf("%s/%d/", strings.TrimSuffix(base, "/"), epoch)
}
