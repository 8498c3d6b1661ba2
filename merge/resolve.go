// ABOUTME: Conflict resolution between a stored record and an incoming observation
// ABOUTME: Freshness first, completeness score on ties, field-level shallow merge
package merge

import (
	"fmt"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/harperreed/sfcrm/models"
)

// HashKeyPrefix marks storage keys derived from record content rather than
// a stable external id.
const HashKeyPrefix = "hash_"

// Decision records which side won a merge.
type Decision string

const (
	DecisionCreated     Decision = "created"
	DecisionNewer       Decision = "newer"
	DecisionStale       Decision = "stale"
	DecisionTieIncoming Decision = "tie-incoming"
	DecisionTieExisting Decision = "tie-existing"
)

// Changed reports whether the incoming observation affected the stored record.
func (d Decision) Changed() bool {
	return d != DecisionStale && d != DecisionTieExisting
}

// ComputeKey returns the storage key for a record: its salesforceId when
// present, otherwise a content hash over (type, name, accountName,
// closeDate). It depends on nothing else.
func ComputeKey(t models.ObjectType, r models.Record) string {
	if id := r.SalesforceID(); id != "" {
		return id
	}
	parts := []string{
		string(t),
		strings.TrimSpace(r.Text(models.FieldName)),
		strings.TrimSpace(r.Text(models.FieldAccountName)),
		strings.TrimSpace(r.Text(models.FieldCloseDate)),
	}
	return fmt.Sprintf("%s%016x", HashKeyPrefix, xxhash.Sum64String(strings.Join(parts, "\x1f")))
}

// IsHashKey reports whether key was derived by content hash.
func IsHashKey(key string) bool {
	return strings.HasPrefix(key, HashKeyPrefix)
}

// Completeness counts populated, non-bookkeeping fields: non-null values
// whose string form, if any, is not blank.
func Completeness(r models.Record) int {
	n := 0
	for field, v := range r {
		if models.IsBookkeeping(field) || v.IsBlank() {
			continue
		}
		n++
	}
	return n
}

// freshness reads a record's lastUpdated; absent or unparsable is the zero
// time, older than any real timestamp.
func freshness(r models.Record) time.Time {
	t, ok := models.ParseTime(r.LastUpdated())
	if !ok {
		return time.Time{}
	}
	return t
}

// Resolve decides the stored result of merging incoming over existing.
// hasExisting distinguishes "no record yet" from an empty stored record.
// Neither input is modified.
func Resolve(existing models.Record, hasExisting bool, incoming models.Record, now time.Time) (models.Record, Decision) {
	in := incoming.Clone()
	if strings.TrimSpace(in.LastUpdated()) == "" {
		in[models.FieldLastUpdated] = models.String(models.Timestamp(now))
	}

	if !hasExisting {
		return in, DecisionCreated
	}

	inTime, exTime := freshness(in), freshness(existing)
	switch {
	case inTime.After(exTime):
		return overlay(existing, in), DecisionNewer
	case inTime.Before(exTime):
		return existing.Clone(), DecisionStale
	}

	if Completeness(in) >= Completeness(existing) {
		return overlay(existing, in), DecisionTieIncoming
	}
	return existing.Clone(), DecisionTieExisting
}

// overlay copies existing and writes every field present on incoming over
// it, including explicit nulls. Fields absent from incoming are kept.
func overlay(existing, incoming models.Record) models.Record {
	out := existing.Clone()
	for k, v := range incoming {
		out[k] = v
	}
	return out
}
