// ABOUTME: Data models for extracted CRM records
// ABOUTME: Defines object types, the Record field table, and well-known field names
package models

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ObjectType is the logical CRM object type tag.
type ObjectType string

const (
	TypeLead        ObjectType = "lead"
	TypeContact     ObjectType = "contact"
	TypeAccount     ObjectType = "account"
	TypeOpportunity ObjectType = "opportunity"
	TypeTask        ObjectType = "task"
)

// ObjectTypes lists every recognized object type in bucket order.
var ObjectTypes = []ObjectType{TypeLead, TypeContact, TypeAccount, TypeOpportunity, TypeTask}

var bucketKeys = map[ObjectType]string{
	TypeLead:        "leads",
	TypeContact:     "contacts",
	TypeAccount:     "accounts",
	TypeOpportunity: "opportunities",
	TypeTask:        "tasks",
}

// BucketKey returns the key the type's bucket lives under in the Root.
func (t ObjectType) BucketKey() (string, error) {
	key, ok := bucketKeys[t]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedType, string(t))
	}
	return key, nil
}

// Valid reports whether t is a recognized object type.
func (t ObjectType) Valid() bool {
	_, ok := bucketKeys[t]
	return ok
}

// ParseObjectType accepts a type tag case-insensitively, also allowing the
// plural bucket key ("opportunities").
func ParseObjectType(s string) (ObjectType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for t, key := range bucketKeys {
		if s == string(t) || s == key {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedType, s)
}

// Well-known record field names.
const (
	FieldSalesforceID = "salesforceId"
	FieldLastUpdated  = "lastUpdated"
	FieldSourceURL    = "sourceUrl"
	FieldSourcePage   = "sourcePage"
	FieldRowIndex     = "rowIndex"
	FieldDeleted      = "deleted"
	FieldDeletedAt    = "deletedAt"

	FieldName        = "name"
	FieldAmount      = "amount"
	FieldStage       = "stage"
	FieldProbability = "probability"
	FieldCloseDate   = "closeDate"
	FieldAccountName = "accountName"
	FieldAccountID   = "accountId"
	FieldOwnerName   = "ownerName"
	FieldEmail       = "email"
	FieldPhone       = "phone"
	FieldTitle       = "title"
	FieldStatus      = "status"
	FieldDueDate     = "dueDate"
)

// bookkeeping fields never count toward completeness.
var bookkeeping = map[string]bool{
	FieldLastUpdated: true,
	FieldSourceURL:   true,
	FieldSourcePage:  true,
	FieldRowIndex:    true,
	FieldDeleted:     true,
	FieldDeletedAt:   true,
}

// IsBookkeeping reports whether a field is provenance or lifecycle metadata
// rather than CRM content.
func IsBookkeeping(field string) bool {
	return bookkeeping[field]
}

// Record is a semi-structured CRM record: field name -> scalar.
//
// A field that is present with a null Value is distinct from a field that is
// absent. Merging treats present-null as "clear this field" and absent as
// "keep whatever is stored". Unknown scalar fields pass through untouched.
type Record map[string]Value

// Has reports whether the field is present (possibly null).
func (r Record) Has(field string) bool {
	_, ok := r[field]
	return ok
}

// Get returns the field value, or null when absent.
func (r Record) Get(field string) Value {
	return r[field]
}

// Text returns the field rendered as text, "" for null or absent.
func (r Record) Text(field string) string {
	return r[field].Text()
}

// SalesforceID returns the trimmed stable external id, "" when absent or null.
func (r Record) SalesforceID() string {
	return strings.TrimSpace(r[FieldSalesforceID].Text())
}

// LastUpdated returns the raw lastUpdated string, "" when absent or null.
func (r Record) LastUpdated() string {
	return r[FieldLastUpdated].Text()
}

// Deleted reports whether the record carries the soft-delete flag.
func (r Record) Deleted() bool {
	return r[FieldDeleted].Truthy()
}

// Name returns the display name of the record.
func (r Record) Name() string {
	return r.Text(FieldName)
}

// Clone returns a shallow copy. Values are immutable so this is a full copy.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Fields returns field names in sorted order.
func (r Record) Fields() []string {
	names := make([]string, 0, len(r))
	for k := range r {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Equal reports whether two records hold the same fields and values.
func (r Record) Equal(o Record) bool {
	if len(r) != len(o) {
		return false
	}
	for k, v := range r {
		ov, ok := o[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

// RecordFromMap converts a decoded JSON object into a Record. Nested objects
// and arrays are rejected.
func RecordFromMap(m map[string]interface{}) (Record, error) {
	r := make(Record, len(m))
	for k, x := range m {
		v, err := ValueOf(x)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		r[k] = v
	}
	return r, nil
}

// Map converts the record into plain Go scalars.
func (r Record) Map() map[string]interface{} {
	m := make(map[string]interface{}, len(r))
	for k, v := range r {
		m[k] = v.Interface()
	}
	return m
}

// ParseRecord decodes a JSON object into a Record.
func ParseRecord(data []byte) (Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	if r == nil {
		return nil, fmt.Errorf("%w: record must be a JSON object", ErrUnsupportedValue)
	}
	return r, nil
}

// Timestamp formats t the way records store timestamps.
func Timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// timeLayouts are tried in order when reading record timestamps.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseTime parses a record timestamp. ok is false for empty or
// unrecognized input.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
