// ABOUTME: Storage Root and Type Bucket shapes persisted under one key
// ABOUTME: Handles empty-root creation and bucket repair on first use
package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// DefaultStorageKey is the key the whole Root is persisted under.
const DefaultStorageKey = "salesforce_data"

// Bucket holds the records of one object type.
type Bucket struct {
	ByID     map[string]Record `json:"byId"`
	LastSync *time.Time        `json:"lastSync"`
}

// Root maps bucket keys ("opportunities") to buckets.
type Root map[string]*Bucket

// NewRoot returns a root with every recognized bucket present and empty.
func NewRoot() Root {
	root := make(Root, len(ObjectTypes))
	for _, t := range ObjectTypes {
		key, _ := t.BucketKey()
		root[key] = &Bucket{ByID: map[string]Record{}}
	}
	return root
}

// EnsureBucket returns the bucket for t, creating or repairing it in place.
func (r Root) EnsureBucket(t ObjectType) (*Bucket, error) {
	key, err := t.BucketKey()
	if err != nil {
		return nil, err
	}
	b := r[key]
	if b == nil {
		b = &Bucket{}
		r[key] = b
	}
	if b.ByID == nil {
		b.ByID = map[string]Record{}
	}
	return b, nil
}

// Bucket returns the bucket for t without modifying the root. A missing
// bucket is reported as an empty one.
func (r Root) Bucket(t ObjectType) (*Bucket, error) {
	key, err := t.BucketKey()
	if err != nil {
		return nil, err
	}
	if b := r[key]; b != nil && b.ByID != nil {
		return b, nil
	}
	return &Bucket{ByID: map[string]Record{}}, nil
}

// DecodeRoot parses a persisted root. Empty input yields a fresh root.
func DecodeRoot(data []byte) (Root, error) {
	if len(data) == 0 {
		return NewRoot(), nil
	}
	var root Root
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to decode storage root: %w", err)
	}
	if root == nil {
		return NewRoot(), nil
	}
	return root, nil
}

// Encode serializes the root for persistence.
func (r Root) Encode() ([]byte, error) {
	return json.Marshal(r)
}
