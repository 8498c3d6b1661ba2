// ABOUTME: Tests for storage keys, conflict resolution and the merge engine
// ABOUTME: Covers freshness, completeness tie-break, persistence failure and concurrent merges
package merge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/harperreed/sfcrm/models"
)

type memKV struct {
	mu      sync.Mutex
	data    map[string][]byte
	failSet error
}

func newMemKV() *memKV {
	return &memKV{data: map[string][]byte{}}
}

func (m *memKV) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), v...), nil
}

func (m *memKV) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSet != nil {
		return m.failSet
	}
	m.data[key] = append([]byte(nil), value...)
	return nil
}

type memJournal struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (j *memJournal) Record(_ context.Context, ev Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(j.events, ev)
	return j.err
}

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestEngine(kv KV) *Engine {
	return NewEngine(kv, Options{
		Logger: log.New(io.Discard),
		Now:    func() time.Time { return fixedNow },
	})
}

func rec(t *testing.T, fields map[string]interface{}) models.Record {
	t.Helper()
	r, err := models.RecordFromMap(fields)
	require.NoError(t, err)
	return r
}

func stored(t *testing.T, e *Engine, ot models.ObjectType) map[string]models.Record {
	t.Helper()
	root, err := e.LoadRoot(context.Background())
	require.NoError(t, err)
	b, err := root.Bucket(ot)
	require.NoError(t, err)
	return b.ByID
}

func TestComputeKeyPrefersSalesforceID(t *testing.T) {
	r := rec(t, map[string]interface{}{"salesforceId": " 006A ", "name": "Acme"})
	assert.Equal(t, "006A", ComputeKey(models.TypeOpportunity, r))
}

func TestComputeKeyHashIsStable(t *testing.T) {
	a := rec(t, map[string]interface{}{"name": "Beta", "accountName": "Globex", "closeDate": "2024-03-01", "lastUpdated": "2024-01-01T00:00:00Z"})
	b := rec(t, map[string]interface{}{"name": " Beta ", "accountName": "Globex", "closeDate": "2024-03-01", "amount": 10, "lastUpdated": "2025-01-01T00:00:00Z"})

	ka := ComputeKey(models.TypeOpportunity, a)
	assert.True(t, IsHashKey(ka))
	assert.Len(t, ka, len(HashKeyPrefix)+16)
	assert.Equal(t, ka, ComputeKey(models.TypeOpportunity, a))
	assert.Equal(t, ka, ComputeKey(models.TypeOpportunity, b), "volatile and extra fields must not change the key")

	assert.NotEqual(t, ka, ComputeKey(models.TypeAccount, a), "type is part of the key")

	blankID := a.Clone()
	blankID["salesforceId"] = models.String("  ")
	assert.Equal(t, ka, ComputeKey(models.TypeOpportunity, blankID))
	nullID := a.Clone()
	nullID["salesforceId"] = models.Null()
	assert.Equal(t, ka, ComputeKey(models.TypeOpportunity, nullID))
}

func TestCompletenessSkipsBookkeeping(t *testing.T) {
	r := rec(t, map[string]interface{}{
		"name":        "Acme",
		"amount":      0,
		"stage":       "  ",
		"ownerName":   nil,
		"lastUpdated": "2024-01-01T00:00:00Z",
		"sourceUrl":   "https://x",
		"rowIndex":    3,
		"deleted":     false,
	})
	assert.Equal(t, 2, Completeness(r))
}

func TestResolve(t *testing.T) {
	existing := rec(t, map[string]interface{}{"name": "Acme", "stage": "Prospect", "lastUpdated": "2024-01-02T00:00:00Z"})

	tests := []struct {
		name     string
		incoming map[string]interface{}
		want     map[string]interface{}
		decision Decision
	}{
		{
			name:     "newer overlays present fields",
			incoming: map[string]interface{}{"stage": "Closed Won", "lastUpdated": "2024-01-03T00:00:00Z"},
			want:     map[string]interface{}{"name": "Acme", "stage": "Closed Won", "lastUpdated": "2024-01-03T00:00:00Z"},
			decision: DecisionNewer,
		},
		{
			name:     "newer explicit null clears",
			incoming: map[string]interface{}{"stage": nil, "lastUpdated": "2024-01-03T00:00:00Z"},
			want:     map[string]interface{}{"name": "Acme", "stage": nil, "lastUpdated": "2024-01-03T00:00:00Z"},
			decision: DecisionNewer,
		},
		{
			name:     "older keeps existing",
			incoming: map[string]interface{}{"name": "Old", "amount": 1, "lastUpdated": "2024-01-01T00:00:00Z"},
			want:     map[string]interface{}{"name": "Acme", "stage": "Prospect", "lastUpdated": "2024-01-02T00:00:00Z"},
			decision: DecisionStale,
		},
		{
			name:     "unparsable incoming is oldest",
			incoming: map[string]interface{}{"name": "Garbage", "lastUpdated": "yesterday"},
			want:     map[string]interface{}{"name": "Acme", "stage": "Prospect", "lastUpdated": "2024-01-02T00:00:00Z"},
			decision: DecisionStale,
		},
		{
			name:     "tie with equal completeness goes to incoming",
			incoming: map[string]interface{}{"name": "Acme Corp", "stage": "Qualify", "lastUpdated": "2024-01-02T00:00:00Z"},
			want:     map[string]interface{}{"name": "Acme Corp", "stage": "Qualify", "lastUpdated": "2024-01-02T00:00:00Z"},
			decision: DecisionTieIncoming,
		},
		{
			name:     "tie with less complete incoming keeps existing",
			incoming: map[string]interface{}{"name": "Acme Corp", "lastUpdated": "2024-01-02T00:00:00Z"},
			want:     map[string]interface{}{"name": "Acme", "stage": "Prospect", "lastUpdated": "2024-01-02T00:00:00Z"},
			decision: DecisionTieExisting,
		},
		{
			name:     "tie with more complete incoming wins",
			incoming: map[string]interface{}{"name": "Acme", "stage": "Prospect", "amount": 10, "lastUpdated": "2024-01-02T00:00:00.000Z"},
			want:     map[string]interface{}{"name": "Acme", "stage": "Prospect", "amount": 10, "lastUpdated": "2024-01-02T00:00:00.000Z"},
			decision: DecisionTieIncoming,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := existing.Clone()
			got, decision := Resolve(existing, true, rec(t, tt.incoming), fixedNow)
			assert.Equal(t, tt.decision, decision)
			if diff := cmp.Diff(rec(t, tt.want), got); diff != "" {
				t.Errorf("merged record mismatch (-want +got):\n%s", diff)
			}
			assert.True(t, before.Equal(existing), "existing must not be mutated")
		})
	}
}

func TestResolveStampsMissingLastUpdated(t *testing.T) {
	got, decision := Resolve(nil, false, rec(t, map[string]interface{}{"name": "New"}), fixedNow)
	assert.Equal(t, DecisionCreated, decision)
	assert.Equal(t, models.Timestamp(fixedNow), got.LastUpdated())
}

func TestMergeScenarioNewerAddsField(t *testing.T) {
	e := newTestEngine(newMemKV())
	ctx := context.Background()

	_, err := e.MergeRecord(ctx, models.TypeOpportunity, rec(t, map[string]interface{}{
		"salesforceId": "006A", "name": "Acme Deal", "lastUpdated": "2024-01-01T00:00:00Z",
	}))
	require.NoError(t, err)

	res, err := e.MergeRecord(ctx, models.TypeOpportunity, rec(t, map[string]interface{}{
		"salesforceId": "006A", "amount": 5000, "lastUpdated": "2024-01-02T00:00:00Z",
	}))
	require.NoError(t, err)
	assert.Equal(t, "006A", res.ID)
	assert.Equal(t, DecisionNewer, res.Decision)

	want := rec(t, map[string]interface{}{
		"salesforceId": "006A", "name": "Acme Deal", "amount": 5000, "lastUpdated": "2024-01-02T00:00:00Z",
	})
	got := stored(t, e, models.TypeOpportunity)
	require.Len(t, got, 1)
	if diff := cmp.Diff(want, got["006A"]); diff != "" {
		t.Errorf("stored record mismatch (-want +got):\n%s", diff)
	}
}

func TestMergeScenarioHashKeyDedup(t *testing.T) {
	e := newTestEngine(newMemKV())
	ctx := context.Background()
	fields := map[string]interface{}{"name": "Beta", "accountName": "Globex", "closeDate": "2024-03-01"}

	first, err := e.MergeRecord(ctx, models.TypeOpportunity, rec(t, fields))
	require.NoError(t, err)
	second, err := e.MergeRecord(ctx, models.TypeOpportunity, rec(t, fields))
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.True(t, IsHashKey(first.ID))
	assert.Len(t, stored(t, e, models.TypeOpportunity), 1)
}

func TestMergeIdempotent(t *testing.T) {
	e := newTestEngine(newMemKV())
	ctx := context.Background()
	r := rec(t, map[string]interface{}{"salesforceId": "003X", "name": "Pat", "email": "pat@example.com", "lastUpdated": "2024-02-01T00:00:00Z"})

	_, err := e.MergeRecord(ctx, models.TypeContact, r)
	require.NoError(t, err)
	afterFirst := stored(t, e, models.TypeContact)["003X"]

	_, err = e.MergeRecord(ctx, models.TypeContact, r)
	require.NoError(t, err)
	afterSecond := stored(t, e, models.TypeContact)["003X"]

	assert.Empty(t, cmp.Diff(afterFirst, afterSecond))
}

func TestMergeFreshnessNeverRegresses(t *testing.T) {
	e := newTestEngine(newMemKV())
	ctx := context.Background()

	days := []int{5, 2, 9, 1, 9, 3, 7}
	maxSeen := time.Time{}
	for i, d := range days {
		ts := time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
		if ts.After(maxSeen) {
			maxSeen = ts
		}
		_, err := e.MergeRecord(ctx, models.TypeOpportunity, rec(t, map[string]interface{}{
			"salesforceId": "006B",
			"stage":        fmt.Sprintf("step-%d", i),
			"lastUpdated":  ts.Format(time.RFC3339),
		}))
		require.NoError(t, err)

		got, ok := models.ParseTime(stored(t, e, models.TypeOpportunity)["006B"].LastUpdated())
		require.True(t, ok)
		assert.False(t, got.Before(maxSeen), "stored lastUpdated regressed after merge %d", i)
	}
}

func TestMergeSetsLastSync(t *testing.T) {
	kv := newMemKV()
	e := newTestEngine(kv)
	ctx := context.Background()

	_, err := e.MergeRecord(ctx, models.TypeLead, rec(t, map[string]interface{}{"name": "Lee"}))
	require.NoError(t, err)

	root, err := e.LoadRoot(ctx)
	require.NoError(t, err)
	b, err := root.Bucket(models.TypeLead)
	require.NoError(t, err)
	require.NotNil(t, b.LastSync)
	assert.True(t, b.LastSync.Equal(fixedNow))

	other, err := root.Bucket(models.TypeTask)
	require.NoError(t, err)
	assert.Nil(t, other.LastSync)
}

func TestMergeRepairsStoredRoot(t *testing.T) {
	kv := newMemKV()
	kv.data[models.DefaultStorageKey] = []byte(`{"opportunities":{"lastSync":null}}`)
	e := newTestEngine(kv)

	_, err := e.MergeRecord(context.Background(), models.TypeOpportunity, rec(t, map[string]interface{}{"salesforceId": "006Z"}))
	require.NoError(t, err)
	assert.Len(t, stored(t, e, models.TypeOpportunity), 1)
}

func TestMergeUnsupportedType(t *testing.T) {
	kv := newMemKV()
	e := newTestEngine(kv)

	_, err := e.MergeRecord(context.Background(), models.ObjectType("campaign"), rec(t, map[string]interface{}{"name": "x"}))
	assert.ErrorIs(t, err, models.ErrUnsupportedType)
	assert.Empty(t, kv.data, "nothing is written for an unknown type")
}

func TestMergePersistFailureReturnsResult(t *testing.T) {
	kv := newMemKV()
	kv.failSet = errors.New("quota exceeded")
	e := newTestEngine(kv)

	res, err := e.MergeRecord(context.Background(), models.TypeAccount, rec(t, map[string]interface{}{"salesforceId": "001A", "name": "Acme"}))
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrPersist)
	assert.Equal(t, "001A", res.ID)
	assert.Equal(t, "Acme", res.Record.Name())
}

func TestMergeJournal(t *testing.T) {
	j := &memJournal{err: errors.New("disk full")}
	e := NewEngine(newMemKV(), Options{Logger: log.New(io.Discard), Now: func() time.Time { return fixedNow }, Journal: j})
	ctx := context.Background()

	_, err := e.MergeRecord(ctx, models.TypeOpportunity, rec(t, map[string]interface{}{"salesforceId": "006A", "lastUpdated": "2024-01-02T00:00:00Z"}))
	require.NoError(t, err, "journal failures must not fail a merge")
	_, err = e.MergeRecord(ctx, models.TypeOpportunity, rec(t, map[string]interface{}{"salesforceId": "006A", "lastUpdated": "2024-01-01T00:00:00Z"}))
	require.NoError(t, err)

	require.Len(t, j.events, 2)
	assert.Equal(t, DecisionCreated, j.events[0].Decision)
	assert.Equal(t, DecisionStale, j.events[1].Decision)
	assert.Equal(t, "2024-01-01T00:00:00Z", j.events[1].IncomingUpdated)
	assert.Equal(t, "2024-01-02T00:00:00Z", j.events[1].StoredUpdated)
}

func TestConcurrentMergesThroughOneEngine(t *testing.T) {
	e := newTestEngine(newMemKV())
	ctx := context.Background()

	var g errgroup.Group
	for i := 0; i < 50; i++ {
		i := i
		ot := models.ObjectTypes[i%len(models.ObjectTypes)]
		g.Go(func() error {
			_, err := e.MergeRecord(ctx, ot, rec(t, map[string]interface{}{"salesforceId": fmt.Sprintf("id-%02d", i)}))
			return err
		})
	}
	require.NoError(t, g.Wait())

	root, err := e.LoadRoot(ctx)
	require.NoError(t, err)
	total := 0
	for _, ot := range models.ObjectTypes {
		b, err := root.Bucket(ot)
		require.NoError(t, err)
		total += len(b.ByID)
	}
	assert.Equal(t, 50, total)
}

// barrierKV holds every Get until n readers have arrived, forcing two
// engines to read the same snapshot before either writes.
type barrierKV struct {
	*memKV
	arrive sync.WaitGroup
}

func (b *barrierKV) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := b.memKV.Get(ctx, key)
	b.arrive.Done()
	b.arrive.Wait()
	return v, err
}

func TestSeparateEnginesLoseUpdates(t *testing.T) {
	kv := &barrierKV{memKV: newMemKV()}
	kv.arrive.Add(2)

	a := newTestEngine(kv)
	b := newTestEngine(kv)
	ctx := context.Background()

	var g errgroup.Group
	g.Go(func() error {
		_, err := a.MergeRecord(ctx, models.TypeOpportunity, rec(t, map[string]interface{}{"salesforceId": "006A"}))
		return err
	})
	g.Go(func() error {
		_, err := b.MergeRecord(ctx, models.TypeContact, rec(t, map[string]interface{}{"salesforceId": "003A"}))
		return err
	})
	require.NoError(t, g.Wait())

	root, err := models.DecodeRoot(kv.data[models.DefaultStorageKey])
	require.NoError(t, err)
	opps, _ := root.Bucket(models.TypeOpportunity)
	contacts, _ := root.Bucket(models.TypeContact)

	// Last writer wins on the whole root: exactly one of the two survives.
	assert.Equal(t, 1, len(opps.ByID)+len(contacts.ByID))
}
