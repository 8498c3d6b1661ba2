// ABOUTME: Tests for the key-value store adapter
// ABOUTME: Covers bounded retry, backoff, absent keys, and change notifications
package store

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/harperreed/sfcrm/charm"
	"github.com/harperreed/sfcrm/models"
)

var errNotFound = errors.New("not found")

// flakyBackend fails the next failSets Set calls and every Get while failGets.
type flakyBackend struct {
	mu       sync.Mutex
	data     map[string][]byte
	failSets int
	failGets bool
	sets     int
	synced   int
}

func newFlaky() *flakyBackend {
	return &flakyBackend{data: map[string][]byte{}}
}

func (f *flakyBackend) Get(key []byte) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failGets {
		return nil, errors.New("backend unavailable")
	}
	v, ok := f.data[string(key)]
	if !ok {
		return nil, errNotFound
	}
	return v, nil
}

func (f *flakyBackend) Set(key, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sets++
	if f.failSets > 0 {
		f.failSets--
		return errors.New("quota exceeded")
	}
	f.data[string(key)] = append([]byte(nil), value...)
	return nil
}

func (f *flakyBackend) Sync() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.synced++
	return nil
}

func newTestAdapter(b Backend, backoff time.Duration) *Adapter {
	return New(b, Options{
		Backoff:    backoff,
		Logger:     log.New(io.Discard),
		IsNotFound: func(err error) bool { return errors.Is(err, errNotFound) },
	})
}

func TestGetAbsentKey(t *testing.T) {
	a := newTestAdapter(newFlaky(), time.Millisecond)
	v, err := a.Get(context.Background(), "salesforce_data")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestGetBackendError(t *testing.T) {
	b := newFlaky()
	b.failGets = true
	a := newTestAdapter(b, time.Millisecond)

	_, err := a.Get(context.Background(), "k")
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrStore)

	var se *Error
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "get", se.Op)
}

func TestSetRetriesThenSucceeds(t *testing.T) {
	b := newFlaky()
	b.failSets = 2
	a := newTestAdapter(b, 5*time.Millisecond)

	start := time.Now()
	require.NoError(t, a.Set(context.Background(), "k", []byte("v")))
	elapsed := time.Since(start)

	assert.Equal(t, 3, b.sets)
	// backoff is 5ms*1 + 5ms*2
	assert.GreaterOrEqual(t, elapsed, 15*time.Millisecond)

	got, err := a.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "v", string(got))
}

func TestSetGivesUpAfterRetries(t *testing.T) {
	b := newFlaky()
	b.failSets = 10
	a := newTestAdapter(b, time.Millisecond)

	err := a.Set(context.Background(), "k", []byte("v"))
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrStore)

	var se *Error
	require.True(t, errors.As(err, &se))
	assert.Equal(t, DefaultRetries+1, se.Attempts)
	assert.Equal(t, DefaultRetries+1, b.sets)
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestSetNoRetries(t *testing.T) {
	b := newFlaky()
	b.failSets = 1
	a := New(b, Options{Retries: -1, Logger: log.New(io.Discard)})

	err := a.Set(context.Background(), "k", []byte("v"))
	require.Error(t, err)
	assert.Equal(t, 1, b.sets)
}

func TestSetStopsOnContextCancel(t *testing.T) {
	b := newFlaky()
	b.failSets = 10
	a := newTestAdapter(b, time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := a.Set(ctx, "k", []byte("v"))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorIs(t, err, models.ErrStore)
	assert.Less(t, time.Since(start), time.Second)
}

// Linking badger starts glog's flush daemon, which outlives every test.
var ignoreGlog = goleak.IgnoreTopFunction("github.com/golang/glog.(*fileSink).flushDaemon")

func TestWatchReceivesChanges(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreGlog)

	a := newTestAdapter(newFlaky(), time.Millisecond)
	defer a.Close()

	got := make(chan string, 10)
	cancel := a.Watch(func(key string, value []byte) {
		got <- key + "=" + string(value)
	})
	defer cancel()

	require.NoError(t, a.Set(context.Background(), "k", []byte("1")))

	select {
	case v := <-got:
		assert.Equal(t, "k=1", v)
	case <-time.After(time.Second):
		t.Fatal("no change notification")
	}
}

func TestWatchSkipsIdenticalWrites(t *testing.T) {
	a := newTestAdapter(newFlaky(), time.Millisecond)
	defer a.Close()

	var mu sync.Mutex
	calls := 0
	a.Watch(func(string, []byte) {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	ctx := context.Background()
	require.NoError(t, a.Set(ctx, "k", []byte("same")))
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, a.Set(ctx, "k", []byte("same")))
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, calls)
}

func TestWatchCoalescesToNewest(t *testing.T) {
	a := newTestAdapter(newFlaky(), time.Millisecond)
	defer a.Close()

	release := make(chan struct{})
	var mu sync.Mutex
	var seen []string
	a.Watch(func(_ string, value []byte) {
		<-release
		mu.Lock()
		seen = append(seen, string(value))
		mu.Unlock()
	})

	ctx := context.Background()
	for _, v := range []string{"1", "2", "3", "4"} {
		require.NoError(t, a.Set(ctx, "k", []byte(v)))
	}
	close(release)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) > 0 && seen[len(seen)-1] == "4"
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, len(seen), 2, "intermediate writes should coalesce")
}

func TestWatchDeliversEveryChangedKey(t *testing.T) {
	a := newTestAdapter(newFlaky(), time.Millisecond)
	defer a.Close()

	release := make(chan struct{})
	var mu sync.Mutex
	seen := map[string]string{}
	a.Watch(func(key string, value []byte) {
		<-release
		mu.Lock()
		seen[key] = string(value)
		mu.Unlock()
	})

	ctx := context.Background()
	require.NoError(t, a.Set(ctx, "first", []byte("0")))
	require.NoError(t, a.Set(ctx, "leads", []byte("1")))
	require.NoError(t, a.Set(ctx, "contacts", []byte("2")))
	require.NoError(t, a.Set(ctx, "leads", []byte("3")))
	close(release)

	want := map[string]string{"first": "0", "leads": "3", "contacts": "2"}
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == len(want)
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, want, seen)
}

func TestWatchCancelIsIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreGlog)

	a := newTestAdapter(newFlaky(), time.Millisecond)
	cancel := a.Watch(func(string, []byte) {})
	cancel()
	cancel()
	a.Close()
}

func TestRefreshSyncsAndNotifies(t *testing.T) {
	b := newFlaky()
	b.data["k"] = []byte("remote")
	a := newTestAdapter(b, time.Millisecond)
	defer a.Close()

	got := make(chan string, 1)
	a.Watch(func(_ string, value []byte) { got <- string(value) })

	require.NoError(t, a.Refresh(context.Background(), "k"))
	assert.Equal(t, 1, b.synced)

	select {
	case v := <-got:
		assert.Equal(t, "remote", v)
	case <-time.After(time.Second):
		t.Fatal("refresh did not notify")
	}
}

func TestAdapterOverCharmLocalClient(t *testing.T) {
	c, cleanup := charm.NewTestClient(t)
	defer cleanup()

	a := New(c, Options{Logger: log.New(io.Discard)})
	ctx := context.Background()

	v, err := a.Get(ctx, models.DefaultStorageKey)
	require.NoError(t, err)
	assert.Nil(t, v)

	require.NoError(t, a.Set(ctx, models.DefaultStorageKey, []byte(`{}`)))
	v, err = a.Get(ctx, models.DefaultStorageKey)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(v))
}
