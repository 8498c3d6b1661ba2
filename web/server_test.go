// ABOUTME: Tests for dashboard pages and the JSON API
// ABOUTME: Uses httptest against an in-memory store and journal
package web

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/sfcrm/charm"
	"github.com/harperreed/sfcrm/db"
	"github.com/harperreed/sfcrm/merge"
	"github.com/harperreed/sfcrm/models"
	"github.com/harperreed/sfcrm/query"
	"github.com/harperreed/sfcrm/store"
)

type fixture struct {
	engine *merge.Engine
	svc    *query.Service
	server *Server
}

func setup(t *testing.T, withJournal bool) *fixture {
	t.Helper()
	kv, err := charm.OpenLocal("")
	require.NoError(t, err)
	logger := log.New(io.Discard)
	adapter := store.New(kv, store.Options{Logger: logger})

	var journal *db.Journal
	opts := merge.Options{Logger: logger}
	if withJournal {
		journal, err = db.OpenJournal(":memory:")
		require.NoError(t, err)
		opts.Journal = journal
	}
	t.Cleanup(func() {
		adapter.Close()
		_ = kv.Close()
		if journal != nil {
			_ = journal.Close()
		}
	})

	engine := merge.NewEngine(adapter, opts)
	svc := query.NewService(engine, adapter, query.Options{Logger: logger})
	server, err := NewServer(svc, engine, journal, logger)
	require.NoError(t, err)
	return &fixture{engine: engine, svc: svc, server: server}
}

func (f *fixture) seed(t *testing.T, ot models.ObjectType, fields map[string]interface{}) {
	t.Helper()
	r, err := models.RecordFromMap(fields)
	require.NoError(t, err)
	_, err = f.engine.MergeRecord(context.Background(), ot, r)
	require.NoError(t, err)
}

func (f *fixture) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestDashboard(t *testing.T) {
	f := setup(t, true)
	f.seed(t, models.TypeOpportunity, map[string]interface{}{"salesforceId": "006A", "name": "Acme Deal"})

	rec := f.get(t, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "SFCRM RECORDS")
	assert.Contains(t, body, "opportunities")
	assert.Contains(t, body, "Recent merges")
	assert.Contains(t, body, "/records/opportunity/006A")
	assert.Contains(t, body, string(merge.DecisionCreated))
}

func TestDashboardWithoutJournal(t *testing.T) {
	f := setup(t, false)
	rec := f.get(t, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Merge journal is disabled")
}

func TestRecordsPage(t *testing.T) {
	f := setup(t, true)
	f.seed(t, models.TypeOpportunity, map[string]interface{}{"salesforceId": "006A", "name": "Acme Deal", "stage": "Prospecting"})
	f.seed(t, models.TypeOpportunity, map[string]interface{}{"salesforceId": "006B", "name": "Gone Deal"})
	_, err := f.svc.SoftDelete(context.Background(), models.TypeOpportunity, "006B")
	require.NoError(t, err)

	rec := f.get(t, "/records/opportunities")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Acme Deal")
	assert.Contains(t, body, "Prospecting")
	assert.NotContains(t, body, "Gone Deal")

	rec = f.get(t, "/records/opportunity?all=1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Gone Deal")

	rec = f.get(t, "/records/task")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "No task records yet")

	rec = f.get(t, "/records/campaign")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDetailPage(t *testing.T) {
	f := setup(t, true)
	f.seed(t, models.TypeContact, map[string]interface{}{"salesforceId": "003A", "name": "Pat", "phone": nil})

	rec := f.get(t, "/records/contact/003A")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Pat")
	assert.Contains(t, body, "phone")
	assert.Contains(t, body, "null")
	assert.Contains(t, body, "History")

	rec = f.get(t, "/records/contact/003Z")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI(t *testing.T) {
	f := setup(t, false)
	f.seed(t, models.TypeLead, map[string]interface{}{"salesforceId": "00Q1", "name": "Lee"})
	f.seed(t, models.TypeLead, map[string]interface{}{"salesforceId": "00Q2", "name": "Sam"})

	rec := f.get(t, "/api/summary")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var summary []query.BucketSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	require.Len(t, summary, len(models.ObjectTypes))
	assert.Equal(t, models.TypeLead, summary[0].ObjectType)
	assert.Equal(t, 2, summary[0].Count)

	rec = f.get(t, "/api/records/lead?limit=1")
	require.Equal(t, http.StatusOK, rec.Code)
	var entries []query.Entry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	assert.Len(t, entries, 1)

	rec = f.get(t, "/api/records/account")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())

	rec = f.get(t, "/api/records/lead?limit=x")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStartStopsOnCancel(t *testing.T) {
	f := setup(t, false)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.server.Start(ctx, "127.0.0.1:0") }()
	cancel()
	assert.NoError(t, <-done)
}
