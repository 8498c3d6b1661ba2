// ABOUTME: Read-only web dashboard over the merged record store
// ABOUTME: HTML pages from embedded templates plus a small JSON API
package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"

	"github.com/harperreed/sfcrm/db"
	"github.com/harperreed/sfcrm/models"
	"github.com/harperreed/sfcrm/query"
)

//go:embed templates/*.html
var templatesFS embed.FS

// Records is the read side the dashboard renders.
type Records interface {
	ListRecords(ctx context.Context, t models.ObjectType) ([]query.Entry, error)
	Get(ctx context.Context, t models.ObjectType, key string) (models.Record, error)
}

// RootLoader returns the whole persisted root.
type RootLoader interface {
	LoadRoot(ctx context.Context) (models.Root, error)
}

// Server renders the dashboard.
type Server struct {
	records   Records
	roots     RootLoader
	journal   *db.Journal
	templates *template.Template
	logger    *log.Logger
}

// NewServer parses the templates. journal may be nil.
func NewServer(records Records, roots RootLoader, journal *db.Journal, logger *log.Logger) (*Server, error) {
	funcMap := template.FuncMap{
		"cell": func(r models.Record, field string) string {
			v := r.Get(field)
			if v.IsBlank() {
				return "-"
			}
			return v.Text()
		},
		"since": func(t *time.Time) string {
			if t == nil {
				return "never"
			}
			return t.UTC().Format(time.RFC3339)
		},
		"when": func(t time.Time) string {
			return t.UTC().Format("2006-01-02 15:04:05")
		},
	}

	tmpl, err := template.New("").Funcs(funcMap).ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	if logger == nil {
		logger = log.Default()
	}

	return &Server{
		records:   records,
		roots:     roots,
		journal:   journal,
		templates: tmpl,
		logger:    logger.With("component", "web"),
	}, nil
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleDashboard)
	mux.HandleFunc("GET /records/{type}", s.handleRecords)
	mux.HandleFunc("GET /records/{type}/{id}", s.handleDetail)

	mux.HandleFunc("GET /api/summary", s.handleAPISummary)
	mux.HandleFunc("GET /api/records/{type}", s.handleAPIRecords)
	return mux
}

// Start serves on addr until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.logger.Info("dashboard listening", "url", "http://"+addr)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

type tab struct {
	Type   models.ObjectType
	Key    string
	Active bool
}

func tabs(current models.ObjectType) []tab {
	out := make([]tab, 0, len(models.ObjectTypes))
	for _, t := range models.ObjectTypes {
		key, _ := t.BucketKey()
		out = append(out, tab{Type: t, Key: key, Active: t == current})
	}
	return out
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	root, err := s.roots.LoadRoot(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}

	var recent []db.Entry
	if s.journal != nil {
		recent, err = s.journal.Recent(r.Context(), "", 20)
		if err != nil {
			s.fail(w, err)
			return
		}
	}

	data := map[string]interface{}{
		"Title":           "Dashboard",
		"ContentTemplate": "dashboard-content",
		"Tabs":            tabs(""),
		"Summary":         query.Summary(root),
		"Journal":         s.journal != nil,
		"Recent":          recent,
	}
	s.renderTemplate(w, "layout.html", data)
}

func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	t, ok := s.objectType(w, r)
	if !ok {
		return
	}
	entries, err := s.records.ListRecords(r.Context(), t)
	if err != nil {
		s.fail(w, err)
		return
	}
	showAll := r.URL.Query().Get("all") != ""
	if !showAll {
		entries = query.Active(entries)
	}

	data := map[string]interface{}{
		"Title":           string(t),
		"ContentTemplate": "records-content",
		"Tabs":            tabs(t),
		"Type":            t,
		"Columns":         columnsFor(t),
		"Entries":         entries,
		"ShowAll":         showAll,
	}
	s.renderTemplate(w, "layout.html", data)
}

type field struct {
	Name  string
	Value string
	Null  bool
}

func (s *Server) handleDetail(w http.ResponseWriter, r *http.Request) {
	t, ok := s.objectType(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")
	rec, err := s.records.Get(r.Context(), t, id)
	if errors.Is(err, models.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		s.fail(w, err)
		return
	}

	fields := make([]field, 0, len(rec))
	for _, name := range rec.Fields() {
		v := rec.Get(name)
		fields = append(fields, field{Name: name, Value: v.Text(), Null: v.IsNull()})
	}

	var history []db.Entry
	if s.journal != nil {
		history, err = s.journal.History(r.Context(), id)
		if err != nil {
			s.fail(w, err)
			return
		}
	}

	data := map[string]interface{}{
		"Title":           id,
		"ContentTemplate": "detail-content",
		"Tabs":            tabs(t),
		"Type":            t,
		"ID":              id,
		"Deleted":         rec.Deleted(),
		"Fields":          fields,
		"History":         history,
	}
	s.renderTemplate(w, "layout.html", data)
}

func (s *Server) handleAPISummary(w http.ResponseWriter, r *http.Request) {
	root, err := s.roots.LoadRoot(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, query.Summary(root))
}

func (s *Server) handleAPIRecords(w http.ResponseWriter, r *http.Request) {
	t, ok := s.objectType(w, r)
	if !ok {
		return
	}
	entries, err := s.records.ListRecords(r.Context(), t)
	if err != nil {
		s.fail(w, err)
		return
	}
	if r.URL.Query().Get("all") == "" {
		entries = query.Active(entries)
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		if n < len(entries) {
			entries = entries[:n]
		}
	}
	if entries == nil {
		entries = []query.Entry{}
	}
	s.writeJSON(w, entries)
}

func (s *Server) objectType(w http.ResponseWriter, r *http.Request) (models.ObjectType, bool) {
	t, err := models.ParseObjectType(r.PathValue("type"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return "", false
	}
	return t, true
}

func (s *Server) renderTemplate(w http.ResponseWriter, name string, data interface{}) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.ExecuteTemplate(w, name, data); err != nil {
		s.logger.Error("template error", "template", name, "err", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		s.logger.Error("failed to encode response", "err", err)
	}
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	s.logger.Error("request failed", "err", err)
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

func columnsFor(t models.ObjectType) []string {
	switch t {
	case models.TypeOpportunity:
		return []string{models.FieldName, models.FieldAccountName, models.FieldStage, models.FieldAmount, models.FieldCloseDate}
	case models.TypeContact, models.TypeLead:
		return []string{models.FieldName, models.FieldEmail, models.FieldPhone, models.FieldTitle}
	case models.TypeTask:
		return []string{models.FieldName, models.FieldStatus, models.FieldDueDate}
	default:
		return []string{models.FieldName, models.FieldOwnerName}
	}
}
