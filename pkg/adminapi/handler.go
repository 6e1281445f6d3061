// Package adminapi serves the admin CRUD API over HTTP.
//
// Every route under /api/admin/ requires an administrator bearer token
// (see [auth.RequireAdmin]); /healthz is public.
//
//	GET    /api/admin/{table}            list, filtered by query parameters
//	GET    /api/admin/{table}?id=N       read one row
//	POST   /api/admin/{table}            create from the JSON body
//	PUT    /api/admin/{table}            update; id in the body or query
//	PATCH  /api/admin/{table}            {"action": "toggle"|"duplicate", "id": N}
//	DELETE /api/admin/{table}?id=N       delete
//	PUT    /api/admin/{table}/key/{key}  update by the table's natural key
//	POST   /api/admin/editar-cliente     update a client by the "slug" in the body
//
// The same operations are available with the id as a path segment,
// /api/admin/{table}/{id}. Successful responses are {"data": ...}; errors
// are {"error": message, "code": code}.
package adminapi

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/StricklySoft/admingate/pkg/auth"
	sserr "github.com/StricklySoft/admingate/pkg/errors"
	"github.com/StricklySoft/admingate/pkg/lifecycle"
	"github.com/StricklySoft/admingate/pkg/records"
)

const (
	// DefaultMaxBodyBytes bounds request bodies.
	DefaultMaxBodyBytes int64 = 1 << 20

	actionToggle    = "toggle"
	actionDuplicate = "duplicate"

	// clientsTable is the table edited by /api/admin/editar-cliente.
	clientsTable = "clientes"
)

// RecordStore is implemented by [records.Store].
type RecordStore interface {
	Tables() []string
	List(ctx context.Context, table string, filters map[string]string) ([]records.Record, error)
	Get(ctx context.Context, table, id string) (records.Record, error)
	Create(ctx context.Context, table string, values records.Record) (records.Record, error)
	Update(ctx context.Context, table, id string, values records.Record) (records.Record, error)
	UpdateByKey(ctx context.Context, table, key string, values records.Record) (records.Record, error)
	Toggle(ctx context.Context, table, id string) (records.Record, error)
	Duplicate(ctx context.Context, table, id string) (records.Record, error)
	Delete(ctx context.Context, table, id string) error
}

var _ RecordStore = (*records.Store)(nil)

// HealthChecker reports database reachability. [postgres.Client] satisfies it.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// KeySetReporter exposes key set cache statistics. [auth.KeySetCache]
// satisfies it.
type KeySetReporter interface {
	Stats() auth.KeySetStats
}

// ServiceState reports whether the process has finished starting.
// [lifecycle.Service] satisfies it.
type ServiceState interface {
	State() lifecycle.State
	Health(ctx context.Context) error
}

// Option configures the handler.
type Option func(*Server)

// WithLogger sets the logger for access and error logs.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithHealthCheck adds a database check to /healthz.
func WithHealthCheck(db HealthChecker) Option {
	return func(s *Server) { s.db = db }
}

// WithCacheCheck adds the shared key set cache to /healthz. An unreachable
// cache degrades the status without failing it.
func WithCacheCheck(cache HealthChecker) Option {
	return func(s *Server) { s.cache = cache }
}

// WithKeySetStats reports key set state on /healthz.
func WithKeySetStats(keys KeySetReporter) Option {
	return func(s *Server) { s.keys = keys }
}

// WithServiceState makes /healthz return 503 until service is running.
func WithServiceState(service ServiceState) Option {
	return func(s *Server) { s.service = service }
}

// WithMaxBodyBytes overrides [DefaultMaxBodyBytes].
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) { s.maxBody = n }
}

// Server holds the admin API dependencies and implements its routes. Build
// it through [NewHandler].
type Server struct {
	store   RecordStore
	authn   auth.Authenticator
	db      HealthChecker
	cache   HealthChecker
	keys    KeySetReporter
	service ServiceState
	logger  *slog.Logger
	maxBody int64
}

// NewHandler returns the admin API. Admin routes are guarded by authn; a
// nil authn rejects every admin request with 500, so a server started
// without a verifier fails closed.
//
// Every response passes through the request logger, which assigns or
// propagates X-Request-ID and logs one line per request. Errors are written
// with the status of their sserr code; messages of 5xx errors are replaced
// by the status text and logged instead.
//
//	handler := adminapi.NewHandler(records.NewStore(db), verifier,
//	    adminapi.WithLogger(logger),
//	    adminapi.WithHealthCheck(db),
//	    adminapi.WithKeySetStats(verifier.KeySet()),
//	    adminapi.WithServiceState(svc),
//	)
func NewHandler(store RecordStore, authn auth.Authenticator, opts ...Option) http.Handler {
	s := &Server{
		store:   store,
		authn:   authn,
		logger:  slog.Default(),
		maxBody: DefaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(s)
	}

	admin := http.NewServeMux()
	admin.HandleFunc("GET /api/admin/{$}", s.handleTables)
	for _, prefix := range []string{"/api/admin/{table}", "/api/admin/{table}/{id}"} {
		admin.HandleFunc("GET "+prefix, s.handleGet)
		admin.HandleFunc("PUT "+prefix, s.handleUpdate)
		admin.HandleFunc("PATCH "+prefix, s.handleAction)
		admin.HandleFunc("DELETE "+prefix, s.handleDelete)
	}
	admin.HandleFunc("POST /api/admin/{table}", s.handleCreate)
	admin.HandleFunc("PUT /api/admin/{table}/key/{key}", s.handleUpdateByKey)
	admin.HandleFunc("POST /api/admin/editar-cliente", s.handleEditClient)

	mux := http.NewServeMux()
	mux.Handle("/api/admin/", auth.RequireAdmin(authn)(admin))
	mux.HandleFunc("GET /healthz", s.handleHealth)

	return requestLogger(s.logger)(mux)
}

func (s *Server) handleTables(w http.ResponseWriter, _ *http.Request) {
	writeData(w, http.StatusOK, s.store.Tables())
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	table := r.PathValue("table")

	if id := pathOrQueryID(r); id != "" {
		rec, err := s.store.Get(ctx, table, id)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, rec)
		return
	}

	filters := make(map[string]string)
	for k, v := range r.URL.Query() {
		if len(v) > 0 {
			filters[k] = v[0]
		}
	}
	list, err := s.store.List(ctx, table, filters)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, list)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	body, err := s.readBody(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	rec, err := s.store.Create(r.Context(), r.PathValue("table"), body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, rec)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	body, err := s.readBody(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	id := requestID(r, body)
	if id == "" {
		s.writeError(w, r, sserr.New(sserr.CodeValidationRequired, "id é obrigatório"))
		return
	}
	delete(body, "id")

	rec, err := s.store.Update(r.Context(), r.PathValue("table"), id, body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, rec)
}

func (s *Server) handleUpdateByKey(w http.ResponseWriter, r *http.Request) {
	body, err := s.readBody(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	rec, err := s.store.UpdateByKey(r.Context(), r.PathValue("table"), r.PathValue("key"), body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, rec)
}

// handleEditClient updates a client addressed by slug. Only the client row
// is written; the client's login e-mail at the identity provider is not
// touched.
func (s *Server) handleEditClient(w http.ResponseWriter, r *http.Request) {
	body, err := s.readBody(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	slug := strings.TrimSpace(idString(body["slug"]))
	if slug == "" {
		s.writeError(w, r, sserr.New(sserr.CodeValidationRequired, "slug é obrigatório"))
		return
	}
	rec, err := s.store.UpdateByKey(r.Context(), clientsTable, slug, body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, rec)
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	body, err := s.readBody(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	action := strings.TrimSpace(idString(body["action"]))
	id := requestID(r, body)
	if action == "" || id == "" {
		s.writeError(w, r, sserr.New(sserr.CodeValidationRequired, "action e id são obrigatórios"))
		return
	}

	ctx, table := r.Context(), r.PathValue("table")
	switch action {
	case actionToggle:
		rec, err := s.store.Toggle(ctx, table, id)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, rec)
	case actionDuplicate:
		rec, err := s.store.Duplicate(ctx, table, id)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeData(w, http.StatusCreated, rec)
	default:
		s.writeError(w, r, sserr.Validationf("action inválida: %q", action))
	}
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := pathOrQueryID(r)
	if id == "" && r.ContentLength != 0 {
		body, err := s.readBody(w, r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		id = idString(body["id"])
	}
	if id == "" {
		s.writeError(w, r, sserr.New(sserr.CodeValidationRequired, "id é obrigatório"))
		return
	}

	if err := s.store.Delete(r.Context(), r.PathValue("table"), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// healthResponse is the /healthz body.
type healthResponse struct {
	Status   string        `json:"status"`
	State    string        `json:"state,omitempty"`
	Database string        `json:"database,omitempty"`
	Cache    string        `json:"cache,omitempty"`
	KeySet   *keySetHealth `json:"key_set,omitempty"`
}

type keySetHealth struct {
	Keys      int    `json:"keys"`
	FetchedAt string `json:"fetched_at,omitempty"`
	LastError string `json:"last_error,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	status := http.StatusOK

	if s.service != nil {
		resp.State = s.service.State().String()
		if err := s.service.Health(r.Context()); err != nil {
			resp.Status = "unavailable"
			status = http.StatusServiceUnavailable
		}
	}

	if s.db != nil {
		resp.Database = "ok"
		if err := s.db.Health(r.Context()); err != nil {
			s.logger.WarnContext(r.Context(), "adminapi: database health check failed", "error", err)
			resp.Status, resp.Database = "unavailable", "unreachable"
			status = http.StatusServiceUnavailable
		}
	}
	if s.cache != nil {
		resp.Cache = "ok"
		if err := s.cache.Health(r.Context()); err != nil {
			s.logger.WarnContext(r.Context(), "adminapi: cache health check failed", "error", err)
			resp.Cache = "unreachable"
			if resp.Status == "ok" {
				resp.Status = "degraded"
			}
		}
	}
	if s.keys != nil {
		stats := s.keys.Stats()
		ks := &keySetHealth{Keys: stats.Keys}
		if !stats.FetchedAt.IsZero() {
			ks.FetchedAt = stats.FetchedAt.UTC().Format(time.RFC3339)
		}
		if stats.LastError != nil {
			ks.LastError = sserr.GetCode(stats.LastError).String()
		}
		if stats.Keys == 0 && resp.Status == "ok" {
			resp.Status = "degraded"
		}
		resp.KeySet = ks
	}
	writeJSON(w, status, resp)
}

func pathOrQueryID(r *http.Request) string {
	if id := strings.TrimSpace(r.PathValue("id")); id != "" {
		return id
	}
	return strings.TrimSpace(r.URL.Query().Get("id"))
}

// requestID resolves the row id from the path, the query or the body.
func requestID(r *http.Request, body records.Record) string {
	if id := pathOrQueryID(r); id != "" {
		return id
	}
	return strings.TrimSpace(idString(body["id"]))
}
