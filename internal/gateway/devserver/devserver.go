// Package devserver emulates the hosted backend's REST dialect over the
// in-memory store. It backs the rest client's integration tests and the
// local devserver binary; it is not a production server.
package devserver

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/hallhub/hallhub/internal/gateway"
	"github.com/hallhub/hallhub/internal/gateway/memory"
)

// Server serves the REST dialect over a memory store.
type Server struct {
	store *memory.Store
	log   *slog.Logger
}

// New wires a server to its store. log may be nil.
func New(store *memory.Store, log *slog.Logger) *Server {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Server{store: store, log: log}
}

// Router builds the HTTP surface: collection endpoints under /rest/v1
// and the session endpoint under /auth/v1.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/rest/v1/{collection}", func(r chi.Router) {
		r.Get("/", s.handleQuery)
		r.Post("/", s.handleInsert)
		r.Patch("/", s.handleUpdate)
		r.Delete("/", s.handleDelete)
	})

	r.Get("/auth/v1/user", s.handleIdentity)
	return r
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")

	filters, order, err := parseQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, gateway.CodeUnknown, err.Error())
		return
	}

	rows, err := s.store.Query(r.Context(), collection, filters, order)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if rows == nil {
		rows = []gateway.Record{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleInsert(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")

	var rec gateway.Record
	if err := decodeJSON(r, &rec); err != nil {
		writeError(w, http.StatusBadRequest, gateway.CodeUnknown, "invalid request body: "+err.Error())
		return
	}

	created, err := s.store.Insert(r.Context(), collection, rec)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")
	id, ok := idParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, gateway.CodeUnknown, "id=eq.<value> filter is required")
		return
	}

	var partial gateway.Record
	if err := decodeJSON(r, &partial); err != nil {
		writeError(w, http.StatusBadRequest, gateway.CodeUnknown, "invalid request body: "+err.Error())
		return
	}

	if err := s.store.Update(r.Context(), collection, id, partial); err != nil {
		s.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")
	id, ok := idParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, gateway.CodeUnknown, "id=eq.<value> filter is required")
		return
	}

	if err := s.store.Delete(r.Context(), collection, id); err != nil {
		s.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleIdentity(w http.ResponseWriter, r *http.Request) {
	identity, err := s.store.CurrentIdentity(r.Context())
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if identity == nil {
		writeError(w, http.StatusUnauthorized, gateway.CodeUnauthenticated, "no session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": identity.ID, "email": identity.Email})
}

// parseQuery turns the dialect's query parameters into store filters:
// every parameter except "order" is field=op.value; "order" is a
// comma-separated list of field.asc|desc.
func parseQuery(r *http.Request) ([]gateway.Filter, []gateway.Order, error) {
	var filters []gateway.Filter
	var order []gateway.Order

	for field, values := range r.URL.Query() {
		for _, value := range values {
			if field == "order" {
				for _, part := range strings.Split(value, ",") {
					name, dir, _ := strings.Cut(part, ".")
					order = append(order, gateway.Order{Field: name, Desc: dir == "desc"})
				}
				continue
			}
			opName, operand, ok := strings.Cut(value, ".")
			if !ok {
				return nil, nil, fmt.Errorf("filter %s=%s: expected op.value", field, value)
			}
			filters = append(filters, gateway.Filter{
				Field: field,
				Op:    gateway.Op(opName),
				Value: coerce(operand),
			})
		}
	}
	return filters, order, nil
}

// coerce turns numeric-looking operands into numbers so they compare
// against stored integer columns.
func coerce(s string) any {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	return s
}

func idParam(r *http.Request) (any, bool) {
	raw := r.URL.Query().Get("id")
	op, operand, ok := strings.Cut(raw, ".")
	if !ok || op != "eq" {
		return nil, false
	}
	return coerce(operand), true
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	code := gateway.CodeOf(err)
	status := http.StatusInternalServerError
	switch code {
	case gateway.CodeNotFound:
		status = http.StatusNotFound
	case gateway.CodeCapacityFull, gateway.CodeDuplicateRegistration:
		status = http.StatusConflict
	case gateway.CodeUnauthenticated:
		status = http.StatusUnauthorized
	}
	s.log.Warn("store operation rejected", "code", code, "error", err)
	writeError(w, status, code, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code gateway.Code, msg string) {
	writeJSON(w, status, map[string]string{"code": string(code), "message": msg})
}

func decodeJSON(r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, 1<<20) // 1 MB limit
	dec := json.NewDecoder(r.Body)
	return dec.Decode(dst)
}
