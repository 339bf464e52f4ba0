// Package api is the BFF's HTTP surface.
package api

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/harrylevesque/hivebff/internal/auth"
	"github.com/harrylevesque/hivebff/internal/resource"
	"github.com/harrylevesque/hivebff/internal/search"
)

// Deps are the components the handlers call into.
type Deps struct {
	Resources *resource.Service
	Lists     *resource.Lists
	Search    *search.Service
	Sessions  *auth.Manager
	Logger    *zap.Logger
}

type server struct {
	resources *resource.Service
	lists     *resource.Lists
	search    *search.Service
	sessions  *auth.Manager
	log       *zap.Logger
}

// NewRouter returns the BFF handler with its middleware applied.
func NewRouter(d Deps) http.Handler {
	log := d.Logger
	if log == nil {
		log = zap.NewNop()
	}
	s := &server{
		resources: d.Resources,
		lists:     d.Lists,
		search:    d.Search,
		sessions:  d.Sessions,
		log:       log,
	}

	r := mux.NewRouter()
	r.Use(tracing)
	r.NotFoundHandler = http.HandlerFunc(notFound)
	r.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if _, err := fmt.Fprintln(w, "OK"); err != nil {
			log.Debug("write health response", zap.Error(err))
		}
	}).Methods(http.MethodGet)

	r.HandleFunc("/auth/handoff", s.handoff).Methods(http.MethodGet)

	r.HandleFunc("/api/session", s.getSession).Methods(http.MethodGet)
	r.HandleFunc("/api/session", s.createSession).Methods(http.MethodPost)
	r.HandleFunc("/api/session", s.deleteSession).Methods(http.MethodDelete)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(authenticate(d.Sessions, log))
	for _, name := range resource.Names() {
		schema, _ := resource.Lookup(name)
		path := "/" + schema.Name
		api.HandleFunc(path, s.resourceStatus(schema)).Methods(http.MethodGet)
		api.HandleFunc(path, s.mutate(schema, resource.OpCreate)).Methods(http.MethodPost)
		api.HandleFunc(path, s.mutate(schema, resource.OpUpdate)).Methods(http.MethodPut)
		api.HandleFunc(path, s.mutate(schema, resource.OpDelete)).Methods(http.MethodDelete)
	}
	api.HandleFunc("/accounts/{accountId}/activities", s.activities).Methods(http.MethodGet)
	api.HandleFunc("/accounts/{accountId}/{collection}", s.list).Methods(http.MethodGet)
	api.HandleFunc("/search", s.searchHandler).Methods(http.MethodGet)

	var h http.Handler = r
	h = recoverer(log)(h)
	h = accessLog(log)(h)
	h = requestID(h)
	return h
}
