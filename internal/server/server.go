// Package server exposes the blocker over a small JSON API.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/ShanpreetSingh/cyber-siege/pkg/blocker"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
)

type Server struct {
	blocker *blocker.Blocker
	server  *http.Server
}

func New(b *blocker.Blocker, addr string) *Server {
	s := &Server{blocker: b}

	router := mux.NewRouter().StrictSlash(true)

	apiRouter := router.PathPrefix("/api").Subrouter()
	apiRouter.HandleFunc("/events", s.ingestEvent).Methods(http.MethodPost)
	apiRouter.HandleFunc("/blocked", s.listBlocks).Methods(http.MethodGet)
	apiRouter.HandleFunc("/blocked/{ip}", s.blockedQuery).Methods(http.MethodGet)
	apiRouter.HandleFunc("/block/{ip}", s.block).Methods(http.MethodPost)
	apiRouter.HandleFunc("/unblock/{ip}", s.unblock).Methods(http.MethodPost)
	apiRouter.HandleFunc("/sources", s.listSources).Methods(http.MethodGet)
	apiRouter.HandleFunc("/audit", s.listDecisions).Methods(http.MethodGet)
	apiRouter.HandleFunc("/policy", s.getPolicy).Methods(http.MethodGet)

	// The entry pattern spans slashes so CIDR ranges fit in the path.
	whitelistRouter := apiRouter.PathPrefix("/whitelist").Subrouter()
	whitelistRouter.HandleFunc("/", s.listWhitelist).Methods(http.MethodGet)
	whitelistRouter.HandleFunc("/{entry:.+}", s.addWhitelistEntry).Methods(http.MethodPut)
	whitelistRouter.HandleFunc("/{entry:.+}", s.removeWhitelistEntry).Methods(http.MethodDelete)

	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	s.server = &http.Server{Addr: addr, Handler: cors.Default().Handler(router)}

	return s
}

func (s *Server) ListenAndServe() error {
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}
