package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"sync/atomic"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/wolfeidau/jitr/internal/dealer"
	httpmiddleware "github.com/wolfeidau/jitr/internal/http"
	"github.com/wolfeidau/jitr/internal/store"
)

const (
	// maxBodySize is the maximum allowed request body size (1MB).
	maxBodySize = 1024 * 1024

	defaultJournalLimit = 50
)

// RouterOptions configures the HTTP surface.
type RouterOptions struct {
	Logger         zerolog.Logger
	AllowedOrigins []string
}

// Server serves the HTTP boundary and its health endpoints.
type Server struct {
	handlers *Handlers
	journal  store.JournalStore
	isReady  atomic.Bool
}

// NewServer creates a Server that starts out ready.
func NewServer(handlers *Handlers) *Server {
	srv := &Server{handlers: handlers, journal: handlers.cfg.Journal}
	srv.isReady.Store(true)
	return srv
}

// Router builds the chi router for the server.
func (srv *Server) Router(opts RouterOptions) http.Handler {
	mux := chi.NewRouter()
	mux.Use(httpmiddleware.RequestLogger(opts.Logger))

	mux.Post("/ca-registrations", srv.handleRegistration)
	mux.Post("/device-activations", srv.handleActivation)

	if srv.journal != nil {
		mux.Get("/journal/certificates/{certificateId}", srv.handleCertificateJournal)
		mux.Get("/journal/{pipeline}", srv.handlePipelineJournal)
	}

	// Health and diagnostic endpoints
	mux.Get("/livez", srv.handleLivenessCheck)
	mux.Get("/readyz", srv.handleReadinessCheck)
	mux.Get("/drain", srv.handleDrain)
	mux.Get("/undrain", srv.handleUndrain)

	handler := otelhttp.NewHandler(mux, "jitr")

	if len(opts.AllowedOrigins) > 0 {
		return withCORS(opts.AllowedOrigins, handler)
	}
	return handler
}

// withCORS adds CORS support for browser based callers.
func withCORS(allowedOrigins []string, h http.Handler) http.Handler {
	middleware := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization", httpmiddleware.RequestIDHeader},
		ExposedHeaders: []string{httpmiddleware.RequestIDHeader},
	})
	return middleware.Handler(h)
}

func (srv *Server) handleRegistration(w http.ResponseWriter, r *http.Request) {
	raw, ok := readBody(w, r)
	if !ok {
		return
	}

	resp, _ := srv.handlers.Register(r.Context(), raw)
	writeJSON(w, resp.StatusCode, resp.Body)
}

func (srv *Server) handleActivation(w http.ResponseWriter, r *http.Request) {
	raw, ok := readBody(w, r)
	if !ok {
		return
	}

	resp, _ := srv.handlers.Activate(r.Context(), raw)
	writeJSON(w, resp.StatusCode, resp.Body)
}

func (srv *Server) handlePipelineJournal(w http.ResponseWriter, r *http.Request) {
	pipeline := store.Pipeline(chi.URLParam(r, "pipeline"))
	if !pipeline.Valid() {
		writeFailure(w, dealer.Inputf("unknown pipeline %q", pipeline))
		return
	}

	limit := defaultJournalLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeFailure(w, dealer.Inputf("limit must be a positive integer"))
			return
		}
		limit = n
	}

	entries, err := srv.journal.List(r.Context(), pipeline, limit)
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("failed to list journal")
		writeFailure(w, dealer.Processing("list journal", err))
		return
	}

	writeJSON(w, http.StatusOK, entries)
}

func (srv *Server) handleCertificateJournal(w http.ResponseWriter, r *http.Request) {
	entries, err := srv.journal.ListByCertificate(r.Context(), chi.URLParam(r, "certificateId"))
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("failed to list certificate journal")
		writeFailure(w, dealer.Processing("list journal", err))
		return
	}

	writeJSON(w, http.StatusOK, entries)
}

func (srv *Server) handleLivenessCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

func (srv *Server) handleReadinessCheck(w http.ResponseWriter, r *http.Request) {
	if !srv.isReady.Load() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (srv *Server) handleDrain(w http.ResponseWriter, r *http.Request) {
	if !srv.isReady.Swap(false) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "already draining"})
		return
	}

	log.Info().Msg("server marked as not ready")
	writeJSON(w, http.StatusOK, map[string]string{"status": "draining"})
}

func (srv *Server) handleUndrain(w http.ResponseWriter, r *http.Request) {
	if srv.isReady.Swap(true) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "already ready"})
		return
	}

	log.Info().Msg("server marked as ready")
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// Drain marks the server as not ready, used on shutdown.
func (srv *Server) Drain() {
	srv.isReady.Store(false)
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		writeFailure(w, dealer.Inputf("failed to read request body: %v", err))
		return nil, false
	}
	return raw, true
}

func writeFailure(w http.ResponseWriter, err error) {
	failure := dealer.Classify(err)
	writeJSON(w, failure.Status, failure)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("failed to write response")
	}
}
