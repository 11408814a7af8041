// Package server contains the HTTP route layer that exposes the DID
// registry and resolvers over a network API. It translates registry errors
// and resolution results into transport-level responses; all domain logic
// lives below it.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/RegistryAccord/registryaccord-did-go/internal/config"
	"github.com/RegistryAccord/registryaccord-did-go/internal/model"
	"github.com/RegistryAccord/registryaccord-did-go/internal/resolver"
	"github.com/RegistryAccord/registryaccord-did-go/internal/resolver/web"
	"github.com/RegistryAccord/registryaccord-did-go/internal/storage"
)

type contextKey string

const (
	contextKeyCorrelationID contextKey = "correlationId"

	headerContentType   = "Content-Type"
	headerCorrelationID = "X-Correlation-Id"
	headerCacheControl  = "Cache-Control"

	contentTypeJSON    = "application/json"
	contentTypeDIDJSON = "application/did+json"

	cacheControlResolve = "public, max-age=60"
)

// Handler wires HTTP endpoints using net/http.
type Handler struct {
	cfg        config.Config
	registry   storage.Registry
	dispatcher *resolver.Dispatcher
	webCache   *web.Resolver
	logger     *slog.Logger
	router     *http.ServeMux
}

// New creates a Handler using the supplied dependencies. webCache may be
// nil when no did:web resolver is wired; the cache admin routes then answer
// 404.
func New(cfg config.Config, registry storage.Registry, dispatcher *resolver.Dispatcher, webCache *web.Resolver, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		cfg:        cfg,
		registry:   registry,
		dispatcher: dispatcher,
		webCache:   webCache,
		logger:     logger,
		router:     http.NewServeMux(),
	}
	h.registerRoutes()
	return h
}

// Router returns the *http.ServeMux with all routes registered.
func (h *Handler) Router() *http.ServeMux {
	return h.router
}

func (h *Handler) registerRoutes() {
	h.router.Handle("/health", h.loggingMiddleware(h.timeoutMiddleware(http.HandlerFunc(h.health))))
	h.router.Handle("/ready", h.loggingMiddleware(h.timeoutMiddleware(http.HandlerFunc(h.readyHandler))))
	h.router.Handle("/metrics", h.loggingMiddleware(h.timeoutMiddleware(http.HandlerFunc(h.metricsHandler))))

	h.router.Handle("/v1/dids", h.loggingMiddleware(h.timeoutMiddleware(h.corsMiddleware(h.wrap(h.handleDIDCollection)))))
	h.router.Handle("/v1/dids/", h.loggingMiddleware(h.timeoutMiddleware(h.corsMiddleware(h.wrap(h.handleDIDItem)))))
	h.router.Handle("/v1/cache/web", h.loggingMiddleware(h.timeoutMiddleware(h.corsMiddleware(h.wrap(h.handleWebCache)))))

	// did:web hosting: the root pattern catches every unmatched path and
	// serves registry documents for */did.json when a domain is configured.
	h.router.Handle("/", h.loggingMiddleware(h.timeoutMiddleware(h.wrap(h.wellKnownHandler))))
}

type responseEnvelope struct {
	Data  any            `json:"data,omitempty"`
	Meta  any            `json:"meta,omitempty"`
	Error *errorEnvelope `json:"error,omitempty"`
}

type errorEnvelope struct {
	Code          string `json:"code"`
	Message       string `json:"message"`
	Details       any    `json:"details,omitempty"`
	CorrelationID string `json:"correlationId"`
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) wrap(next func(http.ResponseWriter, *http.Request)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		correlationID := h.ensureCorrelationID(w, r)
		ctx := context.WithValue(r.Context(), contextKeyCorrelationID, correlationID)
		r = r.WithContext(ctx)
		w.Header().Set(headerContentType, contentTypeJSON)

		defer func() {
			if rec := recover(); rec != nil {
				h.logger.Error("panic recovered", "panic", rec, "correlationId", correlationID)
				h.writeError(w, http.StatusInternalServerError, "DID_INTERNAL", "internal server error", correlationID, nil)
			}
		}()

		next(w, r)
	})
}

func (h *Handler) ensureCorrelationID(w http.ResponseWriter, r *http.Request) string {
	id := strings.TrimSpace(r.Header.Get(headerCorrelationID))
	if id == "" {
		id = uuid.NewString()
	}
	w.Header().Set(headerCorrelationID, id)
	return id
}

// handleDIDCollection serves POST /v1/dids (register) and GET /v1/dids
// (list active DIDs).
func (h *Handler) handleDIDCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.authGuard(w, r, h.handleRegister)
	case http.MethodGet:
		h.handleList(w, r)
	default:
		h.writeErrorWithRequest(w, r, http.StatusMethodNotAllowed, "DID_VALIDATION", "method not allowed", nil)
	}
}

// handleDIDItem serves GET/PATCH/DELETE /v1/dids/{did}.
func (h *Handler) handleDIDItem(w http.ResponseWriter, r *http.Request) {
	didID := strings.TrimPrefix(r.URL.Path, "/v1/dids/")
	if didID == "" {
		h.writeErrorWithRequest(w, r, http.StatusBadRequest, "DID_VALIDATION", "did is required", nil)
		return
	}
	switch r.Method {
	case http.MethodGet:
		h.handleResolve(w, r, didID)
	case http.MethodPatch:
		h.authGuard(w, r, func(w http.ResponseWriter, r *http.Request) { h.handleUpdate(w, r, didID) })
	case http.MethodDelete:
		h.authGuard(w, r, func(w http.ResponseWriter, r *http.Request) { h.handleDeactivate(w, r, didID) })
	default:
		h.writeErrorWithRequest(w, r, http.StatusMethodNotAllowed, "DID_VALIDATION", "method not allowed", nil)
	}
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var input struct {
		DID      string            `json:"did"`
		Document model.DIDDocument `json:"document"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		h.writeErrorWithRequest(w, r, http.StatusBadRequest, "DID_VALIDATION", "invalid JSON body", nil)
		return
	}
	didID := strings.TrimSpace(input.DID)
	if resolver.Method(didID) == "" {
		h.writeErrorWithRequest(w, r, http.StatusUnprocessableEntity, "DID_VALIDATION", "did must have the form did:<method>:<id>", nil)
		return
	}

	if err := h.registry.Register(r.Context(), didID, input.Document); err != nil {
		incrementMutation("register", "failure")
		if errors.Is(err, storage.ErrAlreadyRegistered) {
			h.writeErrorWithRequest(w, r, http.StatusConflict, "DID_CONFLICT", err.Error(), map[string]any{"did": didID})
			return
		}
		h.writeErrorWithRequest(w, r, http.StatusInternalServerError, "DID_INTERNAL", "failed to persist did", nil)
		return
	}
	incrementMutation("register", "success")

	h.writeSuccess(w, http.StatusCreated, map[string]any{"did": didID}, nil, r)
	h.logger.Info("did registered", "did", didID, "correlationId", correlationIDFrom(r.Context()))
}

// handleResolve routes through the dispatcher, so locally-registered DIDs,
// did:web, and did:jwk all converge on the same result contract. Negative
// outcomes still return 200 with the structured result; only an
// infrastructure fault maps to 5xx.
func (h *Handler) handleResolve(w http.ResponseWriter, r *http.Request, didID string) {
	res, err := h.dispatcher.Resolve(r.Context(), didID)
	if err != nil {
		h.writeErrorWithRequest(w, r, http.StatusInternalServerError, "DID_INTERNAL", "resolution backend failure", nil)
		return
	}
	incrementResolution(resolver.Method(didID), res.DIDResolutionMetadata.Error)

	if res.DIDResolutionMetadata.Error == "" {
		w.Header().Set(headerCacheControl, cacheControlResolve)
	}
	h.writeSuccess(w, http.StatusOK, res, nil, r)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request, didID string) {
	var partial model.DIDDocument
	if err := json.NewDecoder(r.Body).Decode(&partial); err != nil {
		h.writeErrorWithRequest(w, r, http.StatusBadRequest, "DID_VALIDATION", "invalid JSON body", nil)
		return
	}

	if err := h.registry.Update(r.Context(), didID, partial); err != nil {
		incrementMutation("update", "failure")
		switch {
		case errors.Is(err, storage.ErrNotFound):
			h.writeErrorWithRequest(w, r, http.StatusNotFound, "DID_NOT_FOUND", err.Error(), map[string]any{"did": didID})
		case errors.Is(err, storage.ErrDeactivated):
			h.writeErrorWithRequest(w, r, http.StatusGone, "DID_DEACTIVATED", err.Error(), map[string]any{"did": didID})
		default:
			h.writeErrorWithRequest(w, r, http.StatusInternalServerError, "DID_INTERNAL", "failed to update did", nil)
		}
		return
	}
	incrementMutation("update", "success")

	h.writeSuccess(w, http.StatusOK, map[string]any{"did": didID}, nil, r)
	h.logger.Info("did updated", "did", didID, "correlationId", correlationIDFrom(r.Context()))
}

func (h *Handler) handleDeactivate(w http.ResponseWriter, r *http.Request, didID string) {
	if err := h.registry.Deactivate(r.Context(), didID); err != nil {
		incrementMutation("deactivate", "failure")
		if errors.Is(err, storage.ErrNotFound) {
			h.writeErrorWithRequest(w, r, http.StatusNotFound, "DID_NOT_FOUND", err.Error(), map[string]any{"did": didID})
			return
		}
		h.writeErrorWithRequest(w, r, http.StatusInternalServerError, "DID_INTERNAL", "failed to deactivate did", nil)
		return
	}
	incrementMutation("deactivate", "success")

	h.writeSuccess(w, http.StatusOK, map[string]any{"did": didID, "deactivated": true}, nil, r)
	h.logger.Info("did deactivated", "did", didID, "correlationId", correlationIDFrom(r.Context()))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	dids, err := h.registry.List(r.Context())
	if err != nil {
		h.writeErrorWithRequest(w, r, http.StatusInternalServerError, "DID_INTERNAL", "failed to list dids", nil)
		return
	}
	if dids == nil {
		dids = []string{}
	}
	h.writeSuccess(w, http.StatusOK, map[string]any{"dids": dids}, map[string]any{"count": len(dids)}, r)
}

// handleWebCache serves DELETE /v1/cache/web[?did=...]: with a did it
// evicts one did:web cache entry, without one it clears the whole cache.
func (h *Handler) handleWebCache(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		h.writeErrorWithRequest(w, r, http.StatusMethodNotAllowed, "DID_VALIDATION", "method not allowed", nil)
		return
	}
	if h.webCache == nil {
		h.writeErrorWithRequest(w, r, http.StatusNotFound, "DID_NOT_FOUND", "did:web resolver not configured", nil)
		return
	}
	if didID := strings.TrimSpace(r.URL.Query().Get("did")); didID != "" {
		h.webCache.Evict(didID)
		h.writeSuccess(w, http.StatusOK, map[string]any{"evicted": didID}, nil, r)
		return
	}
	h.webCache.ClearCache()
	h.writeSuccess(w, http.StatusOK, map[string]any{"cleared": true}, nil, r)
}

func (h *Handler) writeSuccess(w http.ResponseWriter, status int, data any, meta any, r *http.Request) []byte {
	env := responseEnvelope{Data: data, Meta: meta}
	payload := mustJSON(env)
	w.WriteHeader(status)
	if _, err := w.Write(payload); err != nil {
		h.logger.Warn("write success failed", "error", err, "correlationId", correlationIDFrom(r.Context()))
	}
	return payload
}

func (h *Handler) writeErrorWithRequest(w http.ResponseWriter, r *http.Request, status int, code, message string, details any) {
	h.writeError(w, status, code, message, correlationIDFrom(r.Context()), details)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, message, correlationID string, details any) {
	env := responseEnvelope{Error: &errorEnvelope{Code: code, Message: message, Details: details, CorrelationID: correlationID}}
	payload := mustJSON(env)
	w.WriteHeader(status)
	if _, err := w.Write(payload); err != nil {
		h.logger.Warn("write error failed", "error", err, "correlationId", correlationID)
	}
}

func mustJSON(v any) []byte {
	payload, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return payload
}

func correlationIDFrom(ctx context.Context) string {
	if v, ok := ctx.Value(contextKeyCorrelationID).(string); ok {
		return v
	}
	return ""
}
