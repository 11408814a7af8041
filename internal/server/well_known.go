// Package server contains HTTP handlers for the DID service.
// This file makes the service a did:web host: documents held in the
// registry are served at the well-known locations external did:web
// resolvers derive, so DIDs of the form did:web:<domain>[:path...] under
// the configured domain resolve against this service.
package server

import (
	"net/http"
	"strings"

	"github.com/RegistryAccord/registryaccord-did-go/internal/model"
)

// wellKnownHandler serves GET /.well-known/did.json for did:web:<domain>
// and GET /{seg}/.../did.json for did:web:<domain>:{seg}:... . Hosting is
// disabled until DID_WEB_DOMAIN is configured. The response body is the
// bare document, not the service envelope; it is read by other resolvers,
// not by API clients.
func (h *Handler) wellKnownHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeErrorWithRequest(w, r, http.StatusMethodNotAllowed, "DID_VALIDATION", "method not allowed", nil)
		return
	}
	didID, ok := h.didForPath(r.URL.Path)
	if !ok {
		h.writeErrorWithRequest(w, r, http.StatusNotFound, "DID_NOT_FOUND", "no document at this path", nil)
		return
	}

	res, err := h.registry.Resolve(r.Context(), didID)
	if err != nil {
		h.writeErrorWithRequest(w, r, http.StatusInternalServerError, "DID_INTERNAL", "lookup failed", nil)
		return
	}
	switch res.DIDResolutionMetadata.Error {
	case "":
	case model.ErrorDeactivated:
		h.writeErrorWithRequest(w, r, http.StatusGone, "DID_DEACTIVATED", "DID has been deactivated", map[string]any{"did": didID})
		return
	default:
		h.writeErrorWithRequest(w, r, http.StatusNotFound, "DID_NOT_FOUND", "did not registered", map[string]any{"did": didID})
		return
	}

	w.Header().Set(headerContentType, contentTypeDIDJSON)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(mustJSON(res.DIDDocument)); err != nil {
		h.logger.Warn("write document failed", "error", err, "correlationId", correlationIDFrom(r.Context()))
	}
}

// didForPath maps a request path to the did:web identifier it hosts.
// Returns ok=false when hosting is disabled or the path is not a document
// location.
func (h *Handler) didForPath(path string) (string, bool) {
	domain := h.cfg.WebDomain
	if domain == "" {
		return "", false
	}
	if path == "/.well-known/did.json" {
		return "did:web:" + domain, true
	}
	trimmed := strings.TrimPrefix(path, "/")
	trimmed, found := strings.CutSuffix(trimmed, "/did.json")
	if !found || trimmed == "" {
		return "", false
	}
	segments := strings.Split(trimmed, "/")
	for _, seg := range segments {
		if seg == "" {
			return "", false
		}
	}
	return "did:web:" + domain + ":" + strings.Join(segments, ":"), true
}
