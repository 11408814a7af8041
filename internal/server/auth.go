// Package server contains HTTP handlers for the DID service.
// This file implements the optional bearer-token guard on mutating routes.
package server

import (
	"crypto/ed25519"
	"fmt"
	"net/http"
	"strings"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// authGuard enforces an EdDSA bearer JWT on mutating routes when an auth
// public key is configured. Without a configured key the guard is a
// pass-through: deployments that front the service with their own gateway
// leave it off. Resolution routes are never guarded.
func (h *Handler) authGuard(w http.ResponseWriter, r *http.Request, next func(http.ResponseWriter, *http.Request)) {
	if len(h.cfg.AuthPublicKey) == 0 {
		next(w, r)
		return
	}

	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(raw, "Bearer ") {
		h.writeErrorWithRequest(w, r, http.StatusUnauthorized, "DID_AUTHZ", "bearer token required", nil)
		return
	}
	token := strings.TrimPrefix(raw, "Bearer ")

	if err := h.validateToken(token); err != nil {
		h.logger.Warn("token rejected", "error", err, "correlationId", correlationIDFrom(r.Context()))
		h.writeErrorWithRequest(w, r, http.StatusUnauthorized, "DID_AUTHZ", "invalid token", nil)
		return
	}
	next(w, r)
}

// validateToken verifies signature, algorithm, audience, and expiry with
// fail-closed semantics.
func (h *Handler) validateToken(tokenString string) error {
	if len(h.cfg.AuthPublicKey) != ed25519.PublicKeySize {
		return fmt.Errorf("auth public key must be %d bytes", ed25519.PublicKeySize)
	}

	token, err := jwtlib.Parse(tokenString,
		func(token *jwtlib.Token) (interface{}, error) {
			if token.Method != jwtlib.SigningMethodEdDSA {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return ed25519.PublicKey(h.cfg.AuthPublicKey), nil
		},
		jwtlib.WithAudience(h.cfg.AuthAudience),
		jwtlib.WithExpirationRequired(),
	)
	if err != nil {
		return fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(jwtlib.MapClaims)
	if !ok {
		return fmt.Errorf("failed to parse claims")
	}
	if sub, ok := claims["sub"].(string); !ok || sub == "" {
		return fmt.Errorf("missing or invalid sub claim")
	}
	return nil
}
