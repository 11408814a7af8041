// cmd/didd/main_test.go
package main

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/RegistryAccord/registryaccord-did-go/internal/config"
	"github.com/RegistryAccord/registryaccord-did-go/internal/model"
	"github.com/RegistryAccord/registryaccord-did-go/internal/resolver"
	"github.com/RegistryAccord/registryaccord-did-go/internal/resolver/jwk"
	"github.com/RegistryAccord/registryaccord-did-go/internal/resolver/web"
	"github.com/RegistryAccord/registryaccord-did-go/internal/server"
	"github.com/RegistryAccord/registryaccord-did-go/internal/storage"
)

// This is an integration-style test that wires the same components main()
// uses (in-memory registry + dispatcher + server mux) but runs them under
// httptest.Server.
func TestDidd_Integration(t *testing.T) {
	cfg := config.Config{
		Address:         ":8080",
		RegistryBackend: "memory",
		WebTimeout:      10 * time.Second,
		WebCacheTTL:     5 * time.Minute,
	}
	registry := storage.NewMemory()
	webResolver := web.New(
		web.WithTimeout(cfg.WebTimeout),
		web.WithCacheTTL(cfg.WebCacheTTL),
	)
	dispatcher := resolver.NewDispatcher(registry)
	dispatcher.RegisterMethod("web", webResolver)
	dispatcher.RegisterMethod("jwk", jwk.New())

	h := server.New(cfg, registry, dispatcher, webResolver, slog.Default())
	ts := httptest.NewServer(h.Router())
	defer ts.Close()

	// Health
	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("health request error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Register a DID
	did := "did:key:z6MkIntegration"
	body, _ := json.Marshal(map[string]any{
		"did": did,
		"document": model.DIDDocument{
			Context: model.Context{model.DIDContextV1},
			ID:      did,
		},
	})
	resp, err = http.Post(ts.URL+"/v1/dids", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("register error: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		b, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Fatalf("register status = %d body=%s", resp.StatusCode, string(b))
	}
	resp.Body.Close()

	// Resolve it back through the dispatcher path
	resp, err = http.Get(ts.URL + "/v1/dids/" + did)
	if err != nil {
		t.Fatalf("resolve error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Fatalf("resolve status = %d body=%s", resp.StatusCode, string(b))
	}
	var env struct {
		Data model.DIDResolutionResult `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		resp.Body.Close()
		t.Fatalf("decode resolve: %v", err)
	}
	resp.Body.Close()
	if env.Data.DIDResolutionMetadata.Error != "" {
		t.Fatalf("resolution error = %q", env.Data.DIDResolutionMetadata.Error)
	}
	if env.Data.DIDDocument == nil || env.Data.DIDDocument.ID != did {
		t.Fatalf("document mismatch: %+v", env.Data.DIDDocument)
	}

	// did:jwk resolves without any registry state.
	jwkPayload := base64.RawURLEncoding.EncodeToString([]byte(`{"kty":"OKP","crv":"Ed25519","x":"abc"}`))
	resp, err = http.Get(ts.URL + "/v1/dids/did:jwk:" + jwkPayload)
	if err != nil {
		t.Fatalf("jwk resolve error: %v", err)
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		resp.Body.Close()
		t.Fatalf("decode jwk resolve: %v", err)
	}
	resp.Body.Close()
	if env.Data.DIDResolutionMetadata.Error != "" {
		t.Fatalf("jwk resolution error = %q", env.Data.DIDResolutionMetadata.Error)
	}
	if env.Data.DIDDocument == nil || len(env.Data.DIDDocument.VerificationMethod) != 1 {
		t.Fatalf("jwk document mismatch: %+v", env.Data.DIDDocument)
	}
}
