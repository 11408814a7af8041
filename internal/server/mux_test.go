// internal/server/mux_test.go
package server

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/RegistryAccord/registryaccord-did-go/internal/config"
	"github.com/RegistryAccord/registryaccord-did-go/internal/model"
	"github.com/RegistryAccord/registryaccord-did-go/internal/resolver"
	"github.com/RegistryAccord/registryaccord-did-go/internal/resolver/jwk"
	"github.com/RegistryAccord/registryaccord-did-go/internal/storage"
)

func newTestServer(t *testing.T, cfg config.Config) (*httptest.Server, *storage.Memory) {
	t.Helper()
	reg := storage.NewMemory()
	dispatcher := resolver.NewDispatcher(reg)
	dispatcher.RegisterMethod("jwk", jwk.New())
	h := New(cfg, reg, dispatcher, nil, slog.Default())
	ts := httptest.NewServer(h.Router())
	t.Cleanup(ts.Close)
	return ts, reg
}

func registerBody(t *testing.T, did string) io.Reader {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"did": did,
		"document": model.DIDDocument{
			Context: model.Context{model.DIDContextV1},
			ID:      did,
		},
	})
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	return bytes.NewReader(body)
}

func TestHealth(t *testing.T) {
	ts, _ := newTestServer(t, config.Config{})

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d want %d", resp.StatusCode, http.StatusOK)
	}
	b, _ := io.ReadAll(resp.Body)
	if string(b) != "ok" {
		t.Fatalf("body = %q want %q", string(b), "ok")
	}
}

func TestRegisterAndResolve(t *testing.T) {
	ts, _ := newTestServer(t, config.Config{})
	did := "did:key:abc"

	resp, err := http.Post(ts.URL+"/v1/dids", "application/json", registerBody(t, did))
	if err != nil {
		t.Fatalf("POST register error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		b, _ := io.ReadAll(resp.Body)
		t.Fatalf("register status = %d body=%s", resp.StatusCode, string(b))
	}

	getResp, err := http.Get(ts.URL + "/v1/dids/" + did)
	if err != nil {
		t.Fatalf("GET resolve error: %v", err)
	}
	defer getResp.Body.Close()
	if getResp.StatusCode != http.StatusOK {
		t.Fatalf("resolve status = %d", getResp.StatusCode)
	}
	var env struct {
		Data model.DIDResolutionResult `json:"data"`
	}
	if err := json.NewDecoder(getResp.Body).Decode(&env); err != nil {
		t.Fatalf("decode resolve: %v", err)
	}
	if env.Data.DIDResolutionMetadata.Error != "" {
		t.Fatalf("unexpected resolution error: %s", env.Data.DIDResolutionMetadata.Error)
	}
	if env.Data.DIDDocument == nil || env.Data.DIDDocument.ID != did {
		t.Fatalf("document mismatch: %+v", env.Data.DIDDocument)
	}
}

func TestRegisterDuplicateConflict(t *testing.T) {
	ts, _ := newTestServer(t, config.Config{})
	did := "did:key:abc"

	resp, _ := http.Post(ts.URL+"/v1/dids", "application/json", registerBody(t, did))
	resp.Body.Close()

	resp, err := http.Post(ts.URL+"/v1/dids", "application/json", registerBody(t, did))
	if err != nil {
		t.Fatalf("POST register error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d want %d", resp.StatusCode, http.StatusConflict)
	}
	b, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(b), "already registered") {
		t.Fatalf("body %q should mention already registered", string(b))
	}
}

func TestResolveUnknownIsStructuredResult(t *testing.T) {
	ts, _ := newTestServer(t, config.Config{})

	// Resolution failures are data, not transport errors: still HTTP 200.
	resp, err := http.Get(ts.URL + "/v1/dids/did:key:missing")
	if err != nil {
		t.Fatalf("GET resolve error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d want %d", resp.StatusCode, http.StatusOK)
	}
	var env struct {
		Data model.DIDResolutionResult `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Data.DIDResolutionMetadata.Error != model.ErrorNotFound {
		t.Fatalf("error = %q want %q", env.Data.DIDResolutionMetadata.Error, model.ErrorNotFound)
	}
	if env.Data.DIDDocument != nil {
		t.Fatalf("expected null document, got %+v", env.Data.DIDDocument)
	}
}

func TestDeactivateFlow(t *testing.T) {
	ts, _ := newTestServer(t, config.Config{})
	did := "did:key:abc"

	resp, _ := http.Post(ts.URL+"/v1/dids", "application/json", registerBody(t, did))
	resp.Body.Close()

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/v1/dids/"+did, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE error: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("deactivate status = %d", resp.StatusCode)
	}

	// Resolving still returns the document with the deactivated error code.
	getResp, _ := http.Get(ts.URL + "/v1/dids/" + did)
	var env struct {
		Data model.DIDResolutionResult `json:"data"`
	}
	if err := json.NewDecoder(getResp.Body).Decode(&env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	getResp.Body.Close()
	if env.Data.DIDResolutionMetadata.Error != model.ErrorDeactivated {
		t.Fatalf("error = %q want %q", env.Data.DIDResolutionMetadata.Error, model.ErrorDeactivated)
	}
	if env.Data.DIDDocument == nil {
		t.Fatal("deactivated resolve must still return the document")
	}

	// Updating a deactivated DID is 410.
	patch, _ := json.Marshal(model.DIDDocument{Controller: "did:key:x"})
	req, _ = http.NewRequest(http.MethodPatch, ts.URL+"/v1/dids/"+did, bytes.NewReader(patch))
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PATCH error: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusGone {
		t.Fatalf("update status = %d want %d", resp.StatusCode, http.StatusGone)
	}
}

func TestListExcludesDeactivated(t *testing.T) {
	ts, reg := newTestServer(t, config.Config{})

	for _, did := range []string{"did:key:a", "did:key:b"} {
		resp, _ := http.Post(ts.URL+"/v1/dids", "application/json", registerBody(t, did))
		resp.Body.Close()
	}
	if err := reg.Deactivate(context.Background(), "did:key:a"); err != nil {
		t.Fatalf("Deactivate failed: %v", err)
	}

	resp, err := http.Get(ts.URL + "/v1/dids")
	if err != nil {
		t.Fatalf("GET list error: %v", err)
	}
	defer resp.Body.Close()
	var env struct {
		Data struct {
			DIDs []string `json:"dids"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(env.Data.DIDs) != 1 || env.Data.DIDs[0] != "did:key:b" {
		t.Fatalf("list = %v want [did:key:b]", env.Data.DIDs)
	}
}

func TestWellKnownHosting(t *testing.T) {
	ts, reg := newTestServer(t, config.Config{WebDomain: "example.com"})
	ctx := context.Background()

	rootDID := "did:web:example.com"
	userDID := "did:web:example.com:user:alice"
	for _, did := range []string{rootDID, userDID} {
		if err := reg.Register(ctx, did, model.DIDDocument{Context: model.Context{model.DIDContextV1}}); err != nil {
			t.Fatalf("Register failed: %v", err)
		}
	}

	for path, want := range map[string]string{
		"/.well-known/did.json": rootDID,
		"/user/alice/did.json":  userDID,
	} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s error: %v", path, err)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			t.Fatalf("%s status = %d", path, resp.StatusCode)
		}
		if ct := resp.Header.Get("Content-Type"); ct != "application/did+json" {
			t.Errorf("%s content-type = %q", path, ct)
		}
		var doc model.DIDDocument
		if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
		resp.Body.Close()
		if doc.ID != want {
			t.Fatalf("%s id = %q want %q", path, doc.ID, want)
		}
	}

	// Unknown path and unregistered document both 404.
	for _, path := range []string{"/user/bob/did.json", "/no-such-route"} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s error: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("%s status = %d want 404", path, resp.StatusCode)
		}
	}
}

func TestAuthGuard(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	cfg := config.Config{AuthPublicKey: pub, AuthAudience: "registryaccord-did"}
	ts, _ := newTestServer(t, cfg)

	// No token: rejected.
	resp, err := http.Post(ts.URL+"/v1/dids", "application/json", registerBody(t, "did:key:abc"))
	if err != nil {
		t.Fatalf("POST error: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d want %d", resp.StatusCode, http.StatusUnauthorized)
	}

	// Resolution is never guarded.
	getResp, _ := http.Get(ts.URL + "/v1/dids/did:key:abc")
	getResp.Body.Close()
	if getResp.StatusCode != http.StatusOK {
		t.Fatalf("resolve status = %d want 200", getResp.StatusCode)
	}

	// Valid token: accepted.
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodEdDSA, jwtlib.MapClaims{
		"sub": "ops@example.com",
		"aud": "registryaccord-did",
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(time.Minute).Unix(),
	})
	signed, err := token.SignedString(priv)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/v1/dids", registerBody(t, "did:key:abc"))
	req.Header.Set("Authorization", "Bearer "+signed)
	req.Header.Set("Content-Type", "application/json")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST with token error: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d want %d", resp.StatusCode, http.StatusCreated)
	}
}
