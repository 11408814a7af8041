// Package jwk implements the did:jwk method. The identifier embeds the
// entire public key as base64url(JSON(JWK)), so resolution is pure decoding
// with zero network I/O.
package jwk

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/RegistryAccord/registryaccord-did-go/internal/model"
)

const methodPrefix = "did:jwk:"

// verificationMethodType is the key suite for JWK-carrying methods.
const verificationMethodType = "JsonWebKey2020"

// supportedKeyTypes are the JWK kty values this resolver accepts.
var supportedKeyTypes = map[string]bool{
	"OKP": true,
	"EC":  true,
	"RSA": true,
}

// Resolver resolves did:jwk identifiers. It is stateless and safe for
// concurrent use.
type Resolver struct{}

// New creates a did:jwk resolver.
func New() *Resolver {
	return &Resolver{}
}

// Resolve decodes the embedded JWK and expands it into a document with a
// single verification method <did>#0. Matches the uniform resolver
// contract: the error return is always nil, all failures are invalidDid
// results.
func (r *Resolver) Resolve(_ context.Context, did string) (*model.DIDResolutionResult, error) {
	if !strings.HasPrefix(did, methodPrefix) {
		return model.ErrorResult(model.ErrorInvalidDID, "not a did:jwk identifier: "+did), nil
	}
	encoded := strings.TrimPrefix(did, methodPrefix)
	if encoded == "" {
		return model.ErrorResult(model.ErrorInvalidDID, "empty did:jwk payload"), nil
	}

	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return model.ErrorResult(model.ErrorInvalidDID, "failed to decode did:jwk payload: "+err.Error()), nil
	}
	var key model.JWK
	if err := json.Unmarshal(raw, &key); err != nil {
		return model.ErrorResult(model.ErrorInvalidDID, "failed to decode did:jwk payload: "+err.Error()), nil
	}

	kty := key.Kty()
	if kty == "" {
		return model.ErrorResult(model.ErrorInvalidDID, "missing required kty field"), nil
	}
	if !supportedKeyTypes[kty] {
		return model.ErrorResult(model.ErrorInvalidDID, "unsupported JWK key type: "+kty), nil
	}

	vmID := did + "#0"
	doc := &model.DIDDocument{
		Context: model.Context{model.DIDContextV1, "https://w3id.org/security/suites/jws-2020/v1"},
		ID:      did,
		VerificationMethod: []model.VerificationMethod{{
			ID:           vmID,
			Type:         verificationMethodType,
			Controller:   did,
			PublicKeyJwk: key,
		}},
		Authentication:  []string{vmID},
		AssertionMethod: []string{vmID},
	}
	if supportsKeyAgreement(key) {
		doc.KeyAgreement = []string{vmID}
	}

	return &model.DIDResolutionResult{DIDDocument: doc}, nil
}

// supportsKeyAgreement reports whether the key can do ECDH: EC keys and
// X25519 OKP keys can, Ed25519 OKP keys cannot.
func supportsKeyAgreement(key model.JWK) bool {
	switch key.Kty() {
	case "EC", "X25519":
		return true
	}
	switch key.Crv() {
	case "EC", "X25519":
		return true
	}
	return false
}
