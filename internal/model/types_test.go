package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestContext_UnmarshalStringOrArray(t *testing.T) {
	var doc DIDDocument
	require.NoError(t, json.Unmarshal([]byte(`{"@context":"https://www.w3.org/ns/did/v1","id":"did:web:a"}`), &doc))
	require.Equal(t, Context{DIDContextV1}, doc.Context)

	require.NoError(t, json.Unmarshal([]byte(`{"@context":["https://www.w3.org/ns/did/v1","https://w3id.org/security/v2"],"id":"did:web:a"}`), &doc))
	require.Len(t, doc.Context, 2)

	require.Error(t, json.Unmarshal([]byte(`{"@context":42}`), &doc))
}

func TestMerge_ShallowFieldReplacement(t *testing.T) {
	base := DIDDocument{
		Context:    Context{DIDContextV1},
		ID:         "did:key:abc",
		Controller: "did:key:abc",
		VerificationMethod: []VerificationMethod{{
			ID: "did:key:abc#keys-1", Type: "Ed25519VerificationKey2018", Controller: "did:key:abc",
		}},
		Authentication: []string{"did:key:abc#keys-1"},
		Created:        "2024-01-01T00:00:00Z",
	}

	merged := base.Merge(DIDDocument{
		ID:      "did:key:other", // not merged; the registry re-forces ids
		Service: []ServiceEndpoint{{ID: "did:key:abc#s", Type: "Web", ServiceEndpoint: "https://x"}},
	})

	// Replaced field.
	require.Len(t, merged.Service, 1)
	// Untouched fields survive.
	require.Equal(t, base.Controller, merged.Controller)
	require.Equal(t, base.VerificationMethod, merged.VerificationMethod)
	require.Equal(t, base.Authentication, merged.Authentication)
	require.Equal(t, base.Created, merged.Created)
	// ID is never taken from the partial.
	require.Equal(t, "did:key:abc", merged.ID)

	// A set slice replaces wholesale, it does not append.
	merged = merged.Merge(DIDDocument{
		Authentication: []string{"did:key:abc#keys-2"},
	})
	require.Equal(t, []string{"did:key:abc#keys-2"}, merged.Authentication)
}

func TestClone_NoAliasing(t *testing.T) {
	doc := DIDDocument{
		Context: Context{DIDContextV1},
		ID:      "did:key:abc",
		VerificationMethod: []VerificationMethod{{
			ID:           "did:key:abc#keys-1",
			PublicKeyJwk: JWK{"kty": "OKP"},
		}},
		Authentication: []string{"did:key:abc#keys-1"},
	}

	clone := doc.Clone()
	clone.VerificationMethod[0].PublicKeyJwk["kty"] = "EC"
	clone.Authentication[0] = "mutated"

	require.Equal(t, "OKP", doc.VerificationMethod[0].PublicKeyJwk.Kty())
	require.Equal(t, "did:key:abc#keys-1", doc.Authentication[0])
}

func TestResolutionResultInvariant(t *testing.T) {
	// Negative results carry no document.
	res := ErrorResult(ErrorNotFound, "DID did:key:abc is not registered")
	require.Nil(t, res.DIDDocument)
	require.Equal(t, ErrorNotFound, res.DIDResolutionMetadata.Error)
	require.NotEmpty(t, res.DIDResolutionMetadata.Message)

	// didDocument serializes as explicit null, not omitted: clients key off
	// its presence.
	raw, err := json.Marshal(res)
	require.NoError(t, err)
	require.Contains(t, string(raw), `"didDocument":null`)
}
