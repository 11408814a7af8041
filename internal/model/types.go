// Package model defines the W3C DID document shapes shared by the registry,
// the method resolvers, and the HTTP handlers. All types serialize directly
// to the wire format; there are no separate DTOs.
package model

import (
	"encoding/json"
	"time"
)

// DIDContextV1 is the base JSON-LD context every document carries.
const DIDContextV1 = "https://www.w3.org/ns/did/v1"

// Resolution error codes surfaced in DIDResolutionMetadata.Error. These are
// data, not Go errors: resolution is expected to fail routinely and callers
// branch on the code instead of unwrapping exceptions.
const (
	ErrorInvalidDID         = "invalidDid"
	ErrorInvalidDIDDocument = "invalidDidDocument"
	ErrorNotFound           = "notFound"
	ErrorDeactivated        = "deactivated"
	ErrorTimeout            = "timeout"
	ErrorNetworkError       = "networkError"
)

// JWK is a JSON Web Key kept as a generic map. The resolvers validate
// structure (kty presence and value) but pass all other members through
// verbatim, so a typed struct would only lose information.
type JWK map[string]any

// Kty returns the key type member, or "" when absent or not a string.
func (j JWK) Kty() string {
	s, _ := j["kty"].(string)
	return s
}

// Crv returns the curve member, or "" when absent or not a string.
func (j JWK) Crv() string {
	s, _ := j["crv"].(string)
	return s
}

// Context holds one or more JSON-LD context URIs. Documents in the wild
// serialize a single context as a bare string, so unmarshalling accepts both
// forms; marshalling always emits an array.
type Context []string

// UnmarshalJSON accepts either a string or an array of strings.
func (c *Context) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*c = Context{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*c = Context(many)
	return nil
}

// VerificationMethod is a cryptographic key entry addressable by a DID-scoped
// fragment. Exactly one of PublicKeyJwk or PublicKeyMultibase is set.
type VerificationMethod struct {
	ID                 string `json:"id"`
	Type               string `json:"type"`
	Controller         string `json:"controller"`
	PublicKeyJwk       JWK    `json:"publicKeyJwk,omitempty"`
	PublicKeyMultibase string `json:"publicKeyMultibase,omitempty"`
}

// ServiceEndpoint is a named endpoint advertised by a DID document. The
// endpoint value may be a URI string or a structured object.
type ServiceEndpoint struct {
	ID              string `json:"id"`
	Type            string `json:"type"`
	ServiceEndpoint any    `json:"serviceEndpoint"`
	Description     string `json:"description,omitempty"`
}

// DIDDocument is the structured record describing a DID's verification
// material and service endpoints. ID is immutable once registered; the
// registry forces it back to the registration DID on every write.
type DIDDocument struct {
	Context            Context              `json:"@context"`
	ID                 string               `json:"id"`
	Controller         string               `json:"controller,omitempty"`
	VerificationMethod []VerificationMethod `json:"verificationMethod,omitempty"`
	Authentication     []string             `json:"authentication,omitempty"`
	AssertionMethod    []string             `json:"assertionMethod,omitempty"`
	KeyAgreement       []string             `json:"keyAgreement,omitempty"`
	Service            []ServiceEndpoint    `json:"service,omitempty"`
	Created            string               `json:"created,omitempty"` // RFC3339
	Updated            string               `json:"updated,omitempty"` // RFC3339
}

// Clone returns a deep copy. The builder and the registry hand documents
// across API boundaries and must not alias caller-held slices.
func (d DIDDocument) Clone() DIDDocument {
	out := d
	out.Context = append(Context(nil), d.Context...)
	out.VerificationMethod = append([]VerificationMethod(nil), d.VerificationMethod...)
	for i, vm := range out.VerificationMethod {
		if vm.PublicKeyJwk != nil {
			jwk := make(JWK, len(vm.PublicKeyJwk))
			for k, v := range vm.PublicKeyJwk {
				jwk[k] = v
			}
			out.VerificationMethod[i].PublicKeyJwk = jwk
		}
	}
	out.Authentication = append([]string(nil), d.Authentication...)
	out.AssertionMethod = append([]string(nil), d.AssertionMethod...)
	out.KeyAgreement = append([]string(nil), d.KeyAgreement...)
	out.Service = append([]ServiceEndpoint(nil), d.Service...)
	return out
}

// Merge overlays the set fields of partial onto d and returns the result.
// This is the shallow field-by-field merge used by registry update: a set
// field in partial replaces the whole field, never element-wise. ID is
// deliberately not merged; the registry re-forces it after merging.
func (d DIDDocument) Merge(partial DIDDocument) DIDDocument {
	out := d.Clone()
	if len(partial.Context) > 0 {
		out.Context = append(Context(nil), partial.Context...)
	}
	if partial.Controller != "" {
		out.Controller = partial.Controller
	}
	if partial.VerificationMethod != nil {
		out.VerificationMethod = append([]VerificationMethod(nil), partial.VerificationMethod...)
	}
	if partial.Authentication != nil {
		out.Authentication = append([]string(nil), partial.Authentication...)
	}
	if partial.AssertionMethod != nil {
		out.AssertionMethod = append([]string(nil), partial.AssertionMethod...)
	}
	if partial.KeyAgreement != nil {
		out.KeyAgreement = append([]string(nil), partial.KeyAgreement...)
	}
	if partial.Service != nil {
		out.Service = append([]ServiceEndpoint(nil), partial.Service...)
	}
	if partial.Created != "" {
		out.Created = partial.Created
	}
	if partial.Updated != "" {
		out.Updated = partial.Updated
	}
	return out
}

// DIDDocumentMetadata describes the lifecycle state of a resolved document.
type DIDDocumentMetadata struct {
	Created     string `json:"created,omitempty"` // RFC3339
	Updated     string `json:"updated,omitempty"` // RFC3339
	Deactivated bool   `json:"deactivated,omitempty"`
}

// DIDResolutionMetadata is the error/diagnostic envelope of a resolution.
// Error is one of the Error* codes above; Message is human-readable detail.
type DIDResolutionMetadata struct {
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// DIDResolutionResult is the uniform outcome of every resolution path.
// Invariant: DIDDocument is non-nil iff Error is unset or "deactivated"
// (a deactivated DID still returns its last-known document).
type DIDResolutionResult struct {
	DIDDocument           *DIDDocument          `json:"didDocument"`
	DIDDocumentMetadata   DIDDocumentMetadata   `json:"didDocumentMetadata"`
	DIDResolutionMetadata DIDResolutionMetadata `json:"didResolutionMetadata"`
}

// ErrorResult builds a negative resolution result with no document.
func ErrorResult(code, message string) *DIDResolutionResult {
	return &DIDResolutionResult{
		DIDResolutionMetadata: DIDResolutionMetadata{Error: code, Message: message},
	}
}

// Now returns the current UTC time formatted as RFC3339, the timestamp
// format used on documents and metadata throughout the service.
func Now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
