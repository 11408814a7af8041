// Package did provides pure helpers for constructing and extending DID
// documents. Nothing here touches storage or the network; every function
// returns a new document and leaves its inputs untouched.
package did

import (
	"fmt"
	"strings"

	"github.com/mr-tron/base58"

	"github.com/RegistryAccord/registryaccord-did-go/internal/model"
)

// KeyPair is the capability the builder consumes from the external
// key-management module: an identifier plus an exportable public key. Key
// generation and signing stay on the other side of this interface.
type KeyPair interface {
	// DID returns the identifier this key pair controls.
	DID() string
	// PublicKeyJWK exports the public key in JWK form.
	PublicKeyJWK() (model.JWK, error)
}

// FromKeyPair builds a fresh document for a key pair: one Ed25519-suite
// verification method at <did>#keys-1, referenced from authentication and
// assertionMethod, with created stamped to now.
func FromKeyPair(kp KeyPair) (model.DIDDocument, error) {
	id := kp.DID()
	key, err := kp.PublicKeyJWK()
	if err != nil {
		return model.DIDDocument{}, fmt.Errorf("export public key: %w", err)
	}

	now := model.Now()
	vmID := fmt.Sprintf("%s#keys-1", id)
	return model.DIDDocument{
		Context: model.Context{model.DIDContextV1},
		ID:      id,
		VerificationMethod: []model.VerificationMethod{{
			ID:           vmID,
			Type:         "Ed25519VerificationKey2018",
			Controller:   id,
			PublicKeyJwk: key,
		}},
		Authentication:  []string{vmID},
		AssertionMethod: []string{vmID},
		Created:         now,
	}, nil
}

// AddService returns a copy of doc with one more service endpoint appended
// and updated bumped. The endpoint id is scoped to the document's DID when
// given as a bare fragment name.
func AddService(doc model.DIDDocument, id, serviceType string, endpoint any, description string) model.DIDDocument {
	out := doc.Clone()
	out.Service = append(out.Service, model.ServiceEndpoint{
		ID:              scopeFragment(doc.ID, id),
		Type:            serviceType,
		ServiceEndpoint: endpoint,
		Description:     description,
	})
	out.Updated = model.Now()
	return out
}

// AddVerificationMethod returns a copy of doc with the method appended and
// updated bumped.
func AddVerificationMethod(doc model.DIDDocument, method model.VerificationMethod) model.DIDDocument {
	out := doc.Clone()
	out.VerificationMethod = append(out.VerificationMethod, method)
	out.Updated = model.Now()
	return out
}

// VerificationMethodFromBytes builds a multibase-encoded verification
// method from raw public key bytes, for suites that carry
// publicKeyMultibase instead of a JWK.
func VerificationMethodFromBytes(did, fragment, suite string, publicKey []byte) model.VerificationMethod {
	return model.VerificationMethod{
		ID:                 scopeFragment(did, fragment),
		Type:               suite,
		Controller:         did,
		PublicKeyMultibase: MultibaseEncode(publicKey),
	}
}

// MultibaseEncode encodes bytes as base58btc with the multibase 'z' prefix.
func MultibaseEncode(b []byte) string {
	return "z" + base58.Encode(b)
}

// MultibaseDecode decodes a 'z'-prefixed base58btc multibase string.
func MultibaseDecode(value string) ([]byte, error) {
	if !strings.HasPrefix(value, "z") {
		return nil, fmt.Errorf("unsupported multibase prefix")
	}
	return base58.Decode(value[1:])
}

// scopeFragment turns a bare fragment name into a DID-scoped id. Ids that
// already carry a DID (or any fragment separator) pass through unchanged.
func scopeFragment(did, id string) string {
	if strings.HasPrefix(id, "did:") || strings.Contains(id, "#") {
		return id
	}
	return did + "#" + id
}
