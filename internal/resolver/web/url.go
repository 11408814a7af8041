package web

import (
	"net/url"
	"strings"
)

const (
	methodPrefix = "did:web:"
	wellKnown    = "/.well-known/did.json"
	documentLeaf = "/did.json"
)

// DocumentURL derives the HTTPS location of the document for a did:web
// identifier:
//
//	did:web:example.com            -> https://example.com/.well-known/did.json
//	did:web:example.com:user:alice -> https://example.com/user/alice/did.json
//	did:web:example.com%3A3000     -> https://example.com:3000/.well-known/did.json
//
// Each colon-delimited segment is percent-decoded independently, which is
// how an encoded port or path character travels inside the identifier.
// Returns ok=false for non-web DIDs, an empty method-specific id, an empty
// domain, or a segment that fails to decode.
func DocumentURL(did string) (string, bool) {
	if !strings.HasPrefix(did, methodPrefix) {
		return "", false
	}
	msid := strings.TrimPrefix(did, methodPrefix)
	if msid == "" {
		return "", false
	}

	segments := strings.Split(msid, ":")
	for i, seg := range segments {
		decoded, err := url.PathUnescape(seg)
		if err != nil {
			return "", false
		}
		segments[i] = decoded
	}
	if segments[0] == "" {
		return "", false
	}

	if len(segments) == 1 {
		return "https://" + segments[0] + wellKnown, true
	}
	return "https://" + segments[0] + "/" + strings.Join(segments[1:], "/") + documentLeaf, true
}
