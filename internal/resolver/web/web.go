// Package web implements the did:web method: the identifier names an HTTPS
// host (and optional path), and resolution fetches the document from a
// well-known location derived from it. Successful results are cached with a
// TTL so repeated resolutions inside the window cost no I/O.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/RegistryAccord/registryaccord-did-go/internal/model"
)

const (
	// acceptHeader advertises both DID-specific and plain JSON; servers in
	// the wild answer with either.
	acceptHeader = "application/did+json, application/json"

	defaultTimeout  = 10 * time.Second
	defaultCacheTTL = 5 * time.Minute
)

// cacheEntry pairs a resolved result with its expiry instant. The cache is
// the explicit map the resolution contract describes: checked on read,
// lazily replaced after expiry, removable via Evict/ClearCache.
type cacheEntry struct {
	result    *model.DIDResolutionResult
	expiresAt time.Time
}

// Resolver resolves did:web identifiers over HTTPS.
type Resolver struct {
	client   *http.Client
	timeout  time.Duration
	cacheTTL time.Duration

	mu    sync.Mutex
	cache map[string]cacheEntry
	group singleflight.Group

	now func() time.Time
}

// Option configures the web resolver.
type Option func(*Resolver)

// WithHTTPClient overrides the HTTP client, mainly for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Resolver) { r.client = c }
}

// WithTimeout sets the per-fetch timeout. A fetch exceeding it resolves to
// a timeout result instead of blocking the caller.
func WithTimeout(d time.Duration) Option {
	return func(r *Resolver) { r.timeout = d }
}

// WithCacheTTL sets how long a successful result is served from cache.
func WithCacheTTL(d time.Duration) Option {
	return func(r *Resolver) { r.cacheTTL = d }
}

// New creates a did:web resolver with a 10s fetch timeout and a 5 minute
// cache TTL unless overridden.
func New(opts ...Option) *Resolver {
	r := &Resolver{
		client:   &http.Client{},
		timeout:  defaultTimeout,
		cacheTTL: defaultCacheTTL,
		cache:    make(map[string]cacheEntry),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve fetches the document for a did:web identifier, serving from cache
// when a non-expired entry exists. Concurrent resolutions of the same DID
// share one fetch. Never returns a non-nil error: every failure mode is a
// structured result.
func (r *Resolver) Resolve(ctx context.Context, did string) (*model.DIDResolutionResult, error) {
	if cached, ok := r.fromCache(did); ok {
		return cached, nil
	}

	v, _, _ := r.group.Do(did, func() (any, error) {
		// Re-check under singleflight: a concurrent caller may have
		// populated the cache while this one waited.
		if cached, ok := r.fromCache(did); ok {
			return cached, nil
		}
		res := r.fetch(ctx, did)
		if res.DIDResolutionMetadata.Error == "" {
			r.mu.Lock()
			r.cache[did] = cacheEntry{result: res, expiresAt: r.now().Add(r.cacheTTL)}
			r.mu.Unlock()
		}
		return res, nil
	})
	return v.(*model.DIDResolutionResult), nil
}

// Evict removes the cache entry for one DID. In-flight requests are not
// affected.
func (r *Resolver) Evict(did string) {
	r.mu.Lock()
	delete(r.cache, did)
	r.mu.Unlock()
}

// ClearCache removes all cache entries.
func (r *Resolver) ClearCache() {
	r.mu.Lock()
	r.cache = make(map[string]cacheEntry)
	r.mu.Unlock()
}

func (r *Resolver) fromCache(did string) (*model.DIDResolutionResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.cache[did]
	if !ok || r.now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.result, true
}

// fetch performs one HTTP resolution and maps every failure mode onto the
// resolution error taxonomy.
func (r *Resolver) fetch(ctx context.Context, did string) *model.DIDResolutionResult {
	url, ok := DocumentURL(did)
	if !ok {
		return model.ErrorResult(model.ErrorInvalidDID, "cannot derive URL from "+did)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return model.ErrorResult(model.ErrorInvalidDID, "building request: "+err.Error())
	}
	req.Header.Set("Accept", acceptHeader)

	resp, err := r.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return model.ErrorResult(model.ErrorTimeout,
				fmt.Sprintf("fetching %s timed out after %s", url, r.timeout))
		}
		return model.ErrorResult(model.ErrorNetworkError, "fetching "+url+": "+err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return model.ErrorResult(model.ErrorNotFound,
			fmt.Sprintf("%s returned status %d", url, resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if isTimeout(err) {
			return model.ErrorResult(model.ErrorTimeout,
				fmt.Sprintf("fetching %s timed out after %s", url, r.timeout))
		}
		return model.ErrorResult(model.ErrorNetworkError, "reading "+url+": "+err.Error())
	}

	var doc model.DIDDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return model.ErrorResult(model.ErrorInvalidDIDDocument, "parsing document: "+err.Error())
	}
	// Guard against a server returning someone else's document.
	if doc.ID != did {
		return model.ErrorResult(model.ErrorInvalidDIDDocument,
			fmt.Sprintf("document id %q does not match requested DID %q", doc.ID, did))
	}

	return &model.DIDResolutionResult{DIDDocument: &doc}
}

// isTimeout distinguishes a deadline expiry from other network failures so
// it can surface as a timeout result rather than networkError.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
