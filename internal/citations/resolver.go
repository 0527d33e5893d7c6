package citations

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hochfrequenz/deep-research-orchestrator/internal/domain"
)

// DefaultRedirectIndicator marks agent grounding URLs that must be
// followed to reach the real destination
const DefaultRedirectIndicator = "grounding-api-redirect"

const (
	defaultResolveTimeout = 10 * time.Second
	maxConcurrentResolves = 8
)

// Resolver follows redirect URLs via HEAD requests. Failures are
// independent per source and never abort processing; an unresolvable
// URL simply keeps its original value downstream.
type Resolver struct {
	client    *http.Client
	indicator string
}

// NewResolver creates a Resolver with the given per-request timeout.
// A zero timeout uses the default of 10 seconds.
func NewResolver(timeout time.Duration) *Resolver {
	if timeout <= 0 {
		timeout = defaultResolveTimeout
	}
	return &Resolver{
		client:    &http.Client{Timeout: timeout},
		indicator: DefaultRedirectIndicator,
	}
}

// NewResolverWithIndicator overrides the redirect-indicator substring
func NewResolverWithIndicator(timeout time.Duration, indicator string) *Resolver {
	r := NewResolver(timeout)
	r.indicator = indicator
	return r
}

// Resolve follows a single redirect URL. Returns "" on any failure.
// URLs without the indicator substring are returned unchanged.
func (r *Resolver) Resolve(ctx context.Context, url string) string {
	if !containsIndicator(url, r.indicator) {
		return url
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return ""
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()

	// The client follows redirects, so the request URL on the final
	// response is the resolved destination
	return resp.Request.URL.String()
}

// ResolveAll resolves every redirect-indicator source in the map,
// in parallel with bounded concurrency. Each failure leaves that
// source's FinalURL unset without affecting the others.
func (r *Resolver) ResolveAll(ctx context.Context, sources domain.SourceMap) {
	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentResolves)

	for num, src := range sources {
		if !containsIndicator(src.URL, r.indicator) {
			continue
		}
		g.Go(func() error {
			final := r.Resolve(ctx, src.URL)
			if final != "" && final != src.URL {
				mu.Lock()
				src.FinalURL = final
				sources[num] = src
				mu.Unlock()
			}
			return nil
		})
	}

	g.Wait()
}

func containsIndicator(url, indicator string) bool {
	return indicator != "" && strings.Contains(url, indicator)
}
