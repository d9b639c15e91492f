// Package client provides shared outbound HTTP clients.
package client

import (
	"net/http"

	"github.com/gregjones/httpcache"
	"github.com/gregjones/httpcache/diskcache"
)

// NewCachingHTTPClient creates an HTTP client with disk-based caching.
// Used for provider endpoints that serve Cache-Control headers (the identity
// provider settings document); everything else passes through.
func NewCachingHTTPClient(cacheDir string) *http.Client {
	if cacheDir == "" {
		return NewInMemoryCachingHTTPClient()
	}

	cache := diskcache.New(cacheDir)
	return &http.Client{
		Transport: httpcache.NewTransport(cache),
	}
}

// NewInMemoryCachingHTTPClient creates an HTTP client with in-memory
// caching only. Suitable for testing or when disk caching is not desired.
func NewInMemoryCachingHTTPClient() *http.Client {
	return &http.Client{
		Transport: httpcache.NewTransport(httpcache.NewMemoryCache()),
	}
}
