// Package web fetches source pages and extracts their readable text.
package web

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/OFFIS-RIT/kiwi-live/pkg/bounded"

	"codeberg.org/readeck/go-readability/v2"
	"golang.org/x/sync/singleflight"
)

const maxBodyBytes = 4 << 20

var ErrUnsupportedContent = errors.New("unsupported content type")

// Enricher loads web pages and extracts readable text.
// For HTML pages, it uses readability to extract the main content.
type Enricher struct {
	client *http.Client
	cache  *bounded.Cache[string, string]
	group  singleflight.Group
}

// NewEnricher creates an enricher that remembers up to cacheSize pages for ttl.
func NewEnricher(client *http.Client, cacheSize int, ttl time.Duration) *Enricher {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Enricher{
		client: client,
		cache:  bounded.NewCache[string, string](cacheSize, ttl),
	}
}

// Enrich fetches pageURL and returns its readable text.
func (e *Enricher) Enrich(ctx context.Context, pageURL string) (string, error) {
	if cached, ok := e.cache.Get(pageURL); ok {
		return cached, nil
	}

	result, err, _ := e.group.Do(pageURL, func() (any, error) {
		if cached, ok := e.cache.Get(pageURL); ok {
			return cached, nil
		}

		text, err := e.fetch(ctx, pageURL)
		if err != nil {
			return "", err
		}
		e.cache.Set(pageURL, text)
		return text, nil
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

func (e *Enricher) fetch(ctx context.Context, pageURL string) (string, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch url: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	body := io.LimitReader(resp.Body, maxBodyBytes)

	contentType := resp.Header.Get("Content-Type")
	switch {
	case strings.Contains(contentType, "text/html"):
		article, err := readability.FromReader(body, u)
		if err != nil {
			return "", fmt.Errorf("failed to parse html: %w", err)
		}
		var builder strings.Builder
		if err := article.RenderText(&builder); err != nil {
			return "", fmt.Errorf("failed to render article text: %w", err)
		}
		return strings.TrimSpace(builder.String()), nil

	case strings.HasPrefix(contentType, "text/plain"):
		data, err := io.ReadAll(body)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(data)), nil

	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedContent, contentType)
	}
}
