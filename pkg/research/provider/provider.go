// Package provider holds the research source providers: arXiv for academic
// papers, Google News for news, Wikipedia for general background and
// StackExchange for technical answers.
package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/time/rate"
)

const userAgent = "kiwi-live/1.0 (+https://github.com/OFFIS-RIT/kiwi-live)"

// Options are shared by every provider constructor.
type Options struct {
	// BaseURL overrides the public endpoint, mostly for tests.
	BaseURL    string
	HTTPClient *http.Client
	// RequestsPerSecond paces outgoing requests; Burst allows short spikes.
	RequestsPerSecond float64
	Burst             int
}

type client struct {
	http    *http.Client
	limiter *rate.Limiter
	baseURL string
}

func newClient(opts Options, defaultURL string, defaultRate float64) *client {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 20 * time.Second}
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = defaultRate
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	if opts.BaseURL == "" {
		opts.BaseURL = defaultURL
	}
	return &client{
		http:    opts.HTTPClient,
		limiter: rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), opts.Burst),
		baseURL: strings.TrimSuffix(opts.BaseURL, "/"),
	}
}

// get waits for the rate limiter and returns the body of a 2xx response.
// The caller closes the body.
func (c *client) get(ctx context.Context, url string) (io.ReadCloser, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}
	return resp.Body, nil
}

// StripHTML returns the text content of an HTML fragment with whitespace
// collapsed and entities decoded.
func StripHTML(fragment string) string {
	if !strings.ContainsAny(fragment, "<&") {
		return strings.Join(strings.Fields(fragment), " ")
	}

	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(fragment))
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(b.String()), " ")
		case html.StartTagToken:
			name, _ := z.TagName()
			if isHiddenTag(string(name)) {
				skip++
			}
			b.WriteByte(' ')
		case html.EndTagToken:
			name, _ := z.TagName()
			if isHiddenTag(string(name)) && skip > 0 {
				skip--
			}
			b.WriteByte(' ')
		case html.SelfClosingTagToken:
			b.WriteByte(' ')
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		}
	}
}

func isHiddenTag(name string) bool {
	return name == "script" || name == "style"
}

// positionScore turns a result position into a relevance in (0, 1].
func positionScore(i, n int) float64 {
	if n <= 0 {
		return 0
	}
	return 1 - float64(i)/float64(n+1)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n])) + "…"
}
