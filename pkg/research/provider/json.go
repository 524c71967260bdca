package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/OFFIS-RIT/kiwi-live/pkg/common"
	"github.com/OFFIS-RIT/kiwi-live/pkg/research"
)

func (c *client) getJSON(ctx context.Context, url string, out any) error {
	body, err := c.get(ctx, url)
	if err != nil {
		return err
	}
	defer body.Close()

	if err := json.NewDecoder(body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Wikipedia searches the MediaWiki full text search.
type Wikipedia struct {
	*client
}

func NewWikipedia(opts Options) *Wikipedia {
	return &Wikipedia{client: newClient(opts, "https://en.wikipedia.org", 5)}
}

func (w *Wikipedia) Name() string { return "wikipedia" }

type wikiResponse struct {
	Query struct {
		Search []struct {
			Title     string    `json:"title"`
			Snippet   string    `json:"snippet"`
			Timestamp time.Time `json:"timestamp"`
		} `json:"search"`
	} `json:"query"`
}

func (w *Wikipedia) Search(ctx context.Context, query string, opts research.SearchOptions) ([]common.SourceResult, error) {
	limit := opts.MaxResults
	if limit <= 0 {
		limit = 5
	}
	v := url.Values{
		"action":   {"query"},
		"list":     {"search"},
		"srsearch": {query},
		"srlimit":  {fmt.Sprint(limit)},
		"format":   {"json"},
	}

	var resp wikiResponse
	if err := w.getJSON(ctx, w.baseURL+"/w/api.php?"+v.Encode(), &resp); err != nil {
		return nil, err
	}

	hits := resp.Query.Search
	results := make([]common.SourceResult, 0, len(hits))
	for i, hit := range hits {
		if hit.Title == "" {
			continue
		}
		results = append(results, common.SourceResult{
			Source:         "Wikipedia",
			Title:          hit.Title,
			Summary:        StripHTML(hit.Snippet),
			URL:            w.baseURL + "/wiki/" + url.PathEscape(strings.ReplaceAll(hit.Title, " ", "_")),
			Type:           common.InfoGeneral,
			Timestamp:      hit.Timestamp,
			RelevanceScore: positionScore(i, len(hits)),
		})
	}
	return results, nil
}

// StackExchange searches questions on one StackExchange site.
type StackExchange struct {
	*client
	site string
}

// NewStackExchange searches site, stackoverflow when empty. Anonymous use
// is limited to a few hundred requests per day.
func NewStackExchange(opts Options, site string) *StackExchange {
	if site == "" {
		site = "stackoverflow"
	}
	return &StackExchange{
		client: newClient(opts, "https://api.stackexchange.com", 1),
		site:   site,
	}
}

func (s *StackExchange) Name() string { return "stackexchange" }

type stackResponse struct {
	Items []struct {
		Title        string   `json:"title"`
		Link         string   `json:"link"`
		Score        int      `json:"score"`
		IsAnswered   bool     `json:"is_answered"`
		AnswerCount  int      `json:"answer_count"`
		Tags         []string `json:"tags"`
		CreationDate int64    `json:"creation_date"`
	} `json:"items"`
	ErrorMessage string `json:"error_message"`
}

func (s *StackExchange) Search(ctx context.Context, query string, opts research.SearchOptions) ([]common.SourceResult, error) {
	limit := opts.MaxResults
	if limit <= 0 {
		limit = 5
	}
	v := url.Values{
		"order":    {"desc"},
		"sort":     {"relevance"},
		"q":        {query},
		"site":     {s.site},
		"pagesize": {fmt.Sprint(limit)},
	}

	var resp stackResponse
	if err := s.getJSON(ctx, s.baseURL+"/2.3/search/advanced?"+v.Encode(), &resp); err != nil {
		return nil, err
	}
	if resp.ErrorMessage != "" {
		return nil, fmt.Errorf("stackexchange: %s", resp.ErrorMessage)
	}

	results := make([]common.SourceResult, 0, len(resp.Items))
	for i, item := range resp.Items {
		if item.Link == "" {
			continue
		}
		relevance := positionScore(i, len(resp.Items))
		if item.IsAnswered {
			relevance = min(1, relevance+0.1)
		}

		summary := fmt.Sprintf("%d answers, score %d", item.AnswerCount, item.Score)
		if len(item.Tags) > 0 {
			summary += ", tagged " + strings.Join(item.Tags, ", ")
		}

		results = append(results, common.SourceResult{
			Source:         "StackExchange " + s.site,
			Title:          StripHTML(item.Title),
			Summary:        summary,
			URL:            item.Link,
			Type:           common.InfoTechnical,
			Timestamp:      time.Unix(item.CreationDate, 0).UTC(),
			RelevanceScore: relevance,
		})
	}
	return results, nil
}
