package action

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/solenne/vesper/errors"
)

// DefaultSearchTimeout is the hard timeout for outbound search requests
const DefaultSearchTimeout = 10 * time.Second

const defaultSearchEndpoint = "https://api.duckduckgo.com/"

// SearchAction issues an outbound web search and extracts top results as
// plain text. Requests are rate-limited to stay polite toward the upstream
// service even if many search jobs land on the same sweep.
type SearchAction struct {
	endpoint   string
	client     *http.Client
	limiter    *rate.Limiter
	maxResults int
}

// SearchParams is the JSON parameter shape for the search action
type SearchParams struct {
	Query string `json:"query"`
}

// duckResponse is the subset of the DuckDuckGo instant-answer response we use
type duckResponse struct {
	AbstractText  string `json:"AbstractText"`
	Answer        string `json:"Answer"`
	RelatedTopics []struct {
		Text string `json:"Text"`
	} `json:"RelatedTopics"`
}

// NewSearchAction creates the search action.
// A non-positive timeout selects DefaultSearchTimeout.
func NewSearchAction(timeout time.Duration) *SearchAction {
	if timeout <= 0 {
		timeout = DefaultSearchTimeout
	}
	return &SearchAction{
		endpoint:   defaultSearchEndpoint,
		client:     &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Every(time.Second), 3),
		maxResults: 5,
	}
}

// Name returns the action identifier
func (a *SearchAction) Name() string { return "search" }

// Execute performs the search and formats the top results
func (a *SearchAction) Execute(ctx context.Context, params json.RawMessage) (string, error) {
	var p SearchParams
	if err := json.Unmarshal(params, &p); err != nil {
		return "", errors.Wrap(err, "invalid search params")
	}
	if strings.TrimSpace(p.Query) == "" {
		return "", errors.New("search query is required")
	}

	reqCtx, cancel := context.WithTimeout(ctx, a.client.Timeout)
	defer cancel()

	if err := a.limiter.Wait(reqCtx); err != nil {
		return "", errors.Wrap(errors.ErrTimeout, "search rate limit wait")
	}

	q := url.Values{}
	q.Set("q", p.Query)
	q.Set("format", "json")
	q.Set("no_html", "1")

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, a.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return "", errors.Wrap(err, "failed to build search request")
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "search request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errors.Newf("search returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", errors.Wrap(err, "failed to read search response")
	}

	var dr duckResponse
	if err := json.Unmarshal(body, &dr); err != nil {
		return "", errors.Wrap(err, "failed to parse search response")
	}

	var lines []string
	if dr.Answer != "" {
		lines = append(lines, dr.Answer)
	}
	if dr.AbstractText != "" {
		lines = append(lines, dr.AbstractText)
	}
	for _, topic := range dr.RelatedTopics {
		if len(lines) >= a.maxResults {
			break
		}
		if topic.Text != "" {
			lines = append(lines, topic.Text)
		}
	}

	if len(lines) == 0 {
		return fmt.Sprintf("no results for %q", p.Query), nil
	}
	return strings.Join(lines, "\n"), nil
}
