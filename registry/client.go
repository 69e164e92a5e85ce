// Package registry talks to ClinicalTrials.gov through the Lilly COI
// bridge API. Searches are paged: every response carries a continuation
// URI that is followed until exhausted, rate limited so long fetches
// stay inside the API's request budget.
package registry

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/trialkit/codify/config"
	"github.com/trialkit/codify/errors"
	"github.com/trialkit/codify/internal/httpclient"
	"github.com/trialkit/codify/trial"
)

// Recruiting limits a search by recruitment status.
type Recruiting int

const (
	RecruitingAny Recruiting = iota
	RecruitingOpen
	RecruitingClosed
)

// String renders the query fragment the API expects, empty for Any.
func (r Recruiting) String() string {
	switch r {
	case RecruitingOpen:
		return "open"
	case RecruitingClosed:
		return "closed"
	}
	return ""
}

// ParseRecruiting reads a recruitment filter from configuration or a
// command line flag.
func ParseRecruiting(s string) (Recruiting, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "any", "all":
		return RecruitingAny, nil
	case "open", "recruiting":
		return RecruitingOpen, nil
	case "closed":
		return RecruitingClosed, nil
	}
	return RecruitingAny, errors.NewConfigurationError("unknown recruiting filter %q", s)
}

// ProgressFunc reports fetch progress as a fraction of the total result
// count. It is called after every fetched page.
type ProgressFunc func(fraction float64)

// Client is a paging search client for the trial registry.
type Client struct {
	base     *url.URL
	http     *httpclient.SaferClient
	limiter  *rate.Limiter
	pageSize int
	logger   *zap.SugaredLogger
}

// NewClient builds a registry client from configuration. Zero values
// fall back to the documented defaults.
func NewClient(cfg config.RegistryConfig, logger *zap.SugaredLogger) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, errors.NewConfigurationError("invalid registry base URL %q: %v", cfg.BaseURL, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, errors.NewConfigurationError("registry base URL %q needs a scheme and host", cfg.BaseURL)
	}

	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 30
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if cfg.TimeoutSeconds <= 0 {
		timeout = 60 * time.Second
	}

	return &Client{
		base:     base,
		http:     httpclient.NewSaferClient(timeout),
		limiter:  rate.NewLimiter(rate.Limit(float64(rpm)/60.0), 1),
		pageSize: pageSize,
		logger:   logger,
	}, nil
}

// searchPage is the response envelope around one page of results.
type searchPage struct {
	PreviousPageURI string            `json:"previousPageURI"`
	NextPageURI     string            `json:"nextPageURI"`
	ResultCount     int               `json:"resultCount"`
	TotalCount      int               `json:"totalCount"`
	Results         []json.RawMessage `json:"results"`
}

// SearchForCondition finds trials for a medical condition.
func (c *Client) SearchForCondition(ctx context.Context, condition string, recruiting Recruiting, fields []string, progress ProgressFunc) ([]*trial.Trial, error) {
	if strings.TrimSpace(condition) == "" {
		return nil, errors.NewConfigurationError("a condition to search for is required")
	}
	return c.Search(ctx, recruitingQuery(recruiting, "cond:"+condition), fields, progress)
}

// SearchForTerm finds trials for a generic search term. The registry
// matches terms with dashes where a condition would use spaces.
func (c *Client) SearchForTerm(ctx context.Context, term string, recruiting Recruiting, fields []string, progress ProgressFunc) ([]*trial.Trial, error) {
	if strings.TrimSpace(term) == "" {
		return nil, errors.NewConfigurationError("a term to search for is required")
	}
	return c.Search(ctx, recruitingQuery(recruiting, "term:"+strings.ReplaceAll(term, " ", "-")), fields, progress)
}

func recruitingQuery(recruiting Recruiting, query string) string {
	if r := recruiting.String(); r != "" {
		return "recr:" + r + "," + query
	}
	return query
}

// Search runs an assembled registry query and follows the pagination
// chain until every page is fetched. Rows that cannot be decoded into a
// trial are logged and skipped.
func (c *Client) Search(ctx context.Context, query string, fields []string, progress ProgressFunc) ([]*trial.Trial, error) {
	if query == "" {
		return nil, errors.NewConfigurationError("a registry query is required")
	}
	if len(fields) == 0 {
		fields = []string{"id"}
	}

	params := url.Values{}
	params.Set("fields", strings.Join(fields, ","))
	params.Set("limit", strconv.Itoa(c.pageSize))
	params.Set("query", query)

	first := c.base.JoinPath("trials", "search.json")
	first.RawQuery = params.Encode()
	nextURL := first.String()

	var trials []*trial.Trial
	total := 0
	for nextURL != "" {
		page, err := c.fetchPage(ctx, nextURL)
		if err != nil {
			return trials, err
		}
		if page.TotalCount > 0 {
			total = page.TotalCount
		}

		for _, raw := range page.Results {
			t, err := trial.Decode(raw)
			if err != nil {
				if c.logger != nil {
					c.logger.Warnw("Skipping malformed registry result", "error", err)
				}
				continue
			}
			trials = append(trials, t)
		}
		if progress != nil && total > 0 {
			progress(float64(len(trials)) / float64(total))
		}

		nextURL = ""
		if page.NextPageURI != "" {
			nextURL, err = c.resolve(page.NextPageURI)
			if err != nil {
				return trials, err
			}
		}
	}
	return trials, nil
}

// NumForCondition counts the trials a condition search would return
// without fetching them.
func (c *Client) NumForCondition(ctx context.Context, condition string, recruiting Recruiting) (int, error) {
	if strings.TrimSpace(condition) == "" {
		return 0, errors.NewConfigurationError("a condition to search for is required")
	}

	params := url.Values{}
	params.Set("fields", "id")
	params.Set("limit", "1")
	params.Set("query", recruitingQuery(recruiting, "cond:"+condition))

	u := c.base.JoinPath("trials", "search.json")
	u.RawQuery = params.Encode()

	page, err := c.fetchPage(ctx, u.String())
	if err != nil {
		return 0, err
	}
	return page.TotalCount, nil
}

func (c *Client) fetchPage(ctx context.Context, pageURL string) (*searchPage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrap(err, "registry fetch interrupted")
	}
	if c.logger != nil {
		c.logger.Debugw("Fetching registry page", "url", pageURL)
	}

	resp, err := c.http.GetContext(ctx, pageURL)
	if err != nil {
		return nil, errors.Wrapf(err, "registry request %s", pageURL)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, errors.Newf("registry returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var page searchPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, errors.Wrap(err, "cannot decode registry response")
	}
	return &page, nil
}

// resolve makes a continuation URI absolute. The registry hands back
// absolute URIs, but a relative one must stay on the configured host.
func (c *Client) resolve(uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", errors.Wrapf(err, "bad continuation URI %q", uri)
	}
	if !u.IsAbs() {
		u = c.base.ResolveReference(u)
	}
	return u.String(), nil
}
