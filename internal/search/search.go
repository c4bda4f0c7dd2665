// Package search is a Brave Search API client with response caching, used
// by the web_search family of MCP tools.
package search

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mbd888/ethagent/internal/circuitbreaker"
	"github.com/mbd888/ethagent/internal/metrics"
	"github.com/mbd888/ethagent/internal/retry"
	"github.com/mbd888/ethagent/internal/traces"
)

var (
	ErrMissingAPIKey = errors.New("search: BRAVE_SEARCH_API_KEY environment variable not set")
	ErrEmptyQuery    = errors.New("search: query is required")
)

const (
	DefaultBaseURL = "https://api.search.brave.com/res/v1/web/search"
	DefaultCount   = 10
	DefaultCountry = "us"
	DefaultLang    = "en"
	DefaultTTL     = 5 * time.Minute

	breakerKey = "brave"
)

// Query is one web search request.
type Query struct {
	Q       string
	Count   int
	Country string
	Lang    string
}

func (q Query) withDefaults() Query {
	if q.Count <= 0 {
		q.Count = DefaultCount
	}
	if q.Count > 20 {
		q.Count = 20 // Brave's maximum page size
	}
	if q.Country == "" {
		q.Country = DefaultCountry
	}
	if q.Lang == "" {
		q.Lang = DefaultLang
	}
	return q
}

// cacheKey is the sha256 of the normalized query parameters.
func (q Query) cacheKey() string {
	sum := sha256.Sum256([]byte(q.Q + "\x00" + strconv.Itoa(q.Count) + "\x00" + q.Country + "\x00" + q.Lang))
	return hex.EncodeToString(sum[:])
}

// Result is one web hit.
type Result struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description"`
}

// Response is the tool-facing search result.
type Response struct {
	Query        string   `json:"query"`
	Results      []Result `json:"results"`
	TotalResults int      `json:"total_results"`
}

// braveResponse is the subset of the Brave payload we read.
type braveResponse struct {
	Query struct {
		Original string `json:"original"`
	} `json:"query"`
	Web *struct {
		Results []Result `json:"results"`
	} `json:"web"`
}

// Client talks to the Brave Search API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	cache   Cache
	ttl     time.Duration
	breaker *circuitbreaker.Breaker
	logger  *slog.Logger

	maxAttempts int
	baseDelay   time.Duration
}

// Option configures the Client.
type Option func(*Client)

// WithBaseURL points the client at a different endpoint.
func WithBaseURL(u string) Option { return func(c *Client) { c.baseURL = u } }

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }

// WithCache sets the response cache and its TTL.
func WithCache(cache Cache, ttl time.Duration) Option {
	return func(c *Client) {
		c.cache = cache
		c.ttl = ttl
	}
}

// WithBreaker shares a circuit breaker with other upstream clients.
func WithBreaker(b *circuitbreaker.Breaker) Option { return func(c *Client) { c.breaker = b } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(c *Client) { c.logger = l } }

// WithRetry sets the retry policy.
func WithRetry(maxAttempts int, baseDelay time.Duration) Option {
	return func(c *Client) {
		c.maxAttempts = maxAttempts
		c.baseDelay = baseDelay
	}
}

// New creates a Brave client. A missing key is not an error here; every
// search reports ErrMissingAPIKey instead, so the rest of the tool surface
// still works.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:     DefaultBaseURL,
		apiKey:      apiKey,
		http:        &http.Client{Timeout: 15 * time.Second},
		cache:       NewMemoryCache(0),
		ttl:         DefaultTTL,
		breaker:     circuitbreaker.New(5, 30*time.Second),
		logger:      slog.Default(),
		maxAttempts: 3,
		baseDelay:   500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Enabled reports whether an API key is configured.
func (c *Client) Enabled() bool { return c.apiKey != "" }

// Search runs q against Brave, serving repeated queries from the cache.
func (c *Client) Search(ctx context.Context, q Query) (*Response, error) {
	if c.apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	if q.Q == "" {
		return nil, ErrEmptyQuery
	}
	q = q.withDefaults()

	ctx, span := traces.StartSpan(ctx, "search.Search", traces.Query(q.Q))
	var err error
	defer func() { traces.End(span, err) }()

	key := q.cacheKey()
	if c.cache != nil {
		if b, cerr := c.cache.Get(ctx, key); cerr == nil {
			var cached Response
			if json.Unmarshal(b, &cached) == nil {
				metrics.SearchRequestsTotal.WithLabelValues("hit").Inc()
				return &cached, nil
			}
		} else if !errors.Is(cerr, ErrCacheMiss) {
			c.logger.Warn("search cache read failed", "error", cerr)
		}
	}

	var resp *Response
	err = c.breaker.ExecuteWhen(breakerKey, retry.Transient, func() error {
		var ferr error
		resp, ferr = retry.DoValue(ctx, c.maxAttempts, c.baseDelay, func() (*Response, error) {
			return c.fetch(ctx, q)
		})
		return ferr
	})
	if err != nil {
		metrics.SearchRequestsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.SearchRequestsTotal.WithLabelValues("miss").Inc()

	if c.cache != nil {
		if b, merr := json.Marshal(resp); merr == nil {
			if serr := c.cache.Set(ctx, key, b, c.ttl); serr != nil {
				c.logger.Warn("search cache write failed", "error", serr)
			}
		}
	}
	return resp, nil
}

func (c *Client) fetch(ctx context.Context, q Query) (*Response, error) {
	params := url.Values{}
	params.Set("q", q.Q)
	params.Set("count", strconv.Itoa(q.Count))
	params.Set("country", q.Country)
	params.Set("search_lang", q.Lang)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", c.apiKey)

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if err := retry.CheckStatus("brave", res.StatusCode, body); err != nil {
		return nil, err
	}

	var br braveResponse
	if err := json.Unmarshal(body, &br); err != nil {
		return nil, retry.Permanent(fmt.Errorf("Failed to parse response: %w", err))
	}

	out := &Response{Query: q.Q, Results: []Result{}}
	if br.Web != nil {
		out.Results = br.Web.Results
	}
	out.TotalResults = len(out.Results)
	return out, nil
}

// TokenPrice searches for "<token> <base> price". base defaults to USD.
func (c *Client) TokenPrice(ctx context.Context, token, base string) (*Response, error) {
	if base == "" {
		base = "USD"
	}
	return c.Search(ctx, Query{Q: fmt.Sprintf("%s %s price", token, base), Count: 5})
}

// ContractInfo searches for "<contract> <network> contract address".
// network defaults to ethereum.
func (c *Client) ContractInfo(ctx context.Context, contract, network string) (*Response, error) {
	if network == "" {
		network = "ethereum"
	}
	return c.Search(ctx, Query{Q: fmt.Sprintf("%s %s contract address", contract, network), Count: 5})
}

// SwapIntent is the combined research for a prospective swap.
type SwapIntent struct {
	FromToken    string    `json:"from_token"`
	ToToken      string    `json:"to_token"`
	Amount       string    `json:"amount"`
	DEX          string    `json:"dex"`
	RouterSearch *Response `json:"router_search"`
	PriceSearch  *Response `json:"price_search"`
}

// SwapIntent looks up the DEX router and the pair price concurrently.
func (c *Client) SwapIntent(ctx context.Context, from, to, amount, dex string) (*SwapIntent, error) {
	if dex == "" {
		dex = "Uniswap V2"
	}
	out := &SwapIntent{FromToken: from, ToToken: to, Amount: amount, DEX: dex}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r, err := c.ContractInfo(gctx, dex+" router", "ethereum")
		if err != nil {
			return fmt.Errorf("router search: %w", err)
		}
		out.RouterSearch = r
		return nil
	})
	g.Go(func() error {
		r, err := c.TokenPrice(gctx, from, to)
		if err != nil {
			return fmt.Errorf("price search: %w", err)
		}
		out.PriceSearch = r
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
