package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/kova98/smallfeed/credentials"
	"github.com/kova98/smallfeed/feed"
	"github.com/kova98/smallfeed/models"
)

const (
	DefaultAuthURL   = "https://www.reddit.com"
	DefaultAPIURL    = "https://oauth.reddit.com"
	DefaultUserAgent = "small_feed_0.0.1"

	subscriptionsLimit = 100
	defaultRetryDelay  = 2 * time.Second
	maxRetryDelay      = 10 * time.Second
)

// RequestObserver is told about every finished request. code is 0 when no
// response was received.
type RequestObserver interface {
	RequestDone(endpoint string, code int)
}

type Options struct {
	AuthURL   string
	APIURL    string
	UserAgent string
	// RequestsPerMinute paces outgoing requests. Zero disables pacing.
	RequestsPerMinute int
	RetryRateLimited  bool
	Observer          RequestObserver
}

type RedditClient struct {
	logger     *slog.Logger
	httpClient *http.Client
	authURL    string
	apiURL     string
	userAgent  string
	limiter    *rate.Limiter
	retry      bool
	observer   RequestObserver
}

func NewRedditClient(logger *slog.Logger, httpClient *http.Client, opts Options) *RedditClient {
	c := &RedditClient{
		logger:     logger,
		httpClient: httpClient,
		authURL:    strings.TrimRight(opts.AuthURL, "/"),
		apiURL:     strings.TrimRight(opts.APIURL, "/"),
		userAgent:  opts.UserAgent,
		limiter:    rate.NewLimiter(rate.Inf, 1),
		retry:      opts.RetryRateLimited,
		observer:   opts.Observer,
	}
	if c.authURL == "" {
		c.authURL = DefaultAuthURL
	}
	if c.apiURL == "" {
		c.apiURL = DefaultAPIURL
	}
	if c.userAgent == "" {
		c.userAgent = DefaultUserAgent
	}
	if opts.RequestsPerMinute > 0 {
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RequestsPerMinute)), 1)
	}
	return c
}

// RedditSession is an authenticated handle on the user's account.
type RedditSession struct {
	client *RedditClient
	token  string
}

// Authenticate exchanges the user's password and the app's client credentials
// for a bearer token.
func (c *RedditClient) Authenticate(ctx context.Context, creds credentials.Credentials) (*RedditSession, error) {
	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("username", creds.Username)
	form.Set("password", creds.Password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.authURL+"/api/v1/access_token", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(creds.ClientID, creds.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var token models.TokenResponse
	err = c.do(ctx, "access_token", req, &token)
	var transportErr *TransportError
	if errors.As(err, &transportErr) && (transportErr.StatusCode == http.StatusUnauthorized || transportErr.StatusCode == http.StatusForbidden) {
		return nil, &AuthenticationError{StatusCode: transportErr.StatusCode, Reason: "invalid client credentials"}
	}
	if err != nil {
		return nil, err
	}
	if token.Error != "" {
		return nil, &AuthenticationError{StatusCode: http.StatusOK, Reason: token.Error}
	}
	if token.AccessToken == "" {
		return nil, &AuthenticationError{StatusCode: http.StatusOK, Reason: "empty access token"}
	}

	c.logger.Info("authenticated with reddit", "user", creds.Username, "scope", token.Scope)
	return &RedditSession{client: c, token: token.AccessToken}, nil
}

func (s *RedditSession) SubscribedFeeds(ctx context.Context) ([]feed.Feed, error) {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(subscriptionsLimit))
	query.Set("raw_json", "1")

	var listing models.Listing[models.Subreddit]
	if err := s.get(ctx, "subscriptions", "/subreddits/mine/subscriber", query, &listing); err != nil {
		return nil, err
	}

	feeds := make([]feed.Feed, 0, len(listing.Data.Children))
	for _, child := range listing.Data.Children {
		feeds = append(feeds, &Subreddit{session: s, data: child.Data})
	}
	s.client.logger.Info("listed subscriptions", "count", len(feeds))
	return feeds, nil
}

func (s *RedditSession) get(ctx context.Context, endpoint, path string, query url.Values, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.client.apiURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "bearer "+s.token)
	return s.client.do(ctx, endpoint, req, dest)
}

// Subreddit is a subscribed feed.
type Subreddit struct {
	session *RedditSession
	data    models.Subreddit
}

func (r *Subreddit) DisplayName() string {
	return r.data.DisplayName
}

func (r *Subreddit) TopItems(ctx context.Context, window string, limit int) ([]feed.Item, error) {
	query := url.Values{}
	query.Set("t", window)
	query.Set("limit", strconv.Itoa(limit))
	query.Set("raw_json", "1")

	var listing models.Listing[models.Post]
	path := "/r/" + url.PathEscape(r.data.DisplayName) + "/top"
	if err := r.session.get(ctx, "top", path, query, &listing); err != nil {
		return nil, err
	}

	items := make([]feed.Item, 0, len(listing.Data.Children))
	for _, child := range listing.Data.Children {
		post := child.Data
		items = append(items, feed.Item{
			Title:       post.Title,
			Score:       post.Score,
			NumComments: post.NumComments,
			Permalink:   post.Permalink,
		})
	}
	r.session.client.logger.Debug("fetched top items", "subreddit", r.data.DisplayName, "count", len(items))
	return items, nil
}

// do sends req and decodes a JSON body into dest. A rate limited request is
// retried once when the client is configured to.
func (c *RedditClient) do(ctx context.Context, endpoint string, req *http.Request, dest any) error {
	err := c.doOnce(ctx, endpoint, req, dest)

	var rateErr *RateLimitError
	if !c.retry || !errors.As(err, &rateErr) {
		return err
	}

	c.logger.Warn("rate limited, retrying once", "endpoint", endpoint, "wait", rateErr.RetryAfter.String())
	timer := time.NewTimer(rateErr.RetryAfter)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}

	retryReq := req.Clone(ctx)
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return err
		}
		retryReq.Body = body
	}
	return c.doOnce(ctx, endpoint, retryReq, dest)
}

func (c *RedditClient) doOnce(ctx context.Context, endpoint string, req *http.Request, dest any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	req.Header.Set("User-Agent", c.userAgent)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe(endpoint, 0)
		return &TransportError{Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()
	c.observe(endpoint, resp.StatusCode)
	c.logger.Debug("reddit request", "endpoint", endpoint, "code", resp.StatusCode, "elapsed", time.Since(start).Milliseconds())

	if resp.StatusCode == http.StatusTooManyRequests {
		return &RateLimitError{Endpoint: endpoint, RetryAfter: retryDelay(resp.Header)}
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &TransportError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Err:        errors.New(truncate(string(body))),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return &TransportError{Endpoint: endpoint, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode: %w", err)}
	}
	return nil
}

func (c *RedditClient) observe(endpoint string, code int) {
	if c.observer != nil {
		c.observer.RequestDone(endpoint, code)
	}
}

// retryDelay reads Retry-After, then x-ratelimit-reset, both in seconds.
func retryDelay(h http.Header) time.Duration {
	for _, key := range []string{"Retry-After", "X-Ratelimit-Reset"} {
		value := strings.TrimSpace(h.Get(key))
		if value == "" {
			continue
		}
		seconds, err := strconv.ParseFloat(value, 64)
		if err != nil || seconds < 0 {
			continue
		}
		delay := time.Duration(seconds * float64(time.Second))
		return min(delay, maxRetryDelay)
	}
	return defaultRetryDelay
}
