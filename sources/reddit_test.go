package sources

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kova98/smallfeed/credentials"
	"github.com/kova98/smallfeed/feed"
)

var testCreds = credentials.Credentials{
	Username:     "alice",
	Password:     "hunter2",
	ClientID:     "client123",
	ClientSecret: "secret456",
}

type recordingObserver struct {
	mu    sync.Mutex
	calls []string
}

func (o *recordingObserver) RequestDone(endpoint string, code int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, endpoint+":"+http.StatusText(code))
}

func newTestClient(t *testing.T, handler http.Handler, opts Options) *RedditClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	opts.AuthURL = server.URL
	opts.APIURL = server.URL
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRedditClient(logger, server.Client(), opts)
}

func tokenHandler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "client123", user)
		assert.Equal(t, "secret456", pass)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "password", r.PostForm.Get("grant_type"))
		assert.Equal(t, "alice", r.PostForm.Get("username"))
		assert.Equal(t, "hunter2", r.PostForm.Get("password"))
		assert.Equal(t, "small_feed_0.0.1", r.Header.Get("User-Agent"))

		w.Write([]byte(`{"access_token":"tok","token_type":"bearer","expires_in":3600,"scope":"*"}`))
	}
}

func redditMux(t *testing.T) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/access_token", tokenHandler(t))
	mux.HandleFunc("GET /subreddits/mine/subscriber", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "100", r.URL.Query().Get("limit"))
		w.Write([]byte(`{"kind":"Listing","data":{"after":null,"children":[
			{"kind":"t5","data":{"display_name":"testsub"}},
			{"kind":"t5","data":{"display_name":"quiet"}}
		]}}`))
	})
	mux.HandleFunc("GET /r/testsub/top", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "day", r.URL.Query().Get("t"))
		assert.Equal(t, "3", r.URL.Query().Get("limit"))
		w.Write([]byte(`{"kind":"Listing","data":{"children":[
			{"kind":"t3","data":{"title":"A","score":10,"num_comments":2,"permalink":"/r/testsub/a"}},
			{"kind":"t3","data":{"title":"B","score":5,"num_comments":0,"permalink":"/r/testsub/b"}}
		]}}`))
	})
	mux.HandleFunc("GET /r/quiet/top", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"kind":"Listing","data":{"children":[]}}`))
	})
	return mux
}

func TestRedditClient_EndToEndReport(t *testing.T) {
	observer := &recordingObserver{}
	client := newTestClient(t, redditMux(t), Options{Observer: observer})
	ctx := context.Background()

	session, err := client.Authenticate(ctx, testCreds)
	require.NoError(t, err)

	rows, err := feed.BuildReport(ctx, session)

	require.NoError(t, err)
	assert.Equal(t, []feed.Row{
		{Title: "A", Subreddit: "testsub", Scores: 10, Comments: 2, Url: "https://www.reddit.com/r/testsub/a"},
		{Title: "B", Subreddit: "testsub", Scores: 5, Comments: 0, Url: "https://www.reddit.com/r/testsub/b"},
	}, rows)
	assert.Equal(t, []string{"access_token:OK", "subscriptions:OK", "top:OK", "top:OK"}, observer.calls)
}

func TestRedditClient_SubscribedFeedsOrder(t *testing.T) {
	client := newTestClient(t, redditMux(t), Options{})
	session, err := client.Authenticate(context.Background(), testCreds)
	require.NoError(t, err)

	feeds, err := session.SubscribedFeeds(context.Background())

	require.NoError(t, err)
	require.Len(t, feeds, 2)
	assert.Equal(t, "testsub", feeds[0].DisplayName())
	assert.Equal(t, "quiet", feeds[1].DisplayName())
}

func TestAuthenticate_InvalidClientCredentials(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/access_token", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message":"Unauthorized","error":401}`))
	})
	client := newTestClient(t, mux, Options{})

	session, err := client.Authenticate(context.Background(), testCreds)

	assert.Nil(t, session)
	var authErr *AuthenticationError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, http.StatusUnauthorized, authErr.StatusCode)
}

func TestAuthenticate_InvalidGrant(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/access_token", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":"invalid_grant"}`))
	})
	client := newTestClient(t, mux, Options{})

	_, err := client.Authenticate(context.Background(), testCreds)

	var authErr *AuthenticationError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, "invalid_grant", authErr.Reason)
}

func TestAuthenticate_EmptyToken(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/access_token", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"access_token":""}`))
	})
	client := newTestClient(t, mux, Options{})

	_, err := client.Authenticate(context.Background(), testCreds)

	var authErr *AuthenticationError
	assert.True(t, errors.As(err, &authErr))
}

func TestTopItems_RateLimitedFailsFast(t *testing.T) {
	mux := redditMux(t)
	calls := 0
	mux.HandleFunc("GET /r/busy/top", func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	})
	client := newTestClient(t, mux, Options{})
	session, err := client.Authenticate(context.Background(), testCreds)
	require.NoError(t, err)
	busy := &Subreddit{session: session}
	busy.data.DisplayName = "busy"

	_, err = busy.TopItems(context.Background(), feed.Window, feed.Limit)

	var rateErr *RateLimitError
	require.True(t, errors.As(err, &rateErr))
	assert.Equal(t, 7*time.Second, rateErr.RetryAfter)
	assert.Equal(t, "top", rateErr.Endpoint)
	assert.Equal(t, 1, calls)
}

func TestTopItems_RateLimitedRetriesOnce(t *testing.T) {
	mux := redditMux(t)
	calls := 0
	mux.HandleFunc("GET /r/busy/top", func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"data":{"children":[{"data":{"title":"late","score":1,"num_comments":0,"permalink":"/r/busy/late"}}]}}`))
	})
	client := newTestClient(t, mux, Options{RetryRateLimited: true})
	session, err := client.Authenticate(context.Background(), testCreds)
	require.NoError(t, err)
	busy := &Subreddit{session: session}
	busy.data.DisplayName = "busy"

	items, err := busy.TopItems(context.Background(), feed.Window, feed.Limit)

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, []feed.Item{{Title: "late", Score: 1, Permalink: "/r/busy/late"}}, items)
}

func TestTopItems_RetryGivesUpAfterSecondRateLimit(t *testing.T) {
	mux := redditMux(t)
	calls := 0
	mux.HandleFunc("GET /r/busy/top", func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Retry-After", "0")
		w.WriteHeader(http.StatusTooManyRequests)
	})
	client := newTestClient(t, mux, Options{RetryRateLimited: true})
	session, err := client.Authenticate(context.Background(), testCreds)
	require.NoError(t, err)
	busy := &Subreddit{session: session}
	busy.data.DisplayName = "busy"

	_, err = busy.TopItems(context.Background(), feed.Window, feed.Limit)

	var rateErr *RateLimitError
	assert.True(t, errors.As(err, &rateErr))
	assert.Equal(t, 2, calls)
}

func TestSubscribedFeeds_ServerError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/access_token", tokenHandler(t))
	mux.HandleFunc("GET /subreddits/mine/subscriber", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("upstream down"))
	})
	client := newTestClient(t, mux, Options{})
	session, err := client.Authenticate(context.Background(), testCreds)
	require.NoError(t, err)

	_, err = session.SubscribedFeeds(context.Background())

	var transportErr *TransportError
	require.True(t, errors.As(err, &transportErr))
	assert.Equal(t, http.StatusServiceUnavailable, transportErr.StatusCode)
	assert.Contains(t, err.Error(), "upstream down")
}

func TestSubscribedFeeds_MalformedJSON(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/access_token", tokenHandler(t))
	mux.HandleFunc("GET /subreddits/mine/subscriber", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>not json</html>"))
	})
	client := newTestClient(t, mux, Options{})
	session, err := client.Authenticate(context.Background(), testCreds)
	require.NoError(t, err)

	_, err = session.SubscribedFeeds(context.Background())

	var transportErr *TransportError
	assert.True(t, errors.As(err, &transportErr))
}

func TestRetryDelay(t *testing.T) {
	h := http.Header{}
	assert.Equal(t, 2*time.Second, retryDelay(h))

	h.Set("X-Ratelimit-Reset", "4")
	assert.Equal(t, 4*time.Second, retryDelay(h))

	h.Set("Retry-After", "1.5")
	assert.Equal(t, 1500*time.Millisecond, retryDelay(h))

	h.Set("Retry-After", "600")
	assert.Equal(t, 10*time.Second, retryDelay(h))

	h.Set("Retry-After", "Wed, 21 Oct 2015 07:28:00 GMT")
	assert.Equal(t, 4*time.Second, retryDelay(h))
}

func TestTruncate(t *testing.T) {
	long := make([]byte, 400)
	for i := range long {
		long[i] = 'x'
	}

	assert.Len(t, truncate(string(long)), 303)
	assert.Equal(t, "short", truncate("short"))
}
