package feed

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

const (
	BaseURL = "https://www.reddit.com"
	Window  = "day"
	Limit   = 3
)

type Item struct {
	Title       string
	Score       int
	NumComments int
	Permalink   string
}

type Feed interface {
	DisplayName() string
	TopItems(ctx context.Context, window string, limit int) ([]Item, error)
}

type FeedSource interface {
	SubscribedFeeds(ctx context.Context) ([]Feed, error)
}

// Observer is notified once per fetched feed.
type Observer interface {
	FeedFetched(subreddit string, items int)
}

type Row struct {
	Title     string
	Subreddit string
	Scores    int
	Comments  int
	Url       string
}

type Aggregator struct {
	concurrency int
	observer    Observer
}

type Option func(*Aggregator)

// WithConcurrency fetches up to n feeds at once. Row order is unaffected.
func WithConcurrency(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.concurrency = n
		}
	}
}

func WithObserver(o Observer) Option {
	return func(a *Aggregator) {
		a.observer = o
	}
}

func NewAggregator(opts ...Option) *Aggregator {
	a := &Aggregator{concurrency: 1}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func BuildReport(ctx context.Context, source FeedSource, opts ...Option) ([]Row, error) {
	return NewAggregator(opts...).Build(ctx, source)
}

// Build returns one row per top item of every subscribed feed, feeds in
// listing order and items in service order. Any error discards all rows.
func (a *Aggregator) Build(ctx context.Context, source FeedSource) ([]Row, error) {
	feeds, err := source.SubscribedFeeds(ctx)
	if err != nil {
		return nil, fmt.Errorf("list subscribed feeds: %w", err)
	}

	perFeed := make([][]Row, len(feeds))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for i, f := range feeds {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rows, err := a.fetchFeed(gctx, f)
			if err != nil {
				return err
			}
			perFeed[i] = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	rows := make([]Row, 0, len(feeds)*Limit)
	for _, feedRows := range perFeed {
		rows = append(rows, feedRows...)
	}
	return rows, nil
}

func (a *Aggregator) fetchFeed(ctx context.Context, f Feed) ([]Row, error) {
	name := f.DisplayName()
	items, err := f.TopItems(ctx, Window, Limit)
	if err != nil {
		return nil, fmt.Errorf("top items of %s: %w", name, err)
	}
	if a.observer != nil {
		a.observer.FeedFetched(name, len(items))
	}

	rows := make([]Row, 0, len(items))
	for _, item := range items {
		rows = append(rows, NewRow(name, item))
	}
	return rows, nil
}

func NewRow(subreddit string, item Item) Row {
	return Row{
		Title:     item.Title,
		Subreddit: subreddit,
		Scores:    item.Score,
		Comments:  item.NumComments,
		Url:       BaseURL + item.Permalink,
	}
}
