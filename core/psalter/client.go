// Package psalter resolves psalm numbers to the verses of the configured
// metrical psalter.
//
// A Client fetches one overview document per psalm, extracts a VerseMap from
// it and keeps that map in a TTL cache, so both the verse count and single
// verse lookups are answered from the same fetch. Concurrent cold lookups for
// the same psalm share one fetch.
package psalter

import (
	"context"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/FocuswithJustin/psalter/core/envelope"
	"github.com/FocuswithJustin/psalter/core/errors"
	"github.com/FocuswithJustin/psalter/core/verses"
	"github.com/FocuswithJustin/psalter/internal/cache"
	"github.com/FocuswithJustin/psalter/internal/logging"
)

// DefaultTTL is how long a resolved psalm is served from cache.
const DefaultTTL = 600 * time.Second

// Fetcher retrieves the raw overview document for a psalm.
type Fetcher interface {
	Fetch(ctx context.Context, psalm int) ([]byte, error)
}

// FetchFunc adapts a function to the Fetcher interface.
type FetchFunc func(ctx context.Context, psalm int) ([]byte, error)

// Fetch calls f.
func (f FetchFunc) Fetch(ctx context.Context, psalm int) ([]byte, error) {
	return f(ctx, psalm)
}

// URLNamer is implemented by fetchers that can tell where a psalm's document
// lives.
type URLNamer interface {
	URL(psalm int) string
}

// Cache stores resolved VerseMaps by psalm number. Both cache.TTLCache and
// cache.Tiered satisfy it.
type Cache interface {
	Get(psalm int) (*verses.VerseMap, bool)
	Set(psalm int, m *verses.VerseMap)
}

// Observer receives resolution events, typically to record metrics.
type Observer interface {
	FetchCompleted(psalm int, duration time.Duration, err error)
	CacheLookup(psalm int, hit bool)
	VersesDiscovered(psalm, count int)
}

type nopObserver struct{}

func (nopObserver) FetchCompleted(int, time.Duration, error) {}
func (nopObserver) CacheLookup(int, bool)                    {}
func (nopObserver) VersesDiscovered(int, int)                {}

// Client is the verse resolution client. It is safe for concurrent use.
type Client struct {
	fetcher  Fetcher
	cache    Cache
	chain    *verses.Chain
	empty    EmptyPolicy
	observer Observer
	now      cache.Clock

	group singleflight.Group

	mu      sync.Mutex
	digests map[int]string
}

// Option configures a Client.
type Option func(*Client)

// WithCache replaces the default in-memory cache.
func WithCache(c Cache) Option {
	return func(cl *Client) { cl.cache = c }
}

// WithExtractor replaces the default extraction chain.
func WithExtractor(chain *verses.Chain) Option {
	return func(cl *Client) { cl.chain = chain }
}

// WithEmptyPolicy sets how MaxVerse treats a psalm with no discovered verses.
func WithEmptyPolicy(p EmptyPolicy) Option {
	return func(cl *Client) { cl.empty = p }
}

// WithObserver registers an observer for fetch and cache events.
func WithObserver(o Observer) Option {
	return func(cl *Client) { cl.observer = o }
}

// WithClock overrides the time source used to stamp fetched documents.
func WithClock(now cache.Clock) Option {
	return func(cl *Client) { cl.now = now }
}

// New creates a client that fetches documents through fetcher.
func New(fetcher Fetcher, opts ...Option) *Client {
	c := &Client{
		fetcher:  fetcher,
		empty:    EmptyFail,
		observer: nopObserver{},
		now:      time.Now,
		digests:  make(map[int]string),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.cache == nil {
		c.cache = cache.New[int, *verses.VerseMap](DefaultTTL, cache.WithClock(c.now))
	}
	if c.chain == nil {
		c.chain = verses.DefaultChain()
	}
	if c.observer == nil {
		c.observer = nopObserver{}
	}
	return c
}

// SourceURL returns the document location for psalm, or "" when the fetcher
// cannot name it.
func (c *Client) SourceURL(psalm int) string {
	if n, ok := c.fetcher.(URLNamer); ok {
		return n.URL(psalm)
	}
	return ""
}

// MaxVerse returns the highest verse number discovered for psalm. A psalm
// without any discovered verse is handled according to the empty policy.
func (c *Client) MaxVerse(ctx context.Context, psalm int) (int, error) {
	m, err := c.VerseMap(ctx, psalm)
	if err != nil {
		return 0, err
	}
	return c.maxOf(psalm, m)
}

func (c *Client) maxOf(psalm int, m *verses.VerseMap) (int, error) {
	if max, ok := m.Max(); ok {
		return max, nil
	}
	if c.empty == EmptyFallbackOne {
		return 1, nil
	}
	return 0, errors.NewVerseNotFound(psalm, 0, 0)
}

// Verses returns the texts of numbers, in the order given, all taken from one
// resolution of psalm. Every number is checked against the highest verse of
// that same VerseMap before any text is read.
func (c *Client) Verses(ctx context.Context, psalm int, numbers []int) ([]string, error) {
	for _, n := range numbers {
		if n < 1 {
			return nil, errors.NewInvalidRequest("verse", "verse number must be positive, got "+strconv.Itoa(n))
		}
	}
	m, err := c.VerseMap(ctx, psalm)
	if err != nil {
		return nil, err
	}
	max, err := c.maxOf(psalm, m)
	if err != nil {
		return nil, err
	}
	for _, n := range numbers {
		if n > max {
			return nil, errors.NewVerseNotFound(psalm, n, max)
		}
	}

	texts := make([]string, 0, len(numbers))
	for _, n := range numbers {
		text, ok := m.Verse(n)
		if !ok {
			return nil, errors.NewVerseNotFound(psalm, n, max)
		}
		texts = append(texts, text)
	}
	return texts, nil
}

// Verse returns the text of one verse.
func (c *Client) Verse(ctx context.Context, psalm, verse int) (string, error) {
	if verse < 1 {
		return "", errors.NewInvalidRequest("verse", "verse number must be positive, got "+strconv.Itoa(verse))
	}
	m, err := c.VerseMap(ctx, psalm)
	if err != nil {
		return "", err
	}
	text, ok := m.Verse(verse)
	if !ok {
		max, _ := m.Max()
		return "", errors.NewVerseNotFound(psalm, verse, max)
	}
	return text, nil
}

// VerseMap returns the resolved verses of psalm, fetching the document when
// no fresh cache entry exists. Failed fetches are not cached.
func (c *Client) VerseMap(ctx context.Context, psalm int) (*verses.VerseMap, error) {
	if psalm < envelope.MinPsalm || psalm > envelope.MaxPsalm {
		return nil, errors.NewInvalidRequest("psalm", "psalm number "+strconv.Itoa(psalm)+" out of range (1-150)")
	}

	if m, ok := c.cache.Get(psalm); ok {
		c.observer.CacheLookup(psalm, true)
		logging.CacheEvent(ctx, "hit", psalm)
		return m, nil
	}
	c.observer.CacheLookup(psalm, false)
	logging.CacheEvent(ctx, "miss", psalm)

	// The shared fetch outlives any single waiter; only this caller's wait
	// is bounded by ctx.
	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(strconv.Itoa(psalm), func() (any, error) {
		if m, ok := c.cache.Get(psalm); ok {
			return m, nil
		}
		return c.load(shared, psalm)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*verses.VerseMap), nil
	case <-ctx.Done():
		return nil, errors.NewSourceUnavailable(psalm, c.SourceURL(psalm), 0, ctx.Err())
	}
}

// load fetches and extracts psalm and stores the result.
func (c *Client) load(ctx context.Context, psalm int) (*verses.VerseMap, error) {
	url := c.SourceURL(psalm)

	start := c.now()
	markup, err := c.fetcher.Fetch(ctx, psalm)
	duration := c.now().Sub(start)
	c.observer.FetchCompleted(psalm, duration, err)

	if err != nil {
		var su *errors.SourceUnavailableError
		if !errors.As(err, &su) {
			su = errors.NewSourceUnavailable(psalm, url, 0, err)
		}
		logging.SourceFetch(ctx, psalm, url, su.StatusCode, duration, su)
		return nil, su
	}
	logging.SourceFetch(ctx, psalm, url, 0, duration, nil, "bytes", len(markup))

	m, strategy, err := c.chain.Extract(markup, c.now())
	if err != nil {
		return nil, errors.NewSourceUnavailable(psalm, url, 0, err)
	}
	c.observer.VersesDiscovered(psalm, m.Len())
	if m.Len() == 0 {
		logging.WarnContext(ctx, "no verses discovered", "psalm", psalm, "url", url)
	} else {
		logging.CacheEvent(ctx, "extracted", psalm, "strategy", strategy, "verses", m.Len())
	}

	c.noteDigest(ctx, psalm, m.Digest())
	c.cache.Set(psalm, m)
	return m, nil
}

func (c *Client) noteDigest(ctx context.Context, psalm int, digest string) {
	c.mu.Lock()
	previous, seen := c.digests[psalm]
	c.digests[psalm] = digest
	c.mu.Unlock()

	if seen && previous != digest {
		logging.InfoContext(ctx, "source document changed",
			"psalm", psalm,
			"old_digest", previous,
			"new_digest", digest,
		)
	}
}
