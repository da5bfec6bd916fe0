package quote

import (
	"context"
	"sync"
	"time"

	"papertrade/internal/logger"
	"papertrade/internal/metrics"

	"golang.org/x/sync/singleflight"
)

// defaultFetchTimeout bounds one shared upstream fetch. Callers still give up
// on their own context; the fetch outlives them for the other waiters.
const defaultFetchTimeout = 10 * time.Second

// CachedOracle fronts a Source with an in-memory cache. Quotes younger than
// ttl are served as fresh. When the source fails, a cached quote younger than
// maxStaleness is served with Stale set; older quotes are never served.
type CachedOracle struct {
	source       Source
	ttl          time.Duration
	maxStaleness time.Duration
	fetchTimeout time.Duration
	metrics      *metrics.Metrics
	now          func() time.Time

	mu     sync.RWMutex
	quotes map[string]Quote
	group  singleflight.Group
}

// NewCachedOracle wraps source. m may be nil.
func NewCachedOracle(source Source, ttl, maxStaleness time.Duration, m *metrics.Metrics) *CachedOracle {
	return &CachedOracle{
		source:       source,
		ttl:          ttl,
		maxStaleness: maxStaleness,
		fetchTimeout: defaultFetchTimeout,
		metrics:      m,
		now:          time.Now,
		quotes:       make(map[string]Quote),
	}
}

// GetQuote returns a fresh quote, or a stale one flagged as such when the
// source cannot produce a fresh price.
func (o *CachedOracle) GetQuote(ctx context.Context, symbol string) (Quote, error) {
	now := o.now()

	o.mu.RLock()
	cached, ok := o.quotes[symbol]
	o.mu.RUnlock()
	if ok && now.Sub(cached.AsOf) <= o.ttl {
		o.metrics.RecordQuote(o.source.Name(), "cached")
		cached.Stale = false
		return cached, nil
	}

	ch := o.group.DoChan(symbol, func() (interface{}, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.fetchTimeout)
		defer cancel()
		return o.source.GetQuote(fctx, symbol)
	})

	var (
		q   Quote
		err error
	)
	select {
	case <-ctx.Done():
		err = unavailable(symbol, ctx.Err())
	case r := <-ch:
		err = r.Err
		if err == nil {
			q = r.Val.(Quote)
		}
	}

	now = o.now()
	if err == nil {
		o.Observe(q)
		age := now.Sub(q.AsOf)
		switch {
		case age <= o.ttl:
			o.metrics.RecordQuote(o.source.Name(), "fresh")
			q.Stale = false
			return q, nil
		case age <= o.maxStaleness:
			o.metrics.RecordQuote(o.source.Name(), "stale")
			q.Stale = true
			return q, nil
		default:
			o.metrics.RecordQuote(o.source.Name(), "error")
			return Quote{}, unavailable(symbol, nil)
		}
	}

	o.mu.RLock()
	cached, ok = o.quotes[symbol]
	o.mu.RUnlock()
	if ok && now.Sub(cached.AsOf) <= o.maxStaleness {
		logger.For("quote").Warnw("serving stale quote", "symbol", symbol, "source", o.source.Name(),
			"as_of", cached.AsOf, "error", err)
		o.metrics.RecordQuote(o.source.Name(), "stale")
		cached.Stale = true
		return cached, nil
	}

	o.metrics.RecordQuote(o.source.Name(), "error")
	return Quote{}, err
}

// Observe stores q if it is newer than what the cache holds, e.g. when the
// pipeline pushes prices.
func (o *CachedOracle) Observe(q Quote) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if cur, ok := o.quotes[q.Symbol]; ok && cur.AsOf.After(q.AsOf) {
		return
	}
	q.Stale = false
	o.quotes[q.Symbol] = q
}
