package quote

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// FallbackSource asks its sources in order and returns the first price any
// of them produces. The API pairs a live upstream with the recorded prices
// so that an upstream outage still leaves recently pushed prices usable.
type FallbackSource struct {
	sources []Source
}

// NewFallbackSource chains sources, most preferred first.
func NewFallbackSource(sources ...Source) *FallbackSource {
	return &FallbackSource{sources: sources}
}

// Name joins the chained source names, e.g. "yahoo+store".
func (f *FallbackSource) Name() string {
	names := make([]string, len(f.sources))
	for i, src := range f.sources {
		names[i] = src.Name()
	}
	return strings.Join(names, "+")
}

// GetQuote returns the first successful quote.
func (f *FallbackSource) GetQuote(ctx context.Context, symbol string) (Quote, error) {
	var errs []error
	for _, src := range f.sources {
		q, err := src.GetQuote(ctx, symbol)
		if err == nil {
			return q, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", src.Name(), err))
		if ctx.Err() != nil {
			break
		}
	}
	return Quote{}, unavailable(symbol, errors.Join(errs...))
}
