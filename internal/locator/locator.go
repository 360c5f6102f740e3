// Package locator finds running processes whose listing line contains a filter.
//
// The listing itself comes from a Source: either an external command such as
// frida-ps, or the local process table. Matching is a pure function over the
// listing text so both sources share the same semantics.
package locator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrListing reports that the listing source failed. Callers use it to tell a
// failed listing apart from a listing with zero matches.
var ErrListing = errors.New("process listing failed")

// Locator runs a Source and filters its output.
type Locator struct {
	source Source
	log    *slog.Logger
}

// New constructs a Locator over the provided source.
func New(source Source) *Locator {
	return &Locator{
		source: source,
		log:    slog.With("component", "locator"),
	}
}

// Find lists processes once and returns the PIDs matching filter. An empty
// result with a nil error means nothing matched; a non-nil error wraps
// ErrListing.
func (l *Locator) Find(ctx context.Context, filter Filter) ([]PID, error) {
	if l.source == nil {
		return nil, fmt.Errorf("%w: no source configured", ErrListing)
	}
	listing, err := l.source.Listing(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrListing, err)
	}
	pids := Match(listing, filter)
	l.log.Debug("listing filtered", "filter", filter.String(), "matches", len(pids), "bytes", len(listing))
	return pids, nil
}
