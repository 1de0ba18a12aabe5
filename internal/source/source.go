// Package source turns external content sources into normalized items.
//
// Three clients are provided, one per model.SourceKind: RSS feeds, board
// catalogs (every thread, with reply counting) and board front pages (one
// index page, no reply counting).
package source

import (
	"context"

	"feedwatch/internal/model"
)

// Source lists the current candidate items of one source identifier.
// An empty result is not an error; errors mean the source could not be
// fetched or parsed.
type Source interface {
	Kind() model.SourceKind
	List(ctx context.Context, sourceID string) ([]model.Item, error)
}

var (
	_ Source = (*RSS)(nil)
	_ Source = (*Catalog)(nil)
	_ Source = (*FrontPage)(nil)
)
