// Package products defines where a user's current product list lives.
package products

import (
	"context"
	"errors"

	"profitdash/internal/core"
)

// ErrNotFound is returned when a product id is not in the user's current list.
var ErrNotFound = errors.New("product not found")

// Store keeps one snapshot per user. Replace swaps the whole list at once:
// readers see either the previous snapshot or the new one, never a mix.
type Store interface {
	Replace(ctx context.Context, snap core.Snapshot) error
	// Snapshot returns the user's current list; a user who never uploaded
	// gets an empty snapshot and no error.
	Snapshot(ctx context.Context, userID string) (core.Snapshot, error)
	Get(ctx context.Context, userID, productID string) (core.Product, error)
	Clear(ctx context.Context, userID string) error
}
