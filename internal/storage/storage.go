// Package storage defines the persistence interfaces and their implementations.
package storage

import (
	"context"
	"errors"

	"feedwatch/internal/model"
)

// Errors returned by Storage implementations.
var (
	ErrDuplicate        = errors.New("identical subscription already exists")
	ErrQuotaExceeded    = errors.New("subscription limit reached for destination")
	ErrNotFound         = errors.New("subscription not found")
	ErrAlreadyDelivered = errors.New("item already delivered to destination")
)

// SubscriptionStore persists per-destination filter rules.
type SubscriptionStore interface {
	AddSubscription(ctx context.Context, sub *model.Subscription) error
	ListSubscriptions(ctx context.Context) ([]model.Subscription, error)
	ListSubscriptionsFor(ctx context.Context, destinationID string) ([]model.Subscription, error)
	ListSources(ctx context.Context, kind model.SourceKind) ([]string, error)
	DeleteSubscription(ctx context.Context, destinationID string, id int64) error
	DeleteSubscriptionsFor(ctx context.Context, destinationID string) (int64, error)
}

// Ledger records which items were already handed to which destination.
type Ledger interface {
	IsDelivered(ctx context.Context, destinationID, itemID string) (bool, error)
	// RecordDelivery returns ErrAlreadyDelivered if the pair already exists.
	RecordDelivery(ctx context.Context, destinationID, itemID string) error
}

// Storage is the interface for all persistence operations.
type Storage interface {
	SubscriptionStore
	Ledger
	Close() error
}
