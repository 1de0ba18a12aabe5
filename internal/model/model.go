// Package model defines the domain types used across the application.
package model

import "time"

// MaxSubscriptionsPerDestination caps how many subscriptions one destination may hold.
const MaxSubscriptionsPerDestination = 10

// SourceKind identifies which source client produces items for a subscription.
type SourceKind string

// Supported source kinds.
const (
	KindRSS       SourceKind = "rss"
	KindBoard     SourceKind = "board"
	KindFrontPage SourceKind = "frontpage"
)

// Valid reports whether k is one of the supported source kinds.
func (k SourceKind) Valid() bool {
	switch k {
	case KindRSS, KindBoard, KindFrontPage:
		return true
	}
	return false
}

// Pattern is a regular expression applied to a single item field.
type Pattern struct {
	Expr          string
	CaseSensitive bool
}

// Subscription binds a destination to a source with optional match criteria.
// Nil pointers and empty strings mean "unset".
type Subscription struct {
	ID            int64
	DestinationID string
	Kind          SourceKind
	SourceID      string

	Title         *Pattern
	Content       *Pattern
	Name          *Pattern
	Tripcode      *Pattern
	Filename      *Pattern
	ThreadSubject *Pattern

	MinEngagement *int
	RootOnly      *bool
	Annotation    string

	CreatedAt time.Time
}

// Item is a candidate piece of content produced by a source client.
// Empty string fields are treated as absent.
type Item struct {
	ID       string
	Kind     SourceKind
	SourceID string
	URL      string

	Title         string
	Content       string
	Author        string
	Tripcode      string
	Filename      string
	ThreadSubject string
	FileURL       string
	Images        []string

	// Engagement is nil for sources that do not compute it.
	Engagement  *int
	IsRoot      bool
	PublishedAt time.Time
}

// DeliveryRecord proves an item was already handed to a destination.
type DeliveryRecord struct {
	DestinationID string
	ItemID        string
	DeliveredAt   time.Time
}

// Delivery is an item queued for sending on behalf of a subscription.
type Delivery struct {
	Item         Item
	Subscription Subscription
}
