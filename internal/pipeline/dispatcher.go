// Package pipeline matches polled items against subscriptions and delivers
// them through a single serialized worker.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"feedwatch/internal/filter"
	"feedwatch/internal/metrics"
	"feedwatch/internal/model"
	"feedwatch/internal/storage"
)

// Queue accepts deliveries for sending.
type Queue interface {
	Enqueue(ctx context.Context, d model.Delivery) error
}

// Dispatcher turns candidate items into deliveries. The ledger insert is the
// dedup gate: an item reaches the queue for a destination only if this
// dispatcher recorded it first.
type Dispatcher struct {
	subs   storage.SubscriptionStore
	ledger storage.Ledger
	queue  Queue
	log    *slog.Logger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(subs storage.SubscriptionStore, ledger storage.Ledger, queue Queue, log *slog.Logger) *Dispatcher {
	return &Dispatcher{subs: subs, ledger: ledger, queue: queue, log: log}
}

// Dispatch evaluates items in order against every subscription. Ledger
// errors are logged per item; only a failure to load subscriptions or a
// cancelled context is returned.
func (d *Dispatcher) Dispatch(ctx context.Context, items []model.Item) error {
	if len(items) == 0 {
		return nil
	}
	subs, err := d.subs.ListSubscriptions(ctx)
	if err != nil {
		return fmt.Errorf("list subscriptions: %w", err)
	}

	for _, item := range items {
		for _, sub := range subs {
			if !filter.Match(sub, item) {
				continue
			}
			if err := d.deliver(ctx, sub, item); err != nil {
				return err
			}
		}
	}
	return nil
}

// deliver returns an error only when enqueueing was interrupted.
func (d *Dispatcher) deliver(ctx context.Context, sub model.Subscription, item model.Item) error {
	log := d.log.With("destination_id", sub.DestinationID, "item_id", item.ID, "subscription_id", sub.ID)

	delivered, err := d.ledger.IsDelivered(ctx, sub.DestinationID, item.ID)
	if err != nil {
		log.Error("check ledger", "error", err)
		metrics.RecordDispatch("error")
		return nil
	}
	if delivered {
		metrics.RecordDispatch("duplicate")
		return nil
	}

	if err := d.ledger.RecordDelivery(ctx, sub.DestinationID, item.ID); err != nil {
		if errors.Is(err, storage.ErrAlreadyDelivered) {
			log.Debug("already delivered")
			metrics.RecordDispatch("duplicate")
			return nil
		}
		log.Error("record delivery", "error", err)
		metrics.RecordDispatch("error")
		return nil
	}

	if err := d.queue.Enqueue(ctx, model.Delivery{Item: item, Subscription: sub}); err != nil {
		return fmt.Errorf("enqueue %s: %w", item.ID, err)
	}
	metrics.RecordDispatch("queued")
	log.Info("queued delivery")
	return nil
}
