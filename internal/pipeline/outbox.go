package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"feedwatch/internal/metrics"
	"feedwatch/internal/model"
)

// Sender delivers one text message to a destination.
type Sender interface {
	Send(ctx context.Context, destinationID, text string) error
}

// Outbox is the FIFO queue between the dispatcher and the single delivery
// worker. Every message to every destination goes out from Run, one at a
// time.
type Outbox struct {
	queue   chan model.Delivery
	sender  Sender
	limit   int
	limiter *rate.Limiter
	log     *slog.Logger
}

// NewOutbox creates an Outbox holding up to size pending deliveries. Message
// bodies longer than limit characters are split. Consecutive sends start at
// least interval apart; zero disables pacing.
func NewOutbox(size int, sender Sender, limit int, interval time.Duration, log *slog.Logger) *Outbox {
	if limit <= 0 {
		limit = DefaultMessageLimit
	}
	o := &Outbox{
		queue:  make(chan model.Delivery, size),
		sender: sender,
		limit:  limit,
		log:    log,
	}
	if interval > 0 {
		o.limiter = rate.NewLimiter(rate.Every(interval), 1)
	}
	return o
}

// Enqueue adds d to the queue, blocking while it is full.
func (o *Outbox) Enqueue(ctx context.Context, d model.Delivery) error {
	select {
	case o.queue <- d:
		metrics.OutboxDepth.Set(float64(len(o.queue)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run consumes the queue until ctx is cancelled.
func (o *Outbox) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case d := <-o.queue:
			metrics.OutboxDepth.Set(float64(len(o.queue)))
			o.deliver(ctx, d)
		}
	}
}

func (o *Outbox) deliver(ctx context.Context, d model.Delivery) {
	dest := d.Subscription.DestinationID
	for _, part := range o.Render(d) {
		if o.limiter != nil {
			if err := o.limiter.Wait(ctx); err != nil {
				o.log.Warn("send delivery aborted", "destination_id", dest, "item_id", d.Item.ID, "error", err)
				return
			}
		}
		if err := o.sender.Send(ctx, dest, part); err != nil {
			o.log.Error("send delivery",
				"destination_id", dest, "item_id", d.Item.ID, "subscription_id", d.Subscription.ID, "error", err)
			metrics.RecordDelivery("error")
			return
		}
	}
	metrics.RecordDelivery("ok")
	o.log.Debug("delivered", "destination_id", dest, "item_id", d.Item.ID)
}

// Render returns the messages sent for d, in order: the header line, the
// attachment URL if any, then the body. Header and body are split at the
// message limit.
func (o *Outbox) Render(d model.Delivery) []string {
	parts := SplitMessage(Header(d.Item, d.Subscription.Annotation), o.limit)
	if media := attachment(d.Item); media != "" {
		parts = append(parts, media)
	}
	return append(parts, SplitMessage(d.Item.Content, o.limit)...)
}

// Header formats the first line of a delivery. An empty title or
// annotation is left out together with its separator.
func Header(item model.Item, annotation string) string {
	parts := []string{fmt.Sprintf("> ==== <%s> ====", item.URL)}
	for _, s := range []string{item.Title, annotation} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

func attachment(item model.Item) string {
	if item.FileURL != "" {
		return item.FileURL
	}
	if item.Kind == model.KindRSS && len(item.Images) > 0 {
		return item.Images[0]
	}
	return ""
}
