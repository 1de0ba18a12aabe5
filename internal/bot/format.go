package bot

import (
	"fmt"
	"strings"

	"feedwatch/internal/model"
)

// FormatSubscription renders one subscription on a single line, e.g.
// `#3 board /g/ title=/sale/i min_replies=5 note="hot"`.
func FormatSubscription(sub model.Subscription) string {
	var b strings.Builder
	fmt.Fprintf(&b, "#%d %s %s", sub.ID, sub.Kind, sourceLabel(sub))

	patterns := []struct {
		key string
		p   *model.Pattern
	}{
		{"title", sub.Title},
		{"content", sub.Content},
		{"name", sub.Name},
		{"trip", sub.Tripcode},
		{"file", sub.Filename},
		{"subject", sub.ThreadSubject},
	}
	for _, f := range patterns {
		if f.p == nil {
			continue
		}
		flags := "i"
		if f.p.CaseSensitive {
			flags = ""
		}
		fmt.Fprintf(&b, " %s=/%s/%s", f.key, f.p.Expr, flags)
	}
	if sub.MinEngagement != nil {
		fmt.Fprintf(&b, " min_replies=%d", *sub.MinEngagement)
	}
	if sub.RootOnly != nil {
		fmt.Fprintf(&b, " op=%t", *sub.RootOnly)
	}
	if sub.Annotation != "" {
		fmt.Fprintf(&b, " note=%q", sub.Annotation)
	}
	return b.String()
}

func sourceLabel(sub model.Subscription) string {
	if sub.Kind == model.KindRSS {
		return sub.SourceID
	}
	return "/" + sub.SourceID + "/"
}

// FormatSubscriptionList formats the subscriptions of one chat.
func FormatSubscriptionList(subs []model.Subscription) string {
	if len(subs) == 0 {
		return "You have no subscriptions yet. Use /watch_rss, /watch_board or /watch_frontpage to add one."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Your subscriptions (%d/%d):\n", len(subs), model.MaxSubscriptionsPerDestination)
	for _, sub := range subs {
		b.WriteString("\n")
		b.WriteString(FormatSubscription(sub))
	}
	return b.String()
}
