package bot

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"feedwatch/internal/filter"
	"feedwatch/internal/model"
	"feedwatch/internal/source"
	"feedwatch/internal/storage"
)

const (
	cmdWatchRSS       = "watch_rss"
	cmdWatchBoard     = "watch_board"
	cmdWatchFrontPage = "watch_frontpage"
	cmdUnwatch        = "unwatch"
)

func (b *Bot) handleStart(chatID int64) {
	b.reply(chatID, `Welcome to feedwatch!

Watch RSS feeds and imageboards and get the posts that match your filters.

Quick start:
1. /watch_rss <url> title=kubernetes
2. /watch_board g subject="desktop thread" file=png
3. /list

Use /help for the full command reference.`)
}

func (b *Bot) handleHelp(chatID int64) {
	b.reply(chatID, fmt.Sprintf(`Subscriptions:
/watch_rss <url> [options] - watch an RSS or Atom feed
/watch_board <board> [options] - watch every thread of a board
/watch_frontpage <board> [options] - watch the first page of a board
/list - show your subscriptions
/unwatch <id> - remove a subscription
/unwatch_all - remove all your subscriptions

Options (key=value, quote values with spaces):
title, content, name - regex on the post title, text or author
trip, file, subject - regex on tripcode, file name or thread subject (boards)
<key>_case=true - make that regex case-sensitive
min_replies=N - only posts quoted by at least N replies (/watch_board)
op=true|false - only thread openers, or only replies (boards)
note="text" - appended to every delivered header

Up to %d subscriptions per chat.`, model.MaxSubscriptionsPerDestination))
}

func (b *Bot) handleWatch(ctx context.Context, chatID int64, kind model.SourceKind, args string) {
	usage := fmt.Sprintf("Usage: /%s <%s> [options]", watchCommand(kind), sourceArg(kind))
	if args == "" {
		b.reply(chatID, usage)
		return
	}

	sub, err := ParseWatchArgs(kind, args)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("%v\n%s", err, usage))
		return
	}
	for _, p := range []*model.Pattern{sub.Title, sub.Content, sub.Name, sub.Tripcode, sub.Filename, sub.ThreadSubject} {
		if p == nil {
			continue
		}
		if err := filter.ValidatePattern(p.Expr); err != nil {
			b.reply(chatID, fmt.Sprintf("Invalid regex: %v", err))
			return
		}
	}

	if kind == model.KindRSS {
		if _, err := b.feeds.Title(ctx, sub.SourceID); err != nil {
			b.reply(chatID, fmt.Sprintf("Failed to fetch feed: %v", err))
			return
		}
	} else {
		sub.SourceID = source.NormalizeBoard(sub.SourceID)
		boards, err := b.boards.Boards(ctx)
		if err != nil {
			b.log.Error("list boards", "error", err)
			b.reply(chatID, "Could not reach the board list, try again later.")
			return
		}
		if !slices.Contains(boards, sub.SourceID) {
			b.reply(chatID, fmt.Sprintf("Board /%s/ does not exist.", sub.SourceID))
			return
		}
	}

	sub.DestinationID = destination(chatID)
	err = b.store.AddSubscription(ctx, sub)
	switch {
	case errors.Is(err, storage.ErrDuplicate):
		b.reply(chatID, "You already have an identical subscription.")
		return
	case errors.Is(err, storage.ErrQuotaExceeded):
		b.reply(chatID, fmt.Sprintf("Subscription limit reached (%d per chat). Remove one with /unwatch <id>.",
			model.MaxSubscriptionsPerDestination))
		return
	case err != nil:
		b.log.Error("add subscription", "chat_id", chatID, "error", err)
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}

	b.log.Info("subscription added", "chat_id", chatID, "subscription_id", sub.ID, "kind", sub.Kind, "source_id", sub.SourceID)
	b.reply(chatID, fmt.Sprintf("Subscription added:\n%s", FormatSubscription(*sub)))
}

func watchCommand(kind model.SourceKind) string {
	switch kind {
	case model.KindBoard:
		return cmdWatchBoard
	case model.KindFrontPage:
		return cmdWatchFrontPage
	default:
		return cmdWatchRSS
	}
}

func sourceArg(kind model.SourceKind) string {
	if kind == model.KindRSS {
		return "url"
	}
	return "board"
}

func (b *Bot) handleList(ctx context.Context, chatID int64) {
	subs, err := b.store.ListSubscriptionsFor(ctx, destination(chatID))
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.sendWithKeyboard(chatID, FormatSubscriptionList(subs), unwatchKeyboard(subs))
}

func (b *Bot) handleUnwatch(ctx context.Context, chatID int64, args string) {
	id, err := ParseIDArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /unwatch <id>")
		return
	}

	err = b.store.DeleteSubscription(ctx, destination(chatID), id)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		b.reply(chatID, fmt.Sprintf("Subscription #%d not found.", id))
	case err != nil:
		b.reply(chatID, fmt.Sprintf("Error deleting subscription: %v", err))
	default:
		b.reply(chatID, fmt.Sprintf("Subscription #%d removed.", id))
	}
}

func (b *Bot) handleUnwatchAll(ctx context.Context, chatID int64) {
	n, err := b.store.DeleteSubscriptionsFor(ctx, destination(chatID))
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, fmt.Sprintf("Removed %d subscription(s).", n))
}
