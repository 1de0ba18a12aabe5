package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"feedwatch/internal/config"
	"feedwatch/internal/model"
	"feedwatch/internal/storage"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// FeedChecker fetches a feed to prove it can be polled.
type FeedChecker interface {
	Title(ctx context.Context, feedURL string) (string, error)
}

// BoardLister lists the boards the imageboard API serves.
type BoardLister interface {
	Boards(ctx context.Context) ([]string, error)
}

// Bot is the Telegram transport: it sends deliveries and handles the
// subscription commands.
type Bot struct {
	api    telegramAPI
	store  storage.SubscriptionStore
	cfg    *config.Config
	feeds  FeedChecker
	boards BoardLister
	log    *slog.Logger
}

// New creates a Bot with the given Telegram token, storage, and config.
func New(token string, store storage.SubscriptionStore, cfg *config.Config, feeds FeedChecker, boards BoardLister, log *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	return &Bot{
		api:    api,
		store:  store,
		cfg:    cfg,
		feeds:  feeds,
		boards: boards,
		log:    log,
	}, nil
}

// Run starts the bot's long-polling loop, blocking until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update := <-updates:
			if update.CallbackQuery != nil {
				if !b.cfg.IsUserAllowed(update.CallbackQuery.From.ID) {
					continue
				}
				b.handleCallback(ctx, update.CallbackQuery)
				continue
			}
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}
			if !b.cfg.IsUserAllowed(update.Message.From.ID) {
				b.reply(update.Message.Chat.ID, "Access denied.")
				continue
			}
			b.handleCommand(ctx, update.Message)
		}
	}
}

// Send delivers text to the chat whose decimal ID is destinationID. Link
// previews are shown only for messages that are a bare URL, so attachments
// render as media.
func (b *Bot) Send(_ context.Context, destinationID, text string) error {
	chatID, err := strconv.ParseInt(destinationID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid destination %q: %w", destinationID, err)
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = !isBareURL(text)
	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

func isBareURL(text string) bool {
	return (strings.HasPrefix(text, "https://") || strings.HasPrefix(text, "http://")) &&
		!strings.ContainsAny(text, " \n")
}

func (b *Bot) reply(chatID int64, text string) {
	if err := b.Send(context.Background(), destination(chatID), text); err != nil {
		b.log.Error("send reply", "chat_id", chatID, "error", err)
	}
}

func destination(chatID int64) string {
	return strconv.FormatInt(chatID, 10)
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cmd := msg.Command()
	args := strings.TrimSpace(msg.CommandArguments())
	chatID := msg.Chat.ID

	b.log.Debug("command", "cmd", cmd, "args", args, "chat_id", chatID)

	switch cmd {
	case "start":
		b.handleStart(chatID)
	case "help":
		b.handleHelp(chatID)
	case cmdWatchRSS:
		b.handleWatch(ctx, chatID, model.KindRSS, args)
	case cmdWatchBoard:
		b.handleWatch(ctx, chatID, model.KindBoard, args)
	case cmdWatchFrontPage:
		b.handleWatch(ctx, chatID, model.KindFrontPage, args)
	case "list":
		b.handleList(ctx, chatID)
	case cmdUnwatch:
		b.handleUnwatch(ctx, chatID, args)
	case "unwatch_all":
		b.handleUnwatchAll(ctx, chatID)
	default:
		b.reply(chatID, "Unknown command. Use /help for a list of commands.")
	}
}
