// Package telegram is the transport adapter: it owns the long-polling
// update loop, command parsing, and outgoing message formatting, and
// translates between Telegram updates and the verification pipeline.
package telegram

import (
	"context"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/qadeerTruesofts/TelegramBot-For-X/internal/store"
	"github.com/qadeerTruesofts/TelegramBot-For-X/internal/verify"
)

// Verifier runs one verification attempt. Implemented by the orchestrator.
type Verifier interface {
	Verify(ctx context.Context, telegramID, taskID int64) (verify.Outcome, error)
}

// Store is the persistence surface the bot needs.
type Store interface {
	RegisterUser(telegramID int64, handle string) (store.User, error)
	CreateTask(postURL string, reward float64) (store.Task, error)
	ListUserIDs() ([]int64, error)
}

// sender is the outgoing half of the Telegram API. *tgbotapi.BotAPI
// satisfies it; tests substitute a recorder.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Bot wires Telegram updates to the store and the verifier.
type Bot struct {
	api      *tgbotapi.BotAPI
	send     sender
	store    Store
	verifier Verifier
	isAdmin  func(int64) bool
	keyword  string
	log      *zap.Logger

	wg sync.WaitGroup
}

// New creates a bot over an authorized API client. isAdmin gates the
// admin-only commands; the logger may be nil.
func New(api *tgbotapi.BotAPI, st Store, verifier Verifier, isAdmin func(int64) bool, keyword string, log *zap.Logger) *Bot {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bot{
		api:      api,
		send:     api,
		store:    st,
		verifier: verifier,
		isAdmin:  isAdmin,
		keyword:  keyword,
		log:      log,
	}
}

// Run long-polls for updates until ctx is cancelled. In-flight
// verification goroutines are drained before returning.
func (b *Bot) Run(ctx context.Context) error {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = 30
	updates := b.api.GetUpdatesChan(cfg)

	b.log.Info("update loop started", zap.String("bot", b.api.Self.UserName))

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			b.wg.Wait()
			b.log.Info("update loop stopped")
			return ctx.Err()
		case upd, ok := <-updates:
			if !ok {
				b.wg.Wait()
				return nil
			}
			b.handleUpdate(ctx, upd)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, upd tgbotapi.Update) {
	switch {
	case upd.CallbackQuery != nil:
		b.handleCallback(ctx, upd.CallbackQuery)
	case upd.Message == nil:
		return
	case upd.Message.IsCommand():
		b.handleCommand(upd.Message)
	default:
		b.handleText(upd.Message)
	}
}

// reply sends a plain-text message and logs delivery failures rather
// than surfacing them; Telegram send errors are not actionable here.
func (b *Bot) reply(chatID int64, text string) {
	if _, err := b.send.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		b.log.Warn("send failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}
