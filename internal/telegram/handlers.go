package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/qadeerTruesofts/TelegramBot-For-X/internal/config"
	"github.com/qadeerTruesofts/TelegramBot-For-X/internal/verify"
)

func (b *Bot) handleCommand(msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start":
		b.reply(msg.Chat.ID, "Welcome! Use /register to register your X username.")
	case "register":
		b.reply(msg.Chat.ID, "Please send me your X username (without @).")
	case "add_task":
		b.handleAddTask(msg)
	case "broadcast":
		b.handleBroadcast(msg)
	}
}

// handleText treats any non-command message as a registration attempt,
// storing the sender's X handle.
func (b *Bot) handleText(msg *tgbotapi.Message) {
	user, err := b.store.RegisterUser(msg.From.ID, msg.Text)
	if err != nil {
		b.log.Error("registration failed", zap.Int64("telegram_id", msg.From.ID), zap.Error(err))
		b.reply(msg.Chat.ID, "❌ Something went wrong. Please send a valid X username.")
		return
	}
	b.log.Info("user registered",
		zap.Int64("telegram_id", msg.From.ID),
		zap.String("x_handle", user.XHandle))
	b.reply(msg.Chat.ID, fmt.Sprintf("✅ Registered X username: %s", user.XHandle))
}

func (b *Bot) handleAddTask(msg *tgbotapi.Message) {
	if !b.isAdmin(msg.From.ID) {
		b.log.Warn("unauthorized add_task attempt", zap.Int64("telegram_id", msg.From.ID))
		b.reply(msg.Chat.ID, "❌ You are not authorized to add tasks.")
		return
	}

	postURL, reward, err := parseAddTask(msg.CommandArguments())
	if err != nil {
		b.reply(msg.Chat.ID, "Usage: /add_task <tweet_url> <reward>")
		return
	}

	task, err := b.store.CreateTask(postURL, reward)
	if err != nil {
		b.log.Error("create task failed", zap.Error(err))
		b.reply(msg.Chat.ID, "❌ Could not create the task.")
		return
	}
	b.log.Info("task added",
		zap.Int64("task_id", task.ID),
		zap.Int64("admin", msg.From.ID),
		zap.String("url", task.PostURL),
		zap.Float64("reward", task.Reward))

	sent, failed := b.broadcastTask(task.ID, task.PostURL, task.Reward)
	b.reply(msg.Chat.ID, fmt.Sprintf(
		"✅ Task #%d broadcasted.\n📨 Sent: %d, ❌ Failed: %d", task.ID, sent, failed))
}

func (b *Bot) handleBroadcast(msg *tgbotapi.Message) {
	if !b.isAdmin(msg.From.ID) {
		b.log.Warn("unauthorized broadcast attempt", zap.Int64("telegram_id", msg.From.ID))
		b.reply(msg.Chat.ID, "❌ You are not authorized to broadcast messages.")
		return
	}

	text := strings.TrimSpace(msg.CommandArguments())
	if text == "" {
		b.reply(msg.Chat.ID, "Usage: /broadcast <message>")
		return
	}

	sent, failed := b.fanOut(func(id int64) error {
		_, err := b.send.Send(tgbotapi.NewMessage(id, "📢 Broadcast:\n\n"+text))
		return err
	})
	b.reply(msg.Chat.ID, fmt.Sprintf(
		"✅ Broadcast complete.\n📨 Sent: %d, ❌ Failed: %d", sent, failed))
}

// broadcastTask announces a new task to every registered user with a
// link button and a verify button.
func (b *Bot) broadcastTask(taskID int64, postURL string, reward float64) (sent, failed int) {
	markup := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonURL("Go to Post", postURL),
			tgbotapi.NewInlineKeyboardButtonData("Verify", verifyCallbackData(taskID)),
		),
	)
	text := taskAnnouncement(taskID, postURL, reward, b.keyword)

	return b.fanOut(func(id int64) error {
		out := tgbotapi.NewMessage(id, text)
		out.ParseMode = tgbotapi.ModeMarkdown
		out.ReplyMarkup = markup
		_, err := b.send.Send(out)
		return err
	})
}

// fanOut delivers to every registered user, isolating per-recipient
// failures so one blocked chat never stops the rest.
func (b *Bot) fanOut(deliver func(id int64) error) (sent, failed int) {
	ids, err := b.store.ListUserIDs()
	if err != nil {
		b.log.Error("list users failed", zap.Error(err))
		return 0, 0
	}
	for _, id := range ids {
		if err := deliver(id); err != nil {
			b.log.Warn("delivery failed", zap.Int64("telegram_id", id), zap.Error(err))
			failed++
			continue
		}
		sent++
	}
	return sent, failed
}

// handleCallback dispatches verify button presses. The verification runs
// in its own goroutine so a slow browser check never stalls the update
// loop; the button is acknowledged immediately.
func (b *Bot) handleCallback(ctx context.Context, query *tgbotapi.CallbackQuery) {
	if _, err := b.send.Request(tgbotapi.NewCallback(query.ID, "")); err != nil {
		b.log.Warn("callback ack failed", zap.Error(err))
	}

	taskID, err := parseVerifyCallback(query.Data)
	if err != nil {
		b.log.Warn("unrecognized callback", zap.String("data", query.Data))
		return
	}

	// Telegram omits Message for callbacks on messages older than 48h;
	// without it there is no chat to deliver the outcome to.
	if query.Message == nil {
		b.log.Warn("callback without accessible message", zap.String("data", query.Data))
		return
	}

	chatID := query.Message.Chat.ID
	messageID := query.Message.MessageID
	telegramID := query.From.ID
	firstName := query.From.FirstName

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		out, err := b.verifier.Verify(ctx, telegramID, taskID)
		if err != nil {
			b.log.Warn("verification attempt failed",
				zap.Int64("telegram_id", telegramID),
				zap.Int64("task_id", taskID),
				zap.Error(err))
			b.reply(chatID, "⚠️ Verification is temporarily unavailable. Please try again in a few minutes.")
			return
		}
		b.deliverOutcome(chatID, messageID, firstName, out)
	}()
}

// deliverOutcome tells the user how their attempt ended. A committed
// claim also rewrites the task message so the button row disappears.
func (b *Bot) deliverOutcome(chatID int64, messageID int, firstName string, out verify.Outcome) {
	if out.Status == verify.StatusCommitted {
		edit := tgbotapi.NewEditMessageText(chatID, messageID, fmt.Sprintf(
			"✅ Verified! %g Broke Coin will be sent to your wallet.", out.Reward))
		if _, err := b.send.Send(edit); err != nil {
			b.log.Warn("edit failed", zap.Int64("chat_id", chatID), zap.Error(err))
		}
	}
	b.reply(chatID, outcomeText(firstName, b.keyword, out))
}

// outcomeText maps a terminal Outcome to user-facing text.
func outcomeText(firstName, keyword string, out verify.Outcome) string {
	switch out.Status {
	case verify.StatusCommitted:
		return fmt.Sprintf(
			"🎉 Congratulations %s!! You have completed Task #%d.\n\n"+
				"💰 Reward: %g Broke Coin will be added to your account.",
			firstName, out.TaskID, out.Reward)
	case verify.StatusRejected:
		// Name the missing condition when the evidence determined it;
		// a race-lost rejection has both flags set and gets the generic text.
		switch {
		case out.ReplySatisfied && !out.RetweetSatisfied:
			return "❌ Verification failed.\nYour reply was found, but you have not retweeted the task post."
		case !out.ReplySatisfied && out.RetweetSatisfied:
			return fmt.Sprintf(
				"❌ Verification failed.\nYour retweet was found, but no reply with '%s' was found.", keyword)
		default:
			return fmt.Sprintf(
				"❌ Verification failed.\nMake sure you commented '%s' and retweeted the task post.", keyword)
		}
	case verify.StatusAlreadyClaimed:
		return "❌ You already claimed this task."
	case verify.StatusNotRegistered:
		return "❌ You are not registered. Use /register first."
	case verify.StatusUnknownTask:
		return "❌ This task does not exist."
	default:
		return "⚠️ Verification is temporarily unavailable. Please try again in a few minutes."
	}
}

func taskAnnouncement(taskID int64, postURL string, reward float64, keyword string) string {
	return fmt.Sprintf(
		"**📌 New Task #%d!**\n\n"+
			"**Comment %s on this post and Retweet this post.**\n\n"+
			"💰 Reward: %g Broke Coin\n"+
			"🔗 Tweet: %s",
		taskID, keyword, reward, postURL)
}

func verifyCallbackData(taskID int64) string {
	return fmt.Sprintf("verify|%d|0", taskID)
}

// parseVerifyCallback extracts the task id from "verify|<id>|..." data.
func parseVerifyCallback(data string) (int64, error) {
	parts := strings.Split(data, "|")
	if len(parts) < 2 || parts[0] != "verify" {
		return 0, errors.New("not a verify callback")
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad task id %q: %w", parts[1], err)
	}
	return id, nil
}

// parseAddTask splits "/add_task <tweet_url> <reward>" arguments.
func parseAddTask(args string) (postURL string, reward float64, err error) {
	fields := strings.Fields(args)
	if len(fields) < 2 {
		return "", 0, errors.New("expected <tweet_url> <reward>")
	}
	if err := config.ValidatePostURL(fields[0]); err != nil {
		return "", 0, err
	}
	reward, err = strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return "", 0, fmt.Errorf("bad reward %q: %w", fields[1], err)
	}
	if reward <= 0 {
		return "", 0, errors.New("reward must be positive")
	}
	return fields[0], reward, nil
}
