package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"log/slog"
	"strings"

	"github.com/kurierhq/kurier/internal/concurrency"
	"github.com/kurierhq/kurier/internal/config"
	"github.com/kurierhq/kurier/internal/errors"
	"github.com/kurierhq/kurier/internal/ingress"
	"github.com/kurierhq/kurier/internal/item"
	"github.com/kurierhq/kurier/internal/logger"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/shlex"
)

// excerptMaxRunes caps the review card body so the card plus the link and
// affordance stays inside Telegram's message limit.
const excerptMaxRunes = 900

type TelegramAdapter struct {
	botToken        string
	callbackToken   string
	updateTimeout   int
	reviewChatID    int64
	digestChatID    int64
	callbackHandler CallbackHandler
	commandHandler  CommandHandler
	bot             *tgbotapi.BotAPI
	updates         tgbotapi.UpdatesChannel
}

func NewTelegramAdapter(cfg config.TelegramConfig, callbackToken string, callbackHandler CallbackHandler, commandHandler CommandHandler) *TelegramAdapter {
	updateTimeout := cfg.UpdateTimeout
	if updateTimeout <= 0 {
		updateTimeout = config.DefaultTelegramUpdateTimeout
	}
	return &TelegramAdapter{
		botToken:        cfg.BotToken,
		callbackToken:   callbackToken,
		updateTimeout:   updateTimeout,
		reviewChatID:    cfg.ReviewChatID,
		digestChatID:    cfg.DigestChatID,
		callbackHandler: callbackHandler,
		commandHandler:  commandHandler,
	}
}

func (t *TelegramAdapter) Name() string {
	return "telegram"
}

func (t *TelegramAdapter) Start(ctx context.Context) error {
	var err error
	t.bot, err = tgbotapi.NewBotAPI(t.botToken)
	if err != nil {
		return errors.Wrap(err, "failed to init telegram bot")
	}

	slog.Info("Telegram Adapter started", "user", t.bot.Self.UserName)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = t.updateTimeout

	t.updates = t.bot.GetUpdatesChan(u)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case update := <-t.updates:
				t.dispatch(ctx, update)
			}
		}
	}()

	return nil
}

// dispatch hands one update to its own panic-guarded goroutine, so a fault in
// a single handler never stops the loop draining further updates.
func (t *TelegramAdapter) dispatch(ctx context.Context, update tgbotapi.Update) {
	concurrency.SafeGo(func() {
		t.handleUpdate(ctx, update)
	}, nil)
}

func (t *TelegramAdapter) Stop(ctx context.Context) error {
	if t.bot != nil {
		t.bot.StopReceivingUpdates()
	}
	return nil
}

func (t *TelegramAdapter) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		t.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil && update.Message.IsCommand():
		t.handleCommand(ctx, update.Message)
	}
}

// handleCallback forwards one inline-button press to the ingress. The raw
// callback data is "<token>:<action>:<itemId>"; only the first separator
// belongs to the token, the rest is the instruction.
func (t *TelegramAdapter) handleCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	evt := callbackEvent(cq)

	ack, err := t.callbackHandler(logger.WithTraceID(ctx, evt.ID), &evt)

	text := ackText(ack, err)
	if _, cbErr := t.bot.Request(tgbotapi.NewCallback(cq.ID, text)); cbErr != nil {
		slog.Error("Failed to answer callback query", "error", cbErr)
	}
	if err != nil {
		return
	}

	// Decision settled; retire the review card so the affordance cannot be
	// pressed again.
	if cq.Message != nil {
		del := tgbotapi.NewDeleteMessage(cq.Message.Chat.ID, cq.Message.MessageID)
		if _, delErr := t.bot.Request(del); delErr != nil {
			slog.Warn("Failed to delete review card", "error", delErr)
		}
	}
}

// callbackEvent normalizes one callback query. From may be nil on queries
// originating from anonymous channel admins.
func callbackEvent(cq *tgbotapi.CallbackQuery) ingress.Event {
	token, instruction, _ := strings.Cut(cq.Data, ":")

	actorID := ""
	metadata := map[string]string{}
	if cq.From != nil {
		actorID = fmt.Sprintf("%d", cq.From.ID)
		metadata["user_name"] = cq.From.UserName
	}
	return ingress.NewEvent("telegram", token, instruction, actorID, metadata)
}

func ackText(ack ingress.Ack, err error) string {
	if err != nil {
		return "Not applied: " + errors.Category(err)
	}
	if !ack.Applied {
		return fmt.Sprintf("Already %s", ack.Status)
	}
	return fmt.Sprintf("Item %s", ack.Status)
}

func (t *TelegramAdapter) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	if t.commandHandler == nil {
		return
	}
	if t.reviewChatID != 0 && msg.Chat.ID != t.reviewChatID {
		slog.Warn("Command from unexpected chat ignored", "chat_id", msg.Chat.ID)
		return
	}

	args, err := shlex.Split(msg.CommandArguments())
	if err != nil {
		args = strings.Fields(msg.CommandArguments())
	}

	reply, err := t.commandHandler(ctx, msg.Command(), args)
	if err != nil {
		reply = "Error: " + err.Error()
	}
	if reply == "" {
		return
	}

	out := tgbotapi.NewMessage(msg.Chat.ID, reply)
	if _, err := t.bot.Send(out); err != nil {
		slog.Error("Failed to send command reply", "error", err)
	}
}

// NotifyReview posts the review card: a trimmed excerpt, the origin link and
// the approve/reject affordance.
func (t *TelegramAdapter) NotifyReview(ctx context.Context, it *item.Item) error {
	var src item.SourceMessage
	if err := json.Unmarshal(it.Payload, &src); err != nil {
		return errors.Malformed("item payload is not a source message: " + err.Error())
	}

	msg := tgbotapi.NewMessage(t.reviewChatID, renderReview(it.ID, &src))
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	msg.ReplyMarkup = t.reviewKeyboard(it.ID)

	if _, err := t.bot.Send(msg); err != nil {
		return errors.Wrap(err, "failed to send review card")
	}

	slog.Debug("Review card sent", "item", it.ID, "chat_id", t.reviewChatID)
	return nil
}

func (t *TelegramAdapter) reviewKeyboard(itemID string) tgbotapi.InlineKeyboardMarkup {
	approve := t.callbackToken + ":" + ingress.ActionApprove + ":" + itemID
	reject := t.callbackToken + ":" + ingress.ActionReject + ":" + itemID
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Approve", approve),
			tgbotapi.NewInlineKeyboardButtonData("❌ Reject", reject),
		),
	)
}

func renderReview(itemID string, src *item.SourceMessage) string {
	var b strings.Builder

	title := src.ChannelTitle
	if title == "" {
		title = src.ChannelID
	}
	b.WriteString("<b>" + html.EscapeString(title) + "</b>\n")

	if url := src.MessageURL(); url != "" {
		b.WriteString(`<a href="` + url + `">source</a>` + "\n")
	}
	b.WriteString("\n")

	text := src.Text
	if text == "" && src.Media != nil {
		text = src.Media.Caption
	}
	b.WriteString(html.EscapeString(excerpt(text, excerptMaxRunes)))

	b.WriteString("\n\n<code>" + html.EscapeString(itemID) + "</code>")
	return b.String()
}

func excerpt(text string, maxRunes int) string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) <= maxRunes {
		return string(runes)
	}
	return string(runes[:maxRunes]) + "…"
}

// Publish sends plain text to the publication target chat.
func (t *TelegramAdapter) Publish(ctx context.Context, content string) error {
	if t.digestChatID == 0 {
		return errors.Malformed("digest chat is not configured")
	}

	msg := tgbotapi.NewMessage(t.digestChatID, content)
	msg.DisableWebPagePreview = true
	if _, err := t.bot.Send(msg); err != nil {
		return errors.Wrap(err, "failed to publish digest")
	}

	slog.Debug("Digest published", "chat_id", t.digestChatID)
	return nil
}

func (t *TelegramAdapter) Health(ctx context.Context) error {
	if t.bot == nil {
		return fmt.Errorf("telegram bot not initialized")
	}

	_, err := t.bot.GetMe()
	if err != nil {
		return errors.Wrap(err, "Telegram connection failed")
	}

	return nil
}
