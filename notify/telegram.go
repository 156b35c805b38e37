package notify

import (
	"context"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Telegram sends messages to one chat through the Bot API.
type Telegram struct {
	// Chat is a numeric chat id or an @channel username.
	Chat string

	bot *tgbotapi.BotAPI
	log *zap.SugaredLogger
}

// TelegramOption configures a Telegram notifier.
type TelegramOption func(*Telegram)

// WithTelegramLogger sets the logger the Telegram notifier uses.
func WithTelegramLogger(logger *zap.SugaredLogger) TelegramOption {
	return func(t *Telegram) {
		t.log = logger
	}
}

// WithTelegramEndpoint points the bot at another Bot API server. The
// endpoint is a format string taking the token and the method name, like
// tgbotapi.APIEndpoint.
func WithTelegramEndpoint(endpoint string) TelegramOption {
	return func(t *Telegram) {
		t.bot.SetAPIEndpoint(endpoint)
	}
}

// NewTelegram returns a notifier posting to chat as the bot with token.
// Unlike tgbotapi.NewBotAPI it does not call the API until the first Send.
func NewTelegram(token, chat string, options ...TelegramOption) (*Telegram, error) {
	if token == "" {
		return nil, errors.New("telegram bot token must be specified")
	}
	chat = strings.TrimSpace(chat)
	if chat == "" {
		return nil, errors.New("telegram chat id must be specified")
	}
	if !strings.HasPrefix(chat, "@") {
		if _, err := strconv.ParseInt(chat, 10, 64); err != nil {
			return nil, errors.Errorf("telegram chat id %q is neither numeric nor an @channel", chat)
		}
	}
	bot := &tgbotapi.BotAPI{
		Token:  token,
		Client: initHTTPClient(defaultTimeout),
		Buffer: 100,
	}
	bot.SetAPIEndpoint(tgbotapi.APIEndpoint)
	t := &Telegram{
		Chat: chat,
		bot:  bot,
		log:  zap.NewNop().Sugar(),
	}
	for _, o := range options {
		o(t)
	}
	return t, nil
}

func (t *Telegram) message(text string) tgbotapi.MessageConfig {
	if strings.HasPrefix(t.Chat, "@") {
		return tgbotapi.NewMessageToChannel(t.Chat, text)
	}
	id, _ := strconv.ParseInt(t.Chat, 10, 64)
	return tgbotapi.NewMessage(id, text)
}

// Send implements followerwatch.Notifier. The Bot API client takes no
// context, so Send returns when ctx is done even if the request is still
// in flight; the request itself is bounded by the client timeout.
func (t *Telegram) Send(ctx context.Context, message string) error {
	type result struct {
		msg tgbotapi.Message
		err error
	}
	done := make(chan result, 1)
	go func() {
		msg, err := t.bot.Send(t.message(message))
		done <- result{msg, err}
	}()
	select {
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "telegram send")
	case r := <-done:
		if r.err != nil {
			return errors.Wrap(r.err, "error calling telegram sendMessage")
		}
		t.log.Infow("sent telegram message",
			"chat", t.Chat,
			"message_id", r.msg.MessageID)
		return nil
	}
}
