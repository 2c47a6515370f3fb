package telegram

import (
	"context"
	"errors"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"jetstream/internal/transport"
)

type Config struct {
	Token string
}

// Adapter is a send-only Telegram client. The service never consumes
// updates, so no poller is started.
type Adapter struct {
	bot *tele.Bot
}

func New(cfg Config) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Client: nil, // telebot default
	})
	if err != nil {
		return nil, err
	}
	return &Adapter{bot: b}, nil
}

func (a *Adapter) SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) error {
	if a == nil || a.bot == nil {
		return errors.New("telegram adapter not initialized")
	}

	sendOpt := &tele.SendOptions{}
	if opt != nil {
		sendOpt.ParseMode = opt.ParseMode
		sendOpt.DisableWebPagePreview = opt.DisablePreview
	}

	// telebot has no context-aware send; run it in a goroutine and honor
	// ctx so a hung API call cannot block the caller.
	done := make(chan error, 1)
	go func() {
		_, err := a.bot.Send(tele.ChatID(to.ChatID), text, sendOpt)
		done <- err
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(30 * time.Second):
		return errors.New("telegram send timed out")
	}
}
