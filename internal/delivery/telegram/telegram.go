// Package telegram delivers notifications through the Telegram Bot API.
//
// Target ids are chat ids, optionally with a forum thread: "-1001234" or
// "-1001234/42".
package telegram

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"pushwatch/pkg/logx"
)

type Config struct {
	Token string
	// APIURL overrides the Bot API endpoint (tests, local bot API servers).
	APIURL  string
	Timeout time.Duration
	// Offline skips the getMe handshake on construction.
	Offline bool
}

type Sender struct {
	bot *tele.Bot
	log logx.Logger
}

func New(cfg Config, log logx.Logger) (*Sender, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		URL:     cfg.APIURL,
		Client:  &http.Client{Timeout: cfg.Timeout},
		Offline: cfg.Offline,
	})
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	if !cfg.Offline && b.Me != nil {
		log.Info("telegram bot ready", logx.String("username", b.Me.Username))
	}
	return &Sender{bot: b, log: log}, nil
}

func (s *Sender) Name() string { return "telegram" }

func (s *Sender) Send(ctx context.Context, targetID, title, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	chatID, threadID, err := ParseTarget(targetID)
	if err != nil {
		return err
	}
	_, err = s.bot.Send(&tele.Chat{ID: chatID}, FormatHTML(title, body), &tele.SendOptions{
		ParseMode:             tele.ModeHTML,
		DisableWebPagePreview: true,
		ThreadID:              threadID,
	})
	return err
}

// ParseTarget splits "chat[/thread]" into its numeric parts.
func ParseTarget(id string) (chatID int64, threadID int, err error) {
	chatPart, threadPart, hasThread := strings.Cut(strings.TrimSpace(id), "/")
	chatID, err = strconv.ParseInt(chatPart, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("telegram target %q: invalid chat id: %w", id, err)
	}
	if hasThread {
		threadID, err = strconv.Atoi(threadPart)
		if err != nil {
			return 0, 0, fmt.Errorf("telegram target %q: invalid thread id: %w", id, err)
		}
	}
	return chatID, threadID, nil
}

// FormatHTML renders the title in bold above the escaped body.
func FormatHTML(title, body string) string {
	return "<b>" + html.EscapeString(title) + "</b>\n" + html.EscapeString(body)
}
