package adapter

import (
	"context"
	"errors"
	"hwbot/pkg/logx"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	tele "gopkg.in/telebot.v4"

	kit "hwbot/internal/transport"
)

// Config configures the Telegram adapter.
type Config struct {
	Token string
	// APIURL overrides the Bot API base URL (tests, self-hosted bot api servers).
	APIURL string
	// Timeout bounds a single Bot API call.
	Timeout time.Duration
}

// Adapter is a send-only Telegram client. The relay never consumes updates,
// so no poller is started.
type Adapter struct {
	cfg Config
	log logx.Logger
	bot *tele.Bot
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		URL:     cfg.APIURL,
		Offline: true, // skip getMe at startup; delivery failures surface on send
		Client:  newHTTPClient(cfg.Timeout),
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Adapter{cfg: cfg, log: log, bot: b}, nil
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

const telegramTextLimit = 4000

// chunkRunes cuts s into pieces of at most limit runes.
func chunkRunes(s string, limit int) []string {
	if limit <= 0 {
		limit = telegramTextLimit
	}
	if utf8.RuneCountInString(s) <= limit {
		return []string{s}
	}
	rs := []rune(s)
	out := make([]string, 0, (len(rs)+limit-1)/limit)
	for len(rs) > limit {
		out = append(out, string(rs[:limit]))
		rs = rs[limit:]
	}
	return append(out, string(rs))
}

// chatUsername addresses a public channel or group by "@name".
type chatUsername string

func (u chatUsername) Recipient() string { return string(u) }

func recipient(to kit.ChatTarget) tele.Recipient {
	if to.ChatID != 0 {
		return &tele.Chat{ID: to.ChatID}
	}
	return chatUsername(to.Username)
}

func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if opt == nil {
		opt = &kit.SendOptions{}
	}
	if to.IsZero() {
		return kit.MessageRef{}, errors.New("telegram chat is empty")
	}

	chat := recipient(to)

	var first kit.MessageRef
	for i, chunk := range chunkRunes(text, telegramTextLimit) {
		if err := ctx.Err(); err != nil {
			return first, err
		}

		msg, err := a.bot.Send(chat, chunk, &tele.SendOptions{
			ParseMode:             opt.ParseMode,
			DisableWebPagePreview: opt.DisablePreview,
			ThreadID:              to.ThreadID,
		})
		if err != nil {
			return first, err
		}
		if i == 0 {
			first = kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: msg.ID}
			if msg.Chat != nil {
				first.ChatID = msg.Chat.ID
			}
		}
	}
	a.log.Debug("message sent", logx.Int64("chat_id", first.ChatID), logx.Int("len", len(text)))
	return first, nil
}
