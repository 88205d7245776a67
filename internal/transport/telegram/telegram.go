// Package telegram delivers messages through the Telegram Bot API. Only
// sending is used; the bot never polls for updates.
package telegram

import (
	"context"
	"html"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	tele "gopkg.in/telebot.v4"

	"leaguewatch/internal/outbox"
	"leaguewatch/internal/transport"
	logx "leaguewatch/pkg/logx"
)

const textLimit = 4000

type Config struct {
	Token string
	// AlertChatID receives operator alerts from the log sink; 0 disables.
	AlertChatID    int64
	DisablePreview bool
	// Offline skips the getMe handshake. Used in tests.
	Offline bool
}

type Sender struct {
	cfg Config
	log logx.Logger
	bot *tele.Bot
}

func New(cfg Config, log logx.Logger) (*Sender, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		Offline: cfg.Offline,
	})
	if err != nil {
		return nil, errors.Wrap(err, "telegram bot")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Sender{cfg: cfg, log: log.With(logx.String("comp", "transport.telegram")), bot: b}, nil
}

func (s *Sender) Name() string { return "telegram" }

// Send delivers m to the chat named by its channel id, "chat" or
// "chat:thread" for forum topics.
func (s *Sender) Send(ctx context.Context, m outbox.Message) (transport.Receipt, error) {
	chatID, threadID, err := ParseTarget(m.ChannelID)
	if err != nil {
		return transport.Receipt{}, err
	}
	ref, err := s.sendText(ctx, chatID, threadID, FormatHTML(m.Content))
	if err != nil {
		return transport.Receipt{}, err
	}
	return transport.Receipt{Ref: ref}, nil
}

// SendAlert implements logx.AlertSender.
func (s *Sender) SendAlert(ctx context.Context, text string) error {
	if s.cfg.AlertChatID == 0 {
		return nil
	}
	_, err := s.sendText(ctx, s.cfg.AlertChatID, 0, html.EscapeString(text))
	return err
}

func (s *Sender) sendText(ctx context.Context, chatID int64, threadID int, text string) (string, error) {
	chat := &tele.Chat{ID: chatID}
	var first string
	for _, chunk := range splitText(text, textLimit) {
		if err := ctx.Err(); err != nil {
			return first, err
		}
		msg, err := s.bot.Send(chat, chunk, &tele.SendOptions{
			ParseMode:             tele.ModeHTML,
			DisableWebPagePreview: s.cfg.DisablePreview,
			ThreadID:              threadID,
		})
		if err != nil {
			return first, classify(err)
		}
		if first == "" && msg != nil {
			first = strconv.FormatInt(chatID, 10) + "/" + strconv.Itoa(msg.ID)
		}
	}
	return first, nil
}

// classify marks errors that retrying cannot fix.
func classify(err error) error {
	switch {
	case errors.Is(err, tele.ErrChatNotFound), errors.Is(err, tele.ErrBlockedByUser), errors.Is(err, tele.ErrKickedFromGroup):
		return errors.Mark(err, transport.ErrInvalidTarget)
	}
	return err
}

// ParseTarget reads "chat" or "chat:thread".
func ParseTarget(channelID string) (int64, int, error) {
	chatPart, threadPart, hasThread := strings.Cut(strings.TrimSpace(channelID), ":")
	chatID, err := strconv.ParseInt(chatPart, 10, 64)
	if err != nil || chatID == 0 {
		return 0, 0, errors.Wrapf(transport.ErrInvalidTarget, "telegram chat id %q", channelID)
	}
	if !hasThread {
		return chatID, 0, nil
	}
	threadID, err := strconv.Atoi(threadPart)
	if err != nil || threadID < 0 {
		return 0, 0, errors.Wrapf(transport.ErrInvalidTarget, "telegram thread id %q", channelID)
	}
	return chatID, threadID, nil
}

// FormatHTML renders content in Telegram's HTML parse mode.
func FormatHTML(c outbox.Content) string {
	var b strings.Builder
	if c.Title != "" {
		b.WriteString("<b>")
		b.WriteString(html.EscapeString(c.Title))
		b.WriteString("</b>\n")
	}
	b.WriteString(html.EscapeString(c.Body))
	for _, f := range c.Fields {
		b.WriteString("\n")
		b.WriteString(html.EscapeString(f.Name))
		b.WriteString(": <b>")
		b.WriteString(html.EscapeString(f.Value))
		b.WriteString("</b>")
	}
	if c.URL != "" {
		b.WriteString("\n")
		b.WriteString(`<a href="` + html.EscapeString(c.URL) + `">link</a>`)
	}
	if c.Footer != "" {
		b.WriteString("\n<i>")
		b.WriteString(html.EscapeString(c.Footer))
		b.WriteString("</i>")
	}
	return strings.TrimSpace(b.String())
}

// splitText cuts long text into chunks under limit runes, preferring
// newline boundaries and never cutting inside an HTML tag.
func splitText(s string, limit int) []string {
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}
	out := make([]string, 0, (len(rs)+limit-1)/limit)
	start := 0
	for start < len(rs) {
		end := min(start+limit, len(rs))
		if end < len(rs) {
			for i := end - 1; i > start; i-- {
				// Avoid extremely small chunks.
				if rs[i] == '\n' && i-start >= limit/3 {
					end = i + 1
					break
				}
			}
			lastOpen, lastClose := -1, -1
			for i := start; i < end; i++ {
				switch rs[i] {
				case '<':
					lastOpen = i
				case '>':
					lastClose = i
				}
			}
			if lastOpen > lastClose && lastOpen > start+1 {
				end = lastOpen
			}
		}
		out = append(out, strings.TrimRight(string(rs[start:end]), "\n"))
		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}
