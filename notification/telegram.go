// Package notification delivers human-facing events from a running
// simulation. Delivery failures are logged and never propagate into the
// pipeline.
package notification

import (
	"fmt"
	"strings"
	"time"

	"slices"

	"github.com/raykavin/intrabot/core"
	tb "gopkg.in/tucnak/telebot.v2"
)

const pollingTimeout = 10 * time.Second

// StatusProvider answers the read-only chat commands. The bot facade
// implements it.
type StatusProvider interface {
	StatusLine() string
	SummaryText() string
}

// Telegram implements core.Notifier over the Telegram bot API. The chat
// surface is read-only: a simulation cannot be driven from chat, only
// observed through /status and /summary.
type Telegram struct {
	users       []int
	status      StatusProvider
	defaultMenu *tb.ReplyMarkup
	client      *tb.Bot
	log         core.Logger
}

// TelegramOption configures a Telegram notifier.
type TelegramOption func(t *Telegram)

// WithStatusProvider enables the /status and /summary commands.
func WithStatusProvider(p StatusProvider) TelegramOption {
	return func(t *Telegram) { t.status = p }
}

// NewTelegram creates the notifier. Only user IDs in users receive messages
// or may issue commands.
func NewTelegram(token string, users []int, log core.Logger, options ...TelegramOption) (*Telegram, error) {
	menu := &tb.ReplyMarkup{ResizeReplyKeyboard: true}
	poller := &tb.LongPoller{Timeout: pollingTimeout}

	middleware := tb.NewMiddlewarePoller(poller, func(u *tb.Update) bool {
		if u.Message == nil || u.Message.Sender == nil {
			log.Error("message or sender is nil ", u)
			return false
		}
		if slices.Contains(users, int(u.Message.Sender.ID)) {
			return true
		}
		log.Error("unauthorized user ", u.Message.Sender.ID)
		return false
	})

	client, err := tb.NewBot(tb.Settings{
		ParseMode: tb.ModeMarkdown,
		Token:     token,
		Poller:    middleware,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	menu.Reply(menu.Row(menu.Text("/status"), menu.Text("/summary"), menu.Text("/help")))

	if err := client.SetCommands([]tb.Command{
		{Text: "/help", Description: "Display help instructions"},
		{Text: "/status", Description: "Current session status"},
		{Text: "/summary", Description: "Per-strategy trade summary"},
	}); err != nil {
		return nil, fmt.Errorf("failed to set commands: %w", err)
	}

	t := &Telegram{
		users:       users,
		client:      client,
		defaultMenu: menu,
		log:         log,
	}
	for _, option := range options {
		option(t)
	}

	client.Handle("/help", t.helpHandle)
	client.Handle("/status", t.statusHandle)
	client.Handle("/summary", t.summaryHandle)

	return t, nil
}

// Start begins polling and greets the authorized users.
func (t *Telegram) Start() {
	go t.client.Start()
	t.broadcast("Session started.", t.defaultMenu)
}

// Stop halts the poller.
func (t *Telegram) Stop() {
	t.client.Stop()
}

// Notify sends a message to all authorized users.
func (t *Telegram) Notify(text string) {
	t.broadcast(text)
}

func (t *Telegram) broadcast(text string, options ...any) {
	for _, user := range t.users {
		_, err := t.client.Send(&tb.User{ID: int64(user)}, text, options...)
		if err != nil {
			t.log.WithError(err).Error("failed to send notification")
		}
	}
}

func (t *Telegram) sendMessage(to *tb.User, text string, options ...any) {
	_, err := t.client.Send(to, text, options...)
	if err != nil {
		t.log.WithError(err).Error("failed to send message")
	}
}

func (t *Telegram) helpHandle(m *tb.Message) {
	commands, err := t.client.GetCommands()
	if err != nil {
		t.log.WithError(err).Error("failed to get commands")
		return
	}

	lines := make([]string, 0, len(commands))
	for _, command := range commands {
		lines = append(lines, fmt.Sprintf("/%s - %s", command.Text, command.Description))
	}
	t.sendMessage(m.Sender, strings.Join(lines, "\n"))
}

func (t *Telegram) statusHandle(m *tb.Message) {
	if t.status == nil {
		t.sendMessage(m.Sender, "Status is not available.")
		return
	}
	t.sendMessage(m.Sender, fmt.Sprintf("Status: `%s`", t.status.StatusLine()))
}

func (t *Telegram) summaryHandle(m *tb.Message) {
	if t.status == nil {
		t.sendMessage(m.Sender, "Summary is not available.")
		return
	}
	text := t.status.SummaryText()
	if text == "" {
		t.sendMessage(m.Sender, "No trades registered.")
		return
	}
	t.sendMessage(m.Sender, fmt.Sprintf("```\n%s\n```", text))
}

// OnOrder notifies users about terminal order states.
func (t *Telegram) OnOrder(order core.Order) {
	var title string
	switch order.Status {
	case core.OrderStatusFilled:
		title = fmt.Sprintf("✅ ORDER FILLED - %s", order.Symbol)
	case core.OrderStatusRejected:
		title = fmt.Sprintf("❌ ORDER REJECTED - %s", order.Symbol)
	default:
		title = fmt.Sprintf("ORDER UPDATE - %s", order.Symbol)
	}
	t.Notify(fmt.Sprintf("%s\n-----\n%s", title, order))
}

// OnError notifies users about pipeline errors.
func (t *Telegram) OnError(err error) {
	var sb strings.Builder
	sb.WriteString("🛑 ERROR\n-----\n")
	sb.WriteString(err.Error())
	t.Notify(sb.String())
}
