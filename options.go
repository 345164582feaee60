package intrabot

import (
	"github.com/raykavin/intrabot/core"
	"github.com/raykavin/intrabot/exchange"
	"github.com/raykavin/intrabot/notification"
	"github.com/raykavin/intrabot/pkg/detrand"
)

// Option customizes a Bot before the components are wired.
type Option func(*Bot)

// WithDataAdapter replaces the CSV feed with another candle source.
func WithDataAdapter(adapter core.DataAdapter) Option {
	return func(b *Bot) { b.feed = adapter }
}

// WithBroker replaces the default simulated broker.
func WithBroker(broker *exchange.SimulatedBroker) Option {
	return func(b *Bot) { b.broker = broker }
}

// WithStorage replaces the configured storage backend with the given sink.
func WithStorage(manager core.DataManager) Option {
	return func(b *Bot) { b.storeInner = manager }
}

// WithNotifier attaches a notification channel; the default discards events.
func WithNotifier(notifier core.Notifier) Option {
	return func(b *Bot) { b.notifier = notifier }
}

// WithTelegram builds the Telegram notifier from the bot configuration and
// attaches the bot itself as the status provider.
func WithTelegram() Option {
	return func(b *Bot) {
		if !b.cfg.Telegram.Enabled || b.cfg.Telegram.Token == "" {
			return
		}
		tg, err := notification.NewTelegram(b.cfg.Telegram.Token, b.cfg.Telegram.Users, b.log,
			notification.WithStatusProvider(b))
		if err != nil {
			b.log.WithError(err).Error("telegram notifier disabled")
			return
		}
		tg.Start()
		b.notifier = tg
	}
}

// WithRandomSource replaces the deterministic random source, mainly for tests
// that need a specific seed independent of the configuration.
func WithRandomSource(rng *detrand.Source) Option {
	return func(b *Bot) { b.rng = rng }
}
