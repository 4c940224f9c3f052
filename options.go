package zepix

import (
	"github.com/raykavin/zepix/pkg/core"
	"github.com/raykavin/zepix/pkg/logger"
)

// Option is a functional option for configuring a Bot instance
type Option func(*Bot)

// WithReplay runs the bot against recorded quotes. The paper broker is used regardless of the
// broker settings and time follows the replayed ticks.
func WithReplay() Option {
	return func(bot *Bot) {
		bot.replay = &replayClock{}
		bot.clock = bot.replay.Now
	}
}

// WithStorage sets the repository of the bot, by default it is opened from the storage settings
func WithStorage(repo core.Repository) Option {
	return func(bot *Bot) {
		bot.repo = repo
	}
}

// WithBroker replaces the execution client built from the broker settings
func WithBroker(client core.ExecutionClient) Option {
	return func(bot *Bot) {
		bot.client = client
	}
}

// WithNotifier registers an additional notifier, next to telegram and email
func WithNotifier(notifier core.Notifier) Option {
	return func(bot *Bot) {
		bot.extraNotifiers = append(bot.extraNotifiers, notifier)
	}
}

// WithLogger replaces DefaultLog
func WithLogger(log logger.Logger) Option {
	return func(bot *Bot) {
		bot.log = log
	}
}

// WithClock replaces the wall clock
func WithClock(clock core.Clock) Option {
	return func(bot *Bot) {
		bot.clock = clock
	}
}
