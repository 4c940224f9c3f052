package zepix

import (
	"context"
	"fmt"
	"time"

	"github.com/raykavin/zepix/pkg/api"
	"github.com/raykavin/zepix/pkg/broker"
	"github.com/raykavin/zepix/pkg/broker/mt5"
	"github.com/raykavin/zepix/pkg/core"
	"github.com/raykavin/zepix/pkg/logger"
	"github.com/raykavin/zepix/pkg/reentry"
	"github.com/raykavin/zepix/pkg/safety"
	"github.com/raykavin/zepix/pkg/storage"
	"golang.org/x/sync/errgroup"
)

// DefaultLog is the default logger instance
var DefaultLog logger.Logger

// Bot wires storage, broker, engine and notifiers around the chain monitor
type Bot struct {
	settings core.Settings
	log      logger.Logger
	clock    core.Clock
	replay   *replayClock

	repo     core.Repository
	store    *storage.ChainStore
	client   core.ExecutionClient
	paper    *broker.Paper
	governor *safety.Governor

	engine   *reentry.Engine
	executor *reentry.Executor
	monitor  *reentry.Monitor

	extraNotifiers []core.Notifier
	notifier       core.Notifier
	telegram       core.NotifierWithStart
	api            *api.Server
}

// NewBot creates a bot from validated settings
func NewBot(settings core.Settings, options ...Option) (*Bot, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	bot := &Bot{
		settings: settings,
		log:      DefaultLog,
		clock:    time.Now,
	}

	for _, option := range options {
		option(bot)
	}

	if err := initializeStorage(bot); err != nil {
		return nil, err
	}

	governor, err := safety.NewGovernor(settings.Safety, bot.store, bot.log, safety.WithClock(bot.clock))
	if err != nil {
		bot.store.Close()
		return nil, err
	}
	bot.governor = governor

	client := initializeBroker(bot)

	bot.engine = reentry.NewEngine(settings, bot.store, governor, bot.log, reentry.WithEngineClock(bot.clock))
	bot.executor = reentry.NewExecutor(client, bot.store, governor, bot.log)
	bot.executor.SetClock(bot.clock)
	bot.monitor = reentry.NewMonitor(bot.engine, bot.executor, client, bot.store, bot.log)

	if bot.paper != nil && bot.replay == nil {
		bot.paper.SetCloseHandler(bot.monitor.OnTradeClosed)
	}

	if err := initializeNotifications(bot); err != nil {
		bot.store.Close()
		return nil, err
	}

	if settings.HTTP.Enabled && bot.replay == nil {
		bot.api = api.NewServer(bot, bot.log)
	}

	return bot, nil
}

// initializeStorage opens the chain store, by default from the storage settings
func initializeStorage(bot *Bot) error {
	if bot.repo == nil {
		store, err := storage.Open(bot.settings.Storage)
		if err != nil {
			return fmt.Errorf("failed to open storage: %w", err)
		}
		bot.store = store
		return nil
	}

	store, err := storage.NewChainStore(bot.repo)
	if err != nil {
		return fmt.Errorf("failed to load storage: %w", err)
	}
	bot.store = store
	return nil
}

// initializeBroker builds the execution client and wraps it with the bounded retry
func initializeBroker(bot *Bot) core.ExecutionClient {
	client := bot.client

	if client == nil {
		if bot.replay != nil || bot.settings.Broker.Type == "paper" {
			bot.paper = broker.NewPaper(
				broker.WithPaperClock(bot.clock),
				broker.WithPaperSymbols(bot.settings.Symbol),
			)
			client = bot.paper
		} else {
			client = mt5.NewClient(mt5.Config{
				Endpoint: bot.settings.Broker.Endpoint,
				Token:    bot.settings.Broker.Token,
				Timeout:  bot.settings.Broker.Timeout,
			})
		}
	}

	bot.client = broker.NewRetry(client, bot.log, bot.settings.Broker.RetryAttempts,
		bot.settings.Broker.RetryMin, bot.settings.Broker.RetryMax)
	return bot.client
}

// Paper returns the paper broker, nil when orders go to a real broker
func (b *Bot) Paper() *broker.Paper {
	return b.paper
}

// Status implements core.Operator
func (b *Bot) Status() string {
	return string(b.monitor.Status())
}

// Pause implements core.Operator
func (b *Bot) Pause() {
	b.monitor.Pause()
}

// Resume implements core.Operator
func (b *Bot) Resume() {
	b.monitor.Resume()
}

// Chains implements core.Operator
func (b *Bot) Chains() []core.Chain {
	return b.store.All()
}

// Chain implements core.Operator
func (b *Bot) Chain(chainID string) (core.Chain, error) {
	return b.store.Get(chainID)
}

// Orders implements core.Operator
func (b *Bot) Orders(chainID string) []core.ChainOrder {
	return b.store.Orders(chainID)
}

// Safety implements core.Operator
func (b *Bot) Safety() (core.Counters, core.SafetySettings) {
	return b.governor.Snapshot(), b.governor.Settings()
}

// StopChain implements core.Operator
func (b *Bot) StopChain(ctx context.Context, chainID string) error {
	return b.monitor.StopChain(ctx, chainID)
}

// Submit implements core.Operator
func (b *Bot) Submit(ctx context.Context, event core.TradeClosed) error {
	return b.monitor.Submit(ctx, event)
}

// SetQuote implements core.Operator. Quotes drive the paper broker: they price new orders and
// close positions whose stop loss or take profit they cross. Real brokers price themselves.
func (b *Bot) SetQuote(symbol string, bid, ask float64) error {
	if b.paper == nil {
		return core.ErrQuotesUnsupported
	}

	quote := core.Quote{Symbol: symbol, Bid: bid, Ask: ask}
	if !quote.Valid() {
		return fmt.Errorf("invalid quote for %s: bid %g ask %g", symbol, bid, ask)
	}

	b.paper.SetQuote(symbol, bid, ask)
	return nil
}

// Run starts the chat bot, the operator API and the monitor, and blocks until ctx is done or
// one of them fails
func (b *Bot) Run(ctx context.Context) error {
	if b.replay != nil {
		return fmt.Errorf("replay bots are driven by Replay")
	}

	if b.telegram != nil {
		b.telegram.Start()
	}

	group, ctx := errgroup.WithContext(ctx)

	if b.api != nil {
		group.Go(func() error {
			return b.api.ListenAndServe(ctx, b.settings.HTTP.Listen)
		})
	}

	group.Go(func() error {
		return b.monitor.Run(ctx)
	})

	b.log.Infof("zepix started with %d active chains", len(b.store.ListActive()))
	return group.Wait()
}

// Close releases the storage
func (b *Bot) Close() error {
	return b.store.Close()
}
