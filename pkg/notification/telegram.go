// Package notification provides implementations for various notification services
package notification

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"slices"

	"github.com/raykavin/zepix/pkg/core"
	"github.com/raykavin/zepix/pkg/report"
	log "github.com/sirupsen/logrus"
	tb "gopkg.in/tucnak/telebot.v2"
)

// Command pattern regex for commands taking a chain id
var (
	chainRegexp     = regexp.MustCompile(`/chain\s+(?P<id>[\w-]+)`)
	stopChainRegexp = regexp.MustCompile(`/stopchain\s+(?P<id>[\w-]+)`)
)

const commandTimeout = 10 * time.Second

// Telegram implements the core.NotifierWithStart interface
type telegram struct {
	settings    core.TelegramSettings
	operator    core.Operator
	defaultMenu *tb.ReplyMarkup
	client      *tb.Bot
}

// Option is a function that configures a telegram instance
type Option func(telegram *telegram)

// NewTelegram creates and initializes a new Telegram service
func NewTelegram(operator core.Operator, settings core.TelegramSettings, options ...Option) (core.NotifierWithStart, error) {
	// Initialize menu and poller
	menu := &tb.ReplyMarkup{ResizeReplyKeyboard: true}
	poller := &tb.LongPoller{Timeout: 10 * time.Second}

	// Create user authorization middleware
	userMiddleware := createAuthMiddleware(poller, settings.Users)

	// Initialize bot client
	client, err := tb.NewBot(tb.Settings{
		ParseMode: tb.ModeMarkdown,
		Token:     settings.Token,
		Poller:    userMiddleware,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	// Setup keyboard and commands
	setupKeyboard(menu)
	if err := setupCommands(client); err != nil {
		return nil, fmt.Errorf("failed to set commands: %w", err)
	}

	bot := &telegram{
		operator:    operator,
		client:      client,
		settings:    settings,
		defaultMenu: menu,
	}

	for _, option := range options {
		option(bot)
	}

	registerHandlers(client, bot)

	return bot, nil
}

// createAuthMiddleware creates a middleware to validate authorized users
func createAuthMiddleware(poller *tb.LongPoller, users []int) *tb.MiddlewarePoller {
	return tb.NewMiddlewarePoller(poller, func(u *tb.Update) bool {
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
}

// setupKeyboard configures the reply keyboard layout
func setupKeyboard(menu *tb.ReplyMarkup) {
	var (
		statusBtn = menu.Text("/status")
		chainsBtn = menu.Text("/chains")
		safetyBtn = menu.Text("/safety")
		profitBtn = menu.Text("/profit")
		pauseBtn  = menu.Text("/pause")
		resumeBtn = menu.Text("/resume")
	)

	menu.Reply(
		menu.Row(statusBtn, chainsBtn, safetyBtn, profitBtn),
		menu.Row(pauseBtn, resumeBtn),
	)
}

// setupCommands configures available bot commands
func setupCommands(client *tb.Bot) error {
	return client.SetCommands([]tb.Command{
		{Text: "/help", Description: "Display help instructions"},
		{Text: "/status", Description: "Check monitor status"},
		{Text: "/chains", Description: "List active chains"},
		{Text: "/chain", Description: "Show a chain and its orders"},
		{Text: "/safety", Description: "Daily recovery counters"},
		{Text: "/profit", Description: "Summary of chain results"},
		{Text: "/pause", Description: "Pause re-entry decisions"},
		{Text: "/resume", Description: "Resume re-entry decisions"},
		{Text: "/stopchain", Description: "Stop an active chain"},
	})
}

// registerHandlers registers all command handlers
func registerHandlers(client *tb.Bot, bot *telegram) {
	client.Handle("/help", bot.HelpHandle)
	client.Handle("/status", bot.StatusHandle)
	client.Handle("/chains", bot.ChainsHandle)
	client.Handle("/chain", bot.ChainHandle)
	client.Handle("/safety", bot.SafetyHandle)
	client.Handle("/profit", bot.ProfitHandle)
	client.Handle("/pause", bot.PauseHandle)
	client.Handle("/resume", bot.ResumeHandle)
	client.Handle("/stopchain", bot.StopChainHandle)
}

// Start begins the Telegram bot and notifies all authorized users
func (t *telegram) Start() {
	go t.client.Start()
	t.sendMessageWithOptions("Zepix initialized.", t.defaultMenu)
}

// Notify sends a message to all authorized users
func (t *telegram) Notify(text string) {
	for _, user := range t.settings.Users {
		_, err := t.client.Send(&tb.User{ID: int64(user)}, text)
		if err != nil {
			log.WithError(err).Error("failed to send notification")
		}
	}
}

// sendMessageWithOptions sends a message to all authorized users with additional options
func (t *telegram) sendMessageWithOptions(text string, options ...interface{}) {
	for _, user := range t.settings.Users {
		_, err := t.client.Send(&tb.User{ID: int64(user)}, text, options...)
		if err != nil {
			log.WithError(err).Error("failed to send notification with options")
		}
	}
}

// sendMessage sends a message to a specific user
func (t *telegram) sendMessage(to *tb.User, text string, options ...interface{}) {
	_, err := t.client.Send(to, text, options...)
	if err != nil {
		log.WithError(err).Error("failed to send message")
	}
}

// HelpHandle displays available commands
func (t *telegram) HelpHandle(m *tb.Message) {
	commands, err := t.client.GetCommands()
	if err != nil {
		log.WithError(err).Error("failed to get commands")
		t.OnError(err)
		return
	}

	lines := make([]string, 0, len(commands))
	for _, command := range commands {
		lines = append(lines, fmt.Sprintf("/%s - %s", command.Text, command.Description))
	}

	t.sendMessage(m.Sender, strings.Join(lines, "\n"))
}

// StatusHandle displays the current monitor status
func (t *telegram) StatusHandle(m *tb.Message) {
	t.sendMessage(m.Sender, fmt.Sprintf("Status: `%s`", t.operator.Status()))
}

// ChainsHandle lists active chains
func (t *telegram) ChainsHandle(m *tb.Message) {
	t.sendMessage(m.Sender, FormatChains(activeOnly(t.operator.Chains())))
}

// ChainHandle shows a chain and its orders
func (t *telegram) ChainHandle(m *tb.Message) {
	id, ok := commandID(chainRegexp, m.Text)
	if !ok {
		t.sendMessage(m.Sender, "Invalid command.\nExample of usage:\n`/chain 3f2a9c1e-...`")
		return
	}

	chain, err := t.operator.Chain(id)
	if err != nil {
		t.sendMessage(m.Sender, fmt.Sprintf("Chain `%s` not found.", id))
		return
	}

	t.sendMessage(m.Sender, FormatChain(chain, t.operator.Orders(id)))
}

// SafetyHandle shows the daily recovery counters and their caps
func (t *telegram) SafetyHandle(m *tb.Message) {
	counters, caps := t.operator.Safety()
	t.sendMessage(m.Sender, FormatSafety(counters, caps))
}

// ProfitHandle shows chain results per symbol
func (t *telegram) ProfitHandle(m *tb.Message) {
	summaries := report.Build(t.operator.Chains(), t.operator.Orders)
	if len(summaries) == 0 {
		t.sendMessage(m.Sender, "No chains registered.")
		return
	}

	for _, summary := range summaries {
		t.sendMessage(m.Sender, fmt.Sprintf("*SYMBOL*: `%s`\n`%s`", summary.Symbol, summary.String()))
	}
}

// PauseHandle pauses decisions
func (t *telegram) PauseHandle(m *tb.Message) {
	if t.operator.Status() == "paused" {
		t.sendMessage(m.Sender, "Monitor is already paused.", t.defaultMenu)
		return
	}

	t.operator.Pause()
	t.sendMessage(m.Sender, "Monitor paused.", t.defaultMenu)
}

// ResumeHandle resumes decisions
func (t *telegram) ResumeHandle(m *tb.Message) {
	if t.operator.Status() == "running" {
		t.sendMessage(m.Sender, "Monitor is already running.", t.defaultMenu)
		return
	}

	t.operator.Resume()
	t.sendMessage(m.Sender, "Monitor resumed.", t.defaultMenu)
}

// StopChainHandle stops an active chain
func (t *telegram) StopChainHandle(m *tb.Message) {
	id, ok := commandID(stopChainRegexp, m.Text)
	if !ok {
		t.sendMessage(m.Sender, "Invalid command.\nExample of usage:\n`/stopchain 3f2a9c1e-...`")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if err := t.operator.StopChain(ctx, id); err != nil {
		t.OnError(fmt.Errorf("failed to stop chain %s: %w", id, err))
		return
	}

	log.Info("[TELEGRAM]: CHAIN STOPPED: ", id)
	t.sendMessage(m.Sender, fmt.Sprintf("Chain `%s` stopped.", id))
}

// OnError notifies users about errors
func (t *telegram) OnError(err error) {
	t.Notify(FormatError(err))
}

// commandID extracts the id group of a chain command
func commandID(regex *regexp.Regexp, text string) (string, bool) {
	match := regex.FindStringSubmatch(text)
	if len(match) == 0 {
		return "", false
	}
	return match[regex.SubexpIndex("id")], true
}
