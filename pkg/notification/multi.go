package notification

import (
	"strings"

	"github.com/raykavin/zepix/pkg/core"
	"github.com/raykavin/zepix/pkg/logger"
)

// Log writes notifications to the application log
type Log struct {
	log logger.Logger
}

// NewLog creates a notifier backed by log
func NewLog(log logger.Logger) Log {
	return Log{log: log}
}

// Notify logs the first line of text at info level with the full text as a field
func (l Log) Notify(text string) {
	title, _, _ := strings.Cut(text, "\n")
	l.log.WithField("notification", text).Info(title)
}

// Multi fans every notification out to a list of notifiers
type Multi []core.Notifier

// Notify forwards text to every notifier
func (m Multi) Notify(text string) {
	for _, notifier := range m {
		notifier.Notify(text)
	}
}

// Start starts the notifiers that run their own loop
func (m Multi) Start() {
	for _, notifier := range m {
		if starter, ok := notifier.(core.NotifierWithStart); ok {
			starter.Start()
		}
	}
}
