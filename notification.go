package zepix

import (
	"github.com/raykavin/zepix/pkg/core"
	"github.com/raykavin/zepix/pkg/notification"
)

// initializeNotifications sets up the log, Telegram and mail notifiers and hands them to the
// executor and monitor
func initializeNotifications(bot *Bot) error {
	notifiers := notification.Multi{notification.NewLog(bot.log)}
	notifiers = append(notifiers, bot.extraNotifiers...)

	if bot.settings.Telegram.Enabled && bot.replay == nil {
		telegram, err := notification.NewTelegram(bot, bot.settings.Telegram)
		if err != nil {
			return err
		}
		bot.telegram = telegram
		notifiers = append(notifiers, telegram)
	}

	if mail := bot.settings.Mail; mail.Enabled && bot.replay == nil {
		notifiers = append(notifiers, notification.NewMail(notification.MailParams{
			SMTPServerPort:    mail.SMTPServerPort,
			SMTPServerAddress: mail.SMTPServerAddress,
			To:                mail.To,
			From:              mail.From,
			Password:          mail.Password,
		}))
	}

	bot.notifier = notifiers
	bot.executor.SetNotifier(notifiers)
	bot.monitor.SetNotifier(notifiers)
	return nil
}

// Notifier returns the combined notifier of the bot
func (b *Bot) Notifier() core.Notifier {
	return b.notifier
}
