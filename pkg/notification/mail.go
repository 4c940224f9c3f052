package notification

import (
	"fmt"
	"net/smtp"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Mail handles email notifications for the application
type Mail struct {
	auth              smtp.Auth
	smtpServerPort    int
	smtpServerAddress string
	to                string
	from              string
	send              func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// MailParams contains all parameters needed to initialize a Mail instance
type MailParams struct {
	SMTPServerPort    int
	SMTPServerAddress string
	To                string
	From              string
	Password          string
}

// NewMail creates a new Mail instance with the provided parameters
func NewMail(params MailParams) Mail {
	return Mail{
		from:              params.From,
		to:                params.To,
		smtpServerPort:    params.SMTPServerPort,
		smtpServerAddress: params.SMTPServerAddress,
		send:              smtp.SendMail,
		auth: smtp.PlainAuth(
			"",
			params.From,
			params.Password,
			params.SMTPServerAddress,
		),
	}
}

// Notify sends an email. The first line of text becomes the subject.
func (m Mail) Notify(text string) {
	serverAddress := fmt.Sprintf("%s:%d", m.smtpServerAddress, m.smtpServerPort)

	if err := m.send(serverAddress, m.auth, m.from, []string{m.to}, m.message(text)); err != nil {
		log.WithError(err).Error("notification/mail: failed to send email")
	}
}

func (m Mail) message(text string) []byte {
	subject, body, _ := strings.Cut(text, "\n")

	return []byte(fmt.Sprintf(
		`To: "Operator" <%s>
From: "Zepix" <%s>
Subject: %s

%s`,
		m.to,
		m.from,
		subject,
		body,
	))
}

// OnError sends an error notification
func (m Mail) OnError(err error) {
	m.Notify(FormatError(err))
}
