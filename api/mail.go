package main

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"time"

	"github.com/go-mail/mail/v2"
)

//go:embed templates
var templateFS embed.FS

const (
	mailAttempts   = 3
	mailRetryDelay = 500 * time.Millisecond
)

// notifier delivers account emails. The service uses a no-op when SMTP is
// not configured.
type notifier interface {
	sendWelcome(u *user) error
}

type nopNotifier struct{}

func (nopNotifier) sendWelcome(*user) error { return nil }

type smtpConfig struct {
	host     string
	port     int
	username string
	password string
	sender   string
}

type mailer struct {
	dialer  *mail.Dialer
	sender  string
	welcome *template.Template
}

func newMailer(cfg smtpConfig) (*mailer, error) {
	welcome, err := template.New("welcome").ParseFS(templateFS, "templates/welcome.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse welcome template: %w", err)
	}
	dialer := mail.NewDialer(cfg.host, cfg.port, cfg.username, cfg.password)
	dialer.Timeout = 10 * time.Second
	return &mailer{
		dialer:  dialer,
		sender:  cfg.sender,
		welcome: welcome,
	}, nil
}

func (m *mailer) sendWelcome(u *user) error {
	msg, err := m.compose(u.Email, m.welcome, u.public())
	if err != nil {
		return err
	}
	return m.deliver(msg)
}

// compose renders the subject, plainBody and htmlBody blocks of tmpl.
func (m *mailer) compose(to string, tmpl *template.Template, data any) (*mail.Message, error) {
	parts := make(map[string]string, 3)
	for _, name := range []string{"subject", "plainBody", "htmlBody"} {
		var buf bytes.Buffer
		err := tmpl.ExecuteTemplate(&buf, name, data)
		if err != nil {
			return nil, fmt.Errorf("render %s: %w", name, err)
		}
		parts[name] = buf.String()
	}

	msg := mail.NewMessage()
	msg.SetHeader("To", to)
	msg.SetHeader("From", m.sender)
	msg.SetHeader("Subject", parts["subject"])
	msg.SetBody("text/plain", parts["plainBody"])
	msg.AddAlternative("text/html", parts["htmlBody"])
	return msg, nil
}

func (m *mailer) deliver(msg *mail.Message) error {
	var err error
	for i := 0; i < mailAttempts; i++ {
		if i > 0 {
			time.Sleep(mailRetryDelay * time.Duration(i))
		}
		err = m.dialer.DialAndSend(msg)
		if err == nil {
			return nil
		}
	}
	return fmt.Errorf("send mail after %d attempts: %w", mailAttempts, err)
}
