package notification

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ticketing/internal/domain"
	"github.com/vladislavdragonenkov/ticketing/internal/service/ledger"
)

// Mailer доставляет письмо.
type Mailer interface {
	Send(ctx context.Context, msg domain.EmailMessage) error
}

// LogMailer только пишет письмо в лог; используется локально и в тестах.
type LogMailer struct {
	Logger *log.Entry
}

func (m LogMailer) Send(_ context.Context, msg domain.EmailMessage) error {
	logger := m.Logger
	if logger == nil {
		logger = log.WithField("component", "mailer")
	}
	logger.WithFields(log.Fields{
		"identifier": msg.Identifier,
		"to":         msg.ToRecipient.Email,
		"subject":    msg.About,
	}).Info("email message sent")
	return nil
}

// SMTPConfig: параметры SMTP-релея.
type SMTPConfig struct {
	Addr     string
	Username string
	Password string
}

// SMTPMailer отправляет письма через SMTP-релей.
type SMTPMailer struct {
	cfg  SMTPConfig
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPMailer создаёт SMTP-отправителя.
func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg, send: smtp.SendMail}
}

func (m *SMTPMailer) Send(ctx context.Context, msg domain.EmailMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if msg.ToRecipient.Email == "" {
		return domain.Argument("toRecipient.email", "Recipient email is required.")
	}

	var auth smtp.Auth
	if m.cfg.Username != "" {
		host := m.cfg.Addr
		if i := strings.LastIndexByte(host, ':'); i >= 0 {
			host = host[:i]
		}
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, host)
	}
	if err := m.send(m.cfg.Addr, auth, msg.Sender.Email, []string{msg.ToRecipient.Email}, encode(msg)); err != nil {
		return &domain.ExternalError{Service: "SMTP", Name: "SendMailError", Message: err.Error()}
	}
	return nil
}

func encode(msg domain.EmailMessage) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s <%s>\r\n", msg.Sender.Name, msg.Sender.Email)
	fmt.Fprintf(&b, "To: %s <%s>\r\n", msg.ToRecipient.Name, msg.ToRecipient.Email)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.About)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(strings.ReplaceAll(msg.Text, "\n", "\r\n"))
	return []byte(b.String())
}

// Sender исполняет шаблон SendAction с письмом: Start, отправка, Complete или GiveUp.
type Sender struct {
	ledger *ledger.Ledger
	mailer Mailer
	logger *log.Entry
}

// NewSender создаёт исполнителя отправки писем.
func NewSender(l *ledger.Ledger, mailer Mailer, logger *log.Entry) *Sender {
	if logger == nil {
		logger = log.WithField("component", "notification")
	}
	return &Sender{ledger: l, mailer: mailer, logger: logger}
}

// SendEmailMessage отправляет письмо из шаблона действия.
func (s *Sender) SendEmailMessage(ctx context.Context, attrs domain.ActionAttributes) error {
	msg, ok := domain.ObjectAs[domain.EmailMessage](attrs)
	if !ok {
		return domain.Argument("actionAttributes.object", "Email message is required.")
	}

	action, err := s.ledger.Start(ctx, attrs)
	if err != nil {
		return err
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"action_id":  action.ID,
			"identifier": msg.Identifier,
		}).Warn("email message failed")
		return s.ledger.Abandon(ctx, action, err)
	}
	_, err = s.ledger.Complete(ctx, action.TypeOf, action.ID, domain.EmptyResult{})
	return err
}
