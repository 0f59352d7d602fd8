package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/7p-education/platform/internal/config"
)

const (
	sendgridHost     = "https://api.sendgrid.com"
	sendgridEndpoint = "/v3/mail/send"
)

type Message struct {
	ToEmail string
	ToName  string
	Subject string
	Text    string
	HTML    string
}

type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// NewMailer returns a SendGrid mailer when an API key is set, a console mailer otherwise
func NewMailer(cfg config.SendGridConfig, logger *slog.Logger) Mailer {
	if cfg.APIKey == "" {
		return NewConsoleMailer(logger)
	}
	return NewSendGridMailer(cfg, logger)
}

type SendGridMailer struct {
	key    string
	host   string
	from   *sgmail.Email
	logger *slog.Logger
}

func NewSendGridMailer(cfg config.SendGridConfig, logger *slog.Logger) *SendGridMailer {
	return &SendGridMailer{
		key:    cfg.APIKey,
		host:   sendgridHost,
		from:   sgmail.NewEmail(cfg.FromName, cfg.FromEmail),
		logger: logger,
	}
}

func (m *SendGridMailer) prepare(msg Message) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = msg.Subject
	p.AddTos(sgmail.NewEmail(msg.ToName, msg.ToEmail))

	mail := sgmail.NewV3Mail()
	mail.SetFrom(m.from)
	mail.AddPersonalizations(p)
	mail.AddContent(
		sgmail.NewContent("text/plain", msg.Text),
		sgmail.NewContent("text/html", msg.HTML),
	)
	return mail
}

func (m *SendGridMailer) Send(ctx context.Context, msg Message) error {
	req := sendgrid.GetRequest(m.key, sendgridEndpoint, m.host)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(m.prepare(msg))

	res, err := sendgrid.API(req)
	if err != nil {
		return fmt.Errorf("sending email: %w", err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("sending email - status: %d - body: %s", res.StatusCode, res.Body)
	}
	m.logger.Info("Email sent", "to", msg.ToEmail, "subject", msg.Subject)
	return nil
}

// ConsoleMailer logs messages instead of sending them
type ConsoleMailer struct {
	logger *slog.Logger
}

func NewConsoleMailer(logger *slog.Logger) *ConsoleMailer {
	return &ConsoleMailer{logger: logger}
}

func (m *ConsoleMailer) Send(ctx context.Context, msg Message) error {
	m.logger.Info("Email (console)", "to", msg.ToEmail, "subject", msg.Subject, "body", msg.Text)
	return nil
}
