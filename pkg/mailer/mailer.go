package mailer

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"go.uber.org/zap"

	"github.com/noah-isme/clearance-api/pkg/config"
)

// Message is a plain-text email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Mailer delivers messages. Implementations must be safe for concurrent use.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// New picks the transport configured by MAIL_DRIVER.
func New(cfg config.MailConfig, logger *zap.Logger) Mailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Driver == config.MailDriverSMTP && cfg.Host != "" {
		return NewSMTPMailer(cfg, logger)
	}
	return NewLogMailer(cfg.SubjectPrefix, logger)
}

type sendFunc func(addr string, a sasl.Client, from string, to []string, r *bytes.Reader) error

// SMTPMailer sends through an SMTP relay with PLAIN auth.
type SMTPMailer struct {
	cfg    config.MailConfig
	logger *zap.Logger
	send   sendFunc
	now    func() time.Time
}

// NewSMTPMailer builds an SMTP transport; TLS selects implicit TLS over STARTTLS.
func NewSMTPMailer(cfg config.MailConfig, logger *zap.Logger) *SMTPMailer {
	m := &SMTPMailer{cfg: cfg, logger: logger, now: time.Now}
	m.send = func(addr string, a sasl.Client, from string, to []string, r *bytes.Reader) error {
		if cfg.TLS {
			return smtp.SendMailTLS(addr, a, from, to, r)
		}
		return smtp.SendMail(addr, a, from, to, r)
	}
	return m
}

// Send implements Mailer.
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if strings.TrimSpace(msg.To) == "" {
		return fmt.Errorf("recipient required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	var auth sasl.Client
	if m.cfg.User != "" {
		auth = sasl.NewPlainClient("", m.cfg.User, m.cfg.Password)
	}
	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	raw := buildMessage(m.cfg.From, msg.To, withPrefix(m.cfg.SubjectPrefix, msg.Subject), msg.Body, m.now())
	if err := m.send(addr, auth, m.cfg.From, []string{msg.To}, bytes.NewReader(raw)); err != nil {
		return fmt.Errorf("send mail to %s: %w", msg.To, err)
	}
	m.logger.Debug("mail sent", zap.String("to", msg.To), zap.String("subject", msg.Subject))
	return nil
}

// LogMailer writes messages to the logger instead of sending them.
type LogMailer struct {
	prefix string
	logger *zap.Logger
}

// NewLogMailer is used in development and when SMTP is not configured.
func NewLogMailer(prefix string, logger *zap.Logger) *LogMailer {
	return &LogMailer{prefix: prefix, logger: logger}
}

// Send implements Mailer.
func (m *LogMailer) Send(ctx context.Context, msg Message) error {
	if strings.TrimSpace(msg.To) == "" {
		return fmt.Errorf("recipient required")
	}
	m.logger.Info("mail (log driver)",
		zap.String("to", msg.To),
		zap.String("subject", withPrefix(m.prefix, msg.Subject)),
		zap.Int("body_bytes", len(msg.Body)),
	)
	return nil
}

func withPrefix(prefix, subject string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return subject
	}
	return prefix + " " + subject
}

func buildMessage(from, to, subject, body string, at time.Time) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", sanitizeHeader(subject))
	fmt.Fprintf(&b, "Date: %s\r\n", at.UTC().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	b.WriteString("\r\n")
	return b.Bytes()
}

func sanitizeHeader(v string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(v)
}
