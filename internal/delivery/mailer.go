package delivery

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net"
	netmail "net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/amanullahtanweer/video-transcriber/internal/config"
)

// Subject of every delivery mail.
const Subject = "Your Video Transcript is Ready!"

const mailBody = `Hello!

Your video transcript is ready.

Please find the transcript document attached to this email.

Thank you for using Video Transcriber!
`

// Sender delivers a document to one recipient.
type Sender interface {
	Send(ctx context.Context, to string, doc Document) error
}

// ValidateAddress checks that addr is a single bare mail address.
func ValidateAddress(addr string) error {
	parsed, err := netmail.ParseAddress(addr)
	if err != nil {
		return fmt.Errorf("invalid email address: %w", err)
	}
	if parsed.Address != strings.TrimSpace(addr) {
		return fmt.Errorf("invalid email address %q", addr)
	}
	return nil
}

// NewSender returns an SMTP sender when SMTP is configured, else a sender
// that only logs.
func NewSender(cfg config.DeliveryConfig, logger *slog.Logger) Sender {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SMTP.Enabled() {
		return NewSMTPSender(cfg.SMTP)
	}
	logger.Warn("smtp not configured, deliveries will only be logged")
	return &LogSender{Logger: logger}
}

// SMTPSender mails the document as an attachment.
type SMTPSender struct {
	cfg     config.SMTPConfig
	timeout time.Duration
}

func NewSMTPSender(cfg config.SMTPConfig) *SMTPSender {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &SMTPSender{cfg: cfg, timeout: 30 * time.Second}
}

// Send dials, delivers and hangs up. The connection is closed as soon as ctx
// is done, whatever state the SMTP exchange is in.
func (s *SMTPSender) Send(ctx context.Context, to string, doc Document) error {
	if err := ValidateAddress(to); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg, err := s.compose(to, doc)
	if err != nil {
		return fmt.Errorf("compose mail: %w", err)
	}

	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
		mail.WithTimeout(s.timeout),
		mail.WithDialContextFunc(boundDialer(ctx)),
	}
	if s.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.Username),
			mail.WithPassword(s.cfg.Password),
		)
	}
	client, err := mail.NewClient(s.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		if cerr := ctx.Err(); cerr != nil {
			return fmt.Errorf("smtp send via %s: %w (%v)", addr, cerr, err)
		}
		return fmt.Errorf("smtp send via %s: %w", addr, err)
	}
	return nil
}

// boundDialer ties every connection to ctx, closing it once ctx is done.
func boundDialer(ctx context.Context) mail.DialContextFunc {
	return func(dialCtx context.Context, network, address string) (net.Conn, error) {
		var d net.Dialer
		conn, err := d.DialContext(dialCtx, network, address)
		if err != nil {
			return nil, err
		}
		context.AfterFunc(ctx, func() { _ = conn.Close() })
		return conn, nil
	}
}

func (s *SMTPSender) compose(to string, doc Document) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(s.cfg.From); err != nil {
		return nil, err
	}
	if err := msg.To(to); err != nil {
		return nil, err
	}
	msg.Subject(Subject)
	msg.SetDate()
	msg.SetMessageID()
	msg.SetBodyString(mail.TypeTextPlain, mailBody)
	msg.AttachReadSeeker(doc.Filename, bytes.NewReader(doc.Body),
		mail.WithFileContentType(mail.ContentType(doc.ContentType)))
	return msg, nil
}

// LogSender records deliveries without their content.
type LogSender struct {
	Logger *slog.Logger
}

func (l *LogSender) Send(ctx context.Context, to string, doc Document) error {
	if err := ValidateAddress(to); err != nil {
		return err
	}
	domain := to[strings.LastIndex(to, "@")+1:]
	l.Logger.Info("delivery skipped, smtp not configured",
		"recipient_domain", domain, "document", doc.Filename, "bytes", len(doc.Body))
	return nil
}
