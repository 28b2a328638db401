// Package alert delivers best-effort operator notifications by email.
package alert

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"github.com/fruitsalade/dirsync/internal/config"
	"github.com/fruitsalade/dirsync/internal/logging"
	"github.com/fruitsalade/dirsync/internal/metrics"
)

// SendTimeout bounds a single delivery attempt.
const SendTimeout = 30 * time.Second

// Notifier sends an alert without blocking the caller. Delivery failures
// are logged and never reported back.
type Notifier interface {
	Notify(subject, message string)
}

// Nop discards every alert.
type Nop struct{}

// Notify does nothing.
func (Nop) Notify(string, string) {}

// New returns a Mailer when mail is configured and Nop otherwise.
func New(cfg config.MailConfig) (Notifier, error) {
	if !cfg.Enabled() {
		logging.Info("mail alerts disabled: mail.from and mail.to are required")
		return Nop{}, nil
	}
	return NewMailer(cfg)
}

// Mailer sends alerts over SMTP.
type Mailer struct {
	cfg    config.MailConfig
	client *mail.Client
	wg     sync.WaitGroup
}

// NewMailer creates an SMTP notifier. No connection is made until the
// first alert.
func NewMailer(cfg config.MailConfig) (*Mailer, error) {
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTimeout(SendTimeout),
	}
	if cfg.Security {
		opts = append(opts, mail.WithSSL())
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	}
	if cfg.Username != "" && cfg.Password != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("create mail client: %w", err)
	}
	return &Mailer{cfg: cfg, client: client}, nil
}

// Notify sends the alert in the background.
func (m *Mailer) Notify(subject, message string) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), SendTimeout)
		defer cancel()

		err := m.send(ctx, subject, message)
		metrics.RecordAlert(err == nil)
		if err != nil {
			logging.Error("failed to send alert", zap.String("subject", subject), zap.Error(err))
			return
		}
		logging.Info("alert sent", zap.String("subject", subject))
	}()
}

// Wait blocks until all pending alerts have been attempted.
func (m *Mailer) Wait() {
	m.wg.Wait()
}

func (m *Mailer) send(ctx context.Context, subject, message string) error {
	msg, err := m.message(subject, message)
	if err != nil {
		return err
	}
	return m.client.DialAndSendWithContext(ctx, msg)
}

func (m *Mailer) message(subject, message string) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(m.cfg.From); err != nil {
		return nil, fmt.Errorf("invalid sender %q: %w", m.cfg.From, err)
	}
	if err := msg.To(m.cfg.To...); err != nil {
		return nil, fmt.Errorf("invalid recipients: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, message)
	return msg, nil
}

// Wait blocks until pending alerts of n have been attempted, if n queues
// them.
func Wait(n Notifier) {
	if w, ok := n.(interface{ Wait() }); ok {
		w.Wait()
	}
}
