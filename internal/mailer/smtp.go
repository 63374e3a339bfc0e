package mailer

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/SubinY/email-sender/internal/clock"
	"github.com/SubinY/email-sender/internal/models"
)

// AccountSource resolves a sender id to its account record and plaintext
// SMTP password
type AccountSource interface {
	Account(senderID string) (*models.Sender, string, error)
}

// SMTPConfig controls the real delivery path
type SMTPConfig struct {
	Timeout         time.Duration
	MaxPerMinute    int
	MaxPerHour      int
	GlobalPerSecond float64 // outbound pacing across all senders, 0 = unlimited
}

// SMTP is a Mailer that submits messages through each sender's configured
// SMTP relay, authenticating with the account credentials
type SMTP struct {
	cfg      SMTPConfig
	accounts AccountSource
	envelope *Envelope
	keyring  *Keyring // optional per-domain DKIM keys
	limiter  *rate.Limiter
	clk      clock.Clock
	logger   *slog.Logger
}

// NewSMTP creates an SMTP mailer
func NewSMTP(cfg SMTPConfig, accounts AccountSource, clk clock.Clock, logger *slog.Logger) *SMTP {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	var limiter *rate.Limiter
	if cfg.GlobalPerSecond > 0 {
		burst := int(cfg.GlobalPerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.GlobalPerSecond), burst)
	}

	return &SMTP{
		cfg:      cfg,
		accounts: accounts,
		envelope: NewEnvelope(cfg.MaxPerMinute, cfg.MaxPerHour),
		limiter:  limiter,
		clk:      clk,
		logger:   logger.With("component", "mailer", "mode", "smtp"),
	}
}

// SetKeyring enables DKIM signing for senders whose email domain has a key
func (m *SMTP) SetKeyring(keyring *Keyring) {
	m.keyring = keyring
}

// Envelope exposes the mailer's rate envelope for inspection
func (m *SMTP) Envelope() *Envelope {
	return m.envelope
}

// Send submits one message through the sender's relay
func (m *SMTP) Send(ctx context.Context, out *Outbound) (*Receipt, error) {
	start := m.clk.Now()

	if err := m.envelope.Allow(out.SenderID, start); err != nil {
		m.logger.Warn("send rejected by rate envelope",
			"sender_id", out.SenderID,
			"window", err.Window,
		)
		return nil, err
	}

	if m.limiter != nil {
		if err := m.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	account, secret, err := m.accounts.Account(out.SenderID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve sender account: %w", err)
	}
	if !account.Enabled {
		return nil, &SendError{Code: "550", Message: "sender account disabled"}
	}

	messageID := uuid.New().String()
	data, err := m.buildMessage(out, account, messageID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()

	if err := m.submit(ctx, account, secret, out.RecipientEmail, data); err != nil {
		m.logger.Warn("delivery failed",
			"sender_id", out.SenderID,
			"recipient", out.RecipientEmail,
			"error", err,
		)
		return nil, err
	}

	receipt := &Receipt{
		MessageID: messageID,
		Duration:  m.clk.Now().Sub(start),
	}
	m.logger.Debug("message submitted",
		"sender_id", out.SenderID,
		"recipient", out.RecipientEmail,
		"message_id", receipt.MessageID,
		"duration", receipt.Duration,
	)
	return receipt, nil
}

func (m *SMTP) submit(ctx context.Context, account *models.Sender, secret, recipient string, data []byte) error {
	addr := fmt.Sprintf("%s:%d", account.SMTPEndpoint, account.Port)

	var (
		client *smtp.Client
		err    error
	)
	if account.TLS {
		client, err = smtp.DialTLS(addr, &tls.Config{ServerName: account.SMTPEndpoint})
	} else {
		client, err = smtp.DialStartTLS(addr, &tls.Config{ServerName: account.SMTPEndpoint})
	}
	if err != nil {
		return &SendError{Code: "421", Message: fmt.Sprintf("connect %s: %v", addr, err), Temporary: true}
	}
	defer client.Close()

	done := make(chan error, 1)
	go func() {
		if secret != "" {
			auth := sasl.NewPlainClient("", account.EmailAccount, secret)
			if err := client.Auth(auth); err != nil {
				done <- &SendError{Code: "535", Message: fmt.Sprintf("authentication failed: %v", err)}
				return
			}
		}
		done <- client.SendMail(account.EmailAccount, []string{recipient}, strings.NewReader(string(data)))
	}()

	select {
	case <-ctx.Done():
		client.Close()
		return &SendError{Code: "421", Message: "send timed out", Temporary: true}
	case err := <-done:
		if err == nil {
			return nil
		}
		if sendErr, ok := err.(*SendError); ok {
			return sendErr
		}
		return classifySMTPError(err)
	}
}

func (m *SMTP) buildMessage(out *Outbound, account *models.Sender, messageID string) ([]byte, error) {
	from := account.EmailAccount
	if account.SenderName != "" {
		from = fmt.Sprintf("%s <%s>", account.SenderName, account.EmailAccount)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", out.RecipientEmail)
	fmt.Fprintf(&b, "Subject: %s\r\n", out.Subject)
	fmt.Fprintf(&b, "Date: %s\r\n", m.clk.Now().Format(time.RFC1123Z))
	fmt.Fprintf(&b, "Message-ID: <%s@%s>\r\n", messageID, account.SMTPEndpoint)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(out.Body, "\n", "\r\n"))
	b.WriteString("\r\n")

	data := []byte(b.String())
	if m.keyring != nil {
		signed, err := m.keyring.Sign(account.EmailAccount, data)
		if err != nil {
			return nil, err
		}
		data = signed
	}
	return data, nil
}

// classifySMTPError maps relay responses onto typed send errors; 4xx codes
// are temporary
func classifySMTPError(err error) error {
	if smtpErr, ok := err.(*smtp.SMTPError); ok {
		return &SendError{
			Code:      fmt.Sprintf("%d", smtpErr.Code),
			Message:   smtpErr.Message,
			Temporary: smtpErr.Code >= 400 && smtpErr.Code < 500,
		}
	}
	return &SendError{Code: "451", Message: err.Error(), Temporary: true}
}
