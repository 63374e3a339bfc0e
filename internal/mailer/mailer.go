// Package mailer is the send backend: it delivers (or simulates delivering)
// a single email on behalf of a sender account while enforcing per-sender
// anti-spam rate envelopes.
package mailer

import (
	"context"
	"fmt"
	"time"
)

// Outbound is a single email to deliver
type Outbound struct {
	SenderID       string
	SenderEmail    string
	SenderName     string
	RecipientID    string
	RecipientEmail string
	Subject        string
	Body           string
}

// Receipt is returned on successful delivery
type Receipt struct {
	MessageID string
	Duration  time.Duration
}

// Mailer delivers a single message. Implementations enforce their own rate
// envelope and may block for network or simulated latency; callers must not
// hold locks across Send.
type Mailer interface {
	Send(ctx context.Context, out *Outbound) (*Receipt, error)
}

// SendError is a terminal delivery failure
type SendError struct {
	Code      string
	Message   string
	Temporary bool
}

func (e *SendError) Error() string {
	return fmt.Sprintf("%s %s", e.Code, e.Message)
}

// AntiSpamError reports a rejection by the per-sender rate envelope
type AntiSpamError struct {
	SenderID   string
	Window     string // "minute" or "hour"
	Limit      int
	RetryAfter time.Duration
}

func (e *AntiSpamError) Error() string {
	return fmt.Sprintf("anti-spam: sender %s exceeded %d sends per %s", e.SenderID, e.Limit, e.Window)
}
