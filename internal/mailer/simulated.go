package mailer

import (
	"context"
	"io"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/SubinY/email-sender/internal/clock"
)

// SimulatedConfig controls the simulated delivery path
type SimulatedConfig struct {
	LatencyMin         time.Duration
	LatencyMax         time.Duration
	SuccessProbability float64
	MaxPerMinute       int
	MaxPerHour         int
	Seed               int64 // 0 seeds from wall clock
}

// failure catalogue for the simulated path
var simulatedFailures = []*SendError{
	{Code: "552", Message: "mailbox full", Temporary: false},
	{Code: "451", Message: "temporary server error", Temporary: true},
	{Code: "550", Message: "invalid recipient address", Temporary: false},
	{Code: "554", Message: "rejected by spam filter", Temporary: false},
}

// Simulated is a Mailer that fakes delivery with configurable latency and
// failure probability behind the shared anti-spam envelope
type Simulated struct {
	cfg      SimulatedConfig
	envelope *Envelope
	clk      clock.Clock
	logger   *slog.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulated creates a simulated mailer
func NewSimulated(cfg SimulatedConfig, clk clock.Clock, logger *slog.Logger) *Simulated {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	return &Simulated{
		cfg:      cfg,
		envelope: NewEnvelope(cfg.MaxPerMinute, cfg.MaxPerHour),
		clk:      clk,
		logger:   logger.With("component", "mailer", "mode", "simulated"),
		rng:      rand.New(rand.NewSource(seed)),
	}
}

// Envelope exposes the mailer's rate envelope for inspection
func (m *Simulated) Envelope() *Envelope {
	return m.envelope
}

// Send simulates delivering one message
func (m *Simulated) Send(ctx context.Context, out *Outbound) (*Receipt, error) {
	start := m.clk.Now()

	if err := m.envelope.Allow(out.SenderID, start); err != nil {
		m.logger.Warn("send rejected by rate envelope",
			"sender_id", out.SenderID,
			"window", err.Window,
			"retry_after", err.RetryAfter,
		)
		return nil, err
	}

	if delay := m.latency(); delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	if m.roll() >= m.cfg.SuccessProbability {
		failure := m.pickFailure()
		m.logger.Debug("simulated delivery failure",
			"sender_id", out.SenderID,
			"recipient", out.RecipientEmail,
			"code", failure.Code,
		)
		return nil, failure
	}

	receipt := &Receipt{
		MessageID: uuid.New().String(),
		Duration:  m.clk.Now().Sub(start),
	}
	m.logger.Debug("simulated delivery",
		"sender_id", out.SenderID,
		"recipient", out.RecipientEmail,
		"message_id", receipt.MessageID,
	)
	return receipt, nil
}

func (m *Simulated) latency() time.Duration {
	if m.cfg.LatencyMax <= 0 {
		return 0
	}
	spread := m.cfg.LatencyMax - m.cfg.LatencyMin
	if spread <= 0 {
		return m.cfg.LatencyMin
	}

	m.mu.Lock()
	d := m.cfg.LatencyMin + time.Duration(m.rng.Int63n(int64(spread)))
	m.mu.Unlock()
	return d
}

func (m *Simulated) roll() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rng.Float64()
}

func (m *Simulated) pickFailure() *SendError {
	m.mu.Lock()
	defer m.mu.Unlock()
	return simulatedFailures[m.rng.Intn(len(simulatedFailures))]
}
