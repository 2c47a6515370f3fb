// Package notifier pushes human-readable operational messages to the
// configured Telegram chat. Every method returns an error so callers can
// deliberately discard it: a lost notification must never affect job
// state or the scheduling loops.
package notifier

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"jetstream/internal/jobs"
	"jetstream/internal/transport"
)

const sendTimeout = 10 * time.Second

type Config struct {
	ChatID     int64
	RatePerSec int
}

type Service struct {
	sender  transport.Sender
	target  transport.ChatTarget
	limiter *rate.Limiter
	log     zerolog.Logger
}

// New builds the notifier. A nil sender or zero chat id disables it:
// every method becomes a cheap no-op, matching an unset bot token.
func New(cfg Config, sender transport.Sender, log zerolog.Logger) *Service {
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 1
	}
	return &Service{
		sender:  sender,
		target:  transport.ChatTarget{ChatID: cfg.ChatID},
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
		log:     log,
	}
}

func (s *Service) Enabled() bool {
	return s != nil && s.sender != nil && s.target.ChatID != 0
}

func (s *Service) send(ctx context.Context, text string) error {
	if !s.Enabled() {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	err := s.sender.SendText(ctx, s.target, text, &transport.SendOptions{
		ParseMode:      "Markdown",
		DisablePreview: true,
	})
	if err != nil {
		s.log.Warn().Err(err).Msg("notification send failed")
	}
	return err
}

func (s *Service) ServerStarted(ctx context.Context, addr string) error {
	return s.send(ctx, formatServerStarted(addr))
}

func (s *Service) JobStarted(ctx context.Context, j jobs.Job, days float64) error {
	return s.send(ctx, formatJobStarted(j, days))
}

func (s *Service) JobFinished(ctx context.Context, j jobs.Job) error {
	return s.send(ctx, formatJobFinished(j))
}

// SendFailed reports the first delivery failure of a job. position is
// 1-based; status is 0 when the failure never reached the endpoint.
func (s *Service) SendFailed(ctx context.Context, j jobs.Job, position, status int, body string) error {
	return s.send(ctx, formatSendFailed(j, position, status, body))
}

func (s *Service) Heartbeat(ctx context.Context, uptime time.Duration, totals jobs.Totals) error {
	return s.send(ctx, formatHeartbeat(uptime, totals))
}

// StatusReport pushes the twice-daily summary. An empty job list sends
// nothing.
func (s *Service) StatusReport(ctx context.Context, slot string, entries []jobs.StatusEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return s.send(ctx, formatStatusReport(slot, entries))
}
