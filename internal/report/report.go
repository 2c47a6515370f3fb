// Package report runs the two global operational loops: an 8-hour
// heartbeat and a minute-resolution poll that fires the twice-daily
// status summary at 09:00 and 18:00 local time.
package report

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"jetstream/internal/jobs"
)

const (
	heartbeatSpec = "@every 8h"
	slotPollSpec  = "@every 1m"
)

// statusSlots are the minute-exact times of day a summary goes out.
var statusSlots = []string{"09:00", "18:00"}

// Registry is the aggregate view the reports read. Implemented by
// jobs.Registry.
type Registry interface {
	Totals() jobs.Totals
	StatusPerJob() []jobs.StatusEntry
}

// Notifier pushes the reports; errors are deliberately discarded.
type Notifier interface {
	Heartbeat(ctx context.Context, uptime time.Duration, totals jobs.Totals) error
	StatusReport(ctx context.Context, slot string, entries []jobs.StatusEntry) error
}

type Service struct {
	reg   Registry
	notif Notifier
	log   zerolog.Logger
	now   func() time.Time

	c         *cron.Cron
	startedAt time.Time

	// lastSent tracks, per slot, the date a summary already went out,
	// so a minute with several polls sends exactly once. The slots are
	// tracked independently: a missed 09:00 never suppresses 18:00.
	mu       sync.Mutex
	lastSent map[string]string
}

func New(reg Registry, notif Notifier, log zerolog.Logger) *Service {
	return &Service{
		reg:      reg,
		notif:    notif,
		log:      log,
		now:      time.Now,
		lastSent: map[string]string{},
	}
}

func (s *Service) Start() error {
	s.startedAt = s.now()
	s.c = cron.New()
	if _, err := s.c.AddFunc(heartbeatSpec, func() { s.safeRun("heartbeat", s.heartbeat) }); err != nil {
		return err
	}
	if _, err := s.c.AddFunc(slotPollSpec, func() { s.safeRun("twice_daily_status", s.pollSlots) }); err != nil {
		return err
	}
	s.c.Start()
	s.log.Info().Msg("reporting loops started")
	return nil
}

func (s *Service) Stop() {
	if s.c == nil {
		return
	}
	<-s.c.Stop().Done()
	s.c = nil
	s.log.Info().Msg("reporting loops stopped")
}

// safeRun isolates one loop body: a panic is logged, never allowed to
// take down the cron runner or the other loop.
func (s *Service) safeRun(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Str("loop", name).Any("panic", r).Msg("reporting loop body failed")
		}
	}()
	fn()
}

func (s *Service) heartbeat() {
	uptime := s.now().Sub(s.startedAt)
	_ = s.notif.Heartbeat(context.Background(), uptime, s.reg.Totals())
}

func (s *Service) pollSlots() {
	s.checkSlotsAt(s.now())
}

// checkSlotsAt sends the status summary when the wall clock matches a
// slot minute-exactly and that slot has not fired yet today.
func (s *Service) checkSlotsAt(now time.Time) {
	hhmm := now.Format("15:04")
	dateKey := now.Format("2006-01-02")

	for _, slot := range statusSlots {
		if hhmm != slot {
			continue
		}
		s.mu.Lock()
		if s.lastSent[slot] == dateKey {
			s.mu.Unlock()
			continue
		}
		s.lastSent[slot] = dateKey
		s.mu.Unlock()

		_ = s.notif.StatusReport(context.Background(), slot, s.reg.StatusPerJob())
	}
}
