package app

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/clinvia/teleconsulta/internal/domain"
)

// RoomEnder is the slice of the hub the sweeper is allowed to touch.
// The sweeper never reaches into room internals.
type RoomEnder interface {
	Warn(sessionID domain.AppointmentID, minutesLeft int)
	ForceEnd(ctx context.Context, sessionID domain.AppointmentID, reason string)
}

// Finalizer persists the end of a session after the room was notified.
type Finalizer interface {
	FinalizeSession(ctx context.Context, id domain.AppointmentID, endedAt time.Time) error
}

type warnMarks struct {
	early bool
	final bool
}

// Sweeper turns wall-clock deadlines into hub actions. Each tick scans
// active sessions near or past their scheduled end, emits at most one
// early and one final warning per activation, and force-closes plus
// finalizes expired ones. One failing session never aborts the tick
// for the rest.
type Sweeper struct {
	sessions  SessionRepo
	rooms     RoomEnder
	lifecycle Finalizer

	interval  time.Duration
	warnEarly time.Duration
	warnFinal time.Duration
	now       func() time.Time

	mu     sync.Mutex
	warned map[domain.AppointmentID]*warnMarks
}

func NewSweeper(sessions SessionRepo, rooms RoomEnder, lifecycle Finalizer, interval, warnEarly, warnFinal time.Duration) *Sweeper {
	return &Sweeper{
		sessions:  sessions,
		rooms:     rooms,
		lifecycle: lifecycle,
		interval:  interval,
		warnEarly: warnEarly,
		warnFinal: warnFinal,
		now:       time.Now,
		warned:    make(map[domain.AppointmentID]*warnMarks),
	}
}

// Run ticks on the configured interval until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	t := time.NewTicker(s.interval)
	defer t.Stop()
	log.Info().Str("module", "app.sweeper").Dur("interval", s.interval).Msg("expiry sweeper started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "app.sweeper").Msg("expiry sweeper stopped")
			return
		case <-t.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one sweep pass. Exported so tests can drive it with a
// controlled clock instead of waiting for the ticker.
func (s *Sweeper) Tick(ctx context.Context) {
	now := s.now()
	list, err := s.sessions.ListActiveEndingBefore(ctx, now.Add(s.warnEarly))
	if err != nil {
		log.Error().Err(err).Str("module", "app.sweeper").Msg("listing expiring sessions")
		return
	}
	for _, sess := range list {
		s.sweepOne(ctx, sess, now)
	}
}

func (s *Sweeper) sweepOne(ctx context.Context, sess domain.Session, now time.Time) {
	id := sess.AppointmentID
	remaining := sess.ScheduledEnd.Sub(now)

	if remaining <= 0 {
		s.rooms.ForceEnd(ctx, id, "time_expired")
		if err := s.lifecycle.FinalizeSession(ctx, id, now); err != nil {
			log.Error().Err(err).Str("module", "app.sweeper").
				Int64("session", int64(id)).Msg("finalize expired session")
			return
		}
		// An attach can slip in between the force-end and the finalize
		// write; ending again after the status is persisted drains it.
		s.rooms.ForceEnd(ctx, id, "time_expired")
		// A future re-activation of the same appointment id warns again.
		s.clearMarks(id)
		return
	}

	m := s.marksOf(id)
	switch {
	case remaining <= s.warnFinal:
		if !m.final {
			s.rooms.Warn(id, minutesLeft(remaining))
			m.final = true
		}
	case remaining <= s.warnEarly:
		if !m.early {
			s.rooms.Warn(id, minutesLeft(remaining))
			m.early = true
		}
	}
}

// minutesLeft rounds the remaining time up, so thirty seconds warns
// "1 minute", not "0".
func minutesLeft(remaining time.Duration) int {
	return int((remaining + time.Minute - 1) / time.Minute)
}

func (s *Sweeper) marksOf(id domain.AppointmentID) *warnMarks {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.warned[id]
	if !ok {
		m = &warnMarks{}
		s.warned[id] = m
	}
	return m
}

func (s *Sweeper) clearMarks(id domain.AppointmentID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.warned, id)
}
