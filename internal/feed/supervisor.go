// Package feed connects the live aeronautical feeds to the in-memory
// stores. Each feed runs under a Supervisor that owns one transport
// session at a time and reconnects with capped linear backoff when the
// session ends. A session is one connection lifetime: dial, consume
// until the stream breaks, report how many messages it handled.
package feed

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/openaero/airstate/internal/logging"
)

// Backoff computes the reconnect delay after consecutive failures:
// base + retry*step, capped.
type Backoff struct {
	Base time.Duration
	Step time.Duration
	Cap  time.Duration
}

// Delay returns the sleep before the next attempt. retry counts the
// failures so far, starting at zero for the first reconnect.
func (b Backoff) Delay(retry uint64) time.Duration {
	d := b.Base + time.Duration(retry)*b.Step
	if d > b.Cap {
		return b.Cap
	}
	return d
}

// Reconnect schedules used by the upstream feed clients. The SBS feed
// retries aggressively; the SWIM queue is slower to come back and gets
// a gentler schedule.
var (
	DefaultSBSBackoff  = Backoff{Base: time.Second, Step: 100 * time.Millisecond, Cap: 5 * time.Second}
	DefaultSWIMBackoff = Backoff{Base: 5 * time.Second, Step: 2 * time.Second, Cap: 60 * time.Second}
)

// DefaultLogEvery limits reconnect warnings to every Nth retry so a
// dead upstream does not flood the log.
const DefaultLogEvery = 10

// sessionFunc runs one connection lifetime. It blocks until the
// connection ends and returns the number of messages consumed plus the
// error that ended the session.
type sessionFunc func(ctx context.Context, connID string) (uint64, error)

// Supervisor keeps one feed alive: it runs sessions back to back,
// sleeping between attempts per the backoff schedule. The retry
// counter resets whenever a session consumed at least one message, so
// a flapping but live upstream keeps getting fast reconnects.
type Supervisor struct {
	name     string
	backoff  Backoff
	logEvery uint64
	health   *Health
	session  sessionFunc
}

func newSupervisor(name string, backoff Backoff, logEvery uint64, session sessionFunc) *Supervisor {
	if logEvery == 0 {
		logEvery = DefaultLogEvery
	}
	return &Supervisor{
		name:     name,
		backoff:  backoff,
		logEvery: logEvery,
		health:   newHealth(),
		session:  session,
	}
}

// Name returns the feed name used in logs and status reports.
func (s *Supervisor) Name() string {
	return s.name
}

// Status returns a copy of the feed's current health.
func (s *Supervisor) Status() Status {
	return s.health.Snapshot(s.name)
}

// Run blocks until ctx is cancelled, reconnecting the feed whenever
// its session ends. The backoff sleep aborts immediately on
// cancellation.
func (s *Supervisor) Run(ctx context.Context) {
	s.health.setRunning(true)
	defer s.health.setRunning(false)

	logging.Info().Str("feed", s.name).Msg("Feed supervisor started")
	defer logging.Info().Str("feed", s.name).Msg("Feed supervisor stopped")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		connID := uuid.New().String()
		s.health.setConnectionID(connID)

		consumed, err := s.session(ctx, connID)
		s.health.setConnected(false)
		if consumed > 0 {
			s.health.resetRetries()
		}

		if ctx.Err() != nil {
			return
		}

		retries := s.health.markRetry()
		delay := s.backoff.Delay(retries - 1)

		evt := logging.Debug()
		if (retries-1)%s.logEvery == 0 {
			evt = logging.Warn()
		}
		evt.Str("feed", s.name).
			Str("connection_id", connID).
			Err(err).
			Uint64("retries", retries).
			Dur("delay", delay).
			Msg("Feed session ended, reconnecting")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}
