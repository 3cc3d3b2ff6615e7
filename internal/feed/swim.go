package feed

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	natsgo "github.com/nats-io/nats.go"

	"github.com/openaero/airstate/internal/aixm"
	"github.com/openaero/airstate/internal/logging"
	"github.com/openaero/airstate/internal/nats"
	"github.com/openaero/airstate/internal/store"
)

// SWIMConfig configures the FNS NOTAM queue feed.
type SWIMConfig struct {
	URL      string
	Durable  string
	Backoff  Backoff
	LogEvery uint64
}

type swimSession struct {
	url     string
	durable string

	decoder *aixm.Decoder
	notices *store.Notices
	health  *Health
}

// NewSWIMFeed builds the supervisor for the NOTAM queue.
func NewSWIMFeed(cfg SWIMConfig, notices *store.Notices, decoder *aixm.Decoder) *Supervisor {
	session := &swimSession{
		url:     cfg.URL,
		durable: cfg.Durable,
		decoder: decoder,
		notices: notices,
	}

	backoff := cfg.Backoff
	if backoff == (Backoff{}) {
		backoff = DefaultSWIMBackoff
	}

	sup := newSupervisor("swim", backoff, cfg.LogEvery, session.run)
	session.health = sup.health
	return sup
}

func (s *swimSession) run(ctx context.Context, connID string) (uint64, error) {
	// The supervisor owns reconnection, so the library's internal
	// reconnect loop is disabled and a closed connection ends the
	// session instead.
	closed := make(chan struct{}, 1)
	client, err := nats.New(s.url,
		natsgo.NoReconnect(),
		natsgo.ClosedHandler(func(*natsgo.Conn) {
			select {
			case closed <- struct{}{}:
			default:
			}
		}),
	)
	if err != nil {
		return 0, err
	}
	defer client.Close()

	s.health.setConnected(true)
	logging.Info().
		Str("feed", "swim").
		Str("connection_id", connID).
		Str("url", s.url).
		Msg("Connected to NOTAM queue")

	var consumed uint64
	if err := client.SubscribeNotices(s.durable, func(data []byte) {
		atomic.AddUint64(&consumed, 1)
		s.handle(data)
	}); err != nil {
		return 0, err
	}

	// On cancellation the deferred Close tears the connection down
	// without touching the durable consumer, so the next run resumes
	// where this one stopped.
	select {
	case <-ctx.Done():
		return atomic.LoadUint64(&consumed), ctx.Err()
	case <-closed:
		return atomic.LoadUint64(&consumed), errors.New("connection to NOTAM queue closed")
	}
}

// handle decodes one AIXM document and applies it to the notice store.
// Undecodable documents are dropped; the message is acked either way.
func (s *swimSession) handle(data []byte) {
	now := time.Now().UTC()
	s.health.markMessage(now)

	notice, ok := s.decoder.Decode(data, now)
	if !ok {
		logging.Debug().Int("bytes", len(data)).Msg("Discarding undecodable NOTAM document")
		return
	}

	s.notices.Apply(notice)
}
