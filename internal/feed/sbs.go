package feed

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/openaero/airstate/internal/logging"
	"github.com/openaero/airstate/internal/refdata"
	"github.com/openaero/airstate/internal/sbs"
	"github.com/openaero/airstate/internal/store"
)

const (
	// DefaultSBSIdleTimeout disconnects a silent upstream so the
	// supervisor can dial again.
	DefaultSBSIdleTimeout = 30 * time.Second

	// DefaultSBSMaxLine bounds the partial-line buffer. A stream that
	// never produces a line break past this point is discarded rather
	// than grown without limit.
	DefaultSBSMaxLine = 16 * 1024

	sbsDialTimeout = 10 * time.Second
	sbsReadTick    = 2 * time.Second

	// Aircraft reporting below this altitude without an on-ground flag
	// are assumed to be on the ground.
	groundAltitudeFt = 100
)

// RawRecorder receives every raw line consumed from the SBS feed.
type RawRecorder interface {
	Record(line string, ts time.Time) error
}

// SBSConfig configures the BaseStation TCP feed.
type SBSConfig struct {
	Addr        string
	IdleTimeout time.Duration
	MaxLine     int
	Backoff     Backoff
	LogEvery    uint64
}

type sbsSession struct {
	addr        string
	idleTimeout time.Duration
	maxLine     int
	readTick    time.Duration

	positions *store.Positions
	registry  *refdata.Registry
	recorder  RawRecorder
	health    *Health
}

// NewSBSFeed builds the supervisor for a BaseStation TCP source.
// registry and recorder may be nil.
func NewSBSFeed(cfg SBSConfig, positions *store.Positions, registry *refdata.Registry, recorder RawRecorder) *Supervisor {
	session := &sbsSession{
		addr:        cfg.Addr,
		idleTimeout: cfg.IdleTimeout,
		maxLine:     cfg.MaxLine,
		readTick:    sbsReadTick,
		positions:   positions,
		registry:    registry,
		recorder:    recorder,
	}
	if session.idleTimeout <= 0 {
		session.idleTimeout = DefaultSBSIdleTimeout
	}
	if session.maxLine <= 0 {
		session.maxLine = DefaultSBSMaxLine
	}
	if session.readTick > session.idleTimeout {
		session.readTick = session.idleTimeout
	}

	backoff := cfg.Backoff
	if backoff == (Backoff{}) {
		backoff = DefaultSBSBackoff
	}

	sup := newSupervisor("sbs", backoff, cfg.LogEvery, session.run)
	session.health = sup.health
	return sup
}

func (s *sbsSession) run(ctx context.Context, connID string) (uint64, error) {
	dialer := net.Dialer{Timeout: sbsDialTimeout, KeepAlive: 2 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		return 0, fmt.Errorf("failed to connect to %s: %w", s.addr, err)
	}
	defer conn.Close()

	if tcpConn, ok := conn.(*net.TCPConn); ok {
		if err := tcpConn.SetNoDelay(true); err != nil {
			logging.Warn().Str("addr", s.addr).Err(err).Msg("Failed to set TCP no delay")
		}
	}

	s.health.setConnected(true)
	logging.Info().
		Str("feed", "sbs").
		Str("connection_id", connID).
		Str("addr", s.addr).
		Msg("Connected to SBS feed")

	var consumed uint64
	buf := make([]byte, 4096)
	var tail []byte
	lastData := time.Now()

	for {
		select {
		case <-ctx.Done():
			return consumed, ctx.Err()
		default:
		}

		if err := conn.SetReadDeadline(time.Now().Add(s.readTick)); err != nil {
			return consumed, fmt.Errorf("failed to set read deadline: %w", err)
		}

		n, err := conn.Read(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				// The deadline tick doubles as the idle check.
				if time.Since(lastData) > s.idleTimeout {
					return consumed, fmt.Errorf("no data from %s for %s", s.addr, s.idleTimeout)
				}
				continue
			}
			return consumed, fmt.Errorf("read from %s failed: %w", s.addr, err)
		}
		lastData = time.Now()

		tail = append(tail, buf[:n]...)
		for {
			idx := bytes.IndexByte(tail, '\n')
			if idx < 0 {
				break
			}
			line := strings.TrimRight(string(tail[:idx]), "\r")
			tail = tail[idx+1:]
			if line == "" {
				continue
			}
			consumed++
			s.consume(line, time.Now().UTC())
		}

		if len(tail) > s.maxLine {
			logging.Warn().
				Str("addr", s.addr).
				Int("discarded", len(tail)).
				Msg("Discarding oversized partial line from SBS feed")
			tail = tail[:0]
		}
	}
}

// consume runs one raw line through record, decode, enrich, upsert.
func (s *sbsSession) consume(line string, ts time.Time) {
	s.health.markMessage(ts)

	if s.recorder != nil {
		if err := s.recorder.Record(line, ts); err != nil {
			logging.Warn().Err(err).Msg("Failed to record raw SBS line")
		}
	}

	rec, ok := sbs.Decode(line, ts)
	if !ok {
		logging.Debug().Str("line", truncate(line, 120)).Msg("Discarding undecodable SBS line")
		return
	}

	// The feed rarely carries an explicit on-ground flag. Infer it
	// from altitude when absent so ground traffic filters work.
	if rec.OnGround == nil && rec.Altitude != nil {
		onGround := *rec.Altitude < groundAltitudeFt
		rec.OnGround = &onGround
	}

	if s.registry != nil {
		s.registry.Enrich(rec)
	}

	s.positions.Upsert(rec)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
