// Command airstated ingests live aeronautical feeds into in-memory
// state: aircraft positions from a BaseStation TCP source and NOTAMs
// from the SWIM FNS queue.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/openaero/airstate/internal/aixm"
	"github.com/openaero/airstate/internal/config"
	"github.com/openaero/airstate/internal/feed"
	"github.com/openaero/airstate/internal/logging"
	"github.com/openaero/airstate/internal/query"
	"github.com/openaero/airstate/internal/recorder"
	"github.com/openaero/airstate/internal/redis"
	"github.com/openaero/airstate/internal/refdata"
	"github.com/openaero/airstate/internal/store"
)

const shutdownGrace = 10 * time.Second

func main() {
	if err := run(); err != nil {
		logging.Fatal().Err(err).Msg("airstated failed")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	logging.Info().Msg("Starting airstated")

	if cfg.SBS.Addr == "" && cfg.SWIM.URL == "" {
		return fmt.Errorf("no feeds configured: set SBS_ADDR or SWIM_URL")
	}

	registry := loadRegistry(cfg)
	airports := loadAirports(context.Background(), cfg)

	positions := store.NewPositions(cfg.Store.PositionTimeout, cfg.Store.PositionSweepInterval)
	notices := store.NewNotices(cfg.Store.NoticeSweepInterval)

	if cfg.Redis.Addr != "" {
		mirror, err := redis.New(cfg.Redis.Addr, cfg.RedisTTL())
		if err != nil {
			return fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
		defer mirror.Close()
		positions.SetMirror(mirror)
		logging.Info().
			Str("addr", cfg.Redis.Addr).
			Dur("ttl", cfg.RedisTTL()).
			Msg("Mirroring live positions to Redis")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		positions.Run(ctx)
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		notices.Run(ctx)
	}()

	var rawRecorder feed.RawRecorder
	if cfg.Recorder.Dir != "" {
		capture := recorder.New(cfg.Recorder.Dir)
		defer capture.Close()
		wg.Add(1)
		go func() {
			defer wg.Done()
			capture.Run(ctx)
		}()
		rawRecorder = capture
		logging.Info().Str("dir", cfg.Recorder.Dir).Msg("Recording raw SBS lines")
	}

	var feeds []query.Feed

	if cfg.SBS.Addr != "" {
		sbsFeed := feed.NewSBSFeed(feed.SBSConfig{
			Addr:        cfg.SBS.Addr,
			IdleTimeout: cfg.SBS.IdleTimeout,
			MaxLine:     cfg.SBS.MaxLine,
			Backoff:     cfg.SBSBackoff(),
			LogEvery:    uint64(cfg.SBS.LogEvery),
		}, positions, registry, rawRecorder)
		feeds = append(feeds, sbsFeed)
		wg.Add(1)
		go func() {
			defer wg.Done()
			sbsFeed.Run(ctx)
		}()
	} else {
		logging.Warn().Msg("SBS feed disabled: no address configured")
	}

	if cfg.SWIM.URL != "" {
		var index aixm.AirportIndex
		if airports != nil {
			index = airports
		}
		swimFeed := feed.NewSWIMFeed(feed.SWIMConfig{
			URL:      cfg.SWIM.URL,
			Durable:  cfg.SWIM.Durable,
			Backoff:  cfg.SWIMBackoff(),
			LogEvery: uint64(cfg.SWIM.LogEvery),
		}, notices, aixm.NewDecoder(index))
		feeds = append(feeds, swimFeed)
		wg.Add(1)
		go func() {
			defer wg.Done()
			swimFeed.Run(ctx)
		}()
	} else {
		logging.Warn().Msg("SWIM feed disabled: no queue URL configured")
	}

	svc := query.New(positions, notices, feeds...)
	wg.Add(1)
	go func() {
		defer wg.Done()
		logStatus(ctx, svc)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logging.Info().Str("signal", sig.String()).Msg("Shutting down")

	cancel()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(shutdownGrace):
		logging.Warn().Msg("Shutdown grace period expired")
	}

	return nil
}

// loadRegistry loads the aircraft reference table from a file or
// Postgres. Enrichment is optional: failures log a warning and the
// feed runs without it.
func loadRegistry(cfg *config.Config) *refdata.Registry {
	switch {
	case cfg.RefData.AircraftFile != "":
		registry, err := refdata.LoadFile(cfg.RefData.AircraftFile)
		if err != nil {
			logging.Warn().
				Str("path", cfg.RefData.AircraftFile).
				Err(err).
				Msg("Failed to load aircraft registry, enrichment disabled")
			return nil
		}
		logging.Info().Int("aircraft", registry.Len()).Msg("Loaded aircraft registry")
		return registry
	case cfg.RefData.PostgresURL != "":
		registry, err := refdata.LoadPostgres(cfg.RefData.PostgresURL)
		if err != nil {
			logging.Warn().
				Err(err).
				Msg("Failed to load aircraft registry from Postgres, enrichment disabled")
			return nil
		}
		logging.Info().Int("aircraft", registry.Len()).Msg("Loaded aircraft registry from Postgres")
		return registry
	}
	return nil
}

// loadAirports builds the IATA to ICAO table from a local file or the
// OurAirports dataset. On failure NOTAM locations fall back to prefix
// resolution.
func loadAirports(ctx context.Context, cfg *config.Config) *refdata.Airports {
	if cfg.RefData.AirportsFile != "" {
		airports, err := refdata.LoadAirportsFile(cfg.RefData.AirportsFile)
		if err != nil {
			logging.Warn().
				Str("path", cfg.RefData.AirportsFile).
				Err(err).
				Msg("Failed to load airports table, using prefix resolution")
			return nil
		}
		logging.Info().Int("airports", airports.Len()).Msg("Loaded airports table")
		return airports
	}
	if cfg.RefData.AirportsURL != "" {
		airports, err := refdata.FetchAirports(ctx, cfg.RefData.AirportsURL)
		if err != nil {
			logging.Warn().
				Str("url", cfg.RefData.AirportsURL).
				Err(err).
				Msg("Failed to fetch airports table, using prefix resolution")
			return nil
		}
		logging.Info().Int("airports", airports.Len()).Msg("Fetched airports table")
		return airports
	}
	return nil
}

// logStatus reports feed health and store gauges once a minute.
func logStatus(ctx context.Context, svc *query.Service) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := svc.Status()
			logging.Info().
				Interface("feeds", st.Feeds).
				Int("aircraft", st.Store.Aircraft).
				Int("recent_aircraft", st.Store.RecentAircraft).
				Int("notices", st.Store.Notices).
				Int("notice_locations", st.Store.NoticeLocations).
				Msg("Status")
		}
	}
}
