// Command sbssim serves synthetic BaseStation traffic over TCP for
// local development: a small fleet of aircraft stepped along great
// circles, emitted as MSG,3 lines to every connected client.
package main

import (
	"fmt"
	"math"
	"math/rand"
	"net"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/openaero/airstate/internal/logging"
)

const earthRadiusKm = 6371.0

type aircraft struct {
	icao24   string
	callsign string
	lat      float64
	lon      float64
	altitude int
	speed    float64 // knots
	track    float64 // degrees
	vertical int     // ft/min
}

func fleet() []aircraft {
	return []aircraft{
		{icao24: "A1B2C3", callsign: "UAL123", lat: 40.7128, lon: -74.0060, altitude: 35000, speed: 450, track: 45},
		{icao24: "ADF7C1", callsign: "DAL456", lat: 34.0522, lon: -118.2437, altitude: 30000, speed: 500, track: 120},
		{icao24: "A9E40F", callsign: "SWA789", lat: 39.8617, lon: -104.6731, altitude: 28000, speed: 400, track: 90},
		{icao24: "AE01FF", callsign: "N51234", lat: 34.0000, lon: -118.0000, altitude: 5000, speed: 180, track: 270},
		{icao24: "A00001", callsign: "FDX901", lat: 35.0420, lon: -89.9767, altitude: 39000, speed: 480, track: 310},
	}
}

// step advances the aircraft dt seconds along its track on a great
// circle, then jitters altitude, speed and heading a little.
func (a *aircraft) step(dt float64) {
	distanceKm := a.speed * 0.000514444 * dt
	trackRad := a.track * math.Pi / 180.0
	latRad := a.lat * math.Pi / 180.0
	lonRad := a.lon * math.Pi / 180.0

	newLatRad := math.Asin(math.Sin(latRad)*math.Cos(distanceKm/earthRadiusKm) +
		math.Cos(latRad)*math.Sin(distanceKm/earthRadiusKm)*math.Cos(trackRad))
	newLonRad := lonRad + math.Atan2(math.Sin(trackRad)*math.Sin(distanceKm/earthRadiusKm)*math.Cos(latRad),
		math.Cos(distanceKm/earthRadiusKm)-math.Sin(latRad)*math.Sin(newLatRad))

	a.lat = newLatRad * 180.0 / math.Pi
	a.lon = math.Mod(newLonRad*180.0/math.Pi+540, 360) - 180
	if a.lat > 90 {
		a.lat = 90
	}
	if a.lat < -90 {
		a.lat = -90
	}

	a.vertical = (rand.Intn(10) - 5) * 100
	a.altitude += a.vertical / 60
	if a.altitude < 100 {
		a.altitude = 100
	}
	if a.altitude > 45000 {
		a.altitude = 45000
	}

	a.speed += float64(rand.Intn(11) - 5)
	if a.speed < 80 {
		a.speed = 80
	}
	if a.speed > 600 {
		a.speed = 600
	}

	a.track = math.Mod(a.track+float64(rand.Intn(7)-3), 360)
	if a.track < 0 {
		a.track += 360
	}
}

// sbsLine renders the aircraft as one MSG,3 transmission line.
func (a *aircraft) sbsLine(now time.Time) string {
	date := now.UTC().Format("2006/01/02")
	clock := now.UTC().Format("15:04:05.000")
	return fmt.Sprintf("MSG,3,1,1,%s,1,%s,%s,%s,%s,%s,%d,%.1f,%.1f,%.4f,%.4f,%d,,0,0,0,0",
		a.icao24, date, clock, date, clock,
		a.callsign, a.altitude, a.speed, a.track, a.lat, a.lon, a.vertical)
}

type server struct {
	mu      sync.Mutex
	clients map[net.Conn]struct{}
	fleet   []aircraft
}

func newServer() *server {
	return &server{
		clients: make(map[net.Conn]struct{}),
		fleet:   fleet(),
	}
}

func (s *server) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.clients[conn] = struct{}{}
		total := len(s.clients)
		s.mu.Unlock()
		logging.Info().
			Str("remote", conn.RemoteAddr().String()).
			Int("clients", total).
			Msg("Client connected")
	}
}

// tick advances the fleet one step and broadcasts the resulting lines.
func (s *server) tick(dt float64, now time.Time) {
	lines := make([]string, len(s.fleet))
	for i := range s.fleet {
		s.fleet[i].step(dt)
		lines[i] = s.fleet[i].sbsLine(now)
	}
	payload := []byte(strings.Join(lines, "\r\n") + "\r\n")

	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.clients {
		conn.SetWriteDeadline(now.Add(2 * time.Second))
		if _, err := conn.Write(payload); err != nil {
			logging.Info().
				Str("remote", conn.RemoteAddr().String()).
				Err(err).
				Msg("Dropping client")
			conn.Close()
			delete(s.clients, conn)
		}
	}
}

func (s *server) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.clients {
		conn.Close()
		delete(s.clients, conn)
	}
}

func main() {
	if err := run(); err != nil {
		logging.Fatal().Err(err).Msg("sbssim failed")
	}
}

func run() error {
	logging.Init(logging.Config{Level: "info", Format: "console"})

	addr, interval := parseEnvironment()
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	srv := newServer()
	go srv.acceptLoop(ln)
	logging.Info().
		Str("addr", ln.Addr().String()).
		Dur("interval", interval).
		Int("aircraft", len(srv.fleet)).
		Msg("Serving synthetic SBS traffic")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			srv.tick(interval.Seconds(), now)
		case <-sigChan:
			logging.Info().Msg("Shutting down")
			ln.Close()
			srv.closeAll()
			return nil
		}
	}
}

// parseEnvironment extracts environment variables with defaults.
func parseEnvironment() (string, time.Duration) {
	addr := os.Getenv("SIM_ADDR")
	if addr == "" {
		addr = ":30003"
	}

	interval := time.Second
	if raw := os.Getenv("SIM_INTERVAL"); raw != "" {
		if parsed, err := time.ParseDuration(raw); err == nil && parsed > 0 {
			interval = parsed
		}
	}

	return addr, interval
}
