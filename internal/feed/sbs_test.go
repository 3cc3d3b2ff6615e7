package feed

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/openaero/airstate/internal/refdata"
	"github.com/openaero/airstate/internal/store"
	"github.com/openaero/airstate/internal/testutils"
)

// serveChunks starts a loopback TCP server that writes each chunk to
// the first accepted connection with a short pause in between, then
// closes it.
func serveChunks(t *testing.T, chunks ...string) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		for _, chunk := range chunks {
			if _, err := conn.Write([]byte(chunk)); err != nil {
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
	}()

	return ln.Addr().String()
}

func newTestSBSSession(addr string, positions *store.Positions) *sbsSession {
	return &sbsSession{
		addr:        addr,
		idleTimeout: 500 * time.Millisecond,
		maxLine:     DefaultSBSMaxLine,
		readTick:    50 * time.Millisecond,
		positions:   positions,
		health:      newHealth(),
	}
}

// recordingRecorder captures raw lines handed to the recorder tap.
type recordingRecorder struct {
	mu    sync.Mutex
	lines []string
	fail  bool
}

func (r *recordingRecorder) Record(line string, ts time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return os.ErrClosed
	}
	r.lines = append(r.lines, line)
	return nil
}

const (
	fullLine   = "MSG,3,1,1,A1B2C3,1,2024/06/01,12:00:00.000,2024/06/01,12:00:00.000,UAL123 ,35000,450.5,180.5,40.7128,-74.0060,1000,,0,0,0,0"
	groundLine = "MSG,3,1,1,DEF456,1,2024/06/01,12:00:01.000,2024/06/01,12:00:01.000,,50,,,,,,,0,0"
)

func TestSBSSession_ConsumesFeed(t *testing.T) {
	addr := serveChunks(t, fullLine+"\r\n"+groundLine+"\n")

	positions := store.NewPositions(0, 0)
	session := newTestSBSSession(addr, positions)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	consumed, err := session.run(ctx, "test-conn")
	if err == nil {
		t.Fatal("Expected an error when the server closes the connection")
	}
	if consumed != 2 {
		t.Errorf("Expected 2 consumed lines, got %d", consumed)
	}

	rec, ok := positions.Get("A1B2C3")
	if !ok {
		t.Fatal("Expected aircraft A1B2C3 in the store")
	}
	if rec.Callsign == nil || *rec.Callsign != "UAL123" {
		t.Errorf("Expected callsign UAL123, got %v", rec.Callsign)
	}
	if rec.Altitude == nil || *rec.Altitude != 35000 {
		t.Errorf("Expected altitude 35000, got %v", rec.Altitude)
	}
	if rec.Latitude == nil || *rec.Latitude != 40.7128 {
		t.Errorf("Expected latitude 40.7128, got %v", rec.Latitude)
	}
	if rec.OnGround == nil || *rec.OnGround {
		t.Errorf("Expected explicit on-ground=false, got %v", rec.OnGround)
	}

	// The second line has no on-ground field. 50 ft must infer ground.
	ground, ok := positions.Get("DEF456")
	if !ok {
		t.Fatal("Expected aircraft DEF456 in the store")
	}
	if ground.OnGround == nil || !*ground.OnGround {
		t.Errorf("Expected on-ground inferred from 50 ft, got %v", ground.OnGround)
	}

	st := session.health.Snapshot("sbs")
	if st.Messages != 2 {
		t.Errorf("Expected 2 messages in health, got %d", st.Messages)
	}
	if st.LastMessage.IsZero() {
		t.Error("Expected a last message timestamp in health")
	}
}

func TestSBSSession_ReassemblesSplitLines(t *testing.T) {
	half := len(fullLine) / 2
	addr := serveChunks(t, fullLine[:half], fullLine[half:]+"\n")

	positions := store.NewPositions(0, 0)
	session := newTestSBSSession(addr, positions)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	consumed, _ := session.run(ctx, "test-conn")
	if consumed != 1 {
		t.Errorf("Expected 1 consumed line from split chunks, got %d", consumed)
	}

	if _, ok := positions.Get("A1B2C3"); !ok {
		t.Error("Expected reassembled line to reach the store")
	}
}

func TestSBSSession_DiscardsOversizedPartialLine(t *testing.T) {
	garbage := strings.Repeat("X", 20000)
	addr := serveChunks(t, garbage, "\n"+testutils.SBSLine("A1B2C3", "UAL123")+"\n")

	positions := store.NewPositions(0, 0)
	session := newTestSBSSession(addr, positions)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := session.run(ctx, "test-conn"); err == nil {
		t.Fatal("Expected an error when the server closes the connection")
	}

	if positions.Len() != 1 {
		t.Fatalf("Expected only the valid aircraft in the store, got %d entries", positions.Len())
	}
	if _, ok := positions.Get("A1B2C3"); !ok {
		t.Error("Expected the line after the discarded buffer to be consumed")
	}
}

func TestSBSSession_UndecodableLinesAreSkipped(t *testing.T) {
	addr := serveChunks(t, "not,a,message\n\n"+testutils.SBSLine("A1B2C3", "UAL123")+"\n")

	positions := store.NewPositions(0, 0)
	session := newTestSBSSession(addr, positions)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	consumed, _ := session.run(ctx, "test-conn")

	// The garbage line counts as consumed, the blank line does not.
	if consumed != 2 {
		t.Errorf("Expected 2 consumed lines, got %d", consumed)
	}
	if positions.Len() != 1 {
		t.Errorf("Expected 1 stored aircraft, got %d", positions.Len())
	}
}

func TestSBSSession_RecordsRawLines(t *testing.T) {
	addr := serveChunks(t, fullLine+"\r\n"+groundLine+"\n")

	positions := store.NewPositions(0, 0)
	session := newTestSBSSession(addr, positions)
	recorder := &recordingRecorder{}
	session.recorder = recorder

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := session.run(ctx, "test-conn"); err == nil {
		t.Fatal("Expected an error when the server closes the connection")
	}

	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	if len(recorder.lines) != 2 {
		t.Fatalf("Expected 2 recorded lines, got %d", len(recorder.lines))
	}
	if recorder.lines[0] != fullLine {
		t.Errorf("Recorded line = %q, want %q", recorder.lines[0], fullLine)
	}
}

func TestSBSSession_RecorderFailureDoesNotStopIngest(t *testing.T) {
	addr := serveChunks(t, fullLine+"\n")

	positions := store.NewPositions(0, 0)
	session := newTestSBSSession(addr, positions)
	session.recorder = &recordingRecorder{fail: true}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	session.run(ctx, "test-conn")

	if _, ok := positions.Get("A1B2C3"); !ok {
		t.Error("Expected ingest to continue past recorder failures")
	}
}

func TestSBSSession_EnrichesFromRegistry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aircraft.jsonl")
	db := `{"icao":"a1b2c3","reg":"N123AB","icaotype":"B738","model":"737-800","short_type":"B738","manufacturer":"BOEING","ownop":"UNITED AIRLINES","year":"1998","mil":false}` + "\n"
	if err := os.WriteFile(path, []byte(db), 0o644); err != nil {
		t.Fatalf("Failed to write registry file: %v", err)
	}
	registry, err := refdata.LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() failed: %v", err)
	}

	addr := serveChunks(t, fullLine+"\n")
	positions := store.NewPositions(0, 0)
	session := newTestSBSSession(addr, positions)
	session.registry = registry

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	session.run(ctx, "test-conn")

	rec, ok := positions.Get("A1B2C3")
	if !ok {
		t.Fatal("Expected aircraft A1B2C3 in the store")
	}
	if rec.Registration != "N123AB" {
		t.Errorf("Registration = %q, want N123AB", rec.Registration)
	}
	if rec.AircraftType != "BOEING B738" {
		t.Errorf("AircraftType = %q, want BOEING B738", rec.AircraftType)
	}
	if rec.Operator != "UNITED AIRLINES" {
		t.Errorf("Operator = %q, want UNITED AIRLINES", rec.Operator)
	}
	if rec.Year != 1998 {
		t.Errorf("Year = %d, want 1998", rec.Year)
	}
}

func TestSBSSession_IdleTimeoutEndsSession(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		// Hold the connection open without sending anything.
		defer conn.Close()
		time.Sleep(5 * time.Second)
	}()

	positions := store.NewPositions(0, 0)
	session := newTestSBSSession(ln.Addr().String(), positions)
	session.idleTimeout = 150 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	start := time.Now()
	_, err = session.run(ctx, "test-conn")
	if err == nil {
		t.Fatal("Expected an idle timeout error")
	}
	if !strings.Contains(err.Error(), "no data") {
		t.Errorf("Expected idle timeout error, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Idle timeout took %v, expected well under 2s", elapsed)
	}
}

func TestSBSSession_CancellationClosesPromptly(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		time.Sleep(5 * time.Second)
	}()

	positions := store.NewPositions(0, 0)
	session := newTestSBSSession(ln.Addr().String(), positions)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		session.run(ctx, "test-conn")
		close(done)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Session did not exit promptly after cancellation")
	}
}

func TestSBSSession_DialFailure(t *testing.T) {
	// Grab a port and close it so nothing is listening there.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	session := newTestSBSSession(addr, store.NewPositions(0, 0))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	consumed, err := session.run(ctx, "test-conn")
	if err == nil {
		t.Fatal("Expected a dial error")
	}
	if consumed != 0 {
		t.Errorf("Expected 0 consumed lines on dial failure, got %d", consumed)
	}
}
