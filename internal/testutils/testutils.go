// Package testutils provides shared test helpers: canned feed payloads
// and condition polling.
package testutils

import (
	"context"
	"fmt"
	"time"
)

// SBSLine builds a valid MSG,3 transmission line carrying a full
// position report for the given aircraft.
func SBSLine(icao24, callsign string) string {
	return fmt.Sprintf("MSG,3,1,1,%s,1,2024/06/01,12:00:00.000,2024/06/01,12:00:00.000,%s,35000,450.0,180.0,40.7128,-74.0060,0,,0,0,0,0", icao24, callsign)
}

// NoticeDoc builds a minimal AIXM 5.1 NOTAM document with a far-future
// expiration, so decoded notices stay live for the duration of a test.
func NoticeDoc(series, number, year, typeTag, location string) []byte {
	return []byte(fmt.Sprintf(`<ns5:AIXMBasicMessage xmlns:ns5="http://www.aixm.aero/schema/5.1/message">
  <NOTAM>
    <series>%s</series>
    <number>%s</number>
    <year>%s</year>
    <type>%s</type>
    <location>%s</location>
    <effectiveStart>2024-06-01T12:00:00.000Z</effectiveStart>
    <effectiveEnd>2030-06-08T12:00:00.000Z</effectiveEnd>
    <text>RWY 13L/31R CLSD</text>
  </NOTAM>
</ns5:AIXMBasicMessage>`, series, number, year, typeTag, location))
}

// WaitForCondition polls condition every 10ms until it returns true or
// the timeout elapses.
func WaitForCondition(condition func() bool, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		if condition() {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for condition")
		case <-ticker.C:
		}
	}
}
