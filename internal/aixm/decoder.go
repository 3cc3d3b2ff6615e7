// Package aixm decodes AIXM 5.1 NOTAM documents into notices.
package aixm

import (
	"bytes"
	"encoding/xml"
	"strings"
	"time"

	"github.com/openaero/airstate/internal/types"
)

// AirportIndex resolves 3-letter IATA codes to 4-letter ICAO idents.
type AirportIndex interface {
	ICAOForIATA(code string) (string, bool)
}

// Decoder parses AIXM NOTAM documents. Matching is on element local
// names only: SWIM FNS messages carry aixm: or event: prefixes depending
// on the schema version, and the payload is the same either way.
type Decoder struct {
	airports AirportIndex
}

// NewDecoder returns a decoder backed by the given airport index. A nil
// index is allowed; 3-letter locations then resolve via the K prefix
// fallback only.
func NewDecoder(airports AirportIndex) *Decoder {
	return &Decoder{airports: airports}
}

// Decode parses one AIXM document into a notice stamped with now. It
// returns false when the document is not parseable XML, contains no
// NOTAM element, has no notice number, or has no resolvable location.
func (d *Decoder) Decode(doc []byte, now time.Time) (*types.Notice, bool) {
	dec := xml.NewDecoder(bytes.NewReader(doc))
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, false
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if se.Name.Local != "NOTAM" {
			continue
		}
		return d.decodeNOTAM(dec, now)
	}
}

// decodeNOTAM reads the direct children of a NOTAM element. The first
// child with a given local name wins, matching a document-order search.
func (d *Decoder) decodeNOTAM(dec *xml.Decoder, now time.Time) (*types.Notice, bool) {
	fields := make(map[string]string)
	depth := 0
	current := ""
	var buf strings.Builder

	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, false
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			if depth == 1 {
				current = t.Name.Local
				buf.Reset()
			}
		case xml.CharData:
			if depth == 1 && current != "" {
				buf.Write(t)
			}
		case xml.EndElement:
			if depth == 0 {
				return d.buildNotice(fields, now)
			}
			if depth == 1 && current != "" {
				if _, seen := fields[current]; !seen {
					fields[current] = strings.TrimSpace(buf.String())
				}
				current = ""
			}
			depth--
		}
	}
}

func (d *Decoder) buildNotice(fields map[string]string, now time.Time) (*types.Notice, bool) {
	number := fields["number"]
	if number == "" {
		return nil, false
	}
	id := fields["series"] + number + "/" + fields["year"]

	rawLocation := fields["location"]
	location := d.resolveLocation(rawLocation)
	if location == "" {
		return nil, false
	}

	typeTag := strings.ToUpper(fields["type"])

	effectiveStr := fields["effectiveStart"]
	if effectiveStr == "" {
		effectiveStr = fields["issued"]
	}
	expirationStr := fields["effectiveEnd"]
	body := fields["text"]

	effective, _ := parseTime(effectiveStr)
	var expiration *time.Time
	if t, ok := parseTime(expirationStr); ok {
		expiration = &t
	}

	parts := []string{"!" + rawLocation + " " + id}
	if body != "" {
		parts = append(parts, body)
	}
	if effectiveStr != "" {
		parts = append(parts, effectiveStr)
	}
	if expirationStr != "" {
		parts = append(parts, expirationStr)
	}

	return &types.Notice{
		ID:         id,
		Type:       types.NoticeTypeFromTag(typeTag),
		TypeTag:    typeTag,
		Location:   location,
		Effective:  effective,
		Expiration: expiration,
		Body:       body,
		Raw:        strings.Join(parts, " "),
		ReceivedAt: now,
	}, true
}

// resolveLocation canonicalizes a NOTAM location to a 4-letter ICAO
// ident. FAA SWIM locations are often 3-letter US codes: those go
// through the airport index, which knows the Alaska P- and Hawaii
// PH-prefixed idents, with a plain K prefix as last resort. An empty
// return means unresolvable.
func (d *Decoder) resolveLocation(location string) string {
	loc := strings.ToUpper(strings.TrimSpace(location))
	switch len(loc) {
	case 4:
		return loc
	case 3:
		if d.airports != nil {
			if icao, ok := d.airports.ICAOForIATA(loc); ok {
				return icao
			}
		}
		return "K" + loc
	default:
		return ""
	}
}

func parseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}
