package realtime

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"time"

	"github.com/tidwall/gjson"

	"pert-dashboard/internal/domain"
)

// Fixed envelope fields for payloads that arrive as a bare analysis result.
const (
	RawResultMessage = "PERT analysis completed"
	RawResultDetails = "pert_result"
)

// epochSecondsLimit separates epoch seconds from epoch milliseconds.
// 1e11 seconds is year 5138; 1e11 milliseconds is March 1973.
const epochSecondsLimit = 1e11

// Epoch seconds of 0000-01-01T00:00:00Z and 9999-12-31T23:59:59Z. Instants
// outside this window cannot be encoded as RFC 3339.
const (
	minEpochSeconds = -62167219200
	maxEpochSeconds = 253402300799
)

const maxLoggedPayload = 256

// Normalizer converts inbound push payloads into canonical UpdateEvents.
// The envelope shape is detected first by a string "type" (or "kind")
// discriminator; any other JSON object is treated as a bare analysis result.
type Normalizer struct {
	now func() time.Time
}

// NewNormalizer creates a Normalizer. A nil now defaults to time.Now.
func NewNormalizer(now func() time.Time) *Normalizer {
	if now == nil {
		now = time.Now
	}
	return &Normalizer{now: now}
}

// Normalize decodes one payload. It returns a *ParseError for input that is
// not a JSON object and never panics on malformed data.
func (n *Normalizer) Normalize(payload []byte) (domain.UpdateEvent, error) {
	payload = bytes.TrimSpace(payload)
	if !gjson.ValidBytes(payload) {
		return domain.UpdateEvent{}, &ParseError{Reason: "invalid JSON", Payload: truncate(payload)}
	}

	root := gjson.ParseBytes(payload)
	if !root.IsObject() {
		return domain.UpdateEvent{}, &ParseError{Reason: "payload is not an object", Payload: truncate(payload)}
	}

	if kind, ok := discriminator(root); ok {
		return n.fromEnvelope(root, kind), nil
	}
	return n.fromRawResult(payload), nil
}

func discriminator(root gjson.Result) (string, bool) {
	for _, key := range []string{"type", "kind"} {
		if v := root.Get(key); v.Type == gjson.String {
			return v.Str, true
		}
	}
	return "", false
}

func (n *Normalizer) fromEnvelope(root gjson.Result, kind string) domain.UpdateEvent {
	event := domain.UpdateEvent{
		Kind:      domain.ParseEventKind(kind),
		Message:   root.Get("message").String(),
		Timestamp: n.coerceTimestamp(root.Get("timestamp")),
	}

	details := root.Get("details")
	switch {
	case details.Type == gjson.String:
		event.Details = details.Str
	case details.Exists() && details.Type != gjson.Null:
		event.Details = string(compact([]byte(details.Raw)))
	}

	if data := root.Get("data"); data.Exists() && data.Type != gjson.Null {
		event.Data = compact([]byte(data.Raw))
	}

	return event
}

func (n *Normalizer) fromRawResult(payload []byte) domain.UpdateEvent {
	return domain.UpdateEvent{
		Kind:      domain.EventCalculationComplete,
		Message:   RawResultMessage,
		Timestamp: n.now().UTC(),
		Details:   RawResultDetails,
		Data:      compact(payload),
	}
}

// coerceTimestamp accepts RFC 3339 text, numeric epoch values and numeric
// strings. Anything else falls back to the current time.
func (n *Normalizer) coerceTimestamp(v gjson.Result) time.Time {
	switch v.Type {
	case gjson.String:
		if ts, err := time.Parse(time.RFC3339Nano, v.Str); err == nil {
			return ts.UTC()
		}
		if f, err := strconv.ParseFloat(v.Str, 64); err == nil {
			if ts, ok := epochToTime(f); ok {
				return ts
			}
		}
	case gjson.Number:
		if ts, ok := epochToTime(v.Num); ok {
			return ts
		}
	}
	return n.now().UTC()
}

// epochToTime converts epoch seconds or milliseconds. It reports false for
// NaN and for values outside years 0 through 9999.
func epochToTime(f float64) (time.Time, bool) {
	if math.IsNaN(f) {
		return time.Time{}, false
	}
	if math.Abs(f) < epochSecondsLimit {
		if f < minEpochSeconds {
			return time.Time{}, false
		}
		sec, frac := math.Modf(f)
		return time.Unix(int64(sec), int64(math.Round(frac*1e9))).UTC(), true
	}
	if secs := f / 1000; secs < minEpochSeconds || secs > maxEpochSeconds {
		return time.Time{}, false
	}
	ms, frac := math.Modf(f)
	return time.UnixMilli(int64(ms)).Add(time.Duration(math.Round(frac * 1e6))).UTC(), true
}

// compact returns a compact copy of raw JSON, or a plain copy if raw does
// not compact cleanly.
func compact(raw []byte) json.RawMessage {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return append(json.RawMessage(nil), raw...)
	}
	return json.RawMessage(buf.Bytes())
}

func truncate(b []byte) string {
	if len(b) <= maxLoggedPayload {
		return string(b)
	}
	return string(b[:maxLoggedPayload]) + "..."
}
