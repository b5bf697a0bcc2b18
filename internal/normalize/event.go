package normalize

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/sakif/garmin-mcp/internal/apperror"
)

// Event is one raw inbound event: its decoded fields plus the exact bytes it
// arrived as. Raw becomes the record payload.
type Event struct {
	Fields map[string]any
	Raw    json.RawMessage
}

// NewEvent wraps already-decoded fields. The payload is re-encoded from them.
func NewEvent(fields map[string]any) Event {
	return Event{Fields: fields}
}

func (e Event) raw() json.RawMessage {
	if len(e.Raw) > 0 {
		return append(json.RawMessage(nil), e.Raw...)
	}
	b, err := json.Marshal(e.Fields)
	if err != nil {
		// Fields that came from JSON always re-encode; anything else is
		// recorded as an empty object rather than dropped.
		return json.RawMessage(`{}`)
	}
	return b
}

// DecodeEvents parses an ingest body. A JSON object is one event; a JSON
// array is a batch whose elements must each be objects, kept in input order.
// Anything else is a validation error, so Normalize only ever sees objects.
func DecodeEvents(body []byte) ([]Event, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || !json.Valid(trimmed) {
		return nil, apperror.ValidationFailed("body", "Invalid JSON body")
	}

	if trimmed[0] != '[' {
		ev, err := decodeEvent(trimmed)
		if err != nil {
			return nil, apperror.ValidationFailed("body", "event must be a JSON object")
		}
		return []Event{ev}, nil
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(trimmed, &elems); err != nil {
		return nil, apperror.ValidationFailed("body", "Invalid JSON body")
	}
	events := make([]Event, 0, len(elems))
	for i, elem := range elems {
		ev, err := decodeEvent(elem)
		if err != nil {
			return nil, apperror.ValidationFailed("body", fmt.Sprintf("event %d must be a JSON object", i))
		}
		events = append(events, ev)
	}
	return events, nil
}

// decodeEvent decodes one JSON object with UseNumber so large integer
// measurements survive without float rounding.
func decodeEvent(raw []byte) (Event, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return Event{}, err
	}
	if fields == nil {
		return Event{}, fmt.Errorf("normalize: event is null")
	}
	return Event{
		Fields: fields,
		Raw:    append(json.RawMessage(nil), bytes.TrimSpace(raw)...),
	}, nil
}
