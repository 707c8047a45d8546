// FILE: siphon/src/internal/decode/decode.go
package decode

import (
	"encoding/json"
	"fmt"

	"siphon/src/internal/core"

	"github.com/bytedance/sonic"
)

const maxExcerptLength = 128

// Error describes a decode failure for a single record or framing tail.
// It never terminates the pipeline; the failed record simply yields no
// events.
type Error struct {
	Reason  string
	Excerpt string
}

func (e *Error) Error() string {
	if e.Excerpt == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s (input: %s)", e.Reason, e.Excerpt)
}

func excerpt(data []byte) string {
	if len(data) > maxExcerptLength {
		data = data[:maxExcerptLength]
	}
	return string(data)
}

// Format selects how a framed record becomes events.
type Format uint8

const (
	// FormatBytes turns the whole record into one log event.
	FormatBytes Format = iota
	// FormatJSON parses the record as a single JSON document.
	FormatJSON
	// FormatNative expects a self-describing record declaring its own
	// event kind.
	FormatNative
)

func (f Format) String() string {
	switch f {
	case FormatBytes:
		return "bytes"
	case FormatJSON:
		return "json"
	case FormatNative:
		return "native_json"
	default:
		return "unknown"
	}
}

// ParseFormat resolves a configuration string into a decoding format.
// An empty string selects bytes decoding.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "", "bytes":
		return FormatBytes, nil
	case "json":
		return FormatJSON, nil
	case "native_json":
		return FormatNative, nil
	default:
		return 0, fmt.Errorf("unknown decoding format: %q", s)
	}
}

// Pipeline turns byte payloads into typed events. It is stateless and
// safe for concurrent use.
type Pipeline struct {
	framing    Framing
	format     Format
	sourceType string
	namespaced bool
}

// NewPipeline builds a pipeline for the given framing/format pair. Every
// produced event is stamped with sourceType.
func NewPipeline(framing Framing, format Format, sourceType string) *Pipeline {
	return &Pipeline{
		framing:    framing,
		format:     format,
		sourceType: sourceType,
	}
}

// Namespaced makes the pipeline stamp source metadata out-of-band
// instead of merging it into the payload fields.
func (p *Pipeline) Namespaced() *Pipeline {
	p.namespaced = true
	return p
}

// Framing returns the pipeline's framing strategy.
func (p *Pipeline) Framing() Framing {
	return p.framing
}

func (p *Pipeline) stamp(ev core.Event) core.Event {
	if p.namespaced {
		return ev.StampNamespaced(p.sourceType)
	}
	return ev.Stamp(p.sourceType)
}

// Decode frames the payload and decodes each record. Malformed records
// yield error descriptors instead of events; the rest of the payload is
// still processed. Event order follows record order.
func (p *Pipeline) Decode(payload []byte) ([]core.Event, []*Error) {
	records, ferr := frame(payload, p.framing)

	var events []core.Event
	var errs []*Error
	for _, record := range records {
		evs, derr := p.DecodeRecord(record)
		if derr != nil {
			errs = append(errs, derr)
			continue
		}
		events = append(events, evs...)
	}
	if ferr != nil {
		errs = append(errs, ferr)
	}
	return events, errs
}

// DecodeRecord decodes one already-framed record.
func (p *Pipeline) DecodeRecord(record []byte) ([]core.Event, *Error) {
	switch p.format {
	case FormatBytes:
		ev := core.NewLog(map[string]any{"message": string(record)})
		return []core.Event{p.stamp(ev)}, nil

	case FormatJSON:
		var doc any
		if err := sonic.Unmarshal(record, &doc); err != nil {
			return nil, &Error{
				Reason:  fmt.Sprintf("invalid JSON: %v", err),
				Excerpt: excerpt(record),
			}
		}
		fields, ok := doc.(map[string]any)
		if !ok {
			// Non-object documents carry their value as the body.
			fields = map[string]any{"message": doc}
		}
		ev := core.NewLog(fields)
		return []core.Event{p.stamp(ev)}, nil

	case FormatNative:
		return p.decodeNative(record)

	default:
		return nil, &Error{Reason: fmt.Sprintf("unsupported format: %d", p.format)}
	}
}

// decodeNative parses a self-describing record: a JSON object with exactly
// one of the keys "log", "metric" or "trace" holding the event fields.
func (p *Pipeline) decodeNative(record []byte) ([]core.Event, *Error) {
	var doc map[string]json.RawMessage
	if err := sonic.Unmarshal(record, &doc); err != nil {
		return nil, &Error{
			Reason:  fmt.Sprintf("invalid native record: %v", err),
			Excerpt: excerpt(record),
		}
	}
	if len(doc) != 1 {
		return nil, &Error{
			Reason:  "native record must declare exactly one event kind",
			Excerpt: excerpt(record),
		}
	}

	for kind, raw := range doc {
		var fields map[string]any
		if err := sonic.Unmarshal(raw, &fields); err != nil {
			return nil, &Error{
				Reason:  fmt.Sprintf("%s body is not an object: %v", kind, err),
				Excerpt: excerpt(record),
			}
		}

		var ev core.Event
		switch kind {
		case "log":
			ev = core.NewLog(fields)
		case "metric":
			if _, ok := fields["name"].(string); !ok {
				return nil, &Error{
					Reason:  "metric record missing 'name'",
					Excerpt: excerpt(record),
				}
			}
			if _, ok := fields["value"]; !ok {
				return nil, &Error{
					Reason:  "metric record missing 'value'",
					Excerpt: excerpt(record),
				}
			}
			ev = core.NewMetric(fields)
		case "trace":
			ev = core.NewTrace(fields)
		default:
			return nil, &Error{
				Reason:  fmt.Sprintf("unknown event kind discriminator: %q", kind),
				Excerpt: excerpt(record),
			}
		}
		return []core.Event{p.stamp(ev)}, nil
	}

	// Unreachable: len(doc) == 1 guarantees one iteration.
	return nil, &Error{Reason: "empty native record"}
}
