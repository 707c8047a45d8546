// FILE: siphon/src/internal/core/event.go
package core

// SourceTypeKey is the field name carrying the component type of the
// source that produced an event.
const SourceTypeKey = "source_type"

// EventKind discriminates the event union.
type EventKind uint8

const (
	EventLog EventKind = iota
	EventMetric
	EventTrace
)

func (k EventKind) String() string {
	switch k {
	case EventLog:
		return "log"
	case EventMetric:
		return "metric"
	case EventTrace:
		return "trace"
	default:
		return "unknown"
	}
}

// Event is a single record flowing from a source into the pipeline.
// Ownership transfers to the output channel on send.
type Event struct {
	Kind   EventKind
	Fields map[string]any
}

// NewLog builds a log event over the given fields.
func NewLog(fields map[string]any) Event {
	if fields == nil {
		fields = make(map[string]any)
	}
	return Event{Kind: EventLog, Fields: fields}
}

// NewMetric builds a metric event over the given fields.
func NewMetric(fields map[string]any) Event {
	if fields == nil {
		fields = make(map[string]any)
	}
	return Event{Kind: EventMetric, Fields: fields}
}

// NewTrace builds a trace event over the given fields.
func NewTrace(fields map[string]any) Event {
	if fields == nil {
		fields = make(map[string]any)
	}
	return Event{Kind: EventTrace, Fields: fields}
}

// MetadataKey holds out-of-band source metadata for events produced
// under log namespacing, keeping the decoded payload fields pristine.
const MetadataKey = "metadata"

// Stamp records the producing source's component type on the event.
func (e Event) Stamp(sourceType string) Event {
	e.Fields[SourceTypeKey] = sourceType
	return e
}

// StampNamespaced records the component type under the metadata
// namespace instead of mixing it into the payload fields.
func (e Event) StampNamespaced(sourceType string) Event {
	e.Fields[MetadataKey] = map[string]any{SourceTypeKey: sourceType}
	return e
}

// SourceType returns the stamped component type, checking both layouts.
func (e Event) SourceType() string {
	if st, ok := e.Fields[SourceTypeKey].(string); ok {
		return st
	}
	if meta, ok := e.Fields[MetadataKey].(map[string]any); ok {
		st, _ := meta[SourceTypeKey].(string)
		return st
	}
	return ""
}
