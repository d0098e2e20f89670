package channel

import (
	"bytes"
	"encoding/json"
	"math"

	"github.com/spherical/slide-deck/internal/domain"
)

// Wire type tags.
const (
	TypeStatus   = "status"
	TypeProgress = "progress"
	TypeComplete = "complete"
	TypeError    = "error"
)

// Event is one inbound notification. The set of implementations is closed:
// StatusEvent, ProgressEvent, CompleteEvent, ErrorEvent and UnknownEvent.
type Event interface {
	isEvent()
}

// StatusEvent announces that a new phase was entered.
type StatusEvent struct {
	Stage    string
	Message  string
	Progress *int
	Slides   []domain.SlideRecord
}

// ProgressEvent refines progress within the current phase.
type ProgressEvent struct {
	Stage    string
	Message  string
	Progress *int
	Slides   []domain.SlideRecord
}

// CompleteEvent closes a job successfully.
type CompleteEvent struct {
	Message         string
	Slides          []domain.SlideRecord
	PresentationURL string
}

// ErrorEvent closes a job with a job-side failure.
type ErrorEvent struct {
	Message string
}

// UnknownEvent carries a type tag this client does not understand.
type UnknownEvent struct {
	Type string
}

func (StatusEvent) isEvent()   {}
func (ProgressEvent) isEvent() {}
func (CompleteEvent) isEvent() {}
func (ErrorEvent) isEvent()    {}
func (UnknownEvent) isEvent()  {}

// Message is the JSON shape exchanged on the wire.
type Message struct {
	Type            string               `json:"type"`
	Stage           string               `json:"stage,omitempty"`
	Message         string               `json:"message,omitempty"`
	Progress        *float64             `json:"progress,omitempty"`
	Slides          []domain.SlideRecord `json:"slides,omitempty"`
	PresentationURL string               `json:"presentation_url,omitempty"`
}

// Decode parses one wire payload. A payload that is not a JSON object with a
// string type tag is a protocol error; an unrecognised tag is not.
func Decode(data []byte) (Event, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, domain.ProtocolError("payload is not a JSON object", nil)
	}

	var msg Message
	if err := json.Unmarshal(trimmed, &msg); err != nil {
		return nil, domain.ProtocolError("failed to decode event", err)
	}
	if msg.Type == "" {
		return nil, domain.ProtocolError("event has no type", nil)
	}

	return msg.Event(), nil
}

// Event converts the wire message into its variant.
func (m Message) Event() Event {
	switch m.Type {
	case TypeStatus:
		return StatusEvent{Stage: m.Stage, Message: m.Message, Progress: percent(m.Progress), Slides: m.Slides}
	case TypeProgress:
		return ProgressEvent{Stage: m.Stage, Message: m.Message, Progress: percent(m.Progress), Slides: m.Slides}
	case TypeComplete:
		return CompleteEvent{Message: m.Message, Slides: m.Slides, PresentationURL: m.PresentationURL}
	case TypeError:
		return ErrorEvent{Message: m.Message}
	default:
		return UnknownEvent{Type: m.Type}
	}
}

// Encode marshals a message for sending.
func Encode(m Message) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, domain.ProtocolError("failed to encode event", err)
	}
	return data, nil
}

// Percent is a convenience for building a Message progress value.
func Percent(p int) *float64 {
	v := float64(p)
	return &v
}

func percent(p *float64) *int {
	if p == nil {
		return nil
	}
	v := int(math.Round(*p))
	if v < 0 {
		v = 0
	}
	if v > 100 {
		v = 100
	}
	return &v
}
