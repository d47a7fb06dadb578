// Package sse decodes the lines of a server-sent event stream into typed events.
//
// Only "data:" lines carry events. Keep-alives, comments, blank lines and frames
// that are well-formed but irrelevant decode to nil and are skipped by callers.
// A malformed frame is also skipped so a single partial line cannot abort an
// otherwise healthy stream; explicit error frames are always surfaced.
package sse

import (
	"encoding/json"
	"strings"

	"github.com/papercomputeco/parley/pkg/llm"
)

// DataPrefix starts every data-bearing line.
const DataPrefix = "data:"

// Kind tags a decoded Event.
type Kind int

const (
	// Delta carries an incremental fragment of assistant text.
	Delta Kind = iota
	// Completed signals the end of the stream. Nothing after it is decoded.
	Completed
	// Failed carries a server error reported inside the stream.
	Failed
)

func (k Kind) String() string {
	switch k {
	case Delta:
		return "delta"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Event is a decoded stream frame.
type Event struct {
	Kind Kind
	Text string
	Err  *llm.ServerError
}

// Decode converts one raw line into an Event, or nil when the line should be skipped.
func Decode(line string) *Event {
	line = strings.TrimRight(line, "\r\n")
	payload, ok := strings.CutPrefix(line, DataPrefix)
	if !ok {
		return nil
	}
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil
	}

	if payload == llm.DoneSentinel {
		return &Event{Kind: Completed}
	}

	var frame llm.StreamFrame
	if err := json.Unmarshal([]byte(payload), &frame); err != nil {
		return nil
	}

	switch frame.Type {
	case "":
		// Untyped frames are either an error envelope or a chat completions chunk.
		if frame.Error != nil {
			return failed(frame.Error, "")
		}
		if text := frame.ChunkContent(); text != "" {
			return &Event{Kind: Delta, Text: text}
		}
		return nil
	case llm.EventOutputTextDelta:
		if frame.Delta == "" {
			return nil
		}
		return &Event{Kind: Delta, Text: frame.Delta}
	case llm.EventError, llm.EventResponseError, llm.EventResponseFailed:
		return failed(frame.FailureDetail(), frame.Type)
	default:
		return nil
	}
}

func failed(detail *llm.ErrorDetail, eventType string) *Event {
	serr := &llm.ServerError{Type: eventType}
	if detail != nil {
		serr.Message = detail.Message
		if detail.Type != "" {
			serr.Type = detail.Type
		}
	}
	if serr.Message == "" {
		serr.Message = "stream reported an error"
	}
	return &Event{Kind: Failed, Err: serr}
}
