// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package backend provides the HTTP client for communicating with the cognito inference backend.
package backend

import (
	"bytes"
	"encoding/json"
)

// =============================================================================
// STREAM PARSER
// =============================================================================

const (
	dataPrefix   = "data:"
	doneSentinel = "[DONE]"
)

// Frame is one decoded payload line from the event stream.
type Frame struct {
	// Data is the raw payload bytes (JSON for all backend frames).
	// Nil for the terminal sentinel.
	Data []byte

	// Sentinel is true for the [DONE] terminal marker.
	Sentinel bool
}

// StreamParser incrementally decodes the backend's newline-delimited
// "data: <payload>" stream from arbitrary byte chunks.
//
// The parser buffers the incomplete trailing line between Feed calls, so the
// decoded frame sequence is identical no matter how the byte stream is split
// into chunks, including splits inside multi-byte UTF-8 runes.
type StreamParser struct {
	buf  []byte
	done bool
}

// NewStreamParser creates an empty parser.
func NewStreamParser() *StreamParser {
	return &StreamParser{}
}

// Feed appends a chunk and returns all frames completed by it.
// After the terminal sentinel has been produced, Feed returns nil.
func (p *StreamParser) Feed(chunk []byte) []Frame {
	if p.done {
		return nil
	}
	p.buf = append(p.buf, chunk...)

	var frames []Frame
	for {
		i := bytes.IndexByte(p.buf, '\n')
		if i < 0 {
			break
		}
		line := p.buf[:i]
		p.buf = p.buf[i+1:]

		frame, ok := parseLine(line)
		if !ok {
			continue
		}
		frames = append(frames, frame)
		if frame.Sentinel {
			p.done = true
			p.buf = nil
			break
		}
	}
	return frames
}

// Close flushes the stream at EOF. Any residual complete line is decoded,
// then if no terminal sentinel was seen one is synthesized so that every
// stream ends in exactly one terminal frame.
func (p *StreamParser) Close() []Frame {
	if p.done {
		return nil
	}

	var frames []Frame
	if len(p.buf) > 0 {
		if frame, ok := parseLine(p.buf); ok {
			frames = append(frames, frame)
			if frame.Sentinel {
				p.done = true
			}
		}
		p.buf = nil
	}

	if !p.done {
		frames = append(frames, Frame{Sentinel: true})
		p.done = true
	}
	return frames
}

// Done reports whether the terminal sentinel has been produced.
func (p *StreamParser) Done() bool {
	return p.done
}

// parseLine decodes a single line. Lines without the data prefix (blank SSE
// separators, comments, other fields) are ignored.
func parseLine(line []byte) (Frame, bool) {
	line = bytes.TrimRight(line, "\r")

	if !bytes.HasPrefix(line, []byte(dataPrefix)) {
		return Frame{}, false
	}
	data := line[len(dataPrefix):]
	// Both "data: x" and "data:x" occur in the wild.
	if len(data) > 0 && data[0] == ' ' {
		data = data[1:]
	}

	if bytes.Equal(data, []byte(doneSentinel)) {
		return Frame{Sentinel: true}, true
	}
	if len(data) == 0 {
		return Frame{}, false
	}

	// Copy out of the shared buffer so callers may retain the payload.
	payload := make([]byte, len(data))
	copy(payload, data)
	return Frame{Data: payload}, true
}

// =============================================================================
// EVENT DECODING
// =============================================================================

// chatFrame is the wire shape of one chat stream payload.
type chatFrame struct {
	Status  string `json:"status"`
	Query   string `json:"query"`
	Content string `json:"content"`
	Error   string `json:"error"`
}

// DecodeChatEvent maps a frame onto a chat event.
//
// Payloads that are not valid JSON, or that carry none of the known fields,
// return ok=false: the frame is skipped and the stream continues. A payload
// whose only meaningful field is a non-empty error is a terminal failure.
// Frames that carry a status alongside an error (search_failed) are status
// events; the stream continues past them.
func DecodeChatEvent(f Frame) (ChatEvent, bool) {
	if f.Sentinel {
		return ChatEvent{Kind: ChatEventDone}, true
	}

	var w chatFrame
	if err := json.Unmarshal(f.Data, &w); err != nil {
		return ChatEvent{}, false
	}

	switch {
	case w.Status != "":
		return ChatEvent{
			Kind:   ChatEventStatus,
			Status: w.Status,
			Query:  w.Query,
			Detail: w.Error,
		}, true
	case w.Content != "":
		return ChatEvent{Kind: ChatEventToken, Token: w.Content}, true
	case w.Error != "":
		return ChatEvent{
			Kind: ChatEventError,
			Err:  &ClientError{Type: ErrTypeBackend, Message: w.Error},
		}, true
	default:
		return ChatEvent{}, false
	}
}

// DecodeDownloadEvent maps a frame onto a download event.
//
// The download stream has no [DONE] sentinel; its terminal frames are the
// complete and error statuses. The synthesized sentinel at EOF therefore
// returns ok=false here and is handled by the caller.
func DecodeDownloadEvent(f Frame) (DownloadEvent, bool) {
	if f.Sentinel {
		return DownloadEvent{}, false
	}

	var ev DownloadEvent
	if err := json.Unmarshal(f.Data, &ev); err != nil {
		return DownloadEvent{}, false
	}
	if ev.Status == "" {
		return DownloadEvent{}, false
	}
	return ev, true
}
