package stream

import (
	"encoding/json"
	"strings"

	"github.com/yungbote/courseforge-backend/internal/outline"
)

// Type discriminates stream packets. Anything else on the wire decodes to
// TypeUnknown so new server-side packet kinds never break old clients.
type Type string

const (
	TypeDelta   Type = "delta"
	TypeDone    Type = "done"
	TypeError   Type = "error"
	TypeUnknown Type = "unknown"
)

// Packet is one decoded line of the generation stream.
type Packet struct {
	Type Type

	// Delta: incremental text to append to the accumulated buffer.
	Text string

	// Done: the server may send finalized structured modules, a raw text blob,
	// or neither (in which case the client falls back to its own buffer).
	// Finalize streams additionally carry the created-resource ID.
	Modules []outline.Module
	Raw     string
	ID      string

	// Error: human-readable message.
	Message string
}

type wirePacket struct {
	Type    string           `json:"type"`
	Text    string           `json:"text"`
	Modules []outline.Module `json:"modules"`
	Raw     string           `json:"raw"`
	ID      string           `json:"id"`
	Message string           `json:"message"`
}

// decodePacket parses one complete line. A syntactically valid JSON object
// with an unrecognized (or missing) type yields TypeUnknown, not an error.
func decodePacket(line []byte) (Packet, error) {
	var w wirePacket
	if err := json.Unmarshal(line, &w); err != nil {
		return Packet{}, err
	}
	switch strings.TrimSpace(w.Type) {
	case "delta":
		return Packet{Type: TypeDelta, Text: w.Text}, nil
	case "done":
		return Packet{Type: TypeDone, Modules: w.Modules, Raw: w.Raw, ID: w.ID}, nil
	case "error":
		return Packet{Type: TypeError, Message: w.Message}, nil
	default:
		return Packet{Type: TypeUnknown}, nil
	}
}
