package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// EncodeFrame serializes a Frame to JSON and writes it to w.
// Returns an error if the version is unsupported or the frame has no id or event.
func EncodeFrame(w io.Writer, f *Frame) error {
	if err := validateFrame(f); err != nil {
		return err
	}

	encoder := json.NewEncoder(w)
	if err := encoder.Encode(f); err != nil {
		return fmt.Errorf("failed to encode frame: %w", err)
	}
	return nil
}

// MarshalFrame is EncodeFrame for message-oriented transports.
func MarshalFrame(f *Frame) ([]byte, error) {
	var buf bytes.Buffer
	if err := EncodeFrame(&buf, f); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func validateFrame(f *Frame) error {
	if f == nil {
		return fmt.Errorf("frame is nil")
	}
	if f.Protocol != Version {
		return fmt.Errorf("unsupported protocol version: %d", f.Protocol)
	}
	if f.ID == "" {
		return fmt.Errorf("frame missing required field: id")
	}
	if f.Event == "" {
		return fmt.Errorf("frame missing required field: event")
	}
	return nil
}

// DecodeReply reads and deserializes a Reply from JSON in r.
// Unknown fields are rejected and the status must be ok or error.
func DecodeReply(r io.Reader) (*Reply, error) {
	var reply Reply

	decoder := json.NewDecoder(r)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(&reply); err != nil {
		return nil, fmt.Errorf("failed to decode reply: %w", err)
	}

	if reply.ID == "" {
		return nil, fmt.Errorf("reply missing required field: id")
	}
	if reply.Status == "" {
		return nil, fmt.Errorf("reply missing required field: status")
	}
	if reply.Status != "ok" && reply.Status != "error" {
		return nil, fmt.Errorf("invalid status value: %q (must be 'ok' or 'error')", reply.Status)
	}
	if reply.Status == "error" && reply.Error == "" {
		return nil, fmt.Errorf("reply has status=error but no error message")
	}

	return &reply, nil
}

// ParseReply is DecodeReply over a complete message.
func ParseReply(data []byte) (*Reply, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("empty reply message")
	}
	return DecodeReply(bytes.NewReader(data))
}
