// Package transfer moves exactly one payload between a listening receiver and
// a connecting sender over TCP.
//
// The wire format is one length-prefixed JSON header frame. File payloads are
// followed by exactly Size raw bytes. There is no handshake and no
// acknowledgement.
package transfer

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"pairshare/models"
)

const (
	// MaxHeaderSize bounds the header frame (64 KB).
	MaxHeaderSize = 64 * 1024
	// MaxTextSize bounds identifier payloads.
	MaxTextSize = 4 * 1024
	// DefaultAcceptTimeout bounds how long a receiver waits for its one connection.
	DefaultAcceptTimeout = 30 * time.Second
	// DefaultConnectTimeout bounds the sender's TCP connect.
	DefaultConnectTimeout = 30 * time.Second
	// DefaultChunkSize is the file streaming buffer size.
	DefaultChunkSize = 100 * 1024
)

var (
	// ErrFrameTooLarge indicates a header exceeds MaxHeaderSize.
	ErrFrameTooLarge = errors.New("transfer: frame exceeds max size")
	// ErrInvalidMessageType indicates the header type is missing or unknown.
	ErrInvalidMessageType = errors.New("transfer: invalid message type")
	// ErrInvalidPayload indicates a payload that cannot be put on the wire.
	ErrInvalidPayload = errors.New("transfer: invalid payload")
	// ErrChecksumMismatch indicates received file bytes do not match the header checksum.
	ErrChecksumMismatch = errors.New("transfer: checksum mismatch")
	// ErrTimeout indicates an accept, connect, read or write exceeded its bound.
	ErrTimeout = errors.New("transfer: timed out")
)

// Header is the single message of the transfer protocol.
type Header struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Name     string `json:"name,omitempty"`
	Size     int64  `json:"size,omitempty"`
	Checksum string `json:"checksum,omitempty"`
}

// Validate checks the header against the protocol rules.
func (h Header) Validate() error {
	switch h.Type {
	case models.PayloadText:
		return ValidateText(h.Text)
	case models.PayloadFile:
		if strings.TrimSpace(h.Name) == "" {
			return fmt.Errorf("%w: file name is required", ErrInvalidPayload)
		}
		if h.Size < 0 {
			return fmt.Errorf("%w: negative file size", ErrInvalidPayload)
		}
		if h.Checksum == "" {
			return fmt.Errorf("%w: checksum is required", ErrInvalidPayload)
		}
		return nil
	default:
		return ErrInvalidMessageType
	}
}

// ValidateText checks an identifier payload.
func ValidateText(text string) error {
	if text == "" {
		return fmt.Errorf("%w: empty text", ErrInvalidPayload)
	}
	if len(text) > MaxTextSize {
		return fmt.Errorf("%w: text exceeds %d bytes", ErrInvalidPayload, MaxTextSize)
	}
	if !utf8.ValidString(text) {
		return fmt.Errorf("%w: text is not valid UTF-8", ErrInvalidPayload)
	}
	if strings.ContainsAny(text, "\r\n") {
		return fmt.Errorf("%w: text contains a line break", ErrInvalidPayload)
	}
	return nil
}

// WriteHeader encodes and writes one header frame.
func WriteHeader(w io.Writer, header Header) error {
	if err := header.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("marshal header: %w", err)
	}
	return WriteFrame(w, payload)
}

// ReadHeader reads and validates one header frame.
func ReadHeader(r io.Reader) (Header, error) {
	payload, err := ReadFrame(r)
	if err != nil {
		return Header{}, err
	}

	var header Header
	if err := json.Unmarshal(payload, &header); err != nil {
		return Header{}, fmt.Errorf("decode header: %w", err)
	}
	if err := header.Validate(); err != nil {
		return Header{}, err
	}
	return header, nil
}

// WriteFrame writes one length-prefixed frame.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxHeaderSize {
		return ErrFrameTooLarge
	}

	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, uint32(len(payload)))

	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("write frame length: %w", err)
	}
	if len(payload) == 0 {
		return nil
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("write frame payload: %w", err)
	}

	return nil
}

// ReadFrame reads one length-prefixed frame.
func ReadFrame(r io.Reader) ([]byte, error) {
	header := make([]byte, 4)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("read frame length: %w", err)
	}

	length := binary.BigEndian.Uint32(header)
	if length > MaxHeaderSize {
		return nil, ErrFrameTooLarge
	}
	if length == 0 {
		return []byte{}, nil
	}

	payload := make([]byte, int(length))
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("read frame payload: %w", err)
	}

	return payload, nil
}
