package models

const (
	PayloadText = "text"
	PayloadFile = "file"
)

// Payload is the single logical item exchanged by one transfer.
type Payload struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	// Path is the local source file for outbound files and the stored file for inbound ones.
	Path     string `json:"path,omitempty"`
	Name     string `json:"name,omitempty"`
	Size     int64  `json:"size,omitempty"`
	Checksum string `json:"checksum,omitempty"`
}

// TextPayload builds an identifier payload.
func TextPayload(text string) Payload {
	return Payload{Type: PayloadText, Text: text}
}

// FilePayload builds an outbound file payload for a local path.
func FilePayload(path string) Payload {
	return Payload{Type: PayloadFile, Path: path}
}

// String returns the identifier for text payloads and the file name otherwise.
func (p Payload) String() string {
	if p.Type == PayloadFile {
		return p.Name
	}
	return p.Text
}
