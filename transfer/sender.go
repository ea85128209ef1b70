package transfer

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"time"

	"pairshare/models"
)

// SendOptions controls a single send.
type SendOptions struct {
	ConnectTimeout time.Duration
	ChunkSize      int
	OnProgress     func(bytes, total int64)
}

func (o SendOptions) withDefaults() SendOptions {
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	return o
}

// PrepareFile stats and hashes a local file into a sendable payload.
func PrepareFile(path string) (models.Payload, error) {
	info, err := os.Stat(path)
	if err != nil {
		return models.Payload{}, fmt.Errorf("stat %q: %w", path, err)
	}
	if info.IsDir() {
		return models.Payload{}, fmt.Errorf("%w: %q is a directory", ErrInvalidPayload, path)
	}
	checksum, err := FileChecksum(path)
	if err != nil {
		return models.Payload{}, err
	}
	return models.Payload{
		Type:     models.PayloadFile,
		Path:     path,
		Name:     filepath.Base(path),
		Size:     info.Size(),
		Checksum: checksum,
	}, nil
}

// Send connects to address from an ephemeral local port, writes exactly one
// payload and closes the connection. File payloads without a checksum are
// hashed first.
func Send(ctx context.Context, address string, payload models.Payload, options SendOptions) (models.Payload, error) {
	opts := options.withDefaults()

	if payload.Type == models.PayloadFile && (payload.Checksum == "" || payload.Name == "") {
		prepared, err := PrepareFile(payload.Path)
		if err != nil {
			return models.Payload{}, err
		}
		payload = prepared
	}
	header := headerFor(payload)
	if err := header.Validate(); err != nil {
		return models.Payload{}, err
	}

	dialer := net.Dialer{
		Timeout:   opts.ConnectTimeout,
		LocalAddr: &net.TCPAddr{Port: 0},
	}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return models.Payload{}, ctxErr
		}
		return models.Payload{}, classify(fmt.Sprintf("dial %q", address), err)
	}
	defer func() {
		_ = conn.Close()
	}()
	stopConn := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})
	defer stopConn()

	if err := writePayload(conn, header, payload, opts); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return models.Payload{}, ctxErr
		}
		return models.Payload{}, err
	}
	return payload, nil
}

func headerFor(payload models.Payload) Header {
	if payload.Type == models.PayloadFile {
		return Header{
			Type:     models.PayloadFile,
			Name:     payload.Name,
			Size:     payload.Size,
			Checksum: payload.Checksum,
		}
	}
	return Header{Type: models.PayloadText, Text: payload.Text}
}

func writePayload(conn net.Conn, header Header, payload models.Payload, opts SendOptions) error {
	writer := bufio.NewWriterSize(conn, opts.ChunkSize)

	if err := conn.SetWriteDeadline(time.Now().Add(opts.ConnectTimeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := WriteHeader(writer, header); err != nil {
		return classify("write header", err)
	}
	if header.Type == models.PayloadFile {
		if err := streamFile(conn, writer, payload, opts); err != nil {
			return err
		}
	}
	if err := writer.Flush(); err != nil {
		return classify("flush", err)
	}
	return nil
}

func streamFile(conn net.Conn, writer *bufio.Writer, payload models.Payload, opts SendOptions) error {
	file, err := os.Open(payload.Path)
	if err != nil {
		return fmt.Errorf("open %q: %w", payload.Path, err)
	}
	defer func() {
		_ = file.Close()
	}()

	buffer := make([]byte, opts.ChunkSize)
	var sent int64
	for sent < payload.Size {
		n, readErr := file.Read(buffer)
		if n > 0 {
			if remaining := payload.Size - sent; int64(n) > remaining {
				n = int(remaining)
			}
			if err := conn.SetWriteDeadline(time.Now().Add(opts.ConnectTimeout)); err != nil {
				return fmt.Errorf("set write deadline: %w", err)
			}
			if _, err := writer.Write(buffer[:n]); err != nil {
				return classify("write file chunk", err)
			}
			sent += int64(n)
			if opts.OnProgress != nil {
				opts.OnProgress(sent, payload.Size)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return fmt.Errorf("read %q: %w", payload.Path, readErr)
		}
	}
	if sent != payload.Size {
		return fmt.Errorf("%w: %q changed size during send", ErrInvalidPayload, payload.Path)
	}
	return nil
}
