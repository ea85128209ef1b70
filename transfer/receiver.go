package transfer

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"pairshare/models"
)

// Progress reports bytes moved for a file payload.
type Progress struct {
	JobID     string
	Direction string
	Bytes     int64
	Total     int64
}

// ReceiveOptions controls a single receive.
type ReceiveOptions struct {
	// Address is the listen address, for example ":1995".
	Address       string
	AcceptTimeout time.Duration
	// ReceiveDir stores file payloads. Required only when a file arrives.
	ReceiveDir string
	ChunkSize  int
	OnProgress func(bytes, total int64)
}

func (o ReceiveOptions) withDefaults() ReceiveOptions {
	if o.AcceptTimeout <= 0 {
		o.AcceptTimeout = DefaultAcceptTimeout
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	return o
}

// Receive listens on opts.Address, accepts exactly one connection, reads one
// payload and closes everything before returning.
func Receive(ctx context.Context, options ReceiveOptions) (models.Payload, error) {
	listener, err := Listen(ctx, options.Address)
	if err != nil {
		return models.Payload{}, err
	}
	return ReceiveOn(ctx, listener, options)
}

// Listen binds the receiver socket.
func Listen(ctx context.Context, address string) (net.Listener, error) {
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("listen on %q: %w", address, err)
	}
	return listener, nil
}

// ReceiveOn accepts exactly one connection on listener and reads one payload.
// The listener is closed before ReceiveOn returns.
func ReceiveOn(ctx context.Context, listener net.Listener, options ReceiveOptions) (models.Payload, error) {
	opts := options.withDefaults()
	defer func() {
		_ = listener.Close()
	}()

	if tcpListener, ok := listener.(*net.TCPListener); ok {
		if err := tcpListener.SetDeadline(time.Now().Add(opts.AcceptTimeout)); err != nil {
			return models.Payload{}, fmt.Errorf("set accept deadline: %w", err)
		}
	}
	stopListener := context.AfterFunc(ctx, func() {
		_ = listener.Close()
	})
	defer stopListener()

	conn, err := listener.Accept()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return models.Payload{}, ctxErr
		}
		return models.Payload{}, classify("accept", err)
	}
	defer func() {
		_ = conn.Close()
	}()
	stopConn := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})
	defer stopConn()

	payload, err := readPayload(conn, opts)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return models.Payload{}, ctxErr
		}
		return models.Payload{}, err
	}
	return payload, nil
}

func readPayload(conn net.Conn, opts ReceiveOptions) (models.Payload, error) {
	if err := conn.SetReadDeadline(time.Now().Add(opts.AcceptTimeout)); err != nil {
		return models.Payload{}, fmt.Errorf("set read deadline: %w", err)
	}
	header, err := ReadHeader(conn)
	if err != nil {
		return models.Payload{}, classify("read header", err)
	}

	if header.Type == models.PayloadText {
		return models.TextPayload(header.Text), nil
	}
	return receiveFile(conn, header, opts)
}

func receiveFile(conn net.Conn, header Header, opts ReceiveOptions) (models.Payload, error) {
	if strings.TrimSpace(opts.ReceiveDir) == "" {
		return models.Payload{}, fmt.Errorf("%w: no receive directory configured", ErrInvalidPayload)
	}
	if err := os.MkdirAll(opts.ReceiveDir, 0o700); err != nil {
		return models.Payload{}, fmt.Errorf("create receive directory: %w", err)
	}

	temp, err := os.CreateTemp(opts.ReceiveDir, ".pairshare-*.part")
	if err != nil {
		return models.Payload{}, fmt.Errorf("create temp file: %w", err)
	}
	tempPath := temp.Name()
	committed := false
	defer func() {
		_ = temp.Close()
		if !committed {
			_ = os.Remove(tempPath)
		}
	}()

	hasher := newChecksum()
	sink := io.MultiWriter(temp, hasher)
	buffer := make([]byte, opts.ChunkSize)
	var received int64
	for received < header.Size {
		want := int64(len(buffer))
		if remaining := header.Size - received; remaining < want {
			want = remaining
		}
		if err := conn.SetReadDeadline(time.Now().Add(opts.AcceptTimeout)); err != nil {
			return models.Payload{}, fmt.Errorf("set read deadline: %w", err)
		}
		n, err := io.ReadFull(conn, buffer[:want])
		if n > 0 {
			if _, writeErr := sink.Write(buffer[:n]); writeErr != nil {
				return models.Payload{}, fmt.Errorf("write file chunk: %w", writeErr)
			}
			received += int64(n)
			if opts.OnProgress != nil {
				opts.OnProgress(received, header.Size)
			}
		}
		if err != nil {
			return models.Payload{}, classify("read file chunk", err)
		}
	}

	if got := hex.EncodeToString(hasher.Sum(nil)); got != header.Checksum {
		return models.Payload{}, ErrChecksumMismatch
	}
	if err := temp.Sync(); err != nil {
		return models.Payload{}, fmt.Errorf("sync received file: %w", err)
	}
	if err := temp.Close(); err != nil {
		return models.Payload{}, fmt.Errorf("close received file: %w", err)
	}

	finalPath, err := uniquePath(opts.ReceiveDir, header.Name)
	if err != nil {
		return models.Payload{}, err
	}
	if err := os.Rename(tempPath, finalPath); err != nil {
		return models.Payload{}, fmt.Errorf("store received file: %w", err)
	}
	committed = true

	return models.Payload{
		Type:     models.PayloadFile,
		Path:     finalPath,
		Name:     filepath.Base(finalPath),
		Size:     header.Size,
		Checksum: header.Checksum,
	}, nil
}

// uniquePath returns a non-existing path inside dir for the sender supplied
// name, stripping any directory components.
func uniquePath(dir, name string) (string, error) {
	base := filepath.Base(filepath.Clean("/" + name))
	if base == "/" || base == "." || base == "" {
		base = "received"
	}
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	candidate := filepath.Join(dir, base)
	for i := 1; i < 10000; i++ {
		if _, err := os.Stat(candidate); errors.Is(err, os.ErrNotExist) {
			return candidate, nil
		} else if err != nil {
			return "", fmt.Errorf("stat %q: %w", candidate, err)
		}
		candidate = filepath.Join(dir, stem+" ("+strconv.Itoa(i)+")"+ext)
	}
	return "", fmt.Errorf("no free file name for %q", base)
}

// classify maps deadline failures onto ErrTimeout.
func classify(op string, err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%s: %w", op, ErrTimeout)
	}
	if errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, ErrTimeout)
	}
	return fmt.Errorf("%s: %w", op, err)
}
