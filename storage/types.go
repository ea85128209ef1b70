package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound indicates a requested row does not exist.
	ErrNotFound = errors.New("storage: record not found")
)

const (
	TransferStatusPending  = "pending"
	TransferStatusSuccess  = "success"
	TransferStatusFailed   = "failed"
	TransferStatusTimedOut = "timed_out"
)

const (
	roleSend    = "send"
	roleReceive = "receive"
)

// Transfer is the SQLite representation of one send or receive job.
type Transfer struct {
	TransferID  string
	Role        string
	PeerAddress string
	PayloadType string
	PayloadText string
	Filename    string
	Filesize    int64
	Checksum    string
	StoredPath  string
	Status      string
	Error       string
	StartedAt   int64
	FinishedAt  *int64
}

// SeenPeer is a device that showed up in a discovery round.
type SeenPeer struct {
	DeviceAddress string
	DeviceName    string
	LastStatus    string
	LastSeen      int64
}

type scanner interface {
	Scan(dest ...any) error
}

func validateRole(role string) error {
	switch role {
	case roleSend, roleReceive:
		return nil
	default:
		return fmt.Errorf("invalid transfer role %q", role)
	}
}

func validateTransferStatus(status string) error {
	switch status {
	case TransferStatusPending, TransferStatusSuccess, TransferStatusFailed, TransferStatusTimedOut:
		return nil
	default:
		return fmt.Errorf("invalid transfer status %q", status)
	}
}

func nullString(v string) sql.NullString {
	if v == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: v, Valid: true}
}

func nullInt64(ptr *int64) sql.NullInt64 {
	if ptr == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *ptr, Valid: true}
}

func int64Ptr(ni sql.NullInt64) *int64 {
	if !ni.Valid {
		return nil
	}
	v := ni.Int64
	return &v
}

func unixMilli(t time.Time) int64 {
	if t.IsZero() {
		return nowUnixMilli()
	}
	return t.UnixMilli()
}

func nowUnixMilli() int64 {
	return time.Now().UnixMilli()
}
