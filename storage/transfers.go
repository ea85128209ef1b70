package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"pairshare/models"
	"pairshare/transfer"
)

const transferColumns = `
			transfer_id,
			role,
			peer_address,
			payload_type,
			payload_text,
			filename,
			filesize,
			checksum,
			stored_path,
			status,
			error,
			started_at,
			finished_at`

// BeginTransfer inserts a pending row for a job that just started.
func (s *Store) BeginTransfer(job transfer.Job) error {
	if job.ID == "" {
		return errors.New("transfer_id is required")
	}
	if err := validateRole(job.Direction); err != nil {
		return err
	}

	payload := job.Payload
	_, err := s.db.Exec(
		`INSERT INTO transfers (
			transfer_id,
			role,
			peer_address,
			payload_type,
			payload_text,
			filename,
			filesize,
			checksum,
			stored_path,
			status,
			started_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID,
		job.Direction,
		job.Address,
		nullString(payload.Type),
		nullString(payload.Text),
		nullString(payload.Name),
		payloadSize(payload),
		nullString(payload.Checksum),
		nullString(payload.Path),
		TransferStatusPending,
		unixMilli(job.StartedAt),
	)
	if err != nil {
		return fmt.Errorf("insert transfer %q: %w", job.ID, err)
	}
	return nil
}

// FinishTransfer records the terminal outcome of a job. A job that was never
// begun is inserted directly in its final state.
func (s *Store) FinishTransfer(outcome transfer.Outcome) error {
	if outcome.ID == "" {
		return errors.New("transfer_id is required")
	}
	status := storedStatus(outcome.Status)
	if err := validateTransferStatus(status); err != nil {
		return err
	}
	var errText string
	if outcome.Err != nil {
		errText = outcome.Err.Error()
	}
	finishedAt := unixMilli(outcome.FinishedAt)

	payload := outcome.Payload
	res, err := s.db.Exec(
		`UPDATE transfers
		SET status = ?,
			error = ?,
			payload_type = COALESCE(?, payload_type),
			payload_text = COALESCE(?, payload_text),
			filename = COALESCE(?, filename),
			filesize = COALESCE(?, filesize),
			checksum = COALESCE(?, checksum),
			stored_path = COALESCE(?, stored_path),
			finished_at = ?
		WHERE transfer_id = ?`,
		status,
		nullString(errText),
		nullString(payload.Type),
		nullString(payload.Text),
		nullString(payload.Name),
		payloadSize(payload),
		nullString(payload.Checksum),
		nullString(payload.Path),
		finishedAt,
		outcome.ID,
	)
	if err != nil {
		return fmt.Errorf("update transfer %q: %w", outcome.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("read rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	if err := s.BeginTransfer(outcome.Job); err != nil {
		return err
	}
	return s.FinishTransfer(outcome)
}

// GetTransfer loads one transfer row by ID.
func (s *Store) GetTransfer(transferID string) (*Transfer, error) {
	row := s.db.QueryRow(
		`SELECT`+transferColumns+`
		FROM transfers
		WHERE transfer_id = ?`,
		transferID,
	)

	record, err := scanTransfer(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get transfer %q: %w", transferID, err)
	}
	return record, nil
}

// ListTransfers returns the most recent transfers first. limit <= 0 returns all.
func (s *Store) ListTransfers(limit int) ([]Transfer, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(
		`SELECT`+transferColumns+`
		FROM transfers
		ORDER BY started_at DESC, transfer_id
		LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list transfers: %w", err)
	}
	defer rows.Close()

	transfers := make([]Transfer, 0)
	for rows.Next() {
		record, err := scanTransfer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transfer row: %w", err)
		}
		transfers = append(transfers, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transfer rows: %w", err)
	}
	return transfers, nil
}

// LatestReceived returns the most recent successful receive.
func (s *Store) LatestReceived() (*Transfer, error) {
	row := s.db.QueryRow(
		`SELECT`+transferColumns+`
		FROM transfers
		WHERE role = ? AND status = ?
		ORDER BY finished_at DESC, started_at DESC
		LIMIT 1`,
		roleReceive,
		TransferStatusSuccess,
	)

	record, err := scanTransfer(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get latest received transfer: %w", err)
	}
	return record, nil
}

// PruneTransfers deletes finished transfers that started before cutoff.
func (s *Store) PruneTransfers(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(
		`DELETE FROM transfers
		WHERE started_at < ? AND status != ?`,
		cutoff.UnixMilli(),
		TransferStatusPending,
	)
	if err != nil {
		return 0, fmt.Errorf("prune transfers: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("read rows affected: %w", err)
	}
	return affected, nil
}

func scanTransfer(row scanner) (*Transfer, error) {
	var (
		record      Transfer
		payloadType sql.NullString
		payloadText sql.NullString
		filename    sql.NullString
		filesize    sql.NullInt64
		checksum    sql.NullString
		storedPath  sql.NullString
		errText     sql.NullString
		finishedAt  sql.NullInt64
	)
	if err := row.Scan(
		&record.TransferID,
		&record.Role,
		&record.PeerAddress,
		&payloadType,
		&payloadText,
		&filename,
		&filesize,
		&checksum,
		&storedPath,
		&record.Status,
		&errText,
		&record.StartedAt,
		&finishedAt,
	); err != nil {
		return nil, err
	}

	record.PayloadType = payloadType.String
	record.PayloadText = payloadText.String
	record.Filename = filename.String
	record.Filesize = filesize.Int64
	record.Checksum = checksum.String
	record.StoredPath = storedPath.String
	record.Error = errText.String
	record.FinishedAt = int64Ptr(finishedAt)
	return &record, nil
}

func storedStatus(status transfer.Status) string {
	switch status {
	case transfer.StatusSuccess:
		return TransferStatusSuccess
	case transfer.StatusTimedOut:
		return TransferStatusTimedOut
	default:
		return TransferStatusFailed
	}
}

func payloadSize(payload models.Payload) sql.NullInt64 {
	if payload.Type != models.PayloadFile {
		return sql.NullInt64{}
	}
	size := payload.Size
	return nullInt64(&size)
}
