package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Outbound approval request statuses.
const (
	OutboundPendingApproval = "pending_approval"
	OutboundApproved        = "approved"
	OutboundRejected        = "rejected"
	OutboundSent            = "sent"
)

// OutboundRequest is an AI-proposed message to a third party. Nothing is
// sent until the owner explicitly approves.
type OutboundRequest struct {
	ID           int64
	TargetPhone  string
	Message      string
	Status       string
	SessionToken string
	CreatedAt    time.Time
	ApprovedAt   time.Time
	SentAt       time.Time
}

// Outbound stores approval requests for messages to third parties.
type Outbound struct {
	db *sql.DB
}

const outboundColumns = `id, target_phone, message, status,
	COALESCE(session_token, ''), created_at,
	COALESCE(approved_at, ''), COALESCE(sent_at, '')`

func scanOutbound(row interface{ Scan(...any) error }) (*OutboundRequest, error) {
	var o OutboundRequest
	var createdAt, approvedAt, sentAt string
	err := row.Scan(&o.ID, &o.TargetPhone, &o.Message, &o.Status,
		&o.SessionToken, &createdAt, &approvedAt, &sentAt)
	if err != nil {
		return nil, err
	}
	o.CreatedAt = parseTime(createdAt)
	if approvedAt != "" {
		o.ApprovedAt = parseTime(approvedAt)
	}
	if sentAt != "" {
		o.SentAt = parseTime(sentAt)
	}
	return &o, nil
}

// Create records a new request in pending_approval and returns its id.
func (ob *Outbound) Create(targetPhone, message, sessionToken string) (int64, error) {
	res, err := ob.db.Exec(`
		INSERT INTO outbound_messages (target_phone, message, status, session_token, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		targetPhone, message, OutboundPendingApproval, sessionToken, now())
	if err != nil {
		return 0, fmt.Errorf("create outbound request: %w", err)
	}
	return res.LastInsertId()
}

// Get returns a request by id, or nil when it does not exist.
func (ob *Outbound) Get(id int64) (*OutboundRequest, error) {
	row := ob.db.QueryRow(`SELECT `+outboundColumns+` FROM outbound_messages WHERE id = ?`, id)
	o, err := scanOutbound(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get outbound request %d: %w", id, err)
	}
	return o, nil
}

// OldestPending returns the oldest request awaiting approval, or nil.
// Used when the approve/reject command gives no id.
func (ob *Outbound) OldestPending() (*OutboundRequest, error) {
	row := ob.db.QueryRow(`
		SELECT `+outboundColumns+` FROM outbound_messages
		WHERE status = ?
		ORDER BY id ASC
		LIMIT 1`, OutboundPendingApproval)
	o, err := scanOutbound(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("oldest pending outbound request: %w", err)
	}
	return o, nil
}

// Approve flips a pending request to approved. Returns false when the
// request is missing or not pending.
func (ob *Outbound) Approve(id int64) (bool, error) {
	res, err := ob.db.Exec(`
		UPDATE outbound_messages SET status = ?, approved_at = ?
		WHERE id = ? AND status = ?`,
		OutboundApproved, now(), id, OutboundPendingApproval)
	if err != nil {
		return false, fmt.Errorf("approve outbound request %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("approve outbound request %d: %w", id, err)
	}
	return n > 0, nil
}

// Reject flips a pending request to rejected. Returns false when the
// request is missing or not pending.
func (ob *Outbound) Reject(id int64) (bool, error) {
	res, err := ob.db.Exec(`
		UPDATE outbound_messages SET status = ?
		WHERE id = ? AND status = ?`,
		OutboundRejected, id, OutboundPendingApproval)
	if err != nil {
		return false, fmt.Errorf("reject outbound request %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reject outbound request %d: %w", id, err)
	}
	return n > 0, nil
}

// Approved returns requests ready to send, oldest first.
func (ob *Outbound) Approved() ([]*OutboundRequest, error) {
	rows, err := ob.db.Query(`
		SELECT `+outboundColumns+` FROM outbound_messages
		WHERE status = ?
		ORDER BY id ASC`, OutboundApproved)
	if err != nil {
		return nil, fmt.Errorf("list approved outbound requests: %w", err)
	}
	defer rows.Close()

	var out []*OutboundRequest
	for rows.Next() {
		o, err := scanOutbound(rows)
		if err != nil {
			return nil, fmt.Errorf("scan outbound request: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// MarkSent stamps sent_at after delivery to the third party.
func (ob *Outbound) MarkSent(id int64) error {
	_, err := ob.db.Exec(`
		UPDATE outbound_messages SET status = ?, sent_at = ?
		WHERE id = ?`,
		OutboundSent, now(), id)
	if err != nil {
		return fmt.Errorf("mark outbound request %d sent: %w", id, err)
	}
	return nil
}

// CountPending returns the number of requests awaiting approval.
func (ob *Outbound) CountPending() (int, error) {
	var n int
	err := ob.db.QueryRow(`SELECT COUNT(*) FROM outbound_messages WHERE status = ?`,
		OutboundPendingApproval).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pending outbound requests: %w", err)
	}
	return n, nil
}
