package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Queue item statuses.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// QueueItem is one inbound message and, once processed, its response.
type QueueItem struct {
	ID           int64
	WAMessageID  string
	SenderJID    string
	Text         string
	Response     string
	Status       string
	SessionToken string
	CreatedAt    time.Time
	CompletedAt  time.Time
	DeliveredAt  time.Time
}

// Queue is the durable message queue between the bridge and the processor.
type Queue struct {
	db *sql.DB
}

const queueColumns = `id, wa_message_id, sender_jid, text,
	COALESCE(response, ''), status, COALESCE(session_token, ''),
	created_at, COALESCE(completed_at, ''), COALESCE(delivered_at, '')`

func scanQueueItem(row interface{ Scan(...any) error }) (*QueueItem, error) {
	var it QueueItem
	var createdAt, completedAt, deliveredAt string
	err := row.Scan(&it.ID, &it.WAMessageID, &it.SenderJID, &it.Text,
		&it.Response, &it.Status, &it.SessionToken,
		&createdAt, &completedAt, &deliveredAt)
	if err != nil {
		return nil, err
	}
	it.CreatedAt = parseTime(createdAt)
	if completedAt != "" {
		it.CompletedAt = parseTime(completedAt)
	}
	if deliveredAt != "" {
		it.DeliveredAt = parseTime(deliveredAt)
	}
	return &it, nil
}

// Enqueue inserts a new pending message and returns its id.
func (q *Queue) Enqueue(waMessageID, senderJID, text string) (int64, error) {
	res, err := q.db.Exec(`
		INSERT INTO message_queue (wa_message_id, sender_jid, text, status, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		waMessageID, senderJID, text, StatusPending, now())
	if err != nil {
		return 0, fmt.Errorf("enqueue message: %w", err)
	}
	return res.LastInsertId()
}

// EnqueueNotice inserts an already-completed system message. The processor
// never touches it; the bridge delivery poller picks it up directly. Used
// for reminders and heartbeat alerts.
func (q *Queue) EnqueueNotice(text string) (int64, error) {
	ts := now()
	res, err := q.db.Exec(`
		INSERT INTO message_queue (wa_message_id, sender_jid, text, response, status, created_at, completed_at)
		VALUES ('', 'system', '', ?, ?, ?, ?)`,
		text, StatusCompleted, ts, ts)
	if err != nil {
		return 0, fmt.Errorf("enqueue notice: %w", err)
	}
	return res.LastInsertId()
}

// ClaimNext atomically claims the oldest pending item, flipping it to
// processing. The claim is a single UPDATE so two concurrent processors
// can never take the same item. Returns (nil, nil) when the queue is empty.
func (q *Queue) ClaimNext() (*QueueItem, error) {
	row := q.db.QueryRow(`
		UPDATE message_queue SET status = ?
		WHERE id = (
			SELECT id FROM message_queue
			WHERE status = ?
			ORDER BY id ASC
			LIMIT 1
		)
		RETURNING ` + queueColumns,
		StatusProcessing, StatusPending)

	it, err := scanQueueItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim next message: %w", err)
	}
	return it, nil
}

// Complete records the processing outcome for a claimed item.
func (q *Queue) Complete(id int64, response string, success bool, sessionToken string) error {
	status := StatusCompleted
	if !success {
		status = StatusFailed
	}
	_, err := q.db.Exec(`
		UPDATE message_queue
		SET response = ?, status = ?, session_token = ?, completed_at = ?
		WHERE id = ?`,
		response, status, sessionToken, now(), id)
	if err != nil {
		return fmt.Errorf("complete message %d: %w", id, err)
	}
	return nil
}

// MarkDelivered stamps delivered_at. Idempotent: a second call leaves the
// original timestamp. The bridge stamps BEFORE sending, so a crash mid-send
// can lose a response but never duplicate one.
func (q *Queue) MarkDelivered(id int64) error {
	_, err := q.db.Exec(`
		UPDATE message_queue SET delivered_at = ?
		WHERE id = ? AND delivered_at IS NULL`,
		now(), id)
	if err != nil {
		return fmt.Errorf("mark message %d delivered: %w", id, err)
	}
	return nil
}

// Undelivered returns completed or failed items whose response has not been
// sent yet, oldest first.
func (q *Queue) Undelivered() ([]*QueueItem, error) {
	rows, err := q.db.Query(`
		SELECT `+queueColumns+`
		FROM message_queue
		WHERE status IN (?, ?) AND delivered_at IS NULL AND response IS NOT NULL AND response != ''
		ORDER BY id ASC`,
		StatusCompleted, StatusFailed)
	if err != nil {
		return nil, fmt.Errorf("list undelivered messages: %w", err)
	}
	defer rows.Close()

	var items []*QueueItem
	for rows.Next() {
		it, err := scanQueueItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan undelivered message: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// ResetStuck flips any processing items back to pending. Called once on
// processor startup to recover from a crash mid-processing. Returns the
// number of recovered items.
func (q *Queue) ResetStuck() (int64, error) {
	res, err := q.db.Exec(`UPDATE message_queue SET status = ? WHERE status = ?`,
		StatusPending, StatusProcessing)
	if err != nil {
		return 0, fmt.Errorf("reset stuck messages: %w", err)
	}
	return res.RowsAffected()
}

// ProcessingSender returns the sender JID of the item currently being
// processed, if any. The bridge uses it to aim the typing indicator at
// the right chat.
func (q *Queue) ProcessingSender() (string, bool, error) {
	var sender string
	err := q.db.QueryRow(`
		SELECT sender_jid FROM message_queue
		WHERE status = ?
		ORDER BY id ASC
		LIMIT 1`,
		StatusProcessing).Scan(&sender)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("processing sender: %w", err)
	}
	return sender, true, nil
}

// Counts returns per-status item counts for status reporting.
func (q *Queue) Counts() (map[string]int, error) {
	rows, err := q.db.Query(`SELECT status, COUNT(*) FROM message_queue GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count messages: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan message count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// LastSessionToken returns the session token of the most recently completed
// item, with that item's creation time, for resume decisions. The freshness
// window is keyed on when the conversation happened, not on how long the
// invocation took. Empty token when no completed item carries one.
func (q *Queue) LastSessionToken() (string, time.Time, error) {
	var token, createdAt string
	err := q.db.QueryRow(`
		SELECT session_token, created_at FROM message_queue
		WHERE session_token IS NOT NULL AND session_token != '' AND completed_at IS NOT NULL
		ORDER BY id DESC
		LIMIT 1`).Scan(&token, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return "", time.Time{}, nil
	}
	if err != nil {
		return "", time.Time{}, fmt.Errorf("last session token: %w", err)
	}
	return token, parseTime(createdAt), nil
}

// CountSince counts non-system items created at or after t. Feeds the
// daily summary.
func (q *Queue) CountSince(t time.Time) (int, error) {
	var n int
	err := q.db.QueryRow(`
		SELECT COUNT(*) FROM message_queue
		WHERE created_at >= ? AND sender_jid != 'system'`,
		formatTime(t)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count messages since %s: %w", formatTime(t), err)
	}
	return n, nil
}
