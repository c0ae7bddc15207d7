package store

import (
	"context"
	"fmt"
)

const messageColumns = `id, company_id, lead_id, content, direction, status, message_type,
	meta_message_id, meta_status, meta_error, created_at`

func scanMessage(row rowScanner) (Message, error) {
	var m Message
	err := row.Scan(&m.ID, &m.CompanyID, &m.LeadID, &m.Content, &m.Direction, &m.Status, &m.MessageType,
		&m.MetaMessageID, &m.MetaStatus, &m.MetaError, &m.CreatedAt)
	return m, err
}

func (s *PostgresStore) ListMessages(ctx context.Context, companyID string, filter RecordFilter) ([]Message, error) {
	where, args := recordWhere(companyID, filter)
	args = append(args, limitOrDefault(filter.Limit, 500))
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT %s FROM messages WHERE %s ORDER BY created_at ASC LIMIT $%d`, messageColumns, where, len(args),
	), args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	out := make([]Message, 0)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// InsertMessage stores a message. A repeated meta_message_id yields
// ErrDuplicate so webhook redeliveries are idempotent.
func (s *PostgresStore) InsertMessage(ctx context.Context, m Message) (Message, error) {
	out, err := scanMessage(s.db.QueryRowContext(ctx, `
		INSERT INTO messages (id, company_id, lead_id, content, direction, status, message_type,
			meta_message_id, meta_status, meta_error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING `+messageColumns,
		m.ID, m.CompanyID, m.LeadID, m.Content, m.Direction, m.Status, m.MessageType,
		m.MetaMessageID, m.MetaStatus, m.MetaError,
	))
	if err != nil {
		return Message{}, mapWriteErr(err, "insert message")
	}
	return out, nil
}

// RecordSendResult stores the gateway outcome of an outgoing message.
func (s *PostgresStore) RecordSendResult(ctx context.Context, companyID, messageID string, providerID, metaStatus, metaError *string) (Message, error) {
	out, err := scanMessage(s.db.QueryRowContext(ctx, `
		UPDATE messages SET meta_message_id=COALESCE($3, meta_message_id), meta_status=$4, meta_error=$5
		WHERE company_id=$1 AND id::text=$2
		RETURNING `+messageColumns,
		companyID, messageID, providerID, metaStatus, metaError,
	))
	if err != nil {
		return Message{}, mapNoRows(err, "record send result")
	}
	return out, nil
}

// statusRankSQL mirrors messaging.StatusRank.
const statusRankSQL = `CASE %s WHEN 'sent' THEN 1 WHEN 'delivered' THEN 2 WHEN 'read' THEN 3 ELSE 0 END`

// UpdateStatusByProviderID applies a delivery receipt. status is only
// written when non-nil and ranks above the stored one, so a late
// "delivered" never overwrites "read". meta_status is always refreshed.
func (s *PostgresStore) UpdateStatusByProviderID(ctx context.Context, providerID, metaStatus string, status, metaError *string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE messages SET meta_status=$2,
			status=CASE WHEN `+fmt.Sprintf(statusRankSQL, "$3::text")+` > `+fmt.Sprintf(statusRankSQL, "status")+` THEN $3::text ELSE status END,
			meta_error=COALESCE($4, meta_error)
		WHERE meta_message_id=$1
	`, providerID, metaStatus, status, metaError)
	if err != nil {
		return fmt.Errorf("update message status: %w", err)
	}
	return requireAffected(result, "update message status")
}

const notificationColumns = `id, company_id, user_id, title, body, link, is_read, created_at`

func scanNotification(row rowScanner) (Notification, error) {
	var n Notification
	err := row.Scan(&n.ID, &n.CompanyID, &n.UserID, &n.Title, &n.Body, &n.Link, &n.IsRead, &n.CreatedAt)
	return n, err
}

func (s *PostgresStore) InsertNotification(ctx context.Context, n Notification) (Notification, error) {
	out, err := scanNotification(s.db.QueryRowContext(ctx, `
		INSERT INTO notifications (id, company_id, user_id, title, body, link)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+notificationColumns,
		n.ID, n.CompanyID, n.UserID, n.Title, n.Body, n.Link,
	))
	if err != nil {
		return Notification{}, mapWriteErr(err, "insert notification")
	}
	return out, nil
}

func (s *PostgresStore) ListNotifications(ctx context.Context, companyID, userID string, unreadOnly bool, limit int) ([]Notification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+notificationColumns+` FROM notifications
		WHERE company_id=$1 AND user_id=$2 AND ($3 = FALSE OR is_read = FALSE)
		ORDER BY created_at DESC LIMIT $4
	`, companyID, userID, unreadOnly, limitOrDefault(limit, 50))
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	out := make([]Notification, 0)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkNotificationsRead marks the given ids read, or all of the user's
// unread notifications when ids is empty. It returns the number of rows
// matched, so an id that is already read still counts.
func (s *PostgresStore) MarkNotificationsRead(ctx context.Context, companyID, userID string, ids []string) (int64, error) {
	query := `UPDATE notifications SET is_read=TRUE WHERE company_id=$1 AND user_id=$2`
	args := []any{companyID, userID}
	if len(ids) == 0 {
		query += " AND is_read=FALSE"
	} else {
		query += fmt.Sprintf(" AND id::text IN (%s)", placeholders(3, len(ids)))
		for _, id := range ids {
			args = append(args, id)
		}
	}
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("mark notifications read: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mark notifications read: %w", err)
	}
	return affected, nil
}
