package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sakif/smartbin/internal/apperror"
	"github.com/sakif/smartbin/internal/model"
	"github.com/sakif/smartbin/internal/repository"
	"github.com/sakif/smartbin/internal/repository/dbutil"
)

var _ repository.NotificationRepository = (*NotificationDB)(nil)

// NotificationDB is the notifications table.
type NotificationDB struct {
	conn *sql.DB
}

func scanNotification(row dbutil.Scanner) (*model.Notification, error) {
	var (
		n                    model.Notification
		kind                 string
		binID                sql.NullString
		binName, binLocation sql.NullString
	)
	if err := row.Scan(&n.ID, &binID, &n.Message, &kind, &n.Read, &n.CreatedAt,
		&binName, &binLocation); err != nil {
		return nil, err
	}
	n.Type = model.NotificationType(kind)
	n.BinID = dbutil.StringPtr(binID)
	if binID.Valid && binName.Valid {
		n.Bin = &model.BinSummary{ID: binID.String, Name: binName.String, Location: binLocation.String}
	}
	return &n, nil
}

func (d *NotificationDB) List(ctx context.Context, f model.NotificationFilter) ([]model.Notification, error) {
	limit, offset := dbutil.ClampPage(f.Limit, f.Offset)
	rows, err := d.conn.QueryContext(ctx,
		`SELECT n.id, n.bin_id, n.message, n.type, n.read, n.created_at, b.name, b.location
		 FROM notifications n
		 LEFT JOIN trash_bins b ON b.id = n.bin_id
		 WHERE (? = '' OR n.bin_id = ?)
		   AND (? = 0 OR n.read = 0)
		 ORDER BY n.created_at DESC
		 LIMIT ? OFFSET ?`,
		f.BinID, f.BinID, f.UnreadOnly, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing notifications: %w", err)
	}
	defer rows.Close()

	out := []model.Notification{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning notification: %w", err)
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}

func (d *NotificationDB) Create(ctx context.Context, n *model.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	n.CreatedAt = time.Now().UTC()
	_, err := d.conn.ExecContext(ctx,
		`INSERT INTO notifications (id, bin_id, message, type, read, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		n.ID, dbutil.NullString(n.BinID), n.Message, string(n.Type), n.Read, n.CreatedAt)
	return translate(err, "inserting notification", "bin", stringOrEmpty(n.BinID))
}

func (d *NotificationDB) UnreadCount(ctx context.Context) (int, error) {
	var count int
	if err := d.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE read = 0`).Scan(&count); err != nil {
		return 0, fmt.Errorf("sqlite: counting unread notifications: %w", err)
	}
	return count, nil
}

func (d *NotificationDB) MarkRead(ctx context.Context, id string) error {
	res, err := d.conn.ExecContext(ctx, `UPDATE notifications SET read = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: marking notification %s read: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("notification", id)
	}
	return nil
}

func (d *NotificationDB) MarkAllRead(ctx context.Context) (int64, error) {
	res, err := d.conn.ExecContext(ctx, `UPDATE notifications SET read = 1 WHERE read = 0`)
	if err != nil {
		return 0, fmt.Errorf("sqlite: marking all notifications read: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (d *NotificationDB) Delete(ctx context.Context, id string) error {
	res, err := d.conn.ExecContext(ctx, `DELETE FROM notifications WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting notification %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("notification", id)
	}
	return nil
}

func (d *NotificationDB) HasUnread(ctx context.Context, binID, message string) (bool, error) {
	var exists bool
	err := d.conn.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM notifications
			WHERE bin_id = ? AND message = ? AND read = 0)`,
		binID, message).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("sqlite: checking unread notification: %w", err)
	}
	return exists, nil
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
