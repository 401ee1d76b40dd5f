package postgres

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

var _ repository.ActionRepository = (*ActionDB)(nil)

// ActionDB is the append-only action_history table.
type ActionDB struct {
	conn *sql.DB
}

func (a *ActionDB) RecordEmpty(ctx context.Context, action *model.Action) error {
	tx, err := a.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: begin empty tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	if action.BinID != nil {
		res, err := tx.ExecContext(ctx,
			`UPDATE trash_bins SET fill_level = 0, status = $2, last_collection = $3, updated_at = $3
			 WHERE id = $1`, *action.BinID, string(model.BinNormal), now)
		if err != nil {
			return translate(err, "resetting bin", "bin", *action.BinID)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperror.NotFound("bin", *action.BinID)
		}
	}

	action.ID = uuid.NewString()
	action.Action = model.ActionEmptyBin
	action.CreatedAt = now
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO action_history (id, user_id, bin_id, action, notes, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		action.ID, dbutil.NullString(action.UserID), dbutil.NullString(action.BinID),
		action.Action, dbutil.NullString(action.Notes), now,
	); err != nil {
		return translate(err, "inserting action", "action", action.ID)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: commit empty action: %w", err)
	}
	return nil
}

func (a *ActionDB) History(ctx context.Context, opts repository.ListOptions) ([]model.ActionHistoryEntry, error) {
	limit, offset := dbutil.ClampPage(opts.Limit, opts.Offset)
	rows, err := a.conn.QueryContext(ctx,
		`SELECT h.id, h.user_id, h.bin_id, h.action, h.notes, h.created_at,
			u.name, u.email, b.name, b.location
		 FROM action_history h
		 LEFT JOIN users u ON u.id = h.user_id
		 LEFT JOIN trash_bins b ON b.id = h.bin_id
		 ORDER BY h.created_at DESC
		 LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: listing history: %w", err)
	}
	defer rows.Close()

	entries := []model.ActionHistoryEntry{}
	for rows.Next() {
		e, err := scanHistoryEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scanning history: %w", err)
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

func scanHistoryEntry(row dbutil.Scanner) (*model.ActionHistoryEntry, error) {
	var (
		e                    model.ActionHistoryEntry
		userID, binID, notes sql.NullString
		userName, userEmail  sql.NullString
		binName, binLocation sql.NullString
	)
	if err := row.Scan(&e.ID, &userID, &binID, &e.Action.Action, &notes, &e.CreatedAt,
		&userName, &userEmail, &binName, &binLocation); err != nil {
		return nil, err
	}
	e.UserID = dbutil.StringPtr(userID)
	e.BinID = dbutil.StringPtr(binID)
	e.Notes = dbutil.StringPtr(notes)
	if userID.Valid {
		e.User = &model.ActionActor{Name: dbutil.StringPtr(userName), Email: dbutil.StringPtr(userEmail)}
	}
	if binID.Valid && binName.Valid {
		e.Bin = &model.BinSummary{ID: binID.String, Name: binName.String, Location: binLocation.String}
	}
	return &e, nil
}
